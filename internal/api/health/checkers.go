package health

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/forenx/sentinel/internal/store"
)

// SQLiteChecker verifies the metadata database answers queries.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a checker for the given database handle.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

func (c *SQLiteChecker) Name() string { return "sqlite" }

func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not open")
	}
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// ArchiveChecker verifies the long-term entry archive is reachable.
type ArchiveChecker struct {
	archive *store.EntryArchive
}

// NewArchiveChecker creates a checker for the entry archive.
func NewArchiveChecker(archive *store.EntryArchive) *ArchiveChecker {
	return &ArchiveChecker{archive: archive}
}

func (c *ArchiveChecker) Name() string { return "archive" }

func (c *ArchiveChecker) Check(ctx context.Context) error {
	if c.archive == nil {
		return fmt.Errorf("archive not configured")
	}
	if err := c.archive.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
