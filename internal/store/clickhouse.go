package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/forenx/sentinel/internal/models"
)

// ArchiveConfig holds ClickHouse connection settings for the raw entry
// archive.
type ArchiveConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for entry retention.
	RetentionDays int
}

// EntryFilter narrows archive queries. WhereSQL carries an additional
// parameterized condition, typically built from a filter expression.
type EntryFilter struct {
	UploadID  string
	Start     time.Time
	End       time.Time
	WhereSQL  string
	WhereArgs []any
	Limit     int
	Offset    int
	Ascending bool
}

// EntryPage is one page of archive results.
type EntryPage struct {
	Entries []models.LogEntry `json:"entries"`
	Total   int64             `json:"total"`
	HasMore bool              `json:"has_more"`
}

// EntryArchive stores raw parsed entries in ClickHouse. The archive is
// optional; server setups without ClickHouse query the in-memory buffer
// instead.
type EntryArchive struct {
	config *ArchiveConfig
	db     *sql.DB
}

// NewEntryArchive creates a ClickHouse-backed entry archive.
func NewEntryArchive(config *ArchiveConfig) *EntryArchive {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}

	return &EntryArchive{config: config}
}

// Open initializes the ClickHouse connection.
func (a *EntryArchive) Open() error {
	opts := &clickhouse.Options{
		Addr: a.config.Addresses,
		Auth: clickhouse.Auth{
			Database: a.config.Database,
			Username: a.config.Username,
			Password: a.config.Password,
		},
		DialTimeout:  a.config.DialTimeout,
		MaxOpenConns: a.config.MaxOpenConns,
		MaxIdleConns: a.config.MaxIdleConns,
	}

	if a.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), a.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	a.db = db
	return nil
}

// Close closes the database connection.
func (a *EntryArchive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Ping checks the connection health.
func (a *EntryArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Migrate creates the entries table if it doesn't exist.
func (a *EntryArchive) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS entries (
			upload_id String,
			timestamp DateTime64(3, 'UTC'),
			client_ip String,
			method LowCardinality(String),
			endpoint String,
			query_params String,
			protocol LowCardinality(String),
			status UInt16,
			bytes_sent Int64,
			referrer String,
			user_agent String,
			host String,
			raw String,
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (upload_id, timestamp, client_ip)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, a.config.RetentionDays)

	if _, err := a.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}

	indexes := []string{
		"ALTER TABLE entries ADD INDEX IF NOT EXISTS idx_endpoint endpoint TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4",
		"ALTER TABLE entries ADD INDEX IF NOT EXISTS idx_client_ip client_ip TYPE bloom_filter(0.01) GRANULARITY 4",
		"ALTER TABLE entries ADD INDEX IF NOT EXISTS idx_user_agent user_agent TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4",
	}

	for _, idx := range indexes {
		if _, err := a.db.ExecContext(ctx, idx); err != nil {
			// Index creation may not be supported in all ClickHouse versions
			fmt.Printf("warning: failed to create index: %v\n", err)
		}
	}

	return nil
}

// InsertBatch archives one upload's entries in a single batch.
func (a *EntryArchive) InsertBatch(ctx context.Context, uploadID string, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (
			upload_id, timestamp, client_ip, method, endpoint, query_params,
			protocol, status, bytes_sent, referrer, user_agent, host, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		_, err := stmt.ExecContext(ctx,
			uploadID,
			e.Timestamp,
			e.ClientIP,
			e.Method,
			e.Endpoint,
			e.QueryParams,
			e.Protocol,
			uint16(e.Status),
			e.BytesSent,
			e.Referrer,
			e.UserAgent,
			e.Host,
			e.Raw,
		)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// Query retrieves archived entries matching the filter.
func (a *EntryArchive) Query(ctx context.Context, filter *EntryFilter) (*EntryPage, error) {
	query, args := buildEntryQuery(filter, false)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var uploadID string
		var status uint16

		err := rows.Scan(
			&uploadID,
			&e.Timestamp,
			&e.ClientIP,
			&e.Method,
			&e.Endpoint,
			&e.QueryParams,
			&e.Protocol,
			&status,
			&e.BytesSent,
			&e.Referrer,
			&e.UserAgent,
			&e.Host,
			&e.Raw,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Status = int(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	total, err := a.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	return &EntryPage{
		Entries: entries,
		Total:   total,
		HasMore: int64(filter.Offset+len(entries)) < total,
	}, nil
}

// Count returns the number of archived entries matching the filter.
func (a *EntryArchive) Count(ctx context.Context, filter *EntryFilter) (int64, error) {
	query, args := buildEntryQuery(filter, true)

	var count int64
	if err := a.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// DeleteByUpload removes one upload's entries from the archive.
func (a *EntryArchive) DeleteByUpload(ctx context.Context, uploadID string) (int64, error) {
	var count int64
	err := a.db.QueryRowContext(ctx, "SELECT count() FROM entries WHERE upload_id = ?", uploadID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	// ALTER TABLE DELETE runs asynchronously in ClickHouse.
	_, err = a.db.ExecContext(ctx, "ALTER TABLE entries DELETE WHERE upload_id = ?", uploadID)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	return count, nil
}

// buildEntryQuery constructs the SQL query based on the filter.
func buildEntryQuery(filter *EntryFilter, countOnly bool) (string, []any) {
	var sb strings.Builder
	var args []any

	if countOnly {
		sb.WriteString("SELECT count() FROM entries")
	} else {
		sb.WriteString(`
			SELECT upload_id, timestamp, client_ip, method, endpoint, query_params,
			       protocol, status, bytes_sent, referrer, user_agent, host, raw
			FROM entries
		`)
	}

	var conditions []string

	if filter.UploadID != "" {
		conditions = append(conditions, "upload_id = ?")
		args = append(args, filter.UploadID)
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Start)
	}
	if !filter.End.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.End)
	}
	if filter.WhereSQL != "" {
		conditions = append(conditions, "("+filter.WhereSQL+")")
		args = append(args, filter.WhereArgs...)
	}

	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if countOnly {
		return sb.String(), args
	}

	dir := "DESC"
	if filter.Ascending {
		dir = "ASC"
	}
	sb.WriteString(" ORDER BY timestamp " + dir)

	limit := filter.Limit
	if limit == 0 {
		limit = 100
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	if filter.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
	}

	return sb.String(), args
}
