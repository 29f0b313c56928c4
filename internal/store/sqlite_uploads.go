package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/forenx/sentinel/internal/models"
)

// sqliteUploadRepo implements UploadRepository using SQLite.
type sqliteUploadRepo struct {
	db *sql.DB
}

const uploadColumns = "id, filename, sha256, format, size_bytes, entry_count, skipped_lines, alert_count, received_at"

func (r *sqliteUploadRepo) Create(ctx context.Context, upload *models.Upload) error {
	if upload.ID == "" {
		upload.ID = uuid.New().String()
	}

	query := `
		INSERT INTO uploads (id, filename, sha256, format, size_bytes, entry_count, skipped_lines, alert_count, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		upload.ID, upload.Filename, upload.SHA256, upload.Format,
		upload.SizeBytes, upload.EntryCount, upload.SkippedLines, upload.AlertCount,
		upload.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (r *sqliteUploadRepo) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+uploadColumns+" FROM uploads WHERE id = ?", id)
	upload, err := scanUpload(row)
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload by id: %w", err)
	}
	return upload, nil
}

func (r *sqliteUploadRepo) GetBySHA256(ctx context.Context, sum string) (*models.Upload, error) {
	query := "SELECT " + uploadColumns + " FROM uploads WHERE sha256 = ? ORDER BY received_at DESC LIMIT 1"
	row := r.db.QueryRowContext(ctx, query, sum)
	upload, err := scanUpload(row)
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload by sha256: %w", err)
	}
	return upload, nil
}

func (r *sqliteUploadRepo) List(ctx context.Context, limit, offset int) ([]*models.Upload, int64, error) {
	if limit <= 0 {
		limit = 50
	}

	total, err := r.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT " + uploadColumns + " FROM uploads ORDER BY received_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}
	return uploads, total, rows.Err()
}

func (r *sqliteUploadRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM uploads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("upload not found: %s", id)
	}
	return nil
}

func (r *sqliteUploadRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM uploads").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count uploads: %w", err)
	}
	return count, nil
}

func (r *sqliteUploadRepo) SaveMetrics(ctx context.Context, uploadID string, m *models.AggregatedMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	result, err := r.db.ExecContext(ctx, "UPDATE uploads SET metrics_json = ? WHERE id = ?", string(data), uploadID)
	if err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("upload not found: %s", uploadID)
	}
	return nil
}

func (r *sqliteUploadRepo) GetMetrics(ctx context.Context, uploadID string) (*models.AggregatedMetrics, error) {
	var data sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT metrics_json FROM uploads WHERE id = ?", uploadID).Scan(&data)
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	if !data.Valid || data.String == "" {
		//nolint:nilnil
		return nil, nil
	}

	var m models.AggregatedMetrics
	if err := json.Unmarshal([]byte(data.String), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return &m, nil
}

func scanUpload(row rowScanner) (*models.Upload, error) {
	upload := &models.Upload{}
	err := row.Scan(
		&upload.ID, &upload.Filename, &upload.SHA256, &upload.Format,
		&upload.SizeBytes, &upload.EntryCount, &upload.SkippedLines, &upload.AlertCount,
		&upload.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return upload, nil
}
