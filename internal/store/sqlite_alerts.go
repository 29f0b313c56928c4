package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/forenx/sentinel/internal/models"
)

// sqliteAlertRepo implements AlertRepository using SQLite.
type sqliteAlertRepo struct {
	db *sql.DB
}

const alertColumns = "id, upload_id, timestamp, client_ip, attack_type, endpoint, user_agent, status_code, confidence, details, raw_sample, country, city"

// InsertBatch stores one upload's alerts in a single transaction.
func (r *sqliteAlertRepo) InsertBatch(ctx context.Context, uploadID string, alerts []models.AttackAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range alerts {
		a := &alerts[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		a.UploadID = uploadID

		_, err := stmt.ExecContext(ctx,
			a.ID, a.UploadID, a.Timestamp, a.ClientIP, a.Type,
			a.Endpoint, a.UserAgent, a.StatusCode, a.Confidence,
			a.Details, a.RawSample, a.Country, a.City,
		)
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.AttackAlert, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert by id: %w", err)
	}
	return alert, nil
}

// List returns alerts matching the filter, newest first, with the total
// match count for pagination.
func (r *sqliteAlertRepo) List(ctx context.Context, filter AlertFilter) ([]*models.AttackAlert, int64, error) {
	where, args := buildAlertWhere(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM alerts" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + alertColumns + " FROM alerts" + where + " ORDER BY timestamp DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.AttackAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, total, rows.Err()
}

// CountByType returns alert totals per attack category, descending.
func (r *sqliteAlertRepo) CountByType(ctx context.Context) ([]TypeCount, error) {
	query := `
		SELECT attack_type, COUNT(*) AS n
		FROM alerts
		GROUP BY attack_type
		ORDER BY n DESC, attack_type
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count alerts by type: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// TopClients returns the client IPs with the most alerts.
func (r *sqliteAlertRepo) TopClients(ctx context.Context, limit int) ([]ClientCount, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT client_ip, MAX(country), COUNT(*) AS n
		FROM alerts
		GROUP BY client_ip
		ORDER BY n DESC, client_ip
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("top clients: %w", err)
	}
	defer rows.Close()

	var clients []ClientCount
	for rows.Next() {
		var cc ClientCount
		if err := rows.Scan(&cc.ClientIP, &cc.Country, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan client count: %w", err)
		}
		clients = append(clients, cc)
	}
	return clients, rows.Err()
}

func (r *sqliteAlertRepo) DeleteByUpload(ctx context.Context, uploadID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE upload_id = ?", uploadID)
	if err != nil {
		return 0, fmt.Errorf("delete alerts by upload: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteAlertRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return count, nil
}

func buildAlertWhere(filter AlertFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.UploadID != "" {
		conditions = append(conditions, "upload_id = ?")
		args = append(args, filter.UploadID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "attack_type = ?")
		args = append(args, filter.Type)
	}
	if filter.ClientIP != "" {
		conditions = append(conditions, "client_ip = ?")
		args = append(args, filter.ClientIP)
	}
	if filter.ConfidenceMin > 0 {
		conditions = append(conditions, "confidence >= ?")
		args = append(args, filter.ConfidenceMin)
	}
	if filter.ConfidenceMax > 0 {
		conditions = append(conditions, "confidence < ?")
		args = append(args, filter.ConfidenceMax)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.Until)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanAlert(row rowScanner) (*models.AttackAlert, error) {
	alert := &models.AttackAlert{}
	err := row.Scan(
		&alert.ID, &alert.UploadID, &alert.Timestamp, &alert.ClientIP, &alert.Type,
		&alert.Endpoint, &alert.UserAgent, &alert.StatusCode, &alert.Confidence,
		&alert.Details, &alert.RawSample, &alert.Country, &alert.City,
	)
	if err != nil {
		return nil, err
	}
	return alert, nil
}
