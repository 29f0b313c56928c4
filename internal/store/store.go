// Package store provides persistence for uploads, alerts, users and
// refresh tokens, plus the optional ClickHouse archive for raw entries.
package store

import (
	"context"
	"time"

	"github.com/forenx/sentinel/internal/models"
)

// Store is the main interface for metadata persistence.
type Store interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error
	// EnsureAdminUser creates the bootstrap admin when no users exist.
	// An empty password generates a random one and prints it once.
	EnsureAdminUser(password string) error

	// Repository accessors
	Users() UserRepository
	Tokens() TokenRepository
	Uploads() UploadRepository
	Alerts() AlertRepository
}

// UserRepository defines operations for user management.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// TokenRepository defines operations for refresh token management.
type TokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeByTokenHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// UploadRepository defines operations for ingested file records.
type UploadRepository interface {
	Create(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)
	// GetBySHA256 finds a previous upload of identical content.
	GetBySHA256(ctx context.Context, sum string) (*models.Upload, error)
	List(ctx context.Context, limit, offset int) ([]*models.Upload, int64, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)

	// SaveMetrics stores the aggregated metrics computed for an upload.
	SaveMetrics(ctx context.Context, uploadID string, m *models.AggregatedMetrics) error
	GetMetrics(ctx context.Context, uploadID string) (*models.AggregatedMetrics, error)
}

// AlertFilter narrows alert listings. Zero values mean no constraint.
type AlertFilter struct {
	UploadID      string
	Type          models.AttackType
	ClientIP      string
	ConfidenceMin float64
	ConfidenceMax float64
	Since         time.Time
	Until         time.Time
	Limit         int
	Offset        int
}

// TypeCount is an attack category with its alert count.
type TypeCount struct {
	Type  models.AttackType `json:"attack_type"`
	Count int64             `json:"count"`
}

// ClientCount is a client IP with its alert count.
type ClientCount struct {
	ClientIP string `json:"client_ip"`
	Country  string `json:"country,omitempty"`
	Count    int64  `json:"count"`
}

// AlertRepository defines operations for detection findings.
type AlertRepository interface {
	// InsertBatch stores a batch of alerts under one upload, assigning
	// IDs to alerts that lack them.
	InsertBatch(ctx context.Context, uploadID string, alerts []models.AttackAlert) error
	GetByID(ctx context.Context, id string) (*models.AttackAlert, error)
	List(ctx context.Context, filter AlertFilter) ([]*models.AttackAlert, int64, error)
	CountByType(ctx context.Context) ([]TypeCount, error)
	TopClients(ctx context.Context, limit int) ([]ClientCount, error)
	DeleteByUpload(ctx context.Context, uploadID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}
