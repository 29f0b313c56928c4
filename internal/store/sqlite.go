package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
	"golang.org/x/crypto/bcrypt"

	"github.com/forenx/sentinel/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	path string
	db   *sql.DB

	users   *sqliteUserRepo
	tokens  *sqliteTokenRepo
	uploads *sqliteUploadRepo
	alerts  *sqliteAlertRepo
}

// NewSQLiteStore creates a new SQLite store for the given database path.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStore) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	s.users = &sqliteUserRepo{db: db}
	s.tokens = &sqliteTokenRepo{db: db}
	s.uploads = &sqliteUploadRepo{db: db}
	s.alerts = &sqliteAlertRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate() error {
	return runMigrations(s.db)
}

// EnsureAdminUser creates the bootstrap admin if no users exist. With an
// empty password a random one is generated and printed to stdout once.
func (s *SQLiteStore) EnsureAdminUser(password string) error {
	count, err := s.Users().Count(context.Background())
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	generated := password == ""
	if generated {
		password = generateRandomPassword(16)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	admin := &models.User{
		ID:           uuid.New().String(),
		Username:     "admin",
		Email:        "admin@localhost",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.Users().Create(context.Background(), admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	if generated {
		fmt.Printf("\n")
		fmt.Printf("===========================================\n")
		fmt.Printf("  DEFAULT ADMIN USER CREATED\n")
		fmt.Printf("  Username: admin\n")
		fmt.Printf("  Password: %s\n", password)
		fmt.Printf("  CHANGE THIS PASSWORD IMMEDIATELY!\n")
		fmt.Printf("===========================================\n")
		fmt.Printf("\n")
	}

	return nil
}

// Users returns the user repository.
func (s *SQLiteStore) Users() UserRepository {
	return s.users
}

// Tokens returns the token repository.
func (s *SQLiteStore) Tokens() TokenRepository {
	return s.tokens
}

// Uploads returns the upload repository.
func (s *SQLiteStore) Uploads() UploadRepository {
	return s.uploads
}

// Alerts returns the alert repository.
func (s *SQLiteStore) Alerts() AlertRepository {
	return s.alerts
}

// generateRandomPassword generates a random password of the specified length.
func generateRandomPassword(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)[:length]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
