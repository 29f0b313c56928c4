package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/forenx/sentinel/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s := NewSQLiteStore(dbPath)
	if err := s.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	return s
}

func TestSQLiteStore_Migrate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"users", "refresh_tokens", "uploads", "alerts", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s should exist: %v", table, err)
		}
	}

	// Running migrations twice is a no-op.
	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestUserRepository_CRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     "analyst1",
		Email:        "analyst1@example.com",
		PasswordHash: "hashed-password",
		Role:         models.RoleAnalyst,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := s.Users().Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	got, err := s.Users().GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user by id: %v", err)
	}
	if got == nil {
		t.Fatal("user should exist")
	}
	if got.Username != user.Username {
		t.Errorf("username = %v, want %v", got.Username, user.Username)
	}
	if got.Role != models.RoleAnalyst {
		t.Errorf("role = %v, want analyst", got.Role)
	}
	if got.LastLoginAt != nil {
		t.Error("last login should be unset")
	}

	got, err = s.Users().GetByUsername(ctx, "analyst1")
	if err != nil {
		t.Fatalf("get user by username: %v", err)
	}
	if got == nil {
		t.Fatal("user should exist by username")
	}

	got, err = s.Users().GetByEmail(ctx, "analyst1@example.com")
	if err != nil {
		t.Fatalf("get user by email: %v", err)
	}
	if got == nil {
		t.Fatal("user should exist by email")
	}

	// Missing user returns nil, nil.
	got, err = s.Users().GetByID(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("get missing user: %v", err)
	}
	if got != nil {
		t.Error("missing user should be nil")
	}

	// Update
	user.Role = models.RoleAdmin
	user.UpdatedAt = time.Now().UTC()
	if err := s.Users().Update(ctx, user); err != nil {
		t.Fatalf("update user: %v", err)
	}
	got, _ = s.Users().GetByID(ctx, user.ID)
	if got.Role != models.RoleAdmin {
		t.Errorf("role after update = %v, want admin", got.Role)
	}

	// Last login
	loginAt := time.Now().UTC().Truncate(time.Second)
	if err := s.Users().UpdateLastLogin(ctx, user.ID, loginAt); err != nil {
		t.Fatalf("update last login: %v", err)
	}
	got, _ = s.Users().GetByID(ctx, user.ID)
	if got.LastLoginAt == nil {
		t.Fatal("last login should be set")
	}
	if !got.LastLoginAt.Equal(loginAt) {
		t.Errorf("last login = %v, want %v", got.LastLoginAt, loginAt)
	}

	// Count + List
	count, err := s.Users().Count(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	users, err := s.Users().List(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("list returned %d users, want 1", len(users))
	}

	// Delete
	if err := s.Users().Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := s.Users().Delete(ctx, user.ID); err == nil {
		t.Error("deleting missing user should error")
	}
}

func TestUserRepository_UniqueConstraints(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := &models.User{
		ID:           uuid.New().String(),
		Username:     "dupe",
		Email:        "dupe@example.com",
		PasswordHash: "x",
		Role:         models.RoleViewer,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.Users().Create(ctx, base); err != nil {
		t.Fatalf("create user: %v", err)
	}

	clone := *base
	clone.ID = uuid.New().String()
	if err := s.Users().Create(ctx, &clone); err == nil {
		t.Error("duplicate username should be rejected")
	}
}

func TestTokenRepository_Lifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := &models.User{
		ID: uuid.New().String(), Username: "u", Email: "u@example.com",
		PasswordHash: "x", Role: models.RoleViewer,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	if err := s.Users().Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	token, plain, err := models.NewRefreshToken(user.ID, time.Hour)
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}
	if plain == "" {
		t.Fatal("plaintext token should not be empty")
	}

	if err := s.Tokens().Create(ctx, token); err != nil {
		t.Fatalf("create token: %v", err)
	}

	got, err := s.Tokens().GetByTokenHash(ctx, models.HashToken(plain))
	if err != nil {
		t.Fatalf("get token by hash: %v", err)
	}
	if got == nil {
		t.Fatal("token should exist")
	}
	if got.UserID != user.ID {
		t.Errorf("user id = %v, want %v", got.UserID, user.ID)
	}
	if !got.IsValid() {
		t.Error("fresh token should be valid")
	}

	// Revoke by hash
	if err := s.Tokens().RevokeByTokenHash(ctx, got.TokenHash); err != nil {
		t.Fatalf("revoke by hash: %v", err)
	}
	got, _ = s.Tokens().GetByTokenHash(ctx, got.TokenHash)
	if !got.Revoked || got.RevokedAt == nil {
		t.Error("token should be revoked with timestamp")
	}

	// Revoke all for user
	second, _, err := models.NewRefreshToken(user.ID, time.Hour)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := s.Tokens().Create(ctx, second); err != nil {
		t.Fatalf("create second token: %v", err)
	}
	if err := s.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	got, _ = s.Tokens().GetByTokenHash(ctx, second.TokenHash)
	if !got.Revoked {
		t.Error("second token should be revoked")
	}

	// Expired tokens get cleaned up
	expired, _, err := models.NewRefreshToken(user.ID, -time.Hour)
	if err != nil {
		t.Fatalf("new expired token: %v", err)
	}
	if err := s.Tokens().Create(ctx, expired); err != nil {
		t.Fatalf("create expired token: %v", err)
	}
	deleted, err := s.Tokens().DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	// Deleting the user cascades to tokens.
	if err := s.Users().Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	got, err = s.Tokens().GetByTokenHash(ctx, second.TokenHash)
	if err != nil {
		t.Fatalf("get after cascade: %v", err)
	}
	if got != nil {
		t.Error("tokens should cascade on user delete")
	}
}

func TestUploadRepository_CRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	upload := &models.Upload{
		Filename:     "access.log",
		SHA256:       "abc123",
		Format:       models.FormatCombined,
		SizeBytes:    2048,
		EntryCount:   100,
		SkippedLines: 3,
		AlertCount:   7,
		ReceivedAt:   time.Now().UTC(),
	}

	if err := s.Uploads().Create(ctx, upload); err != nil {
		t.Fatalf("create upload: %v", err)
	}
	if upload.ID == "" {
		t.Fatal("create should assign an id")
	}

	got, err := s.Uploads().GetByID(ctx, upload.ID)
	if err != nil {
		t.Fatalf("get upload: %v", err)
	}
	if got == nil {
		t.Fatal("upload should exist")
	}
	if got.Filename != "access.log" || got.EntryCount != 100 || got.SkippedLines != 3 {
		t.Errorf("unexpected upload: %+v", got)
	}
	if got.Format != models.FormatCombined {
		t.Errorf("format = %v, want combined", got.Format)
	}

	// Dedup lookup by content hash.
	dup, err := s.Uploads().GetBySHA256(ctx, "abc123")
	if err != nil {
		t.Fatalf("get by sha256: %v", err)
	}
	if dup == nil || dup.ID != upload.ID {
		t.Error("sha256 lookup should find the upload")
	}
	missing, err := s.Uploads().GetBySHA256(ctx, "nothere")
	if err != nil {
		t.Fatalf("get missing sha256: %v", err)
	}
	if missing != nil {
		t.Error("unknown hash should return nil")
	}

	// List newest first.
	second := &models.Upload{
		Filename: "error.log", SHA256: "def456", Format: models.FormatError,
		ReceivedAt: time.Now().UTC().Add(time.Minute),
	}
	if err := s.Uploads().Create(ctx, second); err != nil {
		t.Fatalf("create second upload: %v", err)
	}
	uploads, total, err := s.Uploads().List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if total != 2 || len(uploads) != 2 {
		t.Fatalf("total = %d, len = %d, want 2, 2", total, len(uploads))
	}
	if uploads[0].ID != second.ID {
		t.Error("list should be newest first")
	}

	if err := s.Uploads().Delete(ctx, upload.ID); err != nil {
		t.Fatalf("delete upload: %v", err)
	}
	count, _ := s.Uploads().Count(ctx)
	if count != 1 {
		t.Errorf("count after delete = %d, want 1", count)
	}
}

func TestUploadRepository_Metrics(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	upload := &models.Upload{
		Filename: "access.log", SHA256: "m1", Format: models.FormatCombined,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.Uploads().Create(ctx, upload); err != nil {
		t.Fatalf("create upload: %v", err)
	}

	// No metrics stored yet.
	m, err := s.Uploads().GetMetrics(ctx, upload.ID)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	if m != nil {
		t.Error("metrics should be nil before save")
	}

	metrics := &models.AggregatedMetrics{
		TotalRequests: 100,
		UniqueIPs:     12,
		TotalBytes:    4096,
		Status2xx:     80,
		Status4xx:     15,
		Status5xx:     5,
		ErrorRate:     0.2,
		RequestMethods: map[string]int64{
			"GET": 90, "POST": 10,
		},
		TopEndpoints: []models.CountItem{{Value: "/", Count: 40}},
		TopIPs:       []models.CountItem{{Value: "10.0.0.1", Count: 25}},
	}
	if err := s.Uploads().SaveMetrics(ctx, upload.ID, metrics); err != nil {
		t.Fatalf("save metrics: %v", err)
	}

	m, err = s.Uploads().GetMetrics(ctx, upload.ID)
	if err != nil {
		t.Fatalf("get metrics after save: %v", err)
	}
	if m == nil {
		t.Fatal("metrics should exist")
	}
	if m.TotalRequests != 100 || m.RequestMethods["GET"] != 90 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if len(m.TopEndpoints) != 1 || m.TopEndpoints[0].Value != "/" {
		t.Errorf("unexpected top endpoints: %+v", m.TopEndpoints)
	}

	if err := s.Uploads().SaveMetrics(ctx, "no-such-upload", metrics); err == nil {
		t.Error("saving metrics for missing upload should error")
	}
}

func TestAlertRepository_InsertAndFilter(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	upload := &models.Upload{
		Filename: "access.log", SHA256: "a1", Format: models.FormatCombined,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.Uploads().Create(ctx, upload); err != nil {
		t.Fatalf("create upload: %v", err)
	}

	base := time.Date(2023, 10, 10, 12, 0, 0, 0, time.UTC)
	alerts := []models.AttackAlert{
		{
			Timestamp: base, ClientIP: "192.168.1.100", Type: models.AttackSQLInjection,
			Endpoint: "/admin", Confidence: 0.85, Details: "SQL injection pattern detected",
		},
		{
			Timestamp: base.Add(time.Minute), ClientIP: "192.168.1.100", Type: models.AttackScanning,
			Endpoint: "/admin", Confidence: 0.70, Details: "Known scanner user agent",
		},
		{
			Timestamp: base.Add(2 * time.Minute), ClientIP: "10.0.0.7", Type: models.AttackBruteForce,
			Endpoint: "/login", Confidence: 0.95, Details: "Brute force attempt",
		},
	}

	if err := s.Alerts().InsertBatch(ctx, upload.ID, alerts); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	for i := range alerts {
		if alerts[i].ID == "" {
			t.Fatalf("alert %d should have an id assigned", i)
		}
		if alerts[i].UploadID != upload.ID {
			t.Fatalf("alert %d should carry the upload id", i)
		}
	}

	// GetByID round trip.
	got, err := s.Alerts().GetByID(ctx, alerts[0].ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got == nil {
		t.Fatal("alert should exist")
	}
	if got.Type != models.AttackSQLInjection || got.Confidence != 0.85 {
		t.Errorf("unexpected alert: %+v", got)
	}

	// Unfiltered list, newest first.
	list, total, err := s.Alerts().List(ctx, AlertFilter{})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if total != 3 || len(list) != 3 {
		t.Fatalf("total = %d, len = %d, want 3", total, len(list))
	}
	if list[0].Type != models.AttackBruteForce {
		t.Errorf("first alert = %v, want newest (BRUTE_FORCE)", list[0].Type)
	}

	// Filter by type.
	list, total, err = s.Alerts().List(ctx, AlertFilter{Type: models.AttackSQLInjection})
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if total != 1 || list[0].ClientIP != "192.168.1.100" {
		t.Errorf("type filter: total = %d", total)
	}

	// Filter by client IP.
	_, total, err = s.Alerts().List(ctx, AlertFilter{ClientIP: "192.168.1.100"})
	if err != nil {
		t.Fatalf("list by client: %v", err)
	}
	if total != 2 {
		t.Errorf("client filter total = %d, want 2", total)
	}

	// Confidence band (high severity: [0.75, 0.9)).
	list, total, err = s.Alerts().List(ctx, AlertFilter{ConfidenceMin: 0.75, ConfidenceMax: 0.9})
	if err != nil {
		t.Fatalf("list by confidence: %v", err)
	}
	if total != 1 || list[0].Type != models.AttackSQLInjection {
		t.Errorf("confidence band: total = %d", total)
	}

	// Time window.
	_, total, err = s.Alerts().List(ctx, AlertFilter{Since: base.Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("list by since: %v", err)
	}
	if total != 2 {
		t.Errorf("since filter total = %d, want 2", total)
	}

	// Pagination.
	list, total, err = s.Alerts().List(ctx, AlertFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list paginated: %v", err)
	}
	if total != 3 || len(list) != 1 {
		t.Errorf("pagination: total = %d, len = %d, want 3, 1", total, len(list))
	}

	// Aggregations.
	byType, err := s.Alerts().CountByType(ctx)
	if err != nil {
		t.Fatalf("count by type: %v", err)
	}
	if len(byType) != 3 {
		t.Fatalf("count by type returned %d rows, want 3", len(byType))
	}
	clients, err := s.Alerts().TopClients(ctx, 5)
	if err != nil {
		t.Fatalf("top clients: %v", err)
	}
	if len(clients) != 2 || clients[0].ClientIP != "192.168.1.100" || clients[0].Count != 2 {
		t.Errorf("unexpected top clients: %+v", clients)
	}

	// Cascade on upload delete.
	if err := s.Uploads().Delete(ctx, upload.ID); err != nil {
		t.Fatalf("delete upload: %v", err)
	}
	count, _ := s.Alerts().Count(ctx)
	if count != 0 {
		t.Errorf("alerts after cascade = %d, want 0", count)
	}
}

func TestEnsureAdminUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.EnsureAdminUser("bootstrap-secret"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	admin, err := s.Users().GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if admin == nil {
		t.Fatal("admin should exist")
	}
	if admin.Role != models.RoleAdmin {
		t.Errorf("role = %v, want admin", admin.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("bootstrap-secret")); err != nil {
		t.Error("admin password hash should match provided password")
	}

	// Second call is a no-op.
	if err := s.EnsureAdminUser("different"); err != nil {
		t.Fatalf("second ensure admin: %v", err)
	}
	count, _ := s.Users().Count(ctx)
	if count != 1 {
		t.Errorf("user count = %d, want 1", count)
	}
}
