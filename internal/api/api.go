// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/forenx/sentinel/internal/api/alerts"
	"github.com/forenx/sentinel/internal/api/health"
	"github.com/forenx/sentinel/internal/geoip"
	"github.com/forenx/sentinel/internal/ingest"
	"github.com/forenx/sentinel/internal/store"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address   string
	JWTSecret []byte

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RateLimitPerIP   int // login/refresh attempts per minute per client IP
	RateLimitPerUser int // authenticated requests per minute per user

	LockoutThreshold int
	LockoutDuration  time.Duration

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	Version string
	Verbose bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.RateLimitPerIP == 0 {
		c.RateLimitPerIP = 5
	}
	if c.RateLimitPerUser == 0 {
		c.RateLimitPerUser = 100
	}
	if c.LockoutThreshold == 0 {
		c.LockoutThreshold = 5
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = 30 * time.Minute
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Deps collects the server's collaborators. Store, Buffer and Pipeline
// are required; Archive, Feed and Geo are optional.
type Deps struct {
	Store    store.Store
	Buffer   *store.RecentBuffer
	Archive  *store.EntryArchive
	Pipeline *ingest.Pipeline
	Feed     *alerts.Feed
	Geo      *geoip.Resolver
}

// Server is the HTTP API server.
type Server struct {
	config *Config
	deps   Deps
	server *http.Server
	health *health.Handler
	feed   *alerts.Feed
}

// New creates a new API server.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Buffer == nil {
		return nil, errors.New("entry buffer is required")
	}
	if deps.Pipeline == nil {
		return nil, errors.New("ingest pipeline is required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("JWT secret is required")
	}

	cfg.SetDefaults()

	feed := deps.Feed
	if feed == nil {
		feed = alerts.NewFeed()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		health: health.NewHandler(cfg.Version),
		feed:   feed,
	}

	router := s.setupRouter()

	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0: the alert stream holds its connection
		// open for up to 30 minutes, which a server-wide write timeout
		// would cut short. Non-streaming handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.TLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	return s, nil
}

// Feed returns the alert feed. The ingest pipeline publishes persisted
// alerts into it; the stream endpoint subscribes.
func (s *Server) Feed() *alerts.Feed {
	return s.feed
}

// Run starts the HTTP server and blocks until context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("HTTP API listening on %s", s.config.Address)
		var err error
		if s.config.TLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a dependency check to the health endpoint.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.health != nil {
		s.health.Register(c)
	}
}
