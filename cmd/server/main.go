package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forenx/sentinel/internal/api"
	"github.com/forenx/sentinel/internal/api/alerts"
	"github.com/forenx/sentinel/internal/api/health"
	"github.com/forenx/sentinel/internal/geoip"
	"github.com/forenx/sentinel/internal/ingest"
	"github.com/forenx/sentinel/internal/metrics"
	"github.com/forenx/sentinel/internal/models"
	"github.com/forenx/sentinel/internal/notifier"
	"github.com/forenx/sentinel/internal/rules"
	"github.com/forenx/sentinel/internal/store"
	"github.com/forenx/sentinel/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sentinel-server",
	Short: "Sentinel - Web server log forensics API",
	Long: `Sentinel Server ingests uploaded web-server logs, parses them into
structured entries, runs attack detection over each batch, and serves
the results over a REST API.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentinel-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	jwtSecret := os.Getenv("SENTINEL_JWT_SECRET")
	if jwtSecret == "" {
		return fmt.Errorf("SENTINEL_JWT_SECRET environment variable is required")
	}

	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st := store.NewSQLiteStore(cfg.Database.Path)
	if err := st.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Admin bootstrap on an empty user table. With no env password a
	// random one is generated and printed once.
	if err := st.EnsureAdminUser(os.Getenv("SENTINEL_ADMIN_PASSWORD")); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}

	log.Printf("database initialized at %s", cfg.Database.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	var archive *store.EntryArchive
	if cfg.Archive.Enabled {
		archive = store.NewEntryArchive(&store.ArchiveConfig{
			Addresses:     cfg.Archive.Addresses,
			Database:      cfg.Archive.Database,
			Username:      cfg.Archive.Username,
			Password:      cfg.Archive.Password,
			Compression:   cfg.Archive.Compression,
			RetentionDays: cfg.Archive.RetentionDays,
		})
		if err := archive.Open(); err != nil {
			return fmt.Errorf("open entry archive: %w", err)
		}
		defer archive.Close()
		if err := archive.Migrate(); err != nil {
			return fmt.Errorf("migrate entry archive: %w", err)
		}
		log.Printf("entry archive connected at %v", cfg.Archive.Addresses)
	}

	buffer := store.NewRecentBuffer(cfg.Ingest.BufferCapacity)

	var ruleSet *rules.Set
	if cfg.Rules.Dir != "" {
		if cfg.Rules.Watch {
			watcher, err := rules.NewWatcher(cfg.Rules.Dir, 0)
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}
			defer watcher.Close()
			go watcher.Run(ctx)
			ruleSet = watcher.Set()
		} else {
			loaded, err := rules.LoadDir(cfg.Rules.Dir)
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}
			ruleSet = rules.NewSet(loaded)
		}
		log.Printf("loaded %d custom detection rules from %s", ruleSet.Len(), cfg.Rules.Dir)
	}

	geo, err := geoip.Open(cfg.GeoIP.Path)
	if err != nil {
		return fmt.Errorf("open geoip database: %w", err)
	}
	defer geo.Close()
	if geo.Enabled() {
		log.Printf("geoip enrichment enabled from %s", cfg.GeoIP.Path)
	}

	var dispatcher *notifier.Dispatcher
	if cfg.Notify.WebhookURL != "" {
		dispatcher = notifier.NewDispatcher(notifier.DispatcherConfig{
			MinConfidence: cfg.Notify.MinConfidence,
			Cooldown: notifier.CooldownConfig{
				Period:  time.Duration(cfg.Notify.CooldownMin) * time.Minute,
				Enabled: true,
			},
			RateLimit: notifier.RateLimitConfig{
				MaxPerWindow: cfg.Notify.MaxPerMinute,
				Window:       time.Minute,
				Enabled:      true,
			},
		})
		webhook, err := notifier.NewWebhookNotifier(notifier.WebhookConfig{
			URL:    cfg.Notify.WebhookURL,
			Secret: cfg.Notify.WebhookSecret,
		})
		if err != nil {
			return fmt.Errorf("configure webhook: %w", err)
		}
		dispatcher.Register(webhook)
		defer dispatcher.Close()
		log.Printf("alert notifications enabled")
	}

	feed := alerts.NewFeed()

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Store:        st,
		Buffer:       buffer,
		Archive:      archive,
		Rules:        ruleSet,
		Geo:          geo,
		Dispatcher:   dispatcher,
		OnAlerts:     func(a []models.AttackAlert) { feed.Publish(a) },
		MaxSizeBytes: int64(cfg.Ingest.MaxUploadMB) << 20,
		TopN:         cfg.Ingest.TopN,
	})
	if err != nil {
		return fmt.Errorf("create ingest pipeline: %w", err)
	}

	apiServer, err := api.New(&api.Config{
		Address:          cfg.Server.Address,
		JWTSecret:        []byte(jwtSecret),
		AccessTokenTTL:   duration(cfg.Server.AccessTokenTTL),
		RefreshTokenTTL:  duration(cfg.Server.RefreshTokenTTL),
		RateLimitPerIP:   cfg.Server.RateLimitPerIP,
		RateLimitPerUser: cfg.Server.RateLimitPerUser,
		LockoutThreshold: cfg.Server.LockoutThreshold,
		LockoutDuration:  duration(cfg.Server.LockoutDuration),
		TLSEnabled:       cfg.Server.TLS.Enabled,
		TLSCertFile:      cfg.Server.TLS.CertFile,
		TLSKeyFile:       cfg.Server.TLS.KeyFile,
		Version:          config.Version,
		Verbose:          cfg.Verbose,
	}, api.Deps{
		Store:    st,
		Buffer:   buffer,
		Archive:  archive,
		Pipeline: pipeline,
		Feed:     feed,
		Geo:      geo,
	})
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}

	apiServer.RegisterHealthChecker(health.NewSQLiteChecker(st.DB()))
	if archive != nil {
		apiServer.RegisterHealthChecker(health.NewArchiveChecker(archive))
	}

	if cfg.Metrics.Enabled {
		metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)
		metricsServer := metrics.NewServer(cfg.Metrics.Address)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			metricsServer.Shutdown(shutCtx)
		}()
	}

	log.Printf("starting sentinel-server %s", config.Version)

	if err := apiServer.Run(ctx); err != nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}
