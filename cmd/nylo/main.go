package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	corecfg "github.com/tejasgit/nylo/internal/core/config"
	"github.com/tejasgit/nylo/internal/core/storage"
	"github.com/tejasgit/nylo/internal/core/storage/filesystem"
	"github.com/tejasgit/nylo/internal/core/storage/memory"
	"github.com/tejasgit/nylo/internal/core/storage/postgres"
	"github.com/tejasgit/nylo/internal/crossdomain"
	"github.com/tejasgit/nylo/internal/dedup"
	"github.com/tejasgit/nylo/internal/identity"
	"github.com/tejasgit/nylo/internal/maintenance"
	"github.com/tejasgit/nylo/internal/migrations"
	"github.com/tejasgit/nylo/internal/server"
	"github.com/tejasgit/nylo/internal/tracking"
	"github.com/tejasgit/nylo/internal/verification"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (nylo.yaml)")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"addr", cfg.Server.Addr(),
		"database", cfg.Database.Type,
		"customers", cfg.Customers.Source,
		"dedup_window", cfg.Dedup.Window(),
		"signed_tokens", cfg.CrossDomain.SigningKey != "",
	)

	// 2. Initialize Storage
	store, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. In-process state, swept by the maintenance scheduler
	dedupCache := dedup.New(cfg.Dedup.Window())
	fingerprints := crossdomain.NewFingerprintIndex(cfg.CrossDomain.FingerprintTTLDuration())
	limiter := server.NewRateLimiter(server.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		IdleTTL:           cfg.RateLimit.IdleTTLDuration(),
	})
	scheduler := maintenance.NewScheduler(cfg.Maintenance.SweepIntervalDuration(),
		maintenance.Job{Name: "dedup", Sweeper: dedupCache},
		maintenance.Job{Name: "fingerprints", Sweeper: fingerprints},
		maintenance.Job{Name: "ratelimit", Sweeper: limiter},
	)

	// 4. Domain verification
	resolver := verification.NewDNSResolver(cfg.Verification.Nameservers, cfg.Verification.QueryTimeoutDuration())
	verificationSvc := verification.NewService(store, store, resolver, verification.Config{
		LookupTimeout: cfg.Verification.LookupTimeoutDuration(),
		CacheSize:     cfg.Verification.VerifiedCacheSize,
	})

	// 5. Cross-domain correlation
	codec := identity.TokenCodec{
		TTL:           cfg.CrossDomain.TokenTTLDuration(),
		RequireSigned: cfg.CrossDomain.RequireSigned,
	}
	if cfg.CrossDomain.SigningKey != "" {
		codec.SigningKey = []byte(cfg.CrossDomain.SigningKey)
	}
	crossDomainSvc := crossdomain.NewService(store, store, store, verificationSvc, fingerprints, codec)

	// 6. Ingestion
	trackingSvc := tracking.NewService(store, store, store, dedupCache, tracking.Config{
		MaxBodySizeMB: cfg.Tracking.MaxBodySizeMB,
		Policy:        tracking.Policy(cfg.Tracking.SoftFail),
	})

	// 7. Initialize Server
	srv := server.New(server.Options{
		Addr:           cfg.Server.Addr(),
		Mode:           cfg.Server.Mode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Limiter:        limiter,
	}, store, trackingSvc, crossDomainSvc, verificationSvc)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scheduler.Start(ctx); err != nil {
			slog.Error("Scheduler stopped with error", "error", err)
		}
	}()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		cancel()
	}
	wg.Wait()

	slog.Info("Shutdown complete")
}

// openStore builds the configured backend, running migrations first for
// postgres, and puts a YAML customer registry in front when configured.
func openStore(cfg *corecfg.Config) (storage.Store, error) {
	var store storage.Store
	switch cfg.Database.Type {
	case "memory":
		slog.Warn("Using in-memory storage; data is lost on restart")
		store = memory.NewStore()
	default:
		db, err := postgres.OpenDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
			db.Close()
			return nil, err
		}
		adapter, err := postgres.NewAdapterFromDB(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		store = adapter
	}

	if cfg.Customers.Source == "filesystem" {
		customers, err := filesystem.NewCustomerRepository(cfg.Customers.Path)
		if err != nil {
			store.Close()
			return nil, err
		}
		store = storage.WithCustomers(store, customers)
	}
	return store, nil
}
