package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iconidentify/mediagrabba/internal/api"
	"github.com/iconidentify/mediagrabba/internal/api/handler"
	"github.com/iconidentify/mediagrabba/internal/config"
	"github.com/iconidentify/mediagrabba/internal/downloader"
	"github.com/iconidentify/mediagrabba/internal/repository"
	"github.com/iconidentify/mediagrabba/internal/storage"
	"github.com/iconidentify/mediagrabba/internal/worker"
	"github.com/iconidentify/mediagrabba/pkg/grok"
	"github.com/iconidentify/mediagrabba/pkg/twitter"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediagrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting mediagrabba",
		"version", Version,
		"build_time", BuildTime,
		"storage_root", cfg.Storage.Root,
		"database", cfg.Database.Driver,
	)

	planner := storage.NewPlanner(cfg.Storage.Root)
	if err := planner.EnsureLayout(); err != nil {
		logger.Error("failed to create storage layout", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open metadata store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Acquisition core
	upstream := twitter.NewClient(twitter.Config{
		SyndicationURL:     cfg.Upstream.SyndicationURL,
		GuestActivateURL:   cfg.Upstream.GuestActivateURL,
		GraphQLURL:         cfg.Upstream.GraphQLURL,
		TweetResultQueryID: cfg.Upstream.TweetResultQueryID,
		BearerToken:        cfg.Upstream.BearerToken,
		GuestToken:         cfg.Upstream.GuestToken,
		GuestTokenTTL:      cfg.Upstream.GuestTokenTTL,
		RequestsPerSecond:  cfg.Upstream.RequestsPerSecond,
		Burst:              cfg.Upstream.Burst,
		Timeout:            cfg.Upstream.Timeout,
		UserAgent:          cfg.Download.UserAgent,
	}, logger)
	resolver := twitter.NewDefaultResolver(upstream, logger)
	engine := downloader.NewHTTPDownloader(cfg.Download, logger)
	pipeline := downloader.NewPipeline(engine, resolver, planner, cfg.Download.Concurrency, logger)

	var analyzer worker.Analyzer
	if cfg.Grok.APIKey != "" {
		analyzer = grok.NewClient(cfg.Grok)
	} else {
		logger.Warn("GROK_API_KEY not set, AI analysis disabled")
	}

	scanner := worker.NewScanner(cfg.Scanner, store, analyzer, pipeline, logger)

	var archiver storage.Archiver
	if cfg.ColdStorage.Enabled() {
		s3, err := storage.NewS3Archiver(ctx, cfg.ColdStorage)
		if err != nil {
			logger.Error("failed to configure cold storage", "error", err)
			os.Exit(1)
		}
		archiver = s3
	}
	janitor := worker.NewJanitor(cfg.Storage, archiver, logger)

	if cfg.Scanner.Enabled {
		scanner.Start()
	}
	if cfg.Storage.CleanupEnabled {
		if err := janitor.Start(); err != nil {
			logger.Error("failed to start storage janitor", "error", err)
			os.Exit(1)
		}
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		var pinger repository.Pinger
		if p, ok := store.(repository.Pinger); ok {
			pinger = p
		}
		router := api.NewRouter(api.Handlers{
			Health:  handler.NewHealthHandler(pinger, cfg.Storage.Root),
			Scanner: handler.NewScannerHandler(scanner, logger),
			Resolve: handler.NewResolveHandler(resolver, logger),
			Storage: handler.NewStorageHandler(janitor, cfg.Storage.RetentionDays, logger),
		}, cfg.Server.APIKey, logger)

		srv = &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		go func() {
			logger.Info("starting HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		cancel()
	}

	if err := janitor.Stop(10 * time.Second); err != nil {
		logger.Error("janitor shutdown error", "error", err)
	}

	// Let the in-flight cycle finish its transfers
	if err := scanner.Stop(cfg.Scanner.StopTimeout); err != nil {
		logger.Error("scanner shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStore builds the configured metadata store and its close function.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository.MetadataStore, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return repository.NewMemoryStore(), func() {}, nil
	case "postgres":
		pool, err := repository.ConnectPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := repository.NewPostgresStore(pool)
		return s, func() { s.Close() }, nil
	default:
		s, err := repository.NewSQLiteStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}
