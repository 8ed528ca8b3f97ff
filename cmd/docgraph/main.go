package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/odvcencio/docgraph/internal/api"
	"github.com/odvcencio/docgraph/internal/auth"
	"github.com/odvcencio/docgraph/internal/config"
	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/jobs"
	"github.com/odvcencio/docgraph/internal/service"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: docgraph <command>\n\nCommands:\n  serve     Start the server\n  migrate   Run database migrations\n  hash-key  Hash an ingest API key for configuration\n")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "migrate":
		cmdMigrate(os.Args[2:])
	case "hash-key":
		cmdHashKey(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func cmdServe(args []string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServe(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	traceShutdown, err := initTracing(context.Background())
	if err != nil {
		slog.Error("init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(ctx); err != nil {
			slog.Error("shutdown tracing", "error", err)
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Auto-migrate on startup
	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("migrate", "error", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.IngestKeyHash, cfg.TokenDuration())
	docSvc := service.NewDocumentService(db, cfg.Tenancy.DefaultWorkspace)
	aggregator := service.NewAggregator(db)

	registry := service.NewInstanceRegistry(db, service.RegistryOptions{})
	if err := registry.Register(context.Background()); err != nil {
		slog.Error("register instance", "error", err)
		os.Exit(1)
	}

	var refresher *jobs.Refresher
	if interval := cfg.MetricsRefreshInterval(); interval > 0 {
		refresher = jobs.NewRefresher(aggregator, jobs.RefresherOptions{
			Interval: interval,
			Registry: registry,
		})
	}
	registry.SetMetricsCollector(func(context.Context) (json.RawMessage, error) {
		payload := map[string]any{"instance_id": registry.InstanceID()}
		if provider, ok := db.(interface{ DBStats() sql.DBStats }); ok {
			payload["db_pool_active"] = provider.DBStats().InUse
		}
		if refresher != nil {
			if report, _, ok := refresher.LastReport(); ok {
				payload["queue_depth"] = report.QueueDepth
			}
		}
		return json.Marshal(payload)
	})

	opts := api.ServerOptions{
		WorkspaceHeader: cfg.Tenancy.Header,
		Instances:       registry,
	}
	if refresher != nil {
		opts.Refresher = refresher
	}
	server := api.NewServerWithOptions(db, authSvc, docSvc, aggregator, opts)

	if refresher != nil {
		if err := refresher.Start(context.Background()); err != nil {
			slog.Error("start metrics refresher", "error", err)
			os.Exit(1)
		}
		defer refresher.Stop()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)

	go func() {
		slog.Info("docgraph listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
}

func cmdMigrate(args []string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	db, err := openDB(cfg)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("migrate", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations complete")
}

func cmdHashKey(args []string) {
	fs := flag.NewFlagSet("hash-key", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: docgraph hash-key <api-key>")
		os.Exit(1)
	}
	hash, err := auth.HashIngestKey(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func openDB(cfg *config.Config) (database.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return database.OpenSQLite(cfg.Database.DSN)
	case "postgres":
		return database.OpenPostgres(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}
