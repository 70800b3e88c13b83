package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/go-co-op/gocron"

	"github.com/faciam-dev/gcdisk/internal/config"
	"github.com/faciam-dev/gcdisk/internal/disk/typesync"
	"github.com/faciam-dev/gcdisk/internal/events"
	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/metrics"
	"github.com/faciam-dev/gcdisk/internal/server"
	"github.com/faciam-dev/gcdisk/pkg/migrator"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

func main() {
	cfgPath := flag.String("config", util.EnvOr("", "DISK_CONFIG", "DISK_CONFIG_FILE"), "YAML config file")
	dsn := flag.String("dsn", "", "database DSN (overrides config)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	openapi := flag.String("openapi", "", "write OpenAPI JSON and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.L.Error("load config", "err", err)
		os.Exit(1)
	}
	if *dsn != "" {
		cfg.DSN = *dsn
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	logger.Set(logger.New(cfg.LogFormat, cfg.LogLevel))

	if cfg.DSN != "" {
		if detected, err := util.DetectDriver(cfg.DSN); err == nil && detected != "" {
			cfg.Driver = detected
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DSN != "" {
		db, err = sql.Open(cfg.Driver, util.DriverDSN(cfg.Driver, cfg.DSN))
		if err != nil {
			logger.L.Error("db open", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := config.CheckPrefix(ctx, db, util.DialectFromDriver(cfg.Driver), cfg.TablePrefix); err != nil {
			logger.L.Error("prefix check", "err", err)
			os.Exit(1)
		}
		m := migrator.NewWithDriverAndPrefix(cfg.Driver, cfg.TablePrefix)
		if pending, err := m.Pending(ctx, db); err != nil {
			logger.L.Warn("schema version check", "err", err)
		} else if pending {
			logger.L.Warn("schema migrations pending, run diskctl migrate", "latest", m.SemVer(m.Latest()))
		}
	}
	logger.L.Info("table prefix", "prefix", cfg.TablePrefix)

	app, err := server.New(ctx, db, cfg)
	if err != nil {
		logger.L.Error("build api", "err", err)
		os.Exit(1)
	}

	if *openapi != "" {
		data, err := json.MarshalIndent(app.API.OpenAPI(), "", "  ")
		if err != nil {
			logger.L.Error("marshal openapi", "err", err)
			os.Exit(1)
		}
		if err := os.WriteFile(filepath.Clean(*openapi), data, 0o600); err != nil {
			logger.L.Error("write openapi", "err", err)
			os.Exit(1)
		}
		return
	}

	if db != nil {
		s := gocron.NewScheduler(time.UTC)
		if _, err := s.Cron(cfg.UsageCron).Do(func() {
			if err := app.Disks.RefreshAll(ctx); err != nil {
				logger.L.Error("refresh disk usage", "err", err)
			}
		}); err != nil {
			logger.L.Error("schedule usage refresh", "cron", cfg.UsageCron, "err", err)
		}
		s.StartAsync()
		defer s.Stop()

		metrics.StartDiskGauge(ctx, app.DiskRepo, 30*time.Second)

		if cfg.DiskTypesFile != "" {
			w := typesync.NewWatcher(cfg.DiskTypesFile, app.DiskRepo, app.Cache, 0, logger.L)
			stopWatch, err := w.Start(ctx)
			if err != nil {
				logger.L.Error("watch disk types", "file", cfg.DiskTypesFile, "err", err)
			} else {
				defer stopWatch()
			}
		}
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      app.API.Adapter(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.L.Info("listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("server error", "err", err)
		os.Exit(1)
	}
	<-stopped
	// Deliver events emitted by the last requests before exiting.
	if events.Default != nil {
		events.Default.Wait()
	}
}
