package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/gradilisce/internal/api"
	"github.com/erazemk/gradilisce/internal/auth"
	"github.com/erazemk/gradilisce/internal/config"
	"github.com/erazemk/gradilisce/internal/db"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/live"
	"github.com/erazemk/gradilisce/internal/media"
	"github.com/erazemk/gradilisce/internal/pastwork"
	"github.com/erazemk/gradilisce/internal/store"
	"github.com/erazemk/gradilisce/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			level, _ := cfg.SlogLevel()
			closeLog, err := setupLogger(level, cfg.LogFile)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&f.addr, "addr", "a", "", "listen address (default :8080)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	// Create the database with an admin account on first run.
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		database, password, err := initDatabase(ctx, cfg.DBPath, cfg.AdminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		database.Close()

		printInitResult(cfg.DBPath, cfg.AdminUser, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		if jwtSecret, err = store.GetJWTSecret(ctx, database); err != nil {
			return fmt.Errorf("loading JWT secret: %w", err)
		}
	}

	shutdownTracing, err := telemetry.Setup(ctx, "gradilisce", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Error("flushing traces", "error", err)
		}
	}()

	blobs, err := mediaStore(cfg)
	if err != nil {
		return err
	}

	var limiter auth.Limiter
	var mem *auth.MemoryLimiter
	if cfg.RedisURL != "" {
		client, err := auth.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		limiter = auth.NewRedisLimiter(client, auth.DefaultMaxFailures, auth.DefaultWindow)
		slog.Info("login throttling shared through redis")
	} else {
		mem = auth.NewMemoryLimiter(auth.DefaultMaxFailures, auth.DefaultWindow)
		limiter = mem
	}

	hub := live.NewHub(slog.Default().With("component", "live"))
	publisher := events.Multi{hub, events.Log{Logger: slog.Default()}}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		publisher = append(publisher, kafka)
		slog.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	server := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewRouter(api.Options{
			DB:             database,
			JWTSecret:      jwtSecret,
			Media:          blobs,
			MaxUpload:      cfg.MaxUpload,
			Limiter:        limiter,
			Events:         publisher,
			Hub:            hub,
			OriginPatterns: cfg.OriginPatterns,
			ReferralReward: cfg.ReferralReward,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	sweeper := &pastwork.Sweeper{
		DB:        database,
		Media:     blobs,
		Publisher: publisher,
		TTL:       cfg.PastWork.DraftTTL,
		Interval:  cfg.PastWork.SweepInterval,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(ctx) })
	if mem != nil {
		g.Go(func() error {
			every(ctx, auth.DefaultWindow, mem.Cleanup)
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("server started", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("server stopped, closing database")
	return err
}

// mediaStore picks S3 when a bucket is configured and the local disk otherwise.
func mediaStore(cfg config.Config) (media.Store, error) {
	if cfg.S3.Enabled() {
		slog.Info("storing media in s3", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		return media.NewS3Store(cfg.S3), nil
	}
	disk, err := media.NewDiskStore(cfg.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("opening media dir: %w", err)
	}
	slog.Info("storing media on disk", "dir", cfg.MediaDir)
	return disk, nil
}

// every calls fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
