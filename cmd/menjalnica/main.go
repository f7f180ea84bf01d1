package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/menjalnica/internal/api"
	"github.com/erazemk/menjalnica/internal/blob"
	"github.com/erazemk/menjalnica/internal/config"
	"github.com/erazemk/menjalnica/internal/db"
	"github.com/erazemk/menjalnica/internal/identity"
	"github.com/erazemk/menjalnica/internal/live"
	"github.com/erazemk/menjalnica/internal/logging"
	"github.com/erazemk/menjalnica/internal/market"
	"github.com/erazemk/menjalnica/internal/metrics"
	"github.com/erazemk/menjalnica/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cleanup, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting", "config", cfg.String())

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = store.GetJWTSecret(context.Background(), database)
		if err != nil {
			return err
		}
	}

	blobs, localBlobs := newBlobStore(cfg, database)

	m := metrics.New()
	hub := live.NewHub(m.LiveSubscriptions)
	defer hub.Close()

	router := api.NewRouter(api.Deps{
		DB: database,
		Identity: &identity.Service{
			DB:        database,
			Blobs:     blobs,
			JWTSecret: jwtSecret,
		},
		Market: &market.Service{
			DB:      database,
			Blobs:   blobs,
			Hub:     hub,
			Metrics: m,
		},
		Blobs:              localBlobs,
		Metrics:            m,
		CORSAllowedOrigins: cfg.AllowedOrigins(),
		LoginRateLimit:     cfg.LoginRateLimit,
	})

	// Streaming handlers clear their own write deadline.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Addr, "blobs", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close live streams first so that Shutdown does not wait on them.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// newBlobStore returns the configured blob store and, for the database
// backend, the same store for the download route.
func newBlobStore(cfg *config.Config, database *sql.DB) (blob.Store, *blob.SQLiteStore) {
	if cfg.BlobBackend == config.BlobBackendS3 {
		return blob.NewS3Store(blob.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
			CDNURL:          cfg.S3CDNURL,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		}), nil
	}
	local := blob.NewSQLiteStore(database, cfg.PublicURL)
	return local, local
}
