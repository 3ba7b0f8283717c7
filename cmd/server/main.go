package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayyanshiraz/inv/internal/cache"
	"github.com/ayyanshiraz/inv/internal/config"
	"github.com/ayyanshiraz/inv/internal/domain"
	"github.com/ayyanshiraz/inv/internal/httpapi"
	"github.com/ayyanshiraz/inv/internal/service"
	"github.com/ayyanshiraz/inv/internal/store"
	"github.com/ayyanshiraz/inv/internal/store/memory"
	pgstore "github.com/ayyanshiraz/inv/internal/store/postgres"
)

var version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	rootCmd := &cobra.Command{
		Use:     "inv",
		Short:   "Trading ledger backend",
		Version: version,
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve(logger)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func serve(logger zerolog.Logger) error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback: %w", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info().Msg("repository: in-memory (seeded)")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using noop cache")
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info().Msg("cache: redis")
		}
	} else {
		logger.Info().Msg("cache: noop")
	}

	identity := httpapi.NewStaticIdentityProvider()
	err := identity.Add(cfg.OwnerUsername, cfg.OwnerPassword, domain.OwnerProfile{
		OwnerID:     cfg.OwnerID,
		DisplayName: cfg.OwnerName,
		Business:    cfg.BusinessName,
	})
	if err != nil {
		return fmt.Errorf("seed owner account: %w", err)
	}

	svc := service.New(repo, reportCache, logger.With().Str("component", "service").Logger())
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, identity)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.With().Str("component", "httpapi").Logger())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("ledger backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sig:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}
