package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solidify/internal/server/config"
	"solidify/internal/server/httpapi"
	"solidify/internal/server/ledger"
	"solidify/internal/server/ratelimit"
	"solidify/internal/server/repository/badgerkv"
	"solidify/internal/server/repository/memory"
	"solidify/internal/server/repository/sqlite"
	"solidify/internal/server/service"
	"solidify/internal/shared/models"
)

type repository interface {
	service.Repository
	io.Closer
}

type App struct {
	version   string
	buildDate string
	logger    zerolog.Logger
	server    *http.Server
	services  *service.Services
	closers   []io.Closer
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func New(version, buildDate string, cfg config.Config, logger zerolog.Logger) (*App, error) {
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}
	repo, err := openRepository(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{version: version, buildDate: buildDate, logger: logger, closers: []io.Closer{repo}}

	a.services = service.NewServices(repo, cfg, ledger.WithLogger(logger))
	if cfg.AdminAddress != "" {
		if err := a.services.Ledger.Bootstrap(context.Background(), models.ParseAddress(cfg.AdminAddress)); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}
	if cfg.AdminPasswordHash != "" {
		created, err := a.services.Auth.EnsureAccount(context.Background(), models.ParseAddress(cfg.AdminAddress), cfg.AdminPasswordHash)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("bootstrap admin account: %w", err)
		}
		if created {
			logger.Info().Str("address", cfg.AdminAddress).Msg("admin account created")
		} else {
			logger.Debug().Str("address", cfg.AdminAddress).Msg("admin account exists, keeping stored credentials")
		}
	}

	var limiter httpapi.Limiter
	if cfg.RateLimitPerMinute > 0 {
		l, err := ratelimit.New(cfg.RedisAddr, cfg.RedisPassword, "solidify:ratelimit", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		a.closers = append(a.closers, l)
		limiter = l
	}

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(a.services, logger, cfg.MaxRequestBytes, limiter),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

func openRepository(cfg config.Config, logger zerolog.Logger) (repository, error) {
	switch cfg.Storage {
	case config.StorageSQLite, "":
		return sqlite.New(cfg.DatabaseDSN)
	case config.StorageBadger:
		return badgerkv.New(cfg.BadgerDir, logger)
	case config.StorageMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
}

func (a *App) Handler() http.Handler { return a.server.Handler }

// Close releases the storage backend and the rate limiter.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = a.Close() }()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.logger.Info().
		Str("version", a.version).
		Str("build_date", a.buildDate).
		Str("addr", a.server.Addr).
		Msg("solidify server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}
