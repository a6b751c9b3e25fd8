package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/guess-the-track-backend/internal/catalog"
	"github.com/DoyleJ11/guess-the-track-backend/internal/config"
	"github.com/DoyleJ11/guess-the-track-backend/internal/engine"
	"github.com/DoyleJ11/guess-the-track-backend/internal/gateway"
	"github.com/DoyleJ11/guess-the-track-backend/internal/httpapi"
	"github.com/DoyleJ11/guess-the-track-backend/internal/hub"
	"github.com/DoyleJ11/guess-the-track-backend/internal/logging"
	"github.com/DoyleJ11/guess-the-track-backend/internal/metrics"
	"github.com/DoyleJ11/guess-the-track-backend/internal/roomcode"
	"github.com/DoyleJ11/guess-the-track-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger)
	err = multierr.Append(err, ignoreSyncErr(logger.Sync()))
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	items, err := loadTracks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	tracks, err := catalog.NewStatic(items)
	if err != nil {
		return err
	}

	m := metrics.New()
	sb := ws.NewSwitchboard(logger)

	h := hub.NewHub(ctx, hub.Config{
		Rules:      cfg.Rules(),
		Items:      tracks,
		Publisher:  gateway.NewBroadcaster(sb, m),
		Logger:     logger,
		Metrics:    m,
		EmptyGrace: cfg.EmptyRoomGrace,
	})
	gw := gateway.New(gateway.Config{
		Rooms:     h,
		Transport: sb,
		Codes:     roomcode.Generate,
		Logger:    logger,
		Metrics:   m,
	})

	// Build the router with the gateway injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Rooms: gw,
		WebSocket: ws.Handler(sb, gw, ws.Config{
			OriginPatterns: cfg.AllowedOrigins,
			Rate:           rate.Limit(cfg.GuessRate),
			Burst:          cfg.GuessBurst,
			Logger:         logger,
			Metrics:        m,
		}),
		Metrics: m.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Int("tracks", tracks.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Shutdown()
		return err
	})
	return g.Wait()
}

// loadTracks reads the catalog from postgres when DATABASE_URL is set.
func loadTracks(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]engine.Item, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no DATABASE_URL, using built-in tracks")
		return catalog.DefaultTracks(), nil
	}

	db, err := catalog.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("catalog db handle: %w", err)
	}
	defer sqlDB.Close()

	if err := catalog.Migrate(ctx, db); err != nil {
		return nil, err
	}
	items, err := catalog.LoadTracks(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		logger.Warn("tracks table is empty, using built-in tracks")
		return catalog.DefaultTracks(), nil
	}
	return items, nil
}

// Sync on a terminal stderr fails with EINVAL/ENOTTY; that is not worth a
// non-zero exit.
func ignoreSyncErr(err error) error {
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}
