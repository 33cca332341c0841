package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fx-converter/internal/logging"
	"fx-converter/internal/metrics"
	"fx-converter/internal/protocol"
	"fx-converter/internal/rates"
	"fx-converter/internal/scheduler"
	"fx-converter/internal/server"
	"fx-converter/internal/service"
)

// Serve runs the conversion server until SIGINT/SIGTERM or ctx cancellation.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sc := a.Config.Server
	codec, err := protocol.New(sc.Protocol)
	if err != nil {
		return err
	}
	mode, err := server.ParseMode(sc.Mode)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if a.Config.Metrics.Addr != "" {
		m = metrics.New()
	}

	watcher := a.newWatcher()
	cache := a.newCache(m, watcher)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
		defer cancel()
		if err := cache.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("rate cache shutdown incomplete")
		}
		if watcher != nil {
			watcher.Wait()
		}
	}()

	// first refresh happens before any connection is accepted
	entry, err := cache.Rates(ctx)
	if err != nil {
		return fmt.Errorf("warm rate cache: %w", err)
	}
	a.Logger.Info().
		Int("currencies", entry.Table.Len()).
		Bool("fallback", entry.Fallback).
		Strs("overrides", overriddenCodes(entry.Table)).
		Msg("rate cache ready")

	svc := service.New(cache, a.Logger)
	srv := server.New(server.Options{
		Addr:            sc.Addr,
		Mode:            mode,
		IdleTimeout:     sc.IdleTimeout,
		ReadBufferSize:  sc.ReadBufferSize,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, codec, svc, m, a.Logger)

	stats := scheduler.New(scheduler.Options{
		Name:     "stats",
		Interval: a.Config.Stats.Interval,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if m != nil {
		g.Go(func() error {
			return m.Serve(gctx, a.Config.Metrics.Addr, logging.Component(a.Logger, "metrics"))
		})
	}
	g.Go(func() error {
		return stats.Run(gctx, statsTick(srv, cache, m, a.Logger))
	})

	a.Logger.Info().Str("addr", sc.Addr).Str("protocol", codec.Name()).Msg("starting conversion service")
	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("conversion service terminated with error")
		return err
	}

	a.Logger.Info().Uint64("served", srv.Served()).Msg("conversion service stopped")
	return nil
}

type connStats interface {
	ActiveConnections() int64
	Served() uint64
}

type ratePeeker interface {
	Peek() (rates.Entry, bool)
}

func statsTick(srv connStats, cache ratePeeker, m *metrics.Metrics, logger zerolog.Logger) scheduler.TickFunc {
	logger = logging.Component(logger, "stats")
	return func(_ context.Context, at time.Time) error {
		ev := logger.Info().
			Int64("active", srv.ActiveConnections()).
			Uint64("served", srv.Served())

		if entry, ok := cache.Peek(); ok {
			age := entry.Age(at)
			m.SetRateAge(age)
			ev = ev.Dur("rate_age", age).
				Bool("rate_fresh", entry.Fresh(at)).
				Bool("fallback", entry.Fallback)
		}
		ev.Msg("server stats")
		return nil
	}
}
