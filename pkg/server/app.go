package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CovDash/internal/service/ratelimit"
	"CovDash/internal/usecase"
	"CovDash/pkg/config"
	xhttp "CovDash/pkg/http"
	pkgkafka "CovDash/pkg/kafka"
	applogger "CovDash/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	limiterSweepEvery = time.Minute
	limiterIdle       = 10 * time.Minute
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	reg        *prometheus.Registry
	dashboard  *usecase.Dashboard
	handler    xhttp.Handler
	limiter    *ratelimit.Limiter
	consumer   *pkgkafka.Consumer
	listener   pkgkafka.MessageHandler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	reg *prometheus.Registry,
	d *usecase.Dashboard,
	h xhttp.Handler,
	lim *ratelimit.Limiter,
	consumer *pkgkafka.Consumer,
	listener pkgkafka.MessageHandler,
) *App {
	return &App{
		cfg:       cfg,
		l:         l,
		reg:       reg,
		dashboard: d,
		handler:   h,
		limiter:   lim,
		consumer:  consumer,
		listener:  listener,
	}
}

// Run loads the first snapshot, starts the HTTP server and the snapshot
// listener, and blocks until interrupted or the server fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.dashboard.Reload(ctx); err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.l),
	}
	if len(a.cfg.Server.AllowOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(a.cfg.Server.AllowOrigins))
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(a.reg, a.cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(a.handler, opts...)

	if a.consumer != nil && a.listener != nil {
		a.consumer.RegisterHandler(a.listener)
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
		}
	}

	if a.limiter != nil {
		go a.sweepLimiter(ctx)
	}

	errCh := a.httpServer.Start()
	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	a.shutdown()
	return runErr
}

func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterSweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.limiter.Sweep(limiterIdle); n > 0 {
				a.l.Debug("rate limiter swept", applogger.Int("keys", n))
			}
		}
	}
}

// shutdown gracefully stops the server and the consumer. Infrastructure
// clients are closed by the DI cleanup.
func (a *App) shutdown() {
	a.l.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
}
