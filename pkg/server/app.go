package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Indicium/internal/usecase"
	"Indicium/pkg/config"
	xhttp "Indicium/pkg/http"
	applogger "Indicium/pkg/logger"
	"Indicium/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	refresher  *usecase.Refresher
	httpServer *xhttp.Server
	queue      *queue.RedisQueue
}

// New creates a new App instance with all dependencies. q may be nil.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	refresher *usecase.Refresher,
	httpServer *xhttp.Server,
	q *queue.RedisQueue,
) *App {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &App{
		cfg:        cfg,
		logger:     logger,
		refresher:  refresher,
		httpServer: httpServer,
		queue:      q,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the refresher, the refresh queue and the HTTP server,
// then blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Requests arriving before the first refresh lands get CACHE_EMPTY.
	a.refresher.Start(runCtx)

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.refresher.Stop()
			return err
		}
		a.logger.Info("refresh queue started", applogger.Int("workers", a.cfg.Refresh.Queue.Workers))
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown stops intake first, then background work.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.logger.Warn("refresh queue stop error", applogger.Error(err))
		}
	}

	a.refresher.Stop()
	a.logger.Info("shutdown complete")
	return firstErr
}
