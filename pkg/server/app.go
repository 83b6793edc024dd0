package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
)

// App owns the long-running parts of the service. Infrastructure clients
// are closed by the cleanup function returned alongside it.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	est        *usecase.Estimator
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
}

// New creates an App. consumer and kh may be nil when no chart topic is
// configured.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	est *usecase.Estimator,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		est:        est,
		httpServer: httpServer,
		consumer:   consumer,
		kh:         kh,
	}
}

// Run starts the HTTP server and the chart consumer and blocks until
// SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with an explicit lifetime.
func (a *App) RunContext(ctx context.Context) error {
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first so no new work reaches the estimator.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()

	var firstErr error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		firstErr = err
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.est.Close()
	a.log.Info("shutdown complete")
	return firstErr
}
