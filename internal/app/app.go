// Package app wires the adapters and use cases into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/virtwarden/virtwarden/internal/adapters/in/http/admin"
	"github.com/virtwarden/virtwarden/internal/adapters/in/http/middleware"
	"github.com/virtwarden/virtwarden/internal/adapters/out/mailer"
	"github.com/virtwarden/virtwarden/internal/adapters/out/proxmox"
	"github.com/virtwarden/virtwarden/internal/adapters/out/secrets"
	"github.com/virtwarden/virtwarden/internal/adapters/out/sqlite"
	"github.com/virtwarden/virtwarden/internal/config"
	"github.com/virtwarden/virtwarden/internal/usecase/cluster"
	"github.com/virtwarden/virtwarden/internal/usecase/engine"
	"github.com/virtwarden/virtwarden/internal/usecase/schedule"
)

// App holds the wired service components.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	store *sqlite.Store

	Schedules    *schedule.Service
	Clusters     *cluster.Service
	Orchestrator *engine.Orchestrator
	Actions      *engine.ActionRunner

	echoSrv *echo.Echo
}

// New opens the store and wires every component from config.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	box, err := secrets.NewBox(cfg.Credentials.Key)
	if err != nil {
		store.Close()
		return nil, err
	}
	creds := secrets.NewProvider(store.Clusters, box)

	client := proxmox.NewClient()
	notifier := mailer.NewSMTPNotifier(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})

	executor := engine.NewExecutor(client, creds, store.History, notifier, log,
		engine.WithPolling(cfg.Engine.PollInterval(), cfg.Engine.PollAttempts))
	retention := engine.NewRetention(store.History, log)
	orchestrator := engine.NewOrchestrator(store.Schedules, executor, retention, log,
		engine.WithLeaseTTL(cfg.Engine.LeaseTTL()))
	actions := engine.NewActionRunner(store.Actions, client, creds, log,
		engine.WithActionPolling(cfg.Engine.PollInterval(), cfg.Engine.PollAttempts))

	schedules := schedule.NewService(store.Schedules, store.Actions, store.History, store.Clusters, log)
	clusters := cluster.NewService(store.Clusters, box, log)

	a := &App{
		cfg:          cfg,
		log:          log,
		store:        store,
		Schedules:    schedules,
		Clusters:     clusters,
		Orchestrator: orchestrator,
		Actions:      actions,
	}
	a.echoSrv = a.buildServer()
	return a, nil
}

func (a *App) buildServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1", middleware.JWTAuth([]byte(a.cfg.Server.JWTSecret)))
	handler := admin.NewHandler(a.Schedules, a.Clusters, a.Orchestrator, a.log)
	handler.RegisterRoutes(api)
	return e
}

// RunCycle executes one engine pass over backup and action schedules.
func (a *App) RunCycle(ctx context.Context) error {
	if err := a.Orchestrator.RunCycle(ctx); err != nil {
		return err
	}
	return a.Actions.RunCycle(ctx)
}

// Serve runs the admin API and the engine loop until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.echoSrv.Start(a.cfg.Server.Listen); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	a.log.Info().Str("listen", a.cfg.Server.Listen).Msg("Admin API listening")

	ticker := time.NewTicker(a.cfg.Engine.CycleInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.echoSrv.Shutdown(shutdownCtx); err != nil {
				a.log.Error().Err(err).Msg("Server shutdown failed")
			}
			return nil
		case err := <-errCh:
			return fmt.Errorf("admin server failed: %w", err)
		case <-ticker.C:
			if err := a.RunCycle(ctx); err != nil {
				// A failing due-schedule query is retried on the next tick.
				a.log.Error().Err(err).Msg("Engine cycle failed")
			}
		}
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}
