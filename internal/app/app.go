// Package app wires configuration, storage, the live-data gateway, the
// evaluator, the alert manager, the monitoring engine and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mr-karan/pactwatch/internal/alerts"
	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/evaluator"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/gateway/cache"
	"github.com/mr-karan/pactwatch/internal/monitor"
	"github.com/mr-karan/pactwatch/internal/server"
	"github.com/mr-karan/pactwatch/internal/sqlite"
	"github.com/mr-karan/pactwatch/pkg/logger"
)

// App represents the core application context, holding dependencies and configuration.
type App struct {
	Config    *config.Config
	SQLite    *sqlite.DB
	Gateway   *gateway.Registry
	Redis     *redis.Client
	Alerts    *alerts.Manager
	Engine    *monitor.Engine
	Logger    *slog.Logger
	BuildInfo string
	Version   string

	server *server.Server
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	BuildInfo  string
	Version    string
	// Logger overrides the logger built from config.
	Logger *slog.Logger
}

// New loads configuration and builds the logger. Nothing is connected yet.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Logging.Level)
	}
	return &App{
		Config:    cfg,
		Logger:    log,
		BuildInfo: opts.BuildInfo,
		Version:   opts.Version,
	}, nil
}

// Initialize connects every component and starts the monitoring schedule.
func (a *App) Initialize(ctx context.Context) error {
	var err error

	a.SQLite, err = sqlite.New(sqlite.Options{
		Config: a.Config.SQLite,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite: %w", err)
	}

	// Seed settings on first boot; migration defaults apply if this fails.
	if err := a.seedSystemSettings(ctx); err != nil {
		a.Logger.Warn("failed to seed system settings from config", "error", err)
	}
	a.Config = config.LoadRuntimeConfig(ctx, a.Config, a.SQLite, a.Logger)
	a.Logger.Info("runtime configuration loaded from database and config file")

	a.Gateway, err = BuildRegistry(ctx, a.Config, a.Version, a.Logger)
	if err != nil {
		return err
	}
	a.Gateway.StartBackgroundHealthChecks(0)

	if a.Config.Redis.CacheEnabled || a.Config.Monitoring.Lease.Enabled {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			// The cache degrades to direct fetches and the lease fails open.
			a.Logger.Warn("redis unreachable at startup", "addr", a.Config.Redis.Addr, "error", err)
		}
	}

	var gw gateway.Gateway = a.Gateway
	if a.Config.Redis.CacheEnabled {
		gw = cache.New(a.Gateway, cache.NewRedisStore(a.Redis), a.Config.Redis.CacheTTL, a.Logger)
		a.Logger.Info("live data cache enabled", "ttl", a.Config.Redis.CacheTTL)
	}

	eval, err := a.newEvaluator()
	if err != nil {
		return err
	}

	sender, err := newSender(a.Config.Notifications, a.Logger)
	if err != nil {
		return err
	}
	a.Alerts = alerts.NewManager(alerts.Options{
		Store:         a.SQLite,
		Sender:        sender,
		Logger:        a.Logger,
		NotifyTimeout: a.Config.Notifications.Timeout,
		ExternalURL:   a.Config.Notifications.ExternalURL,
	})

	var lease monitor.Lease
	if a.Config.Monitoring.Lease.Enabled {
		lease = monitor.NewRedisLease(a.Redis)
	}
	a.Engine, err = monitor.New(monitor.Options{
		Store:     a.SQLite,
		Gateway:   gw,
		Evaluator: eval,
		Alerts:    a.Alerts,
		Config:    a.Config.Monitoring,
		Lease:     lease,
		Logger:    a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize monitoring engine: %w", err)
	}

	a.server = server.New(server.ServerOptions{
		Config:    a.Config,
		SQLite:    a.SQLite,
		Engine:    a.Engine,
		Alerts:    a.Alerts,
		Gateway:   a.Gateway,
		Logger:    a.Logger,
		BuildInfo: a.BuildInfo,
		Version:   a.Version,
	})

	if err := a.Engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitoring schedule: %w", err)
	}
	return nil
}

func (a *App) newEvaluator() (*evaluator.Evaluator, error) {
	var judge evaluator.Judge
	if a.Config.AI.Enabled {
		j, err := evaluator.NewOpenAIJudge(a.Config.AI, a.Logger)
		if err != nil {
			// Judgment stays off; free-text conditions come back indeterminate.
			a.Logger.Warn("judgment service disabled", "error", err)
		} else {
			judge = j
			a.Logger.Info("judgment service enabled", "model", a.Config.AI.Model)
		}
	}
	eval, err := evaluator.New(evaluator.Options{
		Judge:        judge,
		JudgeTimeout: a.Config.Monitoring.JudgeTimeout,
		Logger:       a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize evaluator: %w", err)
	}
	return eval, nil
}

// Start runs the HTTP server and blocks until it stops.
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	a.Logger.Info("starting server", "version", a.Version)
	return a.server.Start()
}

// Shutdown gracefully stops all application components with timeouts.
//
//nolint:contextcheck // Shutdown receives its own context from caller (e.g., signal handler)
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	// Stop scheduling first; Stop waits for a running pass to finish.
	if a.Engine != nil {
		a.Logger.Info("stopping monitoring engine")
		a.Engine.Stop()
	}

	if a.server != nil {
		a.Logger.Info("shutting down HTTP server")
		serverCtx, serverCancel := context.WithTimeout(ctx, 5*time.Second)
		defer serverCancel()

		serverDone := make(chan error, 1)
		go func() {
			serverDone <- a.server.Shutdown(serverCtx)
		}()
		select {
		case err := <-serverDone:
			if err != nil {
				a.Logger.Error("error shutting down server", "error", err)
			} else {
				a.Logger.Info("HTTP server shut down successfully")
			}
		case <-serverCtx.Done():
			a.Logger.Warn("timeout shutting down HTTP server, continuing")
		}
	}

	// Let in-flight notifications drain.
	if a.Alerts != nil {
		notifyDone := make(chan struct{})
		go func() {
			a.Alerts.Wait()
			close(notifyDone)
		}()
		select {
		case <-notifyDone:
		case <-ctx.Done():
			a.Logger.Warn("timeout waiting for alert notifications, continuing")
		}
	}

	if a.Gateway != nil {
		a.Logger.Info("closing gateway backends")
		gatewayCtx, gatewayCancel := context.WithTimeout(ctx, 8*time.Second)
		defer gatewayCancel()

		gatewayDone := make(chan error, 1)
		go func() {
			gatewayDone <- a.Gateway.Close()
		}()
		select {
		case err := <-gatewayDone:
			if err != nil {
				a.Logger.Error("error closing gateway backends", "error", err)
			}
		case <-gatewayCtx.Done():
			a.Logger.Warn("timeout closing gateway backends, continuing")
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("error closing redis client", "error", err)
		}
	}

	if a.SQLite != nil {
		a.Logger.Info("closing SQLite connection")
		if err := a.SQLite.Close(); err != nil {
			a.Logger.Error("error closing SQLite", "error", err)
		} else {
			a.Logger.Info("SQLite connection closed successfully")
		}
	}

	a.Logger.Info("application shutdown complete")
	return nil
}
