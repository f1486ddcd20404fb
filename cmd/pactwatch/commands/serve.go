package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/pactwatch/internal/app"
	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/gateway/mcpconn"
	"github.com/mr-karan/pactwatch/pkg/logger"
)

var serverConfigFlag = &cli.StringFlag{
	Name:    "server-config",
	Usage:   "path to server config file",
	Value:   "config.toml",
	Sources: cli.EnvVars("PACTWATCH_CONFIG"),
}

// serveCommand runs the API server and the monitoring schedule.
func (a *App) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the pactwatch server",
		Flags: []cli.Flag{serverConfigFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			buildInfo := fmt.Sprintf("%s (commit %s, built %s)", a.Version, a.Commit, a.Date)
			srv, err := app.New(app.Options{
				ConfigPath: cmd.String("server-config"),
				BuildInfo:  buildInfo,
				Version:    a.Version,
			})
			if err != nil {
				return err
			}

			if err := srv.Initialize(ctx); err != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				return fmt.Errorf("failed to initialize: %w", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			var runErr error
			select {
			case err := <-errCh:
				runErr = err
			case <-ctx.Done():
				srv.Logger.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return runErr
		},
	}
}

// gatewayCommand groups commands that operate on the live data gateway directly.
func (a *App) gatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "live data gateway tools",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "expose the configured backends as an MCP server",
				Description: `Serves the discount, volume and activity operations over MCP streamable HTTP
so another pactwatch instance can use this one as an "mcp" backend.

Examples:
   pactwatch gateway serve --server-config config.toml --listen 127.0.0.1:8126`,
				Flags: []cli.Flag{
					serverConfigFlag,
					&cli.StringFlag{
						Name:  "listen",
						Usage: "address to listen on",
						Value: "127.0.0.1:8126",
					},
				},
				Action: a.runGatewayServe,
			},
		},
	}
}

func (a *App) runGatewayServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("server-config"))
	if err != nil {
		return err
	}
	lo := logger.New(cfg.Logging.Level)

	reg, err := app.BuildRegistry(ctx, cfg, a.Version, lo)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			lo.Error("error closing gateway backends", "error", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              cmd.String("listen"),
		Handler:           mcpconn.Handler(mcpconn.NewServer(reg, a.Version)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving gateway over MCP", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
