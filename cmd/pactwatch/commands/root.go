// Package commands provides the CLI command definitions for pactwatch.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/pactwatch/internal/cli/client"
	"github.com/mr-karan/pactwatch/internal/cli/config"
	"github.com/mr-karan/pactwatch/internal/cli/render"
)

// Styles for CLI output
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// App holds the shared application state
type App struct {
	Config  *config.Config
	Version string
	Commit  string
	Date    string

	noColor bool
}

// New creates the root CLI command with all subcommands
func New(version, commit, date string) *cli.Command {
	app := &App{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	return &cli.Command{
		Name:    "pactwatch",
		Usage:   "monitor contract obligations against live business data",
		Version: version,
		Description: `pactwatch checks contract obligations against live data, raises alerts
   on breaches and approaching deadlines, and tracks them until someone resolves them.

   Run 'pactwatch serve' to start the server; every other command talks to a
   running server over its HTTP API.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to CLI config file",
				Sources: cli.EnvVars("PACTWATCH_CLI_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "pactwatch server URL",
				Sources: cli.EnvVars("PACTWATCH_SERVER_URL"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token sent with API requests",
				Sources: cli.EnvVars("PACTWATCH_API_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "configuration profile to use",
				Sources: cli.EnvVars("PACTWATCH_PROFILE"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format (table, json)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			if cmd.Bool("no-color") {
				app.noColor = true
				log.SetStyles(log.DefaultStyles())
				lipgloss.SetHasDarkBackground(false)
			}

			cfg, err := config.Load(config.LoadOptions{
				ConfigPath: cmd.String("config"),
				Profile:    cmd.String("profile"),
			})
			if err != nil {
				log.Debug("config load warning", "error", err)
				cfg = config.Default()
			}

			if server := cmd.String("server"); server != "" {
				cfg.Server.URL = server
			}
			if token := cmd.String("token"); token != "" {
				cfg.Server.Token = token
			}
			if output := cmd.String("output"); output != "" {
				cfg.Output.Format = output
			}

			app.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			app.serveCommand(),
			app.gatewayCommand(),
			app.checkCommand(),
			app.deadlinesCommand(),
			app.statusCommand(),
			app.summaryCommand(),
			app.alertsCommand(),
			app.obligationsCommand(),
			app.versionCommand(),
		},
	}
}

// isTerminal returns true if stdout is a terminal
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (a *App) color() bool {
	if a.noColor {
		return false
	}
	switch a.Config.Output.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal()
	}
}

func (a *App) client() (*client.Client, error) {
	c, err := client.New(a.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return c, nil
}

func (a *App) renderer(cmd *cli.Command) (*render.Renderer, error) {
	return render.New(os.Stdout, render.Options{
		Format:     a.Config.Output.Format,
		Color:      a.color(),
		TimeFormat: cmd.String("time-format"),
	})
}

var timeFormatFlag = &cli.StringFlag{
	Name:  "time-format",
	Usage: "timestamp format (rfc3339, short, relative)",
	Value: "rfc3339",
}

// versionCommand shows version information
func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("%s version %s\n", logoStyle.Render("pactwatch"), a.Version)
			fmt.Printf("  commit: %s\n", mutedStyle.Render(a.Commit))
			fmt.Printf("  built:  %s\n", mutedStyle.Render(a.Date))
			return nil
		},
	}
}
