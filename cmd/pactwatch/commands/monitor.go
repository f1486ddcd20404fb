package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/pactwatch/internal/cli/client"
	"github.com/mr-karan/pactwatch/internal/cli/query"
)

// checkCommand triggers a reconcile pass, or a single check when an id is given.
func (a *App) checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "check obligations against live data",
		ArgsUsage: "[obligation-id]",
		Description: `Without arguments, runs a full reconcile pass over every due obligation.
With an obligation id, checks just that one regardless of its schedule.

Examples:
   pactwatch check
   pactwatch check 6f1c2a9e-...`,
		Flags: []cli.Flag{timeFormatFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd)
			if err != nil {
				return err
			}

			if id := cmd.Args().First(); id != "" {
				res, err := c.CheckObligation(ctx, id)
				if err != nil {
					return err
				}
				return r.Check(res)
			}

			summary, err := c.CheckAll(ctx)
			if err != nil {
				return err
			}
			return r.Pass(summary)
		},
	}
}

func (a *App) deadlinesCommand() *cli.Command {
	return &cli.Command{
		Name:  "deadlines",
		Usage: "scan for approaching and missed deadlines",
		Flags: []cli.Flag{timeFormatFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd)
			if err != nil {
				return err
			}
			summary, err := c.DeadlineCheck(ctx)
			if err != nil {
				return err
			}
			return r.Pass(summary)
		},
	}
}

func (a *App) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show monitoring engine status",
		Flags: []cli.Flag{timeFormatFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd)
			if err != nil {
				return err
			}
			status, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return r.Status(status)
		},
	}
}

func (a *App) summaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "show compliance summary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "party",
				Usage: "restrict to parties whose name contains this text",
			},
			timeFormatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd)
			if err != nil {
				return err
			}
			s, err := c.ComplianceSummary(ctx, cmd.String("party"))
			if err != nil {
				return err
			}
			return r.Compliance(s)
		},
	}
}

// alertsCommand groups alert listing and lifecycle commands.
func (a *App) alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "list and manage alerts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list alerts",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "open, acknowledged, resolved or unresolved"},
					&cli.StringFlag{Name: "severity", Usage: "low, medium, high or critical"},
					&cli.StringFlag{Name: "type", Usage: "alert type"},
					&cli.StringFlag{Name: "obligation", Usage: "obligation id"},
					&cli.StringFlag{Name: "sort", Usage: "recent or priority", Value: "recent"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "maximum alerts to show"},
					timeFormatFlag,
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, err := a.client()
					if err != nil {
						return err
					}
					r, err := a.renderer(cmd)
					if err != nil {
						return err
					}
					limit := int(cmd.Int("limit"))
					if limit == 0 {
						limit = a.Config.Defaults.Limit
					}
					list, err := c.ListAlerts(ctx, client.AlertQuery{
						Status:       cmd.String("status"),
						Severity:     cmd.String("severity"),
						Type:         cmd.String("type"),
						ObligationID: cmd.String("obligation"),
						Sort:         cmd.String("sort"),
						Limit:        limit,
					})
					if err != nil {
						return err
					}
					return r.Alerts(list)
				},
			},
			{
				Name:      "show",
				Usage:     "show one alert",
				ArgsUsage: "<alert-id>",
				Flags:     []cli.Flag{timeFormatFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "alert id")
					if err != nil {
						return err
					}
					c, err := a.client()
					if err != nil {
						return err
					}
					r, err := a.renderer(cmd)
					if err != nil {
						return err
					}
					alert, err := c.GetAlert(ctx, id)
					if err != nil {
						return err
					}
					return r.Alert(alert)
				},
			},
			{
				Name:      "ack",
				Usage:     "acknowledge an alert",
				ArgsUsage: "<alert-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "by", Usage: "who is acknowledging (defaults to the configured actor)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "alert id")
					if err != nil {
						return err
					}
					by, err := a.actor(cmd)
					if err != nil {
						return err
					}
					c, err := a.client()
					if err != nil {
						return err
					}
					alert, err := c.AcknowledgeAlert(ctx, id, by)
					if err != nil {
						return err
					}
					fmt.Println(successStyle.Render("Acknowledged"), alert.ID, mutedStyle.Render(alert.Title))
					return nil
				},
			},
			{
				Name:      "resolve",
				Usage:     "resolve an alert",
				ArgsUsage: "<alert-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "by", Usage: "who is resolving (defaults to the configured actor)"},
					&cli.StringFlag{Name: "note", Usage: "resolution note"},
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip confirmation"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "alert id")
					if err != nil {
						return err
					}
					by, err := a.actor(cmd)
					if err != nil {
						return err
					}

					if !cmd.Bool("yes") && isTerminal() {
						confirmed := false
						if err := huh.NewConfirm().
							Title(fmt.Sprintf("Resolve alert %s?", id)).
							Description("Resolved alerts cannot be reopened.").
							Value(&confirmed).
							Run(); err != nil {
							return err
						}
						if !confirmed {
							fmt.Fprintln(os.Stderr, mutedStyle.Render("Cancelled."))
							return nil
						}
					}

					c, err := a.client()
					if err != nil {
						return err
					}
					alert, err := c.ResolveAlert(ctx, id, by, cmd.String("note"))
					if err != nil {
						return err
					}
					fmt.Println(successStyle.Render("Resolved"), alert.ID, mutedStyle.Render(alert.Title))
					return nil
				},
			},
		},
	}
}

// obligationsCommand groups obligation queries.
func (a *App) obligationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "obligations",
		Usage: "query obligations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list obligations",
				Description: `Examples:
   pactwatch obligations list --party acme --status active
   pactwatch obligations list --due-within 2w
   pactwatch obligations list --due-before 2026-12-31`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "obligation status"},
					&cli.StringFlag{Name: "type", Usage: "obligation type"},
					&cli.StringFlag{Name: "party", Usage: "party name contains"},
					&cli.StringFlag{Name: "risk", Usage: "risk level"},
					&cli.StringFlag{Name: "contract", Usage: "contract id"},
					&cli.StringFlag{Name: "due-before", Usage: "absolute deadline cutoff (RFC3339 or YYYY-MM-DD)"},
					&cli.StringFlag{Name: "due-within", Usage: "relative deadline cutoff (e.g. 7d, 2w)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "maximum obligations to show"},
					timeFormatFlag,
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					dueBefore, err := query.Window(cmd.String("due-before"), cmd.String("due-within"), 1, time.Now())
					if err != nil {
						return err
					}
					c, err := a.client()
					if err != nil {
						return err
					}
					r, err := a.renderer(cmd)
					if err != nil {
						return err
					}
					limit := int(cmd.Int("limit"))
					if limit == 0 {
						limit = a.Config.Defaults.Limit
					}
					views, err := c.ListObligations(ctx, client.ObligationQuery{
						Status:     cmd.String("status"),
						Type:       cmd.String("type"),
						Party:      cmd.String("party"),
						RiskLevel:  cmd.String("risk"),
						ContractID: cmd.String("contract"),
						DueBefore:  dueBefore,
						Limit:      limit,
					})
					if err != nil {
						return err
					}
					return r.Obligations(views)
				},
			},
		},
	}
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	id := cmd.Args().First()
	if id == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return id, nil
}

func (a *App) actor(cmd *cli.Command) (string, error) {
	by := cmd.String("by")
	if by == "" {
		by = a.Config.Defaults.Actor
	}
	if by == "" {
		return "", fmt.Errorf("--by is required (or set defaults.actor in the CLI config)")
	}
	return by, nil
}
