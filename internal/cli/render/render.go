// Package render prints API results for the pactwatch CLI.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mr-karan/pactwatch/internal/cli/query"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// Options configures the renderer
type Options struct {
	Format     string // table, json
	Color      bool
	TimeFormat string // rfc3339, short, relative
}

// Renderer writes results to out.
type Renderer struct {
	opts Options
	out  io.Writer
	now  func() time.Time
}

// New creates a new renderer
func New(out io.Writer, opts Options) (*Renderer, error) {
	switch opts.Format {
	case "":
		opts.Format = "table"
	case "table", "json":
	default:
		return nil, fmt.Errorf("unknown output format: %s (valid: table, json)", opts.Format)
	}
	return &Renderer{opts: opts, out: out, now: time.Now}, nil
}

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	highStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	mediumStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(22)
)

// Alerts renders an alert listing.
func (r *Renderer) Alerts(alerts []models.Alert) error {
	if r.opts.Format == "json" {
		return r.json(alerts)
	}
	if len(alerts) == 0 {
		fmt.Fprintln(r.out, "No alerts found.")
		return nil
	}

	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{
			a.ID,
			r.severity(a.Severity),
			string(a.Type),
			string(a.Status),
			truncate(a.Title, 60),
			r.timestamp(a.TriggeredAt),
		})
	}
	r.table([]string{"ID", "SEVERITY", "TYPE", "STATUS", "TITLE", "TRIGGERED"}, rows)
	return nil
}

// Alert renders one alert as a detail block.
func (r *Renderer) Alert(a *models.Alert) error {
	if r.opts.Format == "json" {
		return r.json(a)
	}
	r.field("ID", a.ID)
	r.field("Title", a.Title)
	r.field("Severity", r.severity(a.Severity))
	r.field("Type", string(a.Type))
	r.field("Status", string(a.Status))
	r.field("Obligation", a.ObligationID)
	r.field("Contract", a.ContractID)
	r.field("Triggered", r.timestamp(a.TriggeredAt))
	if a.Deadline != nil {
		r.field("Deadline", r.timestamp(*a.Deadline))
	}
	if a.AcknowledgedAt != nil {
		r.field("Acknowledged", fmt.Sprintf("%s by %s", r.timestamp(*a.AcknowledgedAt), a.AcknowledgedBy))
	}
	if a.ResolvedAt != nil {
		r.field("Resolved", fmt.Sprintf("%s by %s", r.timestamp(*a.ResolvedAt), a.ResolvedBy))
	}
	if a.ResolutionNote != "" {
		r.field("Note", a.ResolutionNote)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, a.Message)
	return nil
}

// Obligations renders an obligation listing.
func (r *Renderer) Obligations(views []models.ObligationView) error {
	if r.opts.Format == "json" {
		return r.json(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(r.out, "No obligations found.")
		return nil
	}

	now := r.now()
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		due := "-"
		if v.Deadline != nil {
			due = r.due(*v.Deadline, now)
		}
		rows = append(rows, []string{
			v.ID,
			truncate(v.Party, 24),
			string(v.Type),
			string(v.Status),
			r.compliance(v.ComplianceStatus),
			fmt.Sprintf("%.0f", v.RiskScore),
			due,
		})
	}
	r.table([]string{"ID", "PARTY", "TYPE", "STATUS", "COMPLIANCE", "RISK", "DUE"}, rows)
	return nil
}

// Pass renders a monitoring pass summary.
func (r *Renderer) Pass(s *models.PassSummary) error {
	if r.opts.Format == "json" {
		return r.json(s)
	}
	fmt.Fprintln(r.out, r.paint(headerStyle, fmt.Sprintf("%s pass", s.Kind)))
	r.field("Checked", fmt.Sprint(s.Checked))
	r.field("Compliant", fmt.Sprint(s.Compliant))
	r.field("Breached", fmt.Sprint(s.Breached))
	r.field("Indeterminate", fmt.Sprint(s.Indeterminate))
	r.field("Alerted", fmt.Sprint(s.Alerted))
	r.field("Skipped", fmt.Sprint(s.Skipped))
	r.field("Errored", fmt.Sprint(s.Errored))
	if !s.FinishedAt.IsZero() {
		r.field("Took", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String())
	}
	if len(s.Errors) > 0 {
		fmt.Fprintln(r.out)
		rows := make([][]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			rows = append(rows, []string{e.ObligationID, string(e.Category)})
		}
		r.table([]string{"OBLIGATION", "ERROR"}, rows)
	}
	return nil
}

// Check renders a single obligation check.
func (r *Renderer) Check(c *models.CheckResult) error {
	if r.opts.Format == "json" {
		return r.json(c)
	}
	r.field("Obligation", c.ObligationID)
	r.field("Outcome", string(c.Outcome))
	if c.Verdict != nil {
		r.field("Method", string(c.Verdict.Method))
		r.field("Rationale", c.Verdict.Rationale)
	}
	if c.Category != "" {
		r.field("Error", string(c.Category))
	}
	if c.Alert != nil {
		r.field("Alert", fmt.Sprintf("%s (%s, %s)", c.Alert.ID, r.severity(c.Alert.Severity), c.AlertOutcome))
	}
	return nil
}

// Status renders the monitoring status.
func (r *Renderer) Status(s *models.MonitoringStatus) error {
	if r.opts.Format == "json" {
		return r.json(s)
	}
	running := "stopped"
	if s.Running {
		running = r.paint(okStyle, "running")
	}
	r.field("Engine", running)
	r.field("Reconcile schedule", s.ReconcileSchedule)
	if s.DeadlineSchedule != "" {
		r.field("Deadline schedule", s.DeadlineSchedule)
	}
	r.field("Active obligations", fmt.Sprint(s.ActiveObligations))
	r.field("Due", fmt.Sprint(s.DueObligations))
	r.field("Overdue", fmt.Sprint(s.OverdueObligations))
	r.field("Open alerts", fmt.Sprint(s.OpenAlerts))
	r.field("Acknowledged alerts", fmt.Sprint(s.AcknowledgedAlerts))
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if n := s.AlertsBySeverity[sev]; n > 0 {
			r.field("  "+string(sev), fmt.Sprint(n))
		}
	}
	if s.LastReconcile != nil {
		r.field("Last reconcile", r.timestamp(s.LastReconcile.FinishedAt))
	}
	if s.LastDeadline != nil {
		r.field("Last deadline scan", r.timestamp(s.LastDeadline.FinishedAt))
	}
	if len(s.Backends) > 0 {
		fmt.Fprintln(r.out)
		names := make([]string, 0, len(s.Backends))
		for name := range s.Backends {
			names = append(names, name)
		}
		sort.Strings(names)
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			state := s.Backends[name]
			if state == "healthy" {
				state = r.paint(okStyle, state)
			} else {
				state = r.paint(criticalStyle, state)
			}
			rows = append(rows, []string{name, state})
		}
		r.table([]string{"BACKEND", "HEALTH"}, rows)
	}
	return nil
}

// Compliance renders a compliance summary.
func (r *Renderer) Compliance(s *models.ComplianceSummary) error {
	if r.opts.Format == "json" {
		return r.json(s)
	}
	if s.Party != "" {
		r.field("Party", s.Party)
	}
	r.field("Obligations", fmt.Sprint(s.TotalObligations))
	r.field("Compliance rate", fmt.Sprintf("%.2f%%", s.ComplianceRate))
	r.field("Compliant", fmt.Sprint(s.Compliant))
	r.field("Non-compliant", fmt.Sprint(s.NonCompliant))
	r.field("Unknown", fmt.Sprint(s.Unknown))
	r.field("Breaches", fmt.Sprintf("%d across %d obligations", s.TotalBreaches, s.ObligationsBreached))
	if s.LastBreachAt != nil {
		r.field("Last breach", r.timestamp(*s.LastBreachAt))
	}
	return nil
}

func (r *Renderer) json(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(headers...).
		Rows(rows...)
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow && r.opts.Color {
			return headerStyle
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})
	fmt.Fprintln(r.out, t.Render())
}

func (r *Renderer) field(label, value string) {
	fmt.Fprintf(r.out, "%s%s\n", r.paint(labelStyle, fmt.Sprintf("%-22s", label)), value)
}

func (r *Renderer) paint(st lipgloss.Style, s string) string {
	if !r.opts.Color {
		return s
	}
	return st.Render(s)
}

func (r *Renderer) severity(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return r.paint(criticalStyle, string(s))
	case models.SeverityHigh:
		return r.paint(highStyle, string(s))
	case models.SeverityMedium:
		return r.paint(mediumStyle, string(s))
	default:
		return r.paint(dimStyle, string(s))
	}
}

func (r *Renderer) compliance(c models.ComplianceStatus) string {
	switch c {
	case models.ComplianceStatusCompliant:
		return r.paint(okStyle, string(c))
	case models.ComplianceStatusNonCompliant:
		return r.paint(criticalStyle, string(c))
	default:
		return r.paint(dimStyle, string(c))
	}
}

func (r *Renderer) due(deadline, now time.Time) string {
	d := deadline.Sub(now)
	if d < 0 {
		return r.paint(criticalStyle, "overdue "+query.FormatDuration(-d))
	}
	return "in " + query.FormatDuration(d)
}

func (r *Renderer) timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	switch r.opts.TimeFormat {
	case "short":
		return t.Local().Format("01-02 15:04")
	case "relative":
		return formatRelativeTime(t, r.now())
	default:
		return t.UTC().Format(time.RFC3339)
	}
}

func formatRelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	suffix := "ago"
	if d < 0 {
		d, suffix = -d, "from now"
	}
	return query.FormatDuration(d) + " " + suffix
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
