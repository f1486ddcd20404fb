// Package monitor runs obligation checks: select due obligations, fetch live
// facts, evaluate them and record the outcome with any alert it calls for.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

// ErrNotActive is returned when an on-demand check targets an obligation that
// is not active.
var ErrNotActive = errors.New("obligation is not active")

// ObligationStore is the read side of the store the engine selects from.
type ObligationStore interface {
	GetObligation(ctx context.Context, id string) (*models.Obligation, error)
	ListDueObligations(ctx context.Context, now time.Time) ([]*models.Obligation, error)
	ListActiveObligations(ctx context.Context) ([]*models.Obligation, error)
	ListDeadlineCandidates(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Obligation, error)
}

// Evaluator decides a verdict for one fact.
type Evaluator interface {
	Evaluate(ctx context.Context, ob *models.Obligation, fact *models.LiveFact) models.Verdict
}

// AlertRecorder persists check outcomes and alerts atomically.
type AlertRecorder interface {
	RecordCheck(ctx context.Context, rec models.CheckRecord) (*models.RaiseResult, error)
	RaiseDeadline(ctx context.Context, d *models.AlertDraft) (*models.RaiseResult, error)
}

// Options configures an Engine.
type Options struct {
	Store     ObligationStore
	Gateway   gateway.Gateway
	Evaluator Evaluator
	Alerts    AlertRecorder
	Config    config.MonitoringConfig
	// Lease is optional. Without it scheduled passes only guard against
	// overlapping themselves within this process.
	Lease  Lease
	Logger *slog.Logger
}

// Engine is the monitoring service. One instance is constructed by the
// process and shared by the scheduler, the HTTP API and the CLI.
type Engine struct {
	store     ObligationStore
	gw        gateway.Gateway
	evaluator Evaluator
	alerts    AlertRecorder
	cfg       config.MonitoringConfig
	windows   []int
	lease     Lease
	log       *slog.Logger
	now       func() time.Time

	locks sync.Map // obligation id -> *sync.Mutex

	mu            sync.RWMutex
	lastReconcile *models.PassSummary
	lastDeadline  *models.PassSummary
	cron          *cron.Cron
}

// New validates the options and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Gateway == nil || opts.Evaluator == nil || opts.Alerts == nil {
		return nil, errors.New("monitor: store, gateway, evaluator and alerts are required")
	}
	cfg := opts.Config
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}
	windows := make([]int, 0, len(cfg.LeadWindows))
	for _, w := range cfg.LeadWindows {
		if w > 0 {
			windows = append(windows, w)
		}
	}
	sort.Ints(windows)

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     opts.Store,
		gw:        opts.Gateway,
		evaluator: opts.Evaluator,
		alerts:    opts.Alerts,
		cfg:       cfg,
		windows:   windows,
		lease:     opts.Lease,
		log:       log.With("component", "monitor"),
		now:       time.Now,
	}, nil
}

// CheckAll checks every active obligation now, ignoring next_check_at.
func (e *Engine) CheckAll(ctx context.Context) (*models.PassSummary, error) {
	obs, err := e.store.ListActiveObligations(ctx)
	if err != nil {
		return nil, fmt.Errorf("select active obligations: %w", err)
	}
	return e.reconcile(ctx, obs), nil
}

// RunScheduledPass checks active obligations whose next check is due.
func (e *Engine) RunScheduledPass(ctx context.Context) (*models.PassSummary, error) {
	obs, err := e.store.ListDueObligations(ctx, e.now())
	if err != nil {
		return nil, fmt.Errorf("select due obligations: %w", err)
	}
	return e.reconcile(ctx, obs), nil
}

// CheckObligation runs a single on-demand check.
func (e *Engine) CheckObligation(ctx context.Context, id string) (*models.CheckResult, error) {
	ob, err := e.store.GetObligation(ctx, id)
	if err != nil {
		return nil, err
	}
	if ob.Status != models.ObligationStatusActive {
		return nil, fmt.Errorf("obligation %s is %s: %w", id, ob.Status, ErrNotActive)
	}
	res := e.check(ctx, ob)
	return &res, nil
}

func (e *Engine) reconcile(ctx context.Context, obs []*models.Obligation) *models.PassSummary {
	start := time.Now()
	summary := e.runPass(ctx, models.PassReconcile, obs, e.check)
	metrics.GetOrCreateHistogram(`pactwatch_pass_duration_seconds{kind="reconcile"}`).UpdateDuration(start)

	e.mu.Lock()
	e.lastReconcile = summary
	e.mu.Unlock()

	e.log.Info("reconciliation pass finished",
		"checked", summary.Checked,
		"skipped", summary.Skipped,
		"alerted", summary.Alerted,
		"errored", summary.Errored,
		"breached", summary.Breached,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	return summary
}

// runPass fans obligations out to a bounded pool. A failing obligation only
// affects its own result.
func (e *Engine) runPass(ctx context.Context, kind models.PassKind, obs []*models.Obligation,
	fn func(context.Context, *models.Obligation) models.CheckResult) *models.PassSummary {
	summary := &models.PassSummary{Kind: kind, StartedAt: e.now().UTC()}
	results := make([]models.CheckResult, len(obs))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, ob := range obs {
		if ctx.Err() != nil {
			results[i] = errored(ob.ID, models.ErrorCategoryCancelled)
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("obligation check panicked", "obligation_id", ob.ID, "panic", r)
					results[i] = errored(ob.ID, models.ErrorCategoryInternal)
				}
			}()
			results[i] = fn(ctx, ob)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		tally(summary, r)
	}
	summary.FinishedAt = e.now().UTC()
	return summary
}

func tally(s *models.PassSummary, r models.CheckResult) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`pactwatch_checks_total{kind=%q,outcome=%q}`, s.Kind, r.Outcome)).Inc()
	switch r.Outcome {
	case models.CheckOutcomeCompliant:
		s.Checked++
		s.Compliant++
	case models.CheckOutcomeBreached:
		s.Checked++
		s.Breached++
	case models.CheckOutcomeIndeterminate:
		s.Checked++
		s.Indeterminate++
	case models.CheckOutcomeAlerted:
		s.Checked++
	case models.CheckOutcomeSkipped:
		s.Skipped++
	case models.CheckOutcomeErrored:
		s.Errored++
		s.Errors = append(s.Errors, models.PassError{ObligationID: r.ObligationID, Category: r.Category})
	}
	if r.AlertOutcome == models.RaiseCreated || (s.Kind == models.PassDeadline && r.Outcome == models.CheckOutcomeAlerted) {
		s.Alerted++
	}
}

func errored(id string, category models.ErrorCategory) models.CheckResult {
	return models.CheckResult{ObligationID: id, Outcome: models.CheckOutcomeErrored, Category: category}
}

// lock serializes checks of one obligation inside this process. A check that
// finds the obligation busy is skipped; the running one will record it.
func (e *Engine) lock(id string) (unlock func(), ok bool) {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}

// check runs Route, Fetch, Evaluate, then Decide and Advance in one store write.
func (e *Engine) check(ctx context.Context, ob *models.Obligation) models.CheckResult {
	log := e.log.With("obligation_id", ob.ID)
	unlock, ok := e.lock(ob.ID)
	if !ok {
		log.Debug("obligation check already in flight")
		return models.CheckResult{ObligationID: ob.ID, Outcome: models.CheckOutcomeSkipped}
	}
	defer unlock()

	if ctx.Err() != nil {
		return errored(ob.ID, models.ErrorCategoryCancelled)
	}
	now := e.now().UTC()

	plan, ok := planFor(ob, now)
	if !ok {
		log.Warn("no gateway operation fits obligation", "type", ob.Type)
		return models.CheckResult{ObligationID: ob.ID, Outcome: models.CheckOutcomeSkipped, Category: models.ErrorCategoryRoute}
	}

	fact, err := gateway.Fetch(ctx, e.gw, plan.Operation, plan.Query)
	if err != nil {
		if ctx.Err() != nil {
			return errored(ob.ID, models.ErrorCategoryCancelled)
		}
		if errors.Is(err, gateway.ErrDataUnavailable) {
			log.Warn("live data unavailable, obligation left unchanged", "operation", plan.Operation, "party", plan.Query.Party, "error", err)
			return models.CheckResult{ObligationID: ob.ID, Outcome: models.CheckOutcomeSkipped}
		}
		log.Error("gateway fetch failed", "operation", plan.Operation, "error", err)
		return errored(ob.ID, models.ErrorCategoryRoute)
	}

	verdict := e.evaluator.Evaluate(ctx, ob, fact)
	if ctx.Err() != nil {
		return errored(ob.ID, models.ErrorCategoryCancelled)
	}

	rec := models.CheckRecord{
		ObligationID: ob.ID,
		Verdict:      verdict,
		Fact:         fact,
		CheckedAt:    now,
		NextCheckAt:  e.nextCheck(ob, now),
		NextDeadline: nextDeadline(ob, now),
	}
	if verdict.Breached() {
		rec.Alert = breachDraft(ob, plan, verdict, fact)
	}

	raised, err := e.alerts.RecordCheck(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			return errored(ob.ID, models.ErrorCategoryCancelled)
		}
		log.Error("failed to record check", "error", err)
		return errored(ob.ID, models.ErrorCategoryStoreWrite)
	}

	res := models.CheckResult{ObligationID: ob.ID, Verdict: &verdict}
	switch verdict.Outcome {
	case models.OutcomeCompliant:
		res.Outcome = models.CheckOutcomeCompliant
	case models.OutcomeBreached:
		res.Outcome = models.CheckOutcomeBreached
	default:
		res.Outcome = models.CheckOutcomeIndeterminate
		log.Info("verdict indeterminate", "method", verdict.Method, "rationale", verdict.Rationale)
	}
	if raised != nil {
		res.Alert = raised.Alert
		res.AlertOutcome = raised.Outcome
		log.Info("breach recorded", "alert_id", raised.Alert.ID, "alert_outcome", raised.Outcome, "severity", raised.Alert.Severity)
	}
	return res
}

// nextCheck advances recurring obligations by one period and everything else
// by the configured check interval.
func (e *Engine) nextCheck(ob *models.Obligation, now time.Time) time.Time {
	if ob.IsRecurring() {
		return ob.Frequency.Advance(now)
	}
	return now.Add(e.cfg.CheckInterval)
}

// nextDeadline rolls a recurring obligation's passed deadline forward until it
// is in the future. Nil means the deadline stays as stored.
func nextDeadline(ob *models.Obligation, now time.Time) *time.Time {
	if !ob.IsRecurring() || ob.Deadline == nil || ob.Deadline.After(now) {
		return nil
	}
	d := *ob.Deadline
	for !d.After(now) {
		d = ob.Frequency.Advance(d)
	}
	return &d
}

var typeTitles = map[models.ObligationType]string{
	models.ObligationTypePayment:          "Payment obligation",
	models.ObligationTypeSLA:              "SLA",
	models.ObligationTypeReportSubmission: "Reporting obligation",
	models.ObligationTypeCapThreshold:     "Cap",
	models.ObligationTypeRenewal:          "Renewal term",
	models.ObligationTypeOther:            "Obligation",
}

func breachDraft(ob *models.Obligation, plan Plan, v models.Verdict, fact *models.LiveFact) *models.AlertDraft {
	label, ok := typeTitles[ob.Type]
	if !ok {
		label = "Obligation"
	}
	subject := ob.Reference
	if subject == "" {
		subject = ob.Party
	}
	msg := v.Rationale
	if v.Delta != "" && msg == "" {
		msg = v.Delta
	}
	msg = fmt.Sprintf("%s\n\nParty: %s (%s)\nWindow: %s to %s\nCondition: %s",
		msg, ob.Party, plan.Query.Party,
		plan.Query.Window.Start.Format(time.DateOnly), plan.Query.Window.End.Format(time.DateOnly),
		ob.Condition)
	severity := v.Severity
	if !severity.Valid() {
		severity = models.SeverityMedium
	}
	return &models.AlertDraft{
		ObligationID: ob.ID,
		ContractID:   ob.ContractID,
		Type:         plan.AlertType,
		Severity:     severity,
		Title:        fmt.Sprintf("%s breached: %s", label, subject),
		Message:      msg,
		Evidence:     &models.Evidence{Fact: fact, Verdict: &v},
	}
}

// LastSummaries returns the most recent reconciliation and deadline summaries.
func (e *Engine) LastSummaries() (reconcile, deadline *models.PassSummary) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastReconcile, e.lastDeadline
}
