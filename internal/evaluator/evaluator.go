// Package evaluator decides whether a live fact satisfies an obligation's condition.
//
// Three paths are tried in order: a numeric threshold recovered from the
// condition text, a CEL expression for conditions prefixed with "expr:", and
// an optional judgment service for everything else. Whatever cannot be decided
// is Indeterminate; the evaluator never guesses compliance.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mr-karan/pactwatch/pkg/models"
)

const defaultJudgeTimeout = 20 * time.Second

// Options configures an Evaluator.
type Options struct {
	// Judge is optional. Without it, conditions with no threshold are Indeterminate.
	Judge        Judge
	JudgeTimeout time.Duration
	Logger       *slog.Logger
}

// Evaluator is safe for concurrent use.
type Evaluator struct {
	judge        Judge
	judgeTimeout time.Duration
	exprs        *exprEngine
	log          *slog.Logger
	now          func() time.Time
}

// New creates an evaluator.
func New(opts Options) (*Evaluator, error) {
	exprs, err := newExprEngine()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.JudgeTimeout
	if timeout <= 0 {
		timeout = defaultJudgeTimeout
	}
	return &Evaluator{
		judge:        opts.Judge,
		judgeTimeout: timeout,
		exprs:        exprs,
		log:          log.With("component", "evaluator"),
		now:          time.Now,
	}, nil
}

// Evaluate judges fact against ob's condition. It has no side effects apart
// from the optional judgment call.
func (e *Evaluator) Evaluate(ctx context.Context, ob *models.Obligation, fact *models.LiveFact) models.Verdict {
	v := e.evaluate(ctx, ob, fact)
	if v.Breached() {
		v.Severity = ApplyRiskFloor(v.Severity, ob.RiskLevel)
	} else {
		v.Severity = ""
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`pactwatch_evaluations_total{method=%q,outcome=%q}`, v.Method, v.Outcome)).Inc()
	return v
}

func (e *Evaluator) evaluate(ctx context.Context, ob *models.Obligation, fact *models.LiveFact) models.Verdict {
	if fact == nil {
		return indeterminate(models.MethodNone, "no live data")
	}
	condition := strings.TrimSpace(ob.Condition)

	if IsExpression(condition) {
		return e.evaluateExpression(ob, fact, expressionBody(condition))
	}

	if condition != "" {
		th, err := ParseThreshold(condition)
		if err == nil {
			return e.evaluateThreshold(ob, fact, th)
		}
		if !errors.Is(err, ErrNoThreshold) {
			e.log.Debug("condition did not parse", "obligation_id", ob.ID, "error", err)
		}
	}

	if e.judge == nil {
		return indeterminate(models.MethodNone, "no numeric threshold in condition and no judgment service configured")
	}
	return e.evaluateJudgment(ctx, ob, fact, condition)
}

func (e *Evaluator) evaluateThreshold(ob *models.Obligation, fact *models.LiveFact, th *Threshold) models.Verdict {
	metric := resolveMetric(ob, fact.Operation, th.Words)
	observed, ok := fact.Number(metric)
	if !ok {
		v := indeterminate(models.MethodThreshold, fmt.Sprintf("metric %s missing from live data", metric))
		v.Metric = metric
		return v
	}
	threshold := th.Value
	percent := th.Percent || isPercentMetric(metric)

	v := models.Verdict{
		Method:    models.MethodThreshold,
		Metric:    metric,
		Observed:  &observed,
		Threshold: &threshold,
		Delta:     delta(th.Op, observed, threshold, percent),
	}
	if !th.Op.Breached(observed, threshold) {
		v.Outcome = models.OutcomeCompliant
		v.Rationale = fmt.Sprintf("%s within limit: %s", metric, v.Delta)
		return v
	}

	overage := OveragePct(th.Op, observed, threshold)
	v.Outcome = models.OutcomeBreached
	v.OveragePct = &overage
	v.Severity = SeverityForOverage(overage)
	v.Rationale = fmt.Sprintf("%s breached (%s %s): %s, %s over", metric, th.Op, formatValue(threshold, percent), v.Delta, formatValue(overage, true))
	return v
}

func (e *Evaluator) evaluateExpression(ob *models.Obligation, fact *models.LiveFact, expr string) models.Verdict {
	ok, err := e.exprs.eval(expr, fact, e.now())
	if err != nil {
		e.log.Warn("expression condition could not be evaluated", "obligation_id", ob.ID, "error", err)
		return indeterminate(models.MethodExpression, fmt.Sprintf("expression could not be evaluated: %v", err))
	}
	if ok {
		return models.Verdict{
			Outcome:   models.OutcomeCompliant,
			Method:    models.MethodExpression,
			Rationale: fmt.Sprintf("expression holds: %s", expr),
		}
	}
	return models.Verdict{
		Outcome:   models.OutcomeBreached,
		Method:    models.MethodExpression,
		Rationale: fmt.Sprintf("expression does not hold: %s", expr),
		Delta:     "expression evaluated to false",
		Severity:  models.SeverityMedium,
	}
}

func (e *Evaluator) evaluateJudgment(ctx context.Context, ob *models.Obligation, fact *models.LiveFact, condition string) models.Verdict {
	if condition == "" {
		condition = ob.Description
	}
	if condition == "" {
		return indeterminate(models.MethodJudgment, "obligation has no condition to judge")
	}

	judgeCtx, cancel := context.WithTimeout(ctx, e.judgeTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.judge.Judge(judgeCtx, JudgeRequest{
		Condition:   condition,
		Description: ob.Description,
		Type:        ob.Type,
		Fact:        fact,
	})
	metrics.GetOrCreateHistogram(`pactwatch_judgment_duration_seconds`).UpdateDuration(start)
	if err != nil {
		reason := "judgment service failed"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(judgeCtx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("judgment timed out after %s", e.judgeTimeout)
		}
		e.log.Warn("judgment call failed", "obligation_id", ob.ID, "error", err)
		return indeterminate(models.MethodJudgment, reason)
	}

	switch res.Outcome {
	case models.OutcomeCompliant:
		return models.Verdict{Outcome: models.OutcomeCompliant, Method: models.MethodJudgment, Rationale: res.Rationale}
	case models.OutcomeBreached:
		return models.Verdict{
			Outcome:   models.OutcomeBreached,
			Method:    models.MethodJudgment,
			Rationale: res.Rationale,
			Delta:     "judged non-compliant",
			Severity:  models.SeverityMedium,
		}
	default:
		rationale := res.Rationale
		if rationale == "" {
			rationale = "judgment service could not decide"
		}
		return indeterminate(models.MethodJudgment, rationale)
	}
}

func indeterminate(method models.Method, rationale string) models.Verdict {
	return models.Verdict{Outcome: models.OutcomeIndeterminate, Method: method, Rationale: rationale}
}
