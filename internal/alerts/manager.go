// Package alerts owns the alert lifecycle: raising through the store,
// acknowledging, resolving and delivering notifications for new alerts.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// Store is the persistence the manager needs. *sqlite.DB satisfies it.
type Store interface {
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error)
	TransitionAlert(ctx context.Context, id string, to models.AlertStatus, by, note string) (*models.Alert, bool, error)
	ApplyCheck(ctx context.Context, rec models.CheckRecord) (*models.RaiseResult, error)
	RaiseDeadlineAlert(ctx context.Context, d *models.AlertDraft) (*models.RaiseResult, error)
}

// Options encapsulates the dependencies required to run the alert manager.
type Options struct {
	Store  Store
	Sender AlertSender
	Logger *slog.Logger
	// NotifyTimeout bounds each background delivery.
	NotifyTimeout time.Duration
	ExternalURL   string
}

// Manager applies alert state changes. It never resolves alerts on its own:
// only Resolve, called by a person, moves an alert to resolved.
type Manager struct {
	store         Store
	sender        AlertSender
	log           *slog.Logger
	notifyTimeout time.Duration
	externalURL   string
	now           func() time.Time

	wg sync.WaitGroup
}

// NewManager constructs a new alert manager instance.
func NewManager(opts Options) *Manager {
	sender := opts.Sender
	if sender == nil {
		sender = NewLogSender(opts.Logger)
	}
	timeout := opts.NotifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		store:         opts.Store,
		sender:        sender,
		log:           opts.Logger.With("component", "alert_manager"),
		notifyTimeout: timeout,
		externalURL:   opts.ExternalURL,
		now:           time.Now,
	}
}

// Get returns one alert.
func (m *Manager) Get(ctx context.Context, id string) (*models.Alert, error) {
	return m.store.GetAlert(ctx, id)
}

// List returns alerts matching the filter, newest first, or by priority when
// the filter asks for it.
func (m *Manager) List(ctx context.Context, f models.AlertFilter) ([]*models.Alert, error) {
	list, err := m.store.ListAlerts(ctx, f)
	if err != nil {
		return nil, err
	}
	if f.SortPriority {
		SortByPriority(list, m.now())
	}
	return list, nil
}

// SortByPriority orders alerts by descending priority score. Ties keep the
// incoming order, which is newest first.
func SortByPriority(list []*models.Alert, now time.Time) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].PriorityScore(now) > list[j].PriorityScore(now)
	})
}

// Acknowledge marks an open alert as seen. Acknowledging an acknowledged alert
// is a no-op; a resolved alert returns models.ErrInvalidTransition.
func (m *Manager) Acknowledge(ctx context.Context, id, by string) (*models.Alert, error) {
	alert, changed, err := m.store.TransitionAlert(ctx, id, models.AlertStatusAcknowledged, strings.TrimSpace(by), "")
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.GetOrCreateCounter(`pactwatch_alert_transitions_total{to="acknowledged"}`).Inc()
		m.log.Info("alert acknowledged", "alert_id", id, "by", by)
	}
	return alert, nil
}

// Resolve closes an alert. Resolving twice is a no-op that keeps the first
// resolution time and actor.
func (m *Manager) Resolve(ctx context.Context, id, by, note string) (*models.Alert, error) {
	alert, changed, err := m.store.TransitionAlert(ctx, id, models.AlertStatusResolved, strings.TrimSpace(by), strings.TrimSpace(note))
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.GetOrCreateCounter(`pactwatch_alert_transitions_total{to="resolved"}`).Inc()
		m.log.Info("alert resolved", "alert_id", id, "by", by)
	}
	return alert, nil
}

// RecordCheck persists a check outcome together with its breach alert, if
// any, and notifies when a new alert was created. Refreshing the evidence of
// an unresolved alert is silent.
func (m *Manager) RecordCheck(ctx context.Context, rec models.CheckRecord) (*models.RaiseResult, error) {
	res, err := m.store.ApplyCheck(ctx, rec)
	if err != nil {
		return nil, err
	}
	if rec.Alert != nil && res != nil {
		m.countRaise(rec.Alert.Type, res)
		if res.Outcome == models.RaiseCreated {
			m.notify(res)
		}
	}
	return res, nil
}

// RaiseDeadline raises, escalates or suppresses a deadline_upcoming alert.
// Everything except a suppressed raise is a new reminder and is notified.
func (m *Manager) RaiseDeadline(ctx context.Context, d *models.AlertDraft) (*models.RaiseResult, error) {
	res, err := m.store.RaiseDeadlineAlert(ctx, d)
	if err != nil {
		return nil, err
	}
	m.countRaise(models.AlertTypeDeadlineUpcoming, res)
	if res.Outcome != models.RaiseSuppressed && res.Alert != nil {
		m.notify(res)
	}
	return res, nil
}

func (m *Manager) countRaise(alertType models.AlertType, res *models.RaiseResult) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`pactwatch_alerts_raised_total{type=%q,outcome=%q}`, alertType, res.Outcome)).Inc()
}

// notify delivers in the background so a slow channel never holds up a pass.
func (m *Manager) notify(res *models.RaiseResult) {
	n := NewNotification(res, m.externalURL)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.notifyTimeout)
		defer cancel()
		if err := m.sender.Send(ctx, n); err != nil {
			metrics.GetOrCreateCounter(`pactwatch_alert_notifications_failed_total`).Inc()
			m.log.Warn("notification failed", "alert_id", n.AlertID, "error", err)
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}
