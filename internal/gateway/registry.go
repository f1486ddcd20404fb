package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mr-karan/pactwatch/pkg/models"
)

const (
	defaultFetchTimeout        = 10 * time.Second
	healthCheckTimeout         = 2 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
)

// Health is the last known reachability of a backend.
type Health struct {
	Backend     string    `json:"backend"`
	Healthy     bool      `json:"healthy"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Registry routes each data domain to a named backend and enforces the
// gateway contract on every result: bounded latency, schema validation and
// ErrDataUnavailable for anything that is not a clean answer.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	routes   map[string]string
	fallback string
	timeout  time.Duration
	log      *slog.Logger

	healthMu   sync.RWMutex
	health     map[string]Health
	stopHealth chan struct{}
	healthWG   sync.WaitGroup
}

// NewRegistry creates an empty registry. fetchTimeout bounds every backend call.
func NewRegistry(log *slog.Logger, fetchTimeout time.Duration) *Registry {
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	return &Registry{
		backends: make(map[string]Backend),
		routes:   make(map[string]string),
		timeout:  fetchTimeout,
		log:      log.With("component", "gateway_registry"),
		health:   make(map[string]Health),
	}
}

// Register adds a backend. The first registered backend serves any unrouted domain.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
	if r.fallback == "" {
		r.fallback = b.Name()
	}
}

// Route sends a data domain to a registered backend.
func (r *Registry) Route(domain, backend string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[backend]; !ok {
		return fmt.Errorf("backend %q not registered", backend)
	}
	r.routes[domain] = backend
	return nil
}

func (r *Registry) backendFor(op models.Operation) (Backend, error) {
	domain := DomainFor(op)

	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.routes[domain]
	if !ok {
		name = r.fallback
	}
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("no backend for domain %s: %w", domain, ErrDataUnavailable)
	}
	return b, nil
}

// DiscountData implements Gateway.
func (r *Registry) DiscountData(ctx context.Context, q Query) (*models.LiveFact, error) {
	return r.fetch(ctx, models.OperationDiscountData, q)
}

// CustomerVolume implements Gateway.
func (r *Registry) CustomerVolume(ctx context.Context, q Query) (*models.LiveFact, error) {
	return r.fetch(ctx, models.OperationCustomerVolume, q)
}

// TransactionActivity implements Gateway.
func (r *Registry) TransactionActivity(ctx context.Context, q Query) (*models.LiveFact, error) {
	return r.fetch(ctx, models.OperationTransactionActivity, q)
}

func (r *Registry) fetch(ctx context.Context, op models.Operation, q Query) (*models.LiveFact, error) {
	b, err := r.backendFor(op)
	if err != nil {
		fetchCounter(op, "none", "unavailable").Inc()
		return nil, err
	}
	name := b.Name()
	if q.Party == "" {
		fetchCounter(op, name, "unavailable").Inc()
		return nil, fmt.Errorf("%s: empty party: %w", op, ErrDataUnavailable)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	fact, err := Fetch(fetchCtx, b, op, q)
	metrics.GetOrCreateHistogram(fmt.Sprintf(`pactwatch_gateway_fetch_duration_seconds{operation=%q,backend=%q}`, op, name)).UpdateDuration(start)
	if err != nil {
		fetchCounter(op, name, "unavailable").Inc()
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		r.log.Warn("live data fetch failed", "operation", op, "backend", name, "party", q.Party, "error", err)
		return nil, Unavailable(op, name, err)
	}
	if err := Validate(op, fact); err != nil {
		fetchCounter(op, name, "malformed").Inc()
		r.log.Warn("live data failed validation", "operation", op, "backend", name, "party", q.Party, "error", err)
		return nil, err
	}
	if fact.Backend == "" {
		fact.Backend = name
	}
	if fact.FetchedAt.IsZero() {
		fact.FetchedAt = time.Now().UTC()
	}
	fetchCounter(op, name, "ok").Inc()
	return fact, nil
}

func fetchCounter(op models.Operation, backend, result string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`pactwatch_gateway_fetch_total{operation=%q,backend=%q,result=%q}`, op, backend, result))
}

// Ping checks every backend now and returns the results sorted by name.
func (r *Registry) Ping(ctx context.Context) []Health {
	r.mu.RLock()
	backends := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		backends = append(backends, b)
	}
	r.mu.RUnlock()

	out := make([]Health, 0, len(backends))
	for _, b := range backends {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := b.Ping(pingCtx)
		cancel()
		h := Health{Backend: b.Name(), Healthy: err == nil, LastChecked: time.Now().UTC()}
		if err != nil {
			h.Error = err.Error()
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Backend < out[j].Backend })

	r.healthMu.Lock()
	for _, h := range out {
		r.health[h.Backend] = h
	}
	r.healthMu.Unlock()
	return out
}

// CachedHealth returns the result of the last background or explicit Ping.
func (r *Registry) CachedHealth() map[string]Health {
	r.healthMu.RLock()
	defer r.healthMu.RUnlock()
	out := make(map[string]Health, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// StartBackgroundHealthChecks pings all backends periodically until stopped.
func (r *Registry) StartBackgroundHealthChecks(interval time.Duration) {
	if interval <= 0 {
		interval = defaultHealthCheckInterval
	}
	r.mu.Lock()
	if r.stopHealth != nil {
		r.mu.Unlock()
		return
	}
	r.stopHealth = make(chan struct{})
	stop := r.stopHealth
	r.mu.Unlock()

	r.healthWG.Add(1)
	go func() {
		defer r.healthWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		r.Ping(context.Background())
		for {
			select {
			case <-ticker.C:
				r.Ping(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// StopBackgroundHealthChecks stops the health check goroutine and waits for it.
func (r *Registry) StopBackgroundHealthChecks() {
	r.mu.Lock()
	stop := r.stopHealth
	r.stopHealth = nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
		r.healthWG.Wait()
	}
}

// Close releases every backend.
func (r *Registry) Close() error {
	r.StopBackgroundHealthChecks()

	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, b := range r.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
