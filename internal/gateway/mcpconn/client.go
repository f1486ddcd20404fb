// Package mcpconn reaches live data through a Model Context Protocol server
// exposing the discount_data, customer_volume and transaction_activity tools.
package mcpconn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/time/rate"

	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

const (
	defaultRateLimit   = 5
	defaultBurst       = 2
	defaultHTTPTimeout = 30 * time.Second
)

// TransportFunc returns a fresh transport for every (re)connection.
type TransportFunc func(ctx context.Context) (mcp.Transport, error)

// Options configures a connector.
type Options struct {
	Name     string
	Endpoint string
	// RateLimit is the sustained tool calls per second; Burst the bucket size.
	RateLimit float64
	Burst     int
	// Transport overrides the streamable HTTP transport built from Endpoint.
	Transport TransportFunc
}

// OptionsFromConfig maps a backend config entry to Options.
func OptionsFromConfig(cfg config.BackendConfig) Options {
	return Options{
		Name:      cfg.Name,
		Endpoint:  cfg.Endpoint,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	}
}

// Backend is a gateway backend calling MCP tools. The session is established
// lazily and re-established after a transport failure.
type Backend struct {
	name      string
	client    *mcp.Client
	transport TransportFunc
	limiter   *rate.Limiter
	log       *slog.Logger

	mu      sync.Mutex
	session *mcp.ClientSession
}

// New creates a connector. No connection is made until the first call.
func New(opts Options, version string, log *slog.Logger) (*Backend, error) {
	transport := opts.Transport
	if transport == nil {
		if opts.Endpoint == "" {
			return nil, fmt.Errorf("mcp backend %s: endpoint is required", opts.Name)
		}
		endpoint := opts.Endpoint
		transport = func(context.Context) (mcp.Transport, error) {
			return &mcp.StreamableClientTransport{
				Endpoint:             endpoint,
				HTTPClient:           &http.Client{Timeout: defaultHTTPTimeout},
				DisableStandaloneSSE: true,
			}, nil
		}
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Backend{
		name:      opts.Name,
		client:    mcp.NewClient(&mcp.Implementation{Name: "pactwatch", Version: version}, nil),
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(limit), burst),
		log:       log.With("component", "mcp_backend", "backend", opts.Name),
	}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) connect(ctx context.Context) (*mcp.ClientSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return b.session, nil
	}
	t, err := b.transport(ctx)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	session, err := b.client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	b.log.Info("connected to mcp server")
	b.session = session
	return session, nil
}

// reset drops session if it is still the current one.
func (b *Backend) reset(session *mcp.ClientSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == session {
		_ = b.session.Close()
		b.session = nil
	}
}

// Ping connects if needed and pings the server.
func (b *Backend) Ping(ctx context.Context) error {
	session, err := b.connect(ctx)
	if err != nil {
		return err
	}
	if err := session.Ping(ctx, &mcp.PingParams{}); err != nil {
		b.reset(session)
		return err
	}
	return nil
}

// Close ends the current session, if any.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	err := b.session.Close()
	b.session = nil
	return err
}

// DiscountData implements gateway.Gateway.
func (b *Backend) DiscountData(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return b.call(ctx, models.OperationDiscountData, q)
}

// CustomerVolume implements gateway.Gateway.
func (b *Backend) CustomerVolume(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return b.call(ctx, models.OperationCustomerVolume, q)
}

// TransactionActivity implements gateway.Gateway.
func (b *Backend) TransactionActivity(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return b.call(ctx, models.OperationTransactionActivity, q)
}

func (b *Backend) call(ctx context.Context, op models.Operation, q gateway.Query) (*models.LiveFact, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, gateway.Unavailable(op, b.name, fmt.Errorf("rate limit: %w", err))
	}
	session, err := b.connect(ctx)
	if err != nil {
		return nil, gateway.Unavailable(op, b.name, err)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: string(op),
		Arguments: map[string]any{
			"customer_id": q.Party,
			"start_date":  q.Window.Start.UTC().Format(time.RFC3339),
			"end_date":    q.Window.End.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		// The session may be broken; the next call reconnects.
		b.reset(session)
		return nil, gateway.Unavailable(op, b.name, err)
	}
	text := resultText(result)
	if result.IsError {
		return nil, gateway.Unavailable(op, b.name, fmt.Errorf("tool error: %s", text))
	}

	metrics, err := decodeMetrics(text)
	if err != nil {
		return nil, gateway.Unavailable(op, b.name, err)
	}
	return gateway.NewFact(op, q, b.name, metrics), nil
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// decodeMetrics parses a JSON object keeping numbers exact as json.Number.
func decodeMetrics(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty tool result")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("malformed tool result: %w", err)
	}
	return m, nil
}
