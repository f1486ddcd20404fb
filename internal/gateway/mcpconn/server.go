package mcpconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

type factInput struct {
	CustomerID string `json:"customer_id" jsonschema:"customer identifier in the live systems"`
	StartDate  string `json:"start_date" jsonschema:"window start, RFC3339 or YYYY-MM-DD"`
	EndDate    string `json:"end_date" jsonschema:"window end (exclusive), RFC3339 or YYYY-MM-DD"`
}

// NewServer exposes g as an MCP server with one tool per gateway operation.
// It is the counterpart of Backend and lets one pactwatch instance serve live
// data to another.
func NewServer(g gateway.Gateway, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "pactwatch-gateway", Version: version}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        string(models.OperationDiscountData),
		Description: "Maximum and average discount percentage and discounted transaction count for a customer over a window.",
	}, toolHandler(g, models.OperationDiscountData))
	mcp.AddTool(srv, &mcp.Tool{
		Name:        string(models.OperationCustomerVolume),
		Description: "Transaction count and total amount for a customer over a window.",
	}, toolHandler(g, models.OperationCustomerVolume))
	mcp.AddTool(srv, &mcp.Tool{
		Name:        string(models.OperationTransactionActivity),
		Description: "Transaction count, refund count and last transaction time for a customer over a window.",
	}, toolHandler(g, models.OperationTransactionActivity))

	return srv
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func toolHandler(g gateway.Gateway, op models.Operation) func(context.Context, *mcp.CallToolRequest, factInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in factInput) (*mcp.CallToolResult, any, error) {
		party := strings.TrimSpace(in.CustomerID)
		if party == "" {
			return nil, nil, fmt.Errorf("customer_id is required")
		}
		start, err := parseDate(in.StartDate)
		if err != nil {
			return nil, nil, fmt.Errorf("start_date: %w", err)
		}
		end, err := parseDate(in.EndDate)
		if err != nil {
			return nil, nil, fmt.Errorf("end_date: %w", err)
		}
		if !end.After(start) {
			return nil, nil, fmt.Errorf("end_date must be after start_date")
		}

		fact, err := gateway.Fetch(ctx, g, op, gateway.Query{Party: party, Window: models.Window{Start: start, End: end}})
		if err != nil {
			return nil, nil, err
		}
		data, err := json.Marshal(fact.Metrics)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil, nil
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}
