package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mr-karan/pactwatch/internal/config"
	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/internal/gateway/clickhouse"
	"github.com/mr-karan/pactwatch/internal/gateway/fixture"
	"github.com/mr-karan/pactwatch/internal/gateway/mcpconn"
	"github.com/mr-karan/pactwatch/internal/gateway/sqldb"
)

// BuildRegistry opens every configured backend and applies the domain routes.
// Backends connect lazily; an unreachable one shows up in health checks and
// as unavailable data, not as a startup failure.
func BuildRegistry(ctx context.Context, cfg *config.Config, version string, log *slog.Logger) (*gateway.Registry, error) {
	reg := gateway.NewRegistry(log, cfg.Gateway.FetchTimeout)

	for _, bc := range cfg.Gateway.Backends {
		b, err := openBackend(bc, version, log)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("gateway backend %s: %w", bc.Name, err), reg.Close())
		}
		reg.Register(b)
		log.Info("registered gateway backend", "backend", bc.Name, "kind", bc.Kind)
	}
	if len(cfg.Gateway.Backends) == 0 {
		log.Warn("no gateway backends configured; every check will be skipped as data unavailable")
	}

	domains := make([]string, 0, len(cfg.Gateway.Routes))
	for domain := range cfg.Gateway.Routes {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		if err := reg.Route(domain, cfg.Gateway.Routes[domain]); err != nil {
			return nil, errors.Join(fmt.Errorf("gateway route %s: %w", domain, err), reg.Close())
		}
	}

	for _, h := range reg.Ping(ctx) {
		if !h.Healthy {
			log.Warn("gateway backend unhealthy at startup", "backend", h.Backend, "error", h.Error)
		}
	}
	return reg, nil
}

func openBackend(bc config.BackendConfig, version string, log *slog.Logger) (gateway.Backend, error) {
	switch bc.Kind {
	case config.BackendPostgres, config.BackendMySQL:
		return sqldb.Open(bc, log)
	case config.BackendClickHouse:
		return clickhouse.Open(clickhouse.OptionsFromConfig(bc), log)
	case config.BackendMCP:
		return mcpconn.New(mcpconn.OptionsFromConfig(bc), version, log)
	case config.BackendFixture:
		if bc.FixturePath == "" {
			return fixture.New(bc.Name), nil
		}
		return fixture.Load(bc.Name, bc.FixturePath)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", bc.Kind)
	}
}
