// Package cache is a read-through LiveFact cache in front of a Gateway.
//
// Only successful, validated facts are cached. Any cache failure falls back
// to a direct fetch, so the cache can never turn an outage into a fact.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"

	"github.com/mr-karan/pactwatch/internal/gateway"
	"github.com/mr-karan/pactwatch/pkg/models"
)

const keyPrefix = "pactwatch:fact"

// Store holds serialized facts with a TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore is a Store on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Gateway wraps next with a read-through cache.
type Gateway struct {
	next  gateway.Gateway
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

// New returns a caching gateway.
func New(next gateway.Gateway, store Store, ttl time.Duration, log *slog.Logger) *Gateway {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Gateway{
		next:  next,
		store: store,
		ttl:   ttl,
		log:   log.With("component", "fact_cache"),
	}
}

// Key is the cache key of a query for op.
func Key(op models.Operation, q gateway.Query) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d", keyPrefix, op, q.Party, q.Window.Start.Unix(), q.Window.End.Unix())
}

func (g *Gateway) DiscountData(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return g.fetch(ctx, models.OperationDiscountData, q)
}

func (g *Gateway) CustomerVolume(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return g.fetch(ctx, models.OperationCustomerVolume, q)
}

func (g *Gateway) TransactionActivity(ctx context.Context, q gateway.Query) (*models.LiveFact, error) {
	return g.fetch(ctx, models.OperationTransactionActivity, q)
}

func (g *Gateway) fetch(ctx context.Context, op models.Operation, q gateway.Query) (*models.LiveFact, error) {
	key := Key(op, q)

	if fact, ok := g.lookup(ctx, op, key); ok {
		metrics.GetOrCreateCounter(fmt.Sprintf(`pactwatch_fact_cache_total{operation=%q,result="hit"}`, op)).Inc()
		return fact, nil
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`pactwatch_fact_cache_total{operation=%q,result="miss"}`, op)).Inc()

	fact, err := gateway.Fetch(ctx, g.next, op, q)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(fact)
	if err != nil {
		g.log.Warn("failed to encode fact for cache", "key", key, "error", err)
		return fact, nil
	}
	if err := g.store.Set(ctx, key, raw, g.ttl); err != nil {
		g.log.Warn("failed to write fact cache", "key", key, "error", err)
	}
	return fact, nil
}

// lookup returns a cached fact only if it still passes schema validation.
func (g *Gateway) lookup(ctx context.Context, op models.Operation, key string) (*models.LiveFact, bool) {
	raw, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.log.Warn("fact cache read failed, fetching directly", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var fact models.LiveFact
	if err := json.Unmarshal(raw, &fact); err != nil {
		g.log.Warn("discarding undecodable cached fact", "key", key, "error", err)
		return nil, false
	}
	if err := gateway.Validate(op, &fact); err != nil {
		g.log.Warn("discarding invalid cached fact", "key", key, "error", err)
		return nil, false
	}
	return &fact, true
}
