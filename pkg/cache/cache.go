// Package cache keeps query results in Redis in front of a translating
// Querier.
//
// Entries are keyed by dialect, template text and parameter values, and
// stored as zstd-compressed JSON with a TTL:
//
//	SET  <prefix>:<xxh3-128 hex>  <zstd(JSON{rows,rowCount})>  EX <ttl>
//
// Only read-only statements (a single SELECT or WITH without writes) are
// cached. Anything else, OUTPUT INSERTED included, always reaches the
// database.
//
// Redis is an optimisation only. When it is unreachable or returns a broken
// entry the query goes straight to the database and the problem is logged.
// With WithBreaker, repeated Redis failures stop the cache from calling Redis
// at all until the breaker lets a probe through.
package cache

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/metrics"
	"github.com/ruslano69/sqlbridge/pkg/resilience"
	"github.com/ruslano69/sqlbridge/pkg/security"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "sqlbridge:q"

// Source is what the cache sits in front of. *adapters.DB satisfies it.
type Source interface {
	adapters.Querier
	Dialect() tsql.Dialect
}

// Cache is an adapters.Querier that serves repeated queries from Redis.
type Cache struct {
	client  redis.UniversalClient
	source  Source
	prefix  string
	ttl     time.Duration
	logger  zerolog.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	reads   *security.SQLValidator

	breakerConfig *resilience.Config
	breaker       *resilience.CircuitBreaker
}

// errBrokenEntry marks entries that exist but cannot be decoded. They do not
// count as Redis failures.
var errBrokenEntry = errors.New("broken cache entry")

var (
	_ adapters.Querier = (*Cache)(nil)
	_ Source           = (*adapters.DB)(nil)
)

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL sets the lifetime used by Query.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithLogger sets the logger for degraded lookups.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithBreaker guards Redis calls with a circuit breaker. Misses and broken
// entries do not count as failures.
func WithBreaker(cfg resilience.Config) Option {
	return func(c *Cache) { c.breakerConfig = &cfg }
}

// New wraps source. The Redis client stays owned by the caller.
func New(client redis.UniversalClient, source Source, opts ...Option) (*Cache, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	c := &Cache{
		client:  client,
		source:  source,
		prefix:  DefaultPrefix,
		ttl:     time.Minute,
		logger:  zerolog.Nop(),
		encoder: encoder,
		decoder: decoder,
		reads:   security.NewSQLValidator(true),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.breakerConfig != nil {
		cfg := *c.breakerConfig
		cfg.IsFailure = func(err error) bool {
			return !errors.Is(err, redis.Nil) && !errors.Is(err, errBrokenEntry)
		}
		if c.breaker, err = resilience.New(cfg); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Query returns a cached result for template and params, running the query
// on a miss. The entry lives for the configured TTL.
func (c *Cache) Query(ctx context.Context, template string, params tsql.Params) (*adapters.Result, error) {
	return c.QueryTTL(ctx, c.ttl, template, params)
}

// QueryTTL is Query with an explicit lifetime. A ttl <= 0 or a statement
// that may write bypasses the cache.
//
// Cached results carry Rows and RowCount only. Values come back in their
// JSON form: numbers as json.Number, decimals, UUIDs and times as strings.
func (c *Cache) QueryTTL(ctx context.Context, ttl time.Duration, template string, params tsql.Params) (*adapters.Result, error) {
	if ttl <= 0 {
		return c.source.Query(ctx, template, params)
	}
	if !c.Cacheable(template) {
		metrics.ObserveCacheLookup(metrics.CacheBypass)
		return c.source.Query(ctx, template, params)
	}

	key := c.Key(template, params)
	var cached *adapters.Result
	err := c.guard(ctx, func(ctx context.Context) (err error) {
		cached, err = c.get(ctx, key)
		return err
	})
	switch {
	case err == nil:
		metrics.ObserveCacheLookup(metrics.CacheHit)
		return cached, nil
	case errors.Is(err, redis.Nil):
		metrics.ObserveCacheLookup(metrics.CacheMiss)
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.ObserveCacheLookup(metrics.CacheBypass)
		return c.source.Query(ctx, template, params)
	default:
		metrics.ObserveCacheLookup(metrics.CacheError)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache lookup failed, querying database")
	}

	res, err := c.source.Query(ctx, template, params)
	if err != nil {
		return nil, err
	}

	err = c.guard(ctx, func(ctx context.Context) error {
		return c.set(ctx, key, res, ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache store failed")
	}
	return res, nil
}

// Cacheable reports whether template is a single read-only statement.
func (c *Cache) Cacheable(template string) bool {
	return c.reads.Validate(template) == nil
}

// guard runs fn through the breaker when one is configured.
func (c *Cache) guard(ctx context.Context, fn resilience.ExecuteFunc) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// Invalidate drops the entry for template and params.
func (c *Cache) Invalidate(ctx context.Context, template string, params tsql.Params) error {
	if err := c.client.Del(ctx, c.Key(template, params)).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

// Key returns the Redis key for template and params under the source's
// dialect. Parameter order does not matter.
func (c *Cache) Key(template string, params tsql.Params) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	h := xxh3.New128()
	h.WriteString(string(c.source.Dialect()))
	h.WriteString("\x00")
	h.WriteString(template)
	for _, name := range names {
		v := params[name]
		fmt.Fprintf(h, "\x00%s=%T=%v", name, v, v)
	}
	sum := h.Sum128().Bytes()
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

// Close releases the codecs. It does not close the Redis client.
func (c *Cache) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

func (c *Cache) get(ctx context.Context, key string) (*adapters.Result, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	data, err := c.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", errBrokenEntry, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var res adapters.Result
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", errBrokenEntry, err)
	}
	if res.Rows == nil {
		res.Rows = []adapters.Row{}
	}
	return &res, nil
}

func (c *Cache) set(ctx context.Context, key string, res *adapters.Result, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	payload := c.encoder.EncodeAll(data, nil)
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}
