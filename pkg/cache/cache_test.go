package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/sqlbridge/pkg/adapters"
	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
	"github.com/ruslano69/sqlbridge/pkg/resilience"
	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

type stubSource struct {
	dialect tsql.Dialect
	calls   int
	result  *adapters.Result
	err     error
}

func (s *stubSource) Dialect() tsql.Dialect { return s.dialect }

func (s *stubSource) Query(ctx context.Context, template string, params tsql.Params) (*adapters.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newCache(t *testing.T, src Source, opts ...Option) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c, err := New(client, src, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, mr
}

func userResult() *adapters.Result {
	return &adapters.Result{
		Rows: []adapters.Row{
			{"id": int64(7), "name": "alice", "balance": decimal.RequireFromString("12.50")},
		},
		RowCount: 1,
		Raw:      "driver specific",
	}
}

const userQuery = "SELECT TOP 1 id, name, balance FROM Users WHERE id = @id"

func TestCache_HitAfterMiss(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	c, mr := newCache(t, src, WithTTL(time.Minute))
	ctx := context.Background()

	first, err := c.Query(ctx, userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Same(t, src.result, first)

	second, err := c.Query(ctx, userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	require.Len(t, second.Rows, 1)
	assert.Equal(t, int64(1), second.RowCount)
	assert.Nil(t, second.Raw)
	row := second.First()
	assert.Equal(t, json.Number("7"), row["id"])
	assert.Equal(t, "alice", row["name"])
	assert.Equal(t, "12.5", row["balance"])

	key := c.Key(userQuery, tsql.Params{"id": 7})
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestCache_EntryIsCompressedJSON(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	c, mr := newCache(t, src)

	_, err := c.Query(context.Background(), userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)

	raw, err := mr.Get(c.Key(userQuery, tsql.Params{"id": 7}))
	require.NoError(t, err)
	assert.False(t, strings.Contains(raw, "alice"), "payload should not be plain JSON")

	data, err := c.decoder.DecodeAll([]byte(raw), nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte(`{"rows":[`)))
	assert.Contains(t, string(data), `"rowCount":1`)
}

func TestCache_Expiry(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	c, mr := newCache(t, src, WithTTL(30*time.Second))
	ctx := context.Background()

	_, err := c.Query(ctx, userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	_, err = c.Query(ctx, userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCache_QueryTTLBypass(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	c, mr := newCache(t, src)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.QueryTTL(ctx, 0, userQuery, tsql.Params{"id": 7})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, src.calls)
	assert.Empty(t, mr.Keys())
}

func TestCache_Key(t *testing.T) {
	pg := &stubSource{dialect: tsql.Postgres}
	ms := &stubSource{dialect: tsql.SQLServer}
	c, _ := newCache(t, pg, WithPrefix("chat"))
	other, _ := newCache(t, ms, WithPrefix("chat"))

	a := c.Key(userQuery, tsql.Params{"id": 7, "name": "x"})
	b := c.Key(userQuery, tsql.Params{"name": "x", "id": 7})
	assert.Equal(t, a, b, "parameter order must not matter")
	assert.True(t, strings.HasPrefix(a, "chat:"))
	assert.Len(t, strings.TrimPrefix(a, "chat:"), 32)

	assert.NotEqual(t, a, c.Key(userQuery, tsql.Params{"id": 8, "name": "x"}))
	assert.NotEqual(t, c.Key(userQuery, tsql.Params{"id": 7}), c.Key(userQuery, tsql.Params{"id": "7"}),
		"values of different types must not collide")
	assert.NotEqual(t, a, other.Key(userQuery, tsql.Params{"id": 7, "name": "x"}),
		"dialects must not share entries")
}

func TestCache_Invalidate(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	c, mr := newCache(t, src)
	ctx := context.Background()

	_, err := c.Query(ctx, userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, userQuery, tsql.Params{"id": 7}))
	assert.False(t, mr.Exists(c.Key(userQuery, tsql.Params{"id": 7})))

	_, err = c.Query(ctx, userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, err: sqlerr.MissingParameter("id")}
	c, mr := newCache(t, src)

	_, err := c.Query(context.Background(), userQuery, nil)
	require.Error(t, err)
	assert.True(t, sqlerr.Is(err, sqlerr.CodeMissingParameter))
	assert.Empty(t, mr.Keys())
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	var logs bytes.Buffer
	c, mr := newCache(t, src, WithLogger(zerolog.New(&logs)))
	mr.Close()

	res, err := c.Query(context.Background(), userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Same(t, src.result, res)
	assert.Contains(t, logs.String(), "cache lookup failed")
	assert.Contains(t, logs.String(), "cache store failed")

	err = c.Invalidate(context.Background(), userQuery, tsql.Params{"id": 7})
	assert.Error(t, err)
}

func TestCache_BrokenEntryFallsThrough(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	c, mr := newCache(t, src)
	key := c.Key(userQuery, tsql.Params{"id": 7})
	require.NoError(t, mr.Set(key, "not zstd"))

	res, err := c.Query(context.Background(), userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Same(t, src.result, res)
	assert.Equal(t, 1, src.calls)

	// the broken entry was replaced by a good one
	_, err = c.Query(context.Background(), userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestCache_EmptyResult(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: &adapters.Result{Rows: []adapters.Row{}, RowCount: 3}}
	c, _ := newCache(t, src)
	ctx := context.Background()

	_, err := c.Query(ctx, "SELECT id FROM Users WHERE active = 0", nil)
	require.NoError(t, err)
	res, err := c.Query(ctx, "SELECT id FROM Users WHERE active = 0", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)

	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
	assert.Equal(t, int64(3), res.RowCount)
}

func TestCache_WritesAlwaysReachDatabase(t *testing.T) {
	writes := []string{
		"UPDATE users SET balance = balance - 10 WHERE id = @id",
		"INSERT INTO messages (chat_id, content) OUTPUT INSERTED.* VALUES (@id, 'hi')",
		"DELETE FROM sessions WHERE user_id = @id",
		"WITH stale AS (SELECT id FROM sessions) DELETE FROM sessions WHERE id IN (SELECT id FROM stale)",
		"SELECT * INTO #copy FROM users WHERE id = @id",
		"EXEC dbo.TouchUser @id",
	}
	for _, query := range writes {
		t.Run(query, func(t *testing.T) {
			src := &stubSource{dialect: tsql.Postgres, result: &adapters.Result{Rows: []adapters.Row{}, RowCount: 1}}
			c, mr := newCache(t, src, WithTTL(time.Minute))

			for i := 0; i < 3; i++ {
				res, err := c.Query(context.Background(), query, tsql.Params{"id": 1})
				require.NoError(t, err)
				assert.Same(t, src.result, res)
			}
			assert.Equal(t, 3, src.calls)
			assert.Empty(t, mr.Keys())
			assert.False(t, c.Cacheable(query))
		})
	}
}

func TestCache_Cacheable(t *testing.T) {
	c, _ := newCache(t, &stubSource{dialect: tsql.Postgres})

	assert.True(t, c.Cacheable(userQuery))
	assert.True(t, c.Cacheable("WITH last AS (SELECT TOP 1 * FROM messages ORDER BY id DESC) SELECT * FROM last"))
	assert.True(t, c.Cacheable("SELECT 'UPDATE' AS word, t.[delete] FROM t"))
	assert.False(t, c.Cacheable("SELECT 1; DELETE FROM t"))
}

func TestCache_BreakerSkipsRedisWhileDown(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	var logs bytes.Buffer
	c, mr := newCache(t, src,
		WithLogger(zerolog.New(&logs)),
		WithBreaker(resilience.Config{Name: "redis", MaxFailures: 1, Timeout: time.Minute}))
	mr.Close()
	ctx := context.Background()

	_, err := c.Query(ctx, userQuery, tsql.Params{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, resilience.StateOpen, c.breaker.State())

	logs.Reset()
	for i := 0; i < 3; i++ {
		res, err := c.Query(ctx, userQuery, tsql.Params{"id": 7})
		require.NoError(t, err)
		assert.Same(t, src.result, res)
	}
	assert.Equal(t, 4, src.calls)
	assert.Empty(t, logs.String(), "an open breaker should not touch Redis")
}

func TestCache_BreakerIgnoresMissesAndBrokenEntries(t *testing.T) {
	src := &stubSource{dialect: tsql.Postgres, result: userResult()}
	c, mr := newCache(t, src, WithBreaker(resilience.Config{MaxFailures: 1, Timeout: time.Minute}))
	ctx := context.Background()

	require.NoError(t, mr.Set(c.Key(userQuery, tsql.Params{"id": 1}), "garbage"))
	_, err := c.Query(ctx, userQuery, tsql.Params{"id": 1})
	require.NoError(t, err)
	_, err = c.Query(ctx, userQuery, tsql.Params{"id": 2})
	require.NoError(t, err)

	assert.Equal(t, resilience.StateClosed, c.breaker.State())
}

func TestNew_InvalidBreaker(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	_, err := New(client, &stubSource{dialect: tsql.Postgres}, WithBreaker(resilience.Config{}))
	assert.ErrorContains(t, err, "invalid circuit breaker config")
}
