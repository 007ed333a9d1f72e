package adapters

import (
	"context"
	"sync"

	"github.com/ruslano69/sqlbridge/pkg/core/tsql"
)

type call struct {
	query string
	args  []any
}

// fakeAdapter records calls and returns canned results.
type fakeAdapter struct {
	mu      sync.Mutex
	dialect tsql.Dialect
	calls   []call
	result  *Result
	err     error
	block   bool

	connectErr error
	pingErr    error
	beginErr   error
	commitErr  error
	connected  Config
	closed     int
	txs        []*fakeTx
}

func newFake(d tsql.Dialect) *fakeAdapter {
	return &fakeAdapter{dialect: d, result: &Result{}}
}

func (f *fakeAdapter) Connect(_ context.Context, cfg Config) error {
	f.connected = cfg
	return f.connectErr
}

func (f *fakeAdapter) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeAdapter) Ping(context.Context) error { return f.pingErr }

func (f *fakeAdapter) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{query, args})
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeAdapter) Execute(ctx context.Context, procedure string, args ...any) (*Result, error) {
	return f.Query(ctx, procedure, args...)
}

func (f *fakeAdapter) BeginTx(context.Context) (Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	tx := &fakeTx{adapter: f}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeAdapter) Dialect() tsql.Dialect { return f.dialect }

func (f *fakeAdapter) GetDatabaseVersion(context.Context) (string, error) {
	return "fake 1.0", nil
}

func (f *fakeAdapter) lastCall() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

type fakeTx struct {
	adapter    *fakeAdapter
	queries    []string
	commits    int
	rollbacks  int
	rollbackOK bool
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	t.queries = append(t.queries, query)
	return t.adapter.Query(ctx, query, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.commits++
	return t.adapter.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rollbacks++
	t.rollbackOK = ctx.Err() == nil
	return nil
}
