package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gotest.tools/v3/assert"

	"playforge/gateway"
)

var errInjected = errors.New("injected failure")

// faultyGateway wraps the memory driver and fails selected calls.
type faultyGateway struct {
	*gateway.MemoryGateway

	mu      sync.Mutex
	calls   int
	inserts map[string]int
	// failInsert is consulted before each insert with the table and the
	// 1-based count of inserts into it so far.
	failInsert func(table string, n int) bool
	failDelete func(table string) bool
	failList   func(table string) bool
}

func newFaultyGateway(t *testing.T) *faultyGateway {
	t.Helper()
	mem := gateway.NewMemoryGateway(nil)
	t.Cleanup(func() { _ = mem.Close(context.Background()) })
	return &faultyGateway{MemoryGateway: mem, inserts: make(map[string]int)}
}

func (g *faultyGateway) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	g.mu.Lock()
	g.calls++
	g.inserts[table]++
	n := g.inserts[table]
	fail := g.failInsert != nil && g.failInsert(table, n)
	g.mu.Unlock()

	if fail {
		return nil, &gateway.RemoteError{Op: "insert", Table: table, Message: "injected", Err: errInjected}
	}
	return g.MemoryGateway.Insert(ctx, table, row)
}

func (g *faultyGateway) Delete(ctx context.Context, table, id string) error {
	g.mu.Lock()
	g.calls++
	fail := g.failDelete != nil && g.failDelete(table)
	g.mu.Unlock()

	if fail {
		return &gateway.RemoteError{Op: "delete", Table: table, Message: "injected", Err: errInjected}
	}
	return g.MemoryGateway.Delete(ctx, table, id)
}

func (g *faultyGateway) List(ctx context.Context, table string, filter gateway.Filter, order ...gateway.Order) ([]gateway.Row, error) {
	g.mu.Lock()
	g.calls++
	fail := g.failList != nil && g.failList(table)
	g.mu.Unlock()

	if fail {
		return nil, &gateway.RemoteError{Op: "list", Table: table, Message: "injected", Err: errInjected}
	}
	return g.MemoryGateway.List(ctx, table, filter, order...)
}

func (g *faultyGateway) Get(ctx context.Context, table, id string) (gateway.Row, error) {
	g.record()
	return g.MemoryGateway.Get(ctx, table, id)
}

func (g *faultyGateway) Update(ctx context.Context, table, id string, changes gateway.Row) (gateway.Row, error) {
	g.record()
	return g.MemoryGateway.Update(ctx, table, id, changes)
}

func (g *faultyGateway) record() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
}

// callCount is the number of gateway operations made so far.
func (g *faultyGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *faultyGateway) setListFailure(fn func(table string) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failList = fn
}

func count(t *testing.T, gw gateway.Gateway, table string, filter gateway.Filter) int {
	t.Helper()
	rows, err := gw.List(context.Background(), table, filter)
	assert.NilError(t, err)
	return len(rows)
}
