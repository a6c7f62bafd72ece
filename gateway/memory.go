package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway keeps every table in process. It backs local development
// and the test suites, and applies the same cascade rules as the hosted
// database.
type MemoryGateway struct {
	*Hub

	mu     sync.RWMutex
	tables map[string][]Row
	schema Schema
	now    func() time.Time
}

func NewMemoryGateway(schema Schema) *MemoryGateway {
	if schema == nil {
		schema = DefaultSchema
	}
	return &MemoryGateway{
		Hub:    NewHub(),
		tables: make(map[string][]Row),
		schema: schema,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *MemoryGateway) List(ctx context.Context, table string, filter Filter, order ...Order) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, remoteErr("list", table, err)
	}

	g.mu.RLock()
	var out []Row
	for _, row := range g.tables[table] {
		if matchesFilter(row, filter) {
			out = append(out, copyRow(row))
		}
	}
	g.mu.RUnlock()

	sortRows(out, order)
	return out, nil
}

func (g *MemoryGateway) Get(ctx context.Context, table, id string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, remoteErr("get", table, err)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if i := g.indexOf(table, id); i >= 0 {
		return copyRow(g.tables[table][i]), nil
	}
	return nil, notFound("get", table, id)
}

func (g *MemoryGateway) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, remoteErr("insert", table, err)
	}

	created := stampInsert(row, uuid.NewString(), g.now())

	g.mu.Lock()
	if g.indexOf(table, created["id"].(string)) >= 0 {
		g.mu.Unlock()
		return nil, &RemoteError{Op: "insert", Table: table, Message: "duplicate key value violates unique constraint on id"}
	}
	g.tables[table] = append(g.tables[table], created)
	g.mu.Unlock()

	g.Publish(ChangeEvent{Table: table, Type: ChangeInsert, Record: copyRow(created)})
	return copyRow(created), nil
}

func (g *MemoryGateway) Update(ctx context.Context, table, id string, fields Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, remoteErr("update", table, err)
	}

	g.mu.Lock()
	i := g.indexOf(table, id)
	if i < 0 {
		g.mu.Unlock()
		return nil, notFound("update", table, id)
	}
	updated := copyRow(g.tables[table][i])
	for k, v := range fields {
		if k == "id" {
			continue
		}
		updated[k] = v
	}
	if _, ok := fields["updated_at"]; !ok {
		updated["updated_at"] = g.now()
	}
	g.tables[table][i] = updated
	g.mu.Unlock()

	g.Publish(ChangeEvent{Table: table, Type: ChangeUpdate, Record: copyRow(updated)})
	return copyRow(updated), nil
}

func (g *MemoryGateway) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return remoteErr("delete", table, err)
	}

	g.mu.Lock()
	if g.indexOf(table, id) < 0 {
		g.mu.Unlock()
		return notFound("delete", table, id)
	}
	var events []ChangeEvent
	g.deleteLocked(table, id, &events)
	g.mu.Unlock()

	// Children first, parent last, matching the order a database reports them.
	for i := len(events) - 1; i >= 0; i-- {
		g.Publish(events[i])
	}
	return nil
}

func (g *MemoryGateway) deleteLocked(table, id string, events *[]ChangeEvent) {
	i := g.indexOf(table, id)
	if i < 0 {
		return
	}
	removed := g.tables[table][i]
	g.tables[table] = append(g.tables[table][:i:i], g.tables[table][i+1:]...)
	*events = append(*events, ChangeEvent{Table: table, Type: ChangeDelete, Record: removed, At: g.now()})

	for _, c := range g.schema[table] {
		var childIDs []string
		for _, child := range g.tables[c.Table] {
			if valuesEqual(child[c.ForeignKey], id) {
				childIDs = append(childIDs, child["id"].(string))
			}
		}
		for _, childID := range childIDs {
			g.deleteLocked(c.Table, childID, events)
		}
	}
}

func (g *MemoryGateway) indexOf(table, id string) int {
	for i, row := range g.tables[table] {
		if row["id"] == id {
			return i
		}
	}
	return -1
}

func (g *MemoryGateway) Close(ctx context.Context) error {
	g.Hub.Close()
	return nil
}
