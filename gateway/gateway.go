// Package gateway is the data-access boundary for every table the site reads
// or writes. Callers get table-like collections with equality filters and
// ordering, plus a per-table change subscription.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"playforge/models"
)

// Row is a field-named record as exchanged with the backing store.
type Row = bson.M

// Filter holds equality predicates; all of them must match.
type Filter map[string]interface{}

// Order sorts a List result by one field.
type Order struct {
	Field string
	Desc  bool
}

// Asc and Desc build single-field orderings.
func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Eq is the single equality predicate a subscription may be narrowed by.
type Eq struct {
	Field string
	Value interface{}
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	// ChangeResync follows a lost and restored notification feed. It carries
	// no record; changes may have been missed, so handlers should refetch.
	ChangeResync ChangeType = "RESYNC"
)

// ChangeEvent is delivered to subscribers after a write lands. Record is nil
// when the store cannot tell which row was removed.
type ChangeEvent struct {
	Table  string     `json:"table"`
	Type   ChangeType `json:"type"`
	Record Row        `json:"record,omitempty"`
	At     time.Time  `json:"at"`
}

// Subscription stops delivery when unsubscribed.
type Subscription interface {
	Unsubscribe()
}

// Subscriber is the notification half of a Gateway.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, filter *Eq, onChange func(ChangeEvent)) (Subscription, error)
}

// Gateway is implemented by every storage driver. Implementations never retry;
// every failure is reported as a *RemoteError.
type Gateway interface {
	Subscriber

	List(ctx context.Context, table string, filter Filter, order ...Order) ([]Row, error)
	Get(ctx context.Context, table, id string) (Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, fields Row) (Row, error)
	Delete(ctx context.Context, table, id string) error
	Close(ctx context.Context) error
}

var ErrNotFound = errors.New("record not found")

// RemoteError wraps any failed gateway call.
type RemoteError struct {
	Op      string
	Table   string
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Table, e.Message)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func remoteErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Table: table, Message: err.Error(), Err: err}
}

func notFound(op, table, id string) error {
	return &RemoteError{
		Op:      op,
		Table:   table,
		Message: fmt.Sprintf("%s not found", id),
		Err:     ErrNotFound,
	}
}

// IsNotFound reports whether err is a gateway miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Decode converts a wire row into a typed record using its bson tags.
func Decode(row Row, out interface{}) error {
	raw, err := bson.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// DecodeAll decodes rows into a slice of T.
func DecodeAll[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := Decode(row, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Cascade names a child table removed together with its parent row.
type Cascade struct {
	Table      string
	ForeignKey string
}

// Schema maps a parent table to the children deleted with it.
type Schema map[string][]Cascade

// DefaultSchema mirrors the foreign keys of the hosted database.
var DefaultSchema = Schema{
	models.TableFolders: {
		{Table: models.TablePages, ForeignKey: "folder_id"},
	},
	models.TablePolls: {
		{Table: models.TablePollOptions, ForeignKey: "poll_id"},
	},
	models.TableGames: {
		{Table: models.TableGameMedia, ForeignKey: "game_id"},
		{Table: models.TableGameFunding, ForeignKey: "game_id"},
		{Table: models.TablePolls, ForeignKey: "game_id"},
	},
}

// descendants lists every table reachable from table through cascades.
func (s Schema) descendants(table string) []string {
	var out []string
	for _, c := range s[table] {
		out = append(out, c.Table)
		out = append(out, s.descendants(c.Table)...)
	}
	return out
}

func stampInsert(row Row, id string, now time.Time) Row {
	out := make(Row, len(row)+3)
	for k, v := range row {
		out[k] = v
	}
	if v, ok := out["id"].(string); !ok || v == "" {
		out["id"] = id
	}
	if _, ok := out["created_at"]; !ok {
		out["created_at"] = now
	}
	if _, ok := out["updated_at"]; !ok {
		out["updated_at"] = now
	}
	return out
}
