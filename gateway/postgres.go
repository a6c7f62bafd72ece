package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"playforge/models"
	"playforge/utils"
)

// NotifyChannel is the LISTEN/NOTIFY channel every instance relays writes on.
const NotifyChannel = "playforge_changes"

// Long text columns are left out of notify payloads; postgres caps a payload
// at 8000 bytes and subscribers only filter on key columns.
const maxNotifyString = 256

// PostgresGateway talks to the hosted database through gorm. Writes are
// published to the in-process Hub and broadcast with pg_notify so other
// instances (running a PGListener) see them too.
type PostgresGateway struct {
	*Hub

	db     *gorm.DB
	schema Schema
	origin string
	now    func() time.Time
}

// OpenPostgres connects, migrates every model and installs the cascade
// foreign keys described by DefaultSchema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresGateway, error) {
	gormLogger := logger.New(
		utils.Log().WithField("component", "gorm"),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	g := NewPostgresGateway(db, DefaultSchema)
	if err := g.Migrate(ctx); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return g, nil
}

func NewPostgresGateway(db *gorm.DB, schema Schema) *PostgresGateway {
	if schema == nil {
		schema = DefaultSchema
	}
	return &PostgresGateway{
		Hub:    NewHub(),
		db:     db,
		schema: schema,
		origin: uuid.NewString(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Origin identifies this instance in notify payloads.
func (g *PostgresGateway) Origin() string { return g.origin }

func (g *PostgresGateway) Migrate(ctx context.Context) error {
	db := g.db.WithContext(ctx)
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	for parent, children := range g.schema {
		for _, c := range children {
			name := fmt.Sprintf("fk_%s_%s", c.Table, c.ForeignKey)
			if db.Migrator().HasConstraint(c.Table, name) {
				continue
			}
			err := db.Exec(
				"ALTER TABLE ? ADD CONSTRAINT ? FOREIGN KEY (?) REFERENCES ?(id) ON DELETE CASCADE",
				clause.Table{Name: c.Table},
				clause.Column{Name: name},
				clause.Column{Name: c.ForeignKey},
				clause.Table{Name: parent},
			).Error
			if err != nil {
				return fmt.Errorf("failed to add constraint %s: %w", name, err)
			}
		}
	}
	return nil
}

func (g *PostgresGateway) List(ctx context.Context, table string, filter Filter, order ...Order) ([]Row, error) {
	q := g.db.WithContext(ctx).Table(table)
	if len(filter) > 0 {
		q = q.Where(map[string]interface{}(filter))
	}
	for _, o := range order {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Field}, Desc: o.Desc})
	}

	var found []map[string]interface{}
	if err := q.Find(&found).Error; err != nil {
		return nil, remoteErr("list", table, err)
	}

	rows := make([]Row, 0, len(found))
	for _, r := range found {
		rows = append(rows, Row(r))
	}
	return rows, nil
}

func (g *PostgresGateway) Get(ctx context.Context, table, id string) (Row, error) {
	var found []map[string]interface{}
	err := g.db.WithContext(ctx).Table(table).Where("id = ?", id).Limit(1).Find(&found).Error
	if err != nil {
		return nil, remoteErr("get", table, err)
	}
	if len(found) == 0 {
		return nil, notFound("get", table, id)
	}
	return Row(found[0]), nil
}

func (g *PostgresGateway) Insert(ctx context.Context, table string, row Row) (Row, error) {
	created := stampInsert(row, uuid.NewString(), g.now())
	if err := g.db.WithContext(ctx).Table(table).Create(map[string]interface{}(created)).Error; err != nil {
		return nil, remoteErr("insert", table, err)
	}

	g.emit(ctx, ChangeEvent{Table: table, Type: ChangeInsert, Record: created})
	return copyRow(created), nil
}

func (g *PostgresGateway) Update(ctx context.Context, table, id string, fields Row) (Row, error) {
	set := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		if k == "id" {
			continue
		}
		set[k] = v
	}
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = g.now()
	}

	res := g.db.WithContext(ctx).Table(table).Where("id = ?", id).Updates(set)
	if res.Error != nil {
		return nil, remoteErr("update", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, notFound("update", table, id)
	}

	updated, err := g.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	g.emit(ctx, ChangeEvent{Table: table, Type: ChangeUpdate, Record: updated})
	return updated, nil
}

// Delete relies on ON DELETE CASCADE for child rows. Children are reported
// with an unknown record since the database does not hand them back.
func (g *PostgresGateway) Delete(ctx context.Context, table, id string) error {
	existing, err := g.Get(ctx, table, id)
	if err != nil {
		return err
	}

	res := g.db.WithContext(ctx).Exec("DELETE FROM ? WHERE id = ?", clause.Table{Name: table}, id)
	if res.Error != nil {
		return remoteErr("delete", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("delete", table, id)
	}

	for _, child := range g.schema.descendants(table) {
		g.emit(ctx, ChangeEvent{Table: child, Type: ChangeDelete})
	}
	g.emit(ctx, ChangeEvent{Table: table, Type: ChangeDelete, Record: existing})
	return nil
}

type notifyPayload struct {
	Origin string     `json:"origin"`
	Table  string     `json:"table"`
	Type   ChangeType `json:"type"`
	Record Row        `json:"record,omitempty"`
}

func (g *PostgresGateway) emit(ctx context.Context, ev ChangeEvent) {
	ev.At = g.now()
	g.Publish(ev)

	payload, err := json.Marshal(notifyPayload{
		Origin: g.origin,
		Table:  ev.Table,
		Type:   ev.Type,
		Record: notifyRecord(ev.Record),
	})
	if err != nil {
		utils.LogError("Failed to encode change notification", err)
		return
	}
	if err := g.db.WithContext(context.WithoutCancel(ctx)).Exec("SELECT pg_notify(?, ?)", NotifyChannel, string(payload)).Error; err != nil {
		utils.LogError(fmt.Sprintf("Failed to broadcast %s change on %s", ev.Type, ev.Table), err)
	}
}

func notifyRecord(record Row) Row {
	if record == nil {
		return nil
	}
	out := make(Row, len(record))
	for k, v := range record {
		if s, ok := v.(string); ok && len(s) > maxNotifyString {
			continue
		}
		out[k] = v
	}
	return out
}

func (g *PostgresGateway) Close(ctx context.Context) error {
	g.Hub.Close()
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
