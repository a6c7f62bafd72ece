package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"playforge/utils"
)

// MongoGateway stores each table in a collection of the same name. Rows
// keep their string id in _id. Change streams require a replica set.
type MongoGateway struct {
	client *mongo.Client
	db     *mongo.Database
	schema Schema
	now    func() time.Time

	streamBackoff time.Duration
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoGateway, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return NewMongoGateway(client, client.Database(database), DefaultSchema), nil
}

func NewMongoGateway(client *mongo.Client, db *mongo.Database, schema Schema) *MongoGateway {
	if schema == nil {
		schema = DefaultSchema
	}
	return &MongoGateway{
		client: client,
		db:     db,
		schema: schema,
		now:    func() time.Time { return time.Now().UTC() },

		streamBackoff: 2 * time.Second,
	}
}

func toDocument(row Row) bson.M {
	doc := make(bson.M, len(row))
	for k, v := range row {
		if k == "id" {
			doc["_id"] = v
			continue
		}
		doc[k] = v
	}
	return doc
}

func fromDocument(doc bson.M) Row {
	if doc == nil {
		return nil
	}
	row := make(Row, len(doc))
	for k, v := range doc {
		if k == "_id" {
			row["id"] = v
			continue
		}
		row[k] = v
	}
	return row
}

func toQuery(filter Filter) bson.M {
	q := bson.M{}
	for k, v := range filter {
		if k == "id" {
			k = "_id"
		}
		q[k] = v
	}
	return q
}

func (g *MongoGateway) List(ctx context.Context, table string, filter Filter, order ...Order) ([]Row, error) {
	opts := options.Find()
	if len(order) > 0 {
		sort := bson.D{}
		for _, o := range order {
			dir := 1
			if o.Desc {
				dir = -1
			}
			field := o.Field
			if field == "id" {
				field = "_id"
			}
			sort = append(sort, bson.E{Key: field, Value: dir})
		}
		opts.SetSort(sort)
	}

	cursor, err := g.db.Collection(table).Find(ctx, toQuery(filter), opts)
	if err != nil {
		return nil, remoteErr("list", table, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, remoteErr("list", table, err)
	}

	rows := make([]Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, fromDocument(doc))
	}
	return rows, nil
}

func (g *MongoGateway) Get(ctx context.Context, table, id string) (Row, error) {
	var doc bson.M
	err := g.db.Collection(table).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("get", table, id)
	}
	if err != nil {
		return nil, remoteErr("get", table, err)
	}
	return fromDocument(doc), nil
}

func (g *MongoGateway) Insert(ctx context.Context, table string, row Row) (Row, error) {
	created := stampInsert(row, uuid.NewString(), g.now())
	if _, err := g.db.Collection(table).InsertOne(ctx, toDocument(created)); err != nil {
		return nil, remoteErr("insert", table, err)
	}
	return created, nil
}

func (g *MongoGateway) Update(ctx context.Context, table, id string, fields Row) (Row, error) {
	set := bson.M{}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		set[k] = v
	}
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = g.now()
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bson.M
	err := g.db.Collection(table).FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("update", table, id)
	}
	if err != nil {
		return nil, remoteErr("update", table, err)
	}
	return fromDocument(doc), nil
}

// Delete removes the row and then its descendants, since collections carry
// no foreign keys.
func (g *MongoGateway) Delete(ctx context.Context, table, id string) error {
	res, err := g.db.Collection(table).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return remoteErr("delete", table, err)
	}
	if res.DeletedCount == 0 {
		return notFound("delete", table, id)
	}
	if err := g.deleteChildren(ctx, table, id); err != nil {
		return remoteErr("delete", table, err)
	}
	return nil
}

func (g *MongoGateway) deleteChildren(ctx context.Context, table, id string) error {
	for _, c := range g.schema[table] {
		coll := g.db.Collection(c.Table)
		filter := bson.M{c.ForeignKey: id}

		// Grandchildren need the child ids before the children disappear.
		if len(g.schema[c.Table]) > 0 {
			cursor, err := coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
			if err != nil {
				return fmt.Errorf("find %s children: %w", c.Table, err)
			}
			var children []struct {
				ID string `bson:"_id"`
			}
			if err := cursor.All(ctx, &children); err != nil {
				return fmt.Errorf("decode %s children: %w", c.Table, err)
			}
			for _, child := range children {
				if err := g.deleteChildren(ctx, c.Table, child.ID); err != nil {
					return err
				}
			}
		}

		if _, err := coll.DeleteMany(ctx, filter); err != nil {
			return fmt.Errorf("delete %s children: %w", c.Table, err)
		}
	}
	return nil
}

type changeDocument struct {
	OperationType string              `bson:"operationType"`
	FullDocument  bson.M              `bson:"fullDocument"`
	ClusterTime   primitive.Timestamp `bson:"clusterTime"`
}

// Subscribe opens a change stream on the table's collection. Deletes carry
// no document, so they bypass the filter.
func (g *MongoGateway) Subscribe(ctx context.Context, table string, filter *Eq, onChange func(ChangeEvent)) (Subscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}}}},
	}
	if filter != nil {
		field := filter.Field
		if field == "id" {
			field = "_id"
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"fullDocument." + field: filter.Value},
			bson.M{"operationType": "delete"},
		}}}})
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	open := func(ctx context.Context, resumeAfter bson.Raw) (changeCursor, error) {
		return g.openStream(ctx, table, pipeline, resumeAfter)
	}
	stream, err := open(streamCtx, nil)
	if err != nil {
		cancel()
		return nil, remoteErr("subscribe", table, err)
	}

	sub := &streamSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		follow(streamCtx, stream, table, open, g.streamBackoff, g.now, onChange)
	}()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (g *MongoGateway) openStream(ctx context.Context, table string, pipeline mongo.Pipeline, resumeAfter bson.Raw) (*mongo.ChangeStream, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resumeAfter != nil {
		opts.SetResumeAfter(resumeAfter)
	}
	return g.db.Collection(table).Watch(ctx, pipeline, opts)
}

// changeCursor is the part of *mongo.ChangeStream the relay loop uses.
type changeCursor interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	ResumeToken() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// follow delivers events until ctx ends. When the stream fails it is
// reopened after a pause, resuming from the last seen event when the server
// still has it, and a ChangeResync event tells the handler to refetch.
func follow(ctx context.Context, stream changeCursor, table string, open func(context.Context, bson.Raw) (changeCursor, error), backoff time.Duration, now func() time.Time, onChange func(ChangeEvent)) {
	log := utils.Component("mongo_stream").WithField("table", table)
	var resumeToken bson.Raw

	for {
		if stream != nil {
			err := relay(ctx, stream, table, onChange, &resumeToken)
			_ = stream.Close(context.Background())
			stream = nil
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warnf("Change stream stopped, reopening in %v", backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		reopened, err := open(ctx, resumeToken)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// The token may have rolled off the oplog; start fresh next time.
			log.WithError(err).Warn("Failed to reopen change stream")
			resumeToken = nil
			continue
		}
		stream = reopened
		log.Info("Change stream reopened")
		onChange(ChangeEvent{Table: table, Type: ChangeResync, At: now()})
	}
}

// relay reads stream until it ends and returns the reason.
func relay(ctx context.Context, stream changeCursor, table string, onChange func(ChangeEvent), resumeToken *bson.Raw) error {
	for stream.Next(ctx) {
		*resumeToken = stream.ResumeToken()

		var change changeDocument
		if err := stream.Decode(&change); err != nil {
			utils.Component("mongo_stream").WithField("table", table).WithError(err).Warn("Skipping undecodable change")
			continue
		}
		ev := ChangeEvent{Table: table, Record: fromDocument(change.FullDocument), At: time.Now().UTC()}
		switch change.OperationType {
		case "insert":
			ev.Type = ChangeInsert
		case "delete":
			ev.Type = ChangeDelete
		default:
			ev.Type = ChangeUpdate
		}
		if change.ClusterTime.T != 0 {
			ev.At = time.Unix(int64(change.ClusterTime.T), 0).UTC()
		}
		onChange(ev)
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return errors.New("change stream closed")
}

type streamSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *streamSubscription) Unsubscribe() {
	s.cancel()
}

func (g *MongoGateway) Close(ctx context.Context) error {
	if g.client == nil {
		return nil
	}
	return g.client.Disconnect(ctx)
}
