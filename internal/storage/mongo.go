package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore keeps one collection per dataset.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = "Blizzard"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

// DropDataset drops the dataset's collection. The driver treats a missing
// collection as success.
func (s *MongoStore) DropDataset(ctx context.Context, name string) error {
	if err := s.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

// mongoBatch holds records already decoded into BSON documents.
type mongoBatch struct {
	store *MongoStore
	name  string
	docs  []interface{}
}

func (b *mongoBatch) Dataset() string { return b.name }
func (b *mongoBatch) Len() int        { return len(b.docs) }

// Prepare decodes every record into a BSON document. A record that is not a
// JSON object fails the whole batch.
func (s *MongoStore) Prepare(name string, records []json.RawMessage) (Batch, error) {
	docs, err := toDocuments(records)
	if err != nil {
		return nil, fmt.Errorf("convert records for %s: %w", name, err)
	}
	return &mongoBatch{store: s, name: name, docs: docs}, nil
}

// BulkInsert inserts a prepared batch in one ordered InsertMany. An empty
// batch inserts nothing.
func (s *MongoStore) BulkInsert(ctx context.Context, name string, batch Batch) error {
	b, ok := batch.(*mongoBatch)
	if !ok || b.store != s || b.name != name {
		return fmt.Errorf("insert into %s: %w", name, ErrBatchMismatch)
	}
	if len(b.docs) == 0 {
		return nil
	}

	if _, err := s.db.Collection(name).InsertMany(ctx, b.docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("insert into %s: %w", name, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// toDocuments decodes relaxed extended JSON records into BSON documents,
// preserving field order.
func toDocuments(records []json.RawMessage) ([]interface{}, error) {
	docs := make([]interface{}, len(records))
	for i, rec := range records {
		var doc bson.D
		if err := bson.UnmarshalExtJSON(rec, false, &doc); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		docs[i] = doc
	}
	return docs, nil
}

var _ SnapshotStore = (*MongoStore)(nil)
