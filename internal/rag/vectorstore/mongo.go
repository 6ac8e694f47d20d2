package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"ragcore/internal/apperr"
)

// MongoStore implements the cloud vector backend against MongoDB Atlas's
// $vectorSearch, using one collection per logical vector-store collection
// and one Atlas Search index per collection named after indexName.
type MongoStore struct {
	client    *mongo.Client
	db        *mongo.Database
	indexName string
}

type mongoPoint struct {
	ID       string            `bson:"_id"`
	Vector   []float32         `bson:"vector"`
	Metadata map[string]string `bson:"metadata"`
}

// NewMongoStore connects to uri and scopes every operation to database.
// indexName names the Atlas Search vector index EnsureCollection creates on
// each collection.
func NewMongoStore(ctx context.Context, uri, database, indexName string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database), indexName: indexName}, nil
}

// EnsureCollection creates the collection if missing and creates (or
// leaves in place) an Atlas Search vector index on the "vector" field,
// polling until the index reports READY so a Search call right after
// ingestion does not miss newly upserted points.
func (m *MongoStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	names, err := m.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "list mongo collections", err)
	}
	if len(names) == 0 {
		if err := m.db.CreateCollection(ctx, collection); err != nil {
			return apperr.Wrap(apperr.BackendUnavailable, "create mongo collection", err)
		}
	}

	coll := m.db.Collection(collection)
	existing, err := coll.SearchIndexes().List(ctx, options.SearchIndexes().SetName(m.indexName))
	if err == nil {
		var docs []bson.M
		if decodeErr := existing.All(ctx, &docs); decodeErr == nil && len(docs) > 0 {
			return m.waitForIndexReady(ctx, coll)
		}
	}

	definition := bson.D{
		{Key: "fields", Value: bson.A{
			bson.D{
				{Key: "type", Value: "vector"},
				{Key: "path", Value: "vector"},
				{Key: "numDimensions", Value: dimension},
				{Key: "similarity", Value: "cosine"},
			},
		}},
	}
	model := mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(m.indexName).SetType("vectorSearch"),
	}
	if _, err := coll.SearchIndexes().CreateOne(ctx, model); err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "create mongo vector index", err)
	}
	return m.waitForIndexReady(ctx, coll)
}

// waitForIndexReady polls the named search index until Atlas reports it
// queryable, bounded so a misconfigured cluster fails the ingestion step
// instead of hanging forever.
func (m *MongoStore) waitForIndexReady(ctx context.Context, coll *mongo.Collection) error {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		cursor, err := coll.SearchIndexes().List(ctx, options.SearchIndexes().SetName(m.indexName))
		if err != nil {
			return apperr.Wrap(apperr.BackendUnavailable, "poll mongo vector index", err)
		}
		var docs []bson.M
		if err := cursor.All(ctx, &docs); err != nil {
			return apperr.Wrap(apperr.BackendUnavailable, "poll mongo vector index", err)
		}
		for _, d := range docs {
			if status, _ := d["status"].(string); status == "READY" {
				return nil
			}
			if queryable, ok := d["queryable"].(bool); ok && queryable {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return apperr.New(apperr.BackendUnavailable, "mongo vector index did not become queryable in time")
}

func (m *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "list mongo collections", err)
	}
	return names, nil
}

func (m *MongoStore) DeleteCollection(ctx context.Context, collection string) error {
	if err := m.db.Collection(collection).Drop(ctx); err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "drop mongo collection", err)
	}
	return nil
}

func (m *MongoStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	coll := m.db.Collection(collection)
	for _, p := range points {
		doc := mongoPoint{ID: p.ID, Vector: p.Vector, Metadata: p.Metadata}
		_, err := coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: p.ID}}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return apperr.Wrap(apperr.BackendUnavailable, "upsert mongo point", err)
		}
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := m.db.Collection(collection).DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "delete mongo points", err)
	}
	return nil
}

func (m *MongoStore) Search(ctx context.Context, collection string, vector []float32, k int, minScore float64) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: m.indexName},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: k * 10},
			{Key: "limit", Value: k},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "metadata", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}
	cursor, err := m.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "mongo vector search", err)
	}
	defer cursor.Close(ctx)

	var out []SearchResult
	for cursor.Next(ctx) {
		var doc struct {
			ID       string            `bson:"_id"`
			Metadata map[string]string `bson:"metadata"`
			Score    float64           `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "decode mongo search hit", err)
		}
		if doc.Score < minScore {
			continue
		}
		out = append(out, SearchResult{ID: doc.ID, Score: doc.Score, Metadata: doc.Metadata})
	}
	return out, cursor.Err()
}

func (m *MongoStore) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "mongo ping", err)
	}
	return nil
}

func (m *MongoStore) Close() error {
	return m.client.Disconnect(context.Background())
}
