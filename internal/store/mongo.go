package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is the MongoDB-backed document store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to MongoDB with a short dial timeout.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (s *Mongo) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Get fetches a document by its _id.
func (s *Mongo) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransportError{Op: "get", Collection: collection, Err: err}
	}
	return fromBSON(raw), nil
}

// Set replaces the document, creating it when absent.
func (s *Mongo) Set(ctx context.Context, collection, id string, doc Document) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, bson.M(doc), opts)
	if err != nil {
		return &TransportError{Op: "set", Collection: collection, Err: err}
	}
	return nil
}

// Update applies a $set of the given fields.
func (s *Mongo) Update(ctx context.Context, collection, id string, fields Document) error {
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return &TransportError{Op: "update", Collection: collection, Err: err}
	}
	return nil
}

// Increment uses $inc with upsert; zeroInit fields land in $setOnInsert so
// sibling counters start at 0 when the document is first created.
func (s *Mongo) Increment(ctx context.Context, collection, id string, deltas map[string]int64, zeroInit []string) error {
	inc := bson.M{}
	for field, delta := range deltas {
		inc[field] = delta
	}
	update := bson.M{"$inc": inc}
	if len(zeroInit) > 0 {
		onInsert := bson.M{}
		for _, f := range zeroInit {
			onInsert[f] = int64(0)
		}
		update["$setOnInsert"] = onInsert
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, opts)
	if err != nil {
		return &TransportError{Op: "increment", Collection: collection, Err: err}
	}
	return nil
}

// QueryEq finds all documents where field equals value.
func (s *Mongo) QueryEq(ctx context.Context, collection, field string, value any) ([]Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{field: value})
	if err != nil {
		return nil, &TransportError{Op: "query", Collection: collection, Err: err}
	}
	defer cursor.Close(ctx)
	var out []Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, &TransportError{Op: "query", Collection: collection, Err: err}
		}
		out = append(out, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, &TransportError{Op: "query", Collection: collection, Err: err}
	}
	return out, nil
}

// fromBSON converts driver types to the neutral forms the rest of the code
// expects: primitive.DateTime -> time.Time, primitive.A -> []any.
func fromBSON(raw bson.M) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		doc[k] = fromBSONValue(v)
	}
	return doc
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time()
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	case bson.M:
		return map[string]any(fromBSON(t))
	default:
		return v
	}
}
