package documents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoDocument struct {
	ID             string     `bson:"_id"`
	OrganizationID string     `bson:"organization_id"`
	Title          string     `bson:"title"`
	Status         string     `bson:"status"`
	Content        string     `bson:"content"`
	Deadline       *time.Time `bson:"deadline,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func toMongo(d *Document) mongoDocument {
	return mongoDocument{
		ID:             d.ID,
		OrganizationID: d.OrganizationID,
		Title:          d.Title,
		Status:         string(d.Status),
		Content:        d.Content,
		Deadline:       d.Deadline,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (m *mongoDocument) toDocument() *Document {
	d := &Document{
		ID:             m.ID,
		OrganizationID: m.OrganizationID,
		Title:          m.Title,
		Status:         Status(m.Status),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
	if m.Deadline != nil {
		t := m.Deadline.UTC()
		d.Deadline = &t
	}
	return d
}

// MongoDBStore stores documents in MongoDB.
type MongoDBStore struct {
	collection *mongo.Collection
}

// NewMongoDBStore creates collection indexes if needed.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	coll := database.Collection("documents")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "deadline", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create documents indexes: %w", err)
	}

	return &MongoDBStore{collection: coll}, nil
}

// Create inserts a new document.
func (s *MongoDBStore) Create(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if _, err := s.collection.InsertOne(ctx, toMongo(doc)); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get returns a document by id.
func (s *MongoDBStore) Get(ctx context.Context, id string) (*Document, error) {
	var m mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query document: %w", err)
	}
	return m.toDocument(), nil
}

// List returns matching documents ordered by updated_at desc, id desc.
func (s *MongoDBStore) List(ctx context.Context, params ListParams) ([]*Document, error) {
	limit := normalizeLimit(params.Limit)

	filter := bson.M{}
	if len(params.Statuses) > 0 {
		filter["status"] = bson.M{"$in": statusStrings(params.Statuses)}
	}
	if params.DueBefore != nil {
		filter["deadline"] = bson.M{"$lte": *params.DueBefore}
	}
	if params.Query != "" {
		re := bson.Regex{Pattern: regexp.QuoteMeta(params.Query), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"content": re},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*Document, 0, limit)
	for cursor.Next(ctx) {
		var m mongoDocument
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		items = append(items, m.toDocument())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents cursor: %w", err)
	}
	return items, nil
}

// Update replaces a stored document, keeping its original creation time.
func (s *MongoDBStore) Update(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	var existing mongoDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": doc.ID}).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("query document: %w", err)
	}

	replacement := toMongo(doc)
	replacement.CreatedAt = existing.CreatedAt
	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, replacement)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *MongoDBStore) Delete(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close is a no-op; Mongo client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
