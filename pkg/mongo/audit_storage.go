package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/elevate/pkg/audit"
)

var (
	_ audit.Storage      = (*AuditStorage)(nil)
	_ audit.BatchStorage = (*AuditStorage)(nil)
)

// AuditStorage writes audit events to a MongoDB collection.
type AuditStorage struct {
	coll *mongo.Collection
}

// NewAuditStorage stores events in coll.
func NewAuditStorage(coll *mongo.Collection) *AuditStorage {
	if coll == nil {
		panic("mongo: collection cannot be nil")
	}
	return &AuditStorage{coll: coll}
}

// EnsureIndexes creates the lookup index on principal and time.
func (s *AuditStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "principal_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("principal_created"),
	})
	return err
}

func (s *AuditStorage) Store(ctx context.Context, e audit.Event) error {
	_, err := s.coll.InsertOne(ctx, e)
	return err
}

// StoreBatch inserts unordered so one bad document does not drop the rest.
func (s *AuditStorage) StoreBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := s.coll.InsertMany(ctx, events, options.InsertMany().SetOrdered(false))
	return err
}

// ByPrincipal returns up to limit events of the principal, newest first.
func (s *AuditStorage) ByPrincipal(ctx context.Context, principalID string, limit int64) ([]audit.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.coll.Find(ctx, bson.D{{Key: "principal_id", Value: principalID}}, opts)
	if err != nil {
		return nil, err
	}

	var events []audit.Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
