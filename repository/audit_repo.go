package repository

import (
	"context"
	"fmt"

	"github.com/tieubaoca/edu-assistant/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const AuditCollection = "audit_logs"

type AuditRepo interface {
	Log(ctx context.Context, entry *types.AuditEntry) error
	ListByUser(ctx context.Context, userID string, limit int) ([]types.AuditEntry, error)
}

type auditRepo struct {
	collection *mongo.Collection
}

func NewAuditRepo(ctx context.Context, db *mongo.Database) (AuditRepo, error) {
	collection := db.Collection(AuditCollection)
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating audit indexes: %w", err)
	}
	return &auditRepo{
		collection: collection,
	}, nil
}

func (r *auditRepo) Log(ctx context.Context, entry *types.AuditEntry) error {
	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

func (r *auditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]types.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []types.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
