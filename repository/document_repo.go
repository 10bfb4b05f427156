package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tieubaoca/edu-assistant/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const DocumentsCollection = "documents"

// DocumentRepo persists one metadata row per ingested document.
// (user_id, document_hash) is unique; a second insert fails with
// types.ErrConstraintViolation.
type DocumentRepo interface {
	Create(ctx context.Context, doc *types.Document) error
	GetByHash(ctx context.Context, userID, hash string) (*types.Document, error)
	ListByUser(ctx context.Context, userID string) ([]types.Document, error)
	DeleteByFilename(ctx context.Context, userID, filename string) (int64, error)
	DeleteByHash(ctx context.Context, userID, hash string) (int64, error)
}

type documentRepo struct {
	collection *mongo.Collection
}

func NewDocumentRepo(ctx context.Context, db *mongo.Database) (DocumentRepo, error) {
	collection := db.Collection(DocumentsCollection)
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "document_hash", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "upload_timestamp", Value: -1},
			},
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("error creating document indexes: %w", err)
	}

	return &documentRepo{
		collection: collection,
	}, nil
}

func (r *documentRepo) Create(ctx context.Context, doc *types.Document) error {
	_, err := r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return types.ErrConstraintViolation
	}
	return err
}

func (r *documentRepo) GetByHash(ctx context.Context, userID, hash string) (*types.Document, error) {
	var doc types.Document
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID, "document_hash": hash}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) ListByUser(ctx context.Context, userID string) ([]types.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "upload_timestamp", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []types.Document
	for cursor.Next(ctx) {
		var doc types.Document
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, cursor.Err()
}

func (r *documentRepo) DeleteByFilename(ctx context.Context, userID, filename string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID, "filename": filename})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *documentRepo) DeleteByHash(ctx context.Context, userID, hash string) (int64, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID, "document_hash": hash})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
