package repository

import (
	"context"
	"fmt"

	"github.com/tieubaoca/edu-assistant/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const FeedbackCollection = "feedback"

type FeedbackRepo interface {
	Save(ctx context.Context, feedback *types.Feedback) error
	Stats(ctx context.Context, userID string) (*types.FeedbackStats, error)
}

type feedbackRepo struct {
	collection *mongo.Collection
}

func NewFeedbackRepo(db *mongo.Database) FeedbackRepo {
	return &feedbackRepo{
		collection: db.Collection(FeedbackCollection),
	}
}

func (r *feedbackRepo) Save(ctx context.Context, feedback *types.Feedback) error {
	if !types.ValidFeedbackCategory(feedback.Category) {
		return fmt.Errorf("%w: unknown feedback category %q", types.ErrInvalidInput, feedback.Category)
	}
	_, err := r.collection.InsertOne(ctx, feedback)
	return err
}

func (r *feedbackRepo) Stats(ctx context.Context, userID string) (*types.FeedbackStats, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var all []types.Feedback
	if err := cursor.All(ctx, &all); err != nil {
		return nil, err
	}
	return summarizeFeedback(all), nil
}

func summarizeFeedback(all []types.Feedback) *types.FeedbackStats {
	stats := &types.FeedbackStats{Total: len(all)}
	if len(all) == 0 {
		return stats
	}
	sum := 0
	for _, f := range all {
		sum += f.Rating
		switch f.Category {
		case types.FeedbackHelpful:
			stats.HelpfulCount++
		case types.FeedbackNotQuiteRight:
			stats.NotRightCount++
		case types.FeedbackImprovement:
			stats.ImprovementCount++
		}
	}
	stats.AverageRating = float64(sum) / float64(len(all))
	return stats
}
