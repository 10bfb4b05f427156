package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tieubaoca/edu-assistant/repository"
	"github.com/tieubaoca/edu-assistant/types"
)

const (
	minRating = 1
	maxRating = 5
)

type FeedbackService interface {
	Submit(ctx context.Context, session Session, req types.FeedbackRequest) (*types.Feedback, error)
	Stats(ctx context.Context, session Session) (*types.FeedbackStats, error)
}

type feedbackService struct {
	repo repository.FeedbackRepo
}

func NewFeedbackService(repo repository.FeedbackRepo) FeedbackService {
	return &feedbackService{
		repo: repo,
	}
}

func (s *feedbackService) Submit(ctx context.Context, session Session, req types.FeedbackRequest) (*types.Feedback, error) {
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Response) == "" {
		return nil, fmt.Errorf("%w: question and response are required", types.ErrInvalidInput)
	}
	if !types.ValidFeedbackCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown feedback category %q", types.ErrInvalidInput, req.Category)
	}
	if req.Rating < minRating || req.Rating > maxRating {
		return nil, fmt.Errorf("%w: rating must be between %d and %d", types.ErrInvalidInput, minRating, maxRating)
	}
	feedback := &types.Feedback{
		UserID:    session.UserID,
		Question:  req.Question,
		Response:  req.Response,
		Category:  req.Category,
		Rating:    req.Rating,
		Text:      strings.TrimSpace(req.Text),
		Timestamp: time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, feedback); err != nil {
		return nil, err
	}
	return feedback, nil
}

func (s *feedbackService) Stats(ctx context.Context, session Session) (*types.FeedbackStats, error) {
	return s.repo.Stats(ctx, session.UserID)
}

type ActivityService interface {
	Recent(ctx context.Context, session Session, limit int) ([]types.AuditEntry, error)
}

type activityService struct {
	repo repository.AuditRepo
}

func NewActivityService(repo repository.AuditRepo) ActivityService {
	return &activityService{repo: repo}
}

// Recent returns the user's latest audit entries, newest first.
func (s *activityService) Recent(ctx context.Context, session Session, limit int) ([]types.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, session.UserID, limit)
}
