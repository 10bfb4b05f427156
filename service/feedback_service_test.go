package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/types"
)

func TestFeedbackService_SubmitAndStats(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewFeedbackService(f.store.FeedbackRepo())
	ctx := context.Background()
	session := mustSession("1")

	fb, err := svc.Submit(ctx, session, types.FeedbackRequest{
		Question: "What is osmosis?",
		Response: "Diffusion of water [1] (bio.pdf).",
		Category: types.FeedbackHelpful,
		Rating:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, "1", fb.UserID)
	assert.False(t, fb.Timestamp.IsZero())

	_, err = svc.Submit(ctx, session, types.FeedbackRequest{
		Question: "q", Response: "r", Category: types.FeedbackNotQuiteRight, Rating: 2, Text: " missing citation ",
	})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 3.5, stats.AverageRating, 1e-9)
	assert.Equal(t, 1, stats.HelpfulCount)
	assert.Equal(t, 1, stats.NotRightCount)

	other, err := svc.Stats(ctx, mustSession("2"))
	require.NoError(t, err)
	assert.Equal(t, 0, other.Total)
}

func TestFeedbackService_Validation(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := NewFeedbackService(f.store.FeedbackRepo())
	ctx := context.Background()
	session := mustSession("1")

	cases := map[string]types.FeedbackRequest{
		"missing question": {Response: "r", Category: types.FeedbackHelpful, Rating: 3},
		"bad category":     {Question: "q", Response: "r", Category: "Meh", Rating: 3},
		"rating too low":   {Question: "q", Response: "r", Category: types.FeedbackHelpful, Rating: 0},
		"rating too high":  {Question: "q", Response: "r", Category: types.FeedbackHelpful, Rating: 6},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Submit(ctx, session, req)
			assert.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}

func TestActivityService_Recent(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	_, err := f.svc.ProcessDocument(ctx, session, "notes.txt", []byte("notes"))
	require.NoError(t, err)
	f.svc.DeleteDocument(ctx, session, "notes.txt")

	entries, err := NewActivityService(f.store.AuditRepo()).Recent(ctx, session, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.AuditActionDelete, entries[0].Action)
	assert.Equal(t, types.AuditActionUpload, entries[1].Action)
}
