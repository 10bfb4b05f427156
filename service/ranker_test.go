package service

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/database"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap/zaptest"
)

func defaultRanking() config.RankingConfig {
	return config.Default().Ranking
}

func candidate(text string, score float64) types.Candidate {
	return types.Candidate{ID: text, Score: score, Metadata: types.ChunkMetadata{Text: text, Filename: "book.pdf"}}
}

// unit returns a 2-d vector whose cosine with (1, 0) is sim.
func unit(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestRanker_Classify(t *testing.T) {
	r := NewRanker(defaultRanking(), nil, nil, zaptest.NewLogger(t))

	params, rel := r.Classify("Who INTRODUCED you to your mentor?")
	assert.True(t, rel)
	assert.Equal(t, config.QueryParams{TopK: 300, ScoreThreshold: 0.5, Limit: 25}, params)

	params, rel = r.Classify("What is photosynthesis?")
	assert.False(t, rel)
	assert.Equal(t, config.QueryParams{TopK: 200, ScoreThreshold: 0.6, Limit: 15}, params)
}

func TestRanker_IndicatorOutranksScore(t *testing.T) {
	r := NewRanker(defaultRanking(), nil, nil, zaptest.NewLogger(t))

	passages := r.Rank([]types.Candidate{
		candidate("a plain but similar passage", 0.9),
		candidate("Then I met the dean of students.", 0.7),
	}, 15)
	require.Len(t, passages, 2)
	assert.Equal(t, "Then I met the dean of students.", passages[0].Text)
	assert.True(t, passages[0].HasIndicator)
	assert.False(t, passages[1].HasIndicator)
}

func TestRanker_DeduplicatesAndDropsEmpty(t *testing.T) {
	r := NewRanker(defaultRanking(), nil, nil, zaptest.NewLogger(t))

	passages := r.Rank([]types.Candidate{
		candidate("same text", 0.8),
		candidate("same text", 0.75),
		candidate("  same text\n", 0.7),
		candidate("   ", 0.99),
		candidate("other", 0.6),
	}, 15)
	require.Len(t, passages, 2)
	assert.Equal(t, "same text", passages[0].Text)
	assert.Equal(t, 0.8, passages[0].Score)
}

func TestRanker_Truncates(t *testing.T) {
	r := NewRanker(defaultRanking(), nil, nil, zaptest.NewLogger(t))
	var candidates []types.Candidate
	for i := 0; i < 40; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("passage %d", i), float64(i)/100))
	}
	passages := r.Rank(candidates, 15)
	require.Len(t, passages, 15)
	assert.Equal(t, "passage 39", passages[0].Text)
}

func TestRanker_CustomPhrases(t *testing.T) {
	cfg := defaultRanking()
	cfg.IndicatorPhrases = []string{"Photosynthesis"}
	r := NewRanker(cfg, nil, nil, zaptest.NewLogger(t))

	passages := r.Rank([]types.Candidate{
		candidate("light reactions", 0.9),
		candidate("PHOTOSYNTHESIS overview", 0.61),
	}, 15)
	assert.Equal(t, "PHOTOSYNTHESIS overview", passages[0].Text)
}

func TestRanker_RetrieveRelationshipScenario(t *testing.T) {
	ctx := context.Background()
	session := mustSession("7")
	other := mustSession("8")
	idx := database.NewMemoryIndex(2)

	items := []types.VectorItem{
		{ID: "lee", Vector: unit(0.6), Metadata: types.ChunkMetadata{Text: "...Professor Lee introduced me to my research mentor...", Filename: "memoir.pdf", UserID: "7"}},
		{ID: "close", Vector: unit(0.95), Metadata: types.ChunkMetadata{Text: "The campus library opens at nine.", Filename: "memoir.pdf", UserID: "7"}},
	}
	for i := 0; i < 30; i++ {
		items = append(items, types.VectorItem{
			ID:       fmt.Sprintf("filler-%d", i),
			Vector:   unit(0.55),
			Metadata: types.ChunkMetadata{Text: fmt.Sprintf("filler paragraph %d", i), Filename: "memoir.pdf", UserID: "7"},
		})
	}
	_, err := idx.Upsert(ctx, session.Namespace, items)
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, other.Namespace, []types.VectorItem{
		{ID: "foreign", Vector: unit(0.99), Metadata: types.ChunkMetadata{Text: "I met someone else", UserID: "8"}},
	})
	require.NoError(t, err)

	embedder := newFakeEmbedder(2)
	embedder.vectors["Who introduced you to your mentor?"] = []float32{1, 0}
	r := NewRanker(defaultRanking(), embedder, idx, zaptest.NewLogger(t))

	passages := r.Retrieve(ctx, session, "Who introduced you to your mentor?", "")
	require.Len(t, passages, 25)
	assert.Contains(t, passages[0].Text, "Professor Lee introduced me")
	for _, p := range passages {
		assert.NotEqual(t, "I met someone else", p.Text)
	}
}

func TestRanker_RetrieveFiltersByFilename(t *testing.T) {
	ctx := context.Background()
	session := mustSession("7")
	idx := database.NewMemoryIndex(2)
	_, err := idx.Upsert(ctx, session.Namespace, []types.VectorItem{
		{ID: "a", Vector: unit(0.9), Metadata: types.ChunkMetadata{Text: "from a", Filename: "a.pdf", UserID: "7"}},
		{ID: "b", Vector: unit(0.9), Metadata: types.ChunkMetadata{Text: "from b", Filename: "b.pdf", UserID: "7"}},
	})
	require.NoError(t, err)

	embedder := newFakeEmbedder(2)
	r := NewRanker(defaultRanking(), embedder, idx, zaptest.NewLogger(t))

	passages := r.Retrieve(ctx, session, "what is in the file", "b.pdf")
	require.Len(t, passages, 1)
	assert.Equal(t, "b.pdf", passages[0].Filename)
}

func TestRanker_RetrieveDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	session := mustSession("7")

	embedder := newFakeEmbedder(2)
	embedder.failAll = true
	r := NewRanker(defaultRanking(), embedder, database.NewMemoryIndex(2), zaptest.NewLogger(t))
	assert.Empty(t, r.Retrieve(ctx, session, "anything", ""))

	idx := database.NewMemoryIndex(2)
	idx.Unavailable = true
	r = NewRanker(defaultRanking(), newFakeEmbedder(2), idx, zaptest.NewLogger(t))
	assert.Empty(t, r.Retrieve(ctx, session, "anything", ""))

	assert.Empty(t, r.Retrieve(ctx, session, "   ", ""))
}

func TestFormatPassages(t *testing.T) {
	assert.Equal(t, NoPassagesFound, FormatPassages(nil))
	out := FormatPassages([]types.Passage{
		{Text: "first", Filename: "a.pdf"},
		{Text: "second", Filename: "b.pdf"},
	})
	assert.Equal(t, "[1] (a.pdf) first\n\n[2] (b.pdf) second", out)
}
