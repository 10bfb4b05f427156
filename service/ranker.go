package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/database"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

const NoPassagesFound = "No relevant passages found."

// Ranker retrieves candidate chunks for a question and orders them for the
// answering step.
type Ranker struct {
	relationshipTerms []string
	indicatorPhrases  []string
	relationship      config.QueryParams
	standard          config.QueryParams
	embedder          Embedder
	index             database.VectorIndex
	logger            *zap.Logger
}

func NewRanker(cfg config.RankingConfig, embedder Embedder, index database.VectorIndex, logger *zap.Logger) *Ranker {
	return &Ranker{
		relationshipTerms: lowerAll(cfg.RelationshipTerms),
		indicatorPhrases:  lowerAll(cfg.IndicatorPhrases),
		relationship:      cfg.Relationship,
		standard:          cfg.Default,
		embedder:          embedder,
		index:             index,
		logger:            logger,
	}
}

func (r *Ranker) withEmbedder(embedder Embedder) *Ranker {
	scoped := *r
	scoped.embedder = embedder
	return &scoped
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsAny(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Classify picks the retrieval parameters of query. Questions about people
// the author met or worked with search wider with a lower threshold.
func (r *Ranker) Classify(query string) (config.QueryParams, bool) {
	if containsAny(query, r.relationshipTerms) {
		return r.relationship, true
	}
	return r.standard, false
}

// Rank deduplicates candidates by text, tags passages containing an
// indicator phrase and orders indicator passages first, then by score.
// At most limit passages are returned.
func (r *Ranker) Rank(candidates []types.Candidate, limit int) []types.Passage {
	sorted := make([]types.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	seen := make(map[string]struct{}, len(sorted))
	passages := make([]types.Passage, 0, len(sorted))
	for _, c := range sorted {
		text := strings.TrimSpace(c.Metadata.Text)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}

		filename := c.Metadata.Filename
		if filename == "" {
			filename = "unknown"
		}
		passages = append(passages, types.Passage{
			Text:         text,
			Score:        c.Score,
			Filename:     filename,
			HasIndicator: containsAny(text, r.indicatorPhrases),
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].HasIndicator != passages[j].HasIndicator {
			return passages[i].HasIndicator
		}
		return passages[i].Score > passages[j].Score
	})
	if limit > 0 && len(passages) > limit {
		passages = passages[:limit]
	}
	return passages
}

// Retrieve embeds query, searches the session namespace and ranks the
// result. Failures are logged and yield an empty context.
func (r *Ranker) Retrieve(ctx context.Context, session Session, query, filename string) []types.Passage {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	params, relationship := r.Classify(query)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("failed to embed query", zap.String("user_id", session.UserID), zap.Error(err))
		return nil
	}

	filter := types.ChunkFilter{}.WithUser(session.UserID)
	if filename != "" {
		filter = filter.WithFilename(filename)
	}
	candidates, err := r.index.Query(ctx, types.VectorQuery{
		Namespace:      session.Namespace,
		Vector:         vector,
		Filter:         filter,
		TopK:           params.TopK,
		ScoreThreshold: params.ScoreThreshold,
	})
	if err != nil {
		r.logger.Warn("failed to query index", zap.String("user_id", session.UserID), zap.Error(err))
		return nil
	}

	passages := r.Rank(candidates, params.Limit)
	r.logger.Debug("retrieved context",
		zap.String("user_id", session.UserID),
		zap.Bool("relationship", relationship),
		zap.Int("candidates", len(candidates)),
		zap.Int("passages", len(passages)))
	return passages
}

// FormatPassages renders passages as numbered blocks citing their source.
func FormatPassages(passages []types.Passage) string {
	if len(passages) == 0 {
		return NoPassagesFound
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s) %s", i+1, p.Filename, p.Text)
	}
	return b.String()
}
