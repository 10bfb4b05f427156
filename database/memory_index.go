package database

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/tieubaoca/edu-assistant/types"
)

// MemoryIndex is an in-process VectorIndex using brute-force cosine
// similarity. Namespaces are separate maps.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]types.VectorItem
	// Unavailable makes every call fail with types.ErrIndexUnavailable.
	Unavailable bool
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension:  dimension,
		namespaces: make(map[string]map[string]types.VectorItem),
	}
}

func (m *MemoryIndex) EnsureNamespace(ctx context.Context, namespace string) error {
	if m.Unavailable {
		return types.ErrIndexUnavailable
	}
	if namespace == "" {
		return errors.New("namespace is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.namespaces[namespace]; !ok {
		m.namespaces[namespace] = make(map[string]types.VectorItem)
	}
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, namespace string, items []types.VectorItem) (types.UpsertResult, error) {
	var result types.UpsertResult
	if m.Unavailable {
		return result, types.ErrIndexUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]types.VectorItem)
		m.namespaces[namespace] = ns
	}
	for _, item := range items {
		if m.dimension > 0 && len(item.Vector) != m.dimension {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, item.ID)
			continue
		}
		ns[item.ID] = item
		result.Stored++
	}
	return result, nil
}

func (m *MemoryIndex) Query(ctx context.Context, query types.VectorQuery) ([]types.Candidate, error) {
	if m.Unavailable {
		return nil, types.ErrIndexUnavailable
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []types.Candidate
	for _, item := range m.namespaces[query.Namespace] {
		if !query.Filter.Matches(item.Metadata) {
			continue
		}
		score := cosine(query.Vector, item.Vector)
		if score < query.ScoreThreshold {
			continue
		}
		candidates = append(candidates, types.Candidate{ID: item.ID, Score: score, Metadata: item.Metadata})
	}
	sortCandidates(candidates)
	if query.TopK > 0 && len(candidates) > query.TopK {
		candidates = candidates[:query.TopK]
	}
	return candidates, nil
}

func (m *MemoryIndex) FindChunks(ctx context.Context, namespace string, filter types.ChunkFilter, limit int) ([]types.Candidate, error) {
	if m.Unavailable {
		return nil, types.ErrIndexUnavailable
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []types.Candidate
	for _, item := range m.namespaces[namespace] {
		if filter.Matches(item.Metadata) {
			found = append(found, types.Candidate{ID: item.ID, Metadata: item.Metadata})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Metadata.DocumentHash != found[j].Metadata.DocumentHash {
			return found[i].Metadata.DocumentHash < found[j].Metadata.DocumentHash
		}
		return found[i].Metadata.ChunkIndex < found[j].Metadata.ChunkIndex
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if m.Unavailable {
		return types.ErrIndexUnavailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.namespaces[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error {
	if m.Unavailable {
		return types.ErrIndexUnavailable
	}
	return nil
}

// Count returns the number of vectors stored in namespace.
func (m *MemoryIndex) Count(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// sortCandidates orders by score descending, breaking ties by id so the
// order is deterministic.
func sortCandidates(candidates []types.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})
}
