package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/types"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"
)

var chunkFields = []graphql.Field{
	{Name: "text"},
	{Name: "document_hash"},
	{Name: "filename"},
	{Name: "chunk_index"},
	{Name: "timestamp"},
	{Name: "user_id"},
	{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
}

func chunkClass(name string) *models.Class {
	return &models.Class{
		Class:      name,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}},
			// filter properties compare whole values, not word tokens
			{Name: "document_hash", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
			{Name: "filename", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
			{Name: "chunk_index", DataType: []string{"int"}},
			{Name: "timestamp", DataType: []string{"date"}},
			{Name: "user_id", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		},
		VectorIndexType:    "hnsw",
		VectorIndexConfig:  map[string]interface{}{"distance": "cosine"},
		MultiTenancyConfig: &models.MultiTenancyConfig{Enabled: true},
	}
}

// deleteBatchSize bounds the ids matched by one batch delete request.
const deleteBatchSize = 100

// ChunkID derives the stable object id of chunk index of a document.
func ChunkID(documentHash string, index int) string {
	name := fmt.Sprintf("doc_%s_chunk_%d", documentHash, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// WeaviateIndex stores chunks in one multi-tenant class. Each namespace is a
// tenant, so reads and writes of different users never share a shard.
type WeaviateIndex struct {
	client       *weaviate.Client
	class        string
	batchSize    int
	timeout      time.Duration
	readyTimeout time.Duration
	readyPoll    time.Duration
	logger       *zap.Logger

	mu         sync.Mutex
	classReady bool
	tenants    map[string]bool
}

func NewWeaviateIndex(cfg config.VectorStoreConfig, logger *zap.Logger) (*WeaviateIndex, error) {
	var scheme string
	if strings.HasPrefix(cfg.Host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host := strings.TrimPrefix(cfg.Host, scheme+"://")
	wcfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
		wcfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     cfg.APIKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	return &WeaviateIndex{
		client:       client,
		class:        cfg.Class,
		batchSize:    batchSize,
		timeout:      cfg.Timeout,
		readyTimeout: cfg.ReadyTimeout,
		readyPoll:    cfg.ReadyPoll,
		logger:       logger,
		tenants:      make(map[string]bool),
	}, nil
}

func (s *WeaviateIndex) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *WeaviateIndex) ensureClass(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.classReady {
		return nil
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.class).Do(cctx)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrIndexUnavailable, err)
	}
	if !exists {
		err = s.client.Schema().ClassCreator().WithClass(chunkClass(s.class)).Do(cctx)
		if err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("failed to create %s class: %w", s.class, err)
		}
		s.logger.Info("created vector class", zap.String("class", s.class))
	}
	s.classReady = true
	return nil
}

func (s *WeaviateIndex) EnsureNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		return errors.New("namespace is required")
	}
	if err := s.ensureClass(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	ready := s.tenants[namespace]
	s.mu.Unlock()
	if ready {
		return nil
	}

	cctx, cancel := s.withTimeout(ctx)
	err := s.client.Schema().TenantsCreator().
		WithClassName(s.class).
		WithTenants(models.Tenant{Name: namespace}).
		Do(cctx)
	cancel()
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("%w: failed to create tenant %s: %v", types.ErrIndexUnavailable, namespace, err)
	}

	if err := s.waitReady(ctx, namespace); err != nil {
		return err
	}
	s.mu.Lock()
	s.tenants[namespace] = true
	s.mu.Unlock()
	return nil
}

func (s *WeaviateIndex) waitReady(ctx context.Context, namespace string) error {
	deadline := time.Now().Add(s.readyTimeout)
	for {
		cctx, cancel := s.withTimeout(ctx)
		tenants, err := s.client.Schema().TenantsGetter().WithClassName(s.class).Do(cctx)
		cancel()
		if err == nil {
			for _, t := range tenants {
				if t.Name == namespace && tenantActive(t.ActivityStatus) {
					return nil
				}
			}
		} else {
			s.logger.Debug("tenant status check failed", zap.String("namespace", namespace), zap.Error(err))
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: tenant %s not ready after %s", types.ErrIndexUnavailable, namespace, s.readyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.readyPoll):
		}
	}
}

func tenantActive(status string) bool {
	switch strings.ToUpper(status) {
	case "", "HOT", "ACTIVE":
		return true
	}
	return false
}

func (s *WeaviateIndex) Upsert(ctx context.Context, namespace string, items []types.VectorItem) (types.UpsertResult, error) {
	var result types.UpsertResult
	var lastErr error
	total := len(items)
	for i := 0; i < total; i += s.batchSize {
		end := i + s.batchSize
		if end > total {
			end = total
		}
		batch := items[i:end]

		objects := make([]*models.Object, 0, len(batch))
		for _, item := range batch {
			objects = append(objects, &models.Object{
				Class:      s.class,
				ID:         strfmt.UUID(item.ID),
				Tenant:     namespace,
				Properties: chunkProperties(item.Metadata),
				Vector:     item.Vector,
			})
		}

		bctx, cancel := s.withTimeout(ctx)
		responses, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(bctx)
		cancel()
		if err != nil {
			lastErr = err
			s.logger.Warn("vector batch failed",
				zap.String("namespace", namespace),
				zap.Int("from", i),
				zap.Int("to", end),
				zap.Error(err))
			for _, item := range batch {
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, item.ID)
			}
			continue
		}

		acknowledged := make(map[string]bool, len(responses))
		for _, r := range responses {
			id := r.ID.String()
			if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				lastErr = errors.New(r.Result.Errors.Error[0].Message)
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, id)
				acknowledged[id] = true
				continue
			}
			result.Stored++
			acknowledged[id] = true
		}
		for _, item := range batch {
			if !acknowledged[item.ID] {
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, item.ID)
			}
		}
		s.logger.Debug("inserted vector batch",
			zap.String("namespace", namespace),
			zap.Int("from", i),
			zap.Int("to", end),
			zap.Int("total", total))
	}

	if result.Stored == 0 && lastErr != nil {
		return result, fmt.Errorf("%w: %v", types.ErrIndexUnavailable, lastErr)
	}
	return result, nil
}

func (s *WeaviateIndex) Query(ctx context.Context, query types.VectorQuery) ([]types.Candidate, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(query.Vector).
		WithDistance(float32(1 - query.ScoreThreshold))

	getBuilder := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithTenant(query.Namespace).
		WithFields(chunkFields...).
		WithNearVector(nearVector)
	if query.TopK > 0 {
		getBuilder = getBuilder.WithLimit(query.TopK)
	}
	if where := buildChunkFilter(query.Filter); where != nil {
		getBuilder = getBuilder.WithWhere(where)
	}

	found, err := s.runGet(ctx, getBuilder)
	if err != nil {
		return nil, err
	}
	var candidates []types.Candidate
	for _, c := range found {
		// results must never leak across users even if the tenant is shared
		if query.Filter.Matches(c.Metadata) {
			candidates = append(candidates, c)
		}
	}
	sortCandidates(candidates)
	return candidates, nil
}

func (s *WeaviateIndex) FindChunks(ctx context.Context, namespace string, filter types.ChunkFilter, limit int) ([]types.Candidate, error) {
	getBuilder := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithTenant(namespace).
		WithFields(chunkFields...)
	if limit > 0 {
		getBuilder = getBuilder.WithLimit(limit)
	}
	if where := buildChunkFilter(filter); where != nil {
		getBuilder = getBuilder.WithWhere(where)
	}

	candidates, err := s.runGet(ctx, getBuilder)
	if err != nil {
		return nil, err
	}
	var found []types.Candidate
	for _, c := range candidates {
		if filter.Matches(c.Metadata) {
			found = append(found, c)
		}
	}
	return found, nil
}

// runGet executes a Get query. A namespace that was never provisioned (no
// class or no tenant yet) holds nothing, so it reads as an empty result.
func (s *WeaviateIndex) runGet(ctx context.Context, getBuilder *graphql.GetBuilder) ([]types.Candidate, error) {
	qctx, cancel := s.withTimeout(ctx)
	defer cancel()
	result, err := getBuilder.Do(qctx)
	if err != nil {
		if s.isMissingNamespace(err.Error()) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", types.ErrIndexUnavailable, err)
	}
	if len(result.Errors) > 0 {
		msg := result.Errors[0].Message
		if s.isMissingNamespace(msg) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search failed: %s", types.ErrIndexUnavailable, msg)
	}
	return s.parseCandidates(result.Data), nil
}

// isMissingNamespace reports whether msg is Weaviate's answer for a class or
// tenant that does not exist.
func (s *WeaviateIndex) isMissingNamespace(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "tenant not found") ||
		strings.Contains(msg, "no tenant found") ||
		strings.Contains(msg, fmt.Sprintf("cannot query field %q", strings.ToLower(s.class))) ||
		strings.Contains(msg, "class not found") ||
		strings.Contains(msg, "could not find class")
}

// Delete removes ids from namespace, deleteBatchSize ids per request. Ids
// that do not exist are ignored.
func (s *WeaviateIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	for i := 0; i < len(ids); i += deleteBatchSize {
		end := i + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		where := filters.Where().
			WithPath([]string{"id"}).
			WithOperator(filters.ContainsAny).
			WithValueText(ids[i:end]...)

		dctx, cancel := s.withTimeout(ctx)
		resp, err := s.client.Batch().ObjectsBatchDeleter().
			WithClassName(s.class).
			WithTenant(namespace).
			WithWhere(where).
			WithOutput("minimal").
			Do(dctx)
		cancel()
		if err != nil {
			if isNotFound(err) || s.isMissingNamespace(err.Error()) {
				continue
			}
			return fmt.Errorf("%w: failed to delete chunks: %v", types.ErrIndexUnavailable, err)
		}
		if resp.Results != nil && resp.Results.Failed > 0 {
			return fmt.Errorf("%w: %d of %d chunks could not be deleted",
				types.ErrIndexUnavailable, resp.Results.Failed, resp.Results.Matches)
		}
	}
	return nil
}

func (s *WeaviateIndex) Ping(ctx context.Context) error {
	pctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ready, err := s.client.Misc().ReadyChecker().Do(pctx)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrIndexUnavailable, err)
	}
	if !ready {
		return types.ErrIndexUnavailable
	}
	return nil
}

func (s *WeaviateIndex) parseCandidates(data map[string]models.JSONObject) []types.Candidate {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	items, ok := get[s.class].([]interface{})
	if !ok {
		return nil
	}
	candidates := make([]types.Candidate, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		candidates = append(candidates, parseCandidate(obj))
	}
	return candidates
}

func chunkProperties(m types.ChunkMetadata) map[string]interface{} {
	return map[string]interface{}{
		"text":          m.Text,
		"document_hash": m.DocumentHash,
		"filename":      m.Filename,
		"chunk_index":   m.ChunkIndex,
		"timestamp":     m.Timestamp.UTC().Format(time.RFC3339Nano),
		"user_id":       m.UserID,
	}
}

// Helper functions
func parseCandidate(obj map[string]interface{}) types.Candidate {
	c := types.Candidate{
		Metadata: types.ChunkMetadata{
			Text:         parseString(obj["text"]),
			DocumentHash: parseString(obj["document_hash"]),
			Filename:     parseString(obj["filename"]),
			ChunkIndex:   parseInt(obj["chunk_index"]),
			Timestamp:    parseTime(obj["timestamp"]),
			UserID:       parseString(obj["user_id"]),
		},
	}
	if additional, ok := obj["_additional"].(map[string]interface{}); ok {
		c.ID = parseString(additional["id"])
		if d, ok := additional["distance"].(float64); ok {
			c.Score = 1 - d
		}
	}
	return c
}

func parseString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func parseInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

func parseTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// buildChunkFilter compiles filter into a where clause, or nil when empty.
func buildChunkFilter(filter types.ChunkFilter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	if filter.UserID != "" {
		operands = append(operands, textEqual("user_id", filter.UserID))
	}
	if filter.Filename != "" {
		operands = append(operands, textEqual("filename", filter.Filename))
	}
	if filter.DocumentHash != "" {
		operands = append(operands, textEqual("document_hash", filter.DocumentHash))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func textEqual(path, value string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{path}).
		WithOperator(filters.Equal).
		WithValueText(value)
}

func isAlreadyExists(err error) bool {
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusUnprocessableEntity {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isNotFound(err error) bool {
	var clientErr *fault.WeaviateClientError
	return errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound
}
