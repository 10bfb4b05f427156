package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/database"
	"github.com/tieubaoca/edu-assistant/repository"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap/zaptest"
)

type lifecycleFixture struct {
	svc       *DocumentService
	index     *database.MemoryIndex
	store     *repository.SQLiteStore
	embedder  *fakeEmbedder
	extractor *fakeExtractor
	archiver  *fakeArchiver

	// userEmbedder serves requests that carry their own OpenAI key.
	userEmbedder *fakeEmbedder
	embedKeys    []string
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	store, err := repository.NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zaptest.NewLogger(t)
	index := database.NewMemoryIndex(4)
	embedder := newFakeEmbedder(4)
	extractor := &fakeExtractor{pages: []string{"Week 1: introductions. Week 2: photosynthesis."}}
	archiver := &fakeArchiver{}
	f := &lifecycleFixture{index: index, store: store, embedder: embedder, extractor: extractor, archiver: archiver}
	f.userEmbedder = newFakeEmbedder(4)

	f.svc = NewDocumentService(DocumentServiceDeps{
		Extractor: extractor,
		Chunker:   NewChunker(),
		Embedder:  embedder,
		Index:     index,
		Documents: store.DocumentRepo(),
		Audit:     store.AuditRepo(),
		Archiver:  archiver,
		Ranker:    NewRanker(config.Default().Ranking, embedder, index, logger),
		EmbedderFor: func(apiKey string) Embedder {
			f.embedKeys = append(f.embedKeys, apiKey)
			return f.userEmbedder
		},
		Logger: logger,
	})
	return f
}

func (f *lifecycleFixture) rows(t *testing.T, userID string) []types.Document {
	t.Helper()
	docs, err := f.store.DocumentRepo().ListByUser(context.Background(), userID)
	require.NoError(t, err)
	return docs
}

func TestProcessDocument_StoredThenAlreadyExists(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	data := []byte("%PDF syllabus bytes")

	res, err := f.svc.ProcessDocument(ctx, session, "syllabus.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStored, res.Status)
	assert.Greater(t, res.ChunksStored, 0)
	assert.False(t, res.Partial)
	assert.Equal(t, Fingerprint(data), res.DocumentHash)
	assert.NotEmpty(t, res.ArchiveKey)
	require.Len(t, f.rows(t, "1"), 1)

	res, err = f.svc.ProcessDocument(ctx, session, "syllabus-copy.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusAlreadyExists, res.Status)
	assert.Len(t, f.rows(t, "1"), 1)
	assert.Len(t, f.archiver.keys, 1)

	audit, err := f.store.AuditRepo().ListByUser(ctx, "1", 10)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, types.AuditActionDuplicate, audit[0].Action)
}

func TestProcessDocument_SameBytesDifferentUsers(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	data := []byte("shared handout")

	res, err := f.svc.ProcessDocument(ctx, mustSession("1"), "handout.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStored, res.Status)

	res, err = f.svc.ProcessDocument(ctx, mustSession("2"), "handout.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStored, res.Status)
	assert.Equal(t, 1, f.index.Count(mustSession("2").Namespace))
}

func TestProcessDocument_ExtractionFailureIsFatal(t *testing.T) {
	f := newLifecycleFixture(t)
	f.extractor.err = errBoom

	_, err := f.svc.ProcessDocument(context.Background(), mustSession("1"), "broken.pdf", []byte("garbage"))
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
	assert.Empty(t, f.rows(t, "1"))
	assert.Equal(t, 0, f.index.Count(mustSession("1").Namespace))
	assert.Empty(t, f.archiver.keys)
	assert.NotContains(t, err.Error(), errBoom.Error())
}

func TestProcessDocument_EmptyText(t *testing.T) {
	f := newLifecycleFixture(t)
	f.extractor.pages = []string{"   ", ""}

	_, err := f.svc.ProcessDocument(context.Background(), mustSession("1"), "blank.pdf", []byte("x"))
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
	assert.Empty(t, f.archiver.keys)
}

func TestProcessDocument_InvalidInput(t *testing.T) {
	f := newLifecycleFixture(t)
	_, err := f.svc.ProcessDocument(context.Background(), mustSession("1"), "a.pdf", nil)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	_, err = f.svc.ProcessDocument(context.Background(), mustSession("1"), "", []byte("x"))
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestProcessDocument_EmbeddingFailureReportsStorageFailed(t *testing.T) {
	f := newLifecycleFixture(t)
	f.embedder.failAll = true

	res, err := f.svc.ProcessDocument(context.Background(), mustSession("1"), "a.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStorageFailed, res.Status)
	assert.NotEmpty(t, res.Hints)
	assert.Empty(t, f.rows(t, "1"))
}

func TestProcessDocument_PartialSuccess(t *testing.T) {
	f := newLifecycleFixture(t)
	long := strings.Repeat("a", 1500) + strings.Repeat("b", 1500) + strings.Repeat("c", 500)
	f.extractor.pages = []string{long}
	chunks := NewChunker().Split(long)
	require.Len(t, chunks, 2)
	f.embedder.failOn[chunks[1]] = true

	res, err := f.svc.ProcessDocument(context.Background(), mustSession("1"), "long.pdf", []byte("long"))
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStored, res.Status)
	assert.True(t, res.Partial)
	assert.Equal(t, 2, res.ChunksTotal)
	assert.Equal(t, 1, res.ChunksStored)

	rows := f.rows(t, "1")
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].ChunkCount)
}

func TestProcessDocument_IndexDown(t *testing.T) {
	f := newLifecycleFixture(t)
	f.index.Unavailable = true

	res, err := f.svc.ProcessDocument(context.Background(), mustSession("1"), "a.pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStorageFailed, res.Status)
	assert.Contains(t, res.Hints, hintIndexDown)
}

func TestProcessDocument_ReportsProgress(t *testing.T) {
	f := newLifecycleFixture(t)
	var stages []types.UploadStage
	_, err := f.svc.ProcessDocumentWithProgress(context.Background(), mustSession("1"), "a.pdf", []byte("x"), func(p types.UploadProgress) {
		stages = append(stages, p.Stage)
	})
	require.NoError(t, err)
	require.NotEmpty(t, stages)
	assert.Equal(t, types.UploadStageFingerprinted, stages[0])
	assert.Equal(t, types.UploadStageDone, stages[len(stages)-1])
}

func TestDeleteDocument_NotFoundLeavesEverything(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	_, err := f.svc.ProcessDocument(ctx, session, "keep.pdf", []byte("keep"))
	require.NoError(t, err)

	res := f.svc.DeleteDocument(ctx, session, "missing.pdf")
	assert.Equal(t, types.DeleteStatusNotFound, res.Status)
	assert.Len(t, f.rows(t, "1"), 1)
	assert.Equal(t, 1, f.index.Count(session.Namespace))
}

func TestDeleteDocument_RemovesChunksAndRow(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	_, err := f.svc.ProcessDocument(ctx, session, "a.pdf", []byte("a"))
	require.NoError(t, err)

	res := f.svc.DeleteDocument(ctx, session, "a.pdf")
	assert.Equal(t, types.DeleteStatusSuccess, res.Status)
	assert.Equal(t, 1, res.ChunksDeleted)
	assert.Empty(t, f.rows(t, "1"))
	assert.Equal(t, 0, f.index.Count(session.Namespace))

	// the same bytes can be ingested again
	again, err := f.svc.ProcessDocument(ctx, session, "a.pdf", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStored, again.Status)
}

func TestDeleteDocument_OtherUserCannotDelete(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	_, err := f.svc.ProcessDocument(ctx, mustSession("1"), "a.pdf", []byte("a"))
	require.NoError(t, err)

	res := f.svc.DeleteDocument(ctx, mustSession("2"), "a.pdf")
	assert.Equal(t, types.DeleteStatusNotFound, res.Status)
	assert.Len(t, f.rows(t, "1"), 1)
}

func TestDeleteDocumentByHash(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	res, err := f.svc.ProcessDocument(ctx, session, "a.pdf", []byte("a"))
	require.NoError(t, err)

	del := f.svc.DeleteDocumentByHash(ctx, session, res.DocumentHash)
	assert.Equal(t, types.DeleteStatusSuccess, del.Status)
	assert.Empty(t, f.rows(t, "1"))

	del = f.svc.DeleteDocumentByHash(ctx, session, res.DocumentHash)
	assert.Equal(t, types.DeleteStatusNotFound, del.Status)
}

func TestDeleteDocument_IndexDown(t *testing.T) {
	f := newLifecycleFixture(t)
	f.index.Unavailable = true
	res := f.svc.DeleteDocument(context.Background(), mustSession("1"), "a.pdf")
	assert.Equal(t, types.DeleteStatusError, res.Status)
	assert.NotContains(t, res.Message, "unavailable")
}

func TestVerifyDocument(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	res, err := f.svc.ProcessDocument(ctx, session, "a.pdf", []byte("a"))
	require.NoError(t, err)

	v := f.svc.VerifyDocument(ctx, session, res.DocumentHash)
	assert.Equal(t, types.VerifyStatusStored, v.Status)
	assert.Equal(t, "a.pdf", v.Filename)
	assert.Equal(t, 1, v.ChunksFound)
	require.NotNil(t, v.UploadedAt)

	v = f.svc.VerifyDocument(ctx, session, "nope")
	assert.Equal(t, types.VerifyStatusNotFound, v.Status)
}

func TestListDocuments(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	_, err := f.svc.ProcessDocument(ctx, session, "first.pdf", []byte("1"))
	require.NoError(t, err)
	_, err = f.svc.ProcessDocument(ctx, session, "second.pdf", []byte("2"))
	require.NoError(t, err)

	docs, err := f.svc.ListDocuments(ctx, session)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "second.pdf", docs[0].Filename)

	other, err := f.svc.ListDocuments(ctx, mustSession("2"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestGetContext(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")
	_, err := f.svc.ProcessDocument(ctx, session, "syllabus.pdf", []byte("s"))
	require.NoError(t, err)

	passages := f.svc.GetContext(ctx, session, "What happens in week 2?", "")
	require.Len(t, passages, 1)
	assert.Equal(t, "syllabus.pdf", passages[0].Filename)

	assert.Empty(t, f.svc.GetContext(ctx, mustSession("2"), "What happens in week 2?", ""))
}

func TestForCredentials_UsesUserKeyForEmbedding(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	session := mustSession("1")

	assert.Same(t, f.svc, f.svc.ForCredentials(Credentials{}))
	assert.Same(t, f.svc, f.svc.ForCredentials(Credentials{GeminiKey: "g"}))

	scoped := f.svc.ForCredentials(Credentials{OpenAIKey: "sk-user"})
	require.NotSame(t, f.svc, scoped)
	assert.Equal(t, []string{"sk-user"}, f.embedKeys)

	res, err := scoped.ProcessDocument(ctx, session, "syllabus.pdf", []byte("s"))
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStatusStored, res.Status)
	assert.NotEmpty(t, f.userEmbedder.requests)
	assert.Empty(t, f.embedder.requests)

	passages := scoped.GetContext(ctx, session, "photosynthesis", "")
	require.Len(t, passages, 1)
	assert.Contains(t, f.userEmbedder.requests, "photosynthesis")
	assert.Empty(t, f.embedder.requests)
}

func TestDeleteDocument_NeverProvisionedWeaviateNamespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"errors":[{"message":"object search at index documentchunk: tenant not found: \"user-1\""}]}`)
	}))
	t.Cleanup(srv.Close)
	index, err := database.NewWeaviateIndex(config.VectorStoreConfig{
		Host:    srv.URL,
		Class:   "DocumentChunk",
		Timeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	f := newLifecycleFixture(t)
	svc := NewDocumentService(DocumentServiceDeps{
		Extractor: f.extractor,
		Embedder:  f.embedder,
		Index:     index,
		Documents: f.store.DocumentRepo(),
		Audit:     f.store.AuditRepo(),
		Logger:    zaptest.NewLogger(t),
	})
	session := mustSession("1")
	ctx := context.Background()

	res := svc.DeleteDocument(ctx, session, "never-uploaded.pdf")
	assert.Equal(t, types.DeleteStatusNotFound, res.Status)
	assert.Equal(t, types.DeleteStatusNotFound, svc.DeleteDocumentByHash(ctx, session, "abc").Status)
	assert.Equal(t, types.VerifyStatusNotFound, svc.VerifyDocument(ctx, session, "abc").Status)
}
