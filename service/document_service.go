package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tieubaoca/edu-assistant/database"
	"github.com/tieubaoca/edu-assistant/repository"
	"github.com/tieubaoca/edu-assistant/types"
	"github.com/tieubaoca/edu-assistant/utils"
	"go.uber.org/zap"
)

const (
	hintCheckAPIKey  = "Check that your OpenAI API key is valid and has quota left."
	hintIndexDown    = "The vector store could not be reached. Please try again in a few minutes."
	hintRetryUpload  = "Try uploading the document again."
	hintPartialStore = "Some passages of this document could not be stored; re-upload it after deleting to index it fully."
	hintMetadataLost = "The document was indexed but its record could not be saved; it may be missing from your document list."
)

// ProgressFunc receives ingestion progress. It may be nil.
type ProgressFunc func(types.UploadProgress)

type DocumentServiceDeps struct {
	Extractor   TextExtractor
	Chunker     *Chunker
	Embedder    Embedder
	Index       database.VectorIndex
	Documents   repository.DocumentRepo
	Audit       repository.AuditRepo
	Archiver    Archiver
	Ranker      *Ranker
	// EmbedderFor builds an embedder for a user-supplied API key. When nil,
	// Embedder serves every user.
	EmbedderFor func(apiKey string) Embedder
	ScanLimit   int
	Logger      *zap.Logger
}

// DocumentService ingests, lists, retrieves from and deletes a user's
// documents.
type DocumentService struct {
	extractor TextExtractor
	chunker   *Chunker
	embedder  Embedder
	index     database.VectorIndex
	documents repository.DocumentRepo
	audit     repository.AuditRepo
	archiver  Archiver
	gateway   *StoreGateway
	ranker    *Ranker
	scanLimit int
	logger    *zap.Logger

	embedderFor func(apiKey string) Embedder
}

func NewDocumentService(deps DocumentServiceDeps) *DocumentService {
	archiver := deps.Archiver
	if archiver == nil {
		archiver = NoopArchiver{}
	}
	chunker := deps.Chunker
	if chunker == nil {
		chunker = NewChunker()
	}
	scanLimit := deps.ScanLimit
	if scanLimit <= 0 {
		scanLimit = 1000
	}
	return &DocumentService{
		extractor: deps.Extractor,
		chunker:   chunker,
		embedder:  deps.Embedder,
		index:     deps.Index,
		documents: deps.Documents,
		audit:     deps.Audit,
		archiver:  archiver,
		gateway:   NewStoreGateway(deps.Documents, deps.Index, deps.Logger),
		ranker:    deps.Ranker,
		scanLimit: scanLimit,
		logger:    deps.Logger,

		embedderFor: deps.EmbedderFor,
	}
}

// ForCredentials returns the service to use for a request carrying creds.
// A user OpenAI key gets a copy whose embedding and retrieval run on that
// key; otherwise s itself is returned.
func (s *DocumentService) ForCredentials(creds Credentials) *DocumentService {
	if creds.OpenAIKey == "" || s.embedderFor == nil {
		return s
	}
	embedder := s.embedderFor(creds.OpenAIKey)
	scoped := *s
	scoped.embedder = embedder
	if s.ranker != nil {
		scoped.ranker = s.ranker.withEmbedder(embedder)
	}
	return &scoped
}

// ProcessDocument ingests one upload. Invalid input and extraction failures
// are returned as errors; every other outcome is reported in the result.
func (s *DocumentService) ProcessDocument(ctx context.Context, session Session, filename string, data []byte) (*types.ProcessResult, error) {
	return s.ProcessDocumentWithProgress(ctx, session, filename, data, nil)
}

func (s *DocumentService) ProcessDocumentWithProgress(ctx context.Context, session Session, filename string, data []byte, progress ProgressFunc) (*types.ProcessResult, error) {
	filename = utils.SanitizeFilename(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", types.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrInvalidInput, filename)
	}
	report := func(stage types.UploadStage, done, total int) {
		if progress != nil {
			progress(types.UploadProgress{Stage: stage, Done: done, Total: total})
		}
	}
	log := s.logger.With(zap.String("user_id", session.UserID), zap.String("filename", filename))

	fingerprint := Fingerprint(data)
	result := &types.ProcessResult{Filename: filename, DocumentHash: fingerprint}
	log = log.With(zap.String("document_hash", fingerprint))
	report(types.UploadStageFingerprinted, 0, 0)

	exists, err := s.gateway.Exists(ctx, session, fingerprint)
	if err != nil {
		log.Error("existence check failed", zap.Error(err))
		return s.storageFailed(result, hintIndexDown), nil
	}
	if exists {
		log.Info("skipping upload of existing document")
		s.logAudit(ctx, session, types.AuditActionDuplicate, filename)
		result.Status = types.ProcessStatusAlreadyExists
		result.Message = fmt.Sprintf("%s was already uploaded", filename)
		return result, nil
	}

	pages, err := s.extractor.Extract(ctx, filename, data)
	if err != nil {
		log.Warn("text extraction failed", zap.Error(err))
		return nil, fmt.Errorf("%w: could not read text from %s", types.ErrExtractionFailed, filename)
	}
	chunks := s.chunker.SplitPages(pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text found in %s", types.ErrExtractionFailed, filename)
	}
	result.ChunksTotal = len(chunks)
	report(types.UploadStageExtracted, 0, len(chunks))

	// archival does not depend on the outcome of indexing
	if key, err := s.archiver.Archive(ctx, session.UserID, filename, data); err == nil {
		result.ArchiveKey = key
	} else if !errors.Is(err, types.ErrArchiveDisabled) {
		log.Warn("failed to archive upload", zap.Error(err))
	}

	if err := s.index.EnsureNamespace(ctx, session.Namespace); err != nil {
		log.Error("failed to provision namespace", zap.Error(err))
		return s.storageFailed(result, hintIndexDown), nil
	}

	items, embedErr := s.embedChunks(ctx, session, filename, fingerprint, chunks, report)
	if len(items) == 0 {
		log.Error("no chunk could be embedded", zap.Error(embedErr))
		if isAuthError(embedErr) {
			return s.storageFailed(result, hintCheckAPIKey), nil
		}
		return s.storageFailed(result, hintCheckAPIKey, hintRetryUpload), nil
	}

	upserted, err := s.index.Upsert(ctx, session.Namespace, items)
	if err != nil {
		log.Error("vector upsert failed", zap.Int("stored", upserted.Stored), zap.Error(err))
	}
	result.ChunksStored = upserted.Stored
	if upserted.Stored == 0 {
		return s.storageFailed(result, hintIndexDown), nil
	}
	report(types.UploadStageStored, upserted.Stored, len(chunks))

	metadata := documentMetadata(result)
	err = s.gateway.Record(ctx, session, filename, fingerprint, metadata, upserted.Stored)
	switch {
	case errors.Is(err, types.ErrConstraintViolation):
		// a concurrent upload of the same bytes won; chunk ids are
		// content-derived so its vectors are the ones just written
		log.Info("document recorded by a concurrent upload")
		result.Status = types.ProcessStatusAlreadyExists
		result.Message = fmt.Sprintf("%s was already uploaded", filename)
		return result, nil
	case err != nil:
		log.Error("failed to record document", zap.Error(err))
		result.Hints = append(result.Hints, hintMetadataLost)
	}

	s.logAudit(ctx, session, types.AuditActionUpload, filename)
	result.Status = types.ProcessStatusStored
	result.Partial = upserted.Stored < len(chunks)
	if result.Partial {
		result.Hints = append(result.Hints, hintPartialStore)
		result.Message = fmt.Sprintf("Stored %d of %d passages of %s", upserted.Stored, len(chunks), filename)
	} else {
		result.Message = fmt.Sprintf("Stored %s (%d passages)", filename, upserted.Stored)
	}
	log.Info("document stored",
		zap.Int("chunks_total", len(chunks)),
		zap.Int("chunks_stored", upserted.Stored),
		zap.Int("failed", upserted.Failed+len(chunks)-len(items)))
	report(types.UploadStageDone, upserted.Stored, len(chunks))
	return result, nil
}

// embedChunks embeds chunks one at a time. A chunk whose embedding fails is
// skipped; the last such error is returned alongside the embedded items.
func (s *DocumentService) embedChunks(ctx context.Context, session Session, filename, fingerprint string, chunks []string, report func(types.UploadStage, int, int)) ([]types.VectorItem, error) {
	now := time.Now().UTC()
	items := make([]types.VectorItem, 0, len(chunks))
	var lastErr error
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		vector, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			lastErr = err
			s.logger.Warn("skipping chunk",
				zap.String("user_id", session.UserID),
				zap.String("document_hash", fingerprint),
				zap.Int("chunk_index", i),
				zap.Error(err))
			continue
		}
		items = append(items, types.VectorItem{
			ID:     database.ChunkID(fingerprint, i),
			Vector: vector,
			Metadata: types.ChunkMetadata{
				Text:         chunk,
				DocumentHash: fingerprint,
				Filename:     filename,
				ChunkIndex:   i,
				Timestamp:    now,
				UserID:       session.UserID,
			},
		})
		report(types.UploadStageEmbedding, i+1, len(chunks))
	}
	return items, lastErr
}

func (s *DocumentService) storageFailed(result *types.ProcessResult, hints ...string) *types.ProcessResult {
	result.Status = types.ProcessStatusStorageFailed
	result.Message = fmt.Sprintf("%s could not be stored", result.Filename)
	result.Hints = append(result.Hints, hints...)
	return result
}

func documentMetadata(result *types.ProcessResult) string {
	raw, _ := json.Marshal(map[string]any{
		"chunks_total":  result.ChunksTotal,
		"chunks_stored": result.ChunksStored,
		"archive_key":   result.ArchiveKey,
	})
	return string(raw)
}

func (s *DocumentService) logAudit(ctx context.Context, session Session, action, metadata string) {
	if s.audit == nil {
		return
	}
	entry := &types.AuditEntry{
		UserID:    session.UserID,
		Action:    action,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.Debug("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// GetContext returns the ranked passages answering query, optionally
// restricted to one document. Failures yield an empty result.
func (s *DocumentService) GetContext(ctx context.Context, session Session, query, filename string) []types.Passage {
	return s.ranker.Retrieve(ctx, session, query, filename)
}

// ListDocuments returns the user's documents, most recent first. When the
// metadata store fails the index is scanned instead.
func (s *DocumentService) ListDocuments(ctx context.Context, session Session) ([]types.DocumentSummary, error) {
	docs, err := s.documents.ListByUser(ctx, session.UserID)
	if err == nil {
		summaries := make([]types.DocumentSummary, 0, len(docs))
		for _, d := range docs {
			summaries = append(summaries, types.DocumentSummary{
				Filename:     d.Filename,
				DocumentHash: d.DocumentHash,
				ChunkCount:   d.ChunkCount,
				UploadedAt:   d.UploadTimestamp,
			})
		}
		return summaries, nil
	}
	s.logger.Warn("listing from metadata store failed, scanning index",
		zap.String("user_id", session.UserID), zap.Error(err))

	chunks, err := s.index.FindChunks(ctx, session.Namespace, types.ChunkFilter{}.WithUser(session.UserID), s.scanLimit)
	if err != nil {
		s.logger.Error("listing from index failed", zap.String("user_id", session.UserID), zap.Error(err))
		return nil, types.ErrIndexUnavailable
	}
	byHash := make(map[string]*types.DocumentSummary)
	var order []string
	for _, c := range chunks {
		m := c.Metadata
		if m.DocumentHash == "" {
			continue
		}
		summary, ok := byHash[m.DocumentHash]
		if !ok {
			summary = &types.DocumentSummary{Filename: m.Filename, DocumentHash: m.DocumentHash, UploadedAt: m.Timestamp}
			byHash[m.DocumentHash] = summary
			order = append(order, m.DocumentHash)
		}
		summary.ChunkCount++
	}
	summaries := make([]types.DocumentSummary, 0, len(order))
	for _, hash := range order {
		summaries = append(summaries, *byHash[hash])
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UploadedAt.After(summaries[j].UploadedAt)
	})
	return summaries, nil
}

// DeleteDocument removes every chunk of filename and its metadata row.
// A filename with no chunks in the index is reported as not found and
// nothing is modified.
func (s *DocumentService) DeleteDocument(ctx context.Context, session Session, filename string) *types.DeleteResult {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return &types.DeleteResult{Status: types.DeleteStatusError, Message: "filename is required"}
	}
	filter := types.ChunkFilter{}.WithUser(session.UserID).WithFilename(filename)
	deleted, err := s.deleteChunks(ctx, session, filter)
	if err != nil {
		s.logger.Error("failed to delete document",
			zap.String("user_id", session.UserID), zap.String("filename", filename), zap.Error(err))
		return &types.DeleteResult{Status: types.DeleteStatusError, Message: "Error deleting document", ChunksDeleted: deleted}
	}
	if deleted == 0 {
		return &types.DeleteResult{
			Status:  types.DeleteStatusNotFound,
			Message: fmt.Sprintf("Document '%s' not found in the index", filename),
		}
	}

	if _, err := s.documents.DeleteByFilename(ctx, session.UserID, filename); err != nil {
		s.logger.Warn("failed to delete document record",
			zap.String("user_id", session.UserID), zap.String("filename", filename), zap.Error(err))
	}
	s.logAudit(ctx, session, types.AuditActionDelete, filename)
	return &types.DeleteResult{
		Status:        types.DeleteStatusSuccess,
		Message:       fmt.Sprintf("Successfully deleted document '%s' (%d chunks)", filename, deleted),
		ChunksDeleted: deleted,
	}
}

// DeleteDocumentByHash is DeleteDocument addressed by content fingerprint.
func (s *DocumentService) DeleteDocumentByHash(ctx context.Context, session Session, hash string) *types.DeleteResult {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &types.DeleteResult{Status: types.DeleteStatusError, Message: "document hash is required"}
	}
	filter := types.ChunkFilter{}.WithUser(session.UserID).WithDocumentHash(hash)
	deleted, err := s.deleteChunks(ctx, session, filter)
	if err != nil {
		s.logger.Error("failed to delete document",
			zap.String("user_id", session.UserID), zap.String("document_hash", hash), zap.Error(err))
		return &types.DeleteResult{Status: types.DeleteStatusError, Message: "Error deleting document", ChunksDeleted: deleted}
	}
	if deleted == 0 {
		return &types.DeleteResult{
			Status:  types.DeleteStatusNotFound,
			Message: fmt.Sprintf("Document with hash '%s' not found", hash),
		}
	}

	if _, err := s.documents.DeleteByHash(ctx, session.UserID, hash); err != nil {
		s.logger.Warn("failed to delete document record",
			zap.String("user_id", session.UserID), zap.String("document_hash", hash), zap.Error(err))
	}
	s.logAudit(ctx, session, types.AuditActionDelete, hash)
	return &types.DeleteResult{
		Status:        types.DeleteStatusSuccess,
		Message:       fmt.Sprintf("Successfully deleted document with hash '%s' (%d chunks)", hash, deleted),
		ChunksDeleted: deleted,
	}
}

// deleteChunks deletes every chunk matching filter, scanning in pages of
// scanLimit, and returns how many were deleted.
func (s *DocumentService) deleteChunks(ctx context.Context, session Session, filter types.ChunkFilter) (int, error) {
	deleted := 0
	for {
		chunks, err := s.index.FindChunks(ctx, session.Namespace, filter, s.scanLimit)
		if err != nil {
			return deleted, err
		}
		if len(chunks) == 0 {
			return deleted, nil
		}
		ids := make([]string, 0, len(chunks))
		for _, c := range chunks {
			ids = append(ids, c.ID)
		}
		if err := s.index.Delete(ctx, session.Namespace, ids); err != nil {
			return deleted, err
		}
		deleted += len(ids)
		if len(chunks) < s.scanLimit {
			return deleted, nil
		}
	}
}

// VerifyDocument reports how many chunks of a document the index holds.
func (s *DocumentService) VerifyDocument(ctx context.Context, session Session, hash string) *types.VerifyResult {
	filter := types.ChunkFilter{}.WithUser(session.UserID).WithDocumentHash(strings.TrimSpace(hash))
	chunks, err := s.index.FindChunks(ctx, session.Namespace, filter, s.scanLimit)
	if err != nil {
		s.logger.Error("failed to verify document",
			zap.String("user_id", session.UserID), zap.String("document_hash", hash), zap.Error(err))
		return &types.VerifyResult{Status: types.VerifyStatusError, Message: "Error verifying document storage"}
	}
	if len(chunks) == 0 {
		return &types.VerifyResult{Status: types.VerifyStatusNotFound, Message: "Document not found in the index"}
	}
	first := chunks[0].Metadata
	uploaded := first.Timestamp
	return &types.VerifyResult{
		Status:      types.VerifyStatusStored,
		Message:     fmt.Sprintf("Document found with %d chunks", len(chunks)),
		Filename:    first.Filename,
		ChunksFound: len(chunks),
		UploadedAt:  &uploaded,
	}
}
