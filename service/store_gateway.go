package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tieubaoca/edu-assistant/database"
	"github.com/tieubaoca/edu-assistant/repository"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap"
)

// Fingerprint is the content identity of an upload: the hex SHA-256 of its bytes.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StoreGateway answers whether a user already ingested some content and
// records new ingestions.
type StoreGateway struct {
	documents repository.DocumentRepo
	index     database.VectorIndex
	logger    *zap.Logger
}

func NewStoreGateway(documents repository.DocumentRepo, index database.VectorIndex, logger *zap.Logger) *StoreGateway {
	return &StoreGateway{
		documents: documents,
		index:     index,
		logger:    logger,
	}
}

// Exists checks the metadata store and the vector index. A positive answer
// from either wins. When only one store is reachable its answer is used;
// when neither is, types.ErrIndexUnavailable is returned.
func (g *StoreGateway) Exists(ctx context.Context, session Session, fingerprint string) (bool, error) {
	relationalKnown := true
	_, err := g.documents.GetByHash(ctx, session.UserID, fingerprint)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, types.ErrNotFound):
	default:
		relationalKnown = false
		g.logger.Warn("metadata existence check failed",
			zap.String("user_id", session.UserID),
			zap.String("document_hash", fingerprint),
			zap.Error(err))
	}

	filter := types.ChunkFilter{}.WithUser(session.UserID).WithDocumentHash(fingerprint)
	chunks, err := g.index.FindChunks(ctx, session.Namespace, filter, 1)
	if err != nil {
		g.logger.Warn("index existence check failed",
			zap.String("user_id", session.UserID),
			zap.String("document_hash", fingerprint),
			zap.Error(err))
		if relationalKnown {
			return false, nil
		}
		return false, fmt.Errorf("%w: existence unknown", types.ErrIndexUnavailable)
	}
	return len(chunks) > 0, nil
}

// Record inserts the metadata row of a new document. A second record of the
// same content fails with types.ErrConstraintViolation.
func (g *StoreGateway) Record(ctx context.Context, session Session, filename, fingerprint, metadata string, chunkCount int) error {
	doc := &types.Document{
		UserID:          session.UserID,
		Filename:        filename,
		DocumentHash:    fingerprint,
		ChunkCount:      chunkCount,
		Metadata:        metadata,
		UploadTimestamp: time.Now().UTC(),
	}
	if err := g.documents.Create(ctx, doc); err != nil {
		if errors.Is(err, types.ErrConstraintViolation) {
			return types.ErrConstraintViolation
		}
		return fmt.Errorf("failed to record document: %w", err)
	}
	return nil
}
