package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/database"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap/zaptest"
)

// brokenDocuments fails every call.
type brokenDocuments struct{}

func (brokenDocuments) Create(context.Context, *types.Document) error { return errBoom }
func (brokenDocuments) GetByHash(context.Context, string, string) (*types.Document, error) {
	return nil, errBoom
}
func (brokenDocuments) ListByUser(context.Context, string) ([]types.Document, error) {
	return nil, errBoom
}
func (brokenDocuments) DeleteByFilename(context.Context, string, string) (int64, error) {
	return 0, errBoom
}
func (brokenDocuments) DeleteByHash(context.Context, string, string) (int64, error) {
	return 0, errBoom
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(nil))
	assert.Len(t, Fingerprint([]byte("x")), 64)
}

func TestStoreGateway_ExistsPolicy(t *testing.T) {
	ctx := context.Background()
	session := mustSession("1")
	f := newLifecycleFixture(t)
	logger := zaptest.NewLogger(t)

	index := database.NewMemoryIndex(4)
	g := NewStoreGateway(f.store.DocumentRepo(), index, logger)

	exists, err := g.Exists(ctx, session, "h1")
	require.NoError(t, err)
	assert.False(t, exists)

	// relational yes
	require.NoError(t, g.Record(ctx, session, "a.pdf", "h1", "", 1))
	exists, err = g.Exists(ctx, session, "h1")
	require.NoError(t, err)
	assert.True(t, exists)

	// relational no, index yes
	_, err = index.Upsert(ctx, session.Namespace, []types.VectorItem{{
		ID:       "c",
		Vector:   []float32{1, 0, 0, 0},
		Metadata: types.ChunkMetadata{UserID: "1", DocumentHash: "h2"},
	}})
	require.NoError(t, err)
	exists, err = g.Exists(ctx, session, "h2")
	require.NoError(t, err)
	assert.True(t, exists)

	// index unreachable: relational answer is used
	index.Unavailable = true
	exists, err = g.Exists(ctx, session, "h2")
	require.NoError(t, err)
	assert.False(t, exists)

	// both unreachable
	g = NewStoreGateway(brokenDocuments{}, index, logger)
	_, err = g.Exists(ctx, session, "h2")
	assert.ErrorIs(t, err, types.ErrIndexUnavailable)

	// metadata store down, index answers
	index.Unavailable = false
	exists, err = g.Exists(ctx, session, "h2")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreGateway_RecordDuplicate(t *testing.T) {
	ctx := context.Background()
	session := mustSession("1")
	f := newLifecycleFixture(t)
	g := NewStoreGateway(f.store.DocumentRepo(), database.NewMemoryIndex(4), zaptest.NewLogger(t))

	require.NoError(t, g.Record(ctx, session, "a.pdf", "h1", "", 1))
	err := g.Record(ctx, session, "b.pdf", "h1", "", 1)
	assert.ErrorIs(t, err, types.ErrConstraintViolation)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
}
