package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// flakyBackend wraps a FileBackend and fails on demand.
type flakyBackend struct {
	*FileBackend
	down      bool
	storeFail bool
}

func (f *flakyBackend) Available(ctx context.Context) bool {
	return !f.down && f.FileBackend.Available(ctx)
}

func (f *flakyBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	if f.storeFail {
		return interfaces.SnapshotID{}, errors.New("store failed")
	}
	return f.FileBackend.Store(ctx, data)
}

func newFlaky(t *testing.T) *flakyBackend {
	t.Helper()
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	return &flakyBackend{FileBackend: backend}
}

func TestMultiBackendReplicatesStores(t *testing.T) {
	a := newFlaky(t)
	b := newFlaky(t)
	multi := NewMultiBackend([]interfaces.SnapshotBackend{a, b}, discardLogger())
	ctx := context.Background()

	data := []byte("replicated snapshot")
	id, err := multi.Store(ctx, data)
	require.NoError(t, err)

	got, err := a.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	got, err = b.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMultiBackendFallsBackOnFetch(t *testing.T) {
	a := newFlaky(t)
	b := newFlaky(t)
	multi := NewMultiBackend([]interfaces.SnapshotBackend{a, b}, discardLogger())
	ctx := context.Background()

	id, err := b.Store(ctx, []byte("only on b"))
	require.NoError(t, err)

	// a does not hold the snapshot; the multi backend should still find it.
	data, err := multi.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("only on b"), data)
}

func TestMultiBackendSkipsUnavailable(t *testing.T) {
	a := newFlaky(t)
	a.down = true
	b := newFlaky(t)
	multi := NewMultiBackend([]interfaces.SnapshotBackend{a, b}, discardLogger())
	ctx := context.Background()

	id, err := multi.Store(ctx, []byte("data"))
	require.NoError(t, err)

	_, err = b.Fetch(ctx, id)
	assert.NoError(t, err)
	assert.True(t, multi.Available(ctx))
}

func TestMultiBackendAllFail(t *testing.T) {
	a := newFlaky(t)
	a.storeFail = true
	multi := NewMultiBackend([]interfaces.SnapshotBackend{a}, discardLogger())

	_, err := multi.Store(context.Background(), []byte("data"))
	assert.Error(t, err)

	a.down = true
	assert.False(t, multi.Available(context.Background()))
}
