package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileBackendRoundTrip(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, backend.Available(ctx))

	data := []byte(`{"version":"v2.0.0"}`)
	id, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.True(t, id.Equal(interfaces.ComputeSnapshotID(data)))

	fetched, err := backend.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestFileBackendNotFound(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	_, err = backend.Fetch(context.Background(), interfaces.ComputeSnapshotID([]byte("missing")))
	assert.ErrorIs(t, err, interfaces.ErrSnapshotNotFound)
}

func TestFileBackendStoreIdempotent(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("snapshot data")
	first, err := backend.Store(ctx, data)
	require.NoError(t, err)
	second, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestFactoryFileBackend(t *testing.T) {
	factory := NewSnapshotBackendFactory(discardLogger())

	loc, err := interfaces.NewSnapshotLocation("file://" + t.TempDir())
	require.NoError(t, err)

	backend, err := factory.BackendFor(loc)
	require.NoError(t, err)
	assert.Contains(t, backend.Name(), "file-")
}

func TestFactoryRejectsUnsupportedScheme(t *testing.T) {
	_, err := interfaces.NewSnapshotLocation("ftp://host/path")
	assert.ErrorIs(t, err, interfaces.ErrInvalidSnapshotURI)
}
