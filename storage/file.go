package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// FileBackend stores snapshots on the local file system, one file per
// snapshot named by its hex ID.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file backend rooted at baseDir, creating the
// directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	snapshotDir := filepath.Join(baseDir, "snapshots")
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads a snapshot by ID. Returns ErrSnapshotNotFound when the
// file does not exist.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	filePath := b.snapshotPath(id)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrSnapshotNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	b.log.Debug("Fetched snapshot from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))
	return data, nil
}

// Store writes a snapshot and returns its content-derived ID. Writing
// the same data twice is a harmless overwrite.
func (b *FileBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	id := interfaces.ComputeSnapshotID(data)
	filePath := b.snapshotPath(id)

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return id, fmt.Errorf("failed to write snapshot file: %w", err)
	}

	b.log.Debug("Stored snapshot in file",
		slog.String("path", filePath),
		slog.String("snapshot_id", id.String()))
	return id, nil
}

// Available checks that the base directory still exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) snapshotPath(id interfaces.SnapshotID) string {
	return filepath.Join(b.baseDir, "snapshots", id.String())
}
