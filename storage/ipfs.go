package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// IPFSBackend stores snapshots on an IPFS node. IPFS addresses content
// by its own CID, so the backend keeps a mapping from snapshot ID to
// CID for fetches within this process.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string

	mu   sync.RWMutex
	cids map[interfaces.SnapshotID]string
}

// NewIPFSBackend creates an IPFS backend connected to host:port.
func NewIPFSBackend(host, port, timeout string, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	return &IPFSBackend{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
		cids:        make(map[interfaces.SnapshotID]string),
	}, nil
}

// Fetch retrieves a snapshot by ID. Returns ErrSnapshotNotFound when
// this process never stored the snapshot, ErrBackendUnavailable when
// the node is unreachable.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	start := time.Now()

	b.mu.RLock()
	cid, ok := b.cids[id]
	b.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrSnapshotNotFound
	}

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.Cat(cid)
	if err != nil {
		if strings.Contains(err.Error(), "no link named") {
			return nil, interfaces.ErrSnapshotNotFound
		}
		b.log.Error("Failed to fetch snapshot from IPFS",
			slog.String("cid", cid),
			slog.String("snapshot_id", id.String()),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched snapshot from IPFS",
		slog.String("cid", cid),
		slog.String("snapshot_id", id.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store adds a snapshot to IPFS and returns its content-derived ID.
// Returns ErrBackendUnavailable when the node is unreachable.
func (b *IPFSBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	id := interfaces.ComputeSnapshotID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data))
	if err != nil {
		return id, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	b.mu.Lock()
	b.cids[id] = cid
	b.mu.Unlock()

	b.log.Debug("Stored snapshot in IPFS",
		slog.String("cid", cid),
		slog.String("snapshot_id", id.String()))
	return id, nil
}

// Available checks if the IPFS node is reachable.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
