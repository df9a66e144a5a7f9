package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// MultiBackend replicates snapshots across several backends. Stores go
// to every available backend; fetches return from the first backend
// holding the snapshot.
type MultiBackend struct {
	backends []interfaces.SnapshotBackend
	log      *slog.Logger
}

// NewMultiBackend creates a replicating backend.
func NewMultiBackend(backends []interfaces.SnapshotBackend, logger *slog.Logger) *MultiBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch tries each available backend in order.
func (m *MultiBackend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	start := time.Now()
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("snapshot_id", id.String()))
			continue
		}

		data, err := backend.Fetch(ctx, id)
		if err == nil {
			m.log.Info("Fetched snapshot",
				slog.String("backend_name", backend.Name()),
				slog.String("snapshot_id", id.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("snapshot_id", id.String()),
			"err", err)
	}

	m.log.Error("All backends failed to fetch snapshot",
		slog.String("snapshot_id", id.String()),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return nil, fmt.Errorf("all backends failed to fetch %s: %v", id.String(), errs)
}

// Store writes to every available backend. It succeeds if at least one
// backend accepted the snapshot.
func (m *MultiBackend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	start := time.Now()
	id := interfaces.ComputeSnapshotID(data)
	var success bool
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			continue
		}

		stored, err := backend.Store(ctx, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		if !stored.Equal(id) {
			// Same data must produce the same hash.
			m.log.Warn("Inconsistent snapshot IDs from backends",
				slog.String("backend_name", backend.Name()),
				slog.String("expected_id", id.String()),
				slog.String("actual_id", stored.String()))
			continue
		}

		if !success {
			success = true
			m.log.Info("Stored snapshot",
				slog.String("backend_name", backend.Name()),
				slog.String("snapshot_id", id.String()),
				slog.Duration("duration", time.Since(start)))
		}
	}

	if !success {
		m.log.Error("All backends failed to store snapshot",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return id, fmt.Errorf("all backends failed to store snapshot: %v", errs)
	}
	return id, nil
}

// Available reports whether any backend is reachable.
func (m *MultiBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined URI listing every underlying backend.
func (m *MultiBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
