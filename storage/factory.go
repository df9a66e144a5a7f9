package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// SnapshotBackendFactory creates snapshot backends from location URIs
// and aggregates several into replicating multi-backends.
type SnapshotBackendFactory struct {
	log *slog.Logger
}

// NewSnapshotBackendFactory creates a factory instance.
func NewSnapshotBackendFactory(logger *slog.Logger) *SnapshotBackendFactory {
	return &SnapshotBackendFactory{log: logger}
}

// BackendFor creates a snapshot backend from a parsed location URI.
//
// Supported schemes:
//   - file:// - local filesystem
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS node
func (sf *SnapshotBackendFactory) BackendFor(loc interfaces.SnapshotLocation) (interfaces.SnapshotBackend, error) {
	switch strings.ToLower(loc.Scheme) {
	case "ipfs":
		return sf.createIPFSBackend(loc)
	case "s3":
		return sf.createS3Backend(loc)
	case "file":
		return sf.createFileBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidSnapshotURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a replicating backend from a list of
// location URIs. Backends that fail to construct are skipped with a
// warning. Returns an error if no backend could be created.
func (sf *SnapshotBackendFactory) CreateMultiBackend(locs []interfaces.SnapshotLocation) (interfaces.SnapshotBackend, error) {
	backends := make([]interfaces.SnapshotBackend, 0, len(locs))

	for _, loc := range locs {
		backend, err := sf.BackendFor(loc)
		if err != nil {
			sf.log.Warn("Failed to create snapshot backend",
				"err", err,
				slog.String("locationURI", loc.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid snapshot backends created")
	}
	return NewMultiBackend(backends, sf.log), nil
}

// createIPFSBackend creates an IPFS backend.
// URI format: ipfs://host:port/?timeout=30s
func (sf *SnapshotBackendFactory) createIPFSBackend(loc interfaces.SnapshotLocation) (interfaces.SnapshotBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", loc.String()))

	host := loc.Host
	port := "5001"
	if idx := strings.LastIndex(loc.Host, ":"); idx >= 0 {
		host = loc.Host[:idx]
		port = loc.Host[idx+1:]
	}

	timeout := loc.Query.Get("timeout")
	if timeout == "" {
		timeout = "30s"
	}
	return NewIPFSBackend(host, port, timeout, sf.log)
}

// createS3Backend creates an S3 backend.
// URI format: s3://bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
// Credentials come from access_key and secret_key query parameters or
// the AWS SDK's default chain.
func (sf *SnapshotBackendFactory) createS3Backend(loc interfaces.SnapshotLocation) (interfaces.SnapshotBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("uri", loc.String()))

	bucketName := loc.Host
	prefix := strings.TrimPrefix(loc.Path, "/")

	region := loc.Query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := loc.Query.Get("endpoint")
	accessKey := loc.Query.Get("access_key")
	secretKey := loc.Query.Get("secret_key")

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, sf.log)
}

// createFileBackend creates a file system backend.
// URI format: file:///absolute/path/
func (sf *SnapshotBackendFactory) createFileBackend(loc interfaces.SnapshotLocation) (interfaces.SnapshotBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %q", interfaces.ErrInvalidSnapshotURI, loc.String())
	}
	return NewFileBackend(path, sf.log)
}
