package interfaces

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SnapshotID is a 32-byte SHA-256 hash uniquely identifying an archived
// model snapshot.
type SnapshotID [32]byte

// ComputeSnapshotID calculates the snapshot ID of serialized data.
func ComputeSnapshotID(data []byte) SnapshotID {
	return SnapshotID(sha256.Sum256(data))
}

// NewSnapshotIDFromHex parses a 64-character hex string into a SnapshotID.
func NewSnapshotIDFromHex(source string) (SnapshotID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return SnapshotID{}, errors.New("invalid snapshot ID length: hex string must be 64 characters")
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return SnapshotID{}, fmt.Errorf("invalid hex format: %w", err)
	}
	var id SnapshotID
	copy(id[:], raw)
	return id, nil
}

// String returns the hex representation.
func (id SnapshotID) String() string {
	return hex.EncodeToString(id[:])
}

// Equal compares two snapshot IDs.
func (id SnapshotID) Equal(other SnapshotID) bool {
	return bytes.Equal(id[:], other[:])
}

// SnapshotLocation is a parsed storage backend URI.
type SnapshotLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values
}

// NewSnapshotLocation parses and validates a snapshot backend URI.
// Supported schemes: file, s3, ipfs.
func NewSnapshotLocation(uri string) (SnapshotLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return SnapshotLocation{}, fmt.Errorf("%w: %v", ErrInvalidSnapshotURI, err)
	}
	switch parsed.Scheme {
	case "file", "s3", "ipfs":
	default:
		return SnapshotLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSnapshotURI, parsed.Scheme)
	}
	return SnapshotLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
	}, nil
}

// String returns the original URI.
func (loc SnapshotLocation) String() string { return loc.Raw }

var (
	// ErrSnapshotNotFound is returned when a snapshot is absent from the
	// backend.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrBackendUnavailable is returned when a snapshot backend cannot
	// be reached.
	ErrBackendUnavailable = errors.New("snapshot backend unavailable")

	// ErrInvalidSnapshotURI is returned for malformed or unsupported
	// backend URIs.
	ErrInvalidSnapshotURI = errors.New("invalid snapshot location URI")
)

// SnapshotBackend provides content-addressed archival of serialized model
// snapshots.
type SnapshotBackend interface {
	// Fetch retrieves a snapshot by ID.
	Fetch(ctx context.Context, id SnapshotID) ([]byte, error)

	// Store archives a snapshot and returns its ID.
	Store(ctx context.Context, data []byte) (SnapshotID, error)

	// Available checks whether the backend is reachable.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// SnapshotBackendFactory creates snapshot backends from URIs.
type SnapshotBackendFactory interface {
	// BackendFor creates a backend from a parsed URI.
	BackendFor(loc SnapshotLocation) (SnapshotBackend, error)

	// CreateMultiBackend aggregates several backends into one
	// replicating backend.
	CreateMultiBackend(locs []SnapshotLocation) (SnapshotBackend, error)
}
