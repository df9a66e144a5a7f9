package interfaces

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SubjectID is the stable internal identifier of an enrolled person.
type SubjectID string

// Subject links an external identifier (for example an EPIC voter number)
// to the internal subject ID every other record references.
type Subject struct {
	ID         SubjectID
	ExternalID string
	CreatedAt  time.Time
}

// EmbeddingRecord is a stored biometric embedding. Only ciphertext is ever
// persisted; the plaintext vector exists in memory during registration and
// verification only.
type EmbeddingRecord struct {
	ID           string
	Subject      SubjectID
	Ciphertext   []byte
	ContentHash  string
	Confidence   float64
	ModelVersion string
	CreatedAt    time.Time
	LastUsed     *time.Time
	Active       bool
}

// NewEmbedding carries the fields of an embedding registration. The store
// assigns ID and CreatedAt and manages the active flag.
type NewEmbedding struct {
	Subject      SubjectID
	Ciphertext   []byte
	ContentHash  string
	Confidence   float64
	ModelVersion string
}

// GradientPayload is the tagged vector type exchanged with clients. Dim is
// redundant with len(Values) on purpose: both are validated on every
// boundary crossing instead of trusting dynamic structure.
type GradientPayload struct {
	Dim    int       `json:"dimension"`
	Values []float64 `json:"values"`
}

// Validate checks internal consistency. Empty payloads are rejected;
// aggregated model payloads use ValidateAllowEmpty instead because the
// bootstrap version carries no weights.
func (p GradientPayload) Validate() error {
	if len(p.Values) == 0 {
		return ErrEmptyGradient
	}
	if p.Dim != len(p.Values) {
		return fmt.Errorf("%w: declared %d, got %d values", ErrDimensionMismatch, p.Dim, len(p.Values))
	}
	return nil
}

// ValidateAllowEmpty checks the dimension tag only.
func (p GradientPayload) ValidateAllowEmpty() error {
	if p.Dim != len(p.Values) {
		return fmt.Errorf("%w: declared %d, got %d values", ErrDimensionMismatch, p.Dim, len(p.Values))
	}
	return nil
}

// ModelVersion is one version of the federated model. The payload is
// treated as an opaque numeric vector and never interpreted by this core.
// At most one version is active system-wide.
type ModelVersion struct {
	Version      string
	Payload      GradientPayload
	Participants int
	AverageLoss  *float64
	Active       bool
	CreatedAt    time.Time
	DeployedAt   *time.Time
	Notes        string
}

// Contribution is one client gradient submission tied to a model version.
// It transitions Included false->true exactly once, atomically with the
// aggregation that consumes it, and is never mutated afterwards.
type Contribution struct {
	ID           string
	Subject      SubjectID
	ModelVersion string
	Payload      GradientPayload
	Loss         float64
	SampleCount  int
	SubmittedAt  time.Time
	Included     bool
	IncludedAt   *time.Time
}

// NewContribution carries the fields of a gradient submission.
type NewContribution struct {
	Subject      SubjectID
	ModelVersion string
	Payload      GradientPayload
	Loss         float64
	SampleCount  int
}

// ClientMetadata is request metadata recorded for auditing only. It is
// never used for authentication decisions.
type ClientMetadata struct {
	IP        string
	UserAgent string
}

// AuditEntry is one verification attempt. Entries are append-only and
// never updated or deleted by this core.
type AuditEntry struct {
	ID            string
	Subject       SubjectID
	EmbeddingID   string // empty when no embedding existed
	Success       bool
	Similarity    float64
	ModelVersion  string
	Timestamp     time.Time
	IP            string
	UserAgent     string
	FailureReason string // empty on success
}

// Stats is the public aggregate view of the federation. It contains no
// per-subject data.
type Stats struct {
	TotalParticipants  int
	TotalContributions int
	ActiveVersion      string
}

// BumpMajor computes the successor version created by an aggregation run:
// vN.x.y becomes v(N+1).0.0. Minor and patch components are discarded.
func BumpMajor(version string) (string, error) {
	if !strings.HasPrefix(version, "v") {
		return "", fmt.Errorf("%w: %q lacks v prefix", ErrVersionSyntax, version)
	}
	major := strings.SplitN(strings.TrimPrefix(version, "v"), ".", 2)[0]
	n, err := strconv.Atoi(major)
	if err != nil || n < 0 {
		return "", fmt.Errorf("%w: %q has no numeric major component", ErrVersionSyntax, version)
	}
	return fmt.Sprintf("v%d.0.0", n+1), nil
}
