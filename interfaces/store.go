package interfaces

import (
	"context"
	"time"
)

// EmbeddingStore persists encrypted biometric embeddings. At most one
// record per subject is active; deactivation never deletes.
type EmbeddingStore interface {
	// RegisterEmbedding stores a new embedding for a subject. If an
	// active record with the same content hash already exists for the
	// subject it is returned unchanged (idempotent re-registration).
	// Otherwise any existing active record is deactivated and the new
	// record inserted as active, in a single transaction: a concurrent
	// reader never observes zero active records for a subject that has
	// at least one registered.
	RegisterEmbedding(ctx context.Context, emb NewEmbedding) (EmbeddingRecord, error)

	// ActiveEmbedding returns the subject's active embedding, or
	// ErrNotFound when none is registered.
	ActiveEmbedding(ctx context.Context, subject SubjectID) (EmbeddingRecord, error)

	// TouchEmbedding updates the last-used timestamp of a record. No
	// other field is mutated.
	TouchEmbedding(ctx context.Context, id string, usedAt time.Time) error

	// DeactivateEmbeddings deactivates every active embedding of a
	// subject and returns the count. Idempotent: a second call yields 0.
	DeactivateEmbeddings(ctx context.Context, subject SubjectID) (int, error)
}

// ModelRegistry tracks versioned model parameter sets. Exactly one version
// is active at any observable instant.
type ModelRegistry interface {
	// CreateModelVersion inserts an inactive version. Returns
	// ErrDuplicateVersion when the identifier exists.
	CreateModelVersion(ctx context.Context, mv ModelVersion) (ModelVersion, error)

	// ActivateModelVersion atomically deactivates every other version,
	// activates the target, and stamps the deployment time. Returns
	// ErrNotFound for unknown versions. Under concurrent activations the
	// last writer wins; readers never observe zero or two active
	// versions.
	ActivateModelVersion(ctx context.Context, version string) (ModelVersion, error)

	// ActiveModelVersion returns the active version, or ErrNotFound.
	ActiveModelVersion(ctx context.Context) (ModelVersion, error)

	// GetModelVersion returns a version by identifier, or ErrNotFound.
	GetModelVersion(ctx context.Context, version string) (ModelVersion, error)
}

// ContributionLedger records gradient submissions and supports the
// consume-exactly-once aggregation step.
type ContributionLedger interface {
	// SubmitContribution records a submission. Subjects may contribute
	// multiple times per version; every submission is a distinct record.
	SubmitContribution(ctx context.Context, c NewContribution) (Contribution, error)

	// PendingCount counts contributions for a version not yet included
	// in an aggregation.
	PendingCount(ctx context.Context, version string) (int, error)

	// ContributionCount counts all submissions by one subject.
	ContributionCount(ctx context.Context, subject SubjectID) (int, error)

	// PendingDimension returns the gradient dimension of the oldest
	// pending contribution for a version, or 0 when none are pending.
	PendingDimension(ctx context.Context, version string) (int, error)

	// ConsumeAndCreateVersion runs the transactional half of federated
	// averaging. It locks the pending contributions of the version; if
	// fewer than minParticipants are pending it commits nothing and
	// returns ok=false. Otherwise it calls build with the locked set,
	// marks every contribution included, inserts the built version
	// (inactive), and commits, all in one transaction. A concurrent run for the
	// same version observes an empty pending set and degrades to a
	// no-op; each contribution is consumed by at most one run.
	ConsumeAndCreateVersion(ctx context.Context, version string, minParticipants int,
		build func([]Contribution) (ModelVersion, error)) (ModelVersion, bool, error)
}

// AuditLog is the append-only record of verification attempts.
type AuditLog interface {
	// AppendAuditEntry stores an entry, assigning ID and timestamp when
	// unset. Entries are never updated or deleted.
	AppendAuditEntry(ctx context.Context, e AuditEntry) (AuditEntry, error)

	// AuditEntriesFor returns a subject's entries, newest first.
	AuditEntriesFor(ctx context.Context, subject SubjectID, limit int) ([]AuditEntry, error)
}

// SubjectDirectory resolves external identifiers to subjects.
type SubjectDirectory interface {
	// CreateSubject registers a subject for an external identifier.
	CreateSubject(ctx context.Context, externalID string) (Subject, error)

	// ResolveSubject looks up a subject by external identifier, or
	// returns ErrNotFound.
	ResolveSubject(ctx context.Context, externalID string) (Subject, error)
}

// StatsReader serves public aggregate statistics.
type StatsReader interface {
	// TotalParticipants counts distinct subjects with an active
	// embedding.
	TotalParticipants(ctx context.Context) (int, error)

	// IncludedContributions counts contributions consumed by
	// aggregations.
	IncludedContributions(ctx context.Context) (int, error)
}

// Store is the full persistence surface of the core.
type Store interface {
	EmbeddingStore
	ModelRegistry
	ContributionLedger
	AuditLog
	SubjectDirectory
	StatsReader

	// Close releases underlying resources.
	Close() error
}
