// Package interfaces defines the shared domain types, error values, and
// store interfaces for the federated biometric authentication backend.
//
// The package is the dependency root of the module: every other package
// imports it and it imports nothing outside the standard library. It
// contains:
//
//   - Domain records: EmbeddingRecord, ModelVersion, Contribution,
//     AuditEntry, Subject
//   - GradientPayload, the tagged vector type exchanged with clients
//   - The Store interface family implemented by the store package
//   - SnapshotBackend, the content-addressed archival interface
//     implemented by the storage package
//   - Sentinel errors shared across the module
//
// # Error Taxonomy
//
// Callers classify failures with errors.Is against the sentinel values:
//
//   - Validation errors (ErrDimensionMismatch, ErrConfidenceRange,
//     ErrEmptyGradient, ErrInvalidSampleCount) are surfaced to the
//     caller and never retried.
//   - ErrNotFound covers unknown subjects, model versions, and missing
//     active embeddings.
//   - ErrCryptoFailure and ErrMissingKey cover codec failures; they are
//     surfaced as authentication failures and never leak plaintext.
//   - ErrDuplicateVersion signals a model version identifier conflict.
//   - ErrDegenerateVector signals a zero-norm vector; it is a
//     verification failure, not a system fault.
package interfaces
