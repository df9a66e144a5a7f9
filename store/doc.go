// Package store provides the transactional persistence layer for
// embeddings, model versions, gradient contributions, subjects, and the
// audit log.
//
// Two implementations of interfaces.Store are provided:
//
//   - PostgresStore: production persistence on PostgreSQL. The critical
//     sections (embedding swap on re-registration, model version
//     activation, and the consume-and-create step of aggregation) each
//     run in a single transaction with row locks, so readers never
//     observe partial states and each pending contribution is consumed
//     by at most one aggregation run.
//
//   - MemoryStore: mutex-guarded in-memory persistence with the same
//     semantics, used in tests and local development.
package store
