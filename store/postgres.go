package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements interfaces.Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection pool, verifies connectivity, and
// creates the schema when missing.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id UUID PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS biometric_embeddings (
		id UUID PRIMARY KEY,
		subject_id UUID NOT NULL REFERENCES subjects(id),
		ciphertext BYTEA NOT NULL,
		content_hash CHAR(64) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		model_version TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		last_used TIMESTAMP WITH TIME ZONE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_subject_active ON biometric_embeddings(subject_id, is_active);
	CREATE INDEX IF NOT EXISTS idx_embeddings_hash ON biometric_embeddings(content_hash);

	CREATE TABLE IF NOT EXISTS model_versions (
		version TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		participants INTEGER NOT NULL DEFAULT 0,
		average_loss DOUBLE PRECISION,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		deployed_at TIMESTAMP WITH TIME ZONE,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS gradient_contributions (
		id UUID PRIMARY KEY,
		subject_id UUID NOT NULL REFERENCES subjects(id),
		model_version TEXT NOT NULL REFERENCES model_versions(version),
		payload JSONB NOT NULL,
		loss DOUBLE PRECISION NOT NULL,
		sample_count INTEGER NOT NULL,
		submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		included BOOLEAN NOT NULL DEFAULT FALSE,
		included_at TIMESTAMP WITH TIME ZONE
	);
	CREATE INDEX IF NOT EXISTS idx_contributions_version_pending ON gradient_contributions(model_version, included);
	CREATE INDEX IF NOT EXISTS idx_contributions_subject ON gradient_contributions(subject_id);

	CREATE TABLE IF NOT EXISTS biometric_auth_log (
		id UUID PRIMARY KEY,
		subject_id UUID NOT NULL REFERENCES subjects(id),
		embedding_id UUID,
		success BOOLEAN NOT NULL,
		similarity DOUBLE PRECISION NOT NULL,
		model_version TEXT NOT NULL,
		ts TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		failure_reason TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_auth_log_subject_ts ON biometric_auth_log(subject_id, ts);
	`

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(migrateCtx, schema)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type embeddingRow struct {
	ID           string       `db:"id"`
	SubjectID    string       `db:"subject_id"`
	Ciphertext   []byte       `db:"ciphertext"`
	ContentHash  string       `db:"content_hash"`
	Confidence   float64      `db:"confidence"`
	ModelVersion string       `db:"model_version"`
	CreatedAt    time.Time    `db:"created_at"`
	LastUsed     sql.NullTime `db:"last_used"`
	IsActive     bool         `db:"is_active"`
}

func (r embeddingRow) record() interfaces.EmbeddingRecord {
	rec := interfaces.EmbeddingRecord{
		ID:           r.ID,
		Subject:      interfaces.SubjectID(r.SubjectID),
		Ciphertext:   r.Ciphertext,
		ContentHash:  r.ContentHash,
		Confidence:   r.Confidence,
		ModelVersion: r.ModelVersion,
		CreatedAt:    r.CreatedAt,
		Active:       r.IsActive,
	}
	if r.LastUsed.Valid {
		used := r.LastUsed.Time
		rec.LastUsed = &used
	}
	return rec
}

// RegisterEmbedding implements the atomic deduplicate-or-swap described
// by interfaces.EmbeddingStore. The subject row is locked for the
// duration of the transaction, serializing concurrent registrations for
// the same subject.
func (s *PostgresStore) RegisterEmbedding(ctx context.Context, emb interfaces.NewEmbedding) (interfaces.EmbeddingRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var subjectID string
	err = tx.GetContext(ctx, &subjectID, `SELECT id FROM subjects WHERE id = $1 FOR UPDATE`, string(emb.Subject))
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.EmbeddingRecord{}, interfaces.ErrNotFound
	} else if err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("locking subject: %w", err)
	}

	var existing embeddingRow
	err = tx.GetContext(ctx, &existing, `
		SELECT id, subject_id, ciphertext, content_hash, confidence, model_version, created_at, last_used, is_active
		FROM biometric_embeddings
		WHERE subject_id = $1 AND is_active AND content_hash = $2`,
		subjectID, emb.ContentHash)
	if err == nil {
		return existing.record(), nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("checking for duplicate embedding: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE biometric_embeddings SET is_active = FALSE
		WHERE subject_id = $1 AND is_active`, subjectID); err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("deactivating previous embeddings: %w", err)
	}

	var inserted embeddingRow
	err = tx.GetContext(ctx, &inserted, `
		INSERT INTO biometric_embeddings (id, subject_id, ciphertext, content_hash, confidence, model_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, subject_id, ciphertext, content_hash, confidence, model_version, created_at, last_used, is_active`,
		uuid.NewString(), subjectID, emb.Ciphertext, emb.ContentHash, emb.Confidence, emb.ModelVersion)
	if err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("inserting embedding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("committing registration: %w", err)
	}
	return inserted.record(), nil
}

// ActiveEmbedding returns the newest active embedding of a subject.
func (s *PostgresStore) ActiveEmbedding(ctx context.Context, subject interfaces.SubjectID) (interfaces.EmbeddingRecord, error) {
	var row embeddingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, subject_id, ciphertext, content_hash, confidence, model_version, created_at, last_used, is_active
		FROM biometric_embeddings
		WHERE subject_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT 1`, string(subject))
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.EmbeddingRecord{}, interfaces.ErrNotFound
	} else if err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("fetching active embedding: %w", err)
	}
	return row.record(), nil
}

// TouchEmbedding updates the last-used timestamp only.
func (s *PostgresStore) TouchEmbedding(ctx context.Context, id string, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE biometric_embeddings SET last_used = $2 WHERE id = $1`, id, usedAt)
	if err != nil {
		return fmt.Errorf("updating last_used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

// DeactivateEmbeddings soft-deletes every active embedding of a subject.
func (s *PostgresStore) DeactivateEmbeddings(ctx context.Context, subject interfaces.SubjectID) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE biometric_embeddings SET is_active = FALSE
		WHERE subject_id = $1 AND is_active`, string(subject))
	if err != nil {
		return 0, fmt.Errorf("deactivating embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type modelVersionRow struct {
	Version      string          `db:"version"`
	Payload      []byte          `db:"payload"`
	Participants int             `db:"participants"`
	AverageLoss  sql.NullFloat64 `db:"average_loss"`
	IsActive     bool            `db:"is_active"`
	CreatedAt    time.Time       `db:"created_at"`
	DeployedAt   sql.NullTime    `db:"deployed_at"`
	Notes        string          `db:"notes"`
}

func (r modelVersionRow) record() (interfaces.ModelVersion, error) {
	var payload interfaces.GradientPayload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("decoding model payload: %w", err)
	}
	mv := interfaces.ModelVersion{
		Version:      r.Version,
		Payload:      payload,
		Participants: r.Participants,
		Active:       r.IsActive,
		CreatedAt:    r.CreatedAt,
		Notes:        r.Notes,
	}
	if r.AverageLoss.Valid {
		loss := r.AverageLoss.Float64
		mv.AverageLoss = &loss
	}
	if r.DeployedAt.Valid {
		deployed := r.DeployedAt.Time
		mv.DeployedAt = &deployed
	}
	return mv, nil
}

const modelVersionColumns = `version, payload, participants, average_loss, is_active, created_at, deployed_at, notes`

// CreateModelVersion inserts an inactive model version.
func (s *PostgresStore) CreateModelVersion(ctx context.Context, mv interfaces.ModelVersion) (interfaces.ModelVersion, error) {
	payload, err := json.Marshal(mv.Payload)
	if err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("encoding model payload: %w", err)
	}

	var row modelVersionRow
	var avgLoss sql.NullFloat64
	if mv.AverageLoss != nil {
		avgLoss = sql.NullFloat64{Float64: *mv.AverageLoss, Valid: true}
	}
	err = s.db.GetContext(ctx, &row, `
		INSERT INTO model_versions (version, payload, participants, average_loss, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+modelVersionColumns,
		mv.Version, payload, mv.Participants, avgLoss, mv.Notes)
	if isUniqueViolation(err) {
		return interfaces.ModelVersion{}, interfaces.ErrDuplicateVersion
	} else if err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("inserting model version: %w", err)
	}
	return row.record()
}

// ActivateModelVersion performs the atomic activation swap. The
// deactivate-all and activate-target updates commit together, so readers
// observe exactly one active version at every instant.
func (s *PostgresStore) ActivateModelVersion(ctx context.Context, version string) (interfaces.ModelVersion, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Lock the target row first; concurrent activations serialize here.
	var exists string
	err = tx.GetContext(ctx, &exists, `SELECT version FROM model_versions WHERE version = $1 FOR UPDATE`, version)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ModelVersion{}, interfaces.ErrNotFound
	} else if err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("locking model version: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE model_versions SET is_active = FALSE WHERE is_active AND version <> $1`, version); err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("deactivating model versions: %w", err)
	}

	var row modelVersionRow
	err = tx.GetContext(ctx, &row, `
		UPDATE model_versions SET is_active = TRUE, deployed_at = NOW()
		WHERE version = $1
		RETURNING `+modelVersionColumns, version)
	if err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("activating model version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("committing activation: %w", err)
	}
	return row.record()
}

// ActiveModelVersion returns the single active version.
func (s *PostgresStore) ActiveModelVersion(ctx context.Context) (interfaces.ModelVersion, error) {
	var row modelVersionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+modelVersionColumns+` FROM model_versions WHERE is_active LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ModelVersion{}, interfaces.ErrNotFound
	} else if err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("fetching active model version: %w", err)
	}
	return row.record()
}

// GetModelVersion returns a version by identifier.
func (s *PostgresStore) GetModelVersion(ctx context.Context, version string) (interfaces.ModelVersion, error) {
	var row modelVersionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+modelVersionColumns+` FROM model_versions WHERE version = $1`, version)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.ModelVersion{}, interfaces.ErrNotFound
	} else if err != nil {
		return interfaces.ModelVersion{}, fmt.Errorf("fetching model version: %w", err)
	}
	return row.record()
}

type contributionRow struct {
	ID           string       `db:"id"`
	SubjectID    string       `db:"subject_id"`
	ModelVersion string       `db:"model_version"`
	Payload      []byte       `db:"payload"`
	Loss         float64      `db:"loss"`
	SampleCount  int          `db:"sample_count"`
	SubmittedAt  time.Time    `db:"submitted_at"`
	Included     bool         `db:"included"`
	IncludedAt   sql.NullTime `db:"included_at"`
}

func (r contributionRow) record() (interfaces.Contribution, error) {
	var payload interfaces.GradientPayload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return interfaces.Contribution{}, fmt.Errorf("decoding gradient payload: %w", err)
	}
	c := interfaces.Contribution{
		ID:           r.ID,
		Subject:      interfaces.SubjectID(r.SubjectID),
		ModelVersion: r.ModelVersion,
		Payload:      payload,
		Loss:         r.Loss,
		SampleCount:  r.SampleCount,
		SubmittedAt:  r.SubmittedAt,
		Included:     r.Included,
	}
	if r.IncludedAt.Valid {
		included := r.IncludedAt.Time
		c.IncludedAt = &included
	}
	return c, nil
}

const contributionColumns = `id, subject_id, model_version, payload, loss, sample_count, submitted_at, included, included_at`

// SubmitContribution records a gradient submission.
func (s *PostgresStore) SubmitContribution(ctx context.Context, c interfaces.NewContribution) (interfaces.Contribution, error) {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return interfaces.Contribution{}, fmt.Errorf("encoding gradient payload: %w", err)
	}

	var row contributionRow
	err = s.db.GetContext(ctx, &row, `
		INSERT INTO gradient_contributions (id, subject_id, model_version, payload, loss, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+contributionColumns,
		uuid.NewString(), string(c.Subject), c.ModelVersion, payload, c.Loss, c.SampleCount)
	if isForeignKeyViolation(err) {
		return interfaces.Contribution{}, interfaces.ErrNotFound
	} else if err != nil {
		return interfaces.Contribution{}, fmt.Errorf("inserting contribution: %w", err)
	}
	return row.record()
}

// PendingCount counts not-yet-included contributions for a version.
func (s *PostgresStore) PendingCount(ctx context.Context, version string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM gradient_contributions
		WHERE model_version = $1 AND NOT included`, version)
	if err != nil {
		return 0, fmt.Errorf("counting pending contributions: %w", err)
	}
	return n, nil
}

// ContributionCount counts all submissions of a subject.
func (s *PostgresStore) ContributionCount(ctx context.Context, subject interfaces.SubjectID) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM gradient_contributions WHERE subject_id = $1`, string(subject))
	if err != nil {
		return 0, fmt.Errorf("counting contributions: %w", err)
	}
	return n, nil
}

// PendingDimension returns the gradient dimension of the oldest pending
// contribution for a version, or 0 when none are pending.
func (s *PostgresStore) PendingDimension(ctx context.Context, version string) (int, error) {
	var dim int
	err := s.db.GetContext(ctx, &dim, `
		SELECT (payload->>'dimension')::int FROM gradient_contributions
		WHERE model_version = $1 AND NOT included
		ORDER BY submitted_at
		LIMIT 1`, version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("fetching pending dimension: %w", err)
	}
	return dim, nil
}

// ConsumeAndCreateVersion implements the transactional half of federated
// averaging. The pending rows are locked with FOR UPDATE: a concurrent
// run for the same version blocks on the locks and, once this
// transaction commits, finds nothing pending and becomes a no-op.
func (s *PostgresStore) ConsumeAndCreateVersion(ctx context.Context, version string, minParticipants int,
	build func([]interfaces.Contribution) (interfaces.ModelVersion, error)) (interfaces.ModelVersion, bool, error) {

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return interfaces.ModelVersion{}, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var rows []contributionRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT `+contributionColumns+`
		FROM gradient_contributions
		WHERE model_version = $1 AND NOT included
		ORDER BY submitted_at
		FOR UPDATE`, version)
	if err != nil {
		return interfaces.ModelVersion{}, false, fmt.Errorf("locking pending contributions: %w", err)
	}

	if len(rows) < minParticipants {
		return interfaces.ModelVersion{}, false, nil
	}

	pending := make([]interfaces.Contribution, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		c, err := r.record()
		if err != nil {
			return interfaces.ModelVersion{}, false, err
		}
		pending[i] = c
		ids[i] = r.ID
	}

	built, err := build(pending)
	if err != nil {
		return interfaces.ModelVersion{}, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE gradient_contributions SET included = TRUE, included_at = NOW()
		WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return interfaces.ModelVersion{}, false, fmt.Errorf("marking contributions included: %w", err)
	}

	payload, err := json.Marshal(built.Payload)
	if err != nil {
		return interfaces.ModelVersion{}, false, fmt.Errorf("encoding model payload: %w", err)
	}
	var avgLoss sql.NullFloat64
	if built.AverageLoss != nil {
		avgLoss = sql.NullFloat64{Float64: *built.AverageLoss, Valid: true}
	}

	var row modelVersionRow
	err = tx.GetContext(ctx, &row, `
		INSERT INTO model_versions (version, payload, participants, average_loss, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+modelVersionColumns,
		built.Version, payload, built.Participants, avgLoss, built.Notes)
	if isUniqueViolation(err) {
		return interfaces.ModelVersion{}, false, interfaces.ErrDuplicateVersion
	} else if err != nil {
		return interfaces.ModelVersion{}, false, fmt.Errorf("inserting aggregated model version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return interfaces.ModelVersion{}, false, fmt.Errorf("committing aggregation: %w", err)
	}

	created, err := row.record()
	if err != nil {
		return interfaces.ModelVersion{}, false, err
	}
	return created, true, nil
}

// AppendAuditEntry stores one verification attempt.
func (s *PostgresStore) AppendAuditEntry(ctx context.Context, e interfaces.AuditEntry) (interfaces.AuditEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var embeddingID sql.NullString
	if e.EmbeddingID != "" {
		embeddingID = sql.NullString{String: e.EmbeddingID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO biometric_auth_log (id, subject_id, embedding_id, success, similarity, model_version, ts, ip, user_agent, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Subject), embeddingID, e.Success, e.Similarity, e.ModelVersion, e.Timestamp, e.IP, e.UserAgent, e.FailureReason)
	if err != nil {
		return interfaces.AuditEntry{}, fmt.Errorf("inserting audit entry: %w", err)
	}
	return e, nil
}

type auditRow struct {
	ID            string         `db:"id"`
	SubjectID     string         `db:"subject_id"`
	EmbeddingID   sql.NullString `db:"embedding_id"`
	Success       bool           `db:"success"`
	Similarity    float64        `db:"similarity"`
	ModelVersion  string         `db:"model_version"`
	Timestamp     time.Time      `db:"ts"`
	IP            string         `db:"ip"`
	UserAgent     string         `db:"user_agent"`
	FailureReason string         `db:"failure_reason"`
}

// AuditEntriesFor returns a subject's entries, newest first.
func (s *PostgresStore) AuditEntriesFor(ctx context.Context, subject interfaces.SubjectID, limit int) ([]interfaces.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, subject_id, embedding_id, success, similarity, model_version, ts, ip, user_agent, failure_reason
		FROM biometric_auth_log
		WHERE subject_id = $1
		ORDER BY ts DESC
		LIMIT $2`, string(subject), limit)
	if err != nil {
		return nil, fmt.Errorf("fetching audit entries: %w", err)
	}

	entries := make([]interfaces.AuditEntry, len(rows))
	for i, r := range rows {
		entries[i] = interfaces.AuditEntry{
			ID:            r.ID,
			Subject:       interfaces.SubjectID(r.SubjectID),
			EmbeddingID:   r.EmbeddingID.String,
			Success:       r.Success,
			Similarity:    r.Similarity,
			ModelVersion:  r.ModelVersion,
			Timestamp:     r.Timestamp,
			IP:            r.IP,
			UserAgent:     r.UserAgent,
			FailureReason: r.FailureReason,
		}
	}
	return entries, nil
}

// CreateSubject registers a subject for an external identifier. Repeated
// calls for the same identifier return the existing subject.
func (s *PostgresStore) CreateSubject(ctx context.Context, externalID string) (interfaces.Subject, error) {
	var row struct {
		ID         string    `db:"id"`
		ExternalID string    `db:"external_id"`
		CreatedAt  time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO subjects (id, external_id)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, external_id, created_at`,
		uuid.NewString(), externalID)
	if err != nil {
		return interfaces.Subject{}, fmt.Errorf("inserting subject: %w", err)
	}
	return interfaces.Subject{
		ID:         interfaces.SubjectID(row.ID),
		ExternalID: row.ExternalID,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// ResolveSubject looks up a subject by external identifier.
func (s *PostgresStore) ResolveSubject(ctx context.Context, externalID string) (interfaces.Subject, error) {
	var row struct {
		ID         string    `db:"id"`
		ExternalID string    `db:"external_id"`
		CreatedAt  time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT id, external_id, created_at FROM subjects WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.Subject{}, interfaces.ErrNotFound
	} else if err != nil {
		return interfaces.Subject{}, fmt.Errorf("resolving subject: %w", err)
	}
	return interfaces.Subject{
		ID:         interfaces.SubjectID(row.ID),
		ExternalID: row.ExternalID,
		CreatedAt:  row.CreatedAt,
	}, nil
}

// TotalParticipants counts distinct subjects with an active embedding.
func (s *PostgresStore) TotalParticipants(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(DISTINCT subject_id) FROM biometric_embeddings WHERE is_active`)
	if err != nil {
		return 0, fmt.Errorf("counting participants: %w", err)
	}
	return n, nil
}

// IncludedContributions counts contributions consumed by aggregations.
func (s *PostgresStore) IncludedContributions(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM gradient_contributions WHERE included`)
	if err != nil {
		return 0, fmt.Errorf("counting included contributions: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
