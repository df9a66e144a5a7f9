// Package bioauth implements registration and verification of encrypted
// biometric embeddings.
//
// Plaintext vectors exist in memory for the duration of a single call.
// Nothing in this package persists or logs them.
package bioauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/cryptoutils"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/metrics"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/vectormath"
)

// DefaultThreshold is the cosine similarity a challenge must reach.
const DefaultThreshold = 0.6

// Store is the persistence surface the service needs.
type Store interface {
	interfaces.EmbeddingStore
	interfaces.AuditLog
	interfaces.SubjectDirectory
	interfaces.ModelRegistry
	interfaces.ContributionLedger
}

// Config configures a Service.
type Config struct {
	Threshold float64
	Log       *slog.Logger
	Metrics   *metrics.Core
}

// Service performs biometric registration and verification.
type Service struct {
	store     Store
	codec     *cryptoutils.EmbeddingCodec
	threshold float64
	log       *slog.Logger
	metrics   *metrics.Core
}

// NewService creates a Service. A zero threshold falls back to
// DefaultThreshold.
func NewService(store Store, codec *cryptoutils.EmbeddingCodec, cfg Config) *Service {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		codec:     codec,
		threshold: threshold,
		log:       log,
		metrics:   cfg.Metrics,
	}
}

// Threshold returns the configured similarity threshold.
func (s *Service) Threshold() float64 { return s.threshold }

// Register encrypts and stores an embedding for a subject, replacing any
// previously active one. Registering the same vector twice returns the
// existing record. Any confidence in [0, 1] is accepted; quality gating
// is a caller policy, not a core invariant.
func (s *Service) Register(ctx context.Context, externalID string, embedding []float32, confidence float64) (interfaces.EmbeddingRecord, error) {
	if confidence < 0 || confidence > 1 {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("%w: confidence %v outside [0, 1]", interfaces.ErrConfidenceRange, confidence)
	}

	subject, err := s.store.ResolveSubject(ctx, externalID)
	if err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("resolving subject: %w", err)
	}

	ciphertext, err := s.codec.Encrypt(embedding)
	if err != nil {
		return interfaces.EmbeddingRecord{}, err
	}

	modelVersion := ""
	if active, err := s.store.ActiveModelVersion(ctx); err == nil {
		modelVersion = active.Version
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("fetching active model version: %w", err)
	}

	rec, err := s.store.RegisterEmbedding(ctx, interfaces.NewEmbedding{
		Subject:      subject.ID,
		Ciphertext:   ciphertext,
		ContentHash:  cryptoutils.ContentHash(ciphertext),
		Confidence:   confidence,
		ModelVersion: modelVersion,
	})
	if err != nil {
		return interfaces.EmbeddingRecord{}, fmt.Errorf("storing embedding: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Registrations.Inc()
	}
	s.log.InfoContext(ctx, "embedding registered",
		"subject", subject.ID, "embedding_id", rec.ID, "model_version", modelVersion)
	return rec, nil
}

// VerifyResult is the outcome of a verification attempt.
type VerifyResult struct {
	Success    bool
	Similarity float64
	Threshold  float64
	Reason     string // empty on success
}

// Verify compares a challenge vector against the subject's stored
// embedding. Every attempt past subject resolution writes exactly one
// audit entry, including internal failures.
func (s *Service) Verify(ctx context.Context, externalID string, challenge []float32, meta interfaces.ClientMetadata) (VerifyResult, error) {
	subject, err := s.store.ResolveSubject(ctx, externalID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("resolving subject: %w", err)
	}

	result, embeddingID, modelVersion := s.compare(ctx, subject.ID, challenge)

	entry := interfaces.AuditEntry{
		Subject:       subject.ID,
		EmbeddingID:   embeddingID,
		Success:       result.Success,
		Similarity:    result.Similarity,
		ModelVersion:  modelVersion,
		Timestamp:     time.Now().UTC(),
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		FailureReason: result.Reason,
	}
	if _, err := s.store.AppendAuditEntry(ctx, entry); err != nil {
		s.log.ErrorContext(ctx, "failed to write audit entry", "subject", subject.ID, "err", err)
	}

	if s.metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		s.metrics.VerificationAttempts.WithLabelValues(outcome).Inc()
	}

	if result.Success {
		if err := s.store.TouchEmbedding(ctx, embeddingID, entry.Timestamp); err != nil {
			s.log.WarnContext(ctx, "failed to update last_used", "embedding_id", embeddingID, "err", err)
		}
	}

	s.log.InfoContext(ctx, "verification attempt",
		"subject", subject.ID, "success", result.Success,
		"similarity", result.Similarity, "reason", result.Reason)
	return result, nil
}

// compare holds the decision logic: every return path maps to a distinct
// audit failure reason.
func (s *Service) compare(ctx context.Context, subject interfaces.SubjectID, challenge []float32) (VerifyResult, string, string) {
	fail := func(reason string) VerifyResult {
		return VerifyResult{Similarity: 0, Threshold: s.threshold, Reason: reason}
	}

	rec, err := s.store.ActiveEmbedding(ctx, subject)
	if errors.Is(err, interfaces.ErrNotFound) {
		return fail("no embedding registered"), "", ""
	} else if err != nil {
		s.log.ErrorContext(ctx, "failed to load embedding", "subject", subject, "err", err)
		return fail("storage error"), "", ""
	}

	stored, err := s.codec.Decrypt(rec.Ciphertext)
	if err != nil {
		s.log.WarnContext(ctx, "stored embedding failed to decrypt", "embedding_id", rec.ID, "err", err)
		return fail("decryption failed"), rec.ID, rec.ModelVersion
	}

	similarity, err := vectormath.CosineSimilarity(challenge, stored)
	if errors.Is(err, interfaces.ErrDimensionMismatch) {
		return fail("dimension mismatch"), rec.ID, rec.ModelVersion
	} else if errors.Is(err, interfaces.ErrDegenerateVector) {
		return fail("degenerate vector"), rec.ID, rec.ModelVersion
	} else if err != nil {
		return fail("comparison failed"), rec.ID, rec.ModelVersion
	}

	if similarity < s.threshold {
		result := fail(fmt.Sprintf("similarity %.4f below threshold %.4f", similarity, s.threshold))
		result.Similarity = similarity
		return result, rec.ID, rec.ModelVersion
	}

	return VerifyResult{
		Success:    true,
		Similarity: similarity,
		Threshold:  s.threshold,
	}, rec.ID, rec.ModelVersion
}

// StatusInfo is the public view of a subject's enrollment.
type StatusInfo struct {
	Registered    bool
	Confidence    float64
	ModelVersion  string
	CreatedAt     *time.Time
	LastUsed      *time.Time
	Contributions int
}

// Status reports whether a subject has an active embedding plus their
// contribution count. The ciphertext itself is never exposed.
func (s *Service) Status(ctx context.Context, externalID string) (StatusInfo, error) {
	subject, err := s.store.ResolveSubject(ctx, externalID)
	if err != nil {
		return StatusInfo{}, fmt.Errorf("resolving subject: %w", err)
	}

	contributions, err := s.store.ContributionCount(ctx, subject.ID)
	if err != nil {
		return StatusInfo{}, fmt.Errorf("counting contributions: %w", err)
	}
	info := StatusInfo{Contributions: contributions}

	rec, err := s.store.ActiveEmbedding(ctx, subject.ID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return info, nil
	} else if err != nil {
		return StatusInfo{}, fmt.Errorf("fetching embedding: %w", err)
	}

	created := rec.CreatedAt
	info.Registered = true
	info.Confidence = rec.Confidence
	info.ModelVersion = rec.ModelVersion
	info.CreatedAt = &created
	info.LastUsed = rec.LastUsed
	return info, nil
}

// Erase deactivates all of a subject's embeddings and reports how many
// were active. Erasing an already empty subject succeeds with zero.
func (s *Service) Erase(ctx context.Context, externalID string) (int, error) {
	subject, err := s.store.ResolveSubject(ctx, externalID)
	if err != nil {
		return 0, fmt.Errorf("resolving subject: %w", err)
	}

	n, err := s.store.DeactivateEmbeddings(ctx, subject.ID)
	if err != nil {
		return 0, fmt.Errorf("deactivating embeddings: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Erasures.Inc()
	}
	s.log.InfoContext(ctx, "embeddings erased", "subject", subject.ID, "count", n)
	return n, nil
}

// AuditTrail returns a subject's recent verification attempts.
func (s *Service) AuditTrail(ctx context.Context, externalID string, limit int) ([]interfaces.AuditEntry, error) {
	subject, err := s.store.ResolveSubject(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("resolving subject: %w", err)
	}
	return s.store.AuditEntriesFor(ctx, subject.ID, limit)
}
