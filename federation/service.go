// Package federation implements gradient collection and federated
// averaging over the contribution ledger.
//
// Aggregation is opportunistic: every accepted contribution attempts a
// round, and the round runs only when the pending set for the submitted
// version reaches the participation quorum. The store serializes
// concurrent rounds, so each contribution is consumed exactly once.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/metrics"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/vectormath"
)

const (
	// DefaultMinParticipants is the aggregation quorum.
	DefaultMinParticipants = 10

	// InitialVersion is created and activated on first boot so clients
	// always have a version to contribute against.
	InitialVersion = "v1.0.0"
)

// Store is the persistence surface the service needs.
type Store interface {
	interfaces.ModelRegistry
	interfaces.ContributionLedger
	interfaces.SubjectDirectory
	interfaces.StatsReader
}

// Config configures a Service.
type Config struct {
	MinParticipants int
	Log             *slog.Logger
	Metrics         *metrics.Core

	// Snapshots, when set, receives a serialized archive of every
	// aggregated version. Archival is best effort and never fails the
	// aggregation.
	Snapshots interfaces.SnapshotBackend
}

// Service manages model versions and gradient contributions.
type Service struct {
	store           Store
	minParticipants int
	log             *slog.Logger
	metrics         *metrics.Core
	snapshots       interfaces.SnapshotBackend
}

// NewService creates a Service. A zero quorum falls back to
// DefaultMinParticipants.
func NewService(store Store, cfg Config) *Service {
	minParticipants := cfg.MinParticipants
	if minParticipants <= 0 {
		minParticipants = DefaultMinParticipants
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:           store,
		minParticipants: minParticipants,
		log:             log,
		metrics:         cfg.Metrics,
		snapshots:       cfg.Snapshots,
	}
}

// MinParticipants returns the configured quorum.
func (s *Service) MinParticipants() int { return s.minParticipants }

// EnsureInitialVersion bootstraps an empty registry with an active
// initial version. Calling it on a populated registry is a no-op.
func (s *Service) EnsureInitialVersion(ctx context.Context) error {
	_, err := s.store.ActiveModelVersion(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("checking active model version: %w", err)
	}

	_, err = s.store.CreateModelVersion(ctx, interfaces.ModelVersion{
		Version: InitialVersion,
		Payload: interfaces.GradientPayload{},
		Notes:   "bootstrap version",
	})
	if err != nil && !errors.Is(err, interfaces.ErrDuplicateVersion) {
		return fmt.Errorf("creating initial model version: %w", err)
	}

	if _, err := s.store.ActivateModelVersion(ctx, InitialVersion); err != nil {
		return fmt.Errorf("activating initial model version: %w", err)
	}
	s.log.InfoContext(ctx, "bootstrapped model registry", "version", InitialVersion)
	return nil
}

// SubmitResult reports what a submission caused.
type SubmitResult struct {
	Contribution interfaces.Contribution
	PendingCount int

	// Aggregated is set when this submission completed a quorum and
	// produced a new version.
	Aggregated *interfaces.ModelVersion
}

// Submit records a gradient contribution against a named model version
// and runs an aggregation round if the quorum is reached. Unknown
// versions fail with ErrNotFound. A payload whose dimension differs from
// the version's open round is rejected up front, so a round never
// collects gradients it cannot average.
func (s *Service) Submit(ctx context.Context, externalID, version string, payload interfaces.GradientPayload, loss float64, sampleCount int) (SubmitResult, error) {
	if err := payload.Validate(); err != nil {
		return SubmitResult{}, err
	}
	if sampleCount <= 0 {
		return SubmitResult{}, fmt.Errorf("%w: %d", interfaces.ErrInvalidSampleCount, sampleCount)
	}

	subject, err := s.store.ResolveSubject(ctx, externalID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("resolving subject: %w", err)
	}

	target, err := s.store.GetModelVersion(ctx, version)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("fetching model version %q: %w", version, err)
	}

	roundDim, err := s.store.PendingDimension(ctx, target.Version)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("checking round dimension: %w", err)
	}
	if roundDim == 0 {
		roundDim = target.Payload.Dim
	}
	if roundDim > 0 && payload.Dim != roundDim {
		return SubmitResult{}, fmt.Errorf("%w: gradient dimension %d, round uses %d",
			interfaces.ErrDimensionMismatch, payload.Dim, roundDim)
	}

	contribution, err := s.store.SubmitContribution(ctx, interfaces.NewContribution{
		Subject:      subject.ID,
		ModelVersion: target.Version,
		Payload:      payload,
		Loss:         loss,
		SampleCount:  sampleCount,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("recording contribution: %w", err)
	}
	if s.metrics != nil {
		s.metrics.Contributions.Inc()
	}

	created, aggregated, err := s.MaybeAggregate(ctx, target.Version)
	if err != nil {
		// The contribution itself is recorded; the caller learns the
		// round it completed could not run.
		return SubmitResult{Contribution: contribution}, fmt.Errorf("aggregation round failed: %w", err)
	}

	result := SubmitResult{Contribution: contribution}
	if aggregated {
		result.Aggregated = &created
	} else {
		pending, err := s.store.PendingCount(ctx, target.Version)
		if err != nil {
			return result, fmt.Errorf("counting pending contributions: %w", err)
		}
		result.PendingCount = pending
	}
	return result, nil
}

// MaybeAggregate runs one federated averaging round over a version's
// pending contributions. It returns false when the quorum is not met or
// a concurrent round already consumed the pending set.
func (s *Service) MaybeAggregate(ctx context.Context, version string) (interfaces.ModelVersion, bool, error) {
	source, err := s.store.GetModelVersion(ctx, version)
	if err != nil {
		return interfaces.ModelVersion{}, false, fmt.Errorf("fetching model version %q: %w", version, err)
	}

	nextVersion, err := interfaces.BumpMajor(source.Version)
	if err != nil {
		return interfaces.ModelVersion{}, false, err
	}

	created, ok, err := s.store.ConsumeAndCreateVersion(ctx, source.Version, s.minParticipants, func(pending []interfaces.Contribution) (interfaces.ModelVersion, error) {
		return s.average(nextVersion, pending)
	})
	if err != nil {
		return interfaces.ModelVersion{}, false, err
	}
	if !ok {
		return interfaces.ModelVersion{}, false, nil
	}

	if s.metrics != nil {
		s.metrics.AggregationRuns.Inc()
	}
	s.log.InfoContext(ctx, "aggregation round complete",
		"from", source.Version, "to", created.Version, "participants", created.Participants)

	s.archiveSnapshot(ctx, created)
	return created, true, nil
}

// average computes the sample-weighted mean of the pending gradients.
// Each contribution's weight is its sample count divided by the round's
// total samples.
func (s *Service) average(version string, pending []interfaces.Contribution) (interfaces.ModelVersion, error) {
	dim := pending[0].Payload.Dim
	totalSamples := 0
	for _, c := range pending {
		if c.Payload.Dim != dim {
			return interfaces.ModelVersion{}, fmt.Errorf("%w: contribution %s has dimension %d, round uses %d",
				interfaces.ErrDimensionMismatch, c.ID, c.Payload.Dim, dim)
		}
		totalSamples += c.SampleCount
	}

	acc := make([]float64, dim)
	losses := make([]float64, len(pending))
	for i, c := range pending {
		weight := float64(c.SampleCount) / float64(totalSamples)
		if err := vectormath.WeightedAccumulate(acc, c.Payload.Values, weight); err != nil {
			return interfaces.ModelVersion{}, err
		}
		losses[i] = c.Loss
	}
	avgLoss := vectormath.Mean(losses)

	return interfaces.ModelVersion{
		Version:      version,
		Payload:      interfaces.GradientPayload{Dim: dim, Values: acc},
		Participants: len(pending),
		AverageLoss:  &avgLoss,
		Notes:        fmt.Sprintf("aggregated from %d contributions, %d samples", len(pending), totalSamples),
	}, nil
}

// modelSnapshot is the archive format written to snapshot backends.
type modelSnapshot struct {
	Version      string                     `json:"version"`
	Payload      interfaces.GradientPayload `json:"payload"`
	Participants int                        `json:"participants"`
	AverageLoss  *float64                   `json:"average_loss,omitempty"`
	CreatedAt    string                     `json:"created_at"`
}

func (s *Service) archiveSnapshot(ctx context.Context, mv interfaces.ModelVersion) {
	if s.snapshots == nil {
		return
	}

	data, err := json.Marshal(modelSnapshot{
		Version:      mv.Version,
		Payload:      mv.Payload,
		Participants: mv.Participants,
		AverageLoss:  mv.AverageLoss,
		CreatedAt:    mv.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to serialize model snapshot", "version", mv.Version, "err", err)
		return
	}

	id, err := s.snapshots.Store(ctx, data)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SnapshotFailures.Inc()
		}
		s.log.WarnContext(ctx, "failed to archive model snapshot",
			"version", mv.Version, "backend", s.snapshots.Name(), "err", err)
		return
	}
	s.log.InfoContext(ctx, "model snapshot archived",
		"version", mv.Version, "snapshot_id", id.String(), "backend", s.snapshots.Name())
}

// CreateVersion registers an inactive model version.
func (s *Service) CreateVersion(ctx context.Context, version string, payload interfaces.GradientPayload, notes string) (interfaces.ModelVersion, error) {
	if _, err := interfaces.BumpMajor(version); err != nil {
		return interfaces.ModelVersion{}, err
	}
	if err := payload.ValidateAllowEmpty(); err != nil {
		return interfaces.ModelVersion{}, err
	}
	return s.store.CreateModelVersion(ctx, interfaces.ModelVersion{
		Version: version,
		Payload: payload,
		Notes:   notes,
	})
}

// Activate deploys a version, deactivating the previous one.
func (s *Service) Activate(ctx context.Context, version string) (interfaces.ModelVersion, error) {
	mv, err := s.store.ActivateModelVersion(ctx, version)
	if err != nil {
		return interfaces.ModelVersion{}, err
	}
	s.log.InfoContext(ctx, "model version activated", "version", version)
	return mv, nil
}

// ActiveModelInfo returns the active version plus its pending count.
func (s *Service) ActiveModelInfo(ctx context.Context) (interfaces.ModelVersion, int, error) {
	active, err := s.store.ActiveModelVersion(ctx)
	if err != nil {
		return interfaces.ModelVersion{}, 0, err
	}
	pending, err := s.store.PendingCount(ctx, active.Version)
	if err != nil {
		return interfaces.ModelVersion{}, 0, fmt.Errorf("counting pending contributions: %w", err)
	}
	return active, pending, nil
}

// Stats returns the public aggregate view of the federation.
func (s *Service) Stats(ctx context.Context) (interfaces.Stats, error) {
	participants, err := s.store.TotalParticipants(ctx)
	if err != nil {
		return interfaces.Stats{}, fmt.Errorf("counting participants: %w", err)
	}
	included, err := s.store.IncludedContributions(ctx)
	if err != nil {
		return interfaces.Stats{}, fmt.Errorf("counting contributions: %w", err)
	}

	stats := interfaces.Stats{
		TotalParticipants:  participants,
		TotalContributions: included,
	}
	active, err := s.store.ActiveModelVersion(ctx)
	if err == nil {
		stats.ActiveVersion = active.Version
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return interfaces.Stats{}, fmt.Errorf("fetching active model version: %w", err)
	}
	return stats, nil
}
