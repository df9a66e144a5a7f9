package federation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/store"
)

func newTestService(t *testing.T, minParticipants int) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := NewService(st, Config{
		MinParticipants: minParticipants,
		Log:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, svc.EnsureInitialVersion(context.Background()))
	return svc, st
}

func newSubjects(t *testing.T, st *store.MemoryStore, n int) []interfaces.Subject {
	t.Helper()
	subjects := make([]interfaces.Subject, n)
	for i := range subjects {
		subject, err := st.CreateSubject(context.Background(), fmt.Sprintf("EPIC-%03d", i+1))
		require.NoError(t, err)
		subjects[i] = subject
	}
	return subjects
}

func TestEnsureInitialVersion(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()

	active, err := st.ActiveModelVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitialVersion, active.Version)
	assert.Empty(t, active.Payload.Values)

	// Idempotent on a populated registry.
	require.NoError(t, svc.EnsureInitialVersion(ctx))
	again, err := st.ActiveModelVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, active.Version, again.Version)
}

func TestSubmitValidation(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()
	newSubjects(t, st, 1)

	_, err := svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{}, 0.5, 1)
	assert.ErrorIs(t, err, interfaces.ErrEmptyGradient)

	_, err = svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 2, Values: []float64{1}}, 0.5, 1)
	assert.ErrorIs(t, err, interfaces.ErrDimensionMismatch)

	_, err = svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.5, 0)
	assert.ErrorIs(t, err, interfaces.ErrInvalidSampleCount)

	_, err = svc.Submit(ctx, "EPIC-404", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.5, 1)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestSubmitUnknownVersion(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()
	newSubjects(t, st, 1)

	_, err := svc.Submit(ctx, "EPIC-001", "v9.0.0", interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.5, 1)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	pending, err := st.PendingCount(ctx, InitialVersion)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestSubmitDimensionMismatchRejected(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()
	newSubjects(t, st, 3)

	_, err := svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.1, 1)
	require.NoError(t, err)

	// A second gradient with a different dimension would make the round
	// unaverageable, so it is rejected instead of recorded.
	_, err = svc.Submit(ctx, "EPIC-002", InitialVersion, interfaces.GradientPayload{Dim: 2, Values: []float64{1, 2}}, 0.1, 1)
	assert.ErrorIs(t, err, interfaces.ErrDimensionMismatch)

	pending, err := st.PendingCount(ctx, InitialVersion)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// The round is not wedged: a matching contribution still completes
	// the quorum and aggregates.
	result, err := svc.Submit(ctx, "EPIC-003", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{3}}, 0.1, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Aggregated)
	assert.Equal(t, "v2.0.0", result.Aggregated.Version)
}

func TestSubmitDimensionMatchesVersionPayload(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()
	newSubjects(t, st, 1)

	_, err := svc.CreateVersion(ctx, "v3.0.0", interfaces.GradientPayload{Dim: 2, Values: []float64{1, 2}}, "")
	require.NoError(t, err)

	// With no contributions pending, the version's own payload sets the
	// expected dimension.
	_, err = svc.Submit(ctx, "EPIC-001", "v3.0.0", interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.1, 1)
	assert.ErrorIs(t, err, interfaces.ErrDimensionMismatch)
}

func TestSubmitBelowQuorum(t *testing.T) {
	svc, st := newTestService(t, 3)
	ctx := context.Background()
	newSubjects(t, st, 2)

	result, err := svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.5, 1)
	require.NoError(t, err)
	assert.Nil(t, result.Aggregated)
	assert.Equal(t, 1, result.PendingCount)

	result, err = svc.Submit(ctx, "EPIC-002", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{2}}, 0.5, 1)
	require.NoError(t, err)
	assert.Nil(t, result.Aggregated)
	assert.Equal(t, 2, result.PendingCount)

	active, err := st.ActiveModelVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitialVersion, active.Version)
}

func TestSubmitTriggersWeightedAggregation(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()
	newSubjects(t, st, 2)

	// Weights: 1/4 and 3/4. Expected mean: 2.0*0.25 + 4.0*0.75 = 3.5.
	_, err := svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{2.0}}, 0.4, 1)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, "EPIC-002", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{4.0}}, 0.6, 3)
	require.NoError(t, err)
	require.NotNil(t, result.Aggregated)

	created := *result.Aggregated
	assert.Equal(t, "v2.0.0", created.Version)
	require.Len(t, created.Payload.Values, 1)
	assert.InDelta(t, 3.5, created.Payload.Values[0], 1e-9)
	assert.Equal(t, 2, created.Participants)
	require.NotNil(t, created.AverageLoss)
	assert.InDelta(t, 0.5, *created.AverageLoss, 1e-9)

	// The aggregated version is created inactive.
	assert.False(t, created.Active)
	active, err := st.ActiveModelVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitialVersion, active.Version)

	// The round consumed the pending set.
	pending, err := st.PendingCount(ctx, InitialVersion)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	included, err := st.IncludedContributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, included)
}

func TestAggregationBoundaryExactQuorum(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()
	newSubjects(t, st, 2)

	_, err := svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.1, 1)
	require.NoError(t, err)

	_, ok, err := svc.MaybeAggregate(ctx, InitialVersion)
	require.NoError(t, err)
	assert.False(t, ok)

	result, err := svc.Submit(ctx, "EPIC-002", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.1, 1)
	require.NoError(t, err)
	assert.NotNil(t, result.Aggregated)
}

func TestMaybeAggregateRerunIsNoop(t *testing.T) {
	svc, st := newTestService(t, 1)
	ctx := context.Background()
	newSubjects(t, st, 1)

	result, err := svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.1, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Aggregated)

	_, ok, err := svc.MaybeAggregate(ctx, InitialVersion)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateAndActivateVersion(t *testing.T) {
	svc, st := newTestService(t, 2)
	ctx := context.Background()

	mv, err := svc.CreateVersion(ctx, "v5.0.0", interfaces.GradientPayload{Dim: 2, Values: []float64{1, 2}}, "manual upload")
	require.NoError(t, err)
	assert.False(t, mv.Active)

	_, err = svc.CreateVersion(ctx, "5.0.0", interfaces.GradientPayload{}, "")
	assert.ErrorIs(t, err, interfaces.ErrVersionSyntax)

	_, err = svc.CreateVersion(ctx, "v5.0.0", interfaces.GradientPayload{}, "")
	assert.ErrorIs(t, err, interfaces.ErrDuplicateVersion)

	activated, err := svc.Activate(ctx, "v5.0.0")
	require.NoError(t, err)
	assert.True(t, activated.Active)

	old, err := st.GetModelVersion(ctx, InitialVersion)
	require.NoError(t, err)
	assert.False(t, old.Active)

	_, err = svc.Activate(ctx, "v9.0.0")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestActiveModelInfo(t *testing.T) {
	svc, st := newTestService(t, 5)
	ctx := context.Background()
	newSubjects(t, st, 1)

	_, err := svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.1, 1)
	require.NoError(t, err)

	active, pending, err := svc.ActiveModelInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, InitialVersion, active.Version)
	assert.Equal(t, 1, pending)
}

func TestStats(t *testing.T) {
	svc, st := newTestService(t, 1)
	ctx := context.Background()
	newSubjects(t, st, 1)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalContributions)
	assert.Equal(t, InitialVersion, stats.ActiveVersion)

	_, err = svc.Submit(ctx, "EPIC-001", InitialVersion, interfaces.GradientPayload{Dim: 1, Values: []float64{1}}, 0.1, 1)
	require.NoError(t, err)

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalContributions)
}
