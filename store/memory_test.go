package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

func newTestSubject(t *testing.T, s *MemoryStore, externalID string) interfaces.Subject {
	t.Helper()
	subject, err := s.CreateSubject(context.Background(), externalID)
	require.NoError(t, err)
	return subject
}

func newTestVersion(t *testing.T, s *MemoryStore, version string) interfaces.ModelVersion {
	t.Helper()
	mv, err := s.CreateModelVersion(context.Background(), interfaces.ModelVersion{
		Version: version,
		Payload: interfaces.GradientPayload{},
	})
	require.NoError(t, err)
	return mv
}

func TestCreateSubjectIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.CreateSubject(ctx, "EPIC-001")
	require.NoError(t, err)
	second, err := s.CreateSubject(ctx, "EPIC-001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	resolved, err := s.ResolveSubject(ctx, "EPIC-001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, resolved.ID)

	_, err = s.ResolveSubject(ctx, "EPIC-999")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRegisterEmbeddingSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	subject := newTestSubject(t, s, "EPIC-001")

	first, err := s.RegisterEmbedding(ctx, interfaces.NewEmbedding{
		Subject:      subject.ID,
		Ciphertext:   []byte("ciphertext-a"),
		ContentHash:  "hash-a",
		Confidence:   0.9,
		ModelVersion: "v1.0.0",
	})
	require.NoError(t, err)
	assert.True(t, first.Active)

	second, err := s.RegisterEmbedding(ctx, interfaces.NewEmbedding{
		Subject:      subject.ID,
		Ciphertext:   []byte("ciphertext-b"),
		ContentHash:  "hash-b",
		Confidence:   0.95,
		ModelVersion: "v1.0.0",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, err := s.ActiveEmbedding(ctx, subject.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	participants, err := s.TotalParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, participants)
}

func TestRegisterEmbeddingDeduplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	subject := newTestSubject(t, s, "EPIC-001")

	req := interfaces.NewEmbedding{
		Subject:      subject.ID,
		Ciphertext:   []byte("ciphertext-a"),
		ContentHash:  "hash-a",
		Confidence:   0.9,
		ModelVersion: "v1.0.0",
	}
	first, err := s.RegisterEmbedding(ctx, req)
	require.NoError(t, err)
	second, err := s.RegisterEmbedding(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRegisterEmbeddingUnknownSubject(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.RegisterEmbedding(context.Background(), interfaces.NewEmbedding{
		Subject:     "missing",
		Ciphertext:  []byte("x"),
		ContentHash: "h",
	})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestTouchEmbedding(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	subject := newTestSubject(t, s, "EPIC-001")

	rec, err := s.RegisterEmbedding(ctx, interfaces.NewEmbedding{
		Subject: subject.ID, Ciphertext: []byte("x"), ContentHash: "h", ModelVersion: "v1.0.0",
	})
	require.NoError(t, err)
	require.Nil(t, rec.LastUsed)

	used := time.Now().UTC()
	require.NoError(t, s.TouchEmbedding(ctx, rec.ID, used))

	active, err := s.ActiveEmbedding(ctx, subject.ID)
	require.NoError(t, err)
	require.NotNil(t, active.LastUsed)
	assert.Equal(t, used, *active.LastUsed)

	assert.ErrorIs(t, s.TouchEmbedding(ctx, "missing", used), interfaces.ErrNotFound)
}

func TestDeactivateEmbeddingsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	subject := newTestSubject(t, s, "EPIC-001")

	_, err := s.RegisterEmbedding(ctx, interfaces.NewEmbedding{
		Subject: subject.ID, Ciphertext: []byte("x"), ContentHash: "h", ModelVersion: "v1.0.0",
	})
	require.NoError(t, err)

	n, err := s.DeactivateEmbeddings(ctx, subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DeactivateEmbeddings(ctx, subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.ActiveEmbedding(ctx, subject.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestModelVersionLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.ActiveModelVersion(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	v1 := newTestVersion(t, s, "v1.0.0")
	assert.False(t, v1.Active)
	newTestVersion(t, s, "v2.0.0")

	_, err = s.CreateModelVersion(ctx, interfaces.ModelVersion{Version: "v1.0.0"})
	assert.ErrorIs(t, err, interfaces.ErrDuplicateVersion)

	activated, err := s.ActivateModelVersion(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.True(t, activated.Active)
	require.NotNil(t, activated.DeployedAt)

	_, err = s.ActivateModelVersion(ctx, "v2.0.0")
	require.NoError(t, err)

	active, err := s.ActiveModelVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2.0.0", active.Version)

	old, err := s.GetModelVersion(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.False(t, old.Active)

	_, err = s.ActivateModelVersion(ctx, "v9.0.0")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestActivateModelVersionExclusiveUnderConcurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	versions := []string{"v1.0.0", "v2.0.0", "v3.0.0", "v4.0.0"}
	for _, v := range versions {
		newTestVersion(t, s, v)
	}

	var wg sync.WaitGroup
	for _, v := range versions {
		wg.Add(1)
		go func(version string) {
			defer wg.Done()
			_, err := s.ActivateModelVersion(ctx, version)
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	activeCount := 0
	for _, v := range versions {
		mv, err := s.GetModelVersion(ctx, v)
		require.NoError(t, err)
		if mv.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func submitContribution(t *testing.T, s *MemoryStore, subject interfaces.SubjectID, version string, value float64, samples int) {
	t.Helper()
	_, err := s.SubmitContribution(context.Background(), interfaces.NewContribution{
		Subject:      subject,
		ModelVersion: version,
		Payload:      interfaces.GradientPayload{Dim: 1, Values: []float64{value}},
		Loss:         0.5,
		SampleCount:  samples,
	})
	require.NoError(t, err)
}

func TestConsumeAndCreateVersionBelowQuorum(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	subject := newTestSubject(t, s, "EPIC-001")
	newTestVersion(t, s, "v1.0.0")

	submitContribution(t, s, subject.ID, "v1.0.0", 1.0, 1)

	_, ok, err := s.ConsumeAndCreateVersion(ctx, "v1.0.0", 2, func([]interfaces.Contribution) (interfaces.ModelVersion, error) {
		t.Fatal("build must not run below quorum")
		return interfaces.ModelVersion{}, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := s.PendingCount(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestConsumeAndCreateVersionConsumesExactlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := newTestSubject(t, s, "EPIC-001")
	b := newTestSubject(t, s, "EPIC-002")
	newTestVersion(t, s, "v1.0.0")

	submitContribution(t, s, a.ID, "v1.0.0", 2.0, 1)
	submitContribution(t, s, b.ID, "v1.0.0", 4.0, 3)

	build := func(pending []interfaces.Contribution) (interfaces.ModelVersion, error) {
		assert.Len(t, pending, 2)
		return interfaces.ModelVersion{
			Version:      "v2.0.0",
			Payload:      interfaces.GradientPayload{Dim: 1, Values: []float64{3.5}},
			Participants: len(pending),
		}, nil
	}

	created, ok, err := s.ConsumeAndCreateVersion(ctx, "v1.0.0", 2, build)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2.0.0", created.Version)
	assert.False(t, created.Active)

	pending, err := s.PendingCount(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, pending)

	included, err := s.IncludedContributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, included)

	// Re-running with nothing pending is a no-op.
	_, ok, err = s.ConsumeAndCreateVersion(ctx, "v1.0.0", 2, build)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumeAndCreateVersionConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	newTestVersion(t, s, "v1.0.0")
	for i := 0; i < 4; i++ {
		subject := newTestSubject(t, s, "EPIC-00"+string(rune('1'+i)))
		submitContribution(t, s, subject.ID, "v1.0.0", 1.0, 1)
	}

	build := func(pending []interfaces.Contribution) (interfaces.ModelVersion, error) {
		return interfaces.ModelVersion{
			Version: "v2.0.0",
			Payload: interfaces.GradientPayload{Dim: 1, Values: []float64{1.0}},
		}, nil
	}

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.ConsumeAndCreateVersion(ctx, "v1.0.0", 4, build)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestSubmitContributionUnknownVersion(t *testing.T) {
	s := NewMemoryStore()
	subject := newTestSubject(t, s, "EPIC-001")
	_, err := s.SubmitContribution(context.Background(), interfaces.NewContribution{
		Subject:      subject.ID,
		ModelVersion: "v9.0.0",
		Payload:      interfaces.GradientPayload{Dim: 1, Values: []float64{1}},
		SampleCount:  1,
	})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestPendingDimension(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	subject := newTestSubject(t, s, "EPIC-001")
	newTestVersion(t, s, "v1.0.0")

	dim, err := s.PendingDimension(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, dim)

	_, err = s.SubmitContribution(ctx, interfaces.NewContribution{
		Subject:      subject.ID,
		ModelVersion: "v1.0.0",
		Payload:      interfaces.GradientPayload{Dim: 3, Values: []float64{1, 2, 3}},
		SampleCount:  1,
	})
	require.NoError(t, err)

	dim, err = s.PendingDimension(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	// Consumed contributions no longer set the round dimension.
	_, ok, err := s.ConsumeAndCreateVersion(ctx, "v1.0.0", 1, func(pending []interfaces.Contribution) (interfaces.ModelVersion, error) {
		return interfaces.ModelVersion{Version: "v2.0.0", Payload: pending[0].Payload}, nil
	})
	require.NoError(t, err)
	require.True(t, ok)

	dim, err = s.PendingDimension(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, dim)
}

func TestAuditLogOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	subject := newTestSubject(t, s, "EPIC-001")
	other := newTestSubject(t, s, "EPIC-002")

	for i := 0; i < 3; i++ {
		_, err := s.AppendAuditEntry(ctx, interfaces.AuditEntry{
			Subject:    subject.ID,
			Success:    i == 2,
			Similarity: float64(i) * 0.1,
			Timestamp:  time.Date(2026, 8, 1, 10, i, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	_, err := s.AppendAuditEntry(ctx, interfaces.AuditEntry{Subject: other.ID})
	require.NoError(t, err)

	entries, err := s.AuditEntriesFor(ctx, subject.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Success)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}
