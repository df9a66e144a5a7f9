package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// MemoryStore implements interfaces.Store in memory. It is used in tests
// and local development. A single mutex guards all state, which gives the
// same serialization the PostgreSQL row locks provide.
type MemoryStore struct {
	mu sync.RWMutex

	subjects      map[string]interfaces.Subject // keyed by external ID
	subjectsByID  map[interfaces.SubjectID]interfaces.Subject
	embeddings    map[string]*interfaces.EmbeddingRecord // keyed by record ID
	versions      map[string]*interfaces.ModelVersion
	contributions map[string]*interfaces.Contribution
	auditLog      []interfaces.AuditEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subjects:      make(map[string]interfaces.Subject),
		subjectsByID:  make(map[interfaces.SubjectID]interfaces.Subject),
		embeddings:    make(map[string]*interfaces.EmbeddingRecord),
		versions:      make(map[string]*interfaces.ModelVersion),
		contributions: make(map[string]*interfaces.Contribution),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func copyEmbedding(r *interfaces.EmbeddingRecord) interfaces.EmbeddingRecord {
	out := *r
	out.Ciphertext = append([]byte(nil), r.Ciphertext...)
	if r.LastUsed != nil {
		used := *r.LastUsed
		out.LastUsed = &used
	}
	return out
}

func copyVersion(v *interfaces.ModelVersion) interfaces.ModelVersion {
	out := *v
	out.Payload.Values = append([]float64(nil), v.Payload.Values...)
	if v.AverageLoss != nil {
		loss := *v.AverageLoss
		out.AverageLoss = &loss
	}
	if v.DeployedAt != nil {
		deployed := *v.DeployedAt
		out.DeployedAt = &deployed
	}
	return out
}

func copyContribution(c *interfaces.Contribution) interfaces.Contribution {
	out := *c
	out.Payload.Values = append([]float64(nil), c.Payload.Values...)
	if c.IncludedAt != nil {
		included := *c.IncludedAt
		out.IncludedAt = &included
	}
	return out
}

func (s *MemoryStore) RegisterEmbedding(_ context.Context, emb interfaces.NewEmbedding) (interfaces.EmbeddingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjectsByID[emb.Subject]; !ok {
		return interfaces.EmbeddingRecord{}, interfaces.ErrNotFound
	}

	for _, rec := range s.embeddings {
		if rec.Subject == emb.Subject && rec.Active && rec.ContentHash == emb.ContentHash {
			return copyEmbedding(rec), nil
		}
	}

	for _, rec := range s.embeddings {
		if rec.Subject == emb.Subject && rec.Active {
			rec.Active = false
		}
	}

	inserted := &interfaces.EmbeddingRecord{
		ID:           uuid.NewString(),
		Subject:      emb.Subject,
		Ciphertext:   append([]byte(nil), emb.Ciphertext...),
		ContentHash:  emb.ContentHash,
		Confidence:   emb.Confidence,
		ModelVersion: emb.ModelVersion,
		CreatedAt:    time.Now().UTC(),
		Active:       true,
	}
	s.embeddings[inserted.ID] = inserted
	return copyEmbedding(inserted), nil
}

func (s *MemoryStore) ActiveEmbedding(_ context.Context, subject interfaces.SubjectID) (interfaces.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *interfaces.EmbeddingRecord
	for _, rec := range s.embeddings {
		if rec.Subject != subject || !rec.Active {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return interfaces.EmbeddingRecord{}, interfaces.ErrNotFound
	}
	return copyEmbedding(newest), nil
}

func (s *MemoryStore) TouchEmbedding(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.embeddings[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	used := usedAt
	rec.LastUsed = &used
	return nil
}

func (s *MemoryStore) DeactivateEmbeddings(_ context.Context, subject interfaces.SubjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.embeddings {
		if rec.Subject == subject && rec.Active {
			rec.Active = false
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateModelVersion(_ context.Context, mv interfaces.ModelVersion) (interfaces.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertVersionLocked(mv)
}

func (s *MemoryStore) insertVersionLocked(mv interfaces.ModelVersion) (interfaces.ModelVersion, error) {
	if _, ok := s.versions[mv.Version]; ok {
		return interfaces.ModelVersion{}, interfaces.ErrDuplicateVersion
	}

	stored := copyVersion(&mv)
	stored.Active = false
	stored.DeployedAt = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.versions[mv.Version] = &stored
	return copyVersion(&stored), nil
}

func (s *MemoryStore) ActivateModelVersion(_ context.Context, version string) (interfaces.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.versions[version]
	if !ok {
		return interfaces.ModelVersion{}, interfaces.ErrNotFound
	}

	for _, v := range s.versions {
		if v.Active && v.Version != version {
			v.Active = false
		}
	}
	target.Active = true
	deployed := time.Now().UTC()
	target.DeployedAt = &deployed
	return copyVersion(target), nil
}

func (s *MemoryStore) ActiveModelVersion(_ context.Context) (interfaces.ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions {
		if v.Active {
			return copyVersion(v), nil
		}
	}
	return interfaces.ModelVersion{}, interfaces.ErrNotFound
}

func (s *MemoryStore) GetModelVersion(_ context.Context, version string) (interfaces.ModelVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[version]
	if !ok {
		return interfaces.ModelVersion{}, interfaces.ErrNotFound
	}
	return copyVersion(v), nil
}

func (s *MemoryStore) SubmitContribution(_ context.Context, c interfaces.NewContribution) (interfaces.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjectsByID[c.Subject]; !ok {
		return interfaces.Contribution{}, interfaces.ErrNotFound
	}
	if _, ok := s.versions[c.ModelVersion]; !ok {
		return interfaces.Contribution{}, interfaces.ErrNotFound
	}

	stored := &interfaces.Contribution{
		ID:           uuid.NewString(),
		Subject:      c.Subject,
		ModelVersion: c.ModelVersion,
		Payload: interfaces.GradientPayload{
			Dim:    c.Payload.Dim,
			Values: append([]float64(nil), c.Payload.Values...),
		},
		Loss:        c.Loss,
		SampleCount: c.SampleCount,
		SubmittedAt: time.Now().UTC(),
	}
	s.contributions[stored.ID] = stored
	return copyContribution(stored), nil
}

func (s *MemoryStore) PendingCount(_ context.Context, version string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.contributions {
		if c.ModelVersion == version && !c.Included {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ContributionCount(_ context.Context, subject interfaces.SubjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.contributions {
		if c.Subject == subject {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PendingDimension(_ context.Context, version string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *interfaces.Contribution
	for _, c := range s.contributions {
		if c.ModelVersion != version || c.Included {
			continue
		}
		if oldest == nil || c.SubmittedAt.Before(oldest.SubmittedAt) {
			oldest = c
		}
	}
	if oldest == nil {
		return 0, nil
	}
	return oldest.Payload.Dim, nil
}

func (s *MemoryStore) ConsumeAndCreateVersion(_ context.Context, version string, minParticipants int,
	build func([]interfaces.Contribution) (interfaces.ModelVersion, error)) (interfaces.ModelVersion, bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*interfaces.Contribution
	for _, c := range s.contributions {
		if c.ModelVersion == version && !c.Included {
			pending = append(pending, c)
		}
	}
	if len(pending) < minParticipants {
		return interfaces.ModelVersion{}, false, nil
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
	})

	snapshot := make([]interfaces.Contribution, len(pending))
	for i, c := range pending {
		snapshot[i] = copyContribution(c)
	}

	built, err := build(snapshot)
	if err != nil {
		return interfaces.ModelVersion{}, false, err
	}

	created, err := s.insertVersionLocked(built)
	if err != nil {
		return interfaces.ModelVersion{}, false, err
	}

	now := time.Now().UTC()
	for _, c := range pending {
		c.Included = true
		included := now
		c.IncludedAt = &included
	}
	return created, true, nil
}

func (s *MemoryStore) AppendAuditEntry(_ context.Context, e interfaces.AuditEntry) (interfaces.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.auditLog = append(s.auditLog, e)
	return e, nil
}

func (s *MemoryStore) AuditEntriesFor(_ context.Context, subject interfaces.SubjectID, limit int) ([]interfaces.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var entries []interfaces.AuditEntry
	for i := len(s.auditLog) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.auditLog[i].Subject == subject {
			entries = append(entries, s.auditLog[i])
		}
	}
	return entries, nil
}

func (s *MemoryStore) CreateSubject(_ context.Context, externalID string) (interfaces.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subjects[externalID]; ok {
		return existing, nil
	}

	subject := interfaces.Subject{
		ID:         interfaces.SubjectID(uuid.NewString()),
		ExternalID: externalID,
		CreatedAt:  time.Now().UTC(),
	}
	s.subjects[externalID] = subject
	s.subjectsByID[subject.ID] = subject
	return subject, nil
}

func (s *MemoryStore) ResolveSubject(_ context.Context, externalID string) (interfaces.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subject, ok := s.subjects[externalID]
	if !ok {
		return interfaces.Subject{}, interfaces.ErrNotFound
	}
	return subject, nil
}

func (s *MemoryStore) TotalParticipants(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[interfaces.SubjectID]struct{})
	for _, rec := range s.embeddings {
		if rec.Active {
			seen[rec.Subject] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *MemoryStore) IncludedContributions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.contributions {
		if c.Included {
			n++
		}
	}
	return n, nil
}
