package journal

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemStore is an in-memory Store for tests and for running without a journal file.
type MemStore struct {
	mu   sync.Mutex
	runs map[string]*Submission
	now  func() time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]*Submission), now: time.Now}
}

func (s *MemStore) Begin(sub *Submission) (string, error) {
	if sub == nil {
		return "", fmt.Errorf("submission is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.RunID = newRunID()
	sub.StartedAt = s.now().UTC()
	if sub.Phase == "" {
		sub.Phase = "form"
	}
	s.runs[sub.RunID] = clone(sub)
	return sub.RunID, nil
}

func (s *MemStore) Finish(runID string, out Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("finish %s: %w", runID, ErrNotFound)
	}
	if out.ClaimID != "" {
		sub.ClaimID = out.ClaimID
	}
	sub.Phase = out.Phase
	sub.FailedDuring = out.FailedDuring
	sub.Message = out.Message
	sub.Score = out.Score
	sub.EndedAt = s.now().UTC()
	markFailed(sub.Files, out.FailedPositions)
	return nil
}

func (s *MemStore) Get(runID string) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	return clone(sub), nil
}

func (s *MemStore) List(limit int) ([]*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*Submission, len(ids))
	for i, id := range ids {
		out[i] = clone(s.runs[id])
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }

func clone(sub *Submission) *Submission {
	c := *sub
	c.Files = slices.Clone(sub.Files)
	if sub.Score != nil {
		score := *sub.Score
		c.Score = &score
	}
	return &c
}
