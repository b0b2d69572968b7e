package approval

import (
	"context"
	"sort"
	"sync"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
)

// InMemoryStore is a volatile Store keeping records in a process-local map.
// Apply delegates the mutation to the domain store's transaction and flips
// the status only after that transaction committed, under the same lock, so
// a failed apply leaves the record untouched.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*core.ApprovalRecord // key orgID/id
	domain  domain.Store
}

// NewInMemoryStore constructs an empty in-memory approval store bound to the
// domain store its applies mutate.
func NewInMemoryStore(d domain.Store) *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*core.ApprovalRecord), domain: d}
}

func (s *InMemoryStore) key(orgID, id string) string { return orgID + "/" + id }

// Stage implements Store.
func (s *InMemoryStore) Stage(_ context.Context, rec *core.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(rec.OrganizationID, rec.ID)
	if _, exists := s.records[k]; exists {
		return &core.ConflictError{Entity: "approval", ID: rec.ID}
	}
	s.records[k] = rec.Clone()
	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, orgID, id string) (*core.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[s.key(orgID, id)]
	if !ok {
		return nil, &core.NotFoundError{Entity: "approval", ID: id}
	}
	return rec.Clone(), nil
}

// List implements Store.
func (s *InMemoryStore) List(_ context.Context, orgID string, statuses ...core.ApprovalStatus) ([]*core.ApprovalRecord, error) {
	wanted := map[core.ApprovalStatus]bool{}
	for _, st := range statuses {
		wanted[st] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.ApprovalRecord
	for _, rec := range s.records {
		if rec.OrganizationID != orgID {
			continue
		}
		if len(wanted) > 0 && !wanted[rec.Status] {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// SetStatus implements Store.
func (s *InMemoryStore) SetStatus(_ context.Context, orgID, id string, status core.ApprovalStatus, reviewedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(orgID, id)]
	if !ok {
		return &core.NotFoundError{Entity: "approval", ID: id}
	}
	rec.Status = status
	rec.ReviewedBy = reviewedBy
	return nil
}

// Apply implements Store. The domain transaction runs first; the status flip
// happens only on commit, so any error from mutate leaves both the CRM data
// and the record unchanged.
func (s *InMemoryStore) Apply(ctx context.Context, orgID, id, appliedBy string, mutate func(tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(orgID, id)]
	if !ok {
		return &core.NotFoundError{Entity: "approval", ID: id}
	}

	if err := s.domain.InTx(ctx, mutate); err != nil {
		return err
	}

	rec.Status = core.StatusApplied
	rec.AppliedBy = appliedBy
	return nil
}
