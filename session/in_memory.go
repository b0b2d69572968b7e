package session

import (
	"context"
	"sync"
	"time"

	"github.com/crmforge/agentdesk/core"
)

// InMemoryStore is a volatile Store implementation keeping conversations in a
// process-local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Each returned record is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*core.ConversationRecord // key orgID/id
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*core.ConversationRecord)}
}

func (s *InMemoryStore) key(orgID, id string) string { return orgID + "/" + id }

// Create implements Store.
func (s *InMemoryStore) Create(_ context.Context, uc core.UserContext, id string) (*core.ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := NewRecord(uc, id)
	s.records[s.key(uc.OrganizationID, rec.ID)] = rec
	return cloneRecord(rec), nil
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, orgID, id string) (*core.ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[s.key(orgID, id)]
	if !ok {
		return nil, &core.NotFoundError{Entity: "conversation", ID: id}
	}
	return cloneRecord(rec), nil
}

// AppendMessages implements Store.
func (s *InMemoryStore) AppendMessages(_ context.Context, orgID, id string, msgs ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(orgID, id)]
	if !ok {
		return &core.NotFoundError{Entity: "conversation", ID: id}
	}
	rec.Messages = append(rec.Messages, msgs...)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// SetActiveAgent implements Store.
func (s *InMemoryStore) SetActiveAgent(_ context.Context, orgID, id string, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(orgID, id)]
	if !ok {
		return &core.NotFoundError{Entity: "conversation", ID: id}
	}
	rec.ActiveAgent = agent
	rec.AgentHistory = append(rec.AgentHistory, agent)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// SetMetadata implements Store.
func (s *InMemoryStore) SetMetadata(_ context.Context, orgID, id string, md map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(orgID, id)]
	if !ok {
		return &core.NotFoundError{Entity: "conversation", ID: id}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	for k, v := range md {
		rec.Metadata[k] = v
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneRecord(rec *core.ConversationRecord) *core.ConversationRecord {
	c := *rec
	c.Messages = append([]core.Message(nil), rec.Messages...)
	c.AgentHistory = append([]string(nil), rec.AgentHistory...)
	c.Metadata = make(map[string]string, len(rec.Metadata))
	for k, v := range rec.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
