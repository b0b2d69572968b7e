// Package memory implements the working-memory store and the context
// assembler that turns short-lived session state plus recent conversation
// history into a bounded prompt block for agent turns.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/crmforge/agentdesk/core"
)

// Scope selects the working-memory key: per user within an organization, or
// per conversation.
type Scope string

// Working-memory scopes.
const (
	ScopeUser         Scope = "user"
	ScopeConversation Scope = "conversation"
)

// Key identifies one working-memory entry.
type Key struct {
	Scope          Scope
	OrganizationID string
	UserID         string
	ConversationID string
}

// UserKey builds a user-scoped key.
func UserKey(orgID, userID string) Key {
	return Key{Scope: ScopeUser, OrganizationID: orgID, UserID: userID}
}

// ConversationKey builds a conversation-scoped key.
func ConversationKey(orgID, conversationID string) Key {
	return Key{Scope: ScopeConversation, OrganizationID: orgID, ConversationID: conversationID}
}

// WorkingStore is the short-lived memory contract: best-effort get/set/delete
// with TTL. Availability is best effort — callers degrade to an empty
// WorkingMemory when the store errors.
type WorkingStore interface {
	Get(ctx context.Context, key Key) (*core.WorkingMemory, error)
	Set(ctx context.Context, key Key, wm *core.WorkingMemory, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
}

// DefaultTTL is the working-memory lifetime when the caller does not choose one.
const DefaultTTL = 30 * time.Minute

type entry struct {
	wm        core.WorkingMemory
	expiresAt time.Time
}

// InMemoryWorkingStore is a process-local WorkingStore with lazy TTL
// expiry. Safe for concurrent access.
type InMemoryWorkingStore struct {
	mu      sync.RWMutex
	entries map[Key]entry
	now     func() time.Time
}

// NewInMemoryWorkingStore constructs an empty working-memory store.
func NewInMemoryWorkingStore() *InMemoryWorkingStore {
	return &InMemoryWorkingStore{entries: make(map[Key]entry), now: time.Now}
}

// Get returns the stored memory or nil when absent or expired. Absence is not
// an error.
func (s *InMemoryWorkingStore) Get(_ context.Context, key Key) (*core.WorkingMemory, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, nil
	}
	cp := e.wm
	cp.RecentActions = append([]string(nil), e.wm.RecentActions...)
	cp.PendingApprovalIDs = append([]string(nil), e.wm.PendingApprovalIDs...)
	return &cp, nil
}

// Set stores the memory under key for ttl (DefaultTTL when ttl <= 0).
func (s *InMemoryWorkingStore) Set(_ context.Context, key Key, wm *core.WorkingMemory, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cp := *wm
	cp.RecentActions = append([]string(nil), wm.RecentActions...)
	cp.PendingApprovalIDs = append([]string(nil), wm.PendingApprovalIDs...)
	cp.UpdatedAt = s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{wm: cp, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes the entry under key. Deleting a missing key is a no-op.
func (s *InMemoryWorkingStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
