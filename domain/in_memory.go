package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crmforge/agentdesk/core"
)

// InMemoryStore is a volatile, process-local Store. It is safe for concurrent
// access and best suited for tests and ephemeral demo wiring. Entities are
// cloned on every read and write so callers can never mutate internal state.
//
// Transactions stage deep copies and commit them under the write lock; an
// error from the transaction function discards everything staged. The
// FailMutations hook injects a failure on the Nth staged mutation for
// atomicity tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	customers map[string]*Customer // key orgID/id
	orders    map[string]*Order
	quotes    map[string]*Quote
	activity  []*Activity

	failAfter int // inject error on the Nth mutation within a tx (0 = disabled)
}

// NewInMemoryStore constructs an empty in-memory domain store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		customers: make(map[string]*Customer),
		orders:    make(map[string]*Order),
		quotes:    make(map[string]*Quote),
	}
}

func key(orgID, id string) string { return orgID + "/" + id }

// SeedCustomer inserts a customer directly, bypassing the approval workflow.
// Test and demo fixture helper.
func (s *InMemoryStore) SeedCustomer(c *Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.customers[key(c.OrganizationID, c.ID)] = &cp
}

// SeedOrder inserts an order directly. Test and demo fixture helper.
func (s *InMemoryStore) SeedOrder(o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneOrder(o)
	s.orders[key(o.OrganizationID, o.ID)] = cp
}

// SeedActivity appends a timeline entry. Test and demo fixture helper.
func (s *InMemoryStore) SeedActivity(a *Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.activity = append(s.activity, &cp)
}

// ListQuotes returns the organization's quotes in no particular order. Test
// and demo fixture helper; quotes have no read path in the tool surface.
func (s *InMemoryStore) ListQuotes(orgID string) []*Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Quote
	for _, q := range s.quotes {
		if q.OrganizationID == orgID {
			cp := *q
			cp.Lines = append([]OrderLine(nil), q.Lines...)
			out = append(out, &cp)
		}
	}
	return out
}

// FailMutations arranges for the Nth mutation inside the next transactions to
// fail. Pass 0 to disable.
func (s *InMemoryStore) FailMutations(nth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = nth
}

// GetCustomer implements Reader.
func (s *InMemoryStore) GetCustomer(_ context.Context, orgID, id string) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[key(orgID, id)]
	if !ok {
		return nil, &core.NotFoundError{Entity: "customer", ID: id}
	}
	cp := *c
	return &cp, nil
}

// SearchCustomers implements Reader with case-insensitive substring matching
// over name, company and email.
func (s *InMemoryStore) SearchCustomers(_ context.Context, orgID, query string, limit int) ([]*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var out []*Customer
	for _, c := range s.customers {
		if c.OrganizationID != orgID {
			continue
		}
		if q == "" ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Company), q) ||
			strings.Contains(strings.ToLower(c.Email), q) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetOrder implements Reader.
func (s *InMemoryStore) GetOrder(_ context.Context, orgID, id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[key(orgID, id)]
	if !ok {
		return nil, &core.NotFoundError{Entity: "order", ID: id}
	}
	return cloneOrder(o), nil
}

// ListOrders implements Reader. An empty customerID lists across the org.
func (s *InMemoryStore) ListOrders(_ context.Context, orgID, customerID string, limit int) ([]*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for _, o := range s.orders {
		if o.OrganizationID != orgID {
			continue
		}
		if customerID != "" && o.CustomerID != customerID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestActivity implements Reader.
func (s *InMemoryStore) LatestActivity(_ context.Context, orgID, entityID string) (*Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Activity
	for _, a := range s.activity {
		if a.OrganizationID != orgID || a.EntityID != entityID {
			continue
		}
		if latest == nil || a.OccurredAt.After(latest.OccurredAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// CountOrders implements Reader.
func (s *InMemoryStore) CountOrders(_ context.Context, orgID, customerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.orders {
		if o.OrganizationID == orgID && (customerID == "" || o.CustomerID == customerID) {
			n++
		}
	}
	return n, nil
}

// RevenueByMonth implements Reader, bucketing non-cancelled orders by
// creation month.
func (s *InMemoryStore) RevenueByMonth(_ context.Context, orgID string, from, to time.Time) ([]RevenuePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buckets := map[string]*RevenuePoint{}
	for _, o := range s.orders {
		if o.OrganizationID != orgID || o.Status == "cancelled" {
			continue
		}
		if o.CreatedAt.Before(from) || o.CreatedAt.After(to) {
			continue
		}
		period := o.CreatedAt.Format("2006-01")
		b, ok := buckets[period]
		if !ok {
			b = &RevenuePoint{Period: period}
			buckets[period] = b
		}
		b.Revenue += o.Total
		b.Orders++
	}
	out := make([]RevenuePoint, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

// InTx implements Store. Mutations are staged on deep copies and written back
// only when fn returns nil.
func (s *InMemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: map[string]any{}}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commitLocked()
	return nil
}

// memTx stages mutations against the parent store. Not safe for concurrent
// use, matching the single-transaction contract.
type memTx struct {
	store     *InMemoryStore
	staged    map[string]any // key -> *Customer | *Order | *Quote
	mutations int
}

func (t *memTx) injectFailure() error {
	t.mutations++
	if t.store.failAfter > 0 && t.mutations >= t.store.failAfter {
		return errors.New("injected mutation failure")
	}
	return nil
}

func (t *memTx) GetCustomer(_ context.Context, orgID, id string) (*Customer, error) {
	if staged, ok := t.staged["c:"+key(orgID, id)]; ok {
		cp := *(staged.(*Customer))
		return &cp, nil
	}
	c, ok := t.store.customers[key(orgID, id)]
	if !ok {
		return nil, &core.NotFoundError{Entity: "customer", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (t *memTx) UpdateCustomer(_ context.Context, c *Customer) error {
	if err := t.injectFailure(); err != nil {
		return err
	}
	cp := *c
	cp.UpdatedAt = time.Now().UTC()
	t.staged["c:"+key(c.OrganizationID, c.ID)] = &cp
	return nil
}

func (t *memTx) GetOrder(_ context.Context, orgID, id string) (*Order, error) {
	if staged, ok := t.staged["o:"+key(orgID, id)]; ok {
		return cloneOrder(staged.(*Order)), nil
	}
	o, ok := t.store.orders[key(orgID, id)]
	if !ok {
		return nil, &core.NotFoundError{Entity: "order", ID: id}
	}
	return cloneOrder(o), nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *Order) error {
	if err := t.injectFailure(); err != nil {
		return err
	}
	cp := cloneOrder(o)
	cp.UpdatedAt = time.Now().UTC()
	t.staged["o:"+key(o.OrganizationID, o.ID)] = cp
	return nil
}

func (t *memTx) InsertQuote(_ context.Context, q *Quote) error {
	if err := t.injectFailure(); err != nil {
		return err
	}
	cp := *q
	cp.Lines = append([]OrderLine(nil), q.Lines...)
	t.staged["q:"+key(q.OrganizationID, q.ID)] = &cp
	return nil
}

// commitLocked writes staged entities back; caller holds the store lock.
func (t *memTx) commitLocked() {
	for k, v := range t.staged {
		id := k[2:]
		switch e := v.(type) {
		case *Customer:
			t.store.customers[id] = e
		case *Order:
			t.store.orders[id] = e
		case *Quote:
			t.store.quotes[id] = e
		}
	}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Lines = append([]OrderLine(nil), o.Lines...)
	return &cp
}
