package tool

import (
	"context"
	"time"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
)

// stagerStub records staged approvals without a real store.
type stagerStub struct {
	staged []*core.ApprovalRecord
	err    error
}

func (s *stagerStub) Stage(_ context.Context, rec *core.ApprovalRecord) error {
	if s.err != nil {
		return s.err
	}
	s.staged = append(s.staged, rec)
	return nil
}

func testUser() core.UserContext {
	return core.UserContext{UserID: "u1", OrganizationID: "org1", Role: "agent"}
}

func seededStore() *domain.InMemoryStore {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	store := domain.NewInMemoryStore()
	store.SeedCustomer(&domain.Customer{
		ID: "c1", OrganizationID: "org1", Name: "Ada North", Company: "Northwind",
		Email: "ada@northwind.test", Phone: "+49 30 1234", Status: "active",
		InternalNotes: "", Version: 3, CreatedAt: now, UpdatedAt: now,
	})
	store.SeedCustomer(&domain.Customer{
		ID: "c2", OrganizationID: "org1", Name: "Bo South", Company: "Southbay",
		Email: "bo@southbay.test", Status: "active",
		InternalNotes: "prefers phone contact", Version: 1, CreatedAt: now, UpdatedAt: now,
	})
	store.SeedOrder(&domain.Order{
		ID: "o1", OrganizationID: "org1", CustomerID: "c1", Status: "pending",
		Lines: []domain.OrderLine{
			{ID: "l1", ProductID: "p1", Description: "Widget", Quantity: 2, UnitPrice: 1500},
		},
		Subtotal: 3000, Tax: 262, Total: 3262, Version: 5,
		CreatedAt: now, UpdatedAt: now,
	})
	store.SeedActivity(&domain.Activity{
		ID: "a1", OrganizationID: "org1", EntityID: "c1", Kind: "call",
		Note: "intro call", OccurredAt: now,
	})
	return store
}

func testContext(agent core.Specialist, store domain.Reader, stager ApprovalStager) *Context {
	return NewContext(testUser(), "conv1", agent, store, stager, nil)
}
