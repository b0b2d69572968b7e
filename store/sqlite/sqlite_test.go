package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/crmforge/agentdesk/approval"
	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/store/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.SeedCustomer(ctx, &domain.Customer{
		ID: "c1", OrganizationID: "org1", Name: "Ada North", Company: "Northwind",
		Email: "ada@northwind.test", Status: "active", Version: 3,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.SeedCustomer(ctx, &domain.Customer{
		ID: "c2", OrganizationID: "org2", Name: "Bo South", Status: "active", Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.SeedOrder(ctx, &domain.Order{
		ID: "o1", OrganizationID: "org1", CustomerID: "c1", Status: "pending",
		Lines: []domain.OrderLine{
			{ID: "l1", ProductID: "p1", Description: "Widget", Quantity: 2, UnitPrice: 1500},
		},
		Subtotal: 3000, Tax: 262, Total: 3262, Version: 5,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.SeedActivity(ctx, &domain.Activity{
		ID: "a1", OrganizationID: "org1", EntityID: "c1", Kind: "call",
		Note: "intro call", OccurredAt: now,
	}))
}

func TestDomainReads(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	c, err := s.GetCustomer(ctx, "org1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ada North", c.Name)
	assert.EqualValues(t, 3, c.Version)

	// Tenant scoping: org2's customer is invisible to org1.
	_, err = s.GetCustomer(ctx, "org1", "c2")
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)

	found, err := s.SearchCustomers(ctx, "org1", "northWIND", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c1", found[0].ID)

	o, err := s.GetOrder(ctx, "org1", "o1")
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.EqualValues(t, 3262, o.Total)

	n, err := s.CountOrders(ctx, "org1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := s.LatestActivity(ctx, "org1", "c1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "call", a.Kind)

	a, err = s.LatestActivity(ctx, "org1", "nope")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestRevenueByMonthExcludesCancelled(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	jan := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	for _, o := range []*domain.Order{
		{ID: "o1", OrganizationID: "org1", CustomerID: "c1", Status: "delivered", Total: 1000, Version: 1, CreatedAt: jan, UpdatedAt: jan},
		{ID: "o2", OrganizationID: "org1", CustomerID: "c1", Status: "delivered", Total: 500, Version: 1, CreatedAt: jan, UpdatedAt: jan},
		{ID: "o3", OrganizationID: "org1", CustomerID: "c1", Status: "cancelled", Total: 9999, Version: 1, CreatedAt: feb, UpdatedAt: feb},
		{ID: "o4", OrganizationID: "org1", CustomerID: "c1", Status: "shipped", Total: 700, Version: 1, CreatedAt: feb, UpdatedAt: feb},
	} {
		require.NoError(t, s.SeedOrder(ctx, o))
	}

	points, err := s.RevenueByMonth(ctx, "org1",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, domain.RevenuePoint{Period: "2026-01", Revenue: 1500, Orders: 2}, points[0])
	assert.Equal(t, domain.RevenuePoint{Period: "2026-02", Revenue: 700, Orders: 1}, points[1])
}

func TestSessionLifecycle(t *testing.T) {
	s := openStore(t)
	sessions := s.Sessions()
	ctx := context.Background()
	uc := core.UserContext{UserID: "u1", OrganizationID: "org1"}

	rec, err := sessions.Create(ctx, uc, "")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	require.NoError(t, sessions.AppendMessages(ctx, "org1", rec.ID,
		core.UserMessage("hello"), core.AssistantMessage("hi there")))
	require.NoError(t, sessions.SetActiveAgent(ctx, "org1", rec.ID, "customer"))
	require.NoError(t, sessions.SetMetadata(ctx, "org1", rec.ID, map[string]string{"channel": "web"}))

	got, err := sessions.Get(ctx, "org1", rec.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, "customer", got.ActiveAgent)
	assert.Equal(t, []string{"customer"}, got.AgentHistory)
	assert.Equal(t, "web", got.Metadata["channel"])

	_, err = sessions.Get(ctx, "org2", rec.ID)
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestApprovalApplyIsAtomic(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()
	uc := core.UserContext{UserID: "u1", OrganizationID: "org1"}
	wf := approval.NewWorkflow(s.Approvals(), nil)

	draft, _ := json.Marshal(map[string]any{
		"customer_id": "c1", "notes": "met at trade fair", "base_version": 3,
	})
	rec := core.NewApprovalRecord(uc, "conv1", "update_customer_notes", "customer", draft, nil)
	require.NoError(t, s.Approvals().Stage(ctx, rec))

	// Duplicate ids conflict.
	var conflict *core.ConflictError
	require.ErrorAs(t, s.Approvals().Stage(ctx, rec), &conflict)

	_, err := wf.Approve(ctx, uc, rec.ID)
	require.NoError(t, err)

	// A mutation failure leaves both the domain row and the record untouched.
	wf.RegisterApplier("update_customer_notes", func(ctx context.Context, tx domain.Tx, orgID string, _ gjson.Result, _ bool) error {
		return errors.New("boom")
	})
	_, err = wf.Apply(ctx, uc, rec.ID, approval.ApplyOptions{})
	require.Error(t, err)
	got, err := s.Approvals().Get(ctx, "org1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, got.Status)

	// With the real applier restored the mutation and the status flip land together.
	wf = approval.NewWorkflow(s.Approvals(), nil)
	applied, err := wf.Apply(ctx, uc, rec.ID, approval.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusApplied, applied.Status)
	assert.Equal(t, "u1", applied.AppliedBy)

	c, err := s.GetCustomer(ctx, "org1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "met at trade fair", c.InternalNotes)
	assert.EqualValues(t, 4, c.Version)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := openStore(t)
	seed(t, s)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx domain.Tx) error {
		c, err := tx.GetCustomer(ctx, "org1", "c1")
		if err != nil {
			return err
		}
		c.Status = "churned"
		if err := tx.UpdateCustomer(ctx, c); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	c, err := s.GetCustomer(ctx, "org1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "active", c.Status)
}
