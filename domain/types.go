// Package domain defines the narrow interfaces through which the agent
// pipeline reads and mutates CRM data. The CRM's own business logic lives
// elsewhere; the pipeline only ever touches these org-scoped contracts, and
// mutations only ever happen inside an approval apply transaction.
package domain

import (
	"context"
	"time"
)

// Customer is a CRM customer entity. Version supports optimistic concurrency
// on staged mutations.
type Customer struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Company        string    `json:"company,omitempty"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Status         string    `json:"status"`
	InternalNotes  string    `json:"internalNotes,omitempty"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrderLine is one line item of an order. Amounts are integer cents.
type OrderLine struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// Order is a CRM order with derived totals. Totals are recomputed inside the
// same transaction as any line mutation.
type Order struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	CustomerID     string      `json:"customer_id"`
	Status         string      `json:"status"`
	Lines          []OrderLine `json:"lines"`
	Subtotal       int64       `json:"subtotal"`
	Tax            int64       `json:"tax"`
	Total          int64       `json:"total"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TaxRateBasisPoints is the flat tax rate applied when recomputing totals.
const TaxRateBasisPoints = 875 // 8.75%

// RecomputeTotals re-derives subtotal, tax and total from the lines.
func (o *Order) RecomputeTotals() {
	var subtotal int64
	for _, l := range o.Lines {
		subtotal += int64(l.Quantity) * l.UnitPrice
	}
	o.Subtotal = subtotal
	o.Tax = subtotal * TaxRateBasisPoints / 10000
	o.Total = o.Subtotal + o.Tax
}

// Activity is a timeline entry attached to a customer or order.
type Activity struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	EntityID       string    `json:"entity_id"`
	Kind           string    `json:"kind"`
	Note           string    `json:"note,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Quote is a draft offer created for a customer.
type Quote struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	CustomerID     string      `json:"customer_id"`
	Title          string      `json:"title"`
	Lines          []OrderLine `json:"lines"`
	Total          int64       `json:"total"`
	ValidUntil     time.Time   `json:"valid_until"`
	CreatedAt      time.Time   `json:"created_at"`
}

// RevenuePoint is one bucket of an aggregated revenue series.
type RevenuePoint struct {
	Period  string `json:"period"` // e.g. "2026-07"
	Revenue int64  `json:"revenue"`
	Orders  int    `json:"orders"`
}

// Reader is the read-only surface used by read tools. Every query is scoped
// by the caller's organization id.
type Reader interface {
	GetCustomer(ctx context.Context, orgID, id string) (*Customer, error)
	SearchCustomers(ctx context.Context, orgID, query string, limit int) ([]*Customer, error)
	GetOrder(ctx context.Context, orgID, id string) (*Order, error)
	ListOrders(ctx context.Context, orgID, customerID string, limit int) ([]*Order, error)
	LatestActivity(ctx context.Context, orgID, entityID string) (*Activity, error)
	CountOrders(ctx context.Context, orgID, customerID string) (int, error)
	RevenueByMonth(ctx context.Context, orgID string, from, to time.Time) ([]RevenuePoint, error)
}

// Tx is the mutation surface available inside an approval apply transaction.
// All writes through a Tx commit together or not at all.
type Tx interface {
	GetCustomer(ctx context.Context, orgID, id string) (*Customer, error)
	UpdateCustomer(ctx context.Context, c *Customer) error
	GetOrder(ctx context.Context, orgID, id string) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order) error
	InsertQuote(ctx context.Context, q *Quote) error
}

// Store aggregates reads with transactional mutation access.
type Store interface {
	Reader

	// InTx runs fn atomically. Any error from fn rolls back every mutation
	// staged through the Tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
