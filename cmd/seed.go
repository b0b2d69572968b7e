package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crmforge/agentdesk/domain"
)

// newSeedCmd loads a small demo dataset into the configured database so the
// chat command has something to answer about. Requires --db; an in-memory
// store would be gone before the next invocation.
func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo CRM data into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.db == nil {
				return fmt.Errorf("seed requires --db: an in-memory store does not outlive the command")
			}
			ctx := cmd.Context()
			org := a.uc.OrganizationID
			now := time.Now().UTC()

			customers := []*domain.Customer{
				{ID: "cust-1001", OrganizationID: org, Name: "Ada North", Company: "Northwind Trading", Email: "ada@northwind.example", Phone: "+49 30 1234567", Status: "active", Version: 1, CreatedAt: now.AddDate(0, -8, 0), UpdatedAt: now.AddDate(0, -1, 0)},
				{ID: "cust-1002", OrganizationID: org, Name: "Bo South", Company: "Southbridge GmbH", Email: "bo@southbridge.example", Status: "active", InternalNotes: "prefers phone contact", Version: 2, CreatedAt: now.AddDate(0, -6, 0), UpdatedAt: now.AddDate(0, -2, 0)},
				{ID: "cust-1003", OrganizationID: org, Name: "Cleo West", Company: "Westfield Retail", Email: "cleo@westfield.example", Status: "churned", Version: 1, CreatedAt: now.AddDate(-1, 0, 0), UpdatedAt: now.AddDate(0, -4, 0)},
			}
			for _, c := range customers {
				if err := a.db.SeedCustomer(ctx, c); err != nil {
					return err
				}
			}

			orders := []*domain.Order{
				{ID: "ord-2001", OrganizationID: org, CustomerID: "cust-1001", Status: "delivered", Lines: []domain.OrderLine{{ID: "l1", ProductID: "sku-violet", Description: "Violet widgets (box of 50)", Quantity: 4, UnitPrice: 12500}}, Version: 1, CreatedAt: now.AddDate(0, -5, -12), UpdatedAt: now.AddDate(0, -5, 0)},
				{ID: "ord-2002", OrganizationID: org, CustomerID: "cust-1001", Status: "processing", Lines: []domain.OrderLine{{ID: "l1", ProductID: "sku-amber", Description: "Amber connectors", Quantity: 120, UnitPrice: 450}}, Version: 3, CreatedAt: now.AddDate(0, -1, -3), UpdatedAt: now.AddDate(0, 0, -2)},
				{ID: "ord-2003", OrganizationID: org, CustomerID: "cust-1002", Status: "pending", Lines: []domain.OrderLine{{ID: "l1", ProductID: "sku-violet", Description: "Violet widgets (box of 50)", Quantity: 1, UnitPrice: 12500}, {ID: "l2", ProductID: "sku-teal", Description: "Teal fasteners", Quantity: 30, UnitPrice: 199}}, Version: 1, CreatedAt: now.AddDate(0, 0, -6), UpdatedAt: now.AddDate(0, 0, -6)},
			}
			for _, o := range orders {
				o.RecomputeTotals()
				if err := a.db.SeedOrder(ctx, o); err != nil {
					return err
				}
			}

			activities := []*domain.Activity{
				{ID: "act-3001", OrganizationID: org, EntityID: "cust-1001", Kind: "call", Note: "quarterly check-in, interested in volume pricing", OccurredAt: now.AddDate(0, 0, -9)},
				{ID: "act-3002", OrganizationID: org, EntityID: "cust-1002", Kind: "email", Note: "asked for updated catalogue", OccurredAt: now.AddDate(0, 0, -4)},
				{ID: "act-3003", OrganizationID: org, EntityID: "ord-2002", Kind: "note", Note: "warehouse confirmed stock", OccurredAt: now.AddDate(0, 0, -2)},
			}
			for _, act := range activities {
				if err := a.db.SeedActivity(ctx, act); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d customers, %d orders, %d activities for %s\n",
				len(customers), len(orders), len(activities), org)
			return nil
		},
	}
}
