package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/crmforge/agentdesk/core"
)

// NotesSeparator delimits appended note blocks. It is prepended to every
// appended block, including the first one on a previously empty field, so a
// notes history always reads as a uniform sequence of separated entries.
const NotesSeparator = "\n\n---\n\n"

// maxSearchLimit caps search_customers result sets.
const maxSearchLimit = 25

type searchCustomersArgs struct {
	Query string `json:"query" description:"Name, company or email fragment to search for"`
	Limit int    `json:"limit,omitempty" description:"Maximum results to return (default 10, max 25)"`
}

// NewSearchCustomers builds the read tool that searches customers by name,
// company or email fragment within the caller's organization.
func NewSearchCustomers() Tool {
	return newFuncTool(
		"search_customers",
		"Search customers by name, company or email fragment. Returns matching customers with sensitive contact fields removed.",
		searchCustomersArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			query := argString(args, "query")
			limit := argInt(args, "limit", 10)
			if limit <= 0 || limit > maxSearchLimit {
				limit = maxSearchLimit
			}

			customers, err := tc.Store.SearchCustomers(ctx, tc.OrgID(), query, limit)
			if err != nil {
				return nil, err
			}
			return core.Data{
				Payload: Sanitize(customers),
				Meta:    map[string]any{"count": len(customers), "query": query},
			}, nil
		},
	)
}

type getCustomerArgs struct {
	CustomerID string `json:"customer_id" description:"Customer identifier"`
}

// NewGetCustomer builds the read tool that fetches one customer profile.
func NewGetCustomer() Tool {
	return newFuncTool(
		"get_customer",
		"Fetch a customer profile by id, including internal notes and the most recent activity.",
		getCustomerArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			id := argString(args, "customer_id")

			customer, err := tc.Store.GetCustomer(ctx, tc.OrgID(), id)
			if err != nil {
				return nil, err
			}

			payload := map[string]any{"customer": Sanitize(customer)}
			// Activity is decoration: its absence never fails the read.
			if activity, err := tc.Store.LatestActivity(ctx, tc.OrgID(), id); err == nil && activity != nil {
				payload["latest_activity"] = Sanitize(activity)
			}
			return core.Data{Payload: payload}, nil
		},
	)
}

type updateCustomerNotesArgs struct {
	CustomerID string `json:"customer_id" description:"Customer identifier"`
	Notes      string `json:"notes" description:"Note text to add to the customer's internal notes"`
	AppendMode bool   `json:"append_mode,omitempty" description:"Append to the existing notes (default); set false to replace them entirely"`
}

// NewUpdateCustomerNotes builds the write tool that stages an internal-notes
// change as a pending draft. Nothing is written until a human approves and
// applies the draft; the draft carries the fully composed notes value and the
// customer version it was computed against.
func NewUpdateCustomerNotes() Tool {
	return newFuncTool(
		"update_customer_notes",
		"Add a note to a customer's internal notes. Stages a draft that requires human approval before anything is saved.",
		updateCustomerNotesArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			id := argString(args, "customer_id")
			note := argString(args, "notes")
			if note == "" {
				return nil, &core.ValidationError{Field: "notes", Message: "must not be empty"}
			}

			customer, err := tc.Store.GetCustomer(ctx, tc.OrgID(), id)
			if err != nil {
				return nil, err
			}

			composed := note
			if argBool(args, "append_mode", true) {
				composed = customer.InternalNotes + NotesSeparator + note
			}

			draft, _ := sjson.Set("", "customer_id", customer.ID)
			draft, _ = sjson.Set(draft, "notes", composed)
			draft, _ = sjson.Set(draft, "base_version", customer.Version)

			before, _ := sjson.Set("", "internalNotes", customer.InternalNotes)
			after, _ := sjson.Set("", "internalNotes", composed)
			diff := &core.Diff{Before: json.RawMessage(before), After: json.RawMessage(after)}

			rec := core.NewApprovalRecord(tc.User, tc.ConversationID,
				"update_customer_notes", string(tc.Agent), json.RawMessage(draft), diff)
			if err := tc.Approvals.Stage(ctx, rec); err != nil {
				return nil, err
			}

			return core.ApprovalRequired{
				Action:     rec.Action,
				ApprovalID: rec.ID,
				Draft:      rec.Draft,
				Summary:    fmt.Sprintf("Append a note to customer %s (%s)", customer.Name, customer.ID),
				Diff:       diff,
			}, nil
		},
	)
}
