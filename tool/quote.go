package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"github.com/crmforge/agentdesk/core"
)

// defaultQuoteValidityDays is the offer lifetime when the caller does not
// specify one.
const defaultQuoteValidityDays = 30

type createQuoteArgs struct {
	CustomerID string `json:"customer_id" description:"Customer the quote is for"`
	Title      string `json:"title" description:"Short quote title shown to the customer"`
	Lines      []any  `json:"lines" description:"Quoted line items: product_id, description, quantity, unit_price (cents)"`
	ValidDays  int    `json:"valid_days,omitempty" description:"Days the offer stays valid (default 30)"`
}

// NewCreateQuote builds the write tool staging a new quote as a pending
// draft. The draft carries the fully priced quote; apply only inserts it.
func NewCreateQuote() Tool {
	return newFuncTool(
		"create_quote",
		"Draft a quote for a customer from the given line items. Stages a draft that requires human approval before the quote is created.",
		createQuoteArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			title := argString(args, "title")
			if title == "" {
				return nil, &core.ValidationError{Field: "title", Message: "must not be empty"}
			}

			lines, err := decodeLines(args["lines"])
			if err != nil {
				return nil, err
			}
			if len(lines) == 0 {
				return nil, &core.ValidationError{Field: "lines", Message: "must contain at least one line item"}
			}

			customer, err := tc.Store.GetCustomer(ctx, tc.OrgID(), argString(args, "customer_id"))
			if err != nil {
				return nil, err
			}

			var total int64
			for _, l := range lines {
				total += int64(l.Quantity) * l.UnitPrice
			}

			validDays := argInt(args, "valid_days", defaultQuoteValidityDays)
			if validDays <= 0 {
				validDays = defaultQuoteValidityDays
			}
			validUntil := time.Now().UTC().AddDate(0, 0, validDays)

			linesJSON, err := json.Marshal(lines)
			if err != nil {
				return nil, &core.ValidationError{Field: "lines", Message: err.Error()}
			}

			draft, _ := sjson.Set("", "customer_id", customer.ID)
			draft, _ = sjson.Set(draft, "title", title)
			draft, _ = sjson.SetRaw(draft, "lines", string(linesJSON))
			draft, _ = sjson.Set(draft, "total", total)
			draft, _ = sjson.Set(draft, "valid_until", validUntil.Format(time.RFC3339))

			diff := &core.Diff{After: json.RawMessage(draft)}

			rec := core.NewApprovalRecord(tc.User, tc.ConversationID,
				"create_quote", string(tc.Agent), json.RawMessage(draft), diff)
			if err := tc.Approvals.Stage(ctx, rec); err != nil {
				return nil, err
			}

			return core.ApprovalRequired{
				Action:     rec.Action,
				ApprovalID: rec.ID,
				Draft:      rec.Draft,
				Summary: fmt.Sprintf("Create quote %q for customer %s, total %d cents, valid until %s",
					title, customer.Name, total, validUntil.Format("2006-01-02")),
				Diff: diff,
			}, nil
		},
	)
}
