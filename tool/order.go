package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/sjson"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
)

type getOrderArgs struct {
	OrderID string `json:"order_id" description:"Order identifier"`
}

// NewGetOrder builds the read tool that fetches an order together with its
// customer, most recent activity and the customer's order count. The three
// enrichment fetches run concurrently and degrade individually: a failed
// enrichment is omitted, never fatal.
func NewGetOrder() Tool {
	return newFuncTool(
		"get_order",
		"Fetch an order by id with its line items, totals, customer summary and recent activity.",
		getOrderArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			id := argString(args, "order_id")

			order, err := tc.Store.GetOrder(ctx, tc.OrgID(), id)
			if err != nil {
				return nil, err
			}

			var (
				wg         sync.WaitGroup
				customer   *domain.Customer
				activity   *domain.Activity
				orderCount = -1
			)
			wg.Add(3)
			go func() {
				defer wg.Done()
				customer, _ = tc.Store.GetCustomer(ctx, tc.OrgID(), order.CustomerID)
			}()
			go func() {
				defer wg.Done()
				activity, _ = tc.Store.LatestActivity(ctx, tc.OrgID(), order.ID)
			}()
			go func() {
				defer wg.Done()
				if n, err := tc.Store.CountOrders(ctx, tc.OrgID(), order.CustomerID); err == nil {
					orderCount = n
				}
			}()
			wg.Wait()

			payload := map[string]any{"order": Sanitize(order)}
			if customer != nil {
				payload["customer"] = Sanitize(customer)
			}
			if activity != nil {
				payload["latest_activity"] = Sanitize(activity)
			}
			if orderCount >= 0 {
				payload["customer_order_count"] = orderCount
			}
			return core.Data{Payload: payload}, nil
		},
	)
}

type listOrdersArgs struct {
	CustomerID string `json:"customer_id,omitempty" description:"Restrict to one customer's orders"`
	Limit      int    `json:"limit,omitempty" description:"Maximum results to return (default 10, max 25)"`
}

// NewListOrders builds the read tool listing recent orders, optionally
// filtered by customer.
func NewListOrders() Tool {
	return newFuncTool(
		"list_orders",
		"List recent orders for the organization, optionally restricted to one customer.",
		listOrdersArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			limit := argInt(args, "limit", 10)
			if limit <= 0 || limit > maxSearchLimit {
				limit = maxSearchLimit
			}

			orders, err := tc.Store.ListOrders(ctx, tc.OrgID(), argString(args, "customer_id"), limit)
			if err != nil {
				return nil, err
			}
			return core.Data{
				Payload: Sanitize(orders),
				Meta:    map[string]any{"count": len(orders)},
			}, nil
		},
	)
}

type updateOrderStatusArgs struct {
	OrderID string `json:"order_id" description:"Order identifier"`
	Status  string `json:"status" description:"New order status" enum:"pending,processing,shipped,delivered,cancelled"`
}

// NewUpdateOrderStatus builds the write tool staging an order status change
// as a pending draft.
func NewUpdateOrderStatus() Tool {
	return newFuncTool(
		"update_order_status",
		"Change an order's status. Stages a draft that requires human approval before anything is saved.",
		updateOrderStatusArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			id := argString(args, "order_id")
			status := argString(args, "status")

			order, err := tc.Store.GetOrder(ctx, tc.OrgID(), id)
			if err != nil {
				return nil, err
			}
			if order.Status == status {
				return nil, &core.ValidationError{Field: "status", Message: fmt.Sprintf("order is already %q", status)}
			}

			draft, _ := sjson.Set("", "order_id", order.ID)
			draft, _ = sjson.Set(draft, "status", status)
			draft, _ = sjson.Set(draft, "base_version", order.Version)

			before, _ := sjson.Set("", "status", order.Status)
			after, _ := sjson.Set("", "status", status)
			diff := &core.Diff{Before: json.RawMessage(before), After: json.RawMessage(after)}

			rec := core.NewApprovalRecord(tc.User, tc.ConversationID,
				"update_order_status", string(tc.Agent), json.RawMessage(draft), diff)
			if err := tc.Approvals.Stage(ctx, rec); err != nil {
				return nil, err
			}

			return core.ApprovalRequired{
				Action:     rec.Action,
				ApprovalID: rec.ID,
				Draft:      rec.Draft,
				Summary:    fmt.Sprintf("Change order %s status from %q to %q", order.ID, order.Status, status),
				Diff:       diff,
			}, nil
		},
	)
}

type updateOrderLinesArgs struct {
	OrderID string `json:"order_id" description:"Order identifier"`
	Lines   []any  `json:"lines" description:"Replacement line items: product_id, description, quantity, unit_price (cents)"`
}

// NewUpdateOrderLines builds the write tool staging a full replacement of an
// order's line items. Totals in the draft diff are recomputed from the new
// lines so the reviewer sees the net financial effect.
func NewUpdateOrderLines() Tool {
	return newFuncTool(
		"update_order_lines",
		"Replace an order's line items. Stages a draft showing the recomputed totals; requires human approval before anything is saved.",
		updateOrderLinesArgs{},
		func(ctx context.Context, tc *Context, args map[string]any) (core.ToolOutcome, error) {
			id := argString(args, "order_id")

			lines, err := decodeLines(args["lines"])
			if err != nil {
				return nil, err
			}
			if len(lines) == 0 {
				return nil, &core.ValidationError{Field: "lines", Message: "must contain at least one line item"}
			}

			order, err := tc.Store.GetOrder(ctx, tc.OrgID(), id)
			if err != nil {
				return nil, err
			}

			proposed := *order
			proposed.Lines = lines
			proposed.RecomputeTotals()

			linesJSON, err := json.Marshal(lines)
			if err != nil {
				return nil, &core.ValidationError{Field: "lines", Message: err.Error()}
			}

			draft, _ := sjson.Set("", "order_id", order.ID)
			draft, _ = sjson.SetRaw(draft, "lines", string(linesJSON))
			draft, _ = sjson.Set(draft, "base_version", order.Version)

			beforeJSON, _ := json.Marshal(map[string]any{
				"lines": order.Lines, "subtotal": order.Subtotal, "tax": order.Tax, "total": order.Total,
			})
			afterJSON, _ := json.Marshal(map[string]any{
				"lines": proposed.Lines, "subtotal": proposed.Subtotal, "tax": proposed.Tax, "total": proposed.Total,
			})
			diff := &core.Diff{Before: beforeJSON, After: afterJSON}

			rec := core.NewApprovalRecord(tc.User, tc.ConversationID,
				"update_order_lines", string(tc.Agent), json.RawMessage(draft), diff)
			if err := tc.Approvals.Stage(ctx, rec); err != nil {
				return nil, err
			}

			return core.ApprovalRequired{
				Action:     rec.Action,
				ApprovalID: rec.ID,
				Draft:      rec.Draft,
				Summary: fmt.Sprintf("Replace %d line item(s) on order %s, new total %d cents",
					len(lines), order.ID, proposed.Total),
				Diff: diff,
			}, nil
		},
	)
}

// decodeLines coerces the decoded JSON argument into typed order lines. Each
// line must carry a positive quantity and a non-negative unit price.
func decodeLines(v any) ([]domain.OrderLine, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &core.ValidationError{Field: "lines", Message: err.Error()}
	}
	var lines []domain.OrderLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, &core.ValidationError{Field: "lines", Message: fmt.Sprintf("malformed line items: %v", err)}
	}
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, &core.ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Message: "must be positive"}
		}
		if l.UnitPrice < 0 {
			return nil, &core.ValidationError{Field: fmt.Sprintf("lines[%d].unit_price", i), Message: "must not be negative"}
		}
	}
	return lines, nil
}
