package approval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
)

// Applier performs one action's mutation inside an apply transaction. The
// draft is the opaque JSON the originating write tool stored; nothing else is
// consulted. force skips the optimistic version check.
type Applier func(ctx context.Context, tx domain.Tx, orgID string, draft gjson.Result, force bool) error

// DefaultAppliers maps the standard write-tool actions to their appliers.
func DefaultAppliers() map[string]Applier {
	return map[string]Applier{
		"update_customer_notes": applyCustomerNotes,
		"update_order_status":   applyOrderStatus,
		"update_order_lines":    applyOrderLines,
		"create_quote":          applyCreateQuote,
	}
}

// checkVersion enforces optimistic concurrency against the version the draft
// was computed on.
func checkVersion(entity, id string, draft gjson.Result, current int64, force bool) error {
	if force {
		return nil
	}
	base := draft.Get("base_version").Int()
	if base != current {
		return &core.ConflictError{Entity: entity, ID: id, ExpectedVersion: base, ActualVersion: current}
	}
	return nil
}

func applyCustomerNotes(ctx context.Context, tx domain.Tx, orgID string, draft gjson.Result, force bool) error {
	id := draft.Get("customer_id").String()
	c, err := tx.GetCustomer(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := checkVersion("customer", id, draft, c.Version, force); err != nil {
		return err
	}
	c.InternalNotes = draft.Get("notes").String()
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	return tx.UpdateCustomer(ctx, c)
}

func applyOrderStatus(ctx context.Context, tx domain.Tx, orgID string, draft gjson.Result, force bool) error {
	id := draft.Get("order_id").String()
	o, err := tx.GetOrder(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := checkVersion("order", id, draft, o.Version, force); err != nil {
		return err
	}
	o.Status = draft.Get("status").String()
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	return tx.UpdateOrder(ctx, o)
}

func applyOrderLines(ctx context.Context, tx domain.Tx, orgID string, draft gjson.Result, force bool) error {
	id := draft.Get("order_id").String()
	o, err := tx.GetOrder(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := checkVersion("order", id, draft, o.Version, force); err != nil {
		return err
	}

	var lines []domain.OrderLine
	if err := json.Unmarshal([]byte(draft.Get("lines").Raw), &lines); err != nil {
		return &core.ValidationError{Field: "lines", Message: "draft line items are malformed"}
	}
	o.Lines = lines
	o.RecomputeTotals()
	o.Version++
	o.UpdatedAt = time.Now().UTC()
	return tx.UpdateOrder(ctx, o)
}

func applyCreateQuote(ctx context.Context, tx domain.Tx, orgID string, draft gjson.Result, _ bool) error {
	var lines []domain.OrderLine
	if err := json.Unmarshal([]byte(draft.Get("lines").Raw), &lines); err != nil {
		return &core.ValidationError{Field: "lines", Message: "draft line items are malformed"}
	}

	validUntil, err := time.Parse(time.RFC3339, draft.Get("valid_until").String())
	if err != nil {
		return &core.ValidationError{Field: "valid_until", Message: "draft validity date is malformed"}
	}

	q := &domain.Quote{
		ID:             core.NewID(),
		OrganizationID: orgID,
		CustomerID:     draft.Get("customer_id").String(),
		Title:          draft.Get("title").String(),
		Lines:          lines,
		Total:          draft.Get("total").Int(),
		ValidUntil:     validUntil,
		CreatedAt:      time.Now().UTC(),
	}
	return tx.InsertQuote(ctx, q)
}
