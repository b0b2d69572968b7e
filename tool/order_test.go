package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/crmforge/agentdesk/core"
)

func TestGetOrderJoinsEnrichments(t *testing.T) {
	tc := testContext(core.SpecialistOrder, seededStore(), &stagerStub{})

	out, err := NewGetOrder().Execute(context.Background(), tc, map[string]any{"order_id": "o1"})
	require.NoError(t, err)

	payload := out.(core.Data).Payload.(map[string]any)
	require.Contains(t, payload, "order")
	require.Contains(t, payload, "customer")
	assert.Equal(t, 1, payload["customer_order_count"])

	customer := payload["customer"].(map[string]any)
	assert.Equal(t, "Ada North", customer["name"])
	assert.NotContains(t, customer, "email")
}

func TestUpdateOrderStatusStagesDraft(t *testing.T) {
	stager := &stagerStub{}
	tc := testContext(core.SpecialistOrder, seededStore(), stager)

	out, err := NewUpdateOrderStatus().Execute(context.Background(), tc, map[string]any{
		"order_id": "o1",
		"status":   "shipped",
	})
	require.NoError(t, err)

	ar := out.(core.ApprovalRequired)
	require.Len(t, stager.staged, 1)
	rec := stager.staged[0]
	assert.Equal(t, "update_order_status", rec.Action)
	assert.Equal(t, "shipped", gjson.GetBytes(rec.Draft, "status").String())
	assert.Equal(t, int64(5), gjson.GetBytes(rec.Draft, "base_version").Int())

	require.NotNil(t, ar.Diff)
	assert.Equal(t, "pending", gjson.GetBytes(ar.Diff.Before, "status").String())
	assert.Equal(t, "shipped", gjson.GetBytes(ar.Diff.After, "status").String())
}

func TestUpdateOrderStatusNoOpTransitionRejected(t *testing.T) {
	tc := testContext(core.SpecialistOrder, seededStore(), &stagerStub{})

	_, err := NewUpdateOrderStatus().Execute(context.Background(), tc, map[string]any{
		"order_id": "o1",
		"status":   "pending",
	})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}

func TestUpdateOrderLinesRecomputesTotalsInDiff(t *testing.T) {
	stager := &stagerStub{}
	tc := testContext(core.SpecialistOrder, seededStore(), stager)

	out, err := NewUpdateOrderLines().Execute(context.Background(), tc, map[string]any{
		"order_id": "o1",
		"lines": []any{
			map[string]any{"product_id": "p1", "description": "Widget", "quantity": float64(4), "unit_price": float64(1500)},
		},
	})
	require.NoError(t, err)

	ar := out.(core.ApprovalRequired)
	require.NotNil(t, ar.Diff)
	// 4 * 1500 = 6000 subtotal, 8.75% tax = 525, total 6525.
	assert.Equal(t, int64(6000), gjson.GetBytes(ar.Diff.After, "subtotal").Int())
	assert.Equal(t, int64(525), gjson.GetBytes(ar.Diff.After, "tax").Int())
	assert.Equal(t, int64(6525), gjson.GetBytes(ar.Diff.After, "total").Int())
	assert.Equal(t, int64(3262), gjson.GetBytes(ar.Diff.Before, "total").Int())
}

func TestUpdateOrderLinesValidatesQuantities(t *testing.T) {
	tc := testContext(core.SpecialistOrder, seededStore(), &stagerStub{})

	_, err := NewUpdateOrderLines().Execute(context.Background(), tc, map[string]any{
		"order_id": "o1",
		"lines": []any{
			map[string]any{"product_id": "p1", "quantity": float64(0), "unit_price": float64(100)},
		},
	})
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Field, "quantity")
}
