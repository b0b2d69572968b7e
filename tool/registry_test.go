package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/agentdesk/core"
)

func TestRegistryScopesToolsPerSpecialist(t *testing.T) {
	r, err := NewDefaultRegistry(nil)
	require.NoError(t, err)

	_, ok := r.Lookup(core.SpecialistCustomer, "update_customer_notes")
	assert.True(t, ok)
	_, ok = r.Lookup(core.SpecialistAnalytics, "update_customer_notes")
	assert.False(t, ok)
	_, ok = r.Lookup(core.SpecialistAnalytics, "revenue_report")
	assert.True(t, ok)
}

func TestRegistryDefinitionsMatchToolset(t *testing.T) {
	r, err := NewDefaultRegistry(nil)
	require.NoError(t, err)

	defs := r.Definitions(core.SpecialistQuote)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.Parameters["type"])
	}
	assert.Equal(t, []string{"search_customers", "get_customer", "list_orders", "create_quote"}, names)
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(NewGetCustomer(), core.SpecialistCustomer))
	err := r.Register(NewGetCustomer(), core.SpecialistOrder)
	require.Error(t, err)
}

func TestDispatchValidatesArguments(t *testing.T) {
	r, err := NewDefaultRegistry(nil)
	require.NoError(t, err)
	tc := testContext(core.SpecialistCustomer, seededStore(), &stagerStub{})

	out := r.Dispatch(context.Background(), tc, core.ToolCall{
		ID:        "call1",
		Name:      "get_customer",
		Arguments: json.RawMessage(`{}`),
	})
	e, ok := out.(core.Error)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", e.Code)
	assert.NotEmpty(t, e.Suggestion)
}

func TestDispatchUnknownToolIsStructuredError(t *testing.T) {
	r, err := NewDefaultRegistry(nil)
	require.NoError(t, err)
	tc := testContext(core.SpecialistCustomer, seededStore(), &stagerStub{})

	out := r.Dispatch(context.Background(), tc, core.ToolCall{ID: "call1", Name: "drop_tables"})
	e, ok := out.(core.Error)
	require.True(t, ok)
	assert.Equal(t, "UNKNOWN_TOOL", e.Code)
}

func TestDispatchMapsDomainErrorsToCodes(t *testing.T) {
	r, err := NewDefaultRegistry(nil)
	require.NoError(t, err)
	tc := testContext(core.SpecialistCustomer, seededStore(), &stagerStub{})

	out := r.Dispatch(context.Background(), tc, core.ToolCall{
		ID:        "call1",
		Name:      "get_customer",
		Arguments: json.RawMessage(`{"customer_id":"missing"}`),
	})
	e, ok := out.(core.Error)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", e.Code)
	assert.Contains(t, e.Suggestion, "customer")
}

func TestDispatchEnumViolationRejected(t *testing.T) {
	r, err := NewDefaultRegistry(nil)
	require.NoError(t, err)
	tc := testContext(core.SpecialistOrder, seededStore(), &stagerStub{})

	out := r.Dispatch(context.Background(), tc, core.ToolCall{
		ID:        "call1",
		Name:      "update_order_status",
		Arguments: json.RawMessage(`{"order_id":"o1","status":"teleported"}`),
	})
	e, ok := out.(core.Error)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", e.Code)
}

func TestMarshalOutcomeTagsVariants(t *testing.T) {
	data := core.MarshalOutcome(core.Data{Payload: map[string]any{"n": 1}})
	assert.Contains(t, data, `"type":"data"`)

	errOut := core.MarshalOutcome(core.Error{Message: "boom", Code: "EXECUTION_ERROR"})
	assert.Contains(t, errOut, `"type":"error"`)
}
