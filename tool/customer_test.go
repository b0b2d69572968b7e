package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/crmforge/agentdesk/core"
)

func TestSearchCustomersSanitizesResults(t *testing.T) {
	tc := testContext(core.SpecialistCustomer, seededStore(), &stagerStub{})

	out, err := NewSearchCustomers().Execute(context.Background(), tc, map[string]any{"query": "north"})
	require.NoError(t, err)

	data, ok := out.(core.Data)
	require.True(t, ok)
	assert.Equal(t, 1, data.Meta["count"])

	raw, err := json.Marshal(data.Payload)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "Ada North")
	assert.NotContains(t, body, "ada@northwind.test")
	assert.NotContains(t, body, "+49 30 1234")
}

func TestGetCustomerIncludesLatestActivity(t *testing.T) {
	tc := testContext(core.SpecialistCustomer, seededStore(), &stagerStub{})

	out, err := NewGetCustomer().Execute(context.Background(), tc, map[string]any{"customer_id": "c1"})
	require.NoError(t, err)

	data := out.(core.Data)
	payload := data.Payload.(map[string]any)
	require.Contains(t, payload, "customer")
	require.Contains(t, payload, "latest_activity")
	activity := payload["latest_activity"].(map[string]any)
	assert.Equal(t, "intro call", activity["note"])
}

func TestGetCustomerUnknownIDIsNotFound(t *testing.T) {
	tc := testContext(core.SpecialistCustomer, seededStore(), &stagerStub{})

	_, err := NewGetCustomer().Execute(context.Background(), tc, map[string]any{"customer_id": "nope"})
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "customer", nf.Entity)
}

func TestUpdateCustomerNotesStagesDraftWithSeparator(t *testing.T) {
	stager := &stagerStub{}
	tc := testContext(core.SpecialistCustomer, seededStore(), stager)

	out, err := NewUpdateCustomerNotes().Execute(context.Background(), tc, map[string]any{
		"customer_id": "c2",
		"notes":       "asked for renewal pricing",
	})
	require.NoError(t, err)

	ar, ok := out.(core.ApprovalRequired)
	require.True(t, ok)
	assert.Equal(t, "update_customer_notes", ar.Action)
	require.Len(t, stager.staged, 1)
	rec := stager.staged[0]
	assert.Equal(t, ar.ApprovalID, rec.ID)
	assert.Equal(t, core.StatusPending, rec.Status)
	assert.Equal(t, "org1", rec.OrganizationID)

	composed := gjson.GetBytes(rec.Draft, "notes").String()
	assert.Equal(t, "prefers phone contact"+NotesSeparator+"asked for renewal pricing", composed)
	assert.Equal(t, int64(1), gjson.GetBytes(rec.Draft, "base_version").Int())
}

// The separator is literal even when the prior notes are empty: the composed
// value starts with the separator block.
func TestUpdateCustomerNotesEmptyPriorKeepsLeadingSeparator(t *testing.T) {
	stager := &stagerStub{}
	tc := testContext(core.SpecialistCustomer, seededStore(), stager)

	_, err := NewUpdateCustomerNotes().Execute(context.Background(), tc, map[string]any{
		"customer_id": "c1",
		"notes":       "first note",
	})
	require.NoError(t, err)
	require.Len(t, stager.staged, 1)

	composed := gjson.GetBytes(stager.staged[0].Draft, "notes").String()
	assert.Equal(t, NotesSeparator+"first note", composed)
}

// append_mode=false stages a full replacement: no separator, prior notes
// only survive in the diff.
func TestUpdateCustomerNotesReplaceMode(t *testing.T) {
	stager := &stagerStub{}
	tc := testContext(core.SpecialistCustomer, seededStore(), stager)

	_, err := NewUpdateCustomerNotes().Execute(context.Background(), tc, map[string]any{
		"customer_id": "c2",
		"notes":       "fresh start",
		"append_mode": false,
	})
	require.NoError(t, err)
	require.Len(t, stager.staged, 1)

	rec := stager.staged[0]
	assert.Equal(t, "fresh start", gjson.GetBytes(rec.Draft, "notes").String())
	assert.Contains(t, string(rec.Diff.Before), "prefers phone contact")
}

func TestUpdateCustomerNotesDoesNotTouchTheStore(t *testing.T) {
	store := seededStore()
	tc := testContext(core.SpecialistCustomer, store, &stagerStub{})

	_, err := NewUpdateCustomerNotes().Execute(context.Background(), tc, map[string]any{
		"customer_id": "c2",
		"notes":       "a note",
	})
	require.NoError(t, err)

	c, err := store.GetCustomer(context.Background(), "org1", "c2")
	require.NoError(t, err)
	assert.Equal(t, "prefers phone contact", c.InternalNotes)
	assert.Equal(t, int64(1), c.Version)
}
