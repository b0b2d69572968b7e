package tool

import (
	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/logging"
)

// NewDefaultRegistry wires the standard tool fleet with its per-specialist
// visibility. Read tools are shared where a specialist plausibly needs the
// context; write tools are visible only to the specialist owning the entity.
func NewDefaultRegistry(logger logging.Logger) (*Registry, error) {
	r := NewRegistry(logger)

	searchCustomers := NewSearchCustomers()
	getCustomer := NewGetCustomer()
	listOrders := NewListOrders()

	regs := []struct {
		t      Tool
		agents []core.Specialist
	}{
		{searchCustomers, []core.Specialist{core.SpecialistCustomer, core.SpecialistOrder, core.SpecialistQuote}},
		{getCustomer, []core.Specialist{core.SpecialistCustomer, core.SpecialistQuote}},
		{NewUpdateCustomerNotes(), []core.Specialist{core.SpecialistCustomer}},
		{NewGetOrder(), []core.Specialist{core.SpecialistOrder}},
		{listOrders, []core.Specialist{core.SpecialistCustomer, core.SpecialistOrder, core.SpecialistAnalytics}},
		{NewUpdateOrderStatus(), []core.Specialist{core.SpecialistOrder}},
		{NewUpdateOrderLines(), []core.Specialist{core.SpecialistOrder}},
		{NewCreateQuote(), []core.Specialist{core.SpecialistQuote}},
		{NewRevenueReport(), []core.Specialist{core.SpecialistAnalytics}},
	}
	for _, reg := range regs {
		if err := r.Register(reg.t, reg.agents...); err != nil {
			return nil, err
		}
	}
	return r, nil
}
