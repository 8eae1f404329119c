// Package fixture seeds stores for tests.
package fixture

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
	"github.com/stretchr/testify/require"
)

// Date returns midnight UTC of a civil date.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DatePtr(y int, m time.Month, d int) *time.Time {
	t := Date(y, m, d)
	return &t
}

func Ptr[T any](v T) *T { return &v }

// World is one seeded tenant with an all-permission operator.
type World struct {
	t       testing.TB
	Store   store.Store
	Tenant  *models.Tenant
	Company *models.Company
	Actor   *tenant.Actor
	Ctx     context.Context
}

// NewWorld creates a tenant whose company issues numbers with prefix.
func NewWorld(t testing.TB, st store.Store, prefix, corporateNumber string) *World {
	t.Helper()
	tn := &models.Tenant{Name: prefix, Slug: prefix}
	require.NoError(t, st.CreateTenant(context.Background(), tn))

	actor := &tenant.Actor{
		ID:           uuid.New(),
		Name:         "operator " + prefix,
		Kind:         tenant.KindOperator,
		Permissions:  []string{"*"},
		HomeTenantID: tn.ID,
	}
	w := &World{t: t, Store: st, Tenant: tn, Actor: actor}
	w.Ctx = tenant.WithActor(tenant.WithTenant(context.Background(), tn), actor)

	w.Company = &models.Company{
		Name:              prefix + " Staffing",
		CorporateNumber:   corporateNumber,
		DispatchTreatment: models.DispatchTreatmentAgreement,
		NumberPrefix:      prefix,
	}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveCompany(ctx, w.Company) })
	return w
}

// As returns the world's context acting as a.
func (w *World) As(a *tenant.Actor) context.Context {
	return tenant.WithActor(tenant.WithTenant(context.Background(), w.Tenant), a)
}

// Tx runs fn in a transaction and fails the test on error.
func (w *World) Tx(fn func(ctx context.Context, tx store.Tx) error) {
	w.t.Helper()
	require.NoError(w.t, w.Store.InTx(w.Ctx, fn))
}

func (w *World) Client(name, corporateNumber string) *models.Client {
	c := &models.Client{
		Name:                   name,
		CorporateNumber:        corporateNumber,
		BasicContractDate:      DatePtr(2024, 1, 1),
		BasicContractDateHaken: DatePtr(2024, 1, 1),
	}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveClient(ctx, c) })
	return c
}

func (w *World) Organization(clientID uuid.UUID, name string, teishokubi *time.Time) *models.ClientOrganization {
	o := &models.ClientOrganization{ClientID: clientID, Name: name, HakenJigyoshoTeishokubi: teishokubi}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveOrganization(ctx, o) })
	return o
}

func (w *World) ClientUser(clientID uuid.UUID, name string) *models.ClientUser {
	u := &models.ClientUser{ClientID: clientID, Name: name}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveClientUser(ctx, u) })
	return u
}

func (w *World) CompanyUser(name string) *models.CompanyUser {
	u := &models.CompanyUser{Name: name}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveCompanyUser(ctx, u) })
	return u
}

// Staff creates a contractable staff member.
func (w *World) Staff(name, email string) *models.Staff {
	s := &models.Staff{Name: name, Email: email, EmployeeNumber: "E001", HireDate: DatePtr(2024, 4, 1)}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveStaff(ctx, s) })
	return s
}

func (w *World) Pattern(side models.Side, typeCode, name string) *models.ContractPattern {
	p := &models.ContractPattern{
		Domain:           side,
		ContractTypeCode: typeCode,
		Name:             name,
		IsActive:         true,
		Terms: []models.ContractTerm{
			{Text: "{{company_name}} and {{client_name}}{{staff_name}} agree as follows.", Position: models.TermPreamble, DisplayOrder: 1},
			{Clause: "Article 1", Text: "Scope of work.", Position: models.TermBody, DisplayOrder: 1},
			{Text: "In witness whereof.", Position: models.TermPostamble, DisplayOrder: 1},
		},
	}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SavePattern(ctx, p) })
	return p
}

// Haken returns a fully populated dispatch satellite pointing at unit.
func (w *World) Haken(client *models.Client, unit *models.ClientOrganization) *models.ClientContractHaken {
	commander := w.ClientUser(client.ID, "Commander")
	officer := w.CompanyUser("Officer")
	return &models.ClientContractHaken{
		HakenOfficeID:              &unit.ID,
		HakenUnitID:                &unit.ID,
		CommanderID:                &commander.ID,
		ComplaintOfficerClientID:   &commander.ID,
		ResponsiblePersonClientID:  &commander.ID,
		ComplaintOfficerCompanyID:  &officer.ID,
		ResponsiblePersonCompanyID: &officer.ID,
	}
}

// DispatchContract inserts a draft dispatch client contract.
func (w *World) DispatchContract(client *models.Client, pattern *models.ContractPattern, unit *models.ClientOrganization, start time.Time, end *time.Time) *models.ClientContract {
	c := &models.ClientContract{
		ContractCore: models.ContractCore{
			PatternID:        &pattern.ID,
			ContractTypeCode: models.ContractTypeDispatch,
			Name:             "Dispatch " + client.Name,
			StartDate:        start,
			EndDate:          end,
			Amount:           Ptr(int64(2500)),
			BillUnit:         models.BillHourly,
			Status:           models.StatusDraft,
		},
		ClientID:        client.ID,
		CorporateNumber: client.CorporateNumber,
		Haken:           w.Haken(client, unit),
	}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.InsertClientContract(ctx, c) })
	return c
}

// StaffContract inserts a draft staff contract.
func (w *World) StaffContract(staff *models.Staff, pattern *models.ContractPattern, employmentType string, start time.Time, end *time.Time) *models.StaffContract {
	c := &models.StaffContract{
		ContractCore: models.ContractCore{
			ContractTypeCode: models.ContractTypeDispatch,
			Name:             "Employment " + staff.Name,
			StartDate:        start,
			EndDate:          end,
			Status:           models.StatusDraft,
		},
		StaffID:            staff.ID,
		EmploymentTypeCode: employmentType,
	}
	if pattern != nil {
		c.PatternID = &pattern.ID
	}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.InsertStaffContract(ctx, c) })
	return c
}

// ForceClientStatus writes status and number directly, skipping the
// state machine.
func (w *World) ForceClientStatus(id uuid.UUID, status models.Status, number string) {
	w.Tx(func(ctx context.Context, tx store.Tx) error {
		c, err := tx.ClientContract(ctx, id, true)
		if err != nil {
			return err
		}
		c.Status = status
		c.Number = Ptr(number)
		return tx.UpdateClientContract(ctx, c)
	})
}

func (w *World) ForceStaffStatus(id uuid.UUID, status models.Status, number string) {
	w.Tx(func(ctx context.Context, tx store.Tx) error {
		c, err := tx.StaffContract(ctx, id, true)
		if err != nil {
			return err
		}
		c.Status = status
		c.Number = Ptr(number)
		return tx.UpdateStaffContract(ctx, c)
	})
}

// Assign inserts an assignment without any checks.
func (w *World) Assign(clientContractID, staffContractID uuid.UUID) *models.Assignment {
	a := &models.Assignment{ClientContractID: clientContractID, StaffContractID: staffContractID}
	w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.InsertAssignment(ctx, a) })
	return a
}
