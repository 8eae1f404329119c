package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/scoped"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

var coreCols = []string{
	"id", "tenant_id", "pattern_id", "contract_type_code", "contract_name", "contract_number",
	"start_date", "end_date", "amount", "bill_unit", "description", "notes", "status",
	"approved_at", "approved_by", "issued_at", "issued_by", "confirmed_at", "confirmed_by",
	"version", "created_at", "updated_at",
}

// coreDest returns scan targets matching coreCols. The status is scanned
// through *int16 and copied back by the returned func.
func coreDest(c *models.ContractCore) ([]any, func()) {
	var status int16
	dest := []any{
		&c.ID, &c.TenantID, &c.PatternID, &c.ContractTypeCode, &c.Name, &c.Number,
		&c.StartDate, &c.EndDate, &c.Amount, &c.BillUnit, &c.Description, &c.Notes, &status,
		&c.ApprovedAt, &c.ApprovedBy, &c.IssuedAt, &c.IssuedBy, &c.ConfirmedAt, &c.ConfirmedBy,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	}
	return dest, func() { c.Status = models.Status(status) }
}

// coreSet adds the mutable core columns to an UPDATE.
func coreSet(b *scoped.Builder, c *models.ContractCore) *scoped.Builder {
	return b.Set("pattern_id", c.PatternID).
		Set("contract_type_code", c.ContractTypeCode).
		Set("contract_name", c.Name).
		Set("contract_number", c.Number).
		Set("start_date", c.StartDate).
		Set("end_date", c.EndDate).
		Set("amount", c.Amount).
		Set("bill_unit", string(c.BillUnit)).
		Set("description", c.Description).
		Set("notes", c.Notes).
		Set("status", int16(c.Status)).
		Set("approved_at", c.ApprovedAt).
		Set("approved_by", c.ApprovedBy).
		Set("issued_at", c.IssuedAt).
		Set("issued_by", c.IssuedBy).
		Set("confirmed_at", c.ConfirmedAt).
		Set("confirmed_by", c.ConfirmedBy).
		Set("version = version + 1").
		Set("updated_at = now()")
}

func coreInsert(c *models.ContractCore) ([]string, []any) {
	return []string{
			"id", "pattern_id", "contract_type_code", "contract_name", "contract_number",
			"start_date", "end_date", "amount", "bill_unit", "description", "notes", "status",
			"approved_at", "approved_by", "issued_at", "issued_by", "confirmed_at", "confirmed_by",
		}, []any{
			c.ID, c.PatternID, c.ContractTypeCode, c.Name, c.Number,
			c.StartDate, c.EndDate, c.Amount, string(c.BillUnit), c.Description, c.Notes, int16(c.Status),
			c.ApprovedAt, c.ApprovedBy, c.IssuedAt, c.IssuedBy, c.ConfirmedAt, c.ConfirmedBy,
		}
}

var clientContractCols = append(append([]string{}, coreCols...), "client_id", "corporate_number", "bill_payment")

func scanClientContract(r pgx.Row) (models.ClientContract, error) {
	var c models.ClientContract
	dest, fix := coreDest(&c.ContractCore)
	dest = append(dest, &c.ClientID, &c.CorporateNumber, &c.BillPayment)
	if err := r.Scan(dest...); err != nil {
		return c, err
	}
	fix()
	return c, nil
}

var hakenCols = []string{
	"client_contract_id", "haken_office_id", "haken_unit_id", "commander_id",
	"complaint_officer_client_id", "responsible_person_client_id",
	"complaint_officer_company_id", "responsible_person_company_id",
	"limit_by_agreement", "limit_indefinite", "ttp", "period_exempt_detail",
}

func hakenVals(h *models.ClientContractHaken) []any {
	return []any{
		h.ClientContractID, h.HakenOfficeID, h.HakenUnitID, h.CommanderID,
		h.ComplaintOfficerClientID, h.ResponsiblePersonClientID,
		h.ComplaintOfficerCompanyID, h.ResponsiblePersonCompanyID,
		h.LimitByAgreement, h.LimitIndefinite, h.TTP, h.PeriodExemptDetail,
	}
}

func (t *tx) loadHaken(ctx context.Context, cs []models.ClientContract) error {
	if len(cs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(cs))
	byID := make(map[uuid.UUID]*models.ClientContract, len(cs))
	for i := range cs {
		ids[i] = cs[i].ID
		byID[cs[i].ID] = &cs[i]
	}
	rows, err := t.query(ctx, scoped.Select(ctx, "client_contract_haken", hakenCols...).
		Where("client_contract_id = ANY(?)", ids))
	if err != nil {
		return fmt.Errorf("query haken: %w", err)
	}
	hs, err := collect(rows, func(r pgx.Rows) (models.ClientContractHaken, error) {
		var h models.ClientContractHaken
		err := r.Scan(&h.ClientContractID, &h.HakenOfficeID, &h.HakenUnitID, &h.CommanderID,
			&h.ComplaintOfficerClientID, &h.ResponsiblePersonClientID,
			&h.ComplaintOfficerCompanyID, &h.ResponsiblePersonCompanyID,
			&h.LimitByAgreement, &h.LimitIndefinite, &h.TTP, &h.PeriodExemptDetail)
		return h, err
	})
	if err != nil {
		return fmt.Errorf("scan haken: %w", err)
	}
	for i := range hs {
		byID[hs[i].ClientContractID].Haken = &hs[i]
	}
	return nil
}

func (t *tx) saveHaken(ctx context.Context, c *models.ClientContract) error {
	sql, args, err := scoped.Delete(ctx, "client_contract_haken").Where("client_contract_id = ?", c.ID).Build()
	if _, err := t.exec(ctx, sql, args, err); err != nil {
		return fmt.Errorf("clear haken: %w", err)
	}
	if c.Haken == nil {
		return nil
	}
	c.Haken.ClientContractID = c.ID
	sql, args, err = scoped.Insert(ctx, "client_contract_haken", hakenCols, hakenVals(c.Haken), "")
	if _, err := t.exec(ctx, sql, args, err); err != nil {
		return fmt.Errorf("insert haken: %w", err)
	}
	return nil
}

func (t *tx) ClientContract(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.ClientContract, error) {
	b := scoped.Select(ctx, "client_contracts", clientContractCols...).Where("id = ?", id)
	if forUpdate {
		b.ForUpdate()
	}
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return nil, err
	}
	c, err := scanClientContract(row)
	if err != nil {
		return nil, fmt.Errorf("get client contract %s: %w", id, mapErr(err))
	}
	cs := []models.ClientContract{c}
	if err := t.loadHaken(ctx, cs); err != nil {
		return nil, err
	}
	return &cs[0], nil
}

// contractFilter expects the contract table aliased as k.
func contractFilter(b *scoped.Builder, f store.ContractFilter, counterpartyCol, counterpartyTable string) *scoped.Builder {
	if f.CounterpartyID != uuid.Nil {
		b.Where(counterpartyCol+" = ?", f.CounterpartyID)
	}
	if f.Status != 0 {
		b.Where("status = ?", int16(f.Status))
	}
	if f.TypeCode != "" {
		b.Where("contract_type_code = ?", f.TypeCode)
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		b.Where("contract_name ILIKE ? OR contract_number ILIKE ? OR "+counterpartyCol+
			" IN (SELECT p.id FROM "+counterpartyTable+" p WHERE p.tenant_id = k.tenant_id AND p.name ILIKE ?)",
			like, like, like)
	}
	b.OrderBy("created_at DESC")
	if f.Limit > 0 {
		b.Limit(f.Limit)
	}
	return b
}

func (t *tx) ListClientContracts(ctx context.Context, f store.ContractFilter) ([]models.ClientContract, error) {
	b := contractFilter(scoped.Select(ctx, "client_contracts k", clientContractCols...), f, "client_id", "clients")
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list client contracts: %w", err)
	}
	cs, err := collect(rows, func(r pgx.Rows) (models.ClientContract, error) { return scanClientContract(r) })
	if err != nil {
		return nil, fmt.Errorf("scan client contracts: %w", err)
	}
	if err := t.loadHaken(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func (t *tx) InsertClientContract(ctx context.Context, c *models.ClientContract) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cols, vals := coreInsert(&c.ContractCore)
	cols = append(cols, "client_id", "corporate_number", "bill_payment")
	vals = append(vals, c.ClientID, c.CorporateNumber, c.BillPayment)
	sql, args, err := scoped.Insert(ctx, "client_contracts", cols, vals, "tenant_id, version, created_at, updated_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&c.TenantID, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert client contract: %w", mapErr(err))
	}
	return t.saveHaken(ctx, c)
}

func (t *tx) UpdateClientContract(ctx context.Context, c *models.ClientContract) error {
	b := coreSet(scoped.Update(ctx, "client_contracts"), &c.ContractCore).
		Set("client_id", c.ClientID).
		Set("corporate_number", c.CorporateNumber).
		Set("bill_payment", c.BillPayment).
		Where("id = ?", c.ID).
		Where("version = ?", c.Version).
		Returning("version, updated_at")
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return err
	}
	if err := row.Scan(&c.Version, &c.UpdatedAt); err != nil {
		err = mapErr(err)
		if errors.Is(err, store.ErrNotFound) {
			err = store.ErrConflict
		}
		return fmt.Errorf("update client contract %s: %w", c.ID, err)
	}
	return t.saveHaken(ctx, c)
}

func (t *tx) DeleteClientContract(ctx context.Context, id uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "client_contracts").Where("id = ?", id).Build()
	n, err := t.exec(ctx, sql, args, err)
	return mustAffect(n, err, "delete client contract")
}

var staffContractCols = append(append([]string{}, coreCols...), "staff_id", "employment_type_code", "work_location", "business_content")

func scanStaffContract(r pgx.Row) (models.StaffContract, error) {
	var c models.StaffContract
	dest, fix := coreDest(&c.ContractCore)
	dest = append(dest, &c.StaffID, &c.EmploymentTypeCode, &c.WorkLocation, &c.BusinessContent)
	if err := r.Scan(dest...); err != nil {
		return c, err
	}
	fix()
	return c, nil
}

func (t *tx) StaffContract(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.StaffContract, error) {
	b := scoped.Select(ctx, "staff_contracts", staffContractCols...).Where("id = ?", id)
	if forUpdate {
		b.ForUpdate()
	}
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return nil, err
	}
	c, err := scanStaffContract(row)
	if err != nil {
		return nil, fmt.Errorf("get staff contract %s: %w", id, mapErr(err))
	}
	return &c, nil
}

func (t *tx) ListStaffContracts(ctx context.Context, f store.ContractFilter) ([]models.StaffContract, error) {
	b := contractFilter(scoped.Select(ctx, "staff_contracts k", staffContractCols...), f, "staff_id", "staff")
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list staff contracts: %w", err)
	}
	cs, err := collect(rows, func(r pgx.Rows) (models.StaffContract, error) { return scanStaffContract(r) })
	if err != nil {
		return nil, fmt.Errorf("scan staff contracts: %w", err)
	}
	return cs, nil
}

func (t *tx) InsertStaffContract(ctx context.Context, c *models.StaffContract) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cols, vals := coreInsert(&c.ContractCore)
	cols = append(cols, "staff_id", "employment_type_code", "work_location", "business_content")
	vals = append(vals, c.StaffID, c.EmploymentTypeCode, c.WorkLocation, c.BusinessContent)
	sql, args, err := scoped.Insert(ctx, "staff_contracts", cols, vals, "tenant_id, version, created_at, updated_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&c.TenantID, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("insert staff contract: %w", mapErr(err))
	}
	return nil
}

func (t *tx) UpdateStaffContract(ctx context.Context, c *models.StaffContract) error {
	b := coreSet(scoped.Update(ctx, "staff_contracts"), &c.ContractCore).
		Set("staff_id", c.StaffID).
		Set("employment_type_code", c.EmploymentTypeCode).
		Set("work_location", c.WorkLocation).
		Set("business_content", c.BusinessContent).
		Where("id = ?", c.ID).
		Where("version = ?", c.Version).
		Returning("version, updated_at")
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return err
	}
	if err := row.Scan(&c.Version, &c.UpdatedAt); err != nil {
		err = mapErr(err)
		if errors.Is(err, store.ErrNotFound) {
			err = store.ErrConflict
		}
		return fmt.Errorf("update staff contract %s: %w", c.ID, err)
	}
	return nil
}

func (t *tx) DeleteStaffContract(ctx context.Context, id uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "staff_contracts").Where("id = ?", id).Build()
	n, err := t.exec(ctx, sql, args, err)
	return mustAffect(n, err, "delete staff contract")
}
