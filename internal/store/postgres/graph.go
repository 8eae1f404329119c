package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/scoped"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

var assignmentCols = []string{"id", "tenant_id", "client_contract_id", "staff_contract_id", "created_at", "created_by"}

func scanAssignment(r pgx.Row) (models.Assignment, error) {
	var a models.Assignment
	err := r.Scan(&a.ID, &a.TenantID, &a.ClientContractID, &a.StaffContractID, &a.CreatedAt, &a.CreatedBy)
	return a, err
}

func (t *tx) Assignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "contract_assignments", assignmentCols...).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	a, err := scanAssignment(row)
	if err != nil {
		return nil, fmt.Errorf("get assignment %s: %w", id, mapErr(err))
	}
	return &a, nil
}

func (t *tx) InsertAssignment(ctx context.Context, a *models.Assignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	sql, args, err := scoped.Insert(ctx, "contract_assignments",
		[]string{"id", "client_contract_id", "staff_contract_id", "created_by"},
		[]any{a.ID, a.ClientContractID, a.StaffContractID, a.CreatedBy}, "tenant_id, created_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&a.TenantID, &a.CreatedAt); err != nil {
		return fmt.Errorf("insert assignment: %w", mapErr(err))
	}
	return nil
}

func (t *tx) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "contract_assignments").Where("id = ?", id).Build()
	n, err := t.exec(ctx, sql, args, err)
	return mustAffect(n, err, "delete assignment")
}

func (t *tx) assignmentsWhere(ctx context.Context, col string, id uuid.UUID) ([]models.Assignment, error) {
	rows, err := t.query(ctx, scoped.Select(ctx, "contract_assignments", assignmentCols...).
		Where(col+" = ?", id).OrderBy("created_at"))
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.Assignment, error) { return scanAssignment(r) })
}

func (t *tx) AssignmentsByClient(ctx context.Context, clientContractID uuid.UUID) ([]models.Assignment, error) {
	return t.assignmentsWhere(ctx, "client_contract_id", clientContractID)
}

func (t *tx) AssignmentsByStaff(ctx context.Context, staffContractID uuid.UUID) ([]models.Assignment, error) {
	return t.assignmentsWhere(ctx, "staff_contract_id", staffContractID)
}

// assignmentLineSource joins every table the conflict date reads. The
// tenant predicate lands on the outer alias a.
const assignmentLineSource = `contract_assignments a
	JOIN staff_contracts sc ON sc.id = a.staff_contract_id AND sc.tenant_id = a.tenant_id
	JOIN staff s ON s.id = sc.staff_id AND s.tenant_id = a.tenant_id
	JOIN client_contracts cc ON cc.id = a.client_contract_id AND cc.tenant_id = a.tenant_id
	LEFT JOIN client_contract_haken h ON h.client_contract_id = cc.id
	LEFT JOIN client_organizations o ON o.id = h.haken_unit_id AND o.tenant_id = a.tenant_id`

func (t *tx) AssignmentLines(ctx context.Context, f store.LineFilter) ([]store.AssignmentLine, error) {
	b := scoped.Select(ctx, assignmentLineSource,
		"a.id", "s.email", "sc.employment_type_code", "sc.start_date",
		"cc.contract_type_code", "cc.corporate_number", "o.name").
		Qualify("a").
		OrderBy("a.created_at")
	if f.AssignmentID != uuid.Nil {
		b.Where("a.id = ?", f.AssignmentID)
	}
	if f.StaffEmail != "" {
		b.Where("lower(s.email) = lower(?)", f.StaffEmail)
	}
	if f.ClientCorporateNumber != "" {
		b.Where("cc.corporate_number = ?", f.ClientCorporateNumber)
	}
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query assignment lines: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (store.AssignmentLine, error) {
		var l store.AssignmentLine
		err := r.Scan(&l.AssignmentID, &l.StaffEmail, &l.EmploymentTypeCode, &l.StaffStartDate,
			&l.ClientTypeCode, &l.ClientCorporateNumber, &l.OrganizationName)
		return l, err
	})
}

var printCols = []string{"id", "tenant_id", "side", "contract_id", "print_kind", "document_title",
	"contract_number", "printed_at", "printed_by", "blob_key", "filename", "sha256", "size"}

func scanPrint(r pgx.Row) (models.Print, error) {
	var p models.Print
	err := r.Scan(&p.ID, &p.TenantID, &p.Side, &p.ContractID, &p.Kind, &p.Title,
		&p.ContractNumber, &p.PrintedAt, &p.PrintedBy, &p.BlobKey, &p.Filename, &p.SHA256, &p.Size)
	return p, err
}

func (t *tx) InsertPrint(ctx context.Context, p *models.Print) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	sql, args, err := scoped.Insert(ctx, "contract_prints",
		[]string{"id", "side", "contract_id", "print_kind", "document_title", "contract_number",
			"printed_at", "printed_by", "blob_key", "filename", "sha256", "size"},
		[]any{p.ID, string(p.Side), p.ContractID, string(p.Kind), p.Title, p.ContractNumber,
			p.PrintedAt, p.PrintedBy, p.BlobKey, p.Filename, p.SHA256, p.Size},
		"tenant_id")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&p.TenantID); err != nil {
		return fmt.Errorf("insert print: %w", mapErr(err))
	}
	return nil
}

func (t *tx) Prints(ctx context.Context, side models.Side, contractID uuid.UUID) ([]models.Print, error) {
	rows, err := t.query(ctx, scoped.Select(ctx, "contract_prints", printCols...).
		Where("side = ? AND contract_id = ?", string(side), contractID).
		OrderBy("printed_at DESC, id"))
	if err != nil {
		return nil, fmt.Errorf("list prints: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.Print, error) { return scanPrint(r) })
}

func (t *tx) Print(ctx context.Context, id uuid.UUID) (*models.Print, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "contract_prints", printCols...).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	p, err := scanPrint(row)
	if err != nil {
		return nil, fmt.Errorf("get print %s: %w", id, mapErr(err))
	}
	return &p, nil
}

func (t *tx) DeletePrints(ctx context.Context, side models.Side, contractID uuid.UUID) ([]models.Print, error) {
	rows, err := t.query(ctx, scoped.Delete(ctx, "contract_prints").
		Where("side = ? AND contract_id = ?", string(side), contractID).
		Returning(joinCols(printCols)))
	if err != nil {
		return nil, fmt.Errorf("delete prints: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.Print, error) { return scanPrint(r) })
}

var teishokubiCols = []string{"id", "tenant_id", "staff_email", "client_corporate_number", "organization_name",
	"dispatch_start_date", "conflict_date", "updated_at"}

func scanTeishokubi(r pgx.Row) (models.Teishokubi, error) {
	var row models.Teishokubi
	err := r.Scan(&row.ID, &row.TenantID, &row.StaffEmail, &row.ClientCorporateNumber, &row.OrganizationName,
		&row.DispatchStartDate, &row.ConflictDate, &row.UpdatedAt)
	return row, err
}

func (t *tx) Teishokubi(ctx context.Context, key models.TeishokubiKey) (*models.Teishokubi, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "staff_contract_teishokubi", teishokubiCols...).
		Where("staff_email = ? AND client_corporate_number = ? AND organization_name = ?",
			store.FoldEmail(key.StaffEmail), key.ClientCorporateNumber, key.OrganizationName))
	if err != nil {
		return nil, err
	}
	v, err := scanTeishokubi(row)
	if err != nil {
		return nil, fmt.Errorf("get teishokubi: %w", mapErr(err))
	}
	return &v, nil
}

func (t *tx) UpsertTeishokubi(ctx context.Context, row *models.Teishokubi) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.StaffEmail = store.FoldEmail(row.StaffEmail)
	sql, args, err := scoped.Upsert(ctx, "staff_contract_teishokubi",
		"tenant_id, staff_email, client_corporate_number, organization_name",
		[]string{"id", "staff_email", "client_corporate_number", "organization_name", "dispatch_start_date", "conflict_date"},
		[]any{row.ID, row.StaffEmail, row.ClientCorporateNumber, row.OrganizationName, row.DispatchStartDate, row.ConflictDate},
		[]string{"dispatch_start_date", "conflict_date", "updated_at"},
		"id, tenant_id, updated_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&row.ID, &row.TenantID, &row.UpdatedAt); err != nil {
		return fmt.Errorf("upsert teishokubi: %w", mapErr(err))
	}
	return nil
}

func (t *tx) DeleteTeishokubi(ctx context.Context, key models.TeishokubiKey) error {
	sql, args, err := scoped.Delete(ctx, "staff_contract_teishokubi").
		Where("staff_email = ? AND client_corporate_number = ? AND organization_name = ?",
			store.FoldEmail(key.StaffEmail), key.ClientCorporateNumber, key.OrganizationName).Build()
	if _, err := t.exec(ctx, sql, args, err); err != nil {
		return fmt.Errorf("delete teishokubi: %w", err)
	}
	return nil
}

func (t *tx) ListTeishokubi(ctx context.Context, f store.TeishokubiFilter) ([]models.Teishokubi, error) {
	b := scoped.Select(ctx, "staff_contract_teishokubi", teishokubiCols...).OrderBy("conflict_date, staff_email")
	if f.StaffEmail != "" {
		b.Where("staff_email = ?", store.FoldEmail(f.StaffEmail))
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		b.Where("staff_email ILIKE ? OR organization_name ILIKE ? OR client_corporate_number ILIKE ?", like, like, like)
	}
	if f.Limit > 0 {
		b.Limit(f.Limit)
	}
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list teishokubi: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.Teishokubi, error) { return scanTeishokubi(r) })
}

func (t *tx) DeleteAllTeishokubi(ctx context.Context) (int, error) {
	sql, args, err := scoped.Delete(ctx, "staff_contract_teishokubi").Build()
	n, err := t.exec(ctx, sql, args, err)
	if err != nil {
		return 0, fmt.Errorf("clear teishokubi: %w", err)
	}
	return int(n), nil
}
