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

func (t *tx) upsert(ctx context.Context, table string, cols []string, vals []any, what string) error {
	sql, args, err := scoped.Upsert(ctx, table, "id", cols, vals, cols[1:], "")
	n, err := t.exec(ctx, sql, args, err)
	return mustAffect(n, err, what)
}

func (t *tx) Company(ctx context.Context) (*models.Company, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "companies",
		"id", "tenant_id", "name", "corporate_number", "dispatch_treatment_method",
		"round_seal_key", "square_seal_key", "number_prefix", "created_at"))
	if err != nil {
		return nil, err
	}
	var c models.Company
	err = row.Scan(&c.ID, &c.TenantID, &c.Name, &c.CorporateNumber, &c.DispatchTreatment,
		&c.RoundSealKey, &c.SquareSealKey, &c.NumberPrefix, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", mapErr(err))
	}
	return &c, nil
}

func (t *tx) SaveCompany(ctx context.Context, c *models.Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	sql, args, err := scoped.Upsert(ctx, "companies", "tenant_id",
		[]string{"id", "name", "corporate_number", "dispatch_treatment_method", "round_seal_key", "square_seal_key", "number_prefix"},
		[]any{c.ID, c.Name, c.CorporateNumber, string(c.DispatchTreatment), c.RoundSealKey, c.SquareSealKey, c.NumberPrefix},
		[]string{"name", "corporate_number", "dispatch_treatment_method", "round_seal_key", "square_seal_key", "number_prefix"},
		"id, tenant_id, created_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&c.ID, &c.TenantID, &c.CreatedAt); err != nil {
		return fmt.Errorf("save company: %w", mapErr(err))
	}
	return nil
}

var clientCols = []string{"id", "tenant_id", "name", "corporate_number", "basic_contract_date", "basic_contract_date_haken", "created_at"}

func (t *tx) Client(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "clients", clientCols...).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	var c models.Client
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.CorporateNumber, &c.BasicContractDate, &c.BasicContractDateHaken, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("get client %s: %w", id, mapErr(err))
	}
	return &c, nil
}

func (t *tx) SaveClient(ctx context.Context, c *models.Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return t.upsert(ctx, "clients",
		[]string{"id", "name", "corporate_number", "basic_contract_date", "basic_contract_date_haken"},
		[]any{c.ID, c.Name, c.CorporateNumber, c.BasicContractDate, c.BasicContractDateHaken}, "save client")
}

func (t *tx) Organization(ctx context.Context, id uuid.UUID) (*models.ClientOrganization, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "client_organizations",
		"id", "tenant_id", "client_id", "name", "haken_jigyosho_teishokubi").Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	var o models.ClientOrganization
	if err := row.Scan(&o.ID, &o.TenantID, &o.ClientID, &o.Name, &o.HakenJigyoshoTeishokubi); err != nil {
		return nil, fmt.Errorf("get organization %s: %w", id, mapErr(err))
	}
	return &o, nil
}

func (t *tx) SaveOrganization(ctx context.Context, o *models.ClientOrganization) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return t.upsert(ctx, "client_organizations",
		[]string{"id", "client_id", "name", "haken_jigyosho_teishokubi"},
		[]any{o.ID, o.ClientID, o.Name, o.HakenJigyoshoTeishokubi}, "save organization")
}

func (t *tx) ClientUser(ctx context.Context, id uuid.UUID) (*models.ClientUser, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "client_users",
		"id", "tenant_id", "client_id", "name", "title", "email", "phone").Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	var u models.ClientUser
	if err := row.Scan(&u.ID, &u.TenantID, &u.ClientID, &u.Name, &u.Title, &u.Email, &u.Phone); err != nil {
		return nil, fmt.Errorf("get client user %s: %w", id, mapErr(err))
	}
	return &u, nil
}

func (t *tx) SaveClientUser(ctx context.Context, u *models.ClientUser) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return t.upsert(ctx, "client_users",
		[]string{"id", "client_id", "name", "title", "email", "phone"},
		[]any{u.ID, u.ClientID, u.Name, u.Title, u.Email, u.Phone}, "save client user")
}

func (t *tx) CompanyUser(ctx context.Context, id uuid.UUID) (*models.CompanyUser, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "company_users",
		"id", "tenant_id", "name", "email", "phone").Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	var u models.CompanyUser
	if err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Phone); err != nil {
		return nil, fmt.Errorf("get company user %s: %w", id, mapErr(err))
	}
	return &u, nil
}

func (t *tx) SaveCompanyUser(ctx context.Context, u *models.CompanyUser) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return t.upsert(ctx, "company_users",
		[]string{"id", "name", "email", "phone"},
		[]any{u.ID, u.Name, u.Email, u.Phone}, "save company user")
}

var staffCols = []string{"id", "tenant_id", "name", "email", "employee_number", "hire_date", "created_at"}

func scanStaff(row pgx.Row) (*models.Staff, error) {
	var s models.Staff
	if err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.Email, &s.EmployeeNumber, &s.HireDate, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *tx) Staff(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "staff", staffCols...).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	s, err := scanStaff(row)
	if err != nil {
		return nil, fmt.Errorf("get staff %s: %w", id, mapErr(err))
	}
	return s, nil
}

func (t *tx) StaffByEmail(ctx context.Context, email string) (*models.Staff, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "staff", staffCols...).
		Where("email <> '' AND lower(email) = lower(?)", email))
	if err != nil {
		return nil, err
	}
	s, err := scanStaff(row)
	if err != nil {
		return nil, fmt.Errorf("get staff by email: %w", mapErr(err))
	}
	return s, nil
}

func (t *tx) SaveStaff(ctx context.Context, s *models.Staff) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return t.upsert(ctx, "staff",
		[]string{"id", "name", "email", "employee_number", "hire_date"},
		[]any{s.ID, s.Name, s.Email, s.EmployeeNumber, s.HireDate}, "save staff")
}

func (t *tx) StaffSatellites(ctx context.Context, staffID uuid.UUID) (*models.StaffSatellites, error) {
	if _, err := t.Staff(ctx, staffID); err != nil {
		return nil, err
	}
	row, err := t.queryRow(ctx, scoped.Select(ctx, "staff_satellites",
		"profile", "mynumber", "bank", "international", "disability").Where("staff_id = ?", staffID))
	if err != nil {
		return nil, err
	}
	var sat models.StaffSatellites
	err = row.Scan(&sat.Profile, &sat.Mynumber, &sat.Bank, &sat.International, &sat.Disability)
	if err := mapErr(err); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get staff satellites: %w", err)
	}
	return &sat, nil
}

func (t *tx) SaveStaffSatellites(ctx context.Context, staffID uuid.UUID, s *models.StaffSatellites) error {
	if _, err := t.Staff(ctx, staffID); err != nil {
		return err
	}
	cols := []string{"staff_id", "profile", "mynumber", "bank", "international", "disability"}
	sql, args, err := scoped.Upsert(ctx, "staff_satellites", "staff_id", cols,
		[]any{staffID, s.Profile, s.Mynumber, s.Bank, s.International, s.Disability}, cols[1:], "")
	_, err = t.exec(ctx, sql, args, err)
	if err != nil {
		return fmt.Errorf("save staff satellites: %w", err)
	}
	return nil
}

func (t *tx) Pattern(ctx context.Context, id uuid.UUID) (*models.ContractPattern, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "contract_patterns",
		"id", "tenant_id", "domain", "contract_type_code", "name", "employment_type_code", "is_active").Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	var p models.ContractPattern
	if err := row.Scan(&p.ID, &p.TenantID, &p.Domain, &p.ContractTypeCode, &p.Name, &p.EmploymentTypeCode, &p.IsActive); err != nil {
		return nil, fmt.Errorf("get pattern %s: %w", id, mapErr(err))
	}

	rows, err := t.query(ctx, scoped.Select(ctx, "contract_terms",
		"id", "pattern_id", "clause", "text", "position", "display_order").
		Where("pattern_id = ?", id).OrderBy("position, display_order"))
	if err != nil {
		return nil, fmt.Errorf("query pattern terms: %w", err)
	}
	p.Terms, err = collect(rows, func(r pgx.Rows) (models.ContractTerm, error) {
		var term models.ContractTerm
		var pos int16
		err := r.Scan(&term.ID, &term.PatternID, &term.Clause, &term.Text, &pos, &term.DisplayOrder)
		term.Position = models.TermPosition(pos)
		return term, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan pattern terms: %w", err)
	}
	return &p, nil
}

func (t *tx) SavePattern(ctx context.Context, p *models.ContractPattern) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := t.upsert(ctx, "contract_patterns",
		[]string{"id", "domain", "contract_type_code", "name", "employment_type_code", "is_active"},
		[]any{p.ID, string(p.Domain), p.ContractTypeCode, p.Name, p.EmploymentTypeCode, p.IsActive}, "save pattern")
	if err != nil {
		return err
	}
	sql, args, err := scoped.Delete(ctx, "contract_terms").Where("pattern_id = ?", p.ID).Build()
	if _, err := t.exec(ctx, sql, args, err); err != nil {
		return fmt.Errorf("replace pattern terms: %w", err)
	}
	for i := range p.Terms {
		term := &p.Terms[i]
		if term.ID == uuid.Nil {
			term.ID = uuid.New()
		}
		term.PatternID = p.ID
		sql, args, err := scoped.Insert(ctx, "contract_terms",
			[]string{"id", "pattern_id", "clause", "text", "position", "display_order"},
			[]any{term.ID, p.ID, term.Clause, term.Text, int16(term.Position), term.DisplayOrder}, "")
		if _, err := t.exec(ctx, sql, args, err); err != nil {
			return fmt.Errorf("insert pattern term: %w", err)
		}
	}
	return nil
}
