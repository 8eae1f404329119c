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

func (t *tx) InsertAudit(ctx context.Context, e *models.AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	sql, args, err := scoped.Insert(ctx, "audit_events",
		[]string{"id", "actor_id", "actor_name", "action", "model_name", "object_id", "object_repr", "version"},
		[]any{e.ID, e.ActorID, e.ActorName, string(e.Action), e.ModelName, e.ObjectID, e.ObjectRepr, e.Version},
		"tenant_id, created_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&e.TenantID, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert audit event: %w", mapErr(err))
	}
	return nil
}

func (t *tx) AuditEvents(ctx context.Context, q store.AuditQuery) ([]models.AuditEvent, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	b := scoped.Select(ctx, "audit_events",
		"id", "tenant_id", "actor_id", "actor_name", "action", "model_name", "object_id", "object_repr", "version", "created_at")
	if q.Action != "" {
		b.Where("action = ?", string(q.Action))
	}
	if q.ModelName != "" {
		b.Where("model_name = ?", q.ModelName)
	}
	if q.ObjectID != "" {
		b.Where("object_id = ?", q.ObjectID)
	}
	if q.Repr != "" {
		b.Where("strpos(object_repr, ?) > 0", q.Repr)
	}
	if q.StartDate != nil {
		b.Where("created_at >= ?", *q.StartDate)
	}
	if q.EndDate != nil {
		b.Where("created_at <= ?", *q.EndDate)
	}
	b.OrderBy("created_at DESC").Limit(q.Limit).Offset(q.Offset)

	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.AuditEvent, error) {
		var e models.AuditEvent
		err := r.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.ActorName, &e.Action, &e.ModelName,
			&e.ObjectID, &e.ObjectRepr, &e.Version, &e.CreatedAt)
		return e, err
	})
}

// NextSequence serialises concurrent approvals on the sequence row. Only
// the sequence statements run under the short lock_timeout; the session
// value is back in force once the row is held.
func (t *tx) NextSequence(ctx context.Context, letter string, year int) (int, error) {
	ms := t.lockTimeout.Milliseconds()
	if ms <= 0 {
		ms = defaultSequenceLockMS
	}
	if _, err := t.tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)); err != nil {
		return 0, fmt.Errorf("set lock timeout: %w", err)
	}

	sql, args, err := scoped.Insert(ctx, "contract_number_sequences", []string{"letter", "year"}, []any{letter, year}, "")
	if err != nil {
		return 0, err
	}
	if _, err := t.tx.Exec(ctx, sql+" ON CONFLICT DO NOTHING", args...); err != nil {
		return 0, fmt.Errorf("ensure sequence row: %w", mapErr(err))
	}

	row, err := t.queryRow(ctx, scoped.Select(ctx, "contract_number_sequences", "last_value").
		Where("letter = ? AND year = ?", letter, year).ForUpdate())
	if err != nil {
		return 0, err
	}
	var last int
	if err := row.Scan(&last); err != nil {
		return 0, fmt.Errorf("lock sequence %s%d: %w", letter, year, mapErr(err))
	}
	if _, err := t.tx.Exec(ctx, "SET LOCAL lock_timeout = DEFAULT"); err != nil {
		return 0, fmt.Errorf("reset lock timeout: %w", err)
	}

	upd, err := t.queryRow(ctx, scoped.Update(ctx, "contract_number_sequences").
		Set("last_value", last+1).
		Where("letter = ? AND year = ?", letter, year).
		Returning("last_value"))
	if err != nil {
		return 0, err
	}
	var next int
	if err := upd.Scan(&next); err != nil {
		return 0, fmt.Errorf("advance sequence: %w", mapErr(err))
	}
	return next, nil
}

func (t *tx) Sequences(ctx context.Context) ([]store.Sequence, error) {
	rows, err := t.query(ctx, scoped.Select(ctx, "contract_number_sequences", "letter", "year", "last_value").
		OrderBy("year, letter"))
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (store.Sequence, error) {
		var s store.Sequence
		err := r.Scan(&s.Letter, &s.Year, &s.Last)
		return s, err
	})
}

var agreementCols = []string{"id", "tenant_id", "name", "agreement_text", "display_order", "is_active", "updated_at"}

func scanAgreement(r pgx.Row) (models.StaffAgreement, error) {
	var a models.StaffAgreement
	err := r.Scan(&a.ID, &a.TenantID, &a.Name, &a.Text, &a.DisplayOrder, &a.IsActive, &a.UpdatedAt)
	return a, err
}

func (t *tx) Agreement(ctx context.Context, id uuid.UUID) (*models.StaffAgreement, error) {
	row, err := t.queryRow(ctx, scoped.Select(ctx, "staff_agreements", agreementCols...).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	a, err := scanAgreement(row)
	if err != nil {
		return nil, fmt.Errorf("get agreement %s: %w", id, mapErr(err))
	}
	return &a, nil
}

func (t *tx) Agreements(ctx context.Context, activeOnly bool) ([]models.StaffAgreement, error) {
	b := scoped.Select(ctx, "staff_agreements", agreementCols...).OrderBy("display_order, name")
	if activeOnly {
		b.Where("is_active")
	}
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.StaffAgreement, error) { return scanAgreement(r) })
}

func (t *tx) SaveAgreement(ctx context.Context, a *models.StaffAgreement) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	sql, args, err := scoped.Upsert(ctx, "staff_agreements", "id",
		[]string{"id", "name", "agreement_text", "display_order", "is_active"},
		[]any{a.ID, a.Name, a.Text, a.DisplayOrder, a.IsActive},
		[]string{"name", "agreement_text", "display_order", "is_active", "updated_at"},
		"tenant_id, updated_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&a.TenantID, &a.UpdatedAt); err != nil {
		return fmt.Errorf("save agreement: %w", mapErr(err))
	}
	return nil
}

func (t *tx) DeleteAgreement(ctx context.Context, id uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "staff_agreements").Where("id = ?", id).Build()
	n, err := t.exec(ctx, sql, args, err)
	return mustAffect(n, err, "delete agreement")
}

func (t *tx) Acceptances(ctx context.Context, email string) ([]models.AgreementAcceptance, error) {
	rows, err := t.query(ctx, scoped.Select(ctx, "agreement_acceptances",
		"id", "tenant_id", "email", "agreement_id", "text_hash", "is_agreed", "agreed_at").
		Where("email = ?", store.FoldEmail(email)))
	if err != nil {
		return nil, fmt.Errorf("list acceptances: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.AgreementAcceptance, error) {
		var a models.AgreementAcceptance
		err := r.Scan(&a.ID, &a.TenantID, &a.Email, &a.AgreementID, &a.TextHash, &a.IsAgreed, &a.AgreedAt)
		return a, err
	})
}

func (t *tx) SaveAcceptance(ctx context.Context, a *models.AgreementAcceptance) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Email = store.FoldEmail(a.Email)
	sql, args, err := scoped.Upsert(ctx, "agreement_acceptances", "tenant_id, email, agreement_id",
		[]string{"id", "email", "agreement_id", "text_hash", "is_agreed", "agreed_at"},
		[]any{a.ID, a.Email, a.AgreementID, a.TextHash, a.IsAgreed, a.AgreedAt},
		[]string{"text_hash", "is_agreed", "agreed_at"},
		"id, tenant_id")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&a.ID, &a.TenantID); err != nil {
		return fmt.Errorf("save acceptance: %w", mapErr(err))
	}
	return nil
}

func (t *tx) ClearAcceptances(ctx context.Context, agreementID uuid.UUID) (int, error) {
	sql, args, err := scoped.Update(ctx, "agreement_acceptances").
		Set("is_agreed", false).
		Where("agreement_id = ? AND is_agreed", agreementID).Build()
	n, err := t.exec(ctx, sql, args, err)
	if err != nil {
		return 0, fmt.Errorf("clear acceptances: %w", err)
	}
	return int(n), nil
}

func (t *tx) DeleteAcceptancesByAgreement(ctx context.Context, agreementID uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "agreement_acceptances").Where("agreement_id = ?", agreementID).Build()
	if _, err := t.exec(ctx, sql, args, err); err != nil {
		return fmt.Errorf("delete acceptances: %w", err)
	}
	return nil
}

func (t *tx) DeleteAcceptancesByEmail(ctx context.Context, email string) error {
	sql, args, err := scoped.Delete(ctx, "agreement_acceptances").Where("email = ?", store.FoldEmail(email)).Build()
	if _, err := t.exec(ctx, sql, args, err); err != nil {
		return fmt.Errorf("delete acceptances: %w", err)
	}
	return nil
}

var connectStaffCols = []string{"id", "tenant_id", "corporate_number", "email", "status", "approved_at", "approved_by", "created_at"}

func scanConnectStaff(r pgx.Row) (models.ConnectStaff, error) {
	var c models.ConnectStaff
	err := r.Scan(&c.ID, &c.TenantID, &c.CorporateNumber, &c.Email, &c.Status, &c.ApprovedAt, &c.ApprovedBy, &c.CreatedAt)
	return c, err
}

func (t *tx) connectStaffOne(ctx context.Context, b *scoped.Builder) (*models.ConnectStaff, error) {
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return nil, err
	}
	c, err := scanConnectStaff(row)
	if err != nil {
		return nil, fmt.Errorf("get connect staff: %w", mapErr(err))
	}
	return &c, nil
}

func (t *tx) ConnectStaff(ctx context.Context, id uuid.UUID) (*models.ConnectStaff, error) {
	return t.connectStaffOne(ctx, scoped.Select(ctx, "connect_staff", connectStaffCols...).Where("id = ?", id))
}

func (t *tx) ConnectStaffByEmail(ctx context.Context, email string) (*models.ConnectStaff, error) {
	return t.connectStaffOne(ctx, scoped.Select(ctx, "connect_staff", connectStaffCols...).Where("email = ?", store.FoldEmail(email)))
}

func (t *tx) ListConnectStaff(ctx context.Context) ([]models.ConnectStaff, error) {
	rows, err := t.query(ctx, scoped.Select(ctx, "connect_staff", connectStaffCols...).OrderBy("created_at DESC"))
	if err != nil {
		return nil, fmt.Errorf("list connect staff: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.ConnectStaff, error) { return scanConnectStaff(r) })
}

func (t *tx) SaveConnectStaff(ctx context.Context, c *models.ConnectStaff) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Email = store.FoldEmail(c.Email)
	sql, args, err := scoped.Upsert(ctx, "connect_staff", "id",
		[]string{"id", "corporate_number", "email", "status", "approved_at", "approved_by"},
		[]any{c.ID, c.CorporateNumber, c.Email, string(c.Status), c.ApprovedAt, c.ApprovedBy},
		[]string{"corporate_number", "email", "status", "approved_at", "approved_by"},
		"tenant_id, created_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&c.TenantID, &c.CreatedAt); err != nil {
		return fmt.Errorf("save connect staff: %w", mapErr(err))
	}
	return nil
}

func (t *tx) DeleteConnectStaff(ctx context.Context, id uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "connect_staff").Where("id = ?", id).Build()
	n, err := t.exec(ctx, sql, args, err)
	return mustAffect(n, err, "delete connect staff")
}

var connectClientCols = []string{"id", "tenant_id", "client_id", "corporate_number", "email", "status", "approved_at", "approved_by", "created_at"}

func scanConnectClient(r pgx.Row) (models.ConnectClient, error) {
	var c models.ConnectClient
	err := r.Scan(&c.ID, &c.TenantID, &c.ClientID, &c.CorporateNumber, &c.Email, &c.Status, &c.ApprovedAt, &c.ApprovedBy, &c.CreatedAt)
	return c, err
}

func (t *tx) connectClientOne(ctx context.Context, b *scoped.Builder) (*models.ConnectClient, error) {
	row, err := t.queryRow(ctx, b)
	if err != nil {
		return nil, err
	}
	c, err := scanConnectClient(row)
	if err != nil {
		return nil, fmt.Errorf("get connect client: %w", mapErr(err))
	}
	return &c, nil
}

func (t *tx) ConnectClient(ctx context.Context, id uuid.UUID) (*models.ConnectClient, error) {
	return t.connectClientOne(ctx, scoped.Select(ctx, "connect_client", connectClientCols...).Where("id = ?", id))
}

func (t *tx) ConnectClientByEmail(ctx context.Context, email string) (*models.ConnectClient, error) {
	return t.connectClientOne(ctx, scoped.Select(ctx, "connect_client", connectClientCols...).Where("email = ?", store.FoldEmail(email)))
}

func (t *tx) ListConnectClient(ctx context.Context) ([]models.ConnectClient, error) {
	rows, err := t.query(ctx, scoped.Select(ctx, "connect_client", connectClientCols...).OrderBy("created_at DESC"))
	if err != nil {
		return nil, fmt.Errorf("list connect client: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.ConnectClient, error) { return scanConnectClient(r) })
}

func (t *tx) SaveConnectClient(ctx context.Context, c *models.ConnectClient) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Email = store.FoldEmail(c.Email)
	sql, args, err := scoped.Upsert(ctx, "connect_client", "id",
		[]string{"id", "client_id", "corporate_number", "email", "status", "approved_at", "approved_by"},
		[]any{c.ID, c.ClientID, c.CorporateNumber, c.Email, string(c.Status), c.ApprovedAt, c.ApprovedBy},
		[]string{"client_id", "corporate_number", "email", "status", "approved_at", "approved_by"},
		"tenant_id, created_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&c.TenantID, &c.CreatedAt); err != nil {
		return fmt.Errorf("save connect client: %w", mapErr(err))
	}
	return nil
}

func (t *tx) DeleteConnectClient(ctx context.Context, id uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "connect_client").Where("id = ?", id).Build()
	n, err := t.exec(ctx, sql, args, err)
	return mustAffect(n, err, "delete connect client")
}

func (t *tx) InsertDerivedRequest(ctx context.Context, r *models.DerivedRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	sql, args, err := scoped.Insert(ctx, "connect_requests",
		[]string{"id", "connect_staff_id", "kind", "status", "payload"},
		[]any{r.ID, r.ConnectStaffID, string(r.Kind), r.Status, r.Payload},
		"tenant_id, created_at")
	if err != nil {
		return err
	}
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&r.TenantID, &r.CreatedAt); err != nil {
		return fmt.Errorf("insert derived request: %w", mapErr(err))
	}
	return nil
}

func (t *tx) DerivedRequests(ctx context.Context, connectStaffID uuid.UUID) ([]models.DerivedRequest, error) {
	rows, err := t.query(ctx, scoped.Select(ctx, "connect_requests",
		"id", "tenant_id", "connect_staff_id", "kind", "status", "payload", "created_at").
		Where("connect_staff_id = ?", connectStaffID).OrderBy("created_at"))
	if err != nil {
		return nil, fmt.Errorf("list derived requests: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (models.DerivedRequest, error) {
		var d models.DerivedRequest
		err := r.Scan(&d.ID, &d.TenantID, &d.ConnectStaffID, &d.Kind, &d.Status, &d.Payload, &d.CreatedAt)
		return d, err
	})
}

func (t *tx) DeleteDerivedRequests(ctx context.Context, connectStaffID uuid.UUID) error {
	sql, args, err := scoped.Delete(ctx, "connect_requests").Where("connect_staff_id = ?", connectStaffID).Build()
	if _, err := t.exec(ctx, sql, args, err); err != nil {
		return fmt.Errorf("delete derived requests: %w", err)
	}
	return nil
}
