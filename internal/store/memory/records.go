package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

func (t *tx) InsertAudit(ctx context.Context, e *models.AuditEvent) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.TenantID = tid
	v := *e
	v.ActorID, v.Version = ptrCopy(e.ActorID), ptrCopy(e.Version)
	t.d.audit = append(t.d.audit, v)
	return nil
}

func (t *tx) AuditEvents(ctx context.Context, q store.AuditQuery) ([]models.AuditEvent, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	var out []models.AuditEvent
	skipped := 0
	for i := len(t.d.audit) - 1; i >= 0 && len(out) < q.Limit; i-- {
		e := t.d.audit[i]
		if e.TenantID != tid {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.ModelName != "" && e.ModelName != q.ModelName {
			continue
		}
		if q.ObjectID != "" && e.ObjectID != q.ObjectID {
			continue
		}
		if q.Repr != "" && !strings.Contains(e.ObjectRepr, q.Repr) {
			continue
		}
		if q.StartDate != nil && e.CreatedAt.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && e.CreatedAt.After(*q.EndDate) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		e.ActorID, e.Version = ptrCopy(e.ActorID), ptrCopy(e.Version)
		out = append(out, e)
	}
	return out, nil
}

func (t *tx) NextSequence(ctx context.Context, letter string, year int) (int, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return 0, err
	}
	k := seqKey{tid, letter, year}
	if t.locked[k] {
		return 0, fmt.Errorf("sequence %s%d: %w", letter, year, store.ErrLocked)
	}
	t.d.sequences[k]++
	return t.d.sequences[k], nil
}

func (t *tx) Sequences(ctx context.Context) ([]store.Sequence, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var out []store.Sequence
	for k, v := range t.d.sequences {
		if k.tenant == tid {
			out = append(out, store.Sequence{Letter: k.letter, Year: k.year, Last: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Letter < out[j].Letter
	})
	return out, nil
}

func (t *tx) Agreement(ctx context.Context, id uuid.UUID) (*models.StaffAgreement, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := t.d.agreements[id]
	if !ok || a.TenantID != tid {
		return nil, fmt.Errorf("agreement %s: %w", id, store.ErrNotFound)
	}
	return &a, nil
}

func (t *tx) Agreements(ctx context.Context, activeOnly bool) ([]models.StaffAgreement, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.StaffAgreement
	for _, a := range t.d.agreements {
		if a.TenantID == tid && (!activeOnly || a.IsActive) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return t.d.order[out[i].ID] < t.d.order[out[j].ID]
	})
	return out, nil
}

func (t *tx) SaveAgreement(ctx context.Context, a *models.StaffAgreement) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	} else if old, ok := t.d.agreements[a.ID]; ok && old.TenantID != tid {
		return fmt.Errorf("agreement %s: %w", a.ID, store.ErrNotFound)
	}
	a.TenantID = tid
	a.UpdatedAt = time.Now()
	t.d.agreements[a.ID] = *a
	t.d.touch(a.ID)
	return nil
}

func (t *tx) DeleteAgreement(ctx context.Context, id uuid.UUID) error {
	if _, err := t.Agreement(ctx, id); err != nil {
		return err
	}
	delete(t.d.agreements, id)
	return nil
}

func (t *tx) Acceptances(ctx context.Context, email string) ([]models.AgreementAcceptance, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	key := store.FoldEmail(email)
	var out []models.AgreementAcceptance
	for _, a := range t.d.acceptances {
		if a.TenantID == tid && a.Email == key {
			a.AgreedAt = ptrCopy(a.AgreedAt)
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.d.order[out[i].ID] < t.d.order[out[j].ID] })
	return out, nil
}

// SaveAcceptance upserts on (tenant, email, agreement).
func (t *tx) SaveAcceptance(ctx context.Context, a *models.AgreementAcceptance) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	a.Email = store.FoldEmail(a.Email)
	a.TenantID = tid
	for id, o := range t.d.acceptances {
		if o.TenantID == tid && o.Email == a.Email && o.AgreementID == a.AgreementID {
			a.ID = id
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	v := *a
	v.AgreedAt = ptrCopy(a.AgreedAt)
	t.d.acceptances[a.ID] = v
	t.d.touch(a.ID)
	return nil
}

func (t *tx) ClearAcceptances(ctx context.Context, agreementID uuid.UUID) (int, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for id, a := range t.d.acceptances {
		if a.TenantID == tid && a.AgreementID == agreementID && a.IsAgreed {
			a.IsAgreed = false
			t.d.acceptances[id] = a
			n++
		}
	}
	return n, nil
}

func (t *tx) deleteAcceptancesWhere(ctx context.Context, match func(models.AgreementAcceptance) bool) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	for id, a := range t.d.acceptances {
		if a.TenantID == tid && match(a) {
			delete(t.d.acceptances, id)
		}
	}
	return nil
}

func (t *tx) DeleteAcceptancesByAgreement(ctx context.Context, agreementID uuid.UUID) error {
	return t.deleteAcceptancesWhere(ctx, func(a models.AgreementAcceptance) bool { return a.AgreementID == agreementID })
}

func (t *tx) DeleteAcceptancesByEmail(ctx context.Context, email string) error {
	key := store.FoldEmail(email)
	return t.deleteAcceptancesWhere(ctx, func(a models.AgreementAcceptance) bool { return a.Email == key })
}

func (t *tx) ConnectStaff(ctx context.Context, id uuid.UUID) (*models.ConnectStaff, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := t.d.connStaff[id]
	if !ok || c.TenantID != tid {
		return nil, fmt.Errorf("connect staff %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (t *tx) ConnectStaffByEmail(ctx context.Context, email string) (*models.ConnectStaff, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	key := store.FoldEmail(email)
	for _, c := range t.d.connStaff {
		if c.TenantID == tid && c.Email == key {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("connect staff %s: %w", email, store.ErrNotFound)
}

func (t *tx) ListConnectStaff(ctx context.Context) ([]models.ConnectStaff, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, c := range t.d.connStaff {
		if c.TenantID == tid {
			ids = append(ids, id)
		}
	}
	t.newestFirst(ids)
	out := make([]models.ConnectStaff, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.d.connStaff[id])
	}
	return out, nil
}

func (t *tx) SaveConnectStaff(ctx context.Context, c *models.ConnectStaff) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	c.Email = store.FoldEmail(c.Email)
	for _, o := range t.d.connStaff {
		if o.TenantID == tid && o.Email == c.Email && o.ID != c.ID {
			return fmt.Errorf("connect staff %s: %w", c.Email, store.ErrConflict)
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.TenantID = tid
	t.d.connStaff[c.ID] = *c
	t.d.touch(c.ID)
	return nil
}

func (t *tx) DeleteConnectStaff(ctx context.Context, id uuid.UUID) error {
	if _, err := t.ConnectStaff(ctx, id); err != nil {
		return err
	}
	delete(t.d.connStaff, id)
	return nil
}

func (t *tx) ConnectClient(ctx context.Context, id uuid.UUID) (*models.ConnectClient, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := t.d.connClient[id]
	if !ok || c.TenantID != tid {
		return nil, fmt.Errorf("connect client %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (t *tx) ConnectClientByEmail(ctx context.Context, email string) (*models.ConnectClient, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	key := store.FoldEmail(email)
	for _, c := range t.d.connClient {
		if c.TenantID == tid && c.Email == key {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("connect client %s: %w", email, store.ErrNotFound)
}

func (t *tx) ListConnectClient(ctx context.Context) ([]models.ConnectClient, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, c := range t.d.connClient {
		if c.TenantID == tid {
			ids = append(ids, id)
		}
	}
	t.newestFirst(ids)
	out := make([]models.ConnectClient, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.d.connClient[id])
	}
	return out, nil
}

func (t *tx) SaveConnectClient(ctx context.Context, c *models.ConnectClient) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	c.Email = store.FoldEmail(c.Email)
	for _, o := range t.d.connClient {
		if o.TenantID == tid && o.Email == c.Email && o.ID != c.ID {
			return fmt.Errorf("connect client %s: %w", c.Email, store.ErrConflict)
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.TenantID = tid
	t.d.connClient[c.ID] = *c
	t.d.touch(c.ID)
	return nil
}

func (t *tx) DeleteConnectClient(ctx context.Context, id uuid.UUID) error {
	if _, err := t.ConnectClient(ctx, id); err != nil {
		return err
	}
	delete(t.d.connClient, id)
	return nil
}

func (t *tx) InsertDerivedRequest(ctx context.Context, r *models.DerivedRequest) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.TenantID = tid
	v := *r
	v.Payload = slices.Clone(r.Payload)
	t.d.requests[r.ID] = v
	t.d.touch(r.ID)
	return nil
}

func (t *tx) DerivedRequests(ctx context.Context, connectStaffID uuid.UUID) ([]models.DerivedRequest, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.DerivedRequest
	for _, r := range t.d.requests {
		if r.TenantID == tid && r.ConnectStaffID == connectStaffID {
			r.Payload = slices.Clone(r.Payload)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.d.order[out[i].ID] < t.d.order[out[j].ID] })
	return out, nil
}

func (t *tx) DeleteDerivedRequests(ctx context.Context, connectStaffID uuid.UUID) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	for id, r := range t.d.requests {
		if r.TenantID == tid && r.ConnectStaffID == connectStaffID {
			delete(t.d.requests, id)
		}
	}
	return nil
}
