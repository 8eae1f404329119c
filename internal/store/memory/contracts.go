package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

func cloneCore(c models.ContractCore) models.ContractCore {
	c.PatternID = ptrCopy(c.PatternID)
	c.Number = ptrCopy(c.Number)
	c.EndDate = ptrCopy(c.EndDate)
	c.Amount = ptrCopy(c.Amount)
	c.ApprovedAt, c.ApprovedBy = ptrCopy(c.ApprovedAt), ptrCopy(c.ApprovedBy)
	c.IssuedAt, c.IssuedBy = ptrCopy(c.IssuedAt), ptrCopy(c.IssuedBy)
	c.ConfirmedAt, c.ConfirmedBy = ptrCopy(c.ConfirmedAt), ptrCopy(c.ConfirmedBy)
	return c
}

func cloneClientContract(c models.ClientContract) models.ClientContract {
	c.ContractCore = cloneCore(c.ContractCore)
	c.BillPayment = ptrCopy(c.BillPayment)
	if c.Haken = ptrCopy(c.Haken); c.Haken != nil {
		c.Haken.PeriodExemptDetail = ptrCopy(c.Haken.PeriodExemptDetail)
	}
	return c
}

func cloneStaffContract(c models.StaffContract) models.StaffContract {
	c.ContractCore = cloneCore(c.ContractCore)
	return c
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (t *tx) numberTaken(tid, self uuid.UUID, number *string) bool {
	if number == nil {
		return false
	}
	for _, c := range t.d.clientContracts {
		if c.TenantID == tid && c.ID != self && c.Number != nil && *c.Number == *number {
			return true
		}
	}
	for _, c := range t.d.staffContracts {
		if c.TenantID == tid && c.ID != self && c.Number != nil && *c.Number == *number {
			return true
		}
	}
	return false
}

func (t *tx) ClientContract(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.ClientContract, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := t.d.clientContracts[id]
	if !ok || c.TenantID != tid {
		return nil, fmt.Errorf("client contract %s: %w", id, store.ErrNotFound)
	}
	c = cloneClientContract(c)
	return &c, nil
}

func (t *tx) ListClientContracts(ctx context.Context, f store.ContractFilter) ([]models.ClientContract, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, c := range t.d.clientContracts {
		if c.TenantID != tid {
			continue
		}
		if f.CounterpartyID != uuid.Nil && c.ClientID != f.CounterpartyID {
			continue
		}
		if f.Status != 0 && c.Status != f.Status {
			continue
		}
		if f.TypeCode != "" && c.ContractTypeCode != f.TypeCode {
			continue
		}
		if f.Query != "" && !contains(c.Name, f.Query) && !contains(c.NumberOrEmpty(), f.Query) &&
			!contains(t.d.clients[c.ClientID].Name, f.Query) {
			continue
		}
		ids = append(ids, id)
	}
	t.newestFirst(ids)
	out := make([]models.ClientContract, 0, len(ids))
	for _, id := range clipLimit(ids, f.Limit) {
		out = append(out, cloneClientContract(t.d.clientContracts[id]))
	}
	return out, nil
}

func (t *tx) InsertClientContract(ctx context.Context, c *models.ClientContract) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, ok := t.d.clientContracts[c.ID]; ok {
		return fmt.Errorf("client contract %s: %w", c.ID, store.ErrConflict)
	}
	if t.numberTaken(tid, c.ID, c.Number) {
		return fmt.Errorf("contract number %s: %w", *c.Number, store.ErrConflict)
	}
	now := time.Now()
	c.TenantID = tid
	c.Version = 1
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Haken != nil {
		c.Haken.ClientContractID = c.ID
	}
	t.d.clientContracts[c.ID] = cloneClientContract(*c)
	t.d.touch(c.ID)
	return nil
}

func (t *tx) UpdateClientContract(ctx context.Context, c *models.ClientContract) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	old, ok := t.d.clientContracts[c.ID]
	if !ok || old.TenantID != tid {
		return fmt.Errorf("client contract %s: %w", c.ID, store.ErrNotFound)
	}
	if old.Version != c.Version {
		return fmt.Errorf("client contract %s version %d: %w", c.ID, c.Version, store.ErrConflict)
	}
	if t.numberTaken(tid, c.ID, c.Number) {
		return fmt.Errorf("contract number %s: %w", *c.Number, store.ErrConflict)
	}
	c.TenantID = tid
	c.CreatedAt = old.CreatedAt
	c.Version++
	c.UpdatedAt = time.Now()
	if c.Haken != nil {
		c.Haken.ClientContractID = c.ID
	}
	t.d.clientContracts[c.ID] = cloneClientContract(*c)
	return nil
}

func (t *tx) DeleteClientContract(ctx context.Context, id uuid.UUID) error {
	if _, err := t.ClientContract(ctx, id, true); err != nil {
		return err
	}
	delete(t.d.clientContracts, id)
	return nil
}

func (t *tx) StaffContract(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.StaffContract, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := t.d.staffContracts[id]
	if !ok || c.TenantID != tid {
		return nil, fmt.Errorf("staff contract %s: %w", id, store.ErrNotFound)
	}
	c = cloneStaffContract(c)
	return &c, nil
}

func (t *tx) ListStaffContracts(ctx context.Context, f store.ContractFilter) ([]models.StaffContract, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, c := range t.d.staffContracts {
		if c.TenantID != tid {
			continue
		}
		if f.CounterpartyID != uuid.Nil && c.StaffID != f.CounterpartyID {
			continue
		}
		if f.Status != 0 && c.Status != f.Status {
			continue
		}
		if f.TypeCode != "" && c.ContractTypeCode != f.TypeCode {
			continue
		}
		if f.Query != "" && !contains(c.Name, f.Query) && !contains(c.NumberOrEmpty(), f.Query) &&
			!contains(t.d.staff[c.StaffID].Name, f.Query) {
			continue
		}
		ids = append(ids, id)
	}
	t.newestFirst(ids)
	out := make([]models.StaffContract, 0, len(ids))
	for _, id := range clipLimit(ids, f.Limit) {
		out = append(out, cloneStaffContract(t.d.staffContracts[id]))
	}
	return out, nil
}

func (t *tx) InsertStaffContract(ctx context.Context, c *models.StaffContract) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if _, ok := t.d.staffContracts[c.ID]; ok {
		return fmt.Errorf("staff contract %s: %w", c.ID, store.ErrConflict)
	}
	if t.numberTaken(tid, c.ID, c.Number) {
		return fmt.Errorf("contract number %s: %w", *c.Number, store.ErrConflict)
	}
	now := time.Now()
	c.TenantID = tid
	c.Version = 1
	c.CreatedAt, c.UpdatedAt = now, now
	t.d.staffContracts[c.ID] = cloneStaffContract(*c)
	t.d.touch(c.ID)
	return nil
}

func (t *tx) UpdateStaffContract(ctx context.Context, c *models.StaffContract) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	old, ok := t.d.staffContracts[c.ID]
	if !ok || old.TenantID != tid {
		return fmt.Errorf("staff contract %s: %w", c.ID, store.ErrNotFound)
	}
	if old.Version != c.Version {
		return fmt.Errorf("staff contract %s version %d: %w", c.ID, c.Version, store.ErrConflict)
	}
	if t.numberTaken(tid, c.ID, c.Number) {
		return fmt.Errorf("contract number %s: %w", *c.Number, store.ErrConflict)
	}
	c.TenantID = tid
	c.CreatedAt = old.CreatedAt
	c.Version++
	c.UpdatedAt = time.Now()
	t.d.staffContracts[c.ID] = cloneStaffContract(*c)
	return nil
}

func (t *tx) DeleteStaffContract(ctx context.Context, id uuid.UUID) error {
	if _, err := t.StaffContract(ctx, id, true); err != nil {
		return err
	}
	delete(t.d.staffContracts, id)
	return nil
}
