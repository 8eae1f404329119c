package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

func (t *tx) Assignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := t.d.assignments[id]
	if !ok || a.TenantID != tid {
		return nil, fmt.Errorf("assignment %s: %w", id, store.ErrNotFound)
	}
	a.CreatedBy = ptrCopy(a.CreatedBy)
	return &a, nil
}

func (t *tx) InsertAssignment(ctx context.Context, a *models.Assignment) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	for _, o := range t.d.assignments {
		if o.ClientContractID == a.ClientContractID && o.StaffContractID == a.StaffContractID {
			return fmt.Errorf("assignment pair: %w", store.ErrConflict)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.TenantID = tid
	v := *a
	v.CreatedBy = ptrCopy(a.CreatedBy)
	t.d.assignments[a.ID] = v
	t.d.touch(a.ID)
	return nil
}

func (t *tx) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	if _, err := t.Assignment(ctx, id); err != nil {
		return err
	}
	delete(t.d.assignments, id)
	return nil
}

func (t *tx) assignmentsWhere(ctx context.Context, keep func(models.Assignment) bool) ([]models.Assignment, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, a := range t.d.assignments {
		if a.TenantID == tid && keep(a) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return t.d.order[ids[i]] < t.d.order[ids[j]] })
	out := make([]models.Assignment, 0, len(ids))
	for _, id := range ids {
		a := t.d.assignments[id]
		a.CreatedBy = ptrCopy(a.CreatedBy)
		out = append(out, a)
	}
	return out, nil
}

func (t *tx) AssignmentsByClient(ctx context.Context, clientContractID uuid.UUID) ([]models.Assignment, error) {
	return t.assignmentsWhere(ctx, func(a models.Assignment) bool { return a.ClientContractID == clientContractID })
}

func (t *tx) AssignmentsByStaff(ctx context.Context, staffContractID uuid.UUID) ([]models.Assignment, error) {
	return t.assignmentsWhere(ctx, func(a models.Assignment) bool { return a.StaffContractID == staffContractID })
}

func (t *tx) AssignmentLines(ctx context.Context, f store.LineFilter) ([]store.AssignmentLine, error) {
	as, err := t.assignmentsWhere(ctx, func(models.Assignment) bool { return true })
	if err != nil {
		return nil, err
	}
	var out []store.AssignmentLine
	for _, a := range as {
		if f.AssignmentID != uuid.Nil && a.ID != f.AssignmentID {
			continue
		}
		sc, ok := t.d.staffContracts[a.StaffContractID]
		if !ok {
			continue
		}
		cc, ok := t.d.clientContracts[a.ClientContractID]
		if !ok {
			continue
		}
		st, ok := t.d.staff[sc.StaffID]
		if !ok {
			continue
		}
		if f.StaffEmail != "" && store.FoldEmail(st.Email) != store.FoldEmail(f.StaffEmail) {
			continue
		}
		if f.ClientCorporateNumber != "" && cc.CorporateNumber != f.ClientCorporateNumber {
			continue
		}
		line := store.AssignmentLine{
			AssignmentID:          a.ID,
			StaffEmail:            st.Email,
			EmploymentTypeCode:    sc.EmploymentTypeCode,
			StaffStartDate:        sc.StartDate,
			ClientTypeCode:        cc.ContractTypeCode,
			ClientCorporateNumber: cc.CorporateNumber,
		}
		if cc.Haken != nil && cc.Haken.HakenUnitID != nil {
			if org, ok := t.d.orgs[*cc.Haken.HakenUnitID]; ok {
				name := org.Name
				line.OrganizationName = &name
			}
		}
		out = append(out, line)
	}
	return out, nil
}

func (t *tx) InsertPrint(ctx context.Context, p *models.Print) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if _, ok := t.d.prints[p.ID]; ok && p.ID != uuid.Nil {
		return fmt.Errorf("print %s: %w", p.ID, store.ErrConflict)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.TenantID = tid
	v := *p
	v.PrintedBy = ptrCopy(p.PrintedBy)
	t.d.prints[p.ID] = v
	t.d.touch(p.ID)
	return nil
}

func (t *tx) Prints(ctx context.Context, side models.Side, contractID uuid.UUID) ([]models.Print, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for id, p := range t.d.prints {
		if p.TenantID == tid && p.Side == side && p.ContractID == contractID {
			ids = append(ids, id)
		}
	}
	t.newestFirst(ids)
	out := make([]models.Print, 0, len(ids))
	for _, id := range ids {
		p := t.d.prints[id]
		p.PrintedBy = ptrCopy(p.PrintedBy)
		out = append(out, p)
	}
	return out, nil
}

func (t *tx) Print(ctx context.Context, id uuid.UUID) (*models.Print, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := t.d.prints[id]
	if !ok || p.TenantID != tid {
		return nil, fmt.Errorf("print %s: %w", id, store.ErrNotFound)
	}
	p.PrintedBy = ptrCopy(p.PrintedBy)
	return &p, nil
}

func (t *tx) DeletePrints(ctx context.Context, side models.Side, contractID uuid.UUID) ([]models.Print, error) {
	ps, err := t.Prints(ctx, side, contractID)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		delete(t.d.prints, p.ID)
	}
	return ps, nil
}

func (t *tx) Teishokubi(ctx context.Context, key models.TeishokubiKey) (*models.Teishokubi, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	key.StaffEmail = store.FoldEmail(key.StaffEmail)
	row, ok := t.d.teishokubi[teiKey{tid, key}]
	if !ok {
		return nil, fmt.Errorf("teishokubi: %w", store.ErrNotFound)
	}
	return &row, nil
}

func (t *tx) UpsertTeishokubi(ctx context.Context, row *models.Teishokubi) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	row.StaffEmail = store.FoldEmail(row.StaffEmail)
	k := teiKey{tid, row.TeishokubiKey}
	if old, ok := t.d.teishokubi[k]; ok {
		row.ID = old.ID
	} else if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.TenantID = tid
	row.UpdatedAt = time.Now()
	t.d.teishokubi[k] = *row
	t.d.touch(row.ID)
	return nil
}

func (t *tx) DeleteTeishokubi(ctx context.Context, key models.TeishokubiKey) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	key.StaffEmail = store.FoldEmail(key.StaffEmail)
	delete(t.d.teishokubi, teiKey{tid, key})
	return nil
}

func (t *tx) ListTeishokubi(ctx context.Context, f store.TeishokubiFilter) ([]models.Teishokubi, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Teishokubi
	for k, row := range t.d.teishokubi {
		if k.tenant != tid {
			continue
		}
		if f.StaffEmail != "" && row.StaffEmail != store.FoldEmail(f.StaffEmail) {
			continue
		}
		if f.Query != "" && !contains(row.StaffEmail, f.Query) && !contains(row.OrganizationName, f.Query) &&
			!contains(row.ClientCorporateNumber, f.Query) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConflictDate.Equal(out[j].ConflictDate) {
			return out[i].ConflictDate.Before(out[j].ConflictDate)
		}
		return t.d.order[out[i].ID] < t.d.order[out[j].ID]
	})
	return clipLimit(out, f.Limit), nil
}

func (t *tx) DeleteAllTeishokubi(ctx context.Context) (int, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for k := range t.d.teishokubi {
		if k.tenant == tid {
			delete(t.d.teishokubi, k)
			n++
		}
	}
	return n, nil
}
