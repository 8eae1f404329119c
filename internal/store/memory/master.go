package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

func ptrCopy[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSatellites(s models.StaffSatellites) models.StaffSatellites {
	return models.StaffSatellites{
		Profile:       ptrCopy(s.Profile),
		Mynumber:      ptrCopy(s.Mynumber),
		Bank:          ptrCopy(s.Bank),
		International: ptrCopy(s.International),
		Disability:    ptrCopy(s.Disability),
	}
}

func clonePattern(p models.ContractPattern) models.ContractPattern {
	p.Terms = slices.Clone(p.Terms)
	return p
}

func (t *tx) Company(ctx context.Context) (*models.Company, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := t.d.companies[tid]
	if !ok {
		return nil, fmt.Errorf("company: %w", store.ErrNotFound)
	}
	return &c, nil
}

func (t *tx) SaveCompany(ctx context.Context, c *models.Company) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.TenantID = tid
	t.d.companies[tid] = *c
	return nil
}

func (t *tx) Client(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := t.d.clients[id]
	if !ok || c.TenantID != tid {
		return nil, fmt.Errorf("client %s: %w", id, store.ErrNotFound)
	}
	return &c, nil
}

func (t *tx) SaveClient(ctx context.Context, c *models.Client) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	} else if old, ok := t.d.clients[c.ID]; ok && old.TenantID != tid {
		return fmt.Errorf("client %s: %w", c.ID, store.ErrNotFound)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.TenantID = tid
	t.d.clients[c.ID] = *c
	t.d.touch(c.ID)
	return nil
}

func (t *tx) Organization(ctx context.Context, id uuid.UUID) (*models.ClientOrganization, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	o, ok := t.d.orgs[id]
	if !ok || o.TenantID != tid {
		return nil, fmt.Errorf("organization %s: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (t *tx) SaveOrganization(ctx context.Context, o *models.ClientOrganization) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	} else if old, ok := t.d.orgs[o.ID]; ok && old.TenantID != tid {
		return fmt.Errorf("organization %s: %w", o.ID, store.ErrNotFound)
	}
	o.TenantID = tid
	t.d.orgs[o.ID] = *o
	return nil
}

func (t *tx) ClientUser(ctx context.Context, id uuid.UUID) (*models.ClientUser, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := t.d.clientUsers[id]
	if !ok || u.TenantID != tid {
		return nil, fmt.Errorf("client user %s: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (t *tx) SaveClientUser(ctx context.Context, u *models.ClientUser) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	} else if old, ok := t.d.clientUsers[u.ID]; ok && old.TenantID != tid {
		return fmt.Errorf("client user %s: %w", u.ID, store.ErrNotFound)
	}
	u.TenantID = tid
	t.d.clientUsers[u.ID] = *u
	return nil
}

func (t *tx) CompanyUser(ctx context.Context, id uuid.UUID) (*models.CompanyUser, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := t.d.companyUsers[id]
	if !ok || u.TenantID != tid {
		return nil, fmt.Errorf("company user %s: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (t *tx) SaveCompanyUser(ctx context.Context, u *models.CompanyUser) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	} else if old, ok := t.d.companyUsers[u.ID]; ok && old.TenantID != tid {
		return fmt.Errorf("company user %s: %w", u.ID, store.ErrNotFound)
	}
	u.TenantID = tid
	t.d.companyUsers[u.ID] = *u
	return nil
}

func (t *tx) Staff(ctx context.Context, id uuid.UUID) (*models.Staff, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := t.d.staff[id]
	if !ok || s.TenantID != tid {
		return nil, fmt.Errorf("staff %s: %w", id, store.ErrNotFound)
	}
	return &s, nil
}

func (t *tx) StaffByEmail(ctx context.Context, email string) (*models.Staff, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	key := store.FoldEmail(email)
	for _, s := range t.d.staff {
		if s.TenantID == tid && s.Email != "" && store.FoldEmail(s.Email) == key {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("staff %s: %w", email, store.ErrNotFound)
}

func (t *tx) SaveStaff(ctx context.Context, s *models.Staff) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	} else if old, ok := t.d.staff[s.ID]; ok && old.TenantID != tid {
		return fmt.Errorf("staff %s: %w", s.ID, store.ErrNotFound)
	}
	if s.Email != "" {
		key := store.FoldEmail(s.Email)
		for _, o := range t.d.staff {
			if o.TenantID == tid && o.ID != s.ID && o.Email != "" && store.FoldEmail(o.Email) == key {
				return fmt.Errorf("staff email %s: %w", s.Email, store.ErrConflict)
			}
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.TenantID = tid
	t.d.staff[s.ID] = *s
	t.d.touch(s.ID)
	return nil
}

func (t *tx) StaffSatellites(ctx context.Context, staffID uuid.UUID) (*models.StaffSatellites, error) {
	if _, err := t.Staff(ctx, staffID); err != nil {
		return nil, err
	}
	sat := cloneSatellites(t.d.satellites[staffID])
	return &sat, nil
}

func (t *tx) SaveStaffSatellites(ctx context.Context, staffID uuid.UUID, s *models.StaffSatellites) error {
	if _, err := t.Staff(ctx, staffID); err != nil {
		return err
	}
	t.d.satellites[staffID] = cloneSatellites(*s)
	return nil
}

func (t *tx) Pattern(ctx context.Context, id uuid.UUID) (*models.ContractPattern, error) {
	tid, err := tenantOf(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := t.d.patterns[id]
	if !ok || p.TenantID != tid {
		return nil, fmt.Errorf("pattern %s: %w", id, store.ErrNotFound)
	}
	p = clonePattern(p)
	slices.SortStableFunc(p.Terms, func(a, b models.ContractTerm) int {
		if a.Position != b.Position {
			return int(a.Position) - int(b.Position)
		}
		return a.DisplayOrder - b.DisplayOrder
	})
	return &p, nil
}

func (t *tx) SavePattern(ctx context.Context, p *models.ContractPattern) error {
	tid, err := tenantOf(ctx)
	if err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	} else if old, ok := t.d.patterns[p.ID]; ok && old.TenantID != tid {
		return fmt.Errorf("pattern %s: %w", p.ID, store.ErrNotFound)
	}
	for _, o := range t.d.patterns {
		if o.TenantID == tid && o.ID != p.ID && o.Domain == p.Domain &&
			o.ContractTypeCode == p.ContractTypeCode && o.Name == p.Name {
			return fmt.Errorf("pattern %q: %w", p.Name, store.ErrConflict)
		}
	}
	p.TenantID = tid
	for i := range p.Terms {
		if p.Terms[i].ID == uuid.Nil {
			p.Terms[i].ID = uuid.New()
		}
		p.Terms[i].PatternID = p.ID
	}
	t.d.patterns[p.ID] = clonePattern(*p)
	return nil
}
