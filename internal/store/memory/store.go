// Package memory is an in-process implementation of store.Store. It backs
// the service tests and local runs without PostgreSQL. Transactions are
// serialised by one mutex and rolled back from a snapshot.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/scoped"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type seqKey struct {
	tenant uuid.UUID
	letter string
	year   int
}

type teiKey struct {
	tenant uuid.UUID
	key    models.TeishokubiKey
}

type data struct {
	tenants         map[uuid.UUID]models.Tenant
	companies       map[uuid.UUID]models.Company // by tenant
	clients         map[uuid.UUID]models.Client
	orgs            map[uuid.UUID]models.ClientOrganization
	clientUsers     map[uuid.UUID]models.ClientUser
	companyUsers    map[uuid.UUID]models.CompanyUser
	staff           map[uuid.UUID]models.Staff
	satellites      map[uuid.UUID]models.StaffSatellites // by staff
	patterns        map[uuid.UUID]models.ContractPattern
	clientContracts map[uuid.UUID]models.ClientContract
	staffContracts  map[uuid.UUID]models.StaffContract
	assignments     map[uuid.UUID]models.Assignment
	prints          map[uuid.UUID]models.Print
	teishokubi      map[teiKey]models.Teishokubi
	audit           []models.AuditEvent
	sequences       map[seqKey]int
	agreements      map[uuid.UUID]models.StaffAgreement
	acceptances     map[uuid.UUID]models.AgreementAcceptance
	connStaff       map[uuid.UUID]models.ConnectStaff
	connClient      map[uuid.UUID]models.ConnectClient
	requests        map[uuid.UUID]models.DerivedRequest
	// order records insertion order for stable newest-first listings.
	order   map[uuid.UUID]int64
	counter int64
}

func newData() *data {
	return &data{
		tenants:         map[uuid.UUID]models.Tenant{},
		companies:       map[uuid.UUID]models.Company{},
		clients:         map[uuid.UUID]models.Client{},
		orgs:            map[uuid.UUID]models.ClientOrganization{},
		clientUsers:     map[uuid.UUID]models.ClientUser{},
		companyUsers:    map[uuid.UUID]models.CompanyUser{},
		staff:           map[uuid.UUID]models.Staff{},
		satellites:      map[uuid.UUID]models.StaffSatellites{},
		patterns:        map[uuid.UUID]models.ContractPattern{},
		clientContracts: map[uuid.UUID]models.ClientContract{},
		staffContracts:  map[uuid.UUID]models.StaffContract{},
		assignments:     map[uuid.UUID]models.Assignment{},
		prints:          map[uuid.UUID]models.Print{},
		teishokubi:      map[teiKey]models.Teishokubi{},
		sequences:       map[seqKey]int{},
		agreements:      map[uuid.UUID]models.StaffAgreement{},
		acceptances:     map[uuid.UUID]models.AgreementAcceptance{},
		connStaff:       map[uuid.UUID]models.ConnectStaff{},
		connClient:      map[uuid.UUID]models.ConnectClient{},
		requests:        map[uuid.UUID]models.DerivedRequest{},
		order:           map[uuid.UUID]int64{},
	}
}

// snapshot copies every table. Stored values never share mutable memory
// with callers, so copying the maps is enough.
func (d *data) snapshot() *data {
	return &data{
		tenants:         maps.Clone(d.tenants),
		companies:       maps.Clone(d.companies),
		clients:         maps.Clone(d.clients),
		orgs:            maps.Clone(d.orgs),
		clientUsers:     maps.Clone(d.clientUsers),
		companyUsers:    maps.Clone(d.companyUsers),
		staff:           maps.Clone(d.staff),
		satellites:      maps.Clone(d.satellites),
		patterns:        maps.Clone(d.patterns),
		clientContracts: maps.Clone(d.clientContracts),
		staffContracts:  maps.Clone(d.staffContracts),
		assignments:     maps.Clone(d.assignments),
		prints:          maps.Clone(d.prints),
		teishokubi:      maps.Clone(d.teishokubi),
		audit:           append([]models.AuditEvent(nil), d.audit...),
		sequences:       maps.Clone(d.sequences),
		agreements:      maps.Clone(d.agreements),
		acceptances:     maps.Clone(d.acceptances),
		connStaff:       maps.Clone(d.connStaff),
		connClient:      maps.Clone(d.connClient),
		requests:        maps.Clone(d.requests),
		order:           maps.Clone(d.order),
		counter:         d.counter,
	}
}

func (d *data) touch(id uuid.UUID) {
	if _, ok := d.order[id]; ok {
		return
	}
	d.counter++
	d.order[id] = d.counter
}

type Store struct {
	mu     sync.Mutex
	d      *data
	locked map[seqKey]bool
}

func New() *Store {
	return &Store{d: newData(), locked: map[seqKey]bool{}}
}

var _ store.Store = (*Store)(nil)

// InTx holds the store lock for the whole of fn. Directory methods take the
// same lock and must not be called from inside fn.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if tenant.IDFromContext(ctx) == uuid.Nil {
		return scoped.ErrNoTenant
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.d.snapshot()
	if err := fn(ctx, &tx{d: s.d, locked: s.locked}); err != nil {
		s.d = snap
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

// LockSequence makes allocations for (tenant, letter, year) fail as if the
// sequence row were held by another transaction.
func (s *Store) LockSequence(tenantID uuid.UUID, letter string, year int, locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[seqKey{tenantID, letter, year}] = locked
}

// SetSequence sets the last value handed out for (tenant, letter, year).
func (s *Store) SetSequence(tenantID uuid.UUID, letter string, year, last int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.sequences[seqKey{tenantID, letter, year}] = last
}

// AuditCount returns the number of audit events recorded across tenants.
func (s *Store) AuditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.d.audit)
}

func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for _, o := range s.d.tenants {
		if o.Slug == t.Slug && o.ID != t.ID {
			return fmt.Errorf("create tenant %q: %w", t.Slug, store.ErrConflict)
		}
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.d.tenants[t.ID] = *t
	s.d.touch(t.ID)
	return nil
}

func (s *Store) Tenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.d.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return &t, nil
}

func (s *Store) TenantByCorporateNumber(ctx context.Context, cn string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tid, c := range s.d.companies {
		if c.CorporateNumber == cn {
			if t, ok := s.d.tenants[tid]; ok {
				return &t, nil
			}
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (s *Store) Tenants(ctx context.Context) ([]models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tenant, 0, len(s.d.tenants))
	for _, t := range s.d.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return s.d.order[out[i].ID] < s.d.order[out[j].ID] })
	return out, nil
}

type tx struct {
	d      *data
	locked map[seqKey]bool
}

func tenantOf(ctx context.Context) (uuid.UUID, error) {
	id := tenant.IDFromContext(ctx)
	if id == uuid.Nil {
		return uuid.Nil, scoped.ErrNoTenant
	}
	return id, nil
}

// newestFirst sorts ids by reverse insertion order.
func (t *tx) newestFirst(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return t.d.order[ids[i]] > t.d.order[ids[j]] })
}

func clipLimit[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
