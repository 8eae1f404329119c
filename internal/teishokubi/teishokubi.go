// Package teishokubi derives conflict dates: the day a fixed-term
// dispatch of one staff member to one client organisation must end.
package teishokubi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
	"golang.org/x/sync/errgroup"
)

// Tx is the slice of a store transaction the calculator needs.
type Tx interface {
	AssignmentLines(ctx context.Context, f store.LineFilter) ([]store.AssignmentLine, error)
	UpsertTeishokubi(ctx context.Context, t *models.Teishokubi) error
	DeleteTeishokubi(ctx context.Context, key models.TeishokubiKey) error
	DeleteAllTeishokubi(ctx context.Context) (int, error)
}

// ConflictDate is the day before the third anniversary of start. A start
// on the first of a month lands on the last day of the previous month;
// a start on Feb 29 lands on Feb 28.
func ConflictDate(start time.Time) time.Time {
	y, m, d := start.Date()
	return time.Date(y+3, m, d-1, 0, 0, 0, 0, time.UTC)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// KeyOf returns the dispatch line an assignment contributes to. Lines that
// are not a fixed-term dispatch to a named haken unit contribute nothing.
func KeyOf(l store.AssignmentLine) (models.TeishokubiKey, bool) {
	if l.EmploymentTypeCode != models.EmploymentTypeFixedTermDispatch ||
		l.ClientTypeCode != models.ContractTypeDispatch ||
		l.OrganizationName == nil || l.StaffEmail == "" {
		return models.TeishokubiKey{}, false
	}
	return models.TeishokubiKey{
		StaffEmail:            store.FoldEmail(l.StaffEmail),
		ClientCorporateNumber: l.ClientCorporateNumber,
		OrganizationName:      *l.OrganizationName,
	}, true
}

// Derive computes every row implied by lines, keyed by dispatch line.
func Derive(lines []store.AssignmentLine) map[models.TeishokubiKey]models.Teishokubi {
	out := map[models.TeishokubiKey]models.Teishokubi{}
	for _, l := range lines {
		key, ok := KeyOf(l)
		if !ok {
			continue
		}
		start := civil(l.StaffStartDate)
		if cur, ok := out[key]; ok && !start.Before(cur.DispatchStartDate) {
			continue
		}
		out[key] = models.Teishokubi{
			TeishokubiKey:     key,
			DispatchStartDate: start,
			ConflictDate:      ConflictDate(start),
		}
	}
	return out
}

// KeysFor returns the dispatch line of one assignment, if any. Callers
// collect it before deleting the assignment.
func KeysFor(ctx context.Context, tx Tx, assignmentID uuid.UUID) ([]models.TeishokubiKey, error) {
	lines, err := tx.AssignmentLines(ctx, store.LineFilter{AssignmentID: assignmentID})
	if err != nil {
		return nil, fmt.Errorf("load assignment line: %w", err)
	}
	var keys []models.TeishokubiKey
	for _, l := range lines {
		if k, ok := KeyOf(l); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Recompute brings the row of key in line with the current assignments.
// It returns nil when no assignment contributes and the row was removed.
func Recompute(ctx context.Context, tx Tx, key models.TeishokubiKey) (*models.Teishokubi, error) {
	key.StaffEmail = store.FoldEmail(key.StaffEmail)
	lines, err := tx.AssignmentLines(ctx, store.LineFilter{
		StaffEmail:            key.StaffEmail,
		ClientCorporateNumber: key.ClientCorporateNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("load assignment lines: %w", err)
	}

	row, ok := Derive(lines)[key]
	if !ok {
		if err := tx.DeleteTeishokubi(ctx, key); err != nil {
			return nil, fmt.Errorf("delete teishokubi: %w", err)
		}
		return nil, nil
	}
	row.UpdatedAt = time.Now()
	if err := tx.UpsertTeishokubi(ctx, &row); err != nil {
		return nil, fmt.Errorf("upsert teishokubi: %w", err)
	}
	return &row, nil
}

// RecomputeAll recomputes each distinct key once.
func RecomputeAll(ctx context.Context, tx Tx, keys []models.TeishokubiKey) error {
	seen := map[models.TeishokubiKey]bool{}
	for _, k := range keys {
		k.StaffEmail = store.FoldEmail(k.StaffEmail)
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, err := Recompute(ctx, tx, k); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild replaces every row of the tenant with a from-scratch derivation.
func Rebuild(ctx context.Context, tx Tx) (int, error) {
	if _, err := tx.DeleteAllTeishokubi(ctx); err != nil {
		return 0, fmt.Errorf("clear teishokubi: %w", err)
	}
	lines, err := tx.AssignmentLines(ctx, store.LineFilter{})
	if err != nil {
		return 0, fmt.Errorf("load assignment lines: %w", err)
	}
	rows := Derive(lines)
	keys := make([]models.TeishokubiKey, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })

	now := time.Now()
	for _, k := range keys {
		row := rows[k]
		row.UpdatedAt = now
		if err := tx.UpsertTeishokubi(ctx, &row); err != nil {
			return 0, fmt.Errorf("upsert teishokubi: %w", err)
		}
	}
	return len(rows), nil
}

func lessKey(a, b models.TeishokubiKey) bool {
	if a.StaffEmail != b.StaffEmail {
		return a.StaffEmail < b.StaffEmail
	}
	if a.ClientCorporateNumber != b.ClientCorporateNumber {
		return a.ClientCorporateNumber < b.ClientCorporateNumber
	}
	return a.OrganizationName < b.OrganizationName
}

// Service runs rebuilds and listings in transactions of their own.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// RebuildTenant rebuilds the tenant carried by ctx.
func (s *Service) RebuildTenant(ctx context.Context) (int, error) {
	var n int
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = Rebuild(ctx, tx)
		return err
	})
	return n, err
}

// RebuildAll rebuilds every tenant, at most workers at a time.
func (s *Service) RebuildAll(ctx context.Context, workers int) (map[uuid.UUID]int, error) {
	tenants, err := s.store.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	if workers < 1 {
		workers = 1
	}

	counts := make([]int, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range tenants {
		i := i
		t := tenants[i]
		g.Go(func() error {
			n, err := s.RebuildTenant(tenant.WithTenant(gctx, &t))
			if err != nil {
				return fmt.Errorf("rebuild tenant %s: %w", t.Slug, err)
			}
			counts[i] = n
			slog.Info("teishokubi rebuilt", "tenant", t.Slug, "rows", n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]int, len(tenants))
	for i, t := range tenants {
		out[t.ID] = counts[i]
	}
	return out, nil
}

// List returns rows ordered by conflict date.
func (s *Service) List(ctx context.Context, f store.TeishokubiFilter) ([]models.Teishokubi, error) {
	var out []models.Teishokubi
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListTeishokubi(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list teishokubi: %w", err)
	}
	return out, nil
}
