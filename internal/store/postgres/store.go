// Package postgres implements store.Store on pgx. Tenant-owned rows are
// only reached through the scoped builder.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/scoped"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

const (
	codeUniqueViolation   = "23505"
	codeLockNotAvailable  = "55P03"
	codeQueryCanceled     = "57014"
	defaultSequenceLockMS = 3000
)

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// New returns a store on pool. lockTimeout bounds the wait for a contract
// number sequence row.
func New(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if tenant.IDFromContext(ctx) == uuid.Nil {
		return scoped.ErrNoTenant
	}
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(ctx, &tx{tx: pgtx, lockTimeout: s.lockTimeout}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, name, slug) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Slug,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", mapErr(err))
	}
	return nil
}

func (s *Store) Tenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, slug, created_at, updated_at FROM tenants WHERE id = $1", id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *Store) TenantByCorporateNumber(ctx context.Context, cn string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT t.id, t.name, t.slug, t.created_at, t.updated_at
		 FROM tenants t JOIN companies c ON c.tenant_id = t.id
		 WHERE c.corporate_number = $1
		 ORDER BY t.created_at LIMIT 1`, cn,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tenant.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by corporate number: %w", err)
	}
	return &t, nil
}

func (s *Store) Tenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, name, slug, created_at, updated_at FROM tenants ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type tx struct {
	tx          pgx.Tx
	lockTimeout time.Duration
}

// mapErr translates driver errors into the store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrConflict)
		case codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("%s: %w", pgErr.Message, store.ErrLocked)
		}
	}
	return err
}

func (t *tx) exec(ctx context.Context, sql string, args []any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *tx) queryRow(ctx context.Context, b *scoped.Builder) (pgx.Row, error) {
	sql, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return t.tx.QueryRow(ctx, sql, args...), nil
}

func (t *tx) query(ctx context.Context, b *scoped.Builder) (pgx.Rows, error) {
	sql, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	return rows, nil
}

// collect scans every row with scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}

// mustAffect turns a zero-row write into ErrNotFound.
func mustAffect(n int64, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
