// Package scoped builds tenant-filtered SQL. Every statement it emits
// carries the tenant predicate taken from the context; building without a
// tenant fails instead of producing an unscoped statement.
package scoped

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

var ErrNoTenant = errors.New("scoped: no tenant in context")

type kind int

const (
	kindSelect kind = iota
	kindUpdate
	kindDelete
)

type cond struct {
	expr string
	args []any
}

type Builder struct {
	kind      kind
	tenantID  uuid.UUID
	table     string
	cols      []string
	sets      []cond
	where     []cond
	orderBy   string
	limit     int
	offset    int
	forUpdate bool
	returning string
	qualifier string
}

func newBuilder(ctx context.Context, k kind, table string) *Builder {
	return &Builder{kind: k, tenantID: tenant.IDFromContext(ctx), table: table}
}

// Select starts a SELECT of cols from table.
func Select(ctx context.Context, table string, cols ...string) *Builder {
	b := newBuilder(ctx, kindSelect, table)
	b.cols = cols
	return b
}

func Update(ctx context.Context, table string) *Builder {
	return newBuilder(ctx, kindUpdate, table)
}

func Delete(ctx context.Context, table string) *Builder {
	return newBuilder(ctx, kindDelete, table)
}

// Where adds an AND-ed condition. Use ? for placeholders.
func (b *Builder) Where(expr string, args ...any) *Builder {
	b.where = append(b.where, cond{expr: expr, args: args})
	return b
}

// Set adds "col = ?" to an UPDATE. expr may be a raw expression when no
// argument is given, e.g. Set("version = version + 1").
func (b *Builder) Set(expr string, args ...any) *Builder {
	if !strings.Contains(expr, "=") {
		expr += " = ?"
	}
	b.sets = append(b.sets, cond{expr: expr, args: args})
	return b
}

// Qualify prefixes the tenant column with alias for joined sources.
func (b *Builder) Qualify(alias string) *Builder {
	b.qualifier = alias + "."
	return b
}

func (b *Builder) OrderBy(s string) *Builder {
	b.orderBy = s
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

func (b *Builder) ForUpdate() *Builder {
	b.forUpdate = true
	return b
}

func (b *Builder) Returning(cols string) *Builder {
	b.returning = cols
	return b
}

// Build renders the statement with $n placeholders.
func (b *Builder) Build() (string, []any, error) {
	if b.tenantID == uuid.Nil {
		return "", nil, ErrNoTenant
	}
	var sb strings.Builder
	var args []any
	switch b.kind {
	case kindSelect:
		fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(b.cols, ", "), b.table)
	case kindUpdate:
		if len(b.sets) == 0 {
			return "", nil, fmt.Errorf("scoped: update %s without assignments", b.table)
		}
		fmt.Fprintf(&sb, "UPDATE %s SET ", b.table)
		for i, s := range b.sets {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.expr)
			args = append(args, s.args...)
		}
	case kindDelete:
		fmt.Fprintf(&sb, "DELETE FROM %s", b.table)
	}

	sb.WriteString(" WHERE " + b.qualifier + "tenant_id = ?")
	args = append(args, b.tenantID)
	for _, w := range b.where {
		fmt.Fprintf(&sb, " AND (%s)", w.expr)
		args = append(args, w.args...)
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY " + b.orderBy)
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, b.offset)
	}
	if b.forUpdate {
		sb.WriteString(" FOR UPDATE")
	}
	if b.returning != "" {
		sb.WriteString(" RETURNING " + b.returning)
	}

	sql, err := number(sb.String(), len(args))
	if err != nil {
		return "", nil, fmt.Errorf("scoped %s: %w", b.table, err)
	}
	return sql, args, nil
}

// Insert renders an INSERT of cols into table with tenant_id prepended.
func Insert(ctx context.Context, table string, cols []string, vals []any, returning string) (string, []any, error) {
	tid := tenant.IDFromContext(ctx)
	if tid == uuid.Nil {
		return "", nil, ErrNoTenant
	}
	if len(cols) != len(vals) {
		return "", nil, fmt.Errorf("scoped insert %s: %d columns, %d values", table, len(cols), len(vals))
	}
	ph := make([]string, len(cols)+1)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (tenant_id, %s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(ph, ", "))
	if returning != "" {
		sql += " RETURNING " + returning
	}
	return sql, append([]any{tid}, vals...), nil
}

// number rewrites ? placeholders to $1..$n and checks the count.
func number(s string, want int) (string, error) {
	var sb strings.Builder
	n := 0
	for _, r := range s {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	if n != want {
		return "", fmt.Errorf("placeholder count %d does not match %d arguments", n, want)
	}
	return sb.String(), nil
}

// Upsert renders an INSERT that updates the listed columns on conflict.
// A conflicting row of another tenant is left untouched.
func Upsert(ctx context.Context, table, conflict string, cols []string, vals []any, update []string, returning string) (string, []any, error) {
	sql, args, err := Insert(ctx, table, cols, vals, "")
	if err != nil {
		return "", nil, err
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}
	sql += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s WHERE %s.tenant_id = EXCLUDED.tenant_id",
		conflict, strings.Join(sets, ", "), table)
	if returning != "" {
		sql += " RETURNING " + returning
	}
	return sql, args, nil
}
