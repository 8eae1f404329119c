package tenant

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
)

type contextKey string

const (
	tenantKey contextKey = "tenant"
	actorKey  contextKey = "actor"
)

// ActorKind tells operators apart from the two counterparty populations.
type ActorKind string

const (
	KindOperator ActorKind = "operator"
	KindStaff    ActorKind = "staff"
	KindClient   ActorKind = "client"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	ID          uuid.UUID
	Name        string
	Email       string
	Kind        ActorKind
	Permissions []string
	// Privileged operators may replace their session tenant.
	Privileged bool
	SessionID  string
	// HomeTenantID is the tenant the credential was issued for.
	HomeTenantID uuid.UUID
}

const PermWildcard = "*"

func (a *Actor) Has(perm string) bool {
	if a == nil {
		return false
	}
	return slices.Contains(a.Permissions, PermWildcard) || slices.Contains(a.Permissions, perm)
}

// IDPtr returns the actor id for witness columns; nil for a nil actor.
func (a *Actor) IDPtr() *uuid.UUID {
	if a == nil || a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

func WithTenant(ctx context.Context, t *models.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// WithTenantID scopes ctx to a tenant known only by id, as workers and the
// CLI do.
func WithTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return WithTenant(ctx, &models.Tenant{ID: id})
}

func FromContext(ctx context.Context) *models.Tenant {
	t, _ := ctx.Value(tenantKey).(*models.Tenant)
	return t
}

func IDFromContext(ctx context.Context) uuid.UUID {
	if t := FromContext(ctx); t != nil {
		return t.ID
	}
	return uuid.Nil
}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFromContext(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorKey).(*Actor)
	return a
}
