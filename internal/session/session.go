// Package session keeps per-session state that outlives a request: the
// tenant a privileged operator switched to.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/cache"
	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type Store struct {
	cache   *cache.Cache
	prefix  string
	ttl     time.Duration
	tenants *tenant.Service
}

func NewStore(c *cache.Cache, cfg config.SessionConfig, tenants *tenant.Service) *Store {
	return &Store{cache: c, prefix: cfg.Prefix, ttl: cfg.TTL, tenants: tenants}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID + ":tenant"
}

type override struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	SwitchedAt time.Time `json:"switched_at"`
}

// TenantOverride returns the tenant the session switched to, or uuid.Nil.
func (s *Store) TenantOverride(ctx context.Context, sessionID string) (uuid.UUID, error) {
	if sessionID == "" {
		return uuid.Nil, nil
	}
	var o override
	err := s.cache.Get(ctx, s.key(sessionID), &o)
	if errors.Is(err, cache.ErrMiss) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load session tenant: %w", err)
	}
	return o.TenantID, nil
}

// SwitchTenant binds the session of a to another tenant. Only privileged
// operators may switch, and only to a tenant that exists.
func (s *Store) SwitchTenant(ctx context.Context, a *tenant.Actor, tenantID uuid.UUID) error {
	if a == nil || a.Kind != tenant.KindOperator || !a.Privileged {
		return apperr.PermissionDenied("tenant switch requires a privileged operator")
	}
	if a.SessionID == "" {
		return apperr.Validation(map[string]string{"sid": "credential carries no session"})
	}
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return err
	}
	o := override{TenantID: tenantID, SwitchedAt: time.Now()}
	if err := s.cache.Set(ctx, s.key(a.SessionID), o, s.ttl); err != nil {
		return fmt.Errorf("store session tenant: %w", err)
	}
	return nil
}

// ClearTenant returns the session to the credential's home tenant.
func (s *Store) ClearTenant(ctx context.Context, a *tenant.Actor) error {
	if a == nil || a.SessionID == "" {
		return nil
	}
	if err := s.cache.Delete(ctx, s.key(a.SessionID)); err != nil {
		return fmt.Errorf("clear session tenant: %w", err)
	}
	return nil
}
