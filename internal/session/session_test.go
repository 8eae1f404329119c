package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/cache"
	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store/memory"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *Store, *tenant.Service, *models.Tenant) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	st := memory.New()
	other := &models.Tenant{Name: "Other", Slug: "other"}
	require.NoError(t, st.CreateTenant(context.Background(), other))
	tenants := tenant.NewService(st)
	s := NewStore(cache.NewCache(client), config.SessionConfig{TTL: time.Hour, Prefix: "test:"}, tenants)
	return mr, s, tenants, other
}

func TestSwitchAndClear(t *testing.T) {
	mr, s, tenants, other := setup(t)
	ctx := context.Background()
	home := uuid.New()
	a := &tenant.Actor{ID: uuid.New(), Kind: tenant.KindOperator, Privileged: true, SessionID: "sid-1", HomeTenantID: home}

	got, err := s.TenantOverride(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got)

	require.NoError(t, s.SwitchTenant(ctx, a, other.ID))
	got, err = s.TenantOverride(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, other.ID, got)
	assert.Equal(t, time.Hour, mr.TTL("test:sid-1:tenant"))

	scoped, err := tenants.Scope(ctx, a, got)
	require.NoError(t, err)
	assert.Equal(t, other.ID, tenant.IDFromContext(scoped))

	require.NoError(t, s.ClearTenant(ctx, a))
	got, err = s.TenantOverride(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got)
}

func TestSwitchRequiresPrivilege(t *testing.T) {
	_, s, _, other := setup(t)
	ctx := context.Background()

	plain := &tenant.Actor{Kind: tenant.KindOperator, SessionID: "sid"}
	assert.True(t, apperr.Is(s.SwitchTenant(ctx, plain, other.ID), apperr.KindPermissionDenied))

	staff := &tenant.Actor{Kind: tenant.KindStaff, Privileged: true, SessionID: "sid"}
	assert.True(t, apperr.Is(s.SwitchTenant(ctx, staff, other.ID), apperr.KindPermissionDenied))

	priv := &tenant.Actor{Kind: tenant.KindOperator, Privileged: true, SessionID: "sid"}
	assert.True(t, apperr.Is(s.SwitchTenant(ctx, priv, uuid.New()), apperr.KindNotFound))

	noSession := &tenant.Actor{Kind: tenant.KindOperator, Privileged: true}
	assert.True(t, apperr.Is(s.SwitchTenant(ctx, noSession, other.ID), apperr.KindValidationFailed))
}

func TestSessionExpires(t *testing.T) {
	mr, s, _, other := setup(t)
	ctx := context.Background()
	a := &tenant.Actor{Kind: tenant.KindOperator, Privileged: true, SessionID: "sid-2"}
	require.NoError(t, s.SwitchTenant(ctx, a, other.ID))

	mr.FastForward(2 * time.Hour)
	got, err := s.TenantOverride(ctx, "sid-2")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, got)
}
