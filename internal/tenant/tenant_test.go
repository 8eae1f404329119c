package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/models"
)

func TestNormalizeCorporateNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{in: "5835678256246", want: "5835678256246"},
		{in: " 5835-6782-56246 ", want: "5835678256246"},
		{in: "５８３５６７８２５６２４６", want: "5835678256246"},
		{in: "7123456789012", want: "7123456789012"},
		{in: "583567825624", err: ErrCorporateNumberLength},
		{in: "58356782562a6", err: ErrCorporateNumberDigit},
		{in: "1234567890123", err: ErrCorporateNumberChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCorporateNumber(tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActorHas(t *testing.T) {
	a := &Actor{Permissions: []string{ContractPerm("view", models.SideClient)}}
	assert.True(t, a.Has("contract.view_client"))
	assert.False(t, a.Has(ContractPerm("change", models.SideClient)))

	all := &Actor{Permissions: []string{PermWildcard}}
	assert.True(t, all.Has(PermViewAudit))

	var none *Actor
	assert.False(t, none.Has(PermViewAudit))
	assert.Nil(t, none.IDPtr())
}

type directory map[uuid.UUID]models.Tenant

func (d directory) Tenant(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, ok := d[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return &t, nil
}

func (d directory) TenantByCorporateNumber(context.Context, string) (*models.Tenant, error) {
	return nil, ErrTenantNotFound
}

func (d directory) Tenants(context.Context) ([]models.Tenant, error) {
	out := make([]models.Tenant, 0, len(d))
	for _, t := range d {
		out = append(out, t)
	}
	return out, nil
}

func TestScope(t *testing.T) {
	home, other := uuid.New(), uuid.New()
	svc := NewService(directory{
		home:  {ID: home, Slug: "home"},
		other: {ID: other, Slug: "other"},
	})
	ctx := context.Background()

	op := &Actor{ID: uuid.New(), Kind: KindOperator, HomeTenantID: home}
	scoped, err := svc.Scope(ctx, op, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, home, IDFromContext(scoped))
	assert.Same(t, op, ActorFromContext(scoped))

	_, err = svc.Scope(ctx, op, other)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	op.Privileged = true
	scoped, err = svc.Scope(ctx, op, other)
	require.NoError(t, err)
	assert.Equal(t, other, IDFromContext(scoped))

	_, err = svc.Scope(ctx, &Actor{Kind: KindStaff}, uuid.Nil)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	_, err = svc.Scope(ctx, &Actor{Kind: KindStaff, HomeTenantID: uuid.New()}, uuid.Nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
