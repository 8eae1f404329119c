package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/fixture"
	"github.com/nikhilbhutani/staffcore/internal/store/memory"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

func TestResolveTenant(t *testing.T) {
	st := memory.New()
	w := fixture.NewWorld(t, st, "T1", "5835678256246")
	svc := tenant.NewService(st)
	ctx := context.Background()

	got, err := resolveTenant(ctx, svc, w.Tenant.ID.String())
	require.NoError(t, err)
	assert.Equal(t, w.Tenant.ID, got.ID)

	got, err = resolveTenant(ctx, svc, "5835678256246")
	require.NoError(t, err)
	assert.Equal(t, w.Tenant.ID, got.ID)

	_, err = resolveTenant(ctx, svc, "7123456789012")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "status"},
		{"tenant", "create"},
		{"teishokubi", "rebuild"},
		{"numbering", "inspect"},
		{"token", "mint"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
