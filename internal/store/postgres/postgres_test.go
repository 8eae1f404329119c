package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/database"
	"github.com/nikhilbhutani/staffcore/internal/fixture"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable database:
//
//	STAFFCORE_TEST_DATABASE_URL=postgres://localhost/staffcore_test go test ./internal/store/postgres/
const testDatabaseEnv = "STAFFCORE_TEST_DATABASE_URL"

func openStore(t *testing.T, lockTimeout time.Duration) *Store {
	t.Helper()
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	ctx := context.Background()
	pool, err := database.NewPool(ctx, config.DatabaseConfig{URL: url, MaxConns: 4, TimeZone: "Asia/Tokyo"})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.RunMigrations(ctx, pool, migrations.FS))
	return New(pool, lockTimeout)
}

// world seeds a fresh tenant so tests never see each other's rows.
func world(t *testing.T, st *Store) *fixture.World {
	prefix := "pg" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fixture.NewWorld(t, st, prefix, "1234567890123")
}

func showLockTimeout(ctx context.Context, t *testing.T, stx store.Tx) string {
	t.Helper()
	var v string
	require.NoError(t, stx.(*tx).tx.QueryRow(ctx, "SHOW lock_timeout").Scan(&v))
	return v
}

func TestNextSequenceCountsPerLetterAndYear(t *testing.T) {
	st := openStore(t, time.Second)
	w := world(t, st)

	w.Tx(func(ctx context.Context, stx store.Tx) error {
		for want := 1; want <= 3; want++ {
			n, err := stx.NextSequence(ctx, "D", 2025)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
		n, err := stx.NextSequence(ctx, "D", 2026)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = stx.NextSequence(ctx, "S", 2025)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})

	// A second tenant starts its own sequence.
	other := world(t, st)
	other.Tx(func(ctx context.Context, stx store.Tx) error {
		n, err := stx.NextSequence(ctx, "D", 2025)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})
}

func TestNextSequenceRestoresLockTimeout(t *testing.T) {
	st := openStore(t, 250*time.Millisecond)
	w := world(t, st)

	w.Tx(func(ctx context.Context, stx store.Tx) error {
		before := showLockTimeout(ctx, t, stx)
		_, err := stx.NextSequence(ctx, "D", 2025)
		require.NoError(t, err)
		assert.Equal(t, before, showLockTimeout(ctx, t, stx))
		return nil
	})
}

func TestNextSequenceGivesUpOnHeldRow(t *testing.T) {
	st := openStore(t, 200*time.Millisecond)
	w := world(t, st)
	w.Tx(func(ctx context.Context, stx store.Tx) error {
		_, err := stx.NextSequence(ctx, "K", 2025)
		return err
	})

	held := make(chan struct{})
	release := make(chan struct{})
	holder := make(chan error, 1)
	go func() {
		holder <- st.InTx(w.Ctx, func(ctx context.Context, stx store.Tx) error {
			if _, err := stx.NextSequence(ctx, "K", 2025); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	select {
	case <-held:
	case err := <-holder:
		t.Fatalf("holder finished early: %v", err)
	}

	start := time.Now()
	err := st.InTx(w.Ctx, func(ctx context.Context, stx store.Tx) error {
		_, err := stx.NextSequence(ctx, "K", 2025)
		return err
	})
	close(release)
	require.NoError(t, <-holder)

	assert.ErrorIs(t, err, store.ErrLocked)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The waiting transaction rolled back, so the holder's value is next.
	w.Tx(func(ctx context.Context, stx store.Tx) error {
		n, err := stx.NextSequence(ctx, "K", 2025)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		return nil
	})
}

func TestUpsertTeishokubiReplacesByKey(t *testing.T) {
	st := openStore(t, time.Second)
	w := world(t, st)
	key := models.TeishokubiKey{StaffEmail: "hanako@example.com", ClientCorporateNumber: "9876543210987", OrganizationName: "Sales"}

	w.Tx(func(ctx context.Context, stx store.Tx) error {
		require.NoError(t, stx.UpsertTeishokubi(ctx, &models.Teishokubi{
			TeishokubiKey:     key,
			DispatchStartDate: fixture.Date(2025, 4, 1),
			ConflictDate:      fixture.Date(2028, 3, 31),
		}))
		return stx.UpsertTeishokubi(ctx, &models.Teishokubi{
			TeishokubiKey:     key,
			DispatchStartDate: fixture.Date(2025, 1, 1),
			ConflictDate:      fixture.Date(2027, 12, 31),
		})
	})

	w.Tx(func(ctx context.Context, stx store.Tx) error {
		got, err := stx.Teishokubi(ctx, key)
		require.NoError(t, err)
		assert.True(t, got.DispatchStartDate.Equal(fixture.Date(2025, 1, 1)), "start %s", got.DispatchStartDate)
		assert.True(t, got.ConflictDate.Equal(fixture.Date(2027, 12, 31)), "conflict %s", got.ConflictDate)

		rows, err := stx.ListTeishokubi(ctx, store.TeishokubiFilter{StaffEmail: "Hanako@Example.com"})
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		require.NoError(t, stx.DeleteTeishokubi(ctx, key))
		_, err = stx.Teishokubi(ctx, key)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func TestAssignmentLinesJoinStaffAndUnit(t *testing.T) {
	st := openStore(t, time.Second)
	w := world(t, st)
	client := w.Client("Client Corp", "9876543210987")
	unit := w.Organization(client.ID, "Sales", nil)
	cp := w.Pattern(models.SideClient, models.ContractTypeDispatch, "Dispatch")
	sp := w.Pattern(models.SideStaff, models.ContractTypeDispatch, "Employment")
	staff := w.Staff("Hanako", "hanako@example.com")

	cc := w.DispatchContract(client, cp, unit, fixture.Date(2025, 7, 1), fixture.DatePtr(2025, 9, 30))
	sc := w.StaffContract(staff, sp, models.EmploymentTypeFixedTermDispatch, fixture.Date(2025, 6, 15), fixture.DatePtr(2025, 9, 30))
	a := w.Assign(cc.ID, sc.ID)

	w.Tx(func(ctx context.Context, stx store.Tx) error {
		lines, err := stx.AssignmentLines(ctx, store.LineFilter{StaffEmail: "HANAKO@example.com"})
		require.NoError(t, err)
		require.Len(t, lines, 1)
		l := lines[0]
		assert.Equal(t, a.ID, l.AssignmentID)
		assert.Equal(t, "hanako@example.com", l.StaffEmail)
		assert.Equal(t, models.EmploymentTypeFixedTermDispatch, l.EmploymentTypeCode)
		assert.True(t, l.StaffStartDate.Equal(fixture.Date(2025, 6, 15)), "staff start %s", l.StaffStartDate)
		assert.Equal(t, models.ContractTypeDispatch, l.ClientTypeCode)
		assert.Equal(t, "9876543210987", l.ClientCorporateNumber)
		require.NotNil(t, l.OrganizationName)
		assert.Equal(t, "Sales", *l.OrganizationName)

		byID, err := stx.AssignmentLines(ctx, store.LineFilter{AssignmentID: a.ID})
		require.NoError(t, err)
		assert.Len(t, byID, 1)

		// A duplicate pair is a conflict.
		err = stx.InsertAssignment(ctx, &models.Assignment{ClientContractID: cc.ID, StaffContractID: sc.ID})
		assert.ErrorIs(t, err, store.ErrConflict)
		return nil
	})
}

func TestHakenRoundTripsExemptDetail(t *testing.T) {
	st := openStore(t, time.Second)
	w := world(t, st)
	client := w.Client("Client Corp", "9876543210987")
	unit := w.Organization(client.ID, "Sales", nil)
	cp := w.Pattern(models.SideClient, models.ContractTypeDispatch, "Dispatch")
	cc := w.DispatchContract(client, cp, unit, fixture.Date(2025, 7, 1), fixture.DatePtr(2025, 9, 30))

	w.Tx(func(ctx context.Context, stx store.Tx) error {
		c, err := stx.ClientContract(ctx, cc.ID, true)
		require.NoError(t, err)
		require.NotNil(t, c.Haken)
		assert.Nil(t, c.Haken.PeriodExemptDetail)
		c.Haken.PeriodExemptDetail = fixture.Ptr("indefinite-term employee")
		return stx.UpdateClientContract(ctx, c)
	})

	w.Tx(func(ctx context.Context, stx store.Tx) error {
		c, err := stx.ClientContract(ctx, cc.ID, false)
		require.NoError(t, err)
		require.NotNil(t, c.Haken)
		assert.True(t, c.Haken.Exempt())
		assert.Equal(t, "indefinite-term employee", *c.Haken.PeriodExemptDetail)
		assert.Equal(t, unit.ID, *c.Haken.HakenUnitID)
		return nil
	})
}
