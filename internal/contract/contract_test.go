package contract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/fixture"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/numbering"
	"github.com/nikhilbhutani/staffcore/internal/render"
	"github.com/nikhilbhutani/staffcore/internal/storage"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/store/memory"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	d     = fixture.Date
	tokyo = time.FixedZone("Asia/Tokyo", 9*60*60)
)

// flakyStorage fails the n-th upload and every one after it.
type flakyStorage struct {
	*storage.MemoryStorage
	mu     sync.Mutex
	failAt int
	calls  int
}

func (f *flakyStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	f.calls++
	fail := f.failAt > 0 && f.calls >= f.failAt
	f.mu.Unlock()
	if fail {
		return errors.New("bucket unavailable")
	}
	return f.MemoryStorage.Upload(ctx, key, data, contentType)
}

type env struct {
	st     *memory.Store
	w      *fixture.World
	blobs  *flakyStorage
	svc    *Service
	client *models.Client
	office *models.ClientOrganization
	cp     *models.ContractPattern
	sp     *models.ContractPattern
	staff  *models.Staff
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	w := fixture.NewWorld(t, st, "T1", "5835678256246")
	blobs := &flakyStorage{MemoryStorage: storage.NewMemoryStorage()}
	r, err := render.New("", "DRAFT")
	require.NoError(t, err)
	svc := NewService(st, blobs, r, numbering.New(tokyo), audit.NewSink(st), tokyo).
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, tokyo) })

	client := w.Client("Acme", "1234567890123")
	return &env{
		st:     st,
		w:      w,
		blobs:  blobs,
		svc:    svc,
		client: client,
		office: w.Organization(client.ID, "Osaka Office", fixture.DatePtr(2027, 3, 31)),
		cp:     w.Pattern(models.SideClient, models.ContractTypeDispatch, "Dispatch"),
		sp:     w.Pattern(models.SideStaff, models.ContractTypeDispatch, "Employment"),
		staff:  w.Staff("Sato", "sato@example.com"),
	}
}

func (e *env) dispatch() *models.ClientContract {
	return e.w.DispatchContract(e.client, e.cp, e.office, d(2025, 7, 1), fixture.DatePtr(2025, 9, 30))
}

func (e *env) staffContract() *models.StaffContract {
	return e.w.StaffContract(e.staff, e.sp, models.EmploymentTypeFixedTermDispatch, d(2025, 7, 1), fixture.DatePtr(2025, 9, 30))
}

// approve drives a draft to Approved and returns its number.
func (e *env) approve(t *testing.T, side models.Side, id uuid.UUID) string {
	t.Helper()
	_, err := e.svc.Apply(e.w.Ctx, side, id)
	require.NoError(t, err)
	v, err := e.svc.Approve(e.w.Ctx, side, id)
	require.NoError(t, err)
	switch c := v.(type) {
	case *models.ClientContract:
		return c.NumberOrEmpty()
	case *models.StaffContract:
		return c.NumberOrEmpty()
	}
	t.Fatalf("unexpected contract type %T", v)
	return ""
}

func (e *env) clientOf(t *testing.T, id uuid.UUID) *models.ClientContract {
	t.Helper()
	var c *models.ClientContract
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		c, err = tx.ClientContract(ctx, id, false)
		return err
	})
	return c
}

func (e *env) staffOf(t *testing.T, id uuid.UUID) *models.StaffContract {
	t.Helper()
	var c *models.StaffContract
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		c, err = tx.StaffContract(ctx, id, false)
		return err
	})
	return c
}

func (e *env) prints(t *testing.T, side models.Side, id uuid.UUID) []models.Print {
	t.Helper()
	var ps []models.Print
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		ps, err = tx.Prints(ctx, side, id)
		return err
	})
	return ps
}

func kinds(ps []models.Print) []models.PrintKind {
	out := make([]models.PrintKind, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Kind)
	}
	return out
}

func (e *env) auditActions(t *testing.T, side models.Side, id uuid.UUID) []models.AuditAction {
	t.Helper()
	var evs []models.AuditEvent
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		evs, err = tx.AuditEvents(ctx, store.AuditQuery{ModelName: side.ModelName(), ObjectID: id.String()})
		return err
	})
	out := make([]models.AuditAction, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Action)
	}
	return out
}

func TestIssueAndRevertScenario(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()

	number := e.approve(t, models.SideClient, cc.ID)
	assert.Equal(t, "T12025D000001", number)

	prints, err := e.svc.Issue(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.PrintKind{models.PrintContract, models.PrintDispatchNotification}, kinds(prints))

	got := e.clientOf(t, cc.ID)
	assert.Equal(t, models.StatusIssued, got.Status)
	require.NotNil(t, got.IssuedAt)
	assert.Equal(t, e.w.Actor.ID, *got.IssuedBy)
	assert.Len(t, e.blobs.Keys(), 2)

	for _, p := range prints {
		assert.Equal(t, "T12025D000001", p.ContractNumber)
		assert.Contains(t, p.Filename, "T12025D000001_")
		assert.Len(t, p.SHA256, 64)
	}
	assert.Contains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditPrint)
	assert.Contains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditDispatchNotificationIssue)

	_, err = e.svc.SetApproved(e.w.Ctx, models.SideClient, cc.ID, false)
	require.NoError(t, err)

	got = e.clientOf(t, cc.ID)
	assert.Equal(t, models.StatusDraft, got.Status)
	assert.Nil(t, got.Number)
	assert.Nil(t, got.ApprovedAt)
	assert.Nil(t, got.IssuedAt)
	assert.Empty(t, e.prints(t, models.SideClient, cc.ID))
	assert.Empty(t, e.blobs.Keys())
	assert.Contains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditRevert)

	// A reverted number is never handed out again.
	assert.Equal(t, "T12025D000002", e.approve(t, models.SideClient, cc.ID))
}

func TestNumbersPerLetter(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, "T12025D000001", e.approve(t, models.SideClient, e.dispatch().ID))
	assert.Equal(t, "T12025S000001", e.approve(t, models.SideStaff, e.staffContract().ID))
	assert.Equal(t, "T12025D000002", e.approve(t, models.SideClient, e.dispatch().ID))
}

func TestConcurrentApprovalsGetDistinctNumbers(t *testing.T) {
	e := newEnv(t)
	const n = 20
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = e.dispatch().ID
		_, err := e.svc.Apply(e.w.Ctx, models.SideClient, ids[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.svc.Approve(e.w.Ctx, models.SideClient, id)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, id := range ids {
		require.NoError(t, errs[i])
		number := e.clientOf(t, id).NumberOrEmpty()
		assert.False(t, seen[number], "duplicate number %s", number)
		seen[number] = true
	}
	assert.True(t, seen["T12025D000001"])
	assert.True(t, seen["T12025D000020"])
}

func TestIllegalTransitions(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	ctx := e.w.Ctx

	_, err := e.svc.Approve(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "approve draft: %v", err)
	_, err = e.svc.Revert(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "revert draft: %v", err)

	_, err = e.svc.Apply(ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	_, err = e.svc.Apply(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "apply pending: %v", err)
	_, err = e.svc.Issue(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "issue pending: %v", err)

	_, err = e.svc.Approve(ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	_, err = e.svc.Confirm(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "confirm approved: %v", err)
	_, err = e.svc.Unconfirm(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "unconfirm approved: %v", err)

	_, err = e.svc.UpdateClient(ctx, cc.ID, ClientInput{CoreInput: CoreInput{Name: "renamed"}})
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "edit approved: %v", err)
	err = e.svc.Delete(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "delete approved: %v", err)

	// Failed transitions leave no trace.
	got := e.clientOf(t, cc.ID)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "Dispatch Acme", got.Name)
}

func TestApplyValidation(t *testing.T) {
	e := newEnv(t)
	cc := e.w.DispatchContract(e.client, e.cp, e.office, d(2025, 7, 1), fixture.DatePtr(2025, 6, 1))
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		c, err := tx.ClientContract(ctx, cc.ID, true)
		if err != nil {
			return err
		}
		c.Haken.CommanderID = nil
		c.PatternID = &e.sp.ID
		return tx.UpdateClientContract(ctx, c)
	})

	_, err := e.svc.Apply(e.w.Ctx, models.SideClient, cc.ID)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidationFailed, ae.Kind)
	assert.Contains(t, ae.Fields, "end_date")
	assert.Contains(t, ae.Fields, "pattern_id")
	assert.Contains(t, ae.Fields, "haken.commander_id")
	assert.Equal(t, models.StatusDraft, e.clientOf(t, cc.ID).Status)
}

func TestApplyRejectsIneligibleClient(t *testing.T) {
	e := newEnv(t)
	e.client.BasicContractDateHaken = nil
	e.w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveClient(ctx, e.client) })
	cc := e.dispatch()

	_, err := e.svc.Apply(e.w.Ctx, models.SideClient, cc.ID)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "client_id")
}

// ttpDispatch drafts an introduction-scheduled dispatch contract.
func (e *env) ttpDispatch(start time.Time, end *time.Time) *models.ClientContract {
	cc := e.w.DispatchContract(e.client, e.cp, e.office, start, end)
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		c, err := tx.ClientContract(ctx, cc.ID, true)
		if err != nil {
			return err
		}
		c.Haken.TTP = true
		return tx.UpdateClientContract(ctx, c)
	})
	return cc
}

func TestTTPDispatchIsCappedAtSixMonths(t *testing.T) {
	e := newEnv(t)
	cc := e.ttpDispatch(d(2025, 7, 1), fixture.DatePtr(2026, 1, 1))

	_, err := e.svc.Apply(e.w.Ctx, models.SideClient, cc.ID)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "end_date")
}

func TestTTPLimitClampsToMonthEnd(t *testing.T) {
	e := newEnv(t)
	// Aug 31 plus six months is Feb 28, not Mar 3.
	cc := e.ttpDispatch(d(2025, 8, 31), fixture.DatePtr(2026, 3, 2))

	_, err := e.svc.Apply(e.w.Ctx, models.SideClient, cc.ID)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "end_date")

	ok := e.ttpDispatch(d(2025, 8, 31), fixture.DatePtr(2026, 2, 27))
	_, err = e.svc.Apply(e.w.Ctx, models.SideClient, ok.ID)
	if err != nil {
		require.ErrorAs(t, err, &ae)
		assert.NotContains(t, ae.Fields, "end_date")
	}
}

func TestAddMonths(t *testing.T) {
	for _, tc := range []struct {
		from time.Time
		n    int
		want time.Time
	}{
		{d(2025, 8, 31), 6, d(2026, 2, 28)},
		{d(2023, 8, 31), 6, d(2024, 2, 29)},
		{d(2025, 7, 1), 6, d(2026, 1, 1)},
		{d(2025, 3, 31), 1, d(2025, 4, 30)},
		{d(2025, 12, 15), 2, d(2026, 2, 15)},
	} {
		assert.Equal(t, tc.want, addMonths(tc.from, tc.n), "%s + %d", tc.from.Format("2006-01-02"), tc.n)
	}
}

func TestIssueRemovesBlobsWhenTransactionFails(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	e.approve(t, models.SideClient, cc.ID)

	// The contract print uploads, the dispatch notification does not.
	e.blobs.failAt = e.blobs.calls + 2
	_, err := e.svc.Issue(e.w.Ctx, models.SideClient, cc.ID)
	require.Error(t, err)

	assert.Empty(t, e.blobs.Keys())
	assert.Empty(t, e.prints(t, models.SideClient, cc.ID))
	assert.Equal(t, models.StatusApproved, e.clientOf(t, cc.ID).Status)
	assert.NotContains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditPrint)
}

func TestQuotationIsIssuedOnce(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()

	_, err := e.svc.IssueQuotation(e.w.Ctx, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "draft quotation: %v", err)

	e.approve(t, models.SideClient, cc.ID)
	p, err := e.svc.IssueQuotation(e.w.Ctx, cc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintQuotation, p.Kind)
	assert.Equal(t, "御見積書", p.Title)

	_, err = e.svc.IssueQuotation(e.w.Ctx, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindAlreadyIssued), "second quotation: %v", err)

	// A quotation does not move the contract.
	assert.Equal(t, models.StatusApproved, e.clientOf(t, cc.ID).Status)
	assert.Contains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditQuotationIssue)
	assert.Len(t, e.prints(t, models.SideClient, cc.ID), 1)
}

func TestClashDayNotification(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	e.approve(t, models.SideClient, cc.ID)

	p, err := e.svc.IssueClashDayNotification(e.w.Ctx, cc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintClashDayNotification, p.Kind)

	_, err = e.svc.IssueClashDayNotification(e.w.Ctx, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindAlreadyIssued), "second notification: %v", err)
	assert.Contains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditClashDayNotificationIssue)
}

func TestClashDayNotificationNeedsOfficeConflictDate(t *testing.T) {
	e := newEnv(t)
	bare := e.w.Organization(e.client.ID, "Kobe Office", nil)
	cc := e.w.DispatchContract(e.client, e.cp, bare, d(2025, 7, 1), fixture.DatePtr(2025, 9, 30))
	e.approve(t, models.SideClient, cc.ID)

	_, err := e.svc.IssueClashDayNotification(e.w.Ctx, cc.ID)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidationFailed, ae.Kind)
	assert.Empty(t, e.blobs.Keys())
}

// ordinary inserts an approved non-dispatch client contract.
func (e *env) ordinary() *models.ClientContract {
	c := &models.ClientContract{
		ContractCore: models.ContractCore{
			ContractTypeCode: models.ContractTypeOrdinary,
			Name:             "Consulting",
			StartDate:        d(2025, 7, 1),
			Status:           models.StatusDraft,
		},
		ClientID:        e.client.ID,
		CorporateNumber: e.client.CorporateNumber,
	}
	e.w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.InsertClientContract(ctx, c) })
	e.w.ForceClientStatus(c.ID, models.StatusApproved, "T12025O000001")
	return c
}

func TestDispatchLedgerIsIssuedOnce(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()

	_, err := e.svc.IssueDispatchLedger(e.w.Ctx, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "draft ledger: %v", err)

	e.approve(t, models.SideClient, cc.ID)
	p, err := e.svc.IssueDispatchLedger(e.w.Ctx, cc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintDispatchLedger, p.Kind)
	assert.Equal(t, "派遣先管理台帳", p.Title)
	assert.Contains(t, e.blobs.Keys(), p.BlobKey)

	_, err = e.svc.IssueDispatchLedger(e.w.Ctx, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindAlreadyIssued), "second ledger: %v", err)

	assert.Equal(t, models.StatusApproved, e.clientOf(t, cc.ID).Status)
	assert.Contains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditDispatchLedgerIssue)
	assert.Len(t, e.prints(t, models.SideClient, cc.ID), 1)
}

func TestDispatchLedgerNeedsDispatchContract(t *testing.T) {
	e := newEnv(t)
	oc := e.ordinary()

	_, err := e.svc.IssueDispatchLedger(e.w.Ctx, oc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "ordinary ledger: %v", err)
	assert.Empty(t, e.prints(t, models.SideClient, oc.ID))
}

func (e *env) assignmentActions(t *testing.T, id uuid.UUID) []models.AuditAction {
	t.Helper()
	var evs []models.AuditEvent
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		evs, err = tx.AuditEvents(ctx, store.AuditQuery{ModelName: assignmentModel, ObjectID: id.String()})
		return err
	})
	out := make([]models.AuditAction, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Action)
	}
	return out
}

func TestEmploymentConditionsDraft(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	sc := e.staffContract()
	a := e.w.Assign(cc.ID, sc.ID)

	art, err := e.svc.EmploymentConditions(e.w.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintEmploymentConditions, art.Kind)
	ins, err := render.Verify(art.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "就業条件明示書", ins.Title)

	// Nothing is stored, but the rendering is audited.
	assert.Empty(t, e.blobs.Keys())
	assert.Empty(t, e.prints(t, models.SideClient, cc.ID))
	assert.Contains(t, e.assignmentActions(t, a.ID), models.AuditPrint)

	e.w.ForceStaffStatus(sc.ID, models.StatusPending, "")
	_, err = e.svc.EmploymentConditions(e.w.Ctx, a.ID)
	require.NoError(t, err)

	e.w.ForceStaffStatus(sc.ID, models.StatusApproved, "T12025S000001")
	_, err = e.svc.EmploymentConditions(e.w.Ctx, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "approved staff contract: %v", err)
}

func TestEmploymentConditionsRejects(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.EmploymentConditions(e.w.Ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown assignment: %v", err)

	oc := e.ordinary()
	a := e.w.Assign(oc.ID, e.staffContract().ID)
	_, err = e.svc.EmploymentConditions(e.w.Ctx, a.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "ordinary contract: %v", err)
	assert.Empty(t, e.assignmentActions(t, a.ID))
}

func TestLatestPDFIssuesApprovedContract(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()

	_, err := e.svc.LatestPDF(e.w.Ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition), "draft pdf: %v", err)

	e.approve(t, models.SideClient, cc.ID)
	f, err := e.svc.LatestPDF(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintContract, f.Print.Kind)
	assert.Equal(t, models.StatusIssued, e.clientOf(t, cc.ID).Status)

	ins, err := render.Verify(f.Bytes)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ins.Pages, 1)
	assert.Equal(t, "労働者派遣個別契約書", ins.Title)

	// The next call returns the same print instead of issuing again.
	again, err := e.svc.LatestPDF(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	assert.Equal(t, f.Print.ID, again.Print.ID)
	assert.Equal(t, f.Bytes, again.Bytes)
	assert.Contains(t, e.auditActions(t, models.SideClient, cc.ID), models.AuditView)
}

func TestDraftPDFWritesNothing(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()

	art, err := e.svc.DraftPDF(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	_, err = render.Verify(art.Bytes)
	require.NoError(t, err)
	assert.Empty(t, e.prints(t, models.SideClient, cc.ID))
	assert.Empty(t, e.blobs.Keys())
}

func TestPrintFile(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	e.approve(t, models.SideClient, cc.ID)
	prints, err := e.svc.Issue(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)

	f, err := e.svc.PrintFile(e.w.Ctx, models.SideClient, cc.ID, prints[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrintDispatchNotification, f.Print.Kind)
	assert.EqualValues(t, len(f.Bytes), f.Print.Size)

	_, err = e.svc.PrintFile(e.w.Ctx, models.SideStaff, cc.ID, prints[1].ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "wrong side: %v", err)
}

func TestStaffConfirmRequiresAgreements(t *testing.T) {
	e := newEnv(t)
	sc := e.staffContract()
	e.approve(t, models.SideStaff, sc.ID)
	_, err := e.svc.Issue(e.w.Ctx, models.SideStaff, sc.ID)
	require.NoError(t, err)

	terms := &models.StaffAgreement{Name: "Privacy", Text: "We keep your data safe.", DisplayOrder: 1, IsActive: true}
	e.w.Tx(func(ctx context.Context, tx store.Tx) error { return tx.SaveAgreement(ctx, terms) })

	_, err = e.svc.Confirm(e.w.Ctx, models.SideStaff, sc.ID)
	require.True(t, apperr.Is(err, apperr.KindAgreementRequired), "confirm without consent: %v", err)
	pending := agreement.PendingOf(err)
	require.Len(t, pending, 1)
	assert.Equal(t, terms.ID, pending[0].ID)
	assert.Equal(t, models.StatusIssued, e.staffOf(t, sc.ID).Status)

	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		return agreement.Accept(ctx, tx, "SATO@example.com", []uuid.UUID{terms.ID}, time.Now())
	})
	_, err = e.svc.Confirm(e.w.Ctx, models.SideStaff, sc.ID)
	require.NoError(t, err)
	got := e.staffOf(t, sc.ID)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	_, err = e.svc.Unconfirm(e.w.Ctx, models.SideStaff, sc.ID)
	require.NoError(t, err)
	got = e.staffOf(t, sc.ID)
	assert.Equal(t, models.StatusIssued, got.Status)
	assert.Nil(t, got.ConfirmedAt)
	assert.Subset(t, e.auditActions(t, models.SideStaff, sc.ID), []models.AuditAction{models.AuditConfirm, models.AuditUnconfirm})
}

func TestFlipRunsAuthorizer(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	e.approve(t, models.SideClient, cc.ID)
	_, err := e.svc.Issue(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)

	var seen Snapshot
	deny := func(ctx context.Context, tx store.Tx, c Snapshot) error {
		seen = c
		return apperr.PermissionDenied("not your contract")
	}
	_, err = e.svc.Flip(e.w.Ctx, models.SideClient, cc.ID, true, deny)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))
	assert.Equal(t, e.client.ID, seen.ClientID)
	assert.Equal(t, models.StatusIssued, e.clientOf(t, cc.ID).Status)
}

func TestRevertRemovesAssignments(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	sc := e.staffContract()
	e.approve(t, models.SideClient, cc.ID)
	e.approve(t, models.SideStaff, sc.ID)

	assignments := assignment.NewService(e.st, audit.NewSink(e.st))
	_, err := assignments.Assign(e.w.Ctx, cc.ID, sc.ID)
	require.NoError(t, err)

	var rows []models.Teishokubi
	list := func() {
		e.w.Tx(func(ctx context.Context, tx store.Tx) error {
			var err error
			rows, err = tx.ListTeishokubi(ctx, store.TeishokubiFilter{})
			return err
		})
	}
	list()
	require.Len(t, rows, 1)

	_, err = e.svc.Revert(e.w.Ctx, models.SideStaff, sc.ID)
	require.NoError(t, err)

	views, err := assignments.ListByClient(e.w.Ctx, cc.ID)
	require.NoError(t, err)
	assert.Empty(t, views)
	list()
	assert.Empty(t, rows)
}

func TestPermissions(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	viewer := &tenant.Actor{ID: uuid.New(), Kind: tenant.KindOperator, HomeTenantID: e.w.Tenant.ID,
		Permissions: []string{tenant.ContractPerm("view", models.SideClient)}}
	ctx := e.w.As(viewer)

	_, err := e.svc.Get(ctx, models.SideClient, cc.ID)
	require.NoError(t, err)

	_, err = e.svc.Apply(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied), "apply: %v", err)
	_, err = e.svc.Get(ctx, models.SideStaff, e.staffContract().ID)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied), "staff get: %v", err)

	e.approve(t, models.SideClient, cc.ID)
	_, err = e.svc.Revert(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied), "revert: %v", err)
	// Viewing an approved contract's PDF would issue it.
	_, err = e.svc.LatestPDF(ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied), "latest pdf: %v", err)
	assert.Equal(t, models.StatusApproved, e.clientOf(t, cc.ID).Status)
}

func TestTenantIsolation(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	other := fixture.NewWorld(t, e.st, "T2", "7123456789012")

	_, err := e.svc.Get(other.Ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "get: %v", err)
	_, err = e.svc.Apply(other.Ctx, models.SideClient, cc.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "apply: %v", err)

	list, err := e.svc.ListClient(other.Ctx, store.ContractFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateUpdateDelete(t *testing.T) {
	e := newEnv(t)
	in := ClientInput{
		CoreInput: CoreInput{
			PatternID:        &e.cp.ID,
			ContractTypeCode: models.ContractTypeDispatch,
			Name:             " Spring dispatch ",
			StartDate:        "2025-04-01",
			EndDate:          "2025-06-30",
		},
		ClientID: e.client.ID,
		Haken:    e.w.Haken(e.client, e.office),
	}
	c, err := e.svc.CreateClient(e.w.Ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "Spring dispatch", c.Name)
	assert.Equal(t, models.StatusDraft, c.Status)
	assert.Equal(t, e.client.CorporateNumber, c.CorporateNumber)

	in.Name = "Summer dispatch"
	in.Version = c.Version
	u, err := e.svc.UpdateClient(e.w.Ctx, c.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Summer dispatch", u.Name)

	// A stale version is rejected.
	_, err = e.svc.UpdateClient(e.w.Ctx, c.ID, in)
	assert.True(t, apperr.Is(err, apperr.KindValidationFailed), "stale update: %v", err)

	in.StartDate = "01/04/2025"
	_, err = e.svc.CreateClient(e.w.Ctx, in)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Fields, "start_date")

	require.NoError(t, e.svc.Delete(e.w.Ctx, models.SideClient, c.ID))
	_, err = e.svc.Get(e.w.Ctx, models.SideClient, c.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, []models.AuditAction{models.AuditDelete, models.AuditUpdate, models.AuditCreate},
		e.auditActions(t, models.SideClient, c.ID))
}

func TestGetDetail(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	e.approve(t, models.SideClient, cc.ID)
	_, err := e.svc.Issue(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		_, err = e.svc.LatestPDF(e.w.Ctx, models.SideClient, cc.ID)
		require.NoError(t, err)
	}

	got, err := e.svc.Get(e.w.Ctx, models.SideClient, cc.ID)
	require.NoError(t, err)
	assert.IsType(t, &models.ClientContract{}, got.Contract)
	assert.Len(t, got.Prints, 2)
	assert.Len(t, got.Audit, 10)
	assert.Equal(t, models.AuditView, got.Audit[0].Action)
}

func TestExtend(t *testing.T) {
	e := newEnv(t)
	cc := e.dispatch()
	sc := e.staffContract()
	e.approve(t, models.SideClient, cc.ID)
	e.approve(t, models.SideStaff, sc.ID)
	e.w.Assign(cc.ID, sc.ID)

	out, err := e.svc.Extend(e.w.Ctx, models.SideClient, cc.ID, ExtendInput{
		StartDate:    "2025-10-01",
		EndDate:      "2025-12-31",
		IncludeStaff: true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Client)
	assert.Equal(t, models.StatusDraft, out.Client.Status)
	assert.Nil(t, out.Client.Number)
	assert.Equal(t, d(2025, 10, 1), out.Client.StartDate)
	require.NotNil(t, out.Client.Haken)
	assert.Equal(t, *cc.Haken.CommanderID, *out.Client.Haken.CommanderID)

	require.Len(t, out.Staff, 1)
	assert.Equal(t, sc.StaffID, out.Staff[0].StaffID)

	var as []models.Assignment
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		var err error
		as, err = tx.AssignmentsByClient(ctx, out.Client.ID)
		return err
	})
	assert.Empty(t, as)

	_, err = e.svc.Extend(e.w.Ctx, models.SideClient, cc.ID, ExtendInput{StartDate: "2025-10-01", EndDate: "2025-09-01"})
	assert.True(t, apperr.Is(err, apperr.KindValidationFailed))
}
