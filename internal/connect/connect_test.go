package connect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/fixture"
	"github.com/nikhilbhutani/staffcore/internal/mail"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/store/memory"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	sent []mail.Message
	err  error
}

func (o *outbox) Send(ctx context.Context, m mail.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, m)
	return nil
}

type env struct {
	w     *fixture.World
	svc   *Service
	mail  *outbox
	staff *models.Staff
}

func newEnv(t *testing.T) *env {
	st := memory.New()
	w := fixture.NewWorld(t, st, "T1", "5835678256246")
	box := &outbox{}
	return &env{
		w:     w,
		svc:   NewService(st, audit.NewSink(st), box, "https://app.example.com/connect/"),
		mail:  box,
		staff: w.Staff("Taro", "Taro@Example.com"),
	}
}

func (e *env) as(kind tenant.ActorKind, email string) context.Context {
	return e.w.As(&tenant.Actor{ID: uuid.New(), Email: email, Kind: kind, HomeTenantID: e.w.Tenant.ID})
}

func TestRequestStaffSendsInvitation(t *testing.T) {
	e := newEnv(t)
	conn, err := e.svc.RequestStaff(e.w.Ctx, e.staff.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectPending, conn.Status)
	assert.Equal(t, "taro@example.com", conn.Email)
	assert.Equal(t, "5835678256246", conn.CorporateNumber)

	require.Len(t, e.mail.sent, 1)
	assert.Equal(t, "taro@example.com", e.mail.sent[0].To)
	assert.Contains(t, e.mail.sent[0].Body, "https://app.example.com/connect/")

	_, err = e.svc.RequestStaff(e.w.Ctx, e.staff.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidationFailed))
}

func TestRequestSurvivesMailFailure(t *testing.T) {
	e := newEnv(t)
	e.mail.err = errors.New("smtp down")
	_, err := e.svc.RequestStaff(e.w.Ctx, e.staff.ID)
	require.NoError(t, err)

	list, err := e.svc.ListStaff(e.w.Ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRequestValidation(t *testing.T) {
	e := newEnv(t)
	noMail := e.w.Staff("Hanako", "")
	_, err := e.svc.RequestStaff(e.w.Ctx, noMail.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidationFailed))

	_, err = e.svc.RequestStaff(e.w.Ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = e.svc.RequestStaff(e.as(tenant.KindStaff, "taro@example.com"), e.staff.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))
}

func TestApproveStaffCreatesDerivedRequests(t *testing.T) {
	e := newEnv(t)
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		return tx.SaveStaffSatellites(ctx, e.staff.ID, &models.StaffSatellites{
			Profile: &models.ProfileData{NameLast: "Yamada", NameFirst: "Taro", Address: "Tokyo"},
			Bank:    &models.BankData{BankCode: "0001", AccountNumber: "1234567"},
		})
	})
	conn, err := e.svc.RequestStaff(e.w.Ctx, e.staff.ID)
	require.NoError(t, err)

	profile := &models.ExternalProfile{
		Email: "taro@example.com",
		StaffSatellites: models.StaffSatellites{
			Profile:  &models.ProfileData{NameLast: " Yamada ", NameFirst: "Taro", Address: "Osaka"},
			Bank:     &models.BankData{BankCode: "0001", AccountNumber: "1234567"},
			Mynumber: &models.MynumberData{Number: "123456789012"},
		},
	}

	_, _, err = e.svc.ApproveStaff(e.as(tenant.KindStaff, "other@example.com"), conn.ID, profile)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	staffCtx := e.as(tenant.KindStaff, "TARO@example.com")
	approved, reqs, err := e.svc.ApproveStaff(staffCtx, conn.ID, profile)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedAt)

	kinds := map[models.RequestKind]string{}
	for _, r := range reqs {
		kinds[r.Kind] = string(r.Payload)
	}
	assert.Len(t, kinds, 2)
	assert.JSONEq(t, `{"address":"Osaka"}`, kinds[models.RequestProfile])
	assert.JSONEq(t, `{"number":"123456789012"}`, kinds[models.RequestMynumber])

	stored, err := e.svc.DerivedRequests(e.w.Ctx, conn.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, _, err = e.svc.ApproveStaff(staffCtx, conn.ID, profile)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition))
}

func TestUnapproveAndDisconnectCascade(t *testing.T) {
	e := newEnv(t)
	agreements := agreement.NewService(e.w.Store, audit.NewSink(e.w.Store))
	a, err := agreements.Create(e.w.Ctx, agreement.Input{Name: "Rules", Text: "v1", IsActive: true})
	require.NoError(t, err)

	conn, err := e.svc.RequestStaff(e.w.Ctx, e.staff.ID)
	require.NoError(t, err)
	staffCtx := e.as(tenant.KindStaff, "taro@example.com")
	profile := &models.ExternalProfile{StaffSatellites: models.StaffSatellites{Mynumber: &models.MynumberData{Number: "1"}}}
	_, _, err = e.svc.ApproveStaff(staffCtx, conn.ID, profile)
	require.NoError(t, err)

	accepted := func() int {
		var n int
		e.w.Tx(func(ctx context.Context, tx store.Tx) error {
			acc, err := tx.Acceptances(ctx, "taro@example.com")
			n = len(acc)
			return err
		})
		return n
	}
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		return agreement.Accept(ctx, tx, "taro@example.com", []uuid.UUID{a.ID}, time.Now())
	})
	require.Equal(t, 1, accepted())

	back, err := e.svc.UnapproveStaff(staffCtx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectPending, back.Status)
	assert.Nil(t, back.ApprovedAt)
	assert.Zero(t, accepted())
	reqs, err := e.svc.DerivedRequests(e.w.Ctx, conn.ID)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	_, err = e.svc.UnapproveStaff(staffCtx, conn.ID)
	assert.True(t, apperr.Is(err, apperr.KindIllegalTransition))

	_, _, err = e.svc.ApproveStaff(staffCtx, conn.ID, profile)
	require.NoError(t, err)
	require.NoError(t, e.svc.DisconnectStaff(e.w.Ctx, conn.ID))
	_, err = e.svc.DerivedRequests(e.w.Ctx, conn.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(e.svc.DisconnectStaff(staffCtx, conn.ID), apperr.KindPermissionDenied))
}

func TestClientConnection(t *testing.T) {
	e := newEnv(t)
	client := e.w.Client("C", "1234567890123")
	user := e.w.ClientUser(client.ID, "Suzuki")
	e.w.Tx(func(ctx context.Context, tx store.Tx) error {
		user.Email = "suzuki@client.example.com"
		return tx.SaveClientUser(ctx, user)
	})

	conn, err := e.svc.RequestClient(e.w.Ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, client.ID, conn.ClientID)
	require.Len(t, e.mail.sent, 1)

	_, err = e.svc.ApproveClient(e.w.Ctx, conn.ID)
	assert.True(t, apperr.Is(err, apperr.KindPermissionDenied))

	clientCtx := e.as(tenant.KindClient, "suzuki@client.example.com")
	approved, err := e.svc.ApproveClient(clientCtx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectApproved, approved.Status)

	mine, err := e.svc.ListClient(clientCtx)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	others, err := e.svc.ListClient(e.as(tenant.KindClient, "x@client.example.com"))
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = e.svc.UnapproveClient(e.w.Ctx, conn.ID)
	require.NoError(t, err)
	require.NoError(t, e.svc.DisconnectClient(e.w.Ctx, conn.ID))
	all, err := e.svc.ListClient(e.w.Ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDiff(t *testing.T) {
	ours := &models.StaffSatellites{
		Profile: &models.ProfileData{NameLast: "Yamada", Phone: "03"},
		Bank:    &models.BankData{BankCode: "0001"},
	}
	theirs := &models.StaffSatellites{
		Profile:    &models.ProfileData{NameLast: "Yamada ", Phone: "03"},
		Disability: &models.DisabilityData{},
	}
	reqs, err := Diff(ours, theirs)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, models.RequestBank, reqs[0].Kind)
	assert.JSONEq(t, `{"bank_code":""}`, string(reqs[0].Payload))

	reqs, err = Diff(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}
