package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/api/handlers"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/auth"
	"github.com/nikhilbhutani/staffcore/internal/cache"
	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/confirm"
	"github.com/nikhilbhutani/staffcore/internal/connect"
	"github.com/nikhilbhutani/staffcore/internal/contract"
	"github.com/nikhilbhutani/staffcore/internal/fixture"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/numbering"
	"github.com/nikhilbhutani/staffcore/internal/render"
	"github.com/nikhilbhutani/staffcore/internal/session"
	"github.com/nikhilbhutani/staffcore/internal/storage"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/store/memory"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

const (
	testSecret = "router-test-secret"
	consentURL = "/contract/confirm-staff/consent/"
)

type server struct {
	h          http.Handler
	cfg        *config.Config
	mem        *memory.Store
	t1, t2     *fixture.World
	agreements *agreement.Service
}

func newServer(t *testing.T) *server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	c := cache.NewCache(rdb)

	cfg := &config.Config{
		Server:  config.ServerConfig{RateLimit: 1000, ConsentURL: consentURL},
		Auth:    config.AuthConfig{JWTSecret: testSecret, Issuer: "staffcore", TokenTTL: time.Hour},
		Session: config.SessionConfig{TTL: time.Hour, Prefix: "test:session:"},
	}

	st := memory.New()
	t1 := fixture.NewWorld(t, st, "T1", "5835678256246")
	t2 := fixture.NewWorld(t, st, "T2", "7123456789012")

	r, err := render.New("", "DRAFT")
	require.NoError(t, err)
	tokyo := time.FixedZone("Asia/Tokyo", 9*60*60)
	sink := audit.NewSink(st)
	contracts := contract.NewService(st, storage.NewMemoryStorage(), r, numbering.New(tokyo), sink, tokyo).
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, tokyo) })
	tenants := tenant.NewService(st)
	agreements := agreement.NewService(st, sink)

	deps := Deps{
		Tenants:     tenants,
		Contracts:   contracts,
		Assignments: assignment.NewService(st, sink),
		Teishokubi:  teishokubi.NewService(st),
		Gateway:     confirm.NewGateway(st, contracts),
		Agreements:  agreements,
		Connect:     connect.NewService(st, sink, nil, ""),
		Audit:       sink,
		Sessions:    session.NewStore(c, cfg.Session, tenants),
		RateCounter: c,
		Ready:       map[string]handlers.Pinger{"redis": c, "database": st},
	}
	return &server{h: NewRouter(cfg, deps).Setup(), cfg: cfg, mem: st, t1: t1, t2: t2, agreements: agreements}
}

func (s *server) token(t *testing.T, a *tenant.Actor) string {
	tok, err := auth.Mint(testSecret, "staffcore", time.Hour, a)
	require.NoError(t, err)
	return tok
}

type reply struct {
	*httptest.ResponseRecorder
}

func (r reply) json(t *testing.T) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), &out), r.Body.String())
	return out
}

func (s *server) do(t *testing.T, token, method, path string, body any) reply {
	t.Helper()
	var (
		rd          *bytes.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case url.Values:
		rd = bytes.NewReader([]byte(b.Encode()))
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req := httptest.NewRequest(method, path, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return reply{rec}
}

func operator(w *fixture.World, privileged bool, sid string) *tenant.Actor {
	return &tenant.Actor{
		ID:           uuid.New(),
		Name:         "op",
		Email:        "op@" + w.Tenant.Slug + ".example.com",
		Kind:         tenant.KindOperator,
		Permissions:  []string{"*"},
		Privileged:   privileged,
		SessionID:    sid,
		HomeTenantID: w.Tenant.ID,
	}
}

func dispatchDraft(w *fixture.World) *models.ClientContract {
	client := w.Client("C", "1234567890123")
	unit := w.Organization(client.ID, "HQ", nil)
	p := w.Pattern(models.SideClient, models.ContractTypeDispatch, "P-dispatch")
	return w.DispatchContract(client, p, unit, fixture.Date(2025, 4, 1), fixture.DatePtr(2026, 3, 31))
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, "", http.MethodGet, "/healthz", nil).Code)

	rep := s.do(t, "", http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, "ok", rep.json(t)["status"])
}

func TestUnauthenticated(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, "", http.MethodGet, "/contract/client/", nil).Code)
}

func TestDispatchLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	k := dispatchDraft(s.t1)
	tok := s.token(t, operator(s.t1, false, ""))
	base := "/contract/client/" + k.ID.String()

	rep := s.do(t, tok, http.MethodPost, base+"/approve/", url.Values{"is_approved": {"true"}})
	require.Equal(t, http.StatusBadRequest, rep.Code)
	assert.Equal(t, "illegal_transition", rep.json(t)["kind"])

	require.Equal(t, http.StatusOK, s.do(t, tok, http.MethodPost, base+"/apply/", nil).Code)
	rep = s.do(t, tok, http.MethodPost, base+"/approve/", url.Values{"is_approved": {"true"}})
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, "T12025D000001", rep.json(t)["contract_number"])

	rep = s.do(t, tok, http.MethodGet, base+"/draft-pdf/", nil)
	require.Equal(t, http.StatusOK, rep.Code)
	assert.Equal(t, "application/pdf", rep.Header().Get("Content-Type"))

	rep = s.do(t, tok, http.MethodPost, base+"/issue/", nil)
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Len(t, rep.json(t)["prints"], 2)

	rep = s.do(t, tok, http.MethodGet, base+"/pdf/", nil)
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.True(t, bytes.HasPrefix(rep.Body.Bytes(), []byte("%PDF")))
	assert.Contains(t, rep.Header().Get("Content-Disposition"), "T12025D000001_contract_")

	rep = s.do(t, tok, http.MethodGet, base+"/", nil)
	require.Equal(t, http.StatusOK, rep.Code)
	detail := rep.json(t)
	assert.NotEmpty(t, detail["prints"])
	assert.NotEmpty(t, detail["audit_events"])

	rep = s.do(t, tok, http.MethodPost, base+"/issue-quotation/", nil)
	require.Equal(t, http.StatusCreated, rep.Code, rep.Body.String())
	rep = s.do(t, tok, http.MethodPost, base+"/issue-quotation/", nil)
	assert.Equal(t, http.StatusBadRequest, rep.Code)
	assert.Equal(t, "already_issued", rep.json(t)["kind"])

	rep = s.do(t, tok, http.MethodPost, base+"/issue-dispatch-ledger/", nil)
	require.Equal(t, http.StatusCreated, rep.Code, rep.Body.String())
	assert.Equal(t, "dispatch_ledger", rep.json(t)["print_kind"])

	s.t1.Tx(func(ctx context.Context, tx store.Tx) error {
		return tx.SaveConnectClient(ctx, &models.ConnectClient{
			ClientID: k.ClientID, CorporateNumber: s.t1.Company.CorporateNumber,
			Email: "buyer@c.example.com", Status: models.ConnectApproved,
		})
	})
	buyer := s.token(t, &tenant.Actor{ID: uuid.New(), Email: "buyer@c.example.com", Kind: tenant.KindClient, HomeTenantID: s.t1.Tenant.ID})
	rep = s.do(t, buyer, http.MethodGet, "/contract/confirm-client/", nil)
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, float64(1), rep.json(t)["count"])
	rep = s.do(t, buyer, http.MethodPost, "/contract/confirm-client/", url.Values{
		"contract_id": {k.ID.String()}, "action": {"confirm"},
	})
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, "confirmed", rep.json(t)["status"])

	rep = s.do(t, tok, http.MethodPost, base+"/approve/", url.Values{"is_approved": {"false"}})
	require.Equal(t, http.StatusOK, rep.Code)
	body := rep.json(t)
	assert.Nil(t, body["contract_number"])
	assert.Equal(t, "draft", body["status"])
}

func TestCreateValidationReportsFields(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, operator(s.t1, false, ""))

	rep := s.do(t, tok, http.MethodPost, "/contract/client/create/", map[string]any{"contract_name": "x"})
	require.Equal(t, http.StatusBadRequest, rep.Code)
	body := rep.json(t)
	assert.Equal(t, "validation_failed", body["kind"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "contract_type_code")
	assert.Contains(t, fields, "client_id")
}

func TestPermissionDenied(t *testing.T) {
	s := newServer(t)
	k := dispatchDraft(s.t1)
	viewer := operator(s.t1, false, "")
	viewer.Permissions = []string{tenant.ContractPerm("view", models.SideClient)}
	tok := s.token(t, viewer)

	assert.Equal(t, http.StatusOK, s.do(t, tok, http.MethodGet, "/contract/client/"+k.ID.String()+"/", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, tok, http.MethodPost, "/contract/client/"+k.ID.String()+"/apply/", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, tok, http.MethodGet, "/audit/", nil).Code)

	staff := &tenant.Actor{ID: uuid.New(), Email: "s@example.com", Kind: tenant.KindStaff, HomeTenantID: s.t1.Tenant.ID}
	assert.Equal(t, http.StatusForbidden, s.do(t, s.token(t, staff), http.MethodGet, "/contract/client/", nil).Code)
}

// A privileged operator switched to T2 sees T2 only; switching back
// restores T1. Unprivileged operators cannot switch.
func TestTenantSwitchIsolation(t *testing.T) {
	s := newServer(t)
	k := dispatchDraft(s.t1)
	priv := s.token(t, operator(s.t1, true, "sess-1"))

	count := func(tok string) float64 {
		rep := s.do(t, tok, http.MethodGet, "/contract/client/", nil)
		require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
		return rep.json(t)["count"].(float64)
	}
	assert.Equal(t, float64(1), count(priv))

	rep := s.do(t, priv, http.MethodPost, "/session/tenant/", url.Values{"tenant_id": {s.t2.Tenant.ID.String()}})
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, float64(0), count(priv))
	assert.Equal(t, http.StatusNotFound, s.do(t, priv, http.MethodGet, "/contract/client/"+k.ID.String()+"/", nil).Code)

	require.Equal(t, http.StatusNoContent, s.do(t, priv, http.MethodDelete, "/session/tenant/", nil).Code)
	assert.Equal(t, float64(1), count(priv))

	rep = s.do(t, priv, http.MethodPost, "/session/tenant/", url.Values{"corporate_number": {"7123456789012"}})
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, float64(0), count(priv))

	plain := s.token(t, operator(s.t1, false, "sess-2"))
	rep = s.do(t, plain, http.MethodPost, "/session/tenant/", url.Values{"tenant_id": {s.t2.Tenant.ID.String()}})
	assert.Equal(t, http.StatusForbidden, rep.Code)
	assert.Equal(t, float64(1), count(plain))
}

func TestStaffConfirmRedirectsToConsent(t *testing.T) {
	s := newServer(t)
	w := s.t1
	staff := w.Staff("S", "s@example.com")
	p := w.Pattern(models.SideStaff, models.ContractTypeDispatch, "P-staff")
	sc := w.StaffContract(staff, p, models.EmploymentTypeFixedTermDispatch, fixture.Date(2025, 4, 1), fixture.DatePtr(2026, 3, 31))
	op := s.token(t, operator(w, false, ""))
	base := "/contract/staff/" + sc.ID.String()
	require.Equal(t, http.StatusOK, s.do(t, op, http.MethodPost, base+"/apply/", nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, op, http.MethodPost, base+"/approve/", map[string]any{"is_approved": true}).Code)
	require.Equal(t, http.StatusOK, s.do(t, op, http.MethodPost, base+"/issue/", nil).Code)

	a, err := s.agreements.Create(w.Ctx, agreement.Input{Name: "Rules", Text: "v1", IsActive: true})
	require.NoError(t, err)
	w.Tx(func(ctx context.Context, tx store.Tx) error {
		return tx.SaveConnectStaff(ctx, &models.ConnectStaff{
			CorporateNumber: w.Company.CorporateNumber, Email: "s@example.com", Status: models.ConnectApproved,
		})
	})
	tok := s.token(t, &tenant.Actor{ID: uuid.New(), Email: "S@example.com", Kind: tenant.KindStaff, HomeTenantID: w.Tenant.ID})

	rep := s.do(t, tok, http.MethodGet, "/contract/confirm-staff/", nil)
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, float64(1), rep.json(t)["count"])

	flip := url.Values{"contract_id": {sc.ID.String()}, "action": {"confirm"}}
	rep = s.do(t, tok, http.MethodPost, "/contract/confirm-staff/", flip)
	require.Equal(t, http.StatusFound, rep.Code, rep.Body.String())
	assert.Equal(t, consentURL, rep.Header().Get("Location"))
	assert.Len(t, rep.json(t)["pending_agreements"], 1)

	rep = s.do(t, tok, http.MethodPost, "/contract/confirm-staff/consent/", map[string]any{
		"contract_id": sc.ID, "agreement_ids": []uuid.UUID{a.ID},
	})
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, "confirmed", rep.json(t)["status"])

	// the operator surface stays closed to staff accounts
	assert.Equal(t, http.StatusForbidden, s.do(t, tok, http.MethodGet, base+"/", nil).Code)
}

func TestAssignmentAndTeishokubi(t *testing.T) {
	s := newServer(t)
	w := s.t1
	client := w.Client("X", "1234567890123")
	unit := w.Organization(client.ID, "HQ", nil)
	cp := w.Pattern(models.SideClient, models.ContractTypeDispatch, "P")
	cc := w.DispatchContract(client, cp, unit, fixture.Date(2024, 1, 1), nil)
	sc := w.StaffContract(w.Staff("S1", "s1@example.com"), nil, models.EmploymentTypeFixedTermDispatch, fixture.Date(2024, 4, 1), nil)
	w.ForceClientStatus(cc.ID, models.StatusApproved, "T12024D000001")
	w.ForceStaffStatus(sc.ID, models.StatusApproved, "T12024S000001")
	tok := s.token(t, operator(w, false, ""))

	rep := s.do(t, tok, http.MethodPost, "/contract/assignments/", map[string]string{
		"client_contract_id": cc.ID.String(), "staff_contract_id": sc.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rep.Code, rep.Body.String())
	assignmentID := rep.json(t)["id"].(string)

	rep = s.do(t, tok, http.MethodGet, "/contract/teishokubi/", nil)
	require.Equal(t, http.StatusOK, rep.Code)
	rows := rep.json(t)["teishokubi"].([]any)
	require.Len(t, rows, 1)
	assert.True(t, strings.HasPrefix(rows[0].(map[string]any)["conflict_date"].(string), "2027-03-31"))

	rep = s.do(t, tok, http.MethodGet, "/contract/staff/"+sc.ID.String()+"/assignments/", nil)
	require.Equal(t, http.StatusOK, rep.Code)
	assert.Equal(t, float64(1), rep.json(t)["count"])

	rep = s.do(t, tok, http.MethodPost, "/contract/teishokubi/rebuild/", nil)
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, float64(1), rep.json(t)["rows"])

	require.Equal(t, http.StatusNoContent, s.do(t, tok, http.MethodDelete, "/contract/assignments/"+assignmentID+"/", nil).Code)
	rep = s.do(t, tok, http.MethodGet, "/contract/teishokubi/", nil)
	assert.Equal(t, float64(0), rep.json(t)["count"])
}

func TestEmploymentConditionsOverHTTP(t *testing.T) {
	s := newServer(t)
	w := s.t1
	k := dispatchDraft(w)
	sc := w.StaffContract(w.Staff("S2", "s2@example.com"), nil, models.EmploymentTypeFixedTermDispatch, fixture.Date(2025, 7, 1), nil)
	a := w.Assign(k.ID, sc.ID)
	tok := s.token(t, operator(w, false, ""))

	rep := s.do(t, tok, http.MethodGet, "/contract/client/assignments/"+a.ID.String()+"/employment-conditions/", nil)
	require.Equal(t, http.StatusOK, rep.Code, rep.Body.String())
	assert.Equal(t, "application/pdf", rep.Header().Get("Content-Type"))
	assert.Contains(t, rep.Header().Get("Content-Disposition"), "employment_conditions_")

	rep = s.do(t, tok, http.MethodGet, "/contract/client/assignments/"+uuid.NewString()+"/employment-conditions/", nil)
	assert.Equal(t, http.StatusNotFound, rep.Code)
}

func TestRateLimit(t *testing.T) {
	s := newServer(t)
	s.cfg.Server.RateLimit = 2
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	h := NewRouter(s.cfg, Deps{Tenants: tenant.NewService(memory.New()), RateCounter: cache.NewCache(rdb)}).Setup()

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		codes[i] = rec.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestNumberingExhaustedAdvertisesRetry(t *testing.T) {
	s := newServer(t)
	k := dispatchDraft(s.t1)
	tok := s.token(t, operator(s.t1, false, ""))
	base := "/contract/client/" + k.ID.String()
	require.Equal(t, http.StatusOK, s.do(t, tok, http.MethodPost, base+"/apply/", nil).Code)

	s.mem.LockSequence(s.t1.Tenant.ID, "D", 2025, true)
	rep := s.do(t, tok, http.MethodPost, base+"/approve/", url.Values{"is_approved": {"true"}})
	require.Equal(t, http.StatusServiceUnavailable, rep.Code, rep.Body.String())
	assert.Equal(t, "numbering_exhausted", rep.json(t)["kind"])
	assert.NotEmpty(t, rep.Header().Get("Retry-After"))

	s.mem.LockSequence(s.t1.Tenant.ID, "D", 2025, false)
	rep = s.do(t, tok, http.MethodPost, base+"/approve/", url.Values{"is_approved": {"true"}})
	require.Equal(t, http.StatusOK, rep.Code)
	assert.Equal(t, "T12025D000001", rep.json(t)["contract_number"])
}
