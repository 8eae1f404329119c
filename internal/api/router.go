package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/api/handlers"
	"github.com/nikhilbhutani/staffcore/internal/api/middleware"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/auth"
	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/nikhilbhutani/staffcore/internal/confirm"
	"github.com/nikhilbhutani/staffcore/internal/connect"
	"github.com/nikhilbhutani/staffcore/internal/contract"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/session"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

// Deps are the services the router exposes. Sessions, RateCounter,
// Rebuilds and every Ready entry are optional.
type Deps struct {
	Tenants     *tenant.Service
	Contracts   *contract.Service
	Assignments *assignment.Service
	Teishokubi  *teishokubi.Service
	Gateway     *confirm.Gateway
	Agreements  *agreement.Service
	Connect     *connect.Service
	Audit       *audit.Sink
	Sessions    *session.Store
	RateCounter middleware.Counter
	Rebuilds    handlers.RebuildQueue
	Ready       map[string]handlers.Pinger
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	jwt  *auth.JWTMiddleware
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	var sessions auth.OverrideSource
	if deps.Sessions != nil {
		sessions = deps.Sessions
	}
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		jwt:  auth.NewJWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer, deps.Tenants, sessions),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	d := rt.deps
	errs := handlers.Errors{ConsentURL: rt.cfg.Server.ConsentURL}

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(d.RateCounter, rt.cfg.Server.RateLimit)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(d.Ready)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Group(func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)
		r.Use(middleware.Capture)

		operator := auth.RequireKind(tenant.KindOperator)

		assignH := handlers.NewAssignmentHandler(d.Assignments, d.Teishokubi, d.Rebuilds, errs)
		confirmH := handlers.NewConfirmHandler(d.Gateway, errs)

		r.Route("/contract", func(r chi.Router) {
			r.With(auth.RequireKind(tenant.KindClient)).Route("/confirm-client", func(r chi.Router) {
				r.Get("/", confirmH.ListClient)
				r.Post("/", confirmH.FlipClient)
			})
			r.With(auth.RequireKind(tenant.KindStaff)).Route("/confirm-staff", func(r chi.Router) {
				r.Get("/", confirmH.ListStaff)
				r.Post("/", confirmH.FlipStaff)
				r.Get("/consent/", confirmH.Pending)
				r.Post("/consent/", confirmH.Consent)
			})

			r.Group(func(r chi.Router) {
				r.Use(operator)
				for _, side := range []models.Side{models.SideClient, models.SideStaff} {
					h := handlers.NewContractHandler(side, d.Contracts, d.Assignments, errs)
					r.Route("/"+string(side), func(r chi.Router) {
						r.Get("/", h.List)
						r.Post("/create/", h.Create)
						r.Get("/{id}/", h.Get)
						r.Put("/{id}/", h.Update)
						r.Delete("/{id}/", h.Delete)
						r.Post("/{id}/apply/", h.Apply)
						r.Post("/{id}/approve/", h.Approve)
						r.Post("/{id}/issue/", h.Issue)
						r.Post("/{id}/confirm/", h.Confirm)
						r.Post("/{id}/extend/", h.Extend)
						r.Get("/{id}/pdf/", h.PDF)
						r.Get("/{id}/draft-pdf/", h.DraftPDF)
						r.Get("/{id}/prints/{printID}/", h.PrintFile)
						r.With(auth.RequirePermission(tenant.ContractPerm("view", side))).
							Get("/{id}/assignments/", h.Assignments)
						if side == models.SideClient {
							r.Post("/{id}/issue-quotation/", h.IssueQuotation)
							r.Post("/{id}/issue-clash-day/", h.IssueClashDay)
							r.Post("/{id}/issue-dispatch-ledger/", h.IssueDispatchLedger)
							r.Get("/assignments/{assignmentID}/employment-conditions/", h.EmploymentConditions)
						}
					})
				}

				r.Post("/assignments/", assignH.Create)
				r.Delete("/assignments/{id}/", assignH.Delete)
				r.With(auth.RequirePermission(tenant.ContractPerm("view", models.SideStaff))).
					Get("/teishokubi/", assignH.Teishokubi)
				r.With(auth.RequirePermission(tenant.PermRebuild)).
					Post("/teishokubi/rebuild/", assignH.Rebuild)
			})
		})

		if d.Sessions != nil {
			sessionH := handlers.NewSessionHandler(d.Sessions, d.Tenants, errs)
			r.Route("/session/tenant", func(r chi.Router) {
				r.Use(operator)
				r.Post("/", sessionH.SwitchTenant)
				r.Delete("/", sessionH.ClearTenant)
			})
		}

		auditH := handlers.NewAuditHandler(d.Audit, errs)
		r.With(operator, auth.RequirePermission(tenant.PermViewAudit)).Get("/audit/", auditH.List)

		agreementH := handlers.NewAgreementHandler(d.Agreements, errs)
		r.With(operator).Route("/master/staff-agreements", func(r chi.Router) {
			r.Get("/", agreementH.List)
			r.Post("/", agreementH.Create)
			r.Get("/{id}/", agreementH.Get)
			r.Put("/{id}/", agreementH.Update)
			r.Delete("/{id}/", agreementH.Delete)
		})

		connectH := handlers.NewConnectHandler(d.Connect, errs)
		r.Route("/connect", func(r chi.Router) {
			r.Get("/staff/", connectH.ListStaff)
			r.Post("/staff/", connectH.RequestStaff)
			r.Post("/staff/{id}/approve/", connectH.ApproveStaff)
			r.Post("/staff/{id}/unapprove/", connectH.UnapproveStaff)
			r.Delete("/staff/{id}/", connectH.DisconnectStaff)
			r.Get("/staff/{id}/requests/", connectH.StaffRequests)

			r.Get("/client/", connectH.ListClient)
			r.Post("/client/", connectH.RequestClient)
			r.Post("/client/{id}/approve/", connectH.ApproveClient)
			r.Post("/client/{id}/unapprove/", connectH.UnapproveClient)
			r.Delete("/client/{id}/", connectH.DisconnectClient)
		})
	})

	return r
}
