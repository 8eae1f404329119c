package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/staffcore/internal/session"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type SessionHandler struct {
	Errors
	sessions *session.Store
	tenants  *tenant.Service
}

func NewSessionHandler(sessions *session.Store, tenants *tenant.Service, errs Errors) *SessionHandler {
	return &SessionHandler{Errors: errs, sessions: sessions, tenants: tenants}
}

// SwitchTenant takes tenant_id or corporate_number.
func (h *SessionHandler) SwitchTenant(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	actor := tenant.ActorFromContext(r.Context())

	var id = p["tenant_id"]
	if id == "" && p["corporate_number"] != "" {
		t, err := h.tenants.GetByCorporateNumber(r.Context(), p["corporate_number"])
		if err != nil {
			h.write(w, r, err)
			return
		}
		id = t.ID.String()
	}
	tenantID, err := paramID(map[string]string{"tenant_id": id}, "tenant_id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	if err := h.sessions.SwitchTenant(r.Context(), actor, tenantID); err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tenant_id": tenantID.String()})
}

func (h *SessionHandler) ClearTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ClearTenant(r.Context(), tenant.ActorFromContext(r.Context())); err != nil {
		h.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
