package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/staffcore/internal/connect"
	"github.com/nikhilbhutani/staffcore/internal/models"
)

type ConnectHandler struct {
	Errors
	svc *connect.Service
}

func NewConnectHandler(svc *connect.Service, errs Errors) *ConnectHandler {
	return &ConnectHandler{Errors: errs, svc: svc}
}

func (h *ConnectHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListStaff(r.Context())
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": list, "count": len(list)})
}

func (h *ConnectHandler) ListClient(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListClient(r.Context())
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": list, "count": len(list)})
}

func (h *ConnectHandler) RequestStaff(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	staffID, err := paramID(p, "staff_id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := h.svc.RequestStaff(r.Context(), staffID)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ConnectHandler) RequestClient(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	userID, err := paramID(p, "client_user_id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := h.svc.RequestClient(r.Context(), userID)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ApproveStaff takes the external account's self-reported profile as the
// optional JSON body.
func (h *ConnectHandler) ApproveStaff(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	var profile *models.ExternalProfile
	if r.ContentLength > 0 {
		profile = &models.ExternalProfile{}
		if err := decode(r, profile); err != nil {
			h.write(w, r, err)
			return
		}
	}
	c, requests, err := h.svc.ApproveStaff(r.Context(), id, profile)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connection": c, "requests": requests})
}

func (h *ConnectHandler) UnapproveStaff(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := h.svc.UnapproveStaff(r.Context(), id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConnectHandler) DisconnectStaff(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	if err := h.svc.DisconnectStaff(r.Context(), id); err != nil {
		h.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectHandler) StaffRequests(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	reqs, err := h.svc.DerivedRequests(r.Context(), id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs, "count": len(reqs)})
}

func (h *ConnectHandler) ApproveClient(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := h.svc.ApproveClient(r.Context(), id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConnectHandler) UnapproveClient(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := h.svc.UnapproveClient(r.Context(), id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConnectHandler) DisconnectClient(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	if err := h.svc.DisconnectClient(r.Context(), id); err != nil {
		h.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
