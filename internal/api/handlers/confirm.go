package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/confirm"
)

// ConfirmHandler is the counterparty surface: connected client contacts
// and staff confirm what was issued to them.
type ConfirmHandler struct {
	Errors
	gw *confirm.Gateway
}

func NewConfirmHandler(gw *confirm.Gateway, errs Errors) *ConfirmHandler {
	return &ConfirmHandler{Errors: errs, gw: gw}
}

func (h *ConfirmHandler) ListClient(w http.ResponseWriter, r *http.Request) {
	items, err := h.gw.ListClientConfirmable(r.Context())
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": items, "count": len(items)})
}

func (h *ConfirmHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	items, err := h.gw.ListStaffConfirmable(r.Context())
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": items, "count": len(items)})
}

func (h *ConfirmHandler) flipParams(r *http.Request) (uuid.UUID, confirm.Action, error) {
	p, err := params(r)
	if err != nil {
		return uuid.Nil, "", err
	}
	id, err := paramID(p, "contract_id")
	if err != nil {
		return uuid.Nil, "", err
	}
	action, err := confirm.ParseAction(p["action"])
	return id, action, err
}

func (h *ConfirmHandler) FlipClient(w http.ResponseWriter, r *http.Request) {
	id, action, err := h.flipParams(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := h.gw.ClientFlip(r.Context(), id, action)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// FlipStaff redirects to the consent page while agreements are pending.
func (h *ConfirmHandler) FlipStaff(w http.ResponseWriter, r *http.Request) {
	id, action, err := h.flipParams(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := h.gw.StaffFlip(r.Context(), id, action)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConfirmHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.gw.PendingAgreements(r.Context())
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agreements": pending, "count": len(pending)})
}

type consentRequest struct {
	ContractID   uuid.UUID   `json:"contract_id"`
	AgreementIDs []uuid.UUID `json:"agreement_ids"`
}

// Consent accepts agreements and confirms the contract atomically.
func (h *ConfirmHandler) Consent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decode(r, &req); err != nil {
			h.write(w, r, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.write(w, r, badRequest("body", "invalid form"))
			return
		}
		var err error
		if req.ContractID, err = uuid.Parse(r.PostForm.Get("contract_id")); err != nil {
			h.write(w, r, badRequest("contract_id", "must be a UUID"))
			return
		}
		for _, v := range r.PostForm["agreement_ids"] {
			id, err := uuid.Parse(v)
			if err != nil {
				h.write(w, r, badRequest("agreement_ids", "must be UUIDs"))
				return
			}
			req.AgreementIDs = append(req.AgreementIDs, id)
		}
	}
	if req.ContractID == uuid.Nil {
		h.write(w, r, badRequest("contract_id", "required"))
		return
	}
	c, err := h.gw.Consent(r.Context(), req.ContractID, req.AgreementIDs)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
