package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/staffcore/internal/agreement"
)

type AgreementHandler struct {
	Errors
	svc *agreement.Service
}

func NewAgreementHandler(svc *agreement.Service, errs Errors) *AgreementHandler {
	return &AgreementHandler{Errors: errs, svc: svc}
}

func (h *AgreementHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agreements": list, "count": len(list)})
}

func (h *AgreementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AgreementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in agreement.Input
	if err := decode(r, &in); err != nil {
		h.write(w, r, err)
		return
	}
	a, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AgreementHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	var in agreement.Input
	if err := decode(r, &in); err != nil {
		h.write(w, r, err)
		return
	}
	a, cleared, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agreement": a, "cleared_acceptances": cleared})
}

func (h *AgreementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
