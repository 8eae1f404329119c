package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/contract"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

// ContractHandler serves the operator surface of one contract side.
type ContractHandler struct {
	Errors
	side        models.Side
	svc         *contract.Service
	assignments *assignment.Service
}

func NewContractHandler(side models.Side, svc *contract.Service, assignments *assignment.Service, errs Errors) *ContractHandler {
	return &ContractHandler{Errors: errs, side: side, svc: svc, assignments: assignments}
}

func (h *ContractHandler) counterpartyParam() string {
	if h.side == models.SideStaff {
		return "staff_id"
	}
	return "client_id"
}

func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ContractFilter{
		TypeCode: q.Get("contract_type"),
		Query:    strings.TrimSpace(q.Get("q")),
		Limit:    queryInt(r, "limit", 100),
	}
	if v := q.Get(h.counterpartyParam()); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			h.write(w, r, badRequest(h.counterpartyParam(), "must be a UUID"))
			return
		}
		f.CounterpartyID = id
	}
	if v := q.Get("status"); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			h.write(w, r, badRequest("status", err.Error()))
			return
		}
		f.Status = st
	}

	var (
		out any
		n   int
		err error
	)
	if h.side == models.SideStaff {
		var list []models.StaffContract
		list, err = h.svc.ListStaff(r.Context(), f)
		out, n = list, len(list)
	} else {
		var list []models.ClientContract
		list, err = h.svc.ListClient(r.Context(), f)
		out, n = list, len(list)
	}
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": out, "count": n})
}

func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	d, err := h.svc.Get(r.Context(), h.side, id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	var (
		out any
		err error
	)
	if h.side == models.SideStaff {
		var in contract.StaffInput
		if err = decode(r, &in); err == nil {
			out, err = h.svc.CreateStaff(r.Context(), in)
		}
	} else {
		var in contract.ClientInput
		if err = decode(r, &in); err == nil {
			out, err = h.svc.CreateClient(r.Context(), in)
		}
	}
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *ContractHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	var out any
	if h.side == models.SideStaff {
		var in contract.StaffInput
		if err = decode(r, &in); err == nil {
			out, err = h.svc.UpdateStaff(r.Context(), id, in)
		}
	} else {
		var in contract.ClientInput
		if err = decode(r, &in); err == nil {
			out, err = h.svc.UpdateClient(r.Context(), id, in)
		}
	}
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ContractHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), h.side, id); err != nil {
		h.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// step runs one state-machine operation and replies with the contract.
func (h *ContractHandler) step(w http.ResponseWriter, r *http.Request, op func(models.Side, uuid.UUID) (any, error)) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	c, err := op(h.side, id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ContractHandler) Apply(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, func(side models.Side, id uuid.UUID) (any, error) {
		return h.svc.Apply(r.Context(), side, id)
	})
}

// Approve takes is_approved=true|false and approves or reverts.
func (h *ContractHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	var approved bool
	switch strings.ToLower(strings.TrimSpace(p["is_approved"])) {
	case "true", "1", "on":
		approved = true
	case "false", "0", "off":
	default:
		h.write(w, r, badRequest("is_approved", "must be true or false"))
		return
	}
	h.step(w, r, func(side models.Side, id uuid.UUID) (any, error) {
		return h.svc.SetApproved(r.Context(), side, id, approved)
	})
}

func (h *ContractHandler) Issue(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	prints, err := h.svc.Issue(r.Context(), h.side, id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prints": prints})
}

// Confirm is the operator flip; body action=confirm|unconfirm.
func (h *ContractHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	action := p["action"]
	if action == "" {
		action = "confirm"
	}
	switch action {
	case "confirm":
		h.step(w, r, func(side models.Side, id uuid.UUID) (any, error) {
			return h.svc.Confirm(r.Context(), side, id)
		})
	case "unconfirm":
		h.step(w, r, func(side models.Side, id uuid.UUID) (any, error) {
			return h.svc.Unconfirm(r.Context(), side, id)
		})
	default:
		h.write(w, r, badRequest("action", "must be confirm or unconfirm"))
	}
}

func (h *ContractHandler) issuePrint(w http.ResponseWriter, r *http.Request, issue func(uuid.UUID) (*models.Print, error)) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	p, err := issue(id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ContractHandler) IssueQuotation(w http.ResponseWriter, r *http.Request) {
	h.issuePrint(w, r, func(id uuid.UUID) (*models.Print, error) {
		return h.svc.IssueQuotation(r.Context(), id)
	})
}

func (h *ContractHandler) IssueClashDay(w http.ResponseWriter, r *http.Request) {
	h.issuePrint(w, r, func(id uuid.UUID) (*models.Print, error) {
		return h.svc.IssueClashDayNotification(r.Context(), id)
	})
}

func (h *ContractHandler) IssueDispatchLedger(w http.ResponseWriter, r *http.Request) {
	h.issuePrint(w, r, func(id uuid.UUID) (*models.Print, error) {
		return h.svc.IssueDispatchLedger(r.Context(), id)
	})
}

// EmploymentConditions streams the draft statement of one assignment.
func (h *ContractHandler) EmploymentConditions(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "assignmentID")
	if err != nil {
		h.write(w, r, err)
		return
	}
	art, err := h.svc.EmploymentConditions(r.Context(), id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writePDF(w, art.Filename, art.Bytes)
}

func (h *ContractHandler) PDF(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	f, err := h.svc.LatestPDF(r.Context(), h.side, id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writePDF(w, f.Print.Filename, f.Bytes)
}

func (h *ContractHandler) DraftPDF(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	art, err := h.svc.DraftPDF(r.Context(), h.side, id)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writePDF(w, art.Filename, art.Bytes)
}

func (h *ContractHandler) PrintFile(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	printID, err := urlID(r, "printID")
	if err != nil {
		h.write(w, r, err)
		return
	}
	f, err := h.svc.PrintFile(r.Context(), h.side, id, printID)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writePDF(w, f.Print.Filename, f.Bytes)
}

func (h *ContractHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	var in contract.ExtendInput
	if err := decode(r, &in); err != nil {
		h.write(w, r, err)
		return
	}
	out, err := h.svc.Extend(r.Context(), h.side, id, in)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *ContractHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	var views []assignment.View
	if h.side == models.SideStaff {
		views, err = h.assignments.ListByStaff(r.Context(), id)
	} else {
		views, err = h.assignments.ListByClient(r.Context(), id)
	}
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": views, "count": len(views)})
}
