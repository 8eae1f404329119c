package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

// RebuildQueue schedules a teishokubi rebuild off the request path.
type RebuildQueue interface {
	EnqueueTeishokubiRebuild(ctx context.Context, tenantID uuid.UUID) error
}

type AssignmentHandler struct {
	Errors
	svc        *assignment.Service
	teishokubi *teishokubi.Service
	queue      RebuildQueue
}

// NewAssignmentHandler wires the assignment graph endpoints. With a nil
// queue a rebuild runs inline.
func NewAssignmentHandler(svc *assignment.Service, ts *teishokubi.Service, q RebuildQueue, errs Errors) *AssignmentHandler {
	return &AssignmentHandler{Errors: errs, svc: svc, teishokubi: ts, queue: q}
}

func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		h.write(w, r, err)
		return
	}
	clientID, err := paramID(p, "client_contract_id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	staffID, err := paramID(p, "staff_contract_id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	a, err := h.svc.Assign(r.Context(), clientID, staffID)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AssignmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.write(w, r, err)
		return
	}
	if err := h.svc.Unassign(r.Context(), id); err != nil {
		h.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AssignmentHandler) Teishokubi(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.teishokubi.List(r.Context(), store.TeishokubiFilter{
		StaffEmail: strings.TrimSpace(q.Get("staff_email")),
		Query:      strings.TrimSpace(q.Get("q")),
		Limit:      queryInt(r, "limit", 200),
	})
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teishokubi": rows, "count": len(rows)})
}

// Rebuild recomputes the tenant's conflict dates from scratch.
func (h *AssignmentHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.IDFromContext(r.Context())
	if h.queue != nil {
		if err := h.queue.EnqueueTeishokubiRebuild(r.Context(), tenantID); err != nil {
			h.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	n, err := h.teishokubi.RebuildTenant(r.Context())
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "rebuilt", "rows": n})
}
