package handlers

import (
	"net/http"
	"time"

	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

type AuditHandler struct {
	Errors
	sink *audit.Sink
}

func NewAuditHandler(sink *audit.Sink, errs Errors) *AuditHandler {
	return &AuditHandler{Errors: errs, sink: sink}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := store.AuditQuery{
		Action:    models.AuditAction(qs.Get("action")),
		ModelName: qs.Get("model_name"),
		ObjectID:  qs.Get("object_id"),
		Repr:      qs.Get("q"),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}

	if s := qs.Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.StartDate = &t
		}
	}
	if s := qs.Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.EndDate = &t
		}
	}

	logs, err := h.sink.Recent(r.Context(), q)
	if err != nil {
		h.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs, "count": len(logs)})
}
