package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
)

// retryAfterSeconds is advertised when contract numbering is saturated.
const retryAfterSeconds = "1"

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Errors renders domain errors. ConsentURL is where an unconsented staff
// confirmation is sent.
type Errors struct {
	ConsentURL string
}

func (e Errors) write(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := apperr.Status(ae.Kind)
	body := map[string]any{"error": ae.Message, "kind": ae.Kind}
	switch ae.Kind {
	case apperr.KindValidationFailed:
		body["fields"] = ae.Fields
	case apperr.KindNumberingExhausted:
		w.Header().Set("Retry-After", retryAfterSeconds)
	case apperr.KindAgreementRequired:
		w.Header().Set("Location", e.ConsentURL)
		body["consent_url"] = e.ConsentURL
		if pending := agreement.PendingOf(err); pending != nil {
			body["pending_agreements"] = pending
		}
	case apperr.KindRenderFailed:
		slog.Error("render failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func badRequest(field, msg string) error {
	return apperr.Validation(map[string]string{field: msg})
}

func urlID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.NotFound(name)
	}
	return id, nil
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// params reads a flat request body, JSON or form-encoded, into strings.
func params(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, badRequest("body", "invalid JSON: "+err.Error())
		}
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				out[k] = v
			case nil:
			default:
				out[k] = fmt.Sprint(v)
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, badRequest("body", "invalid form: "+err.Error())
	}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}

func paramID(p map[string]string, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(p[name]))
	if err != nil {
		return uuid.Nil, badRequest(name, "must be a UUID")
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && n > 0 {
		return n
	}
	return def
}

func writePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
