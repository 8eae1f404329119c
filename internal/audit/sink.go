package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

// Event is what callers hand to Record. Actor and tenant come from the
// context.
type Event struct {
	Action     models.AuditAction
	ModelName  string
	ObjectID   string
	ObjectRepr string
	Version    *int
}

type Sink struct {
	store store.Store
}

func NewSink(st store.Store) *Sink {
	return &Sink{store: st}
}

// Record appends e inside the caller's transaction. Missing fields are
// defaulted; a well-formed event is never rejected.
func (s *Sink) Record(ctx context.Context, tx store.AuditRepo, e Event) error {
	ev := models.AuditEvent{
		Action:     e.Action,
		ModelName:  e.ModelName,
		ObjectID:   e.ObjectID,
		ObjectRepr: truncate(e.ObjectRepr, 200),
		Version:    e.Version,
	}
	if ev.Action == "" {
		ev.Action = models.AuditUpdate
	}
	if a := tenant.ActorFromContext(ctx); a != nil {
		ev.ActorID = a.IDPtr()
		ev.ActorName = a.Name
		if ev.ActorName == "" {
			ev.ActorName = a.Email
		}
	}
	if err := tx.InsertAudit(ctx, &ev); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// Log records e in a transaction of its own.
func (s *Sink) Log(ctx context.Context, e Event) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return s.Record(ctx, tx, e)
	})
}

// ListForObject returns the newest events of one object.
func (s *Sink) ListForObject(ctx context.Context, modelName, objectID string, limit int) ([]models.AuditEvent, error) {
	return s.Recent(ctx, store.AuditQuery{ModelName: modelName, ObjectID: objectID, Limit: limit})
}

// SearchRepr returns the newest events whose representation contains sub.
func (s *Sink) SearchRepr(ctx context.Context, sub string, limit int) ([]models.AuditEvent, error) {
	return s.Recent(ctx, store.AuditQuery{Repr: sub, Limit: limit})
}

func (s *Sink) Recent(ctx context.Context, q store.AuditQuery) ([]models.AuditEvent, error) {
	var out []models.AuditEvent
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.AuditEvents(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
