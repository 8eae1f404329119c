// Package contract owns the lifecycle of client and staff contracts:
// drafting, the status machine, numbering on approval and the immutable
// print history.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/numbering"
	"github.com/nikhilbhutani/staffcore/internal/render"
	"github.com/nikhilbhutani/staffcore/internal/storage"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type Service struct {
	store    store.Store
	blobs    storage.Storage
	renderer *render.Renderer
	numbers  *numbering.Service
	audit    *audit.Sink
	loc      *time.Location
	now      func() time.Time
}

// NewService wires the state machine. loc dates witnesses and filenames.
func NewService(st store.Store, blobs storage.Storage, renderer *render.Renderer, numbers *numbering.Service, sink *audit.Sink, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    st,
		blobs:    blobs,
		renderer: renderer,
		numbers:  numbers,
		audit:    sink,
		loc:      loc,
		now:      time.Now,
	}
}

// WithClock replaces the clock of the service and of its numbering.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.now = now
	c.numbers = s.numbers.WithClock(now)
	return &c
}

func (s *Service) clock() time.Time { return s.now().In(s.loc) }

// record is one contract of either side loaded for a transition.
type record struct {
	side   models.Side
	client *models.ClientContract
	staff  *models.StaffContract
}

func (r *record) core() *models.ContractCore {
	if r.side == models.SideStaff {
		return &r.staff.ContractCore
	}
	return &r.client.ContractCore
}

func (r *record) dispatch() bool {
	return r.side == models.SideClient && r.client.IsDispatch()
}

func (r *record) repr() string {
	c := r.core()
	if c.Number != nil {
		return fmt.Sprintf("%s (%s)", c.Name, *c.Number)
	}
	return c.Name
}

// value returns the side-specific struct for responses.
func (r *record) value() any {
	if r.side == models.SideStaff {
		return r.staff
	}
	return r.client
}

func load(ctx context.Context, tx store.Tx, side models.Side, id uuid.UUID, forUpdate bool) (*record, error) {
	switch side {
	case models.SideClient:
		c, err := tx.ClientContract(ctx, id, forUpdate)
		if err != nil {
			return nil, store.Load(err, "client contract")
		}
		return &record{side: side, client: c}, nil
	case models.SideStaff:
		c, err := tx.StaffContract(ctx, id, forUpdate)
		if err != nil {
			return nil, store.Load(err, "staff contract")
		}
		return &record{side: side, staff: c}, nil
	default:
		return nil, apperr.NotFound("contract side " + string(side))
	}
}

func (r *record) save(ctx context.Context, tx store.Tx) error {
	var err error
	if r.side == models.SideStaff {
		err = tx.UpdateStaffContract(ctx, r.staff)
	} else {
		err = tx.UpdateClientContract(ctx, r.client)
	}
	if errors.Is(err, store.ErrConflict) {
		return apperr.Validation(map[string]string{"version": "contract was modified by another user"})
	}
	if err != nil {
		return fmt.Errorf("update %s contract: %w", r.side, err)
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, tx store.Tx, r *record, action models.AuditAction) error {
	v := r.core().Version
	return s.audit.Record(ctx, tx, audit.Event{
		Action:     action,
		ModelName:  r.side.ModelName(),
		ObjectID:   r.core().ID.String(),
		ObjectRepr: r.repr(),
		Version:    &v,
	})
}

func permit(ctx context.Context, verb string, side models.Side) error {
	if !side.Valid() {
		return apperr.NotFound("contract side " + string(side))
	}
	if !tenant.ActorFromContext(ctx).Has(tenant.ContractPerm(verb, side)) {
		return apperr.PermissionDenied(fmt.Sprintf("%s on %s contracts not permitted", verb, side))
	}
	return nil
}

// blobs written and released by one operation. Writes are undone when the
// transaction fails; releases happen only once it has committed.
type blobLedger struct {
	written  []string
	released []string
}

// inTx runs fn in a transaction and reconciles blob storage with its
// outcome.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx, bl *blobLedger) error) error {
	bl := &blobLedger{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		bl.released = bl.released[:0]
		return fn(ctx, tx, bl)
	})

	cleanup := context.WithoutCancel(ctx)
	if err != nil {
		for _, key := range bl.written {
			if derr := s.blobs.Delete(cleanup, key); derr != nil {
				slog.Warn("orphaned print blob", "key", key, "error", derr)
			}
		}
		return err
	}
	for _, key := range bl.released {
		if derr := s.blobs.Delete(cleanup, key); derr != nil {
			slog.Warn("failed to delete released print blob", "key", key, "error", derr)
		}
	}
	return nil
}
