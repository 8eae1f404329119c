package contract

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

// Snapshot is the read-only view of a contract handed to authorizers.
type Snapshot struct {
	Side         models.Side
	Core         models.ContractCore
	ClientID     uuid.UUID
	StaffID      uuid.UUID
	CorporateNum string
}

func (r *record) snapshot() Snapshot {
	s := Snapshot{Side: r.side, Core: *r.core()}
	if r.side == models.SideStaff {
		s.StaffID = r.staff.StaffID
	} else {
		s.ClientID = r.client.ClientID
		s.CorporateNum = r.client.CorporateNumber
	}
	return s
}

// Authorizer vets a caller against the loaded contract inside the
// transaction of the transition.
type Authorizer func(ctx context.Context, tx store.Tx, c Snapshot) error

func expect(r *record, want models.Status, verb string) error {
	if got := r.core().Status; got != want {
		return apperr.IllegalTransition(fmt.Sprintf("cannot %s a %s contract", verb, got))
	}
	return nil
}

// transition loads a contract for update, runs step and persists the
// result with an audit event.
func (s *Service) transition(ctx context.Context, side models.Side, id uuid.UUID, action models.AuditAction,
	step func(ctx context.Context, tx store.Tx, bl *blobLedger, r *record) error) (*record, error) {
	var out *record
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, bl *blobLedger) error {
		r, err := load(ctx, tx, side, id, true)
		if err != nil {
			return err
		}
		if err := step(ctx, tx, bl, r); err != nil {
			return err
		}
		if err := r.save(ctx, tx); err != nil {
			return err
		}
		out = r
		return s.logEvent(ctx, tx, r, action)
	})
	return out, err
}

// Apply submits a draft for approval (Draft → Pending).
func (s *Service) Apply(ctx context.Context, side models.Side, id uuid.UUID) (any, error) {
	if err := permit(ctx, "change", side); err != nil {
		return nil, err
	}
	r, err := s.transition(ctx, side, id, models.AuditUpdate, func(ctx context.Context, tx store.Tx, _ *blobLedger, r *record) error {
		if err := expect(r, models.StatusDraft, "apply"); err != nil {
			return err
		}
		if err := validateForApply(ctx, tx, r); err != nil {
			return err
		}
		r.core().Status = models.StatusPending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.value(), nil
}

// Approve numbers a pending contract (Pending → Approved). Allocation is
// the first side effect, so a NumberingExhausted failure may be retried.
func (s *Service) Approve(ctx context.Context, side models.Side, id uuid.UUID) (any, error) {
	if err := permit(ctx, "change", side); err != nil {
		return nil, err
	}
	r, err := s.transition(ctx, side, id, models.AuditUpdate, func(ctx context.Context, tx store.Tx, _ *blobLedger, r *record) error {
		if err := expect(r, models.StatusPending, "approve"); err != nil {
			return err
		}
		c := r.core()
		number, err := s.numbers.Allocate(ctx, tx, side, c.ContractTypeCode)
		if err != nil {
			return err
		}
		now := s.clock()
		c.Number = &number
		c.Status = models.StatusApproved
		c.ApprovedAt = &now
		c.ApprovedBy = tenant.ActorFromContext(ctx).IDPtr()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.value(), nil
}

// Issue renders and stores the contract documents (Approved → Issued).
func (s *Service) Issue(ctx context.Context, side models.Side, id uuid.UUID) ([]models.Print, error) {
	if err := permit(ctx, "change", side); err != nil {
		return nil, err
	}
	var prints []models.Print
	_, err := s.transition(ctx, side, id, models.AuditUpdate, func(ctx context.Context, tx store.Tx, bl *blobLedger, r *record) error {
		if err := expect(r, models.StatusApproved, "issue"); err != nil {
			return err
		}
		var err error
		prints, err = s.issue(ctx, tx, bl, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return prints, nil
}

// issue writes the contract print, plus the dispatch notification of a
// dispatch client contract, and stamps the issued witnesses.
func (s *Service) issue(ctx context.Context, tx store.Tx, bl *blobLedger, r *record) ([]models.Print, error) {
	b, err := s.bundle(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	now := s.clock()

	art, err := s.renderer.RenderContract(b, now, "")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRenderFailed, "contract could not be rendered", err)
	}
	p, err := s.persist(ctx, tx, bl, r, art, now)
	if err != nil {
		return nil, err
	}
	prints := []models.Print{*p}

	if r.dispatch() {
		art, err := s.renderer.RenderDispatchNotification(b, issuer(ctx), now)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindRenderFailed, "dispatch notification could not be rendered", err)
		}
		p, err := s.persist(ctx, tx, bl, r, art, now)
		if err != nil {
			return nil, err
		}
		prints = append(prints, *p)
	}

	c := r.core()
	c.Status = models.StatusIssued
	c.IssuedAt = &now
	c.IssuedBy = tenant.ActorFromContext(ctx).IDPtr()
	return prints, nil
}

// Confirm records the operator's confirmation (Issued → Confirmed). A
// staff contract additionally needs the staff's consent to every active
// agreement.
func (s *Service) Confirm(ctx context.Context, side models.Side, id uuid.UUID) (any, error) {
	if err := permit(ctx, "change", side); err != nil {
		return nil, err
	}
	return s.Flip(ctx, side, id, true, nil)
}

// Unconfirm withdraws a confirmation (Confirmed → Issued).
func (s *Service) Unconfirm(ctx context.Context, side models.Side, id uuid.UUID) (any, error) {
	if err := permit(ctx, "change", side); err != nil {
		return nil, err
	}
	return s.Flip(ctx, side, id, false, nil)
}

// Flip moves a contract between Issued and Confirmed without a permission
// check of its own; authorize, when given, vets the caller first. It is
// the entry point of the counterparty gateway.
func (s *Service) Flip(ctx context.Context, side models.Side, id uuid.UUID, confirm bool, authorize Authorizer) (any, error) {
	if !side.Valid() {
		return nil, apperr.NotFound("contract side " + string(side))
	}
	action := models.AuditConfirm
	if !confirm {
		action = models.AuditUnconfirm
	}
	r, err := s.transition(ctx, side, id, action, func(ctx context.Context, tx store.Tx, _ *blobLedger, r *record) error {
		if authorize != nil {
			if err := authorize(ctx, tx, r.snapshot()); err != nil {
				return err
			}
		}
		c := r.core()
		if !confirm {
			if err := expect(r, models.StatusConfirmed, "unconfirm"); err != nil {
				return err
			}
			c.Status = models.StatusIssued
			c.ConfirmedAt, c.ConfirmedBy = nil, nil
			return nil
		}

		if err := expect(r, models.StatusIssued, "confirm"); err != nil {
			return err
		}
		if side == models.SideStaff {
			staff, err := tx.Staff(ctx, r.staff.StaffID)
			if err != nil {
				return store.Load(err, "staff")
			}
			if err := agreement.Check(ctx, tx, staff.Email); err != nil {
				return err
			}
		}
		now := s.clock()
		c.Status = models.StatusConfirmed
		c.ConfirmedAt = &now
		c.ConfirmedBy = tenant.ActorFromContext(ctx).IDPtr()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.value(), nil
}

// Revert returns an approved contract to Draft. Its prints and their
// files, its number, its witnesses and its assignments are removed.
func (s *Service) Revert(ctx context.Context, side models.Side, id uuid.UUID) (any, error) {
	if err := permit(ctx, "change", side); err != nil {
		return nil, err
	}
	r, err := s.transition(ctx, side, id, models.AuditRevert, func(ctx context.Context, tx store.Tx, bl *blobLedger, r *record) error {
		c := r.core()
		if !c.Status.AtLeast(models.StatusApproved) {
			return apperr.IllegalTransition(fmt.Sprintf("cannot revert a %s contract", c.Status))
		}
		deleted, err := tx.DeletePrints(ctx, side, c.ID)
		if err != nil {
			return fmt.Errorf("delete prints: %w", err)
		}
		for _, p := range deleted {
			bl.released = append(bl.released, p.BlobKey)
		}
		if _, err := assignment.Detach(ctx, tx, side, c.ID); err != nil {
			return err
		}
		c.ClearWitnesses()
		c.Status = models.StatusDraft
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.value(), nil
}

// SetApproved approves a pending contract or reverts an approved one.
func (s *Service) SetApproved(ctx context.Context, side models.Side, id uuid.UUID, approved bool) (any, error) {
	if approved {
		return s.Approve(ctx, side, id)
	}
	return s.Revert(ctx, side, id)
}
