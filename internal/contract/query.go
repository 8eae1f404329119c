package contract

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

const detailAuditLimit = 10

// Detail is a contract with its print history and most recent audit
// events.
type Detail struct {
	Contract    any                 `json:"contract"`
	Prints      []models.Print      `json:"prints"`
	Audit       []models.AuditEvent `json:"audit_events"`
	Assignments []models.Assignment `json:"assignments"`
}

func (s *Service) Get(ctx context.Context, side models.Side, id uuid.UUID) (*Detail, error) {
	if err := permit(ctx, "view", side); err != nil {
		return nil, err
	}
	var d Detail
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := load(ctx, tx, side, id, false)
		if err != nil {
			return err
		}
		d.Contract = r.value()
		if d.Prints, err = tx.Prints(ctx, side, id); err != nil {
			return fmt.Errorf("list prints: %w", err)
		}
		if side == models.SideStaff {
			d.Assignments, err = tx.AssignmentsByStaff(ctx, id)
		} else {
			d.Assignments, err = tx.AssignmentsByClient(ctx, id)
		}
		if err != nil {
			return fmt.Errorf("list assignments: %w", err)
		}
		d.Audit, err = tx.AuditEvents(ctx, store.AuditQuery{
			ModelName: side.ModelName(),
			ObjectID:  id.String(),
			Limit:     detailAuditLimit,
		})
		if err != nil {
			return fmt.Errorf("list audit events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) ListClient(ctx context.Context, f store.ContractFilter) ([]models.ClientContract, error) {
	if err := permit(ctx, "view", models.SideClient); err != nil {
		return nil, err
	}
	var out []models.ClientContract
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListClientContracts(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list client contracts: %w", err)
	}
	return out, nil
}

func (s *Service) ListStaff(ctx context.Context, f store.ContractFilter) ([]models.StaffContract, error) {
	if err := permit(ctx, "view", models.SideStaff); err != nil {
		return nil, err
	}
	var out []models.StaffContract
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListStaffContracts(ctx, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list staff contracts: %w", err)
	}
	return out, nil
}
