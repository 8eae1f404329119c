// Package assignment maintains the links between client and staff
// contracts. Every write recomputes the affected conflict dates in the
// same transaction.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/teishokubi"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

const modelName = "ContractAssignment"

type Service struct {
	store store.Store
	audit *audit.Sink
}

func NewService(st store.Store, sink *audit.Sink) *Service {
	return &Service{store: st, audit: sink}
}

// View is an assignment with both ends summarised.
type View struct {
	models.Assignment
	ClientContractName   string `json:"client_contract_name"`
	ClientContractNumber string `json:"client_contract_number,omitempty"`
	StaffContractName    string `json:"staff_contract_name"`
	StaffContractNumber  string `json:"staff_contract_number,omitempty"`
	StaffName            string `json:"staff_name"`
}

func (s *Service) Assign(ctx context.Context, clientContractID, staffContractID uuid.UUID) (*models.Assignment, error) {
	if !tenant.ActorFromContext(ctx).Has(tenant.PermChangeAssignment) {
		return nil, apperr.PermissionDenied("assignment change not permitted")
	}

	var a *models.Assignment
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cc, err := tx.ClientContract(ctx, clientContractID, true)
		if err != nil {
			return store.Load(err, "client contract")
		}
		sc, err := tx.StaffContract(ctx, staffContractID, true)
		if err != nil {
			return store.Load(err, "staff contract")
		}
		if err := assignable(&cc.ContractCore, &sc.ContractCore); err != nil {
			return err
		}

		a = &models.Assignment{
			ClientContractID: cc.ID,
			StaffContractID:  sc.ID,
			CreatedAt:        time.Now(),
			CreatedBy:        tenant.ActorFromContext(ctx).IDPtr(),
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apperr.Validation(map[string]string{"staff_contract_id": "already assigned to this client contract"})
			}
			return fmt.Errorf("insert assignment: %w", err)
		}

		keys, err := teishokubi.KeysFor(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if err := teishokubi.RecomputeAll(ctx, tx, keys); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Event{
			Action:     models.AuditCreate,
			ModelName:  modelName,
			ObjectID:   a.ID.String(),
			ObjectRepr: repr(cc, sc),
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func assignable(cc, sc *models.ContractCore) error {
	if cc.TenantID != sc.TenantID {
		return apperr.NotFound("staff contract")
	}
	if !cc.Status.AtLeast(models.StatusApproved) {
		return apperr.IllegalTransition("client contract must be approved before assignment")
	}
	if !sc.Status.AtLeast(models.StatusApproved) {
		return apperr.IllegalTransition("staff contract must be approved before assignment")
	}
	return nil
}

func (s *Service) Unassign(ctx context.Context, id uuid.UUID) error {
	if !tenant.ActorFromContext(ctx).Has(tenant.PermChangeAssignment) {
		return apperr.PermissionDenied("assignment change not permitted")
	}

	return s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Assignment(ctx, id)
		if err != nil {
			return store.Load(err, "assignment")
		}
		cc, err := tx.ClientContract(ctx, a.ClientContractID, true)
		if err != nil {
			return store.Load(err, "client contract")
		}
		sc, err := tx.StaffContract(ctx, a.StaffContractID, true)
		if err != nil {
			return store.Load(err, "staff contract")
		}
		if err := assignable(&cc.ContractCore, &sc.ContractCore); err != nil {
			return err
		}

		keys, err := teishokubi.KeysFor(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteAssignment(ctx, a.ID); err != nil {
			return fmt.Errorf("delete assignment: %w", err)
		}
		if err := teishokubi.RecomputeAll(ctx, tx, keys); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, audit.Event{
			Action:     models.AuditDelete,
			ModelName:  modelName,
			ObjectID:   a.ID.String(),
			ObjectRepr: repr(cc, sc),
		})
	})
}

// Detach removes every assignment of one contract and recomputes the
// conflict dates they contributed to. It runs inside the caller's
// transaction and is how a revert keeps assignments between approved
// contracts only.
func Detach(ctx context.Context, tx store.Tx, side models.Side, contractID uuid.UUID) (int, error) {
	var (
		as  []models.Assignment
		err error
	)
	if side == models.SideStaff {
		as, err = tx.AssignmentsByStaff(ctx, contractID)
	} else {
		as, err = tx.AssignmentsByClient(ctx, contractID)
	}
	if err != nil {
		return 0, fmt.Errorf("list assignments: %w", err)
	}

	var keys []models.TeishokubiKey
	for _, a := range as {
		k, err := teishokubi.KeysFor(ctx, tx, a.ID)
		if err != nil {
			return 0, err
		}
		keys = append(keys, k...)
		if err := tx.DeleteAssignment(ctx, a.ID); err != nil {
			return 0, fmt.Errorf("delete assignment: %w", err)
		}
	}
	if err := teishokubi.RecomputeAll(ctx, tx, keys); err != nil {
		return 0, err
	}
	return len(as), nil
}

func (s *Service) ListByClient(ctx context.Context, clientContractID uuid.UUID) ([]View, error) {
	return s.list(ctx, func(ctx context.Context, tx store.Tx) ([]models.Assignment, error) {
		if _, err := tx.ClientContract(ctx, clientContractID, false); err != nil {
			return nil, store.Load(err, "client contract")
		}
		return tx.AssignmentsByClient(ctx, clientContractID)
	})
}

func (s *Service) ListByStaff(ctx context.Context, staffContractID uuid.UUID) ([]View, error) {
	return s.list(ctx, func(ctx context.Context, tx store.Tx) ([]models.Assignment, error) {
		if _, err := tx.StaffContract(ctx, staffContractID, false); err != nil {
			return nil, store.Load(err, "staff contract")
		}
		return tx.AssignmentsByStaff(ctx, staffContractID)
	})
}

func (s *Service) list(ctx context.Context, load func(ctx context.Context, tx store.Tx) ([]models.Assignment, error)) ([]View, error) {
	var out []View
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		as, err := load(ctx, tx)
		if err != nil {
			return err
		}
		out = make([]View, 0, len(as))
		for _, a := range as {
			v := View{Assignment: a}
			if cc, err := tx.ClientContract(ctx, a.ClientContractID, false); err == nil {
				v.ClientContractName, v.ClientContractNumber = cc.Name, cc.NumberOrEmpty()
			}
			if sc, err := tx.StaffContract(ctx, a.StaffContractID, false); err == nil {
				v.StaffContractName, v.StaffContractNumber = sc.Name, sc.NumberOrEmpty()
				if st, err := tx.Staff(ctx, sc.StaffID); err == nil {
					v.StaffName = st.Name
				}
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func repr(cc *models.ClientContract, sc *models.StaffContract) string {
	return fmt.Sprintf("%s - %s", cc.Name, sc.Name)
}
