// Package confirm is the counterparty side of the contract state machine.
// Connected client contacts and staff confirm the contracts issued to
// them; staff must first consent to the tenant's active agreements.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/agreement"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/contract"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

type Action string

const (
	ActionConfirm   Action = "confirm"
	ActionUnconfirm Action = "unconfirm"
)

func ParseAction(v string) (Action, error) {
	switch a := Action(v); a {
	case ActionConfirm, ActionUnconfirm:
		return a, nil
	}
	return "", apperr.Validation(map[string]string{"action": "must be confirm or unconfirm"})
}

// Item is one contract on a counterparty's confirmation list.
type Item struct {
	Side        models.Side         `json:"side"`
	Contract    models.ContractCore `json:"contract"`
	LatestPrint *models.Print       `json:"latest_print,omitempty"`
	Confirmed   bool                `json:"is_confirmed"`
}

type Gateway struct {
	store     store.Store
	contracts *contract.Service
	now       func() time.Time
}

func NewGateway(st store.Store, contracts *contract.Service) *Gateway {
	return &Gateway{store: st, contracts: contracts, now: time.Now}
}

// confirmable reports whether a counterparty sees a contract at status.
func confirmable(s models.Status) bool {
	return s == models.StatusIssued || s == models.StatusConfirmed
}

func actorOf(ctx context.Context, kind tenant.ActorKind) (*tenant.Actor, error) {
	a := tenant.ActorFromContext(ctx)
	if a == nil || a.Kind != kind || a.Email == "" {
		return nil, apperr.PermissionDenied(fmt.Sprintf("only connected %s accounts may confirm here", kind))
	}
	return a, nil
}

// clientOf resolves the client an approved client connection speaks for.
func clientOf(ctx context.Context, tx store.Tx, a *tenant.Actor) (uuid.UUID, error) {
	conn, err := tx.ConnectClientByEmail(ctx, a.Email)
	if errors.Is(err, store.ErrNotFound) || err == nil && conn.Status != models.ConnectApproved {
		return uuid.Nil, apperr.PermissionDenied("client connection is not approved")
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load client connection: %w", err)
	}
	return conn.ClientID, nil
}

// staffOf resolves the staff master record of an approved staff
// connection.
func staffOf(ctx context.Context, tx store.Tx, a *tenant.Actor) (*models.Staff, error) {
	conn, err := tx.ConnectStaffByEmail(ctx, a.Email)
	if errors.Is(err, store.ErrNotFound) || err == nil && conn.Status != models.ConnectApproved {
		return nil, apperr.PermissionDenied("staff connection is not approved")
	}
	if err != nil {
		return nil, fmt.Errorf("load staff connection: %w", err)
	}
	st, err := tx.StaffByEmail(ctx, a.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.PermissionDenied("no staff record for this account")
	}
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	return st, nil
}

func latestContractPrint(ctx context.Context, tx store.Tx, side models.Side, id uuid.UUID) (*models.Print, error) {
	prints, err := tx.Prints(ctx, side, id)
	if err != nil {
		return nil, fmt.Errorf("list prints: %w", err)
	}
	for i := range prints {
		if prints[i].Kind == models.PrintContract {
			return &prints[i], nil
		}
	}
	return nil, nil
}

func (g *Gateway) ListClientConfirmable(ctx context.Context) ([]Item, error) {
	a, err := actorOf(ctx, tenant.KindClient)
	if err != nil {
		return nil, err
	}
	var items []Item
	err = g.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		clientID, err := clientOf(ctx, tx, a)
		if err != nil {
			return err
		}
		cs, err := tx.ListClientContracts(ctx, store.ContractFilter{CounterpartyID: clientID})
		if err != nil {
			return fmt.Errorf("list client contracts: %w", err)
		}
		for _, c := range cs {
			if !confirmable(c.Status) {
				continue
			}
			p, err := latestContractPrint(ctx, tx, models.SideClient, c.ID)
			if err != nil {
				return err
			}
			items = append(items, Item{
				Side:        models.SideClient,
				Contract:    c.ContractCore,
				LatestPrint: p,
				Confirmed:   c.Status == models.StatusConfirmed,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (g *Gateway) ListStaffConfirmable(ctx context.Context) ([]Item, error) {
	a, err := actorOf(ctx, tenant.KindStaff)
	if err != nil {
		return nil, err
	}
	var items []Item
	err = g.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		st, err := staffOf(ctx, tx, a)
		if err != nil {
			return err
		}
		cs, err := tx.ListStaffContracts(ctx, store.ContractFilter{CounterpartyID: st.ID})
		if err != nil {
			return fmt.Errorf("list staff contracts: %w", err)
		}
		for _, c := range cs {
			if !confirmable(c.Status) {
				continue
			}
			p, err := latestContractPrint(ctx, tx, models.SideStaff, c.ID)
			if err != nil {
				return err
			}
			items = append(items, Item{
				Side:        models.SideStaff,
				Contract:    c.ContractCore,
				LatestPrint: p,
				Confirmed:   c.Status == models.StatusConfirmed,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClientFlip confirms or unconfirms a contract of the caller's client.
func (g *Gateway) ClientFlip(ctx context.Context, contractID uuid.UUID, action Action) (any, error) {
	a, err := actorOf(ctx, tenant.KindClient)
	if err != nil {
		return nil, err
	}
	return g.contracts.Flip(ctx, models.SideClient, contractID, action == ActionConfirm,
		func(ctx context.Context, tx store.Tx, c contract.Snapshot) error {
			clientID, err := clientOf(ctx, tx, a)
			if err != nil {
				return err
			}
			if c.ClientID != clientID {
				return apperr.NotFound("client contract")
			}
			return nil
		})
}

// StaffFlip confirms or unconfirms a contract of the calling staff.
// Confirmation fails with AgreementRequired, carrying the pending
// agreements, until every active agreement has been accepted.
func (g *Gateway) StaffFlip(ctx context.Context, contractID uuid.UUID, action Action) (any, error) {
	return g.staffFlip(ctx, contractID, action, nil)
}

// Consent records the caller's acceptance of agreementIDs and confirms the
// contract in the same transaction.
func (g *Gateway) Consent(ctx context.Context, contractID uuid.UUID, agreementIDs []uuid.UUID) (any, error) {
	if len(agreementIDs) == 0 {
		return nil, apperr.Validation(map[string]string{"agreement_ids": "required"})
	}
	return g.staffFlip(ctx, contractID, ActionConfirm, agreementIDs)
}

func (g *Gateway) staffFlip(ctx context.Context, contractID uuid.UUID, action Action, accept []uuid.UUID) (any, error) {
	a, err := actorOf(ctx, tenant.KindStaff)
	if err != nil {
		return nil, err
	}
	return g.contracts.Flip(ctx, models.SideStaff, contractID, action == ActionConfirm,
		func(ctx context.Context, tx store.Tx, c contract.Snapshot) error {
			st, err := staffOf(ctx, tx, a)
			if err != nil {
				return err
			}
			if c.StaffID != st.ID {
				return apperr.NotFound("staff contract")
			}
			if len(accept) == 0 {
				return nil
			}
			return agreement.Accept(ctx, tx, st.Email, accept, g.now())
		})
}

// PendingAgreements lists the active agreements the calling staff has not
// accepted in their current wording.
func (g *Gateway) PendingAgreements(ctx context.Context) ([]models.StaffAgreement, error) {
	a, err := actorOf(ctx, tenant.KindStaff)
	if err != nil {
		return nil, err
	}
	var pending []models.StaffAgreement
	err = g.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		st, err := staffOf(ctx, tx, a)
		if err != nil {
			return err
		}
		pending, err = agreement.Pending(ctx, tx, st.Email)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}
