// Package agreement manages the legal texts staff accept before they may
// confirm a contract, and the acceptances recorded against them.
package agreement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

const modelName = "StaffAgreement"

// Tx is the slice of a store transaction acceptance checks need.
type Tx interface {
	Agreements(ctx context.Context, activeOnly bool) ([]models.StaffAgreement, error)
	Acceptances(ctx context.Context, email string) ([]models.AgreementAcceptance, error)
	SaveAcceptance(ctx context.Context, a *models.AgreementAcceptance) error
}

// RequiredError lists the agreements still awaiting consent.
type RequiredError struct {
	Pending []models.StaffAgreement
}

func (e *RequiredError) Error() string {
	names := make([]string, len(e.Pending))
	for i, a := range e.Pending {
		names[i] = a.Name
	}
	return "pending agreements: " + strings.Join(names, ", ")
}

// Required builds the AgreementRequired error for pending.
func Required(pending []models.StaffAgreement) error {
	return apperr.Wrap(apperr.KindAgreementRequired, "agreement consent required", &RequiredError{Pending: pending})
}

// PendingOf extracts the pending list carried by an AgreementRequired
// error.
func PendingOf(err error) []models.StaffAgreement {
	var re *RequiredError
	if errors.As(err, &re) {
		return re.Pending
	}
	return nil
}

// Pending returns the active agreements email has not accepted in their
// current wording, in display order.
func Pending(ctx context.Context, tx Tx, email string) ([]models.StaffAgreement, error) {
	active, err := tx.Agreements(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}
	accepted, err := tx.Acceptances(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list acceptances: %w", err)
	}
	byAgreement := make(map[uuid.UUID]models.AgreementAcceptance, len(accepted))
	for _, acc := range accepted {
		byAgreement[acc.AgreementID] = acc
	}

	var pending []models.StaffAgreement
	for i := range active {
		acc, ok := byAgreement[active[i].ID]
		if !ok || !acc.Satisfies(&active[i]) {
			pending = append(pending, active[i])
		}
	}
	return pending, nil
}

// Check returns AgreementRequired unless email has accepted every active
// agreement.
func Check(ctx context.Context, tx Tx, email string) error {
	pending, err := Pending(ctx, tx, email)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return Required(pending)
	}
	return nil
}

// Accept records consent of email to the listed agreements in their
// current wording. Every id must name an active agreement.
func Accept(ctx context.Context, tx Tx, email string, ids []uuid.UUID, at time.Time) error {
	if strings.TrimSpace(email) == "" {
		return apperr.Validation(map[string]string{"email": "staff has no email"})
	}
	active, err := tx.Agreements(ctx, true)
	if err != nil {
		return fmt.Errorf("list agreements: %w", err)
	}
	byID := make(map[uuid.UUID]*models.StaffAgreement, len(active))
	for i := range active {
		byID[active[i].ID] = &active[i]
	}

	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return apperr.Validation(map[string]string{"agreement_ids": fmt.Sprintf("%s is not an active agreement", id)})
		}
		acc := &models.AgreementAcceptance{
			Email:       email,
			AgreementID: a.ID,
			TextHash:    a.TextHash(),
			IsAgreed:    true,
			AgreedAt:    &at,
		}
		if err := tx.SaveAcceptance(ctx, acc); err != nil {
			return fmt.Errorf("save acceptance: %w", err)
		}
	}
	return nil
}

// Input is the editable part of an agreement.
type Input struct {
	Name         string `json:"name"`
	Text         string `json:"agreement_text"`
	DisplayOrder int    `json:"display_order"`
	IsActive     bool   `json:"is_active"`
}

func (in Input) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	if strings.TrimSpace(in.Text) == "" {
		fields["agreement_text"] = "required"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// Service administers agreement texts. Edits and deletes cascade to the
// acceptances in the same transaction.
type Service struct {
	store store.Store
	audit *audit.Sink
}

func NewService(st store.Store, sink *audit.Sink) *Service {
	return &Service{store: st, audit: sink}
}

func requireChange(ctx context.Context) error {
	if !tenant.ActorFromContext(ctx).Has(tenant.PermChangeAgreement) {
		return apperr.PermissionDenied("agreement change not permitted")
	}
	return nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]models.StaffAgreement, error) {
	var out []models.StaffAgreement
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Agreements(ctx, activeOnly)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.StaffAgreement, error) {
	var out *models.StaffAgreement
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Agreement(ctx, id)
		return store.Load(err, "agreement")
	})
	return out, err
}

func (s *Service) Create(ctx context.Context, in Input) (*models.StaffAgreement, error) {
	if err := requireChange(ctx); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	a := &models.StaffAgreement{
		Name:         strings.TrimSpace(in.Name),
		Text:         in.Text,
		DisplayOrder: in.DisplayOrder,
		IsActive:     in.IsActive,
		UpdatedAt:    time.Now(),
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveAgreement(ctx, a); err != nil {
			return fmt.Errorf("save agreement: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Event{
			Action: models.AuditCreate, ModelName: modelName, ObjectID: a.ID.String(), ObjectRepr: a.Name,
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Update rewrites an agreement. A changed text withdraws every existing
// consent to it; the number withdrawn is returned.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*models.StaffAgreement, int, error) {
	if err := requireChange(ctx); err != nil {
		return nil, 0, err
	}
	if err := in.validate(); err != nil {
		return nil, 0, err
	}
	var (
		a       *models.StaffAgreement
		cleared int
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = tx.Agreement(ctx, id)
		if err != nil {
			return store.Load(err, "agreement")
		}
		textChanged := a.Text != in.Text
		a.Name = strings.TrimSpace(in.Name)
		a.Text = in.Text
		a.DisplayOrder = in.DisplayOrder
		a.IsActive = in.IsActive
		a.UpdatedAt = time.Now()
		if err := tx.SaveAgreement(ctx, a); err != nil {
			return fmt.Errorf("save agreement: %w", err)
		}
		if textChanged {
			if cleared, err = tx.ClearAcceptances(ctx, a.ID); err != nil {
				return fmt.Errorf("clear acceptances: %w", err)
			}
		}
		return s.audit.Record(ctx, tx, audit.Event{
			Action: models.AuditUpdate, ModelName: modelName, ObjectID: a.ID.String(), ObjectRepr: a.Name,
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return a, cleared, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := requireChange(ctx); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Agreement(ctx, id)
		if err != nil {
			return store.Load(err, "agreement")
		}
		if err := tx.DeleteAcceptancesByAgreement(ctx, id); err != nil {
			return fmt.Errorf("delete acceptances: %w", err)
		}
		if err := tx.DeleteAgreement(ctx, id); err != nil {
			return fmt.Errorf("delete agreement: %w", err)
		}
		return s.audit.Record(ctx, tx, audit.Event{
			Action: models.AuditDelete, ModelName: modelName, ObjectID: id.String(), ObjectRepr: a.Name,
		})
	})
}
