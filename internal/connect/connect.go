// Package connect binds external staff and client accounts to a tenant.
// Operators request a connection, the external account approves it.
package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/mail"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

const (
	staffModel  = "ConnectStaff"
	clientModel = "ConnectClient"

	RequestPending = "pending"
)

type Service struct {
	store     store.Store
	audit     *audit.Sink
	mailer    mail.Sender
	inviteURL string
	now       func() time.Time
}

// NewService returns a Service. mailer may be nil, in which case no
// invitations are sent.
func NewService(st store.Store, sink *audit.Sink, mailer mail.Sender, inviteURL string) *Service {
	return &Service{store: st, audit: sink, mailer: mailer, inviteURL: inviteURL, now: time.Now}
}

func requireOperator(ctx context.Context) error {
	a := tenant.ActorFromContext(ctx)
	if a == nil || a.Kind != tenant.KindOperator || !a.Has(tenant.PermChangeConnect) {
		return apperr.PermissionDenied("connection change not permitted")
	}
	return nil
}

// requireOwner admits the external account the connection was made for.
func requireOwner(ctx context.Context, kind tenant.ActorKind, email string) (*tenant.Actor, error) {
	a := tenant.ActorFromContext(ctx)
	if a == nil || a.Kind != kind || store.FoldEmail(a.Email) != email {
		return nil, apperr.PermissionDenied("connection belongs to another account")
	}
	return a, nil
}

func (s *Service) record(ctx context.Context, tx store.Tx, action models.AuditAction, model string, id uuid.UUID, repr string) error {
	return s.audit.Record(ctx, tx, audit.Event{
		Action: action, ModelName: model, ObjectID: id.String(), ObjectRepr: repr,
	})
}

// invite mails the invitation after the request committed. Delivery
// failures are logged and never fail the request.
func (s *Service) invite(ctx context.Context, to, companyName string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, mail.Invitation(to, companyName, s.inviteURL)); err != nil {
		slog.Warn("connection invitation not sent", "email", to, "error", err)
	}
}

func agencyOf(ctx context.Context, tx store.Tx) (*models.Company, error) {
	company, err := tx.Company(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load company: %w", err)
	}
	if company == nil || strings.TrimSpace(company.CorporateNumber) == "" {
		return nil, apperr.Validation(map[string]string{"corporate_number": "company corporate number is not set"})
	}
	return company, nil
}

func duplicate() error {
	return apperr.Validation(map[string]string{"email": "connection already requested"})
}

// RequestStaff asks the staff member's external account to connect.
func (s *Service) RequestStaff(ctx context.Context, staffID uuid.UUID) (*models.ConnectStaff, error) {
	if err := requireOperator(ctx); err != nil {
		return nil, err
	}
	var (
		conn    *models.ConnectStaff
		company *models.Company
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		staff, err := tx.Staff(ctx, staffID)
		if err := store.Load(err, "staff"); err != nil {
			return err
		}
		if strings.TrimSpace(staff.Email) == "" {
			return apperr.Validation(map[string]string{"email": "staff has no email address"})
		}
		if company, err = agencyOf(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ConnectStaffByEmail(ctx, staff.Email); err == nil {
			return duplicate()
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load connect staff: %w", err)
		}

		conn = &models.ConnectStaff{
			CorporateNumber: company.CorporateNumber,
			Email:           staff.Email,
			Status:          models.ConnectPending,
			CreatedAt:       s.now(),
		}
		if err := tx.SaveConnectStaff(ctx, conn); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return duplicate()
			}
			return fmt.Errorf("save connect staff: %w", err)
		}
		return s.record(ctx, tx, models.AuditCreate, staffModel, conn.ID, conn.Email)
	})
	if err != nil {
		return nil, err
	}
	s.invite(ctx, conn.Email, company.Name)
	return conn, nil
}

// RequestClient asks a client contact's external account to connect.
func (s *Service) RequestClient(ctx context.Context, clientUserID uuid.UUID) (*models.ConnectClient, error) {
	if err := requireOperator(ctx); err != nil {
		return nil, err
	}
	var (
		conn    *models.ConnectClient
		company *models.Company
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		user, err := tx.ClientUser(ctx, clientUserID)
		if err := store.Load(err, "client user"); err != nil {
			return err
		}
		if strings.TrimSpace(user.Email) == "" {
			return apperr.Validation(map[string]string{"email": "client user has no email address"})
		}
		if company, err = agencyOf(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ConnectClientByEmail(ctx, user.Email); err == nil {
			return duplicate()
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load connect client: %w", err)
		}

		conn = &models.ConnectClient{
			ClientID:        user.ClientID,
			CorporateNumber: company.CorporateNumber,
			Email:           user.Email,
			Status:          models.ConnectPending,
			CreatedAt:       s.now(),
		}
		if err := tx.SaveConnectClient(ctx, conn); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return duplicate()
			}
			return fmt.Errorf("save connect client: %w", err)
		}
		return s.record(ctx, tx, models.AuditCreate, clientModel, conn.ID, conn.Email)
	})
	if err != nil {
		return nil, err
	}
	s.invite(ctx, conn.Email, company.Name)
	return conn, nil
}

// ApproveStaff is called by the external staff account. The reported
// profile is compared with the staff master and a pending request is
// created for every axis that differs, in the same transaction.
func (s *Service) ApproveStaff(ctx context.Context, id uuid.UUID, profile *models.ExternalProfile) (*models.ConnectStaff, []models.DerivedRequest, error) {
	var (
		conn     *models.ConnectStaff
		requests []models.DerivedRequest
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		conn, err = tx.ConnectStaff(ctx, id)
		if err := store.Load(err, "staff connection"); err != nil {
			return err
		}
		a, err := requireOwner(ctx, tenant.KindStaff, conn.Email)
		if err != nil {
			return err
		}
		if conn.Status != models.ConnectPending {
			return apperr.IllegalTransition("staff connection is already approved")
		}
		now := s.now()
		conn.Status = models.ConnectApproved
		conn.ApprovedAt = &now
		conn.ApprovedBy = a.IDPtr()
		if err := tx.SaveConnectStaff(ctx, conn); err != nil {
			return fmt.Errorf("save connect staff: %w", err)
		}

		requests, err = s.deriveRequests(ctx, tx, conn, profile)
		if err != nil {
			return err
		}
		return s.record(ctx, tx, models.AuditUpdate, staffModel, conn.ID, conn.Email+" approved")
	})
	if err != nil {
		return nil, nil, err
	}
	return conn, requests, nil
}

func (s *Service) deriveRequests(ctx context.Context, tx store.Tx, conn *models.ConnectStaff, profile *models.ExternalProfile) ([]models.DerivedRequest, error) {
	ours := &models.StaffSatellites{}
	staff, err := tx.StaffByEmail(ctx, conn.Email)
	switch {
	case err == nil:
		if ours, err = tx.StaffSatellites(ctx, staff.ID); err != nil {
			return nil, fmt.Errorf("load staff satellites: %w", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("load staff: %w", err)
	}

	var theirs *models.StaffSatellites
	if profile != nil {
		theirs = &profile.StaffSatellites
	}
	requests, err := Diff(ours, theirs)
	if err != nil {
		return nil, err
	}
	if err := tx.DeleteDerivedRequests(ctx, conn.ID); err != nil {
		return nil, fmt.Errorf("delete derived requests: %w", err)
	}
	for i := range requests {
		requests[i].ConnectStaffID = conn.ID
		requests[i].CreatedAt = s.now()
		if err := tx.InsertDerivedRequest(ctx, &requests[i]); err != nil {
			return nil, fmt.Errorf("insert %s request: %w", requests[i].Kind, err)
		}
	}
	return requests, nil
}

// cascade removes everything an approved staff connection brought with
// it.
func cascade(ctx context.Context, tx store.Tx, conn *models.ConnectStaff) error {
	if err := tx.DeleteDerivedRequests(ctx, conn.ID); err != nil {
		return fmt.Errorf("delete derived requests: %w", err)
	}
	if err := tx.DeleteAcceptancesByEmail(ctx, conn.Email); err != nil {
		return fmt.Errorf("delete agreement acceptances: %w", err)
	}
	return nil
}

// UnapproveStaff returns an approved connection to pending. The owner or
// an operator may do so.
func (s *Service) UnapproveStaff(ctx context.Context, id uuid.UUID) (*models.ConnectStaff, error) {
	var conn *models.ConnectStaff
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		conn, err = tx.ConnectStaff(ctx, id)
		if err := store.Load(err, "staff connection"); err != nil {
			return err
		}
		if requireOperator(ctx) != nil {
			if _, err := requireOwner(ctx, tenant.KindStaff, conn.Email); err != nil {
				return err
			}
		}
		if conn.Status != models.ConnectApproved {
			return apperr.IllegalTransition("staff connection is not approved")
		}
		conn.Status = models.ConnectPending
		conn.ApprovedAt, conn.ApprovedBy = nil, nil
		if err := tx.SaveConnectStaff(ctx, conn); err != nil {
			return fmt.Errorf("save connect staff: %w", err)
		}
		if err := cascade(ctx, tx, conn); err != nil {
			return err
		}
		return s.record(ctx, tx, models.AuditUpdate, staffModel, conn.ID, conn.Email+" unapproved")
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DisconnectStaff deletes a staff connection in any state.
func (s *Service) DisconnectStaff(ctx context.Context, id uuid.UUID) error {
	if err := requireOperator(ctx); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		conn, err := tx.ConnectStaff(ctx, id)
		if err := store.Load(err, "staff connection"); err != nil {
			return err
		}
		if err := cascade(ctx, tx, conn); err != nil {
			return err
		}
		if err := tx.DeleteConnectStaff(ctx, id); err != nil {
			return fmt.Errorf("delete connect staff: %w", err)
		}
		return s.record(ctx, tx, models.AuditDelete, staffModel, conn.ID, conn.Email)
	})
}

func (s *Service) ApproveClient(ctx context.Context, id uuid.UUID) (*models.ConnectClient, error) {
	var conn *models.ConnectClient
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		conn, err = tx.ConnectClient(ctx, id)
		if err := store.Load(err, "client connection"); err != nil {
			return err
		}
		a, err := requireOwner(ctx, tenant.KindClient, conn.Email)
		if err != nil {
			return err
		}
		if conn.Status != models.ConnectPending {
			return apperr.IllegalTransition("client connection is already approved")
		}
		now := s.now()
		conn.Status = models.ConnectApproved
		conn.ApprovedAt = &now
		conn.ApprovedBy = a.IDPtr()
		if err := tx.SaveConnectClient(ctx, conn); err != nil {
			return fmt.Errorf("save connect client: %w", err)
		}
		return s.record(ctx, tx, models.AuditUpdate, clientModel, conn.ID, conn.Email+" approved")
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Service) UnapproveClient(ctx context.Context, id uuid.UUID) (*models.ConnectClient, error) {
	var conn *models.ConnectClient
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		conn, err = tx.ConnectClient(ctx, id)
		if err := store.Load(err, "client connection"); err != nil {
			return err
		}
		if requireOperator(ctx) != nil {
			if _, err := requireOwner(ctx, tenant.KindClient, conn.Email); err != nil {
				return err
			}
		}
		if conn.Status != models.ConnectApproved {
			return apperr.IllegalTransition("client connection is not approved")
		}
		conn.Status = models.ConnectPending
		conn.ApprovedAt, conn.ApprovedBy = nil, nil
		if err := tx.SaveConnectClient(ctx, conn); err != nil {
			return fmt.Errorf("save connect client: %w", err)
		}
		return s.record(ctx, tx, models.AuditUpdate, clientModel, conn.ID, conn.Email+" unapproved")
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Service) DisconnectClient(ctx context.Context, id uuid.UUID) error {
	if err := requireOperator(ctx); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		conn, err := tx.ConnectClient(ctx, id)
		if err := store.Load(err, "client connection"); err != nil {
			return err
		}
		if err := tx.DeleteConnectClient(ctx, id); err != nil {
			return fmt.Errorf("delete connect client: %w", err)
		}
		return s.record(ctx, tx, models.AuditDelete, clientModel, conn.ID, conn.Email)
	})
}

// ListStaff returns the tenant's staff connections, newest first. An
// external account sees only its own.
func (s *Service) ListStaff(ctx context.Context) ([]models.ConnectStaff, error) {
	var out []models.ConnectStaff
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListConnectStaff(ctx)
		if err != nil {
			return fmt.Errorf("list connect staff: %w", err)
		}
		if requireOperator(ctx) == nil {
			out = all
			return nil
		}
		a := tenant.ActorFromContext(ctx)
		if a == nil || a.Kind != tenant.KindStaff {
			return apperr.PermissionDenied("connection view not permitted")
		}
		for _, c := range all {
			if c.Email == store.FoldEmail(a.Email) {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

func (s *Service) ListClient(ctx context.Context) ([]models.ConnectClient, error) {
	var out []models.ConnectClient
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.ListConnectClient(ctx)
		if err != nil {
			return fmt.Errorf("list connect client: %w", err)
		}
		if requireOperator(ctx) == nil {
			out = all
			return nil
		}
		a := tenant.ActorFromContext(ctx)
		if a == nil || a.Kind != tenant.KindClient {
			return apperr.PermissionDenied("connection view not permitted")
		}
		for _, c := range all {
			if c.Email == store.FoldEmail(a.Email) {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// DerivedRequests lists the pending requests of one staff connection.
func (s *Service) DerivedRequests(ctx context.Context, connectStaffID uuid.UUID) ([]models.DerivedRequest, error) {
	if err := requireOperator(ctx); err != nil {
		return nil, err
	}
	var out []models.DerivedRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.ConnectStaff(ctx, connectStaffID); err != nil {
			return store.Load(err, "staff connection")
		}
		var err error
		out, err = tx.DerivedRequests(ctx, connectStaffID)
		return err
	})
	return out, err
}
