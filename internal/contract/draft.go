package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/assignment"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/store"
)

const dateLayout = "2006-01-02"

// CoreInput is the editable part shared by both sides. Dates are civil
// dates in YYYY-MM-DD form.
type CoreInput struct {
	PatternID        *uuid.UUID      `json:"pattern_id"`
	ContractTypeCode string          `json:"contract_type_code"`
	Name             string          `json:"contract_name"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	Amount           *int64          `json:"amount"`
	BillUnit         models.BillUnit `json:"bill_unit"`
	Description      string          `json:"description"`
	Notes            string          `json:"notes"`
	// Version must match the stored version on update.
	Version int `json:"version"`
}

type ClientInput struct {
	CoreInput
	ClientID    uuid.UUID                   `json:"client_id"`
	BillPayment *models.BillPayment         `json:"bill_payment"`
	Haken       *models.ClientContractHaken `json:"haken"`
}

type StaffInput struct {
	CoreInput
	StaffID            uuid.UUID `json:"staff_id"`
	EmploymentTypeCode string    `json:"employment_type_code"`
	WorkLocation       string    `json:"work_location"`
	BusinessContent    string    `json:"business_content"`
}

type fieldErrors map[string]string

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(f)
}

func parseDate(fields fieldErrors, name, v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		fields[name] = "must be a date in YYYY-MM-DD form"
		return nil
	}
	return &t
}

// apply copies in onto c, collecting form errors.
func (in CoreInput) apply(c *models.ContractCore, fields fieldErrors) {
	c.PatternID = in.PatternID
	c.ContractTypeCode = strings.TrimSpace(in.ContractTypeCode)
	c.Name = strings.TrimSpace(in.Name)
	c.Amount = in.Amount
	c.BillUnit = in.BillUnit
	c.Description = in.Description
	c.Notes = in.Notes

	if c.ContractTypeCode == "" {
		fields["contract_type_code"] = "required"
	}
	if start := parseDate(fields, "start_date", in.StartDate); start != nil {
		c.StartDate = *start
	} else {
		c.StartDate = time.Time{}
	}
	c.EndDate = parseDate(fields, "end_date", in.EndDate)
	if c.EndDate != nil && !c.StartDate.IsZero() && c.EndDate.Before(c.StartDate) {
		fields["end_date"] = "must not be before the start date"
	}
	if c.Amount != nil && *c.Amount < 0 {
		fields["amount"] = "must not be negative"
	}
}

func (in ClientInput) applyTo(ctx context.Context, tx store.Tx, c *models.ClientContract) error {
	fields := fieldErrors{}
	in.CoreInput.apply(&c.ContractCore, fields)

	client, err := tx.Client(ctx, in.ClientID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fields["client_id"] = "unknown client"
	case err != nil:
		return fmt.Errorf("load client: %w", err)
	default:
		c.ClientID = client.ID
		c.CorporateNumber = client.CorporateNumber
	}
	c.BillPayment = in.BillPayment

	// a dispatch contract always carries its satellite, other types never do
	if c.ContractTypeCode == models.ContractTypeDispatch {
		h := in.Haken
		if h == nil {
			h = &models.ClientContractHaken{}
		}
		h.ClientContractID = c.ID
		c.Haken = h
	} else {
		c.Haken = nil
	}
	return fields.err()
}

func (in StaffInput) applyTo(ctx context.Context, tx store.Tx, c *models.StaffContract) error {
	fields := fieldErrors{}
	in.CoreInput.apply(&c.ContractCore, fields)
	c.EmploymentTypeCode = strings.TrimSpace(in.EmploymentTypeCode)
	c.WorkLocation = in.WorkLocation
	c.BusinessContent = in.BusinessContent

	staff, err := tx.Staff(ctx, in.StaffID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fields["staff_id"] = "unknown staff"
	case err != nil:
		return fmt.Errorf("load staff: %w", err)
	case !staff.Contractable():
		fields["staff_id"] = "staff needs an employee number and hire date before a contract can be drafted"
	default:
		c.StaffID = staff.ID
	}
	return fields.err()
}

func (s *Service) CreateClient(ctx context.Context, in ClientInput) (*models.ClientContract, error) {
	if err := permit(ctx, "add", models.SideClient); err != nil {
		return nil, err
	}
	c := &models.ClientContract{ContractCore: models.ContractCore{ID: uuid.New(), Status: models.StatusDraft}}
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, _ *blobLedger) error {
		if err := in.applyTo(ctx, tx, c); err != nil {
			return err
		}
		if err := tx.InsertClientContract(ctx, c); err != nil {
			return fmt.Errorf("insert client contract: %w", err)
		}
		return s.logEvent(ctx, tx, &record{side: models.SideClient, client: c}, models.AuditCreate)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) CreateStaff(ctx context.Context, in StaffInput) (*models.StaffContract, error) {
	if err := permit(ctx, "add", models.SideStaff); err != nil {
		return nil, err
	}
	c := &models.StaffContract{ContractCore: models.ContractCore{ID: uuid.New(), Status: models.StatusDraft}}
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, _ *blobLedger) error {
		if err := in.applyTo(ctx, tx, c); err != nil {
			return err
		}
		if err := tx.InsertStaffContract(ctx, c); err != nil {
			return fmt.Errorf("insert staff contract: %w", err)
		}
		return s.logEvent(ctx, tx, &record{side: models.SideStaff, staff: c}, models.AuditCreate)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// editable loads a contract that may still be edited: Draft or Pending.
func editable(ctx context.Context, tx store.Tx, side models.Side, id uuid.UUID, version int) (*record, error) {
	r, err := load(ctx, tx, side, id, true)
	if err != nil {
		return nil, err
	}
	if r.core().Status.AtLeast(models.StatusApproved) {
		return nil, apperr.IllegalTransition("an approved contract cannot be edited; revert it to draft first")
	}
	if version != 0 && version != r.core().Version {
		return nil, apperr.Validation(map[string]string{"version": "contract was modified by another user"})
	}
	return r, nil
}

func (s *Service) UpdateClient(ctx context.Context, id uuid.UUID, in ClientInput) (*models.ClientContract, error) {
	if err := permit(ctx, "change", models.SideClient); err != nil {
		return nil, err
	}
	var out *models.ClientContract
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, _ *blobLedger) error {
		r, err := editable(ctx, tx, models.SideClient, id, in.Version)
		if err != nil {
			return err
		}
		if err := in.applyTo(ctx, tx, r.client); err != nil {
			return err
		}
		if err := r.save(ctx, tx); err != nil {
			return err
		}
		out = r.client
		return s.logEvent(ctx, tx, r, models.AuditUpdate)
	})
	return out, err
}

func (s *Service) UpdateStaff(ctx context.Context, id uuid.UUID, in StaffInput) (*models.StaffContract, error) {
	if err := permit(ctx, "change", models.SideStaff); err != nil {
		return nil, err
	}
	var out *models.StaffContract
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, _ *blobLedger) error {
		r, err := editable(ctx, tx, models.SideStaff, id, in.Version)
		if err != nil {
			return err
		}
		if err := in.applyTo(ctx, tx, r.staff); err != nil {
			return err
		}
		if err := r.save(ctx, tx); err != nil {
			return err
		}
		out = r.staff
		return s.logEvent(ctx, tx, r, models.AuditUpdate)
	})
	return out, err
}

// Delete removes a contract that has not been approved.
func (s *Service) Delete(ctx context.Context, side models.Side, id uuid.UUID) error {
	if err := permit(ctx, "delete", side); err != nil {
		return err
	}
	return s.inTx(ctx, func(ctx context.Context, tx store.Tx, _ *blobLedger) error {
		r, err := load(ctx, tx, side, id, true)
		if err != nil {
			return err
		}
		if r.core().Status.AtLeast(models.StatusApproved) {
			return apperr.IllegalTransition("an approved contract cannot be deleted")
		}
		if _, err := assignment.Detach(ctx, tx, side, id); err != nil {
			return err
		}
		if side == models.SideStaff {
			err = tx.DeleteStaffContract(ctx, id)
		} else {
			err = tx.DeleteClientContract(ctx, id)
		}
		if err != nil {
			return fmt.Errorf("delete %s contract: %w", side, err)
		}
		return s.logEvent(ctx, tx, r, models.AuditDelete)
	})
}

// ttpLimitMonths caps the period of an introduction-scheduled dispatch.
const ttpLimitMonths = 6

// validateForApply checks everything a contract needs before it can be
// submitted for approval.
func validateForApply(ctx context.Context, tx store.Tx, r *record) error {
	c := r.core()
	fields := fieldErrors{}

	if c.Name == "" {
		fields["contract_name"] = "required"
	}
	if c.StartDate.IsZero() {
		fields["start_date"] = "required"
	}
	if c.EndDate != nil && !c.StartDate.IsZero() && c.EndDate.Before(c.StartDate) {
		fields["end_date"] = "must not be before the start date"
	}

	if c.PatternID == nil {
		fields["pattern_id"] = "required"
	} else {
		p, err := tx.Pattern(ctx, *c.PatternID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fields["pattern_id"] = "unknown pattern"
		case err != nil:
			return fmt.Errorf("load pattern: %w", err)
		case p.Domain != r.side || p.ContractTypeCode != c.ContractTypeCode:
			fields["pattern_id"] = "pattern does not match the contract side and type"
		case !p.IsActive:
			fields["pattern_id"] = "pattern is inactive"
		}
	}

	switch r.side {
	case models.SideClient:
		client, err := tx.Client(ctx, r.client.ClientID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fields["client_id"] = "unknown client"
		case err != nil:
			return fmt.Errorf("load client: %w", err)
		case !client.EligibleFor(c.ContractTypeCode):
			fields["client_id"] = "client has no basic contract date for this contract type"
		}
		if r.dispatch() {
			validateHaken(r.client, fields)
		}
	case models.SideStaff:
		staff, err := tx.Staff(ctx, r.staff.StaffID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fields["staff_id"] = "unknown staff"
		case err != nil:
			return fmt.Errorf("load staff: %w", err)
		case !staff.Contractable():
			fields["staff_id"] = "staff needs an employee number and hire date"
		}
	}
	return fields.err()
}

func validateHaken(c *models.ClientContract, fields fieldErrors) {
	if c.Haken == nil {
		fields["haken"] = "required for dispatch contracts"
		return
	}
	for _, f := range c.Haken.MissingFields() {
		fields["haken."+f] = "required"
	}
	if c.Haken.TTP {
		if c.EndDate == nil {
			fields["end_date"] = "required for introduction-scheduled dispatch"
		} else if !c.EndDate.Before(addMonths(c.StartDate, ttpLimitMonths)) {
			fields["end_date"] = fmt.Sprintf("introduction-scheduled dispatch may not exceed %d months", ttpLimitMonths)
		}
	}
}

// addMonths moves t by n calendar months, landing on the last day of the
// target month when t's day does not exist there.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(t.Day(), last),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// ExtendInput describes the follow-up period of an extension.
type ExtendInput struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	// IncludeStaff also extends the staff contracts assigned to a client
	// contract that end on the same day it does.
	IncludeStaff bool `json:"include_staff"`
}

// Extended lists the drafts an extension created.
type Extended struct {
	Client *models.ClientContract  `json:"client_contract,omitempty"`
	Staff  []*models.StaffContract `json:"staff_contracts,omitempty"`
}

// Extend copies a contract into a new draft for the following period.
// Assignments are not copied: drafts cannot be assigned.
func (s *Service) Extend(ctx context.Context, side models.Side, id uuid.UUID, in ExtendInput) (*Extended, error) {
	if err := permit(ctx, "add", side); err != nil {
		return nil, err
	}
	fields := fieldErrors{}
	start := parseDate(fields, "start_date", in.StartDate)
	end := parseDate(fields, "end_date", in.EndDate)
	if start == nil && fields["start_date"] == "" {
		fields["start_date"] = "required"
	}
	if start != nil && end != nil && end.Before(*start) {
		fields["end_date"] = "must not be before the start date"
	}
	if err := fields.err(); err != nil {
		return nil, err
	}

	out := &Extended{}
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, _ *blobLedger) error {
		src, err := load(ctx, tx, side, id, false)
		if err != nil {
			return err
		}
		if side == models.SideStaff {
			c, err := s.extendStaff(ctx, tx, src.staff, *start, end)
			out.Staff = append(out.Staff, c)
			return err
		}

		c := cloneDraft(src.client.ContractCore, *start, end)
		cc := &models.ClientContract{
			ContractCore:    c,
			ClientID:        src.client.ClientID,
			CorporateNumber: src.client.CorporateNumber,
			BillPayment:     src.client.BillPayment,
		}
		if src.client.Haken != nil {
			h := *src.client.Haken
			h.ClientContractID = cc.ID
			cc.Haken = &h
		}
		if err := tx.InsertClientContract(ctx, cc); err != nil {
			return fmt.Errorf("insert client contract: %w", err)
		}
		out.Client = cc
		if err := s.logEvent(ctx, tx, &record{side: models.SideClient, client: cc}, models.AuditCreate); err != nil {
			return err
		}

		if !in.IncludeStaff || src.client.EndDate == nil {
			return nil
		}
		as, err := tx.AssignmentsByClient(ctx, src.client.ID)
		if err != nil {
			return fmt.Errorf("list assignments: %w", err)
		}
		for _, a := range as {
			sc, err := tx.StaffContract(ctx, a.StaffContractID, false)
			if err != nil {
				return store.Load(err, "staff contract")
			}
			if sc.EndDate == nil || !sc.EndDate.Equal(*src.client.EndDate) {
				continue
			}
			c, err := s.extendStaff(ctx, tx, sc, *start, end)
			if err != nil {
				return err
			}
			out.Staff = append(out.Staff, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) extendStaff(ctx context.Context, tx store.Tx, src *models.StaffContract, start time.Time, end *time.Time) (*models.StaffContract, error) {
	sc := &models.StaffContract{
		ContractCore:       cloneDraft(src.ContractCore, start, end),
		StaffID:            src.StaffID,
		EmploymentTypeCode: src.EmploymentTypeCode,
		WorkLocation:       src.WorkLocation,
		BusinessContent:    src.BusinessContent,
	}
	if err := tx.InsertStaffContract(ctx, sc); err != nil {
		return nil, fmt.Errorf("insert staff contract: %w", err)
	}
	return sc, s.logEvent(ctx, tx, &record{side: models.SideStaff, staff: sc}, models.AuditCreate)
}

func cloneDraft(src models.ContractCore, start time.Time, end *time.Time) models.ContractCore {
	return models.ContractCore{
		ID:               uuid.New(),
		PatternID:        src.PatternID,
		ContractTypeCode: src.ContractTypeCode,
		Name:             src.Name,
		StartDate:        start,
		EndDate:          end,
		Amount:           src.Amount,
		BillUnit:         src.BillUnit,
		Description:      src.Description,
		Notes:            src.Notes,
		Status:           models.StatusDraft,
	}
}
