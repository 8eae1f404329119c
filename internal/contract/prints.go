package contract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/audit"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/render"
	"github.com/nikhilbhutani/staffcore/internal/storage"
	"github.com/nikhilbhutani/staffcore/internal/store"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

const pdfContentType = "application/pdf"

// File is a stored print together with its bytes.
type File struct {
	Print models.Print
	Bytes []byte
}

var printActions = map[models.PrintKind]models.AuditAction{
	models.PrintContract:             models.AuditPrint,
	models.PrintQuotation:            models.AuditQuotationIssue,
	models.PrintClashDayNotification: models.AuditClashDayNotificationIssue,
	models.PrintDispatchNotification: models.AuditDispatchNotificationIssue,
	models.PrintDispatchLedger:       models.AuditDispatchLedgerIssue,
}

const assignmentModel = "ContractAssignment"

func issuer(ctx context.Context) render.Issuer {
	a := tenant.ActorFromContext(ctx)
	if a == nil {
		return render.Issuer{}
	}
	if a.Name != "" {
		return render.Issuer{Name: a.Name}
	}
	return render.Issuer{Name: a.Email}
}

// optional tolerates a missing referenced row.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// bundle snapshots everything the renderer reads about r.
func (s *Service) bundle(ctx context.Context, tx store.Tx, r *record) (*render.Bundle, error) {
	company, err := tx.Company(ctx)
	if err != nil {
		return nil, store.Load(err, "company")
	}
	b := &render.Bundle{Side: r.side, Contract: *r.core(), Company: *company}

	if id := r.core().PatternID; id != nil {
		p, err := optional(tx.Pattern(ctx, *id))
		if err != nil {
			return nil, fmt.Errorf("load pattern: %w", err)
		}
		if p != nil {
			b.Terms = p.Terms
		}
	}

	if r.side == models.SideStaff {
		st, err := tx.Staff(ctx, r.staff.StaffID)
		if err != nil {
			return nil, store.Load(err, "staff")
		}
		b.StaffName = st.Name
		b.EmploymentTypeCode = r.staff.EmploymentTypeCode
		b.WorkLocation = r.staff.WorkLocation
		b.BusinessContent = r.staff.BusinessContent
		return b, nil
	}

	cl, err := tx.Client(ctx, r.client.ClientID)
	if err != nil {
		return nil, store.Load(err, "client")
	}
	b.ClientName = cl.Name
	b.BillPayment = r.client.BillPayment
	if r.dispatch() && r.client.Haken != nil {
		if b.Haken, err = hakenRoles(ctx, tx, r.client.Haken); err != nil {
			return nil, err
		}
	}
	if r.dispatch() {
		if b.AssignedStaff, err = assignedStaff(ctx, tx, r.client.ID); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func hakenRoles(ctx context.Context, tx store.Tx, h *models.ClientContractHaken) (*render.HakenRoles, error) {
	roles := &render.HakenRoles{
		LimitByAgreement: h.LimitByAgreement,
		LimitIndefinite:  h.LimitIndefinite,
		TTP:              h.TTP,
	}
	if h.PeriodExemptDetail != nil {
		roles.PeriodExemptDetail = *h.PeriodExemptDetail
	}
	org := func(id *uuid.UUID) (*models.ClientOrganization, error) {
		if id == nil {
			return nil, nil
		}
		return optional(tx.Organization(ctx, *id))
	}
	clientUser := func(id *uuid.UUID) (string, error) {
		if id == nil {
			return "", nil
		}
		u, err := optional(tx.ClientUser(ctx, *id))
		if u == nil || err != nil {
			return "", err
		}
		return u.Name, nil
	}
	companyUser := func(id *uuid.UUID) (string, error) {
		if id == nil {
			return "", nil
		}
		u, err := optional(tx.CompanyUser(ctx, *id))
		if u == nil || err != nil {
			return "", err
		}
		return u.Name, nil
	}

	office, err := org(h.HakenOfficeID)
	if err != nil {
		return nil, fmt.Errorf("load haken office: %w", err)
	}
	if office != nil {
		roles.Office = office.Name
		roles.OfficeTeishokubi = office.HakenJigyoshoTeishokubi
	}
	unit, err := org(h.HakenUnitID)
	if err != nil {
		return nil, fmt.Errorf("load haken unit: %w", err)
	}
	if unit != nil {
		roles.Unit = unit.Name
	}

	for _, f := range []struct {
		dst *string
		id  *uuid.UUID
		get func(*uuid.UUID) (string, error)
	}{
		{&roles.Commander, h.CommanderID, clientUser},
		{&roles.ComplaintOfficerClient, h.ComplaintOfficerClientID, clientUser},
		{&roles.ResponsiblePersonClient, h.ResponsiblePersonClientID, clientUser},
		{&roles.ComplaintOfficerCompany, h.ComplaintOfficerCompanyID, companyUser},
		{&roles.ResponsiblePersonCompany, h.ResponsiblePersonCompanyID, companyUser},
	} {
		name, err := f.get(f.id)
		if err != nil {
			return nil, fmt.Errorf("load haken role: %w", err)
		}
		*f.dst = name
	}
	return roles, nil
}

func assignedStaff(ctx context.Context, tx store.Tx, clientContractID uuid.UUID) ([]string, error) {
	as, err := tx.AssignmentsByClient(ctx, clientContractID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	var names []string
	for _, a := range as {
		sc, err := optional(tx.StaffContract(ctx, a.StaffContractID, false))
		if err != nil {
			return nil, fmt.Errorf("load staff contract: %w", err)
		}
		if sc == nil {
			continue
		}
		st, err := optional(tx.Staff(ctx, sc.StaffID))
		if err != nil {
			return nil, fmt.Errorf("load staff: %w", err)
		}
		if st != nil {
			names = append(names, st.Name)
		}
	}
	return names, nil
}

// persist verifies art, stores its bytes and writes the print row and its
// audit event. The blob is written first and recorded in bl so a failed
// transaction removes it again.
func (s *Service) persist(ctx context.Context, tx store.Tx, bl *blobLedger, r *record, art *render.Artifact, at time.Time) (*models.Print, error) {
	if _, err := render.Verify(art.Bytes); err != nil {
		return nil, apperr.Wrap(apperr.KindRenderFailed, "rendered document failed verification", err)
	}
	c := r.core()
	sum := sha256.Sum256(art.Bytes)
	p := &models.Print{
		ID:             uuid.New(),
		Side:           r.side,
		ContractID:     c.ID,
		Kind:           art.Kind,
		Title:          art.Title,
		ContractNumber: c.NumberOrEmpty(),
		PrintedAt:      at,
		PrintedBy:      tenant.ActorFromContext(ctx).IDPtr(),
		Filename:       art.Filename,
		SHA256:         hex.EncodeToString(sum[:]),
		Size:           int64(len(art.Bytes)),
	}
	p.BlobKey = path.Join(tenant.IDFromContext(ctx).String(), string(r.side), c.ID.String(), p.ID.String(), art.Filename)

	if err := s.blobs.Upload(ctx, p.BlobKey, art.Bytes, pdfContentType); err != nil {
		return nil, fmt.Errorf("upload print: %w", err)
	}
	bl.written = append(bl.written, p.BlobKey)

	if err := tx.InsertPrint(ctx, p); err != nil {
		return nil, fmt.Errorf("insert print: %w", err)
	}
	if err := s.audit.Record(ctx, tx, audit.Event{
		Action:     printActions[p.Kind],
		ModelName:  r.side.ModelName(),
		ObjectID:   c.ID.String(),
		ObjectRepr: fmt.Sprintf("%s %s", r.repr(), p.Title),
	}); err != nil {
		return nil, err
	}
	return p, nil
}

func hasPrint(prints []models.Print, kind models.PrintKind) bool {
	for _, p := range prints {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// issueOnce renders a status-neutral document of the given kind, at most
// once per contract.
func (s *Service) issueOnce(ctx context.Context, id uuid.UUID, kind models.PrintKind,
	check func(r *record, b *render.Bundle) error,
	draw func(b *render.Bundle, at time.Time) (*render.Artifact, error)) (*models.Print, error) {
	if err := permit(ctx, "change", models.SideClient); err != nil {
		return nil, err
	}
	var out *models.Print
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, bl *blobLedger) error {
		// The row lock serialises concurrent issuers of the same document.
		r, err := load(ctx, tx, models.SideClient, id, true)
		if err != nil {
			return err
		}
		if st := r.core().Status; !st.AtLeast(models.StatusApproved) {
			return apperr.IllegalTransition(fmt.Sprintf("cannot issue %s for a %s contract", kind, st))
		}
		prints, err := tx.Prints(ctx, models.SideClient, id)
		if err != nil {
			return fmt.Errorf("list prints: %w", err)
		}
		if hasPrint(prints, kind) {
			return apperr.New(apperr.KindAlreadyIssued, fmt.Sprintf("%s already issued for this contract", kind))
		}
		b, err := s.bundle(ctx, tx, r)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(r, b); err != nil {
				return err
			}
		}
		now := s.clock()
		art, err := draw(b, now)
		if err != nil {
			return apperr.Wrap(apperr.KindRenderFailed, fmt.Sprintf("%s could not be rendered", kind), err)
		}
		out, err = s.persist(ctx, tx, bl, r, art, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IssueQuotation emits the quotation of an approved client contract.
func (s *Service) IssueQuotation(ctx context.Context, id uuid.UUID) (*models.Print, error) {
	who := issuer(ctx)
	return s.issueOnce(ctx, id, models.PrintQuotation, nil, func(b *render.Bundle, at time.Time) (*render.Artifact, error) {
		return s.renderer.RenderQuotation(b, who, at, "")
	})
}

// IssueClashDayNotification emits the office conflict date notice of an
// approved dispatch client contract.
func (s *Service) IssueClashDayNotification(ctx context.Context, id uuid.UUID) (*models.Print, error) {
	who := issuer(ctx)
	check := func(r *record, b *render.Bundle) error {
		if !r.dispatch() {
			return apperr.IllegalTransition("clash day notifications exist for dispatch contracts only")
		}
		if b.Haken == nil || b.Haken.OfficeTeishokubi == nil {
			return apperr.Validation(map[string]string{
				"haken_office_id": "the haken office has no haken_jigyosho_teishokubi",
			})
		}
		return nil
	}
	return s.issueOnce(ctx, id, models.PrintClashDayNotification, check, func(b *render.Bundle, at time.Time) (*render.Artifact, error) {
		return s.renderer.RenderClashDayNotification(b, who, at)
	})
}

// IssueDispatchLedger emits the client-side management ledger of an
// approved dispatch client contract.
func (s *Service) IssueDispatchLedger(ctx context.Context, id uuid.UUID) (*models.Print, error) {
	who := issuer(ctx)
	check := func(r *record, _ *render.Bundle) error {
		if !r.dispatch() {
			return apperr.IllegalTransition("dispatch ledgers exist for dispatch contracts only")
		}
		return nil
	}
	return s.issueOnce(ctx, id, models.PrintDispatchLedger, check, func(b *render.Bundle, at time.Time) (*render.Artifact, error) {
		return s.renderer.RenderDispatchLedger(b, who, at)
	})
}

// EmploymentConditions renders the employment conditions statement of one
// assignment while its staff contract is still Draft or Pending. The
// document carries the draft watermark and is not stored; the rendering is
// audited against the assignment.
func (s *Service) EmploymentConditions(ctx context.Context, assignmentID uuid.UUID) (*render.Artifact, error) {
	if err := permit(ctx, "view", models.SideClient); err != nil {
		return nil, err
	}
	var art *render.Artifact
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Assignment(ctx, assignmentID)
		if err != nil {
			return store.Load(err, "assignment")
		}
		cr, err := load(ctx, tx, models.SideClient, a.ClientContractID, false)
		if err != nil {
			return err
		}
		if !cr.dispatch() {
			return apperr.IllegalTransition("employment conditions exist for dispatch contracts only")
		}
		sr, err := load(ctx, tx, models.SideStaff, a.StaffContractID, false)
		if err != nil {
			return err
		}
		if st := sr.staff.Status; st != models.StatusDraft && st != models.StatusPending {
			return apperr.IllegalTransition(fmt.Sprintf("employment conditions are drafted before approval, not for a %s staff contract", st))
		}

		b, err := s.bundle(ctx, tx, cr)
		if err != nil {
			return err
		}
		staff, err := tx.Staff(ctx, sr.staff.StaffID)
		if err != nil {
			return store.Load(err, "staff")
		}
		ec := &render.EmploymentConditions{
			Client:          b,
			StaffName:       staff.Name,
			Staff:           sr.staff.ContractCore,
			WorkLocation:    sr.staff.WorkLocation,
			BusinessContent: sr.staff.BusinessContent,
		}
		if b.Haken != nil && b.Haken.Unit != "" {
			row, err := optional(tx.Teishokubi(ctx, models.TeishokubiKey{
				StaffEmail:            staff.Email,
				ClientCorporateNumber: cr.client.CorporateNumber,
				OrganizationName:      b.Haken.Unit,
			}))
			if err != nil {
				return fmt.Errorf("load teishokubi: %w", err)
			}
			if row != nil {
				ec.UnitConflictDate = &row.ConflictDate
			}
		}

		art, err = s.renderer.RenderEmploymentConditions(ec, s.clock(), s.renderer.DraftWatermark())
		if err != nil {
			return apperr.Wrap(apperr.KindRenderFailed, "employment conditions could not be rendered", err)
		}
		if _, err := render.Verify(art.Bytes); err != nil {
			return apperr.Wrap(apperr.KindRenderFailed, "rendered document failed verification", err)
		}
		return s.audit.Record(ctx, tx, audit.Event{
			Action:     models.AuditPrint,
			ModelName:  assignmentModel,
			ObjectID:   a.ID.String(),
			ObjectRepr: fmt.Sprintf("%s %s (draft)", cr.repr(), art.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}

// LatestPDF returns the newest contract print. An Approved contract is
// issued first; earlier states have nothing to return.
func (s *Service) LatestPDF(ctx context.Context, side models.Side, id uuid.UUID) (*File, error) {
	if err := permit(ctx, "view", side); err != nil {
		return nil, err
	}
	var latest *models.Print
	err := s.inTx(ctx, func(ctx context.Context, tx store.Tx, bl *blobLedger) error {
		r, err := load(ctx, tx, side, id, true)
		if err != nil {
			return err
		}
		switch st := r.core().Status; {
		case !st.AtLeast(models.StatusApproved):
			return apperr.IllegalTransition(fmt.Sprintf("a %s contract has no printed document", st))
		case st == models.StatusApproved:
			if err := permit(ctx, "change", side); err != nil {
				return err
			}
			if _, err := s.issue(ctx, tx, bl, r); err != nil {
				return err
			}
			if err := r.save(ctx, tx); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, r, models.AuditUpdate); err != nil {
				return err
			}
		}
		prints, err := tx.Prints(ctx, side, id)
		if err != nil {
			return fmt.Errorf("list prints: %w", err)
		}
		for i := range prints {
			if prints[i].Kind == models.PrintContract {
				latest = &prints[i]
				break
			}
		}
		if latest == nil {
			return apperr.NotFound("contract print")
		}
		return s.logEvent(ctx, tx, r, models.AuditView)
	})
	if err != nil {
		return nil, err
	}
	return s.download(ctx, latest)
}

// DraftPDF renders the contract as it stands with the draft watermark.
// Nothing is stored.
func (s *Service) DraftPDF(ctx context.Context, side models.Side, id uuid.UUID) (*render.Artifact, error) {
	if err := permit(ctx, "view", side); err != nil {
		return nil, err
	}
	var b *render.Bundle
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := load(ctx, tx, side, id, false)
		if err != nil {
			return err
		}
		b, err = s.bundle(ctx, tx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	art, err := s.renderer.RenderContract(b, s.clock(), s.renderer.DraftWatermark())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRenderFailed, "draft could not be rendered", err)
	}
	return art, nil
}

// PrintFile returns one stored print of a contract.
func (s *Service) PrintFile(ctx context.Context, side models.Side, id, printID uuid.UUID) (*File, error) {
	if err := permit(ctx, "view", side); err != nil {
		return nil, err
	}
	var p *models.Print
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.Print(ctx, printID)
		if err != nil {
			return store.Load(err, "print")
		}
		if p.Side != side || p.ContractID != id {
			return apperr.NotFound("print")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.download(ctx, p)
}

func (s *Service) download(ctx context.Context, p *models.Print) (*File, error) {
	data, err := s.blobs.Download(ctx, p.BlobKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("print file")
	}
	if err != nil {
		return nil, fmt.Errorf("download print: %w", err)
	}
	return &File{Print: *p, Bytes: data}, nil
}
