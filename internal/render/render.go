package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/nikhilbhutani/staffcore/internal/models"
)

// ErrNotApplicable is returned when a document kind does not exist for the
// given contract.
var ErrNotApplicable = errors.New("document not applicable to contract")

// ContractTitle is the document title of a contract print.
func ContractTitle(b *Bundle) string {
	switch {
	case b.Side == models.SideStaff:
		return "雇用契約書"
	case b.dispatch():
		return "労働者派遣個別契約書"
	default:
		return "業務委託契約書"
	}
}

// RenderContract lays out preamble terms, the field table, body clauses
// and postamble terms. A non-empty watermark marks the document as a draft.
func (r *Renderer) RenderContract(b *Bundle, at time.Time, watermark string) (*Artifact, error) {
	title := ContractTitle(b)
	d := r.newDocument(title, watermark, at)

	for _, t := range termsAt(b.Terms, models.TermPreamble) {
		d.paragraph(Substitute(t.Text, b))
	}
	d.table(contractItems(b))
	for _, t := range termsAt(b.Terms, models.TermBody) {
		d.subheading(Substitute(t.Clause, b))
		d.paragraph(Substitute(t.Text, b))
	}
	for _, t := range termsAt(b.Terms, models.TermPostamble) {
		d.paragraph(Substitute(t.Text, b))
	}
	d.rightAligned(b.Company.Name)

	return r.finish(d, b, models.PrintContract, title, at)
}

func contractItems(b *Bundle) []item {
	c := b.Contract
	items := []item{
		{"契約名", c.Name},
		{"契約番号", c.NumberOrEmpty()},
	}
	if b.Side == models.SideStaff {
		items = append(items, item{"スタッフ名", b.StaffName})
	} else {
		items = append(items, item{"クライアント名", b.ClientName})
	}
	items = append(items,
		item{"契約開始日", formatDate(&c.StartDate)},
		item{"契約終了日", formatDate(c.EndDate)},
		item{"契約金額", formatAmount(c.Amount, c.BillUnit)},
	)
	if bp := b.BillPayment; bp != nil {
		items = append(items, item{"支払条件", fmt.Sprintf("%d日締め %dヶ月後請求 %dヶ月後%d日払い",
			bp.ClosingDay, bp.InvoiceOffsetMonths, bp.PaymentOffsetMonths, bp.PaymentDay)})
	}
	if b.Side == models.SideStaff {
		items = append(items,
			item{"就業場所", b.WorkLocation},
			item{"業務内容", b.BusinessContent},
		)
	}
	if h := b.Haken; h != nil && b.dispatch() {
		items = append(items,
			item{"派遣先事業所", h.Office},
			item{"組織単位", h.Unit},
			item{"指揮命令者", h.Commander},
			item{"派遣先苦情申出先", h.ComplaintOfficerClient},
			item{"派遣先責任者", h.ResponsiblePersonClient},
			item{"派遣元苦情申出先", h.ComplaintOfficerCompany},
			item{"派遣元責任者", h.ResponsiblePersonCompany},
			item{"協定対象派遣労働者に限定", yesNo(h.LimitByAgreement)},
			item{"無期雇用派遣労働者に限定", yesNo(h.LimitIndefinite)},
			item{"紹介予定派遣", yesNo(h.TTP)},
			item{"抵触日制限外", orDash(h.PeriodExemptDetail)},
		)
	}
	items = append(items,
		item{"契約内容", c.Description},
		item{"備考", c.Notes},
	)
	return items
}

// RenderQuotation renders the quotation of a client contract.
func (r *Renderer) RenderQuotation(b *Bundle, issuer Issuer, issuedAt time.Time, watermark string) (*Artifact, error) {
	if b.Side != models.SideClient {
		return nil, fmt.Errorf("render quotation: %w", ErrNotApplicable)
	}
	title := "御見積書"
	c := b.Contract
	d := r.newDocument(title, watermark, issuedAt)
	d.rightAligned("発行日 " + issuedAt.Format("2006-01-02"))
	d.paragraph(fmt.Sprintf("%s 御中", b.ClientName))
	d.paragraph("下記の通り御見積申し上げます。")
	d.table([]item{
		{"件名", c.Name},
		{"契約番号", c.NumberOrEmpty()},
		{"期間", formatDate(&c.StartDate) + " - " + formatDate(c.EndDate)},
		{"金額", formatAmount(c.Amount, c.BillUnit)},
		{"内容", c.Description},
	})
	d.rightAligned(b.Company.Name)
	d.rightAligned("担当 " + issuer.Name)
	return r.finish(d, b, models.PrintQuotation, title, issuedAt)
}

// RenderClashDayNotification renders the office-level conflict date notice
// of a dispatch client contract.
func (r *Renderer) RenderClashDayNotification(b *Bundle, issuer Issuer, issuedAt time.Time) (*Artifact, error) {
	if !b.dispatch() || b.Haken == nil || b.Haken.OfficeTeishokubi == nil {
		return nil, fmt.Errorf("render clash day notification: %w", ErrNotApplicable)
	}
	title := "抵触日通知書"
	h := b.Haken
	d := r.newDocument(title, "", issuedAt)
	d.rightAligned("通知日 " + issuedAt.Format("2006-01-02"))
	d.paragraph(fmt.Sprintf("%s 御中", b.Company.Name))
	d.paragraph("労働者派遣法に基づき、派遣可能期間の制限に抵触する日を下記の通り通知します。")
	d.table([]item{
		{"派遣先", b.ClientName},
		{"派遣先事業所", h.Office},
		{"抵触日", formatDate(h.OfficeTeishokubi)},
		{"契約番号", b.Contract.NumberOrEmpty()},
	})
	d.rightAligned(b.ClientName)
	d.rightAligned("記録 " + issuer.Name)
	return r.finish(d, b, models.PrintClashDayNotification, title, issuedAt)
}

// RenderDispatchNotification renders the notice to the client naming the
// staff dispatched under a contract.
func (r *Renderer) RenderDispatchNotification(b *Bundle, issuer Issuer, issuedAt time.Time) (*Artifact, error) {
	if !b.dispatch() {
		return nil, fmt.Errorf("render dispatch notification: %w", ErrNotApplicable)
	}
	title := "派遣先通知書"
	d := r.newDocument(title, "", issuedAt)
	d.rightAligned("通知日 " + issuedAt.Format("2006-01-02"))
	d.paragraph(fmt.Sprintf("%s 御中", b.ClientName))
	d.paragraph("労働者派遣契約に基づき派遣する労働者を下記の通り通知します。")
	items := []item{
		{"契約名", b.Contract.Name},
		{"契約番号", b.Contract.NumberOrEmpty()},
		{"派遣期間", formatDate(&b.Contract.StartDate) + " - " + formatDate(b.Contract.EndDate)},
	}
	if b.Haken != nil {
		items = append(items, item{"派遣先事業所", b.Haken.Office}, item{"組織単位", b.Haken.Unit})
	}
	if len(b.AssignedStaff) == 0 {
		items = append(items, item{"派遣労働者", "未定"})
	}
	for i, name := range b.AssignedStaff {
		items = append(items, item{fmt.Sprintf("派遣労働者 %d", i+1), name})
	}
	d.table(items)
	d.rightAligned(b.Company.Name)
	d.rightAligned("担当 " + issuer.Name)
	return r.finish(d, b, models.PrintDispatchNotification, title, issuedAt)
}

// RenderDispatchLedger renders the client-side management ledger of a
// dispatch contract.
func (r *Renderer) RenderDispatchLedger(b *Bundle, issuer Issuer, issuedAt time.Time) (*Artifact, error) {
	if !b.dispatch() {
		return nil, fmt.Errorf("render dispatch ledger: %w", ErrNotApplicable)
	}
	title := "派遣先管理台帳"
	c := b.Contract
	d := r.newDocument(title, "", issuedAt)
	d.rightAligned("作成日 " + issuedAt.Format("2006-01-02"))
	items := []item{
		{"派遣元事業主", b.Company.Name},
		{"派遣先", b.ClientName},
		{"契約名", c.Name},
		{"契約番号", c.NumberOrEmpty()},
		{"派遣期間", formatDate(&c.StartDate) + " - " + formatDate(c.EndDate)},
	}
	if h := b.Haken; h != nil {
		items = append(items,
			item{"派遣先事業所", h.Office},
			item{"事業所抵触日", formatDate(h.OfficeTeishokubi)},
			item{"組織単位", h.Unit},
			item{"指揮命令者", h.Commander},
			item{"派遣先責任者", h.ResponsiblePersonClient},
			item{"派遣先苦情申出先", h.ComplaintOfficerClient},
			item{"派遣元責任者", h.ResponsiblePersonCompany},
			item{"派遣元苦情申出先", h.ComplaintOfficerCompany},
			item{"協定対象派遣労働者に限定", yesNo(h.LimitByAgreement)},
			item{"無期雇用派遣労働者に限定", yesNo(h.LimitIndefinite)},
			item{"紹介予定派遣", yesNo(h.TTP)},
			item{"抵触日制限外", orDash(h.PeriodExemptDetail)},
		)
	}
	if len(b.AssignedStaff) == 0 {
		items = append(items, item{"派遣労働者", "未定"})
	}
	for i, name := range b.AssignedStaff {
		items = append(items, item{fmt.Sprintf("派遣労働者 %d", i+1), name})
	}
	d.table(items)
	d.rightAligned("記録 " + issuer.Name)
	return r.finish(d, b, models.PrintDispatchLedger, title, issuedAt)
}

// RenderEmploymentConditions renders the statement handed to a dispatched
// staff member. It is only ever a draft.
func (r *Renderer) RenderEmploymentConditions(ec *EmploymentConditions, issuedAt time.Time, watermark string) (*Artifact, error) {
	b := ec.Client
	if b == nil || !b.dispatch() {
		return nil, fmt.Errorf("render employment conditions: %w", ErrNotApplicable)
	}
	title := "就業条件明示書"
	c := b.Contract
	d := r.newDocument(title, watermark, issuedAt)
	d.paragraph(fmt.Sprintf("%s（以下「乙」という）は、%s（以下「甲」という）に対し、労働者派遣法第34条に基づき就業条件を明示する。就業条件等に変更がある場合は、事前に通知する。",
		b.Company.Name, ec.StaffName))

	business := ec.BusinessContent
	if business == "" {
		business = c.Description
	}
	items := []item{
		{"契約番号", orDash(c.NumberOrEmpty())},
		{"契約名", c.Name},
		{"派遣労働者氏名", ec.StaffName},
		{"派遣先", b.ClientName},
		{"派遣期間", formatDate(&c.StartDate) + " - " + formatDate(c.EndDate)},
		{"契約金額", formatAmount(ec.Staff.Amount, ec.Staff.BillUnit)},
	}
	if h := b.Haken; h != nil {
		office := h.Office
		if h.OfficeTeishokubi != nil {
			office += "（抵触日 " + formatDate(h.OfficeTeishokubi) + "）"
		}
		unit := h.Unit
		if ec.UnitConflictDate != nil {
			unit += "（抵触日 " + formatDate(ec.UnitConflictDate) + "）"
		}
		items = append(items,
			item{"派遣先事業所", orDash(office)},
			item{"就業場所", orDash(ec.WorkLocation)},
			item{"組織単位", orDash(unit)},
			item{"業務内容", orDash(business)},
			item{"指揮命令者", h.Commander},
			item{"派遣先責任者", h.ResponsiblePersonClient},
			item{"派遣先苦情申出先", h.ComplaintOfficerClient},
			item{"派遣元責任者", h.ResponsiblePersonCompany},
			item{"派遣元苦情申出先", h.ComplaintOfficerCompany},
			item{"紹介予定派遣", yesNo(h.TTP)},
			item{"抵触日制限外", orDash(h.PeriodExemptDetail)},
		)
	} else {
		items = append(items,
			item{"就業場所", orDash(ec.WorkLocation)},
			item{"業務内容", orDash(business)},
		)
	}
	d.table(items)
	d.rightAligned(b.Company.Name)
	return r.finish(d, b, models.PrintEmploymentConditions, title, issuedAt)
}

func (r *Renderer) finish(d *document, b *Bundle, kind models.PrintKind, title string, at time.Time) (*Artifact, error) {
	data, err := d.bytes()
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}
	return &Artifact{
		Kind:     kind,
		Bytes:    data,
		Filename: Filename(b.Contract.NumberOrEmpty(), kind, at),
		Title:    title,
	}, nil
}
