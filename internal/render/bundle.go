// Package render turns contract snapshots into PDF artifacts. Every entry
// point is a pure function of its arguments: it reads no store and no
// clock, so a stored print can be reproduced from the same inputs.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nikhilbhutani/staffcore/internal/models"
)

// HakenRoles carries the resolved display names of a dispatch contract's
// role assignments.
type HakenRoles struct {
	Office                   string
	Unit                     string
	Commander                string
	ComplaintOfficerClient   string
	ResponsiblePersonClient  string
	ComplaintOfficerCompany  string
	ResponsiblePersonCompany string
	LimitByAgreement         bool
	LimitIndefinite          bool
	TTP                      bool
	// PeriodExemptDetail is empty unless the dispatch is outside the
	// period limit.
	PeriodExemptDetail string
	OfficeTeishokubi   *time.Time
}

// Bundle is everything a renderer may read about one contract.
type Bundle struct {
	Side        models.Side
	Contract    models.ContractCore
	Company     models.Company
	ClientName  string
	StaffName   string
	BillPayment *models.BillPayment
	Haken       *HakenRoles
	// Terms are the pattern terms; the renderer groups them by position.
	Terms []models.ContractTerm
	// Staff contract extras.
	EmploymentTypeCode string
	WorkLocation       string
	BusinessContent    string
	// AssignedStaff lists the staff names dispatched under a client
	// contract, for the dispatch notification.
	AssignedStaff []string
}

func (b *Bundle) dispatch() bool {
	return b.Side == models.SideClient && b.Contract.ContractTypeCode == models.ContractTypeDispatch
}

func (b *Bundle) counterparty() string {
	if b.Side == models.SideStaff {
		return b.StaffName
	}
	return b.ClientName
}

// EmploymentConditions is what the employment conditions statement of one
// assignment reads: the dispatch client contract and the staff side.
type EmploymentConditions struct {
	Client          *Bundle
	StaffName       string
	Staff           models.ContractCore
	WorkLocation    string
	BusinessContent string
	// UnitConflictDate is the staff member's conflict date at the haken
	// unit, when one has been computed.
	UnitConflictDate *time.Time
}

// Issuer is the actor a document is issued by.
type Issuer struct {
	Name string
}

// Artifact is one rendered document.
type Artifact struct {
	Kind     models.PrintKind
	Bytes    []byte
	Filename string
	Title    string
}

// Filename returns <number>_<kind>_<yyyymmddHHMMSS>.pdf, dropping the
// number segment when the contract has none.
func Filename(number string, kind models.PrintKind, at time.Time) string {
	ts := at.Format("20060102150405")
	if number == "" {
		return fmt.Sprintf("%s_%s.pdf", kind, ts)
	}
	return fmt.Sprintf("%s_%s_%s.pdf", number, kind, ts)
}

// Substitute rewrites the known placeholders of term text. Unknown
// placeholders are left as written.
func Substitute(text string, b *Bundle) string {
	pairs := []string{}
	for _, p := range []struct{ key, val string }{
		{"company_name", b.Company.Name},
		{"client_name", b.ClientName},
		{"staff_name", b.StaffName},
	} {
		pairs = append(pairs, "{{"+p.key+"}}", p.val, "{{ "+p.key+" }}", p.val)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// termsAt returns the terms of one position in display order.
func termsAt(terms []models.ContractTerm, pos models.TermPosition) []models.ContractTerm {
	var out []models.ContractTerm
	for _, t := range terms {
		if t.Position == pos {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatAmount(v *int64, unit models.BillUnit) string {
	if v == nil {
		return "-"
	}
	s := groupThousands(*v) + " 円"
	if label, ok := billUnitLabels[unit]; ok {
		s += " / " + label
	}
	return s
}

var billUnitLabels = map[models.BillUnit]string{
	models.BillHourly:  "時間",
	models.BillDaily:   "日",
	models.BillMonthly: "月",
	models.BillLump:    "一式",
}

func groupThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprint(n)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "有"
	}
	return "無"
}
