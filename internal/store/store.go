// Package store defines the persistence contract of the contract core.
// Every method of Tx reads and writes only rows of the tenant carried by
// the context it was given.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/models"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict reports a uniqueness or optimistic-version violation.
	ErrConflict = errors.New("store: conflict")
	// ErrLocked reports a row lock that could not be acquired in time.
	ErrLocked = errors.New("store: row locked")
)

// Store opens tenant-scoped transactions.
type Store interface {
	tenant.Directory
	// InTx runs fn in one transaction scoped to the tenant of ctx. fn's
	// error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// CreateTenant registers a tenant; it is the only unscoped write.
	CreateTenant(ctx context.Context, t *models.Tenant) error
	Ping(ctx context.Context) error
}

type Tx interface {
	MasterRepo
	ContractRepo
	AssignmentRepo
	PrintRepo
	TeishokubiRepo
	AuditRepo
	SequenceRepo
	AgreementRepo
	ConnectRepo
}

type MasterRepo interface {
	Company(ctx context.Context) (*models.Company, error)
	SaveCompany(ctx context.Context, c *models.Company) error
	Client(ctx context.Context, id uuid.UUID) (*models.Client, error)
	SaveClient(ctx context.Context, c *models.Client) error
	Organization(ctx context.Context, id uuid.UUID) (*models.ClientOrganization, error)
	SaveOrganization(ctx context.Context, o *models.ClientOrganization) error
	ClientUser(ctx context.Context, id uuid.UUID) (*models.ClientUser, error)
	SaveClientUser(ctx context.Context, u *models.ClientUser) error
	CompanyUser(ctx context.Context, id uuid.UUID) (*models.CompanyUser, error)
	SaveCompanyUser(ctx context.Context, u *models.CompanyUser) error
	Staff(ctx context.Context, id uuid.UUID) (*models.Staff, error)
	// StaffByEmail matches case-insensitively.
	StaffByEmail(ctx context.Context, email string) (*models.Staff, error)
	SaveStaff(ctx context.Context, s *models.Staff) error
	StaffSatellites(ctx context.Context, staffID uuid.UUID) (*models.StaffSatellites, error)
	SaveStaffSatellites(ctx context.Context, staffID uuid.UUID, s *models.StaffSatellites) error
	// Pattern returns the pattern with its terms ordered by position and
	// display order.
	Pattern(ctx context.Context, id uuid.UUID) (*models.ContractPattern, error)
	SavePattern(ctx context.Context, p *models.ContractPattern) error
}

// ContractFilter narrows contract listings. Zero values do not filter.
type ContractFilter struct {
	CounterpartyID uuid.UUID
	Status         models.Status
	TypeCode       string
	// Query matches contract name, number and counterparty name.
	Query string
	Limit int
}

type ContractRepo interface {
	ClientContract(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.ClientContract, error)
	ListClientContracts(ctx context.Context, f ContractFilter) ([]models.ClientContract, error)
	InsertClientContract(ctx context.Context, c *models.ClientContract) error
	// UpdateClientContract writes c and its haken satellite when c.Version
	// matches, then bumps c.Version.
	UpdateClientContract(ctx context.Context, c *models.ClientContract) error
	DeleteClientContract(ctx context.Context, id uuid.UUID) error

	StaffContract(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.StaffContract, error)
	ListStaffContracts(ctx context.Context, f ContractFilter) ([]models.StaffContract, error)
	InsertStaffContract(ctx context.Context, c *models.StaffContract) error
	UpdateStaffContract(ctx context.Context, c *models.StaffContract) error
	DeleteStaffContract(ctx context.Context, id uuid.UUID) error
}

// AssignmentLine is one assignment joined with the fields the conflict
// date calculation reads. OrganizationName is nil without a haken unit.
type AssignmentLine struct {
	AssignmentID          uuid.UUID
	StaffEmail            string
	EmploymentTypeCode    string
	StaffStartDate        time.Time
	ClientTypeCode        string
	ClientCorporateNumber string
	OrganizationName      *string
}

// LineFilter narrows AssignmentLines. Empty fields do not filter.
type LineFilter struct {
	AssignmentID          uuid.UUID
	StaffEmail            string
	ClientCorporateNumber string
}

type AssignmentRepo interface {
	Assignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	// InsertAssignment returns ErrConflict for a duplicate pair.
	InsertAssignment(ctx context.Context, a *models.Assignment) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
	AssignmentsByClient(ctx context.Context, clientContractID uuid.UUID) ([]models.Assignment, error)
	AssignmentsByStaff(ctx context.Context, staffContractID uuid.UUID) ([]models.Assignment, error)
	AssignmentLines(ctx context.Context, f LineFilter) ([]AssignmentLine, error)
}

type PrintRepo interface {
	InsertPrint(ctx context.Context, p *models.Print) error
	// Prints lists newest first.
	Prints(ctx context.Context, side models.Side, contractID uuid.UUID) ([]models.Print, error)
	Print(ctx context.Context, id uuid.UUID) (*models.Print, error)
	// DeletePrints removes every print of a contract and returns them.
	DeletePrints(ctx context.Context, side models.Side, contractID uuid.UUID) ([]models.Print, error)
}

type TeishokubiFilter struct {
	StaffEmail string
	Query      string
	Limit      int
}

type TeishokubiRepo interface {
	Teishokubi(ctx context.Context, key models.TeishokubiKey) (*models.Teishokubi, error)
	UpsertTeishokubi(ctx context.Context, t *models.Teishokubi) error
	DeleteTeishokubi(ctx context.Context, key models.TeishokubiKey) error
	ListTeishokubi(ctx context.Context, f TeishokubiFilter) ([]models.Teishokubi, error)
	DeleteAllTeishokubi(ctx context.Context) (int, error)
}

type AuditQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	Action    models.AuditAction
	ModelName string
	ObjectID  string
	// Repr matches a substring of the object representation.
	Repr   string
	Limit  int
	Offset int
}

type AuditRepo interface {
	InsertAudit(ctx context.Context, e *models.AuditEvent) error
	// AuditEvents lists newest first.
	AuditEvents(ctx context.Context, q AuditQuery) ([]models.AuditEvent, error)
}

type Sequence struct {
	Letter string `json:"letter"`
	Year   int    `json:"year"`
	Last   int    `json:"last"`
}

type SequenceRepo interface {
	// NextSequence locks the (letter, year) row, increments it and returns
	// the new value. A lock wait beyond the store's limit returns ErrLocked.
	NextSequence(ctx context.Context, letter string, year int) (int, error)
	Sequences(ctx context.Context) ([]Sequence, error)
}

type AgreementRepo interface {
	Agreement(ctx context.Context, id uuid.UUID) (*models.StaffAgreement, error)
	// Agreements lists by display order; activeOnly drops inactive texts.
	Agreements(ctx context.Context, activeOnly bool) ([]models.StaffAgreement, error)
	SaveAgreement(ctx context.Context, a *models.StaffAgreement) error
	DeleteAgreement(ctx context.Context, id uuid.UUID) error
	Acceptances(ctx context.Context, email string) ([]models.AgreementAcceptance, error)
	SaveAcceptance(ctx context.Context, a *models.AgreementAcceptance) error
	// ClearAcceptances unsets is_agreed on every acceptance of agreementID.
	ClearAcceptances(ctx context.Context, agreementID uuid.UUID) (int, error)
	DeleteAcceptancesByAgreement(ctx context.Context, agreementID uuid.UUID) error
	DeleteAcceptancesByEmail(ctx context.Context, email string) error
}

type ConnectRepo interface {
	ConnectStaff(ctx context.Context, id uuid.UUID) (*models.ConnectStaff, error)
	ConnectStaffByEmail(ctx context.Context, email string) (*models.ConnectStaff, error)
	ListConnectStaff(ctx context.Context) ([]models.ConnectStaff, error)
	SaveConnectStaff(ctx context.Context, c *models.ConnectStaff) error
	DeleteConnectStaff(ctx context.Context, id uuid.UUID) error

	ConnectClient(ctx context.Context, id uuid.UUID) (*models.ConnectClient, error)
	ConnectClientByEmail(ctx context.Context, email string) (*models.ConnectClient, error)
	ListConnectClient(ctx context.Context) ([]models.ConnectClient, error)
	SaveConnectClient(ctx context.Context, c *models.ConnectClient) error
	DeleteConnectClient(ctx context.Context, id uuid.UUID) error

	InsertDerivedRequest(ctx context.Context, r *models.DerivedRequest) error
	DerivedRequests(ctx context.Context, connectStaffID uuid.UUID) ([]models.DerivedRequest, error)
	DeleteDerivedRequests(ctx context.Context, connectStaffID uuid.UUID) error
}
