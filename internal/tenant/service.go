package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/staffcore/internal/apperr"
	"github.com/nikhilbhutani/staffcore/internal/models"
)

// ErrTenantNotFound is returned by a Directory for an unknown tenant.
var ErrTenantNotFound = errors.New("tenant not found")

// Directory looks tenants up outside of any tenant scope.
type Directory interface {
	Tenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	TenantByCorporateNumber(ctx context.Context, corporateNumber string) (*models.Tenant, error)
	Tenants(ctx context.Context) ([]models.Tenant, error)
}

type Service struct {
	dir Directory
}

func NewService(dir Directory) *Service {
	return &Service{dir: dir}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := s.dir.Tenant(ctx, id)
	if errors.Is(err, ErrTenantNotFound) {
		return nil, apperr.NotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (s *Service) GetByCorporateNumber(ctx context.Context, corporateNumber string) (*models.Tenant, error) {
	cn, err := NormalizeCorporateNumber(corporateNumber)
	if err != nil {
		return nil, apperr.Validation(map[string]string{"corporate_number": err.Error()})
	}
	t, err := s.dir.TenantByCorporateNumber(ctx, cn)
	if errors.Is(err, ErrTenantNotFound) {
		return nil, apperr.NotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by corporate number: %w", err)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context) ([]models.Tenant, error) {
	ts, err := s.dir.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return ts, nil
}

// Scope resolves the tenant a request runs under: the session override for
// privileged operators that switched, otherwise the credential's home
// tenant. There is no implicit fallback tenant.
func (s *Service) Scope(ctx context.Context, a *Actor, override uuid.UUID) (context.Context, error) {
	id := a.HomeTenantID
	if override != uuid.Nil {
		if !a.Privileged {
			return nil, apperr.PermissionDenied("tenant switch requires a privileged operator")
		}
		id = override
	}
	if id == uuid.Nil {
		return nil, apperr.PermissionDenied("no tenant bound to credential")
	}
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return WithActor(WithTenant(ctx, t), a), nil
}
