package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/observability/metrics"
	"github.com/queaccounting/backend/internal/security/audit"
)

// BusinessService handles tenant provisioning and business switching
type BusinessService struct {
	provisioning domain.ProvisioningRepository
	businesses   domain.BusinessRepository
	memberships  domain.MembershipRepository
	users        domain.UserRepository
	authService  *AuthService
	auditLog     *audit.Logger
	logger       *slog.Logger
}

// NewBusinessService creates a new business service
func NewBusinessService(
	provisioning domain.ProvisioningRepository,
	businesses domain.BusinessRepository,
	memberships domain.MembershipRepository,
	users domain.UserRepository,
	authService *AuthService,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *BusinessService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusinessService{
		provisioning: provisioning,
		businesses:   businesses,
		memberships:  memberships,
		users:        users,
		authService:  authService,
		auditLog:     auditLog,
		logger:       logger,
	}
}

// CreateBusinessResult carries the provisioned business and fresh tokens
// pointing at it.
type CreateBusinessResult struct {
	Business *domain.Business `json:"business"`
	Auth     *AuthResult      `json:"auth"`
}

// CreateBusiness provisions a complete tenant for the caller and reissues
// their tokens so the new business is immediately the active one.
func (s *BusinessService) CreateBusiness(ctx context.Context, principal *domain.Principal, name string) (*CreateBusinessResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("business name is required")
	}
	if principal.BootstrapAdmin {
		return nil, fmt.Errorf("bootstrap admin cannot own a business: %w", domain.ErrProvisioningFailed)
	}

	start := time.Now()
	business, err := s.provisioning.CreateBusiness(ctx, principal.ID, name)
	if err != nil {
		metrics.ObserveProvisioning("error", time.Since(start))
		s.auditLog.LogProvisioning(ctx, "", principal.ID, "failed")
		return nil, err
	}
	metrics.ObserveProvisioning("success", time.Since(start))
	s.auditLog.LogProvisioning(ctx, business.ID, principal.ID, "created")

	user, err := s.users.GetByID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload owner: %w", err)
	}
	authResult, err := s.authService.IssueForUser(ctx, user)
	if err != nil {
		return nil, err
	}

	return &CreateBusinessResult{Business: business, Auth: authResult}, nil
}

// GetBusiness returns a business with its subscription
func (s *BusinessService) GetBusiness(ctx context.Context, id string) (*domain.Business, error) {
	return s.businesses.GetByID(ctx, id)
}

// SwitchBusiness changes the caller's remembered active business. The caller
// must hold an active membership in the target or own it outright; a denial
// leaves the remembered business untouched and issues no new tokens.
func (s *BusinessService) SwitchBusiness(ctx context.Context, principal *domain.Principal, businessID string) (*AuthResult, error) {
	business, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	if business.OwnerID != principal.ID {
		membership, err := s.memberships.GetByUserAndBusiness(ctx, principal.ID, businessID)
		if err != nil {
			if err == domain.ErrNotFound {
				return nil, domain.ErrNotAMember
			}
			return nil, err
		}
		if !membership.IsActive {
			return nil, domain.ErrMembershipDisabled
		}
	}

	if err := s.users.SetActiveBusiness(ctx, principal.ID, businessID); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}

	s.logger.Info("business switched",
		slog.String("user_id", principal.ID),
		slog.String("business_id", businessID),
	)
	return s.authService.IssueForUser(ctx, user)
}
