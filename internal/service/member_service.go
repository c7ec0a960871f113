package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/audit"
)

// MemberService manages the people attached to a business
type MemberService struct {
	memberships domain.MembershipRepository
	roles       domain.RoleRepository
	users       domain.UserRepository
	businesses  domain.BusinessRepository
	auditLog    *audit.Logger
	logger      *slog.Logger
}

// NewMemberService creates a new member service
func NewMemberService(
	memberships domain.MembershipRepository,
	roles domain.RoleRepository,
	users domain.UserRepository,
	businesses domain.BusinessRepository,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *MemberService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemberService{
		memberships: memberships,
		roles:       roles,
		users:       users,
		businesses:  businesses,
		auditLog:    auditLog,
		logger:      logger,
	}
}

// List returns a business's members with their user details and role names
func (s *MemberService) List(ctx context.Context, businessID string) ([]*domain.Membership, error) {
	return s.memberships.ListByBusiness(ctx, businessID)
}

// Invite adds a user to a business under the given role. The invitee must
// already hold an account; inviting an unknown email is refused so a typo can
// never mint a phantom login. The membership is active immediately.
func (s *MemberService) Invite(ctx context.Context, actor *domain.Principal, businessID, email, roleID string) (*domain.Membership, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || roleID == "" {
		return nil, fmt.Errorf("email and role are required")
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.BusinessID != businessID {
		return nil, domain.ErrNotFound
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err == domain.ErrNotFound {
		return nil, fmt.Errorf("no account for %s, they must register first: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	existing, err := s.memberships.GetByUserAndBusiness(ctx, user.ID, businessID)
	if err == nil && existing != nil {
		return nil, domain.ErrDuplicate
	}
	if err != nil && err != domain.ErrNotFound {
		return nil, err
	}

	membership := &domain.Membership{
		UserID:     user.ID,
		BusinessID: businessID,
		RoleID:     roleID,
		IsActive:   true,
	}
	if err := s.memberships.Create(ctx, membership); err != nil {
		return nil, err
	}
	membership.Role = role
	membership.UserName = user.Name
	membership.UserEmail = user.Email

	s.auditLog.LogMembershipChange(ctx, businessID, actor.ID, membership.ID, "member_invite", "active")
	s.logger.Info("member invited",
		slog.String("business_id", businessID),
		slog.String("user_id", user.ID),
		slog.String("role", role.Name),
	)
	return membership, nil
}

// SetActive toggles a membership on or off. Deactivating the business's last
// active administrator is refused so the tenant can never lock itself out.
func (s *MemberService) SetActive(ctx context.Context, actor *domain.Principal, businessID, membershipID string, active bool) error {
	membership, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if membership.BusinessID != businessID {
		return domain.ErrNotFound
	}

	if !active {
		if err := s.guardLastAdmin(ctx, businessID, membership); err != nil {
			return err
		}
	}

	if err := s.memberships.SetActive(ctx, membershipID, active); err != nil {
		return err
	}

	status := "disabled"
	if active {
		status = "active"
	}
	s.auditLog.LogMembershipChange(ctx, businessID, actor.ID, membershipID, "member_toggle", status)
	return nil
}

// Remove deletes a membership and its direct grants. Removing the last active
// administrator is always refused, even when the remover is the owner.
func (s *MemberService) Remove(ctx context.Context, actor *domain.Principal, businessID, membershipID string) error {
	membership, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return err
	}
	if membership.BusinessID != businessID {
		return domain.ErrNotFound
	}

	if err := s.guardLastAdmin(ctx, businessID, membership); err != nil {
		return err
	}

	if err := s.memberships.Delete(ctx, membershipID); err != nil {
		return err
	}
	s.auditLog.LogMembershipChange(ctx, businessID, actor.ID, membershipID, "member_remove", "removed")
	return nil
}

// Roles returns the roles assignable within a business
func (s *MemberService) Roles(ctx context.Context, businessID string) ([]*domain.Role, error) {
	return s.roles.ListByBusiness(ctx, businessID)
}

func (s *MemberService) guardLastAdmin(ctx context.Context, businessID string, target *domain.Membership) error {
	if target.Role == nil || target.Role.Name != domain.RoleNameAdmin || !target.IsActive {
		return nil
	}
	members, err := s.memberships.ListByBusiness(ctx, businessID)
	if err != nil {
		return err
	}
	activeAdmins := 0
	for _, m := range members {
		if m.IsActive && m.Role != nil && m.Role.Name == domain.RoleNameAdmin {
			activeAdmins++
		}
	}
	if activeAdmins <= 1 {
		return domain.ErrLastAdmin
	}
	return nil
}
