package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/security/auth"
)

// ErrInvalidCredentials is returned for any authentication failure a caller
// should not be able to distinguish.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService handles registration, login and token refresh
type AuthService struct {
	users       domain.UserRepository
	memberships domain.MembershipRepository
	tokens      *auth.TokenManager
	logger      *slog.Logger

	bootstrapEmail    string
	bootstrapPassword string
}

// NewAuthService creates a new authentication service. Bootstrap credentials
// may be empty, which disables the bootstrap admin login path.
func NewAuthService(
	users domain.UserRepository,
	memberships domain.MembershipRepository,
	tokens *auth.TokenManager,
	bootstrapEmail, bootstrapPassword string,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:             users,
		memberships:       memberships,
		tokens:            tokens,
		logger:            logger,
		bootstrapEmail:    bootstrapEmail,
		bootstrapPassword: bootstrapPassword,
	}
}

// BusinessRef is a business the caller belongs to, listed on sign-in so
// clients can offer a switcher without a second round trip.
type BusinessRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuthResult is returned from login, registration and refresh. Businesses is
// always present; the bootstrap admin gets an empty list since it belongs to
// no tenant.
type AuthResult struct {
	UserID           string        `json:"userId"`
	Name             string        `json:"name,omitempty"`
	Email            string        `json:"email"`
	Role             string        `json:"role"`
	ActiveBusinessID string        `json:"activeBusinessId,omitempty"`
	Businesses       []BusinessRef `json:"businesses"`
	Token            string        `json:"token"`
	RefreshToken     string        `json:"refreshToken,omitempty"`
}

// Register creates a new user account and signs them in
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("name, email and password are required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to register user")
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.CoarseRoleUser,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("email", email))
	return s.issueFor(ctx, user)
}

// Login authenticates a user. The environment-configured bootstrap admin is
// matched first and never touches the user store; everyone else is verified
// against their stored bcrypt hash. A deactivated account is refused even with
// the right password; only an administrator can turn it back on.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	if s.isBootstrapAdmin(email, password) {
		return s.issueBootstrap(email)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Info("login attempt for unknown email", slog.String("email", email))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed", slog.String("email", email))
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("login refused for deactivated account", slog.String("user_id", user.ID))
		return nil, domain.ErrAccountInactive
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return s.issueFor(ctx, user)
}

// Refresh exchanges a valid refresh token for a fresh access token. The user
// is re-fetched so revoked accounts lose access at the refresh boundary.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	if claims.BootstrapAdmin {
		return s.issueBootstrap(claims.Email)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, domain.ErrAuthRequired
	}
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}
	return s.issueFor(ctx, user)
}

// IssueForUser signs fresh tokens reflecting the user's current state. Used
// after provisioning and business switches so the client's token carries the
// new active business.
func (s *AuthService) IssueForUser(ctx context.Context, user *domain.User) (*AuthResult, error) {
	return s.issueFor(ctx, user)
}

// ListUsers returns every registered account, for platform administration
func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

func (s *AuthService) isBootstrapAdmin(email, password string) bool {
	if s.bootstrapEmail == "" || s.bootstrapPassword == "" {
		return false
	}
	emailMatch := subtle.ConstantTimeCompare([]byte(email), []byte(strings.ToLower(s.bootstrapEmail)))
	passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(s.bootstrapPassword))
	return emailMatch == 1 && passMatch == 1
}

func (s *AuthService) issueBootstrap(email string) (*AuthResult, error) {
	claims := auth.Claims{
		Email:          email,
		Role:           domain.CoarseRoleSuperAdmin,
		Active:         true,
		BootstrapAdmin: true,
	}
	token, err := s.tokens.Issue(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	s.logger.Info("bootstrap admin logged in", slog.String("email", email))
	return &AuthResult{
		Email:        email,
		Role:         domain.CoarseRoleSuperAdmin,
		Businesses:   []BusinessRef{},
		Token:        token,
		RefreshToken: refresh,
	}, nil
}

func (s *AuthService) issueFor(ctx context.Context, user *domain.User) (*AuthResult, error) {
	claims := auth.Claims{
		UserID:           user.ID,
		Email:            user.Email,
		Role:             user.Role,
		Active:           user.IsActive,
		ActiveBusinessID: user.ActiveBusinessID,
	}
	token, err := s.tokens.Issue(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	businesses, err := s.businessRefs(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		UserID:           user.ID,
		Name:             user.Name,
		Email:            user.Email,
		Role:             user.Role,
		ActiveBusinessID: user.ActiveBusinessID,
		Businesses:       businesses,
		Token:            token,
		RefreshToken:     refresh,
	}, nil
}

func (s *AuthService) businessRefs(ctx context.Context, userID string) ([]BusinessRef, error) {
	members, err := s.memberships.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user businesses: %w", err)
	}
	refs := make([]BusinessRef, 0, len(members))
	for _, m := range members {
		refs = append(refs, BusinessRef{ID: m.BusinessID, Name: m.BusinessName})
	}
	return refs, nil
}
