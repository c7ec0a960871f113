package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/queaccounting/backend/internal/domain"
)

// PostgresMembershipRepository implements domain.MembershipRepository using PostgreSQL
type PostgresMembershipRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresMembershipRepository creates a new membership repository
func NewPostgresMembershipRepository(db *sql.DB, logger *slog.Logger) *PostgresMembershipRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMembershipRepository{db: db, logger: logger}
}

const membershipSelect = `
	SELECT bu.id, bu.user_id, bu.business_id, bu.role_id, bu.is_active, bu.created_at
	FROM business_users bu
`

func scanMembership(row rowScanner) (*domain.Membership, error) {
	m := &domain.Membership{}
	err := row.Scan(&m.ID, &m.UserID, &m.BusinessID, &m.RoleID, &m.IsActive, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	return m, nil
}

// Create creates a new membership
func (r *PostgresMembershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `
		INSERT INTO business_users (id, user_id, business_id, role_id, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.UserID, m.BusinessID, m.RoleID, m.IsActive,
	).Scan(&m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// GetForAuthorization loads the membership for (userID, businessID) with the
// role, its permissions, and direct user grants all attached. This is the
// single query path the request pipeline depends on.
func (r *PostgresMembershipRepository) GetForAuthorization(ctx context.Context, userID, businessID string) (*domain.Membership, error) {
	m, err := r.GetByUserAndBusiness(ctx, userID, businessID)
	if err != nil {
		return nil, err
	}
	if err := r.attachAuthorizationData(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByID retrieves a membership with authorization data attached
func (r *PostgresMembershipRepository) GetByID(ctx context.Context, id string) (*domain.Membership, error) {
	m, err := scanMembership(r.db.QueryRowContext(ctx, membershipSelect+` WHERE bu.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachAuthorizationData(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetByUserAndBusiness retrieves the bare membership row for a user in a business
func (r *PostgresMembershipRepository) GetByUserAndBusiness(ctx context.Context, userID, businessID string) (*domain.Membership, error) {
	return scanMembership(r.db.QueryRowContext(ctx,
		membershipSelect+` WHERE bu.user_id = $1 AND bu.business_id = $2`, userID, businessID))
}

// FirstActiveForUser returns the user's oldest active membership
func (r *PostgresMembershipRepository) FirstActiveForUser(ctx context.Context, userID string) (*domain.Membership, error) {
	query := membershipSelect + `
		WHERE bu.user_id = $1 AND bu.is_active = true
		ORDER BY bu.created_at ASC
		LIMIT 1
	`
	return scanMembership(r.db.QueryRowContext(ctx, query, userID))
}

// ListByBusiness returns all memberships in a business with user details and
// role names for display.
func (r *PostgresMembershipRepository) ListByBusiness(ctx context.Context, businessID string) ([]*domain.Membership, error) {
	query := `
		SELECT bu.id, bu.user_id, bu.business_id, bu.role_id, bu.is_active, bu.created_at,
		       u.name, u.email, r.name
		FROM business_users bu
		JOIN users u ON u.id = bu.user_id
		JOIN roles r ON r.id = bu.role_id
		WHERE bu.business_id = $1
		ORDER BY bu.created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var members []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{}
		var roleName string
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.BusinessID, &m.RoleID, &m.IsActive, &m.CreatedAt,
			&m.UserName, &m.UserEmail, &roleName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Role = &domain.Role{ID: m.RoleID, Name: roleName, BusinessID: m.BusinessID}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListForUser returns all of a user's memberships with business names attached
func (r *PostgresMembershipRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	query := `
		SELECT bu.id, bu.user_id, bu.business_id, bu.role_id, bu.is_active, bu.created_at,
		       b.name
		FROM business_users bu
		JOIN businesses b ON b.id = bu.business_id
		WHERE bu.user_id = $1
		ORDER BY bu.created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	defer rows.Close()

	var members []*domain.Membership
	for rows.Next() {
		m := &domain.Membership{}
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.BusinessID, &m.RoleID, &m.IsActive, &m.CreatedAt,
			&m.BusinessName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetActive toggles a membership's active flag
func (r *PostgresMembershipRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE business_users SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a membership; direct grants cascade via foreign keys
func (r *PostgresMembershipRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM business_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresMembershipRepository) attachAuthorizationData(ctx context.Context, m *domain.Membership) error {
	role := &domain.Role{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, business_id, created_at FROM roles WHERE id = $1`, m.RoleID,
	).Scan(&role.ID, &role.Name, &role.BusinessID, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("membership %s references missing role %s: %w", m.ID, m.RoleID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to load membership role: %w", err)
	}

	rolePerms, err := r.loadPermissions(ctx, `
		SELECT p.id, p.module, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
	`, role.ID)
	if err != nil {
		return err
	}
	role.Permissions = rolePerms
	m.Role = role

	userPerms, err := r.loadPermissions(ctx, `
		SELECT p.id, p.module, p.action
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.business_user_id = $1
	`, m.ID)
	if err != nil {
		return err
	}
	m.UserPermissions = userPerms
	return nil
}

func (r *PostgresMembershipRepository) loadPermissions(ctx context.Context, query, arg string) ([]domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	var perms []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
