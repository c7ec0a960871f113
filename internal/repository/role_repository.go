package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/queaccounting/backend/internal/domain"
)

// PostgresRoleRepository implements domain.RoleRepository using PostgreSQL
type PostgresRoleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRoleRepository creates a new role repository
func NewPostgresRoleRepository(db *sql.DB, logger *slog.Logger) *PostgresRoleRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRoleRepository{db: db, logger: logger}
}

// GetByID retrieves a role with its permissions eager-loaded
func (r *PostgresRoleRepository) GetByID(ctx context.Context, id string) (*domain.Role, error) {
	return r.getOne(ctx, `WHERE r.id = $1`, id)
}

// GetByName retrieves a role by name within a business
func (r *PostgresRoleRepository) GetByName(ctx context.Context, businessID, name string) (*domain.Role, error) {
	return r.getOne(ctx, `WHERE r.business_id = $1 AND r.name = $2`, businessID, name)
}

func (r *PostgresRoleRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Role, error) {
	role := &domain.Role{}
	query := `SELECT r.id, r.name, r.business_id, r.created_at FROM roles r ` + where
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&role.ID, &role.Name, &role.BusinessID, &role.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	perms, err := r.rolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return role, nil
}

// ListByBusiness returns all roles in a business with permissions attached
func (r *PostgresRoleRepository) ListByBusiness(ctx context.Context, businessID string) ([]*domain.Role, error) {
	query := `
		SELECT id, name, business_id, created_at
		FROM roles
		WHERE business_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		role := &domain.Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.BusinessID, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, role := range roles {
		perms, err := r.rolePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	return roles, nil
}

func (r *PostgresRoleRepository) rolePermissions(ctx context.Context, roleID string) ([]domain.Permission, error) {
	query := `
		SELECT p.id, p.module, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.module, p.action
	`
	rows, err := r.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
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
