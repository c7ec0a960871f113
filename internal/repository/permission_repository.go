package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/queaccounting/backend/internal/domain"
)

// PostgresPermissionRepository implements domain.PermissionRepository using PostgreSQL
type PostgresPermissionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPermissionRepository creates a new permission repository
func NewPostgresPermissionRepository(db *sql.DB, logger *slog.Logger) *PostgresPermissionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPermissionRepository{db: db, logger: logger}
}

// ListCatalog returns every permission in the global catalog
func (r *PostgresPermissionRepository) ListCatalog(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, module, action FROM permissions ORDER BY module, action`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// FindByModuleActions returns catalog entries matching a module and any of the
// given actions.
func (r *PostgresPermissionRepository) FindByModuleActions(ctx context.Context, module string, actions []string) ([]domain.Permission, error) {
	query := `
		SELECT id, module, action
		FROM permissions
		WHERE module = $1 AND action = ANY($2)
		ORDER BY action
	`
	rows, err := r.db.QueryContext(ctx, query, module, pq.Array(actions))
	if err != nil {
		return nil, fmt.Errorf("failed to find permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// CreateModule adds a module and its actions to the catalog
func (r *PostgresPermissionRepository) CreateModule(ctx context.Context, name string, actions []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, action := range actions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO permissions (id, module, action) VALUES ($1, $2, $3)`,
			uuid.NewString(), name, action,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicate
			}
			return fmt.Errorf("failed to insert permission %s:%s: %w", name, action, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit module creation: %w", err)
	}
	return nil
}

// ListModules groups the catalog by module name
func (r *PostgresPermissionRepository) ListModules(ctx context.Context) ([]domain.ModuleDef, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT module, action FROM permissions ORDER BY module, action`)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []domain.ModuleDef
	for rows.Next() {
		var module, action string
		if err := rows.Scan(&module, &action); err != nil {
			return nil, fmt.Errorf("failed to scan module row: %w", err)
		}
		if len(modules) == 0 || modules[len(modules)-1].Name != module {
			modules = append(modules, domain.ModuleDef{Name: module})
		}
		last := &modules[len(modules)-1]
		last.Actions = append(last.Actions, action)
	}
	return modules, rows.Err()
}

// ReplaceModuleActions swaps a module's action set. Removed permissions cascade
// out of role and user grants via foreign keys; surviving actions keep their
// ids so existing grants remain intact.
func (r *PostgresPermissionRepository) ReplaceModuleActions(ctx context.Context, name string, actions []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM permissions WHERE module = $1`, name).Scan(&count); err != nil {
		return fmt.Errorf("failed to check module: %w", err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM permissions WHERE module = $1 AND action != ALL($2)`,
		name, pq.Array(actions),
	)
	if err != nil {
		return fmt.Errorf("failed to remove dropped actions: %w", err)
	}

	for _, action := range actions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (id, module, action)
			VALUES ($1, $2, $3)
			ON CONFLICT (module, action) DO NOTHING
		`, uuid.NewString(), name, action)
		if err != nil {
			return fmt.Errorf("failed to upsert permission %s:%s: %w", name, action, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit module update: %w", err)
	}
	return nil
}

// DeleteModule removes a module and all its permissions from the catalog
func (r *PostgresPermissionRepository) DeleteModule(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM permissions WHERE module = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
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

// GrantToMembership attaches direct permissions to a membership, skipping
// grants that already exist.
func (r *PostgresPermissionRepository) GrantToMembership(ctx context.Context, membershipID string, permissionIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pid := range permissionIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_permissions (business_user_id, permission_id)
			VALUES ($1, $2)
			ON CONFLICT (business_user_id, permission_id) DO NOTHING
		`, membershipID, pid)
		if err != nil {
			return fmt.Errorf("failed to grant permission: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grants: %w", err)
	}
	return nil
}

// RevokeFromMembership removes direct permissions from a membership. Revoking
// a permission that was never granted is a no-op.
func (r *PostgresPermissionRepository) RevokeFromMembership(ctx context.Context, membershipID string, permissionIDs []string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_permissions WHERE business_user_id = $1 AND permission_id = ANY($2)`,
		membershipID, pq.Array(permissionIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke permissions: %w", err)
	}
	return nil
}

// ListForMembership returns the direct grants attached to a membership
func (r *PostgresPermissionRepository) ListForMembership(ctx context.Context, membershipID string) ([]domain.Permission, error) {
	query := `
		SELECT p.id, p.module, p.action
		FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		WHERE up.business_user_id = $1
		ORDER BY p.module, p.action
	`
	rows, err := r.db.QueryContext(ctx, query, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]domain.Permission, error) {
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
