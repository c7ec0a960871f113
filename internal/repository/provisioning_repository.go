package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/queaccounting/backend/internal/domain"
)

// PostgresProvisioningRepository creates complete tenants in a single
// transaction. Provisioning touches six tables; either all rows land or none.
type PostgresProvisioningRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresProvisioningRepository creates a new provisioning repository
func NewPostgresProvisioningRepository(db *sql.DB, logger *slog.Logger) *PostgresProvisioningRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresProvisioningRepository{db: db, logger: logger}
}

// CreateBusiness provisions a tenant: the business row (inactive), an INACTIVE
// subscription, an Admin role holding the entire current catalog, an empty
// User role, the owner's Admin membership, and the owner's remembered active
// business pointer.
func (r *PostgresProvisioningRepository) CreateBusiness(ctx context.Context, ownerID, name string) (*domain.Business, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin provisioning transaction: %w", err)
	}
	defer tx.Rollback()

	business := &domain.Business{
		ID:       uuid.NewString(),
		Name:     name,
		OwnerID:  ownerID,
		IsActive: false,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO businesses (id, name, owner_id, is_active)
		VALUES ($1, $2, $3, false)
		RETURNING created_at, updated_at
	`, business.ID, business.Name, business.OwnerID).Scan(&business.CreatedAt, &business.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicate
		}
		return nil, fmt.Errorf("%w: business insert: %v", domain.ErrProvisioningFailed, err)
	}

	sub := &domain.Subscription{
		ID:         uuid.NewString(),
		BusinessID: business.ID,
		Status:     domain.SubscriptionInactive,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, business_id, status)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, sub.ID, sub.BusinessID, sub.Status).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: subscription insert: %v", domain.ErrProvisioningFailed, err)
	}
	business.Subscription = sub

	adminRoleID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO roles (id, name, business_id) VALUES ($1, $2, $3)
	`, adminRoleID, domain.RoleNameAdmin, business.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: admin role insert: %v", domain.ErrProvisioningFailed, err)
	}

	// The Admin role receives the full catalog for inspectability. The
	// evaluator treats role name "Admin" as a structural bypass, so these
	// rows are informational rather than load-bearing.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, id FROM permissions
	`, adminRoleID)
	if err != nil {
		return nil, fmt.Errorf("%w: admin grants insert: %v", domain.ErrProvisioningFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO roles (id, name, business_id) VALUES ($1, $2, $3)
	`, uuid.NewString(), domain.RoleNameUser, business.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: user role insert: %v", domain.ErrProvisioningFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO business_users (id, user_id, business_id, role_id, is_active)
		VALUES ($1, $2, $3, $4, true)
	`, uuid.NewString(), ownerID, business.ID, adminRoleID)
	if err != nil {
		return nil, fmt.Errorf("%w: owner membership insert: %v", domain.ErrProvisioningFailed, err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET active_business_id = $1, updated_at = now() WHERE id = $2
	`, business.ID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: active business update: %v", domain.ErrProvisioningFailed, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: active business update: %v", domain.ErrProvisioningFailed, err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: owner %s not found", domain.ErrProvisioningFailed, ownerID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrProvisioningFailed, err)
	}

	r.logger.Info("business provisioned",
		slog.String("business_id", business.ID),
		slog.String("owner_id", ownerID),
	)
	return business, nil
}
