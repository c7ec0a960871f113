package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/queaccounting/backend/internal/domain"
)

// PostgresBusinessRepository implements domain.BusinessRepository using PostgreSQL
type PostgresBusinessRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresBusinessRepository creates a new business repository
func NewPostgresBusinessRepository(db *sql.DB, logger *slog.Logger) *PostgresBusinessRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBusinessRepository{db: db, logger: logger}
}

// GetByID retrieves a business with its subscription eager-loaded
func (r *PostgresBusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	b := &domain.Business{}
	query := `
		SELECT id, name, owner_id, is_active, created_at, updated_at
		FROM businesses
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Name, &b.OwnerID, &b.IsActive, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, subscriptionSelect+` WHERE business_id = $1`, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	b.Subscription = sub
	return b, nil
}

// SetActive flips the business active flag
func (r *PostgresBusinessRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE businesses SET is_active = $1, updated_at = now() WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("failed to update business: %w", err)
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

// Count returns the total number of businesses
func (r *PostgresBusinessRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM businesses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count businesses: %w", err)
	}
	return count, nil
}
