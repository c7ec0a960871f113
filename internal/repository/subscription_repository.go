package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/queaccounting/backend/internal/domain"
)

const subscriptionSelect = `
	SELECT id, business_id, status, start_date, expires_at, plan_name, notes, created_at, updated_at
	FROM subscriptions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	sub := &domain.Subscription{}
	var startDate, expiresAt sql.NullTime
	var planName, notes sql.NullString
	err := row.Scan(
		&sub.ID, &sub.BusinessID, &sub.Status, &startDate, &expiresAt,
		&planName, &notes, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	if startDate.Valid {
		sub.StartDate = &startDate.Time
	}
	if expiresAt.Valid {
		sub.ExpiresAt = &expiresAt.Time
	}
	sub.PlanName = planName.String
	sub.Notes = notes.String
	return sub, nil
}

// PostgresSubscriptionRepository implements domain.SubscriptionRepository using PostgreSQL
type PostgresSubscriptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSubscriptionRepository creates a new subscription repository
func NewPostgresSubscriptionRepository(db *sql.DB, logger *slog.Logger) *PostgresSubscriptionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSubscriptionRepository{db: db, logger: logger}
}

// GetByBusinessID retrieves the subscription for a business
func (r *PostgresSubscriptionRepository) GetByBusinessID(ctx context.Context, businessID string) (*domain.Subscription, error) {
	return scanSubscription(r.db.QueryRowContext(ctx, subscriptionSelect+` WHERE business_id = $1`, businessID))
}

// Update persists subscription state changes
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET status = $1, start_date = $2, expires_at = $3, plan_name = $4, notes = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		sub.Status, sub.StartDate, sub.ExpiresAt, nullIfEmpty(sub.PlanName), nullIfEmpty(sub.Notes), sub.ID,
	).Scan(&sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// List returns subscriptions, optionally filtered by stored status, paginated
// newest first.
func (r *PostgresSubscriptionRepository) List(ctx context.Context, status string, page, limit int) ([]*domain.Subscription, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := subscriptionSelect
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountActive counts subscriptions that are active against the clock, not just
// by stored status.
func (r *PostgresSubscriptionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM subscriptions WHERE status = $1 AND expires_at > $2`
	if err := r.db.QueryRowContext(ctx, query, domain.SubscriptionActive, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active subscriptions: %w", err)
	}
	return count, nil
}

// CountExpired counts subscriptions that are lapsed: stored EXPIRED, or stored
// ACTIVE with an expiry in the past.
func (r *PostgresSubscriptionRepository) CountExpired(ctx context.Context, now time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM subscriptions
		WHERE status = $1 OR (status = $2 AND expires_at <= $3)
	`
	if err := r.db.QueryRowContext(ctx, query, domain.SubscriptionExpired, domain.SubscriptionActive, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count expired subscriptions: %w", err)
	}
	return count, nil
}

// CountByStatus returns counts keyed by stored status
func (r *PostgresSubscriptionRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM subscriptions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
