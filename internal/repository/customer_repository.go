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

// PostgresCustomerRepository implements domain.CustomerRepository using PostgreSQL.
// Every query is scoped by business id so one tenant can never address
// another's customers by guessing ids.
type PostgresCustomerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCustomerRepository creates a new customer repository
func NewPostgresCustomerRepository(db *sql.DB, logger *slog.Logger) *PostgresCustomerRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCustomerRepository{db: db, logger: logger}
}

// Create creates a new customer
func (r *PostgresCustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO customers (id, business_id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.ID, c.BusinessID, c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Address),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetByID retrieves a customer within a business
func (r *PostgresCustomerRepository) GetByID(ctx context.Context, businessID, id string) (*domain.Customer, error) {
	c := &domain.Customer{}
	var email, phone, address sql.NullString
	query := `
		SELECT id, business_id, name, email, phone, address, created_at, updated_at
		FROM customers
		WHERE business_id = $1 AND id = $2
	`
	err := r.db.QueryRowContext(ctx, query, businessID, id).Scan(
		&c.ID, &c.BusinessID, &c.Name, &email, &phone, &address, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	c.Email, c.Phone, c.Address = email.String, phone.String, address.String
	return c, nil
}

// ListByBusiness returns all customers of a business, newest first
func (r *PostgresCustomerRepository) ListByBusiness(ctx context.Context, businessID string) ([]*domain.Customer, error) {
	query := `
		SELECT id, business_id, name, email, phone, address, created_at, updated_at
		FROM customers
		WHERE business_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		c := &domain.Customer{}
		var email, phone, address sql.NullString
		if err := rows.Scan(
			&c.ID, &c.BusinessID, &c.Name, &email, &phone, &address, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Email, c.Phone, c.Address = email.String, phone.String, address.String
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// Update updates a customer within its business
func (r *PostgresCustomerRepository) Update(ctx context.Context, c *domain.Customer) error {
	query := `
		UPDATE customers
		SET name = $1, email = $2, phone = $3, address = $4, updated_at = now()
		WHERE business_id = $5 AND id = $6
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Phone), nullIfEmpty(c.Address), c.BusinessID, c.ID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return nil
}

// Delete removes a customer within its business
func (r *PostgresCustomerRepository) Delete(ctx context.Context, businessID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM customers WHERE business_id = $1 AND id = $2`, businessID, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
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
