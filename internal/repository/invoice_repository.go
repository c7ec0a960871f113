package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/queaccounting/backend/internal/domain"
)

// PostgresInvoiceRepository implements domain.InvoiceRepository using PostgreSQL
type PostgresInvoiceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresInvoiceRepository creates a new invoice repository
func NewPostgresInvoiceRepository(db *sql.DB, logger *slog.Logger) *PostgresInvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresInvoiceRepository{db: db, logger: logger}
}

// IsRetryable reports whether an error from this package is a transient
// transaction conflict worth retrying.
func IsRetryable(err error) bool {
	return isSerializationFailure(err)
}

// CreateWithItems inserts an invoice and its line items in one transaction.
// The per-business invoice number is allocated inside the transaction while
// holding the business row lock, so concurrent creates cannot collide.
func (r *PostgresInvoiceRepository) CreateWithItems(ctx context.Context, inv *domain.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM businesses WHERE id = $1 FOR UPDATE`, inv.BusinessID,
	).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to lock business: %w", err)
	}

	number, err := nextSequenceNumber(ctx, tx,
		`SELECT COUNT(*) FROM invoices WHERE business_id = $1`, inv.BusinessID, "INV")
	if err != nil {
		return err
	}
	inv.InvoiceNumber = number

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Status = domain.InvoiceUnpaid
	inv.TotalAmount = 0
	for _, item := range inv.Items {
		inv.TotalAmount += float64(item.Quantity) * item.Price
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoices (id, business_id, customer_id, invoice_number, status, issued_date, due_date, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, inv.ID, inv.BusinessID, inv.CustomerID, inv.InvoiceNumber, inv.Status,
		inv.IssuedDate, inv.DueDate, inv.TotalAmount,
	).Scan(&inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	for i := range inv.Items {
		item := &inv.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.InvoiceID = inv.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, description, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, item.InvoiceID, item.Description, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice with its items, scoped by business
func (r *PostgresInvoiceRepository) GetByID(ctx context.Context, businessID, id string) (*domain.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx,
		invoiceSelect+` WHERE business_id = $1 AND id = $2`, businessID, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, invoice_id, description, quantity, price
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id
	`, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, item)
	}
	return inv, rows.Err()
}

// ListByBusiness returns all invoices for a business, newest first, without
// line items.
func (r *PostgresInvoiceRepository) ListByBusiness(ctx context.Context, businessID string) ([]*domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		invoiceSelect+` WHERE business_id = $1 ORDER BY created_at DESC`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateStatus sets an invoice's status and returns the updated invoice
func (r *PostgresInvoiceRepository) UpdateStatus(ctx context.Context, businessID, id, status string) (*domain.Invoice, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = $1 WHERE business_id = $2 AND id = $3`, status, businessID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, domain.ErrNotFound
	}
	return r.GetByID(ctx, businessID, id)
}

// RecordPayment inserts a payment while holding the invoice row lock, then
// reclassifies the invoice from the new paid total. Overpayment spawns a
// credit note for the excess; the payment row itself stays at the full amount
// received.
func (r *PostgresInvoiceRepository) RecordPayment(ctx context.Context, p *domain.Payment) (*domain.PaymentResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv := &domain.Invoice{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, business_id, customer_id, status, total_amount
		FROM invoices
		WHERE business_id = $1 AND id = $2
		FOR UPDATE
	`, p.BusinessID, p.InvoiceID).Scan(&inv.ID, &inv.BusinessID, &inv.CustomerID, &inv.Status, &inv.TotalAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock invoice: %w", err)
	}

	var paidSoFar float64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`, p.InvoiceID,
	).Scan(&paidSoFar)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now()
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (id, invoice_id, business_id, amount, payment_date, payment_mode, transaction_id, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, p.ID, p.InvoiceID, p.BusinessID, p.Amount, p.PaymentDate,
		nullIfEmpty(p.PaymentMode), nullIfEmpty(p.TransactionID), nullIfEmpty(p.Note), p.CreatedBy,
	).Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	result := &domain.PaymentResult{Payment: p}

	newTotal := paidSoFar + p.Amount
	status := domain.InvoicePartiallyPaid
	if newTotal >= inv.TotalAmount {
		status = domain.InvoicePaid
	}
	if excess := newTotal - inv.TotalAmount; excess > 0 {
		cn, err := r.createCreditNote(ctx, tx, inv, p, excess)
		if err != nil {
			return nil, err
		}
		result.CreditNote = cn
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE invoices SET status = $1 WHERE id = $2`, status, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return result, nil
}

func (r *PostgresInvoiceRepository) createCreditNote(ctx context.Context, tx *sql.Tx, inv *domain.Invoice, p *domain.Payment, excess float64) (*domain.CreditNote, error) {
	number, err := nextSequenceNumber(ctx, tx,
		`SELECT COUNT(*) FROM credit_notes WHERE business_id = $1`, inv.BusinessID, "CN")
	if err != nil {
		return nil, err
	}

	cn := &domain.CreditNote{
		ID:              uuid.NewString(),
		BusinessID:      inv.BusinessID,
		CustomerID:      inv.CustomerID,
		InvoiceID:       inv.ID,
		CreditNumber:    number,
		Amount:          excess,
		RemainingAmount: excess,
		Reason:          fmt.Sprintf("Overpayment on invoice %s", inv.ID),
		Status:          domain.CreditNoteOpen,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO credit_notes (id, business_id, customer_id, invoice_id, credit_number, amount, remaining_amount, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, cn.ID, cn.BusinessID, cn.CustomerID, cn.InvoiceID, cn.CreditNumber,
		cn.Amount, cn.RemainingAmount, cn.Reason, cn.Status,
	).Scan(&cn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit note: %w", err)
	}
	return cn, nil
}

// ListPayments returns payments for an invoice, oldest first
func (r *PostgresInvoiceRepository) ListPayments(ctx context.Context, businessID, invoiceID string) ([]*domain.Payment, error) {
	query := `
		SELECT id, invoice_id, business_id, amount, payment_date, payment_mode, transaction_id, note, created_by, created_at
		FROM payments
		WHERE business_id = $1 AND invoice_id = $2
		ORDER BY payment_date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, businessID, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p := &domain.Payment{}
		var mode, txnID, note sql.NullString
		if err := rows.Scan(
			&p.ID, &p.InvoiceID, &p.BusinessID, &p.Amount, &p.PaymentDate,
			&mode, &txnID, &note, &p.CreatedBy, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.PaymentMode, p.TransactionID, p.Note = mode.String, txnID.String, note.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListCreditNotes returns all credit notes for a business, newest first
func (r *PostgresInvoiceRepository) ListCreditNotes(ctx context.Context, businessID string) ([]*domain.CreditNote, error) {
	query := `
		SELECT id, business_id, customer_id, invoice_id, credit_number, amount, remaining_amount, reason, status, created_at
		FROM credit_notes
		WHERE business_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit notes: %w", err)
	}
	defer rows.Close()

	var notes []*domain.CreditNote
	for rows.Next() {
		cn := &domain.CreditNote{}
		var reason sql.NullString
		if err := rows.Scan(
			&cn.ID, &cn.BusinessID, &cn.CustomerID, &cn.InvoiceID, &cn.CreditNumber,
			&cn.Amount, &cn.RemainingAmount, &reason, &cn.Status, &cn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credit note: %w", err)
		}
		cn.Reason = reason.String
		notes = append(notes, cn)
	}
	return notes, rows.Err()
}

const invoiceSelect = `
	SELECT id, business_id, customer_id, invoice_number, status, issued_date, due_date, total_amount, created_at
	FROM invoices
`

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.BusinessID, &inv.CustomerID, &inv.InvoiceNumber, &inv.Status,
		&inv.IssuedDate, &inv.DueDate, &inv.TotalAmount, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	return inv, nil
}

// nextSequenceNumber allocates the next zero-padded document number, e.g.
// INV-0001. Callers must hold a lock that serializes allocation for the
// business.
func nextSequenceNumber(ctx context.Context, tx *sql.Tx, countQuery, businessID, prefix string) (string, error) {
	var count int
	if err := tx.QueryRowContext(ctx, countQuery, businessID).Scan(&count); err != nil {
		return "", fmt.Errorf("failed to count documents: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}
