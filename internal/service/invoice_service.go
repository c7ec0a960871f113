package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/observability/metrics"
	"github.com/queaccounting/backend/internal/reliability/retry"
	"github.com/queaccounting/backend/internal/repository"
)

// InvoiceService handles customers, invoices, payments and credit notes for a
// tenant. Payment recording retries transparently on transaction conflicts;
// everything else is single-statement work.
type InvoiceService struct {
	invoices  domain.InvoiceRepository
	customers domain.CustomerRepository
	retryCfg  *retry.Config
	logger    *slog.Logger
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	invoices domain.InvoiceRepository,
	customers domain.CustomerRepository,
	logger *slog.Logger,
) *InvoiceService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := retry.DefaultConfig()
	cfg.IsRetryable = repository.IsRetryable
	return &InvoiceService{
		invoices:  invoices,
		customers: customers,
		retryCfg:  cfg,
		logger:    logger,
	}
}

// CreateCustomer adds a customer to a business
func (s *InvoiceService) CreateCustomer(ctx context.Context, businessID string, c *domain.Customer) (*domain.Customer, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("customer name is required")
	}
	c.BusinessID = businessID
	if err := s.customers.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCustomer retrieves a customer within a business
func (s *InvoiceService) GetCustomer(ctx context.Context, businessID, id string) (*domain.Customer, error) {
	return s.customers.GetByID(ctx, businessID, id)
}

// ListCustomers returns a business's customers
func (s *InvoiceService) ListCustomers(ctx context.Context, businessID string) ([]*domain.Customer, error) {
	return s.customers.ListByBusiness(ctx, businessID)
}

// UpdateCustomer updates a customer within a business
func (s *InvoiceService) UpdateCustomer(ctx context.Context, businessID string, c *domain.Customer) (*domain.Customer, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("customer name is required")
	}
	c.BusinessID = businessID
	if err := s.customers.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCustomer removes a customer within a business
func (s *InvoiceService) DeleteCustomer(ctx context.Context, businessID, id string) error {
	return s.customers.Delete(ctx, businessID, id)
}

// CreateInvoice creates an invoice with its line items. The customer must
// belong to the business; the invoice number is allocated atomically.
func (s *InvoiceService) CreateInvoice(ctx context.Context, businessID string, inv *domain.Invoice) (*domain.Invoice, error) {
	if inv.CustomerID == "" {
		return nil, fmt.Errorf("customer is required")
	}
	if len(inv.Items) == 0 {
		return nil, fmt.Errorf("at least one line item is required")
	}
	for _, item := range inv.Items {
		if item.Quantity <= 0 || item.Price < 0 {
			return nil, fmt.Errorf("line items need a positive quantity and a non-negative price")
		}
	}

	if _, err := s.customers.GetByID(ctx, businessID, inv.CustomerID); err != nil {
		return nil, err
	}

	inv.BusinessID = businessID
	if inv.IssuedDate.IsZero() {
		inv.IssuedDate = time.Now()
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssuedDate.AddDate(0, 0, 30)
	}
	if err := s.invoices.CreateWithItems(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("invoice created",
		slog.String("business_id", businessID),
		slog.String("invoice_number", inv.InvoiceNumber),
		slog.Float64("total", inv.TotalAmount),
	)
	return inv, nil
}

// GetInvoice retrieves an invoice with its items
func (s *InvoiceService) GetInvoice(ctx context.Context, businessID, id string) (*domain.Invoice, error) {
	return s.invoices.GetByID(ctx, businessID, id)
}

// ListInvoices returns a business's invoices
func (s *InvoiceService) ListInvoices(ctx context.Context, businessID string) ([]*domain.Invoice, error) {
	return s.invoices.ListByBusiness(ctx, businessID)
}

// CancelInvoice marks an invoice cancelled. Paid invoices cannot be cancelled.
func (s *InvoiceService) CancelInvoice(ctx context.Context, businessID, id string) (*domain.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == domain.InvoicePaid {
		return nil, fmt.Errorf("a paid invoice cannot be cancelled")
	}
	if inv.Status == domain.InvoiceCancelled {
		return inv, nil
	}
	return s.invoices.UpdateStatus(ctx, businessID, id, domain.InvoiceCancelled)
}

// RecordPayment applies a payment to an invoice, retrying on serialization
// conflicts from concurrent payments against the same invoice. Overpayment
// yields a credit note for the excess.
func (s *InvoiceService) RecordPayment(ctx context.Context, businessID string, p *domain.Payment) (*domain.PaymentResult, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	inv, err := s.invoices.GetByID(ctx, businessID, p.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == domain.InvoiceCancelled {
		return nil, fmt.Errorf("cannot pay a cancelled invoice")
	}
	if inv.Status == domain.InvoicePaid {
		return nil, fmt.Errorf("invoice is already paid in full")
	}

	p.BusinessID = businessID
	result, err := retry.Do(ctx, s.retryCfg, s.logger, "record_payment",
		func(ctx context.Context) (*domain.PaymentResult, error) {
			return s.invoices.RecordPayment(ctx, p)
		})
	if err != nil {
		metrics.ObservePaymentRetry("error")
		return nil, err
	}
	metrics.ObservePaymentRetry("success")

	if result.CreditNote != nil {
		s.logger.Info("credit note issued for overpayment",
			slog.String("business_id", businessID),
			slog.String("invoice_id", p.InvoiceID),
			slog.String("credit_number", result.CreditNote.CreditNumber),
			slog.Float64("amount", result.CreditNote.Amount),
		)
	}
	return result, nil
}

// ListPayments returns the payments recorded against an invoice
func (s *InvoiceService) ListPayments(ctx context.Context, businessID, invoiceID string) ([]*domain.Payment, error) {
	if _, err := s.invoices.GetByID(ctx, businessID, invoiceID); err != nil {
		return nil, err
	}
	return s.invoices.ListPayments(ctx, businessID, invoiceID)
}

// ListCreditNotes returns a business's credit notes
func (s *InvoiceService) ListCreditNotes(ctx context.Context, businessID string) ([]*domain.CreditNote, error) {
	return s.invoices.ListCreditNotes(ctx, businessID)
}
