package domain

import (
	"context"
	"time"
)

// Invoice statuses
const (
	InvoiceUnpaid        = "UNPAID"
	InvoicePartiallyPaid = "PARTIALLY_PAID"
	InvoicePaid          = "PAID"
	InvoiceCancelled     = "CANCELLED"
)

// Credit note statuses
const (
	CreditNoteOpen   = "OPEN"
	CreditNoteClosed = "CLOSED"
)

// Customer belongs to exactly one business
type Customer struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"businessId"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Invoice carries line items and a per-business sequential number
type Invoice struct {
	ID            string        `json:"id"`
	BusinessID    string        `json:"businessId"`
	CustomerID    string        `json:"customerId"`
	InvoiceNumber string        `json:"invoiceNumber"`
	Status        string        `json:"status"`
	IssuedDate    time.Time     `json:"issuedDate"`
	DueDate       time.Time     `json:"dueDate"`
	TotalAmount   float64       `json:"totalAmount"`
	Items         []InvoiceItem `json:"items,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// InvoiceItem is one line on an invoice
type InvoiceItem struct {
	ID          string  `json:"id"`
	InvoiceID   string  `json:"invoiceId"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// Payment records money received against an invoice
type Payment struct {
	ID            string    `json:"id"`
	InvoiceID     string    `json:"invoiceId"`
	BusinessID    string    `json:"businessId"`
	Amount        float64   `json:"amount"`
	PaymentDate   time.Time `json:"paymentDate"`
	PaymentMode   string    `json:"paymentMode,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CreditNote is issued when a payment overshoots the invoice balance
type CreditNote struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"businessId"`
	CustomerID      string    `json:"customerId"`
	InvoiceID       string    `json:"invoiceId"`
	CreditNumber    string    `json:"creditNumber"`
	Amount          float64   `json:"amount"`
	RemainingAmount float64   `json:"remainingAmount"`
	Reason          string    `json:"reason,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CustomerRepository defines data access for customers
type CustomerRepository interface {
	Create(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, businessID, id string) (*Customer, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*Customer, error)
	Update(ctx context.Context, c *Customer) error
	Delete(ctx context.Context, businessID, id string) error
}

// PaymentResult is the outcome of recording a payment. CreditNote is non-nil
// only when the payment overshot the remaining balance.
type PaymentResult struct {
	Payment    *Payment    `json:"payment"`
	CreditNote *CreditNote `json:"creditNote,omitempty"`
}

// InvoiceRepository defines data access for invoices, payments and credit
// notes. CreateWithItems allocates the invoice number inside its transaction;
// RecordPayment serializes per invoice so concurrent overpayments cannot both
// observe a stale remaining balance.
type InvoiceRepository interface {
	CreateWithItems(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, businessID, id string) (*Invoice, error)
	ListByBusiness(ctx context.Context, businessID string) ([]*Invoice, error)
	UpdateStatus(ctx context.Context, businessID, id, status string) (*Invoice, error)
	RecordPayment(ctx context.Context, p *Payment) (*PaymentResult, error)
	ListPayments(ctx context.Context, businessID, invoiceID string) ([]*Payment, error)
	ListCreditNotes(ctx context.Context, businessID string) ([]*CreditNote, error)
}
