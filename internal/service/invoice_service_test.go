package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queaccounting/backend/internal/domain"
)

type memInvoiceRepo struct {
	byID     map[string]*domain.Invoice
	payments map[string][]*domain.Payment
	seq      int
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{byID: map[string]*domain.Invoice{}, payments: map[string][]*domain.Payment{}}
}

func (m *memInvoiceRepo) CreateWithItems(_ context.Context, inv *domain.Invoice) error {
	m.seq++
	inv.ID = fmt.Sprintf("inv-%d", m.seq)
	inv.InvoiceNumber = fmt.Sprintf("INV-%04d", m.seq)
	inv.Status = domain.InvoiceUnpaid
	inv.TotalAmount = 0
	for _, item := range inv.Items {
		inv.TotalAmount += float64(item.Quantity) * item.Price
	}
	m.byID[inv.ID] = inv
	return nil
}

func (m *memInvoiceRepo) GetByID(_ context.Context, businessID, id string) (*domain.Invoice, error) {
	inv, ok := m.byID[id]
	if !ok || inv.BusinessID != businessID {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

func (m *memInvoiceRepo) ListByBusiness(_ context.Context, businessID string) ([]*domain.Invoice, error) {
	out := []*domain.Invoice{}
	for _, inv := range m.byID {
		if inv.BusinessID == businessID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memInvoiceRepo) UpdateStatus(ctx context.Context, businessID, id, status string) (*domain.Invoice, error) {
	inv, err := m.GetByID(ctx, businessID, id)
	if err != nil {
		return nil, err
	}
	inv.Status = status
	return inv, nil
}

func (m *memInvoiceRepo) RecordPayment(ctx context.Context, p *domain.Payment) (*domain.PaymentResult, error) {
	inv, err := m.GetByID(ctx, p.BusinessID, p.InvoiceID)
	if err != nil {
		return nil, err
	}
	var paid float64
	for _, prev := range m.payments[p.InvoiceID] {
		paid += prev.Amount
	}
	m.payments[p.InvoiceID] = append(m.payments[p.InvoiceID], p)
	total := paid + p.Amount

	result := &domain.PaymentResult{Payment: p}
	inv.Status = domain.InvoicePartiallyPaid
	if total >= inv.TotalAmount {
		inv.Status = domain.InvoicePaid
	}
	if excess := total - inv.TotalAmount; excess > 0 {
		result.CreditNote = &domain.CreditNote{
			BusinessID: inv.BusinessID, CustomerID: inv.CustomerID, InvoiceID: inv.ID,
			CreditNumber: "CN-0001", Amount: excess, RemainingAmount: excess,
			Status: domain.CreditNoteOpen,
		}
	}
	return result, nil
}

func (m *memInvoiceRepo) ListPayments(_ context.Context, businessID, invoiceID string) ([]*domain.Payment, error) {
	return m.payments[invoiceID], nil
}

func (m *memInvoiceRepo) ListCreditNotes(_ context.Context, businessID string) ([]*domain.CreditNote, error) {
	return nil, nil
}

type memCustomerRepo struct {
	byID map[string]*domain.Customer
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{byID: map[string]*domain.Customer{}}
}

func (m *memCustomerRepo) Create(_ context.Context, c *domain.Customer) error {
	if c.ID == "" {
		c.ID = "cust-" + c.Name
	}
	m.byID[c.ID] = c
	return nil
}

func (m *memCustomerRepo) GetByID(_ context.Context, businessID, id string) (*domain.Customer, error) {
	c, ok := m.byID[id]
	if !ok || c.BusinessID != businessID {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (m *memCustomerRepo) ListByBusiness(_ context.Context, businessID string) ([]*domain.Customer, error) {
	out := []*domain.Customer{}
	for _, c := range m.byID {
		if c.BusinessID == businessID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCustomerRepo) Update(_ context.Context, c *domain.Customer) error {
	if _, ok := m.byID[c.ID]; !ok {
		return domain.ErrNotFound
	}
	m.byID[c.ID] = c
	return nil
}

func (m *memCustomerRepo) Delete(_ context.Context, businessID, id string) error {
	c, ok := m.byID[id]
	if !ok || c.BusinessID != businessID {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func newInvoiceFixture(t *testing.T) (*InvoiceService, *memInvoiceRepo, *memCustomerRepo) {
	t.Helper()
	invoices := newMemInvoiceRepo()
	customers := newMemCustomerRepo()
	customers.byID["cust-1"] = &domain.Customer{ID: "cust-1", BusinessID: "biz-1", Name: "Globex"}
	return NewInvoiceService(invoices, customers, nil), invoices, customers
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, _, _ := newInvoiceFixture(t)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, "biz-1", &domain.Invoice{CustomerID: "cust-1"})
	assert.Error(t, err, "requires line items")

	_, err = svc.CreateInvoice(ctx, "biz-1", &domain.Invoice{
		CustomerID: "cust-1",
		Items:      []domain.InvoiceItem{{Description: "x", Quantity: 0, Price: 10}},
	})
	assert.Error(t, err, "requires positive quantity")

	// Customer of another business is invisible
	_, err = svc.CreateInvoice(ctx, "biz-other", &domain.Invoice{
		CustomerID: "cust-1",
		Items:      []domain.InvoiceItem{{Description: "x", Quantity: 1, Price: 10}},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inv, err := svc.CreateInvoice(ctx, "biz-1", &domain.Invoice{
		CustomerID: "cust-1",
		Items:      []domain.InvoiceItem{{Description: "Widgets", Quantity: 3, Price: 25}},
	})
	require.NoError(t, err)
	assert.Equal(t, 75.0, inv.TotalAmount)
	assert.False(t, inv.DueDate.IsZero(), "due date defaults when omitted")
}

func TestCancelInvoiceRules(t *testing.T) {
	svc, invoices, _ := newInvoiceFixture(t)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, "biz-1", &domain.Invoice{
		CustomerID: "cust-1",
		Items:      []domain.InvoiceItem{{Description: "Widgets", Quantity: 1, Price: 100}},
	})
	require.NoError(t, err)

	invoices.byID[inv.ID].Status = domain.InvoicePaid
	_, err = svc.CancelInvoice(ctx, "biz-1", inv.ID)
	assert.Error(t, err, "paid invoices cannot be cancelled")

	invoices.byID[inv.ID].Status = domain.InvoiceUnpaid
	cancelled, err := svc.CancelInvoice(ctx, "biz-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceCancelled, cancelled.Status)

	// Cancelling again is a no-op
	again, err := svc.CancelInvoice(ctx, "biz-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceCancelled, again.Status)
}

func TestRecordPaymentRules(t *testing.T) {
	svc, invoices, _ := newInvoiceFixture(t)
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, "biz-1", &domain.Invoice{
		CustomerID: "cust-1",
		Items:      []domain.InvoiceItem{{Description: "Widgets", Quantity: 1, Price: 100}},
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, "biz-1", &domain.Payment{InvoiceID: inv.ID, Amount: 0})
	assert.Error(t, err, "amount must be positive")

	result, err := svc.RecordPayment(ctx, "biz-1", &domain.Payment{InvoiceID: inv.ID, Amount: 40, CreatedBy: "u1"})
	require.NoError(t, err)
	assert.Nil(t, result.CreditNote)
	assert.Equal(t, domain.InvoicePartiallyPaid, invoices.byID[inv.ID].Status)

	result, err = svc.RecordPayment(ctx, "biz-1", &domain.Payment{InvoiceID: inv.ID, Amount: 90, CreatedBy: "u1"})
	require.NoError(t, err)
	require.NotNil(t, result.CreditNote, "overpayment yields a credit note")
	assert.Equal(t, 30.0, result.CreditNote.Amount)
	assert.Equal(t, domain.InvoicePaid, invoices.byID[inv.ID].Status)

	_, err = svc.RecordPayment(ctx, "biz-1", &domain.Payment{InvoiceID: inv.ID, Amount: 10, CreatedBy: "u1"})
	assert.Error(t, err, "paid invoices accept no further payments")
}
