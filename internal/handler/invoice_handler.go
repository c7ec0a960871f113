package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/queaccounting/backend/internal/domain"
	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/service"
)

// InvoiceHandler handles customers, invoices, payments and credit notes
type InvoiceHandler struct {
	invoiceService *service.InvoiceService
	logger         *slog.Logger
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoiceService *service.InvoiceService, logger *slog.Logger) *InvoiceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceHandler{invoiceService: invoiceService, logger: logger}
}

// CustomerRequest is the customer create/update payload
type CustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// InvoiceItemRequest is one line on a new invoice
type InvoiceItemRequest struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// CreateInvoiceRequest is the invoice creation payload
type CreateInvoiceRequest struct {
	CustomerID string               `json:"customerId"`
	IssuedDate *time.Time           `json:"issuedDate,omitempty"`
	DueDate    *time.Time           `json:"dueDate,omitempty"`
	Items      []InvoiceItemRequest `json:"items"`
}

// PaymentRequest is the payment recording payload
type PaymentRequest struct {
	Amount        float64    `json:"amount"`
	PaymentDate   *time.Time `json:"paymentDate,omitempty"`
	PaymentMode   string     `json:"paymentMode,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	Note          string     `json:"note,omitempty"`
}

// CreateCustomer handles POST /api/customers
func (h *InvoiceHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respond.Error(w, http.StatusBadRequest, "Customer name is required")
		return
	}

	customer, err := h.invoiceService.CreateCustomer(r.Context(), tenant.Business.ID, &domain.Customer{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusCreated, "Customer created", customer)
}

// ListCustomers handles GET /api/customers
func (h *InvoiceHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	customers, err := h.invoiceService.ListCustomers(r.Context(), tenant.Business.ID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", customers)
}

// GetCustomer handles GET /api/customers/{id}
func (h *InvoiceHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	customer, err := h.invoiceService.GetCustomer(r.Context(), tenant.Business.ID, r.PathValue("id"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", customer)
}

// UpdateCustomer handles PUT /api/customers/{id}
func (h *InvoiceHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respond.Error(w, http.StatusBadRequest, "Customer name is required")
		return
	}

	customer, err := h.invoiceService.UpdateCustomer(r.Context(), tenant.Business.ID, &domain.Customer{
		ID: r.PathValue("id"), Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Customer updated", customer)
}

// DeleteCustomer handles DELETE /api/customers/{id}
func (h *InvoiceHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	if err := h.invoiceService.DeleteCustomer(r.Context(), tenant.Business.ID, r.PathValue("id")); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Customer deleted", nil)
}

// CreateInvoice handles POST /api/invoices
func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CustomerID == "" || len(req.Items) == 0 {
		respond.Error(w, http.StatusBadRequest, "customerId and items are required")
		return
	}

	inv := &domain.Invoice{CustomerID: req.CustomerID}
	if req.IssuedDate != nil {
		inv.IssuedDate = *req.IssuedDate
	}
	if req.DueDate != nil {
		inv.DueDate = *req.DueDate
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 || item.Price < 0 {
			respond.Error(w, http.StatusBadRequest, "items need a positive quantity and a non-negative price")
			return
		}
		inv.Items = append(inv.Items, domain.InvoiceItem{
			Description: item.Description, Quantity: item.Quantity, Price: item.Price,
		})
	}

	created, err := h.invoiceService.CreateInvoice(r.Context(), tenant.Business.ID, inv)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusCreated, "Invoice created", created)
}

// ListInvoices handles GET /api/invoices
func (h *InvoiceHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	invoices, err := h.invoiceService.ListInvoices(r.Context(), tenant.Business.ID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", invoices)
}

// GetInvoice handles GET /api/invoices/{id}
func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	inv, err := h.invoiceService.GetInvoice(r.Context(), tenant.Business.ID, r.PathValue("id"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", inv)
}

// CancelInvoice handles POST /api/invoices/{id}/cancel
func (h *InvoiceHandler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	inv, err := h.invoiceService.CancelInvoice(r.Context(), tenant.Business.ID, r.PathValue("id"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "Invoice cancelled", inv)
}

// RecordPayment handles POST /api/invoices/{id}/payments
func (h *InvoiceHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	tenant, principal, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		respond.Error(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	payment := &domain.Payment{
		InvoiceID:     r.PathValue("id"),
		Amount:        req.Amount,
		PaymentMode:   req.PaymentMode,
		TransactionID: req.TransactionID,
		Note:          req.Note,
		CreatedBy:     principal.ID,
	}
	if req.PaymentDate != nil {
		payment.PaymentDate = *req.PaymentDate
	}

	result, err := h.invoiceService.RecordPayment(r.Context(), tenant.Business.ID, payment)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	message := "Payment recorded"
	if result.CreditNote != nil {
		message = "Payment recorded, credit note issued for overpayment"
	}
	respond.Success(w, http.StatusCreated, message, result)
}

// ListPayments handles GET /api/invoices/{id}/payments
func (h *InvoiceHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	payments, err := h.invoiceService.ListPayments(r.Context(), tenant.Business.ID, r.PathValue("id"))
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", payments)
}

// ListCreditNotes handles GET /api/credit-notes
func (h *InvoiceHandler) ListCreditNotes(w http.ResponseWriter, r *http.Request) {
	tenant, _, ok := tenantAndPrincipal(w, r)
	if !ok {
		return
	}
	notes, err := h.invoiceService.ListCreditNotes(r.Context(), tenant.Business.ID)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.Success(w, http.StatusOK, "OK", notes)
}
