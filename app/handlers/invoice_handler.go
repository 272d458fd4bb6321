// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fibernode/backoffice/app/dto"
	"github.com/fibernode/backoffice/app/middleware"
	businessflow "github.com/fibernode/backoffice/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// InvoiceHandlerInterface defines the contract for invoice handlers
type InvoiceHandlerInterface interface {
	List(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	Pay(c fiber.Ctx) error
	Unpay(c fiber.Ctx) error
	Generate(c fiber.Ctx) error
	Export(c fiber.Ctx) error
	PublicReceipt(c fiber.Ctx) error
}

// InvoiceHandler handles invoice-related HTTP requests
type InvoiceHandler struct {
	flow      businessflow.InvoiceFlow
	validator *validator.Validate
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(flow businessflow.InvoiceFlow) *InvoiceHandler {
	return &InvoiceHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *InvoiceHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *InvoiceHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// List Invoices
// @Description List invoices visible to the authenticated user with optional filters.
// @Tags Invoices
// @Produce json
// @Param period query string false "Billing period (YYYY-MM)"
// @Param status query string false "Payment status (unpaid, paid, partial)"
// @Param owner_id query int false "Owner filter (superadmin only)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.ListInvoicesResponse} "Invoices retrieved successfully"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/invoices [get]
func (h *InvoiceHandler) List(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}

	req := dto.ListInvoicesRequest{UserID: userID, Role: role}
	if v := c.Query("period"); v != "" {
		req.Period = &v
	}
	if v := c.Query("status"); v != "" {
		req.Status = &v
	}
	if v := c.Query("owner_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			ownerID := uint(id)
			req.OwnerID = &ownerID
		}
	}
	req.Page = queryUint(c, "page")
	req.PageSize = queryUint(c, "page_size")

	result, err := h.flow.ListInvoices(h.createRequestContext(c, "/api/v1/invoices"), &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid page size", "INVALID_PAGE_SIZE", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list invoices", "LIST_INVOICES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Invoices retrieved successfully", result)
}

// Get Invoice
// @Description Get one invoice by ID.
// @Tags Invoices
// @Produce json
// @Param id path int true "Invoice ID"
// @Success 200 {object} dto.APIResponse{data=dto.GetInvoiceResponse} "Invoice retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Invoice not found"
// @Router /api/v1/invoices/{id} [get]
func (h *InvoiceHandler) Get(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}
	invoiceID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", "INVALID_INVOICE_ID", nil)
	}

	req := dto.GetInvoiceRequest{UserID: userID, Role: role, InvoiceID: invoiceID}
	result, err := h.flow.GetInvoice(h.createRequestContext(c, "/api/v1/invoices/:id"), &req, clientMetadata(c))
	if err != nil {
		return h.invoiceError(c, err, "Failed to get invoice", "GET_INVOICE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Invoice retrieved successfully", result)
}

// Pay Invoice
// @Description Mark an invoice paid. The request must carry the version the caller last read; a stale version is rejected with 409.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path int true "Invoice ID"
// @Param request body dto.PayInvoiceRequest true "Payment details"
// @Success 200 {object} dto.APIResponse{data=dto.PayInvoiceResponse} "Invoice paid successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or already paid"
// @Failure 409 {object} dto.APIResponse "Version conflict"
// @Router /api/v1/invoices/{id}/pay [post]
func (h *InvoiceHandler) Pay(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}
	invoiceID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", "INVALID_INVOICE_ID", nil)
	}

	var req dto.PayInvoiceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UserID = userID
	req.Role = role
	req.InvoiceID = invoiceID

	if err := h.validator.Struct(req); err != nil {
		return h.validationError(c, err)
	}

	result, err := h.flow.PayInvoice(h.createRequestContext(c, "/api/v1/invoices/:id/pay"), &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsInvoiceVersionConflict(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Invoice was modified by another user, reload and retry", "INVOICE_CONFLICT", nil)
		}
		if businessflow.IsInvoiceAlreadyPaid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invoice is already paid", "INVOICE_ALREADY_PAID", nil)
		}
		return h.invoiceError(c, err, "Failed to pay invoice", "PAY_INVOICE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Invoice paid successfully", result)
}

// Unpay Invoice
// @Description Reverse a payment. Carries the same version discipline as pay.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path int true "Invoice ID"
// @Param request body dto.UnpayInvoiceRequest true "Version read by the caller"
// @Success 200 {object} dto.APIResponse{data=dto.UnpayInvoiceResponse} "Invoice payment reversed successfully"
// @Failure 409 {object} dto.APIResponse "Version conflict"
// @Router /api/v1/invoices/{id}/unpay [post]
func (h *InvoiceHandler) Unpay(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}
	invoiceID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", "INVALID_INVOICE_ID", nil)
	}

	var req dto.UnpayInvoiceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UserID = userID
	req.Role = role
	req.InvoiceID = invoiceID

	if err := h.validator.Struct(req); err != nil {
		return h.validationError(c, err)
	}

	result, err := h.flow.UnpayInvoice(h.createRequestContext(c, "/api/v1/invoices/:id/unpay"), &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsInvoiceVersionConflict(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Invoice was modified by another user, reload and retry", "INVOICE_CONFLICT", nil)
		}
		if businessflow.IsInvoiceNotPaid(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invoice is not paid", "INVOICE_NOT_PAID", nil)
		}
		return h.invoiceError(c, err, "Failed to reverse payment", "UNPAY_INVOICE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Invoice payment reversed successfully", result)
}

// Generate Invoices
// @Description Manually trigger invoice generation for a billing day. Superadmin only.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param request body dto.GenerateInvoicesRequest false "Generation parameters"
// @Success 200 {object} dto.APIResponse{data=dto.GenerateInvoicesResponse} "Invoices generated successfully"
// @Failure 400 {object} dto.APIResponse "Invalid billing day"
// @Router /api/v1/invoices/generate [post]
func (h *InvoiceHandler) Generate(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}

	var req dto.GenerateInvoicesRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	req.UserID = userID

	if err := h.validator.Struct(req); err != nil {
		return h.validationError(c, err)
	}

	result, err := h.flow.GenerateInvoices(h.createRequestContext(c, "/api/v1/invoices/generate"), &req, clientMetadata(c))
	if err != nil {
		if businessflow.IsInvalidBillingDay(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Billing day must be between 1 and 31", "INVALID_BILLING_DAY", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate invoices", "GENERATE_INVOICES_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Invoices generated successfully", result)
}

// Export Invoices
// @Description Download invoices for a period as an Excel workbook.
// @Tags Invoices
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param period query string true "Billing period (YYYY-MM)"
// @Success 200 {file} binary "Excel file"
// @Router /api/v1/invoices/export [get]
func (h *InvoiceHandler) Export(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}

	period := c.Query("period")
	if period == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "period query parameter is required", "MISSING_PERIOD", nil)
	}

	req := dto.ExportInvoicesRequest{UserID: userID, Role: role, Period: period}
	data, err := h.flow.ExportInvoices(h.createRequestContext(c, "/api/v1/invoices/export"), &req)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export invoices", "EXPORT_INVOICES_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices-%s.xlsx"`, period))
	return c.Send(data)
}

// Public Receipt
// @Description Resolve a receipt by its unguessable token. No authentication.
// @Tags Invoices
// @Produce json
// @Param token path string true "Receipt token"
// @Success 200 {object} dto.APIResponse{data=dto.GetReceiptResponse} "Receipt retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Receipt not found"
// @Router /receipt/{token} [get]
func (h *InvoiceHandler) PublicReceipt(c fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Receipt not found", "RECEIPT_NOT_FOUND", nil)
	}

	req := dto.GetReceiptRequest{Token: token}
	result, err := h.flow.GetReceipt(h.createRequestContext(c, "/receipt/:token"), &req)
	if err != nil {
		if businessflow.IsReceiptNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Receipt not found", "RECEIPT_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get receipt", "GET_RECEIPT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Receipt retrieved successfully", result)
}

func (h *InvoiceHandler) identity(c fiber.Ctx) (uint, string, error) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		return 0, "", h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	role, ok := middleware.GetRoleFromContext(c)
	if !ok {
		return 0, "", h.ErrorResponse(c, fiber.StatusUnauthorized, "Role not found in context", "MISSING_ROLE", nil)
	}
	return userID, role, nil
}

func (h *InvoiceHandler) invoiceError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	if businessflow.IsInvoiceNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Invoice not found", "INVOICE_NOT_FOUND", nil)
	}
	if businessflow.IsInvoiceAccessDenied(err) {
		return h.ErrorResponse(c, fiber.StatusForbidden, "Invoice access denied", "INVOICE_ACCESS_DENIED", nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *InvoiceHandler) validationError(c fiber.Ctx, err error) error {
	var details []string
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			details = append(details, getValidationErrorMessage(fieldError))
		}
	}
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", details)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *InvoiceHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "user_agent", c.Get("User-Agent"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	ctx = context.WithValue(ctx, "endpoint", endpoint)
	ctx = context.WithValue(ctx, "cancel_func", cancel) // Store cancel function for cleanup
	return ctx
}
