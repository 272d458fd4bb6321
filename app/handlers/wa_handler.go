// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"time"

	"github.com/fibernode/backoffice/app/dto"
	"github.com/fibernode/backoffice/app/middleware"
	businessflow "github.com/fibernode/backoffice/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// WAHandlerInterface defines the contract for WhatsApp handlers
type WAHandlerInterface interface {
	Status(c fiber.Ctx) error
	Connect(c fiber.Ctx) error
	Disconnect(c fiber.Ctx) error
	SendTest(c fiber.Ctx) error
	SendManual(c fiber.Ctx) error
	SendBulk(c fiber.Ctx) error
	CheckNumber(c fiber.Ctx) error
	Logs(c fiber.Ctx) error
	QueueStats(c fiber.Ctx) error
	RetryMessage(c fiber.Ctx) error
	CancelMessage(c fiber.Ctx) error
}

// WAHandler handles WhatsApp-related HTTP requests
type WAHandler struct {
	flow      businessflow.WAFlow
	validator *validator.Validate
}

// NewWAHandler creates a new WhatsApp handler
func NewWAHandler(flow businessflow.WAFlow) *WAHandler {
	return &WAHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *WAHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WAHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// WhatsApp Status
// @Description Get the persisted and live connection state of the caller's WhatsApp account.
// @Tags WhatsApp
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.WAStatusResponse} "Status retrieved successfully"
// @Router /api/v1/wa/status [get]
func (h *WAHandler) Status(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}

	result, err := h.flow.GetStatus(h.createRequestContext(c, "/api/v1/wa/status"), userID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get status", "GET_STATUS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Status retrieved successfully", result)
}

// Connect WhatsApp
// @Description Start a connection attempt. The QR code arrives over the realtime channel.
// @Tags WhatsApp
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.WAConnectResponse} "Connection started"
// @Failure 409 {object} dto.APIResponse "Connect already in progress"
// @Router /api/v1/wa/connect [post]
func (h *WAHandler) Connect(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}

	result, err := h.flow.Connect(h.createRequestContext(c, "/api/v1/wa/connect"), userID)
	if err != nil {
		if businessflow.IsConnectInProgress(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Connection attempt already in progress", "CONNECT_IN_PROGRESS", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start connection", "CONNECT_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Connection started", result)
}

// Disconnect WhatsApp
// @Description Log out and tear down the caller's WhatsApp connection.
// @Tags WhatsApp
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.WADisconnectResponse} "Disconnected"
// @Router /api/v1/wa/disconnect [post]
func (h *WAHandler) Disconnect(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}

	result, err := h.flow.Disconnect(h.createRequestContext(c, "/api/v1/wa/disconnect"), userID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to disconnect", "DISCONNECT_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Disconnected", result)
}

// Send Test Message
// @Description Send a free-form message to an arbitrary number immediately.
// @Tags WhatsApp
// @Accept json
// @Produce json
// @Param request body dto.SendTestMessageRequest true "Phone and message"
// @Success 200 {object} dto.APIResponse{data=dto.SendTestMessageResponse} "Message sent"
// @Failure 400 {object} dto.APIResponse "Validation error or session not connected"
// @Router /api/v1/wa/send-test [post]
func (h *WAHandler) SendTest(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}

	var req dto.SendTestMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UserID = userID

	if err := h.validator.Struct(req); err != nil {
		return h.validationError(c, err)
	}

	result, err := h.flow.SendTest(h.createRequestContext(c, "/api/v1/wa/send-test"), &req)
	if err != nil {
		return h.sendError(c, err, "Failed to send message", "SEND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message sent", result)
}

// Send Manual Message
// @Description Send one templated or free-form message to a customer over the owner's live connection.
// @Tags WhatsApp
// @Accept json
// @Produce json
// @Param request body dto.SendManualRequest true "Customer, template, and optional custom message"
// @Success 200 {object} dto.APIResponse{data=dto.SendManualResponse} "Message sent"
// @Failure 400 {object} dto.APIResponse "Validation error or session not connected"
// @Failure 403 {object} dto.APIResponse "Customer access denied"
// @Router /api/v1/wa/send [post]
func (h *WAHandler) SendManual(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}

	var req dto.SendManualRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UserID = userID
	req.Role = role

	if err := h.validator.Struct(req); err != nil {
		return h.validationError(c, err)
	}

	result, err := h.flow.SendManual(h.createRequestContext(c, "/api/v1/wa/send"), &req)
	if err != nil {
		if businessflow.IsCustomerNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Customer not found", "CUSTOMER_NOT_FOUND", nil)
		}
		if businessflow.IsCustomerAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Customer access denied", "CUSTOMER_ACCESS_DENIED", nil)
		}
		if businessflow.IsInvoiceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invoice required for receipt template", "INVOICE_NOT_FOUND", nil)
		}
		if businessflow.IsPackageNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Customer package not found", "PACKAGE_NOT_FOUND", nil)
		}
		return h.sendError(c, err, "Failed to send message", "SEND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message sent", result)
}

// Send Bulk Messages
// @Description Enqueue templated messages for many customers with staggered delivery.
// @Tags WhatsApp
// @Accept json
// @Produce json
// @Param request body dto.BulkSendRequest true "Customer IDs and template"
// @Success 200 {object} dto.APIResponse{data=dto.BulkSendResponse} "Messages queued"
// @Failure 400 {object} dto.APIResponse "Validation error or session not connected"
// @Router /api/v1/wa/send-bulk [post]
func (h *WAHandler) SendBulk(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}

	var req dto.BulkSendRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UserID = userID
	req.Role = role

	if err := h.validator.Struct(req); err != nil {
		return h.validationError(c, err)
	}

	result, err := h.flow.SendBulk(h.createRequestContext(c, "/api/v1/wa/send-bulk"), &req)
	if err != nil {
		return h.sendError(c, err, "Failed to queue messages", "BULK_SEND_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Messages queued", result)
}

// Check Number
// @Description Ask the live connection whether a number is registered on WhatsApp.
// @Tags WhatsApp
// @Accept json
// @Produce json
// @Param request body dto.CheckNumberRequest true "Phone number"
// @Success 200 {object} dto.APIResponse{data=dto.CheckNumberResponse} "Number checked"
// @Failure 400 {object} dto.APIResponse "Session not connected"
// @Router /api/v1/wa/check-number [post]
func (h *WAHandler) CheckNumber(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}

	var req dto.CheckNumberRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UserID = userID

	if err := h.validator.Struct(req); err != nil {
		return h.validationError(c, err)
	}

	result, err := h.flow.CheckNumber(h.createRequestContext(c, "/api/v1/wa/check-number"), &req)
	if err != nil {
		return h.sendError(c, err, "Failed to check number", "CHECK_NUMBER_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Number checked", result)
}

// Message Logs
// @Description Page through the send history visible to the caller.
// @Tags WhatsApp
// @Produce json
// @Param category query string false "Filter by category"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.ListMessageLogsResponse} "Message logs retrieved successfully"
// @Router /api/v1/wa/logs [get]
func (h *WAHandler) Logs(c fiber.Ctx) error {
	userID, role, err := h.identity(c)
	if err != nil {
		return err
	}

	req := dto.ListMessageLogsRequest{UserID: userID, Role: role}
	if v := c.Query("category"); v != "" {
		req.Category = &v
	}
	req.Page = queryUint(c, "page")
	req.PageSize = queryUint(c, "page_size")

	result, err := h.flow.GetLogs(h.createRequestContext(c, "/api/v1/wa/logs"), &req)
	if err != nil {
		if businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid page size", "INVALID_PAGE_SIZE", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list message logs", "LIST_LOGS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message logs retrieved successfully", result)
}

// Queue Stats
// @Description Aggregate the caller's queue entry counts by status.
// @Tags WhatsApp
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.QueueStatsResponse} "Queue stats retrieved successfully"
// @Router /api/v1/wa/queue [get]
func (h *WAHandler) QueueStats(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}

	result, err := h.flow.GetQueueStats(h.createRequestContext(c, "/api/v1/wa/queue"), userID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get queue stats", "QUEUE_STATS_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Queue stats retrieved successfully", result)
}

// Retry Queued Message
// @Description Move a failed queue entry back to pending.
// @Tags WhatsApp
// @Produce json
// @Param id path int true "Queued message ID"
// @Success 200 {object} dto.APIResponse{data=dto.RetryMessageResponse} "Message rescheduled"
// @Failure 400 {object} dto.APIResponse "Message is not failed"
// @Failure 404 {object} dto.APIResponse "Message not found"
// @Router /api/v1/wa/queue/{id}/retry [post]
func (h *WAHandler) RetryMessage(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid message ID", "INVALID_MESSAGE_ID", nil)
	}

	req := dto.RetryMessageRequest{UserID: userID, MessageID: messageID}
	result, err := h.flow.RetryMessage(h.createRequestContext(c, "/api/v1/wa/queue/:id/retry"), &req)
	if err != nil {
		if businessflow.IsMessageNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Queued message not found", "MESSAGE_NOT_FOUND", nil)
		}
		if businessflow.IsMessageNotFailed(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Only failed messages can be retried", "MESSAGE_NOT_FAILED", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retry message", "RETRY_MESSAGE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message rescheduled", result)
}

// Cancel Queued Message
// @Description Delete a queue entry that has not been picked up yet.
// @Tags WhatsApp
// @Produce json
// @Param id path int true "Queued message ID"
// @Success 200 {object} dto.APIResponse{data=dto.CancelMessageResponse} "Message cancelled"
// @Failure 400 {object} dto.APIResponse "Message is not pending"
// @Failure 404 {object} dto.APIResponse "Message not found"
// @Router /api/v1/wa/queue/{id} [delete]
func (h *WAHandler) CancelMessage(c fiber.Ctx) error {
	userID, _, err := h.identity(c)
	if err != nil {
		return err
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid message ID", "INVALID_MESSAGE_ID", nil)
	}

	req := dto.CancelMessageRequest{UserID: userID, MessageID: messageID}
	result, err := h.flow.CancelMessage(h.createRequestContext(c, "/api/v1/wa/queue/:id"), &req)
	if err != nil {
		if businessflow.IsMessageNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Queued message not found", "MESSAGE_NOT_FOUND", nil)
		}
		if businessflow.IsMessageNotPending(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Only pending messages can be cancelled", "MESSAGE_NOT_PENDING", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel message", "CANCEL_MESSAGE_FAILED", nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Message cancelled", result)
}

func (h *WAHandler) identity(c fiber.Ctx) (uint, string, error) {
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

func (h *WAHandler) sendError(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	if businessflow.IsSessionNotConnected(err) {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "WhatsApp is not connected", "SESSION_NOT_CONNECTED", nil)
	}
	if businessflow.IsEmptyMessage(err) {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Message content is empty", "EMPTY_MESSAGE", nil)
	}
	if businessflow.IsInvalidCategory(err) {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Unknown message template", "INVALID_CATEGORY", nil)
	}
	if be, ok := err.(*businessflow.BusinessError); ok && be.Code == "SEND_FAILED" {
		return h.ErrorResponse(c, fiber.StatusBadGateway, "Failed to deliver message", be.Code, nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func (h *WAHandler) validationError(c fiber.Ctx, err error) error {
	var details []string
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			details = append(details, getValidationErrorMessage(fieldError))
		}
	}
	return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", details)
}

// createRequestContext creates a context with timeout and request-scoped values
func (h *WAHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, "request_id", c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, "user_agent", c.Get("User-Agent"))
	ctx = context.WithValue(ctx, "ip_address", c.IP())
	ctx = context.WithValue(ctx, "endpoint", endpoint)
	ctx = context.WithValue(ctx, "cancel_func", cancel) // Store cancel function for cleanup
	return ctx
}
