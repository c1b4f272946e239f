package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

const (
	// SignatureHeader carries the provider's webhook signature.
	SignatureHeader = "Stripe-Signature"

	maxWebhookBody = 1 << 20
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type checkoutRequest struct {
	BookingID string `json:"booking_id"`
}

// Checkout - Open a hosted payment page for an accepted booking
func (h *PaymentHandler) Checkout(e *core.RequestEvent, actor *models.Account) error {
	var req checkoutRequest
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}
	if req.BookingID == "" {
		return fail(e, status.New(status.KindValidation, "booking_id is required"))
	}

	cs, err := h.payments.CreateCheckoutSession(e.Request.Context(), req.BookingID, actor)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, map[string]any{"url": cs.URL, "session_id": cs.ID})
}

// ConfirmRedirect - Settle a booking when the client returns from checkout
func (h *PaymentHandler) ConfirmRedirect(e *core.RequestEvent, actor *models.Account) error {
	booking, err := h.payments.ConfirmRedirect(e.Request.Context(), e.Request.URL.Query().Get("session_id"), actor)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, booking)
}

// Webhook - Provider callback. The body is handed over untouched; any
// re-encoding breaks the signature.
func (h *PaymentHandler) Webhook(e *core.RequestEvent, _ *models.Account) error {
	payload, err := io.ReadAll(http.MaxBytesReader(e.Response, e.Request.Body, maxWebhookBody))
	if err != nil {
		return fail(e, status.Wrap(status.KindValidation, "unreadable webhook body", err))
	}

	if err := h.payments.HandleWebhook(e.Request.Context(), payload, e.Request.Header.Get(SignatureHeader)); err != nil {
		if status.KindOf(err) == status.KindInvalidSignature {
			slog.Warn("Webhook rejected", "remote_addr", e.Request.RemoteAddr, "error", err)
		}
		return fail(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"received": true})
}

type simulateRequest struct {
	SessionID string `json:"session_id"`
}

// Simulate - Complete a sandbox checkout (development only)
func (h *PaymentHandler) Simulate(e *core.RequestEvent, _ *models.Account) error {
	var req simulateRequest
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	if err := h.payments.SimulatePayment(e.Request.Context(), req.SessionID); err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, map[string]any{"message": "Payment simulation sent"})
}

func (h *PaymentHandler) Mine(e *core.RequestEvent, actor *models.Account) error {
	list, err := h.payments.UserTransactions(e.Request.Context(), actor.ID)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, list)
}

func (h *PaymentHandler) Get(e *core.RequestEvent, actor *models.Account) error {
	tx, err := h.payments.Transaction(e.Request.Context(), e.Request.PathValue("id"), actor)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, tx)
}
