package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

type BookingHandler struct {
	bookings *services.BookingService
}

func NewBookingHandler(bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type createBookingRequest struct {
	TicketID string `json:"ticket_id"`
	Quantity int    `json:"quantity"`
}

// Create - Book units of a ticket for the caller
func (h *BookingHandler) Create(e *core.RequestEvent, actor *models.Account) error {
	var req createBookingRequest
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}
	if req.TicketID == "" {
		return fail(e, status.New(status.KindValidation, "ticket_id is required"))
	}

	booking, err := h.bookings.CreateBooking(e.Request.Context(), req.TicketID, actor.ID, req.Quantity)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusCreated, booking)
}

func (h *BookingHandler) Mine(e *core.RequestEvent, actor *models.Account) error {
	list, err := h.bookings.UserBookings(e.Request.Context(), actor.ID)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, list)
}

// Cancel - Remove the caller's pending booking
func (h *BookingHandler) Cancel(e *core.RequestEvent, actor *models.Account) error {
	if err := h.bookings.Cancel(e.Request.Context(), e.Request.PathValue("id"), actor); err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, map[string]any{"deleted": true})
}

type decisionRequest struct {
	Status string `json:"status"`
}

// Decide - Accept or reject a pending booking
func (h *BookingHandler) Decide(e *core.RequestEvent, actor *models.Account) error {
	var req decisionRequest
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	ev, err := services.DecisionEvent(req.Status)
	if err != nil {
		return fail(e, err)
	}

	booking, err := h.bookings.Decide(e.Request.Context(), e.Request.PathValue("id"), actor, ev)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, booking)
}

func (h *BookingHandler) Vendor(e *core.RequestEvent, actor *models.Account) error {
	st := models.BookingStatus(e.Request.URL.Query().Get("status"))
	list, err := h.bookings.VendorBookings(e.Request.Context(), actor.ID, st)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, list)
}

func (h *BookingHandler) VendorPending(e *core.RequestEvent, actor *models.Account) error {
	list, err := h.bookings.VendorBookings(e.Request.Context(), actor.ID, models.BookingPending)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, list)
}
