package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

type AdminHandler struct {
	catalog  *services.CatalogService
	bookings *services.BookingService
}

func NewAdminHandler(catalog *services.CatalogService, bookings *services.BookingService) *AdminHandler {
	return &AdminHandler{catalog: catalog, bookings: bookings}
}

// Verify - Approve or reject a listed ticket
func (h *AdminHandler) Verify(e *core.RequestEvent, actor *models.Account) error {
	var req struct {
		Status models.VerificationStatus `json:"status"`
	}
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	ticket, err := h.catalog.SetVerification(e.Request.Context(), e.Request.PathValue("id"), req.Status)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, ticket)
}

// Advertise - Feature or unfeature a ticket
func (h *AdminHandler) Advertise(e *core.RequestEvent, actor *models.Account) error {
	var req struct {
		Advertised bool `json:"advertised"`
	}
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	ticket, err := h.catalog.SetAdvertised(e.Request.Context(), e.Request.PathValue("id"), req.Advertised)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, ticket)
}

func (h *AdminHandler) SetRole(e *core.RequestEvent, actor *models.Account) error {
	var req struct {
		Role models.Role `json:"role"`
	}
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	account, err := h.catalog.SetRole(e.Request.Context(), e.Request.PathValue("id"), req.Role)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, account)
}

// MarkFraud - Flag a vendor and take their tickets off sale
func (h *AdminHandler) MarkFraud(e *core.RequestEvent, actor *models.Account) error {
	n, err := h.catalog.MarkFraud(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, map[string]any{"tickets_deactivated": n})
}

// Reconcile - Recompute available quantities from active bookings
func (h *AdminHandler) Reconcile(e *core.RequestEvent, actor *models.Account) error {
	var req struct {
		TicketIDs []string `json:"ticket_ids"`
	}
	if err := e.BindBody(&req); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	ctx := e.Request.Context()
	if len(req.TicketIDs) == 0 {
		repaired, err := h.bookings.ReconcileAll(ctx)
		if err != nil {
			return fail(e, err)
		}
		return success(e, http.StatusOK, map[string]any{"repaired": repaired})
	}

	repaired := []string{}
	for _, id := range req.TicketIDs {
		ok, err := h.bookings.Reconcile(ctx, id)
		if err != nil {
			return fail(e, err)
		}
		if ok {
			repaired = append(repaired, id)
		}
	}
	return success(e, http.StatusOK, map[string]any{"repaired": repaired})
}
