package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

type TicketHandler struct {
	catalog *services.CatalogService
}

func NewTicketHandler(catalog *services.CatalogService) *TicketHandler {
	return &TicketHandler{catalog: catalog}
}

// Me - Current account, provisioned on first call
func (h *TicketHandler) Me(e *core.RequestEvent, actor *models.Account) error {
	return success(e, http.StatusOK, actor)
}

func (h *TicketHandler) Get(e *core.RequestEvent, _ *models.Account) error {
	ticket, err := h.catalog.Ticket(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return fail(e, err)
	}
	if !ticket.IsActive {
		return fail(e, status.Newf(status.KindNotFound, "ticket %s not found", ticket.ID))
	}
	return success(e, http.StatusOK, ticket)
}

// Advertised - Public featured tickets
func (h *TicketHandler) Advertised(e *core.RequestEvent, _ *models.Account) error {
	list, err := h.catalog.AdvertisedTickets(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, list)
}

// Latest - Public newest tickets
func (h *TicketHandler) Latest(e *core.RequestEvent, _ *models.Account) error {
	list, err := h.catalog.LatestTickets(e.Request.Context())
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, list)
}

// RegisterVendor - Upgrade the calling user to a vendor
func (h *TicketHandler) RegisterVendor(e *core.RequestEvent, actor *models.Account) error {
	account, err := h.catalog.RegisterVendor(e.Request.Context(), actor.ID)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, account)
}

func (h *TicketHandler) Mine(e *core.RequestEvent, actor *models.Account) error {
	list, err := h.catalog.VendorTickets(e.Request.Context(), actor.ID)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, list)
}

func (h *TicketHandler) Create(e *core.RequestEvent, actor *models.Account) error {
	var in services.TicketInput
	if err := e.BindBody(&in); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	ticket, err := h.catalog.CreateTicket(e.Request.Context(), actor, in)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusCreated, ticket)
}

func (h *TicketHandler) Update(e *core.RequestEvent, actor *models.Account) error {
	var in services.TicketUpdate
	if err := e.BindBody(&in); err != nil {
		return fail(e, status.Wrap(status.KindValidation, "invalid request body", err))
	}

	ticket, err := h.catalog.UpdateTicket(e.Request.Context(), actor, e.Request.PathValue("id"), in)
	if err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, ticket)
}

func (h *TicketHandler) Delete(e *core.RequestEvent, actor *models.Account) error {
	if err := h.catalog.DeleteTicket(e.Request.Context(), actor, e.Request.PathValue("id")); err != nil {
		return fail(e, err)
	}
	return success(e, http.StatusOK, map[string]any{"deleted": true})
}
