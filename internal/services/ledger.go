package services

import (
	"context"
	"errors"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
)

// Ledger owns every change to a ticket's available quantity. Callers pass
// the store so reservations can join an enclosing transaction.
type Ledger struct{}

// Reserve takes qty units from the ticket. It fails without side effects
// when the ticket is missing, unbookable or short on units.
func (Ledger) Reserve(ctx context.Context, s store.Store, ticketID string, qty int) error {
	if qty < 1 {
		monitoring.TrackInventory("reserve", "invalid")
		return status.Newf(status.KindValidation, "quantity must be at least 1, got %d", qty)
	}

	ok, err := s.Tickets().Decrement(ctx, ticketID, qty)
	if err != nil {
		monitoring.TrackInventory("reserve", "error")
		return err
	}
	if ok {
		monitoring.TrackInventory("reserve", "ok")
		return nil
	}

	monitoring.TrackInventory("reserve", "rejected")

	ticket, err := s.Tickets().Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if !ticket.IsActive || ticket.VerificationStatus != models.VerificationApproved {
		return status.Newf(status.KindInsufficientInventory, "ticket %s is not open for reservations", ticketID)
	}
	return status.Newf(status.KindInsufficientInventory, "only %d tickets left", ticket.AvailableQuantity)
}

// Release returns qty units to the ticket. A release that would push the
// count past the total is an accounting fault.
func (Ledger) Release(ctx context.Context, s store.Store, ticketID string, qty int) error {
	if qty < 1 {
		return status.Newf(status.KindValidation, "quantity must be at least 1, got %d", qty)
	}

	ok, err := s.Tickets().Increment(ctx, ticketID, qty)
	if err != nil {
		monitoring.TrackInventory("release", "error")
		return err
	}
	if !ok {
		monitoring.TrackInventory("release", "rejected")
		if _, err := s.Tickets().Get(ctx, ticketID); errors.Is(err, status.ErrNotFound) {
			return err
		}
		return status.Newf(status.KindInternal, "releasing %d units would exceed total for ticket %s", qty, ticketID)
	}

	monitoring.TrackInventory("release", "ok")
	return nil
}
