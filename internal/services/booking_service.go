package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"ticket-marketplace/internal/events"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
)

type BookingService struct {
	Store  store.Store
	Events events.Publisher
	Now    Clock

	ledger Ledger
}

func NewBookingService(s store.Store, pub events.Publisher, now Clock) *BookingService {
	if pub == nil {
		pub = events.Nop{}
	}
	if now == nil {
		now = SystemClock
	}
	return &BookingService{Store: s, Events: pub, Now: now}
}

// CreateBooking validates the ticket and the user, then inserts a pending
// booking and reserves its units in one transaction.
func (s *BookingService) CreateBooking(ctx context.Context, ticketID, userID string, qty int) (*models.Booking, error) {
	if qty < 1 {
		monitoring.TrackBooking("invalid")
		return nil, status.Newf(status.KindValidation, "quantity must be at least 1, got %d", qty)
	}

	ticket, err := s.Store.Tickets().Get(ctx, ticketID)
	if err != nil {
		monitoring.TrackBooking("rejected")
		return nil, err
	}
	if err := s.checkBookable(ticket, qty); err != nil {
		monitoring.TrackBooking("rejected")
		return nil, err
	}

	user, err := s.Store.Accounts().Get(ctx, userID)
	if err != nil {
		monitoring.TrackBooking("rejected")
		return nil, err
	}
	if !user.IsActive {
		monitoring.TrackBooking("rejected")
		return nil, status.Newf(status.KindInactiveUser, "user %s is not active", userID)
	}

	booking := &models.Booking{
		TicketID:      ticket.ID,
		UserID:        user.ID,
		VendorID:      ticket.VendorID,
		UserName:      user.Name,
		UserEmail:     user.Email,
		TicketTitle:   ticket.Title,
		TicketPrice:   ticket.Price,
		TransportType: ticket.TransportType,
		From:          ticket.From,
		To:            ticket.To,
		Quantity:      qty,
		TotalPrice:    ticket.Price.Mul(decimal.NewFromInt(int64(qty))),
		Status:        models.BookingPending,
		PaymentStatus: models.PaymentPending,
		DepartureTime: ticket.DepartureTime,
	}

	err = s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}
		return s.ledger.Reserve(ctx, tx, ticket.ID, qty)
	})
	if err != nil {
		monitoring.TrackBooking("rejected")
		slog.Info("Booking rejected", "ticket_id", ticketID, "user_id", userID, "quantity", qty, "error", err)
		return nil, err
	}

	monitoring.TrackBooking("created")
	slog.Info("Booking created", "booking_id", booking.ID, "ticket_id", ticket.ID, "user_id", user.ID, "quantity", qty)
	s.publish(ctx, events.BookingCreated, booking)

	return booking, nil
}

func (s *BookingService) checkBookable(t *models.Ticket, qty int) error {
	if !t.IsActive {
		return status.Newf(status.KindNotFound, "ticket %s not found", t.ID)
	}
	if t.VerificationStatus != models.VerificationApproved {
		return status.Newf(status.KindNotApproved, "ticket %s is %s", t.ID, t.VerificationStatus)
	}
	if !t.DepartureTime.After(s.Now()) {
		return status.Newf(status.KindExpired, "ticket %s departed at %s", t.ID, t.DepartureTime.Format("2006-01-02 15:04"))
	}
	if t.AvailableQuantity < qty {
		return status.Newf(status.KindInsufficientInventory, "only %d tickets left", t.AvailableQuantity)
	}
	return nil
}

// Decide applies a vendor or admin accept/reject. Repeating a decision the
// booking already reflects succeeds without side effects.
func (s *BookingService) Decide(ctx context.Context, bookingID string, actor *models.Account, ev Event) (*models.Booking, error) {
	if ev != EventAccept && ev != EventReject {
		return nil, status.Newf(status.KindValidation, "%s is not a vendor decision", ev)
	}

	booking, err := s.Store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && (actor.Role != models.RoleVendor || actor.ID != booking.VendorID) {
		monitoring.TrackTransition(string(ev), "forbidden")
		return nil, status.Newf(status.KindForbidden, "booking %s belongs to another vendor", bookingID)
	}

	step, err := Plan(booking.Status, ev)
	if err != nil {
		monitoring.TrackTransition(string(ev), "invalid")
		return nil, err
	}
	if step.Noop {
		monitoring.TrackTransition(string(ev), "noop")
		return booking, nil
	}

	noop := false
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		ok, err := tx.Bookings().CompareAndSetStatus(ctx, booking.ID, step.From, step.To)
		if err != nil {
			return err
		}
		if !ok {
			// lost a race: settle on whatever the winner left behind
			current, err := tx.Bookings().Get(ctx, booking.ID)
			if err != nil {
				return err
			}
			if current.Status == step.To {
				noop = true
				return nil
			}
			return status.Newf(status.KindInvalidTransition, "cannot %s a %s booking", ev, current.Status)
		}
		if Releases(ev) {
			return s.ledger.Release(ctx, tx, booking.TicketID, booking.Quantity)
		}
		return nil
	})
	if err != nil {
		monitoring.TrackTransition(string(ev), "failed")
		return nil, err
	}

	booking.Status = step.To
	if noop {
		monitoring.TrackTransition(string(ev), "noop")
		return booking, nil
	}

	monitoring.TrackTransition(string(ev), "ok")
	slog.Info("Booking decided", "booking_id", booking.ID, "event", ev, "actor_id", actor.ID, "status", booking.Status)

	if ev == EventAccept {
		s.publish(ctx, events.BookingAccepted, booking)
	} else {
		s.publish(ctx, events.BookingRejected, booking)
	}
	return booking, nil
}

// Cancel removes a pending booking on behalf of its own user and returns
// the units. The booking disappearing underneath us counts as cancelled.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, actor *models.Account) error {
	booking, err := s.Store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleUser || actor.ID != booking.UserID {
		monitoring.TrackTransition(string(EventCancel), "forbidden")
		return status.Newf(status.KindForbidden, "booking %s belongs to another user", bookingID)
	}
	if _, err := Plan(booking.Status, EventCancel); err != nil {
		monitoring.TrackTransition(string(EventCancel), "invalid")
		return err
	}

	released := false
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		ok, err := tx.Bookings().DeleteIfStatus(ctx, booking.ID, models.BookingPending)
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.Bookings().Get(ctx, booking.ID)
			if errors.Is(err, status.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return status.Newf(status.KindInvalidTransition, "cannot cancel a %s booking", current.Status)
		}
		released = true
		return s.ledger.Release(ctx, tx, booking.TicketID, booking.Quantity)
	})
	if err != nil {
		monitoring.TrackTransition(string(EventCancel), "failed")
		return err
	}
	if !released {
		monitoring.TrackTransition(string(EventCancel), "noop")
		return nil
	}

	monitoring.TrackTransition(string(EventCancel), "ok")
	slog.Info("Booking cancelled", "booking_id", booking.ID, "user_id", actor.ID, "released", booking.Quantity)
	booking.Status = models.BookingDeleted
	s.publish(ctx, events.BookingCancelled, booking)
	return nil
}

// UserBooking is a booking with the time left until departure.
type UserBooking struct {
	*models.Booking
	CountdownMs int64 `json:"countdown_ms"`
}

func (s *BookingService) UserBookings(ctx context.Context, userID string) ([]UserBooking, error) {
	list, err := s.Store.Bookings().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	out := make([]UserBooking, 0, len(list))
	for _, b := range list {
		out = append(out, UserBooking{Booking: b, CountdownMs: b.Countdown(now).Milliseconds()})
	}
	return out, nil
}

// VendorBookings lists the vendor's bookings, optionally only those in st.
func (s *BookingService) VendorBookings(ctx context.Context, vendorID string, st models.BookingStatus) ([]*models.Booking, error) {
	return s.Store.Bookings().ListByVendor(ctx, vendorID, st)
}

// Reconcile recomputes the ticket's available quantity from the bookings
// that still hold inventory and repairs the counter when it drifted. It
// reports whether a repair was written.
func (s *BookingService) Reconcile(ctx context.Context, ticketID string) (bool, error) {
	repaired := false
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		ticket, err := tx.Tickets().Get(ctx, ticketID)
		if err != nil {
			return err
		}
		held, err := tx.Bookings().SumActiveQuantity(ctx, ticketID)
		if err != nil {
			return err
		}

		want := ticket.TotalQuantity - held
		if want < 0 {
			slog.Warn("Ticket oversold", "ticket_id", ticketID, "total", ticket.TotalQuantity, "held", held)
			want = 0
		}
		if want == ticket.AvailableQuantity {
			return nil
		}

		slog.Warn("Repairing ticket inventory", "ticket_id", ticketID, "from", ticket.AvailableQuantity, "to", want)
		repaired = true
		return tx.Tickets().SetAvailable(ctx, ticketID, want)
	})
	if err != nil {
		monitoring.TrackInventory("reconcile", "error")
		return false, err
	}
	if repaired {
		monitoring.TrackInventory("reconcile", "repaired")
	} else {
		monitoring.TrackInventory("reconcile", "ok")
	}
	return repaired, nil
}

// ReconcileAll runs Reconcile over every ticket and returns the ids it
// repaired. It stops at the first error.
func (s *BookingService) ReconcileAll(ctx context.Context) ([]string, error) {
	ids, err := s.Store.Tickets().IDs(ctx)
	if err != nil {
		return nil, err
	}

	var repaired []string
	for _, id := range ids {
		ok, err := s.Reconcile(ctx, id)
		if err != nil {
			return repaired, err
		}
		if ok {
			repaired = append(repaired, id)
		}
	}
	return repaired, nil
}

func (s *BookingService) publish(ctx context.Context, t events.Type, b *models.Booking) {
	s.Events.Publish(ctx, events.Event{
		Type:       t,
		BookingID:  b.ID,
		TicketID:   b.TicketID,
		UserID:     b.UserID,
		VendorID:   b.VendorID,
		Quantity:   b.Quantity,
		OccurredAt: s.Now(),
	})
}
