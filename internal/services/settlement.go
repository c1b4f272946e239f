package services

import (
	"context"
	"log/slog"

	"ticket-marketplace/internal/events"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
)

const (
	PathRedirect = "redirect"
	PathWebhook  = "webhook"
)

// Confirmation is a provider's report that a booking was paid.
type Confirmation struct {
	BookingID         string
	ExternalPaymentID string
	Currency          string
	Method            string
	// Path names the trigger, redirect or webhook.
	Path string
}

// Settlement turns payment confirmations into paid bookings. Both
// confirmation paths call ConfirmPayment, which is safe to repeat.
type Settlement struct {
	Store  store.Store
	Events events.Publisher
	Now    Clock
}

func NewSettlement(s store.Store, pub events.Publisher, now Clock) *Settlement {
	if pub == nil {
		pub = events.Nop{}
	}
	if now == nil {
		now = SystemClock
	}
	return &Settlement{Store: s, Events: pub, Now: now}
}

// ConfirmPayment marks an accepted booking paid and records exactly one
// transaction for the external payment id. A booking that is already paid
// is returned as is.
func (s *Settlement) ConfirmPayment(ctx context.Context, c Confirmation) (*models.Booking, error) {
	if c.ExternalPaymentID == "" {
		monitoring.TrackSettlement(c.Path, "invalid")
		return nil, status.New(status.KindValidation, "external payment id is required")
	}

	booking, err := s.Store.Bookings().Get(ctx, c.BookingID)
	if err != nil {
		monitoring.TrackSettlement(c.Path, "failed")
		return nil, err
	}
	if booking.Paid() {
		monitoring.TrackSettlement(c.Path, "duplicate")
		return booking, nil
	}
	if booking.Status != models.BookingAccepted {
		monitoring.TrackSettlement(c.Path, "invalid")
		return nil, status.Newf(status.KindInvalidTransition, "cannot settle a %s booking", booking.Status)
	}

	now := s.Now()
	if !booking.DepartureTime.After(now) {
		monitoring.TrackSettlement(c.Path, "expired")
		return nil, status.Newf(status.KindExpired, "booking %s departed at %s", booking.ID, booking.DepartureTime.Format("2006-01-02 15:04"))
	}

	duplicate := false
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		ok, err := tx.Bookings().Settle(ctx, booking.ID, c.ExternalPaymentID, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.Bookings().Get(ctx, booking.ID)
			if err != nil {
				return err
			}
			if current.Paid() {
				booking = current
				duplicate = true
				return nil
			}
			return status.Newf(status.KindInvalidTransition, "cannot settle a %s booking", current.Status)
		}

		inserted, err := tx.Transactions().Insert(ctx, &models.Transaction{
			BookingID:     booking.ID,
			TicketID:      booking.TicketID,
			UserID:        booking.UserID,
			TicketTitle:   booking.TicketTitle,
			Amount:        booking.TotalPrice,
			Currency:      c.Currency,
			PaymentMethod: c.Method,
			TransactionID: c.ExternalPaymentID,
			Status:        models.TransactionSuccess,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			slog.Info("Transaction already recorded", "booking_id", booking.ID, "transaction_id", c.ExternalPaymentID)
		}
		return nil
	})
	if err != nil {
		monitoring.TrackSettlement(c.Path, "failed")
		slog.Error("Settlement failed", "booking_id", c.BookingID, "path", c.Path, "error", err)
		return nil, err
	}
	if duplicate {
		monitoring.TrackSettlement(c.Path, "duplicate")
		return booking, nil
	}

	booking.Status = models.BookingPaid
	booking.PaymentStatus = models.PaymentPaid
	booking.PaymentID = c.ExternalPaymentID
	booking.PaymentDate = &now

	monitoring.TrackSettlement(c.Path, "settled")
	slog.Info("Booking paid", "booking_id", booking.ID, "payment_id", c.ExternalPaymentID, "path", c.Path, "amount", booking.TotalPrice.String())

	s.Events.Publish(ctx, events.Event{
		Type:       events.BookingPaid,
		BookingID:  booking.ID,
		TicketID:   booking.TicketID,
		UserID:     booking.UserID,
		VendorID:   booking.VendorID,
		Quantity:   booking.Quantity,
		OccurredAt: now,
	})
	return booking, nil
}
