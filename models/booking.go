package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingAccepted BookingStatus = "accepted"
	BookingRejected BookingStatus = "rejected"
	BookingPaid     BookingStatus = "paid"

	// BookingDeleted is never persisted: a cancelled booking is removed.
	BookingDeleted BookingStatus = "deleted"
)

// Terminal reports whether no further transition may leave s.
func (s BookingStatus) Terminal() bool {
	return s == BookingRejected || s == BookingPaid || s == BookingDeleted
}

// HoldsInventory reports whether a booking in s still owns its reserved units.
func (s BookingStatus) HoldsInventory() bool {
	return s == BookingPending || s == BookingAccepted || s == BookingPaid
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Booking carries snapshot fields (user, ticket and vendor data) copied at
// creation time. They are historical and never refreshed from the source.
type Booking struct {
	ID            string          `json:"id"`
	TicketID      string          `json:"ticket_id"`
	UserID        string          `json:"user_id"`
	VendorID      string          `json:"vendor_id"`
	UserName      string          `json:"user_name"`
	UserEmail     string          `json:"user_email"`
	TicketTitle   string          `json:"ticket_title"`
	TicketPrice   decimal.Decimal `json:"ticket_price"`
	TransportType string          `json:"transport_type"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	Quantity      int             `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        BookingStatus   `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentID     string          `json:"payment_id,omitempty"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	DepartureTime time.Time       `json:"departure_time"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (b *Booking) Paid() bool {
	return b.Status == BookingPaid || b.PaymentStatus == PaymentPaid
}

// Countdown is the time left until departure, zero once departed.
func (b *Booking) Countdown(now time.Time) time.Duration {
	if d := b.DepartureTime.Sub(now); d > 0 {
		return d
	}
	return 0
}
