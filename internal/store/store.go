// Package store defines the persistence boundary used by the booking
// services. Every mutation that guards an invariant is expressed as a
// single conditional write so concurrent requests never lose updates.
package store

import (
	"context"
	"time"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

// Store groups the repositories of one driver. WithTx runs fn against a
// Store whose writes commit together or not at all.
type Store interface {
	Tickets() TicketRepository
	Bookings() BookingRepository
	Transactions() TransactionRepository
	Accounts() AccountRepository

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Close(ctx context.Context) error
}

type TicketRepository interface {
	Get(ctx context.Context, id string) (*models.Ticket, error)
	Create(ctx context.Context, t *models.Ticket) error
	ListByVendor(ctx context.Context, vendorID string) ([]*models.Ticket, error)
	// ListApproved returns active approved tickets, newest first. limit <= 0
	// means no limit.
	ListApproved(ctx context.Context, advertisedOnly bool, limit int) ([]*models.Ticket, error)
	IDs(ctx context.Context) ([]string, error)

	// Update writes the descriptive fields of t. Quantities, verification
	// and flags are left alone.
	Update(ctx context.Context, t *models.Ticket) error

	SetVerification(ctx context.Context, id string, v models.VerificationStatus) error
	SetActive(ctx context.Context, id string, active bool) error
	DeactivateByVendor(ctx context.Context, vendorID string) (int, error)
	SetAdvertised(ctx context.Context, id string, advertised bool) error
	CountAdvertised(ctx context.Context, excludeID string) (int, error)

	// Decrement subtracts qty from the available quantity only when the
	// ticket is active, approved and has at least qty units left. It
	// reports false when the guard did not hold.
	Decrement(ctx context.Context, id string, qty int) (bool, error)

	// Increment adds qty back only when the result does not exceed the
	// total quantity. It reports false when the guard did not hold.
	Increment(ctx context.Context, id string, qty int) (bool, error)

	// AdjustTotal moves the total and available quantities by delta only
	// when the available quantity stays non-negative. It reports false when
	// the guard did not hold.
	AdjustTotal(ctx context.Context, id string, delta int) (bool, error)

	SetAvailable(ctx context.Context, id string, available int) error
}

type BookingRepository interface {
	Get(ctx context.Context, id string) (*models.Booking, error)
	Create(ctx context.Context, b *models.Booking) error
	ListByUser(ctx context.Context, userID string) ([]*models.Booking, error)
	ListByVendor(ctx context.Context, vendorID string, status models.BookingStatus) ([]*models.Booking, error)

	// CompareAndSetStatus moves the booking from one status to another and
	// reports false when the booking was not in from.
	CompareAndSetStatus(ctx context.Context, id string, from, to models.BookingStatus) (bool, error)

	// Settle moves an accepted booking to paid and records the payment.
	// It reports false when the booking was not accepted.
	Settle(ctx context.Context, id, paymentID string, at time.Time) (bool, error)

	// DeleteIfStatus removes the booking only while it is in status.
	DeleteIfStatus(ctx context.Context, id string, status models.BookingStatus) (bool, error)

	// SumActiveQuantity sums the quantity of bookings on the ticket that
	// still hold inventory.
	SumActiveQuantity(ctx context.Context, ticketID string) (int, error)
}

type TransactionRepository interface {
	Get(ctx context.Context, id string) (*models.Transaction, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Transaction, error)

	// Insert stores tx unless a transaction with the same external id
	// exists. It reports whether a new record was written.
	Insert(ctx context.Context, tx *models.Transaction) (bool, error)
}

type AccountRepository interface {
	Get(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, a *models.Account) error
	SetRole(ctx context.Context, id string, role models.Role) error
	SetFraud(ctx context.Context, id string, fraud bool) error
}

// NotFound builds the error drivers return when a lookup misses.
func NotFound(entity, id string) error {
	return status.Newf(status.KindNotFound, "%s %s not found", entity, id)
}

// ActiveStatuses are the booking statuses that still own reserved units.
var ActiveStatuses = []models.BookingStatus{models.BookingPending, models.BookingAccepted, models.BookingPaid}
