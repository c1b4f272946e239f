package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
)

func seedTicket(t *testing.T, s *Store, total, available int) *models.Ticket {
	t.Helper()
	ticket := &models.Ticket{
		VendorID:           "vendor-1",
		Title:              "Dhaka to Chittagong",
		Price:              decimal.NewFromInt(100),
		TotalQuantity:      total,
		AvailableQuantity:  available,
		DepartureTime:      time.Now().Add(24 * time.Hour),
		VerificationStatus: models.VerificationApproved,
		IsActive:           true,
	}
	require.NoError(t, s.Tickets().Create(context.Background(), ticket))
	return ticket
}

func TestTickets_GetMissing(t *testing.T) {
	s := New()

	_, err := s.Tickets().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestTickets_DecrementGuards(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := seedTicket(t, s, 5, 2)

	ok, err := s.Tickets().Decrement(ctx, ticket.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Tickets().Decrement(ctx, ticket.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := s.Tickets().Get(ctx, ticket.ID)
	assert.Equal(t, 0, got.AvailableQuantity)

	require.NoError(t, s.Tickets().SetActive(ctx, ticket.ID, false))
	require.NoError(t, s.Tickets().SetAvailable(ctx, ticket.ID, 5))
	ok, _ = s.Tickets().Decrement(ctx, ticket.ID, 1)
	assert.False(t, ok, "inactive ticket must not be decremented")
}

func TestTickets_IncrementCappedAtTotal(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := seedTicket(t, s, 5, 4)

	ok, err := s.Tickets().Increment(ctx, ticket.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = s.Tickets().Increment(ctx, ticket.ID, 1)
	assert.True(t, ok)

	got, _ := s.Tickets().Get(ctx, ticket.ID)
	assert.Equal(t, 5, got.AvailableQuantity)
}

func TestTickets_AdjustTotal(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := seedTicket(t, s, 5, 2)

	ok, err := s.Tickets().AdjustTotal(ctx, ticket.ID, -3)
	require.NoError(t, err)
	assert.False(t, ok, "available must not go negative")

	ok, err = s.Tickets().AdjustTotal(ctx, ticket.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := s.Tickets().Get(ctx, ticket.ID)
	assert.Equal(t, 8, got.TotalQuantity)
	assert.Equal(t, 5, got.AvailableQuantity)

	ok, _ = s.Tickets().AdjustTotal(ctx, "nope", 1)
	assert.False(t, ok)
}

func TestTickets_ListApproved(t *testing.T) {
	s := New()
	ctx := context.Background()

	older := seedTicket(t, s, 5, 5)
	time.Sleep(time.Millisecond)
	newer := seedTicket(t, s, 5, 5)
	pending := seedTicket(t, s, 5, 5)
	require.NoError(t, s.Tickets().SetVerification(ctx, pending.ID, models.VerificationPending))
	require.NoError(t, s.Tickets().SetAdvertised(ctx, older.ID, true))

	list, err := s.Tickets().ListApproved(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	list, _ = s.Tickets().ListApproved(ctx, false, 1)
	assert.Len(t, list, 1)

	list, _ = s.Tickets().ListApproved(ctx, true, 6)
	require.Len(t, list, 1)
	assert.Equal(t, older.ID, list[0].ID)
}

func TestTickets_ConcurrentDecrementLastUnit(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := seedTicket(t, s, 10, 1)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Tickets().Decrement(ctx, ticket.ID, 1); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	got, _ := s.Tickets().Get(ctx, ticket.ID)
	assert.Equal(t, 0, got.AvailableQuantity)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := seedTicket(t, s, 5, 5)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		require.NoError(t, tx.Bookings().Create(ctx, &models.Booking{ID: "b1", TicketID: ticket.ID, Quantity: 2}))
		ok, err := tx.Tickets().Decrement(ctx, ticket.ID, 2)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.Tickets().Get(ctx, ticket.ID)
	assert.Equal(t, 5, got.AvailableQuantity)
	_, err = s.Bookings().Get(ctx, "b1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestWithTx_Commits(t *testing.T) {
	s := New()
	ctx := context.Background()
	ticket := seedTicket(t, s, 5, 5)

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.Bookings().Create(ctx, &models.Booking{ID: "b1", TicketID: ticket.ID, Quantity: 2, Status: models.BookingPending}); err != nil {
			return err
		}
		_, err := tx.Tickets().Decrement(ctx, ticket.ID, 2)
		return err
	})
	require.NoError(t, err)

	sum, err := s.Bookings().SumActiveQuantity(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum)
}

func TestBookings_CompareAndSetStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Bookings().Create(ctx, &models.Booking{ID: "b1", Status: models.BookingPending}))

	ok, err := s.Bookings().CompareAndSetStatus(ctx, "b1", models.BookingPending, models.BookingAccepted)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Bookings().CompareAndSetStatus(ctx, "b1", models.BookingPending, models.BookingRejected)
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := s.Bookings().Get(ctx, "b1")
	assert.Equal(t, models.BookingAccepted, got.Status)
}

func TestBookings_SettleOnlyFromAccepted(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Now()
	require.NoError(t, s.Bookings().Create(ctx, &models.Booking{ID: "b1", Status: models.BookingPending, PaymentStatus: models.PaymentPending}))

	ok, _ := s.Bookings().Settle(ctx, "b1", "pi_1", at)
	assert.False(t, ok)

	_, _ = s.Bookings().CompareAndSetStatus(ctx, "b1", models.BookingPending, models.BookingAccepted)
	ok, _ = s.Bookings().Settle(ctx, "b1", "pi_1", at)
	assert.True(t, ok)

	got, _ := s.Bookings().Get(ctx, "b1")
	assert.Equal(t, models.BookingPaid, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "pi_1", got.PaymentID)
	require.NotNil(t, got.PaymentDate)
}

func TestBookings_DeleteIfStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Bookings().Create(ctx, &models.Booking{ID: "b1", Status: models.BookingAccepted}))

	ok, _ := s.Bookings().DeleteIfStatus(ctx, "b1", models.BookingPending)
	assert.False(t, ok)

	ok, _ = s.Bookings().DeleteIfStatus(ctx, "b1", models.BookingAccepted)
	assert.True(t, ok)
	_, err := s.Bookings().Get(ctx, "b1")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestBookings_ListByVendorFiltersStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Bookings().Create(ctx, &models.Booking{ID: "b1", VendorID: "v", Status: models.BookingPending}))
	require.NoError(t, s.Bookings().Create(ctx, &models.Booking{ID: "b2", VendorID: "v", Status: models.BookingPaid}))
	require.NoError(t, s.Bookings().Create(ctx, &models.Booking{ID: "b3", VendorID: "other", Status: models.BookingPending}))

	all, _ := s.Bookings().ListByVendor(ctx, "v", "")
	assert.Len(t, all, 2)

	pending, _ := s.Bookings().ListByVendor(ctx, "v", models.BookingPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "b1", pending[0].ID)
}

func TestTransactions_InsertIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	inserted, err := s.Transactions().Insert(ctx, &models.Transaction{TransactionID: "pi_1", UserID: "u"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Transactions().Insert(ctx, &models.Transaction{TransactionID: "pi_1", UserID: "u"})
	require.NoError(t, err)
	assert.False(t, inserted)

	list, _ := s.Transactions().ListByUser(ctx, "u", 50)
	assert.Len(t, list, 1)
}

func TestAccounts_EmailIsUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Accounts().Create(ctx, &models.Account{Email: "a@example.com", Role: models.RoleUser}))
	err := s.Accounts().Create(ctx, &models.Account{Email: "a@example.com", Role: models.RoleUser})
	assert.ErrorIs(t, err, status.ErrValidation)

	got, err := s.Accounts().GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, s.Accounts().SetFraud(ctx, got.ID, true))

	got, _ = s.Accounts().Get(ctx, got.ID)
	assert.True(t, got.IsFraud)
}
