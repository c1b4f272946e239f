package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-marketplace/internal/events"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

func TestCreateBooking_ReservesAndSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, models.BookingPending, b.Status)
	assert.Equal(t, models.PaymentPending, b.PaymentStatus)
	assert.True(t, decimal.NewFromInt(200).Equal(b.TotalPrice), b.TotalPrice.String())
	assert.Equal(t, "Dhaka to Sylhet", b.TicketTitle)
	assert.Equal(t, "rahim@example.com", b.UserEmail)
	assert.Equal(t, f.vendor.ID, b.VendorID)
	assert.Equal(t, 3, f.available(t))

	stored, err := f.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Quantity)

	evs := f.events.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, events.BookingCreated, evs[0].Type)
	assert.Equal(t, b.ID, evs[0].BookingID)
}

func TestCreateBooking_Guards(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture)
		qty    int
		err    error
	}{
		{"zero quantity", nil, 0, status.ErrValidation},
		{"inactive ticket", func(t *testing.T, f *fixture) {
			require.NoError(t, f.store.Tickets().SetActive(ctx, f.ticket.ID, false))
		}, 1, status.ErrNotFound},
		{"pending verification", func(t *testing.T, f *fixture) {
			require.NoError(t, f.store.Tickets().SetVerification(ctx, f.ticket.ID, models.VerificationPending))
		}, 1, status.ErrNotApproved},
		{"not enough units", nil, 6, status.ErrInsufficientInventory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.mutate != nil {
				tt.mutate(t, f)
			}

			_, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, tt.qty)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 5, f.available(t))

			list, err := f.store.Bookings().ListByUser(ctx, f.user.ID)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestCreateBooking_ExpiredAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bookings.Now = func() time.Time { return f.ticket.DepartureTime.Add(time.Minute) }
	_, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 1)
	assert.ErrorIs(t, err, status.ErrExpired)

	f.bookings.Now = func() time.Time { return fixedNow }
	_, err = f.bookings.CreateBooking(ctx, "missing", f.user.ID, 1)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = f.bookings.CreateBooking(ctx, f.ticket.ID, "nobody", 1)
	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.Equal(t, 5, f.available(t))
}

func TestCreateBooking_InactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := &models.Account{Name: "Gone", Email: "gone@example.com", Role: models.RoleUser}
	require.NoError(t, f.store.Accounts().Create(ctx, inactive))

	_, err := f.bookings.CreateBooking(ctx, f.ticket.ID, inactive.ID, 1)
	assert.ErrorIs(t, err, status.ErrInactiveUser)
	assert.Equal(t, 5, f.available(t))
}

func TestCreateBooking_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Tickets().SetAvailable(ctx, f.ticket.ID, 1))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, status.ErrInsufficientInventory) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, refused)
	assert.Equal(t, 0, f.available(t))

	list, err := f.store.Bookings().ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateBooking_NeverOversells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 2)
		}()
	}
	wg.Wait()

	held, err := f.store.Bookings().SumActiveQuantity(ctx, f.ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, held)
	assert.Equal(t, 1, f.available(t))
}

func TestDecide_RejectReleasesUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, f.available(t))

	b, err = f.bookings.Decide(ctx, b.ID, f.vendor, EventReject)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRejected, b.Status)
	assert.Equal(t, 5, f.available(t))

	// a repeated rejection must not release twice
	b, err = f.bookings.Decide(ctx, b.ID, f.vendor, EventReject)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRejected, b.Status)
	assert.Equal(t, 5, f.available(t))

	_, err = f.bookings.Decide(ctx, b.ID, f.vendor, EventAccept)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	stored, err := f.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRejected, stored.Status)
}

func TestDecide_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 1)
	require.NoError(t, err)

	other := f.account(t, "Other Lines", "other@lines.example", models.RoleVendor)
	_, err = f.bookings.Decide(ctx, b.ID, other, EventAccept)
	assert.ErrorIs(t, err, status.ErrForbidden)

	_, err = f.bookings.Decide(ctx, b.ID, f.user, EventAccept)
	assert.ErrorIs(t, err, status.ErrForbidden)

	_, err = f.bookings.Decide(ctx, "missing", f.vendor, EventAccept)
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = f.bookings.Decide(ctx, b.ID, f.vendor, EventSettle)
	assert.ErrorIs(t, err, status.ErrValidation)

	accepted, err := f.bookings.Decide(ctx, b.ID, f.admin, EventAccept)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, accepted.Status)
	assert.Equal(t, 4, f.available(t))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 2)
	require.NoError(t, err)
	f.events.Drain()

	assert.ErrorIs(t, f.bookings.Cancel(ctx, b.ID, f.vendor), status.ErrForbidden)

	stranger := f.account(t, "Karim", "karim@example.com", models.RoleUser)
	assert.ErrorIs(t, f.bookings.Cancel(ctx, b.ID, stranger), status.ErrForbidden)

	require.NoError(t, f.bookings.Cancel(ctx, b.ID, f.user))
	assert.Equal(t, 5, f.available(t))

	_, err = f.store.Bookings().Get(ctx, b.ID)
	assert.ErrorIs(t, err, status.ErrNotFound)

	evs := f.events.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, events.BookingCancelled, evs[0].Type)
}

func TestCancel_OnlyPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.acceptedBooking(t, 1)

	err := f.bookings.Cancel(ctx, b.ID, f.user)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)
	assert.Equal(t, 4, f.available(t))
}

func TestUserBookings_Countdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 1)
	require.NoError(t, err)

	list, err := f.bookings.UserBookings(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, (48 * time.Hour).Milliseconds(), list[0].CountdownMs)

	f.bookings.Now = func() time.Time { return fixedNow.Add(72 * time.Hour) }
	list, err = f.bookings.UserBookings(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Zero(t, list[0].CountdownMs)
}

func TestVendorBookings_StatusFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.acceptedBooking(t, 1)
	_, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 1)
	require.NoError(t, err)

	all, err := f.bookings.VendorBookings(ctx, f.vendor.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.bookings.VendorBookings(ctx, f.vendor.ID, models.BookingPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 2)
	require.NoError(t, err)

	repaired, err := f.bookings.Reconcile(ctx, f.ticket.ID)
	require.NoError(t, err)
	assert.False(t, repaired)

	require.NoError(t, f.store.Tickets().SetAvailable(ctx, f.ticket.ID, 5))

	ids, err := f.bookings.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{f.ticket.ID}, ids)
	assert.Equal(t, 3, f.available(t))

	_, err = f.bookings.Reconcile(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
}
