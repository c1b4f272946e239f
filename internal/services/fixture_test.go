package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ticket-marketplace/internal/events"
	"ticket-marketplace/internal/store/memstore"
	"ticket-marketplace/models"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memstore.Store
	events   *events.Recorder
	bookings *BookingService
	settle   *Settlement
	catalog  *CatalogService

	user   *models.Account
	vendor *models.Account
	admin  *models.Account
	ticket *models.Ticket
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	s := memstore.New()
	rec := events.NewRecorder(64)
	clock := func() time.Time { return fixedNow }

	f := &fixture{
		store:    s,
		events:   rec,
		bookings: NewBookingService(s, rec, clock),
		settle:   NewSettlement(s, rec, clock),
		catalog:  NewCatalogService(s, clock),
	}

	f.user = f.account(t, "Rahim", "rahim@example.com", models.RoleUser)
	f.vendor = f.account(t, "Green Line", "ops@greenline.example", models.RoleVendor)
	f.admin = f.account(t, "Admin", "admin@example.com", models.RoleAdmin)

	f.ticket = &models.Ticket{
		VendorID:           f.vendor.ID,
		VendorName:         f.vendor.Name,
		VendorEmail:        f.vendor.Email,
		Title:              "Dhaka to Sylhet",
		From:               "Dhaka",
		To:                 "Sylhet",
		TransportType:      "bus",
		Price:              decimal.NewFromInt(100),
		TotalQuantity:      5,
		AvailableQuantity:  5,
		DepartureTime:      fixedNow.Add(48 * time.Hour),
		VerificationStatus: models.VerificationApproved,
		IsActive:           true,
	}
	require.NoError(t, s.Tickets().Create(ctx, f.ticket))

	return f
}

func (f *fixture) account(t *testing.T, name, email string, role models.Role) *models.Account {
	t.Helper()
	a := &models.Account{Name: name, Email: email, Role: role, IsActive: true}
	require.NoError(t, f.store.Accounts().Create(context.Background(), a))
	return a
}

func (f *fixture) available(t *testing.T) int {
	t.Helper()
	ticket, err := f.store.Tickets().Get(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	return ticket.AvailableQuantity
}

// acceptedBooking books qty units for the fixture user and has the
// vendor accept it.
func (f *fixture) acceptedBooking(t *testing.T, qty int) *models.Booking {
	t.Helper()
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, qty)
	require.NoError(t, err)
	b, err = f.bookings.Decide(ctx, b.ID, f.vendor, EventAccept)
	require.NoError(t, err)
	return b
}
