package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-marketplace/internal/services/gateway"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

func newPayments(t *testing.T, f *fixture) (*PaymentService, *gateway.Sandbox) {
	t.Helper()
	sb, err := gateway.NewSandbox(&gateway.SandboxConfig{WebhookSecret: "whsec_test", CheckoutBaseURL: "http://localhost:5173"})
	require.NoError(t, err)

	svc := NewPaymentService(f.store, gateway.WithBreaker(sb), nil, f.settle, PaymentConfig{
		Currency:  "bdt",
		ClientURL: "http://localhost:5173",
	})
	return svc, sb
}

func transactionCount(t *testing.T, f *fixture) int {
	t.Helper()
	txs, err := f.store.Transactions().ListByUser(context.Background(), f.user.ID, 50)
	require.NoError(t, err)
	return len(txs)
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newFixture(t)
	svc, sb := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 2)

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)
	assert.Contains(t, cs.URL, "/sandbox/checkout/")

	sess, err := sb.RetrieveSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), sess.AmountTotal)
	assert.Equal(t, "bdt", sess.Currency)
	assert.Equal(t, b.ID, sess.Metadata["bookingId"])
	assert.Equal(t, f.user.ID, sess.Metadata["userId"])
	assert.Equal(t, f.ticket.ID, sess.Metadata["ticketId"])
}

func TestCreateCheckoutSession_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("other user", func(t *testing.T) {
		f := newFixture(t)
		svc, _ := newPayments(t, f)
		b := f.acceptedBooking(t, 1)

		_, err := svc.CreateCheckoutSession(ctx, b.ID, f.admin)
		assert.ErrorIs(t, err, status.ErrForbidden)
	})

	t.Run("pending booking", func(t *testing.T) {
		f := newFixture(t)
		svc, _ := newPayments(t, f)
		b, err := f.bookings.CreateBooking(ctx, f.ticket.ID, f.user.ID, 1)
		require.NoError(t, err)

		_, err = svc.CreateCheckoutSession(ctx, b.ID, f.user)
		assert.ErrorIs(t, err, status.ErrInvalidTransition)
	})

	t.Run("already paid", func(t *testing.T) {
		f := newFixture(t)
		svc, _ := newPayments(t, f)
		b := f.acceptedBooking(t, 1)
		_, err := f.settle.ConfirmPayment(ctx, Confirmation{BookingID: b.ID, ExternalPaymentID: "pi_1"})
		require.NoError(t, err)

		_, err = svc.CreateCheckoutSession(ctx, b.ID, f.user)
		assert.ErrorIs(t, err, status.ErrAlreadyPaid)
	})

	t.Run("departed", func(t *testing.T) {
		f := newFixture(t)
		svc, _ := newPayments(t, f)
		b := f.acceptedBooking(t, 1)
		f.settle.Now = func() time.Time { return b.DepartureTime.Add(time.Hour) }

		_, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
		assert.ErrorIs(t, err, status.ErrExpired)
	})

	t.Run("fraud vendor", func(t *testing.T) {
		f := newFixture(t)
		svc, _ := newPayments(t, f)
		b := f.acceptedBooking(t, 1)
		require.NoError(t, f.store.Accounts().SetFraud(ctx, f.vendor.ID, true))

		_, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
		assert.ErrorIs(t, err, status.ErrVendorFraud)
	})
}

func TestCreateCheckoutSession_ReusesCachedSession(t *testing.T) {
	f := newFixture(t)
	svc, _ := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 1)

	db, mock := redismock.NewClientMock()
	svc.Redis = db

	cached, err := json.Marshal(gateway.CheckoutSession{ID: "cs_cached", URL: "http://localhost:5173/sandbox/checkout/cs_cached"})
	require.NoError(t, err)
	mock.ExpectGet("checkout:" + b.ID).SetVal(string(cached))

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, "cs_cached", cs.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhook_SettlesOnce(t *testing.T) {
	f := newFixture(t)
	svc, sb := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 2)

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)

	payload, signature, err := sb.Complete(ctx, cs.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandleWebhook(ctx, payload, signature))
	require.NoError(t, svc.HandleWebhook(ctx, payload, signature))

	stored, err := f.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaid, stored.Status)
	assert.Contains(t, stored.PaymentID, "pi_sandbox_")
	assert.Equal(t, 1, transactionCount(t, f))

	// the redirect arriving afterwards converges on the same settlement
	paid, err := svc.ConfirmRedirect(ctx, cs.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaid, paid.Status)
	assert.Equal(t, 1, transactionCount(t, f))
}

func TestWebhook_InvalidSignatureMutatesNothing(t *testing.T) {
	f := newFixture(t)
	svc, sb := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 1)

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)
	payload, _, err := sb.Complete(ctx, cs.ID)
	require.NoError(t, err)

	err = svc.HandleWebhook(ctx, payload, "t=1,v1=forged")
	assert.ErrorIs(t, err, status.ErrInvalidSignature)

	stored, err := f.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, stored.Status)
	assert.Zero(t, transactionCount(t, f))
}

func TestWebhook_AcknowledgesRefusedSettlement(t *testing.T) {
	f := newFixture(t)
	svc, sb := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 1)

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)
	payload, signature, err := sb.Complete(ctx, cs.ID)
	require.NoError(t, err)

	f.settle.Now = func() time.Time { return b.DepartureTime.Add(time.Minute) }
	require.NoError(t, svc.HandleWebhook(ctx, payload, signature))

	stored, err := f.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, stored.Status)
	assert.Zero(t, transactionCount(t, f))
}

func TestWebhook_DedupeFastPath(t *testing.T) {
	f := newFixture(t)
	svc, sb := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 1)

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)
	payload, signature, err := sb.Complete(ctx, cs.ID)
	require.NoError(t, err)

	var ev struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(payload, &ev))

	db, mock := redismock.NewClientMock()
	svc.Redis = db
	mock.ExpectExists("webhook:event:" + ev.ID).SetVal(1)

	require.NoError(t, svc.HandleWebhook(ctx, payload, signature))
	assert.NoError(t, mock.ExpectationsWereMet())

	stored, err := f.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingAccepted, stored.Status)
}

func TestConfirmRedirect(t *testing.T) {
	f := newFixture(t)
	svc, sb := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 1)

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)

	_, err = svc.ConfirmRedirect(ctx, cs.ID, f.user)
	assert.ErrorIs(t, err, status.ErrPaymentIncomplete)

	_, _, err = sb.Complete(ctx, cs.ID)
	require.NoError(t, err)

	stranger := f.account(t, "Karim", "karim@example.com", models.RoleUser)
	_, err = svc.ConfirmRedirect(ctx, cs.ID, stranger)
	assert.ErrorIs(t, err, status.ErrForbidden)

	paid, err := svc.ConfirmRedirect(ctx, cs.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaid, paid.Status)

	_, err = svc.ConfirmRedirect(ctx, "cs_missing", f.user)
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestSimulatePayment(t *testing.T) {
	f := newFixture(t)
	svc, _ := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 1)

	cs, err := svc.CreateCheckoutSession(ctx, b.ID, f.user)
	require.NoError(t, err)

	require.NoError(t, svc.SimulatePayment(ctx, cs.ID))

	stored, err := f.store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaid, stored.Status)
}

func TestTransactionLookup(t *testing.T) {
	f := newFixture(t)
	svc, _ := newPayments(t, f)
	ctx := context.Background()
	b := f.acceptedBooking(t, 1)

	_, err := f.settle.ConfirmPayment(ctx, Confirmation{BookingID: b.ID, ExternalPaymentID: "pi_lookup"})
	require.NoError(t, err)

	list, err := svc.UserTransactions(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := svc.Transaction(ctx, list[0].ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, "pi_lookup", got.TransactionID)

	_, err = svc.Transaction(ctx, list[0].ID, f.admin)
	assert.NoError(t, err)

	_, err = svc.Transaction(ctx, list[0].ID, f.vendor)
	assert.ErrorIs(t, err, status.ErrForbidden)
}
