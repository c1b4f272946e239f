package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-marketplace/internal/services/gateway"
	"ticket-marketplace/internal/status"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/models"
	"ticket-marketplace/monitoring"
)

const transactionListLimit = 50

type PaymentConfig struct {
	Currency  string
	ClientURL string
	// SessionTTL is how long a checkout session is handed out again for
	// the same booking.
	SessionTTL time.Duration
	// DedupeTTL is how long processed webhook event ids are remembered.
	DedupeTTL time.Duration
}

// PaymentService opens checkout sessions and feeds both confirmation
// paths into the settlement. Redis is optional: without it sessions are
// never reused and webhook dedupe relies on the store alone.
type PaymentService struct {
	Store      store.Store
	Gateway    gateway.Gateway
	Redis      *redis.Client
	Settlement *Settlement

	cfg PaymentConfig
}

func NewPaymentService(s store.Store, gw gateway.Gateway, redisClient *redis.Client, settlement *Settlement, cfg PaymentConfig) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "bdt"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 24 * time.Hour
	}
	return &PaymentService{
		Store:      s,
		Gateway:    gw,
		Redis:      redisClient,
		Settlement: settlement,
		cfg:        cfg,
	}
}

// CreateCheckoutSession returns a hosted checkout for an accepted booking
// of the actor. Every guard is checked before the provider is called.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, bookingID string, actor *models.Account) (*gateway.CheckoutSession, error) {
	booking, err := s.Store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != actor.ID {
		return nil, status.Newf(status.KindForbidden, "booking %s belongs to another user", bookingID)
	}
	if booking.Paid() {
		return nil, status.Newf(status.KindAlreadyPaid, "booking %s is already paid", bookingID)
	}
	if booking.Status != models.BookingAccepted {
		return nil, status.Newf(status.KindInvalidTransition, "booking %s is %s, not accepted", bookingID, booking.Status)
	}
	if !booking.DepartureTime.After(s.Settlement.Now()) {
		return nil, status.Newf(status.KindExpired, "booking %s departed at %s", bookingID, booking.DepartureTime.Format("2006-01-02 15:04"))
	}

	vendor, err := s.Store.Accounts().Get(ctx, booking.VendorID)
	if err != nil {
		return nil, err
	}
	if vendor.IsFraud {
		slog.Warn("Checkout refused for fraud vendor", "booking_id", bookingID, "vendor_id", vendor.ID)
		return nil, status.Newf(status.KindVendorFraud, "vendor %s is flagged as fraud", vendor.ID)
	}

	key := checkoutKey(booking.ID)
	if cached, ok := s.cachedSession(ctx, key); ok {
		slog.Info("Reusing checkout session", "booking_id", booking.ID, "session_id", cached.ID)
		return cached, nil
	}

	cs, err := s.Gateway.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		LineItems: []gateway.LineItem{{
			Name:       booking.TicketTitle,
			UnitAmount: gateway.MinorUnits(booking.TicketPrice),
			Quantity:   int64(booking.Quantity),
		}},
		Currency:      s.cfg.Currency,
		SuccessURL:    fmt.Sprintf("%s/payment/success?session_id={CHECKOUT_SESSION_ID}", s.cfg.ClientURL),
		CancelURL:     fmt.Sprintf("%s/payment/cancel", s.cfg.ClientURL),
		CustomerEmail: booking.UserEmail,
		Metadata: map[string]string{
			"bookingId":   booking.ID,
			"userId":      booking.UserID,
			"ticketId":    booking.TicketID,
			"ticketTitle": booking.TicketTitle,
		},
	})
	if err != nil {
		slog.Error("Failed to create checkout session", "booking_id", booking.ID, "error", err)
		return nil, err
	}

	s.cacheSession(ctx, key, cs)
	slog.Info("Checkout session created", "booking_id", booking.ID, "session_id", cs.ID, "provider", s.Gateway.Name())
	return cs, nil
}

// ConfirmRedirect settles the booking behind a session the client was
// redirected back with. The provider is asked for the session state; the
// client's word is never taken for it.
func (s *PaymentService) ConfirmRedirect(ctx context.Context, sessionID string, actor *models.Account) (*models.Booking, error) {
	if sessionID == "" {
		return nil, status.New(status.KindValidation, "session_id is required")
	}

	sess, err := s.Gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Paid() {
		return nil, status.Newf(status.KindPaymentIncomplete, "checkout session %s is %s", sessionID, sess.PaymentStatus)
	}

	bookingID := sess.Metadata["bookingId"]
	if bookingID == "" {
		return nil, status.Newf(status.KindValidation, "checkout session %s carries no booking", sessionID)
	}
	if actor != nil && actor.Role != models.RoleAdmin && sess.Metadata["userId"] != actor.ID {
		return nil, status.Newf(status.KindForbidden, "checkout session %s belongs to another user", sessionID)
	}

	s.checkAmount(ctx, bookingID, sess)

	return s.Settlement.ConfirmPayment(ctx, Confirmation{
		BookingID:         bookingID,
		ExternalPaymentID: sess.ExternalPaymentID(),
		Currency:          sess.Currency,
		Method:            string(s.Gateway.Name()),
		Path:              PathRedirect,
	})
}

func (s *PaymentService) checkAmount(ctx context.Context, bookingID string, sess *gateway.Session) {
	booking, err := s.Store.Bookings().Get(ctx, bookingID)
	if err != nil {
		return
	}
	if want := gateway.MinorUnits(booking.TotalPrice); want != sess.AmountTotal {
		slog.Warn("Checkout amount differs from booking total", "booking_id", bookingID, "session_id", sess.ID, "expected", want, "actual", sess.AmountTotal)
	}
}

// HandleWebhook verifies and applies one provider callback. payload must
// be the request body exactly as received. Domain failures are logged and
// acknowledged; only infrastructure errors are returned so the provider
// retries.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.Gateway.VerifyWebhook(payload, signature)
	if err != nil {
		monitoring.TrackWebhook("unknown", "invalid_signature")
		return err
	}

	if s.seen(ctx, ev.ID) {
		monitoring.TrackWebhook(ev.Type, "duplicate")
		slog.Info("Webhook event already processed", "event_id", ev.ID)
		return nil
	}

	if ev.Type != gateway.EventCheckoutCompleted {
		monitoring.TrackWebhook(ev.Type, "ignored")
		s.remember(ctx, ev.ID)
		return nil
	}
	if ev.Session == nil || !ev.Session.Paid() {
		monitoring.TrackWebhook(ev.Type, "unpaid")
		slog.Info("Checkout completed without payment", "event_id", ev.ID)
		s.remember(ctx, ev.ID)
		return nil
	}

	bookingID := ev.Session.Metadata["bookingId"]
	if bookingID == "" {
		monitoring.TrackWebhook(ev.Type, "rejected")
		slog.Warn("Webhook session carries no booking", "event_id", ev.ID, "session_id", ev.Session.ID)
		s.remember(ctx, ev.ID)
		return nil
	}

	_, err = s.Settlement.ConfirmPayment(ctx, Confirmation{
		BookingID:         bookingID,
		ExternalPaymentID: ev.Session.ExternalPaymentID(),
		Currency:          ev.Session.Currency,
		Method:            string(s.Gateway.Name()),
		Path:              PathWebhook,
	})
	if err != nil && !status.Expected(err) {
		monitoring.TrackWebhook(ev.Type, "error")
		return err
	}
	if err != nil {
		monitoring.TrackWebhook(ev.Type, "rejected")
		slog.Warn("Webhook settlement refused", "event_id", ev.ID, "booking_id", bookingID, "error", err)
	} else {
		monitoring.TrackWebhook(ev.Type, "settled")
	}

	s.remember(ctx, ev.ID)
	return nil
}

// SimulatePayment completes a sandbox session and delivers its signed
// webhook through HandleWebhook.
func (s *PaymentService) SimulatePayment(ctx context.Context, sessionID string) error {
	sb, ok := gateway.AsSandbox(s.Gateway)
	if !ok {
		return status.Newf(status.KindForbidden, "payment simulation needs the sandbox provider, running %s", s.Gateway.Name())
	}

	payload, signature, err := sb.Complete(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.HandleWebhook(ctx, payload, signature)
}

func (s *PaymentService) UserTransactions(ctx context.Context, userID string) ([]*models.Transaction, error) {
	return s.Store.Transactions().ListByUser(ctx, userID, transactionListLimit)
}

// Transaction returns one transaction to its owner or an admin.
func (s *PaymentService) Transaction(ctx context.Context, id string, actor *models.Account) (*models.Transaction, error) {
	tx, err := s.Store.Transactions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && tx.UserID != actor.ID {
		return nil, status.Newf(status.KindForbidden, "transaction %s belongs to another user", id)
	}
	return tx, nil
}

func checkoutKey(bookingID string) string {
	return fmt.Sprintf("checkout:%s", bookingID)
}

func webhookKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

func (s *PaymentService) cachedSession(ctx context.Context, key string) (*gateway.CheckoutSession, bool) {
	if s.Redis == nil {
		return nil, false
	}

	raw, err := s.Redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Checkout session cache unavailable", "key", key, "error", err)
		}
		return nil, false
	}

	var cs gateway.CheckoutSession
	if err := json.Unmarshal([]byte(raw), &cs); err != nil || cs.URL == "" {
		return nil, false
	}
	return &cs, true
}

func (s *PaymentService) cacheSession(ctx context.Context, key string, cs *gateway.CheckoutSession) {
	if s.Redis == nil {
		return
	}

	data, err := json.Marshal(cs)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, key, string(data), s.cfg.SessionTTL).Err(); err != nil {
		slog.Warn("Failed to cache checkout session", "key", key, "error", err)
	}
}

func (s *PaymentService) seen(ctx context.Context, eventID string) bool {
	if s.Redis == nil || eventID == "" {
		return false
	}

	n, err := s.Redis.Exists(ctx, webhookKey(eventID)).Result()
	if err != nil {
		slog.Warn("Webhook dedupe lookup failed", "event_id", eventID, "error", err)
		return false
	}
	return n > 0
}

func (s *PaymentService) remember(ctx context.Context, eventID string) {
	if s.Redis == nil || eventID == "" {
		return
	}

	if err := s.Redis.SetNX(ctx, webhookKey(eventID), "1", s.cfg.DedupeTTL).Err(); err != nil {
		slog.Warn("Failed to remember webhook event", "event_id", eventID, "error", err)
	}
}
