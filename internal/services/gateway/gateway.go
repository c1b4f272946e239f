// Package gateway is the payment-provider boundary: hosted checkout
// sessions, session lookup and signed webhook verification.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderStripe  Provider = "stripe"
	ProviderSandbox Provider = "sandbox"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"

	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// LineItem amounts are in the currency's minor unit.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type CheckoutRequest struct {
	LineItems     []LineItem
	Currency      string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Session struct {
	ID              string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	PaymentIntentID string
	Metadata        map[string]string
}

func (s *Session) Paid() bool { return s.PaymentStatus == PaymentStatusPaid }

// ExternalPaymentID is the id a settlement is recorded under: the payment
// intent when the provider reports one, otherwise the session.
func (s *Session) ExternalPaymentID() string {
	if s.PaymentIntentID != "" {
		return s.PaymentIntentID
	}
	return s.ID
}

type WebhookEvent struct {
	ID   string
	Type string
	// Session is set for checkout session events.
	Session *Session
}

type Gateway interface {
	Name() Provider
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
	// VerifyWebhook authenticates payload against the signature header. It
	// fails with InvalidSignature and must be given the body exactly as
	// received.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// MinorUnits converts a decimal amount to the provider's integer minor
// unit, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
