package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/utils"
)

// Breaker guards outbound provider calls with a circuit breaker and
// records their latency. Webhook verification is local and passes through.
type Breaker struct {
	Gateway
	cb *utils.CircuitBreaker
}

func WithBreaker(gw Gateway, opts ...utils.BreakerOption) *Breaker {
	opts = append([]utils.BreakerOption{
		utils.WithThreshold(5, 0.5),
		utils.WithTimeout(30 * time.Second),
		utils.WithStateChange(func(name string, from, to utils.State) {
			slog.Warn("Payment gateway circuit changed state", "gateway", name, "from", from.String(), "to", to.String())
		}),
	}, opts...)

	return &Breaker{
		Gateway: gw,
		cb:      utils.NewCircuitBreaker(string(gw.Name()), opts...),
	}
}

// Unwrap returns the wrapped gateway.
func (b *Breaker) Unwrap() Gateway { return b.Gateway }

func (b *Breaker) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	defer monitoring.ObserveGateway("create_checkout_session", time.Now())

	res, err := b.cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return b.Gateway.CreateCheckoutSession(ctx, req)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	return res.(*CheckoutSession), nil
}

func (b *Breaker) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	defer monitoring.ObserveGateway("retrieve_session", time.Now())

	// a missing session is an answer, not an outage
	var answer error
	res, err := b.cb.Execute(ctx, func(ctx context.Context) (any, error) {
		sess, err := b.Gateway.RetrieveSession(ctx, sessionID)
		if err != nil && status.Expected(err) {
			answer = err
			return nil, nil
		}
		return sess, err
	})
	if err != nil {
		return nil, breakerError(err)
	}
	if answer != nil {
		return nil, answer
	}
	return res.(*Session), nil
}

// AsSandbox reports the sandbox behind gw, if any.
func AsSandbox(gw Gateway) (*Sandbox, bool) {
	for {
		switch g := gw.(type) {
		case *Sandbox:
			return g, true
		case interface{ Unwrap() Gateway }:
			gw = g.Unwrap()
		default:
			return nil, false
		}
	}
}

func breakerError(err error) error {
	if errors.Is(err, utils.ErrOpenState) || errors.Is(err, utils.ErrTooManyRequests) {
		return status.Wrap(status.KindInternal, "payment provider unavailable", err)
	}
	return err
}
