package gateway

import (
	"fmt"
	"log/slog"
)

// Factory builds a gateway for a provider from its configuration.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// Create returns the provider's gateway wrapped in a circuit breaker.
func (f *Factory) Create(provider Provider, config any) (Gateway, error) {
	var (
		gw  Gateway
		err error
	)

	switch provider {
	case ProviderStripe:
		cfg, ok := config.(*StripeConfig)
		if !ok {
			return nil, fmt.Errorf("invalid stripe config type, expected *gateway.StripeConfig")
		}
		gw, err = NewStripe(cfg)

	case ProviderSandbox:
		cfg, ok := config.(*SandboxConfig)
		if !ok {
			return nil, fmt.Errorf("invalid sandbox config type, expected *gateway.SandboxConfig")
		}
		gw, err = NewSandbox(cfg)

	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s gateway: %w", provider, err)
	}

	slog.Info("Payment gateway ready", "provider", provider)
	return WithBreaker(gw), nil
}

func (f *Factory) SupportedProviders() []Provider {
	return []Provider{ProviderStripe, ProviderSandbox}
}
