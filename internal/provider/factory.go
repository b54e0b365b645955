package provider

import (
	"fmt"

	"github.com/rs/zerolog"
)

// New creates the configured provider, wrapped in a circuit breaker when
// breaker.Enabled is set. The stdout provider is never wrapped.
func New(cfg ProviderConfig, breaker BreakerConfig, log zerolog.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	var p Provider
	switch cfg.Type {
	case "stdout":
		return NewStdout(), nil
	case "sendgrid":
		p = NewSendGrid(cfg, NewHTTPClient(cfg.Timeout))
	case "smtp":
		p = NewSMTP(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}

	log.Info().Str("provider", p.GetName()).Bool("circuit_breaker", breaker.Enabled).Msg("email provider configured")
	if breaker.Enabled {
		return WithBreaker(p, breaker, log), nil
	}
	return p, nil
}
