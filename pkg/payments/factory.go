package payments

import "strings"

// Config selects which payment provider implementation is active.
type Config struct {
	Provider string `env:"PAYMENT_PROVIDER" envDefault:"stripe"` // Provider is "stripe" or "paddle".
}

// New builds the configured Provider.
func New(cfg Config, stripeCfg StripeConfig, paddleCfg PaddleConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "stripe", "":
		return NewStripeProvider(stripeCfg)
	case "paddle":
		return NewPaddleProvider(paddleCfg)
	default:
		return nil, ErrUnknownProvider
	}
}
