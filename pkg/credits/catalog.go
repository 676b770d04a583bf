package credits

import "github.com/shopspring/decimal"

// Package is one purchasable credit tier.
type Package struct {
	ID         string
	Name       string
	Credits    decimal.Decimal
	PriceCents int64
	Currency   string
	PriceRef   string // provider-side price id; inline pricing when empty
}

// DefaultCatalog returns the built-in credit tiers. Deployments override
// it with WithCatalog when provider price ids are configured.
func DefaultCatalog() map[string]Package {
	return map[string]Package{
		"starter": {
			ID:         "starter",
			Name:       "Starter pack",
			Credits:    decimal.NewFromInt(10),
			PriceCents: 500,
			Currency:   "usd",
		},
		"creator": {
			ID:         "creator",
			Name:       "Creator pack",
			Credits:    decimal.NewFromInt(50),
			PriceCents: 2000,
			Currency:   "usd",
		},
		"studio": {
			ID:         "studio",
			Name:       "Studio pack",
			Credits:    decimal.NewFromInt(200),
			PriceCents: 6000,
			Currency:   "usd",
		},
	}
}
