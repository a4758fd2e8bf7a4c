package models

import "github.com/keetontrades/membergate/internal/pkg/entitlements"

// Plan is one purchasable membership tier with its per-provider references.
// The catalog is loaded once at startup and never mutated afterwards.
type Plan struct {
	ID          entitlements.Plan `json:"id"`
	DisplayName string            `json:"display_name"`
	Price       int64             `json:"price"`
	Currency    string            `json:"currency"`

	// Provider-specific references for the same product.
	StripePriceID string `json:"stripe_price_id"`
	WhopProductID string `json:"whop_product_id"`
}
