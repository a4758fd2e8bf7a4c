package models

import "time"

const (
	CheckoutStatusPending   = "pending"
	CheckoutStatusCompleted = "completed"
	CheckoutStatusCancelled = "cancelled"
	CheckoutStatusExpired   = "expired"
)

// CheckoutSession is a provider-tracked handle for an in-progress purchase.
// Marketplace checkouts stay pending until reconciled out-of-band; processor
// checkouts resolve synchronously. Once registered the session is owned by
// the billing layer and only transitions via events or the expiry sweep.
type CheckoutSession struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PlanID      string    `json:"plan_id"`
	Provider    Provider  `json:"provider"`
	Status      string    `json:"status"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
