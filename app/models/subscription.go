package models

import "time"

// Provider identifies which external platform owns a purchase or subscription.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderWhop   Provider = "whop"
)

const (
	SubscriptionStatusNone      = "none"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription mirrors the reconciled provider subscription state for one
// (user, provider) pair. Records are never removed; cancellation is the
// logical tombstone so the history stays auditable.
type Subscription struct {
	UserID    string    `json:"user_id"`
	PlanID    string    `json:"plan_id"`
	Provider  Provider  `json:"provider"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`

	// EventTimestamp is the provider timestamp of the last applied event.
	// Events at or before this point are stale and must not regress state.
	EventTimestamp int64 `json:"event_timestamp"`
}

const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
)

// SubscriptionEvent is the normalized lifecycle event fed into the state
// machine, decoded from the pre-verified webhook envelope.
type SubscriptionEvent struct {
	EventID   string   `json:"event_id"`
	Type      string   `json:"type"`
	UserID    string   `json:"user_id"`
	PlanID    string   `json:"plan_id"`
	Provider  Provider `json:"provider"`
	Status    string   `json:"status"`
	Timestamp int64    `json:"timestamp"`
}
