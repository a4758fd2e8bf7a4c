package billing

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/metrics/counter"
)

// ErrSubscriptionNotFound is returned by GetStatus for unknown keys.
var ErrSubscriptionNotFound = errors.New("billing: subscription not found")

// Invalidator drops all cached entitlement answers for a user. Wired to the
// access cache at startup.
type Invalidator interface {
	InvalidateUser(userID string)
}

// Fulfiller performs the community side effect when a subscription becomes
// active.
type Fulfiller interface {
	Grant(userID, planID string) error
}

type subKey struct {
	userID   string
	provider models.Provider
}

// StateMachine holds the canonical subscription status per (user, provider)
// and reconciles it from provider lifecycle events. Events for the same key
// serialize on a per-key lock; distinct keys proceed independently.
type StateMachine struct {
	mu    sync.RWMutex
	subs  map[subKey]*models.Subscription
	locks map[subKey]*sync.Mutex

	invalidator Invalidator
	fulfiller   Fulfiller
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		subs:  make(map[subKey]*models.Subscription),
		locks: make(map[subKey]*sync.Mutex),
	}
}

// SetInvalidator wires the access-cache invalidation hook.
func (m *StateMachine) SetInvalidator(inv Invalidator) { m.invalidator = inv }

// SetFulfiller wires the community-fulfillment hook.
func (m *StateMachine) SetFulfiller(f Fulfiller) { m.fulfiller = f }

// validTransitions is the directed status graph. cancelled is terminal.
var validTransitions = map[string][]string{
	models.SubscriptionStatusNone:    {models.SubscriptionStatusActive},
	models.SubscriptionStatusActive:  {models.SubscriptionStatusPastDue, models.SubscriptionStatusCancelled},
	models.SubscriptionStatusPastDue: {models.SubscriptionStatusActive, models.SubscriptionStatusCancelled},
}

func isValidTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// statusForEvent maps an event to the subscription status it implies.
func statusForEvent(ev *models.SubscriptionEvent) (string, error) {
	switch ev.Type {
	case models.EventSubscriptionCreated:
		return models.SubscriptionStatusActive, nil
	case models.EventSubscriptionCancelled:
		return models.SubscriptionStatusCancelled, nil
	case models.EventPaymentSucceeded:
		return models.SubscriptionStatusActive, nil
	case models.EventPaymentFailed:
		return models.SubscriptionStatusPastDue, nil
	case models.EventSubscriptionUpdated:
		if s := strings.TrimSpace(ev.Status); s != "" {
			return strings.ToLower(s), nil
		}
		return models.SubscriptionStatusActive, nil
	default:
		return "", fmt.Errorf("unsupported event type %q", ev.Type)
	}
}

// ApplyEvent reconciles one provider event. Stale and duplicate events
// (timestamp at or before the stored one) are absorbed silently; they are
// counted and logged but never surfaced as errors. Events whose status is not
// a valid outgoing edge are applied anyway and logged as anomalies, since
// providers may send terminal-state corrections.
func (m *StateMachine) ApplyEvent(ev *models.SubscriptionEvent) error {
	if ev == nil || strings.TrimSpace(ev.UserID) == "" || ev.Provider == "" {
		return errors.New("event requires user_id and provider")
	}

	newStatus, err := statusForEvent(ev)
	if err != nil {
		return err
	}

	key := subKey{userID: ev.UserID, provider: ev.Provider}
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	existing := m.subs[key]
	m.mu.RUnlock()

	if existing == nil {
		sub := &models.Subscription{
			UserID:         ev.UserID,
			PlanID:         ev.PlanID,
			Provider:       ev.Provider,
			Status:         newStatus,
			UpdatedAt:      time.Now(),
			EventTimestamp: ev.Timestamp,
		}
		m.mu.Lock()
		m.subs[key] = sub
		m.mu.Unlock()

		_ = counter.AddEventApplied()
		m.afterTransition(ev, models.SubscriptionStatusNone, newStatus)
		return nil
	}

	// Last-write-wins on the provider timestamp, not arrival order.
	if ev.Timestamp <= existing.EventTimestamp {
		_ = counter.AddEventStale()
		log.Warnf("[Billing] Discarding stale event %s for user=%s provider=%s (event ts=%d, stored ts=%d)",
			ev.Type, ev.UserID, ev.Provider, ev.Timestamp, existing.EventTimestamp)
		return nil
	}

	oldStatus := existing.Status
	if oldStatus == models.SubscriptionStatusCancelled && newStatus != models.SubscriptionStatusCancelled {
		// Leaving the terminal state usually means the customer re-subscribed
		// and the provider reused the record. Apply it, but flag it.
		_ = counter.AddEventAnomaly()
		log.Warnf("[Billing] Anomalous transition cancelled -> %s for user=%s provider=%s (event %s)",
			newStatus, ev.UserID, ev.Provider, ev.Type)
	} else if !isValidTransition(oldStatus, newStatus) {
		_ = counter.AddEventAnomaly()
		log.Warnf("[Billing] Anomalous transition %s -> %s for user=%s provider=%s (event %s)",
			oldStatus, newStatus, ev.UserID, ev.Provider, ev.Type)
	}

	m.mu.Lock()
	existing.Status = newStatus
	existing.EventTimestamp = ev.Timestamp
	existing.UpdatedAt = time.Now()
	if strings.TrimSpace(ev.PlanID) != "" {
		existing.PlanID = ev.PlanID
	}
	m.mu.Unlock()

	_ = counter.AddEventApplied()
	m.afterTransition(ev, oldStatus, newStatus)
	return nil
}

// afterTransition runs the side effects of an accepted transition: cache
// invalidation always, community fulfillment on entry into active.
func (m *StateMachine) afterTransition(ev *models.SubscriptionEvent, oldStatus, newStatus string) {
	if m.invalidator != nil {
		m.invalidator.InvalidateUser(ev.UserID)
	}
	if m.fulfiller != nil && newStatus == models.SubscriptionStatusActive && oldStatus != models.SubscriptionStatusActive {
		if err := m.fulfiller.Grant(ev.UserID, ev.PlanID); err != nil {
			log.Errorf("[Billing] Community fulfillment failed for user=%s plan=%s: %v", ev.UserID, ev.PlanID, err)
		}
	}
}

// GetStatus returns the reconciled subscription for (user, provider).
func (m *StateMachine) GetStatus(userID string, provider models.Provider) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[subKey{userID: userID, provider: provider}]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

// ListByUser returns all subscription records for a user, across providers.
func (m *StateMachine) ListByUser(userID string) []models.Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Subscription
	for key, sub := range m.subs {
		if key.userID == userID {
			out = append(out, *sub)
		}
	}
	return out
}

func (m *StateMachine) keyLock(key subKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	m.locks[key] = l
	return l
}
