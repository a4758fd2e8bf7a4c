package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/keetontrades/membergate/app/models"
)

// webhook envelope as delivered by the trusted backend: signature
// verification already happened upstream, the payload here is taken at face
// value.

type webhookEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID    string `json:"user_id"`
		PlanID    string `json:"plan_id"`
		Provider  string `json:"provider"`
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
		SessionID string `json:"session_id"`
	} `json:"data"`
}

// ParsedWebhook is a decoded envelope ready for the event queue.
type ParsedWebhook struct {
	Event *models.SubscriptionEvent
	// SessionID links marketplace checkout callbacks to a pending session.
	SessionID string
}

var supportedEventTypes = map[string]struct{}{
	models.EventSubscriptionCreated:   {},
	models.EventSubscriptionUpdated:   {},
	models.EventSubscriptionCancelled: {},
	models.EventPaymentSucceeded:      {},
	models.EventPaymentFailed:         {},
}

// ErrUnsupportedEventType marks envelope types outside the known lifecycle
// set. Callers acknowledge and drop them.
var ErrUnsupportedEventType = errors.New("billing: unsupported webhook event type")

// ParseWebhookEnvelope decodes and normalizes one webhook delivery. The
// returned event id falls back to a payload hash when the provider sent none,
// so deduplication always has a stable key.
func ParseWebhookEnvelope(payload []byte) (*ParsedWebhook, error) {
	var raw webhookEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	evType := strings.TrimSpace(raw.Type)
	if evType == "" {
		return nil, errors.New("webhook payload missing type")
	}
	if _, ok := supportedEventTypes[evType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventType, evType)
	}

	userID := strings.TrimSpace(raw.Data.UserID)
	if userID == "" {
		return nil, errors.New("webhook payload missing data.user_id")
	}

	provider := models.Provider(strings.ToLower(strings.TrimSpace(raw.Data.Provider)))
	switch provider {
	case models.ProviderStripe, models.ProviderWhop:
	case "":
		// Payment events originate from the card processor; subscription
		// events without an explicit provider come from the marketplace.
		if evType == models.EventPaymentSucceeded || evType == models.EventPaymentFailed {
			provider = models.ProviderStripe
		} else {
			provider = models.ProviderWhop
		}
	default:
		return nil, fmt.Errorf("unknown provider %q in webhook payload", raw.Data.Provider)
	}

	eventID := strings.TrimSpace(raw.ID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	return &ParsedWebhook{
		Event: &models.SubscriptionEvent{
			EventID:   eventID,
			Type:      evType,
			UserID:    userID,
			PlanID:    strings.TrimSpace(raw.Data.PlanID),
			Provider:  provider,
			Status:    strings.ToLower(strings.TrimSpace(raw.Data.Status)),
			Timestamp: raw.Data.Timestamp,
		},
		SessionID: strings.TrimSpace(raw.Data.SessionID),
	}, nil
}

// WebhookDedupe remembers which envelope ids were already accepted. The
// window lives for the process lifetime, matching the in-memory state it
// guards.
type WebhookDedupe struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewWebhookDedupe() *WebhookDedupe {
	return &WebhookDedupe{seen: make(map[string]struct{})}
}

// FirstDelivery records the event id and reports whether this is the first
// time it was seen.
func (d *WebhookDedupe) FirstDelivery(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[eventID]; ok {
		return false
	}
	d.seen[eventID] = struct{}{}
	return true
}

// Forget releases an event id that was recorded but never processed, so the
// provider's redelivery is not mistaken for a duplicate.
func (d *WebhookDedupe) Forget(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
}
