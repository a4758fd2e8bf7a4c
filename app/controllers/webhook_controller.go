package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/billing"
	"github.com/keetontrades/membergate/internal/pkg/eventqueue"
	"github.com/keetontrades/membergate/internal/pkg/metrics/counter"
)

// WebhookController ingests provider callbacks. Delivery is at-least-once
// on the provider side, so every event passes through the dedupe set
// before it reaches the queue.
type WebhookController struct {
	queue    *eventqueue.Queue
	dedupe   *billing.WebhookDedupe
	sessions *billing.SessionRegistry
}

func NewWebhookController(queue *eventqueue.Queue, dedupe *billing.WebhookDedupe, sessions *billing.SessionRegistry) *WebhookController {
	return &WebhookController{
		queue:    queue,
		dedupe:   dedupe,
		sessions: sessions,
	}
}

// HandleBillingWebhook handles POST /webhooks/billing. Acknowledged events
// return 202 before the state transition is applied; the queue serializes
// application per user and provider.
func (ctrl *WebhookController) HandleBillingWebhook(c *fiber.Ctx) error {
	counter.AddWebhookReceived()

	parsed, err := billing.ParseWebhookEnvelope(c.Body())
	if err != nil {
		if errors.Is(err, billing.ErrUnsupportedEventType) {
			log.Warnf("[Webhook] Ignoring unsupported event: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "unsupported_event_type",
				"message": err.Error(),
			})
		}
		log.Warnf("[Webhook] Rejecting malformed payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_payload",
			"message": err.Error(),
		})
	}

	if !ctrl.dedupe.FirstDelivery(parsed.Event.EventID) {
		counter.AddWebhookDuplicate()
		log.Infof("[Webhook] Duplicate delivery of event %s", parsed.Event.EventID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"duplicate": true,
		})
	}

	ctrl.settleSession(parsed)

	if err := ctrl.queue.Enqueue(parsed.Event); err != nil {
		// The event never reached a worker; release the id so the
		// provider's redelivery is processed instead of deduplicated away.
		ctrl.dedupe.Forget(parsed.Event.EventID)
		log.Errorf("[Webhook] Enqueue failed for event %s: %v", parsed.Event.EventID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "queue_unavailable",
			"message": "event could not be queued, redeliver later",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"queued":   true,
		"event_id": parsed.Event.EventID,
	})
}

// settleSession closes out the pending checkout session named by a
// marketplace callback, if any.
func (ctrl *WebhookController) settleSession(parsed *billing.ParsedWebhook) {
	if parsed.SessionID == "" {
		return
	}
	var err error
	switch parsed.Event.Type {
	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated, models.EventPaymentSucceeded:
		err = ctrl.sessions.MarkCompleted(parsed.SessionID)
	case models.EventSubscriptionCancelled, models.EventPaymentFailed:
		err = ctrl.sessions.MarkCancelled(parsed.SessionID)
	}
	if err != nil {
		log.Warnf("[Webhook] Session %s not settled: %v", parsed.SessionID, err)
	}
}
