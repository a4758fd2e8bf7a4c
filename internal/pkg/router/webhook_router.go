package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/keetontrades/membergate/app/controllers"
)

// WebhookRouter registers the provider callback endpoints. These live
// outside the /api group so the rate limiter never drops a delivery.
type WebhookRouter struct {
	Webhook *controllers.WebhookController
}

func NewWebhookRouter(webhook *controllers.WebhookController) *WebhookRouter {
	return &WebhookRouter{Webhook: webhook}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/billing", h.Webhook.HandleBillingWebhook)
}
