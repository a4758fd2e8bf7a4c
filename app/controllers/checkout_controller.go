package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/internal/pkg/billing"
)

// CheckoutController exposes the purchase flow. Failures leave the client in
// a retryable state except where marked otherwise; the caller owns retry
// policy.
type CheckoutController struct {
	router   *billing.Router
	sessions *billing.SessionRegistry
	validate *validator.Validate
}

func NewCheckoutController(router *billing.Router, sessions *billing.SessionRegistry) *CheckoutController {
	return &CheckoutController{
		router:   router,
		sessions: sessions,
		validate: validator.New(),
	}
}

// HandleStartCheckout handles POST /api/v1/checkout.
func (ctrl *CheckoutController) HandleStartCheckout(c *fiber.Ctx) error {
	var req billing.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "request body is not valid JSON",
		})
	}

	if err := ctrl.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "validation_error",
			"message": err.Error(),
		})
	}

	session, err := ctrl.router.StartCheckout(c.UserContext(), &req)
	if err != nil {
		return ctrl.respondCheckoutError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session_id":   session.ID,
		"plan_id":      session.PlanID,
		"provider":     session.Provider,
		"status":       session.Status,
		"redirect_url": session.RedirectURL,
	})
}

func (ctrl *CheckoutController) respondCheckoutError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrPlanNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "unknown_plan",
			"message": err.Error(),
		})
	case errors.Is(err, billing.ErrNoProviderConfigured):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "no_provider_configured",
			"message":   "no payment provider is configured for checkout",
			"retryable": false,
		})
	}

	var checkoutErr *billing.CheckoutFailedError
	if errors.As(err, &checkoutErr) {
		log.Errorf("[Checkout] %v", checkoutErr)
		resp := fiber.Map{
			"error":     "checkout_failed",
			"message":   "checkout could not be completed, please try again",
			"provider":  checkoutErr.Provider,
			"retryable": true,
		}
		var provErr *billing.ProviderError
		if errors.As(err, &provErr) {
			resp["reason"] = provErr.Kind
		}
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}

	log.Errorf("[Checkout] Unexpected error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_error",
		"message": "unexpected error while starting checkout",
	})
}

// HandleGetSession handles GET /api/v1/checkout/:id.
func (ctrl *CheckoutController) HandleGetSession(c *fiber.Ctx) error {
	session, err := ctrl.sessions.Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session_not_found",
		})
	}
	return c.JSON(session)
}
