package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/access"
	"github.com/keetontrades/membergate/internal/pkg/billing"
	"github.com/keetontrades/membergate/internal/pkg/community"
	"github.com/keetontrades/membergate/internal/pkg/entitlements"
)

type AccessController struct {
	access    *access.Controller
	catalog   *billing.Catalog
	community *community.Manager
	machine   *billing.StateMachine
}

func NewAccessController(ac *access.Controller, catalog *billing.Catalog, cm *community.Manager, machine *billing.StateMachine) *AccessController {
	return &AccessController{
		access:    ac,
		catalog:   catalog,
		community: cm,
		machine:   machine,
	}
}

// HandleCheckAccess handles GET /api/v1/users/:id/access/:plan. A denied
// check carries an upgrade block so the caller can render the paywall
// without a second round trip.
func (ctrl *AccessController) HandleCheckAccess(c *fiber.Ctx) error {
	userID := c.Params("id")
	planParam := c.Params("plan")

	planID, ok := entitlements.Normalize(planParam)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "unknown_plan",
			"message": "unknown membership tier: " + planParam,
		})
	}

	allowed, err := ctrl.access.CheckAccess(c.UserContext(), userID, string(planID))
	if err != nil {
		log.Errorf("[Access] Check failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_error",
		})
	}

	resp := fiber.Map{
		"user_id":    userID,
		"plan_id":    planID,
		"has_access": allowed,
	}

	if allowed {
		resp["community"] = ctrl.community.Lookup(string(planID))
	} else {
		// Denials carry the required plan and a preview of the community it
		// unlocks, so the caller can render the paywall in one round trip.
		if plan, err := ctrl.catalog.Resolve(string(planID)); err == nil {
			resp["upgrade"] = fiber.Map{
				"plan_id":      plan.ID,
				"display_name": plan.DisplayName,
				"price":        plan.Price,
				"currency":     plan.Currency,
				"community":    ctrl.community.Lookup(string(planID)),
			}
		}
	}

	return c.JSON(resp)
}

// HandleListSubscriptions handles GET /api/v1/users/:id/subscriptions.
func (ctrl *AccessController) HandleListSubscriptions(c *fiber.Ctx) error {
	userID := c.Params("id")

	subs := ctrl.machine.ListByUser(userID)
	if subs == nil {
		subs = []models.Subscription{}
	}

	return c.JSON(fiber.Map{
		"user_id":       userID,
		"subscriptions": subs,
	})
}
