package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/keetontrades/membergate/app/controllers"
)

type ApiRouter struct {
	Checkout *controllers.CheckoutController
	Access   *controllers.AccessController
	Stats    *controllers.StatsController
}

func NewApiRouter(checkout *controllers.CheckoutController, access *controllers.AccessController, stats *controllers.StatsController) *ApiRouter {
	return &ApiRouter{
		Checkout: checkout,
		Access:   access,
		Stats:    stats,
	}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max: 120,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "membergate api",
		})
	})

	v1 := api.Group("/v1")
	v1.Post("/checkout", h.Checkout.HandleStartCheckout)
	v1.Get("/checkout/:id", h.Checkout.HandleGetSession)
	v1.Get("/users/:id/access/:plan", h.Access.HandleCheckAccess)
	v1.Get("/users/:id/subscriptions", h.Access.HandleListSubscriptions)
	v1.Get("/stats", h.Stats.HandleGetStats)
}
