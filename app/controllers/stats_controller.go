package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/internal/pkg/billing"
	"github.com/keetontrades/membergate/internal/pkg/metrics/counter"
)

type StatsController struct {
	catalog *billing.Catalog
}

func NewStatsController(catalog *billing.Catalog) *StatsController {
	return &StatsController{catalog: catalog}
}

// HandleGetStats handles GET /api/v1/stats.
func (ctrl *StatsController) HandleGetStats(c *fiber.Ctx) error {
	counters, err := counter.Snapshot()
	if err != nil {
		log.Warnf("[Stats] Counter snapshot unavailable: %v", err)
		counters = map[string]string{}
	}

	return c.JSON(fiber.Map{
		"counters": counters,
		"plans":    ctrl.catalog.Plans(),
	})
}
