package billing

import (
	"fmt"
	"strings"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/entitlements"
	"github.com/keetontrades/membergate/internal/pkg/env"
)

// Catalog is the immutable plan table. Built once at startup; every lookup
// after that is a pure read.
type Catalog struct {
	plans map[entitlements.Plan]*models.Plan
}

// NewCatalog builds a catalog from explicit plans. Duplicate plan ids are an
// error so misconfiguration fails at startup, not at checkout time.
func NewCatalog(plans []models.Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("catalog requires at least one plan")
	}
	m := make(map[entitlements.Plan]*models.Plan, len(plans))
	for i := range plans {
		p := plans[i]
		id, ok := entitlements.Normalize(string(p.ID))
		if !ok {
			return nil, fmt.Errorf("catalog contains unknown plan id %q", p.ID)
		}
		if _, dup := m[id]; dup {
			return nil, fmt.Errorf("catalog contains duplicate plan id %q", id)
		}
		p.ID = id
		m[id] = &p
	}
	return &Catalog{plans: m}, nil
}

// LoadCatalogFromEnv builds the catalog from environment configuration with
// defaults mirroring the shipped membership table. Provider references left
// at their placeholder sentinels are still loaded; whether a provider can be
// used is decided by the routing layer, not the catalog.
func LoadCatalogFromEnv() (*Catalog, error) {
	return NewCatalog([]models.Plan{
		{
			ID:            entitlements.PlanStarter,
			DisplayName:   env.GetEnv("PLAN_STARTER_NAME", "Starter"),
			Price:         49,
			Currency:      env.GetEnv("BILLING_CURRENCY", "usd"),
			StripePriceID: env.GetEnv("STRIPE_PRICE_STARTER", "price_starter_monthly_YOUR_PRICE_ID_HERE"),
			WhopProductID: env.GetEnv("WHOP_PRODUCT_STARTER", "prod_starter_YOUR_PRODUCT_ID_HERE"),
		},
		{
			ID:            entitlements.PlanPro,
			DisplayName:   env.GetEnv("PLAN_PRO_NAME", "Pro"),
			Price:         99,
			Currency:      env.GetEnv("BILLING_CURRENCY", "usd"),
			StripePriceID: env.GetEnv("STRIPE_PRICE_PRO", "price_pro_monthly_YOUR_PRICE_ID_HERE"),
			WhopProductID: env.GetEnv("WHOP_PRODUCT_PRO", "prod_pro_YOUR_PRODUCT_ID_HERE"),
		},
		{
			ID:            entitlements.PlanElite,
			DisplayName:   env.GetEnv("PLAN_ELITE_NAME", "Elite"),
			Price:         199,
			Currency:      env.GetEnv("BILLING_CURRENCY", "usd"),
			StripePriceID: env.GetEnv("STRIPE_PRICE_ELITE", "price_elite_monthly_YOUR_PRICE_ID_HERE"),
			WhopProductID: env.GetEnv("WHOP_PRODUCT_ELITE", "prod_elite_YOUR_PRODUCT_ID_HERE"),
		},
	})
}

// Resolve returns the plan for the given identifier or ErrPlanNotFound.
func (c *Catalog) Resolve(planID string) (*models.Plan, error) {
	id, ok := entitlements.Normalize(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, strings.TrimSpace(planID))
	}
	p, ok := c.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, id)
	}
	// Callers get their own copy; the catalog's entries stay immutable.
	cp := *p
	return &cp, nil
}

// Plans returns all catalog plans ordered by tier rank.
func (c *Catalog) Plans() []models.Plan {
	out := make([]models.Plan, 0, len(c.plans))
	for _, id := range []entitlements.Plan{entitlements.PlanStarter, entitlements.PlanPro, entitlements.PlanElite} {
		if p, ok := c.plans[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}
