package access

import (
	"context"
	"fmt"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/entitlements"
	"github.com/keetontrades/membergate/internal/pkg/env"
	"github.com/keetontrades/membergate/internal/pkg/metrics/counter"
)

// Resolver supplies the reconciled subscription records for a user. In
// production this is the billing state machine.
type Resolver interface {
	ListByUser(userID string) []models.Subscription
}

// Controller answers "does user U hold at least tier T" with memoized
// results. Answers are cached until the state machine signals a change for
// that user; there is no TTL because entitlement changes must be reflected
// immediately.
type Controller struct {
	store        Store
	resolver     Resolver
	pastDueGrace bool
}

func NewController(store Store, resolver Resolver) *Controller {
	return &Controller{
		store:        store,
		resolver:     resolver,
		pastDueGrace: env.GetEnvBool("ACCESS_PAST_DUE_GRACE", true),
	}
}

// CheckAccess reports whether the user currently satisfies the required tier.
// Unknown tiers are a hard error, not a silent deny.
func (c *Controller) CheckAccess(ctx context.Context, userID, requiredPlan string) (bool, error) {
	_ = ctx

	required, ok := entitlements.Normalize(requiredPlan)
	if !ok {
		return false, fmt.Errorf("unknown plan tier %q", requiredPlan)
	}

	if allowed, cached := c.store.Get(userID, string(required)); cached {
		_ = counter.AddCacheHit()
		return allowed, nil
	}
	_ = counter.AddCacheMiss()

	// Capture the generation before resolving: if an invalidation lands
	// while the canonical records are being read, the store rejects this
	// refill and the next lookup resolves against the new truth.
	gen := c.store.Generation(userID)
	allowed := c.resolve(userID, required)
	c.store.Set(userID, string(required), allowed, gen)
	return allowed, nil
}

// resolve recomputes the entitlement from the canonical records: any
// subscription with an entitling status whose plan ranks at or above the
// required tier grants access.
func (c *Controller) resolve(userID string, required entitlements.Plan) bool {
	for _, sub := range c.resolver.ListByUser(userID) {
		if !entitlements.IsEntitlingStatus(sub.Status, c.pastDueGrace) {
			continue
		}
		held, ok := entitlements.Normalize(sub.PlanID)
		if !ok {
			continue
		}
		if entitlements.Satisfies(held, required) {
			return true
		}
	}
	return false
}

// InvalidateUser drops every cached answer for the user. Wired as the state
// machine's invalidation hook; implements billing.Invalidator.
func (c *Controller) InvalidateUser(userID string) {
	c.store.InvalidateUser(userID)
}
