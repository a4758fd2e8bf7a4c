package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/env"
	"github.com/keetontrades/membergate/internal/pkg/metrics/counter"
)

// MarketplaceAPI is the capability set the router needs from the marketplace
// platform.
type MarketplaceAPI interface {
	IsConfigured() bool
	CreateCheckout(ctx context.Context, productID string, opts WhopCheckoutOptions) (*WhopCheckoutSession, error)
}

// ProcessorAPI is the capability set the router needs from the card
// processor.
type ProcessorAPI interface {
	IsConfigured() bool
	CreatePaymentMethod(ctx context.Context, cardToken string) (string, error)
	CreateSubscription(ctx context.Context, userID, email, paymentMethodID, priceID, idempotencyKey string) (*ProcessorSubscription, error)
}

// CheckoutRequest is one purchase intent. CardToken is the opaque reference
// produced by the processor's client-side tokenization; raw card data never
// appears here.
type CheckoutRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	CardToken  string `json:"card_token,omitempty"`
	SuccessURL string `json:"success_url,omitempty" validate:"omitempty,url"`
	CancelURL  string `json:"cancel_url,omitempty" validate:"omitempty,url"`

	// IdempotencyKey lets a client retry a failed checkout without risking a
	// duplicate charge. Derived from the request when absent.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Router decides which provider handles a purchase and drives it to a
// checkout session. The marketplace is authoritative when configured because
// it natively fulfills community access; the processor is the fallback.
type Router struct {
	catalog     *Catalog
	marketplace MarketplaceAPI
	processor   ProcessorAPI
	sessions    *SessionRegistry
	machine     *StateMachine
	timeout     time.Duration
}

func NewRouter(catalog *Catalog, marketplace MarketplaceAPI, processor ProcessorAPI, sessions *SessionRegistry, machine *StateMachine) *Router {
	return &Router{
		catalog:     catalog,
		marketplace: marketplace,
		processor:   processor,
		sessions:    sessions,
		machine:     machine,
		timeout:     ProviderCallTimeout(),
	}
}

// ActiveProvider reports which provider would take the next purchase, or
// ErrNoProviderConfigured.
func (r *Router) ActiveProvider() (models.Provider, error) {
	if r.marketplace != nil && r.marketplace.IsConfigured() {
		return models.ProviderWhop, nil
	}
	if r.processor != nil && r.processor.IsConfigured() {
		return models.ProviderStripe, nil
	}
	return "", ErrNoProviderConfigured
}

// StartCheckout routes one purchase intent. Plan resolution and provider
// selection fail synchronously before any network call; provider failures
// surface as CheckoutFailedError with the underlying error preserved and no
// partial session state.
func (r *Router) StartCheckout(ctx context.Context, req *CheckoutRequest) (*models.CheckoutSession, error) {
	plan, err := r.catalog.Resolve(req.PlanID)
	if err != nil {
		return nil, err
	}

	provider, err := r.ActiveProvider()
	if err != nil {
		return nil, err
	}

	_ = counter.AddCheckoutStarted()

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var session *models.CheckoutSession
	switch provider {
	case models.ProviderWhop:
		session, err = r.startMarketplaceCheckout(callCtx, req, plan)
	case models.ProviderStripe:
		session, err = r.startProcessorCheckout(callCtx, req, plan)
	}
	if err != nil {
		_ = counter.AddCheckoutFailed()
		return nil, &CheckoutFailedError{PlanID: string(plan.ID), Provider: provider, Err: err}
	}

	r.sessions.Register(session)
	log.Infof("[Billing] Checkout session %s registered: user=%s plan=%s provider=%s status=%s",
		session.ID, session.UserID, session.PlanID, session.Provider, session.Status)
	return session, nil
}

// startMarketplaceCheckout requests a hosted checkout; the purchase completes
// out-of-band and the session stays pending until an event reconciles it.
func (r *Router) startMarketplaceCheckout(ctx context.Context, req *CheckoutRequest, plan *models.Plan) (*models.CheckoutSession, error) {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), "/")
	opts := WhopCheckoutOptions{
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}
	if opts.SuccessURL == "" {
		opts.SuccessURL = base + "/success"
	}
	if opts.CancelURL == "" {
		opts.CancelURL = base + "/cancel"
	}

	checkout, err := r.marketplace.CreateCheckout(ctx, plan.WhopProductID, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &models.CheckoutSession{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		PlanID:      string(plan.ID),
		Provider:    models.ProviderWhop,
		Status:      models.CheckoutStatusPending,
		RedirectURL: checkout.CheckoutURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// startProcessorCheckout confirms the purchase synchronously: tokenized card
// to payment method, then subscription creation under an idempotency key. The
// resulting state is fed straight into the state machine since no webhook is
// needed to learn the outcome.
func (r *Router) startProcessorCheckout(ctx context.Context, req *CheckoutRequest, plan *models.Plan) (*models.CheckoutSession, error) {
	if strings.TrimSpace(req.CardToken) == "" {
		return nil, errors.New("card token is required for card checkout")
	}

	pmID, err := r.processor.CreatePaymentMethod(ctx, req.CardToken)
	if err != nil {
		return nil, err
	}

	idemKey := strings.TrimSpace(req.IdempotencyKey)
	if idemKey == "" {
		idemKey = deriveIdempotencyKey(req.UserID, string(plan.ID), req.CardToken)
	}

	sub, err := r.processor.CreateSubscription(ctx, req.UserID, req.Email, pmID, plan.StripePriceID, idemKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.CheckoutSession{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		PlanID:    string(plan.ID),
		Provider:  models.ProviderStripe,
		Status:    models.CheckoutStatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if r.machine != nil {
		ev := &models.SubscriptionEvent{
			EventID:   "checkout:" + session.ID,
			Type:      models.EventSubscriptionCreated,
			UserID:    req.UserID,
			PlanID:    string(plan.ID),
			Provider:  models.ProviderStripe,
			Status:    strings.ToLower(sub.Status),
			Timestamp: now.Unix(),
		}
		if err := r.machine.ApplyEvent(ev); err != nil {
			log.Errorf("[Billing] Could not reconcile synchronous checkout %s: %v", session.ID, err)
		}
	}
	return session, nil
}

// deriveIdempotencyKey builds a stable key for retries of the same attempt:
// the same user, plan and card token always hash to the same key.
func deriveIdempotencyKey(userID, planID, cardToken string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s", userID, planID, cardToken))
	return "checkout-" + hex.EncodeToString(sum[:16])
}
