package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keetontrades/membergate/internal/pkg/billing"
)

type stubMarketplace struct {
	configured bool
	url        string
	err        error
}

func (s *stubMarketplace) IsConfigured() bool { return s.configured }

func (s *stubMarketplace) CreateCheckout(ctx context.Context, productID string, opts billing.WhopCheckoutOptions) (*billing.WhopCheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &billing.WhopCheckoutSession{CheckoutURL: s.url}, nil
}

type stubProcessor struct {
	configured bool
}

func (s *stubProcessor) IsConfigured() bool { return s.configured }

func (s *stubProcessor) CreatePaymentMethod(ctx context.Context, cardToken string) (string, error) {
	return "pm_stub", nil
}

func (s *stubProcessor) CreateSubscription(ctx context.Context, userID, email, paymentMethodID, priceID, idempotencyKey string) (*billing.ProcessorSubscription, error) {
	return &billing.ProcessorSubscription{ID: "sub_stub", Status: "active"}, nil
}

func newCheckoutHarness(t *testing.T, marketplace billing.MarketplaceAPI, processor billing.ProcessorAPI) *fiber.App {
	t.Helper()

	catalog, err := billing.LoadCatalogFromEnv()
	require.NoError(t, err)

	sessions := billing.NewSessionRegistry()
	machine := billing.NewStateMachine()
	router := billing.NewRouter(catalog, marketplace, processor, sessions, machine)
	ctrl := NewCheckoutController(router, sessions)

	app := fiber.New()
	app.Post("/api/v1/checkout", ctrl.HandleStartCheckout)
	app.Get("/api/v1/checkout/:id", ctrl.HandleGetSession)
	return app
}

func postCheckout(t *testing.T, app *fiber.App, payload string) (int, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/v1/checkout", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestHandleStartCheckoutValidation(t *testing.T) {
	app := newCheckoutHarness(t, &stubMarketplace{configured: true}, &stubProcessor{})

	status, body := postCheckout(t, app, `{"plan_id": "pro"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_error", body["error"])

	status, body = postCheckout(t, app, `{"plan_id": "pro", "user_id": "u1", "email": "not-an-email"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_error", body["error"])
}

func TestHandleStartCheckoutUnknownPlan(t *testing.T) {
	app := newCheckoutHarness(t, &stubMarketplace{configured: true}, &stubProcessor{})

	status, body := postCheckout(t, app, `{"plan_id": "gold", "user_id": "u1", "email": "u1@example.com"}`)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "unknown_plan", body["error"])
}

func TestHandleStartCheckoutNoProvider(t *testing.T) {
	app := newCheckoutHarness(t, &stubMarketplace{}, &stubProcessor{})

	status, body := postCheckout(t, app, `{"plan_id": "pro", "user_id": "u1", "email": "u1@example.com"}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "no_provider_configured", body["error"])
	assert.Equal(t, false, body["retryable"])
}

func TestHandleStartCheckoutMarketplace(t *testing.T) {
	app := newCheckoutHarness(t, &stubMarketplace{configured: true, url: "https://whop.com/c/1"}, &stubProcessor{})

	status, body := postCheckout(t, app, `{"plan_id": "pro", "user_id": "u1", "email": "u1@example.com"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "whop", body["provider"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "https://whop.com/c/1", body["redirect_url"])
	require.NotEmpty(t, body["session_id"])

	// The session is retrievable afterwards.
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/checkout/"+body["session_id"].(string), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHandleStartCheckoutProviderFailure(t *testing.T) {
	provErr := &billing.ProviderError{Provider: "whop", Kind: billing.ProviderErrRateLimited}
	app := newCheckoutHarness(t, &stubMarketplace{configured: true, err: provErr}, &stubProcessor{})

	status, body := postCheckout(t, app, `{"plan_id": "pro", "user_id": "u1", "email": "u1@example.com"}`)
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "checkout_failed", body["error"])
	assert.Equal(t, true, body["retryable"])
	assert.Equal(t, string(billing.ProviderErrRateLimited), body["reason"])
}

func TestHandleGetSessionNotFound(t *testing.T) {
	app := newCheckoutHarness(t, &stubMarketplace{configured: true}, &stubProcessor{})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/checkout/nope", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
