package controllers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keetontrades/membergate/app/models"
	"github.com/keetontrades/membergate/internal/pkg/access"
	"github.com/keetontrades/membergate/internal/pkg/billing"
	"github.com/keetontrades/membergate/internal/pkg/community"
)

func newAccessHarness(t *testing.T) (*fiber.App, *billing.StateMachine) {
	t.Helper()

	catalog, err := billing.LoadCatalogFromEnv()
	require.NoError(t, err)

	machine := billing.NewStateMachine()
	accessCtrl := access.NewController(access.NewMemoryStore(), machine)
	machine.SetInvalidator(accessCtrl)

	ctrl := NewAccessController(accessCtrl, catalog, community.NewManagerFromEnv(), machine)

	app := fiber.New()
	app.Get("/api/v1/users/:id/access/:plan", ctrl.HandleCheckAccess)
	app.Get("/api/v1/users/:id/subscriptions", ctrl.HandleListSubscriptions)
	return app, machine
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]interface{}) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestHandleCheckAccessUnknownTier(t *testing.T) {
	app, _ := newAccessHarness(t)

	status, body := getJSON(t, app, "/api/v1/users/u1/access/gold")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "unknown_plan", body["error"])
}

func TestHandleCheckAccessDeniedWithUpgrade(t *testing.T) {
	app, _ := newAccessHarness(t)

	status, body := getJSON(t, app, "/api/v1/users/u1/access/pro")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["has_access"])

	upgrade, ok := body["upgrade"].(map[string]interface{})
	require.True(t, ok, "denied response must carry an upgrade block")
	assert.Equal(t, "pro", upgrade["plan_id"])
	assert.EqualValues(t, 99, upgrade["price"])

	comm, ok := upgrade["community"].(map[string]interface{})
	require.True(t, ok, "upgrade block must preview the community it unlocks")
	assert.Equal(t, "pro", comm["plan_id"])
	assert.NotEmpty(t, comm["discord_invite"])
}

func TestHandleCheckAccessGrantedWithCommunity(t *testing.T) {
	app, machine := newAccessHarness(t)

	err := machine.ApplyEvent(&models.SubscriptionEvent{
		EventID:   "evt_1",
		Type:      models.EventSubscriptionCreated,
		UserID:    "u1",
		PlanID:    "elite",
		Provider:  models.ProviderWhop,
		Timestamp: 100,
	})
	require.NoError(t, err)

	// Elite also satisfies the pro gate.
	status, body := getJSON(t, app, "/api/v1/users/u1/access/pro")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["has_access"])

	comm, ok := body["community"].(map[string]interface{})
	require.True(t, ok, "granted response must carry the community block")
	assert.NotEmpty(t, comm["discord_invite"])
}

func TestHandleCheckAccessReflectsCancellation(t *testing.T) {
	app, machine := newAccessHarness(t)

	require.NoError(t, machine.ApplyEvent(&models.SubscriptionEvent{
		Type: models.EventSubscriptionCreated, EventID: "e1",
		UserID: "u1", PlanID: "pro", Provider: models.ProviderWhop, Timestamp: 100,
	}))

	status, body := getJSON(t, app, "/api/v1/users/u1/access/pro")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, body["has_access"])

	require.NoError(t, machine.ApplyEvent(&models.SubscriptionEvent{
		Type: models.EventSubscriptionCancelled, EventID: "e2",
		UserID: "u1", PlanID: "pro", Provider: models.ProviderWhop, Timestamp: 200,
	}))

	// The cached grant must not survive the cancellation.
	status, body = getJSON(t, app, "/api/v1/users/u1/access/pro")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["has_access"])
}

func TestHandleListSubscriptions(t *testing.T) {
	app, machine := newAccessHarness(t)

	status, body := getJSON(t, app, "/api/v1/users/u1/subscriptions")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["subscriptions"])

	require.NoError(t, machine.ApplyEvent(&models.SubscriptionEvent{
		Type: models.EventSubscriptionCreated, EventID: "e1",
		UserID: "u1", PlanID: "starter", Provider: models.ProviderStripe, Timestamp: 100,
	}))

	status, body = getJSON(t, app, "/api/v1/users/u1/subscriptions")
	assert.Equal(t, fiber.StatusOK, status)

	subs, ok := body["subscriptions"].([]interface{})
	require.True(t, ok)
	require.Len(t, subs, 1)

	first := subs[0].(map[string]interface{})
	assert.Equal(t, "starter", first["plan_id"])
	assert.Equal(t, "active", first["status"])
}
