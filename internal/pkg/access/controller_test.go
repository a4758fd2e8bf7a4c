package access

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/keetontrades/membergate/app/models"
)

type fakeResolver struct {
	subs  []models.Subscription
	calls atomic.Int64
}

func (f *fakeResolver) ListByUser(userID string) []models.Subscription {
	f.calls.Add(1)
	return f.subs
}

func activeSub(planID string) models.Subscription {
	return models.Subscription{
		UserID:   "u1",
		PlanID:   planID,
		Provider: models.ProviderWhop,
		Status:   models.SubscriptionStatusActive,
	}
}

func TestCheckAccessResolvesAndCaches(t *testing.T) {
	resolver := &fakeResolver{subs: []models.Subscription{activeSub("pro")}}
	ctrl := NewController(NewMemoryStore(), resolver)

	allowed, err := ctrl.CheckAccess(context.Background(), "u1", "pro")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Fatalf("expected pro subscription to grant pro access")
	}
	if resolver.calls.Load() != 1 {
		t.Fatalf("resolver called %d times, want 1", resolver.calls.Load())
	}

	// Second check must come from the cache.
	if _, err := ctrl.CheckAccess(context.Background(), "u1", "pro"); err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if resolver.calls.Load() != 1 {
		t.Fatalf("resolver consulted on a cache hit")
	}
}

func TestCheckAccessTierOrdinality(t *testing.T) {
	tests := []struct {
		held     string
		required string
		want     bool
	}{
		{held: "elite", required: "starter", want: true},
		{held: "elite", required: "pro", want: true},
		{held: "pro", required: "elite", want: false},
		{held: "starter", required: "pro", want: false},
	}

	for _, tt := range tests {
		resolver := &fakeResolver{subs: []models.Subscription{activeSub(tt.held)}}
		ctrl := NewController(NewMemoryStore(), resolver)

		allowed, err := ctrl.CheckAccess(context.Background(), "u1", tt.required)
		if err != nil {
			t.Fatalf("CheckAccess(%s, %s) failed: %v", tt.held, tt.required, err)
		}
		if allowed != tt.want {
			t.Fatalf("holding %s, requiring %s: got %v, want %v", tt.held, tt.required, allowed, tt.want)
		}
	}
}

func TestCheckAccessUnknownTier(t *testing.T) {
	ctrl := NewController(NewMemoryStore(), &fakeResolver{})

	if _, err := ctrl.CheckAccess(context.Background(), "u1", "gold"); err == nil {
		t.Fatalf("expected unknown tier to be a hard error")
	}
}

func TestCheckAccessNoSubscription(t *testing.T) {
	ctrl := NewController(NewMemoryStore(), &fakeResolver{})

	allowed, err := ctrl.CheckAccess(context.Background(), "u1", "starter")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Fatalf("expected no access without a subscription")
	}
}

func TestCheckAccessNonEntitlingStatuses(t *testing.T) {
	cancelled := activeSub("elite")
	cancelled.Status = models.SubscriptionStatusCancelled
	resolver := &fakeResolver{subs: []models.Subscription{cancelled}}
	ctrl := NewController(NewMemoryStore(), resolver)

	allowed, err := ctrl.CheckAccess(context.Background(), "u1", "starter")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Fatalf("expected cancelled subscription to deny access")
	}
}

func TestCheckAccessPastDueGrace(t *testing.T) {
	pastDue := activeSub("pro")
	pastDue.Status = models.SubscriptionStatusPastDue

	graced := NewController(NewMemoryStore(), &fakeResolver{subs: []models.Subscription{pastDue}})
	allowed, err := graced.CheckAccess(context.Background(), "u1", "pro")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if !allowed {
		t.Fatalf("expected past_due to grant access under the default grace")
	}

	t.Setenv("ACCESS_PAST_DUE_GRACE", "false")
	strict := NewController(NewMemoryStore(), &fakeResolver{subs: []models.Subscription{pastDue}})
	allowed, err = strict.CheckAccess(context.Background(), "u1", "pro")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Fatalf("expected past_due to deny access with grace disabled")
	}
}

// gatedResolver snapshots its records on entry, then blocks until released,
// so a test can land an invalidation while the refill is in flight.
type gatedResolver struct {
	mu      sync.Mutex
	subs    []models.Subscription
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (g *gatedResolver) ListByUser(userID string) []models.Subscription {
	g.calls.Add(1)
	g.mu.Lock()
	snapshot := append([]models.Subscription(nil), g.subs...)
	g.mu.Unlock()
	if g.entered != nil {
		close(g.entered)
		g.entered = nil
		<-g.release
	}
	return snapshot
}

func (g *gatedResolver) setSubs(subs []models.Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = subs
}

func TestRefillDiscardedWhenInvalidatedMidResolve(t *testing.T) {
	resolver := &gatedResolver{
		subs:    []models.Subscription{activeSub("pro")},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	entered := resolver.entered
	ctrl := NewController(NewMemoryStore(), resolver)

	firstDone := make(chan bool, 1)
	go func() {
		allowed, err := ctrl.CheckAccess(context.Background(), "u1", "pro")
		if err != nil {
			t.Errorf("CheckAccess failed: %v", err)
		}
		firstDone <- allowed
	}()

	// The refill has read the old records and is still in flight when the
	// cancellation lands and invalidates the user.
	<-entered
	resolver.setSubs(nil)
	ctrl.InvalidateUser("u1")
	close(resolver.release)

	if allowed := <-firstDone; !allowed {
		t.Fatalf("in-flight check resolved against the old records, want true")
	}

	// The racing refill must not have been cached: the next check has to
	// re-resolve and see the cancellation.
	allowed, err := ctrl.CheckAccess(context.Background(), "u1", "pro")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Fatalf("stale grant persisted past the cancellation's invalidation")
	}
	if resolver.calls.Load() != 2 {
		t.Fatalf("resolver called %d times, want 2", resolver.calls.Load())
	}
}

func TestInvalidateUserForcesResolve(t *testing.T) {
	resolver := &fakeResolver{subs: []models.Subscription{activeSub("pro")}}
	ctrl := NewController(NewMemoryStore(), resolver)

	if _, err := ctrl.CheckAccess(context.Background(), "u1", "pro"); err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}

	// Subscription gets cancelled and the cache is invalidated.
	resolver.subs = nil
	ctrl.InvalidateUser("u1")

	allowed, err := ctrl.CheckAccess(context.Background(), "u1", "pro")
	if err != nil {
		t.Fatalf("CheckAccess failed: %v", err)
	}
	if allowed {
		t.Fatalf("stale grant survived invalidation")
	}
	if resolver.calls.Load() != 2 {
		t.Fatalf("resolver called %d times, want 2", resolver.calls.Load())
	}
}
