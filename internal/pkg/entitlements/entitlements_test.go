package entitlements

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
		ok   bool
	}{
		{in: "starter", want: PlanStarter, ok: true},
		{in: "pro", want: PlanPro, ok: true},
		{in: "elite", want: PlanElite, ok: true},
		{in: "ELITE", want: PlanElite, ok: true},
		{in: "  pro  ", want: PlanPro, ok: true},
		{in: "gold", want: "", ok: false},
		{in: "", want: "", ok: false},
	}

	for _, tt := range tests {
		got, ok := Normalize(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRank(t *testing.T) {
	if Rank(PlanStarter) >= Rank(PlanPro) {
		t.Fatalf("expected pro to outrank starter")
	}
	if Rank(PlanPro) >= Rank(PlanElite) {
		t.Fatalf("expected elite to outrank pro")
	}
	if Rank(Plan("unknown")) >= Rank(PlanStarter) {
		t.Fatalf("expected unknown plans to rank below starter")
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		held     Plan
		required Plan
		want     bool
	}{
		{held: PlanElite, required: PlanStarter, want: true},
		{held: PlanElite, required: PlanElite, want: true},
		{held: PlanPro, required: PlanElite, want: false},
		{held: PlanStarter, required: PlanPro, want: false},
		{held: PlanStarter, required: PlanStarter, want: true},
		{held: Plan("unknown"), required: PlanStarter, want: false},
	}

	for _, tt := range tests {
		if got := Satisfies(tt.held, tt.required); got != tt.want {
			t.Fatalf("Satisfies(%q, %q) = %v, want %v", tt.held, tt.required, got, tt.want)
		}
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	if !IsEntitlingStatus("active", false) {
		t.Fatalf("expected active to be entitling")
	}
	if !IsEntitlingStatus("past_due", true) {
		t.Fatalf("expected past_due to be entitling under grace")
	}
	if IsEntitlingStatus("past_due", false) {
		t.Fatalf("expected past_due to be non-entitling without grace")
	}
	for _, status := range []string{"cancelled", "none", "", "expired"} {
		if IsEntitlingStatus(status, true) {
			t.Fatalf("expected status %q to be non-entitling", status)
		}
	}
}
