package community

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/internal/pkg/entitlements"
	"github.com/keetontrades/membergate/internal/pkg/env"
)

// InviteRef points a member at the community spaces their tier unlocks.
type InviteRef struct {
	PlanID        string `json:"plan_id"`
	DiscordInvite string `json:"discord_invite"`
	TelegramGroup string `json:"telegram_group"`
}

// Manager maps plans to community invites and hands them out when a
// subscription becomes active. Granting is idempotent per (user, plan); the
// downstream community platform is assumed idempotent too, it is not enforced
// here.
type Manager struct {
	invites map[entitlements.Plan]InviteRef

	mu      sync.Mutex
	granted map[string]struct{}
}

func NewManagerFromEnv() *Manager {
	return &Manager{
		invites: map[entitlements.Plan]InviteRef{
			entitlements.PlanStarter: {
				PlanID:        string(entitlements.PlanStarter),
				DiscordInvite: env.GetEnv("COMMUNITY_DISCORD_STARTER", "https://discord.gg/keeton-starter"),
				TelegramGroup: env.GetEnv("COMMUNITY_TELEGRAM_STARTER", "@keeton_starter"),
			},
			entitlements.PlanPro: {
				PlanID:        string(entitlements.PlanPro),
				DiscordInvite: env.GetEnv("COMMUNITY_DISCORD_PRO", "https://discord.gg/keeton-pro"),
				TelegramGroup: env.GetEnv("COMMUNITY_TELEGRAM_PRO", "@keeton_pro"),
			},
			entitlements.PlanElite: {
				PlanID:        string(entitlements.PlanElite),
				DiscordInvite: env.GetEnv("COMMUNITY_DISCORD_ELITE", "https://discord.gg/keeton-elite"),
				TelegramGroup: env.GetEnv("COMMUNITY_TELEGRAM_ELITE", "@keeton_elite"),
			},
		},
		granted: make(map[string]struct{}),
	}
}

// Lookup returns the invite targets for a plan. Unknown plans fall back to
// the starter spaces, matching the original community mapping.
func (m *Manager) Lookup(planID string) *InviteRef {
	plan, ok := entitlements.Normalize(planID)
	if !ok {
		plan = entitlements.PlanStarter
	}
	ref, ok := m.invites[plan]
	if !ok {
		return nil
	}
	cp := ref
	return &cp
}

// GrantAccess hands the user their invite. Repeat grants for the same
// (user, plan) return the same invite without re-triggering side effects.
func (m *Manager) GrantAccess(userID, planID string) (*InviteRef, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	ref := m.Lookup(planID)
	if ref == nil {
		return nil, fmt.Errorf("no community mapping for plan %q", planID)
	}

	key := userID + "|" + ref.PlanID
	m.mu.Lock()
	_, already := m.granted[key]
	m.granted[key] = struct{}{}
	m.mu.Unlock()

	if !already {
		log.Infof("[Community] Granted %s community access to user=%s (discord=%s telegram=%s)",
			ref.PlanID, userID, ref.DiscordInvite, ref.TelegramGroup)
	}
	return ref, nil
}

// Grant implements the billing fulfillment hook.
func (m *Manager) Grant(userID, planID string) error {
	_, err := m.GrantAccess(userID, planID)
	return err
}
