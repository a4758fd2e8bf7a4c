package billing

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/app/models"
)

// SessionRegistry tracks checkout sessions for the lifetime of the process.
// Sessions transition only through Register, MarkCompleted, MarkCancelled and
// the expiry sweep; nothing else mutates them.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*models.CheckoutSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*models.CheckoutSession)}
}

func (r *SessionRegistry) Register(s *models.CheckoutSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[cp.ID] = &cp
}

func (r *SessionRegistry) Get(id string) (*models.CheckoutSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRegistry) MarkCompleted(id string) error {
	return r.transition(id, models.CheckoutStatusCompleted)
}

func (r *SessionRegistry) MarkCancelled(id string) error {
	return r.transition(id, models.CheckoutStatusCancelled)
}

func (r *SessionRegistry) transition(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status != models.CheckoutStatusPending {
		// Terminal statuses stay put; repeated callbacks are harmless.
		return nil
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

// ExpireStale marks pending sessions older than maxAge as expired and returns
// how many were swept. Driven periodically by the queue manager.
func (r *SessionRegistry) ExpireStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for _, s := range r.sessions {
		if s.Status == models.CheckoutStatusPending && s.CreatedAt.Before(cutoff) {
			s.Status = models.CheckoutStatusExpired
			s.UpdatedAt = time.Now()
			expired++
		}
	}
	if expired > 0 {
		log.Infof("[Billing] Expired %d stale checkout sessions", expired)
	}
	return expired
}
