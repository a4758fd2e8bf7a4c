package eventqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/internal/pkg/env"
)

// SessionSweeper expires stale pending checkout sessions.
type SessionSweeper interface {
	ExpireStale(maxAge time.Duration) int
}

// Manager owns the event queue and the periodic background tasks around it.
type Manager struct {
	queue   *Queue
	sweeper SessionSweeper

	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

func NewManager(applier Applier, sweeper SessionSweeper) *Manager {
	workers := 5
	if v, err := strconv.Atoi(env.GetEnv("EVENT_QUEUE_WORKERS", "")); err == nil && v > 0 {
		workers = v
	}
	return &Manager{
		queue:   NewQueue(applier, workers),
		sweeper: sweeper,
		stopCh:  make(chan struct{}),
	}
}

// GetQueue returns the managed event queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the event queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[EventQueue Manager] Starting event queue and background tasks")

	m.queue.Start()

	sweepInterval := time.Minute
	if v, err := strconv.Atoi(env.GetEnv("CHECKOUT_SWEEP_INTERVAL_SECONDS", "")); err == nil && v > 0 {
		sweepInterval = time.Duration(v) * time.Second
	}

	m.sweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.sessionSweepWorker()
}

// Stop stops the event queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.queue.Stop()
	log.Info("[EventQueue Manager] Stopped")
}

// sessionSweepWorker expires pending checkout sessions past their timeout.
func (m *Manager) sessionSweepWorker() {
	defer m.wg.Done()

	maxAge := 30 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("CHECKOUT_SESSION_TTL_MINUTES", "")); err == nil && v > 0 {
		maxAge = time.Duration(v) * time.Minute
	}

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.sweepTicker.C:
			if m.sweeper != nil {
				m.sweeper.ExpireStale(maxAge)
			}
		}
	}
}
