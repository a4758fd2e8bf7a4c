package eventqueue

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/keetontrades/membergate/app/models"
)

const defaultWorkerBuffer = 64

// Applier consumes normalized subscription events. In production this is the
// billing state machine.
type Applier interface {
	ApplyEvent(ev *models.SubscriptionEvent) error
}

// Queue fans webhook events out to a fixed worker set. Events are routed by a
// hash of (user, provider), so everything for one subscription lands on the
// same worker and processes in arrival order, while distinct subscriptions
// spread across workers and run concurrently.
type Queue struct {
	applier Applier
	workers int
	inboxes []chan *models.SubscriptionEvent

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates an event queue with the given worker count.
func NewQueue(applier Applier, workers int) *Queue {
	if workers <= 0 {
		workers = 3 // Default number of workers
	}
	return &Queue{
		applier: applier,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the event workers.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	q.inboxes = make([]chan *models.SubscriptionEvent, q.workers)
	log.Infof("[EventQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.inboxes[i] = make(chan *models.SubscriptionEvent, defaultWorkerBuffer)
		q.wg.Add(1)
		go q.worker(i, q.inboxes[i], q.stopCh)
	}
}

// Stop stops the workers. Buffered events that have not started processing
// are dropped; the feed is reconcilable, not durable.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Info("[EventQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[EventQueue] All workers stopped")
}

// Enqueue routes one event to its worker. Returns an error when the queue is
// stopped or the worker's inbox is full.
func (q *Queue) Enqueue(ev *models.SubscriptionEvent) error {
	if ev == nil {
		return errors.New("nil event")
	}

	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return errors.New("event queue is not running")
	}
	inbox := q.inboxes[q.workerFor(ev)]
	stopCh := q.stopCh
	q.mu.Unlock()

	select {
	case inbox <- ev:
		return nil
	case <-stopCh:
		return errors.New("event queue is shutting down")
	default:
		return errors.New("event queue worker inbox is full")
	}
}

// workerFor picks the worker index for an event's (user, provider) key.
func (q *Queue) workerFor(ev *models.SubscriptionEvent) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.UserID))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(ev.Provider))
	return int(h.Sum32() % uint32(q.workers))
}

func (q *Queue) worker(id int, inbox chan *models.SubscriptionEvent, stopCh chan struct{}) {
	defer q.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case ev := <-inbox:
			if err := q.applier.ApplyEvent(ev); err != nil {
				log.Errorf("[EventQueue] Worker %d could not apply %s for user=%s: %v",
					id, ev.Type, ev.UserID, err)
			}
		}
	}
}
