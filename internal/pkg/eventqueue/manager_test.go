package eventqueue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (c *countingSweeper) ExpireStale(maxAge time.Duration) int {
	c.calls.Add(1)
	return 0
}

func TestNewManager(t *testing.T) {
	manager := NewManager(&recordingApplier{}, &countingSweeper{})

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.GetQueue())
	assert.False(t, manager.running)
}

func TestManagerStartStop(t *testing.T) {
	applier := &recordingApplier{}
	manager := NewManager(applier, &countingSweeper{})

	manager.Start()
	manager.Start() // second start is a no-op
	assert.True(t, manager.running)

	// The managed queue accepts work while the manager runs.
	err := manager.GetQueue().Enqueue(nil)
	assert.Error(t, err) // nil events are still rejected

	manager.Stop()
	manager.Stop() // second stop is a no-op
	assert.False(t, manager.running)
}

func TestManagerRestart(t *testing.T) {
	manager := NewManager(&recordingApplier{}, &countingSweeper{})

	manager.Start()
	manager.Stop()
	manager.Start()
	assert.True(t, manager.running)
	manager.Stop()
}
