package room

import (
	"sync"
	"time"
)

// Clock is the per-room countdown. At most one countdown is active; Start
// supersedes any running one and Cancel is idempotent. Callbacks fire on the
// clock goroutine, so expiry handlers must post to the room inbox rather than
// mutate state directly.
type Clock struct {
	mu       sync.Mutex
	cancelCh chan struct{}
	deadline time.Time
}

func NewClock() *Clock { return &Clock{} }

// Start arms the countdown. onTick fires once a second with the remaining
// time; onExpire fires once when the countdown reaches zero.
func (c *Clock) Start(total time.Duration, onTick func(remaining time.Duration), onExpire func()) {
	c.mu.Lock()
	if c.cancelCh != nil {
		close(c.cancelCh)
	}
	cancel := make(chan struct{})
	c.cancelCh = cancel
	c.deadline = time.Now().Add(total)
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		expiry := time.NewTimer(total)
		defer expiry.Stop()

		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				if onTick != nil {
					onTick(c.Remaining())
				}
			case <-expiry.C:
				c.mu.Lock()
				if c.cancelCh == cancel {
					c.cancelCh = nil
				}
				c.mu.Unlock()
				onExpire()
				return
			}
		}
	}()
}

// Cancel stops the active countdown, if any.
func (c *Clock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelCh != nil {
		close(c.cancelCh)
		c.cancelCh = nil
	}
}

// Remaining returns the time left on the active countdown, zero if idle.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelCh == nil {
		return 0
	}
	d := time.Until(c.deadline)
	if d < 0 {
		return 0
	}
	return d
}
