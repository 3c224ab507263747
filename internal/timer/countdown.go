// Package timer is the exam countdown. At zero it fires OnExpire exactly once.
package timer

import (
	"fmt"
	"sync"
	"time"
)

const DefaultTick = time.Second

type Countdown struct {
	mu        sync.Mutex
	tick      time.Duration
	remaining int
	running   bool
	stop      chan struct{}

	onTick   func(remaining int)
	onExpire func()
}

// New returns a stopped countdown. A zero tick means one second.
func New(tick time.Duration) *Countdown {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Countdown{tick: tick}
}

// OnTick is called after every decrement, outside the countdown lock.
func (c *Countdown) OnTick(fn func(remaining int)) {
	c.mu.Lock()
	c.onTick = fn
	c.mu.Unlock()
}

func (c *Countdown) OnExpire(fn func()) {
	c.mu.Lock()
	c.onExpire = fn
	c.mu.Unlock()
}

// Start (re)starts the countdown from seconds. A non-positive duration expires at once.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	c.halt()
	if seconds <= 0 {
		c.remaining = 0
		expire := c.onExpire
		c.mu.Unlock()
		if expire != nil {
			expire()
		}
		return
	}
	c.remaining = seconds
	c.running = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.run(stop)
}

// Stop is idempotent and safe before Start.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.halt()
	c.mu.Unlock()
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// halt is called with c.mu held.
func (c *Countdown) halt() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

func (c *Countdown) run(stop chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.stop != stop {
			c.mu.Unlock()
			return
		}
		c.remaining--
		remaining := c.remaining
		tick := c.onTick
		var expire func()
		if remaining <= 0 {
			c.remaining = 0
			c.stop = nil
			c.running = false
			expire = c.onExpire
		}
		c.mu.Unlock()

		if tick != nil {
			tick(remaining)
		}
		if remaining <= 0 {
			if expire != nil {
				expire()
			}
			return
		}
	}
}

// Format renders seconds as HH:MM:SS.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
