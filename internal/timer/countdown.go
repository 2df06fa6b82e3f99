// Package timer implements the per-question countdown.
package timer

import (
	"sync"
	"time"
)

// UrgentThreshold is the number of remaining seconds rendered as urgent.
const UrgentThreshold = 3

// Countdown counts down whole seconds and fires its expiry callback exactly once.
// A Countdown is single-use: callers start a new one for every question.
type Countdown struct {
	total    int
	onTick   func(remaining int)
	onExpire func()
	stop     chan struct{}

	mu        sync.Mutex
	remaining int
	done      bool
	stopOnce  sync.Once
}

type settings struct {
	interval time.Duration
}

// Option tunes a Countdown.
type Option func(*settings)

// WithInterval overrides the one-second step, mostly for tests.
func WithInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Start launches a countdown of total steps. onTick receives the remaining count
// after each step; onExpire runs once when it reaches zero. Either may be nil.
func Start(total int, onTick func(remaining int), onExpire func(), opts ...Option) *Countdown {
	cfg := settings{interval: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	if total < 0 {
		total = 0
	}
	c := &Countdown{
		total:     total,
		remaining: total,
		onTick:    onTick,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
	}
	go c.run(cfg.interval)
	return c
}

// Step is one countdown decrement. It returns the new remaining value and
// whether this step reached zero.
func Step(remaining int) (int, bool) {
	if remaining <= 1 {
		return 0, true
	}
	return remaining - 1, false
}

func (c *Countdown) run(interval time.Duration) {
	if c.total == 0 {
		if c.finish() {
			c.fireExpire()
		}
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.done {
				c.mu.Unlock()
				return
			}
			remaining, expired := Step(c.remaining)
			c.remaining = remaining
			if expired {
				c.done = true
			}
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(remaining)
			}
			if expired {
				c.fireExpire()
				return
			}
		}
	}
}

func (c *Countdown) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.done = true
	c.remaining = 0
	return true
}

func (c *Countdown) fireExpire() {
	if c.onExpire != nil {
		c.onExpire()
	}
}

// Stop discards the countdown. No step scheduled after Stop takes effect; a
// callback already executing is allowed to return.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })
}

// Remaining reports the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Total reports the configured duration in steps.
func (c *Countdown) Total() int {
	return c.total
}

// Urgent reports whether the remaining time is within UrgentThreshold.
func (c *Countdown) Urgent() bool {
	return IsUrgent(c.Remaining())
}

// IsUrgent is the display rule for the last seconds of a question.
func IsUrgent(remaining int) bool {
	return remaining <= UrgentThreshold
}
