package verification

import (
	"sync"
	"time"
)

// Ticker delivers one value per elapsed interval.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests substitute a manually driven one.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// SystemClock is the wall-clock Clock.
type SystemClock struct{}

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// Cooldown counts down whole seconds until another OTP may be requested.
// Starting it again replaces the running countdown.
type Cooldown struct {
	mu        sync.Mutex
	clock     Clock
	remaining int
	stop      chan struct{}
	onTick    func(remaining int)
}

// NewCooldown returns a stopped cooldown. onTick, when set, is called after
// every decrement with the new remaining value.
func NewCooldown(clock Clock, onTick func(remaining int)) *Cooldown {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Cooldown{clock: clock, onTick: onTick}
}

// Start sets the countdown to seconds and begins ticking once per second.
func (c *Cooldown) Start(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	if seconds <= 0 {
		c.remaining = 0
		return
	}
	c.remaining = seconds
	stop := make(chan struct{})
	c.stop = stop
	go c.run(c.clock.NewTicker(time.Second), stop)
}

// Stop cancels the countdown and resets it to zero.
func (c *Cooldown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = 0
}

// Remaining returns the seconds left before resend is allowed.
func (c *Cooldown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Cooldown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Cooldown) run(t Ticker, stop chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			remaining, ok := c.tick(stop)
			if !ok {
				return
			}
			if c.onTick != nil {
				c.onTick(remaining)
			}
			if remaining == 0 {
				return
			}
		}
	}
}

func (c *Cooldown) tick(stop chan struct{}) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a replaced or stopped countdown must not touch the counter
	if c.stop != stop {
		return 0, false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.stop = nil
	}
	return c.remaining, true
}
