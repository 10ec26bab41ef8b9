package player

import (
	"sync"
	"time"

	"github.com/trezcool/assessly/core/attempt"
)

// Ticker abstracts time.Ticker so tests can drive the clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.t.C }
func (t stdTicker) Stop()               { t.t.Stop() }

func newStdTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

type ClockOptions struct {
	Interval  time.Duration
	Now       func() time.Time
	NewTicker func(d time.Duration) Ticker
}

func (o *ClockOptions) setDefaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewTicker == nil {
		o.NewTicker = newStdTicker
	}
}

// Clock derives the deadline from the server startedAt and recomputes the remaining time
// from the current time on every tick. An untimed clock never ticks nor fires.
type Clock struct {
	deadline time.Time
	timed    bool
	opts     ClockOptions

	mu      sync.Mutex
	stop    chan struct{}
	running bool
	fired   bool
}

func NewClock(startedAt time.Time, timeLimitMinutes *int, opts ClockOptions) *Clock {
	opts.setDefaults()
	deadline, timed := attempt.Deadline(startedAt, timeLimitMinutes)
	return &Clock{deadline: deadline, timed: timed, opts: opts}
}

func (c *Clock) Timed() bool { return c.timed }

func (c *Clock) Deadline() (time.Time, bool) { return c.deadline, c.timed }

// Remaining is clamped at zero. It is zero for an untimed clock.
func (c *Clock) Remaining() time.Duration {
	if !c.timed {
		return 0
	}
	if d := c.deadline.Sub(c.opts.Now()); d > 0 {
		return d
	}
	return 0
}

// Fired reports whether the timeout was already delivered.
func (c *Clock) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// Start evaluates the remaining time immediately, then on every tick.
// onTimeout is called at most once over the clock lifetime, from the clock goroutine.
// Start is a no-op when the clock is untimed, running or already fired.
func (c *Clock) Start(onTick func(remaining time.Duration), onTimeout func()) {
	if !c.timed {
		return
	}

	c.mu.Lock()
	if c.running || c.fired {
		c.mu.Unlock()
		return
	}
	c.running = true
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.run(stop, onTick, onTimeout)
}

// Stop halts ticking without waiting for the clock goroutine. The clock may be started again.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	close(c.stop)
	c.running = false
}

func (c *Clock) run(stop chan struct{}, onTick func(time.Duration), onTimeout func()) {
	ticker := c.opts.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	if c.check(stop, onTick, onTimeout) {
		return
	}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if c.check(stop, onTick, onTimeout) {
				return
			}
		}
	}
}

// check reports whether the clock goroutine must exit.
func (c *Clock) check(stop chan struct{}, onTick func(time.Duration), onTimeout func()) bool {
	select {
	case <-stop:
		return true
	default:
	}

	remaining := c.Remaining()
	if onTick != nil {
		onTick(remaining)
	}
	if remaining > 0 {
		return false
	}

	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		return true
	}
	c.fired = true
	if c.stop == stop && c.running {
		close(stop)
		c.running = false
	}
	c.mu.Unlock()

	if onTimeout != nil {
		onTimeout()
	}
	return true
}
