// Package countdown drives the hold expiry timer shown to the user.
// Ticks are advisory: the server-issued expiry instant is the source
// of truth and the final tick only reports that the deadline passed
// locally.
package countdown

import (
	"sync"
	"time"
)

// Tick is one countdown update. After the Expired tick the channel is
// closed and no further ticks are sent.
type Tick struct {
	SecondsRemaining int
	Expired          bool
}

// Countdown emits a Tick roughly once per interval until the deadline
// passes or Stop is called. Ticks are computed from the deadline, not
// accumulated, so a delayed tick never skews the remaining time.
type Countdown struct {
	ticks    chan Tick
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// New starts a countdown toward deadline, ticking every interval.
func New(deadline time.Time, interval time.Duration) *Countdown {
	return newCountdown(deadline, interval, time.Now)
}

func newCountdown(deadline time.Time, interval time.Duration, now func() time.Time) *Countdown {
	c := &Countdown{
		// Buffer one tick so a slow consumer never blocks the loop;
		// stale ticks are dropped in favor of the newest.
		ticks: make(chan Tick, 1),
		stop:  make(chan struct{}),
		now:   now,
	}
	go c.run(deadline, interval)
	return c
}

// Ticks returns the update channel. It is closed after the expiry
// tick or after Stop.
func (c *Countdown) Ticks() <-chan Tick {
	return c.ticks
}

// Stop cancels the countdown. Safe to call more than once and after
// expiry.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Countdown) run(deadline time.Time, interval time.Duration) {
	defer close(c.ticks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	first := c.tickAt(c.now(), deadline)
	c.send(first)
	if first.Expired {
		return
	}

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			tick := c.tickAt(c.now(), deadline)
			c.send(tick)
			if tick.Expired {
				return
			}
		}
	}
}

func (c *Countdown) tickAt(now, deadline time.Time) Tick {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return Tick{SecondsRemaining: 0, Expired: true}
	}
	// Round up so the display reaches 00:00 only at the deadline.
	secs := int((remaining + time.Second - 1) / time.Second)
	return Tick{SecondsRemaining: secs}
}

func (c *Countdown) send(tick Tick) {
	for {
		select {
		case c.ticks <- tick:
			return
		default:
			// Drop the stale buffered tick and retry with the new one.
			select {
			case <-c.ticks:
			default:
			}
		}
	}
}
