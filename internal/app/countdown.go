package app

import (
	"context"
	"sync"
	"time"
)

// DefaultCountdown is how long a student sees the clock run for each question.
const DefaultCountdown = 5 * time.Minute

// Tick is one countdown update.
type Tick struct {
	Remaining time.Duration `json:"-"`
	Seconds   int           `json:"seconds"`
	Progress  float64       `json:"progress"` // percent of time left, 100 to 0
}

// Countdown drives the per-question clock. It is display only: reaching zero
// neither submits an answer nor blocks one.
type Countdown struct {
	total    time.Duration
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

func NewCountdown(total, interval time.Duration) *Countdown {
	if total <= 0 {
		total = DefaultCountdown
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{total: total, interval: interval, stop: make(chan struct{})}
}

// Start emits the initial tick and one tick per interval until time runs out,
// ctx is done or Stop is called; the channel is then closed. Call it once.
func (c *Countdown) Start(ctx context.Context) <-chan Tick {
	ticks := make(chan Tick, 1)
	go c.run(ctx, ticks)
	return ticks
}

// Stop cancels the countdown. Safe to call more than once.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Stopped is closed once Stop has been called.
func (c *Countdown) Stopped() <-chan struct{} {
	return c.stop
}

func (c *Countdown) run(ctx context.Context, ticks chan<- Tick) {
	defer close(ticks)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	remaining := c.total
	if !c.emit(ctx, ticks, remaining) {
		return
	}
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
		}
		remaining -= c.interval
		if remaining < 0 {
			remaining = 0
		}
		if !c.emit(ctx, ticks, remaining) {
			return
		}
	}
}

func (c *Countdown) emit(ctx context.Context, ticks chan<- Tick, remaining time.Duration) bool {
	tick := Tick{
		Remaining: remaining,
		Seconds:   int(remaining / time.Second),
		Progress:  float64(remaining) / float64(c.total) * 100,
	}
	select {
	case ticks <- tick:
		return true
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	}
}
