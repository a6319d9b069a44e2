package timectrl

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// Clock gives components read access to the current slot without depending on
// the concrete SlotClock.
type Clock interface {
	Now() model.SlotPoint
}

// Mode describes how the SlotClock paces slots.
type Mode int

const (
	// RealTime advances one slot per slot duration of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as fast as listeners return.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// SlotClock emits consecutive slot points to registered listeners.
type SlotClock struct {
	mu        sync.RWMutex
	start     model.SlotPoint
	current   model.SlotPoint
	mode      Mode
	tick      time.Duration
	listeners []func(context.Context, model.SlotPoint)
}

// NewSlotClock returns a clock whose first emitted slot is start.
func NewSlotClock(start model.SlotPoint, mode Mode) *SlotClock {
	if !start.Valid() {
		panic("timectrl: invalid start slot")
	}
	return &SlotClock{
		start: start,
		mode:  mode,
		tick:  model.SlotDuration(start.Numerology()),
	}
}

// Tick is the wall-clock period between slots in RealTime mode.
func (c *SlotClock) Tick() time.Duration { return c.tick }

// Mode returns the pacing mode.
func (c *SlotClock) Mode() Mode { return c.mode }

// Now returns the last emitted slot, or an invalid slot before the first one.
func (c *SlotClock) Now() model.SlotPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SetSlot moves the clock so the next emitted slot is sl.
func (c *SlotClock) SetSlot(sl model.SlotPoint) {
	c.mu.Lock()
	c.start = sl
	c.current = model.SlotPoint{}
	c.mu.Unlock()
}

// AddListener registers fn. Listeners run in registration order on the
// goroutine calling Run.
func (c *SlotClock) AddListener(fn func(context.Context, model.SlotPoint)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Run emits nofSlots slots, or slots until ctx is done when nofSlots is zero.
// It returns the number of slots emitted and ctx.Err() when cancelled.
func (c *SlotClock) Run(ctx context.Context, nofSlots int) (int, error) {
	c.mu.RLock()
	next := c.start
	if c.current.Valid() {
		next = c.current.Add(1)
	}
	listeners := append([]func(context.Context, model.SlotPoint){}, c.listeners...)
	c.mu.RUnlock()

	var ticker *time.Ticker
	if c.mode == RealTime {
		ticker = time.NewTicker(c.tick)
		defer ticker.Stop()
	}

	emitted := 0
	for nofSlots <= 0 || emitted < nofSlots {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return emitted, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return emitted, err
		}

		c.mu.Lock()
		c.current = next
		c.mu.Unlock()

		for _, fn := range listeners {
			fn(ctx, next)
		}
		emitted++
		next = next.Add(1)
	}
	return emitted, nil
}

// Start runs the clock on a new goroutine. The returned channel is closed when
// Run returns.
func (c *SlotClock) Start(ctx context.Context, nofSlots int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Run(ctx, nofSlots)
	}()
	return done
}
