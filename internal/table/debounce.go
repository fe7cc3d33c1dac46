package table

import (
	"sync"
	"time"
)

// Debouncer delays fn until Trigger calls pause for the configured delay.
// Only the last value is delivered.
type Debouncer[V any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(V)
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func NewDebouncer[V any](delay time.Duration, fn func(V)) *Debouncer[V] {
	return &Debouncer[V]{delay: delay, fn: fn}
}

// Trigger restarts the wait with v as the pending value.
func (d *Debouncer[V]) Trigger(v V) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fire := !d.stopped && gen == d.gen
		d.mu.Unlock()
		if fire {
			d.fn(v)
		}
	})
}

// Stop cancels any pending call. Later triggers are ignored.
func (d *Debouncer[V]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
