// Package debounce provides timers that coalesce bursts of calls into the last one.
//
// Every Trigger bumps a generation counter; a timer that fires with an outdated
// generation does nothing, so Cancel is effective even when the timer already fired
// and is waiting to run.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs only the most recent function passed to Trigger, once the delay
// has elapsed without another Trigger.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fn    func()
	gen   uint64
}

// New creates a Debouncer with the given delay.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, replacing any pending function.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.fn = fn
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.fn = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Cancel drops the pending function, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

// Pending reports whether a function is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.fn = nil
}

// Group keeps one Debouncer per key, all sharing the same delay.
// It is used for per-path writes where edits to different files must not coalesce.
type Group struct {
	mu    sync.Mutex
	delay time.Duration
	items map[string]*Debouncer
}

// NewGroup creates an empty Group.
func NewGroup(delay time.Duration) *Group {
	return &Group{delay: delay, items: make(map[string]*Debouncer)}
}

// Trigger schedules fn under key.
func (g *Group) Trigger(key string, fn func()) {
	g.mu.Lock()
	d, ok := g.items[key]
	if !ok {
		d = New(g.delay)
		g.items[key] = d
	}
	g.mu.Unlock()

	d.Trigger(fn)
}

// CancelKey drops the pending function of key.
func (g *Group) CancelKey(key string) {
	g.mu.Lock()
	d, ok := g.items[key]
	delete(g.items, key)
	g.mu.Unlock()

	if ok {
		d.Cancel()
	}
}

// Cancel drops every pending function.
func (g *Group) Cancel() {
	g.mu.Lock()
	items := g.items
	g.items = make(map[string]*Debouncer)
	g.mu.Unlock()

	for _, d := range items {
		d.Cancel()
	}
}

// Pending returns the number of keys with a function waiting to fire.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, d := range g.items {
		if d.Pending() {
			n++
		}
	}
	return n
}
