package utils

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultDedupWindow suppresses repeats of the same code within 500ms
	DefaultDedupWindow = 500 * time.Millisecond
	// DefaultDedupCapacity bounds the number of remembered codes
	DefaultDedupCapacity = 1000
)

type dedupEntry struct {
	code     string
	lastSeen time.Time
}

// Deduplicator decides whether a code is a new scan or a repeat within
// the debounce window. Entries are kept in insertion order and the
// oldest inserted entry is evicted once capacity is reached. Refreshing
// an existing code does not move it in that order.
type Deduplicator struct {
	mu       sync.Mutex
	window   time.Duration
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

// NewDeduplicator creates a cache with the given window and capacity.
// A negative window or a non-positive capacity falls back to the defaults.
func NewDeduplicator(window time.Duration, capacity int) *Deduplicator {
	if window < 0 {
		window = DefaultDedupWindow
	}
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &Deduplicator{
		window:   window,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Admit records code at now and returns true when the code was never
// seen or its last acceptance is at least one window old. A rejected
// call leaves the stored timestamp untouched.
func (d *Deduplicator) Admit(code string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.entries[code]; ok {
		entry := el.Value.(*dedupEntry)
		if now.Sub(entry.lastSeen) < d.window {
			return false
		}
		entry.lastSeen = now
		return true
	}

	if d.order.Len() >= d.capacity {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.entries, oldest.Value.(*dedupEntry).code)
	}
	d.entries[code] = d.order.PushBack(&dedupEntry{code: code, lastSeen: now})
	return true
}

// Forget drops the entry for code if it was last admitted at at, so a
// later retry is not debounced. An entry refreshed since then is kept.
func (d *Deduplicator) Forget(code string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.entries[code]
	if !ok || !el.Value.(*dedupEntry).lastSeen.Equal(at) {
		return
	}
	d.order.Remove(el)
	delete(d.entries, code)
}

// IsNewScan is Admit against the wall clock
func (d *Deduplicator) IsNewScan(code string) bool {
	return d.Admit(code, time.Now())
}

// SetWindow changes the debounce window for all subsequent calls
func (d *Deduplicator) SetWindow(window time.Duration) {
	if window < 0 {
		window = 0
	}
	d.mu.Lock()
	d.window = window
	d.mu.Unlock()
}

// Window returns the current debounce window
func (d *Deduplicator) Window() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

// Len returns the number of remembered codes
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// Contains reports whether code currently has an entry
func (d *Deduplicator) Contains(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[code]
	return ok
}

// Clear drops every entry
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	d.entries = make(map[string]*list.Element)
	d.order.Init()
	d.mu.Unlock()
}
