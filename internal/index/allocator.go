package index

import "sync/atomic"

// None is the value of an allocator that has not minted anything yet.
// It doubles as the parent index of a top-level window.
const None = -1

// Allocator mints window and tab indices from one shared namespace.
// The zero value is not ready for use; call New.
type Allocator struct {
	cur atomic.Int64
}

func New() *Allocator {
	a := &Allocator{}
	a.cur.Store(None)
	return a
}

// Current returns the last minted value without allocating.
func (a *Allocator) Current() int { return int(a.cur.Load()) }

// Next increments the counter and returns the new value.
func (a *Allocator) Next() int { return int(a.cur.Add(1)) }

// Reset puts the counter back to None.
func (a *Allocator) Reset() { a.cur.Store(None) }

// AdvancePast moves the counter forward so the next call to Next returns
// a value strictly greater than n. It never moves the counter backwards.
func (a *Allocator) AdvancePast(n int) {
	for {
		cur := a.cur.Load()
		if cur >= int64(n) {
			return
		}
		if a.cur.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}
