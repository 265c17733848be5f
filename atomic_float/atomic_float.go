package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 that may be read by any number of goroutines while
// a writer updates it, without locking. The bits are stored in an atomic.Uint64,
// so the zero value is a ready-to-use 0.0.
//
// Values must not be copied after first use; keep them in a slice or behind a pointer.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 returns a float initialized to val.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.AtomicSet(val)
	return af
}

// AtomicRead loads the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicSet stores val unconditionally.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicAdd adds addend with a single compare-and-swap. If another writer changed
// the value between the read and the swap, nothing is written and succeeded is
// false; the caller decides whether to retry or drop the update.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}
