package core

import (
	"math/bits"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// MaxNofRBs is the largest carrier bandwidth in RBs.
const MaxNofRBs = 275

// RBBitmap tracks RB occupancy of one direction in one slot.
type RBBitmap struct {
	words []uint64
	n     int
}

// NewRBBitmap returns an empty bitmap of n RBs.
func NewRBBitmap(n int) RBBitmap {
	return RBBitmap{words: make([]uint64, (n+63)/64), n: n}
}

// Len returns the number of RBs tracked.
func (b *RBBitmap) Len() int { return b.n }

// Test reports whether RB i is used.
func (b *RBBitmap) Test(i int) bool {
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Fill marks the RBs of the interval as used.
func (b *RBBitmap) Fill(iv model.RBInterval) {
	for i := max(iv.Start, 0); i < min(iv.Stop, b.n); i++ {
		b.words[i/64] |= 1 << (uint(i) % 64)
	}
}

// Release marks the RBs of the interval as free.
func (b *RBBitmap) Release(iv model.RBInterval) {
	for i := max(iv.Start, 0); i < min(iv.Stop, b.n); i++ {
		b.words[i/64] &^= 1 << (uint(i) % 64)
	}
}

// Reset frees every RB.
func (b *RBBitmap) Reset() {
	clear(b.words)
}

// Count returns the number of used RBs.
func (b *RBBitmap) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// FreeIn returns the number of unused RBs inside the interval.
func (b *RBBitmap) FreeIn(within model.RBInterval) int {
	free := 0
	for i := max(within.Start, 0); i < min(within.Stop, b.n); i++ {
		if !b.Test(i) {
			free++
		}
	}
	return free
}

// Collides reports whether any RB of the interval is used.
func (b *RBBitmap) Collides(iv model.RBInterval) bool {
	for i := max(iv.Start, 0); i < min(iv.Stop, b.n); i++ {
		if b.Test(i) {
			return true
		}
	}
	return false
}

// FindFree searches within for a contiguous run of want free RBs, first fit.
// When no run is long enough the longest run found is returned instead, so
// callers that need an exact size must check the length.
func (b *RBBitmap) FindFree(want int, within model.RBInterval) model.RBInterval {
	if want <= 0 {
		return model.RBInterval{}
	}
	var best model.RBInterval
	start := -1
	stop := min(within.Stop, b.n)
	for i := max(within.Start, 0); i <= stop; i++ {
		if i < stop && !b.Test(i) {
			if start < 0 {
				start = i
			}
			if i+1-start == want {
				return model.RBInterval{Start: start, Stop: i + 1}
			}
			continue
		}
		if start >= 0 {
			if run := (model.RBInterval{Start: start, Stop: i}); run.Length() > best.Length() {
				best = run
			}
			start = -1
		}
	}
	return best
}
