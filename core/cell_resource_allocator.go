package core

import (
	"fmt"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// RingSize is the number of slots, starting at the current transmission slot,
// for which allocations can be placed ahead of time.
const RingSize = 32

// SlotAllocation is the committed state of one slot of one cell.
type SlotAllocation struct {
	Result   model.SlotResult
	DLRBs    RBBitmap
	ULRBs    RBBitmap
	UsedCCEs int
}

func (s *SlotAllocation) reset(sl model.SlotPoint) {
	s.Result.Reset(sl)
	s.DLRBs.Reset()
	s.ULRBs.Reset()
	s.UsedCCEs = 0
}

// CellResourceAllocator is the rolling per-slot resource grid of a cell.
// Index 0 always refers to the current transmission slot.
type CellResourceAllocator struct {
	cfg    *CellConfig
	ring   []SlotAllocation
	slotTx model.SlotPoint
}

// NewCellResourceAllocator builds an empty grid for the cell.
func NewCellResourceAllocator(cfg *CellConfig) *CellResourceAllocator {
	a := &CellResourceAllocator{cfg: cfg, ring: make([]SlotAllocation, RingSize)}
	for i := range a.ring {
		a.ring[i].DLRBs = NewRBBitmap(cfg.DLBandwidthRBs)
		a.ring[i].ULRBs = NewRBBitmap(cfg.ULBandwidthRBs)
		a.ring[i].Result.DL.UEGrants = make([]model.DLGrant, 0, model.MaxUEPDUsPerSlot)
		a.ring[i].Result.UL.PUSCHs = make([]model.ULGrant, 0, model.MaxPUSCHPDUsPerSlot)
	}
	return a
}

// Config returns the cell configuration the grid was built for.
func (a *CellResourceAllocator) Config() *CellConfig { return a.cfg }

// SlotTx returns the current transmission slot. It is invalid before the first
// slot indication.
func (a *CellResourceAllocator) SlotTx() model.SlotPoint { return a.slotTx }

// SlotIndication advances the grid to sl. Slots that fall out of the window are
// cleared and reused for the slots entering it.
func (a *CellResourceAllocator) SlotIndication(sl model.SlotPoint) {
	if !sl.Valid() {
		panic("core: slot indication with invalid slot")
	}
	if !a.slotTx.Valid() {
		a.slotTx = sl
		for i := 0; i < RingSize; i++ {
			next := sl.Add(i)
			a.ring[a.ringIndex(next)].reset(next)
		}
		return
	}
	diff := sl.Sub(a.slotTx)
	if diff <= 0 {
		panic(fmt.Sprintf("core: slot indication %s is not after %s", sl, a.slotTx))
	}
	// Every slot between the old and the new transmission slot leaves the window.
	steps := min(diff, RingSize)
	for i := 0; i < steps; i++ {
		entering := sl.Add(RingSize - steps + i)
		a.ring[a.ringIndex(entering)].reset(entering)
	}
	a.slotTx = sl
}

// At returns the allocation at the given offset from the transmission slot.
func (a *CellResourceAllocator) At(offset int) *SlotAllocation {
	if offset < 0 || offset >= RingSize {
		panic(fmt.Sprintf("core: slot offset %d outside the resource grid", offset))
	}
	return &a.ring[a.ringIndex(a.slotTx.Add(offset))]
}

// AtSlot returns the allocation of an absolute slot inside the window.
func (a *CellResourceAllocator) AtSlot(sl model.SlotPoint) *SlotAllocation {
	return a.At(sl.Sub(a.slotTx))
}

func (a *CellResourceAllocator) ringIndex(sl model.SlotPoint) int {
	return int(sl.Count() % RingSize)
}
