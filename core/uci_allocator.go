package core

import "github.com/signalsfoundry/gnb-scheduler/model"

// MaxHARQBitsPerPUCCH bounds the HARQ-ACK bits multiplexed on one PUCCH.
const MaxHARQBitsPerPUCCH = 8

// UCIAllocator reserves PUCCH resources for HARQ-ACK reporting.
type UCIAllocator struct {
	grid *CellResourceAllocator
}

// NewUCIAllocator returns an allocator operating on the cell grid.
func NewUCIAllocator(grid *CellResourceAllocator) *UCIAllocator {
	return &UCIAllocator{grid: grid}
}

// AllocHARQAck reserves one HARQ-ACK bit for rnti in ackSlot. Bits of the same
// UE share a PUCCH.
func (u *UCIAllocator) AllocHARQAck(ackSlot model.SlotPoint, rnti model.RNTI) bool {
	if !u.grid.cfg.IsULEnabled(ackSlot) {
		return false
	}
	off := ackSlot.Sub(u.grid.slotTx)
	if off < 0 || off >= RingSize {
		return false
	}
	res := &u.grid.At(off).Result.UL
	for i := range res.PUCCHs {
		if res.PUCCHs[i].RNTI == rnti {
			if res.PUCCHs[i].HARQBits >= MaxHARQBitsPerPUCCH {
				return false
			}
			res.PUCCHs[i].HARQBits++
			return true
		}
	}
	if len(res.PUCCHs) >= model.MaxPUCCHPDUsPerSlot {
		return false
	}
	res.PUCCHs = append(res.PUCCHs, model.UCIEntry{RNTI: rnti, HARQBits: 1})
	return true
}

// CancelHARQAck releases one HARQ-ACK bit previously reserved for rnti.
func (u *UCIAllocator) CancelHARQAck(ackSlot model.SlotPoint, rnti model.RNTI) {
	off := ackSlot.Sub(u.grid.slotTx)
	if off < 0 || off >= RingSize {
		return
	}
	res := &u.grid.At(off).Result.UL
	for i := range res.PUCCHs {
		if res.PUCCHs[i].RNTI != rnti {
			continue
		}
		res.PUCCHs[i].HARQBits--
		if res.PUCCHs[i].HARQBits <= 0 {
			res.PUCCHs = append(res.PUCCHs[:i], res.PUCCHs[i+1:]...)
		}
		return
	}
}
