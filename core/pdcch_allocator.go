package core

import "github.com/signalsfoundry/gnb-scheduler/model"

// PDCCHAllocator places DCIs in the CORESET of the current transmission slot.
// CCEs are handed out sequentially and shared by DL and UL DCIs.
type PDCCHAllocator struct {
	grid *CellResourceAllocator
}

// NewPDCCHAllocator returns an allocator operating on the cell grid.
func NewPDCCHAllocator(grid *CellResourceAllocator) *PDCCHAllocator {
	return &PDCCHAllocator{grid: grid}
}

// FreeCCEs returns the CCEs still available in the transmission slot.
func (p *PDCCHAllocator) FreeCCEs() int {
	return p.grid.cfg.CoresetCCEs - p.grid.At(0).UsedCCEs
}

// Alloc reserves a PDCCH candidate for rnti. It fails when the CORESET has no
// room for the aggregation level or the PDCCH list of the direction is full.
func (p *PDCCHAllocator) Alloc(dir model.Direction, rnti model.RNTI, al model.AggregationLevel) (model.PDCCHEntry, bool) {
	if !al.Valid() {
		return model.PDCCHEntry{}, false
	}
	slot := p.grid.At(0)
	if !p.grid.cfg.IsDLEnabled(slot.Result.Slot) {
		return model.PDCCHEntry{}, false
	}
	if slot.UsedCCEs+al.NofCCEs() > p.grid.cfg.CoresetCCEs {
		return model.PDCCHEntry{}, false
	}
	entry := model.PDCCHEntry{RNTI: rnti, Direction: dir, AggregationLevel: al, CCEIndex: slot.UsedCCEs}
	switch dir {
	case model.Downlink:
		if len(slot.Result.DL.DLPDCCHs) >= model.MaxDLPDCCHPDUsPerSlot {
			return model.PDCCHEntry{}, false
		}
		slot.Result.DL.DLPDCCHs = append(slot.Result.DL.DLPDCCHs, entry)
	case model.Uplink:
		if len(slot.Result.DL.ULPDCCHs) >= model.MaxULPDCCHPDUsPerSlot {
			return model.PDCCHEntry{}, false
		}
		slot.Result.DL.ULPDCCHs = append(slot.Result.DL.ULPDCCHs, entry)
	}
	slot.UsedCCEs += al.NofCCEs()
	return entry, true
}

// CancelLast removes the most recent PDCCH of the direction. CCEs are returned
// to the CORESET only when they sit at its tail.
func (p *PDCCHAllocator) CancelLast(dir model.Direction) {
	slot := p.grid.At(0)
	list := &slot.Result.DL.DLPDCCHs
	if dir == model.Uplink {
		list = &slot.Result.DL.ULPDCCHs
	}
	n := len(*list)
	if n == 0 {
		return
	}
	last := (*list)[n-1]
	*list = (*list)[:n-1]
	if last.CCEIndex+last.AggregationLevel.NofCCEs() == slot.UsedCCEs {
		slot.UsedCCEs = last.CCEIndex
	}
}
