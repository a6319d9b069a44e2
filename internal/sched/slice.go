package sched

import (
	"fmt"

	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

// sliceCandidate is a slice offered one scheduling opportunity: its UEs, the
// slot the data channel lands in and an RB budget that grants consume.
type sliceCandidate struct {
	id      model.SliceID
	ues     *ue.SliceUERepository
	slotTx  model.SlotPoint
	rbRange model.RBInterval
	maxRBs  int
	usedRBs int
}

func newSliceCandidate(id model.SliceID, ues *ue.SliceUERepository, slotTx model.SlotPoint, rbRange model.RBInterval, maxRBs int) sliceCandidate {
	return sliceCandidate{
		id:      id,
		ues:     ues,
		slotTx:  slotTx,
		rbRange: rbRange,
		maxRBs:  max(maxRBs, 0),
	}
}

// ID returns the slice id.
func (s *sliceCandidate) ID() model.SliceID { return s.id }

// UEs returns the UEs of the slice.
func (s *sliceCandidate) UEs() *ue.SliceUERepository { return s.ues }

// SlotTx returns the PDSCH or PUSCH slot of the opportunity.
func (s *sliceCandidate) SlotTx() model.SlotPoint { return s.slotTx }

// RBRange returns the CRBs grants of the slice may occupy.
func (s *sliceCandidate) RBRange() model.RBInterval { return s.rbRange }

// MaxRBs returns the RB budget the slice was offered.
func (s *sliceCandidate) MaxRBs() int { return s.maxRBs }

// RemainingRBs returns the budget not yet consumed by stored grants.
func (s *sliceCandidate) RemainingRBs() int { return s.maxRBs - s.usedRBs }

// StoreGrant charges a grant against the budget. Exceeding the budget is a
// programming error.
func (s *sliceCandidate) StoreGrant(nofRBs int) {
	if nofRBs < 0 || nofRBs > s.RemainingRBs() {
		panic(fmt.Sprintf("sched: slice %d grant of %d RBs exceeds remaining %d", s.id, nofRBs, s.RemainingRBs()))
	}
	s.usedRBs += nofRBs
}

// DLSliceCandidate is a slice scheduling opportunity for PDSCH.
type DLSliceCandidate struct{ sliceCandidate }

// NewDLSliceCandidate builds a DL opportunity for pdschSlot.
func NewDLSliceCandidate(id model.SliceID, ues *ue.SliceUERepository, pdschSlot model.SlotPoint, rbRange model.RBInterval, maxRBs int) *DLSliceCandidate {
	return &DLSliceCandidate{newSliceCandidate(id, ues, pdschSlot, rbRange, maxRBs)}
}

// ULSliceCandidate is a slice scheduling opportunity for PUSCH.
type ULSliceCandidate struct{ sliceCandidate }

// NewULSliceCandidate builds a UL opportunity for puschSlot.
func NewULSliceCandidate(id model.SliceID, ues *ue.SliceUERepository, puschSlot model.SlotPoint, rbRange model.RBInterval, maxRBs int) *ULSliceCandidate {
	return &ULSliceCandidate{newSliceCandidate(id, ues, puschSlot, rbRange, maxRBs)}
}
