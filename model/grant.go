package model

import "fmt"

// Ceilings on the number of PDUs the lower layers accept per slot.
const (
	MaxUEPDUsPerSlot      = 16
	MaxRARPDUsPerSlot     = 16
	MaxPagingPDUsPerSlot  = 8
	MaxSIPDUsPerSlot      = 8
	MaxDLPDCCHPDUsPerSlot = 32
	MaxULPDCCHPDUsPerSlot = 32
	MaxPUSCHPDUsPerSlot   = 16
	MaxPUCCHPDUsPerSlot   = 32
)

// MaxDLPDUsPerSlot is the sum of all DL PDSCH ceilings.
const MaxDLPDUsPerSlot = MaxUEPDUsPerSlot + MaxRARPDUsPerSlot + MaxPagingPDUsPerSlot + MaxSIPDUsPerSlot

// RBInterval is a half-open range [Start, Stop) of resource blocks.
type RBInterval struct {
	Start int
	Stop  int
}

// Length returns the number of RBs in the interval.
func (i RBInterval) Length() int {
	if i.Stop <= i.Start {
		return 0
	}
	return i.Stop - i.Start
}

// Empty reports whether the interval holds no RBs.
func (i RBInterval) Empty() bool { return i.Length() == 0 }

// Contains reports whether o lies fully inside i.
func (i RBInterval) Contains(o RBInterval) bool { return o.Start >= i.Start && o.Stop <= i.Stop }

func (i RBInterval) String() string { return fmt.Sprintf("[%d, %d)", i.Start, i.Stop) }

// PDCCHEntry is a DCI placed in the CORESET of a slot.
type PDCCHEntry struct {
	RNTI             RNTI
	Direction        Direction
	AggregationLevel AggregationLevel
	CCEIndex         int
}

// DLGrant is a PDSCH allocation for one UE.
type DLGrant struct {
	UEIndex   UEIndex
	RNTI      RNTI
	Cell      CellIndex
	Slice     SliceID
	HARQID    HARQID
	RBs       RBInterval
	MCS       uint8
	TBSBytes  int
	IsRetx    bool
	NofRetxs  int
	AckSlot   SlotPoint
	PDCCHSlot SlotPoint
}

// ULGrant is a PUSCH allocation for one UE.
type ULGrant struct {
	UEIndex   UEIndex
	RNTI      RNTI
	Cell      CellIndex
	Slice     SliceID
	HARQID    HARQID
	RBs       RBInterval
	MCS       uint8
	TBSBytes  int
	IsRetx    bool
	NofRetxs  int
	PDCCHSlot SlotPoint
}

// BroadcastKind distinguishes non-UE PDSCH allocations.
type BroadcastKind uint8

const (
	BroadcastSIB BroadcastKind = iota
	BroadcastRAR
	BroadcastPaging
)

func (k BroadcastKind) String() string {
	switch k {
	case BroadcastSIB:
		return "sib"
	case BroadcastRAR:
		return "rar"
	case BroadcastPaging:
		return "paging"
	default:
		return "unknown"
	}
}

// BroadcastGrant is a SIB, RAR or paging PDSCH.
type BroadcastGrant struct {
	Kind BroadcastKind
	RNTI RNTI
	RBs  RBInterval
}

// UCIEntry is a PUCCH reserved for HARQ-ACK reporting.
type UCIEntry struct {
	RNTI     RNTI
	HARQBits int
}

// DLResult is the downlink part of a slot result.
type DLResult struct {
	DLPDCCHs     []PDCCHEntry
	ULPDCCHs     []PDCCHEntry
	UEGrants     []DLGrant
	SIBs         []BroadcastGrant
	RARGrants    []BroadcastGrant
	PagingGrants []BroadcastGrant
}

// NofPDSCHs returns all PDSCHs placed in the slot.
func (r *DLResult) NofPDSCHs() int {
	return len(r.UEGrants) + len(r.SIBs) + len(r.RARGrants) + len(r.PagingGrants)
}

// ULResult is the uplink part of a slot result.
type ULResult struct {
	PUSCHs []ULGrant
	PUCCHs []UCIEntry
}

// SlotResult holds everything committed for one slot of one cell.
type SlotResult struct {
	Slot SlotPoint
	DL   DLResult
	UL   ULResult
}

// Reset empties the result while keeping list capacity.
func (r *SlotResult) Reset(sl SlotPoint) {
	r.Slot = sl
	r.DL.DLPDCCHs = r.DL.DLPDCCHs[:0]
	r.DL.ULPDCCHs = r.DL.ULPDCCHs[:0]
	r.DL.UEGrants = r.DL.UEGrants[:0]
	r.DL.SIBs = r.DL.SIBs[:0]
	r.DL.RARGrants = r.DL.RARGrants[:0]
	r.DL.PagingGrants = r.DL.PagingGrants[:0]
	r.UL.PUSCHs = r.UL.PUSCHs[:0]
	r.UL.PUCCHs = r.UL.PUCCHs[:0]
}

// Clone returns a deep copy that does not alias the ring buffers.
func (r *SlotResult) Clone() SlotResult {
	return SlotResult{
		Slot: r.Slot,
		DL: DLResult{
			DLPDCCHs:     append([]PDCCHEntry(nil), r.DL.DLPDCCHs...),
			ULPDCCHs:     append([]PDCCHEntry(nil), r.DL.ULPDCCHs...),
			UEGrants:     append([]DLGrant(nil), r.DL.UEGrants...),
			SIBs:         append([]BroadcastGrant(nil), r.DL.SIBs...),
			RARGrants:    append([]BroadcastGrant(nil), r.DL.RARGrants...),
			PagingGrants: append([]BroadcastGrant(nil), r.DL.PagingGrants...),
		},
		UL: ULResult{
			PUSCHs: append([]ULGrant(nil), r.UL.PUSCHs...),
			PUCCHs: append([]UCIEntry(nil), r.UL.PUCCHs...),
		},
	}
}

// AllocStatus is the outcome of a per-UE allocation request.
type AllocStatus uint8

const (
	// AllocSuccess means the grant was placed.
	AllocSuccess AllocStatus = iota
	// AllocFailure excludes this UE from the current opportunity only.
	AllocFailure
	// AllocSkipSlot means the slot ran out of a resource and no further attempt can succeed.
	AllocSkipSlot
)

func (s AllocStatus) String() string {
	switch s {
	case AllocSuccess:
		return "success"
	case AllocFailure:
		return "failure"
	case AllocSkipSlot:
		return "skip_slot"
	default:
		return "unknown"
	}
}
