package sched

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

// GrantRequest asks the UE allocator for one PDSCH or PUSCH grant. HARQID is
// model.InvalidHARQID for a new transmission, otherwise the process to
// retransmit.
type GrantRequest struct {
	UE               *ue.SliceUE
	Cell             model.CellIndex
	HARQID           model.HARQID
	RecommendedBytes int
	MaxRBs           int
}

// AllocResult is the outcome of a grant request.
type AllocResult struct {
	Status model.AllocStatus
	NofRBs int
}

// UEAllocator places the grant of a single UE in the resource grid.
type UEAllocator interface {
	AddCell(cell model.CellIndex, pdcch *core.PDCCHAllocator, uci *core.UCIAllocator, grid *core.CellResourceAllocator, harqs *harq.Manager)
	SlotIndication(sl model.SlotPoint)
	AllocateDLGrant(cell model.CellIndex, slice *DLSliceCandidate, req GrantRequest) AllocResult
	AllocateULGrant(cell model.CellIndex, slice *ULSliceCandidate, req GrantRequest) AllocResult
	PostProcessResults()
}

type allocCell struct {
	pdcch *core.PDCCHAllocator
	uci   *core.UCIAllocator
	grid  *core.CellResourceAllocator
	harqs *harq.Manager
}

type deferredConsumption struct {
	ue    *ue.UE
	slice model.SliceID
	dir   model.Direction
	bytes int
}

// GridAllocator is the UEAllocator backed by the cell resource grid. Buffer
// accounting and HARQ commits are deferred to PostProcessResults so that every
// slice of a slot sees the same UE state.
type GridAllocator struct {
	cells    [model.MaxNofCells]*allocCell
	deferred []deferredConsumption
	slot     model.SlotPoint
	log      logging.Logger
}

// NewGridAllocator returns an allocator with no cells.
func NewGridAllocator(log logging.Logger) *GridAllocator {
	if log == nil {
		log = logging.Noop()
	}
	return &GridAllocator{log: log, deferred: make([]deferredConsumption, 0, model.MaxUEPDUsPerSlot+model.MaxPUSCHPDUsPerSlot)}
}

func (a *GridAllocator) AddCell(cell model.CellIndex, pdcch *core.PDCCHAllocator, uci *core.UCIAllocator, grid *core.CellResourceAllocator, harqs *harq.Manager) {
	a.cells[cell] = &allocCell{pdcch: pdcch, uci: uci, grid: grid, harqs: harqs}
}

func (a *GridAllocator) SlotIndication(sl model.SlotPoint) {
	a.slot = sl
	a.deferred = a.deferred[:0]
}

func (a *GridAllocator) cell(idx model.CellIndex) *allocCell {
	c := a.cells[idx]
	if c == nil {
		panic(fmt.Sprintf("sched: allocation on unregistered cell %d", idx))
	}
	return c
}

func (a *GridAllocator) AllocateDLGrant(cellIdx model.CellIndex, slice *DLSliceCandidate, req GrantRequest) AllocResult {
	c := a.cell(cellIdx)
	ucell := req.UE.FindCell(cellIdx)
	if ucell == nil {
		return AllocResult{Status: model.AllocFailure}
	}
	cfg := c.grid.Config()
	pdcchSlot := c.grid.SlotTx()
	pdschSlot := slice.SlotTx()
	pdschAlloc := c.grid.AtSlot(pdschSlot)

	if len(pdschAlloc.Result.DL.UEGrants) >= model.MaxUEPDUsPerSlot ||
		len(c.grid.At(0).Result.DL.DLPDCCHs) >= model.MaxDLPDCCHPDUsPerSlot {
		return AllocResult{Status: model.AllocSkipSlot}
	}

	ackSlot, ok := findAckSlot(cfg, pdcchSlot, pdschSlot)
	if !ok {
		return AllocResult{Status: model.AllocFailure}
	}

	isRetx := req.HARQID != model.InvalidHARQID
	var (
		nofRBs int
		mcs    uint8
		tbs    int
	)
	if isRetx {
		h, ok := ucell.HARQs.DLHARQ(req.HARQID)
		if !ok || h.State() != harq.StatePendingRetx {
			return AllocResult{Status: model.AllocFailure}
		}
		p := h.GrantParams()
		nofRBs, mcs, tbs = p.NofRBs, p.MCS, p.TBSBytes
		if nofRBs > slice.RemainingRBs() {
			return AllocResult{Status: model.AllocFailure}
		}
	} else {
		if !ucell.HARQs.HasEmptyDLHARQs() {
			return AllocResult{Status: model.AllocFailure}
		}
		mcs = ucell.DLMCS()
		nofRBs = min(core.RBsForBytes(mcs, req.RecommendedBytes), req.MaxRBs, slice.RemainingRBs())
		if nofRBs <= 0 {
			return AllocResult{Status: model.AllocFailure}
		}
	}

	rbs := pdschAlloc.DLRBs.FindFree(nofRBs, slice.RBRange())
	if rbs.Empty() {
		return AllocResult{Status: model.AllocSkipSlot}
	}
	if isRetx && rbs.Length() < nofRBs {
		return AllocResult{Status: model.AllocFailure}
	}
	nofRBs = rbs.Length()
	if !isRetx {
		tbs = core.TBSBytes(mcs, nofRBs)
	}

	rnti := req.UE.CRNTI()
	if _, ok := c.pdcch.Alloc(model.Downlink, rnti, ucell.SearchSpace().AggregationLevel); !ok {
		return AllocResult{Status: model.AllocFailure}
	}
	if !c.uci.AllocHARQAck(ackSlot, rnti) {
		c.pdcch.CancelLast(model.Downlink)
		return AllocResult{Status: model.AllocFailure}
	}

	var h harq.Handle
	if isRetx {
		h, ok = ucell.HARQs.AllocDLRetx(req.HARQID, pdschSlot, ackSlot)
	} else {
		h, ok = ucell.HARQs.AllocDLNewTx(pdschSlot, ackSlot, harq.GrantParams{Slice: slice.ID(), NofRBs: nofRBs, TBSBytes: tbs, MCS: mcs})
	}
	if !ok {
		c.uci.CancelHARQAck(ackSlot, rnti)
		c.pdcch.CancelLast(model.Downlink)
		return AllocResult{Status: model.AllocFailure}
	}

	pdschAlloc.DLRBs.Fill(rbs)
	pdschAlloc.Result.DL.UEGrants = append(pdschAlloc.Result.DL.UEGrants, model.DLGrant{
		UEIndex:   req.UE.Index(),
		RNTI:      rnti,
		Cell:      cellIdx,
		Slice:     slice.ID(),
		HARQID:    h.ID(),
		RBs:       rbs,
		MCS:       mcs,
		TBSBytes:  tbs,
		IsRetx:    isRetx,
		NofRetxs:  h.NofRetxs(),
		AckSlot:   ackSlot,
		PDCCHSlot: pdcchSlot,
	})
	if !isRetx {
		a.deferred = append(a.deferred, deferredConsumption{ue: req.UE.UE, slice: slice.ID(), dir: model.Downlink, bytes: tbs})
	}
	if a.log.Enabled(context.Background(), slog.LevelDebug) {
		a.log.Debug(context.Background(), "pdsch allocated",
			logging.Any("cell", cellIdx),
			logging.Any("ue", req.UE.Index()),
			logging.Stringer("rnti", rnti),
			logging.Any("h_id", h.ID()),
			logging.Stringer("rbs", rbs),
			logging.Bool("retx", isRetx),
			logging.Stringer("pdsch_slot", pdschSlot),
		)
	}
	return AllocResult{Status: model.AllocSuccess, NofRBs: nofRBs}
}

func (a *GridAllocator) AllocateULGrant(cellIdx model.CellIndex, slice *ULSliceCandidate, req GrantRequest) AllocResult {
	c := a.cell(cellIdx)
	ucell := req.UE.FindCell(cellIdx)
	if ucell == nil {
		return AllocResult{Status: model.AllocFailure}
	}
	pdcchSlot := c.grid.SlotTx()
	puschSlot := slice.SlotTx()
	puschAlloc := c.grid.AtSlot(puschSlot)

	if len(puschAlloc.Result.UL.PUSCHs) >= model.MaxPUSCHPDUsPerSlot ||
		len(c.grid.At(0).Result.DL.ULPDCCHs) >= model.MaxULPDCCHPDUsPerSlot {
		return AllocResult{Status: model.AllocSkipSlot}
	}

	isRetx := req.HARQID != model.InvalidHARQID
	var (
		nofRBs int
		mcs    uint8
		tbs    int
	)
	if isRetx {
		h, ok := ucell.HARQs.ULHARQ(req.HARQID)
		if !ok || h.State() != harq.StatePendingRetx {
			return AllocResult{Status: model.AllocFailure}
		}
		p := h.GrantParams()
		nofRBs, mcs, tbs = p.NofRBs, p.MCS, p.TBSBytes
		if nofRBs > slice.RemainingRBs() {
			return AllocResult{Status: model.AllocFailure}
		}
	} else {
		if !ucell.HARQs.HasEmptyULHARQs() {
			return AllocResult{Status: model.AllocFailure}
		}
		mcs = ucell.ULMCS()
		nofRBs = min(core.RBsForBytes(mcs, req.RecommendedBytes), req.MaxRBs, slice.RemainingRBs())
		if nofRBs <= 0 {
			return AllocResult{Status: model.AllocFailure}
		}
	}

	rbs := puschAlloc.ULRBs.FindFree(nofRBs, slice.RBRange())
	if rbs.Empty() {
		return AllocResult{Status: model.AllocSkipSlot}
	}
	if isRetx && rbs.Length() < nofRBs {
		return AllocResult{Status: model.AllocFailure}
	}
	nofRBs = rbs.Length()
	if !isRetx {
		tbs = core.TBSBytes(mcs, nofRBs)
	}

	rnti := req.UE.CRNTI()
	if _, ok := c.pdcch.Alloc(model.Uplink, rnti, ucell.SearchSpace().AggregationLevel); !ok {
		return AllocResult{Status: model.AllocFailure}
	}

	var (
		h  harq.Handle
		ok bool
	)
	if isRetx {
		h, ok = ucell.HARQs.AllocULRetx(req.HARQID, puschSlot)
	} else {
		h, ok = ucell.HARQs.AllocULNewTx(puschSlot, harq.GrantParams{Slice: slice.ID(), NofRBs: nofRBs, TBSBytes: tbs, MCS: mcs})
	}
	if !ok {
		c.pdcch.CancelLast(model.Uplink)
		return AllocResult{Status: model.AllocFailure}
	}

	puschAlloc.ULRBs.Fill(rbs)
	puschAlloc.Result.UL.PUSCHs = append(puschAlloc.Result.UL.PUSCHs, model.ULGrant{
		UEIndex:   req.UE.Index(),
		RNTI:      rnti,
		Cell:      cellIdx,
		Slice:     slice.ID(),
		HARQID:    h.ID(),
		RBs:       rbs,
		MCS:       mcs,
		TBSBytes:  tbs,
		IsRetx:    isRetx,
		NofRetxs:  h.NofRetxs(),
		PDCCHSlot: pdcchSlot,
	})
	if !isRetx {
		a.deferred = append(a.deferred, deferredConsumption{ue: req.UE.UE, slice: slice.ID(), dir: model.Uplink, bytes: tbs})
	}
	return AllocResult{Status: model.AllocSuccess, NofRBs: nofRBs}
}

// PostProcessResults applies the buffer accounting of the slot's new
// transmissions and commits the reserved HARQ processes.
func (a *GridAllocator) PostProcessResults() {
	for _, d := range a.deferred {
		if d.dir == model.Downlink {
			d.ue.ConsumeDLBytes(d.slice, d.bytes)
		} else {
			d.ue.ConsumeULBytes(d.slice, d.bytes)
		}
	}
	a.deferred = a.deferred[:0]
	for _, c := range a.cells {
		if c != nil {
			c.harqs.CommitReserved()
		}
	}
}

// findAckSlot returns the first UL-enabled slot at or after pdschSlot+K1 that
// still lies inside the resource grid window.
func findAckSlot(cfg *core.CellConfig, pdcchSlot, pdschSlot model.SlotPoint) (model.SlotPoint, bool) {
	k0 := pdschSlot.Sub(pdcchSlot)
	for k1 := cfg.K1; k0+k1 < core.RingSize; k1++ {
		if sl := pdschSlot.Add(k1); cfg.IsULEnabled(sl) {
			return sl, true
		}
	}
	return model.SlotPoint{}, false
}
