package sched

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/internal/sched/policy"
	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

// ErrUnknownSlice is returned when a UE bearer refers to a slice the cell
// does not run.
var ErrUnknownSlice = errors.New("unknown slice")

// MaxPagingRecordsPerGrant bounds the paging records carried by one paging PDSCH.
const MaxPagingRecordsPerGrant = 32

// SliceConfig describes a RAN slice of a cell.
type SliceConfig struct {
	ID   model.SliceID
	Name string
	// MaxRBRatio is the share of the BWP the slice may use per slot, in (0, 1].
	MaxRBRatio float64
	// Slices with a higher Priority are scheduled first.
	Priority int
	Policy   policy.Kind
	Params   policy.Params
}

// DefaultSliceConfig returns a single slice spanning the whole BWP.
func DefaultSliceConfig() SliceConfig {
	return SliceConfig{ID: model.DefaultSliceID, Name: "default", MaxRBRatio: 1, Policy: policy.KindRoundRobin}
}

type cellSlice struct {
	cfg    SliceConfig
	ues    *ue.SliceUERepository
	policy policy.Policy

	dlGrants uint64
	ulGrants uint64
}

// SliceSnapshot is the published state of one slice.
type SliceSnapshot struct {
	ID       model.SliceID
	Name     string
	NofUEs   int
	DLGrants uint64
	ULGrants uint64
}

// CellSnapshot is the state of a cell published after each slot. It is
// immutable once published.
type CellSnapshot struct {
	Cell           model.CellIndex
	Slot           model.SlotPoint
	NofUEs         int
	DLGrants       int
	ULGrants       int
	DLRBs          int
	ULRBs          int
	PendingDLRetxs int
	PendingULRetxs int
	TotalDLBytes   uint64
	TotalULBytes   uint64
	Slices         []SliceSnapshot
}

// CellScheduler runs the slot of one cell: broadcast placement followed by the
// DL and UL slices in priority order.
type CellScheduler struct {
	cfg   *core.CellConfig
	grid  *core.CellResourceAllocator
	pdcch *core.PDCCHAllocator
	uci   *core.UCIAllocator
	harqs *harq.Manager
	intra *IntraSliceScheduler

	slices []*cellSlice
	nofUEs int
	paging []uint64

	log      logging.Logger
	metrics  MetricsRecorder
	dlBytes  uint64
	ulBytes  uint64
	snapshot atomic.Pointer[CellSnapshot]
}

// NewCellScheduler builds the per-cell resources, registers them with intra
// and instantiates the slice policies. intra serves this cell only; its
// attempt counters are the PDCCH budget of the cell.
func NewCellScheduler(cfg core.CellConfig, slicesCfg []SliceConfig, intra *IntraSliceScheduler, log logging.Logger, metrics MetricsRecorder, harqOpts ...harq.Option) (*CellScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(slicesCfg) == 0 {
		slicesCfg = []SliceConfig{DefaultSliceConfig()}
	}
	if log == nil {
		log = logging.Noop()
	}
	c := &CellScheduler{
		cfg:     &cfg,
		intra:   intra,
		log:     log.With(logging.Any("cell", cfg.Index)),
		metrics: metrics,
	}
	c.grid = core.NewCellResourceAllocator(c.cfg)
	c.pdcch = core.NewPDCCHAllocator(c.grid)
	c.uci = core.NewUCIAllocator(c.grid)
	c.harqs = harq.NewManager(cfg.Index, cfg.MaxDLRetxs, cfg.MaxULRetxs, append([]harq.Option{harq.WithLogger(c.log)}, harqOpts...)...)

	for _, sc := range slicesCfg {
		if sc.MaxRBRatio <= 0 || sc.MaxRBRatio > 1 {
			return nil, fmt.Errorf("slice %d: max rb ratio %.2f out of (0, 1]", sc.ID, sc.MaxRBRatio)
		}
		if slices.ContainsFunc(c.slices, func(s *cellSlice) bool { return s.cfg.ID == sc.ID }) {
			return nil, fmt.Errorf("slice %d configured twice", sc.ID)
		}
		pol, err := policy.New(sc.Policy, sc.Params)
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", sc.ID, err)
		}
		c.slices = append(c.slices, &cellSlice{cfg: sc, ues: ue.NewSliceUERepository(sc.ID), policy: pol})
	}
	slices.SortStableFunc(c.slices, func(a, b *cellSlice) int { return cmp.Compare(b.cfg.Priority, a.cfg.Priority) })

	intra.AddCell(cfg.Index, c.pdcch, c.uci, c.grid, c.harqs)
	c.snapshot.Store(&CellSnapshot{Cell: cfg.Index})
	return c, nil
}

// Index returns the cell index.
func (c *CellScheduler) Index() model.CellIndex { return c.cfg.Index }

// Config returns the cell configuration.
func (c *CellScheduler) Config() *core.CellConfig { return c.cfg }

// Intra returns the intra-slice scheduler of the cell.
func (c *CellScheduler) Intra() *IntraSliceScheduler { return c.intra }

// HARQs returns the HARQ manager of the cell.
func (c *CellScheduler) HARQs() *harq.Manager { return c.harqs }

// Grid returns the cell resource grid.
func (c *CellScheduler) Grid() *core.CellResourceAllocator { return c.grid }

// Snapshot returns the state published after the last slot. Safe for
// concurrent use.
func (c *CellScheduler) Snapshot() *CellSnapshot { return c.snapshot.Load() }

func (c *CellScheduler) findSlice(id model.SliceID) *cellSlice {
	for _, s := range c.slices {
		if s.cfg.ID == id {
			return s
		}
	}
	return nil
}

// addUE creates the UE state in this cell and makes it a member of the slices
// its bearers map to. A UE without bearers joins the default slice.
func (c *CellScheduler) addUE(u *ue.UE, ss ue.SearchSpace) error {
	ids := u.Slices()
	if len(ids) == 0 {
		ids = []model.SliceID{model.DefaultSliceID}
	}
	for _, id := range ids {
		if c.findSlice(id) == nil {
			return fmt.Errorf("%w: slice %d in cell %d", ErrUnknownSlice, id, c.cfg.Index)
		}
	}
	h, err := c.harqs.AddUE(u.Index(), u.CRNTI(), c.cfg.NofDLHARQs, c.cfg.NofULHARQs)
	if err != nil {
		return err
	}
	u.AddCell(ue.NewCell(c.cfg, u.Index(), u.CRNTI(), h, ss))
	for _, id := range ids {
		c.findSlice(id).ues.Add(u)
	}
	c.nofUEs++
	return nil
}

func (c *CellScheduler) removeUE(idx model.UEIndex) {
	found := false
	for _, s := range c.slices {
		if s.ues.Contains(idx) {
			found = true
			s.ues.Remove(idx)
		}
	}
	if _, ok := c.harqs.UE(idx); ok {
		found = true
		c.harqs.RemoveUE(idx)
	}
	if found {
		c.nofUEs--
	}
}

// EnqueuePaging queues a paging record for the next DL slot.
func (c *CellScheduler) EnqueuePaging(pagingID uint64) {
	c.paging = append(c.paging, pagingID)
}

// slotIndication advances the grid and the HARQ processes of the cell.
func (c *CellScheduler) slotIndication(sl model.SlotPoint) {
	c.grid.SlotIndication(sl)
	c.harqs.SlotIndication(sl)
}

// schedule places broadcast and UE grants for the slot. The intra-slice
// scheduler must already have been told about the slot.
func (c *CellScheduler) schedule(sl model.SlotPoint) {
	if !c.cfg.IsDLEnabled(sl) {
		return
	}
	c.scheduleSIB1(sl)
	c.schedulePaging()

	pdschSlot := sl.Add(c.cfg.K0)
	if c.cfg.IsDLEnabled(pdschSlot) {
		for _, s := range c.slices {
			if s.ues.Len() == 0 {
				continue
			}
			budget := c.sliceBudget(s.cfg.MaxRBRatio, c.cfg.DLBandwidthRBs, c.grid.AtSlot(pdschSlot).DLRBs.FreeIn(c.cfg.DLBWP()))
			if budget == 0 {
				continue
			}
			cand := NewDLSliceCandidate(s.cfg.ID, s.ues, pdschSlot, c.cfg.DLBWP(), budget)
			sum := c.intra.DLSched(sl, c.cfg.Index, cand, s.policy)
			s.dlGrants += uint64(sum.Total())
		}
	}

	puschSlot := sl.Add(c.cfg.K2)
	if c.cfg.IsULEnabled(puschSlot) {
		for _, s := range c.slices {
			if s.ues.Len() == 0 {
				continue
			}
			budget := c.sliceBudget(s.cfg.MaxRBRatio, c.cfg.ULBandwidthRBs, c.grid.AtSlot(puschSlot).ULRBs.FreeIn(c.cfg.ULBWP()))
			if budget == 0 {
				continue
			}
			cand := NewULSliceCandidate(s.cfg.ID, s.ues, puschSlot, c.cfg.ULBWP(), budget)
			sum := c.intra.ULSched(sl, c.cfg.Index, cand, s.policy)
			s.ulGrants += uint64(sum.Total())
		}
	}
}

func (c *CellScheduler) sliceBudget(ratio float64, bwpRBs, freeRBs int) int {
	return min(int(ratio*float64(bwpRBs)), freeRBs)
}

func (c *CellScheduler) scheduleSIB1(sl model.SlotPoint) {
	if c.cfg.SIB1PeriodSlots <= 0 || sl.Count()%uint32(c.cfg.SIB1PeriodSlots) != 0 {
		return
	}
	c.placeBroadcast(model.BroadcastSIB, model.SIRNTI, c.cfg.SIB1RBs)
}

func (c *CellScheduler) schedulePaging() {
	if len(c.paging) == 0 {
		return
	}
	if !c.placeBroadcast(model.BroadcastPaging, model.PagingRNTI, c.cfg.PagingRBs) {
		return
	}
	n := min(len(c.paging), MaxPagingRecordsPerGrant)
	c.paging = append(c.paging[:0], c.paging[n:]...)
}

// placeBroadcast allocates a common PDCCH and the PDSCH of a broadcast
// message in the transmission slot.
func (c *CellScheduler) placeBroadcast(kind model.BroadcastKind, rnti model.RNTI, nofRBs int) bool {
	slot := c.grid.At(0)
	dl := &slot.Result.DL
	switch {
	case kind == model.BroadcastSIB && len(dl.SIBs) >= model.MaxSIPDUsPerSlot,
		kind == model.BroadcastPaging && len(dl.PagingGrants) >= model.MaxPagingPDUsPerSlot:
		return false
	}
	rbs := slot.DLRBs.FindFree(nofRBs, c.cfg.DLBWP())
	if rbs.Length() < nofRBs || nofRBs <= 0 {
		c.log.Warn(context.Background(), "broadcast skipped: no room in the DL BWP",
			logging.Stringer("kind", kind), logging.Stringer("slot", slot.Result.Slot))
		return false
	}
	if _, ok := c.pdcch.Alloc(model.Downlink, rnti, model.AggregationLevel4); !ok {
		c.log.Warn(context.Background(), "broadcast skipped: no PDCCH resources",
			logging.Stringer("kind", kind), logging.Stringer("slot", slot.Result.Slot))
		return false
	}
	slot.DLRBs.Fill(rbs)
	g := model.BroadcastGrant{Kind: kind, RNTI: rnti, RBs: rbs}
	if kind == model.BroadcastSIB {
		dl.SIBs = append(dl.SIBs, g)
	} else {
		dl.PagingGrants = append(dl.PagingGrants, g)
	}
	return true
}

// publish snapshots the transmission slot result and returns a copy of it.
func (c *CellScheduler) publish(sl model.SlotPoint, elapsed time.Duration) model.SlotResult {
	slot := c.grid.At(0)
	res := slot.Result.Clone()

	snap := &CellSnapshot{
		Cell:           c.cfg.Index,
		Slot:           sl,
		NofUEs:         c.nofUEs,
		DLGrants:       len(res.DL.UEGrants),
		ULGrants:       len(res.UL.PUSCHs),
		DLRBs:          slot.DLRBs.Count(),
		ULRBs:          slot.ULRBs.Count(),
		PendingDLRetxs: c.harqs.NofPendingRetxs(model.Downlink),
		PendingULRetxs: c.harqs.NofPendingRetxs(model.Uplink),
	}
	for _, g := range res.DL.UEGrants {
		c.dlBytes += uint64(g.TBSBytes)
	}
	for _, g := range res.UL.PUSCHs {
		c.ulBytes += uint64(g.TBSBytes)
	}
	snap.TotalDLBytes, snap.TotalULBytes = c.dlBytes, c.ulBytes
	snap.Slices = make([]SliceSnapshot, 0, len(c.slices))
	for _, s := range c.slices {
		snap.Slices = append(snap.Slices, SliceSnapshot{
			ID:       s.cfg.ID,
			Name:     s.cfg.Name,
			NofUEs:   s.ues.Len(),
			DLGrants: s.dlGrants,
			ULGrants: s.ulGrants,
		})
	}
	c.snapshot.Store(snap)
	if c.metrics != nil {
		c.metrics.ObserveSlotDuration(c.cfg.Index, elapsed)
	}
	return res
}
