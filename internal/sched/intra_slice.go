package sched

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/internal/sched/policy"
	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

// ExpertConfig holds the per-slot scheduling ceilings.
type ExpertConfig struct {
	// MaxPDCCHAllocAttemptsPerSlot bounds the allocation attempts per direction
	// and slot, across all slices.
	MaxPDCCHAllocAttemptsPerSlot int
	MaxPDSCHsPerSlot             int
	MaxPUSCHsPerSlot             int
}

// DefaultExpertConfig returns ceilings that leave the system limits binding.
func DefaultExpertConfig() ExpertConfig {
	return ExpertConfig{
		MaxPDCCHAllocAttemptsPerSlot: max(model.MaxDLPDCCHPDUsPerSlot, model.MaxULPDCCHPDUsPerSlot),
		MaxPDSCHsPerSlot:             model.MaxDLPDUsPerSlot,
		MaxPUSCHsPerSlot:             model.MaxPUSCHPDUsPerSlot,
	}
}

// AllocSummary counts the grants placed by one DLSched or ULSched call.
type AllocSummary struct {
	Retxs  int
	NewTxs int
}

// Total returns all grants placed.
func (s AllocSummary) Total() int { return s.Retxs + s.NewTxs }

// MetricsRecorder receives scheduling outcomes worth exporting.
type MetricsRecorder interface {
	ObserveGrants(cell model.CellIndex, dir model.Direction, retxs, newTxs, rbs int)
	ObserveAllocAttempts(cell model.CellIndex, dir model.Direction, n int)
	ObserveSkipSlot(cell model.CellIndex, dir model.Direction)
	ObserveHARQStarvation(cell model.CellIndex, dir model.Direction)
	ObserveSlotDuration(cell model.CellIndex, d time.Duration)
}

type cellResources struct {
	index model.CellIndex
	pdcch *core.PDCCHAllocator
	uci   *core.UCIAllocator
	grid  *core.CellResourceAllocator
	harqs *harq.Manager
}

// IntraSliceScheduler decides, per cell, slot and slice, which UEs receive DL
// and UL grants. Retransmissions are served before new transmissions, and
// allocation stops at the first skip-slot signal from the UE allocator.
// It is not safe for concurrent use.
type IntraSliceScheduler struct {
	expert  ExpertConfig
	log     logging.Logger
	alloc   UEAllocator
	metrics MetricsRecorder

	cells    [model.MaxNofCells]*cellResources
	lastSlot model.SlotPoint

	dlAttempts int
	ulAttempts int

	dlCands []policy.Candidate
	ulCands []policy.Candidate

	starvationWarn *rate.Limiter
}

// IntraSliceOption customises IntraSliceScheduler construction.
type IntraSliceOption func(*IntraSliceScheduler)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) IntraSliceOption {
	return func(s *IntraSliceScheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithUEAllocator replaces the grid-backed UE allocator.
func WithUEAllocator(a UEAllocator) IntraSliceOption {
	return func(s *IntraSliceScheduler) { s.alloc = a }
}

// WithMetricsRecorder attaches a metrics sink.
func WithMetricsRecorder(m MetricsRecorder) IntraSliceOption {
	return func(s *IntraSliceScheduler) { s.metrics = m }
}

// WithStarvationWarnInterval bounds how often HARQ starvation is logged.
func WithStarvationWarnInterval(d time.Duration) IntraSliceOption {
	return func(s *IntraSliceScheduler) { s.starvationWarn = rate.NewLimiter(rate.Every(d), 1) }
}

// NewIntraSliceScheduler builds a scheduler with the given ceilings.
func NewIntraSliceScheduler(expert ExpertConfig, opts ...IntraSliceOption) *IntraSliceScheduler {
	s := &IntraSliceScheduler{
		expert:         expert,
		log:            logging.Noop(),
		dlCands:        make([]policy.Candidate, 0, model.MaxNofUEs),
		ulCands:        make([]policy.Candidate, 0, model.MaxNofUEs),
		starvationWarn: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alloc == nil {
		s.alloc = NewGridAllocator(s.log)
	}
	return s
}

// AddCell registers the resources of a cell. Registering a cell twice is a
// programming error.
func (s *IntraSliceScheduler) AddCell(cell model.CellIndex, pdcch *core.PDCCHAllocator, uci *core.UCIAllocator, grid *core.CellResourceAllocator, harqs *harq.Manager) {
	if int(cell) >= model.MaxNofCells {
		panic(fmt.Sprintf("sched: cell index %d out of range", cell))
	}
	if s.cells[cell] != nil {
		panic(fmt.Sprintf("sched: cell %d registered twice", cell))
	}
	s.cells[cell] = &cellResources{index: cell, pdcch: pdcch, uci: uci, grid: grid, harqs: harqs}
	s.alloc.AddCell(cell, pdcch, uci, grid, harqs)
}

// SlotIndication starts a new slot. Slots must be indicated once each, in
// increasing order.
func (s *IntraSliceScheduler) SlotIndication(sl model.SlotPoint) {
	if s.lastSlot.Valid() && !s.lastSlot.Less(sl) {
		panic(fmt.Sprintf("sched: slot indication %s does not follow %s", sl, s.lastSlot))
	}
	s.lastSlot = sl
	s.dlAttempts = 0
	s.ulAttempts = 0
	s.alloc.SlotIndication(sl)
}

// DLAttempts returns the DL allocation attempts spent in the current slot.
func (s *IntraSliceScheduler) DLAttempts() int { return s.dlAttempts }

// ULAttempts returns the UL allocation attempts spent in the current slot.
func (s *IntraSliceScheduler) ULAttempts() int { return s.ulAttempts }

// PostProcessResults lets the UE allocator apply its deferred bookkeeping once
// every slice of the slot was scheduled.
func (s *IntraSliceScheduler) PostProcessResults() {
	s.alloc.PostProcessResults()
}

func (s *IntraSliceScheduler) cell(idx model.CellIndex) *cellResources {
	if int(idx) >= model.MaxNofCells || s.cells[idx] == nil {
		panic(fmt.Sprintf("sched: cell %d was not added", idx))
	}
	return s.cells[idx]
}

// DLSched schedules the DL grants of one slice. The slice must have been
// offered a non-empty RB budget.
func (s *IntraSliceScheduler) DLSched(pdcchSlot model.SlotPoint, cellIdx model.CellIndex, slice *DLSliceCandidate, pol policy.Policy) AllocSummary {
	c := s.cell(cellIdx)
	if slice.MaxRBs() <= 0 {
		panic(fmt.Sprintf("sched: dl slice %d scheduled with an empty RB budget", slice.ID()))
	}
	if slice.RemainingRBs() == 0 {
		return AllocSummary{}
	}
	attemptsBefore := s.dlAttempts
	rbsBefore := slice.RemainingRBs()

	var sum AllocSummary
	n := s.maxPDSCHsToAlloc(pdcchSlot, c, slice)
	if n > 0 {
		sum.Retxs = s.scheduleDLRetxCandidates(pdcchSlot, c, slice, n)
		n -= min(n, sum.Retxs)
		if n > 0 {
			sum.NewTxs = s.scheduleDLNewTxCandidates(pdcchSlot, c, slice, pol, n)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveAllocAttempts(cellIdx, model.Downlink, s.dlAttempts-attemptsBefore)
		s.metrics.ObserveGrants(cellIdx, model.Downlink, sum.Retxs, sum.NewTxs, rbsBefore-slice.RemainingRBs())
	}
	return sum
}

// ULSched schedules the UL grants of one slice. The slice must have been
// offered a non-empty RB budget.
func (s *IntraSliceScheduler) ULSched(pdcchSlot model.SlotPoint, cellIdx model.CellIndex, slice *ULSliceCandidate, pol policy.Policy) AllocSummary {
	c := s.cell(cellIdx)
	if slice.MaxRBs() <= 0 {
		panic(fmt.Sprintf("sched: ul slice %d scheduled with an empty RB budget", slice.ID()))
	}
	if slice.RemainingRBs() == 0 {
		return AllocSummary{}
	}
	attemptsBefore := s.ulAttempts
	rbsBefore := slice.RemainingRBs()

	var sum AllocSummary
	n := s.maxPUSCHsToAlloc(pdcchSlot, c, slice)
	if n > 0 {
		sum.Retxs = s.scheduleULRetxCandidates(pdcchSlot, c, slice, n)
		n -= min(n, sum.Retxs)
		if n > 0 {
			sum.NewTxs = s.scheduleULNewTxCandidates(pdcchSlot, c, slice, pol, n)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveAllocAttempts(cellIdx, model.Uplink, s.ulAttempts-attemptsBefore)
		s.metrics.ObserveGrants(cellIdx, model.Uplink, sum.Retxs, sum.NewTxs, rbsBefore-slice.RemainingRBs())
	}
	return sum
}

// maxPDCCHCandidates is the number of DCIs of one direction that still fit in
// the CORESET, assuming aggregation level 2 and half of the CCEs per direction.
func maxPDCCHCandidates(cfg *core.CellConfig, pdcchsInGrid int) int {
	n := (cfg.CoresetCCEs / 2) / model.AggregationLevel2.NofCCEs()
	return max(n-pdcchsInGrid, 0)
}

func (s *IntraSliceScheduler) maxPDSCHsToAlloc(pdcchSlot model.SlotPoint, c *cellResources, slice *DLSliceCandidate) int {
	n := slice.UEs().Len()

	pdsch := &c.grid.AtSlot(slice.SlotTx()).Result.DL
	n = min(n, model.MaxUEPDUsPerSlot-len(pdsch.UEGrants))
	if n <= 0 {
		return 0
	}

	pdcch := &c.grid.AtSlot(pdcchSlot).Result.DL
	n = min(n,
		model.MaxDLPDCCHPDUsPerSlot-len(pdcch.DLPDCCHs),
		s.expert.MaxPDCCHAllocAttemptsPerSlot-s.dlAttempts,
		maxPDCCHCandidates(c.grid.Config(), len(pdcch.DLPDCCHs)),
	)
	if n <= 0 {
		return 0
	}

	maxPDSCHs := min(model.MaxDLPDUsPerSlot, s.expert.MaxPDSCHsPerSlot)
	n = min(n, maxPDSCHs-pdsch.NofPDSCHs())
	if n <= 0 {
		return 0
	}

	// At least one RB per UE.
	return max(min(n, slice.RemainingRBs()), 0)
}

func (s *IntraSliceScheduler) maxPUSCHsToAlloc(pdcchSlot model.SlotPoint, c *cellResources, slice *ULSliceCandidate) int {
	n := slice.UEs().Len()

	pusch := &c.grid.AtSlot(slice.SlotTx()).Result.UL
	maxPUSCHs := min(model.MaxPUSCHPDUsPerSlot, s.expert.MaxPUSCHsPerSlot)
	n = min(n, maxPUSCHs-len(pusch.PUSCHs))
	if n <= 0 {
		return 0
	}

	// At least one RB per UE.
	n = min(n, slice.RemainingRBs())
	if n <= 0 {
		return 0
	}

	pdcch := &c.grid.AtSlot(pdcchSlot).Result.DL
	n = min(n,
		model.MaxULPDCCHPDUsPerSlot-len(pdcch.ULPDCCHs),
		s.expert.MaxPDCCHAllocAttemptsPerSlot-s.ulAttempts,
		maxPDCCHCandidates(c.grid.Config(), len(pdcch.ULPDCCHs)),
	)
	return max(n, 0)
}

func (s *IntraSliceScheduler) canAllocatePDSCH(pdcchSlot, pdschSlot model.SlotPoint, c *cellResources, u *ue.SliceUE, ucell *ue.Cell) bool {
	if !ucell.IsPDCCHEnabled(pdcchSlot) {
		return false
	}
	if !pdcchSlot.Equal(pdschSlot) && !ucell.IsPDSCHEnabled(pdschSlot) {
		return false
	}
	// A retransmission earlier in the slot may already have served the UE.
	for _, g := range c.grid.AtSlot(pdschSlot).Result.DL.UEGrants {
		if g.RNTI == u.CRNTI() {
			return false
		}
	}
	return true
}

func (s *IntraSliceScheduler) canAllocatePUSCH(pdcchSlot, puschSlot model.SlotPoint, c *cellResources, u *ue.SliceUE, ucell *ue.Cell) bool {
	if !ucell.IsPDCCHEnabled(pdcchSlot) {
		return false
	}
	if !ucell.IsULEnabled(puschSlot) {
		return false
	}
	for _, g := range c.grid.AtSlot(puschSlot).Result.UL.PUSCHs {
		if g.RNTI == u.CRNTI() {
			return false
		}
	}
	return true
}

func (s *IntraSliceScheduler) scheduleDLRetxCandidates(pdcchSlot model.SlotPoint, c *cellResources, slice *DLSliceCandidate, maxGrants int) int {
	pdschSlot := slice.SlotTx()
	count := 0
	// The pending list shrinks as retransmissions are allocated; the iterator
	// has already moved past the yielded process.
	for h := range c.harqs.PendingDLRetxs() {
		if h.GrantParams().Slice != slice.ID() {
			continue
		}
		u, ok := slice.UEs().Get(h.UEIndex())
		if !ok {
			continue
		}
		ucell := u.FindCell(c.index)
		if ucell == nil || !s.canAllocatePDSCH(pdcchSlot, pdschSlot, c, u, ucell) {
			continue
		}

		res := s.alloc.AllocateDLGrant(c.index, slice, GrantRequest{UE: u, Cell: c.index, HARQID: h.ID()})
		s.dlAttempts++
		if res.Status == model.AllocSkipSlot {
			s.observeSkipSlot(c.index, model.Downlink)
			break
		}
		if res.Status == model.AllocSuccess {
			slice.StoreGrant(res.NofRBs)
			if count++; count >= maxGrants {
				break
			}
		}
		if s.dlAttempts >= s.expert.MaxPDCCHAllocAttemptsPerSlot {
			break
		}
	}
	return count
}

func (s *IntraSliceScheduler) scheduleULRetxCandidates(pdcchSlot model.SlotPoint, c *cellResources, slice *ULSliceCandidate, maxGrants int) int {
	puschSlot := slice.SlotTx()
	count := 0
	for h := range c.harqs.PendingULRetxs() {
		if h.GrantParams().Slice != slice.ID() {
			continue
		}
		u, ok := slice.UEs().Get(h.UEIndex())
		if !ok {
			continue
		}
		ucell := u.FindCell(c.index)
		if ucell == nil || !s.canAllocatePUSCH(pdcchSlot, puschSlot, c, u, ucell) {
			continue
		}

		res := s.alloc.AllocateULGrant(c.index, slice, GrantRequest{UE: u, Cell: c.index, HARQID: h.ID()})
		s.ulAttempts++
		if res.Status == model.AllocSkipSlot {
			s.observeSkipSlot(c.index, model.Uplink)
			break
		}
		if res.Status == model.AllocSuccess {
			slice.StoreGrant(res.NofRBs)
			if count++; count >= maxGrants {
				break
			}
		}
		if s.ulAttempts >= s.expert.MaxPDCCHAllocAttemptsPerSlot {
			break
		}
	}
	return count
}

func (s *IntraSliceScheduler) createNewTxDLCandidate(pdcchSlot, pdschSlot model.SlotPoint, c *cellResources, u *ue.SliceUE) (policy.Candidate, bool) {
	ucell := u.FindCell(c.index)
	if ucell == nil || !ucell.IsActive() || ucell.IsInFallbackMode() {
		return policy.Candidate{}, false
	}
	if !s.canAllocatePDSCH(pdcchSlot, pdschSlot, c, u, ucell) {
		return policy.Candidate{}, false
	}
	if !ucell.HARQs.HasEmptyDLHARQs() {
		if _, pending := ucell.HARQs.FindPendingDLRetx(); !pending {
			s.warnHARQStarvation(c.index, model.Downlink, u)
		}
		return policy.Candidate{}, false
	}
	bytes := u.PendingDLNewTxBytes()
	if bytes == 0 {
		return policy.Candidate{}, false
	}
	return policy.Candidate{UE: u, Cell: ucell, PendingBytes: bytes, Priority: model.ForbidPriority}, true
}

func (s *IntraSliceScheduler) createNewTxULCandidate(pdcchSlot, puschSlot model.SlotPoint, c *cellResources, u *ue.SliceUE) (policy.Candidate, bool) {
	ucell := u.FindCell(c.index)
	if ucell == nil || !ucell.IsActive() || ucell.IsInFallbackMode() {
		return policy.Candidate{}, false
	}
	if !s.canAllocatePUSCH(pdcchSlot, puschSlot, c, u, ucell) {
		return policy.Candidate{}, false
	}
	if !ucell.HARQs.HasEmptyULHARQs() {
		if _, pending := ucell.HARQs.FindPendingULRetx(); !pending {
			s.warnHARQStarvation(c.index, model.Uplink, u)
		}
		return policy.Candidate{}, false
	}
	bytes := u.PendingULNewTxBytes()
	if bytes == 0 {
		return policy.Candidate{}, false
	}
	return policy.Candidate{UE: u, Cell: ucell, PendingBytes: bytes, Priority: model.ForbidPriority}, true
}

func (s *IntraSliceScheduler) warnHARQStarvation(cell model.CellIndex, dir model.Direction, u *ue.SliceUE) {
	if s.metrics != nil {
		s.metrics.ObserveHARQStarvation(cell, dir)
	}
	if !s.starvationWarn.Allow() {
		return
	}
	what := "PDSCH"
	feedback := "HARQ-ACK"
	if dir == model.Uplink {
		what, feedback = "PUSCH", "CRC"
	}
	s.log.Warn(context.Background(),
		what+" allocation skipped: every HARQ process is waiting for its "+feedback+"; feedback may be lost or late in the lower layers",
		logging.Any("cell", cell),
		logging.Any("ue", u.Index()),
		logging.Stringer("rnti", u.CRNTI()),
	)
}

// rankCandidates applies the policy priorities, orders the candidates from
// highest to lowest priority and drops the vetoed tail.
func rankCandidates(cands []policy.Candidate) []policy.Candidate {
	slices.SortStableFunc(cands, func(a, b policy.Candidate) int {
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		default:
			return 0
		}
	})
	end := len(cands)
	for end > 0 && cands[end-1].Priority == model.ForbidPriority {
		end--
	}
	return cands[:end]
}

func (s *IntraSliceScheduler) prepareDLCandidates(pdcchSlot model.SlotPoint, c *cellResources, slice *DLSliceCandidate, pol policy.Policy) {
	pdschSlot := slice.SlotTx()
	s.dlCands = s.dlCands[:0]
	for _, u := range slice.UEs().UEs() {
		if cand, ok := s.createNewTxDLCandidate(pdcchSlot, pdschSlot, c, u); ok {
			s.dlCands = append(s.dlCands, cand)
		}
	}
	if len(s.dlCands) == 0 {
		return
	}
	pol.ComputeUEDLPriorities(pdcchSlot, pdschSlot, c.index, s.dlCands)
	s.dlCands = rankCandidates(s.dlCands)
}

func (s *IntraSliceScheduler) prepareULCandidates(pdcchSlot model.SlotPoint, c *cellResources, slice *ULSliceCandidate, pol policy.Policy) {
	puschSlot := slice.SlotTx()
	s.ulCands = s.ulCands[:0]
	for _, u := range slice.UEs().UEs() {
		if cand, ok := s.createNewTxULCandidate(pdcchSlot, puschSlot, c, u); ok {
			s.ulCands = append(s.ulCands, cand)
		}
	}
	if len(s.ulCands) == 0 {
		return
	}
	pol.ComputeUEULPriorities(pdcchSlot, puschSlot, c.index, s.ulCands)
	s.ulCands = rankCandidates(s.ulCands)
}

// grantSizing returns the RBs to hand out in this opportunity and the
// recommended size of each grant.
func grantSizing(nofCands, maxGrants, bwpRBs, pdcchsInGrid int, cfg *core.CellConfig, remainingRBs int) (rbsToAlloc, maxRBsPerGrant int) {
	expected := min(maxGrants, min(max(nofCands/4, 1), 8))
	expected = min(expected, maxPDCCHCandidates(cfg, pdcchsInGrid))
	if expected <= 0 {
		return 0, 0
	}
	rbsToAlloc = min(bwpRBs, remainingRBs)
	return rbsToAlloc, max((rbsToAlloc+expected-1)/expected, 4)
}

// nextGrantSize returns the RB ceiling of the next grant. The grant that would
// leave less than two regular grants of budget takes everything remaining.
func nextGrantSize(rbsToAlloc, maxRBsPerGrant, count, rbsMissing, remaining int) int {
	allocated := count*maxRBsPerGrant - rbsMissing
	if rbsToAlloc-allocated < 2*maxRBsPerGrant {
		return remaining
	}
	return min(max(maxRBsPerGrant+rbsMissing, 0), remaining)
}

func (s *IntraSliceScheduler) scheduleDLNewTxCandidates(pdcchSlot model.SlotPoint, c *cellResources, slice *DLSliceCandidate, pol policy.Policy, maxGrants int) int {
	s.prepareDLCandidates(pdcchSlot, c, slice, pol)
	if len(s.dlCands) == 0 {
		return 0
	}

	cfg := c.grid.Config()
	pdcchs := len(c.grid.AtSlot(pdcchSlot).Result.DL.DLPDCCHs)
	rbsToAlloc, maxRBsPerGrant := grantSizing(len(s.dlCands), maxGrants, cfg.DLBandwidthRBs, pdcchs, cfg, slice.RemainingRBs())
	if maxRBsPerGrant == 0 {
		return 0
	}

	count, rbsMissing := 0, 0
	for _, cand := range s.dlCands {
		size := nextGrantSize(rbsToAlloc, maxRBsPerGrant, count, rbsMissing, slice.RemainingRBs())
		if size == 0 {
			break
		}
		res := s.alloc.AllocateDLGrant(c.index, slice, GrantRequest{
			UE:               cand.UE,
			Cell:             c.index,
			HARQID:           model.InvalidHARQID,
			RecommendedBytes: cand.PendingBytes,
			MaxRBs:           size,
		})
		s.dlAttempts++
		if res.Status == model.AllocSkipSlot {
			s.observeSkipSlot(c.index, model.Downlink)
			break
		}
		if res.Status == model.AllocSuccess {
			slice.StoreGrant(res.NofRBs)
			if count++; count >= maxGrants {
				break
			}
			rbsMissing += maxRBsPerGrant - res.NofRBs
		}
		if s.dlAttempts >= s.expert.MaxPDCCHAllocAttemptsPerSlot {
			break
		}
	}

	grants := c.grid.AtSlot(slice.SlotTx()).Result.DL.UEGrants
	pol.SaveDLNewTxGrants(grants[len(grants)-count:])
	return count
}

func (s *IntraSliceScheduler) scheduleULNewTxCandidates(pdcchSlot model.SlotPoint, c *cellResources, slice *ULSliceCandidate, pol policy.Policy, maxGrants int) int {
	s.prepareULCandidates(pdcchSlot, c, slice, pol)
	if len(s.ulCands) == 0 {
		return 0
	}

	cfg := c.grid.Config()
	pdcchs := len(c.grid.AtSlot(pdcchSlot).Result.DL.ULPDCCHs)
	rbsToAlloc, maxRBsPerGrant := grantSizing(len(s.ulCands), maxGrants, cfg.ULBandwidthRBs, pdcchs, cfg, slice.RemainingRBs())
	if maxRBsPerGrant == 0 {
		return 0
	}

	count, rbsMissing := 0, 0
	for _, cand := range s.ulCands {
		size := nextGrantSize(rbsToAlloc, maxRBsPerGrant, count, rbsMissing, slice.RemainingRBs())
		if size == 0 {
			break
		}
		res := s.alloc.AllocateULGrant(c.index, slice, GrantRequest{
			UE:               cand.UE,
			Cell:             c.index,
			HARQID:           model.InvalidHARQID,
			RecommendedBytes: cand.PendingBytes,
			MaxRBs:           size,
		})
		s.ulAttempts++
		if res.Status == model.AllocSkipSlot {
			s.observeSkipSlot(c.index, model.Uplink)
			break
		}
		if res.Status == model.AllocSuccess {
			slice.StoreGrant(res.NofRBs)
			if count++; count >= maxGrants {
				break
			}
			rbsMissing += maxRBsPerGrant - res.NofRBs
		}
		if s.ulAttempts >= s.expert.MaxPDCCHAllocAttemptsPerSlot {
			break
		}
	}

	grants := c.grid.AtSlot(slice.SlotTx()).Result.UL.PUSCHs
	pol.SaveULNewTxGrants(grants[len(grants)-count:])
	return count
}

func (s *IntraSliceScheduler) observeSkipSlot(cell model.CellIndex, dir model.Direction) {
	if s.metrics != nil {
		s.metrics.ObserveSkipSlot(cell, dir)
	}
}
