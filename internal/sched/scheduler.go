package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/internal/eventq"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/ue"
)

var (
	// ErrUnknownCell is returned for requests addressing a cell the DU does not run.
	ErrUnknownCell = errors.New("unknown cell")
	// ErrInvalidUEConfig is returned when a UE configuration cannot be applied.
	ErrInvalidUEConfig = errors.New("invalid ue configuration")
	// ErrDUFull is returned when every UE index is in use.
	ErrDUFull = errors.New("no free ue index")
)

// CellSetup is the configuration of one cell of the DU.
type CellSetup struct {
	Config core.CellConfig
	Slices []SliceConfig
}

// LogicalChannelConfig maps a bearer of a UE to its LCG and slice.
type LogicalChannelConfig struct {
	LCID  model.LCID
	LCG   model.LCGID
	Slice model.SliceID
}

// UEConfig describes a UE to admit. Cells lists the serving cells, PCell
// first; an empty list selects the first cell of the DU.
type UEConfig struct {
	CRNTI           model.RNTI
	Cells           []model.CellIndex
	LogicalChannels []LogicalChannelConfig
	SearchSpace     ue.SearchSpace
}

// UESummary is the published view of a UE.
type UESummary struct {
	Index          model.UEIndex
	CRNTI          model.RNTI
	Cells          []model.CellIndex
	DLPendingBytes int
	ULPendingBytes int
	SRPending      bool
	CQI            uint8
}

// Scheduler is the DU-level MAC scheduler. Control and feedback entry points
// are safe for concurrent use: they validate what they can synchronously and
// queue the change, which is applied on the scheduling goroutine at the next
// slot boundary. RunSlot must be called from a single goroutine.
type Scheduler struct {
	log     logging.Logger
	metrics MetricsRecorder
	expert  ExpertConfig

	harqOpts    []harq.Option
	intraOpts   []IntraSliceOption
	cells       [model.MaxNofCells]*CellScheduler
	cellOrder   []model.CellIndex
	ues         *ue.Repository
	events      *eventq.Queue
	admissionMu sync.Mutex

	ueSummaries atomic.Pointer[[]UESummary]
	ueDirty     atomic.Bool
}

// Option customises Scheduler construction.
type Option func(*Scheduler)

// WithSchedulerLogger attaches a structured logger.
func WithSchedulerLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches a metrics sink for scheduling outcomes.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithExpertConfig overrides DefaultExpertConfig.
func WithExpertConfig(cfg ExpertConfig) Option {
	return func(s *Scheduler) { s.expert = cfg }
}

// WithHARQOptions forwards options to every cell HARQ manager.
func WithHARQOptions(opts ...harq.Option) Option {
	return func(s *Scheduler) { s.harqOpts = append(s.harqOpts, opts...) }
}

// WithIntraSliceOptions forwards options to the intra-slice scheduler of
// every cell.
func WithIntraSliceOptions(opts ...IntraSliceOption) Option {
	return func(s *Scheduler) { s.intraOpts = append(s.intraOpts, opts...) }
}

// NewScheduler builds a DU scheduler running the given cells.
func NewScheduler(cells []CellSetup, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		log:    logging.Noop(),
		expert: DefaultExpertConfig(),
		ues:    ue.NewRepository(),
		events: eventq.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: no cells", core.ErrInvalidCellConfig)
	}
	intraOpts := append([]IntraSliceOption{WithLogger(s.log), WithMetricsRecorder(s.metrics)}, s.intraOpts...)
	for _, setup := range cells {
		idx := setup.Config.Index
		if int(idx) < model.MaxNofCells && s.cells[idx] != nil {
			return nil, fmt.Errorf("%w: cell %d configured twice", core.ErrInvalidCellConfig, idx)
		}
		intra := NewIntraSliceScheduler(s.expert, intraOpts...)
		c, err := NewCellScheduler(setup.Config, setup.Slices, intra, s.log, s.metrics, s.harqOpts...)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", idx, err)
		}
		s.cells[idx] = c
		s.cellOrder = append(s.cellOrder, idx)
	}
	empty := []UESummary{}
	s.ueSummaries.Store(&empty)
	return s, nil
}

// Cell returns the scheduler of a cell.
func (s *Scheduler) Cell(idx model.CellIndex) (*CellScheduler, bool) {
	if int(idx) >= model.MaxNofCells || s.cells[idx] == nil {
		return nil, false
	}
	return s.cells[idx], true
}

// Cells returns the cell indexes of the DU in configuration order.
func (s *Scheduler) Cells() []model.CellIndex { return s.cellOrder }

// Events returns the queue of work applied at slot boundaries.
func (s *Scheduler) Events() *eventq.Queue { return s.events }

// UEs returns the UE repository.
func (s *Scheduler) UEs() *ue.Repository { return s.ues }

// RunSlot applies the queued inputs and schedules every cell for sl. It
// returns the results of the transmission slot, one per cell.
func (s *Scheduler) RunSlot(sl model.SlotPoint) []model.SlotResult {
	start := time.Now()
	s.events.RunDue(sl)

	for _, idx := range s.cellOrder {
		c := s.cells[idx]
		c.slotIndication(sl)
		c.intra.SlotIndication(sl)
	}
	for _, idx := range s.cellOrder {
		s.cells[idx].schedule(sl)
	}
	for _, idx := range s.cellOrder {
		s.cells[idx].intra.PostProcessResults()
	}

	results := make([]model.SlotResult, 0, len(s.cellOrder))
	for _, idx := range s.cellOrder {
		results = append(results, s.cells[idx].publish(sl, time.Since(start)))
	}
	if sl.SlotIndex() == 0 || s.ueDirty.Swap(false) {
		s.publishUEs()
	}
	return results
}

func (s *Scheduler) publishUEs() {
	list := s.ues.List()
	out := make([]UESummary, 0, len(list))
	for _, u := range list {
		sum := UESummary{
			Index:          u.Index(),
			CRNTI:          u.CRNTI(),
			DLPendingBytes: u.TotalDLPendingBytes(),
			ULPendingBytes: u.TotalULPendingBytes(),
			SRPending:      u.SRPending(),
		}
		for _, c := range u.Cells() {
			sum.Cells = append(sum.Cells, c.CellIndex())
		}
		if pc := u.PCell(); pc != nil {
			sum.CQI = pc.CQI()
		}
		out = append(out, sum)
	}
	s.ueSummaries.Store(&out)
}

// ListUEs returns the UE summaries published at the last frame boundary or
// admission change. Safe for concurrent use.
func (s *Scheduler) ListUEs() []UESummary { return *s.ueSummaries.Load() }

// Snapshot returns the last published state of a cell.
func (s *Scheduler) Snapshot(cell model.CellIndex) (*CellSnapshot, error) {
	c, ok := s.Cell(cell)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCell, cell)
	}
	return c.Snapshot(), nil
}

func (s *Scheduler) validateUEConfig(cfg UEConfig) ([]model.CellIndex, error) {
	if cfg.CRNTI < model.MinCRNTI || cfg.CRNTI > model.MaxCRNTI {
		return nil, fmt.Errorf("%w: c-rnti %s out of range", ErrInvalidUEConfig, cfg.CRNTI)
	}
	cells := cfg.Cells
	if len(cells) == 0 {
		cells = s.cellOrder[:1]
	}
	for _, idx := range cells {
		c, ok := s.Cell(idx)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCell, idx)
		}
		for _, lc := range cfg.LogicalChannels {
			if c.findSlice(lc.Slice) == nil {
				return nil, fmt.Errorf("%w: %w: slice %d in cell %d", ErrInvalidUEConfig, ErrUnknownSlice, lc.Slice, idx)
			}
		}
		if len(cfg.LogicalChannels) == 0 && c.findSlice(model.DefaultSliceID) == nil {
			return nil, fmt.Errorf("%w: ue without bearers needs slice %d in cell %d", ErrInvalidUEConfig, model.DefaultSliceID, idx)
		}
	}
	for _, lc := range cfg.LogicalChannels {
		if int(lc.LCG) >= ue.MaxNofLCGs {
			return nil, fmt.Errorf("%w: lcg %d", ErrInvalidUEConfig, lc.LCG)
		}
	}
	return cells, nil
}

// AddUE admits a UE and returns its index. The UE is registered immediately;
// its cell state is created at the next slot boundary.
func (s *Scheduler) AddUE(cfg UEConfig) (model.UEIndex, error) {
	cells, err := s.validateUEConfig(cfg)
	if err != nil {
		return 0, err
	}

	s.admissionMu.Lock()
	idx, ok := s.ues.NextFreeIndex()
	if !ok {
		s.admissionMu.Unlock()
		return 0, ErrDUFull
	}
	u := ue.New(idx, cfg.CRNTI)
	for _, lc := range cfg.LogicalChannels {
		u.ConfigureLogicalChannel(lc.LCID, lc.LCG, lc.Slice)
	}
	err = s.ues.Add(u)
	s.admissionMu.Unlock()
	if err != nil {
		return 0, err
	}

	ss := cfg.SearchSpace
	s.events.Post(func() {
		for _, cell := range cells {
			if err := s.cells[cell].addUE(u, ss); err != nil {
				s.log.Error(context.Background(), "ue cell setup failed",
					logging.Any("ue", idx), logging.Any("cell", cell), logging.Err(err))
			}
		}
		s.ueDirty.Store(true)
	})
	s.log.Info(context.Background(), "ue admitted",
		logging.Any("ue", idx), logging.Stringer("rnti", cfg.CRNTI), logging.Int("cells", len(cells)))
	return idx, nil
}

// RemoveUE releases a UE. Its index and C-RNTI are free for reuse once the
// call returns; scheduling state is dropped at the next slot boundary.
func (s *Scheduler) RemoveUE(idx model.UEIndex) error {
	u, err := s.ues.Remove(idx)
	if err != nil {
		return err
	}
	s.events.Post(func() {
		for _, c := range u.Cells() {
			if cs, ok := s.Cell(c.CellIndex()); ok {
				cs.removeUE(idx)
			}
		}
		s.ueDirty.Store(true)
	})
	s.log.Info(context.Background(), "ue removed", logging.Any("ue", idx), logging.Stringer("rnti", u.CRNTI()))
	return nil
}

func (s *Scheduler) findUE(idx model.UEIndex) (*ue.UE, error) {
	u := s.ues.Find(idx)
	if u == nil {
		return nil, fmt.Errorf("%w: ue=%d", ue.ErrUENotFound, idx)
	}
	return u, nil
}

// postUE queues f for a UE that must still be registered when it runs.
func (s *Scheduler) postUE(idx model.UEIndex, what string, f func(u *ue.UE) error) error {
	u, err := s.findUE(idx)
	if err != nil {
		return err
	}
	s.events.Post(func() {
		if s.ues.Find(idx) != u {
			return
		}
		if err := f(u); err != nil {
			s.log.Warn(context.Background(), what+" dropped", logging.Any("ue", idx), logging.Err(err))
		}
	})
	return nil
}

// HandleDLBufferState updates the pending DL bytes of a bearer.
func (s *Scheduler) HandleDLBufferState(idx model.UEIndex, lcid model.LCID, bytes int) error {
	if u := s.ues.Find(idx); u != nil && !u.HasLogicalChannel(lcid) {
		return fmt.Errorf("%w: ue=%d lcid=%d", ue.ErrUnknownLogicalChannel, idx, lcid)
	}
	return s.postUE(idx, "dl buffer state", func(u *ue.UE) error {
		return u.HandleDLBufferState(lcid, bytes)
	})
}

// HandleULBSR updates the UL buffer reported for a logical channel group.
func (s *Scheduler) HandleULBSR(idx model.UEIndex, lcg model.LCGID, bytes int) error {
	return s.postUE(idx, "bsr", func(u *ue.UE) error {
		return u.HandleBSR(lcg, bytes)
	})
}

// HandleSR records a scheduling request.
func (s *Scheduler) HandleSR(idx model.UEIndex) error {
	return s.postUE(idx, "sr", func(u *ue.UE) error {
		u.HandleSR()
		return nil
	})
}

// HandleDLACK applies a HARQ-ACK report.
func (s *Scheduler) HandleDLACK(cell model.CellIndex, idx model.UEIndex, h model.HARQID, ack bool) error {
	c, ok := s.Cell(cell)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCell, cell)
	}
	return s.postUE(idx, "harq-ack", func(*ue.UE) error {
		return c.harqs.DLAck(idx, h, ack)
	})
}

// HandleULCRC applies the CRC outcome of a PUSCH.
func (s *Scheduler) HandleULCRC(cell model.CellIndex, idx model.UEIndex, h model.HARQID, ok bool) error {
	c, found := s.Cell(cell)
	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownCell, cell)
	}
	return s.postUE(idx, "crc", func(*ue.UE) error {
		return c.harqs.ULCRC(idx, h, ok)
	})
}

// HandleCQI applies a wideband CQI report.
func (s *Scheduler) HandleCQI(cell model.CellIndex, idx model.UEIndex, cqi uint8) error {
	if _, ok := s.Cell(cell); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCell, cell)
	}
	if cqi > 15 {
		return fmt.Errorf("%w: cqi %d", ErrInvalidUEConfig, cqi)
	}
	return s.postUE(idx, "cqi", func(u *ue.UE) error {
		uc := u.FindCell(cell)
		if uc == nil {
			return fmt.Errorf("%w: ue=%d cell=%d", ErrUnknownCell, idx, cell)
		}
		uc.HandleCQI(cqi)
		return nil
	})
}

// EnqueuePaging queues a paging record on a cell.
func (s *Scheduler) EnqueuePaging(cell model.CellIndex, pagingID uint64) error {
	c, ok := s.Cell(cell)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCell, cell)
	}
	s.events.Post(func() { c.EnqueuePaging(pagingID) })
	return nil
}
