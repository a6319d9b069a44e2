package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/internal/config"
	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/internal/observability"
	"github.com/signalsfoundry/gnb-scheduler/internal/sched"
	"github.com/signalsfoundry/gnb-scheduler/internal/tracestore"
	"github.com/signalsfoundry/gnb-scheduler/model"
	"github.com/signalsfoundry/gnb-scheduler/timectrl"
)

// DefaultLCID is the bearer given to scenario UEs configured without one.
const DefaultLCID model.LCID = 4

// Stats summarises a run.
type Stats struct {
	RunID          string
	Slots          int
	DLGrants       int
	ULGrants       int
	DLRetxs        int
	ULRetxs        int
	DLBytes        int64
	ULBytes        int64
	SIBs           int
	PagingGrants   int
	OfferedDLBytes int64
	OfferedULBytes int64
	Feedback       FeedbackStats
	Elapsed        time.Duration
}

func (s *Stats) add(res *model.SlotResult) {
	for _, g := range res.DL.UEGrants {
		s.DLGrants++
		if g.IsRetx {
			s.DLRetxs++
		} else {
			s.DLBytes += int64(g.TBSBytes)
		}
	}
	for _, g := range res.UL.PUSCHs {
		s.ULGrants++
		if g.IsRetx {
			s.ULRetxs++
		} else {
			s.ULBytes += int64(g.TBSBytes)
		}
	}
	s.SIBs += len(res.DL.SIBs)
	s.PagingGrants += len(res.DL.PagingGrants)
}

// Runner wires a slot clock, the scheduler, the traffic and feedback
// emulators, and the optional trace store and telemetry.
type Runner struct {
	log      logging.Logger
	scn      *config.Scenario
	sched    *sched.Scheduler
	clock    *timectrl.SlotClock
	traffic  *TrafficGenerator
	feedback *FeedbackEmulator
	store    *tracestore.Store
	metrics  *observability.SchedulerCollector
	ops      *observability.OpsCollector

	mode        timectrl.Mode
	feedbackOpt []FeedbackOption
	schedOpts   []sched.Option

	mu     sync.Mutex
	stats  Stats
	err    error
	cancel context.CancelFunc
}

// RunnerOption customises NewRunner.
type RunnerOption func(*Runner)

func WithRunnerLogger(l logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithSchedulerCollector exports scheduling and HARQ metrics.
func WithSchedulerCollector(c *observability.SchedulerCollector) RunnerOption {
	return func(r *Runner) { r.metrics = c }
}

// WithOpsCollector keeps the scheduler gauges current.
func WithOpsCollector(c *observability.OpsCollector) RunnerOption {
	return func(r *Runner) { r.ops = c }
}

// WithTraceStore records every slot result.
func WithTraceStore(st *tracestore.Store) RunnerOption {
	return func(r *Runner) { r.store = st }
}

// WithClockMode selects real-time or accelerated pacing.
func WithClockMode(m timectrl.Mode) RunnerOption {
	return func(r *Runner) { r.mode = m }
}

func WithFeedbackOptions(opts ...FeedbackOption) RunnerOption {
	return func(r *Runner) { r.feedbackOpt = append(r.feedbackOpt, opts...) }
}

// WithSchedulerOptions forwards options to sched.NewScheduler.
func WithSchedulerOptions(opts ...sched.Option) RunnerOption {
	return func(r *Runner) { r.schedOpts = append(r.schedOpts, opts...) }
}

// NewRunner builds the scheduler for scn and admits its UEs.
func NewRunner(scn *config.Scenario, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{log: logging.Noop(), scn: scn, mode: timectrl.Accelerated}
	for _, opt := range opts {
		opt(r)
	}

	harqOpts := scn.HARQOptions()
	schedOpts := []sched.Option{
		sched.WithSchedulerLogger(r.log),
		sched.WithExpertConfig(scn.ExpertConfig()),
	}
	if r.metrics != nil {
		schedOpts = append(schedOpts, sched.WithMetrics(r.metrics))
		harqOpts = append(harqOpts, harq.WithEventRecorder(r.metrics))
	}
	schedOpts = append(schedOpts, sched.WithHARQOptions(harqOpts...))
	schedOpts = append(schedOpts, r.schedOpts...)

	s, err := sched.NewScheduler(scn.CellSetups(), schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	r.sched = s

	name := scn.Name
	r.traffic = NewTrafficGenerator(name+"/traffic", DefaultPacketBytes)
	r.feedback = NewFeedbackEmulator(name+"/feedback", s.Events(), s, r.feedbackOpt...)

	mu := scn.Numerology()
	for _, u := range scn.UEs {
		ucfg := u.UEConfig()
		if len(ucfg.LogicalChannels) == 0 {
			ucfg.LogicalChannels = []sched.LogicalChannelConfig{{LCID: DefaultLCID, LCG: 1, Slice: model.DefaultSliceID}}
		}
		idx, err := s.AddUE(ucfg)
		if err != nil {
			return nil, fmt.Errorf("admit ue %#x: %w", u.CRNTI, err)
		}
		pcell := s.Cells()[0]
		if len(ucfg.Cells) > 0 {
			pcell = ucfg.Cells[0]
		}
		lc := ucfg.LogicalChannels[0]
		r.traffic.AddUE(UETraffic{
			UE:             idx,
			LCID:           lc.LCID,
			LCG:            lc.LCG,
			DLBytesPerSlot: BytesPerSlot(u.Traffic.DLBitrateKbps, mu),
			ULBytesPerSlot: BytesPerSlot(u.Traffic.ULBitrateKbps, mu),
		})
		r.feedback.SetChannel(idx, Channel{PCell: pcell, DLBLER: u.Traffic.DLBLER, ULBLER: u.Traffic.ULBLER, CQI: u.Traffic.CQI})
	}

	r.clock = timectrl.NewSlotClock(model.NewSlotPoint(mu, scn.StartSFN, 0), r.mode)
	r.clock.AddListener(r.step)
	if r.store != nil {
		r.stats.RunID = r.store.RunID()
	}
	return r, nil
}

// Scheduler exposes the running scheduler, for example to an ops server.
func (r *Runner) Scheduler() *sched.Scheduler { return r.sched }

// Clock returns the slot clock driving the run.
func (r *Runner) Clock() *timectrl.SlotClock { return r.clock }

// Traffic returns the traffic generator.
func (r *Runner) Traffic() *TrafficGenerator { return r.traffic }

// Stats returns a copy of the statistics gathered so far. Safe for
// concurrent use.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Run drives nofSlots slots, or slots until ctx is done when nofSlots is
// zero, and flushes the trace store.
func (r *Runner) Run(ctx context.Context, nofSlots int) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	start := time.Now()
	r.log.Info(ctx, "run started",
		logging.String("scenario", r.scn.Name),
		logging.Int("slots", nofSlots),
		logging.Stringer("mode", r.clock.Mode()),
		logging.Int("ues", r.sched.UEs().Len()),
	)

	_, runErr := r.clock.Run(ctx, nofSlots)
	if r.store != nil {
		if err := r.store.Flush(context.WithoutCancel(ctx)); err != nil && r.firstErr() == nil {
			r.fail(err)
		}
	}

	st := r.Stats()
	st.Elapsed = time.Since(start)
	if err := r.firstErr(); err != nil {
		return st, err
	}
	if runErr != nil && nofSlots > 0 {
		return st, runErr
	}
	r.log.Info(ctx, "run finished",
		logging.Int("slots", st.Slots),
		logging.Int("dl_grants", st.DLGrants),
		logging.Int("ul_grants", st.ULGrants),
		logging.Any("elapsed", st.Elapsed),
	)
	return st, nil
}

func (r *Runner) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *Runner) firstErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Runner) abort(ctx context.Context, err error) {
	r.fail(err)
	r.log.Error(ctx, "run aborted", logging.Err(err))
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// step runs one slot: traffic and CQI reports, scheduling, recording and
// feedback generation.
func (r *Runner) step(ctx context.Context, sl model.SlotPoint) {
	if r.firstErr() != nil {
		return
	}
	ctx, span := observability.StartSlotSpan(ctx, sl)
	defer span.End()

	if err := r.traffic.Tick(r.sched); err != nil {
		r.abort(ctx, fmt.Errorf("traffic at %s: %w", sl, err))
		return
	}
	r.feedback.ReportCQI(sl)

	results := r.sched.RunSlot(sl)
	cells := r.sched.Cells()

	var slotStats Stats
	for i := range results {
		res := &results[i]
		if r.store != nil {
			if err := r.store.RecordSlot(ctx, cells[i], res); err != nil {
				r.abort(ctx, fmt.Errorf("record slot %s: %w", sl, err))
				return
			}
		}
		r.feedback.OnResults(cells[i], res)
		if err := r.traffic.OnResults(res, r.sched); err != nil {
			r.abort(ctx, fmt.Errorf("buffer report at %s: %w", sl, err))
			return
		}
		slotStats.add(res)
	}

	span.SetAttributes(
		attribute.Int("grants.dl", slotStats.DLGrants),
		attribute.Int("grants.ul", slotStats.ULGrants),
		attribute.Int("grants.retx", slotStats.DLRetxs+slotStats.ULRetxs),
	)
	r.ops.SetSchedulerState(len(cells), r.sched.UEs().Len(), sl.Count())

	r.mu.Lock()
	r.stats.Slots++
	r.stats.DLGrants += slotStats.DLGrants
	r.stats.ULGrants += slotStats.ULGrants
	r.stats.DLRetxs += slotStats.DLRetxs
	r.stats.ULRetxs += slotStats.ULRetxs
	r.stats.DLBytes += slotStats.DLBytes
	r.stats.ULBytes += slotStats.ULBytes
	r.stats.SIBs += slotStats.SIBs
	r.stats.PagingGrants += slotStats.PagingGrants
	r.stats.OfferedDLBytes = r.traffic.OfferedDLBytes
	r.stats.OfferedULBytes = r.traffic.OfferedULBytes
	r.stats.Feedback = r.feedback.Stats
	r.mu.Unlock()

	if r.log.Enabled(ctx, slog.LevelDebug) {
		r.log.Debug(ctx, "slot done",
			logging.Stringer("slot", sl),
			logging.Int("dl_grants", slotStats.DLGrants),
			logging.Int("ul_grants", slotStats.ULGrants),
		)
	}
}
