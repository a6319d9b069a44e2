package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// SchedulerCollector exposes per-cell scheduling metrics. It satisfies the
// scheduler's metrics recorder and the HARQ event recorder. All methods are
// safe on a nil receiver.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	Grants         *prometheus.CounterVec
	RBs            *prometheus.CounterVec
	AllocAttempts  *prometheus.CounterVec
	SkippedSlots   *prometheus.CounterVec
	HARQStarvation *prometheus.CounterVec
	HARQTimeouts   *prometheus.CounterVec
	HARQDiscards   *prometheus.CounterVec
	SlotDuration   *prometheus.HistogramVec
}

// NewSchedulerCollector registers scheduler metrics against reg.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SchedulerCollector{gatherer: gatherer}
	var err error

	if c.Grants, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_sched_grants_total",
		Help: "UE grants allocated by the intra-slice scheduler.",
	}, []string{"cell", "direction", "kind"})); err != nil {
		return nil, err
	}
	if c.RBs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_sched_rbs_total",
		Help: "Resource blocks handed out in UE grants.",
	}, []string{"cell", "direction"})); err != nil {
		return nil, err
	}
	if c.AllocAttempts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_sched_alloc_attempts_total",
		Help: "Grant allocation attempts, successful or not.",
	}, []string{"cell", "direction"})); err != nil {
		return nil, err
	}
	if c.SkippedSlots, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_sched_skipped_slots_total",
		Help: "Scheduling passes abandoned because the slot could not take more grants.",
	}, []string{"cell", "direction"})); err != nil {
		return nil, err
	}
	if c.HARQStarvation, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_sched_harq_starvation_total",
		Help: "UEs with pending data skipped because every HARQ process was busy.",
	}, []string{"cell", "direction"})); err != nil {
		return nil, err
	}
	if c.HARQTimeouts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_harq_timeouts_total",
		Help: "HARQ processes whose feedback never arrived.",
	}, []string{"direction"})); err != nil {
		return nil, err
	}
	if c.HARQDiscards, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnb_harq_discards_total",
		Help: "HARQ processes released after exhausting their retransmissions.",
	}, []string{"direction"})); err != nil {
		return nil, err
	}
	if c.SlotDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gnb_sched_slot_duration_seconds",
		Help:    "Wall time spent scheduling one slot of a cell.",
		Buckets: []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005},
	}, []string{"cell"})); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the gatherer associated with the registry used at construction.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func cellLabel(cell model.CellIndex) string {
	return strconv.Itoa(int(cell))
}

// ObserveGrants counts the grants and RBs of one slice pass.
func (c *SchedulerCollector) ObserveGrants(cell model.CellIndex, dir model.Direction, retxs, newTxs, rbs int) {
	if c == nil {
		return
	}
	cl, d := cellLabel(cell), dir.String()
	if retxs > 0 {
		c.Grants.WithLabelValues(cl, d, "retx").Add(float64(retxs))
	}
	if newTxs > 0 {
		c.Grants.WithLabelValues(cl, d, "newtx").Add(float64(newTxs))
	}
	if rbs > 0 {
		c.RBs.WithLabelValues(cl, d).Add(float64(rbs))
	}
}

func (c *SchedulerCollector) ObserveAllocAttempts(cell model.CellIndex, dir model.Direction, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.AllocAttempts.WithLabelValues(cellLabel(cell), dir.String()).Add(float64(n))
}

func (c *SchedulerCollector) ObserveSkipSlot(cell model.CellIndex, dir model.Direction) {
	if c == nil {
		return
	}
	c.SkippedSlots.WithLabelValues(cellLabel(cell), dir.String()).Inc()
}

func (c *SchedulerCollector) ObserveHARQStarvation(cell model.CellIndex, dir model.Direction) {
	if c == nil {
		return
	}
	c.HARQStarvation.WithLabelValues(cellLabel(cell), dir.String()).Inc()
}

func (c *SchedulerCollector) ObserveSlotDuration(cell model.CellIndex, d time.Duration) {
	if c == nil {
		return
	}
	c.SlotDuration.WithLabelValues(cellLabel(cell)).Observe(d.Seconds())
}

func (c *SchedulerCollector) ObserveHARQTimeout(dir model.Direction) {
	if c == nil {
		return
	}
	c.HARQTimeouts.WithLabelValues(dir.String()).Inc()
}

func (c *SchedulerCollector) ObserveHARQDiscard(dir model.Direction) {
	if c == nil {
		return
	}
	c.HARQDiscards.WithLabelValues(dir.String()).Inc()
}
