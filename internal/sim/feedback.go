package sim

import (
	"github.com/iti/rngstream"

	"github.com/signalsfoundry/gnb-scheduler/internal/eventq"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

// DefaultCRCDelaySlots is the gap between a PUSCH and its decoding outcome.
const DefaultCRCDelaySlots = 1

// FeedbackSink receives emulated HARQ feedback and channel reports.
type FeedbackSink interface {
	HandleDLACK(cell model.CellIndex, idx model.UEIndex, h model.HARQID, ack bool) error
	HandleULCRC(cell model.CellIndex, idx model.UEIndex, h model.HARQID, ok bool) error
	HandleCQI(cell model.CellIndex, idx model.UEIndex, cqi uint8) error
}

// Channel is the link quality emulated for one UE.
type Channel struct {
	PCell  model.CellIndex
	DLBLER float64
	ULBLER float64
	CQI    uint8
}

// FeedbackStats counts the feedback produced so far.
type FeedbackStats struct {
	ACKs     int
	NACKs    int
	CRCOKs   int
	CRCFails int
	Lost     int
}

// FeedbackEmulator turns committed grants into HARQ-ACK and CRC reports that
// reach the scheduler in the slot the feedback would arrive over the air.
type FeedbackEmulator struct {
	rng       *rngstream.RngStream
	events    *eventq.Queue
	sink      FeedbackSink
	channels  map[model.UEIndex]Channel
	crcDelay  int
	lossRatio float64
	cqiPeriod int

	Stats FeedbackStats
}

// FeedbackOption customises a FeedbackEmulator.
type FeedbackOption func(*FeedbackEmulator)

// WithFeedbackLoss drops a share of the reports so that the HARQ timeout
// path is exercised.
func WithFeedbackLoss(ratio float64) FeedbackOption {
	return func(f *FeedbackEmulator) { f.lossRatio = ratio }
}

// WithCRCDelay overrides DefaultCRCDelaySlots.
func WithCRCDelay(slots int) FeedbackOption {
	return func(f *FeedbackEmulator) {
		if slots > 0 {
			f.crcDelay = slots
		}
	}
}

// WithCQIPeriod makes every UE report its CQI every n slots.
func WithCQIPeriod(n int) FeedbackOption {
	return func(f *FeedbackEmulator) { f.cqiPeriod = n }
}

// NewFeedbackEmulator returns an emulator delivering through events.
func NewFeedbackEmulator(name string, events *eventq.Queue, sink FeedbackSink, opts ...FeedbackOption) *FeedbackEmulator {
	f := &FeedbackEmulator{
		rng:       rngstream.New(name),
		events:    events,
		sink:      sink,
		channels:  make(map[model.UEIndex]Channel),
		crcDelay:  DefaultCRCDelaySlots,
		cqiPeriod: 80,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetChannel sets the link quality of a UE.
func (f *FeedbackEmulator) SetChannel(idx model.UEIndex, ch Channel) { f.channels[idx] = ch }

// RemoveUE forgets a UE. Feedback already scheduled is still delivered and
// dropped by the scheduler.
func (f *FeedbackEmulator) RemoveUE(idx model.UEIndex) { delete(f.channels, idx) }

func (f *FeedbackEmulator) lost() bool {
	if f.lossRatio > 0 && f.rng.RandU01() < f.lossRatio {
		f.Stats.Lost++
		return true
	}
	return false
}

// OnResults schedules the feedback of one cell's slot result.
func (f *FeedbackEmulator) OnResults(cell model.CellIndex, res *model.SlotResult) {
	for _, g := range res.DL.UEGrants {
		if f.lost() {
			continue
		}
		ack := f.rng.RandU01() >= f.channels[g.UEIndex].DLBLER
		if ack {
			f.Stats.ACKs++
		} else {
			f.Stats.NACKs++
		}
		ueIdx, h := g.UEIndex, g.HARQID
		f.events.Schedule(g.AckSlot, func() { _ = f.sink.HandleDLACK(cell, ueIdx, h, ack) })
	}
	for _, g := range res.UL.PUSCHs {
		if f.lost() {
			continue
		}
		ok := f.rng.RandU01() >= f.channels[g.UEIndex].ULBLER
		if ok {
			f.Stats.CRCOKs++
		} else {
			f.Stats.CRCFails++
		}
		ueIdx, h := g.UEIndex, g.HARQID
		f.events.Schedule(res.Slot.Add(f.crcDelay), func() { _ = f.sink.HandleULCRC(cell, ueIdx, h, ok) })
	}
}

// ReportCQI sends the periodic PCell CQI reports due at sl.
func (f *FeedbackEmulator) ReportCQI(sl model.SlotPoint) {
	if f.cqiPeriod <= 0 || sl.Count()%uint32(f.cqiPeriod) != 0 {
		return
	}
	for idx, ch := range f.channels {
		if ch.CQI == 0 {
			continue
		}
		_ = f.sink.HandleCQI(ch.PCell, idx, ch.CQI)
	}
}
