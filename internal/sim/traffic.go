// Package sim drives the scheduler with synthetic traffic and HARQ feedback.
package sim

import (
	"math"

	"github.com/iti/rngstream"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// DefaultPacketBytes is the size of one generated packet.
const DefaultPacketBytes = 1500

// DefaultBSRPeriodSlots is the periodic BSR interval of a UE with UL data.
const DefaultBSRPeriodSlots = 20

// poissonNormalThreshold is the mean above which arrivals are drawn from a
// normal approximation.
const poissonNormalThreshold = 30

// BufferSink receives the buffer reports the generator produces.
type BufferSink interface {
	HandleDLBufferState(idx model.UEIndex, lcid model.LCID, bytes int) error
	HandleULBSR(idx model.UEIndex, lcg model.LCGID, bytes int) error
	HandleSR(idx model.UEIndex) error
}

// UETraffic is the offered load of one UE bearer.
type UETraffic struct {
	UE             model.UEIndex
	LCID           model.LCID
	LCG            model.LCGID
	DLBytesPerSlot float64
	ULBytesPerSlot float64
}

type ueQueues struct {
	cfg      UETraffic
	dl       int
	ul       int
	reported bool
	lastBSR  int
}

// TrafficGenerator models the RLC buffers of the UEs. Each slot it adds
// Poisson packet arrivals, reports the DL buffer occupancy and raises SRs or
// BSRs for UL data. Granted bytes are drained through OnResults.
type TrafficGenerator struct {
	rng         *rngstream.RngStream
	packetBytes int
	bsrPeriod   int
	ues         map[model.UEIndex]*ueQueues
	order       []model.UEIndex
	slots       int

	OfferedDLBytes int64
	OfferedULBytes int64
}

// NewTrafficGenerator returns a generator drawing from the named stream.
func NewTrafficGenerator(name string, packetBytes int) *TrafficGenerator {
	if packetBytes <= 0 {
		packetBytes = DefaultPacketBytes
	}
	return &TrafficGenerator{
		rng:         rngstream.New(name),
		packetBytes: packetBytes,
		bsrPeriod:   DefaultBSRPeriodSlots,
		ues:         make(map[model.UEIndex]*ueQueues),
	}
}

// AddUE registers a UE bearer. A second call for the same UE replaces it.
func (g *TrafficGenerator) AddUE(t UETraffic) {
	if _, ok := g.ues[t.UE]; !ok {
		g.order = append(g.order, t.UE)
	}
	g.ues[t.UE] = &ueQueues{cfg: t}
}

// RemoveUE forgets a UE.
func (g *TrafficGenerator) RemoveUE(idx model.UEIndex) {
	delete(g.ues, idx)
	for i, id := range g.order {
		if id == idx {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Backlog returns the modelled DL and UL buffer of a UE.
func (g *TrafficGenerator) Backlog(idx model.UEIndex) (dl, ul int) {
	if q, ok := g.ues[idx]; ok {
		return q.dl, q.ul
	}
	return 0, 0
}

// Tick generates one slot of arrivals and sends the resulting reports.
func (g *TrafficGenerator) Tick(sink BufferSink) error {
	g.slots++
	for _, idx := range g.order {
		q := g.ues[idx]

		if q.cfg.DLBytesPerSlot > 0 {
			if n := g.arrivals(q.cfg.DLBytesPerSlot) * g.packetBytes; n > 0 {
				q.dl += n
				g.OfferedDLBytes += int64(n)
				if err := sink.HandleDLBufferState(idx, q.cfg.LCID, q.dl); err != nil {
					return err
				}
			}
		}

		if q.cfg.ULBytesPerSlot > 0 {
			n := g.arrivals(q.cfg.ULBytesPerSlot) * g.packetBytes
			wasEmpty := q.ul == 0
			q.ul += n
			g.OfferedULBytes += int64(n)
			switch {
			case n > 0 && wasEmpty && !q.reported:
				if err := sink.HandleSR(idx); err != nil {
					return err
				}
				q.reported = true
			case q.ul > 0 && g.slots-q.lastBSR >= g.bsrPeriod:
				if err := g.sendBSR(sink, idx, q); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (g *TrafficGenerator) sendBSR(sink BufferSink, idx model.UEIndex, q *ueQueues) error {
	q.lastBSR = g.slots
	q.reported = q.ul > 0
	return sink.HandleULBSR(idx, q.cfg.LCG, q.ul)
}

// OnResults drains the buffers by the new transmissions of a slot result. A
// UE that received a PUSCH piggybacks a BSR with its remaining UL buffer.
func (g *TrafficGenerator) OnResults(res *model.SlotResult, sink BufferSink) error {
	for _, gr := range res.DL.UEGrants {
		if gr.IsRetx {
			continue
		}
		if q, ok := g.ues[gr.UEIndex]; ok {
			q.dl = max(q.dl-gr.TBSBytes, 0)
		}
	}
	for _, gr := range res.UL.PUSCHs {
		q, ok := g.ues[gr.UEIndex]
		if !ok {
			continue
		}
		if !gr.IsRetx {
			q.ul = max(q.ul-gr.TBSBytes, 0)
		}
		if err := g.sendBSR(sink, gr.UEIndex, q); err != nil {
			return err
		}
	}
	return nil
}

// arrivals draws the number of packets arriving in one slot for a mean load
// of meanBytes.
func (g *TrafficGenerator) arrivals(meanBytes float64) int {
	lambda := meanBytes / float64(g.packetBytes)
	if lambda <= 0 {
		return 0
	}
	if lambda > poissonNormalThreshold {
		u1, u2 := g.rng.RandU01(), g.rng.RandU01()
		z := math.Sqrt(-2*math.Log(max(u1, 1e-12))) * math.Cos(2*math.Pi*u2)
		return max(int(math.Round(lambda+z*math.Sqrt(lambda))), 0)
	}
	limit := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= g.rng.RandU01()
		if p <= limit {
			return k
		}
		k++
	}
}

// BytesPerSlot converts a bit rate into bytes per slot of numerology mu.
func BytesPerSlot(kbps float64, mu uint8) float64 {
	return kbps * 1000 / 8 * model.SlotDuration(mu).Seconds()
}
