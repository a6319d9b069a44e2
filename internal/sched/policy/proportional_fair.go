package policy

import (
	"math"

	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

const (
	defaultPFAlpha         = 0.01
	defaultPFFairnessCoeff = 1.0
	// minAvgRate keeps the metric finite for UEs that were never served.
	minAvgRate = 1e-3
)

// ProportionalFair ranks UEs by achievable rate^coeff over their average
// served rate. Averages are exponentially weighted per slot and decayed
// lazily when a UE is next looked at.
type ProportionalFair struct {
	alpha float64
	coeff float64
	dl    pfState
	ul    pfState
}

// pfState is indexed by UE index; owner works as in rrState.
type pfState struct {
	avg        [model.MaxNofUEs]float64
	lastUpdate [model.MaxNofUEs]model.SlotPoint
	owner      [model.MaxNofUEs]model.RNTI
}

func (s *pfState) claim(idx model.UEIndex, rnti model.RNTI) {
	if s.owner[idx] != rnti {
		s.owner[idx] = rnti
		s.avg[idx] = 0
		s.lastUpdate[idx] = model.SlotPoint{}
	}
}

// NewProportionalFair returns a PF policy. Non-positive arguments select defaults.
func NewProportionalFair(alpha, fairnessCoeff float64) *ProportionalFair {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultPFAlpha
	}
	if fairnessCoeff <= 0 {
		fairnessCoeff = defaultPFFairnessCoeff
	}
	return &ProportionalFair{alpha: alpha, coeff: fairnessCoeff}
}

func (p *ProportionalFair) ComputeUEDLPriorities(pdcchSlot, _ model.SlotPoint, _ model.CellIndex, cands []Candidate) {
	for i := range cands {
		c := &cands[i]
		rate := achievableRate(c.Cell.CQI(), c.Cell.DLMCS(), c.Cell.Config().DLBandwidthRBs)
		c.Priority = p.priority(&p.dl, c.UE.Index(), c.UE.CRNTI(), pdcchSlot, rate)
	}
}

func (p *ProportionalFair) ComputeUEULPriorities(pdcchSlot, _ model.SlotPoint, _ model.CellIndex, cands []Candidate) {
	for i := range cands {
		c := &cands[i]
		rate := achievableRate(c.Cell.CQI(), c.Cell.ULMCS(), c.Cell.Config().ULBandwidthRBs)
		c.Priority = p.priority(&p.ul, c.UE.Index(), c.UE.CRNTI(), pdcchSlot, rate)
	}
}

func (p *ProportionalFair) SaveDLNewTxGrants(grants []model.DLGrant) {
	for _, g := range grants {
		p.record(&p.dl, g.UEIndex, g.RNTI, g.PDCCHSlot, g.TBSBytes)
	}
}

func (p *ProportionalFair) SaveULNewTxGrants(grants []model.ULGrant) {
	for _, g := range grants {
		p.record(&p.ul, g.UEIndex, g.RNTI, g.PDCCHSlot, g.TBSBytes)
	}
}

// AverageRate returns the current DL or UL average of a UE in bytes per slot.
func (p *ProportionalFair) AverageRate(dir model.Direction, idx model.UEIndex) float64 {
	if dir == model.Uplink {
		return p.ul.avg[idx]
	}
	return p.dl.avg[idx]
}

func achievableRate(cqi, mcs uint8, bwpRBs int) float64 {
	if cqi == 0 {
		return 0
	}
	return float64(core.TBSBytes(mcs, bwpRBs))
}

func (p *ProportionalFair) priority(s *pfState, idx model.UEIndex, rnti model.RNTI, sl model.SlotPoint, rate float64) model.Priority {
	s.claim(idx, rnti)
	if rate <= 0 {
		return model.ForbidPriority
	}
	p.decay(s, idx, sl)
	return model.Priority(math.Pow(rate, p.coeff) / math.Max(s.avg[idx], minAvgRate))
}

func (p *ProportionalFair) record(s *pfState, idx model.UEIndex, rnti model.RNTI, sl model.SlotPoint, tbs int) {
	s.claim(idx, rnti)
	p.decay(s, idx, sl)
	s.avg[idx] += p.alpha * float64(tbs)
}

// decay brings the average of a UE forward to sl, counting every slot since
// the last update as a slot with zero throughput.
func (p *ProportionalFair) decay(s *pfState, idx model.UEIndex, sl model.SlotPoint) {
	if !sl.Valid() {
		return
	}
	last := s.lastUpdate[idx]
	s.lastUpdate[idx] = sl
	if !last.Valid() || last.Numerology() != sl.Numerology() {
		return
	}
	if n := sl.Sub(last); n > 0 {
		s.avg[idx] *= math.Pow(1-p.alpha, float64(n))
	}
}
