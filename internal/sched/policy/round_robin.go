package policy

import "github.com/signalsfoundry/gnb-scheduler/model"

// RoundRobin favours the UE that has waited the most opportunities since its
// last new transmission.
type RoundRobin struct {
	dl rrState
	ul rrState
}

// rrState is indexed by UE index. owner holds the C-RNTI the entry belongs
// to, so a reused index starts from a clean history.
type rrState struct {
	opportunity uint64
	lastServed  [model.MaxNofUEs]uint64
	owner       [model.MaxNofUEs]model.RNTI
}

// NewRoundRobin returns a round-robin policy.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (p *RoundRobin) ComputeUEDLPriorities(_, _ model.SlotPoint, _ model.CellIndex, cands []Candidate) {
	p.dl.compute(cands)
}

func (p *RoundRobin) ComputeUEULPriorities(_, _ model.SlotPoint, _ model.CellIndex, cands []Candidate) {
	p.ul.compute(cands)
}

func (p *RoundRobin) SaveDLNewTxGrants(grants []model.DLGrant) {
	for _, g := range grants {
		p.dl.served(g.UEIndex, g.RNTI)
	}
}

func (p *RoundRobin) SaveULNewTxGrants(grants []model.ULGrant) {
	for _, g := range grants {
		p.ul.served(g.UEIndex, g.RNTI)
	}
}

func (s *rrState) claim(idx model.UEIndex, rnti model.RNTI) {
	if s.owner[idx] != rnti {
		s.owner[idx] = rnti
		s.lastServed[idx] = 0
	}
}

func (s *rrState) served(idx model.UEIndex, rnti model.RNTI) {
	s.claim(idx, rnti)
	s.lastServed[idx] = s.opportunity
}

func (s *rrState) compute(cands []Candidate) {
	s.opportunity++
	for i := range cands {
		idx := cands[i].UE.Index()
		s.claim(idx, cands[i].UE.CRNTI())
		waited := s.opportunity - s.lastServed[idx]
		cands[i].Priority = model.Priority(waited)
	}
}
