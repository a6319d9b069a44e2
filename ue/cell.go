package ue

import (
	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

// SearchSpace is the UE-dedicated PDCCH monitoring configuration.
type SearchSpace struct {
	AggregationLevel model.AggregationLevel
	// PeriodSlots and OffsetSlots define the monitoring occasions.
	PeriodSlots int
	OffsetSlots int
}

// DefaultSearchSpace monitors every slot at aggregation level 2.
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{AggregationLevel: model.AggregationLevel2, PeriodSlots: 1}
}

// Cell is the state of a UE in one of its serving cells.
type Cell struct {
	cfg      *core.CellConfig
	ueIndex  model.UEIndex
	rnti     model.RNTI
	active   bool
	fallback bool

	searchSpace SearchSpace
	cqi         uint8
	dlMCS       uint8
	ulMCS       uint8

	// HARQs is the view of the UE processes in the cell HARQ manager.
	HARQs harq.UEHARQs
}

// NewCell builds the per-cell state of a UE. The UE starts active, outside
// fallback mode, with the highest MCS until channel quality is reported.
func NewCell(cfg *core.CellConfig, ueIndex model.UEIndex, rnti model.RNTI, harqs harq.UEHARQs, ss SearchSpace) *Cell {
	if !ss.AggregationLevel.Valid() {
		ss.AggregationLevel = model.AggregationLevel2
	}
	if ss.PeriodSlots <= 0 {
		ss.PeriodSlots = 1
	}
	return &Cell{
		cfg:         cfg,
		ueIndex:     ueIndex,
		rnti:        rnti,
		active:      true,
		searchSpace: ss,
		cqi:         15,
		dlMCS:       core.MaxMCS,
		ulMCS:       core.MaxMCS,
		HARQs:       harqs,
	}
}

func (c *Cell) CellIndex() model.CellIndex  { return c.cfg.Index }
func (c *Cell) UEIndex() model.UEIndex      { return c.ueIndex }
func (c *Cell) RNTI() model.RNTI            { return c.rnti }
func (c *Cell) Config() *core.CellConfig    { return c.cfg }
func (c *Cell) SearchSpace() SearchSpace    { return c.searchSpace }
func (c *Cell) IsActive() bool              { return c.active }
func (c *Cell) IsInFallbackMode() bool      { return c.fallback }
func (c *Cell) SetActive(active bool)       { c.active = active }
func (c *Cell) SetFallbackMode(enable bool) { c.fallback = enable }
func (c *Cell) CQI() uint8                  { return c.cqi }
func (c *Cell) DLMCS() uint8                { return c.dlMCS }
func (c *Cell) ULMCS() uint8                { return c.ulMCS }

// IsPDCCHEnabled reports whether the UE can be sent a DCI in the slot: the slot
// must carry DL and be a monitoring occasion of the search space.
func (c *Cell) IsPDCCHEnabled(sl model.SlotPoint) bool {
	if !c.cfg.IsDLEnabled(sl) {
		return false
	}
	ss := c.searchSpace
	return (int(sl.Count())-ss.OffsetSlots)%ss.PeriodSlots == 0
}

// IsPDSCHEnabled reports whether a PDSCH can be placed in the slot.
func (c *Cell) IsPDSCHEnabled(sl model.SlotPoint) bool { return c.cfg.IsDLEnabled(sl) }

// IsULEnabled reports whether a PUSCH can be placed in the slot.
func (c *Cell) IsULEnabled(sl model.SlotPoint) bool { return c.cfg.IsULEnabled(sl) }

// HandleCQI applies a CQI report. CQI 0 leaves the UE out of range, which
// rate-based policies treat as unschedulable.
func (c *Cell) HandleCQI(cqi uint8) {
	c.cqi = min(cqi, 15)
	mcs, ok := core.MCSFromCQI(c.cqi)
	if !ok {
		mcs = 0
	}
	c.dlMCS = mcs
	c.ulMCS = mcs
}

// HandleSNR derives the CQI from an SNR estimate in dB.
func (c *Cell) HandleSNR(snr float64) {
	c.HandleCQI(core.CQIFromSNR(snr))
}
