package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// ErrInvalidCellConfig is returned when a cell configuration fails validation.
var ErrInvalidCellConfig = errors.New("invalid cell configuration")

// TDDPattern describes a single-periodicity TDD UL/DL pattern. The first DLSlots
// slots of each period carry DL, the last ULSlots carry UL.
type TDDPattern struct {
	PeriodSlots int
	DLSlots     int
	ULSlots     int
}

// CellConfig is the static configuration of a cell as seen by the scheduler.
type CellConfig struct {
	Index      model.CellIndex
	PCI        uint16
	Numerology uint8

	// DLBandwidthRBs and ULBandwidthRBs are the CRB lengths of the active BWPs.
	DLBandwidthRBs int
	ULBandwidthRBs int

	// CoresetCCEs is the CCE capacity of the UE-dedicated CORESET.
	CoresetCCEs int

	// TDD is nil for FDD cells.
	TDD *TDDPattern

	// K0 is the PDCCH to PDSCH delay, K1 the PDSCH to HARQ-ACK delay and K2
	// the PDCCH to PUSCH delay, all in slots.
	K0 int
	K1 int
	K2 int

	NofDLHARQs int
	NofULHARQs int
	MaxDLRetxs int
	MaxULRetxs int

	// SIB1PeriodSlots is the SIB1 repetition period; zero disables SIB1.
	SIB1PeriodSlots int
	SIB1RBs         int
	PagingRBs       int
}

// DefaultCellConfig returns a 20 MHz FDD cell at 15 kHz SCS.
func DefaultCellConfig(index model.CellIndex) CellConfig {
	return CellConfig{
		Index:           index,
		PCI:             1,
		Numerology:      0,
		DLBandwidthRBs:  106,
		ULBandwidthRBs:  106,
		CoresetCCEs:     48,
		K0:              0,
		K1:              4,
		K2:              4,
		NofDLHARQs:      16,
		NofULHARQs:      16,
		MaxDLRetxs:      4,
		MaxULRetxs:      4,
		SIB1PeriodSlots: 160,
		SIB1RBs:         8,
		PagingRBs:       4,
	}
}

// Validate checks the configuration for values the scheduler cannot work with.
func (c *CellConfig) Validate() error {
	switch {
	case c.Numerology > model.MaxNumerology:
		return fmt.Errorf("%w: numerology %d", ErrInvalidCellConfig, c.Numerology)
	case int(c.Index) >= model.MaxNofCells:
		return fmt.Errorf("%w: cell index %d", ErrInvalidCellConfig, c.Index)
	case c.DLBandwidthRBs <= 0 || c.DLBandwidthRBs > MaxNofRBs:
		return fmt.Errorf("%w: dl bandwidth %d RBs", ErrInvalidCellConfig, c.DLBandwidthRBs)
	case c.ULBandwidthRBs <= 0 || c.ULBandwidthRBs > MaxNofRBs:
		return fmt.Errorf("%w: ul bandwidth %d RBs", ErrInvalidCellConfig, c.ULBandwidthRBs)
	case c.CoresetCCEs <= 0:
		return fmt.Errorf("%w: coreset has no CCEs", ErrInvalidCellConfig)
	case c.K0 < 0 || c.K1 <= 0 || c.K2 < 0:
		return fmt.Errorf("%w: k0=%d k1=%d k2=%d", ErrInvalidCellConfig, c.K0, c.K1, c.K2)
	case c.K0+c.K1 >= RingSize || c.K2 >= RingSize:
		return fmt.Errorf("%w: slot offsets exceed the resource grid window", ErrInvalidCellConfig)
	case c.NofDLHARQs <= 0 || c.NofDLHARQs > model.MaxNofHARQs:
		return fmt.Errorf("%w: %d DL HARQs", ErrInvalidCellConfig, c.NofDLHARQs)
	case c.NofULHARQs <= 0 || c.NofULHARQs > model.MaxNofHARQs:
		return fmt.Errorf("%w: %d UL HARQs", ErrInvalidCellConfig, c.NofULHARQs)
	case c.MaxDLRetxs < 0 || c.MaxULRetxs < 0:
		return fmt.Errorf("%w: negative retransmission budget", ErrInvalidCellConfig)
	}
	if c.TDD != nil {
		t := c.TDD
		if t.PeriodSlots <= 0 || t.DLSlots < 0 || t.ULSlots < 0 || t.DLSlots+t.ULSlots > t.PeriodSlots {
			return fmt.Errorf("%w: tdd pattern %+v", ErrInvalidCellConfig, *t)
		}
	}
	return nil
}

// IsDLEnabled reports whether the slot can carry PDCCH/PDSCH.
func (c *CellConfig) IsDLEnabled(sl model.SlotPoint) bool {
	if c.TDD == nil {
		return true
	}
	idx := int(sl.Count() % uint32(c.TDD.PeriodSlots))
	return idx < c.TDD.DLSlots
}

// IsULEnabled reports whether the slot can carry PUSCH/PUCCH.
func (c *CellConfig) IsULEnabled(sl model.SlotPoint) bool {
	if c.TDD == nil {
		return true
	}
	idx := int(sl.Count() % uint32(c.TDD.PeriodSlots))
	return idx >= c.TDD.PeriodSlots-c.TDD.ULSlots
}

// DLBWP returns the full DL CRB range.
func (c *CellConfig) DLBWP() model.RBInterval { return model.RBInterval{Start: 0, Stop: c.DLBandwidthRBs} }

// ULBWP returns the full UL CRB range.
func (c *CellConfig) ULBWP() model.RBInterval { return model.RBInterval{Start: 0, Stop: c.ULBandwidthRBs} }
