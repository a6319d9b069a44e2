// Package ue holds the scheduler view of connected UEs: their logical channels
// and buffer state, their per-cell state and the per-slice views the
// intra-slice scheduler iterates.
package ue

import (
	"errors"
	"fmt"
	"slices"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

// SRGrantBytes is the payload assumed for a UE that raised a scheduling
// request without reporting a buffer.
const SRGrantBytes = 512

// MaxNofLCGs is the number of logical channel groups a UE can report.
const MaxNofLCGs = 8

// ErrUnknownLogicalChannel is returned for buffer updates on an unconfigured channel.
var ErrUnknownLogicalChannel = errors.New("unknown logical channel")

// LogicalChannel is a DL bearer of the UE mapped to a slice.
type LogicalChannel struct {
	ID           model.LCID
	Slice        model.SliceID
	Group        model.LCGID
	PendingBytes int
}

type lcgState struct {
	configured bool
	slice      model.SliceID
	bsrBytes   int
}

// UE is a connected UE. It is owned by the Repository and mutated only on the
// scheduling goroutine.
type UE struct {
	index model.UEIndex
	crnti model.RNTI

	lcs       []LogicalChannel
	lcgs      [MaxNofLCGs]lcgState
	srPending bool
	srSlice   model.SliceID

	cells []*Cell
}

// New returns a UE without cells or logical channels.
func New(index model.UEIndex, crnti model.RNTI) *UE {
	return &UE{index: index, crnti: crnti}
}

func (u *UE) Index() model.UEIndex { return u.index }
func (u *UE) CRNTI() model.RNTI    { return u.crnti }

// AddCell attaches per-cell state. The first cell added is the PCell.
func (u *UE) AddCell(c *Cell) {
	for i, existing := range u.cells {
		if existing.CellIndex() == c.CellIndex() {
			u.cells[i] = c
			return
		}
	}
	u.cells = append(u.cells, c)
}

// FindCell returns the UE state in a cell, or nil when the cell does not serve the UE.
func (u *UE) FindCell(cell model.CellIndex) *Cell {
	for _, c := range u.cells {
		if c.CellIndex() == cell {
			return c
		}
	}
	return nil
}

// PCell returns the primary cell state.
func (u *UE) PCell() *Cell {
	if len(u.cells) == 0 {
		return nil
	}
	return u.cells[0]
}

// Cells returns the per-cell states, PCell first.
func (u *UE) Cells() []*Cell { return u.cells }

// ConfigureLogicalChannel adds or updates a bearer. Its LCG is bound to the
// same slice.
func (u *UE) ConfigureLogicalChannel(lcid model.LCID, lcg model.LCGID, slice model.SliceID) {
	if int(lcg) >= MaxNofLCGs {
		lcg = MaxNofLCGs - 1
	}
	u.lcgs[lcg].configured = true
	u.lcgs[lcg].slice = slice
	for i := range u.lcs {
		if u.lcs[i].ID == lcid {
			u.lcs[i].Slice = slice
			u.lcs[i].Group = lcg
			return
		}
	}
	u.lcs = append(u.lcs, LogicalChannel{ID: lcid, Slice: slice, Group: lcg})
	slices.SortFunc(u.lcs, func(a, b LogicalChannel) int { return int(a.ID) - int(b.ID) })
	if len(u.lcs) == 1 {
		u.srSlice = slice
	}
}

// LogicalChannels returns the configured bearers ordered by LCID.
func (u *UE) LogicalChannels() []LogicalChannel { return u.lcs }

// HasLogicalChannel reports whether lcid is configured. Bearers are fixed
// once the UE is registered, so it is safe to call off the scheduling
// goroutine.
func (u *UE) HasLogicalChannel(lcid model.LCID) bool {
	for i := range u.lcs {
		if u.lcs[i].ID == lcid {
			return true
		}
	}
	return false
}

// Slices returns the distinct slices the UE has bearers in.
func (u *UE) Slices() []model.SliceID {
	var out []model.SliceID
	for _, lc := range u.lcs {
		if !slices.Contains(out, lc.Slice) {
			out = append(out, lc.Slice)
		}
	}
	return out
}

// HandleDLBufferState sets the pending DL bytes of a bearer.
func (u *UE) HandleDLBufferState(lcid model.LCID, bytes int) error {
	for i := range u.lcs {
		if u.lcs[i].ID == lcid {
			u.lcs[i].PendingBytes = max(bytes, 0)
			return nil
		}
	}
	return fmt.Errorf("%w: ue=%d lcid=%d", ErrUnknownLogicalChannel, u.index, lcid)
}

// HandleBSR sets the UL buffer reported for a logical channel group.
func (u *UE) HandleBSR(lcg model.LCGID, bytes int) error {
	if int(lcg) >= MaxNofLCGs || !u.lcgs[lcg].configured {
		return fmt.Errorf("%w: ue=%d lcg=%d", ErrUnknownLogicalChannel, u.index, lcg)
	}
	u.lcgs[lcg].bsrBytes = max(bytes, 0)
	return nil
}

// HandleSR records a pending scheduling request.
func (u *UE) HandleSR() { u.srPending = true }

// SRPending reports whether a scheduling request is outstanding.
func (u *UE) SRPending() bool { return u.srPending }

// DLPendingBytes returns the DL bytes queued on the bearers of a slice.
func (u *UE) DLPendingBytes(slice model.SliceID) int {
	total := 0
	for _, lc := range u.lcs {
		if lc.Slice == slice {
			total += lc.PendingBytes
		}
	}
	return total
}

// TotalDLPendingBytes returns the DL bytes queued on all bearers.
func (u *UE) TotalDLPendingBytes() int {
	total := 0
	for _, lc := range u.lcs {
		total += lc.PendingBytes
	}
	return total
}

// ULPendingBytes returns the UL bytes reported for the LCGs of a slice. A
// pending SR without any report is served with SRGrantBytes.
func (u *UE) ULPendingBytes(slice model.SliceID) int {
	total, reported := 0, 0
	for _, g := range u.lcgs {
		if !g.configured {
			continue
		}
		reported += g.bsrBytes
		if g.slice == slice {
			total += g.bsrBytes
		}
	}
	if u.srPending && reported == 0 && u.srSlice == slice {
		return SRGrantBytes
	}
	return total
}

// TotalULPendingBytes returns the UL bytes reported on all LCGs.
func (u *UE) TotalULPendingBytes() int {
	total := 0
	for _, g := range u.lcgs {
		total += g.bsrBytes
	}
	if total == 0 && u.srPending {
		return SRGrantBytes
	}
	return total
}

// ConsumeDLBytes accounts a DL new transmission of tbs bytes against the
// bearers of a slice in LCID order.
func (u *UE) ConsumeDLBytes(slice model.SliceID, tbs int) {
	for i := range u.lcs {
		if tbs <= 0 {
			return
		}
		lc := &u.lcs[i]
		if lc.Slice != slice || lc.PendingBytes == 0 {
			continue
		}
		n := min(lc.PendingBytes, tbs)
		lc.PendingBytes -= n
		tbs -= n
	}
}

// ConsumeULBytes accounts a UL new transmission of tbs bytes against the LCGs
// of a slice. Any UL grant clears a pending SR.
func (u *UE) ConsumeULBytes(slice model.SliceID, tbs int) {
	u.srPending = false
	for i := range u.lcgs {
		if tbs <= 0 {
			return
		}
		g := &u.lcgs[i]
		if !g.configured || g.slice != slice || g.bsrBytes == 0 {
			continue
		}
		n := min(g.bsrBytes, tbs)
		g.bsrBytes -= n
		tbs -= n
	}
}
