package model

import (
	"fmt"
	"math"
)

// CellIndex identifies a DU cell.
type CellIndex uint16

// MaxNofCells is the maximum number of cells handled by one DU.
const MaxNofCells = 16

// UEIndex identifies a UE inside the DU.
type UEIndex uint16

// MaxNofUEs is the maximum number of UEs handled by one DU.
const MaxNofUEs = 1024

// RNTI is a radio network temporary identifier.
type RNTI uint16

// Common RNTI values.
const (
	InvalidRNTI RNTI = 0
	MinCRNTI    RNTI = 0x1
	MaxCRNTI    RNTI = 0xffef
	PagingRNTI  RNTI = 0xfffe
	SIRNTI      RNTI = 0xffff
)

func (r RNTI) String() string { return fmt.Sprintf("0x%04x", uint16(r)) }

// HARQID identifies a HARQ process of a UE.
type HARQID uint8

// InvalidHARQID requests a new transmission on any free HARQ process.
const InvalidHARQID HARQID = math.MaxUint8

// MaxNofHARQs is the maximum number of HARQ processes per UE and direction.
const MaxNofHARQs = 16

// SliceID identifies a RAN slice inside a cell.
type SliceID uint8

// DefaultSliceID is the slice UEs join when no slice is configured.
const DefaultSliceID SliceID = 0

// LCID identifies a logical channel.
type LCID uint8

// LCGID identifies a logical channel group for UL buffer status reporting.
type LCGID uint8

// Direction is the link direction of a grant.
type Direction uint8

const (
	Downlink Direction = iota
	Uplink
)

func (d Direction) String() string {
	switch d {
	case Downlink:
		return "dl"
	case Uplink:
		return "ul"
	default:
		return "unknown"
	}
}

// Priority ranks a candidate for a new transmission. Higher values are served first.
type Priority float64

// ForbidPriority marks a candidate that must not be scheduled in this opportunity.
const ForbidPriority Priority = -math.MaxFloat64

// AggregationLevel is the number of CCEs used by a PDCCH candidate.
type AggregationLevel uint8

// Supported aggregation levels.
const (
	AggregationLevel1  AggregationLevel = 1
	AggregationLevel2  AggregationLevel = 2
	AggregationLevel4  AggregationLevel = 4
	AggregationLevel8  AggregationLevel = 8
	AggregationLevel16 AggregationLevel = 16
)

// NofCCEs returns the CCEs occupied by the aggregation level.
func (al AggregationLevel) NofCCEs() int { return int(al) }

// Valid reports whether the aggregation level is one of the supported ones.
func (al AggregationLevel) Valid() bool {
	switch al {
	case AggregationLevel1, AggregationLevel2, AggregationLevel4, AggregationLevel8, AggregationLevel16:
		return true
	}
	return false
}
