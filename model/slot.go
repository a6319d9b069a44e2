package model

import (
	"fmt"
	"time"
)

// NofSFNs is the number of system frame numbers before the frame counter wraps.
const NofSFNs = 1024

// MaxNumerology is the highest subcarrier spacing index supported (240 kHz).
const MaxNumerology = 4

// SlotPoint identifies one slot in the wrapping SFN/slot space of a numerology.
// The zero value is invalid.
type SlotPoint struct {
	// numerology is stored off by one so that the zero value is invalid.
	mu    uint8
	count uint32
}

// NewSlotPoint builds a slot point from a numerology, SFN and slot index in the frame.
func NewSlotPoint(numerology uint8, sfn, slot uint32) SlotPoint {
	if numerology > MaxNumerology {
		panic(fmt.Sprintf("invalid numerology %d", numerology))
	}
	spf := SlotsPerFrame(numerology)
	if sfn >= NofSFNs || slot >= spf {
		panic(fmt.Sprintf("invalid slot %d.%d for numerology %d", sfn, slot, numerology))
	}
	return SlotPoint{mu: numerology + 1, count: sfn*spf + slot}
}

// NewSlotPointFromCount builds a slot point from a raw count, wrapping it into range.
func NewSlotPointFromCount(numerology uint8, count uint32) SlotPoint {
	if numerology > MaxNumerology {
		panic(fmt.Sprintf("invalid numerology %d", numerology))
	}
	return SlotPoint{mu: numerology + 1, count: count % slotPeriod(numerology)}
}

// SlotsPerFrame returns the number of slots in a 10ms frame.
func SlotsPerFrame(numerology uint8) uint32 { return 10 << numerology }

// SlotDuration returns the duration of one slot.
func SlotDuration(numerology uint8) time.Duration { return time.Millisecond >> numerology }

func slotPeriod(numerology uint8) uint32 { return NofSFNs * SlotsPerFrame(numerology) }

// Valid reports whether the slot point was initialised.
func (s SlotPoint) Valid() bool { return s.mu != 0 }

// Numerology returns the subcarrier spacing index.
func (s SlotPoint) Numerology() uint8 {
	s.mustBeValid()
	return s.mu - 1
}

// Count returns the slot count since SFN 0, slot 0.
func (s SlotPoint) Count() uint32 { return s.count }

// SFN returns the system frame number.
func (s SlotPoint) SFN() uint32 { return s.count / SlotsPerFrame(s.Numerology()) }

// SlotIndex returns the slot index inside the frame.
func (s SlotPoint) SlotIndex() uint32 { return s.count % SlotsPerFrame(s.Numerology()) }

// SubframeIndex returns the subframe (1ms) index inside the frame.
func (s SlotPoint) SubframeIndex() uint32 { return s.SlotIndex() >> s.Numerology() }

// Add returns the slot n slots after s. Negative n moves backwards.
func (s SlotPoint) Add(n int) SlotPoint {
	period := int64(slotPeriod(s.Numerology()))
	c := (int64(s.count) + int64(n)) % period
	if c < 0 {
		c += period
	}
	return SlotPoint{mu: s.mu, count: uint32(c)}
}

// Sub returns the signed slot distance s - o, taking the shortest path around the wrap.
func (s SlotPoint) Sub(o SlotPoint) int {
	s.mustMatch(o)
	period := int64(slotPeriod(s.Numerology()))
	d := (int64(s.count) - int64(o.count)) % period
	if d < 0 {
		d += period
	}
	if d >= period/2 {
		d -= period
	}
	return int(d)
}

// Less reports whether s happens before o.
func (s SlotPoint) Less(o SlotPoint) bool { return s.Sub(o) < 0 }

// Equal reports whether both points refer to the same slot.
func (s SlotPoint) Equal(o SlotPoint) bool { return s.mu == o.mu && s.count == o.count }

func (s SlotPoint) String() string {
	if !s.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d.%d", s.SFN(), s.SlotIndex())
}

func (s SlotPoint) mustBeValid() {
	if !s.Valid() {
		panic("use of invalid slot point")
	}
}

func (s SlotPoint) mustMatch(o SlotPoint) {
	s.mustBeValid()
	o.mustBeValid()
	if s.mu != o.mu {
		panic(fmt.Sprintf("comparing slots of numerology %d and %d", s.mu-1, o.mu-1))
	}
}
