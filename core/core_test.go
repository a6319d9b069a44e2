package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

func newTestGrid(t *testing.T) (*CellConfig, *CellResourceAllocator) {
	t.Helper()
	cfg := DefaultCellConfig(0)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	grid := NewCellResourceAllocator(&cfg)
	grid.SlotIndication(model.NewSlotPoint(0, 0, 0))
	return &cfg, grid
}

func TestCellConfigValidate(t *testing.T) {
	cfg := DefaultCellConfig(0)
	cfg.K1 = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidCellConfig) {
		t.Fatalf("expected ErrInvalidCellConfig, got %v", err)
	}

	cfg = DefaultCellConfig(0)
	cfg.TDD = &TDDPattern{PeriodSlots: 10, DLSlots: 7, ULSlots: 4}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidCellConfig) {
		t.Fatalf("overlapping tdd pattern accepted: %v", err)
	}
}

func TestTDDPatternSlots(t *testing.T) {
	cfg := DefaultCellConfig(0)
	cfg.TDD = &TDDPattern{PeriodSlots: 10, DLSlots: 6, ULSlots: 3}

	if !cfg.IsDLEnabled(model.NewSlotPoint(0, 0, 5)) || cfg.IsULEnabled(model.NewSlotPoint(0, 0, 5)) {
		t.Fatalf("slot 5 must be DL only")
	}
	if cfg.IsDLEnabled(model.NewSlotPoint(0, 0, 6)) || cfg.IsULEnabled(model.NewSlotPoint(0, 0, 6)) {
		t.Fatalf("slot 6 is a special slot")
	}
	if !cfg.IsULEnabled(model.NewSlotPoint(0, 3, 9)) {
		t.Fatalf("slot 9 must be UL")
	}
}

func TestRBBitmapFindFree(t *testing.T) {
	b := NewRBBitmap(20)
	b.Fill(model.RBInterval{Start: 2, Stop: 5})
	b.Fill(model.RBInterval{Start: 8, Stop: 9})

	if got := b.FindFree(3, model.RBInterval{Start: 0, Stop: 20}); got != (model.RBInterval{Start: 5, Stop: 8}) {
		t.Fatalf("FindFree(3) = %s", got)
	}
	// No run of 15 exists, so the longest one is returned.
	if got := b.FindFree(15, model.RBInterval{Start: 0, Stop: 20}); got != (model.RBInterval{Start: 9, Stop: 20}) {
		t.Fatalf("FindFree(15) = %s", got)
	}
	if got := b.FindFree(4, model.RBInterval{Start: 2, Stop: 5}); !got.Empty() {
		t.Fatalf("expected no free RBs, got %s", got)
	}
	if b.Count() != 4 || b.FreeIn(model.RBInterval{Start: 0, Stop: 10}) != 6 {
		t.Fatalf("Count() = %d", b.Count())
	}
	b.Release(model.RBInterval{Start: 2, Stop: 5})
	if b.Collides(model.RBInterval{Start: 0, Stop: 8}) {
		t.Fatalf("released RBs still marked used")
	}
}

func TestCellResourceAllocatorWindow(t *testing.T) {
	_, grid := newTestGrid(t)
	start := grid.SlotTx()

	grid.At(3).Result.UL.PUSCHs = append(grid.At(3).Result.UL.PUSCHs, model.ULGrant{RNTI: 0x4601})
	if !grid.AtSlot(start.Add(3)).Result.Slot.Equal(start.Add(3)) {
		t.Fatalf("AtSlot and At disagree")
	}

	grid.SlotIndication(start.Add(1))
	if n := len(grid.At(2).Result.UL.PUSCHs); n != 1 {
		t.Fatalf("allocation ahead of the window lost: %d", n)
	}
	if !grid.At(RingSize - 1).Result.Slot.Equal(start.Add(RingSize)) {
		t.Fatalf("new slot entering the window not initialised")
	}

	// Jump further than the window length: everything is cleared.
	grid.SlotIndication(start.Add(100))
	for i := 0; i < RingSize; i++ {
		if len(grid.At(i).Result.UL.PUSCHs) != 0 {
			t.Fatalf("offset %d not cleared", i)
		}
	}
}

func TestCellResourceAllocatorPanics(t *testing.T) {
	_, grid := newTestGrid(t)
	mustPanic(t, "out of window", func() { grid.At(RingSize) })
	mustPanic(t, "repeated slot", func() { grid.SlotIndication(grid.SlotTx()) })
}

func TestPDCCHAllocatorCapacity(t *testing.T) {
	cfg, grid := newTestGrid(t)
	cfg.CoresetCCEs = 8
	pdcch := NewPDCCHAllocator(grid)

	if _, ok := pdcch.Alloc(model.Downlink, 0x4601, model.AggregationLevel4); !ok {
		t.Fatalf("first DCI must fit")
	}
	e, ok := pdcch.Alloc(model.Uplink, 0x4602, model.AggregationLevel2)
	if !ok || e.CCEIndex != 4 {
		t.Fatalf("second DCI = %+v, %v", e, ok)
	}
	if _, ok := pdcch.Alloc(model.Downlink, 0x4603, model.AggregationLevel4); ok {
		t.Fatalf("CORESET overbooked")
	}
	pdcch.CancelLast(model.Uplink)
	if pdcch.FreeCCEs() != 4 || len(grid.At(0).Result.DL.ULPDCCHs) != 0 {
		t.Fatalf("rollback failed: free=%d", pdcch.FreeCCEs())
	}
}

func TestUCIAllocatorMultiplexesPerUE(t *testing.T) {
	_, grid := newTestGrid(t)
	uci := NewUCIAllocator(grid)
	ack := grid.SlotTx().Add(4)

	if !uci.AllocHARQAck(ack, 0x4601) || !uci.AllocHARQAck(ack, 0x4601) {
		t.Fatalf("HARQ-ACK allocation failed")
	}
	pucchs := grid.AtSlot(ack).Result.UL.PUCCHs
	if len(pucchs) != 1 || pucchs[0].HARQBits != 2 {
		t.Fatalf("PUCCHs = %+v", pucchs)
	}
	uci.CancelHARQAck(ack, 0x4601)
	uci.CancelHARQAck(ack, 0x4601)
	if n := len(grid.AtSlot(ack).Result.UL.PUCCHs); n != 0 {
		t.Fatalf("PUCCH not released: %d", n)
	}
	if uci.AllocHARQAck(grid.SlotTx().Add(RingSize), 0x4601) {
		t.Fatalf("allocation outside the window accepted")
	}
}

func TestTBSAndRBsForBytesAreConsistent(t *testing.T) {
	for _, mcs := range []uint8{0, 9, 16, 28} {
		rbs := RBsForBytes(mcs, 500)
		if TBSBytes(mcs, rbs) < 500 {
			t.Fatalf("mcs %d: %d RBs carry only %d bytes", mcs, rbs, TBSBytes(mcs, rbs))
		}
		if rbs > 1 && TBSBytes(mcs, rbs-1) >= 500 {
			t.Fatalf("mcs %d: %d RBs is not minimal", mcs, rbs)
		}
	}
	if TBSBytes(28, 0) != 0 || RBsForBytes(28, 0) != 0 {
		t.Fatalf("zero input must give zero")
	}
}

func TestLinkAdaptation(t *testing.T) {
	cases := []struct {
		snr     float64
		quality LinkQuality
		mcsOK   bool
	}{
		{-10, LinkQualityDown, false},
		{3, LinkQualityPoor, true},
		{7, LinkQualityFair, true},
		{15, LinkQualityGood, true},
		{30, LinkQualityExcellent, true},
	}
	for _, tc := range cases {
		if q := ClassifySNR(tc.snr); q != tc.quality {
			t.Errorf("ClassifySNR(%v) = %s, want %s", tc.snr, q, tc.quality)
		}
		if _, ok := MCSFromSNR(tc.snr); ok != tc.mcsOK {
			t.Errorf("MCSFromSNR(%v) ok = %v", tc.snr, ok)
		}
	}
	if mcs, _ := MCSFromSNR(30); mcs != MaxMCS {
		t.Fatalf("high SNR must reach MaxMCS, got %d", mcs)
	}
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	f()
}
