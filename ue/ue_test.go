package ue

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/gnb-scheduler/core"
	"github.com/signalsfoundry/gnb-scheduler/harq"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

func TestRepositoryAddRemove(t *testing.T) {
	repo := NewRepository()
	if err := repo.Add(New(0, 0x4601)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := repo.Add(New(0, 0x4602)); !errors.Is(err, ErrUEExists) {
		t.Fatalf("duplicate index: got %v", err)
	}
	if err := repo.Add(New(1, 0x4601)); !errors.Is(err, ErrRNTIInUse) {
		t.Fatalf("duplicate rnti: got %v", err)
	}
	if u := repo.FindByRNTI(0x4601); u == nil || u.Index() != 0 {
		t.Fatalf("FindByRNTI = %v", u)
	}
	if idx, ok := repo.NextFreeIndex(); !ok || idx != 1 {
		t.Fatalf("NextFreeIndex = %d, %v", idx, ok)
	}

	if _, err := repo.Remove(0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := repo.Remove(0); !errors.Is(err, ErrUENotFound) {
		t.Fatalf("second Remove: got %v", err)
	}
	if repo.Len() != 0 || repo.FindByRNTI(0x4601) != nil {
		t.Fatalf("repository not empty after removal")
	}
}

func TestRepositoryConcurrentAccess(t *testing.T) {
	repo := NewRepository()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.Add(New(model.UEIndex(i), model.RNTI(0x4601+i)))
			_ = repo.List()
		}(i)
	}
	wg.Wait()
	if repo.Len() != 64 {
		t.Fatalf("Len() = %d, want 64", repo.Len())
	}
	list := repo.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].Index() >= list[i].Index() {
			t.Fatalf("List not ordered by index")
		}
	}
}

func TestPendingBytesPerSlice(t *testing.T) {
	u := New(0, 0x4601)
	u.ConfigureLogicalChannel(4, 1, 0)
	u.ConfigureLogicalChannel(5, 2, 1)

	if err := u.HandleDLBufferState(4, 300); err != nil {
		t.Fatalf("HandleDLBufferState: %v", err)
	}
	if err := u.HandleDLBufferState(5, 200); err != nil {
		t.Fatalf("HandleDLBufferState: %v", err)
	}
	if err := u.HandleDLBufferState(9, 1); !errors.Is(err, ErrUnknownLogicalChannel) {
		t.Fatalf("unknown lcid accepted: %v", err)
	}
	if u.DLPendingBytes(0) != 300 || u.DLPendingBytes(1) != 200 || u.TotalDLPendingBytes() != 500 {
		t.Fatalf("pending bytes = %d/%d", u.DLPendingBytes(0), u.DLPendingBytes(1))
	}

	u.ConsumeDLBytes(0, 1000)
	if u.DLPendingBytes(0) != 0 || u.DLPendingBytes(1) != 200 {
		t.Fatalf("consumption leaked across slices")
	}
}

func TestSchedulingRequestGrant(t *testing.T) {
	u := New(0, 0x4601)
	u.ConfigureLogicalChannel(4, 1, 0)

	u.HandleSR()
	if got := u.ULPendingBytes(0); got != SRGrantBytes {
		t.Fatalf("SR pending bytes = %d", got)
	}
	if err := u.HandleBSR(1, 1000); err != nil {
		t.Fatalf("HandleBSR: %v", err)
	}
	if got := u.ULPendingBytes(0); got != 1000 {
		t.Fatalf("BSR must take precedence over SR, got %d", got)
	}
	u.ConsumeULBytes(0, 400)
	if u.SRPending() || u.ULPendingBytes(0) != 600 {
		t.Fatalf("after grant: sr=%v bytes=%d", u.SRPending(), u.ULPendingBytes(0))
	}
}

func TestSliceUERepository(t *testing.T) {
	repo := NewSliceUERepository(1)
	for i := 0; i < 3; i++ {
		u := New(model.UEIndex(i*10), model.RNTI(0x4601+i))
		u.ConfigureLogicalChannel(4, 1, 1)
		_ = u.HandleDLBufferState(4, 100*(i+1))
		repo.Add(u)
	}
	repo.Add(repo.UEs()[0].UE)
	if repo.Len() != 3 {
		t.Fatalf("Len() = %d", repo.Len())
	}

	repo.Remove(10)
	if repo.Contains(10) || repo.Len() != 2 {
		t.Fatalf("UE 10 not removed")
	}
	su, ok := repo.Get(20)
	if !ok || su.PendingDLNewTxBytes() != 300 || su.SliceID() != 1 {
		t.Fatalf("Get(20) = %v, %v", su, ok)
	}
	if repo.UEs()[1].Index() != 20 {
		t.Fatalf("order not preserved")
	}
}

func TestCellEligibility(t *testing.T) {
	cfg := core.DefaultCellConfig(0)
	cfg.TDD = &core.TDDPattern{PeriodSlots: 10, DLSlots: 7, ULSlots: 2}
	m := harq.NewManager(0, 4, 4)
	harqs, err := m.AddUE(0, 0x4601, 8, 8)
	if err != nil {
		t.Fatalf("AddUE: %v", err)
	}
	c := NewCell(&cfg, 0, 0x4601, harqs, SearchSpace{AggregationLevel: model.AggregationLevel4, PeriodSlots: 2})

	if !c.IsPDCCHEnabled(model.NewSlotPoint(0, 0, 2)) {
		t.Fatalf("slot 2 is a monitoring occasion")
	}
	if c.IsPDCCHEnabled(model.NewSlotPoint(0, 0, 3)) {
		t.Fatalf("slot 3 is not a monitoring occasion")
	}
	if c.IsPDCCHEnabled(model.NewSlotPoint(0, 0, 8)) || !c.IsULEnabled(model.NewSlotPoint(0, 0, 8)) {
		t.Fatalf("slot 8 is an UL slot")
	}

	c.HandleSNR(-20)
	if c.CQI() != 0 || c.DLMCS() != 0 {
		t.Fatalf("out of range UE: cqi=%d mcs=%d", c.CQI(), c.DLMCS())
	}
	c.HandleCQI(15)
	if c.DLMCS() != core.MaxMCS {
		t.Fatalf("CQI 15 must map to max MCS, got %d", c.DLMCS())
	}
}
