package harq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

type countingRecorder struct {
	timeouts map[model.Direction]int
	discards map[model.Direction]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{timeouts: map[model.Direction]int{}, discards: map[model.Direction]int{}}
}

func (r *countingRecorder) ObserveHARQTimeout(dir model.Direction) { r.timeouts[dir]++ }
func (r *countingRecorder) ObserveHARQDiscard(dir model.Direction) { r.discards[dir]++ }

var slot0 = model.NewSlotPoint(0, 0, 0)

// sendAndNack transmits on the first empty DL process of u and NACKs it.
func sendAndNack(t *testing.T, m *Manager, u UEHARQs, params GrantParams) Handle {
	t.Helper()
	h, ok := u.AllocDLNewTx(slot0, slot0.Add(4), params)
	require.True(t, ok)
	m.CommitReserved()
	require.NoError(t, m.DLAck(h.UEIndex(), h.ID(), false))
	require.Equal(t, StatePendingRetx, h.State())
	return h
}

func TestNewTxAckFreesProcess(t *testing.T) {
	m := NewManager(0, 4, 4)
	u, err := m.AddUE(1, 0x4601, 2, 2)
	require.NoError(t, err)

	h, ok := u.AllocDLNewTx(slot0, slot0.Add(4), GrantParams{Slice: 1, NofRBs: 10})
	require.True(t, ok)
	assert.Equal(t, StatePendingTx, h.State())

	m.CommitReserved()
	assert.Equal(t, StateWaitingAck, h.State())
	assert.Equal(t, 1, m.NofWaitingAck(model.Downlink))

	require.NoError(t, m.DLAck(1, h.ID(), true))
	assert.Equal(t, StateEmpty, h.State())
	assert.Equal(t, 0, m.NofWaitingAck(model.Downlink))
	assert.True(t, u.HasEmptyDLHARQs())
}

func TestNoEmptyHARQs(t *testing.T) {
	m := NewManager(0, 4, 4)
	u, err := m.AddUE(1, 0x4601, 1, 1)
	require.NoError(t, err)

	_, ok := u.AllocULNewTx(slot0, GrantParams{})
	require.True(t, ok)
	assert.False(t, u.HasEmptyULHARQs())
	_, ok = u.AllocULNewTx(slot0, GrantParams{})
	assert.False(t, ok)
	_, pending := u.FindPendingULRetx()
	assert.False(t, pending)
}

func TestPendingRetxIterationToleratesRemoval(t *testing.T) {
	m := NewManager(0, 4, 4)
	var handles []Handle
	for ue := model.UEIndex(0); ue < 3; ue++ {
		u, err := m.AddUE(ue, model.RNTI(0x4601+int(ue)), 4, 4)
		require.NoError(t, err)
		handles = append(handles, sendAndNack(t, m, u, GrantParams{Slice: model.SliceID(ue)}))
	}
	require.Equal(t, 3, m.NofPendingRetxs(model.Downlink))

	var visited []model.UEIndex
	for h := range m.PendingDLRetxs() {
		visited = append(visited, h.UEIndex())
		u, _ := m.UE(h.UEIndex())
		_, ok := u.AllocDLRetx(h.ID(), slot0.Add(8), slot0.Add(12))
		require.True(t, ok)
	}
	assert.Equal(t, []model.UEIndex{0, 1, 2}, visited)
	assert.Equal(t, 0, m.NofPendingRetxs(model.Downlink))

	m.CommitReserved()
	for _, h := range handles {
		assert.Equal(t, StateWaitingAck, h.State())
		assert.Equal(t, 1, h.NofRetxs())
		assert.Equal(t, slot0.Add(12), h.AckSlot())
	}
}

func TestIterationStopsEarly(t *testing.T) {
	m := NewManager(0, 4, 4)
	for ue := model.UEIndex(0); ue < 3; ue++ {
		u, err := m.AddUE(ue, model.RNTI(0x4601+int(ue)), 1, 1)
		require.NoError(t, err)
		sendAndNack(t, m, u, GrantParams{})
	}
	n := 0
	for range m.PendingDLRetxs() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestMaxRetxsDiscards(t *testing.T) {
	rec := newCountingRecorder()
	m := NewManager(0, 1, 1, WithEventRecorder(rec))
	u, err := m.AddUE(0, 0x4601, 1, 1)
	require.NoError(t, err)

	h := sendAndNack(t, m, u, GrantParams{})
	_, ok := u.AllocDLRetx(h.ID(), slot0.Add(8), slot0.Add(12))
	require.True(t, ok)
	assert.True(t, h.IsRetx())
	m.CommitReserved()

	require.NoError(t, m.DLAck(0, h.ID(), false))
	assert.Equal(t, StateEmpty, h.State())
	assert.Equal(t, 1, rec.discards[model.Downlink])
}

func TestFeedbackTimeout(t *testing.T) {
	rec := newCountingRecorder()
	m := NewManager(0, 4, 4, WithTimeoutSlots(10), WithEventRecorder(rec))
	u, err := m.AddUE(0, 0x4601, 2, 2)
	require.NoError(t, err)

	h, ok := u.AllocULNewTx(slot0.Add(4), GrantParams{})
	require.True(t, ok)
	m.CommitReserved()

	m.SlotIndication(slot0.Add(14))
	assert.Equal(t, StateWaitingAck, h.State(), "deadline slot itself is not late")

	m.SlotIndication(slot0.Add(15))
	assert.Equal(t, StatePendingRetx, h.State())
	assert.Equal(t, 1, rec.timeouts[model.Uplink])
	_, pending := u.FindPendingULRetx()
	assert.True(t, pending)
}

func TestFeedbackErrors(t *testing.T) {
	m := NewManager(0, 4, 4)
	_, err := m.AddUE(0, 0x4601, 2, 2)
	require.NoError(t, err)

	_, err = m.AddUE(0, 0x4601, 2, 2)
	assert.ErrorIs(t, err, ErrUEExists)
	assert.ErrorIs(t, m.DLAck(5, 0, true), ErrUnknownProcess)
	assert.ErrorIs(t, m.DLAck(0, 3, true), ErrUnknownProcess)
	assert.ErrorIs(t, m.ULCRC(0, 0, true), ErrNoFeedbackExpected)
}

func TestRemoveUEUnlinksPending(t *testing.T) {
	m := NewManager(0, 4, 4)
	u, err := m.AddUE(0, 0x4601, 2, 2)
	require.NoError(t, err)
	sendAndNack(t, m, u, GrantParams{})

	m.RemoveUE(0)
	assert.Equal(t, 0, m.NofPendingRetxs(model.Downlink))
	_, ok := m.UE(0)
	assert.False(t, ok)
}
