// Package harq keeps the HARQ processes of every UE of a cell.
//
// Processes live in a per-direction arena and are addressed by a stable
// integer index (UE index * MaxNofHARQs + HARQ id). A process is linked into at
// most one intrusive list at a time: the pending-retransmission list or the
// awaiting-feedback list. Removing a process from a list only touches its own
// links, so iterators that prefetch the next node survive the removal of the
// node they just yielded.
package harq

import "github.com/signalsfoundry/gnb-scheduler/model"

// State is the lifecycle state of a HARQ process.
type State uint8

const (
	// StateEmpty means the process is free for a new transmission.
	StateEmpty State = iota
	// StatePendingTx means the process was granted in the current slot and the
	// grant is not yet committed.
	StatePendingTx
	// StateWaitingAck means the transmission is in flight and feedback is due.
	StateWaitingAck
	// StatePendingRetx means the last transmission failed and a retransmission
	// is owed.
	StatePendingRetx
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePendingTx:
		return "pending_tx"
	case StateWaitingAck:
		return "waiting_ack"
	case StatePendingRetx:
		return "pending_retx"
	default:
		return "unknown"
	}
}

// GrantParams are the parameters of the last transmission of a process,
// reused when retransmitting.
type GrantParams struct {
	Slice    model.SliceID
	NofRBs   int
	TBSBytes int
	MCS      uint8
}

const nilIndex int32 = -1

type listID uint8

const (
	noList listID = iota
	pendingRetxList
	waitingAckList
)

type process struct {
	used     bool
	ue       model.UEIndex
	rnti     model.RNTI
	id       model.HARQID
	state    State
	nofRetxs int
	maxRetxs int
	params   GrantParams

	txSlot   model.SlotPoint
	ackSlot  model.SlotPoint
	deadline model.SlotPoint

	// retxPending is set while a retransmission grant awaits commit.
	retxPending bool

	list       listID
	prev, next int32
}

// intrusiveList is a FIFO of arena indices linked through the processes.
type intrusiveList struct {
	head, tail int32
	len        int
}

func newList() intrusiveList { return intrusiveList{head: nilIndex, tail: nilIndex} }

func (l *intrusiveList) pushBack(arena []process, idx int32, id listID) {
	p := &arena[idx]
	p.list = id
	p.prev = l.tail
	p.next = nilIndex
	if l.tail != nilIndex {
		arena[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.len++
}

func (l *intrusiveList) remove(arena []process, idx int32) {
	p := &arena[idx]
	if p.prev != nilIndex {
		arena[p.prev].next = p.next
	} else {
		l.head = p.next
	}
	if p.next != nilIndex {
		arena[p.next].prev = p.prev
	} else {
		l.tail = p.prev
	}
	p.prev, p.next = nilIndex, nilIndex
	p.list = noList
	l.len--
}
