package harq

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/signalsfoundry/gnb-scheduler/internal/logging"
	"github.com/signalsfoundry/gnb-scheduler/model"
)

// DefaultTimeoutSlots is how long after the expected feedback slot a process
// waits before the missing feedback is treated as a NACK.
const DefaultTimeoutSlots = 100

var (
	// ErrUEExists indicates HARQ entities were already created for the UE.
	ErrUEExists = errors.New("harq entity already exists")
	// ErrUnknownProcess indicates feedback for a UE or HARQ id with no process.
	ErrUnknownProcess = errors.New("unknown harq process")
	// ErrNoFeedbackExpected indicates feedback for a process that is not in flight.
	ErrNoFeedbackExpected = errors.New("harq process is not awaiting feedback")
)

// EventRecorder receives HARQ events worth exporting as metrics.
type EventRecorder interface {
	ObserveHARQTimeout(dir model.Direction)
	ObserveHARQDiscard(dir model.Direction)
}

type ueEntry struct {
	present bool
	nofDL   int
	nofUL   int
}

type pool struct {
	dir      model.Direction
	arena    []process
	pending  intrusiveList
	waiting  intrusiveList
	reserved []int32
	maxRetxs int
}

// Manager owns the DL and UL HARQ processes of every UE of one cell.
// It is not safe for concurrent use; feedback is applied on the scheduling
// goroutine between slots.
type Manager struct {
	cell         model.CellIndex
	dl, ul       pool
	ues          [model.MaxNofUEs]ueEntry
	timeoutSlots int
	slotTx       model.SlotPoint

	log      logging.Logger
	recorder EventRecorder
}

// Option customises Manager construction.
type Option func(*Manager)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithTimeoutSlots overrides DefaultTimeoutSlots.
func WithTimeoutSlots(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.timeoutSlots = n
		}
	}
}

// WithEventRecorder attaches a recorder for timeouts and discarded processes.
func WithEventRecorder(r EventRecorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager builds an empty HARQ manager for a cell.
func NewManager(cell model.CellIndex, maxDLRetxs, maxULRetxs int, opts ...Option) *Manager {
	m := &Manager{
		cell:         cell,
		dl:           pool{dir: model.Downlink, pending: newList(), waiting: newList(), maxRetxs: maxDLRetxs},
		ul:           pool{dir: model.Uplink, pending: newList(), waiting: newList(), maxRetxs: maxULRetxs},
		timeoutSlots: DefaultTimeoutSlots,
		log:          logging.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cell returns the cell the manager belongs to.
func (m *Manager) Cell() model.CellIndex { return m.cell }

// AddUE creates the HARQ entities of a UE.
func (m *Manager) AddUE(ue model.UEIndex, rnti model.RNTI, nofDL, nofUL int) (UEHARQs, error) {
	if int(ue) >= model.MaxNofUEs {
		return UEHARQs{}, fmt.Errorf("%w: ue=%d", ErrUnknownProcess, ue)
	}
	if m.ues[ue].present {
		return UEHARQs{}, fmt.Errorf("%w: ue=%d", ErrUEExists, ue)
	}
	nofDL = min(max(nofDL, 1), model.MaxNofHARQs)
	nofUL = min(max(nofUL, 1), model.MaxNofHARQs)
	m.dl.initUE(ue, rnti, nofDL)
	m.ul.initUE(ue, rnti, nofUL)
	m.ues[ue] = ueEntry{present: true, nofDL: nofDL, nofUL: nofUL}
	return UEHARQs{m: m, ue: ue}, nil
}

// RemoveUE releases all processes of a UE, dropping any pending retransmission.
func (m *Manager) RemoveUE(ue model.UEIndex) {
	if int(ue) >= model.MaxNofUEs || !m.ues[ue].present {
		return
	}
	m.dl.releaseUE(ue, m.ues[ue].nofDL)
	m.ul.releaseUE(ue, m.ues[ue].nofUL)
	m.ues[ue] = ueEntry{}
}

// UE returns the HARQ view of a UE.
func (m *Manager) UE(ue model.UEIndex) (UEHARQs, bool) {
	if int(ue) >= model.MaxNofUEs || !m.ues[ue].present {
		return UEHARQs{}, false
	}
	return UEHARQs{m: m, ue: ue}, true
}

// SlotIndication advances the manager. Processes whose feedback deadline has
// passed are treated as NACKed.
func (m *Manager) SlotIndication(sl model.SlotPoint) {
	m.slotTx = sl
	m.expire(&m.dl, sl)
	m.expire(&m.ul, sl)
}

func (m *Manager) expire(p *pool, sl model.SlotPoint) {
	for p.waiting.head != nilIndex {
		idx := p.waiting.head
		proc := &p.arena[idx]
		if !proc.deadline.Less(sl) {
			return
		}
		m.log.Warn(context.Background(), "harq feedback timeout",
			logging.Any("cell", m.cell),
			logging.Any("ue", proc.ue),
			logging.String("rnti", proc.rnti.String()),
			logging.String("dir", p.dir.String()),
			logging.Any("h_id", proc.id),
			logging.String("ack_slot", proc.ackSlot.String()),
		)
		if m.recorder != nil {
			m.recorder.ObserveHARQTimeout(p.dir)
		}
		m.feedback(p, idx, false)
	}
}

// PendingDLRetxs iterates the DL processes awaiting retransmission, oldest
// first. The next node is fetched before the current one is yielded, so the
// caller may allocate (and thereby unlink) the yielded process. Other list
// members must not be mutated during the iteration.
func (m *Manager) PendingDLRetxs() iter.Seq[Handle] { return m.dl.pendingSeq() }

// PendingULRetxs is the UL counterpart of PendingDLRetxs.
func (m *Manager) PendingULRetxs() iter.Seq[Handle] { return m.ul.pendingSeq() }

// NofPendingRetxs returns the length of the pending list of a direction.
func (m *Manager) NofPendingRetxs(dir model.Direction) int {
	return m.pool(dir).pending.len
}

// NofWaitingAck returns the number of processes with feedback outstanding.
func (m *Manager) NofWaitingAck(dir model.Direction) int {
	return m.pool(dir).waiting.len
}

// CommitReserved moves every process granted in the current slot to the
// awaiting-feedback state.
func (m *Manager) CommitReserved() {
	m.commit(&m.dl)
	m.commit(&m.ul)
}

func (m *Manager) commit(p *pool) {
	for _, idx := range p.reserved {
		proc := &p.arena[idx]
		if proc.state != StatePendingTx {
			continue
		}
		proc.state = StateWaitingAck
		proc.retxPending = false
		proc.deadline = proc.ackSlot.Add(m.timeoutSlots)
		p.waiting.pushBack(p.arena, idx, waitingAckList)
	}
	p.reserved = p.reserved[:0]
}

// DLAck applies HARQ-ACK feedback to a DL process.
func (m *Manager) DLAck(ue model.UEIndex, id model.HARQID, ack bool) error {
	idx, err := m.lookup(&m.dl, ue, id)
	if err != nil {
		return err
	}
	return m.feedback(&m.dl, idx, ack)
}

// ULCRC applies a PUSCH CRC indication to a UL process.
func (m *Manager) ULCRC(ue model.UEIndex, id model.HARQID, ok bool) error {
	idx, err := m.lookup(&m.ul, ue, id)
	if err != nil {
		return err
	}
	return m.feedback(&m.ul, idx, ok)
}

func (m *Manager) lookup(p *pool, ue model.UEIndex, id model.HARQID) (int32, error) {
	if int(ue) >= model.MaxNofUEs || !m.ues[ue].present {
		return nilIndex, fmt.Errorf("%w: ue=%d", ErrUnknownProcess, ue)
	}
	n := m.ues[ue].nofDL
	if p.dir == model.Uplink {
		n = m.ues[ue].nofUL
	}
	if int(id) >= n {
		return nilIndex, fmt.Errorf("%w: ue=%d h_id=%d", ErrUnknownProcess, ue, id)
	}
	return arenaIndex(ue, id), nil
}

func (m *Manager) feedback(p *pool, idx int32, ok bool) error {
	proc := &p.arena[idx]
	if proc.state != StateWaitingAck {
		return fmt.Errorf("%w: ue=%d h_id=%d state=%s", ErrNoFeedbackExpected, proc.ue, proc.id, proc.state)
	}
	p.waiting.remove(p.arena, idx)
	if ok {
		proc.reset()
		return nil
	}
	if proc.nofRetxs < proc.maxRetxs {
		proc.state = StatePendingRetx
		p.pending.pushBack(p.arena, idx, pendingRetxList)
		return nil
	}
	m.log.Info(context.Background(), "harq discarded after max retransmissions",
		logging.Any("cell", m.cell),
		logging.Any("ue", proc.ue),
		logging.String("dir", p.dir.String()),
		logging.Any("h_id", proc.id),
		logging.Int("nof_retxs", proc.nofRetxs),
	)
	if m.recorder != nil {
		m.recorder.ObserveHARQDiscard(p.dir)
	}
	proc.reset()
	return nil
}

func (m *Manager) pool(dir model.Direction) *pool {
	if dir == model.Uplink {
		return &m.ul
	}
	return &m.dl
}

func arenaIndex(ue model.UEIndex, id model.HARQID) int32 {
	return int32(ue)*model.MaxNofHARQs + int32(id)
}

func (p *pool) initUE(ue model.UEIndex, rnti model.RNTI, n int) {
	need := int(arenaIndex(ue, 0)) + model.MaxNofHARQs
	if len(p.arena) < need {
		p.arena = append(p.arena, make([]process, need-len(p.arena))...)
	}
	for i := 0; i < n; i++ {
		p.arena[arenaIndex(ue, model.HARQID(i))] = process{
			used:     true,
			ue:       ue,
			rnti:     rnti,
			id:       model.HARQID(i),
			maxRetxs: p.maxRetxs,
			prev:     nilIndex,
			next:     nilIndex,
		}
	}
}

func (p *pool) releaseUE(ue model.UEIndex, n int) {
	for i := 0; i < n; i++ {
		idx := arenaIndex(ue, model.HARQID(i))
		switch p.arena[idx].list {
		case pendingRetxList:
			p.pending.remove(p.arena, idx)
		case waitingAckList:
			p.waiting.remove(p.arena, idx)
		}
		p.arena[idx] = process{prev: nilIndex, next: nilIndex}
	}
}

func (p *pool) pendingSeq() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for idx := p.pending.head; idx != nilIndex; {
			next := p.arena[idx].next
			if !yield(Handle{p: p, idx: idx}) {
				return
			}
			idx = next
		}
	}
}

func (p *pool) reserve(idx int32) {
	p.reserved = append(p.reserved, idx)
}

func (proc *process) reset() {
	proc.state = StateEmpty
	proc.nofRetxs = 0
	proc.retxPending = false
	proc.params = GrantParams{}
	proc.txSlot = model.SlotPoint{}
	proc.ackSlot = model.SlotPoint{}
	proc.deadline = model.SlotPoint{}
}
