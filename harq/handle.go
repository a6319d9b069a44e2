package harq

import "github.com/signalsfoundry/gnb-scheduler/model"

// Handle references one HARQ process. Handles stay valid across slots; the
// process they point to may change state.
type Handle struct {
	p   *pool
	idx int32
}

// Valid reports whether the handle points to a process.
func (h Handle) Valid() bool { return h.p != nil && h.p.arena[h.idx].used }

func (h Handle) proc() *process { return &h.p.arena[h.idx] }

// Direction returns the link direction of the process.
func (h Handle) Direction() model.Direction { return h.p.dir }

// UEIndex returns the UE that owns the process.
func (h Handle) UEIndex() model.UEIndex { return h.proc().ue }

// RNTI returns the C-RNTI of the owning UE.
func (h Handle) RNTI() model.RNTI { return h.proc().rnti }

// ID returns the HARQ process id.
func (h Handle) ID() model.HARQID { return h.proc().id }

// State returns the current state.
func (h Handle) State() State { return h.proc().state }

// NofRetxs returns how many retransmissions were granted so far.
func (h Handle) NofRetxs() int { return h.proc().nofRetxs }

// MaxRetxs returns the retransmission budget.
func (h Handle) MaxRetxs() int { return h.proc().maxRetxs }

// GrantParams returns the parameters of the last transmission.
func (h Handle) GrantParams() GrantParams { return h.proc().params }

// TxSlot returns the slot of the last PDSCH/PUSCH transmission.
func (h Handle) TxSlot() model.SlotPoint { return h.proc().txSlot }

// AckSlot returns the slot where feedback for the last transmission is due.
func (h Handle) AckSlot() model.SlotPoint { return h.proc().ackSlot }

// IsRetx reports whether the grant awaiting commit is a retransmission.
func (h Handle) IsRetx() bool { return h.proc().retxPending }

// UEHARQs is the view of the HARQ processes of one UE in one cell.
type UEHARQs struct {
	m  *Manager
	ue model.UEIndex
}

// Valid reports whether the view refers to a registered UE.
func (u UEHARQs) Valid() bool { return u.m != nil && u.m.ues[u.ue].present }

// NofDLHARQs returns the number of DL processes of the UE.
func (u UEHARQs) NofDLHARQs() int { return u.m.ues[u.ue].nofDL }

// NofULHARQs returns the number of UL processes of the UE.
func (u UEHARQs) NofULHARQs() int { return u.m.ues[u.ue].nofUL }

// HasEmptyDLHARQs reports whether a DL process is free for a new transmission.
func (u UEHARQs) HasEmptyDLHARQs() bool { return u.findState(&u.m.dl, u.NofDLHARQs(), StateEmpty).Valid() }

// HasEmptyULHARQs reports whether a UL process is free for a new transmission.
func (u UEHARQs) HasEmptyULHARQs() bool { return u.findState(&u.m.ul, u.NofULHARQs(), StateEmpty).Valid() }

// FindPendingDLRetx returns a DL process awaiting retransmission.
func (u UEHARQs) FindPendingDLRetx() (Handle, bool) {
	h := u.findState(&u.m.dl, u.NofDLHARQs(), StatePendingRetx)
	return h, h.Valid()
}

// FindPendingULRetx returns a UL process awaiting retransmission.
func (u UEHARQs) FindPendingULRetx() (Handle, bool) {
	h := u.findState(&u.m.ul, u.NofULHARQs(), StatePendingRetx)
	return h, h.Valid()
}

// DLHARQ returns the DL process with the given id.
func (u UEHARQs) DLHARQ(id model.HARQID) (Handle, bool) {
	if int(id) >= u.NofDLHARQs() {
		return Handle{}, false
	}
	return Handle{p: &u.m.dl, idx: arenaIndex(u.ue, id)}, true
}

// ULHARQ returns the UL process with the given id.
func (u UEHARQs) ULHARQ(id model.HARQID) (Handle, bool) {
	if int(id) >= u.NofULHARQs() {
		return Handle{}, false
	}
	return Handle{p: &u.m.ul, idx: arenaIndex(u.ue, id)}, true
}

// AllocDLNewTx reserves an empty DL process for a first transmission on
// txSlot with feedback expected on ackSlot.
func (u UEHARQs) AllocDLNewTx(txSlot, ackSlot model.SlotPoint, params GrantParams) (Handle, bool) {
	return u.allocNewTx(&u.m.dl, u.NofDLHARQs(), txSlot, ackSlot, params)
}

// AllocULNewTx reserves an empty UL process. The CRC is expected on the PUSCH slot.
func (u UEHARQs) AllocULNewTx(txSlot model.SlotPoint, params GrantParams) (Handle, bool) {
	return u.allocNewTx(&u.m.ul, u.NofULHARQs(), txSlot, txSlot, params)
}

// AllocDLRetx reserves a pending DL process for its next retransmission and
// unlinks it from the pending list.
func (u UEHARQs) AllocDLRetx(id model.HARQID, txSlot, ackSlot model.SlotPoint) (Handle, bool) {
	h, ok := u.DLHARQ(id)
	if !ok {
		return Handle{}, false
	}
	return h, allocRetx(h, txSlot, ackSlot)
}

// AllocULRetx is the UL counterpart of AllocDLRetx.
func (u UEHARQs) AllocULRetx(id model.HARQID, txSlot model.SlotPoint) (Handle, bool) {
	h, ok := u.ULHARQ(id)
	if !ok {
		return Handle{}, false
	}
	return h, allocRetx(h, txSlot, txSlot)
}

func (u UEHARQs) findState(p *pool, n int, st State) Handle {
	for i := 0; i < n; i++ {
		idx := arenaIndex(u.ue, model.HARQID(i))
		if p.arena[idx].used && p.arena[idx].state == st {
			return Handle{p: p, idx: idx}
		}
	}
	return Handle{}
}

func (u UEHARQs) allocNewTx(p *pool, n int, txSlot, ackSlot model.SlotPoint, params GrantParams) (Handle, bool) {
	h := u.findState(p, n, StateEmpty)
	if !h.Valid() {
		return Handle{}, false
	}
	proc := h.proc()
	proc.state = StatePendingTx
	proc.nofRetxs = 0
	proc.params = params
	proc.txSlot = txSlot
	proc.ackSlot = ackSlot
	p.reserve(h.idx)
	return h, true
}

func allocRetx(h Handle, txSlot, ackSlot model.SlotPoint) bool {
	proc := h.proc()
	if !proc.used || proc.state != StatePendingRetx {
		return false
	}
	h.p.pending.remove(h.p.arena, h.idx)
	proc.state = StatePendingTx
	proc.nofRetxs++
	proc.retxPending = true
	proc.txSlot = txSlot
	proc.ackSlot = ackSlot
	h.p.reserve(h.idx)
	return true
}

// SlotTx returns the last slot indicated to the manager.
func (m *Manager) SlotTx() model.SlotPoint { return m.slotTx }
