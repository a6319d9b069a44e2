package ue

import "github.com/signalsfoundry/gnb-scheduler/model"

// SliceUE is a UE seen through one slice: pending bytes only count the
// bearers of that slice.
type SliceUE struct {
	*UE
	slice model.SliceID
}

// SliceID returns the slice of the view.
func (s *SliceUE) SliceID() model.SliceID { return s.slice }

// PendingDLNewTxBytes returns the DL bytes waiting for a new transmission.
func (s *SliceUE) PendingDLNewTxBytes() int { return s.UE.DLPendingBytes(s.slice) }

// PendingULNewTxBytes returns the UL bytes waiting for a new transmission.
func (s *SliceUE) PendingULNewTxBytes() int { return s.UE.ULPendingBytes(s.slice) }

// SliceUERepository is the ordered set of UEs of a slice, addressable by UE
// index.
type SliceUERepository struct {
	slice model.SliceID
	ues   []*SliceUE
	// pos holds the position in ues plus one; zero means absent.
	pos [model.MaxNofUEs]int32
}

// NewSliceUERepository returns an empty view for the slice.
func NewSliceUERepository(slice model.SliceID) *SliceUERepository {
	return &SliceUERepository{slice: slice}
}

// SliceID returns the slice of the repository.
func (r *SliceUERepository) SliceID() model.SliceID { return r.slice }

// Add inserts a UE at the end of the order. Adding a member again is a no-op.
func (r *SliceUERepository) Add(u *UE) {
	if r.pos[u.Index()] != 0 {
		return
	}
	r.ues = append(r.ues, &SliceUE{UE: u, slice: r.slice})
	r.pos[u.Index()] = int32(len(r.ues))
}

// Remove drops a UE keeping the order of the others.
func (r *SliceUERepository) Remove(idx model.UEIndex) {
	p := r.pos[idx]
	if p == 0 {
		return
	}
	r.ues = append(r.ues[:p-1], r.ues[p:]...)
	r.pos[idx] = 0
	for i := int(p - 1); i < len(r.ues); i++ {
		r.pos[r.ues[i].Index()] = int32(i + 1)
	}
}

// Len returns the number of UEs in the slice.
func (r *SliceUERepository) Len() int { return len(r.ues) }

// Contains reports membership of a UE.
func (r *SliceUERepository) Contains(idx model.UEIndex) bool {
	return int(idx) < model.MaxNofUEs && r.pos[idx] != 0
}

// Get returns the member with the given UE index.
func (r *SliceUERepository) Get(idx model.UEIndex) (*SliceUE, bool) {
	if !r.Contains(idx) {
		return nil, false
	}
	return r.ues[r.pos[idx]-1], true
}

// UEs returns the members in insertion order. The slice must not be modified.
func (r *SliceUERepository) UEs() []*SliceUE { return r.ues }
