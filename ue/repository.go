package ue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

var (
	// ErrUEExists indicates a UE with the same index is already registered.
	ErrUEExists = errors.New("ue already exists")
	// ErrUENotFound indicates a requested UE is not registered.
	ErrUENotFound = errors.New("ue not found")
	// ErrRNTIInUse indicates the C-RNTI is held by another UE.
	ErrRNTIInUse = errors.New("rnti already in use")
)

// Repository is a thread-safe store of the UEs of a DU, keyed by UE index
// with a secondary C-RNTI index. The lock guards membership only; UE contents
// are mutated by the scheduling goroutine.
type Repository struct {
	mu sync.RWMutex

	ues    [model.MaxNofUEs]*UE
	byRNTI map[model.RNTI]model.UEIndex
	count  int
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{byRNTI: make(map[model.RNTI]model.UEIndex)}
}

// Add registers a UE.
func (r *Repository) Add(u *UE) error {
	if int(u.Index()) >= model.MaxNofUEs {
		return fmt.Errorf("%w: ue index %d out of range", ErrUENotFound, u.Index())
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ues[u.Index()] != nil {
		return fmt.Errorf("%w: ue=%d", ErrUEExists, u.Index())
	}
	if _, taken := r.byRNTI[u.CRNTI()]; taken {
		return fmt.Errorf("%w: rnti=%s", ErrRNTIInUse, u.CRNTI())
	}
	r.ues[u.Index()] = u
	r.byRNTI[u.CRNTI()] = u.Index()
	r.count++
	return nil
}

// Remove unregisters a UE and returns it.
func (r *Repository) Remove(idx model.UEIndex) (*UE, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(idx) >= model.MaxNofUEs || r.ues[idx] == nil {
		return nil, fmt.Errorf("%w: ue=%d", ErrUENotFound, idx)
	}
	u := r.ues[idx]
	r.ues[idx] = nil
	delete(r.byRNTI, u.CRNTI())
	r.count--
	return u, nil
}

// Find returns the UE with the given index, or nil if not found.
func (r *Repository) Find(idx model.UEIndex) *UE {
	if int(idx) >= model.MaxNofUEs {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ues[idx]
}

// FindByRNTI returns the UE holding the C-RNTI, or nil if not found.
func (r *Repository) FindByRNTI(rnti model.RNTI) *UE {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byRNTI[rnti]
	if !ok {
		return nil
	}
	return r.ues[idx]
}

// Len returns the number of registered UEs.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// List returns a snapshot slice of all UEs ordered by index.
func (r *Repository) List() []*UE {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*UE, 0, r.count)
	for _, u := range r.ues {
		if u != nil {
			res = append(res, u)
		}
	}
	return res
}

// NextFreeIndex returns the lowest unused UE index.
func (r *Repository) NextFreeIndex() (model.UEIndex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, u := range r.ues {
		if u == nil {
			return model.UEIndex(i), true
		}
	}
	return 0, false
}
