// Package eventq queues callbacks that must run on the scheduling goroutine at
// a slot boundary: HARQ feedback arriving in a later slot and control inputs
// posted from other goroutines.
package eventq

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/gnb-scheduler/model"
)

type event struct {
	id        string
	at        model.SlotPoint
	f         func()
	cancelled bool
}

// Queue is a slot-ordered callback queue. It is safe for concurrent use;
// callbacks run outside the lock, so they may schedule further events.
type Queue struct {
	mu      sync.Mutex
	counter uint64
	posted  []*event
	events  []*event // ordered by slot, FIFO within a slot
	index   map[string]*event
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{index: make(map[string]*event)}
}

// Schedule registers f to run at the first RunDue whose slot is not before at.
// The returned id can be passed to Cancel.
func (q *Queue) Schedule(at model.SlotPoint, f func()) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ev := q.newEventLocked(at, f)
	idx := sort.Search(len(q.events), func(i int) bool {
		return ev.at.Less(q.events[i].at)
	})
	q.events = append(q.events, nil)
	copy(q.events[idx+1:], q.events[idx:])
	q.events[idx] = ev
	return ev.id
}

// Post registers f to run at the next RunDue, ahead of slot-keyed events.
func (q *Queue) Post(f func()) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ev := q.newEventLocked(model.SlotPoint{}, f)
	q.posted = append(q.posted, ev)
	return ev.id
}

func (q *Queue) newEventLocked(at model.SlotPoint, f func()) *event {
	q.counter++
	ev := &event{id: fmt.Sprintf("ev-%d", q.counter), at: at, f: f}
	q.index[ev.id] = ev
	return ev
}

// Cancel drops a pending event. Unknown or already run ids are ignored.
func (q *Queue) Cancel(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ev, ok := q.index[id]
	if !ok {
		return
	}
	// Removal from the lists is lazy.
	ev.cancelled = true
	delete(q.index, id)
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

func (q *Queue) popLocked(now model.SlotPoint) *event {
	for len(q.posted) > 0 {
		ev := q.posted[0]
		q.posted[0] = nil
		q.posted = q.posted[1:]
		if !ev.cancelled {
			return ev
		}
	}
	for len(q.events) > 0 {
		ev := q.events[0]
		if !ev.cancelled && now.Less(ev.at) {
			return nil
		}
		q.events[0] = nil
		q.events = q.events[1:]
		if !ev.cancelled {
			return ev
		}
	}
	return nil
}

// RunDue runs every posted event and every event scheduled at or before now,
// and returns how many ran.
func (q *Queue) RunDue(now model.SlotPoint) int {
	n := 0
	for {
		q.mu.Lock()
		ev := q.popLocked(now)
		if ev != nil {
			delete(q.index, ev.id)
		}
		q.mu.Unlock()
		if ev == nil {
			return n
		}
		if ev.f != nil {
			ev.f()
		}
		n++
	}
}
