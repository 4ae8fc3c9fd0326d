package invite

import (
	"context"
	"sync"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
)

// entry is one supervised session. mu guards session; every transition
// claims it by flipping State under mu, so only one caller ever acts.
type entry struct {
	mu      sync.Mutex
	session domain.InviteSession

	ctx    context.Context // scope of the poll loop and expiry timer
	cancel context.CancelFunc
}

func (e *entry) snapshot() domain.InviteSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *entry) active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.session.State.Terminal()
}

// registry indexes supervised sessions by id and user. Entries stay in it
// until their terminal side effects are settled, so a concurrent Revoke
// sees the claimed state instead of falling through to the store.
type registry struct {
	mu       sync.RWMutex
	byID     map[string]*entry
	byUser   map[int64]map[string]*entry
	inFlight map[int64]int
}

func newRegistry() *registry {
	return &registry{
		byID:     make(map[string]*entry),
		byUser:   make(map[int64]map[string]*entry),
		inFlight: make(map[int64]int),
	}
}

func (r *registry) add(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, user := e.session.ID, e.session.UserID
	r.byID[id] = e
	if r.byUser[user] == nil {
		r.byUser[user] = make(map[string]*entry)
	}
	r.byUser[user][id] = e
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	user := e.session.UserID
	delete(r.byUser[user], id)
	if len(r.byUser[user]) == 0 {
		delete(r.byUser, user)
	}
}

func (r *registry) get(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// activeFor returns the user's entries that have not reached a terminal state.
func (r *registry) activeFor(userID int64) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entry
	for _, e := range r.byUser[userID] {
		if e.active() {
			out = append(out, e)
		}
	}
	return out
}

func (r *registry) activeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.byID {
		if e.active() {
			n++
		}
	}
	return n
}

// reserve marks an issue in flight for userID. With exclusive set it fails
// when another issue for the user is already in flight, and with
// requireIdle it also fails while the user holds an active session.
// The returned func releases the reservation.
func (r *registry) reserve(userID int64, exclusive, requireIdle bool) (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if exclusive && r.inFlight[userID] > 0 {
		return nil, false
	}
	if requireIdle {
		for _, e := range r.byUser[userID] {
			if e.active() {
				return nil, false
			}
		}
	}

	r.inFlight[userID]++
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.inFlight[userID]--; r.inFlight[userID] <= 0 {
			delete(r.inFlight, userID)
		}
	}, true
}
