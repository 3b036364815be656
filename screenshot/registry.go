package screenshot

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the one active session of a process. Dispatchers find
// their controller through it by id, so a deregistered controller is simply
// not found.
type Registry struct {
	mu     sync.Mutex
	id     uuid.UUID
	active *Controller
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register makes c the active session and returns its id. It fails with
// ErrSessionActive while another session is registered.
func (r *Registry) Register(c *Controller) (uuid.UUID, error) {
	if c == nil {
		return uuid.Nil, fmt.Errorf("register: nil controller")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return uuid.Nil, fmt.Errorf("%w: session %s", ErrSessionActive, r.id)
	}
	r.id = uuid.New()
	r.active = c
	return r.id, nil
}

// Deregister removes the session with id. It reports whether it was active.
func (r *Registry) Deregister(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.id != id {
		return false
	}
	r.active = nil
	r.id = uuid.Nil
	return true
}

func (r *Registry) Lookup(id uuid.UUID) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.id != id {
		return nil, false
	}
	return r.active, true
}

// Active returns the id of the registered session, if any.
func (r *Registry) Active() (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id, r.active != nil
}
