package hub

import "sync"

// group is one fanout target with its own lock, so broadcasts to one
// conversation never contend with broadcasts to another.
type group struct {
	mu      sync.RWMutex
	members map[*Session]struct{}
	// closed marks a group that was removed from the registry after its
	// last member left; joiners holding a stale pointer must retry.
	closed bool
}

// Registry tracks which sessions belong to which groups. The registry lock
// only guards the group index; membership is guarded per group. All methods
// are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*group
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*group)}
}

func (r *Registry) lookup(name string) *group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[name]
}

// Join adds a session to a group.
func (r *Registry) Join(name string, s *Session) {
	for {
		r.mu.Lock()
		g, ok := r.groups[name]
		if !ok {
			g = &group{members: make(map[*Session]struct{})}
			r.groups[name] = g
		}
		r.mu.Unlock()

		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			continue
		}
		g.members[s] = struct{}{}
		g.mu.Unlock()
		return
	}
}

// Leave removes a session from a group. Empty groups are dropped.
func (r *Registry) Leave(name string, s *Session) {
	g := r.lookup(name)
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.members, s)
	empty := len(g.members) == 0
	g.mu.Unlock()
	if empty {
		r.reap(name, g)
	}
}

// reap drops a group that went empty. Membership is re-checked under both
// locks since a session may have joined in the meantime.
func (r *Registry) reap(name string, g *group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.groups[name] != g {
		return
	}
	g.mu.Lock()
	if len(g.members) == 0 {
		g.closed = true
		delete(r.groups, name)
	}
	g.mu.Unlock()
}

// LeaveAll removes the session from every group it belongs to.
func (r *Registry) LeaveAll(s *Session) {
	r.mu.RLock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	r.mu.RUnlock()

	for _, name := range names {
		r.Leave(name, s)
	}
}

// Count returns the number of sessions in a group.
func (r *Registry) Count(name string) int {
	g := r.lookup(name)
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// Members returns a snapshot of the sessions in a group.
func (r *Registry) Members(name string) []*Session {
	g := r.lookup(name)
	if g == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Session, 0, len(g.members))
	for s := range g.members {
		out = append(out, s)
	}
	return out
}

// Broadcast enqueues data on every session in the group, skipping except if
// non-nil. It returns how many sessions accepted the frame and how many
// dropped it because their buffers were full.
func (r *Registry) Broadcast(name string, data []byte, except *Session) (sent, dropped int) {
	for _, s := range r.Members(name) {
		if s == except {
			continue
		}
		if s.enqueue(data) {
			sent++
		} else {
			dropped++
		}
	}
	return sent, dropped
}
