package gateway

import (
	"sync"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/pkg/metrics"
	"github.com/aman-2709/vehicle-sovd-sub000/pkg/log"
)

// Registry tracks the live connections of every command.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Conn]struct{}
	total int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Conn]struct{})}
}

// Register adds c under its command.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.CommandID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[c.CommandID] = set
	}
	if _, dup := set[c]; dup {
		return
	}
	set[c] = struct{}{}
	r.total++
	metrics.WebSocketConnections.Set(float64(r.total))
}

// Deregister removes c and drops the command entry with its last connection.
// It reports whether c was registered.
func (r *Registry) Deregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.CommandID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.CommandID)
	}
	r.total--
	metrics.WebSocketConnections.Set(float64(r.total))
	return true
}

// Connections returns a snapshot of the connections of a command.
func (r *Registry) Connections(commandID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[commandID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Commands returns the ids of all commands with live connections.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Broadcast calls send for every live connection of the command. A connection
// whose send fails is deregistered and closed; the others are unaffected.
// It returns the number of successful sends.
func (r *Registry) Broadcast(commandID string, send func(*Conn) error) int {
	delivered := 0
	for _, c := range r.Connections(commandID) {
		if err := send(c); err != nil {
			log.Warn("Dropping connection after failed send", "command_id", commandID, "conn_id", c.ID, "error", err.Error())
			r.Deregister(c)
			_ = c.Close()
			continue
		}
		delivered++
	}
	return delivered
}
