// ABOUTME: Live set of authenticated clients with add/remove lifecycle hooks.
// ABOUTME: Iteration goes through snapshots so clients may leave mid-broadcast.

package clients

import (
	"log/slog"
	"sort"
	"sync"
)

// Hook is called after a client joins or leaves the registry.
type Hook func(c *Client)

// Registry tracks connected clients by connection ID.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	onAdd    []Hook
	onRemove []Hook
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger.With("component", "registry"),
	}
}

// OnAdd registers fn to run after every successful Add.
func (r *Registry) OnAdd(fn Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAdd = append(r.onAdd, fn)
}

// OnRemove registers fn to run after every client removal.
func (r *Registry) OnRemove(fn Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}

// Add admits c. The client is removed automatically once it closes.
// Hooks run outside the registry lock.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	hooks := append([]Hook(nil), r.onAdd...)
	count := len(r.clients)
	r.mu.Unlock()

	r.logger.Info("client connected",
		"conn_id", c.ID,
		"role", c.Role(),
		"client", c.Info.DisplayName,
		"clients", count,
	)

	for _, fn := range hooks {
		fn(c)
	}

	go func() {
		<-c.Done()
		r.Remove(c)
	}()
}

// Remove drops c if it is still registered and reports whether it was.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	current, ok := r.clients[c.ID]
	if !ok || current != c {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, c.ID)
	hooks := append([]Hook(nil), r.onRemove...)
	count := len(r.clients)
	r.mu.Unlock()

	r.logger.Info("client disconnected", "conn_id", c.ID, "clients", count)

	for _, fn := range hooks {
		fn(c)
	}
	return true
}

// Get returns the client with the given connection ID.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Snapshot returns the current clients ordered by connection time.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	list := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].ConnectedAt.Equal(list[j].ConnectedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].ConnectedAt.Before(list[j].ConnectedAt)
	})
	return list
}

// Len returns the number of connected clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every client with code and reason. Removal follows
// asynchronously as each client's Done channel fires.
func (r *Registry) CloseAll(code int, reason string) {
	for _, c := range r.Snapshot() {
		c.Close(code, reason)
	}
}
