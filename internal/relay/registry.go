package relay

import "sync"

// Registry binds live connections to session tokens. At most one connection
// is bound per token; a later registration for the same token replaces the
// handle and the earlier connection stays open but no longer receives
// pushes.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Bind registers the connection as the live handle for the token,
// replacing any previous handle.
func (r *Registry) Bind(token string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[token] = c
}

// Unbind removes the token binding for a closing connection. If the token
// was rebound to a newer connection in the meantime, the newer binding is
// left untouched. No-op for unbound connections.
func (r *Registry) Unbind(c *Client) {
	token, _ := c.identity()
	if token == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.clients[token]; ok && cur == c {
		delete(r.clients, token)
	}
}

// Push hands an event to the connection bound to the token. It never
// blocks: a missing binding, a closed connection or a full send buffer all
// report a miss.
func (r *Registry) Push(token string, event any) bool {
	r.mu.Lock()
	c, ok := r.clients[token]
	r.mu.Unlock()

	if !ok {
		return false
	}
	return c.enqueue(event)
}

// Size returns the number of bound connections.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients)
}
