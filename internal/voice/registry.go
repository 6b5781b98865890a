package voice

import (
	"sync"

	"github.com/glizzus/voicelink/internal/util"
)

// Registry maps guild IDs to their live connection.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]Connection),
	}
}

func (r *Registry) Get(guildID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[guildID]
	return conn, ok
}

// Register stores conn for guildID, replacing any previous entry.
func (r *Registry) Register(guildID string, conn Connection) {
	r.Swap(guildID, conn)
}

// Swap stores conn for guildID and returns the connection it replaced.
// Callers own the replaced connection and must close it.
func (r *Registry) Swap(guildID string, conn Connection) (previous Connection, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced = r.connections[guildID]
	r.connections[guildID] = conn
	return previous, replaced
}

// Evict removes the entry for guildID. It is a no-op if there is none.
func (r *Registry) Evict(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, guildID)
}

// EvictIf removes the entry only while it still points at conn, so a stale
// connection cannot evict its replacement.
func (r *Registry) EvictIf(guildID string, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.connections[guildID]
	if !ok || current != conn {
		return false
	}
	delete(r.connections, guildID)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

// Guilds returns the guild IDs with a registered connection, sorted.
func (r *Registry) Guilds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return util.SortedKeys(r.connections)
}
