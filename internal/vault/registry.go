package vault

import "sync"

// Registry tracks folders unlocked temporarily during this process's
// lifetime, so they can be re-locked in one sweep. Folder records carry
// the durable unlock mode; the registry is the fast in-process view.
type Registry struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]string)}
}

// Register remembers a temporarily unlocked folder and where it went.
func (r *Registry) Register(folderID, originalPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[folderID] = originalPath
}

// Unregister forgets a folder, typically after re-locking it.
func (r *Registry) Unregister(folderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, folderID)
}

// Entries returns a copy of the registry contents.
func (r *Registry) Entries() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.entries))
	for id, path := range r.entries {
		out[id] = path
	}
	return out
}

// Len reports the number of registered folders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
