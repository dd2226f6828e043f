// Package registry tracks every active hosted bot in memory and runs the
// background health monitor over them. State does not survive restarts; the
// registry's lifetime is the orchestrator process itself.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/musichost/hoster/supervise"
)

var (
	ErrTenantExists = errors.New("tenant already registered")
	ErrNoTenant     = errors.New("tenant not registered")
)

// Tenant is one user's hosted bot instance.
type Tenant struct {
	UserID      int64
	BotUsername string
	BotToken    string
	WorkDir     string
	Handle      supervise.Handle
	StartedAt   time.Time
	LastSeen    time.Time
}

// Registry is the process-wide map of user identity to live tenant. All
// access goes through the lock; both the request loop and the monitor touch
// it.
type Registry struct {
	mu      sync.RWMutex
	tenants map[int64]*Tenant
}

func NewRegistry() *Registry {
	return &Registry{tenants: make(map[int64]*Tenant)}
}

// Add registers a tenant. At most one tenant may exist per user identity.
func (r *Registry) Add(t *Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[t.UserID]; ok {
		return ErrTenantExists
	}
	clone := *t
	r.tenants[t.UserID] = &clone
	return nil
}

// Get returns a copy of the user's tenant, if registered.
func (r *Registry) Get(userID int64) (Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[userID]
	if !ok {
		return Tenant{}, false
	}
	return *t, true
}

// Has reports whether the user currently owns an active tenant.
func (r *Registry) Has(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tenants[userID]
	return ok
}

// Remove deregisters and returns the user's tenant.
func (r *Registry) Remove(userID int64) (Tenant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[userID]
	if !ok {
		return Tenant{}, false
	}
	delete(r.tenants, userID)
	return *t, true
}

// Touch refreshes the tenant's last successful liveness timestamp.
func (r *Registry) Touch(userID int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tenants[userID]; ok {
		t.LastSeen = at
	}
}

// Snapshot returns copies of all tenants, ordered by user identity.
func (r *Registry) Snapshot() []Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Clear empties the registry unconditionally.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tenants = make(map[int64]*Tenant)
}

// Len reports the number of active tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tenants)
}
