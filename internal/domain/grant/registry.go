package grant

import (
	"sync"
	"time"
)

// Registry owns the in-memory Grants map and the PendingApproval
// registry that the Approval Coordinator and Notifier share. Readers are
// per-request request tasks; writers are the coordinator (install/revoke)
// and the Notifier's reply handler (fulfill/remove). Fulfillment is
// exactly-once: Resolve removes the entry before fulfilling it, so a
// racing second reply for the same request id is a no-op.
type Registry struct {
	mu       sync.Mutex
	grants   map[string]Grant
	pending  map[string]*PendingApproval
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		grants:  make(map[string]Grant),
		pending: make(map[string]*PendingApproval),
	}
}

// LiveGrant returns the live Grant for service, if any. A stale (expired
// or revoked) Grant found in the map is evicted in place before returning
// false, per the coordinator's lazy-eviction rule.
func (r *Registry) LiveGrant(service string, now time.Time) (Grant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[service]
	if !ok {
		return Grant{}, false
	}
	if !g.Live(now) {
		delete(r.grants, service)
		return Grant{}, false
	}
	return g, true
}

// InstallGrant atomically installs g, replacing any superseded Grant for
// the same service.
func (r *Registry) InstallGrant(g Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[g.Service] = g
}

// Exists reports whether a Grant for service is currently held, without
// regard to liveness. Used to check-before-persist ahead of a revocation
// that must hit durable storage before the in-memory state is dropped.
func (r *Registry) Exists(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.grants[service]
	return ok
}

// Revoke drops the live Grant for service, if any, and reports whether one
// existed.
func (r *Registry) Revoke(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.grants[service]
	delete(r.grants, service)
	return ok
}

// RevokeAll drops every live Grant and returns the count removed.
func (r *Registry) RevokeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.grants)
	r.grants = make(map[string]Grant)
	return n
}

// Register adds p to the pending-approval registry under p.RequestID.
func (r *Registry) Register(p *PendingApproval) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[p.RequestID] = p
}

// Resolve looks up requestID, removes it from the registry (so a second
// concurrent caller sees nothing), and fulfills its reply channel with d.
// Returns false if requestID was not found (already resolved or unknown).
func (r *Registry) Resolve(requestID string, d Decision) bool {
	r.mu.Lock()
	p, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	p.Fulfill(d)
	return true
}

// Forget removes requestID from the pending registry without fulfilling
// it. The Coordinator's deadline path does not use it; it resolves the
// PendingApproval with a timeout Decision through Resolve.
func (r *Registry) Forget(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, requestID)
}

// SeedGrants installs a startup-hydrated set of Grants wholesale,
// replacing any pre-existing map. Used once at process start.
func (r *Registry) SeedGrants(grants []Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = make(map[string]Grant, len(grants))
	for _, g := range grants {
		r.grants[g.Service] = g
	}
}

// Snapshot returns a copy of every live Grant, keyed by service, for the
// /__status introspection endpoint.
func (r *Registry) Snapshot(now time.Time) map[string]Grant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Grant, len(r.grants))
	for svc, g := range r.grants {
		if g.Live(now) {
			out[svc] = g
		}
	}
	return out
}
