package gwservice

import (
	"sort"
	"sync/atomic"
)

// LiveTable is the mutable, per-process set of ServiceDefinitions the
// Proxy Engine resolves requests against. Writes (from config load or the
// admin plane) are rare; reads happen on every request. It is implemented
// as an atomically-swapped immutable snapshot so readers never observe a
// torn Definition.
type LiveTable struct {
	services atomic.Pointer[map[string]Definition]
}

// NewLiveTable returns a LiveTable seeded with defs.
func NewLiveTable(defs []Definition) *LiveTable {
	t := &LiveTable{}
	t.Replace(defs)
	return t
}

// Replace atomically swaps the entire live table for a new snapshot built
// from defs.
func (t *LiveTable) Replace(defs []Definition) {
	snapshot := make(map[string]Definition, len(defs))
	for _, d := range defs {
		snapshot[d.Name] = d
	}
	t.services.Store(&snapshot)
}

// Put installs or replaces a single Definition in a new snapshot, leaving
// all others untouched. Used by the admin plane for a single override.
func (t *LiveTable) Put(d Definition) {
	old := t.services.Load()
	snapshot := make(map[string]Definition, len(*old)+1)
	if old != nil {
		for k, v := range *old {
			snapshot[k] = v
		}
	}
	snapshot[d.Name] = d
	t.services.Store(&snapshot)
}

// Delete removes a single Definition by name from a new snapshot.
func (t *LiveTable) Delete(name string) {
	old := t.services.Load()
	if old == nil {
		return
	}
	snapshot := make(map[string]Definition, len(*old))
	for k, v := range *old {
		if k != name {
			snapshot[k] = v
		}
	}
	t.services.Store(&snapshot)
}

// Get returns the Definition for name and whether it exists. The returned
// value is an immutable snapshot copy, safe to use without further locking.
func (t *LiveTable) Get(name string) (Definition, bool) {
	ptr := t.services.Load()
	if ptr == nil {
		return Definition{}, false
	}
	d, ok := (*ptr)[name]
	return d, ok
}

// LookupByHost returns the first Definition whose InterceptHostnames
// contains host (port already stripped by the caller), per host-header
// routing's "first match wins" rule. Iteration order over a map is not
// stable, but the spec does not require a deterministic winner among
// Definitions that both claim the same hostname, which would itself be a
// misconfiguration.
func (t *LiveTable) LookupByHost(host string) (Definition, bool) {
	ptr := t.services.Load()
	if ptr == nil {
		return Definition{}, false
	}
	for _, d := range *ptr {
		for _, h := range d.InterceptHostnames {
			if h == host {
				return d, true
			}
		}
	}
	return Definition{}, false
}

// Names returns the sorted set of configured service names.
func (t *LiveTable) Names() []string {
	ptr := t.services.Load()
	if ptr == nil {
		return nil
	}
	names := make([]string, 0, len(*ptr))
	for k := range *ptr {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of every Definition currently installed.
func (t *LiveTable) All() []Definition {
	ptr := t.services.Load()
	if ptr == nil {
		return nil
	}
	out := make([]Definition, 0, len(*ptr))
	for _, d := range *ptr {
		out = append(out, d)
	}
	return out
}
