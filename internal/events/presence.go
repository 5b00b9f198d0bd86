// ABOUTME: Presence tracker keeping one entry per connected client
// ABOUTME: Every join or leave bumps the presence state version

package events

import (
	"sort"
	"sync"
)

// PresenceTracker holds the presence list and its version counter.
type PresenceTracker struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
	version uint64
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{entries: make(map[string]PresenceEntry)}
}

// Upsert adds or replaces the entry for e.ConnID and returns the new version.
func (p *PresenceTracker) Upsert(e PresenceEntry) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[e.ConnID] = e
	p.version++
	return p.version
}

// Remove deletes the entry for connID. The version only moves when an
// entry was actually removed.
func (p *PresenceTracker) Remove(connID string) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[connID]; !ok {
		return p.version, false
	}
	delete(p.entries, connID)
	p.version++
	return p.version, true
}

// Snapshot returns the entries ordered by connection time, with the version
// they correspond to.
func (p *PresenceTracker) Snapshot() ([]PresenceEntry, uint64) {
	p.mu.RLock()
	list := make([]PresenceEntry, 0, len(p.entries))
	for _, e := range p.entries {
		list = append(list, e)
	}
	version := p.version
	p.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].ConnectedAt == list[j].ConnectedAt {
			return list[i].ConnID < list[j].ConnID
		}
		return list[i].ConnectedAt < list[j].ConnectedAt
	})
	return list, version
}

// Version returns the current presence version.
func (p *PresenceTracker) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}
