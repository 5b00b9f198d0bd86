// ABOUTME: Health tracker producing periodic gateway health snapshots
// ABOUTME: Each refresh bumps the health state version

package events

import (
	"sync"
	"time"
)

// HealthProbe reports live counters for the health snapshot.
type HealthProbe struct {
	Clients func() int
	Runs    func() int
}

// HealthTracker caches the last health snapshot and its version.
type HealthTracker struct {
	mu       sync.RWMutex
	started  time.Time
	probe    HealthProbe
	now      func() time.Time
	snapshot HealthSnapshot
	version  uint64
}

// NewHealthTracker creates a tracker and takes the first snapshot.
func NewHealthTracker(probe HealthProbe) *HealthTracker {
	h := &HealthTracker{
		started: time.Now(),
		probe:   probe,
		now:     time.Now,
	}
	h.Refresh()
	return h
}

// Refresh recomputes the snapshot and bumps the version.
func (h *HealthTracker) Refresh() (HealthSnapshot, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	snap := HealthSnapshot{
		OK:       true,
		TS:       now.UnixMilli(),
		UptimeMs: now.Sub(h.started).Milliseconds(),
	}
	if h.probe.Clients != nil {
		snap.Clients = h.probe.Clients()
	}
	if h.probe.Runs != nil {
		snap.Runs = h.probe.Runs()
	}

	h.snapshot = snap
	h.version++
	return snap, h.version
}

// Snapshot returns the cached snapshot and its version.
func (h *HealthTracker) Snapshot() (HealthSnapshot, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot, h.version
}

// Version returns the current health version.
func (h *HealthTracker) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}
