// ABOUTME: Tests for presence and health state trackers
// ABOUTME: Verifies version bumps, ordering, and probe wiring

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceTracker_VersionsAndOrder(t *testing.T) {
	p := NewPresenceTracker()
	assert.Equal(t, uint64(0), p.Version())

	assert.Equal(t, uint64(1), p.Upsert(PresenceEntry{ConnID: "b", ConnectedAt: 200}))
	assert.Equal(t, uint64(2), p.Upsert(PresenceEntry{ConnID: "a", ConnectedAt: 100}))

	list, version := p.Snapshot()
	assert.Equal(t, uint64(2), version)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ConnID)
	assert.Equal(t, "b", list[1].ConnID)

	v, ok := p.Remove("a")
	assert.True(t, ok)
	assert.Equal(t, uint64(3), v)

	v, ok = p.Remove("missing")
	assert.False(t, ok)
	assert.Equal(t, uint64(3), v, "removing an unknown conn does not bump the version")
}

func TestHealthTracker_RefreshBumpsVersion(t *testing.T) {
	clientsCount := 2
	h := NewHealthTracker(HealthProbe{
		Clients: func() int { return clientsCount },
		Runs:    func() int { return 1 },
	})

	snap, version := h.Snapshot()
	assert.Equal(t, uint64(1), version, "constructor takes the first snapshot")
	assert.True(t, snap.OK)
	assert.Equal(t, 2, snap.Clients)
	assert.Equal(t, 1, snap.Runs)

	fixed := h.started.Add(5 * time.Second)
	h.now = func() time.Time { return fixed }
	clientsCount = 3

	snap, version = h.Refresh()
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, uint64(2), h.Version())
	assert.Equal(t, 3, snap.Clients)
	assert.Equal(t, int64(5000), snap.UptimeMs)
	assert.Equal(t, fixed.UnixMilli(), snap.TS)
}

func TestHealthTracker_NilProbes(t *testing.T) {
	h := NewHealthTracker(HealthProbe{})
	snap, _ := h.Snapshot()
	assert.Equal(t, 0, snap.Clients)
	assert.Equal(t, 0, snap.Runs)
}
