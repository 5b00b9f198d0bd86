// ABOUTME: Tracks in-flight agent runs for health snapshots and status queries
// ABOUTME: Runs are registered on dispatch and released when their stream ends

package agent

import (
	"sort"
	"sync"
	"time"
)

// RunInfo describes an in-flight run.
type RunInfo struct {
	RunID      string    `json:"runId"`
	AgentID    string    `json:"agentId"`
	SessionKey string    `json:"sessionKey"`
	StartedAt  time.Time `json:"startedAt"`
}

// RunTracker records active runs.
type RunTracker struct {
	mu   sync.RWMutex
	runs map[string]RunInfo
}

// NewRunTracker creates an empty tracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{runs: make(map[string]RunInfo)}
}

// Begin registers req as active and returns the function that ends it.
// The returned function is safe to call more than once.
func (t *RunTracker) Begin(req *RunRequest) func() {
	t.mu.Lock()
	t.runs[req.RunID] = RunInfo{
		RunID:      req.RunID,
		AgentID:    req.AgentID,
		SessionKey: req.SessionKey,
		StartedAt:  time.Now(),
	}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.runs, req.RunID)
			t.mu.Unlock()
		})
	}
}

// Active returns the number of in-flight runs.
func (t *RunTracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runs)
}

// List returns the in-flight runs, oldest first.
func (t *RunTracker) List() []RunInfo {
	t.mu.RLock()
	out := make([]RunInfo, 0, len(t.runs))
	for _, r := range t.runs {
		out = append(out, r)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID < out[j].RunID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
