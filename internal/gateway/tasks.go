// ABOUTME: Periodic background tasks owned by the gateway lifecycle
// ABOUTME: Heartbeat tick and health refresh, both stopped on shutdown

package gateway

import (
	"context"
	"time"

	"github.com/2389/moltbot-gateway/internal/events"
)

// startTasks launches the tick and health loops. Calling it twice without
// stopTasks in between is a programming error.
func (g *Gateway) startTasks() {
	ctx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.tasksCancel = cancel
	g.mu.Unlock()

	g.runEvery(ctx, g.tickInterval, g.tick)
	g.runEvery(ctx, g.healthInterval, g.refreshHealth)
}

// stopTasks cancels the loops and waits for them to exit.
func (g *Gateway) stopTasks() {
	g.mu.Lock()
	cancel := g.tasksCancel
	g.tasksCancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.tasksWG.Wait()
}

func (g *Gateway) runEvery(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	g.tasksWG.Add(1)
	go func() {
		defer g.tasksWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (g *Gateway) tick() {
	g.broadcaster.Broadcast(events.EventTick, events.TickPayload{TS: time.Now().UnixMilli()}, events.BroadcastOptions{
		DropIfSlow: true,
	})
}

func (g *Gateway) refreshHealth() {
	snap, version := g.health.Refresh()
	g.broadcaster.Broadcast(events.EventHealth, snap, events.BroadcastOptions{
		DropIfSlow:   true,
		StateVersion: &events.StateVersion{Presence: g.presence.Version(), Health: version},
	})
}
