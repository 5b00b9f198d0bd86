// ABOUTME: Seq-ordered fan-out of events to every authorized client in the registry
// ABOUTME: Applies the slow-consumer policy: drop droppable events, close the rest with 1008

package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/2389/moltbot-gateway/internal/auth"
	"github.com/2389/moltbot-gateway/internal/clients"
)

// DefaultMaxBufferedBytes is the per-client backlog beyond which a client
// counts as a slow consumer.
const DefaultMaxBufferedBytes int64 = 1536 * 1024

// SlowConsumerReason is the close reason sent to evicted slow clients.
const SlowConsumerReason = "slow consumer"

// BroadcastOptions tune delivery of a single event.
type BroadcastOptions struct {
	// DropIfSlow skips slow clients instead of disconnecting them. Use it
	// for events a client can recover from a later snapshot.
	DropIfSlow bool
	// StateVersion, if set, is stamped on the envelope.
	StateVersion *StateVersion
}

// Broadcaster assigns each event a process-wide sequence number and fans it
// out to the registry. Broadcast must not be called from a registry hook
// that fires inside a broadcast.
type Broadcaster struct {
	mu          sync.Mutex
	seq         uint64
	registry    *clients.Registry
	maxBuffered int64
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster over registry. A non-positive
// maxBuffered selects DefaultMaxBufferedBytes. Pass nil logger for default.
func NewBroadcaster(registry *clients.Registry, maxBuffered int64, logger *slog.Logger) *Broadcaster {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBufferedBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry:    registry,
		maxBuffered: maxBuffered,
		logger:      logger.With("component", "broadcaster"),
	}
}

// Broadcast sends event to every client authorized to receive it and
// returns the sequence number assigned. A payload that cannot be encoded is
// logged and dropped without consuming a sequence number; 0 is returned.
func (b *Broadcaster) Broadcast(event string, payload any, opts BroadcastOptions) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, err := json.Marshal(EventFrame{
		Type:         FrameEvent,
		Event:        event,
		Payload:      payload,
		Seq:          b.seq + 1,
		StateVersion: opts.StateVersion,
	})
	if err != nil {
		b.logger.Error("failed to encode event", "event", event, "error", err)
		return 0
	}
	b.seq++
	seq := b.seq

	for _, c := range b.registry.Snapshot() {
		if !auth.IsAuthorizedForEvent(c.Auth, event) {
			continue
		}

		if c.BufferedBytes() > b.maxBuffered {
			if opts.DropIfSlow {
				b.logger.Debug("dropped event for slow client", "event", event, "seq", seq, "conn_id", c.ID)
				continue
			}
			b.logger.Warn("closing slow consumer",
				"conn_id", c.ID,
				"buffered_bytes", c.BufferedBytes(),
				"event", event,
			)
			go c.Close(websocket.ClosePolicyViolation, SlowConsumerReason)
			continue
		}

		if err := c.Enqueue(frame); err != nil {
			b.logger.Debug("failed to enqueue event", "event", event, "conn_id", c.ID, "error", err)
		}
	}

	return seq
}

// Seq returns the last assigned sequence number.
func (b *Broadcaster) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
