package bridge

import (
	"sync"

	"github.com/signalsfoundry/pawnbridge/internal/command"
)

// Mailbox holds at most one pending command per pawn. A newer command for the
// same pawn replaces the older one. The simulation drains it once per tick.
// The pending gauge is set under the lock so it always ends at the last size.
type Mailbox struct {
	mu      sync.Mutex
	pending map[int]command.Command
	metrics MetricsRecorder
}

// NewMailbox constructs an empty mailbox.
func NewMailbox(metrics MetricsRecorder) *Mailbox {
	return &Mailbox{
		pending: make(map[int]command.Command),
		metrics: metricsOrNoop(metrics),
	}
}

// Put stores cmd under its pawn ID and reports whether it replaced a pending
// command.
func (m *Mailbox) Put(cmd command.Command) bool {
	if cmd == nil {
		return false
	}
	m.mu.Lock()
	_, replaced := m.pending[cmd.Pawn()]
	m.pending[cmd.Pawn()] = cmd
	m.metrics.SetMailboxPending(len(m.pending))
	m.mu.Unlock()

	if replaced {
		m.metrics.CommandCoalesced()
	}
	return replaced
}

// Drain swaps the pending commands out for an empty map and returns them. The
// returned map belongs to the caller.
func (m *Mailbox) Drain() map[int]command.Command {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := m.pending
	m.pending = make(map[int]command.Command, len(batch))
	m.metrics.SetMailboxPending(0)
	m.mu.Unlock()

	return batch
}

// Len reports the number of pawns with a pending command.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
