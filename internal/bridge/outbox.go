package bridge

import "sync"

// Outbox is a FIFO of serialized snapshots waiting for a GET_STATE_UPDATES
// poll. The simulation pushes; any number of connection handlers may pop.
//
// PopAll takes the whole current contents in one step, so concurrent pollers
// never see the same entry twice and no entry is lost between them. Pushes
// that race with a PopAll land either in that batch or in the next one.
type Outbox struct {
	mu      sync.Mutex
	items   [][]byte
	limit   int
	metrics MetricsRecorder
}

// NewOutbox constructs an outbox. limit <= 0 means unbounded; otherwise the
// oldest entries are dropped to make room.
func NewOutbox(limit int, metrics MetricsRecorder) *Outbox {
	if limit < 0 {
		limit = 0
	}
	return &Outbox{
		limit:   limit,
		metrics: metricsOrNoop(metrics),
	}
}

// Push appends one payload.
func (o *Outbox) Push(payload []byte) {
	o.mu.Lock()
	dropped := 0
	if o.limit > 0 && len(o.items) >= o.limit {
		dropped = len(o.items) - o.limit + 1
		clear(o.items[:dropped])
		o.items = o.items[dropped:]
	}
	o.items = append(o.items, payload)
	n := len(o.items)
	o.mu.Unlock()

	if dropped > 0 {
		o.metrics.OutboxDropped(dropped)
	}
	o.metrics.SnapshotPushed()
	o.metrics.SetOutboxPending(n)
}

// PopAll removes and returns every queued payload in push order.
func (o *Outbox) PopAll() [][]byte {
	o.mu.Lock()
	items := o.items
	o.items = nil
	o.mu.Unlock()

	if len(items) > 0 {
		o.metrics.SetOutboxPending(0)
	}
	return items
}

// Len reports the number of queued payloads.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
