// Package journal records every command the simulation drained, together with
// the outcome of applying it, as compressed JSON lines on disk.
package journal

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/pawnbridge/internal/logging"
)

const (
	filePrefix        = "commands"
	defaultQueueDepth = 1024
)

// Entry is one applied (or skipped) command.
type Entry struct {
	Tick    uint64 `json:"tick"`
	PawnID  int    `json:"pawn_id"`
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Journal accepts entries from the simulation goroutine without blocking it.
// Entries are handed to a background goroutine over a buffered channel; when
// the channel is full the entry is dropped and counted.
type Journal struct {
	w   *Writer
	log logging.Logger

	mu      sync.RWMutex
	closed  bool
	entries chan Entry
	done    chan struct{}
	dropped atomic.Uint64
}

// Open starts a journal writing under dir. depth <= 0 selects a default
// queue depth.
func Open(dir string, depth int, log logging.Logger) *Journal {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	if log == nil {
		log = logging.Noop()
	}
	j := &Journal{
		w:       NewWriter(dir, filePrefix),
		log:     log.With(logging.String("component", "journal")),
		entries: make(chan Entry, depth),
		done:    make(chan struct{}),
	}
	go j.run()
	return j
}

// Record enqueues e. It never blocks.
func (j *Journal) Record(e Entry) {
	if j == nil {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.entries <- e:
	default:
		if n := j.dropped.Add(1); n == 1 || n%1000 == 0 {
			j.log.Warn(context.Background(), "journal queue full, dropping entries", logging.Uint64("dropped", n))
		}
	}
}

// Dropped reports how many entries were discarded because the queue was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Close stops accepting entries, writes whatever is queued and closes the
// current file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.entries)
	}
	j.mu.Unlock()
	<-j.done
	return j.w.Close()
}

func (j *Journal) run() {
	defer close(j.done)
	ctx := context.Background()
	for e := range j.entries {
		if err := j.w.Write(e); err != nil {
			j.log.Warn(ctx, "failed to write journal entry", logging.Err(err))
		}
		if len(j.entries) == 0 {
			if err := j.w.Flush(); err != nil {
				j.log.Warn(ctx, "failed to flush journal", logging.Err(err))
			}
		}
	}
}
