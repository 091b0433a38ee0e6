// Package watcher polls the ledger for submitted-computation events and
// feeds them to settlement in order, tracking progress in a persisted
// cursor so a restart resumes where the previous run stopped.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/tasoskalogero/blackboxchain/internal/ledger"
	"github.com/tasoskalogero/blackboxchain/internal/logger"
	"github.com/tasoskalogero/blackboxchain/internal/settle"
)

const (
	// defaultPollInterval is the default delay between event polls.
	defaultPollInterval = 5 * time.Second

	// streamName keys the persisted cursor for the computation stream.
	streamName = "computations"
)

// EventSource lists ledger events at or after a sequence number.
type EventSource interface {
	Events(ctx context.Context, from uint64) ([]ledger.ComputationEvent, error)
}

// Settler drives one event to a terminal disposition.
type Settler interface {
	Settle(ctx context.Context, ev ledger.ComputationEvent) (*settle.Disposition, error)
}

// Cursors persists per-stream progress.
type Cursors interface {
	Cursor(stream string) (uint64, error)
	SetCursor(stream string, seq uint64) error
}

// Watcher periodically polls for new computation events and settles them
// in sequence order. The cursor only advances past an event once its
// settlement is recorded, so delivery is at least once and settlement
// idempotency is left to the settler.
type Watcher struct {
	events   EventSource
	settler  Settler
	cursors  Cursors
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher. A zero interval selects the default.
func New(events EventSource, settler Settler, cursors Cursors, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = defaultPollInterval
	}

	return &Watcher{
		events:   events,
		settler:  settler,
		cursors:  cursors,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the polling loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop stops the watcher and waits for the current poll to finish.
func (w *Watcher) Stop() {
	close(w.stop)
	w.wg.Wait()
}

// loop polls immediately, then on every tick.
func (w *Watcher) loop() {
	defer w.wg.Done()

	w.poll()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll fetches events past the cursor and settles them in order. A
// settlement error stops the batch without advancing past the failed
// event; the next poll redelivers it.
func (w *Watcher) poll() {
	ctx := context.Background()

	cursor, err := w.cursors.Cursor(streamName)
	if err != nil {
		logger.Error("read event cursor", "error", err)
		return
	}

	events, err := w.events.Events(ctx, cursor+1)
	if err != nil {
		logger.Warn("poll events", "from", cursor+1, "error", err)
		return
	}

	if len(events) == 0 {
		return
	}

	logger.Debug("events received", "count", len(events), "from", cursor+1)

	for _, ev := range events {
		if _, err := w.settler.Settle(ctx, ev); err != nil {
			logger.Warn("settle event, will retry",
				"seq", ev.Seq,
				"computation", ev.ComputationID,
				"error", err,
			)

			return
		}

		if err := w.cursors.SetCursor(streamName, ev.Seq); err != nil {
			logger.Error("advance event cursor", "seq", ev.Seq, "error", err)
			return
		}
	}
}
