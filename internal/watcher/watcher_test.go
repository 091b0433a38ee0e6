package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tasoskalogero/blackboxchain/internal/ledger"
	"github.com/tasoskalogero/blackboxchain/internal/settle"
)

// fakeSource serves a fixed event log from the requested sequence on.
type fakeSource struct {
	mu     sync.Mutex
	events []ledger.ComputationEvent
	err    error
}

func (f *fakeSource) Events(_ context.Context, from uint64) ([]ledger.ComputationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	var out []ledger.ComputationEvent
	for _, ev := range f.events {
		if ev.Seq >= from {
			out = append(out, ev)
		}
	}

	return out, nil
}

// fakeSettler records settled IDs and fails the IDs listed in failOn.
type fakeSettler struct {
	mu      sync.Mutex
	settled []string
	failOn  map[string]bool
}

func (f *fakeSettler) Settle(_ context.Context, ev ledger.ComputationEvent) (*settle.Disposition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOn[ev.ComputationID] {
		return nil, errors.New("ledger unreachable")
	}

	f.settled = append(f.settled, ev.ComputationID)

	return &settle.Disposition{ComputationID: ev.ComputationID, Committed: true}, nil
}

func (f *fakeSettler) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.settled...)
}

// memCursors is an in-memory cursor store.
type memCursors struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func newMemCursors() *memCursors {
	return &memCursors{seqs: make(map[string]uint64)}
}

func (m *memCursors) Cursor(stream string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.seqs[stream], nil
}

func (m *memCursors) SetCursor(stream string, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seqs[stream] = seq

	return nil
}

func event(seq uint64, id string) ledger.ComputationEvent {
	return ledger.ComputationEvent{Seq: seq, ComputationID: id}
}

func TestPollSettlesInOrder(t *testing.T) {
	source := &fakeSource{events: []ledger.ComputationEvent{
		event(1, "comp-a"),
		event(2, "comp-b"),
		event(3, "comp-c"),
	}}
	settler := &fakeSettler{}
	cursors := newMemCursors()

	w := New(source, settler, cursors, time.Hour)
	w.poll()

	got := settler.ids()
	want := []string{"comp-a", "comp-b", "comp-c"}
	if len(got) != len(want) {
		t.Fatalf("settled %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("settled %v, want %v", got, want)
		}
	}

	seq, _ := cursors.Cursor(streamName)
	if seq != 3 {
		t.Errorf("expected cursor 3, got %d", seq)
	}
}

func TestPollStopsAtFailedEvent(t *testing.T) {
	source := &fakeSource{events: []ledger.ComputationEvent{
		event(1, "comp-a"),
		event(2, "comp-b"),
		event(3, "comp-c"),
	}}
	settler := &fakeSettler{failOn: map[string]bool{"comp-b": true}}
	cursors := newMemCursors()

	w := New(source, settler, cursors, time.Hour)
	w.poll()

	// comp-c is not reached; ordering would break otherwise.
	got := settler.ids()
	if len(got) != 1 || got[0] != "comp-a" {
		t.Fatalf("settled %v, want only comp-a", got)
	}

	seq, _ := cursors.Cursor(streamName)
	if seq != 1 {
		t.Errorf("expected cursor to stay at 1, got %d", seq)
	}

	// Once the failure clears, the next poll resumes at comp-b.
	settler.failOn = nil
	w.poll()

	got = settler.ids()
	want := []string{"comp-a", "comp-b", "comp-c"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("settled %v after retry, want %v", got, want)
		}
	}

	seq, _ = cursors.Cursor(streamName)
	if seq != 3 {
		t.Errorf("expected cursor 3 after retry, got %d", seq)
	}
}

func TestPollResumesFromPersistedCursor(t *testing.T) {
	source := &fakeSource{events: []ledger.ComputationEvent{
		event(1, "comp-a"),
		event(2, "comp-b"),
	}}
	settler := &fakeSettler{}
	cursors := newMemCursors()
	cursors.SetCursor(streamName, 1)

	w := New(source, settler, cursors, time.Hour)
	w.poll()

	got := settler.ids()
	if len(got) != 1 || got[0] != "comp-b" {
		t.Errorf("settled %v, want only comp-b", got)
	}
}

func TestPollSourceErrorKeepsCursor(t *testing.T) {
	source := &fakeSource{err: errors.New("node down")}
	settler := &fakeSettler{}
	cursors := newMemCursors()
	cursors.SetCursor(streamName, 7)

	w := New(source, settler, cursors, time.Hour)
	w.poll()

	if len(settler.ids()) != 0 {
		t.Errorf("no settlements expected, got %v", settler.ids())
	}

	seq, _ := cursors.Cursor(streamName)
	if seq != 7 {
		t.Errorf("expected cursor 7, got %d", seq)
	}
}

func TestStartStop(t *testing.T) {
	source := &fakeSource{events: []ledger.ComputationEvent{event(1, "comp-a")}}
	settler := &fakeSettler{}
	cursors := newMemCursors()

	w := New(source, settler, cursors, 10*time.Millisecond)
	w.Start()

	deadline := time.After(time.Second)
	for len(settler.ids()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no settlement before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	w.Stop()

	if got := settler.ids(); len(got) != 1 || got[0] != "comp-a" {
		t.Errorf("settled %v, want exactly one comp-a", got)
	}
}
