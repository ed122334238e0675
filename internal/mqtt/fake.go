package mqtt

import (
	"sync"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
)

// FakePublisher records published messages for test assertions. It is safe
// for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	snapshots    []mux.Snapshot
	systemEvents []SystemEvent
	closed       bool
	publishErr   error
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishSnapshot(snap mux.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemEvents = append(f.systemEvents, event)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetPublishError makes PublishSnapshot fail with err; nil clears it.
func (f *FakePublisher) SetPublishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErr = err
}

// Snapshots returns a copy of the published snapshots.
func (f *FakePublisher) Snapshots() []mux.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mux.Snapshot(nil), f.snapshots...)
}

// SystemEvents returns a copy of the published system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
