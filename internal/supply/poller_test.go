package supply

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"go.uber.org/zap"
)

type scriptedUpdater struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (s *scriptedUpdater) Update(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func (s *scriptedUpdater) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPollerPollsUntilStopped(t *testing.T) {
	u := &scriptedUpdater{}
	p := NewPoller(u, 5*time.Millisecond, time.Hour, zap.NewNop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.IsRunning() {
		t.Error("poller should be running")
	}
	waitFor(t, func() bool { return u.count() >= 3 })
	if !p.Healthy() {
		t.Error("poller should be healthy")
	}

	p.Stop()
	if p.IsRunning() {
		t.Error("poller should be stopped")
	}
	if p.Healthy() {
		t.Error("stopped poller must not be healthy")
	}
	n := u.count()
	time.Sleep(20 * time.Millisecond)
	if u.count() != n {
		t.Error("poller kept polling after Stop")
	}
}

func TestPollerHoldsOffAfterCommunicationFailure(t *testing.T) {
	u := &scriptedUpdater{errs: []error{fmt.Errorf("read input column 0: %w", mux.ErrCommunication)}}
	p := NewPoller(u, 5*time.Millisecond, time.Hour, zap.NewNop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return u.count() >= 1 })
	time.Sleep(30 * time.Millisecond)
	if n := u.count(); n != 1 {
		t.Errorf("expected no retries during hold-off, got %d calls", n)
	}
	if !errors.Is(p.LastError(), mux.ErrCommunication) {
		t.Errorf("expected last error to be communication failure, got %v", p.LastError())
	}
	if p.Healthy() {
		t.Error("poller must not be healthy after failure")
	}
}

func TestPollerRetriesAfterHoldOff(t *testing.T) {
	u := &scriptedUpdater{errs: []error{fmt.Errorf("%w", mux.ErrCommunication)}}
	p := NewPoller(u, 5*time.Millisecond, 20*time.Millisecond, zap.NewNop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return u.count() >= 3 })
	waitFor(t, p.Healthy)
}

func TestPollerContinuesAfterTransientError(t *testing.T) {
	u := &scriptedUpdater{errs: []error{&mux.SelectTimeoutError{Column: 2}}}
	p := NewPoller(u, 5*time.Millisecond, time.Hour, zap.NewNop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return u.count() >= 3 })
}

func TestPollerStopsOnFatal(t *testing.T) {
	mismatch := &mux.ConfigMismatchError{Region: "analog input"}
	u := &scriptedUpdater{errs: []error{mismatch}}
	p := NewPoller(u, 5*time.Millisecond, time.Hour, zap.NewNop())

	fatal := make(chan error, 1)
	p.OnFatal = func(err error) { fatal <- err }

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	select {
	case err := <-fatal:
		if !errors.Is(err, mux.ErrFatal) {
			t.Errorf("expected fatal error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnFatal not called")
	}

	if p.IsRunning() {
		t.Error("poller should stop after fatal error")
	}
	time.Sleep(20 * time.Millisecond)
	if u.count() != 1 {
		t.Errorf("expected no polls after fatal error, got %d", u.count())
	}
	if err := p.Start(); err == nil {
		t.Error("restart after fatal error should fail")
	}
}
