package mux

import (
	"context"
	"time"
)

// Outcome of a bounded poll.
type Outcome int

const (
	Matched Outcome = iota
	TimedOut
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case TimedOut:
		return "timed out"
	default:
		return "aborted"
	}
}

// PollUntil runs probe until it reports a match, returns an error or the
// timeout elapses. probe always runs at least once. A zero interval re-probes
// immediately.
func PollUntil(ctx context.Context, interval, timeout time.Duration, probe func(ctx context.Context) (bool, error)) (Outcome, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := probe(ctx)
		if err != nil {
			return Aborted, err
		}
		if ok {
			return Matched, nil
		}
		if !time.Now().Before(deadline) {
			return TimedOut, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return Aborted, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
