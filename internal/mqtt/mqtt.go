// Package mqtt publishes supply snapshots and lifecycle events to a broker.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"go.uber.org/zap"
)

// Topic suffixes below the configured base topic.
const (
	StateSuffix  = "/state"
	SystemSuffix = "/system"
)

// System events.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
	EventFatal    = "FATAL"
	EventOffline  = "OFFLINE"
)

// Publisher publishes supply state to MQTT.
type Publisher interface {
	// PublishSnapshot sends the state of the supply. Errors must not stop
	// polling.
	PublishSnapshot(snap mux.Snapshot) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	Close() error
}

// SystemEvent is a service lifecycle event.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string
}

type statePayload struct {
	Timestamp string       `json:"timestamp"`
	Supply    mux.Snapshot `json:"supply"`
}

type systemPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSnapshot creates the JSON payload for a snapshot taken at ts.
func FormatSnapshot(snap mux.Snapshot, ts time.Time) ([]byte, error) {
	return json.Marshal(statePayload{
		Timestamp: ts.UTC().Format(time.RFC3339),
		Supply:    snap,
	})
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(systemPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	})
}

// Forward publishes every snapshot received from snaps until ctx is done
// or snaps is closed.
func Forward(ctx context.Context, snaps <-chan mux.Snapshot, pub Publisher, logger *zap.Logger) {
	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			err := pub.PublishSnapshot(snap)
			switch {
			case err != nil && !failing:
				logger.Warn("MQTT publish failed", zap.Error(err))
				failing = true
			case err == nil && failing:
				logger.Info("MQTT publish recovered")
				failing = false
			}
		}
	}
}
