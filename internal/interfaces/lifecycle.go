package interfaces

import (
	"context"

	"github.com/KevinKickass/CorrectorMux/internal/config"
	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"github.com/KevinKickass/CorrectorMux/internal/supply"
	"github.com/google/uuid"
)

// SystemStatus represents the current service state
type SystemStatus struct {
	State            string `json:"state"`
	StartedAt        int64  `json:"started_at"`
	PollerRunning    bool   `json:"poller_running"`
	PollerHealthy    bool   `json:"poller_healthy"`
	LastPoll         int64  `json:"last_poll,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	ConnectedClients int    `json:"connected_clients"`
	DatabaseEnabled  bool   `json:"database_enabled"`
	MQTTEnabled      bool   `json:"mqtt_enabled"`
}

type LifecycleManager interface {
	Config() *config.Config
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}

// SupplyController is the command and query surface of the supply,
// implemented by supply.Manager.
type SupplyController interface {
	SwitchOn(ctx context.Context, actor string, ch int, force bool) (uuid.UUID, error)
	SwitchOff(ctx context.Context, actor string, ch int) (uuid.UUID, error)
	SetSetpoint(ctx context.Context, actor string, ch int, value int) (uuid.UUID, error)
	PowerOn(ctx context.Context, actor string) (uuid.UUID, error)
	PowerOff(ctx context.Context, actor string) (uuid.UUID, error)
	Configure(ctx context.Context, actor string) (uuid.UUID, error)
	ReadOutputGroup(ctx context.Context, module int) (mux.OutputGroup, error)
	Snapshot() mux.Snapshot
	Channel(ch int) (mux.ChannelView, error)
	Summary() string
}

// CommandHistory gives access to recorded commands, if a database is
// configured.
type CommandHistory interface {
	RecentCommands(ctx context.Context, limit int) ([]supply.Command, error)
}

var _ SupplyController = (*supply.Manager)(nil)
