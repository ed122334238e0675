package supply

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager serializes all access to the driver. Polling and operator
// commands go through it; nothing else touches the driver.
type Manager struct {
	mu     sync.Mutex
	driver *mux.Driver
	audit  AuditLog
	logger *zap.Logger

	listenersMu sync.RWMutex
	listeners   []chan mux.Snapshot
}

func NewManager(driver *mux.Driver, audit AuditLog, logger *zap.Logger) *Manager {
	if audit == nil {
		audit = NopAudit{}
	}
	return &Manager{
		driver: driver,
		audit:  audit,
		logger: logger,
	}
}

// Update runs one driver cycle and fans the resulting snapshot out to
// subscribers, also when the cycle failed.
func (m *Manager) Update(ctx context.Context) error {
	m.mu.Lock()
	err := m.driver.Update(ctx)
	snap := m.driver.Snapshot()
	m.mu.Unlock()

	m.broadcast(snap)
	return err
}

func (m *Manager) SwitchOn(ctx context.Context, actor string, ch int, force bool) (uuid.UUID, error) {
	return m.command(ctx, Command{Channel: ch, Name: "switch_on", Actor: actor}, func() error {
		return m.driver.SwitchOn(ctx, ch, force)
	})
}

func (m *Manager) SwitchOff(ctx context.Context, actor string, ch int) (uuid.UUID, error) {
	return m.command(ctx, Command{Channel: ch, Name: "switch_off", Actor: actor}, func() error {
		return m.driver.SwitchOff(ctx, ch)
	})
}

func (m *Manager) SetSetpoint(ctx context.Context, actor string, ch int, value int) (uuid.UUID, error) {
	return m.command(ctx, Command{Channel: ch, Name: "set_setpoint", Value: &value, Actor: actor}, func() error {
		return m.driver.SetSetpoint(ctx, ch, value)
	})
}

func (m *Manager) PowerOn(ctx context.Context, actor string) (uuid.UUID, error) {
	return m.command(ctx, Command{Channel: SupplyWide, Name: "power_on", Actor: actor}, func() error {
		return m.driver.PowerOn(ctx)
	})
}

func (m *Manager) PowerOff(ctx context.Context, actor string) (uuid.UUID, error) {
	return m.command(ctx, Command{Channel: SupplyWide, Name: "power_off", Actor: actor}, func() error {
		return m.driver.PowerOff(ctx)
	})
}

// Configure reconfigures the analog modules immediately.
func (m *Manager) Configure(ctx context.Context, actor string) (uuid.UUID, error) {
	return m.command(ctx, Command{Channel: SupplyWide, Name: "configure", Actor: actor}, func() error {
		return m.driver.Configure(ctx)
	})
}

// RequestConfiguration defers reconfiguration to the next poll.
func (m *Manager) RequestConfiguration(ctx context.Context, actor string) (uuid.UUID, error) {
	return m.command(ctx, Command{Channel: SupplyWide, Name: "request_configuration", Actor: actor}, func() error {
		m.driver.RequestConfiguration()
		return nil
	})
}

func (m *Manager) command(ctx context.Context, cmd Command, fn func() error) (uuid.UUID, error) {
	cmd.ID = uuid.New()
	cmd.CreatedAt = time.Now().UTC()

	m.mu.Lock()
	err := fn()
	snap := m.driver.Snapshot()
	m.mu.Unlock()

	cmd.Success = err == nil
	if err != nil {
		cmd.Error = err.Error()
	}

	fields := []zap.Field{
		zap.String("command_id", cmd.ID.String()),
		zap.String("command", cmd.Name),
		zap.Int("channel", cmd.Channel),
		zap.String("actor", cmd.Actor),
	}
	if err != nil {
		m.logger.Warn("Command failed", append(fields, zap.Error(err))...)
	} else {
		m.logger.Info("Command executed", fields...)
	}

	if aerr := m.audit.Record(ctx, cmd); aerr != nil {
		m.logger.Error("Failed to record command", zap.String("command_id", cmd.ID.String()), zap.Error(aerr))
	}

	m.broadcast(snap)
	return cmd.ID, err
}

func (m *Manager) ReadOutputGroup(ctx context.Context, module int) (mux.OutputGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver.ReadOutputGroup(ctx, module)
}

func (m *Manager) Snapshot() mux.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver.Snapshot()
}

func (m *Manager) Channel(ch int) (mux.ChannelView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver.View(ch)
}

func (m *Manager) Summary() string {
	return m.Snapshot().Summary()
}

// Subscribe returns a channel receiving a snapshot after every update or
// command. Slow subscribers miss snapshots.
func (m *Manager) Subscribe() chan mux.Snapshot {
	ch := make(chan mux.Snapshot, 10)

	m.listenersMu.Lock()
	m.listeners = append(m.listeners, ch)
	m.listenersMu.Unlock()

	return ch
}

func (m *Manager) Unsubscribe(ch chan mux.Snapshot) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	for i, l := range m.listeners {
		if l == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) broadcast(snap mux.Snapshot) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()

	for _, l := range m.listeners {
		select {
		case l <- snap:
		default:
			// Channel voll, überspringen
		}
	}
}
