package mux

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Transport is the register-level access the driver needs from the gateway.
// Implementations must surface I/O trouble as errors matching
// ErrCommunication.
type Transport interface {
	ReadBlock(ctx context.Context, addr uint16, count uint16) ([]uint16, error)
	WriteBlock(ctx context.Context, addr uint16, words []uint16) error
	WriteCoil(ctx context.Context, addr uint16, on bool) error
}

// Timing groups the driver's delays and poll bounds.
type Timing struct {
	SettleDelay    time.Duration // after configuration writes
	SelectDelay    time.Duration // after writing a column selector
	SelectTimeout  time.Duration
	SelectInterval time.Duration
	VerifyInterval time.Duration
	VerifyTimeout  time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		SettleDelay:    100 * time.Millisecond,
		SelectDelay:    10 * time.Millisecond,
		SelectTimeout:  time.Second,
		VerifyInterval: 10 * time.Millisecond,
		VerifyTimeout:  100 * time.Millisecond,
	}
}

type Options struct {
	Timing       Timing
	VerifyWrites bool
	Logger       *zap.Logger
}

// Counters are monotonically increasing diagnostics. ScanCycles counts
// complete scans only. RepeatedReads counts every read that did not show the
// expected words, including the first mismatching verify read of a write.
type Counters struct {
	ScanCycles     uint64 `json:"scan_cycles"`
	Reads          uint64 `json:"reads"`
	RepeatedReads  uint64 `json:"repeated_reads"`
	Writes         uint64 `json:"writes"`
	VerifyTimeouts uint64 `json:"verify_timeouts"`
}

// Driver owns all hardware state of one power supply bank. It is not safe
// for concurrent use; callers serialize access.
type Driver struct {
	bus          Transport
	logger       *zap.Logger
	timing       Timing
	verifyWrites bool

	channels    [ChannelCount]Channel
	ready       Tri
	powered     Tri
	needsConfig bool
	counters    Counters
}

// NewDriver creates a driver for the given channel settings. Missing
// settings fall back to DefaultSettings. The first Update configures the
// analog modules.
func NewDriver(bus Transport, settings []ChannelSettings, opts Options) (*Driver, error) {
	if bus == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if len(settings) > ChannelCount {
		return nil, &ValidationError{Field: "channel count", Value: len(settings), Reason: fmt.Sprintf("at most %d channels", ChannelCount)}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Driver{
		bus:          bus,
		logger:       logger,
		timing:       opts.Timing,
		verifyWrites: opts.VerifyWrites,
		needsConfig:  true,
	}

	defaults := DefaultSettings()
	copy(defaults, settings)
	for i, s := range defaults {
		if s.ZeroOffset.Valid && (s.ZeroOffset.Value < -32768 || s.ZeroOffset.Value > 32767) {
			return nil, &ValidationError{Field: fmt.Sprintf("zero offset of channel %d", i), Value: s.ZeroOffset.Value, Reason: "outside 16 bit range"}
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("channel %d", i)
		}
		d.channels[i] = Channel{Name: s.Name, ZeroOffset: s.ZeroOffset, Limit: s.Limit}
	}

	return d, nil
}

// Update performs one cycle: configure if flagged, otherwise scan all
// inputs and read ready/powered.
func (d *Driver) Update(ctx context.Context) error {
	if d.needsConfig {
		return d.Configure(ctx)
	}

	values, err := d.Scan(ctx)
	if err != nil {
		return err
	}
	d.storeMeasurements(values)

	ready, powered, err := d.ReadReadyOn(ctx)
	if err != nil {
		return err
	}
	d.ready, d.powered = ready, powered
	if !d.needsConfig {
		// abgebrochener Scan zählt nicht
		d.counters.ScanCycles++
	}
	return nil
}

// RequestConfiguration makes the next Update reconfigure the modules.
func (d *Driver) RequestConfiguration() {
	d.needsConfig = true
}

func (d *Driver) NeedsConfiguration() bool { return d.needsConfig }
func (d *Driver) Ready() Tri              { return d.ready }
func (d *Driver) Powered() Tri            { return d.powered }
func (d *Driver) Counters() Counters      { return d.counters }

// Channel returns a copy of the cached state of channel ch.
func (d *Driver) Channel(ch int) (Channel, error) {
	if err := checkChannel(ch); err != nil {
		return Channel{}, err
	}
	return d.channels[ch], nil
}

// ErrorCode packs both fault masks: current in the high byte.
func (d *Driver) ErrorCode(ch int) int {
	if ch < 0 || ch >= ChannelCount {
		return 0
	}
	c := d.channels[ch]
	return int(c.CurrentFault)<<8 | int(c.VoltageFault)
}

// ReadReadyOn reads the ready and powered flags from the digital inputs.
func (d *Driver) ReadReadyOn(ctx context.Context) (ready, powered Tri, err error) {
	words, err := d.read(ctx, DINBase, 1)
	if err != nil {
		return Unknown, Unknown, err
	}
	return TriOf(words[0]&DINReady != 0), TriOf(words[0]&DINOn != 0), nil
}

func (d *Driver) storeMeasurements(values []Raw) {
	for i := range d.channels {
		c := &d.channels[i]
		c.MeasuredVoltage = values[i]
		c.MeasuredCurrent = values[ChannelCount+i]
		c.VoltageFault = faultOf(values[i])
		c.CurrentFault = faultOf(values[ChannelCount+i])
	}
}

func faultOf(r Raw) Fault {
	if !r.Valid {
		return 0
	}
	return DecodeFault(uint16(r.Value))
}

func (d *Driver) read(ctx context.Context, addr uint16, count uint16) ([]uint16, error) {
	d.counters.Reads++
	words, err := d.bus.ReadBlock(ctx, addr, count)
	if err != nil {
		return nil, err
	}
	if len(words) != int(count) {
		return nil, fmt.Errorf("read %d words at %d: got %d", count, addr, len(words))
	}
	return words, nil
}
