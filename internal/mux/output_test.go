package mux

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func zeroOffsets(f func(ch int) int) []ChannelSettings {
	settings := DefaultSettings()
	for i := range settings {
		settings[i].ZeroOffset = Known(f(i))
	}
	return settings
}

func lastWrite(t *testing.T, bus *FakeBus, addr uint16) []uint16 {
	t.Helper()
	writes := writesTo(bus.Ops(), addr)
	if len(writes) == 0 {
		t.Fatalf("no write to %d", addr)
	}
	return writes[len(writes)-1].Words
}

func TestControlWord(t *testing.T) {
	tests := []struct {
		group  int
		recall bool
		want   uint16
	}{
		{0, false, 0x0100},
		{1, false, 0x0900},
		{0, true, 0x0300},
		{1, true, 0x0B00},
	}

	for _, tt := range tests {
		w, err := ControlWord(tt.group, tt.recall)
		if err != nil {
			t.Fatalf("ControlWord(%d, %v): %v", tt.group, tt.recall, err)
		}
		if w != tt.want {
			t.Errorf("ControlWord(%d, %v): expected %04x, got %04x", tt.group, tt.recall, tt.want, w)
		}
	}

	if _, err := ControlWord(2, false); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for group 2, got %v", err)
	}
}

func TestGroupIndex(t *testing.T) {
	tests := []struct {
		name  string
		word  uint16
		group int
		ok    bool
	}{
		{"group 0", 0x0100, 0, true},
		{"group 1", 0x0900, 1, true},
		{"group 0 with recall", 0x0300, 0, false},
		{"group 1 with recall", 0x0B00, 0, false},
		{"configuration word", AOUTConfigControl, 0, false},
		{"recall only", AOUTControlRecall, 0, false},
		{"zero", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := GroupIndex(tt.word)
			if !tt.ok {
				if err == nil {
					t.Errorf("GroupIndex(%04x) = %d, expected error", tt.word, g)
				}
				return
			}
			if err != nil {
				t.Fatalf("GroupIndex(%04x): %v", tt.word, err)
			}
			if g != tt.group {
				t.Errorf("GroupIndex(%04x): expected %d, got %d", tt.word, tt.group, g)
			}
		})
	}
}

func TestSwitchOnStartsAtZeroOffset(t *testing.T) {
	settings := DefaultSettings()
	settings[0].ZeroOffset = Known(100)
	d, bus := newConfiguredDriver(t, settings)

	if err := d.SwitchOn(context.Background(), 0, false); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}

	c, _ := d.Channel(0)
	if c.Setpoint != Known(100) {
		t.Errorf("expected setpoint 100, got %v", c.Setpoint)
	}
	if c.OnState != On {
		t.Errorf("expected ON, got %s", c.OnState)
	}
	want := []uint16{0x0100, 100, 0, 0, 0}
	if got := lastWrite(t, bus, AOUTWriteBase); !slices.Equal(got, want) {
		t.Errorf("expected group write %04x, got %04x", want, got)
	}
	if d.Counters().Writes != 1 {
		t.Errorf("expected 1 write, got %d", d.Counters().Writes)
	}
}

func TestSwitchOnChecksSupplyState(t *testing.T) {
	tests := []struct {
		name    string
		ready   bool
		powered bool
		want    error
	}{
		{"not powered", true, false, ErrNotPowered},
		{"not ready", false, true, ErrNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, bus := newConfiguredDriver(t, nil)
			bus.SetStatus(tt.ready, tt.powered)
			if err := d.Update(context.Background()); err != nil {
				t.Fatalf("Update: %v", err)
			}
			bus.ResetOps()

			err := d.SwitchOn(context.Background(), 4, false)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(bus.Ops()) != 0 {
				t.Errorf("expected no bus operations, got %d", len(bus.Ops()))
			}
			c, _ := d.Channel(4)
			if c.OnState != Off {
				t.Errorf("expected OFF, got %s", c.OnState)
			}
		})
	}
}

func TestSwitchOnForcedPowersOn(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	bus.SetStatus(false, false)
	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := d.SwitchOn(context.Background(), 3, true); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}
	if !bus.Coil(CoilPower) {
		t.Error("expected power coil to be set")
	}
	if len(writesTo(bus.Ops(), AOUTWriteBase)) != 1 {
		t.Error("expected group write")
	}
	if c, _ := d.Channel(3); c.OnState != On {
		t.Errorf("expected ON, got %s", c.OnState)
	}
}

func TestSwitchOnNeighbourWithoutSetpoint(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	ctx := context.Background()

	if err := d.PowerOff(ctx); err != nil {
		t.Fatalf("PowerOff: %v", err)
	}
	// channel 1 is running from before the driver knew about it
	bus.SetStatus(true, true)
	bus.SetChannelInputs(1, 0, 500)
	if err := d.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := d.InferOnState(1); got != On {
		t.Fatalf("channel 1: expected inferred ON, got %s", got)
	}
	bus.ResetOps()

	err := d.SwitchOn(ctx, 0, false)
	var incomplete *IncompleteGroupError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected IncompleteGroupError, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("incomplete group should match ErrValidation")
	}
	if !slices.Equal(incomplete.Missing, []string{"channel 1"}) {
		t.Errorf("expected channel 1 missing, got %v", incomplete.Missing)
	}
	if len(writesTo(bus.Ops(), AOUTWriteBase)) != 0 {
		t.Error("incomplete group must not be written")
	}
	if c, _ := d.Channel(0); c.OnState != Unknown {
		t.Errorf("expected previous state UNKNOWN to be restored, got %s", c.OnState)
	}
}

func TestSwitchOnKeepsUnknownNeighbourAtZero(t *testing.T) {
	d, bus := newConfiguredDriver(t, zeroOffsets(func(ch int) int { return 10 * ch }))
	ctx := context.Background()

	if err := d.SwitchOn(ctx, 1, false); err != nil {
		t.Fatalf("SwitchOn(1): %v", err)
	}
	if err := d.SetSetpoint(ctx, 1, 5000); err != nil {
		t.Fatalf("SetSetpoint: %v", err)
	}
	if err := d.PowerOff(ctx); err != nil {
		t.Fatalf("PowerOff: %v", err)
	}
	if err := d.PowerOn(ctx); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}
	bus.SetStatus(true, true)
	if err := d.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	bus.ResetOps()

	// channel 1 was not switched on again and must stay at its zero offset
	if err := d.SwitchOn(ctx, 0, false); err != nil {
		t.Fatalf("SwitchOn(0): %v", err)
	}
	want := []uint16{0x0100, 10, 10, 20, 30}
	if got := lastWrite(t, bus, AOUTWriteBase); !slices.Equal(got, want) {
		t.Errorf("expected %04x, got %04x", want, got)
	}
	if c, _ := d.Channel(1); c.OnState != Unknown {
		t.Errorf("channel 1: group write must not cache a state, got %s", c.OnState)
	}
}

func TestPowerOffStateSurvivesSnapshot(t *testing.T) {
	d, _ := newConfiguredDriver(t, nil)
	ctx := context.Background()

	if err := d.SwitchOn(ctx, 1, false); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}
	if err := d.SetSetpoint(ctx, 1, 5000); err != nil {
		t.Fatalf("SetSetpoint: %v", err)
	}
	if err := d.PowerOff(ctx); err != nil {
		t.Fatalf("PowerOff: %v", err)
	}

	snap := d.Snapshot()
	if snap.Powered != Off {
		t.Errorf("expected powered OFF after power off, got %s", snap.Powered)
	}
	for i, v := range snap.Channels {
		if v.OnState != Unknown {
			t.Errorf("channel %d: expected UNKNOWN in snapshot, got %s", i, v.OnState)
		}
		if v.InferredState != Off {
			t.Errorf("channel %d: expected inferred OFF while unpowered, got %s", i, v.InferredState)
		}
	}
	if _, err := d.View(1); err != nil {
		t.Fatalf("View: %v", err)
	}
	for i := range ChannelCount {
		if c, _ := d.Channel(i); c.OnState != Unknown {
			t.Errorf("channel %d: snapshot must not cache a state, got %s", i, c.OnState)
		}
	}
}

func TestSetSetpointAfterPowerOffIsNotWritten(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	ctx := context.Background()

	if err := d.PowerOff(ctx); err != nil {
		t.Fatalf("PowerOff: %v", err)
	}
	bus.ResetOps()

	if err := d.SetSetpoint(ctx, 2, 700); err != nil {
		t.Fatalf("SetSetpoint: %v", err)
	}
	if len(writesTo(bus.Ops(), AOUTWriteBase)) != 0 {
		t.Error("setpoint must not be written while unpowered")
	}
	if c, _ := d.Channel(2); c.OnState != Unknown || c.Setpoint != Known(700) {
		t.Errorf("unexpected channel 2 state %+v", c)
	}
}

func TestSwitchOnRestoresStateOnWriteFailure(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	bus.Fail(nil, errors.New("broken pipe"), nil)

	err := d.SwitchOn(context.Background(), 0, false)
	if !errors.Is(err, ErrCommunication) {
		t.Fatalf("expected communication error, got %v", err)
	}
	if c, _ := d.Channel(0); c.OnState != Off {
		t.Errorf("expected OFF, got %s", c.OnState)
	}
}

func TestSwitchOffOutputsZeroOffset(t *testing.T) {
	d, bus := newConfiguredDriver(t, zeroOffsets(func(ch int) int { return ch * 10 }))
	ctx := context.Background()

	if err := d.SwitchOn(ctx, 5, false); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}
	if err := d.SetSetpoint(ctx, 5, 5000); err != nil {
		t.Fatalf("SetSetpoint: %v", err)
	}
	want := []uint16{0x0900, 40, 5000, 60, 70}
	if got := lastWrite(t, bus, AOUTWriteBase); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if err := d.SwitchOff(ctx, 5); err != nil {
		t.Fatalf("SwitchOff: %v", err)
	}
	want = []uint16{0x0900, 40, 50, 60, 70}
	if got := lastWrite(t, bus, AOUTWriteBase); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	c, _ := d.Channel(5)
	if c.OnState != Off {
		t.Errorf("expected OFF, got %s", c.OnState)
	}
	if c.Setpoint != Known(5000) {
		t.Errorf("setpoint should be kept, got %v", c.Setpoint)
	}
}

func TestSetSetpointValidation(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	ctx := context.Background()

	for _, v := range []int{SetpointMin - 1, SetpointMax + 1} {
		if err := d.SetSetpoint(ctx, 0, v); !errors.Is(err, ErrValidation) {
			t.Errorf("SetSetpoint(%d): expected validation error, got %v", v, err)
		}
	}
	if err := d.SetSetpoint(ctx, ChannelCount, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for channel index, got %v", err)
	}
	if c, _ := d.Channel(0); c.Setpoint.Valid {
		t.Errorf("rejected setpoint must not be stored, got %v", c.Setpoint)
	}

	if err := d.SetSetpoint(ctx, 0, SetpointMax); err != nil {
		t.Fatalf("SetSetpoint: %v", err)
	}
	if c, _ := d.Channel(0); c.Setpoint != Known(SetpointMax) {
		t.Errorf("expected stored setpoint, got %v", c.Setpoint)
	}
	if len(writesTo(bus.Ops(), AOUTWriteBase)) != 0 {
		t.Error("setpoint of an OFF channel must not be written")
	}
}

func TestSetSetpointNegativeIsTwosComplement(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	ctx := context.Background()

	if err := d.SwitchOn(ctx, 8, false); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}
	if err := d.SetSetpoint(ctx, 8, SetpointMin); err != nil {
		t.Fatalf("SetSetpoint: %v", err)
	}
	want := []uint16{0x0100, 0x8100, 0, 0, 0}
	if got := lastWrite(t, bus, AOUTWriteBase+AOUTModuleSize); !slices.Equal(got, want) {
		t.Errorf("expected %04x, got %04x", want, got)
	}
}

func TestPowerOffZeroesAllGroups(t *testing.T) {
	d, bus := newConfiguredDriver(t, zeroOffsets(func(ch int) int { return ch + 1 }))
	ctx := context.Background()

	for _, ch := range []int{0, 9} {
		if err := d.SwitchOn(ctx, ch, false); err != nil {
			t.Fatalf("SwitchOn(%d): %v", ch, err)
		}
		if err := d.SetSetpoint(ctx, ch, 1000); err != nil {
			t.Fatalf("SetSetpoint(%d): %v", ch, err)
		}
	}
	bus.ResetOps()

	if err := d.PowerOff(ctx); err != nil {
		t.Fatalf("PowerOff: %v", err)
	}

	ops := bus.Ops()
	want := []Op{
		{Kind: OpWrite, Address: AOUTWriteBase, Words: []uint16{0x0100, 1, 2, 3, 4}},
		{Kind: OpWrite, Address: AOUTWriteBase, Words: []uint16{0x0900, 5, 6, 7, 8}},
		{Kind: OpWrite, Address: AOUTWriteBase + AOUTModuleSize, Words: []uint16{0x0100, 9, 10, 11, 12}},
		{Kind: OpCoil, Address: CoilPower, On: false},
	}
	if len(ops) != len(want) {
		t.Fatalf("expected %d operations, got %d: %+v", len(want), len(ops), ops)
	}
	for i, w := range want {
		if ops[i].Kind != w.Kind || ops[i].Address != w.Address || ops[i].On != w.On || !slices.Equal(ops[i].Words, w.Words) {
			t.Errorf("op %d: expected %+v, got %+v", i, w, ops[i])
		}
	}

	for i := range ChannelCount {
		if c, _ := d.Channel(i); c.OnState != Unknown {
			t.Errorf("channel %d: expected UNKNOWN, got %s", i, c.OnState)
		}
	}
}

func TestPowerOffMissingZeroOffset(t *testing.T) {
	settings := DefaultSettings()
	settings[6].ZeroOffset = Raw{}
	d, bus := newConfiguredDriver(t, settings)

	err := d.PowerOff(context.Background())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, op := range bus.Ops() {
		if op.Kind != OpRead {
			t.Errorf("unexpected %s operation at %d", op.Kind, op.Address)
		}
	}
}

func TestWriteThenVerify(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	ctx := context.Background()
	words := []uint16{0x0100, 1, 2, 3, 4}
	repeated := d.Counters().RepeatedReads

	res, err := d.WriteThenVerify(ctx, AOUTWriteBase, words, []int{0})
	if err != nil {
		t.Fatalf("WriteThenVerify: %v", err)
	}
	if res.Outcome != Matched {
		t.Errorf("expected matched, got %s", res.Outcome)
	}
	if !slices.Equal(res.Data, words) {
		t.Errorf("expected data %v, got %v", words, res.Data)
	}
	if got := d.Counters().RepeatedReads; got != repeated {
		t.Errorf("matching first read must not count as repeated, got %d", got-repeated)
	}

	bus.HideOutputWrites(true)
	res, err = d.WriteThenVerify(ctx, AOUTWriteBase, []uint16{0x0900, 1, 2, 3, 4}, []int{0})
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if res.Outcome != TimedOut {
		t.Errorf("expected timed out, got %s", res.Outcome)
	}
	if len(res.Data) != 5 || res.Data[0] != 0x0100 {
		t.Errorf("expected last read data, got %v", res.Data)
	}
	// jede abweichende Leseantwort zählt, auch die erste
	if got := d.Counters().RepeatedReads; got <= repeated {
		t.Error("mismatching verify reads should be counted as repeated")
	}

	if _, err := d.WriteThenVerify(ctx, AOUTWriteBase, words, []int{5}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for check index, got %v", err)
	}
}

func TestVerifiedGroupWriteTimeout(t *testing.T) {
	bus := NewFakeBus()
	bus.SetStatus(true, true)
	d, err := NewDriver(bus, nil, Options{Timing: fastTiming(), VerifyWrites: true})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	ctx := context.Background()
	for range 2 {
		if err := d.Update(ctx); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	if err := d.SwitchOn(ctx, 0, false); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}
	if d.Counters().VerifyTimeouts != 0 {
		t.Error("confirmed write counted as timeout")
	}

	bus.HideOutputWrites(true)
	if err := d.SwitchOn(ctx, 4, false); err != nil {
		t.Fatalf("unconfirmed write must not fail: %v", err)
	}
	if d.Counters().VerifyTimeouts != 1 {
		t.Errorf("expected 1 verify timeout, got %d", d.Counters().VerifyTimeouts)
	}
}

func TestReadOutputGroup(t *testing.T) {
	d, _ := newConfiguredDriver(t, nil)
	ctx := context.Background()

	if _, err := d.ReadOutputGroup(ctx, 0); err == nil {
		t.Error("expected error for configuration control word")
	}

	if err := d.SwitchOn(ctx, 5, false); err != nil {
		t.Fatalf("SwitchOn: %v", err)
	}
	if err := d.SetSetpoint(ctx, 5, 1234); err != nil {
		t.Fatalf("SetSetpoint: %v", err)
	}

	g, err := d.ReadOutputGroup(ctx, 0)
	if err != nil {
		t.Fatalf("ReadOutputGroup: %v", err)
	}
	if g.Group != 1 {
		t.Errorf("expected group 1, got %+v", g)
	}
	if !slices.Equal(g.Channels, []int{4, 5, 6, 7}) {
		t.Errorf("unexpected channels %v", g.Channels)
	}
	if !slices.Equal(g.Values, []uint16{0, 1234, 0, 0}) {
		t.Errorf("unexpected values %v", g.Values)
	}

	if _, err := d.ReadOutputGroup(ctx, AOUTModules); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
