package mux

import (
	"context"
	"errors"
	"testing"
)

func TestScanSelectsColumnsAndInterleaves(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	bus.SetLatchReads(2)
	bus.SetInput(3, 111)
	bus.SetInput(3+AINPerModule, 222)
	bus.SetInput(3+2*AINPerModule, 0xFFF0)
	before := d.Counters()

	values, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var selectors []uint16
	for _, op := range writesTo(bus.Ops(), AINWriteBase) {
		if op.Words[0] != op.Words[2] || op.Words[0] != op.Words[4] {
			t.Errorf("selector differs between modules: %04x", op.Words)
		}
		selectors = append(selectors, op.Words[0])
	}
	if len(selectors) != AINPerModule {
		t.Fatalf("expected %d selector writes, got %d", AINPerModule, len(selectors))
	}
	if selectors[3] != 0x300 {
		t.Errorf("expected selector 0x300 for column 3, got %04x", selectors[3])
	}

	if values[3] != Known(111) || values[11] != Known(222) || values[19] != Known(-16) {
		t.Errorf("unexpected column 3 values: %v %v %v", values[3], values[11], values[19])
	}

	after := d.Counters()
	if got := after.RepeatedReads - before.RepeatedReads; got != 2*AINPerModule {
		t.Errorf("expected %d repeated reads, got %d", 2*AINPerModule, got)
	}
	if got := after.Reads - before.Reads; got != 3*AINPerModule {
		t.Errorf("expected %d reads, got %d", 3*AINPerModule, got)
	}
}

func TestScanStatusFaultFlagsReconfiguration(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	bus.SetStatusFault(1, 0x8004)
	bus.SetChannelInputs(0, 500, 500)

	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("Update should not fail on status fault: %v", err)
	}
	if !d.NeedsConfiguration() {
		t.Fatal("status fault should request reconfiguration")
	}
	c, _ := d.Channel(0)
	if c.MeasuredVoltage.Valid || c.MeasuredCurrent.Valid {
		t.Errorf("expected unread values to be null, got %v %v", c.MeasuredVoltage, c.MeasuredCurrent)
	}
	if got := d.Counters().ScanCycles; got != 1 {
		t.Errorf("aborted scan must not be counted, got %d cycles", got)
	}

	bus.SetStatusFault(1, 0)
	bus.ResetOps()
	if err := d.Update(context.Background()); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if d.NeedsConfiguration() {
		t.Error("reconfiguration should clear the flag")
	}
	if len(writesTo(bus.Ops(), AOUTWriteBase)) != 1 {
		t.Error("expected output configuration write")
	}
}

func TestScanSelectTimeout(t *testing.T) {
	d, bus := newConfiguredDriver(t, nil)
	bus.SetLatchReads(1 << 20)

	err := d.Update(context.Background())
	var timeout *SelectTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected SelectTimeoutError, got %v", err)
	}
	if timeout.Column != 0 {
		t.Errorf("expected column 0, got %d", timeout.Column)
	}
	if d.NeedsConfiguration() {
		t.Error("select timeout must not request reconfiguration")
	}
}

func TestScanCanceled(t *testing.T) {
	d, _ := newConfiguredDriver(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
