package mux

import (
	"slices"
	"testing"
)

func TestDecodeFault(t *testing.T) {
	tests := []struct {
		word uint16
		want Fault
	}{
		{0x0000, 0},
		{0x7FFF, 0},
		{0x8000, 0},
		{0x8001, FaultOverrange},
		{0x8004, FaultInvalidMeasurement},
		{0x8012, FaultSupply | FaultOpenCircuit},
		{0x8080, FaultUnderrange},
		{0x80FF, 0xFF},
		{0x8100, 0},
		{0xFFF0, 0},
	}

	for _, tt := range tests {
		if got := DecodeFault(tt.word); got != tt.want {
			t.Errorf("DecodeFault(%04x): expected %02x, got %02x", tt.word, uint8(tt.want), uint8(got))
		}
	}
}

func TestFaultNames(t *testing.T) {
	if got := FaultNames(0); !slices.Equal(got, []string{"ok"}) {
		t.Errorf("expected ok, got %v", got)
	}
	got := FaultNames(DecodeFault(0x8044))
	want := []string{"invalid measurement", "faulty analog input module"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if s := FaultOverrange.String(); s != "overrange" {
		t.Errorf("unexpected string %q", s)
	}
}
