package mux

import "strings"

// Fault is the error bitmask an analog input module reports instead of a
// measurement (Phoenix IB IL AI/8 SF format).
type Fault uint8

const (
	FaultOverrange          Fault = 0x01
	FaultOpenCircuit        Fault = 0x02
	FaultInvalidMeasurement Fault = 0x04
	FaultSupply             Fault = 0x10
	FaultModule             Fault = 0x40
	FaultUnderrange         Fault = 0x80

	faultMin uint16 = 0x8000
	faultMax uint16 = 0x8100
)

var faultTable = []struct {
	bit  Fault
	name string
}{
	{FaultOverrange, "overrange"},
	{FaultOpenCircuit, "open circuit"},
	{FaultInvalidMeasurement, "invalid measurement"},
	{FaultSupply, "I/O supply voltage failure"},
	{FaultModule, "faulty analog input module"},
	{FaultUnderrange, "underrange"},
}

// DecodeFault extracts the fault mask from a raw input word. Words in
// (0x8000, 0x8100) are faults; everything else is a valid measurement.
func DecodeFault(word uint16) Fault {
	if word > faultMin && word < faultMax {
		return Fault(word ^ faultMin)
	}
	return 0
}

func (f Fault) Has(bit Fault) bool { return f&bit != 0 }

// FaultNames lists the names of all set bits, or "ok" for no fault.
func FaultNames(f Fault) []string {
	if f == 0 {
		return []string{"ok"}
	}
	var names []string
	for _, e := range faultTable {
		if f.Has(e.bit) {
			names = append(names, e.name)
		}
	}
	return names
}

func (f Fault) String() string {
	return strings.Join(FaultNames(f), ",")
}
