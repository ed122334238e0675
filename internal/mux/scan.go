package mux

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var errStatusFault = errors.New("input module status fault")

// Scan cycles the column selector through all 8 inputs of every analog
// input module and returns the 24 readings, indexed column + 8*module: the
// first 12 are voltages, the last 12 currents.
//
// If a module reports a status fault the scan stops early, the driver is
// flagged for reconfiguration and the partial result (unread entries null)
// is returned without error. A selector that never latches returns a
// *SelectTimeoutError.
func (d *Driver) Scan(ctx context.Context) ([]Raw, error) {
	values := make([]Raw, AINTotal)
	for col := range AINPerModule {
		err := d.scanColumn(ctx, col, values)
		if errors.Is(err, errStatusFault) {
			d.needsConfig = true
			return values, nil
		}
		if err != nil {
			return values, err
		}
	}
	return values, nil
}

func (d *Driver) scanColumn(ctx context.Context, col int, values []Raw) error {
	code := uint16(col) * SelectorStep
	sel := make([]uint16, AINTotalSize)
	for m := range AINModules {
		sel[m*AINModuleSize] = code
	}
	if err := d.bus.WriteBlock(ctx, AINWriteBase, sel); err != nil {
		return fmt.Errorf("select input column %d: %w", col, err)
	}
	if err := sleep(ctx, d.timing.SelectDelay); err != nil {
		return err
	}

	var data []uint16
	first := true
	outcome, err := PollUntil(ctx, d.timing.SelectInterval, d.timing.SelectTimeout, func(ctx context.Context) (bool, error) {
		if !first {
			d.counters.RepeatedReads++
		}
		first = false

		words, err := d.read(ctx, AINReadBase, AINTotalSize)
		if err != nil {
			return false, fmt.Errorf("read input column %d: %w", col, err)
		}
		data = words

		latched := true
		for m := range AINModules {
			if data[m*AINModuleSize] != code {
				latched = false
			}
		}
		if latched {
			return true, nil
		}
		for m := range AINModules {
			if data[m*AINModuleSize]&StatusFaultBit != 0 {
				d.logger.Error("Analog input status fault",
					zap.Int("module", m),
					zap.String("status", fmt.Sprintf("%04x", data)))
				return false, errStatusFault
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if outcome == TimedOut {
		status := make([]uint16, AINModules)
		for m := range AINModules {
			status[m] = data[m*AINModuleSize]
		}
		return &SelectTimeoutError{Column: col, Status: status}
	}

	for m := range AINModules {
		values[col+m*AINPerModule] = Known(int(int16(data[m*AINModuleSize+1])))
	}
	return nil
}
