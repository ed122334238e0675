package mux

import (
	"context"
	"fmt"
)

// PowerOn sets the power coil.
func (d *Driver) PowerOn(ctx context.Context) error {
	if err := d.bus.WriteCoil(ctx, CoilPower, true); err != nil {
		return fmt.Errorf("power on: %w", err)
	}
	d.logger.Info("Power on requested")
	return nil
}

// PowerOff drives every output to its zero offset, clears the power coil
// and forgets all on/off states. Powered reads Off until the next Update. If any zero offset is missing nothing is
// switched.
func (d *Driver) PowerOff(ctx context.Context) error {
	for first := 0; first < ChannelCount; first += AOUTPerGroup {
		if _, missing := d.groupWords(groupOf(first), true); len(missing) > 0 {
			return &IncompleteGroupError{Channel: "power off", Missing: missing}
		}
	}
	for first := 0; first < ChannelCount; first += AOUTPerGroup {
		if err := d.writeGroup(ctx, first, true); err != nil {
			return fmt.Errorf("power off: %w", err)
		}
	}
	if err := d.bus.WriteCoil(ctx, CoilPower, false); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	d.powered = Off
	for i := range d.channels {
		d.channels[i].OnState = Unknown
	}
	d.logger.Info("Power off requested")
	return nil
}
