package mux

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

func ainConfiguration() []uint16 {
	words := make([]uint16, 0, AINTotalSize)
	for range AINModules {
		words = append(words, AINConfigControl, AINConfigOptions)
	}
	return words
}

func aoutConfiguration() []uint16 {
	words := make([]uint16, AOUTTotalSize)
	for m := range AOUTModules {
		words[m*AOUTModuleSize] = AOUTConfigControl
	}
	return words
}

// Configure writes the input and output module configuration, waits for it
// to settle and verifies the echo. On success every channel is marked Off.
// A module that does not echo its configuration is fatal.
func (d *Driver) Configure(ctx context.Context) error {
	d.logger.Debug("Configuring analog modules")

	ain := ainConfiguration()
	if err := d.bus.WriteBlock(ctx, AINWriteBase, ain); err != nil {
		return fmt.Errorf("write input configuration: %w", err)
	}
	aout := aoutConfiguration()
	if err := d.bus.WriteBlock(ctx, AOUTWriteBase, aout); err != nil {
		return fmt.Errorf("write output configuration: %w", err)
	}

	if err := sleep(ctx, d.timing.SettleDelay); err != nil {
		return err
	}

	got, err := d.read(ctx, AINReadBase, AINTotalSize)
	if err != nil {
		return fmt.Errorf("read input configuration: %w", err)
	}
	if !slices.Equal(got, ain) {
		d.logger.Error("Input configuration rejected", zap.String("want", fmt.Sprintf("%04x", ain)), zap.String("got", fmt.Sprintf("%04x", got)))
		return &ConfigMismatchError{Region: "analog input", Want: ain, Got: got}
	}

	// nur die Steuerworte vergleichen, Ausgabewerte sind nach Konfiguration undefiniert
	got, err = d.read(ctx, AOUTReadBase, AOUTTotalSize)
	if err != nil {
		return fmt.Errorf("read output configuration: %w", err)
	}
	want := make([]uint16, AOUTModules)
	control := make([]uint16, AOUTModules)
	for m := range AOUTModules {
		want[m] = AOUTConfigControl
		control[m] = got[m*AOUTModuleSize]
	}
	if !slices.Equal(control, want) {
		d.logger.Error("Output configuration rejected", zap.String("want", fmt.Sprintf("%04x", want)), zap.String("got", fmt.Sprintf("%04x", control)))
		return &ConfigMismatchError{Region: "analog output", Want: want, Got: control}
	}

	for i := range d.channels {
		d.channels[i].OnState = Off
	}
	d.needsConfig = false
	d.logger.Info("Analog modules configured")
	return nil
}
