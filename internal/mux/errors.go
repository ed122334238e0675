package mux

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KevinKickass/CorrectorMux/internal/modbus"
)

var (
	// ErrCommunication matches transport failures surfaced by the driver.
	ErrCommunication = modbus.ErrCommunication

	ErrValidation = errors.New("validation failed")
	ErrNotPowered = errors.New("power supply is off")
	ErrNotReady   = errors.New("power supply not ready")

	// ErrFatal marks hardware states the driver cannot reconcile.
	ErrFatal = errors.New("fatal hardware state")
)

type ValidationError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IncompleteGroupError is returned when an output group cannot be written
// because some of its channels have no value to output.
type IncompleteGroupError struct {
	Channel string
	Missing []string
}

func (e *IncompleteGroupError) Error() string {
	return fmt.Sprintf("can not write %s, missing setpoints for %s", e.Channel, strings.Join(e.Missing, ", "))
}

func (e *IncompleteGroupError) Is(target error) bool { return target == ErrValidation }

// ConfigMismatchError means a module did not accept its configuration word.
type ConfigMismatchError struct {
	Region string
	Want   []uint16
	Got    []uint16
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("failure to configure %s module(s): should be %04x is %04x", e.Region, e.Want, e.Got)
}

func (e *ConfigMismatchError) Is(target error) bool { return target == ErrFatal }

// SelectTimeoutError is returned when the input modules never latched a
// column selector within the select timeout.
type SelectTimeoutError struct {
	Column int
	Status []uint16
}

func (e *SelectTimeoutError) Error() string {
	return fmt.Sprintf("input column %d not latched, status %04x", e.Column, e.Status)
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= ChannelCount {
		return &ValidationError{Field: "channel", Value: ch, Reason: fmt.Sprintf("must be between 0 and %d", ChannelCount-1)}
	}
	return nil
}
