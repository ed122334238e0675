package mux

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Tri is a three-valued flag. The zero value is Unknown.
type Tri uint8

const (
	Unknown Tri = iota
	Off
	On
)

// TriOf maps a known boolean onto Off/On.
func TriOf(b bool) Tri {
	if b {
		return On
	}
	return Off
}

func (t Tri) Known() bool { return t != Unknown }

func (t Tri) String() string {
	switch t {
	case On:
		return "ON"
	case Off:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

func (t Tri) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tri) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ON":
		*t = On
	case "OFF":
		*t = Off
	case "UNKNOWN", "":
		*t = Unknown
	default:
		return fmt.Errorf("invalid tri-state %q", b)
	}
	return nil
}

// Raw is a nullable raw device value.
type Raw struct {
	Value int
	Valid bool
}

// Known wraps a present value.
func Known(v int) Raw { return Raw{Value: v, Valid: true} }

func (r Raw) String() string {
	if !r.Valid {
		return "-"
	}
	return strconv.Itoa(r.Value)
}

func (r Raw) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Raw) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Raw{}
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Known(v)
	return nil
}

// Channel is one corrector output with its last known readings.
type Channel struct {
	Name            string
	ZeroOffset      Raw // raw units of physical zero current
	Limit           Raw // only used to infer on/off without a setpoint
	Setpoint        Raw
	MeasuredCurrent Raw
	MeasuredVoltage Raw
	CurrentFault    Fault
	VoltageFault    Fault
	OnState         Tri
}

// ChannelSettings is what the caller supplies once at startup.
type ChannelSettings struct {
	Name       string
	ZeroOffset Raw
	Limit      Raw
}

// DefaultSettings returns settings for every channel with a zero offset of 0
// and the default on/off inference limit.
func DefaultSettings() []ChannelSettings {
	s := make([]ChannelSettings, ChannelCount)
	for i := range s {
		s[i] = ChannelSettings{
			Name:       fmt.Sprintf("channel %d", i),
			ZeroOffset: Known(0),
			Limit:      Known(DefaultChannelLimit),
		}
	}
	return s
}

// InferOnState reports whether channel ch is switched on. A determined
// answer is cached until configuration or power-off resets it; Unknown is
// never cached so the next call retries.
func (d *Driver) InferOnState(ch int) Tri {
	if ch < 0 || ch >= ChannelCount {
		return Unknown
	}
	c := &d.channels[ch]
	if c.OnState.Known() {
		return c.OnState
	}
	if d.powered != On {
		return Off
	}
	c.OnState = d.inferOnState(ch)
	return c.OnState
}

// inferOnState evaluates the inference rules for a powered supply without
// touching the cache.
func (d *Driver) inferOnState(ch int) Tri {
	c := &d.channels[ch]
	switch {
	case !c.ZeroOffset.Valid:
		return Unknown
	case c.Setpoint.Valid:
		return TriOf(c.Setpoint.Value != c.ZeroOffset.Value)
	case c.MeasuredCurrent.Valid && c.Limit.Valid:
		delta := c.MeasuredCurrent.Value - c.ZeroOffset.Value
		if delta < 0 {
			delta = -delta
		}
		return TriOf(delta > c.Limit.Value)
	default:
		return Unknown
	}
}

// peekOnState is InferOnState without caching.
func (d *Driver) peekOnState(ch int) Tri {
	switch {
	case d.channels[ch].OnState.Known():
		return d.channels[ch].OnState
	case d.powered != On:
		return Off
	default:
		return d.inferOnState(ch)
	}
}
