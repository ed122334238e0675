package mux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ChannelView is the externally visible state of one channel.
type ChannelView struct {
	Index           int      `json:"index"`
	Name            string   `json:"name"`
	OnState         Tri      `json:"on_state"`
	InferredState   Tri      `json:"inferred_state"`
	Setpoint        Raw      `json:"setpoint"`
	ZeroOffset      Raw      `json:"zero_offset"`
	Limit           Raw      `json:"limit"`
	MeasuredCurrent Raw      `json:"measured_current"`
	MeasuredVoltage Raw      `json:"measured_voltage"`
	CurrentFault    Fault    `json:"current_fault"`
	VoltageFault    Fault    `json:"voltage_fault"`
	ErrorCode       int      `json:"error_code"`
	Faults          []string `json:"faults,omitempty"`
}

type Snapshot struct {
	Ready              Tri           `json:"ready"`
	Powered            Tri           `json:"powered"`
	NeedsConfiguration bool          `json:"needs_configuration"`
	Channels           []ChannelView `json:"channels"`
	Counters           Counters      `json:"counters"`
}

// View returns the state of channel ch. OnState is the stored state;
// InferredState is what inference would answer, without caching it.
func (d *Driver) View(ch int) (ChannelView, error) {
	if err := checkChannel(ch); err != nil {
		return ChannelView{}, err
	}
	c := d.channels[ch]
	v := ChannelView{
		Index:           ch,
		Name:            c.Name,
		OnState:         c.OnState,
		InferredState:   d.peekOnState(ch),
		Setpoint:        c.Setpoint,
		ZeroOffset:      c.ZeroOffset,
		Limit:           c.Limit,
		MeasuredCurrent: c.MeasuredCurrent,
		MeasuredVoltage: c.MeasuredVoltage,
		CurrentFault:    c.CurrentFault,
		VoltageFault:    c.VoltageFault,
		ErrorCode:       d.ErrorCode(ch),
	}
	if c.CurrentFault != 0 {
		v.Faults = append(v.Faults, "current: "+c.CurrentFault.String())
	}
	if c.VoltageFault != 0 {
		v.Faults = append(v.Faults, "voltage: "+c.VoltageFault.String())
	}
	return v, nil
}

// Snapshot collects the state of all channels. It does not change the
// on/off cache.
func (d *Driver) Snapshot() Snapshot {
	s := Snapshot{
		Ready:              d.ready,
		Powered:            d.powered,
		NeedsConfiguration: d.needsConfig,
		Channels:           make([]ChannelView, ChannelCount),
		Counters:           d.counters,
	}
	for i := range s.Channels {
		s.Channels[i], _ = d.View(i)
	}
	return s
}

var (
	summaryTitleStyle = lipgloss.NewStyle().Bold(true)
	summaryFaultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	colIndexStyle = lipgloss.NewStyle().Width(4).Align(lipgloss.Right).Padding(0, 1)
	colNameStyle  = lipgloss.NewStyle().Width(18).Padding(0, 1)
	colStateStyle = lipgloss.NewStyle().Width(9).Padding(0, 1)
	colRawStyle   = lipgloss.NewStyle().Width(10).Align(lipgloss.Right).Padding(0, 1)
	colFaultStyle = lipgloss.NewStyle().Padding(0, 1)
)

// StatusLine condenses ready, powered and configuration state.
func (s Snapshot) StatusLine() string {
	switch {
	case s.Powered == On:
		return "ON"
	case s.Ready == On && s.NeedsConfiguration:
		return "READY but not configured"
	case s.Ready == On:
		return "READY"
	default:
		return "FAULT"
	}
}

// Summary renders the snapshot as a fixed width text table.
func (s Snapshot) Summary() string {
	var b strings.Builder
	b.WriteString(summaryTitleStyle.Render("Power supply: " + s.StatusLine()))
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
		colIndexStyle.Render("#"),
		colNameStyle.Render("Name"),
		colStateStyle.Render("State"),
		colRawStyle.Render("Setpoint"),
		colRawStyle.Render("Zero"),
		colRawStyle.Render("Current"),
		colRawStyle.Render("Voltage"),
		colFaultStyle.Render("Faults"),
	))
	b.WriteString("\n")

	for _, c := range s.Channels {
		faults := ""
		if len(c.Faults) > 0 {
			faults = summaryFaultStyle.Render(strings.Join(c.Faults, "; "))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left,
			colIndexStyle.Render(fmt.Sprint(c.Index)),
			colNameStyle.Render(c.Name),
			colStateStyle.Render(c.InferredState.String()),
			colRawStyle.Render(c.Setpoint.String()),
			colRawStyle.Render(c.ZeroOffset.String()),
			colRawStyle.Render(c.MeasuredCurrent.String()),
			colRawStyle.Render(c.MeasuredVoltage.String()),
			colFaultStyle.Render(faults),
		))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "cycles %d, reads %d (repeated %d), writes %d, unconfirmed writes %d\n",
		s.Counters.ScanCycles, s.Counters.Reads, s.Counters.RepeatedReads, s.Counters.Writes, s.Counters.VerifyTimeouts)
	return b.String()
}

// Summary renders the current state as a text table.
func (d *Driver) Summary() string {
	return d.Snapshot().Summary()
}
