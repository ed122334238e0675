package mux

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ControlWord returns the output control word selecting group 0 or 1,
// optionally with the recall flag.
func ControlWord(group int, recall bool) (uint16, error) {
	var w uint16
	switch group {
	case 0:
		w = AOUTGroup0Control
	case 1:
		w = AOUTGroup1Control
	default:
		return 0, &ValidationError{Field: "output group", Value: group, Reason: "must be 0 or 1"}
	}
	if recall {
		w |= AOUTControlRecall
	}
	return w, nil
}

// GroupIndex decodes a plain group select word. Anything else, including
// words carrying the recall flag, is rejected.
func GroupIndex(word uint16) (int, error) {
	switch word {
	case AOUTGroup0Control:
		return 0, nil
	case AOUTGroup1Control:
		return 1, nil
	}
	return 0, fmt.Errorf("invalid output control word %04x", word)
}

// outputGroup locates the 4 channels sharing one control word.
type outputGroup struct {
	module int
	group  int
	first  int
}

func groupOf(ch int) outputGroup {
	first := ch - ch%AOUTPerGroup
	return outputGroup{
		module: ch / AOUTPerModule,
		group:  (ch % AOUTPerModule) / AOUTPerGroup,
		first:  first,
	}
}

func (g outputGroup) address() uint16 {
	return AOUTWriteBase + uint16(g.module*AOUTModuleSize)
}

// VerifyResult reports whether a write was observed and the last data read.
type VerifyResult struct {
	Outcome Outcome
	Data    []uint16
}

// WriteThenVerify writes words at addr and re-reads the same address until
// the words at the check indices match. A timeout is reported in the result,
// not as an error.
func (d *Driver) WriteThenVerify(ctx context.Context, addr uint16, words []uint16, check []int) (VerifyResult, error) {
	for _, i := range check {
		if i < 0 || i >= len(words) {
			return VerifyResult{Outcome: Aborted}, &ValidationError{Field: "check index", Value: i, Reason: fmt.Sprintf("outside %d written words", len(words))}
		}
	}

	if err := d.bus.WriteBlock(ctx, addr, words); err != nil {
		return VerifyResult{Outcome: Aborted}, err
	}

	var data []uint16
	outcome, err := PollUntil(ctx, d.timing.VerifyInterval, d.timing.VerifyTimeout, func(ctx context.Context) (bool, error) {
		got, err := d.read(ctx, addr, uint16(len(words)))
		if err != nil {
			return false, err
		}
		data = got
		for _, i := range check {
			if data[i] != words[i] {
				d.counters.RepeatedReads++
				return false, nil
			}
		}
		return true, nil
	})
	return VerifyResult{Outcome: outcome, Data: data}, err
}

// groupWords builds control word and the 4 output values of a group. Each
// channel outputs its setpoint when its state is On, otherwise its zero
// offset. Unknown neighbours are not inferred here.
func (d *Driver) groupWords(g outputGroup, forceZero bool) ([]uint16, []string) {
	ctrl, _ := ControlWord(g.group, false)
	words := []uint16{ctrl}
	var missing []string
	for i := g.first; i < g.first+AOUTPerGroup; i++ {
		c := &d.channels[i]
		v := c.ZeroOffset
		if !forceZero && c.OnState == On {
			v = c.Setpoint
		}
		if !v.Valid {
			missing = append(missing, c.Name)
			continue
		}
		words = append(words, uint16(v.Value))
	}
	return words, missing
}

func (d *Driver) writeGroup(ctx context.Context, ch int, forceZero bool) error {
	g := groupOf(ch)
	words, missing := d.groupWords(g, forceZero)
	if len(missing) > 0 {
		return &IncompleteGroupError{Channel: d.channels[ch].Name, Missing: missing}
	}

	d.counters.Writes++
	if !d.verifyWrites {
		return d.bus.WriteBlock(ctx, g.address(), words)
	}

	res, err := d.WriteThenVerify(ctx, g.address(), words, []int{0})
	if err != nil {
		return err
	}
	if res.Outcome == TimedOut {
		d.counters.VerifyTimeouts++
		d.logger.Warn("Output group write not confirmed",
			zap.Int("module", g.module),
			zap.Int("group", g.group),
			zap.String("data", fmt.Sprintf("%04x", res.Data)))
	}
	return nil
}

// SetSetpoint stores a raw setpoint for ch and writes it out if the channel
// is on.
func (d *Driver) SetSetpoint(ctx context.Context, ch int, value int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if value < SetpointMin || value > SetpointMax {
		return &ValidationError{Field: "setpoint", Value: value, Reason: fmt.Sprintf("must be between %d and %d", SetpointMin, SetpointMax)}
	}
	d.channels[ch].Setpoint = Known(value)
	if d.InferOnState(ch) == On {
		return d.writeGroup(ctx, ch, false)
	}
	return nil
}

// SwitchOn switches ch on. Unless forced the supply must be powered and
// ready; forcing powers it on when needed. A channel without setpoint
// starts at its zero offset.
func (d *Driver) SwitchOn(ctx context.Context, ch int, force bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	c := &d.channels[ch]
	if d.powered != On {
		if !force {
			return fmt.Errorf("switch on %s: %w", c.Name, ErrNotPowered)
		}
		if err := d.PowerOn(ctx); err != nil {
			return err
		}
	} else if d.ready != On && !force {
		return fmt.Errorf("switch on %s: %w", c.Name, ErrNotReady)
	}

	if !c.Setpoint.Valid {
		c.Setpoint = c.ZeroOffset
	}
	return d.switchTo(ctx, ch, On)
}

// SwitchOff switches ch off by outputting its zero offset.
func (d *Driver) SwitchOff(ctx context.Context, ch int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	return d.switchTo(ctx, ch, Off)
}

func (d *Driver) switchTo(ctx context.Context, ch int, state Tri) error {
	c := &d.channels[ch]
	prev := c.OnState
	c.OnState = state
	if err := d.writeGroup(ctx, ch, false); err != nil {
		c.OnState = prev
		return err
	}
	d.logger.Info("Channel switched", zap.String("channel", c.Name), zap.Stringer("state", state))
	return nil
}

// OutputGroup is the read back of one output module.
type OutputGroup struct {
	Module   int      `json:"module"`
	Group    int      `json:"group"`
	Channels []int    `json:"channels"`
	Values   []uint16 `json:"values"`
}

// ReadOutputGroup reads back the group currently latched on an output
// module.
func (d *Driver) ReadOutputGroup(ctx context.Context, module int) (OutputGroup, error) {
	if module < 0 || module >= AOUTModules {
		return OutputGroup{}, &ValidationError{Field: "output module", Value: module, Reason: fmt.Sprintf("must be between 0 and %d", AOUTModules-1)}
	}
	words, err := d.read(ctx, AOUTReadBase+uint16(module*AOUTModuleSize), AOUTModuleSize)
	if err != nil {
		return OutputGroup{}, err
	}
	group, err := GroupIndex(words[0])
	if err != nil {
		return OutputGroup{}, fmt.Errorf("output module %d: %w", module, err)
	}
	first := module*AOUTPerModule + group*AOUTPerGroup
	channels := make([]int, AOUTPerGroup)
	for i := range channels {
		channels[i] = first + i
	}
	return OutputGroup{
		Module:   module,
		Group:    group,
		Channels: channels,
		Values:   words[1:],
	}, nil
}
