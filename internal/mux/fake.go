package mux

import (
	"context"
	"slices"
	"sync"

	"github.com/KevinKickass/CorrectorMux/internal/modbus"
)

type OpKind string

const (
	OpRead  OpKind = "read"
	OpWrite OpKind = "write"
	OpCoil  OpKind = "coil"
)

// Op is one recorded bus operation.
type Op struct {
	Kind    OpKind
	Address uint16
	Count   uint16
	Words   []uint16
	On      bool
}

// FakeBus simulates the gateway in memory: input module multiplexing with
// configurable latch latency, configuration echo, output read back, the
// digital status inputs and the power coil. Safe for concurrent use.
type FakeBus struct {
	mu    sync.Mutex
	mem   map[uint16]uint16
	coils map[uint16]bool
	ops   []Op

	inputs      [AINTotal]uint16
	statusFault map[int]uint16
	latchReads  int
	pending     int
	selector    uint16
	selecting   bool

	rejectInput  bool
	rejectOutput bool
	hideOutputs  bool

	ready      bool
	powered    bool
	coilPowers bool
	readErr    error
	writeErr   error
	coilErr    error
}

// NewFakeBus returns a bus that is ready, unpowered and whose power follows
// the coil.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		mem:         make(map[uint16]uint16),
		coils:       make(map[uint16]bool),
		statusFault: make(map[int]uint16),
		ready:       true,
		coilPowers:  true,
	}
}

func commFailure(op string, addr uint16, err error) error {
	return &modbus.CommunicationError{Op: op, Address: addr, Reason: err.Error(), Err: err}
}

func (b *FakeBus) ReadBlock(ctx context.Context, addr uint16, count uint16) ([]uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, Op{Kind: OpRead, Address: addr, Count: count})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.readErr != nil {
		return nil, commFailure("read", addr, b.readErr)
	}

	if addr == DINBase && count == 1 {
		var w uint16
		if b.ready {
			w |= DINReady
		}
		if b.powered {
			w |= DINOn
		}
		return []uint16{w}, nil
	}

	if addr == AINReadBase && count == AINTotalSize && b.selecting {
		if b.pending > 0 {
			b.pending--
		} else {
			col := int(b.selector / SelectorStep)
			for m := range AINModules {
				status := b.selector
				if f, ok := b.statusFault[m]; ok {
					status = f
				}
				b.mem[AINReadBase+uint16(m*AINModuleSize)] = status
				b.mem[AINReadBase+uint16(m*AINModuleSize)+1] = b.inputs[col+m*AINPerModule]
			}
		}
	}

	words := make([]uint16, count)
	for i := range words {
		words[i] = b.mem[addr+uint16(i)]
	}
	return words, nil
}

func (b *FakeBus) WriteBlock(ctx context.Context, addr uint16, words []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, Op{Kind: OpWrite, Address: addr, Count: uint16(len(words)), Words: slices.Clone(words)})
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.writeErr != nil {
		return commFailure("write", addr, b.writeErr)
	}

	if addr == AINWriteBase && len(words) == AINTotalSize {
		if words[0] == AINConfigControl {
			b.selecting = false
			for i, w := range words {
				if b.rejectInput {
					w = 0
				}
				b.mem[AINReadBase+uint16(i)] = w
			}
			return nil
		}
		b.selecting = true
		b.selector = words[0]
		b.pending = b.latchReads
		return nil
	}

	outputs := addr >= AOUTWriteBase && addr < AOUTWriteBase+AOUTTotalSize
	if outputs && b.hideOutputs {
		return nil
	}
	for i, w := range words {
		b.mem[addr+uint16(i)] = w
		if !outputs {
			continue
		}
		off := addr - AOUTWriteBase + uint16(i)
		if b.rejectOutput && w == AOUTConfigControl {
			w = 0
		}
		b.mem[AOUTReadBase+off] = w
	}
	return nil
}

func (b *FakeBus) WriteCoil(ctx context.Context, addr uint16, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, Op{Kind: OpCoil, Address: addr, On: on})
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.coilErr != nil {
		return commFailure("coil", addr, b.coilErr)
	}
	b.coils[addr] = on
	if addr == CoilPower && b.coilPowers {
		b.powered = on
	}
	return nil
}

// SetInput sets the raw word returned for input idx (column + 8*module).
func (b *FakeBus) SetInput(idx int, word uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs[idx] = word
}

// SetChannelInputs sets voltage and current words of a channel.
func (b *FakeBus) SetChannelInputs(ch int, voltage, current uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs[ch] = voltage
	b.inputs[ChannelCount+ch] = current
}

// SetStatusFault replaces the status word of an input module; zero clears.
func (b *FakeBus) SetStatusFault(module int, word uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if word == 0 {
		delete(b.statusFault, module)
		return
	}
	b.statusFault[module] = word
}

// SetLatchReads makes that many reads after a selector write return the
// previous status.
func (b *FakeBus) SetLatchReads(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latchReads = n
}

func (b *FakeBus) SetStatus(ready, powered bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready, b.powered = ready, powered
}

// SetCoilPowers controls whether writing the power coil changes the
// powered input.
func (b *FakeBus) SetCoilPowers(follow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coilPowers = follow
}

// RejectConfiguration makes modules answer configuration writes with zeros.
func (b *FakeBus) RejectConfiguration(input, output bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectInput, b.rejectOutput = input, output
}

// HideOutputWrites drops output writes so read back never matches.
func (b *FakeBus) HideOutputWrites(hide bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hideOutputs = hide
}

// Fail makes subsequent operations fail; nil restores them.
func (b *FakeBus) Fail(read, write, coil error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErr, b.writeErr, b.coilErr = read, write, coil
}

func (b *FakeBus) Coil(addr uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coils[addr]
}

// Register returns the simulated memory word at addr.
func (b *FakeBus) Register(addr uint16) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mem[addr]
}

func (b *FakeBus) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.ops)
}

func (b *FakeBus) ResetOps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
}
