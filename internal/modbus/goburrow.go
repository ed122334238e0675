package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	gmodbus "github.com/goburrow/modbus"
)

// GoburrowTransport is the alternate backend built on goburrow/modbus. The
// library has no context support; the handler timeout bounds every call.
type GoburrowTransport struct {
	mu        sync.Mutex
	handler   *gmodbus.TCPClientHandler
	client    gmodbus.Client
	connected bool
}

func NewGoburrowTransport(address string, unitID uint8, timeout time.Duration) *GoburrowTransport {
	h := gmodbus.NewTCPClientHandler(address)
	h.Timeout = timeout
	h.SlaveId = unitID

	return &GoburrowTransport{
		handler: h,
		client:  gmodbus.NewClient(h),
	}
}

func (t *GoburrowTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}
	if err := t.handler.Connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	t.connected = true
	return nil
}

func (t *GoburrowTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	return t.handler.Close()
}

func (t *GoburrowTransport) call(op string, addr uint16, fn func() error) error {
	if err := t.Connect(); err != nil {
		return commError(op, addr, err)
	}
	if err := fn(); err != nil {
		// der Handler verbindet beim nächsten Aufruf neu
		t.Close()
		return commError(op, addr, err)
	}
	return nil
}

func (t *GoburrowTransport) ReadBlock(ctx context.Context, addr uint16, count uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, commError("read", addr, err)
	}
	var words []uint16
	err := t.call("read", addr, func() error {
		raw, err := t.client.ReadInputRegisters(addr, count)
		if err != nil {
			return err
		}
		words = unpackRegisters(raw)
		if len(words) != int(count) {
			return fmt.Errorf("expected %d registers, got %d", count, len(words))
		}
		return nil
	})
	return words, err
}

func (t *GoburrowTransport) WriteBlock(ctx context.Context, addr uint16, words []uint16) error {
	if err := ctx.Err(); err != nil {
		return commError("write", addr, err)
	}
	return t.call("write", addr, func() error {
		_, err := t.client.WriteMultipleRegisters(addr, uint16(len(words)), packRegisters(words))
		return err
	})
}

func (t *GoburrowTransport) WriteCoil(ctx context.Context, addr uint16, on bool) error {
	if err := ctx.Err(); err != nil {
		return commError("coil", addr, err)
	}
	value := uint16(0x0000)
	if on {
		value = 0xFF00
	}
	return t.call("coil", addr, func() error {
		_, err := t.client.WriteSingleCoil(addr, value)
		return err
	})
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func packRegisters(words []uint16) []byte {
	out := make([]byte, 2*len(words))
	for i, w := range words {
		out[2*i] = byte(w >> 8)
		out[2*i+1] = byte(w)
	}
	return out
}
