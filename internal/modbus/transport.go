package modbus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCommunication matches every transport-level failure.
var ErrCommunication = errors.New("communication failure")

// CommunicationError reports a failed register operation without
// interpreting it. Retry policy belongs to the caller.
type CommunicationError struct {
	Op      string
	Address uint16
	Reason  string
	Err     error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s @%d: %s", e.Op, e.Address, e.Reason)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func (e *CommunicationError) Is(target error) bool { return target == ErrCommunication }

// Timeout reports whether the failure was a transport timeout rather than a
// device-reported fault.
func (e *CommunicationError) Timeout() bool {
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

func commError(op string, addr uint16, err error) error {
	if err == nil {
		return nil
	}
	return &CommunicationError{Op: op, Address: addr, Reason: err.Error(), Err: err}
}

// NativeTransport exposes the three primitive block operations the driver
// needs on top of Client. Reads use function 0x04, block writes 0x10 and
// coils 0x05.
type NativeTransport struct {
	client *Client
}

func NewNativeTransport(client *Client) *NativeTransport {
	return &NativeTransport{client: client}
}

// Connect opens the gateway connection. Block operations connect lazily, so
// after a failure the next call re-dials.
func (t *NativeTransport) Connect() error {
	return t.client.Connect()
}

func (t *NativeTransport) Close() error {
	return t.client.Close()
}

func (t *NativeTransport) ensure() error {
	if t.client.IsConnected() {
		return nil
	}
	return t.client.Connect()
}

func (t *NativeTransport) ReadBlock(ctx context.Context, addr uint16, count uint16) ([]uint16, error) {
	if err := t.ensure(); err != nil {
		return nil, commError("read", addr, err)
	}
	words, err := t.client.ReadInputRegisters(ctx, addr, count)
	if err != nil {
		return nil, commError("read", addr, err)
	}
	return words, nil
}

func (t *NativeTransport) WriteBlock(ctx context.Context, addr uint16, words []uint16) error {
	if err := t.ensure(); err != nil {
		return commError("write", addr, err)
	}
	return commError("write", addr, t.client.WriteMultipleRegisters(ctx, addr, words))
}

func (t *NativeTransport) WriteCoil(ctx context.Context, addr uint16, on bool) error {
	if err := t.ensure(); err != nil {
		return commError("coil", addr, err)
	}
	return commError("coil", addr, t.client.WriteSingleCoil(ctx, addr, on))
}

// Backend names accepted by Open.
const (
	BackendNative   = "native"
	BackendGoburrow = "goburrow"
)

// Link is a transport that owns a network connection.
type Link interface {
	ReadBlock(ctx context.Context, addr uint16, count uint16) ([]uint16, error)
	WriteBlock(ctx context.Context, addr uint16, words []uint16) error
	WriteCoil(ctx context.Context, addr uint16, on bool) error
	Connect() error
	Close() error
}

// Open builds the transport for the configured backend. It does not dial.
func Open(backend, address string, unitID uint8, timeout time.Duration) (Link, error) {
	switch backend {
	case "", BackendNative:
		return NewNativeTransport(NewClient(address, unitID, timeout)), nil
	case BackendGoburrow:
		return NewGoburrowTransport(address, unitID, timeout), nil
	default:
		return nil, fmt.Errorf("unknown modbus backend: %q", backend)
	}
}
