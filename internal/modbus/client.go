package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Client ist ein Modbus-TCP-Master für genau ein Gateway.
type Client struct {
	address       string
	unitID        uint8
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, unitID uint8, timeout time.Duration) *Client {
	return &Client{
		address: address,
		unitID:  unitID,
		timeout: timeout,
	}
}

// Connect stellt TCP-Verbindung her
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close schließt die Verbindung
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

// IsConnected meldet ob eine Verbindung offen ist
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Address liefert host:port des Gateways
func (c *Client) Address() string {
	return c.address
}

// SendFrame sendet ein Frame und wartet auf Response.
// Nach einem I/O-Fehler ist die Verbindung geschlossen; Connect baut sie neu auf.
func (c *Client) SendFrame(ctx context.Context, request *ModbusFrame) (*ModbusFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}

	c.transactionID++
	request.TransactionID = c.transactionID
	request.UnitID = c.unitID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := c.conn.Write(request.Encode()); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	// MBAP Header zuerst, dann den Rest laut Length-Feld
	header := make([]byte, mbapSize)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}
	length := binary.BigEndian.Uint16(header[4:6])
	if length < 2 || length > 254 {
		c.closeLocked()
		return nil, fmt.Errorf("invalid length field: %d", length)
	}
	body := make([]byte, length-1)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(append(header, body...))
	if err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	// Transaction ID prüfen
	if response.TransactionID != request.TransactionID {
		c.closeLocked()
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	if err := response.Exception(); err != nil {
		return nil, err
	}

	if response.FunctionCode != request.FunctionCode {
		return nil, fmt.Errorf("function code mismatch: expected 0x%02X, got 0x%02X",
			request.FunctionCode, response.FunctionCode)
	}

	return response, nil
}

func (c *Client) readRegisters(ctx context.Context, request *ModbusFrame, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxReadQuantity {
		return nil, fmt.Errorf("invalid quantity: %d", quantity)
	}

	response, err := c.SendFrame(ctx, request)
	if err != nil {
		return nil, err
	}

	registers, err := response.ParseRegisterResponse()
	if err != nil {
		return nil, err
	}
	if len(registers) != int(quantity) {
		return nil, fmt.Errorf("expected %d registers, got %d", quantity, len(registers))
	}
	return registers, nil
}

// ReadHoldingRegisters liest Holding Registers
func (c *Client) ReadHoldingRegisters(ctx context.Context, startAddr uint16, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, ReadHoldingRegistersRequest(0, c.unitID, startAddr, quantity), quantity)
}

// ReadInputRegisters liest Input Registers
func (c *Client) ReadInputRegisters(ctx context.Context, startAddr uint16, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, ReadInputRegistersRequest(0, c.unitID, startAddr, quantity), quantity)
}

// WriteSingleRegister schreibt ein einzelnes Register
func (c *Client) WriteSingleRegister(ctx context.Context, addr uint16, value uint16) error {
	response, err := c.SendFrame(ctx, WriteSingleRegisterRequest(0, c.unitID, addr, value))
	if err != nil {
		return err
	}
	return response.ParseWriteResponse(addr, value)
}

// WriteMultipleRegisters schreibt einen Registerblock in einem Request
func (c *Client) WriteMultipleRegisters(ctx context.Context, startAddr uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteQuantity {
		return fmt.Errorf("invalid quantity: %d", len(values))
	}

	response, err := c.SendFrame(ctx, WriteMultipleRegistersRequest(0, c.unitID, startAddr, values))
	if err != nil {
		return err
	}
	return response.ParseWriteResponse(startAddr, uint16(len(values)))
}

// WriteSingleCoil setzt eine Coil
func (c *Client) WriteSingleCoil(ctx context.Context, addr uint16, on bool) error {
	response, err := c.SendFrame(ctx, WriteSingleCoilRequest(0, c.unitID, addr, on))
	if err != nil {
		return err
	}
	value := uint16(0)
	if on {
		value = 0xFF00
	}
	return response.ParseWriteResponse(addr, value)
}
