package websocket

import (
	"time"

	"github.com/KevinKickass/CorrectorMux/internal/mux"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	MessageTypeAuth            MessageType = "auth"
	MessageTypeSnapshotRequest MessageType = "snapshot_request"

	// Server -> Client
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
	MessageTypeSnapshot    MessageType = "supply_snapshot"
	MessageTypeError       MessageType = "error"
)

// Message represents a WebSocket message sent by the server
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// clientMessage is what clients send; only auth carries a token.
type clientMessage struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token,omitempty"`
}

type AuthSuccessData struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type AuthFailedData struct {
	Reason string `json:"reason"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewSnapshotMessage(snap mux.Snapshot) Message {
	return NewMessage(MessageTypeSnapshot, snap)
}
