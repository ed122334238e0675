package supply

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SupplyWide is the channel of commands that affect the whole bank.
const SupplyWide = -1

// Command is one operator action as recorded in the audit log.
type Command struct {
	ID        uuid.UUID `json:"id"`
	Channel   int       `json:"channel"`
	Name      string    `json:"command"`
	Value     *int      `json:"value,omitempty"`
	Actor     string    `json:"actor"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog interface {
	Record(ctx context.Context, cmd Command) error
}

// NopAudit discards all records.
type NopAudit struct{}

func (NopAudit) Record(context.Context, Command) error { return nil }
