package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/CorrectorMux/internal/supply"
	"github.com/jackc/pgx/v5"
)

// Record stores one executed command. It implements supply.AuditLog.
func (p *PostgresClient) Record(ctx context.Context, cmd supply.Command) error {
	var errText *string
	if cmd.Error != "" {
		errText = &cmd.Error
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO command_log (id, channel, command, value, actor, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, cmd.ID, cmd.Channel, cmd.Name, cmd.Value, cmd.Actor, cmd.Success, errText, cmd.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentCommands returns the newest commands first.
func (p *PostgresClient) RecentCommands(ctx context.Context, limit int) ([]supply.Command, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, channel, command, value, actor, success, COALESCE(error, ''), created_at
		FROM command_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}

	cmds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (supply.Command, error) {
		var c supply.Command
		err := row.Scan(&c.ID, &c.Channel, &c.Name, &c.Value, &c.Actor, &c.Success, &c.Error, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan commands: %w", err)
	}
	return cmds, nil
}

var _ supply.AuditLog = (*PostgresClient)(nil)
