package storage

import (
	"context"
	"fmt"

	"github.com/KevinKickass/CorrectorMux/internal/supply"
	"github.com/jackc/pgx/v5"
)

// LoadChannelEntries reads the channel table, ordered by index.
func (p *PostgresClient) LoadChannelEntries(ctx context.Context) ([]supply.ChannelEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT index, name, zero_offset, "limit"
		FROM channel_settings
		ORDER BY index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel settings: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (supply.ChannelEntry, error) {
		var e supply.ChannelEntry
		err := row.Scan(&e.Index, &e.Name, &e.ZeroOffset, &e.Limit)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan channel settings: %w", err)
	}
	return entries, nil
}

// SaveChannelEntries replaces the channel table in one transaction.
func (p *PostgresClient) SaveChannelEntries(ctx context.Context, entries []supply.ChannelEntry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM channel_settings`); err != nil {
		return fmt.Errorf("failed to clear channel settings: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO channel_settings (index, name, zero_offset, "limit")
			VALUES ($1, $2, $3, $4)
		`, e.Index, e.Name, e.ZeroOffset, e.Limit)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert channel settings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
