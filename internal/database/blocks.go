package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"seatwarden/internal/domain"
	"seatwarden/internal/models"
)

const blockColumns = `id, departure_id, seat_count, block_type, reason, created_by, created_at`

func (db *DB) CreateBlock(ctx context.Context, block *models.Block) error {
	if block == nil {
		return fmt.Errorf("block is nil")
	}
	_, err := db.conn(ctx).ExecContext(ctx, `INSERT INTO blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		block.ID, block.DepartureID, block.SeatCount, string(block.BlockType), block.Reason,
		block.CreatedBy, toNanos(block.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert block: %w", mapDriverError(err))
	}
	return nil
}

func (db *DB) GetBlock(ctx context.Context, id string) (*models.Block, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", mapDriverError(err))
	}
	return b, nil
}

func (db *DB) DeleteBlock(ctx context.Context, id string) error {
	res, err := db.conn(ctx).ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", mapDriverError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBlockNotFound
	}
	return nil
}

func (db *DB) ListBlocks(ctx context.Context, departureID string) ([]*models.Block, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `SELECT `+blockColumns+` FROM blocks
		WHERE departure_id = ? ORDER BY created_at, id`, departureID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", mapDriverError(err))
	}
	defer rows.Close()

	var out []*models.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBlock(row rowScanner) (*models.Block, error) {
	var (
		b         models.Block
		blockType string
		createdAt int64
	)
	if err := row.Scan(&b.ID, &b.DepartureID, &b.SeatCount, &blockType, &b.Reason, &b.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	b.BlockType = models.BlockType(blockType)
	b.CreatedAt = fromNanos(createdAt)
	return &b, nil
}
