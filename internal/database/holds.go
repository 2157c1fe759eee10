package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"seatwarden/internal/domain"
	"seatwarden/internal/models"
)

const holdColumns = `id, departure_id, seat_count, hold_type, status, expires_at, created_by, created_at, updated_at`

func (db *DB) CreateHold(ctx context.Context, hold *models.Hold) error {
	if hold == nil {
		return fmt.Errorf("hold is nil")
	}
	_, err := db.conn(ctx).ExecContext(ctx, `INSERT INTO holds (`+holdColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hold.ID, hold.DepartureID, hold.SeatCount, string(hold.HoldType), string(hold.Status),
		toNanos(hold.ExpiresAt), hold.CreatedBy, toNanos(hold.CreatedAt), toNanos(hold.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert hold: %w", mapDriverError(err))
	}
	return nil
}

func (db *DB) GetHold(ctx context.Context, id string) (*models.Hold, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+holdColumns+` FROM holds WHERE id = ?`, id)
	h, err := scanHold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrHoldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hold: %w", mapDriverError(err))
	}
	return h, nil
}

// UpdateHold persists type, status and expiry. Seat count is immutable.
func (db *DB) UpdateHold(ctx context.Context, hold *models.Hold) error {
	res, err := db.conn(ctx).ExecContext(ctx, `UPDATE holds
		SET hold_type = ?, status = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		string(hold.HoldType), string(hold.Status), toNanos(hold.ExpiresAt), toNanos(hold.UpdatedAt), hold.ID)
	if err != nil {
		return fmt.Errorf("update hold: %w", mapDriverError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ListActiveHolds returns ACTIVE holds that have not logically expired at now.
func (db *DB) ListActiveHolds(ctx context.Context, departureID string, now time.Time) ([]*models.Hold, error) {
	return db.queryHolds(ctx, `SELECT `+holdColumns+` FROM holds
		WHERE departure_id = ? AND status = ? AND expires_at >= ?
		ORDER BY expires_at, id`,
		departureID, string(models.HoldActive), toNanos(now))
}

func (db *DB) ListHoldsByStatus(ctx context.Context, departureID string, status models.HoldStatus) ([]*models.Hold, error) {
	return db.queryHolds(ctx, `SELECT `+holdColumns+` FROM holds
		WHERE departure_id = ? AND status = ?
		ORDER BY created_at, id`,
		departureID, string(status))
}

// ListExpiredHolds returns ACTIVE holds whose expiry is strictly before now.
func (db *DB) ListExpiredHolds(ctx context.Context, departureID string, now time.Time) ([]*models.Hold, error) {
	return db.queryHolds(ctx, `SELECT `+holdColumns+` FROM holds
		WHERE departure_id = ? AND status = ? AND expires_at < ?
		ORDER BY expires_at, id`,
		departureID, string(models.HoldActive), toNanos(now))
}

func (db *DB) DeparturesWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = models.DefaultSweepBatchSize
	}
	rows, err := db.conn(ctx).QueryContext(ctx, `SELECT DISTINCT departure_id FROM holds
		WHERE status = ? AND expires_at < ?
		ORDER BY departure_id
		LIMIT ?`,
		string(models.HoldActive), toNanos(now), limit)
	if err != nil {
		return nil, fmt.Errorf("departures with expired holds: %w", mapDriverError(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan departure id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) queryHolds(ctx context.Context, query string, args ...any) ([]*models.Hold, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query holds: %w", mapDriverError(err))
	}
	defer rows.Close()

	var out []*models.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHold(row rowScanner) (*models.Hold, error) {
	var (
		h                               models.Hold
		holdType, status                string
		expiresAt, createdAt, updatedAt int64
	)
	if err := row.Scan(&h.ID, &h.DepartureID, &h.SeatCount, &holdType, &status, &expiresAt,
		&h.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	h.HoldType = models.HoldType(holdType)
	h.Status = models.HoldStatus(status)
	h.ExpiresAt = fromNanos(expiresAt)
	h.CreatedAt = fromNanos(createdAt)
	h.UpdatedAt = fromNanos(updatedAt)
	return &h, nil
}
