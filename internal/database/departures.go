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

const departureColumns = `id, resource_id, starts_at, ends_at, total_capacity, status, version, created_at, updated_at`

func (db *DB) CreateDeparture(ctx context.Context, dep *models.Departure) error {
	if dep == nil {
		return fmt.Errorf("departure is nil")
	}
	_, err := db.conn(ctx).ExecContext(ctx, `INSERT INTO departures (`+departureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dep.ID, dep.ResourceID, toNanos(dep.StartsAt), toNanos(dep.EndsAt), dep.TotalCapacity,
		string(dep.Status), dep.Version, toNanos(dep.CreatedAt), toNanos(dep.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert departure: %w", mapDriverError(err))
	}
	return nil
}

func (db *DB) GetDeparture(ctx context.Context, id string) (*models.Departure, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+departureColumns+` FROM departures WHERE id = ?`, id)
	dep, err := scanDeparture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDepartureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get departure: %w", mapDriverError(err))
	}
	return dep, nil
}

// UpdateDeparture writes metadata and status. The version column is owned by
// BumpDepartureVersion.
func (db *DB) UpdateDeparture(ctx context.Context, dep *models.Departure) error {
	res, err := db.conn(ctx).ExecContext(ctx, `UPDATE departures
		SET resource_id = ?, starts_at = ?, ends_at = ?, total_capacity = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		dep.ResourceID, toNanos(dep.StartsAt), toNanos(dep.EndsAt), dep.TotalCapacity,
		string(dep.Status), toNanos(dep.UpdatedAt), dep.ID)
	if err != nil {
		return fmt.Errorf("update departure: %w", mapDriverError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDepartureNotFound
	}
	return nil
}

// BumpDepartureVersion is the optimistic check closing every capacity mutation.
func (db *DB) BumpDepartureVersion(ctx context.Context, id string, expected int64, now time.Time) (int64, error) {
	res, err := db.conn(ctx).ExecContext(ctx,
		`UPDATE departures SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		toNanos(now), id, expected)
	if err != nil {
		return 0, fmt.Errorf("bump departure version: %w", mapDriverError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bump departure version: %w", err)
	}
	if n == 0 {
		return 0, domain.ErrConcurrentModification
	}
	return expected + 1, nil
}

// ListDepartures returns departures starting in [from, to), optionally for one resource.
func (db *DB) ListDepartures(ctx context.Context, from, to time.Time, resourceID string) ([]*models.Departure, error) {
	query := `SELECT ` + departureColumns + ` FROM departures WHERE starts_at >= ? AND starts_at < ?`
	args := []any{toNanos(from), toNanos(to)}
	if resourceID != "" {
		query += ` AND resource_id = ?`
		args = append(args, resourceID)
	}
	query += ` ORDER BY starts_at, id`

	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list departures: %w", mapDriverError(err))
	}
	defer rows.Close()

	var out []*models.Departure
	for rows.Next() {
		dep, err := scanDeparture(rows)
		if err != nil {
			return nil, fmt.Errorf("scan departure: %w", err)
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

// CapacityUsage reads held, blocked and confirmed seats in a single statement so
// the three sums come from one snapshot.
func (db *DB) CapacityUsage(ctx context.Context, departureID string, now time.Time) (models.CapacityUsage, error) {
	const query = `SELECT
		(SELECT COALESCE(SUM(seat_count), 0) FROM holds
			WHERE departure_id = ? AND status = ? AND expires_at >= ?),
		(SELECT COALESCE(SUM(seat_count), 0) FROM blocks WHERE departure_id = ?),
		(SELECT COALESCE(SUM(seat_count), 0) FROM bookings WHERE departure_id = ? AND status = ?)`

	var u models.CapacityUsage
	err := db.conn(ctx).QueryRowContext(ctx, query,
		departureID, string(models.HoldActive), toNanos(now),
		departureID,
		departureID, string(models.BookingConfirmed),
	).Scan(&u.Held, &u.Blocked, &u.Confirmed)
	if err != nil {
		return models.CapacityUsage{}, fmt.Errorf("capacity usage: %w", mapDriverError(err))
	}
	return u, nil
}

func scanDeparture(row rowScanner) (*models.Departure, error) {
	var (
		d                   models.Departure
		status              string
		startsAt, endsAt    int64
		createdAt, updateAt int64
	)
	if err := row.Scan(&d.ID, &d.ResourceID, &startsAt, &endsAt, &d.TotalCapacity, &status,
		&d.Version, &createdAt, &updateAt); err != nil {
		return nil, err
	}
	d.Status = models.DepartureStatus(status)
	d.StartsAt = fromNanos(startsAt)
	d.EndsAt = fromNanos(endsAt)
	d.CreatedAt = fromNanos(createdAt)
	d.UpdatedAt = fromNanos(updateAt)
	return &d, nil
}
