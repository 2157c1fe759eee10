package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"seatwarden/internal/domain"
	"seatwarden/internal/models"
)

const bookingColumns = `id, departure_id, hold_id, seat_count, status,
	customer_ref, customer_name, customer_contact, customer_channel,
	cancel_reason, created_by, created_at, updated_at, confirmed_at, cancelled_at`

func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}
	_, err := db.conn(ctx).ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.DepartureID, nullableString(b.HoldID), b.SeatCount, string(b.Status),
		b.Customer.Reference, b.Customer.Name, b.Customer.Contact, b.Customer.Channel,
		b.CancelReason, b.CreatedBy, toNanos(b.CreatedAt), toNanos(b.UpdatedAt),
		nullableNanos(b.ConfirmedAt), nullableNanos(b.CancelledAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: hold %s already referenced", domain.ErrInvalidArgument, b.HoldID)
		}
		return fmt.Errorf("insert booking: %w", mapDriverError(err))
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", mapDriverError(err))
	}
	return b, nil
}

func (db *DB) GetBookingByHoldID(ctx context.Context, holdID string) (*models.Booking, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE hold_id = ?`, holdID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking by hold: %w", mapDriverError(err))
	}
	return b, nil
}

func (db *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	res, err := db.conn(ctx).ExecContext(ctx, `UPDATE bookings
		SET hold_id = ?, status = ?, cancel_reason = ?, updated_at = ?, confirmed_at = ?, cancelled_at = ?
		WHERE id = ?`,
		nullableString(b.HoldID), string(b.Status), b.CancelReason, toNanos(b.UpdatedAt),
		nullableNanos(b.ConfirmedAt), nullableNanos(b.CancelledAt), b.ID)
	if err != nil {
		return fmt.Errorf("update booking: %w", mapDriverError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                      models.Booking
		holdID                 sql.NullString
		status                 string
		createdAt, updatedAt   int64
		confirmedAt, cancelled sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.DepartureID, &holdID, &b.SeatCount, &status,
		&b.Customer.Reference, &b.Customer.Name, &b.Customer.Contact, &b.Customer.Channel,
		&b.CancelReason, &b.CreatedBy, &createdAt, &updatedAt, &confirmedAt, &cancelled); err != nil {
		return nil, err
	}
	b.HoldID = holdID.String
	b.Status = models.BookingStatus(status)
	b.CreatedAt = fromNanos(createdAt)
	b.UpdatedAt = fromNanos(updatedAt)
	b.ConfirmedAt = fromNullableNanos(confirmedAt)
	b.CancelledAt = fromNullableNanos(cancelled)
	return &b, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
