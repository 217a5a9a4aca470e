package bookings

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres. Slot accounting relies on a
// conditional decrement (WHERE available_slots > 0) so the last slot
// can only be taken once, and on a partial unique index for the
// one-scheduled-booking-per-record rule.
type PGRepo struct {
	DB *sql.DB
}

// CreateSchedule inserts a schedule row.
func (r *PGRepo) CreateSchedule(ctx context.Context, schedule Schedule) error {
	const query = `
INSERT INTO schedules (id, date, start_offset, end_offset, venue, total_slots, available_slots, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7 > 0)`
	_, err := r.DB.ExecContext(ctx, query,
		schedule.ID,
		schedule.Date,
		schedule.StartOffset,
		schedule.EndOffset,
		schedule.Venue,
		schedule.TotalSlots,
		schedule.AvailableSlots,
	)
	return err
}

// GetSchedule returns a schedule by ID.
func (r *PGRepo) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	const query = `
SELECT id, date, start_offset, end_offset, venue, total_slots, available_slots, is_available
FROM schedules
WHERE id = $1`
	return scanSchedule(r.DB.QueryRowContext(ctx, query, id))
}

// ListSchedules returns schedules matching the filter, earliest first.
func (r *PGRepo) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error) {
	query := `
SELECT id, date, start_offset, end_offset, venue, total_slots, available_slots, is_available
FROM schedules
WHERE 1=1`
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}
	if !filter.From.IsZero() {
		query += " AND date >= " + next(filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND date <= " + next(filter.To)
	}
	if filter.Venue != "" {
		query += " AND venue = " + next(filter.Venue)
	}
	if filter.OnlyAvailable {
		query += " AND is_available"
	}
	query += " ORDER BY date, start_offset"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// Book reserves one slot inside a single transaction. The decrement is
// conditional; zero rows affected means the last slot was already gone.
// The partial unique index on (parent_record_id) WHERE status =
// 'scheduled' backstops the duplicate check under races.
func (r *PGRepo) Book(ctx context.Context, booking Booking, now time.Time) (Booking, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Booking{}, err
	}
	defer tx.Rollback()

	var date time.Time
	var startOffset int
	err = tx.QueryRowContext(ctx,
		`SELECT date, start_offset FROM schedules WHERE id = $1`,
		booking.ScheduleID,
	).Scan(&date, &startOffset)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, err
	}
	if !now.Before(date.Add(time.Duration(startOffset) * time.Minute)) {
		return Booking{}, ErrSessionStarted
	}

	res, err := tx.ExecContext(ctx, `
UPDATE schedules
SET available_slots = available_slots - 1,
    is_available    = available_slots - 1 > 0
WHERE id = $1 AND available_slots > 0`,
		booking.ScheduleID,
	)
	if err != nil {
		return Booking{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Booking{}, err
	}
	if affected == 0 {
		return Booking{}, ErrNoSlots
	}

	booking.Status = BookingScheduled
	booking.CreatedAt = now.UTC()
	booking.UpdatedAt = booking.CreatedAt
	_, err = tx.ExecContext(ctx, `
INSERT INTO bookings (id, schedule_id, parent_record_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`,
		booking.ID,
		booking.ScheduleID,
		booking.ParentRecordID,
		booking.Status,
		booking.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Booking{}, ErrDuplicateBooking
		}
		return Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// Cancel releases a scheduled booking's slot in a single transaction.
func (r *PGRepo) Cancel(ctx context.Context, bookingID string) (Booking, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Booking{}, err
	}
	defer tx.Rollback()

	var booking Booking
	err = tx.QueryRowContext(ctx, `
UPDATE bookings
SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = $3
RETURNING id, schedule_id, parent_record_id, status, created_at, updated_at`,
		bookingID, BookingCancelled, BookingScheduled,
	).Scan(&booking.ID, &booking.ScheduleID, &booking.ParentRecordID, &booking.Status, &booking.CreatedAt, &booking.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := r.GetBooking(ctx, bookingID); lookupErr != nil {
			return Booking{}, lookupErr
		}
		return Booking{}, ErrNotScheduled
	}
	if err != nil {
		return Booking{}, err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE schedules
SET available_slots = LEAST(available_slots + 1, total_slots),
    is_available    = TRUE
WHERE id = $1`,
		booking.ScheduleID,
	)
	if err != nil {
		return Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return Booking{}, err
	}
	return booking, nil
}

// GetBooking returns a booking by ID.
func (r *PGRepo) GetBooking(ctx context.Context, id string) (Booking, error) {
	const query = `
SELECT id, schedule_id, parent_record_id, status, created_at, updated_at
FROM bookings
WHERE id = $1`
	var booking Booking
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&booking.ID,
		&booking.ScheduleID,
		&booking.ParentRecordID,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, err
	}
	return booking, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var s Schedule
	err := row.Scan(
		&s.ID,
		&s.Date,
		&s.StartOffset,
		&s.EndOffset,
		&s.Venue,
		&s.TotalSlots,
		&s.AvailableSlots,
		&s.IsAvailable,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	if err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
