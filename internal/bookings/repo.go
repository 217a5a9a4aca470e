package bookings

import (
	"context"
	"time"
)

// Repo defines persistence for schedules and bookings. Book and Cancel
// adjust slot accounting atomically with the booking row: the
// availability check and the decrement are one conditional write, never
// a read followed by a separate write, so two racing bookings for the
// last slot cannot both succeed.
type Repo interface {
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	CreateSchedule(ctx context.Context, schedule Schedule) error

	Book(ctx context.Context, booking Booking, now time.Time) (Booking, error)
	Cancel(ctx context.Context, bookingID string) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
}
