package bookings

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores schedules and bookings in memory and is safe for
// concurrent use. The mutex makes check-and-decrement atomic, matching
// the conditional-write guarantee of the Postgres repo.
type MemoryRepo struct {
	mu        sync.Mutex
	schedules map[string]Schedule
	bookings  map[string]Booking
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		schedules: make(map[string]Schedule),
		bookings:  make(map[string]Booking),
	}
}

// CreateSchedule stores a schedule.
func (r *MemoryRepo) CreateSchedule(ctx context.Context, schedule Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule.IsAvailable = schedule.AvailableSlots > 0
	r.schedules[schedule.ID] = schedule
	return nil
}

// GetSchedule returns a schedule by ID.
func (r *MemoryRepo) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	if err := ctx.Err(); err != nil {
		return Schedule{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule, ok := r.schedules[id]
	if !ok {
		return Schedule{}, ErrNotFound
	}
	return schedule, nil
}

// ListSchedules returns schedules matching the filter, earliest first.
func (r *MemoryRepo) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	schedules := make([]Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		if !filter.From.IsZero() && s.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && s.Date.After(filter.To) {
			continue
		}
		if filter.Venue != "" && s.Venue != filter.Venue {
			continue
		}
		if filter.OnlyAvailable && !s.IsAvailable {
			continue
		}
		schedules = append(schedules, s)
	}
	sort.Slice(schedules, func(i, j int) bool {
		if !schedules[i].Date.Equal(schedules[j].Date) {
			return schedules[i].Date.Before(schedules[j].Date)
		}
		return schedules[i].StartOffset < schedules[j].StartOffset
	})
	return schedules, nil
}

// Book reserves one slot. The duplicate check, availability check, and
// decrement all happen under one lock.
func (r *MemoryRepo) Book(ctx context.Context, booking Booking, now time.Time) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	schedule, ok := r.schedules[booking.ScheduleID]
	if !ok {
		return Booking{}, ErrNotFound
	}
	if !now.Before(schedule.SessionStart()) {
		return Booking{}, ErrSessionStarted
	}
	for _, existing := range r.bookings {
		if existing.ParentRecordID == booking.ParentRecordID && existing.Status == BookingScheduled {
			return Booking{}, ErrDuplicateBooking
		}
	}
	if schedule.AvailableSlots <= 0 {
		return Booking{}, ErrNoSlots
	}

	schedule.AvailableSlots--
	schedule.IsAvailable = schedule.AvailableSlots > 0
	r.schedules[schedule.ID] = schedule

	booking.Status = BookingScheduled
	booking.CreatedAt = now.UTC()
	booking.UpdatedAt = booking.CreatedAt
	r.bookings[booking.ID] = booking
	return booking, nil
}

// Cancel releases a scheduled booking's slot.
func (r *MemoryRepo) Cancel(ctx context.Context, bookingID string) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, ok := r.bookings[bookingID]
	if !ok {
		return Booking{}, ErrNotFound
	}
	if booking.Status != BookingScheduled {
		return Booking{}, ErrNotScheduled
	}

	booking.Status = BookingCancelled
	booking.UpdatedAt = time.Now().UTC()
	r.bookings[bookingID] = booking

	schedule, ok := r.schedules[booking.ScheduleID]
	if ok {
		if schedule.AvailableSlots < schedule.TotalSlots {
			schedule.AvailableSlots++
		}
		schedule.IsAvailable = true
		r.schedules[schedule.ID] = schedule
	}
	return booking, nil
}

// GetBooking returns a booking by ID.
func (r *MemoryRepo) GetBooking(ctx context.Context, id string) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return booking, nil
}
