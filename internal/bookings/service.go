package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"submission-backend/internal/shared/metrics"
	"submission-backend/internal/shared/telemetry"
)

// Service contains business logic for slot booking.
type Service struct {
	Repo Repo

	// now is swappable in tests.
	now func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// ListSchedules returns schedules matching the filter.
func (s *Service) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error) {
	return s.Repo.ListSchedules(ctx, filter)
}

// Book reserves one slot on a schedule for a parent record.
func (s *Service) Book(ctx context.Context, scheduleID, parentRecordID string) (Booking, error) {
	if scheduleID == "" || parentRecordID == "" {
		return Booking{}, errors.New("scheduleID and parentRecordID are required")
	}

	booking := Booking{
		ID:             uuid.NewString(),
		ScheduleID:     scheduleID,
		ParentRecordID: parentRecordID,
	}
	booked, err := s.Repo.Book(ctx, booking, s.now())
	if err != nil {
		if errors.Is(err, ErrNoSlots) || errors.Is(err, ErrDuplicateBooking) {
			metrics.IncBookingConflict()
		}
		return Booking{}, err
	}

	metrics.IncBookingConfirmed()
	telemetry.Info("booking.confirmed", map[string]any{
		"booking_id":  booked.ID,
		"schedule_id": scheduleID,
		"parent_id":   parentRecordID,
	})
	return booked, nil
}

// Cancel releases a scheduled booking.
func (s *Service) Cancel(ctx context.Context, bookingID string) (Booking, error) {
	cancelled, err := s.Repo.Cancel(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	telemetry.Info("booking.cancelled", map[string]any{
		"booking_id":  cancelled.ID,
		"schedule_id": cancelled.ScheduleID,
	})
	return cancelled, nil
}

// Get returns a booking by ID.
func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	return s.Repo.GetBooking(ctx, id)
}
