package bookings

import "time"

const (
	BookingScheduled = "scheduled"
	BookingCancelled = "cancelled"
)

// Schedule is a bookable time slot with fixed capacity.
type Schedule struct {
	ID             string    `json:"id"`
	Date           time.Time `json:"date"`
	StartOffset    int       `json:"startOffset"`
	EndOffset      int       `json:"endOffset"`
	Venue          string    `json:"venue"`
	TotalSlots     int       `json:"totalSlots"`
	AvailableSlots int       `json:"availableSlots"`
	IsAvailable    bool      `json:"isAvailable"`
}

// SessionStart is the wall-clock start of the slot. Offsets are minutes
// from midnight of the schedule date.
func (s Schedule) SessionStart() time.Time {
	return s.Date.Add(time.Duration(s.StartOffset) * time.Minute)
}

// Booking is a reservation against a Schedule. Cancelled bookings stay
// on record; re-booking creates a new Booking.
type Booking struct {
	ID             string    `json:"id"`
	ScheduleID     string    `json:"scheduleId"`
	ParentRecordID string    `json:"parentRecordId"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ScheduleFilter narrows schedule listings.
type ScheduleFilter struct {
	From          time.Time
	To            time.Time
	Venue         string
	OnlyAvailable bool
}
