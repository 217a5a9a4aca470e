package bookings

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoSlots          = errors.New("no slots available")
	ErrDuplicateBooking = errors.New("a scheduled booking already exists for this record")
	ErrSessionStarted   = errors.New("schedule session has already started")
	ErrNotScheduled     = errors.New("booking is not in scheduled state")
)
