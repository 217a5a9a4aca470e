package bookings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedSchedule(t *testing.T, repo *MemoryRepo, totalSlots int) Schedule {
	t.Helper()
	schedule := Schedule{
		ID:             uuid.NewString(),
		Date:           time.Now().UTC().Truncate(24 * time.Hour).Add(48 * time.Hour),
		StartOffset:    9 * 60,
		EndOffset:      10 * 60,
		Venue:          "hall-a",
		TotalSlots:     totalSlots,
		AvailableSlots: totalSlots,
	}
	if err := repo.CreateSchedule(context.Background(), schedule); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return schedule
}

// scheduledCount supports the accounting invariant checks:
// availableSlots + scheduled bookings == totalSlots.
func scheduledCount(repo *MemoryRepo, scheduleID string) int {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	n := 0
	for _, b := range repo.bookings {
		if b.ScheduleID == scheduleID && b.Status == BookingScheduled {
			n++
		}
	}
	return n
}

func assertAccounting(t *testing.T, repo *MemoryRepo, scheduleID string) {
	t.Helper()
	schedule, err := repo.GetSchedule(context.Background(), scheduleID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got := schedule.AvailableSlots + scheduledCount(repo, scheduleID); got != schedule.TotalSlots {
		t.Fatalf("accounting broken: available %d + scheduled %d != total %d",
			schedule.AvailableSlots, scheduledCount(repo, scheduleID), schedule.TotalSlots)
	}
	if schedule.AvailableSlots < 0 || schedule.AvailableSlots > schedule.TotalSlots {
		t.Fatalf("available slots out of range: %d", schedule.AvailableSlots)
	}
	if (schedule.AvailableSlots == 0) == schedule.IsAvailable {
		t.Fatalf("isAvailable = %v with %d slots", schedule.IsAvailable, schedule.AvailableSlots)
	}
}

func TestBookAndCancelAccounting(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	schedule := seedSchedule(t, repo, 3)

	b1, err := svc.Book(context.Background(), schedule.ID, "rec-1")
	if err != nil {
		t.Fatalf("book 1: %v", err)
	}
	assertAccounting(t, repo, schedule.ID)

	if _, err := svc.Book(context.Background(), schedule.ID, "rec-2"); err != nil {
		t.Fatalf("book 2: %v", err)
	}
	assertAccounting(t, repo, schedule.ID)

	if _, err := svc.Cancel(context.Background(), b1.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertAccounting(t, repo, schedule.ID)

	// A cancelled booking cannot be cancelled again.
	if _, err := svc.Cancel(context.Background(), b1.ID); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("second cancel err = %v, want ErrNotScheduled", err)
	}

	// Re-booking after cancel creates a new booking.
	b3, err := svc.Book(context.Background(), schedule.ID, "rec-1")
	if err != nil {
		t.Fatalf("re-book: %v", err)
	}
	if b3.ID == b1.ID {
		t.Error("re-book reused the cancelled booking id")
	}
	assertAccounting(t, repo, schedule.ID)
}

func TestBookRejectsDuplicateParentRecord(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	schedule := seedSchedule(t, repo, 5)

	if _, err := svc.Book(context.Background(), schedule.ID, "rec-1"); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Book(context.Background(), schedule.ID, "rec-1"); !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("err = %v, want ErrDuplicateBooking", err)
	}
	assertAccounting(t, repo, schedule.ID)
}

func TestBookRejectsStartedSession(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	schedule := Schedule{
		ID:             uuid.NewString(),
		Date:           time.Now().UTC().Add(-48 * time.Hour),
		StartOffset:    9 * 60,
		TotalSlots:     1,
		AvailableSlots: 1,
	}
	if err := repo.CreateSchedule(context.Background(), schedule); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}

	if _, err := svc.Book(context.Background(), schedule.ID, "rec-1"); !errors.Is(err, ErrSessionStarted) {
		t.Fatalf("err = %v, want ErrSessionStarted", err)
	}
}

func TestConcurrentBookingOfLastSlot(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	schedule := seedSchedule(t, repo, 1)

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), schedule.ID, uuid.NewString())
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrNoSlots):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("%d bookings succeeded for 1 slot", won)
	}
	if lost != racers-1 {
		t.Fatalf("losers = %d, want %d", lost, racers-1)
	}

	final, err := repo.GetSchedule(context.Background(), schedule.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if final.AvailableSlots != 0 {
		t.Fatalf("available slots = %d, want 0", final.AvailableSlots)
	}
	if final.IsAvailable {
		t.Error("schedule still marked available with 0 slots")
	}
}

func TestListSchedulesFilters(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	full := seedSchedule(t, repo, 1)
	seedSchedule(t, repo, 2)

	if _, err := svc.Book(context.Background(), full.ID, "rec-1"); err != nil {
		t.Fatalf("book: %v", err)
	}

	available, err := svc.ListSchedules(context.Background(), ScheduleFilter{OnlyAvailable: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(available) != 1 {
		t.Fatalf("available schedules = %d, want 1", len(available))
	}
	if available[0].ID == full.ID {
		t.Error("fully booked schedule listed as available")
	}
}
