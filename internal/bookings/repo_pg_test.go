package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func futureScheduleRow(mock sqlmock.Sqlmock, scheduleID string) {
	mock.ExpectQuery("SELECT date, start_offset FROM schedules").
		WithArgs(scheduleID).
		WillReturnRows(sqlmock.NewRows([]string{"date", "start_offset"}).
			AddRow(time.Now().UTC().Add(48*time.Hour), 9*60))
}

func TestPGRepoBookDecrementsConditionally(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	booking := Booking{ID: "bk-1", ScheduleID: "sch-1", ParentRecordID: "rec-1"}

	mock.ExpectBegin()
	futureScheduleRow(mock, "sch-1")
	mock.ExpectExec("UPDATE schedules").
		WithArgs("sch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs("bk-1", "sch-1", "rec-1", BookingScheduled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booked, err := repo.Book(context.Background(), booking, time.Now().UTC())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if booked.Status != BookingScheduled {
		t.Errorf("status = %s", booked.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoBookNoSlotsRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	futureScheduleRow(mock, "sch-1")
	// The conditional write touches zero rows when the last slot is gone.
	mock.ExpectExec("UPDATE schedules").
		WithArgs("sch-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = repo.Book(context.Background(), Booking{ID: "bk-1", ScheduleID: "sch-1", ParentRecordID: "rec-1"}, time.Now().UTC())
	if !errors.Is(err, ErrNoSlots) {
		t.Fatalf("err = %v, want ErrNoSlots", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoBookRejectsStartedSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT date, start_offset FROM schedules").
		WithArgs("sch-1").
		WillReturnRows(sqlmock.NewRows([]string{"date", "start_offset"}).
			AddRow(time.Now().UTC().Add(-48*time.Hour), 9*60))
	mock.ExpectRollback()

	_, err = repo.Book(context.Background(), Booking{ID: "bk-1", ScheduleID: "sch-1", ParentRecordID: "rec-1"}, time.Now().UTC())
	if !errors.Is(err, ErrSessionStarted) {
		t.Fatalf("err = %v, want ErrSessionStarted", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCancelReleasesSlot(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE bookings").
		WithArgs("bk-1", BookingCancelled, BookingScheduled).
		WillReturnRows(sqlmock.NewRows([]string{"id", "schedule_id", "parent_record_id", "status", "created_at", "updated_at"}).
			AddRow("bk-1", "sch-1", "rec-1", BookingCancelled, now, now))
	mock.ExpectExec("UPDATE schedules").
		WithArgs("sch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cancelled, err := repo.Cancel(context.Background(), "bk-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != BookingCancelled {
		t.Errorf("status = %s", cancelled.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
