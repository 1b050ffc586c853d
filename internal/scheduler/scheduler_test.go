package scheduler

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSchedulerDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "scheduler_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&models.JobRun{}, &models.Log{}); err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}
	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}
	return db, cleanup
}

func newTestScheduler(t *testing.T, db *gorm.DB, now time.Time) (*Scheduler, *clock.Fixed) {
	t.Helper()
	clk := clock.NewFixed(now)
	return New(db, services.NewLogService(db), zap.NewNop(), clk, time.UTC, metrics.NewCollector()), clk
}

func TestTickRunsPassedSlotOnce(t *testing.T) {
	db, cleanup := setupSchedulerDB(t)
	defer cleanup()

	now := time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, db, now)

	runs := 0
	s.Register("counting", []string{"09:00"}, func(time.Time) error {
		runs++
		return nil
	})

	s.Tick()
	s.Tick()
	s.Tick()

	if runs != 1 {
		t.Errorf("a succeeded slot reran: %d runs, want 1", runs)
	}

	var recorded []models.JobRun
	db.Find(&recorded)
	if len(recorded) != 1 {
		t.Fatalf("expected 1 JobRun row, got %d", len(recorded))
	}
	if !recorded[0].Success || recorded[0].Job != "counting" || recorded[0].Slot != "2026-02-02 09:00" {
		t.Errorf("unexpected JobRun row: %+v", recorded[0])
	}
}

func TestTickSkipsFutureSlot(t *testing.T) {
	db, cleanup := setupSchedulerDB(t)
	defer cleanup()

	now := time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)
	s, clk := newTestScheduler(t, db, now)

	runs := 0
	s.Register("later", []string{"14:00"}, func(time.Time) error {
		runs++
		return nil
	})

	s.Tick()
	if runs != 0 {
		t.Errorf("future slot already ran: %d", runs)
	}

	clk.Set(time.Date(2026, time.February, 2, 14, 1, 0, 0, time.UTC))
	s.Tick()
	if runs != 1 {
		t.Errorf("slot did not run after its time passed: %d", runs)
	}
}

func TestTickCatchesUpMissedSlots(t *testing.T) {
	db, cleanup := setupSchedulerDB(t)
	defer cleanup()

	// Process was down all morning; one tick catches up every passed slot.
	now := time.Date(2026, time.February, 2, 12, 30, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, db, now)

	var slots []time.Time
	s.Register("multi", []string{"09:00", "10:00", "11:00", "13:00"}, func(at time.Time) error {
		slots = append(slots, at)
		return nil
	})

	s.Tick()
	if len(slots) != 3 {
		t.Errorf("expected 3 catch-up runs, got %d", len(slots))
	}
}

func TestFailedSlotRetriesUntilSuccess(t *testing.T) {
	db, cleanup := setupSchedulerDB(t)
	defer cleanup()

	now := time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, db, now)

	attempts := 0
	s.Register("flaky", []string{"09:00"}, func(time.Time) error {
		attempts++
		if attempts == 1 {
			return errors.New("transient failure")
		}
		return nil
	})

	s.Tick()
	s.Tick()
	s.Tick()

	if attempts != 2 {
		t.Errorf("expected retry until first success then stop, got %d attempts", attempts)
	}

	var recorded []models.JobRun
	db.Order("id ASC").Find(&recorded)
	if len(recorded) != 2 {
		t.Fatalf("expected 2 JobRun rows, got %d", len(recorded))
	}
	if recorded[0].Success || recorded[0].Error == "" {
		t.Errorf("first run should be recorded as failed with its error: %+v", recorded[0])
	}
	if !recorded[1].Success {
		t.Errorf("second run should be recorded as success: %+v", recorded[1])
	}
}

func TestJobsRunInRegistrationOrder(t *testing.T) {
	db, cleanup := setupSchedulerDB(t)
	defer cleanup()

	now := time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, db, now)

	var order []string
	s.Register("first", []string{"09:00"}, func(time.Time) error {
		order = append(order, "first")
		return nil
	})
	s.Register("second", []string{"09:00"}, func(time.Time) error {
		order = append(order, "second")
		return nil
	})

	s.Tick()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected run order: %v", order)
	}
}

func TestNewDayReopensSlots(t *testing.T) {
	db, cleanup := setupSchedulerDB(t)
	defer cleanup()

	now := time.Date(2026, time.February, 2, 10, 0, 0, 0, time.UTC)
	s, clk := newTestScheduler(t, db, now)

	runs := 0
	s.Register("daily", []string{"09:00"}, func(time.Time) error {
		runs++
		return nil
	})

	s.Tick()
	clk.Set(time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC))
	s.Tick()

	if runs != 2 {
		t.Errorf("expected one run per day, got %d", runs)
	}
}
