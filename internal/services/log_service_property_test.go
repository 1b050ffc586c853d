package services

import (
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupLogTestDB(t *testing.T) (*gorm.DB, func()) {
	tmpFile, err := os.CreateTemp("", "log_test_*.db")
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

	err = db.AutoMigrate(&models.Log{})
	if err != nil {
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

// TestProperty_LogCompleteness tests that every recorded operation leaves a
// complete row: level, module, action, inforequest id and a timestamp.
func TestProperty_LogCompleteness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	modules := []models.LogModule{
		models.LogModuleInforequest,
		models.LogModuleMail,
		models.LogModuleRouter,
		models.LogModuleScheduler,
		models.LogModuleTransport,
	}

	properties.Property("info_log_creates_complete_entry", prop.ForAll(
		func(inforequestID uint, moduleIdx int) bool {
			db, cleanup := setupLogTestDB(t)
			defer cleanup()

			service := NewLogService(db)
			module := modules[moduleIdx%len(modules)]
			beforeTime := time.Now().Add(-time.Second)

			err := service.LogInfo(inforequestID, module, "test_action", "test message", nil)
			if err != nil {
				return false
			}

			afterTime := time.Now().Add(time.Second)

			var log models.Log
			if err := db.Where("module = ? AND action = ?", string(module), "test_action").First(&log).Error; err != nil {
				return false
			}

			return log.InforequestID == inforequestID &&
				log.Level == "INFO" &&
				log.Message == "test message" &&
				log.CreatedAt.After(beforeTime) &&
				log.CreatedAt.Before(afterTime)
		},
		gen.UIntRange(1, 1000),
		gen.IntRange(0, 100),
	))

	properties.Property("details_are_serialized_as_json", prop.ForAll(
		func(inforequestID uint, count int) bool {
			db, cleanup := setupLogTestDB(t)
			defer cleanup()

			service := NewLogService(db)
			details := map[string]interface{}{"count": count}

			err := service.LogInfo(inforequestID, models.LogModuleMail, "submit", "submitted", details)
			if err != nil {
				return false
			}

			var log models.Log
			if err := db.First(&log).Error; err != nil {
				return false
			}

			return log.Details != "" && log.Details != "{}"
		},
		gen.UIntRange(1, 1000),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestProperty_LogLevelFiltering tests that log level filtering works correctly
func TestProperty_LogLevelFiltering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("error_level_only_logs_error", prop.ForAll(
		func(inforequestID uint) bool {
			db, cleanup := setupLogTestDB(t)
			defer cleanup()

			service := NewLogServiceWithLevel(db, "ERROR")

			service.LogDebug(inforequestID, models.LogModuleAPI, "test", "debug message", nil)
			service.LogInfo(inforequestID, models.LogModuleAPI, "test", "info message", nil)
			service.LogWarn(inforequestID, models.LogModuleAPI, "test", "warn message", nil)
			service.LogError(inforequestID, models.LogModuleAPI, "test", "error message", nil)

			var count int64
			db.Model(&models.Log{}).Count(&count)

			return count == 1
		},
		gen.UIntRange(1, 1000),
	))

	properties.Property("info_level_logs_info_warn_error", prop.ForAll(
		func(inforequestID uint) bool {
			db, cleanup := setupLogTestDB(t)
			defer cleanup()

			service := NewLogServiceWithLevel(db, "INFO")

			service.LogDebug(inforequestID, models.LogModuleAPI, "test", "debug message", nil)
			service.LogInfo(inforequestID, models.LogModuleAPI, "test", "info message", nil)
			service.LogWarn(inforequestID, models.LogModuleAPI, "test", "warn message", nil)
			service.LogError(inforequestID, models.LogModuleAPI, "test", "error message", nil)

			var count int64
			db.Model(&models.Log{}).Count(&count)

			return count == 3
		},
		gen.UIntRange(1, 1000),
	))

	properties.TestingRun(t)
}

// TestListRecent checks newest-first ordering and the limit clamp.
func TestListRecent(t *testing.T) {
	db, cleanup := setupLogTestDB(t)
	defer cleanup()

	service := NewLogService(db)
	for i := 0; i < 5; i++ {
		if err := service.LogInfo(uint(i+1), models.LogModuleAPI, "test", "msg", nil); err != nil {
			t.Fatalf("LogInfo failed: %v", err)
		}
	}

	logs, err := service.ListRecent(3)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(logs))
	}
	if logs[0].ID < logs[1].ID || logs[1].ID < logs[2].ID {
		t.Errorf("expected newest first, got ids %d, %d, %d", logs[0].ID, logs[1].ID, logs[2].ID)
	}
}
