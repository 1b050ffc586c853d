package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"gorm.io/gorm"
)

// LogService handles logging operations
type LogService struct {
	db       *gorm.DB
	logLevel models.LogLevel
}

// NewLogService creates a new LogService instance
func NewLogService(db *gorm.DB) *LogService {
	return &LogService{
		db:       db,
		logLevel: models.LogLevelInfo, // Default log level
	}
}

// NewLogServiceWithLevel creates a new LogService instance with specified log level
func NewLogServiceWithLevel(db *gorm.DB, level string) *LogService {
	return &LogService{
		db:       db,
		logLevel: parseLogLevel(level),
	}
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) models.LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return models.LogLevelDebug
	case "INFO":
		return models.LogLevelInfo
	case "WARN", "WARNING":
		return models.LogLevelWarn
	case "ERROR":
		return models.LogLevelError
	default:
		return models.LogLevelInfo
	}
}

// SetLogLevel sets the minimum log level
func (s *LogService) SetLogLevel(level string) {
	s.logLevel = parseLogLevel(level)
}

// shouldLog checks if a log entry should be recorded based on log level
func (s *LogService) shouldLog(level models.LogLevel) bool {
	levelPriority := map[models.LogLevel]int{
		models.LogLevelDebug: 0,
		models.LogLevelInfo:  1,
		models.LogLevelWarn:  2,
		models.LogLevelError: 3,
	}

	return levelPriority[level] >= levelPriority[s.logLevel]
}

// LogEntry represents a log entry to be created
type LogEntry struct {
	InforequestID uint
	Level         models.LogLevel
	Module        models.LogModule
	Action        string
	Message       string
	Details       interface{} // Will be serialized to JSON
}

// Log creates a new log entry
func (s *LogService) Log(entry LogEntry) error {
	// Check if this log level should be recorded
	if !s.shouldLog(entry.Level) {
		return nil
	}

	var detailsJSON string
	if entry.Details != nil {
		bytes, err := json.Marshal(entry.Details)
		if err != nil {
			detailsJSON = "{}"
		} else {
			detailsJSON = string(bytes)
		}
	}

	log := &models.Log{
		InforequestID: entry.InforequestID,
		Level:         string(entry.Level),
		Module:        string(entry.Module),
		Action:        entry.Action,
		Message:       entry.Message,
		Details:       detailsJSON,
	}

	return s.db.Create(log).Error
}

// LogInfo creates an INFO level log entry
func (s *LogService) LogInfo(inforequestID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{
		InforequestID: inforequestID,
		Level:         models.LogLevelInfo,
		Module:        module,
		Action:        action,
		Message:       message,
		Details:       details,
	})
}

// LogWarn creates a WARN level log entry
func (s *LogService) LogWarn(inforequestID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{
		InforequestID: inforequestID,
		Level:         models.LogLevelWarn,
		Module:        module,
		Action:        action,
		Message:       message,
		Details:       details,
	})
}

// LogError creates an ERROR level log entry
func (s *LogService) LogError(inforequestID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{
		InforequestID: inforequestID,
		Level:         models.LogLevelError,
		Module:        module,
		Action:        action,
		Message:       message,
		Details:       details,
	})
}

// LogDebug creates a DEBUG level log entry
func (s *LogService) LogDebug(inforequestID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{
		InforequestID: inforequestID,
		Level:         models.LogLevelDebug,
		Module:        module,
		Action:        action,
		Message:       message,
		Details:       details,
	})
}

// ListRecent returns the most recent log rows, newest first.
func (s *LogService) ListRecent(limit int) ([]models.Log, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var logs []models.Log
	err := s.db.Order("id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// ListForInforequest returns log rows attached to one inforequest.
func (s *LogService) ListForInforequest(inforequestID uint, since time.Time) ([]models.Log, error) {
	var logs []models.Log
	err := s.db.
		Where("inforequest_id = ? AND created_at >= ?", inforequestID, since).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
