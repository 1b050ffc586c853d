package models

import (
	"time"
)

// JobRun records one scheduler run of one job in one wall-clock slot. The
// scheduler skips a slot whose last recorded run succeeded, which makes jobs
// idempotent across restarts within the same day.
type JobRun struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Job     string `gorm:"size:50;not null;index:idx_job_slot" json:"job"`
	Slot    string `gorm:"size:20;not null;index:idx_job_slot" json:"slot"` // "2006-01-02 15:04"
	Success bool   `json:"success"`
	Error   string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
