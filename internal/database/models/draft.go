package models

import (
	"encoding/json"
	"time"
)

// ActionDraft is a work-in-progress action that has not been committed to a
// branch yet. It shares the Action attribute shape; an Advancement draft may
// carry several candidate target obligees.
type ActionDraft struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	InforequestID uint       `gorm:"index;not null" json:"inforequest_id"`
	BranchID      *uint      `gorm:"index" json:"branch_id,omitempty"`
	Type          ActionType `gorm:"size:30;not null" json:"type"`

	Subject       string     `gorm:"size:500" json:"subject"`
	Content       string     `gorm:"type:text" json:"content"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`

	Deadline  *int `json:"deadline,omitempty"`
	Extension *int `json:"extension,omitempty"`

	DisclosureLevel *DisclosureLevel `gorm:"size:10" json:"disclosure_level,omitempty"`
	RefusalReason   *RefusalReason   `gorm:"size:30" json:"refusal_reason,omitempty"`

	// ObligeeSet holds candidate target obligee ids for an Advancement
	// draft, JSON array stored as string.
	ObligeeSet string `gorm:"type:text" json:"obligee_set,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ObligeeIDs decodes the candidate obligee set.
func (d *ActionDraft) ObligeeIDs() []uint {
	var ids []uint
	if d.ObligeeSet != "" {
		json.Unmarshal([]byte(d.ObligeeSet), &ids)
	}
	return ids
}

// SetObligeeIDs encodes the candidate obligee set.
func (d *ActionDraft) SetObligeeIDs(ids []uint) {
	data, _ := json.Marshal(ids)
	d.ObligeeSet = string(data)
}
