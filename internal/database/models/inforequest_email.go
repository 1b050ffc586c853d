package models

import (
	"time"
)

// InforequestEmailStatus classifies an inbound message assigned to an
// inforequest.
type InforequestEmailStatus string

const (
	EmailStatusApplicantAction InforequestEmailStatus = "applicant_action"
	EmailStatusObligeeAction   InforequestEmailStatus = "obligee_action"
	EmailStatusUndecided       InforequestEmailStatus = "undecided"
	EmailStatusUnrelated       InforequestEmailStatus = "unrelated"
	EmailStatusUnknown         InforequestEmailStatus = "unknown"
)

// InforequestEmail links a Message to an Inforequest together with its
// classification status. A message links to at most one inforequest.
type InforequestEmail struct {
	ID            uint                   `gorm:"primaryKey" json:"id"`
	InforequestID uint                   `gorm:"index;not null" json:"inforequest_id"`
	MessageID     uint                   `gorm:"uniqueIndex;not null" json:"message_id"`
	Status        InforequestEmailStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt     time.Time              `json:"created_at"`

	// Relations. Message carries its own string MessageID column (the RFC
	// header), so the belongs-to must pin references to the primary key.
	Message *Message `gorm:"references:ID" json:"message,omitempty"`
}
