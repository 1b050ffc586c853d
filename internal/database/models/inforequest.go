package models

import (
	"time"

	"gorm.io/gorm"
)

// Inforequest is the case one applicant opened against one initial obligee.
// The applicant's postal identity is frozen at creation time; later changes to
// the source user record must not alter it.
type Inforequest struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Applicant string `gorm:"size:255;not null;index" json:"applicant"` // opaque user ref

	// Frozen applicant postal identity.
	ApplicantName   string `gorm:"size:255" json:"applicant_name"`
	ApplicantStreet string `gorm:"size:255" json:"applicant_street"`
	ApplicantCity   string `gorm:"size:255" json:"applicant_city"`
	ApplicantZip    string `gorm:"size:20" json:"applicant_zip"`

	UniqueEmail    string    `gorm:"size:255;uniqueIndex;not null" json:"unique_email"`
	SubmissionDate time.Time `gorm:"not null" json:"submission_date"` // local date, immutable
	Closed         bool      `gorm:"default:false;index" json:"closed"`

	LastUndecidedEmailReminder *time.Time `json:"last_undecided_email_reminder,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Branches []Branch           `gorm:"foreignKey:InforequestID" json:"branches,omitempty"`
	Emails   []InforequestEmail `gorm:"foreignKey:InforequestID" json:"emails,omitempty"`
}

// MainBranch returns the branch with no advanced_by reference. Exactly one
// must exist per inforequest.
func (ir *Inforequest) MainBranch() *Branch {
	for i := range ir.Branches {
		if ir.Branches[i].AdvancedByID == nil {
			return &ir.Branches[i]
		}
	}
	return nil
}
