package models

import (
	"encoding/json"
	"time"
)

// Branch is one conversation track of an inforequest against one obligee.
// Sub-branches reference the Advancement action that spawned them through
// AdvancedByID; the reference is stored as a plain id to keep the
// branch→action→branch cycle out of the object graph.
type Branch struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	InforequestID uint `gorm:"index;not null" json:"inforequest_id"`
	ObligeeID     uint `gorm:"index;not null" json:"obligee_id"`

	// Frozen obligee snapshot taken when the branch was created.
	HistoricalName   string `gorm:"size:255" json:"historical_name"`
	HistoricalStreet string `gorm:"size:255" json:"historical_street"`
	HistoricalCity   string `gorm:"size:255" json:"historical_city"`
	HistoricalZip    string `gorm:"size:20" json:"historical_zip"`
	HistoricalEmails string `gorm:"type:text" json:"historical_emails"` // JSON array stored as string

	// AdvancedByID points at the Advancement action this sub-branch grew
	// from; nil marks the main branch.
	AdvancedByID *uint `gorm:"index" json:"advanced_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Actions []Action `gorm:"foreignKey:BranchID" json:"actions,omitempty"`
}

// IsMain reports whether this is the inforequest's main branch.
func (b *Branch) IsMain() bool {
	return b.AdvancedByID == nil
}

// LastAction returns the chronologically last action, assuming Actions was
// loaded ordered by (effective_date, id).
func (b *Branch) LastAction() *Action {
	if len(b.Actions) == 0 {
		return nil
	}
	return &b.Actions[len(b.Actions)-1]
}

// HistoricalEmailList decodes the frozen obligee address list.
func (b *Branch) HistoricalEmailList() []string {
	var emails []string
	if b.HistoricalEmails != "" {
		json.Unmarshal([]byte(b.HistoricalEmails), &emails)
	}
	return emails
}

// FreezeObligee snapshots the obligee's postal identity onto the branch.
func (b *Branch) FreezeObligee(o *Obligee) {
	b.ObligeeID = o.ID
	b.HistoricalName = o.Name
	b.HistoricalStreet = o.Street
	b.HistoricalCity = o.City
	b.HistoricalZip = o.Zip
	b.HistoricalEmails = o.Emails
}
