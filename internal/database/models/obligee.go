package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Obligee is a public institution obliged to answer information requests.
type Obligee struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:255;not null;index" json:"name"`
	Street    string         `gorm:"size:255" json:"street"`
	City      string         `gorm:"size:255" json:"city"`
	Zip       string         `gorm:"size:20" json:"zip"`
	Emails    string         `gorm:"type:text" json:"emails"` // JSON array stored as string
	Active    bool           `gorm:"default:true" json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// EmailList decodes the obligee's notification addresses.
func (o *Obligee) EmailList() []string {
	var emails []string
	if o.Emails != "" {
		json.Unmarshal([]byte(o.Emails), &emails)
	}
	return emails
}

// SetEmailList encodes the obligee's notification addresses.
func (o *Obligee) SetEmailList(emails []string) {
	data, _ := json.Marshal(emails)
	o.Emails = string(data)
}
