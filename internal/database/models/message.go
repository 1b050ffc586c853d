package models

import (
	"encoding/json"
	"time"
)

// MessageType distinguishes mail direction.
type MessageType string

const (
	MessageInbound  MessageType = "inbound"
	MessageOutbound MessageType = "outbound"
)

// RecipientKind is the header a recipient appeared in.
type RecipientKind string

const (
	RecipientTo  RecipientKind = "to"
	RecipientCc  RecipientKind = "cc"
	RecipientBcc RecipientKind = "bcc"
)

// RecipientStatus tracks per-recipient delivery state for outbound mail.
type RecipientStatus string

const (
	RecipientStatusInbound   RecipientStatus = "inbound"
	RecipientStatusUndefined RecipientStatus = "undefined"
	RecipientStatusQueued    RecipientStatus = "queued"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusOpened    RecipientStatus = "opened"
	RecipientStatusRejected  RecipientStatus = "rejected"
	RecipientStatusInvalid   RecipientStatus = "invalid"
)

// Message is one mail-store record, inbound or outbound. Processed is nil
// while the message sits in its queue; the mail pump sets it when the message
// was handed over (outbound) or ingested for routing (inbound).
type Message struct {
	ID   uint        `gorm:"primaryKey" json:"id"`
	Type MessageType `gorm:"size:10;not null;index" json:"type"`

	// MessageID is the RFC Message-Id header; unique so ingesting the same
	// raw message twice creates at most one record.
	MessageID string `gorm:"size:255;uniqueIndex;not null" json:"message_id"`

	Processed *time.Time `gorm:"index" json:"processed,omitempty"`

	FromName    string `gorm:"size:255" json:"from_name"`
	FromMail    string `gorm:"size:255" json:"from_mail"`
	ReceivedFor string `gorm:"size:255;index" json:"received_for"`

	Subject string `gorm:"size:500" json:"subject"`
	Text    string `gorm:"type:text" json:"text"`
	HTML    string `gorm:"type:text" json:"html"`
	Headers string `gorm:"type:text" json:"headers"` // JSON map stored as string

	// RemoteID is the transport's identifier returned on submit; delivery
	// webhooks reference it.
	RemoteID string `gorm:"size:255;index" json:"remote_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Recipients []Recipient `gorm:"foreignKey:MessageID" json:"recipients,omitempty"`
}

// HeaderMap decodes the stored header JSON.
func (m *Message) HeaderMap() map[string][]string {
	headers := make(map[string][]string)
	if m.Headers != "" {
		json.Unmarshal([]byte(m.Headers), &headers)
	}
	return headers
}

// SetHeaderMap encodes headers into the stored JSON column.
func (m *Message) SetHeaderMap(headers map[string][]string) {
	data, _ := json.Marshal(headers)
	m.Headers = string(data)
}

// Recipient is one addressee of a message.
type Recipient struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	MessageID uint            `gorm:"index;not null" json:"message_id"`
	Name      string          `gorm:"size:255" json:"name"`
	Mail      string          `gorm:"size:255;not null" json:"mail"`
	Kind      RecipientKind   `gorm:"size:5;not null" json:"kind"`
	Status    RecipientStatus `gorm:"size:15;not null" json:"status"`
	// StatusDetails carries the transport's reason for Rejected/Invalid.
	StatusDetails string    `gorm:"size:500" json:"status_details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
