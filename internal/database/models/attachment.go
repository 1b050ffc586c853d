package models

import (
	"time"
)

// AttachmentOwnerKind tags the entity an attachment belongs to. The registry
// validates kinds against this closed enumeration.
type AttachmentOwnerKind string

const (
	OwnerSession AttachmentOwnerKind = "session"
	OwnerDraft   AttachmentOwnerKind = "draft"
	OwnerAction  AttachmentOwnerKind = "action"
	OwnerMessage AttachmentOwnerKind = "message"
)

// Valid reports whether k is a known owner kind.
func (k AttachmentOwnerKind) Valid() bool {
	switch k {
	case OwnerSession, OwnerDraft, OwnerAction, OwnerMessage:
		return true
	}
	return false
}

// Attachment is a typed file reference owned by exactly one core entity.
// Owner ids are strings because session owners are opaque session tokens
// while the other kinds use numeric record ids. Content is immutable once
// written; moving an attachment between owners always clones it.
type Attachment struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	OwnerKind   AttachmentOwnerKind `gorm:"size:10;not null;index:idx_attachment_owner" json:"owner_kind"`
	OwnerID     string              `gorm:"size:64;not null;index:idx_attachment_owner" json:"owner_id"`
	Name        string              `gorm:"size:255;not null" json:"name"`
	ContentType string              `gorm:"size:100" json:"content_type"`
	Size        int64               `json:"size"`
	BlobRef     string              `gorm:"size:64;not null" json:"blob_ref"`
	CreatedAt   time.Time           `json:"created_at"`
}
