package models

import (
	"time"
)

// ActionType identifies one of the fifteen events a branch can record.
type ActionType string

const (
	// Applicant actions (letters from the applicant to the obligee).
	ActionRequest               ActionType = "request"
	ActionClarificationResponse ActionType = "clarification_response"
	ActionAppeal                ActionType = "appeal"

	// Obligee actions (letters from the obligee to the applicant).
	ActionConfirmation         ActionType = "confirmation"
	ActionExtension            ActionType = "extension"
	ActionAdvancement          ActionType = "advancement"
	ActionClarificationRequest ActionType = "clarification_request"
	ActionDisclosure           ActionType = "disclosure"
	ActionRefusal              ActionType = "refusal"
	ActionAffirmation          ActionType = "affirmation"
	ActionReversion            ActionType = "reversion"
	ActionRemandment           ActionType = "remandment"

	// Implicit actions (system generated, never carry an email).
	ActionAdvancedRequest  ActionType = "advanced_request"
	ActionExpiration       ActionType = "expiration"
	ActionAppealExpiration ActionType = "appeal_expiration"
)

// ApplicantActionTypes lists the actions authored by the applicant.
var ApplicantActionTypes = []ActionType{
	ActionRequest, ActionClarificationResponse, ActionAppeal,
}

// ObligeeActionTypes lists the actions authored by the obligee.
var ObligeeActionTypes = []ActionType{
	ActionConfirmation, ActionExtension, ActionAdvancement,
	ActionClarificationRequest, ActionDisclosure, ActionRefusal,
	ActionAffirmation, ActionReversion, ActionRemandment,
}

// ImplicitActionTypes lists the system-generated actions.
var ImplicitActionTypes = []ActionType{
	ActionAdvancedRequest, ActionExpiration, ActionAppealExpiration,
}

// IsApplicantAction reports whether t is authored by the applicant.
func (t ActionType) IsApplicantAction() bool {
	switch t {
	case ActionRequest, ActionClarificationResponse, ActionAppeal:
		return true
	}
	return false
}

// IsObligeeAction reports whether t is authored by the obligee.
func (t ActionType) IsObligeeAction() bool {
	switch t {
	case ActionConfirmation, ActionExtension, ActionAdvancement,
		ActionClarificationRequest, ActionDisclosure, ActionRefusal,
		ActionAffirmation, ActionReversion, ActionRemandment:
		return true
	}
	return false
}

// IsImplicitAction reports whether t is generated by the system.
func (t ActionType) IsImplicitAction() bool {
	switch t {
	case ActionAdvancedRequest, ActionExpiration, ActionAppealExpiration:
		return true
	}
	return false
}

// Valid reports whether t is one of the fifteen known types.
func (t ActionType) Valid() bool {
	return t.IsApplicantAction() || t.IsObligeeAction() || t.IsImplicitAction()
}

// DisclosureLevel grades how much of the requested information was released.
type DisclosureLevel string

const (
	DisclosureNone    DisclosureLevel = "none"
	DisclosurePartial DisclosureLevel = "partial"
	DisclosureFull    DisclosureLevel = "full"
)

// RefusalReason records why the obligee refused or the appeal was affirmed.
type RefusalReason string

const (
	RefusalDoesNotHave    RefusalReason = "does_not_have"
	RefusalDoesNotProvide RefusalReason = "does_not_provide"
	RefusalDoesNotCreate  RefusalReason = "does_not_create"
	RefusalCopyright      RefusalReason = "copyright"
	RefusalBusinessSecret RefusalReason = "business_secret"
	RefusalPersonal       RefusalReason = "personal"
	RefusalConfidential   RefusalReason = "confidential"
	RefusalNoReason       RefusalReason = "no_reason"
	RefusalOther          RefusalReason = "other"
)

// DeadlineSide marks whose clock an action's deadline runs against. An action
// never carries both sides' timers.
type DeadlineSide string

const (
	DeadlineSideNone      DeadlineSide = ""
	DeadlineSideApplicant DeadlineSide = "applicant"
	DeadlineSideObligee   DeadlineSide = "obligee"
)

// Action is one event in a branch's conversation: a letter sent, a letter
// received, or an implicit system event.
type Action struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	BranchID uint       `gorm:"index;not null" json:"branch_id"`
	Type     ActionType `gorm:"size:30;not null;index" json:"type"`

	// EmailID links the one message this action was sent or received as.
	EmailID *uint `gorm:"uniqueIndex" json:"email_id,omitempty"`

	Subject       string    `gorm:"size:500" json:"subject"`
	Content       string    `gorm:"type:text" json:"content"`
	EffectiveDate time.Time `gorm:"not null;index" json:"effective_date"` // local date

	// Deadline and Extension are working-day counts; nil means the type
	// carries no deadline.
	Deadline  *int `json:"deadline,omitempty"`
	Extension *int `json:"extension,omitempty"`

	DisclosureLevel *DisclosureLevel `gorm:"size:10" json:"disclosure_level,omitempty"`
	RefusalReason   *RefusalReason   `gorm:"size:30" json:"refusal_reason,omitempty"`

	LastDeadlineReminder *time.Time `json:"last_deadline_reminder,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DeadlineSide returns whose timer this action's deadline runs against.
func (a *Action) DeadlineSide() DeadlineSide {
	if a.Deadline == nil {
		return DeadlineSideNone
	}
	switch a.Type {
	case ActionClarificationRequest, ActionDisclosure, ActionRefusal:
		return DeadlineSideApplicant
	default:
		return DeadlineSideObligee
	}
}

// TotalDeadline returns deadline plus any extension in working days.
func (a *Action) TotalDeadline() int {
	if a.Deadline == nil {
		return 0
	}
	total := *a.Deadline
	if a.Extension != nil {
		total += *a.Extension
	}
	return total
}
