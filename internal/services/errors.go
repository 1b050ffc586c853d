package services

import (
	"errors"
)

// Error kinds shared across services. Operation errors wrap one of these so
// handlers can map them to HTTP statuses with errors.Is.
var (
	// ErrValidation indicates caller input violates a field constraint.
	ErrValidation = errors.New("validation failed")
	// ErrInvariant indicates an internal inconsistency detected mid-operation.
	ErrInvariant = errors.New("invariant violation")
	// ErrTransientTransport indicates a temporary mail transport failure.
	ErrTransientTransport = errors.New("transient transport failure")
	// ErrPermanentTransport indicates a recipient was rejected or invalid.
	ErrPermanentTransport = errors.New("permanent transport failure")
	// ErrResourceExhausted indicates unique-email generation ran out of tokens.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrNotFound indicates a referenced entity no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrNotAllowed indicates the action type is not legal for the branch.
	ErrNotAllowed = errors.New("action not allowed")
	// ErrInvalidObligee indicates the obligee does not exist or is inactive.
	ErrInvalidObligee = errors.New("invalid obligee")
	// ErrAttachmentNotOwned indicates the attachment belongs to another owner.
	ErrAttachmentNotOwned = errors.New("attachment not owned by caller")
)
