// Package transport defines the seam between the engine and raw mail
// carriers. Adapters own charset decoding and MIME walking; the engine only
// ever sees decoded RawMessage values.
package transport

import (
	"context"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
)

// RawAttachment is one decoded attachment of an inbound message.
type RawAttachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// RawMessage is one decoded inbound mail.
type RawMessage struct {
	// ID identifies the message inside its transport session; it is passed
	// back to Ack.
	ID string

	MessageID   string // RFC Message-Id header, may be empty
	Subject     string
	FromName    string
	FromMail    string
	To          []string
	Cc          []string
	Bcc         []string
	ReceivedFor string // envelope recipient, when the transport knows it
	Date        time.Time
	Headers     map[string][]string
	Text        string
	HTML        string
	Attachments []RawAttachment
}

// InboundSession iterates the messages waiting at the transport.
type InboundSession interface {
	// Next returns the next waiting message, or nil when the session is
	// drained.
	Next(ctx context.Context) (*RawMessage, error)
	// Ack confirms a message so the transport will not deliver it again.
	Ack(ctx context.Context, id string) error
	Close() error
}

// Inbound opens sessions against a receiving transport.
type Inbound interface {
	Open(ctx context.Context) (InboundSession, error)
}

// RecipientResult is the per-recipient outcome of one submission.
type RecipientResult struct {
	Mail    string
	Status  models.RecipientStatus // Sent, Queued, Rejected, Invalid, Undefined
	Details string
}

// SubmitResult is what an outbound transport reports for one message.
type SubmitResult struct {
	RemoteID   string
	Recipients []RecipientResult
}

// Outbound hands messages to a sending transport. A failed submit must
// return an error; the mail pump retries the message on the next tick as
// long as it stayed unprocessed.
type Outbound interface {
	Submit(ctx context.Context, msg *models.Message, recipients []models.Recipient) (*SubmitResult, error)
}
