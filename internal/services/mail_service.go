package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport"
	"gorm.io/gorm"
)

var (
	// ErrMessageNotFound indicates the message was not found
	ErrMessageNotFound = errors.New("message not found")
)

// MailService owns Message and Recipient records and the inbound/outbound
// queues the mail pump drains.
type MailService struct {
	db         *gorm.DB
	logService *LogService
	clk        clock.Clock
}

// NewMailService creates a new MailService instance.
func NewMailService(db *gorm.DB, logService *LogService, clk clock.Clock) *MailService {
	return &MailService{db: db, logService: logService, clk: clk}
}

// fallbackMessageID derives a stable id for mail without a Message-Id header
// so re-ingesting the same raw message stays idempotent.
func fallbackMessageID(raw *transport.RawMessage) string {
	seed := fmt.Sprintf("%d|%s|%s|%s", raw.Date.UnixNano(), raw.Subject, raw.FromMail, strings.Join(raw.To, ","))
	sum := sha256.Sum256([]byte(seed))
	return "gen:" + hex.EncodeToString(sum[:16])
}

// StoreInbound persists one decoded inbound message together with its
// recipients and attachments. The second result is false when a message with
// the same Message-Id already exists; nothing is written in that case.
func (s *MailService) StoreInbound(raw *transport.RawMessage, attachments *AttachmentService) (*models.Message, bool, error) {
	messageID := raw.MessageID
	if messageID == "" {
		messageID = fallbackMessageID(raw)
	}

	var existing models.Message
	if err := s.db.Where("message_id = ?", messageID).First(&existing).Error; err == nil {
		return &existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	msg := &models.Message{
		Type:        models.MessageInbound,
		MessageID:   messageID,
		FromName:    raw.FromName,
		FromMail:    raw.FromMail,
		ReceivedFor: strings.ToLower(raw.ReceivedFor),
		Subject:     raw.Subject,
		Text:        raw.Text,
		HTML:        raw.HTML,
	}
	msg.SetHeaderMap(raw.Headers)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		for kind, addrs := range map[models.RecipientKind][]string{
			models.RecipientTo:  raw.To,
			models.RecipientCc:  raw.Cc,
			models.RecipientBcc: raw.Bcc,
		} {
			for _, addr := range addrs {
				rcpt := models.Recipient{
					MessageID: msg.ID,
					Mail:      strings.ToLower(addr),
					Kind:      kind,
					Status:    models.RecipientStatusInbound,
				}
				if err := tx.Create(&rcpt).Error; err != nil {
					return err
				}
			}
		}
		for _, att := range raw.Attachments {
			ref, err := attachments.blobs.Store(att.Content)
			if err != nil {
				return err
			}
			row := models.Attachment{
				OwnerKind:   models.OwnerMessage,
				OwnerID:     RecordOwnerID(msg.ID),
				Name:        att.Name,
				ContentType: att.ContentType,
				Size:        int64(len(att.Content)),
				BlobRef:     ref,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// EnqueueOutbound creates an outbound message in the unprocessed queue. Each
// recipient starts Undefined until the transport reports its status.
func (s *MailService) EnqueueOutbound(fromName, fromMail, subject, text, html string, to []string) (*models.Message, error) {
	var msg *models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		msg, err = s.EnqueueOutboundTx(tx, fromName, fromMail, subject, text, html, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// EnqueueOutboundTx is EnqueueOutbound inside the caller's transaction, for
// operations that link the message to an action atomically.
func (s *MailService) EnqueueOutboundTx(tx *gorm.DB, fromName, fromMail, subject, text, html string, to []string) (*models.Message, error) {
	if len(to) == 0 {
		return nil, fmt.Errorf("%w: outbound message needs at least one recipient", ErrValidation)
	}
	for _, addr := range to {
		if strings.TrimSpace(addr) == "" {
			return nil, fmt.Errorf("%w: empty recipient address", ErrValidation)
		}
	}

	msg := &models.Message{
		Type:      models.MessageOutbound,
		MessageID: fmt.Sprintf("<%s@%s>", randomToken(16), mailDomain(fromMail)),
		FromName:  fromName,
		FromMail:  fromMail,
		Subject:   subject,
		Text:      text,
		HTML:      html,
	}
	if err := tx.Create(msg).Error; err != nil {
		return nil, err
	}
	for _, addr := range to {
		rcpt := models.Recipient{
			MessageID: msg.ID,
			Mail:      strings.ToLower(addr),
			Kind:      models.RecipientTo,
			Status:    models.RecipientStatusUndefined,
		}
		if err := tx.Create(&rcpt).Error; err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func mailDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}

// NextInbound returns up to limit unprocessed inbound messages in arrival
// order.
func (s *MailService) NextInbound(limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.
		Where("type = ? AND processed IS NULL", models.MessageInbound).
		Order("id ASC").
		Limit(limit).
		Preload("Recipients").
		Find(&msgs).Error
	return msgs, err
}

// NextOutbound returns up to limit unprocessed outbound messages in queue
// order.
func (s *MailService) NextOutbound(limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.
		Where("type = ? AND processed IS NULL", models.MessageOutbound).
		Order("id ASC").
		Limit(limit).
		Preload("Recipients").
		Find(&msgs).Error
	return msgs, err
}

// MarkProcessed stamps the message as processed at the given instant.
func (s *MailService) MarkProcessed(tx *gorm.DB, msg *models.Message, at time.Time) error {
	msg.Processed = &at
	return tx.Model(&models.Message{}).Where("id = ?", msg.ID).Update("processed", at).Error
}

// RecordSubmitResult stores the transport's per-recipient verdicts and the
// remote id for a submitted message.
func (s *MailService) RecordSubmitResult(tx *gorm.DB, msg *models.Message, result *transport.SubmitResult) error {
	if err := tx.Model(&models.Message{}).Where("id = ?", msg.ID).Update("remote_id", result.RemoteID).Error; err != nil {
		return err
	}
	for _, r := range result.Recipients {
		err := tx.Model(&models.Recipient{}).
			Where("message_id = ? AND mail = ?", msg.ID, strings.ToLower(r.Mail)).
			Updates(map[string]interface{}{
				"status":         r.Status,
				"status_details": r.Details,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateRecipientStatus transitions recipients of the message identified by
// remoteID. mail narrows the update to one recipient; empty updates all.
// Repeated webhook deliveries are harmless.
func (s *MailService) UpdateRecipientStatus(remoteID, mail string, status models.RecipientStatus, details string) error {
	var msg models.Message
	if err := s.db.Where("remote_id = ?", remoteID).First(&msg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: message with remote id %q", ErrNotFound, remoteID)
		}
		return err
	}
	q := s.db.Model(&models.Recipient{}).Where("message_id = ?", msg.ID)
	if mail != "" {
		q = q.Where("mail = ?", strings.ToLower(mail))
	}
	return q.Updates(map[string]interface{}{
		"status":         status,
		"status_details": details,
	}).Error
}

// GetMessage returns one message with its recipients.
func (s *MailService) GetMessage(id uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.Preload("Recipients").First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// ListUnassigned returns processed inbound messages that no inforequest
// claimed, for admin review.
func (s *MailService) ListUnassigned() ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.
		Where("type = ? AND processed IS NOT NULL", models.MessageInbound).
		Where("id NOT IN (?)", s.db.Model(&models.InforequestEmail{}).Select("message_id")).
		Order("id ASC").
		Preload("Recipients").
		Find(&msgs).Error
	return msgs, err
}
