package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/machine"
	"gorm.io/gorm"
)

var (
	// ErrEmailNotAssignable indicates no single inforequest matched the message
	ErrEmailNotAssignable = errors.New("message not assignable to exactly one inforequest")
	// ErrEmailAlreadyDecided indicates the inforequest email left the undecided state
	ErrEmailAlreadyDecided = errors.New("inforequest email already decided")
)

// RouterService assigns inbound messages to inforequests and turns decided
// emails into actions.
type RouterService struct {
	db           *gorm.DB
	logService   *LogService
	mach         *machine.Machine
	attachments  *AttachmentService
	mail         *MailService
	inforequests *InforequestService

	senderName string
	senderMail string

	// selfService makes the applicant, not the site admin, the one who
	// reviews undecided mail.
	selfService bool
}

// NewRouterService creates a new RouterService instance.
func NewRouterService(
	db *gorm.DB,
	logService *LogService,
	mach *machine.Machine,
	attachments *AttachmentService,
	mail *MailService,
	inforequests *InforequestService,
	senderName, senderMail string,
	selfService bool,
) *RouterService {
	return &RouterService{
		db:           db,
		logService:   logService,
		mach:         mach,
		attachments:  attachments,
		mail:         mail,
		inforequests: inforequests,
		senderName:   senderName,
		senderMail:   senderMail,
		selfService:  selfService,
	}
}

// reviewerFor returns who should be told about mail awaiting a decision.
func (s *RouterService) reviewerFor(ir *models.Inforequest) string {
	if s.selfService {
		return ir.Applicant
	}
	return s.senderMail
}

// candidateInforequests matches the message's addresses against unique reply
// addresses of non-deleted inforequests. received_for wins over the header
// recipients when the transport knows it.
func (s *RouterService) candidateInforequests(msg *models.Message) ([]models.Inforequest, error) {
	var addresses []string
	if msg.ReceivedFor != "" {
		addresses = []string{strings.ToLower(msg.ReceivedFor)}
	} else {
		seen := make(map[string]bool)
		for _, r := range msg.Recipients {
			addr := strings.ToLower(r.Mail)
			if !seen[addr] {
				seen[addr] = true
				addresses = append(addresses, addr)
			}
		}
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	var irs []models.Inforequest
	if err := s.db.Where("LOWER(unique_email) IN ?", addresses).Find(&irs).Error; err != nil {
		return nil, err
	}
	return irs, nil
}

// AssignMessage links one processed inbound message to an inforequest when
// exactly one matches. Ambiguous or unmatched mail stays unassigned for admin
// review. The reviewer is notified unless the inforequest is closed.
func (s *RouterService) AssignMessage(msg *models.Message) (*models.InforequestEmail, error) {
	// Re-ingesting the same message must not create a second link.
	var existing models.InforequestEmail
	if err := s.db.Where("message_id = ?", msg.ID).First(&existing).Error; err == nil {
		return &existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	candidates, err := s.candidateInforequests(msg)
	if err != nil {
		return nil, err
	}
	if len(candidates) != 1 {
		s.logService.LogInfo(0, models.LogModuleRouter, "assign", "Message left unassigned", map[string]interface{}{
			"message_id": msg.ID,
			"candidates": len(candidates),
		})
		return nil, nil
	}
	ir := candidates[0]

	ie := &models.InforequestEmail{
		InforequestID: ir.ID,
		MessageID:     msg.ID,
		Status:        models.EmailStatusUndecided,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ie).Error; err != nil {
			return err
		}
		if !ir.Closed {
			subject := fmt.Sprintf("New message on inforequest #%d: %s", ir.ID, msg.Subject)
			body := fmt.Sprintf(
				"The address %s received a new message. Review it and decide what it is.",
				ir.UniqueEmail)
			if _, err := s.mail.EnqueueOutboundTx(tx, s.senderName, s.senderMail, subject, body, "", []string{s.reviewerFor(&ir)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logService.LogInfo(ir.ID, models.LogModuleRouter, "assign", "Message assigned to inforequest", map[string]interface{}{
		"message_id": msg.ID,
	})
	return ie, nil
}

// DecideEmail classifies an undecided email as an obligee action of the given
// type and creates that action on the chosen branch. All steps are one
// transaction; any failure reverts them all.
func (s *RouterService) DecideEmail(inforequestEmailID uint, p AddActionParams) (*models.Action, error) {
	if !p.Type.IsObligeeAction() {
		return nil, fmt.Errorf("%w: %s is not an obligee action", ErrValidation, p.Type)
	}

	var atts []models.Attachment
	if len(p.AttachmentIDs) > 0 {
		var err error
		atts, err = s.attachments.Owned(models.OwnerSession, p.Session, p.AttachmentIDs)
		if err != nil {
			return nil, err
		}
	}

	var action *models.Action
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ie models.InforequestEmail
		if err := tx.First(&ie, inforequestEmailID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: inforequest email %d", ErrNotFound, inforequestEmailID)
			}
			return err
		}
		if ie.Status != models.EmailStatusUndecided {
			return ErrEmailAlreadyDecided
		}

		var msg models.Message
		if err := tx.First(&msg, ie.MessageID).Error; err != nil {
			return err
		}
		if msg.Type != models.MessageInbound || msg.Processed == nil {
			return fmt.Errorf("%w: message %d is not a processed inbound message", ErrValidation, msg.ID)
		}
		var linked int64
		if err := tx.Model(&models.Action{}).Where("email_id = ?", msg.ID).Count(&linked).Error; err != nil {
			return err
		}
		if linked > 0 {
			return fmt.Errorf("%w: message %d already belongs to an action", ErrValidation, msg.ID)
		}

		ir, err := s.inforequests.fetchForUpdate(tx, ie.InforequestID)
		if err != nil {
			return err
		}
		branch := branchByID(ir, p.BranchID)
		if branch == nil {
			return ErrBranchNotFound
		}

		if p.Subject == "" {
			p.Subject = msg.Subject
		}
		if p.Content == "" {
			p.Content = msg.Text
		}

		emailID := msg.ID
		action, err = s.inforequests.AddObligeeAction(tx, ir, branch, p, &emailID, s.mach.LocalDate(*msg.Processed))
		if err != nil {
			return err
		}

		// The admin's own uploads move onto the action as copies; the
		// message keeps its attachments.
		for i := range atts {
			if _, err := s.attachments.CloneTo(tx, &atts[i], models.OwnerAction, RecordOwnerID(action.ID)); err != nil {
				return err
			}
		}

		return tx.Model(&models.InforequestEmail{}).
			Where("id = ?", ie.ID).
			Update("status", models.EmailStatusObligeeAction).Error
	})
	if err != nil {
		return nil, err
	}

	s.logService.LogInfo(p.InforequestID, models.LogModuleRouter, "decide", "Email decided as obligee action", map[string]interface{}{
		"inforequest_email_id": inforequestEmailID,
		"type":                 p.Type,
		"branch_id":            p.BranchID,
	})
	return action, nil
}

// MarkEmail flips an undecided email to ApplicantAction, Unrelated or
// Unknown.
func (s *RouterService) MarkEmail(inforequestEmailID uint, status models.InforequestEmailStatus) error {
	switch status {
	case models.EmailStatusApplicantAction, models.EmailStatusUnrelated, models.EmailStatusUnknown:
	default:
		return fmt.Errorf("%w: cannot mark an email %s", ErrValidation, status)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ie models.InforequestEmail
		if err := tx.First(&ie, inforequestEmailID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: inforequest email %d", ErrNotFound, inforequestEmailID)
			}
			return err
		}
		if ie.Status != models.EmailStatusUndecided {
			return ErrEmailAlreadyDecided
		}
		return tx.Model(&models.InforequestEmail{}).
			Where("id = ?", ie.ID).
			Update("status", status).Error
	})
}

// UnassignEmail detaches a message from its inforequest. Allowed only while
// no action references the message.
func (s *RouterService) UnassignEmail(inforequestEmailID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ie models.InforequestEmail
		if err := tx.First(&ie, inforequestEmailID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: inforequest email %d", ErrNotFound, inforequestEmailID)
			}
			return err
		}
		var linked int64
		if err := tx.Model(&models.Action{}).Where("email_id = ?", ie.MessageID).Count(&linked).Error; err != nil {
			return err
		}
		if linked > 0 {
			return fmt.Errorf("%w: message %d is attached to an action", ErrValidation, ie.MessageID)
		}
		return tx.Delete(&models.InforequestEmail{}, ie.ID).Error
	})
}

// ListUndecided returns the undecided emails of one inforequest, oldest
// first.
func (s *RouterService) ListUndecided(inforequestID uint) ([]models.InforequestEmail, error) {
	var ies []models.InforequestEmail
	err := s.db.
		Where("inforequest_id = ? AND status = ?", inforequestID, models.EmailStatusUndecided).
		Order("id ASC").
		Preload("Message").
		Find(&ies).Error
	return ies, err
}

// NewestUndecided returns the newest undecided email of an inforequest, or
// nil.
func (s *RouterService) NewestUndecided(inforequestID uint) (*models.InforequestEmail, error) {
	var ie models.InforequestEmail
	err := s.db.
		Where("inforequest_id = ? AND status = ?", inforequestID, models.EmailStatusUndecided).
		Order("id DESC").
		Preload("Message").
		First(&ie).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ie, nil
}
