package services

import (
	cryptoRand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/machine"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInforequestNotFound indicates the inforequest was not found
	ErrInforequestNotFound = errors.New("inforequest not found")
	// ErrBranchNotFound indicates the branch was not found
	ErrBranchNotFound = errors.New("branch not found")
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz"

// randomToken draws n characters from the lowercase token alphabet.
func randomToken(n int) string {
	var b strings.Builder
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := cryptoRand.Int(cryptoRand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			panic(err)
		}
		b.WriteByte(tokenAlphabet[idx.Int64()])
	}
	return b.String()
}

// ApplicantIdentity is the postal identity frozen onto a new inforequest.
type ApplicantIdentity struct {
	Ref    string // opaque user reference
	Name   string
	Street string
	City   string
	Zip    string
}

// SubmitButton selects how an applicant action leaves the system.
type SubmitButton string

const (
	ButtonEmail SubmitButton = "email"
	ButtonPrint SubmitButton = "print"
	ButtonDraft SubmitButton = "draft"
)

// InforequestService owns the inforequest store and the orchestration
// operations the UI calls. Every public operation runs in one transaction and
// re-fetches the inforequest with a row lock before consulting the state
// machine.
type InforequestService struct {
	db          *gorm.DB
	logService  *LogService
	mach        *machine.Machine
	attachments *AttachmentService
	mail        *MailService

	uniqueEmailTemplate string
	maxBranchDepth      int
	senderName          string
	senderMail          string
}

// NewInforequestService creates a new InforequestService instance.
func NewInforequestService(
	db *gorm.DB,
	logService *LogService,
	mach *machine.Machine,
	attachments *AttachmentService,
	mail *MailService,
	uniqueEmailTemplate string,
	maxBranchDepth int,
	senderName, senderMail string,
) *InforequestService {
	if maxBranchDepth <= 0 {
		maxBranchDepth = 10
	}
	return &InforequestService{
		db:                  db,
		logService:          logService,
		mach:                mach,
		attachments:         attachments,
		mail:                mail,
		uniqueEmailTemplate: uniqueEmailTemplate,
		maxBranchDepth:      maxBranchDepth,
		senderName:          senderName,
		senderMail:          senderMail,
	}
}

// Machine exposes the service's state machine.
func (s *InforequestService) Machine() *machine.Machine {
	return s.mach
}

// generateUniqueEmail draws a fresh token, lengthening it on collisions.
// Starts at four characters; gives up past ten with ErrResourceExhausted.
func (s *InforequestService) generateUniqueEmail(tx *gorm.DB) (string, error) {
	for length := 4; length <= 10; length++ {
		email := strings.Replace(s.uniqueEmailTemplate, "{token}", randomToken(length), 1)
		var count int64
		if err := tx.Model(&models.Inforequest{}).Unscoped().
			Where("unique_email = ?", email).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return email, nil
		}
	}
	return "", fmt.Errorf("%w: unique email tokens up to length 10 are taken", ErrResourceExhausted)
}

// fetchForUpdate loads an inforequest with a row lock and its branches with
// chronologically ordered actions, so the state machine works on a consistent
// snapshot.
func (s *InforequestService) fetchForUpdate(tx *gorm.DB, id uint) (*models.Inforequest, error) {
	var ir models.Inforequest
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Branches").
		Preload("Branches.Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("effective_date ASC, id ASC")
		}).
		First(&ir, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInforequestNotFound
		}
		return nil, err
	}
	return &ir, nil
}

// branchByID picks one loaded branch of the snapshot.
func branchByID(ir *models.Inforequest, branchID uint) *models.Branch {
	for i := range ir.Branches {
		if ir.Branches[i].ID == branchID {
			return &ir.Branches[i]
		}
	}
	return nil
}

// branchDepth counts advancement hops from the branch up to the main branch.
func (s *InforequestService) branchDepth(tx *gorm.DB, b *models.Branch) (int, error) {
	depth := 0
	current := b
	for current.AdvancedByID != nil {
		depth++
		if depth > s.maxBranchDepth {
			return depth, nil
		}
		var parentAction models.Action
		if err := tx.First(&parentAction, *current.AdvancedByID).Error; err != nil {
			return 0, err
		}
		var parent models.Branch
		if err := tx.First(&parent, parentAction.BranchID).Error; err != nil {
			return 0, err
		}
		if parent.InforequestID != b.InforequestID {
			return 0, fmt.Errorf("%w: advanced_by crosses inforequests", ErrInvariant)
		}
		current = &parent
	}
	return depth, nil
}

// CreateInforequestParams carries the inputs of CreateInforequest.
type CreateInforequestParams struct {
	Applicant     ApplicantIdentity
	ObligeeID     uint
	Subject       string
	Content       string
	AttachmentIDs []uint
	Session       string // owner of the uploaded attachments
	SendEmail     bool
}

// CreateInforequest opens a case: the inforequest, its main branch and the
// initial Request action, optionally enqueuing the outbound letter.
func (s *InforequestService) CreateInforequest(p CreateInforequestParams) (*models.Inforequest, error) {
	if p.Applicant.Ref == "" {
		return nil, fmt.Errorf("%w: applicant is required", ErrValidation)
	}

	var obligee models.Obligee
	if err := s.db.First(&obligee, p.ObligeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: obligee %d", ErrInvalidObligee, p.ObligeeID)
		}
		return nil, err
	}
	if !obligee.Active {
		return nil, fmt.Errorf("%w: obligee %d is inactive", ErrInvalidObligee, p.ObligeeID)
	}

	var atts []models.Attachment
	if len(p.AttachmentIDs) > 0 {
		var err error
		atts, err = s.attachments.Owned(models.OwnerSession, p.Session, p.AttachmentIDs)
		if err != nil {
			return nil, err
		}
	}

	today := s.mach.Today()
	var ir *models.Inforequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		uniqueEmail, err := s.generateUniqueEmail(tx)
		if err != nil {
			return err
		}

		ir = &models.Inforequest{
			Applicant:       p.Applicant.Ref,
			ApplicantName:   p.Applicant.Name,
			ApplicantStreet: p.Applicant.Street,
			ApplicantCity:   p.Applicant.City,
			ApplicantZip:    p.Applicant.Zip,
			UniqueEmail:     uniqueEmail,
			SubmissionDate:  today,
		}
		if err := tx.Create(ir).Error; err != nil {
			return err
		}

		branch := &models.Branch{InforequestID: ir.ID}
		branch.FreezeObligee(&obligee)
		if err := tx.Create(branch).Error; err != nil {
			return err
		}

		action := &models.Action{
			BranchID:      branch.ID,
			Type:          models.ActionRequest,
			Subject:       p.Subject,
			Content:       p.Content,
			EffectiveDate: today,
			Deadline:      s.mach.DeadlineFor(models.ActionRequest, nil),
		}
		if err := tx.Create(action).Error; err != nil {
			return err
		}

		for i := range atts {
			if _, err := s.attachments.CloneTo(tx, &atts[i], models.OwnerAction, RecordOwnerID(action.ID)); err != nil {
				return err
			}
		}

		if p.SendEmail {
			msg, err := s.mail.EnqueueOutboundTx(tx, s.senderName, uniqueEmail, p.Subject, p.Content, "", obligee.EmailList())
			if err != nil {
				return err
			}
			action.EmailID = &msg.ID
			if err := tx.Model(action).Update("email_id", msg.ID).Error; err != nil {
				return err
			}
		}

		branch.Actions = []models.Action{*action}
		ir.Branches = []models.Branch{*branch}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logService.LogInfo(ir.ID, models.LogModuleInforequest, "create", "Inforequest created", map[string]interface{}{
		"applicant":    p.Applicant.Ref,
		"obligee_id":   p.ObligeeID,
		"unique_email": ir.UniqueEmail,
		"send_email":   p.SendEmail,
	})
	return ir, nil
}

// AddActionParams carries the inputs of applicant and obligee actions.
type AddActionParams struct {
	InforequestID   uint
	BranchID        uint
	Type            models.ActionType
	Subject         string
	Content         string
	DisclosureLevel *models.DisclosureLevel
	RefusalReason   *models.RefusalReason
	AttachmentIDs   []uint
	Session         string
	Button          SubmitButton
	// ObligeeIDs are the Advancement targets; required for that type.
	ObligeeIDs []uint
}

// validateActionFields checks the type-specific required attributes.
func validateActionFields(p *AddActionParams) error {
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, p.Type)
	}
	if machine.RequiresDisclosureLevel(p.Type) && p.DisclosureLevel == nil {
		return fmt.Errorf("%w: %s requires a disclosure level", ErrValidation, p.Type)
	}
	if machine.RequiresRefusalReason(p.Type) && p.RefusalReason == nil {
		return fmt.Errorf("%w: %s requires a refusal reason", ErrValidation, p.Type)
	}
	if p.Type == models.ActionAdvancement && len(p.ObligeeIDs) == 0 {
		return fmt.Errorf("%w: advancement needs at least one target obligee", ErrValidation)
	}
	return nil
}

// AddApplicantAction appends an applicant action to a branch; with
// Button=draft it stores an ActionDraft instead. When the applicant appeals a
// silent obligee, the missing Expiration is inserted first.
func (s *InforequestService) AddApplicantAction(p AddActionParams) (*models.Action, *models.ActionDraft, error) {
	if !p.Type.IsApplicantAction() {
		return nil, nil, fmt.Errorf("%w: %s is not an applicant action", ErrValidation, p.Type)
	}
	if err := validateActionFields(&p); err != nil {
		return nil, nil, err
	}

	if p.Button == ButtonDraft {
		draft, err := s.SaveDraft(p)
		return nil, draft, err
	}

	var atts []models.Attachment
	if len(p.AttachmentIDs) > 0 {
		var err error
		atts, err = s.attachments.Owned(models.OwnerSession, p.Session, p.AttachmentIDs)
		if err != nil {
			return nil, nil, err
		}
	}

	now := s.mach.Now()
	var action *models.Action

	err := s.db.Transaction(func(tx *gorm.DB) error {
		ir, err := s.fetchForUpdate(tx, p.InforequestID)
		if err != nil {
			return err
		}
		branch := branchByID(ir, p.BranchID)
		if branch == nil {
			return ErrBranchNotFound
		}

		// An appeal against a silent obligee implies the deadline expired;
		// record the Expiration explicitly before the Appeal.
		if p.Type == models.ActionAppeal {
			last := branch.LastAction()
			if last != nil && last.Type != models.ActionExpiration &&
				last.DeadlineSide() == models.DeadlineSideObligee &&
				s.mach.DeadlineMissed(last, now) &&
				s.mach.CanAdd(branch, models.ActionExpiration, now) {
				if _, err := s.appendAction(tx, branch, &models.Action{
					Type:          models.ActionExpiration,
					EffectiveDate: s.mach.Today(),
				}); err != nil {
					return err
				}
			}
		}

		if !s.mach.CanAdd(branch, p.Type, now) {
			return fmt.Errorf("%w: %s cannot follow the branch's last action", ErrNotAllowed, p.Type)
		}

		action = &models.Action{
			Type:            p.Type,
			Subject:         p.Subject,
			Content:         p.Content,
			EffectiveDate:   s.mach.Today(),
			Deadline:        s.mach.DeadlineFor(p.Type, p.DisclosureLevel),
			DisclosureLevel: p.DisclosureLevel,
			RefusalReason:   p.RefusalReason,
		}
		if _, err := s.appendAction(tx, branch, action); err != nil {
			return err
		}

		for i := range atts {
			if _, err := s.attachments.CloneTo(tx, &atts[i], models.OwnerAction, RecordOwnerID(action.ID)); err != nil {
				return err
			}
		}

		if p.Button == ButtonEmail {
			msg, err := s.mail.EnqueueOutboundTx(tx, s.senderName, ir.UniqueEmail, p.Subject, p.Content, "", branch.HistoricalEmailList())
			if err != nil {
				return err
			}
			action.EmailID = &msg.ID
			if err := tx.Model(action).Update("email_id", msg.ID).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logService.LogInfo(p.InforequestID, models.LogModuleInforequest, "add_action", "Applicant action added", map[string]interface{}{
		"branch_id": p.BranchID,
		"type":      p.Type,
		"button":    p.Button,
	})
	return action, nil, nil
}

// AddObligeeAction appends an obligee action inside an existing transaction;
// the router's decide flow calls it with the message it classified. The
// caller must have locked and re-fetched the inforequest.
func (s *InforequestService) AddObligeeAction(tx *gorm.DB, ir *models.Inforequest, branch *models.Branch, p AddActionParams, emailID *uint, effectiveDate time.Time) (*models.Action, error) {
	if !p.Type.IsObligeeAction() {
		return nil, fmt.Errorf("%w: %s is not an obligee action", ErrValidation, p.Type)
	}
	if err := validateActionFields(&p); err != nil {
		return nil, err
	}
	if !s.mach.CanAdd(branch, p.Type, s.mach.Now()) {
		return nil, fmt.Errorf("%w: %s cannot follow the branch's last action", ErrNotAllowed, p.Type)
	}

	action := &models.Action{
		Type:            p.Type,
		Subject:         p.Subject,
		Content:         p.Content,
		EffectiveDate:   effectiveDate,
		Deadline:        s.mach.DeadlineFor(p.Type, p.DisclosureLevel),
		DisclosureLevel: p.DisclosureLevel,
		RefusalReason:   p.RefusalReason,
		EmailID:         emailID,
	}
	if _, err := s.appendAction(tx, branch, action); err != nil {
		return nil, err
	}

	if p.Type == models.ActionAdvancement {
		if err := s.splitBranch(tx, ir, branch, action, p.ObligeeIDs); err != nil {
			return nil, err
		}
	}
	return action, nil
}

// appendAction persists the action onto the branch and keeps the in-memory
// snapshot ordered.
func (s *InforequestService) appendAction(tx *gorm.DB, branch *models.Branch, action *models.Action) (*models.Action, error) {
	action.BranchID = branch.ID
	if err := tx.Create(action).Error; err != nil {
		return nil, err
	}
	branch.Actions = append(branch.Actions, *action)
	return action, nil
}

// splitBranch creates one sub-branch per advancement target, each opened by
// an AdvancedRequest effective on the advancement's date.
func (s *InforequestService) splitBranch(tx *gorm.DB, ir *models.Inforequest, parent *models.Branch, advancement *models.Action, obligeeIDs []uint) error {
	depth, err := s.branchDepth(tx, parent)
	if err != nil {
		return err
	}
	if depth+1 > s.maxBranchDepth {
		return fmt.Errorf("%w: branch depth limit %d exceeded", ErrValidation, s.maxBranchDepth)
	}

	for _, obligeeID := range obligeeIDs {
		var obligee models.Obligee
		if err := tx.First(&obligee, obligeeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: obligee %d", ErrInvalidObligee, obligeeID)
			}
			return err
		}

		sub := &models.Branch{
			InforequestID: ir.ID,
			AdvancedByID:  &advancement.ID,
		}
		sub.FreezeObligee(&obligee)
		if err := tx.Create(sub).Error; err != nil {
			return err
		}

		first := &models.Action{
			BranchID:      sub.ID,
			Type:          models.ActionAdvancedRequest,
			Subject:       advancement.Subject,
			Content:       advancement.Content,
			EffectiveDate: advancement.EffectiveDate,
			Deadline:      s.mach.DeadlineFor(models.ActionAdvancedRequest, nil),
		}
		if err := tx.Create(first).Error; err != nil {
			return err
		}

		sub.Actions = []models.Action{*first}
		ir.Branches = append(ir.Branches, *sub)
	}
	return nil
}

// ExtendDeadline sets the extension on the branch's last action. Allowed only
// while the action still carries a deadline.
func (s *InforequestService) ExtendDeadline(inforequestID, branchID uint, days int) error {
	if days <= 0 {
		return fmt.Errorf("%w: extension must be positive", ErrValidation)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		ir, err := s.fetchForUpdate(tx, inforequestID)
		if err != nil {
			return err
		}
		branch := branchByID(ir, branchID)
		if branch == nil {
			return ErrBranchNotFound
		}
		last := branch.LastAction()
		if last == nil || last.Deadline == nil {
			return fmt.Errorf("%w: the branch's last action has no deadline", ErrValidation)
		}
		return tx.Model(&models.Action{}).Where("id = ?", last.ID).Update("extension", days).Error
	})
}

// Closable reports whether the inforequest may be closed now.
func (s *InforequestService) Closable(ir *models.Inforequest) bool {
	return s.mach.Closable(ir, s.mach.Now())
}

// Close closes the inforequest when every branch permits it, first recording
// an Expiration on each branch whose obligee stayed silent. Closing an
// already closed inforequest is a no-op.
func (s *InforequestService) Close(inforequestID uint) error {
	now := s.mach.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ir, err := s.fetchForUpdate(tx, inforequestID)
		if err != nil {
			return err
		}
		if ir.Closed {
			return nil
		}
		if !s.mach.Closable(ir, now) {
			return fmt.Errorf("%w: inforequest %d is not closable yet", ErrNotAllowed, inforequestID)
		}

		for i := range ir.Branches {
			branch := &ir.Branches[i]
			if s.mach.CanAdd(branch, models.ActionExpiration, now) {
				if _, err := s.appendAction(tx, branch, &models.Action{
					Type:          models.ActionExpiration,
					EffectiveDate: s.mach.Today(),
				}); err != nil {
					return err
				}
			}
		}

		return tx.Model(&models.Inforequest{}).Where("id = ?", ir.ID).Update("closed", true).Error
	})
	if err != nil {
		return err
	}

	s.logService.LogInfo(inforequestID, models.LogModuleInforequest, "close", "Inforequest closed", nil)
	return nil
}

// AddExpiration records that the obligee stayed silent on one branch. The
// action is appended only while the branch's missed obligee deadline makes it
// legal, so re-running the caller cannot create a second Expiration.
func (s *InforequestService) AddExpiration(inforequestID, branchID uint) (*models.Action, error) {
	var action *models.Action
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ir, err := s.fetchForUpdate(tx, inforequestID)
		if err != nil {
			return err
		}
		branch := branchByID(ir, branchID)
		if branch == nil {
			return ErrBranchNotFound
		}
		if !s.mach.CanAdd(branch, models.ActionExpiration, s.mach.Now()) {
			return fmt.Errorf("%w: expiration on branch %d", ErrNotAllowed, branchID)
		}
		action, err = s.appendAction(tx, branch, &models.Action{
			Type:          models.ActionExpiration,
			EffectiveDate: s.mach.Today(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logService.LogInfo(inforequestID, models.LogModuleInforequest, "expire", "Expiration recorded", map[string]interface{}{
		"branch_id": branchID,
	})
	return action, nil
}

// SaveDraft stores a work-in-progress action.
func (s *InforequestService) SaveDraft(p AddActionParams) (*models.ActionDraft, error) {
	draft := &models.ActionDraft{
		InforequestID:   p.InforequestID,
		Type:            p.Type,
		Subject:         p.Subject,
		Content:         p.Content,
		DisclosureLevel: p.DisclosureLevel,
		RefusalReason:   p.RefusalReason,
	}
	if p.BranchID != 0 {
		draft.BranchID = &p.BranchID
	}
	if len(p.ObligeeIDs) > 0 {
		draft.SetObligeeIDs(p.ObligeeIDs)
	}
	if err := s.db.Create(draft).Error; err != nil {
		return nil, err
	}

	// The draft adopts the session's uploads.
	if len(p.AttachmentIDs) > 0 {
		atts, err := s.attachments.Owned(models.OwnerSession, p.Session, p.AttachmentIDs)
		if err != nil {
			return nil, err
		}
		for i := range atts {
			if _, err := s.attachments.CloneTo(s.db, &atts[i], models.OwnerDraft, RecordOwnerID(draft.ID)); err != nil {
				return nil, err
			}
		}
	}
	return draft, nil
}

// GetDraft returns one draft.
func (s *InforequestService) GetDraft(id uint) (*models.ActionDraft, error) {
	var draft models.ActionDraft
	if err := s.db.First(&draft, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: draft %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &draft, nil
}

// DeleteDraft removes a draft and its adopted attachments.
func (s *InforequestService) DeleteDraft(id uint) error {
	atts, err := s.attachments.ListByOwner(models.OwnerDraft, RecordOwnerID(id))
	if err != nil {
		return err
	}
	for i := range atts {
		if err := s.attachments.Delete(&atts[i]); err != nil {
			return err
		}
	}
	return s.db.Delete(&models.ActionDraft{}, id).Error
}

// Get returns an inforequest with ordered branches and actions.
func (s *InforequestService) Get(id uint) (*models.Inforequest, error) {
	var ir models.Inforequest
	err := s.db.
		Preload("Branches").
		Preload("Branches.Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("effective_date ASC, id ASC")
		}).
		Preload("Emails").
		First(&ir, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInforequestNotFound
		}
		return nil, err
	}
	return &ir, nil
}

// ListByApplicant returns the applicant's inforequests, newest first.
func (s *InforequestService) ListByApplicant(applicant string) ([]models.Inforequest, error) {
	var irs []models.Inforequest
	err := s.db.
		Where("applicant = ?", applicant).
		Order("id DESC").
		Find(&irs).Error
	return irs, err
}
