package scheduler

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/machine"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"gorm.io/gorm"
)

// Jobs implements the periodic maintenance work: reminders, auto-closure and
// auto-expiration. Every job walks its candidates in two passes: a read-only
// filter pass, then a per-item act pass where each item runs in its own
// transaction and its failure is logged without aborting the batch.
type Jobs struct {
	db           *gorm.DB
	logService   *services.LogService
	mach         *machine.Machine
	mail         *services.MailService
	inforequests *services.InforequestService
	router       *services.RouterService

	senderName string
	senderMail string

	// selfService mirrors the router: the undecided-mail reminder goes to
	// whoever reviews the mail.
	selfService bool
}

// NewJobs creates the job set.
func NewJobs(
	db *gorm.DB,
	logService *services.LogService,
	mach *machine.Machine,
	mail *services.MailService,
	inforequests *services.InforequestService,
	router *services.RouterService,
	senderName, senderMail string,
	selfService bool,
) *Jobs {
	return &Jobs{
		db:           db,
		logService:   logService,
		mach:         mach,
		mail:         mail,
		inforequests: inforequests,
		router:       router,
		senderName:   senderName,
		senderMail:   senderMail,
		selfService:  selfService,
	}
}

// reviewerFor returns who reviews undecided mail of the inforequest.
func (j *Jobs) reviewerFor(ir *models.Inforequest) string {
	if j.selfService {
		return ir.Applicant
	}
	return j.senderMail
}

// runItem runs one act-pass item, swallowing its error or panic into the
// log so the rest of the batch proceeds.
func (j *Jobs) runItem(job string, inforequestID uint, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			j.logService.LogError(inforequestID, models.LogModuleScheduler, job,
				fmt.Sprintf("Item panicked: %v", r), map[string]interface{}{
					"stack": string(debug.Stack()),
				})
		}
	}()
	if err := fn(); err != nil {
		j.logService.LogError(inforequestID, models.LogModuleScheduler, job,
			fmt.Sprintf("Item failed: %v", err), map[string]interface{}{
				"stack": string(debug.Stack()),
			})
		return
	}
	j.logService.LogDebug(inforequestID, models.LogModuleScheduler, job, "Item processed", nil)
}

// openInforequests loads all non-closed inforequests with their branches and
// ordered actions.
func (j *Jobs) openInforequests() ([]models.Inforequest, error) {
	var irs []models.Inforequest
	err := j.db.
		Where("closed = ?", false).
		Preload("Branches").
		Preload("Branches.Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("effective_date ASC, id ASC")
		}).
		Order("id ASC").
		Find(&irs).Error
	return irs, err
}

// hasUndecided reports whether an inforequest has any undecided email.
func (j *Jobs) hasUndecided(inforequestID uint) (bool, error) {
	var n int64
	err := j.db.Model(&models.InforequestEmail{}).
		Where("inforequest_id = ? AND status = ?", inforequestID, models.EmailStatusUndecided).
		Count(&n).Error
	return n > 0, err
}

// UndecidedEmailReminder nudges the reviewer about mail that sat undecided
// for five working days. At most one reminder goes out per undecided email.
func (j *Jobs) UndecidedEmailReminder(now time.Time) error {
	var irs []models.Inforequest
	err := j.db.
		Where("closed = ?", false).
		Where("id IN (?)", j.db.Model(&models.InforequestEmail{}).
			Select("inforequest_id").
			Where("status = ?", models.EmailStatusUndecided)).
		Order("id ASC").
		Find(&irs).Error
	if err != nil {
		return err
	}

	today := j.mach.LocalDate(now)
	for i := range irs {
		ir := irs[i]
		j.runItem("undecided_email_reminder", ir.ID, func() error {
			newest, err := j.router.NewestUndecided(ir.ID)
			if err != nil {
				return err
			}
			if newest == nil || newest.Message == nil || newest.Message.Processed == nil {
				return nil
			}
			processed := *newest.Message.Processed
			if j.mach.Calendar().DaysBetween(j.mach.LocalDate(processed), today) < 5 {
				return nil
			}
			if ir.LastUndecidedEmailReminder != nil && !ir.LastUndecidedEmailReminder.Before(processed) {
				return nil
			}

			return j.db.Transaction(func(tx *gorm.DB) error {
				subject := fmt.Sprintf("Undecided message on inforequest #%d", ir.ID)
				body := fmt.Sprintf(
					"The message received at %s on %s still waits for your decision.",
					ir.UniqueEmail, processed.Format("2006-01-02"))
				if _, err := j.mail.EnqueueOutboundTx(tx, j.senderName, j.senderMail, subject, body, "", []string{j.reviewerFor(&ir)}); err != nil {
					return err
				}
				return tx.Model(&models.Inforequest{}).
					Where("id = ?", ir.ID).
					Update("last_undecided_email_reminder", now).Error
			})
		})
	}
	return nil
}

// ObligeeDeadlineReminder tells the applicant that the obligee's deadline on
// a branch has passed. An extension granted after the previous reminder
// re-enables the reminder; otherwise each missed deadline is reported once.
func (j *Jobs) ObligeeDeadlineReminder(now time.Time) error {
	irs, err := j.openInforequests()
	if err != nil {
		return err
	}

	for i := range irs {
		ir := irs[i]
		undecided, err := j.hasUndecided(ir.ID)
		if err != nil {
			j.logService.LogError(ir.ID, models.LogModuleScheduler, "obligee_deadline_reminder",
				fmt.Sprintf("Filter failed: %v", err), nil)
			continue
		}
		if undecided {
			continue
		}
		for bi := range ir.Branches {
			branch := ir.Branches[bi]
			last := branch.LastAction()
			if last == nil || last.DeadlineSide() != models.DeadlineSideObligee {
				continue
			}
			if !j.mach.DeadlineMissed(last, now) {
				continue
			}
			if last.LastDeadlineReminder != nil && j.mach.DeadlineMissed(last, *last.LastDeadlineReminder) {
				continue
			}
			j.sendDeadlineReminder("obligee_deadline_reminder", &ir, &branch, last, now,
				fmt.Sprintf("Obligee deadline missed on inforequest #%d", ir.ID))
		}
	}
	return nil
}

// ApplicantDeadlineReminder warns the applicant two working days before
// their own deadline runs out. Branches advanced to another obligee are
// skipped.
func (j *Jobs) ApplicantDeadlineReminder(now time.Time) error {
	irs, err := j.openInforequests()
	if err != nil {
		return err
	}

	for i := range irs {
		ir := irs[i]
		undecided, err := j.hasUndecided(ir.ID)
		if err != nil {
			j.logService.LogError(ir.ID, models.LogModuleScheduler, "applicant_deadline_reminder",
				fmt.Sprintf("Filter failed: %v", err), nil)
			continue
		}
		if undecided {
			continue
		}
		for bi := range ir.Branches {
			branch := ir.Branches[bi]
			last := branch.LastAction()
			if last == nil || last.Type == models.ActionAdvancement {
				continue
			}
			if last.DeadlineSide() != models.DeadlineSideApplicant {
				continue
			}
			if j.mach.DeadlineRemaining(last, now) > 2 {
				continue
			}
			if last.LastDeadlineReminder != nil {
				continue
			}
			j.sendDeadlineReminder("applicant_deadline_reminder", &ir, &branch, last, now,
				fmt.Sprintf("Your deadline on inforequest #%d is running out", ir.ID))
		}
	}
	return nil
}

// sendDeadlineReminder is one act-pass item shared by both deadline jobs.
func (j *Jobs) sendDeadlineReminder(job string, ir *models.Inforequest, branch *models.Branch, last *models.Action, now time.Time, subject string) {
	j.runItem(job, ir.ID, func() error {
		return j.db.Transaction(func(tx *gorm.DB) error {
			body := fmt.Sprintf(
				"Branch %d of inforequest #%d (%s) has a deadline needing your attention.",
				branch.ID, ir.ID, branch.HistoricalName)
			if _, err := j.mail.EnqueueOutboundTx(tx, j.senderName, j.senderMail, subject, body, "", []string{ir.Applicant}); err != nil {
				return err
			}
			return tx.Model(&models.Action{}).
				Where("id = ?", last.ID).
				Update("last_deadline_reminder", now).Error
		})
	})
}

// CloseInforequests closes every inforequest whose branches all went quiet
// long enough. One failing inforequest never blocks the rest.
func (j *Jobs) CloseInforequests(now time.Time) error {
	irs, err := j.openInforequests()
	if err != nil {
		return err
	}

	var candidates []uint
	for i := range irs {
		if j.mach.Closable(&irs[i], now) {
			candidates = append(candidates, irs[i].ID)
		}
	}

	for _, id := range candidates {
		irID := id
		j.runItem("close_inforequests", irID, func() error {
			return j.inforequests.Close(irID)
		})
	}
	return nil
}

// AddExpirations records Expiration eagerly on branches whose obligee has
// been silent for half the closure threshold, without waiting for closure.
func (j *Jobs) AddExpirations(now time.Time) error {
	irs, err := j.openInforequests()
	if err != nil {
		return err
	}

	type target struct {
		inforequestID uint
		branchID      uint
	}
	var targets []target
	for i := range irs {
		for bi := range irs[i].Branches {
			branch := irs[i].Branches[bi]
			last := branch.LastAction()
			if last == nil || last.DeadlineSide() != models.DeadlineSideObligee {
				continue
			}
			// A silent appeal expires as AppealExpiration, never as
			// Expiration.
			if last.Type == models.ActionAppeal {
				continue
			}
			if j.mach.DeadlineMissedBy(last, now) < j.mach.ExpirationHalfThresholdDays {
				continue
			}
			targets = append(targets, target{inforequestID: irs[i].ID, branchID: branch.ID})
		}
	}

	for _, t := range targets {
		t := t
		j.runItem("add_expirations", t.inforequestID, func() error {
			_, err := j.inforequests.AddExpiration(t.inforequestID, t.branchID)
			return err
		})
	}
	return nil
}
