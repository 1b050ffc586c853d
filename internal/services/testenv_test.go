package services

import (
	"os"
	"testing"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/machine"
	"github.com/mmmaly/chcemvediet-sub000/internal/workdays"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testBase is a Monday.
var testBase = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db           *gorm.DB
	clk          *clock.Fixed
	cal          *workdays.Calendar
	mach         *machine.Machine
	logService   *LogService
	attachments  *AttachmentService
	mail         *MailService
	inforequests *InforequestService
	router       *RouterService
	obligees     *ObligeeService
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "chv_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Obligee{},
		&models.Inforequest{},
		&models.Branch{},
		&models.Action{},
		&models.ActionDraft{},
		&models.Message{},
		&models.Recipient{},
		&models.InforequestEmail{},
		&models.Attachment{},
		&models.JobRun{},
		&models.Log{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	clk := clock.NewFixed(testBase)
	cal := workdays.NewCalendar(nil)
	mach := machine.New(cal, clk, time.UTC, nil)

	blobs, err := NewFileBlobStore(t.TempDir())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to create blob store: %v", err)
	}

	logService := NewLogService(db)
	attachments := NewAttachmentService(db, blobs)
	mail := NewMailService(db, logService, clk)
	inforequests := NewInforequestService(db, logService, mach, attachments, mail,
		"{token}@mail.test", 10, "Test Site", "site@mail.test")
	router := NewRouterService(db, logService, mach, attachments, mail, inforequests,
		"Test Site", "site@mail.test", true)
	obligees := NewObligeeService(db, logService)

	env := &testEnv{
		db:           db,
		clk:          clk,
		cal:          cal,
		mach:         mach,
		logService:   logService,
		attachments:  attachments,
		mail:         mail,
		inforequests: inforequests,
		router:       router,
		obligees:     obligees,
	}
	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}
	return env, cleanup
}

// advanceWorkdays moves the clock n working days forward from its current
// date, keeping the time of day.
func (e *testEnv) advanceWorkdays(n int) {
	now := e.clk.Now()
	target := e.cal.AddWorkdays(now, n)
	e.clk.Set(time.Date(target.Year(), target.Month(), target.Day(),
		now.Hour(), now.Minute(), 0, 0, now.Location()))
}

func (e *testEnv) createObligee(t *testing.T, name string, emails ...string) *models.Obligee {
	t.Helper()
	if len(emails) == 0 {
		emails = []string{"podatelna@example.sk"}
	}
	ob, err := e.obligees.Create(name, "Hlavna 1", "Bratislava", "81101", emails)
	if err != nil {
		t.Fatalf("Failed to create obligee: %v", err)
	}
	return ob
}

func (e *testEnv) createInforequest(t *testing.T, obligeeID uint, sendEmail bool) *models.Inforequest {
	t.Helper()
	ir, err := e.inforequests.CreateInforequest(CreateInforequestParams{
		Applicant: ApplicantIdentity{
			Ref:    "applicant@citizen.test",
			Name:   "Jana Novakova",
			Street: "Dolna 7",
			City:   "Kosice",
			Zip:    "04001",
		},
		ObligeeID: obligeeID,
		Subject:   "Information request",
		Content:   "Please disclose the requested records.",
		SendEmail: sendEmail,
	})
	if err != nil {
		t.Fatalf("Failed to create inforequest: %v", err)
	}
	return ir
}

func countOutbound(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Message{}).Where("type = ?", models.MessageOutbound).Count(&n).Error; err != nil {
		t.Fatalf("Failed to count outbound messages: %v", err)
	}
	return n
}
