// Package app wires the engine's services, schedulers and transports from
// one configuration. The HTTP server and the CLI assemble the same graph, so
// a maintenance command sees exactly what the running service sees.
package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/config"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/dedup"
	"github.com/mmmaly/chcemvediet-sub000/internal/events"
	"github.com/mmmaly/chcemvediet-sub000/internal/machine"
	"github.com/mmmaly/chcemvediet-sub000/internal/scheduler"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport/imapin"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport/smtpin"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport/smtpout"
	"github.com/mmmaly/chcemvediet-sub000/internal/workdays"
	"github.com/mmmaly/chcemvediet-sub000/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App is the wired object graph of the lifecycle engine.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Location *time.Location
	Calendar *workdays.Calendar
	Machine  *machine.Machine

	LogService   *services.LogService
	Attachments  *services.AttachmentService
	Mail         *services.MailService
	Inforequests *services.InforequestService
	Router       *services.RouterService
	Obligees     *services.ObligeeService

	Dispatcher *events.Dispatcher
	Collector  *metrics.Collector

	Jobs      *scheduler.Jobs
	Scheduler *scheduler.Scheduler
	Pump      *scheduler.MailPump

	// SMTPIn is non-nil when the inbound transport is a receiving SMTP
	// server; the caller starts its listener.
	SMTPIn *smtpin.Server
}

// New builds the full graph. The clock is injected so tests and maintenance
// tooling can warp time.
func New(db *gorm.DB, cfg *config.Config, log *zap.Logger, clk clock.Clock) (*App, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	cal, err := workdays.LoadCalendar(cfg.HolidaysPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to load holidays, using weekends only", zap.Error(err))
		}
		cal = workdays.NewCalendar(nil)
	}

	overrides := make(map[models.ActionType]int, len(cfg.DefaultDeadlines))
	for name, days := range cfg.DefaultDeadlines {
		overrides[models.ActionType(name)] = days
	}
	mach := machine.New(cal, clk, loc, overrides)
	mach.ClosureThresholdDays = cfg.ClosureThresholdDays
	mach.ExpirationHalfThresholdDays = cfg.ExpirationHalfThresholdDays

	logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)

	blobs, err := services.NewFileBlobStore(cfg.BlobDir())
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	attachments := services.NewAttachmentService(db, blobs)
	mail := services.NewMailService(db, logService, clk)
	inforequests := services.NewInforequestService(db, logService, mach, attachments, mail,
		cfg.UniqueEmailTemplate, cfg.MaxBranchDepth, cfg.SiteSenderName, cfg.SiteSenderMail)
	router := services.NewRouterService(db, logService, mach, attachments, mail, inforequests,
		cfg.SiteSenderName, cfg.SiteSenderMail, cfg.SelfService)
	obligees := services.NewObligeeService(db, logService)

	collector := metrics.NewCollector()
	dispatcher := events.NewDispatcher(log)
	dispatcher.Register(events.MessageReceived, func(e events.Event) error {
		collector.Inc("messages", "received")
		msg, err := mail.GetMessage(e.MessageID)
		if err != nil {
			return err
		}
		_, err = router.AssignMessage(msg)
		return err
	})
	dispatcher.Register(events.MessageSent, func(e events.Event) error {
		collector.Inc("messages", "sent")
		return nil
	})

	var filter *dedup.Filter
	if cfg.RedisURL != "" {
		filter, err = dedup.NewFilterURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
	}

	var inbound transport.Inbound
	var smtpServer *smtpin.Server
	switch cfg.InboundTransport {
	case "smtp":
		smtpServer = smtpin.NewServer(fmt.Sprintf(":%d", cfg.SMTPListenPort),
			cfg.UniqueEmailDomain(), 256, log)
		inbound = smtpServer
	case "imap":
		if cfg.IMAPHost != "" {
			inbound = imapin.New(imapin.Options{
				Host:     cfg.IMAPHost,
				Port:     cfg.IMAPPort,
				Username: cfg.IMAPUsername,
				Password: cfg.IMAPPassword,
				UseSSL:   cfg.IMAPUseSSL,
			}, filter, log)
		}
	default:
		return nil, fmt.Errorf("unknown inbound transport %q", cfg.InboundTransport)
	}

	var outbound transport.Outbound
	if cfg.SMTPHost != "" {
		outbound = smtpout.New(smtpout.Options{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, attachments, log)
	}

	pump := scheduler.NewMailPump(db, logService, log, mail, attachments,
		inbound, outbound, dispatcher, clk,
		time.Duration(cfg.MailPumpInterval)*time.Second,
		cfg.InboundBatchSize, cfg.OutboundBatchSize)

	jobs := scheduler.NewJobs(db, logService, mach, mail, inforequests, router,
		cfg.SiteSenderName, cfg.SiteSenderMail, cfg.SelfService)

	sched := scheduler.New(db, logService, log, clk, loc, collector)
	sched.Register("undecided_email_reminder", cfg.ReminderSlots, jobs.UndecidedEmailReminder)
	sched.Register("obligee_deadline_reminder", cfg.ReminderSlots, jobs.ObligeeDeadlineReminder)
	sched.Register("applicant_deadline_reminder", cfg.ReminderSlots, jobs.ApplicantDeadlineReminder)
	sched.Register("add_expirations", cfg.MaintenanceSlots, jobs.AddExpirations)
	sched.Register("close_inforequests", cfg.MaintenanceSlots, jobs.CloseInforequests)

	return &App{
		Config:       cfg,
		DB:           db,
		Log:          log,
		Clock:        clk,
		Location:     loc,
		Calendar:     cal,
		Machine:      mach,
		LogService:   logService,
		Attachments:  attachments,
		Mail:         mail,
		Inforequests: inforequests,
		Router:       router,
		Obligees:     obligees,
		Dispatcher:   dispatcher,
		Collector:    collector,
		Jobs:         jobs,
		Scheduler:    sched,
		Pump:         pump,
		SMTPIn:       smtpServer,
	}, nil
}
