package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/clock"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/events"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MailPump moves mail between the transports and the message store. Each
// cycle drains the inbound transport, processes stored inbound messages and
// submits queued outbound messages. Every step is idempotent, so a crashed
// cycle is simply finished by the next one.
type MailPump struct {
	db          *gorm.DB
	logService  *services.LogService
	log         *zap.Logger
	mail        *services.MailService
	attachments *services.AttachmentService
	inbound     transport.Inbound
	outbound    transport.Outbound
	dispatcher  *events.Dispatcher
	clk         clock.Clock

	interval      time.Duration
	inboundBatch  int
	outboundBatch int

	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
	pumping  sync.Mutex
}

// NewMailPump creates a mail pump. inbound or outbound may be nil when the
// deployment runs only one direction.
func NewMailPump(
	db *gorm.DB,
	logService *services.LogService,
	log *zap.Logger,
	mail *services.MailService,
	attachments *services.AttachmentService,
	inbound transport.Inbound,
	outbound transport.Outbound,
	dispatcher *events.Dispatcher,
	clk clock.Clock,
	interval time.Duration,
	inboundBatch, outboundBatch int,
) *MailPump {
	return &MailPump{
		db:            db,
		logService:    logService,
		log:           log,
		mail:          mail,
		attachments:   attachments,
		inbound:       inbound,
		outbound:      outbound,
		dispatcher:    dispatcher,
		clk:           clk,
		interval:      interval,
		inboundBatch:  inboundBatch,
		outboundBatch: outboundBatch,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the pump loop.
func (p *MailPump) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.log.Info("mail pump starting", zap.Duration("interval", p.interval))

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.Pump(context.Background())
			case <-p.stopChan:
				p.log.Info("mail pump stopping")
				return
			}
		}
	}()
}

// Stop stops the pump loop.
func (p *MailPump) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopChan)
	p.running = false
}

// Pump runs one cycle. Exported so the CLI and tests can drive the pump
// directly.
func (p *MailPump) Pump(ctx context.Context) {
	if !p.pumping.TryLock() {
		p.log.Warn("previous pump cycle still running, skipping")
		return
	}
	defer p.pumping.Unlock()

	if p.inbound != nil {
		p.fetchInbound(ctx)
		p.processInbound()
	}
	if p.outbound != nil {
		p.submitOutbound(ctx)
	}
}

// fetchInbound drains the transport into the message store. A message is
// acknowledged only after it was durably stored; storage is deduplicated by
// Message-ID, so redelivery after a crash cannot create duplicates.
func (p *MailPump) fetchInbound(ctx context.Context) {
	session, err := p.inbound.Open(ctx)
	if err != nil {
		p.logService.LogError(0, models.LogModuleTransport, "fetch",
			"Failed to open inbound session: "+err.Error(), nil)
		return
	}
	defer session.Close()

	for {
		raw, err := session.Next(ctx)
		if err != nil {
			if !errors.Is(err, services.ErrTransientTransport) {
				p.logService.LogError(0, models.LogModuleTransport, "fetch",
					"Inbound iteration failed: "+err.Error(), nil)
			}
			return
		}
		if raw == nil {
			return
		}

		msg, stored, err := p.mail.StoreInbound(raw, p.attachments)
		if err != nil {
			p.logService.LogError(0, models.LogModuleTransport, "fetch",
				"Failed to store inbound message: "+err.Error(), map[string]interface{}{
					"remote_id": raw.ID,
				})
			continue
		}
		if err := session.Ack(ctx, raw.ID); err != nil {
			p.logService.LogWarn(0, models.LogModuleTransport, "fetch",
				"Ack failed, message will be redelivered: "+err.Error(), map[string]interface{}{
					"message_id": msg.ID,
				})
		}
		if stored {
			p.log.Debug("stored inbound message", zap.Uint("id", msg.ID))
		}
	}
}

// processInbound stamps a batch of stored messages processed and announces
// them, which triggers assignment.
func (p *MailPump) processInbound() {
	msgs, err := p.mail.NextInbound(p.inboundBatch)
	if err != nil {
		p.logService.LogError(0, models.LogModuleMail, "process",
			"Failed to list inbound messages: "+err.Error(), nil)
		return
	}

	now := p.clk.Now()
	for i := range msgs {
		msg := &msgs[i]
		err := p.db.Transaction(func(tx *gorm.DB) error {
			return p.mail.MarkProcessed(tx, msg, now)
		})
		if err != nil {
			p.logService.LogError(0, models.LogModuleMail, "process",
				"Failed to mark message processed: "+err.Error(), map[string]interface{}{
					"message_id": msg.ID,
				})
			continue
		}
		p.dispatcher.Dispatch(events.Event{Type: events.MessageReceived, MessageID: msg.ID})
	}
}

// submitOutbound hands queued messages to the sending transport. A failed
// submit leaves the message unprocessed so the next cycle retries it.
func (p *MailPump) submitOutbound(ctx context.Context) {
	msgs, err := p.mail.NextOutbound(p.outboundBatch)
	if err != nil {
		p.logService.LogError(0, models.LogModuleMail, "submit",
			"Failed to list outbound messages: "+err.Error(), nil)
		return
	}

	now := p.clk.Now()
	for i := range msgs {
		msg := &msgs[i]
		result, err := p.outbound.Submit(ctx, msg, msg.Recipients)
		if errors.Is(err, services.ErrPermanentTransport) {
			// Retrying cannot help; record the rejection and retire the
			// message.
			p.logService.LogError(0, models.LogModuleTransport, "submit",
				"Submit rejected: "+err.Error(), map[string]interface{}{
					"message_id": msg.ID,
				})
			p.retireRejected(msg, err, now)
			continue
		}
		if err != nil {
			p.logService.LogWarn(0, models.LogModuleTransport, "submit",
				"Submit failed: "+err.Error(), map[string]interface{}{
					"message_id": msg.ID,
				})
			continue
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := p.mail.RecordSubmitResult(tx, msg, result); err != nil {
				return err
			}
			return p.mail.MarkProcessed(tx, msg, now)
		})
		if err != nil {
			p.logService.LogError(0, models.LogModuleMail, "submit",
				"Failed to record submit result: "+err.Error(), map[string]interface{}{
					"message_id": msg.ID,
				})
			continue
		}
		p.dispatcher.Dispatch(events.Event{Type: events.MessageSent, MessageID: msg.ID})
	}
}

// retireRejected marks every recipient of a permanently failed message
// rejected and the message processed, so the pump stops retrying it.
func (p *MailPump) retireRejected(msg *models.Message, cause error, now time.Time) {
	rejected := &transport.SubmitResult{}
	for _, r := range msg.Recipients {
		rejected.Recipients = append(rejected.Recipients, transport.RecipientResult{
			Mail:    r.Mail,
			Status:  models.RecipientStatusRejected,
			Details: cause.Error(),
		})
	}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := p.mail.RecordSubmitResult(tx, msg, rejected); err != nil {
			return err
		}
		return p.mail.MarkProcessed(tx, msg, now)
	})
	if err != nil {
		p.logService.LogError(0, models.LogModuleMail, "submit",
			"Failed to record rejection: "+err.Error(), map[string]interface{}{
				"message_id": msg.ID,
			})
	}
}
