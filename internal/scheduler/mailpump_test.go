package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/events"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport"
	"go.uber.org/zap"
)

// fakeInbound delivers a fixed queue of messages. Undelivered and unacked
// messages stay queued for the next session, the way a real mailbox would
// redeliver them.
type fakeInbound struct {
	queue   []*transport.RawMessage
	acks    []string
	openErr error
}

func (f *fakeInbound) Open(ctx context.Context) (transport.InboundSession, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeInboundSession{inbox: f, pos: 0}, nil
}

type fakeInboundSession struct {
	inbox *fakeInbound
	pos   int
}

func (s *fakeInboundSession) Next(ctx context.Context) (*transport.RawMessage, error) {
	if s.pos >= len(s.inbox.queue) {
		return nil, nil
	}
	raw := s.inbox.queue[s.pos]
	s.pos++
	return raw, nil
}

func (s *fakeInboundSession) Ack(ctx context.Context, id string) error {
	s.inbox.acks = append(s.inbox.acks, id)
	for i, raw := range s.inbox.queue {
		if raw.ID == id {
			s.inbox.queue = append(s.inbox.queue[:i], s.inbox.queue[i+1:]...)
			s.pos--
			break
		}
	}
	return nil
}

func (s *fakeInboundSession) Close() error { return nil }

// fakeOutbound consumes scripted errors first, then accepts everything,
// reporting all recipients sent.
type fakeOutbound struct {
	errs      []error
	submitted []uint
}

func (f *fakeOutbound) Submit(ctx context.Context, msg *models.Message, recipients []models.Recipient) (*transport.SubmitResult, error) {
	f.submitted = append(f.submitted, msg.ID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	result := &transport.SubmitResult{RemoteID: fmt.Sprintf("remote-%d", msg.ID)}
	for _, r := range recipients {
		result.Recipients = append(result.Recipients, transport.RecipientResult{
			Mail:   r.Mail,
			Status: models.RecipientStatusSent,
		})
	}
	return result, nil
}

func newTestPump(env *jobsEnv, inbound transport.Inbound, outbound transport.Outbound, dispatcher *events.Dispatcher) *MailPump {
	logService := services.NewLogService(env.db)
	return NewMailPump(env.db, logService, zap.NewNop(), env.mail, env.attachments,
		inbound, outbound, dispatcher, env.clk, time.Minute, 100, 100)
}

func rawFor(ir *models.Inforequest, seq int) *transport.RawMessage {
	return &transport.RawMessage{
		ID:          fmt.Sprintf("uid-%d", seq),
		MessageID:   fmt.Sprintf("pump-%d@obligee.example", seq),
		Subject:     "Response",
		FromMail:    "podatelna@example.sk",
		ReceivedFor: ir.UniqueEmail,
		Date:        time.Now(),
		Text:        "Response body",
	}
}

func TestPumpFetchesProcessesAndAssigns(t *testing.T) {
	env, cleanup := newJobsEnv(t)
	defer cleanup()

	ir := env.newInforequest(t)
	inbox := &fakeInbound{queue: []*transport.RawMessage{rawFor(ir, 1), rawFor(ir, 2)}}

	dispatcher := events.NewDispatcher(zap.NewNop())
	dispatcher.Register(events.MessageReceived, func(e events.Event) error {
		msg, err := env.mail.GetMessage(e.MessageID)
		if err != nil {
			return err
		}
		_, err = env.router.AssignMessage(msg)
		return err
	})

	pump := newTestPump(env, inbox, nil, dispatcher)
	pump.Pump(context.Background())

	if len(inbox.acks) != 2 {
		t.Errorf("acks = %v, want both messages acknowledged", inbox.acks)
	}
	var stored int64
	env.db.Model(&models.Message{}).Where("type = ?", models.MessageInbound).Count(&stored)
	if stored != 2 {
		t.Errorf("stored inbound messages = %d, want 2", stored)
	}
	var unprocessed int64
	env.db.Model(&models.Message{}).
		Where("type = ? AND processed IS NULL", models.MessageInbound).Count(&unprocessed)
	if unprocessed != 0 {
		t.Errorf("%d inbound messages left unprocessed", unprocessed)
	}
	var links int64
	env.db.Model(&models.InforequestEmail{}).Where("inforequest_id = ?", ir.ID).Count(&links)
	if links != 2 {
		t.Errorf("assigned links = %d, want 2", links)
	}
}

func TestPumpDeduplicatesRedelivery(t *testing.T) {
	env, cleanup := newJobsEnv(t)
	defer cleanup()

	ir := env.newInforequest(t)
	raw := rawFor(ir, 1)
	inbox := &fakeInbound{queue: []*transport.RawMessage{raw}}
	pump := newTestPump(env, inbox, nil, events.NewDispatcher(zap.NewNop()))

	pump.Pump(context.Background())

	// The transport forgot the ack and hands the same message over again.
	redelivered := *raw
	inbox.queue = []*transport.RawMessage{&redelivered}
	pump.Pump(context.Background())

	var stored int64
	env.db.Model(&models.Message{}).Where("type = ?", models.MessageInbound).Count(&stored)
	if stored != 1 {
		t.Errorf("stored inbound messages = %d, want 1", stored)
	}
	if len(inbox.acks) != 2 {
		t.Errorf("acks = %d, want the duplicate acked too", len(inbox.acks))
	}
}

func TestPumpSubmitsOutbound(t *testing.T) {
	env, cleanup := newJobsEnv(t)
	defer cleanup()

	msg, err := env.mail.EnqueueOutbound("Test Site", "site@mail.test",
		"Subject", "Body", "", []string{"podatelna@example.sk"})
	if err != nil {
		t.Fatalf("EnqueueOutbound failed: %v", err)
	}

	var sentEvents int
	dispatcher := events.NewDispatcher(zap.NewNop())
	dispatcher.Register(events.MessageSent, func(e events.Event) error {
		sentEvents++
		return nil
	})

	out := &fakeOutbound{}
	pump := newTestPump(env, nil, out, dispatcher)
	pump.Pump(context.Background())

	if len(out.submitted) != 1 || out.submitted[0] != msg.ID {
		t.Fatalf("submitted = %v, want [%d]", out.submitted, msg.ID)
	}
	if sentEvents != 1 {
		t.Errorf("sent events = %d, want 1", sentEvents)
	}

	got, err := env.mail.GetMessage(msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.Processed == nil {
		t.Error("message should be marked processed")
	}
	if got.RemoteID != fmt.Sprintf("remote-%d", msg.ID) {
		t.Errorf("remote id = %q", got.RemoteID)
	}
	if len(got.Recipients) != 1 || got.Recipients[0].Status != models.RecipientStatusSent {
		t.Errorf("recipients = %+v, want one sent recipient", got.Recipients)
	}

	// A second cycle finds nothing left to submit.
	pump.Pump(context.Background())
	if len(out.submitted) != 1 {
		t.Errorf("processed message was submitted again: %v", out.submitted)
	}
}

func TestPumpRetriesFailedSubmit(t *testing.T) {
	env, cleanup := newJobsEnv(t)
	defer cleanup()

	msg, err := env.mail.EnqueueOutbound("Test Site", "site@mail.test",
		"Subject", "Body", "", []string{"podatelna@example.sk"})
	if err != nil {
		t.Fatalf("EnqueueOutbound failed: %v", err)
	}

	out := &fakeOutbound{errs: []error{fmt.Errorf("%w: connection refused", services.ErrTransientTransport)}}
	pump := newTestPump(env, nil, out, events.NewDispatcher(zap.NewNop()))

	pump.Pump(context.Background())
	got, _ := env.mail.GetMessage(msg.ID)
	if got.Processed != nil {
		t.Fatal("failed submit must leave the message unprocessed")
	}

	pump.Pump(context.Background())
	got, _ = env.mail.GetMessage(msg.ID)
	if got.Processed == nil {
		t.Error("retry should have succeeded")
	}
	if len(out.submitted) != 2 {
		t.Errorf("submit attempts = %d, want 2", len(out.submitted))
	}
}

func TestPumpRetiresPermanentlyRejected(t *testing.T) {
	env, cleanup := newJobsEnv(t)
	defer cleanup()

	msg, err := env.mail.EnqueueOutbound("Test Site", "site@mail.test",
		"Subject", "Body", "", []string{"podatelna@example.sk"})
	if err != nil {
		t.Fatalf("EnqueueOutbound failed: %v", err)
	}

	var sentEvents int
	dispatcher := events.NewDispatcher(zap.NewNop())
	dispatcher.Register(events.MessageSent, func(e events.Event) error {
		sentEvents++
		return nil
	})

	out := &fakeOutbound{errs: []error{fmt.Errorf("%w: all recipients rejected", services.ErrPermanentTransport)}}
	pump := newTestPump(env, nil, out, dispatcher)
	pump.Pump(context.Background())

	got, err := env.mail.GetMessage(msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.Processed == nil {
		t.Error("permanently rejected message must be marked processed")
	}
	if len(got.Recipients) != 1 || got.Recipients[0].Status != models.RecipientStatusRejected {
		t.Errorf("recipients = %+v, want one rejected recipient", got.Recipients)
	}
	if sentEvents != 0 {
		t.Errorf("sent events = %d, want none for a rejection", sentEvents)
	}

	// The retired message is never offered to the transport again.
	pump.Pump(context.Background())
	if len(out.submitted) != 1 {
		t.Errorf("submit attempts = %d, want 1", len(out.submitted))
	}
}

func TestPumpToleratesMissingTransports(t *testing.T) {
	env, cleanup := newJobsEnv(t)
	defer cleanup()

	if _, err := env.mail.EnqueueOutbound("Test Site", "site@mail.test",
		"Subject", "Body", "", []string{"podatelna@example.sk"}); err != nil {
		t.Fatalf("EnqueueOutbound failed: %v", err)
	}

	pump := newTestPump(env, nil, nil, events.NewDispatcher(zap.NewNop()))
	pump.Pump(context.Background())

	var unprocessed int64
	env.db.Model(&models.Message{}).
		Where("type = ? AND processed IS NULL", models.MessageOutbound).Count(&unprocessed)
	if unprocessed != 1 {
		t.Errorf("message should stay queued with no outbound transport, unprocessed = %d", unprocessed)
	}
}
