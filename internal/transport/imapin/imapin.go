// Package imapin receives mail by polling an IMAP mailbox. Unseen messages
// become RawMessages; Ack flags them seen so the next poll skips them.
package imapin

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	id "github.com/emersion/go-imap-id"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/mmmaly/chcemvediet-sub000/internal/dedup"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport"
	"go.uber.org/zap"
)

// Options configures the mailbox connection.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	Mailbox  string // defaults to INBOX
}

// Transport polls one IMAP mailbox.
type Transport struct {
	opts  Options
	dedup *dedup.Filter // optional
	log   *zap.Logger
}

// New creates an IMAP inbound transport. filter may be nil.
func New(opts Options, filter *dedup.Filter, log *zap.Logger) *Transport {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	return &Transport{opts: opts, dedup: filter, log: log}
}

// connect dials and authenticates, sending the IMAP ID command first for
// servers that require client identification.
func (t *Transport) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", t.opts.Host, t.opts.Port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var c *client.Client
	if t.opts.UseSSL {
		tlsConfig := &tls.Config{ServerName: t.opts.Host}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, err)
		}
	} else {
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, err)
		}
	}

	c.Timeout = 5 * time.Minute

	if ok, _ := c.Support("ID"); ok {
		idClient := id.NewClient(c)
		// Some providers refuse logins from unidentified clients; a
		// failed ID is not fatal for the rest.
		idClient.ID(id.ID{
			id.FieldName:    "chcemvediet",
			id.FieldVersion: "1.0.0",
			id.FieldVendor:  "chcemvediet",
		})
	}

	if err := c.Login(t.opts.Username, t.opts.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: login failed: %v", services.ErrTransientTransport, err)
	}
	return c, nil
}

// Open connects, selects the mailbox and lists the unseen messages. The
// session fetches bodies lazily, one message per Next call.
func (t *Transport) Open(ctx context.Context) (transport.InboundSession, error) {
	c, err := t.connect()
	if err != nil {
		return nil, err
	}

	if _, err := c.Select(t.opts.Mailbox, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: select %s: %v", services.ErrTransientTransport, t.opts.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: search: %v", services.ErrTransientTransport, err)
	}

	return &session{transport: t, client: c, uids: uids}, nil
}

type session struct {
	transport *Transport
	client    *client.Client
	uids      []uint32
	next      int
}

// Next fetches and parses the next unseen message. Messages the dedup
// filter has already seen are skipped without fetching their bodies.
func (s *session) Next(ctx context.Context) (*transport.RawMessage, error) {
	for s.next < len(s.uids) {
		uid := s.uids[s.next]
		s.next++

		raw, err := s.fetchOne(ctx, uid)
		if err != nil {
			s.transport.log.Warn("failed to fetch message",
				zap.Uint32("uid", uid), zap.Error(err))
			continue
		}
		if raw == nil {
			continue
		}
		return raw, nil
	}
	return nil, nil
}

func (s *session) fetchOne(ctx context.Context, uid uint32) (*transport.RawMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}
	messages := make(chan *imap.Message, 1)

	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch uid %d: %v", services.ErrTransientTransport, uid, err)
	}
	if msg == nil || msg.Envelope == nil {
		return nil, nil
	}

	raw := &transport.RawMessage{
		ID:      strconv.FormatUint(uint64(uid), 10),
		Subject: msg.Envelope.Subject,
		Date:    msg.Envelope.Date,
		Headers: make(map[string][]string),
	}
	raw.MessageID = strings.Trim(msg.Envelope.MessageId, "<>")
	if len(msg.Envelope.From) > 0 {
		raw.FromName = msg.Envelope.From[0].PersonalName
		raw.FromMail = msg.Envelope.From[0].Address()
	}
	for _, a := range msg.Envelope.To {
		raw.To = append(raw.To, a.Address())
	}
	for _, a := range msg.Envelope.Cc {
		raw.Cc = append(raw.Cc, a.Address())
	}
	for _, a := range msg.Envelope.Bcc {
		raw.Bcc = append(raw.Bcc, a.Address())
	}

	if s.transport.dedup != nil && raw.MessageID != "" {
		isNew, err := s.transport.dedup.IsNew(ctx, raw.MessageID)
		if err != nil {
			s.transport.log.Warn("dedup check failed", zap.Error(err))
		} else if !isNew {
			return nil, nil
		}
	}

	body := msg.GetBody(section)
	if body != nil {
		entity, err := message.Read(body)
		if err == nil {
			for k, v := range entity.Header.Map() {
				raw.Headers[k] = v
			}
			if dt := entity.Header.Get("Delivered-To"); dt != "" {
				raw.ReceivedFor = strings.ToLower(dt)
			} else if xo := entity.Header.Get("X-Original-To"); xo != "" {
				raw.ReceivedFor = strings.ToLower(xo)
			}
			transport.ParseEntity(entity, raw)
		}
	}

	return raw, nil
}

// Ack flags the message seen so it is not delivered again.
func (s *session) Ack(ctx context.Context, id string) error {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid message id %q", id)
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := s.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("%w: store seen flag: %v", services.ErrTransientTransport, err)
	}
	return nil
}

func (s *session) Close() error {
	return s.client.Logout()
}
