// Package smtpin receives mail by running an SMTP server on the unique-email
// domain. Accepted messages queue in memory until the mail pump drains them
// into the durable message store.
package smtpin

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport"
	"go.uber.org/zap"
)

// Server accepts mail for one domain and hands it to the pump.
type Server struct {
	server *gosmtp.Server
	queue  chan *transport.RawMessage
	domain string
	log    *zap.Logger
}

// NewServer creates a receiving SMTP server for the given domain. queueSize
// bounds how much mail may wait for the pump; a full queue makes the server
// answer 451 so the sender retries.
func NewServer(addr, domain string, queueSize int, log *zap.Logger) *Server {
	s := &Server{
		queue:  make(chan *transport.RawMessage, queueSize),
		domain: strings.ToLower(domain),
		log:    log,
	}

	server := gosmtp.NewServer(&backend{server: s})
	server.Addr = addr
	server.Domain = s.domain
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = 10 * 1024 * 1024
	server.MaxRecipients = 10
	server.AllowInsecureAuth = true

	s.server = server
	return s
}

// Start listens and blocks until the server is closed.
func (s *Server) Start() error {
	s.log.Info("smtp server listening", zap.String("addr", s.server.Addr), zap.String("domain", s.domain))
	return s.server.ListenAndServe()
}

// Close stops the listener.
func (s *Server) Close() error {
	return s.server.Close()
}

// Open returns a session over the already-accepted queue.
func (s *Server) Open(ctx context.Context) (transport.InboundSession, error) {
	return &inSession{queue: s.queue}, nil
}

type inSession struct {
	queue chan *transport.RawMessage
}

// Next drains one queued message; nil when the queue is empty.
func (s *inSession) Next(ctx context.Context) (*transport.RawMessage, error) {
	select {
	case raw := <-s.queue:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, nil
	}
}

// Ack is a no-op; the message was already accepted with 250 at SMTP time.
func (s *inSession) Ack(ctx context.Context, id string) error {
	return nil
}

func (s *inSession) Close() error {
	return nil
}

type backend struct {
	server *Server
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &smtpSession{server: b.server}, nil
}

// smtpSession handles one incoming delivery.
type smtpSession struct {
	server *Server
	from   string
	to     []string
}

func (s *smtpSession) AuthPlain(username, password string) error {
	// Receiving mail needs no authentication.
	return nil
}

func (s *smtpSession) Mail(from string, opts *gosmtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt accepts recipients on our domain only.
func (s *smtpSession) Rcpt(to string, opts *gosmtp.RcptOptions) error {
	address := strings.ToLower(transport.ExtractEmail(to))
	if !strings.HasSuffix(address, "@"+s.server.domain) {
		return &gosmtp.SMTPError{
			Code:    550,
			Message: fmt.Sprintf("relay not permitted for %s", address),
		}
	}
	s.to = append(s.to, address)
	return nil
}

// Data parses the delivery and queues it for the pump.
func (s *smtpSession) Data(r io.Reader) error {
	entity, err := message.Read(r)
	if err != nil {
		s.server.log.Warn("failed to parse incoming mail", zap.Error(err))
		return &gosmtp.SMTPError{Code: 554, Message: "unparseable message"}
	}

	raw := &transport.RawMessage{
		ID:      uuid.NewString(),
		Subject: transport.DecodeHeader(entity.Header.Get("Subject")),
		Headers: make(map[string][]string),
	}
	for k, v := range entity.Header.Map() {
		raw.Headers[k] = v
	}
	raw.MessageID = strings.Trim(entity.Header.Get("Message-Id"), "<>")
	if raw.MessageID == "" {
		raw.MessageID = strings.Trim(entity.Header.Get("Message-ID"), "<>")
	}

	from := entity.Header.Get("From")
	if from == "" {
		from = s.from
	}
	raw.FromMail = strings.ToLower(transport.ExtractEmail(from))
	if i := strings.Index(from, "<"); i > 0 {
		raw.FromName = transport.DecodeHeader(strings.TrimSpace(from[:i]))
	}

	for _, addr := range strings.Split(entity.Header.Get("To"), ",") {
		if a := strings.ToLower(transport.ExtractEmail(addr)); a != "" {
			raw.To = append(raw.To, a)
		}
	}
	for _, addr := range strings.Split(entity.Header.Get("Cc"), ",") {
		if a := strings.ToLower(transport.ExtractEmail(addr)); a != "" {
			raw.Cc = append(raw.Cc, a)
		}
	}
	if date, err := mail.ParseDate(entity.Header.Get("Date")); err == nil {
		raw.Date = date
	} else {
		raw.Date = time.Now()
	}
	// The envelope recipient beats the To header for routing.
	if len(s.to) > 0 {
		raw.ReceivedFor = s.to[0]
	}

	transport.ParseEntity(entity, raw)

	select {
	case s.server.queue <- raw:
	default:
		return &gosmtp.SMTPError{
			Code:    451,
			Message: "queue full, try again later",
		}
	}

	s.server.log.Debug("queued incoming mail",
		zap.String("from", raw.FromMail),
		zap.String("received_for", raw.ReceivedFor))
	return nil
}

func (s *smtpSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *smtpSession) Logout() error {
	return nil
}
