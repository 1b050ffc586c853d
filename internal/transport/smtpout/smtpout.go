// Package smtpout submits outbound mail through an SMTP relay.
package smtpout

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
	"github.com/mmmaly/chcemvediet-sub000/internal/transport"
	"go.uber.org/zap"
)

const submitTimeout = 60 * time.Second

// Options configures the relay connection.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
}

// Transport submits messages over net/smtp. Attachments are loaded from the
// registry by the message's owner reference.
type Transport struct {
	opts        Options
	attachments *services.AttachmentService
	log         *zap.Logger
}

// New creates an outbound SMTP transport.
func New(opts Options, attachments *services.AttachmentService, log *zap.Logger) *Transport {
	return &Transport{opts: opts, attachments: attachments, log: log}
}

// Submit composes and sends one message. The whole submission runs under a
// timeout; a timed-out or refused connection is reported transient so the
// pump retries the message next cycle.
func (t *Transport) Submit(ctx context.Context, msg *models.Message, recipients []models.Recipient) (*transport.SubmitResult, error) {
	content, err := t.buildContent(msg, recipients)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		result *transport.SubmitResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := t.send(msg, recipients, content)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-time.After(submitTimeout):
		return nil, fmt.Errorf("%w: submit timed out after %v", services.ErrTransientTransport, submitTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, ctx.Err())
	}
}

// send performs the SMTP dialogue. Recipients rejected at RCPT time are
// recorded as such; the message still goes out to the rest.
func (t *Transport) send(msg *models.Message, recipients []models.Recipient, content []byte) (*transport.SubmitResult, error) {
	addr := fmt.Sprintf("%s:%d", t.opts.Host, t.opts.Port)

	var client *smtp.Client
	if t.opts.UseSSL {
		tlsConfig := &tls.Config{ServerName: t.opts.Host}
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, err)
		}
		client, err = smtp.NewClient(conn, t.opts.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, err)
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrTransientTransport, err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{ServerName: t.opts.Host}
			client.StartTLS(tlsConfig)
		}
	}
	defer client.Close()

	if t.opts.Username != "" {
		auth := smtp.Auth(smtp.PlainAuth("", t.opts.Username, t.opts.Password, t.opts.Host))
		if err := client.Auth(auth); err != nil {
			// Some relays only speak LOGIN.
			auth = newLoginAuth(t.opts.Username, t.opts.Password)
			if err2 := client.Auth(auth); err2 != nil {
				return nil, fmt.Errorf("%w: authentication failed (tried PLAIN and LOGIN): %v", services.ErrTransientTransport, err)
			}
		}
	}

	if err := client.Mail(msg.FromMail); err != nil {
		return nil, fmt.Errorf("%w: MAIL FROM failed: %v", services.ErrTransientTransport, err)
	}

	result := &transport.SubmitResult{RemoteID: uuid.NewString()}
	accepted := 0
	for _, r := range recipients {
		rr := transport.RecipientResult{Mail: r.Mail, Status: models.RecipientStatusSent}
		if err := client.Rcpt(r.Mail); err != nil {
			rr.Status = models.RecipientStatusRejected
			rr.Details = err.Error()
		} else {
			accepted++
		}
		result.Recipients = append(result.Recipients, rr)
	}
	if accepted == 0 {
		return nil, fmt.Errorf("%w: all recipients rejected", services.ErrPermanentTransport)
	}

	w, err := client.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: DATA failed: %v", services.ErrTransientTransport, err)
	}
	if _, err := w.Write(content); err != nil {
		return nil, fmt.Errorf("%w: write failed: %v", services.ErrTransientTransport, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: close failed: %v", services.ErrTransientTransport, err)
	}

	// The message is out; some relays answer QUIT oddly, ignore it.
	client.Quit()

	t.log.Debug("submitted message",
		zap.Uint("id", msg.ID),
		zap.String("remote_id", result.RemoteID),
		zap.Int("recipients", accepted))
	return result, nil
}

// buildContent renders the RFC 5322 message with MIME parts for html and
// attachments.
func (t *Transport) buildContent(msg *models.Message, recipients []models.Recipient) ([]byte, error) {
	atts, err := t.attachments.ListByOwner(models.OwnerMessage, services.RecordOwnerID(msg.ID))
	if err != nil {
		return nil, err
	}

	var to, cc []string
	for _, r := range recipients {
		switch r.Kind {
		case models.RecipientCc:
			cc = append(cc, r.Mail)
		case models.RecipientBcc:
			// Bcc stays out of the headers.
		default:
			to = append(to, r.Mail)
		}
	}

	var buf bytes.Buffer
	if msg.FromName != "" {
		buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", msg.FromName, msg.FromMail))
	} else {
		buf.WriteString(fmt.Sprintf("From: %s\r\n", msg.FromMail))
	}
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	if len(cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(cc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: =?UTF-8?B?%s?=\r\n", base64.StdEncoding.EncodeToString([]byte(msg.Subject))))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", msg.MessageID))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(atts) > 0 {
		mixedBoundary := generateBoundary()
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", mixedBoundary))

		buf.WriteString(fmt.Sprintf("--%s\r\n", mixedBoundary))
		t.writeBody(&buf, msg)

		for i := range atts {
			content, err := t.attachments.Content(&atts[i])
			if err != nil {
				return nil, err
			}
			contentType := atts[i].ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			encodedName := fmt.Sprintf("=?UTF-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(atts[i].Name)))
			buf.WriteString(fmt.Sprintf("--%s\r\n", mixedBoundary))
			buf.WriteString(fmt.Sprintf("Content-Type: %s; name=\"%s\"\r\n", contentType, encodedName))
			buf.WriteString("Content-Transfer-Encoding: base64\r\n")
			buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n\r\n", encodedName))
			buf.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(content)))
			buf.WriteString("\r\n")
		}
		buf.WriteString(fmt.Sprintf("--%s--\r\n", mixedBoundary))
	} else {
		t.writeBody(&buf, msg)
	}

	return buf.Bytes(), nil
}

// writeBody writes the text/html alternative block including its own
// Content-Type header.
func (t *Transport) writeBody(buf *bytes.Buffer, msg *models.Message) {
	if msg.HTML != "" {
		boundary := generateBoundary()
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary))

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		buf.WriteString(wrapBase64(base64.StdEncoding.EncodeToString([]byte(msg.Text))))
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		buf.WriteString(wrapBase64(base64.StdEncoding.EncodeToString([]byte(msg.HTML))))
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
		return
	}

	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	buf.WriteString(wrapBase64(base64.StdEncoding.EncodeToString([]byte(msg.Text))))
	buf.WriteString("\r\n")
}

// generateBoundary generates a MIME boundary.
func generateBoundary() string {
	return fmt.Sprintf("----=_Part_%d_%s", time.Now().UnixNano(), strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// wrapBase64 wraps base64 content to 76 characters per line.
func wrapBase64(content string) string {
	const lineLength = 76
	var result strings.Builder
	for i := 0; i < len(content); i += lineLength {
		end := i + lineLength
		if end > len(content) {
			end = len(content)
		}
		result.WriteString(content[i:end])
		if end < len(content) {
			result.WriteString("\r\n")
		}
	}
	return result.String()
}

// loginAuth implements smtp.Auth for LOGIN authentication, which some
// relays require instead of PLAIN.
type loginAuth struct {
	username, password string
}

func newLoginAuth(username, password string) smtp.Auth {
	return &loginAuth{username, password}
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", []byte{}, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		switch strings.ToLower(strings.TrimSpace(string(fromServer))) {
		case "username:":
			return []byte(a.username), nil
		case "password:":
			return []byte(a.password), nil
		default:
			decoded, err := base64.StdEncoding.DecodeString(string(fromServer))
			if err == nil {
				switch strings.ToLower(strings.TrimSuffix(string(decoded), ":")) {
				case "username":
					return []byte(a.username), nil
				case "password":
					return []byte(a.password), nil
				}
			}
			return nil, fmt.Errorf("unexpected server challenge: %s", fromServer)
		}
	}
	return nil, nil
}
