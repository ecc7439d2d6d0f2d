package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

// Message is a composed email ready for delivery.
type Message struct {
	ID   string
	From string
	To   []string
	Raw  []byte
}

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Compose builds a multipart/alternative message with a plain text part and
// an HTML part.
func Compose(from *mail.Address, to []*mail.Address, content Content, date time.Time) (*Message, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	h.SetSubject(content.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return nil, fmt.Errorf("read message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}
	if err := writePart(iw, "text/plain", content.Text); err != nil {
		return nil, err
	}
	if err := writePart(iw, "text/html", content.HTML); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}

	rcpts := make([]string, len(to))
	for i, a := range to {
		rcpts[i] = a.Address
	}
	return &Message{ID: id, From: from.Address, To: rcpts, Raw: buf.Bytes()}, nil
}

func writePart(iw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return pw.Close()
}

// SMTPSender relays messages through an SMTP server with STARTTLS when the
// server offers it.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Send delivers msg. PLAIN auth is used only when a username is configured.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if s.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	if err := smtp.SendMail(addr, auth, msg.From, msg.To, msg.Raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
