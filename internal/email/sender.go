package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/herald/api/internal/config"
)

// Message is a rendered email ready for delivery.
type Message struct {
	From     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := msg.From
	if from == "" {
		from = s.from
	}
	envelopeFrom := from
	if addr, err := mail.ParseAddress(from); err == nil {
		envelopeFrom = addr.Address
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	err := smtp.SendMail(addr, auth, envelopeFrom, []string{msg.To}, buildMessage(from, msg))
	if err != nil {
		slog.Error("failed to send email", "component", "email", "to", msg.To, "error", err)
		return err
	}

	slog.Info("sent email", "component", "email", "to", msg.To, "subject", msg.Subject)
	return nil
}

func buildMessage(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")

	body := strings.ReplaceAll(msg.TextBody, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")

	if msg.HTMLBody != "" {
		b.WriteString("Content-Type: multipart/alternative; boundary=\"boundary\"\r\n")
		b.WriteString("\r\n")
		b.WriteString("--boundary\r\n")
		b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(body + "\r\n")
		b.WriteString("--boundary\r\n")
		b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(msg.HTMLBody + "\r\n")
		b.WriteString("--boundary--\r\n")
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(body + "\r\n")
	}
	return []byte(b.String())
}

type NoOpSender struct{}

func (s *NoOpSender) Send(ctx context.Context, msg Message) error {
	slog.Debug("would send email", "component", "email", "to", msg.To, "subject", msg.Subject)
	return nil
}
