// Package mail sends the counterparty invitation messages.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/nikhilbhutani/staffcore/internal/config"
)

type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPSender delivers over SMTP with PLAIN auth when a username is set.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	s := &SMTPSender{addr: cfg.SMTPAddr, from: cfg.From}
	if cfg.Username != "" {
		host, _, _ := net.SplitHostPort(cfg.SMTPAddr)
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{m.To}, s.compose(m, time.Now())); err != nil {
		return fmt.Errorf("send mail to %s: %w", m.To, err)
	}
	return nil
}

func (s *SMTPSender) compose(m Message, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogSender writes messages to the log instead of delivering them. It
// stands in when no SMTP server is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m Message) error {
	slog.Info("mail not delivered, no smtp server configured", "to", m.To, "subject", m.Subject)
	return nil
}

// NewSender picks the SMTP sender when an address is configured.
func NewSender(cfg config.MailConfig) Sender {
	if cfg.SMTPAddr == "" {
		return LogSender{}
	}
	return NewSMTPSender(cfg)
}
