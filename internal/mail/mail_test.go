package mail

import (
	"context"
	"mime"
	"strings"
	"testing"
	"time"

	"github.com/nikhilbhutani/staffcore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvitation(t *testing.T) {
	m := Invitation("s@example.com", "Acme Staffing", "https://portal.example.com/connect")
	assert.Equal(t, "s@example.com", m.To)
	assert.Contains(t, m.Subject, "Acme Staffing")
	assert.Contains(t, m.Body, "https://portal.example.com/connect")
}

func TestComposeEncodesSubject(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{SMTPAddr: "smtp.example.com:587", From: "noreply@example.com"})
	raw := string(s.compose(Message{To: "a@example.com", Subject: "接続申請", Body: "line1\nline2"},
		time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)))

	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)
	assert.Equal(t, "line1\r\nline2", body)
	assert.Contains(t, head, "To: a@example.com\r\n")

	var subject string
	for _, line := range strings.Split(head, "\r\n") {
		if v, ok := strings.CutPrefix(line, "Subject: "); ok {
			subject = v
		}
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject)
	require.NoError(t, err)
	assert.Equal(t, "接続申請", decoded)
}

func TestNewSenderWithoutSMTP(t *testing.T) {
	s := NewSender(config.MailConfig{})
	assert.IsType(t, LogSender{}, s)
	assert.NoError(t, s.Send(context.Background(), Message{To: "x@example.com"}))
}

func TestSMTPAuthOnlyWithUsername(t *testing.T) {
	assert.Nil(t, NewSMTPSender(config.MailConfig{SMTPAddr: "localhost:25"}).auth)
	assert.NotNil(t, NewSMTPSender(config.MailConfig{SMTPAddr: "localhost:25", Username: "u", Password: "p"}).auth)
}
