package mail

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		subject string
		want    string
		ok      bool
	}{
		{"Re: RCA Bot Alert ab12", "ab12", true},
		{"RE: re: Fwd: RCA Bot Alert 9f3c", "9f3c", true},
		{"fw: RCA Bot Alert AB12", "ab12", true},
		{"RCA Bot Alert ab12", "ab12", true},
		{"Re: RCA Bot Alert", "", false},
		{"Re: RCA Bot Alert zz12", "", false},
		{"Re: RCA Bot Alert ab123", "", false},
		{"", "", false},
		{"Re:", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, ok := ExtractToken(tt.subject)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripReplyPrefixes(t *testing.T) {
	assert.Equal(t, "Alert", StripReplyPrefixes("Re: FWD:  fw:Alert"))
	assert.Equal(t, "Regarding the alert", StripReplyPrefixes("Regarding the alert"))
}

func TestNewToken(t *testing.T) {
	for i := 0; i < 50; i++ {
		tok := NewToken()
		assert.True(t, IsToken(tok), tok)
		got, ok := ExtractToken("Re: " + TaggedSubject("RCA Bot Alert", tok))
		assert.True(t, ok)
		assert.Equal(t, tok, got)
	}
}

func TestReplyText(t *testing.T) {
	body := "YES\r\n\r\nOn Tue, 18 Nov 2025 at 10:00, RCA Bot <bot@example.com> wrote:\r\n> Please approve"
	assert.Equal(t, "YES", ReplyText(body))

	assert.Equal(t, "no thanks", ReplyText("  no thanks \n> YES"))
	assert.Equal(t, "maybe\nlater", ReplyText("maybe\nlater\n-----Original Message-----\nYES"))
}

func TestPlainText_Multipart(t *testing.T) {
	raw := strings.Join([]string{
		"From: ops@example.com",
		"To: bot@example.com",
		"Subject: Re: RCA Bot Alert ab12",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>YES</p>",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"YES",
		"--b1--",
		"",
	}, "\r\n")

	text, err := PlainText(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "YES", strings.TrimSpace(text))
}

func TestPlainText_SinglePart(t *testing.T) {
	raw := "Subject: hi\r\nContent-Type: text/plain\r\n\r\nmaybe\r\n"
	text, err := PlainText(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "maybe", strings.TrimSpace(text))
}

func TestPlainText_HTMLOnly(t *testing.T) {
	raw := "Subject: hi\r\nContent-Type: text/html\r\n\r\n<b>YES</b>\r\n"
	text, err := PlainText(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Contains(t, text, "<b>YES</b>")
}

func TestSMTPSender_Build(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "bot@example.com"}, zaptest.NewLogger(t).Sugar())

	m, err := s.build(Message{To: "dev@example.com", Subject: "RCA Bot Alert ab12", Body: "Reply YES to restart"})
	require.NoError(t, err)

	assert.Equal(t, []string{"<dev@example.com>"}, m.GetToString())
	assert.Equal(t, []string{"RCA Bot Alert ab12"}, m.GetGenHeader(gomail.HeaderSubject))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Reply YES to restart")
	assert.Contains(t, buf.String(), "bot@example.com")
}

func TestSMTPSender_BuildErrors(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "bot@example.com"}, nil)

	_, err := s.build(Message{Subject: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = s.build(Message{To: "not an address", Subject: "x"})
	assert.Error(t, err)
}
