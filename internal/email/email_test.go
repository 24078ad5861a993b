package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRenderMagicLink(t *testing.T) {
	msg, err := RenderMagicLink(MagicLinkVars{
		Email: "ana@example.com",
		Link:  "https://portal.example.com/auth/magic-link/redeem?token=a&b=<x>",
		TTL:   "15m0s",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, magicLinkSubject, msg.Subject)
	assert.Contains(t, msg.TextBody, "token=a&b=<x>")
	assert.Contains(t, msg.HTMLBody, "token=a&amp;b=")
	assert.NotContains(t, msg.HTMLBody, "<x>")
	assert.Contains(t, msg.HTMLBody, "15m0s")
}

func TestOutbox(t *testing.T) {
	var o Outbox
	_, ok := o.Last()
	assert.False(t, ok)

	require.NoError(t, o.Send(context.Background(), Message{To: "a@x.io"}))
	require.NoError(t, o.Send(context.Background(), Message{To: "b@x.io"}))
	last, ok := o.Last()
	require.True(t, ok)
	assert.Equal(t, "b@x.io", last.To)
	assert.Len(t, o.Messages(), 2)

	o.Err = errors.New("boom")
	assert.Error(t, o.Send(context.Background(), Message{}))
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := LogSender{Logger: zap.New(core)}
	require.NoError(t, s.Send(context.Background(), Message{To: "ana@example.com", Subject: "s", TextBody: "link"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "example.com", logs.All()[0].ContextMap()["email_domain"])
}

func TestNewSMTPSender_Validation(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{})
	assert.Error(t, err)
	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "auto", s.cfg.TLSMode)

	m := s.message(Message{To: "ana@example.com", Subject: "hi", TextBody: "t", HTMLBody: "<b>h</b>"})
	assert.Equal(t, []string{"ana@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"no-reply@example.com"}, m.GetHeader("From"))
}

func TestSMTPSend_CanceledContext(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "a@b.c"})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "x@y.z"}), context.Canceled)
}
