package main

import (
	"testing"

	"github.com/md-rashed-zaman/homeaudit/libs/config"
	"github.com/md-rashed-zaman/homeaudit/libs/runtime"
	"github.com/md-rashed-zaman/homeaudit/services/portal-service/internal/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	config.Reset()
	t.Cleanup(config.Reset)
}

func TestEmailSenderSelection(t *testing.T) {
	withEnv(t, map[string]string{"EMAIL_PROVIDER": "smtp", "SMTP_HOST": "mailpit", "SMTP_PORT": "2525"})
	require.IsType(t, &email.SMTPSender{}, newEmailSender(runtime.DiscardLogger()))

	withEnv(t, map[string]string{"EMAIL_PROVIDER": "noop"})
	require.IsType(t, &email.NoopSender{}, newEmailSender(runtime.DiscardLogger()))
}

func TestEmailSenderRejectsBadSMTPPort(t *testing.T) {
	withEnv(t, map[string]string{"EMAIL_PROVIDER": "smtp", "SMTP_PORT": "70000"})
	assert.Panics(t, func() { newEmailSender(runtime.DiscardLogger()) })
}
