package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "file", cfg.CommunityStore)
	assert.Equal(t, "comunidades", cfg.CommunitiesDir)
	assert.Equal(t, "webhook", cfg.TelegramMode)
	assert.Equal(t, 10*time.Minute, cfg.IntentTTL)
	assert.Equal(t, 8, cfg.DispatchWorkers)
	assert.Equal(t, 10*time.Second, cfg.ChannelTimeout)
	assert.False(t, cfg.VoiceEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_MODE", "POLLING")
	t.Setenv("INTENT_TTL", "90s")
	t.Setenv("DISPATCH_WORKERS", "3")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "polling", cfg.TelegramMode)
	assert.Equal(t, 90*time.Second, cfg.IntentTTL)
	assert.Equal(t, 3, cfg.DispatchWorkers)
	assert.True(t, cfg.VoiceEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "Missing bot token",
			env:  map[string]string{},
		},
		{
			name: "Unknown telegram mode",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "t", "TELEGRAM_MODE": "push"},
		},
		{
			name: "Azure store without account",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "t", "COMMUNITY_STORE": "azure"},
		},
		{
			name: "Partial Twilio credentials",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "t", "TWILIO_ACCOUNT_SID": "AC1"},
		},
		{
			name: "Operator email without SMTP",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "t", "OPERATOR_EMAIL": "ops@example.com"},
		},
		{
			name: "Zero workers",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "t", "DISPATCH_WORKERS": "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_BOT_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}
