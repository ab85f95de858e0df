package infoshare

import (
	"errors"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// DefaultTestConfig returns a valid config using the gateway, with
// google sheets disabled and quiet loggers
func DefaultTestConfig(t testing.TB) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Discord.Token = "discord-token-" + t.Name()
	cfg.Discord.ApplicationID = "app-id"
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.Development = true
	cfg.Discord.WebhookServer.Listen = "127.0.0.1:0"

	logLevel := slog.LevelWarn
	cfg.LogLevel.Set(logLevel)
	cfg.Discord.LogLevel.Set(logLevel)
	cfg.Discord.DiscordGoLogLevel.Set(logLevel)
	cfg.Discord.WebhookServer.LogLevel.Set(logLevel)
	cfg.Sheets.LogLevel.Set(logLevel)
	return cfg
}

func TestValidateDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err, "token should be required")

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
	require.Len(t, validationErrs, 1)
	assert.Equal(t, "Token", validationErrs[0].Field())

	require.NoError(t, DefaultTestConfig(t).Validate())
}

func TestConfigValidation(t *testing.T) {
	pubkey, _ := generateDiscordKey(t)

	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantTag string
	}{
		{
			name:    "no categories",
			modify:  func(cfg *Config) { cfg.Categories = nil },
			wantTag: "required",
		},
		{
			name: "too many categories",
			modify: func(cfg *Config) {
				cfg.Categories = make([]string, 26)
				for i := range cfg.Categories {
					cfg.Categories[i] = strings.Repeat("x", i+1)
				}
			},
			wantTag: "max",
		},
		{
			name:    "duplicate categories",
			modify:  func(cfg *Config) { cfg.Categories = []string{"a", "b", "a"} },
			wantTag: "unique",
		},
		{
			name:    "blank category",
			modify:  func(cfg *Config) { cfg.Categories = []string{"a", ""} },
			wantTag: "required",
		},
		{
			name:    "long category",
			modify:  func(cfg *Config) { cfg.Categories = []string{strings.Repeat("分", 81)} },
			wantTag: "max",
		},
		{
			name: "no way to receive interactions",
			modify: func(cfg *Config) {
				cfg.Discord.GatewayEnabled = false
				cfg.Discord.WebhookServer.Enabled = false
			},
			wantTag: "gateway_or_webhook",
		},
		{
			name: "webhook without public key",
			modify: func(cfg *Config) {
				cfg.Discord.WebhookServer.Enabled = true
			},
			wantTag: "required_if",
		},
		{
			name: "webhook with bad public key",
			modify: func(cfg *Config) {
				cfg.Discord.WebhookServer.Enabled = true
				cfg.Discord.WebhookServer.PublicKey = "not-a-key"
			},
			wantTag: "hexadecimal",
		},
		{
			name: "webhook bad network",
			modify: func(cfg *Config) {
				cfg.Discord.WebhookServer.Enabled = true
				cfg.Discord.WebhookServer.PublicKey = pubkey
				cfg.Discord.WebhookServer.ListenNetwork = "udp"
			},
			wantTag: "oneof",
		},
		{
			name:    "ssl cert without key",
			modify:  func(cfg *Config) { cfg.Discord.WebhookServer.SSL.CertFile = "cert.pem" },
			wantTag: "required_with",
		},
		{
			name:    "short startup timeout",
			modify:  func(cfg *Config) { cfg.StartupTimeout = time.Millisecond },
			wantTag: "min",
		},
		{
			name:    "negative sheets rate",
			modify:  func(cfg *Config) { cfg.Sheets.MaxWritesPerSecond = -1 },
			wantTag: "min",
		},
		{
			name:    "no worksheet",
			modify:  func(cfg *Config) { cfg.Sheets.WorksheetName = "" },
			wantTag: "required",
		},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				cfg := DefaultTestConfig(t)
				tc.modify(cfg)
				err := cfg.Validate()
				require.Error(t, err)

				var validationErrs validator.ValidationErrors
				require.True(t, errors.As(err, &validationErrs), err.Error())
				tags := make([]string, 0, len(validationErrs))
				for _, fe := range validationErrs {
					tags = append(tags, fe.Tag())
				}
				assert.Contains(t, tags, tc.wantTag)
			},
		)
	}
}

func TestConfigValidation_Webhook(t *testing.T) {
	pubkey, _ := generateDiscordKey(t)
	cfg := DefaultTestConfig(t)
	cfg.Discord.GatewayEnabled = false
	cfg.Discord.WebhookServer.Enabled = true
	cfg.Discord.WebhookServer.PublicKey = pubkey
	assert.NoError(t, cfg.Validate())
}

func TestConfigurationError(t *testing.T) {
	inner := errors.New("boom")
	err := &ConfigurationError{Err: inner}
	assert.Equal(t, "configuration error: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestSheetsConfig_Enabled(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Sheets.Enabled())
	cfg.Sheets.SpreadsheetID = "abc"
	assert.True(t, cfg.Sheets.Enabled())
}

func TestDefaultConfig_Categories(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultCategories, cfg.Categories)

	// the default list must not be shared
	cfg.Categories[0] = "changed"
	assert.NotEqual(t, "changed", DefaultCategories[0])
}

func TestConfig_LogValueRedactsToken(t *testing.T) {
	cfg := DefaultTestConfig(t)
	cfg.Discord.Token = "super-secret"

	var buf strings.Builder
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logger.Info("config", "config", cfg)

	out := buf.String()
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "[redacted]")
	assert.Contains(t, out, "startup_timeout")
}
