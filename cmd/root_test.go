package cmd

import (
	"fmt"
	"github.com/May-aiworks/discord-info-bot/infoshare"
	"github.com/bwmarrin/discordgo"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// resetConfig clears the environment, viper and the global config,
// restoring all of them when the test finishes.
func resetConfig(t testing.TB) {
	t.Helper()

	originalEnv := os.Environ()
	originalConfigFile := configFile
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				_ = os.Setenv(parts[0], parts[1])
			}
			viper.Reset()
			cfg = infoshare.DefaultConfig()
			configFile = originalConfigFile
		},
	)

	os.Clearenv()
	viper.Reset()
	cfg = infoshare.DefaultConfig()
}

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	resetConfig(t)

	tmpdir := t.TempDir()
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
# General config

INFOSHARE_LOG_LEVEL=DEBUG
INFOSHARE_STARTUP_TIMEOUT=15s
INFOSHARE_SHUTDOWN_TIMEOUT=45s
INFOSHARE_DEVELOPMENT=true
INFOSHARE_CATEGORIES=技術文章, 工具推薦 ,AI 新聞

# Discord bot config

INFOSHARE_DISCORD_TOKEN=your-discord-bot-token
INFOSHARE_DISCORD_APPLICATION_ID=your-discord-bot-app-id
INFOSHARE_DISCORD_GUILD_ID=1234
INFOSHARE_DISCORD_GATEWAY_ENABLED=false
INFOSHARE_DISCORD_LOG_LEVEL=ERROR
INFOSHARE_DISCORD_DISCORDGO_LOG_LEVEL=INFO
INFOSHARE_DISCORD_GATEWAY_INTENTS=513

# Discord webhook server

INFOSHARE_DISCORD_WEBHOOK_SERVER_ENABLED=true
INFOSHARE_DISCORD_WEBHOOK_SERVER_LISTEN=127.0.0.1:5002
INFOSHARE_DISCORD_WEBHOOK_SERVER_SSL_CERT_FILE=/etc/ssl/cert.pem
INFOSHARE_DISCORD_WEBHOOK_SERVER_SSL_KEY_FILE=/etc/ssl/cert.key
INFOSHARE_DISCORD_WEBHOOK_SERVER_SSL_TLS_MIN_VERSION=772
INFOSHARE_DISCORD_WEBHOOK_SERVER_LOG_LEVEL=WARN
INFOSHARE_DISCORD_WEBHOOK_SERVER_PUBLIC_KEY=abcdef
INFOSHARE_DISCORD_WEBHOOK_SERVER_READ_TIMEOUT=6s
INFOSHARE_DISCORD_WEBHOOK_SERVER_READ_HEADER_TIMEOUT=7s
INFOSHARE_DISCORD_WEBHOOK_SERVER_WRITE_TIMEOUT=11s
INFOSHARE_DISCORD_WEBHOOK_SERVER_IDLE_TIMEOUT=31s

# Google Sheets

INFOSHARE_SHEETS_SPREADSHEET_ID=sheet-id
INFOSHARE_SHEETS_WORKSHEET_NAME=Submissions
INFOSHARE_SHEETS_CREDENTIALS_FILE=/etc/infoshare/sa.json
INFOSHARE_SHEETS_WRITE_TIMEOUT=20s
INFOSHARE_SHEETS_MAX_WRITES_PER_SECOND=0.5
INFOSHARE_SHEETS_LOG_LEVEL=DEBUG
`

	err := os.WriteFile(envFile, []byte(envContent), 0644)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assertLogLevel(t, slog.LevelDebug, viper.Get("log_level"))
	assert.Equal(t, 15*time.Second, viper.GetDuration("startup_timeout"))
	assert.Equal(t, 45*time.Second, viper.GetDuration("shutdown_timeout"))
	assert.True(t, viper.GetBool("development"))
	assert.Equal(
		t,
		[]string{"技術文章", "工具推薦", "AI 新聞"},
		viper.GetStringSlice("categories"),
	)

	assert.Equal(t, "your-discord-bot-token", viper.GetString("discord.token"))
	assertLogLevel(t, slog.LevelError, viper.Get("discord.log_level"))
	assertLogLevel(t, slog.LevelInfo, viper.Get("discord.discordgo_log_level"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.webhook_server.log_level"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("sheets.log_level"))

	assert.Equal(t, []string{"技術文章", "工具推薦", "AI 新聞"}, cfg.Categories)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel.Level())
	assert.Equal(t, 15*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 45*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Development)

	assert.Equal(t, "your-discord-bot-token", cfg.Discord.Token)
	assert.Equal(t, "your-discord-bot-app-id", cfg.Discord.ApplicationID)
	assert.Equal(t, "1234", cfg.Discord.GuildID)
	assert.False(t, cfg.Discord.GatewayEnabled)
	assert.Equal(t, slog.LevelError, cfg.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelInfo, cfg.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, discordgo.Intent(513), cfg.Discord.GatewayIntents)

	webhook := cfg.Discord.WebhookServer
	assert.True(t, webhook.Enabled)
	assert.Equal(t, "127.0.0.1:5002", webhook.Listen)
	assert.Equal(t, "tcp", webhook.ListenNetwork)
	assert.Equal(t, "/etc/ssl/cert.pem", webhook.SSL.CertFile)
	assert.Equal(t, "/etc/ssl/cert.key", webhook.SSL.KeyFile)
	assert.Equal(t, uint16(772), webhook.SSL.TLSMinVersion)
	assert.Equal(t, slog.LevelWarn, webhook.LogLevel.Level())
	assert.Equal(t, "abcdef", webhook.PublicKey)
	assert.Equal(t, 6*time.Second, webhook.ReadTimeout)
	assert.Equal(t, 7*time.Second, webhook.ReadHeaderTimeout)
	assert.Equal(t, 11*time.Second, webhook.WriteTimeout)
	assert.Equal(t, 31*time.Second, webhook.IdleTimeout)

	assert.Equal(t, "sheet-id", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "Submissions", cfg.Sheets.WorksheetName)
	assert.Equal(t, "/etc/infoshare/sa.json", cfg.Sheets.CredentialsFile)
	assert.Equal(t, 20*time.Second, cfg.Sheets.WriteTimeout)
	assert.Equal(t, 0.5, cfg.Sheets.MaxWritesPerSecond)
	assert.Equal(t, slog.LevelDebug, cfg.Sheets.LogLevel.Level())
	assert.True(t, cfg.Sheets.Enabled())

	require.NoError(t, cfg.Validate())
}

func TestConfigDefaults(t *testing.T) {
	resetConfig(t)

	rootCmd.SetArgs([]string{"--config=/nonexistent/.env", "version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, infoshare.DefaultCategories, cfg.Categories)
	assert.True(t, cfg.Discord.GatewayEnabled)
	assert.False(t, cfg.Discord.WebhookServer.Enabled)
	assert.Equal(t, infoshare.DefaultDiscordGatewayIntent, cfg.Discord.GatewayIntents)
	assert.Equal(t, infoshare.DefaultSheetsWorksheetName, cfg.Sheets.WorksheetName)
	assert.Equal(t, infoshare.DefaultSheetsCredentialsFile, cfg.Sheets.CredentialsFile)
	assert.Equal(t, infoshare.DefaultSheetsWriteTimeout, cfg.Sheets.WriteTimeout)
	assert.False(t, cfg.Sheets.Enabled())
	assert.Equal(t, infoshare.DefaultLogLevel, cfg.LogLevel.Level())

	// the token is the only thing missing
	var cfgErr *infoshare.ConfigurationError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Contains(t, cfgErr.Error(), "Token")
}

func TestLegacyEnvAliases(t *testing.T) {
	t.Run(
		"alias only", func(t *testing.T) {
			resetConfig(t)
			t.Setenv("DISCORD_TOKEN", "legacy-token")
			t.Setenv("SPREADSHEET_ID", "legacy-sheet")
			t.Setenv("WORKSHEET_NAME", "Legacy")
			t.Setenv("GOOGLE_CREDENTIALS_FILE", "/tmp/legacy.json")

			rootCmd.SetArgs([]string{"--config=/nonexistent/.env", "version"})
			require.NoError(t, rootCmd.Execute())

			assert.Equal(t, "legacy-token", cfg.Discord.Token)
			assert.Equal(t, "legacy-sheet", cfg.Sheets.SpreadsheetID)
			assert.Equal(t, "Legacy", cfg.Sheets.WorksheetName)
			assert.Equal(t, "/tmp/legacy.json", cfg.Sheets.CredentialsFile)
		},
	)

	t.Run(
		"prefixed wins", func(t *testing.T) {
			resetConfig(t)
			t.Setenv("DISCORD_TOKEN", "legacy-token")
			t.Setenv("INFOSHARE_DISCORD_TOKEN", "new-token")

			rootCmd.SetArgs([]string{"--config=/nonexistent/.env", "version"})
			require.NoError(t, rootCmd.Execute())

			assert.Equal(t, "new-token", cfg.Discord.Token)
		},
	)

	t.Run(
		"custom prefix", func(t *testing.T) {
			resetConfig(t)
			t.Setenv(infoshare.EnvvarSetEnvPrefix, "BOT")
			t.Setenv("BOT_DISCORD_TOKEN", "bot-token")
			t.Setenv("BOT_SHEETS_WORKSHEET_NAME", "Custom")

			rootCmd.SetArgs([]string{"--config=/nonexistent/.env", "version"})
			require.NoError(t, rootCmd.Execute())

			assert.Equal(t, "bot-token", cfg.Discord.Token)
			assert.Equal(t, "Custom", cfg.Sheets.WorksheetName)
		},
	)
}

func TestSplitCategories(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"comma string", "a,b , c", []string{"a", "b", "c"}},
		{"blank entries", "a,, ,b", []string{"a", "b"}},
		{"empty", "", []string{}},
		{"string slice", []string{" a ", "b"}, []string{"a", "b"}},
		{"any slice", []any{"a", 2}, []string{"a", "2"}},
		{"duplicates kept", "a,a", []string{"a", "a"}},
		{"nil", nil, []string{}},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				assert.Equal(t, tc.want, splitCategories(tc.in))
			},
		)
	}
}

func TestLevelToStringHookFunc(t *testing.T) {
	hook := LevelToStringHookFunc()
	levelVarType := reflect.TypeOf(&slog.LevelVar{})

	t.Run(
		"converts", func(t *testing.T) {
			v, err := hook(reflect.TypeOf(""), levelVarType, "warn")
			require.NoError(t, err)
			assertLogLevel(t, slog.LevelWarn, v)
		},
	)
	t.Run(
		"invalid", func(t *testing.T) {
			_, err := hook(reflect.TypeOf(""), levelVarType, "LOUD")
			assert.Error(t, err)
		},
	)
	t.Run(
		"other types pass through", func(t *testing.T) {
			v, err := hook(reflect.TypeOf(""), reflect.TypeOf(""), "INFO")
			require.NoError(t, err)
			assert.Equal(t, "INFO", v)

			v, err = hook(reflect.TypeOf(1), levelVarType, 1)
			require.NoError(t, err)
			assert.Equal(t, 1, v)
		},
	)
}
