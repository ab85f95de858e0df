//nolint:lll // struct tags can't be split
package infoshare

import (
	"crypto/tls"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"log/slog"
	"net/http"
	"time"
)

const (
	EnvvarSetEnvPrefix = "INFOSHARE_ENV_PREFIX"
	DefaultEnvPrefix   = "INFOSHARE"

	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultDiscordLogLevel                   = slog.LevelWarn
	DefaultDiscordgoLogLevel                 = slog.LevelWarn
	DefaultDiscordWebhookLogLevel            = slog.LevelInfo
	DefaultDiscordWebhookServerListen        = "127.0.0.1:5001"
	DefaultDiscordWebhookServerTLSminVersion = tls.VersionTLS12
	DefaultDiscordGatewayIntent              = discordgo.IntentsGuilds

	DefaultSheetsWorksheetName      = "Sheet1"
	DefaultSheetsCredentialsFile    = "credentials.json"
	DefaultSheetsLogLevel           = slog.LevelInfo
	DefaultSheetsWriteTimeout       = 10 * time.Second
	DefaultSheetsMaxWritesPerSecond = 1.0
	DefaultSheetsWriteBurst         = 5

	defaultListenNetwork = "tcp"

	// categoryMaxLength keeps "<modal prefix>:<category>" under discord's
	// 100 character custom ID limit.
	categoryMaxLength = 80

	// discordMaxSelectOptions is the maximum number of options a single
	// select menu can hold.
	discordMaxSelectOptions = 25
)

// DefaultCategories is the category list offered by the picker when none
// is configured.
var DefaultCategories = []string{
	"技術文章",
	"工具推薦",
	"學習資源",
	"專案分享",
	"其他",
}

var (
	structValidator = validator.New()
)

type DiscordInteractionReceiveMethod string

var (
	discordInteractionReceiveMethodGateway DiscordInteractionReceiveMethod = "gateway"
	discordInteractionReceiveMethodWebhook DiscordInteractionReceiveMethod = "webhook"
)

// ConfigurationError indicates a required startup value is missing or
// invalid. It's the only error fatal to the whole process.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Err.Error())
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type Config struct {
	// Categories offered by the category picker. Loaded once at startup.
	Categories []string `yaml:"categories" mapstructure:"categories" json:"categories" binding:"required,min=1,max=25,unique,dive,required,max=80"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord" binding:"required"`

	// Sheets configures the optional Google Sheets integration
	Sheets *SheetsConfig `yaml:"sheets" mapstructure:"sheets" json:"sheets" binding:"required"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// load features, connect and register commands.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout" binding:"min=1s"`

	// ShutdownTimeout is the time to allow in-flight interactions to finish
	// after a stop signal.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Development switches gin to debug mode
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// Validate checks the config against its `binding` tags, returning
// a *ConfigurationError describing every failure.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

// DiscordConfig configures the discord bot itself.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID. If empty, the bot user's ID is used once
	// the gateway connection is open.
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// GatewayEnabled opens the websocket connection. Disable when receiving
	// interactions through the webhook server only.
	GatewayEnabled bool `yaml:"gateway_enabled" mapstructure:"gateway_enabled" json:"gateway_enabled"`

	// Required when receiving webhook events rather than websockets
	WebhookServer DiscordWebhookServerConfig `yaml:"webhook_server" mapstructure:"webhook_server" json:"webhook_server"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// DiscordWebhookServerConfig configures the HTTP endpoint discord POSTs
// interactions to, when it's used instead of the gateway.
type DiscordWebhookServerConfig struct {
	// Determines if the webhook server should be active.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5001").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,omitempty,oneof=tcp tcp4 tcp6 unix"`

	// Configuration for SSL/TLS.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The public key used for verifying Discord interaction POST requests.
	// In the Discord dev portal for your bot, this is under 'General Information'
	PublicKey string `yaml:"public_key" mapstructure:"public_key" json:"public_key" binding:"required_if=Enabled true,omitempty,hexadecimal"`

	// The logging level for the webhook server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	// Path to an SSL certificate
	CertFile string `yaml:"cert_file" mapstructure:"cert_file" json:"cert_file"`

	// Path to an SSL cert key
	KeyFile string `yaml:"key_file" mapstructure:"key_file" json:"key_file" binding:"required_with=CertFile"`

	// Minimum TLS version
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// SheetsConfig configures the Google Sheets integration. The integration
// is disabled when SpreadsheetID is empty.
type SheetsConfig struct {
	// ID of the target spreadsheet (from its URL)
	SpreadsheetID string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id" json:"spreadsheet_id"`

	// Title of the worksheet rows are appended to
	WorksheetName string `yaml:"worksheet_name" mapstructure:"worksheet_name" json:"worksheet_name" binding:"required"`

	// Path to a service account JSON key
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file" json:"credentials_file" binding:"required"`

	// Upper bound on a single Sheets API call
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout" binding:"min=1s"`

	// Sheets allows 60 write requests per minute per user. 0=unlimited
	MaxWritesPerSecond float64 `yaml:"max_writes_per_second" mapstructure:"max_writes_per_second" json:"max_writes_per_second" binding:"min=0"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// Enabled reports whether a spreadsheet has been configured
func (s SheetsConfig) Enabled() bool {
	return s.SpreadsheetID != ""
}

// validateDiscordConfig rejects configs with no way of receiving
// interactions.
func validateDiscordConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(DiscordConfig)
	if !cfg.GatewayEnabled && !cfg.WebhookServer.Enabled {
		sl.ReportError(
			cfg.GatewayEnabled,
			"GatewayEnabled",
			"gateway_enabled",
			"gateway_or_webhook",
			"",
		)
	}
}

//nolint:gochecknoinits // gotta register the validators
func init() {
	structValidator.SetTagName("binding")
	structValidator.RegisterStructValidation(
		validateDiscordConfig,
		DiscordConfig{},
	)
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	discordWebhookLogLevel := &slog.LevelVar{}
	sheetsLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	discordWebhookLogLevel.Set(DefaultDiscordWebhookLogLevel)
	sheetsLogLevel.Set(DefaultSheetsLogLevel)

	categories := make([]string, len(DefaultCategories))
	copy(categories, DefaultCategories)

	return &Config{
		Categories:      categories,
		LogLevel:        mainLogLevel,
		StartupTimeout:  DefaultStartupTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayEnabled: true,
			WebhookServer: DiscordWebhookServerConfig{
				Enabled:       false,
				Listen:        DefaultDiscordWebhookServerListen,
				ListenNetwork: defaultListenNetwork,
				SSL: SSLConfig{
					TLSMinVersion: DefaultDiscordWebhookServerTLSminVersion,
				},
				LogLevel:          discordWebhookLogLevel,
				ReadHeaderTimeout: DefaultReadHeaderTimeout,
				ReadTimeout:       DefaultReadTimeout,
				WriteTimeout:      DefaultWriteTimeout,
				IdleTimeout:       DefaultIdleTimeout,
			},
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		Sheets: &SheetsConfig{
			WorksheetName:      DefaultSheetsWorksheetName,
			CredentialsFile:    DefaultSheetsCredentialsFile,
			WriteTimeout:       DefaultSheetsWriteTimeout,
			MaxWritesPerSecond: DefaultSheetsMaxWritesPerSecond,
			LogLevel:           sheetsLogLevel,
		},
	}
}
