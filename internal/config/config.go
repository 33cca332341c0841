package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fx-converter/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. FXCONV_SERVER_ADDR.
const EnvPrefix = "FXCONV"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Rates    RatesConfig    `mapstructure:"rates"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Client   ClientConfig   `mapstructure:"client"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig drives the TCP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Protocol        string        `mapstructure:"protocol" validate:"oneof=text binary"`
	Mode            string        `mapstructure:"mode" validate:"oneof=single persistent"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size" validate:"min=16,max=65536"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RatesConfig covers the rate cache and its upstream providers.
type RatesConfig struct {
	Reference      string         `mapstructure:"reference" validate:"len=3,uppercase"`
	TTL            time.Duration  `mapstructure:"ttl"`
	RefreshTimeout time.Duration  `mapstructure:"refresh_timeout"`
	Primary        PrimaryConfig  `mapstructure:"primary"`
	Override       OverrideConfig `mapstructure:"override"`
}

// PrimaryConfig is the full-table provider.
type PrimaryConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// OverrideConfig is the per-currency official quote provider.
type OverrideConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url" validate:"required_if=Enabled true,omitempty,url"`
	Currencies []string      `mapstructure:"currencies" validate:"dive,len=3,uppercase"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// StatsConfig sets how often server statistics are logged.
type StatsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// AlertingConfig routes rate source notifications.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram chat that receives notifications.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token" validate:"required_if=Enabled true"`
	ChatID   string `mapstructure:"chat_id" validate:"required_if=Enabled true"`
	APIBase  string `mapstructure:"api_base" validate:"omitempty,url"`
}

// ClientConfig is used by the convert command.
type ClientConfig struct {
	Addr    string        `mapstructure:"addr" validate:"required,hostname_port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v, path != ""); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fxconv")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("server.addr", ":6000")
	v.SetDefault("server.protocol", "binary")
	v.SetDefault("server.mode", "persistent")
	v.SetDefault("server.idle_timeout", "30s")
	v.SetDefault("server.read_buffer_size", 1024)
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("rates.reference", "USD")
	v.SetDefault("rates.ttl", "1h")
	v.SetDefault("rates.refresh_timeout", "15s")
	v.SetDefault("rates.primary.base_url", "https://api.exchangerate-api.com/v4")
	v.SetDefault("rates.primary.timeout", "5s")
	v.SetDefault("rates.primary.user_agent", "fxconv/1.0")
	v.SetDefault("rates.override.enabled", true)
	v.SetDefault("rates.override.base_url", "https://olinda.bcb.gov.br/olinda/servico/PTAX/versao/v1/odata")
	v.SetDefault("rates.override.currencies", []string{"BRL"})
	v.SetDefault("rates.override.timeout", "5s")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("stats.interval", "1m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("client.addr", "localhost:6000")
	v.SetDefault("client.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) normalize() {
	c.Server.Protocol = strings.ToLower(strings.TrimSpace(c.Server.Protocol))
	c.Server.Mode = strings.ToLower(strings.TrimSpace(c.Server.Mode))
	c.Rates.Reference = strings.ToUpper(strings.TrimSpace(c.Rates.Reference))

	codes := c.Rates.Override.Currencies[:0]
	for _, code := range c.Rates.Override.Currencies {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			codes = append(codes, code)
		}
	}
	c.Rates.Override.Currencies = codes
}

var validate = validator.New()

// Validate checks struct tags and the duration settings tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"rates.ttl", c.Rates.TTL},
		{"rates.refresh_timeout", c.Rates.RefreshTimeout},
		{"rates.primary.timeout", c.Rates.Primary.Timeout},
		{"stats.interval", c.Stats.Interval},
		{"client.timeout", c.Client.Timeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be greater than zero", d.key)
		}
	}

	if c.Rates.Override.Enabled && c.Rates.Override.Timeout <= 0 {
		return fmt.Errorf("rates.override.timeout must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	return nil
}
