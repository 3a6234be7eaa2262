package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"octowatcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Vitality VitalityConfig `mapstructure:"vitality"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// WalletConfig identifies the monitored account and its RPC provider.
type WalletConfig struct {
	Address           string        `mapstructure:"address"`
	RPCURL            string        `mapstructure:"rpc_url"`
	WSURL             string        `mapstructure:"ws_url"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SignatureLimit    int           `mapstructure:"signature_limit"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	SubscribeEnabled  bool          `mapstructure:"subscribe_enabled"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	ReconnectBaseWait time.Duration `mapstructure:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `mapstructure:"reconnect_max_wait"`
}

// ExchangeConfig defines the donation-to-HP conversion rule.
type ExchangeConfig struct {
	// MinimumSOL is both the smallest qualifying donation and the price of
	// one HP: credit = floor(amount / minimum_sol).
	MinimumSOL float64 `mapstructure:"minimum_sol"`
}

// VitalityConfig tunes the decaying resource.
type VitalityConfig struct {
	MaxHP       int64         `mapstructure:"max_hp"`
	InitialHP   int64         `mapstructure:"initial_hp"`
	ThrivingHP  int64         `mapstructure:"thriving_hp"`
	CriticalHP  int64         `mapstructure:"critical_hp"`
	DecayPeriod time.Duration `mapstructure:"decay_period"`
}

// NotifyConfig defines outbound notification routing.
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram Bot API channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ServerConfig governs the HTTP status surface.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Metrics bool   `mapstructure:"metrics"`
}

// ChatConfig describes the optional chat source.
type ChatConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	RoomID       string        `mapstructure:"room_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	KeepMessages int           `mapstructure:"keep_messages"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OCTOWATCHER")
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

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "octowatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("wallet.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("wallet.poll_interval", "15s")
	v.SetDefault("wallet.signature_limit", 20)
	v.SetDefault("wallet.request_timeout", "10s")
	v.SetDefault("wallet.subscribe_enabled", true)
	v.SetDefault("wallet.max_reconnects", 10)
	v.SetDefault("wallet.reconnect_base_wait", "1s")
	v.SetDefault("wallet.reconnect_max_wait", "30s")

	v.SetDefault("exchange.minimum_sol", 0.01)

	v.SetDefault("vitality.max_hp", int64(720))
	v.SetDefault("vitality.initial_hp", int64(60))
	v.SetDefault("vitality.thriving_hp", int64(15))
	v.SetDefault("vitality.critical_hp", int64(5))
	v.SetDefault("vitality.decay_period", "1m")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", ":8787")
	v.SetDefault("server.metrics", true)

	v.SetDefault("chat.enabled", false)
	v.SetDefault("chat.poll_interval", "10s")
	v.SetDefault("chat.keep_messages", 50)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Wallet.Address == "" {
		return fmt.Errorf("wallet.address is required")
	}
	if c.Wallet.PollInterval <= 0 {
		return fmt.Errorf("wallet.poll_interval must be greater than zero")
	}
	if c.Wallet.SignatureLimit <= 0 {
		return fmt.Errorf("wallet.signature_limit must be greater than zero")
	}
	if c.Exchange.MinimumSOL <= 0 {
		return fmt.Errorf("exchange.minimum_sol must be greater than zero")
	}
	if c.Vitality.MaxHP <= 0 {
		return fmt.Errorf("vitality.max_hp must be greater than zero")
	}
	if c.Vitality.CriticalHP <= 0 {
		return fmt.Errorf("vitality.critical_hp must be greater than zero")
	}
	if c.Vitality.ThrivingHP <= c.Vitality.CriticalHP {
		return fmt.Errorf("vitality.thriving_hp must exceed vitality.critical_hp")
	}
	if c.Vitality.MaxHP < c.Vitality.ThrivingHP {
		return fmt.Errorf("vitality.max_hp must be at least vitality.thriving_hp")
	}
	if c.Vitality.InitialHP < 0 || c.Vitality.InitialHP > c.Vitality.MaxHP {
		return fmt.Errorf("vitality.initial_hp must be within [0, max_hp]")
	}
	if c.Vitality.DecayPeriod <= 0 {
		return fmt.Errorf("vitality.decay_period must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Chat.Enabled && c.Chat.BaseURL == "" {
		return fmt.Errorf("chat.base_url is required when chat is enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ResolveWSURL derives the websocket endpoint from the RPC endpoint when no
// explicit ws_url is configured.
func (c *Config) ResolveWSURL() string {
	if c.Wallet.WSURL != "" {
		return c.Wallet.WSURL
	}
	url := c.Wallet.RPCURL
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
