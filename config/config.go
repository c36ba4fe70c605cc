// Package config loads the application configuration from a YAML file, a
// .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	App        App        `yaml:"app"`
	HTTP       HTTP       `yaml:"http"`
	Metrics    Metrics    `yaml:"metrics"`
	Redis      Redis      `yaml:"redis"`
	SQLite     SQLite     `yaml:"sqlite"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	Kafka      Kafka      `yaml:"kafka"`
	Webhook    Webhook    `yaml:"webhook"`
	Telegram   Telegram   `yaml:"telegram"`
	Feed       Feed       `yaml:"feed"`
	Engine     Engine     `yaml:"engine"`
}

type App struct {
	Name      string   `yaml:"name" default:"hermes"`
	Env       string   `yaml:"env" default:"dev"`
	LogLevel  string   `yaml:"log_level" default:"info" validate:"oneof=trace debug info warn error"`
	LogFormat string   `yaml:"log_format" default:"json" validate:"oneof=json console"`
	Symbols   []string `yaml:"symbols" validate:"dive,required"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	// JWTSecret, when set, requires an HS256 bearer token on mutating routes.
	JWTSecret string `yaml:"jwt_secret"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type Redis struct {
	Enabled       bool   `yaml:"enabled" default:"true"`
	Addr          string `yaml:"addr" default:"localhost:6379"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ConfigChannel string `yaml:"config_channel" default:"config:engine"`
	// StreamMaxLen caps the snapshot and signal streams (approximate trim).
	StreamMaxLen     int64         `yaml:"stream_max_len" default:"1000" validate:"gte=0"`
	BreakerThreshold int           `yaml:"breaker_threshold" default:"5" validate:"gte=1"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" default:"10s"`
}

type SQLite struct {
	Path    string `yaml:"path" default:"data/candles.db"`
	Journal bool   `yaml:"journal" default:"true"`
	// KeepSnapshots bounds the journaled snapshots per symbol; 0 keeps all.
	KeepSnapshots int `yaml:"keep_snapshots" default:"500" validate:"gte=0"`
}

// ClickHouse is the optional analytics store.
type ClickHouse struct {
	Enabled     bool   `yaml:"enabled"`
	Host        string `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
	Port        int    `yaml:"port" default:"9000" validate:"gte=1,lte=65535"`
	Database    string `yaml:"database" default:"hermes" validate:"required,alphanum"`
	User        string `yaml:"user" default:"default"`
	Password    string `yaml:"password"`
	UseHTTP     bool   `yaml:"use_http"`
	AsyncInsert bool   `yaml:"async_insert"`
	// InitSchema creates the tables at startup.
	InitSchema    bool          `yaml:"init_schema" default:"true"`
	BatchSize     int           `yaml:"batch_size" default:"500" validate:"gte=1"`
	FlushInterval time.Duration `yaml:"flush_interval" default:"2s"`
}

type Kafka struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic        string        `yaml:"topic" default:"hermes.signals"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
}

type Webhook struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" default:"5s"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id" validate:"required_with=BotToken"`
}

// Feed controls candle ingestion.
type Feed struct {
	Block        time.Duration `yaml:"block" default:"5s"`
	Count        int64         `yaml:"count" default:"100" validate:"gte=1"`
	BackfillBars int           `yaml:"backfill_bars" default:"500" validate:"gte=0"`
	// BufferBars is the per-series ring buffer capacity.
	BufferBars int `yaml:"buffer_bars" default:"1000" validate:"gte=10"`
	// Resample derives regime timeframes from execution bars instead of
	// consuming them from the feed.
	Resample bool `yaml:"resample"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Load reads path (optional), applies .env and environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if c, err = Parse(b); err != nil {
			return nil, err
		}
	}
	applyEnv(c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes a YAML document over the defaults, upgrading the engine
// section to the current version first.
func Parse(b []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if eng, ok := asMap(raw["engine"]); ok {
		up, err := Upgrade(eng)
		if err != nil {
			return nil, err
		}
		raw["engine"] = up
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// ParseEngine decodes a standalone engine document (YAML or JSON), as
// published on the config channel, and validates it.
func ParseEngine(b []byte) (*Engine, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	up, err := Upgrade(raw)
	if err != nil {
		return nil, err
	}
	if b, err = yaml.Marshal(up); err != nil {
		return nil, fmt.Errorf("re-encode engine config: %w", err)
	}
	e := &Engine{}
	if err := defaults.Set(e); err != nil {
		return nil, fmt.Errorf("engine defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, e); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	if err := validate.Struct(e); err != nil {
		return nil, fmt.Errorf("validate engine config: %w", err)
	}
	return e, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func applyEnv(c *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.App.Symbols = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.App.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("HTTP_JWT_SECRET"); v != "" {
		c.HTTP.JWTSecret = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("EXECUTION_TF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.ExecutionTF = n
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
