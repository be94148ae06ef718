package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ohlc-forecast/internal/logging"
)

const (
	envPrefix     = "OHLCFORECAST"
	defaultSymbol = "DOTUSDT"
)

// Config materialises application configuration. It is not modified after Load returns.
type Config struct {
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Logging   logging.Config  `mapstructure:"logging" yaml:"logging"`
	Forecast  ForecastConfig  `mapstructure:"forecast" yaml:"forecast"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Binance   BinanceConfig   `mapstructure:"binance" yaml:"binance"`
	Alerting  AlertingConfig  `mapstructure:"alerting" yaml:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Chart     ChartConfig     `mapstructure:"chart" yaml:"chart"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" default:"ohlc-forecast"`
	Environment string `mapstructure:"environment" default:"development"`
}

// ForecastConfig drives the per-symbol pipeline.
type ForecastConfig struct {
	Symbols      []string `mapstructure:"symbols" default:"[\"DOTUSDT\"]"`
	Interval     string   `mapstructure:"interval" default:"1h" validate:"kline_interval"`
	Limit        int      `mapstructure:"limit" default:"1000" validate:"gte=1,lte=1000"`
	MinRows      int      `mapstructure:"min_rows" default:"50" validate:"gte=3"`
	ThresholdPct float64  `mapstructure:"threshold_pct" default:"2" validate:"gte=0"`
	TestRatio    float64  `mapstructure:"test_ratio" default:"0.2" validate:"gte=0,lt=1"`
	// Seed makes fits reproducible. Zero draws a fresh seed for every symbol.
	Seed     uint64 `mapstructure:"seed"`
	Trees    int    `mapstructure:"trees" default:"10" validate:"gte=1,lte=500"`
	MaxDepth int    `mapstructure:"max_depth" validate:"gte=0"`
}

// SchedulerConfig governs cycle cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval" default:"30m" validate:"min=1s"`
	Cron          string        `mapstructure:"cron" validate:"omitempty,cron_expr"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay" validate:"min=0s"`
	RunOnStart    bool          `mapstructure:"run_on_start" default:"true"`
}

// BinanceConfig covers the klines endpoint.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url" default:"https://api.binance.com" validate:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"10s" validate:"min=1s"`
	MaxRetries     int           `mapstructure:"max_retries" default:"2" validate:"gte=0,lte=10"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff" default:"500ms" validate:"min=1ms"`
	UserAgent      string        `mapstructure:"user_agent" default:"ohlc-forecast/1.0"`
}

// AlertingConfig defines notification channels.
type AlertingConfig struct {
	Stdout       bool           `mapstructure:"stdout"`
	Retries      int            `mapstructure:"retries" default:"2" validate:"gte=0,lte=10"`
	RetryBackoff time.Duration  `mapstructure:"retry_backoff" default:"1s" validate:"min=1ms"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
	Kafka        KafkaConfig    `mapstructure:"kafka"`
	Redis        RedisConfig    `mapstructure:"redis"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled" default:"true"`
	BotToken string        `mapstructure:"bot_token" secret:"true"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base" default:"https://api.telegram.org" validate:"url"`
	Timeout  time.Duration `mapstructure:"timeout" default:"10s" validate:"min=1s"`
}

// KafkaConfig describes the Kafka channel.
type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic" default:"ohlc-forecasts" validate:"required"`
	RequiredAcks int      `mapstructure:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
}

// RedisConfig describes the Redis pub/sub channel.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" default:"localhost:6379" validate:"hostname_port"`
	Password string `mapstructure:"password" secret:"true"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Channel  string `mapstructure:"channel" default:"ohlc:forecasts" validate:"required"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" default:":9090" validate:"required"`
}

// ChartConfig sets PNG export dimensions.
type ChartConfig struct {
	Width  int `mapstructure:"width" default:"1280" validate:"gte=200,lte=8000"`
	Height int `mapstructure:"height" default:"720" validate:"gte=200,lte=8000"`
}

// Warning reports a configuration problem that was replaced by a default.
type Warning struct {
	Key     string
	Message string
}

func (w Warning) String() string {
	if w.Key == "" {
		return w.Message
	}
	return w.Key + ": " + w.Message
}

// envAliases maps bare environment names onto configuration keys.
var envAliases = map[string]string{
	"forecast.symbols":            "SYMBOLS",
	"forecast.interval":           "INTERVAL",
	"forecast.limit":              "LIMIT",
	"forecast.threshold_pct":      "PRICE_CHANGE_THRESHOLD",
	"scheduler.interval":          "SLEEP_SECONDS",
	"alerting.telegram.bot_token": "TELEGRAM_TOKEN",
	"alerting.telegram.chat_id":   "TELEGRAM_TO",
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load builds configuration from defaults, file, and environment. It never
// fails: unreadable sources and invalid values fall back to defaults and are
// reported as warnings.
func Load(path string) (*Config, []Warning) {
	var warnings []Warning

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	walk("", reflect.ValueOf(cfg).Elem(), func(key string, _ reflect.StructField, val reflect.Value) {
		v.SetDefault(key, val.Interface())
	})
	for key, alias := range envAliases {
		_ = v.BindEnv(key, envName(key), alias)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if w, ok := readConfig(v, path); !ok {
		warnings = append(warnings, w)
	}

	if err := v.Unmarshal(cfg, decodeHook()); err != nil {
		warnings = append(warnings, decodeWarnings(err)...)
	}

	warnings = append(warnings, validate(cfg)...)
	warnings = append(warnings, cfg.normalize()...)
	return cfg, warnings
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func readConfig(v *viper.Viper, path string) (Warning, bool) {
	err := v.ReadInConfig()
	if err == nil {
		return Warning{}, true
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return Warning{}, true
	}
	if path != "" && errors.Is(err, os.ErrNotExist) {
		return Warning{Message: fmt.Sprintf("config file %s not found, using defaults", path)}, false
	}
	return Warning{Message: fmt.Sprintf("ignoring config file: %v", err)}, false
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// secondsToDurationHookFunc reads a bare integer string as seconds, the unit of SLEEP_SECONDS.
func secondsToDurationHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" || strings.Trim(raw, "0123456789") != "" {
			return data, nil
		}
		var secs int64
		if _, err := fmt.Sscan(raw, &secs); err != nil {
			return data, nil
		}
		return time.Duration(secs) * time.Second, nil
	}
}

func decodeWarnings(err error) []Warning {
	var out []Warning
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if line == "" || strings.HasSuffix(line, "error(s) decoding:") || strings.HasPrefix(line, "decoding failed") {
			continue
		}
		out = append(out, Warning{Message: line + ", using default"})
	}
	if len(out) == 0 {
		out = append(out, Warning{Message: err.Error()})
	}
	return out
}

// normalize cleans the symbol list and disables channels that cannot work.
func (c *Config) normalize() []Warning {
	var warnings []Warning

	seen := make(map[string]struct{}, len(c.Forecast.Symbols))
	symbols := make([]string, 0, len(c.Forecast.Symbols))
	for _, s := range c.Forecast.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	if len(symbols) == 0 {
		warnings = append(warnings, Warning{Key: "forecast.symbols", Message: "no symbols configured, using " + defaultSymbol})
		symbols = []string{defaultSymbol}
	}
	c.Forecast.Symbols = symbols

	if c.Forecast.MinRows > c.Forecast.Limit {
		warnings = append(warnings, Warning{
			Key:     "forecast.min_rows",
			Message: fmt.Sprintf("min_rows %d exceeds limit %d, every symbol will be skipped", c.Forecast.MinRows, c.Forecast.Limit),
		})
	}

	tg := &c.Alerting.Telegram
	if tg.Enabled && (strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "") {
		warnings = append(warnings, Warning{Key: "alerting.telegram", Message: "bot_token or chat_id missing, telegram disabled"})
		tg.Enabled = false
	}

	kafkaCfg := &c.Alerting.Kafka
	var brokers []string
	for _, b := range kafkaCfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	kafkaCfg.Brokers = brokers
	if kafkaCfg.Enabled && len(kafkaCfg.Brokers) == 0 {
		warnings = append(warnings, Warning{Key: "alerting.kafka", Message: "no brokers configured, kafka disabled"})
		kafkaCfg.Enabled = false
	}

	return warnings
}
