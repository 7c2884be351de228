package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"stockfighter-mm/infrastructure/logger"
	"stockfighter-mm/strategy"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Instance InstanceConfig `yaml:"instance"`
	Strategy StrategyConfig `yaml:"strategy"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Journal  JournalConfig  `yaml:"journal"`
}

type GatewayConfig struct {
	APIToken  string  `yaml:"apiToken"`
	BaseURL   string  `yaml:"baseURL"`
	GMURL     string  `yaml:"gmURL"`
	WSURL     string  `yaml:"wsURL"`
	QuoteFeed string  `yaml:"quoteFeed"` // rest 或 ws
	RateLimit float64 `yaml:"rateLimit"` // 每秒请求数
	Burst     int     `yaml:"burst"`
	TimeoutMs int     `yaml:"timeoutMs"`
}

// InstanceConfig 关卡实例。InstanceID 为 0 时按 Level 开新局。
// Account/Venue/Stock 非空时覆盖 GM 返回的会话信息。
type InstanceConfig struct {
	Level      string `yaml:"level"`
	InstanceID int    `yaml:"instanceId"`
	StartMode  string `yaml:"startMode"` // restart 或 resume
	Account    string `yaml:"account"`
	Venue      string `yaml:"venue"`
	Stock      string `yaml:"stock"`
}

type StrategyConfig struct {
	PositionLimit int   `yaml:"positionLimit"`
	Buffer        int   `yaml:"buffer"`      // 美分
	StaleBuffer   int   `yaml:"staleBuffer"` // 美分，0 表示沿用 buffer
	IntervalMs    int   `yaml:"intervalMs"`
	Goal          int64 `yaml:"goal"` // 美分，0 表示不设
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 为空则不暴露 /metrics
}

type JournalConfig struct {
	Path string `yaml:"path"` // sqlite 文件路径，为空则不记录
}

const (
	QuoteFeedREST = "rest"
	QuoteFeedWS   = "ws"

	StartRestart = "restart"
	StartResume  = "resume"
)

// Params 转换为策略参数。
func (s StrategyConfig) Params() strategy.Params {
	return strategy.Params{
		PositionLimit: s.PositionLimit,
		Buffer:        s.Buffer,
		StaleBuffer:   s.StaleBuffer,
		Interval:      time.Duration(s.IntervalMs) * time.Millisecond,
		Goal:          s.Goal,
	}
}

// ApplyDefaults 填充未设置的可选字段。
func ApplyDefaults(cfg *AppConfig) {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://api.stockfighter.io"
	}
	if cfg.Gateway.GMURL == "" {
		cfg.Gateway.GMURL = "https://www.stockfighter.io"
	}
	if cfg.Gateway.WSURL == "" {
		cfg.Gateway.WSURL = "wss://api.stockfighter.io"
	}
	if cfg.Gateway.QuoteFeed == "" {
		cfg.Gateway.QuoteFeed = QuoteFeedREST
	}
	if cfg.Gateway.RateLimit == 0 {
		cfg.Gateway.RateLimit = 20
	}
	if cfg.Gateway.Burst == 0 {
		cfg.Gateway.Burst = 10
	}
	if cfg.Gateway.TimeoutMs == 0 {
		cfg.Gateway.TimeoutMs = 10000
	}
	if cfg.Instance.StartMode == "" {
		cfg.Instance.StartMode = StartRestart
	}
	if cfg.Strategy.IntervalMs == 0 {
		cfg.Strategy.IntervalMs = 1000
	}
	def := logger.DefaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Level
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = def.Outputs
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Format
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = def.MaxSize
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = def.MaxBackups
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = def.MaxAge
	}
}

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parse(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
// 令牌通常只放在环境变量里，因此先覆盖再校验。
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := parse(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("SF_API_TOKEN"); v != "" {
		cfg.Gateway.APIToken = v
	}
	if v := os.Getenv("SF_INSTANCE_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("SF_INSTANCE_ID: %w", err)
		}
		cfg.Instance.InstanceID = id
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.APIToken == "" {
		return errors.New("gateway.apiToken is required (or SF_API_TOKEN)")
	}
	if cfg.Gateway.BaseURL == "" || cfg.Gateway.GMURL == "" {
		return errors.New("gateway.baseURL/gmURL is required")
	}
	switch cfg.Gateway.QuoteFeed {
	case QuoteFeedREST:
	case QuoteFeedWS:
		if cfg.Gateway.WSURL == "" {
			return errors.New("gateway.wsURL is required when quoteFeed is ws")
		}
	default:
		return fmt.Errorf("gateway.quoteFeed must be %q or %q, got %q", QuoteFeedREST, QuoteFeedWS, cfg.Gateway.QuoteFeed)
	}
	if cfg.Gateway.RateLimit < 0 || cfg.Gateway.Burst < 0 {
		return errors.New("gateway.rateLimit/burst must be >= 0")
	}
	if cfg.Gateway.TimeoutMs < 0 {
		return errors.New("gateway.timeoutMs must be >= 0")
	}
	if cfg.Instance.InstanceID < 0 {
		return errors.New("instance.instanceId must be >= 0")
	}
	if cfg.Instance.InstanceID == 0 && cfg.Instance.Level == "" {
		return errors.New("instance.instanceId or instance.level is required")
	}
	if cfg.Instance.StartMode != StartRestart && cfg.Instance.StartMode != StartResume {
		return fmt.Errorf("instance.startMode must be %q or %q, got %q", StartRestart, StartResume, cfg.Instance.StartMode)
	}
	if err := ValidateStrategy(cfg.Strategy); err != nil {
		return err
	}
	return nil
}

// ValidateStrategy 校验可热更新的策略段。
func ValidateStrategy(s StrategyConfig) error {
	if err := s.Params().Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if s.Goal < 0 {
		return errors.New("strategy.goal must be >= 0")
	}
	return nil
}
