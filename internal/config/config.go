package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/jarvis/internal/gateway"
	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/quota"
	"github.com/normanking/jarvis/internal/resolver"
	"github.com/normanking/jarvis/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. JARVIS_AI_MODEL.
const EnvPrefix = "JARVIS"

// Config holds all application configuration for the Jarvis assistant.
// It is loaded from ~/.jarvis/config.yaml and can be overridden by environment variables.
type Config struct {
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Quota    QuotaConfig    `mapstructure:"quota" yaml:"quota"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Breaker  BreakerConfig  `mapstructure:"breaker" yaml:"breaker"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Context  ContextConfig  `mapstructure:"context" yaml:"context"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// AIConfig configures the remote model API.
type AIConfig struct {
	// BaseURL is the OpenAI-compatible API root
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
	// Temperature and MaxTokens apply to conversational completions
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	// ClassifyTemperature and ClassifyMaxTokens apply to intent classification
	ClassifyTemperature float64       `mapstructure:"classify_temperature" yaml:"classify_temperature"`
	ClassifyMaxTokens   int           `mapstructure:"classify_max_tokens" yaml:"classify_max_tokens"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// QuotaConfig bounds remote calls per window.
type QuotaConfig struct {
	Limit  int           `mapstructure:"limit" yaml:"limit"`
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

// RetryConfig is the gateway attempt budget.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

// BreakerConfig configures the circuit breaker around the AI API.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures" yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

// QueueConfig configures the offline queue.
type QueueConfig struct {
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
	// AutoDrain replays queued completions after the next successful one
	AutoDrain bool `mapstructure:"auto_drain" yaml:"auto_drain"`
	// DrainReserve quota units per window are never spent on replays
	DrainReserve int `mapstructure:"drain_reserve" yaml:"drain_reserve"`
}

// ContextConfig sizes the conversation buffer.
type ContextConfig struct {
	MaxExchanges int `mapstructure:"max_exchanges" yaml:"max_exchanges"`
}

// CacheConfig configures the resolution cache.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries"`
}

// ResolverConfig holds tier acceptance thresholds.
type ResolverConfig struct {
	HeuristicThreshold float64       `mapstructure:"heuristic_threshold" yaml:"heuristic_threshold"`
	GrammarThreshold   float64       `mapstructure:"grammar_threshold" yaml:"grammar_threshold"`
	RemoteThreshold    float64       `mapstructure:"remote_threshold" yaml:"remote_threshold"`
	RemoteTimeout      time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout"`
}

// StorageConfig selects the durable key-value backend.
type StorageConfig struct {
	// Driver is one of memory, sqlite, redis, keyring
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisDB   int    `mapstructure:"redis_db" yaml:"redis_db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// ServerConfig holds listen addresses for `jarvis serve`.
type ServerConfig struct {
	Listen        string `mapstructure:"listen" yaml:"listen"`
	MetricsListen string `mapstructure:"metrics_listen" yaml:"metrics_listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file,omitempty"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	gw := gateway.DefaultConfig()
	thresholds := resolver.DefaultThresholds()
	limits := quota.DefaultLimits()

	return &Config{
		AI: AIConfig{
			BaseURL:             "https://api.openai.com/v1",
			Model:               gw.Model,
			Temperature:         gw.Temperature,
			MaxTokens:           gw.MaxTokens,
			ClassifyTemperature: gw.ClassifyTemperature,
			ClassifyMaxTokens:   gw.ClassifyMaxTokens,
			RequestTimeout:      30 * time.Second,
		},
		Quota: QuotaConfig{
			Limit:  limits.Limit,
			Window: limits.Window,
		},
		Retry: RetryConfig{
			MaxAttempts: gw.Retry.MaxAttempts,
			BaseDelay:   gw.Retry.BaseDelay,
			Multiplier:  gw.Retry.Multiplier,
		},
		Breaker: BreakerConfig{
			Enabled:             gw.Breaker.Enabled,
			ConsecutiveFailures: gw.Breaker.ConsecutiveFailures,
			OpenTimeout:         gw.Breaker.OpenTimeout,
		},
		Queue: QueueConfig{
			MaxEntries:   gw.QueueMax,
			AutoDrain:    gw.AutoDrain,
			DrainReserve: gw.DrainReserve,
		},
		Context: ContextConfig{
			MaxExchanges: gw.ContextExchanges,
		},
		Cache: CacheConfig{
			TTL:        5 * time.Minute,
			MaxEntries: 1000,
		},
		Resolver: ResolverConfig{
			HeuristicThreshold: thresholds.Heuristic,
			GrammarThreshold:   thresholds.Grammar,
			RemoteThreshold:    thresholds.Remote,
			RemoteTimeout:      resolver.DefaultRemoteTimeout,
		},
		Storage: StorageConfig{
			Driver:    storage.DriverSQLite,
			Path:      "~/.jarvis/jarvis.db",
			KeyPrefix: "jarvis:",
		},
		Server: ServerConfig{
			Listen:        "127.0.0.1:8765",
			MetricsListen: "127.0.0.1:9465",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DataDir returns the Jarvis data directory (~/.jarvis).
func DataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".jarvis")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// LoadDotEnv loads dir/.env into the process environment when present.
// Variables already set are left untouched.
func LoadDotEnv(dir string) error {
	path := filepath.Join(expandPath(dir), ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the default location (~/.jarvis/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath())
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	// Example: JARVIS_AI_MODEL, JARVIS_STORAGE_DRIVER
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.Path = expandPath(cfg.Storage.Path)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every default with viper so keys missing from an
// older file still resolve, and so env overrides apply to them.
func setDefaults(v *viper.Viper, cfg *Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	for section, values := range tree {
		fields, ok := values.(map[string]any)
		if !ok {
			continue
		}
		for key, value := range fields {
			v.SetDefault(section+"."+key, value)
		}
	}
	// Omitted when empty, but must exist for env overrides.
	v.SetDefault("storage.redis_addr", "")
	v.SetDefault("logging.file", "")
}

// SaveToPath writes the configuration to path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{DataDir()}
	if c.Storage.Driver == storage.DriverSQLite && c.Storage.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks the configuration for errors and inconsistencies.
func (c *Config) Validate() error {
	if c.AI.BaseURL == "" {
		return fmt.Errorf("ai.base_url cannot be empty")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model cannot be empty")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2")
	}
	if c.AI.MaxTokens <= 0 || c.AI.ClassifyMaxTokens <= 0 {
		return fmt.Errorf("ai.max_tokens and ai.classify_max_tokens must be positive")
	}

	if c.Quota.Limit <= 0 {
		return fmt.Errorf("quota.limit must be positive")
	}
	if c.Quota.Window <= 0 {
		return fmt.Errorf("quota.window must be positive")
	}

	for name, t := range map[string]float64{
		"resolver.heuristic_threshold": c.Resolver.HeuristicThreshold,
		"resolver.grammar_threshold":   c.Resolver.GrammarThreshold,
		"resolver.remote_threshold":    c.Resolver.RemoteThreshold,
	} {
		if t < 0 || t > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}

	if c.Cache.MaxEntries <= 0 || c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl and cache.max_entries must be positive")
	}

	switch strings.ToLower(c.Storage.Driver) {
	case storage.DriverMemory, storage.DriverKeyring:
	case storage.DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case storage.DriverRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("invalid storage.driver '%s', must be one of: memory, sqlite, redis, keyring", c.Storage.Driver)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return c.GatewayConfig().Validate()
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPONENT VIEWS
// ═══════════════════════════════════════════════════════════════════════════════

// GatewayConfig returns the gateway view of the configuration.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Model:               c.AI.Model,
		Temperature:         c.AI.Temperature,
		MaxTokens:           c.AI.MaxTokens,
		ClassifyTemperature: c.AI.ClassifyTemperature,
		ClassifyMaxTokens:   c.AI.ClassifyMaxTokens,
		Retry: gateway.RetryConfig{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			Multiplier:  c.Retry.Multiplier,
		},
		Breaker: gateway.BreakerConfig{
			Enabled:             c.Breaker.Enabled,
			ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
			OpenTimeout:         c.Breaker.OpenTimeout,
		},
		QueueMax:         c.Queue.MaxEntries,
		AutoDrain:        c.Queue.AutoDrain,
		DrainReserve:     c.Queue.DrainReserve,
		ContextExchanges: c.Context.MaxExchanges,
	}
}

// ProviderConfig returns the AI provider view of the configuration.
func (c *Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Name:        "openai",
		Endpoint:    c.AI.BaseURL,
		Model:       c.AI.Model,
		MaxTokens:   c.AI.MaxTokens,
		Temperature: c.AI.Temperature,
		Timeout:     c.AI.RequestTimeout,
	}
}

// QuotaLimits returns the limiter view of the configuration.
func (c *Config) QuotaLimits() quota.Limits {
	return quota.Limits{Limit: c.Quota.Limit, Window: c.Quota.Window}
}

// Thresholds returns the resolver thresholds.
func (c *Config) Thresholds() resolver.Thresholds {
	return resolver.Thresholds{
		Heuristic: c.Resolver.HeuristicThreshold,
		Grammar:   c.Resolver.GrammarThreshold,
		Remote:    c.Resolver.RemoteThreshold,
	}
}

// StorageOptions returns the storage backend selection.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Driver:    c.Storage.Driver,
		Path:      c.Storage.Path,
		RedisAddr: c.Storage.RedisAddr,
		RedisDB:   c.Storage.RedisDB,
		KeyPrefix: c.Storage.KeyPrefix,
		Service:   "jarvis",
	}
}

// LoggerOptions returns the logger configuration.
func (c *Config) LoggerOptions() *logging.Config {
	return &logging.Config{
		Level:    c.Logging.Level,
		FilePath: c.Logging.File,
		JSON:     c.Logging.JSON,
	}
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
