// =============================================================================
// 📦 SuperAgent configuration loader
// =============================================================================
// Unified configuration loading: YAML file + environment overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SUPERAGENT").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 Core configuration structure
// =============================================================================

// Config is the full configuration for one SuperAgent process. Each field
// is a concrete per-subsystem section; there is no open key/value bag.
type Config struct {
	// LLM configures the Provider Router and its registered adapters.
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Memory configures the Adaptive Memory tiers.
	Memory MemoryConfig `yaml:"memory" env:"MEMORY"`

	// Executor configures the Transactional Tool Executor.
	Executor ExecutorConfig `yaml:"executor" env:"EXECUTOR"`

	// Security bounds what tools may touch.
	Security SecurityConfig `yaml:"security" env:"SECURITY"`

	// UX configures the interactive plan/preview/confirm pipeline.
	UX UXConfig `yaml:"ux" env:"UX"`

	// Redis configures the optional retrieval/result cache.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database configures the optional SQL-backed session store.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OTLP trace/metric export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ProviderConfig is one LLM provider block, keyed by provider name under
// llm.providers. Higher Priority means tried earlier in the fallback chain.
type ProviderConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Models     []string      `yaml:"models" env:"MODELS"`
	Priority   int           `yaml:"priority" env:"PRIORITY"`
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// LLMConfig configures the Provider Router. Per-provider blocks come from
// the YAML file only; environment overrides apply to the scalar fields.
type LLMConfig struct {
	// DefaultProvider names a default provider. The headless entrypoint
	// does not read it: the router orders providers by block priority.
	DefaultProvider string `yaml:"default_provider" env:"DEFAULT_PROVIDER"`

	// APIKey and BaseURL are used only when Providers is empty: the
	// entrypoint then synthesizes the claude and claude-sdk blocks from
	// them.
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// Timeout and MaxRetries are inherited by providers whose block
	// leaves them zero.
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`

	// Providers is keyed by provider name.
	Providers map[string]ProviderConfig `yaml:"providers" env:"-"`
}

// MemoryConfig configures the Adaptive Memory tiers.
type MemoryConfig struct {
	// ShortTermLimit bounds the short-term conversation window.
	ShortTermLimit int `yaml:"short_term_limit" env:"SHORT_TERM_LIMIT"`
	// WorkingLimit bounds the working tier's FIFO ring.
	WorkingLimit int `yaml:"working_limit" env:"WORKING_LIMIT"`
	// LongTermLimit bounds long-term items retained per session.
	LongTermLimit int `yaml:"long_term_limit" env:"LONG_TERM_LIMIT"`
	// CompressionThreshold is the pending-buffer size that triggers
	// compression into an episodic summary.
	CompressionThreshold int `yaml:"compression_threshold" env:"COMPRESSION_THRESHOLD"`
	// EpisodicCapacity bounds the episodic tier; oldest evicted first.
	EpisodicCapacity int `yaml:"episodic_capacity" env:"EPISODIC_CAPACITY"`
	// EmbeddingModel names the model used to vectorize documents.
	EmbeddingModel string `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
	// VectorStoreBackend names the vector index backend.
	VectorStoreBackend string `yaml:"vector_store_backend" env:"VECTOR_STORE_BACKEND"`
}

// ExecutorConfig configures the Transactional Tool Executor.
type ExecutorConfig struct {
	// DefaultTimeoutS is the per-tool-call timeout in seconds.
	DefaultTimeoutS int `yaml:"default_timeout_s" env:"DEFAULT_TIMEOUT_S"`
	// EnableSnapshots controls filesystem snapshotting at checkpoints.
	EnableSnapshots bool `yaml:"enable_snapshots" env:"ENABLE_SNAPSHOTS"`
	// MaxParallelSteps caps concurrent steps in one parallel group.
	MaxParallelSteps int `yaml:"max_parallel_steps" env:"MAX_PARALLEL_STEPS"`
}

// SecurityConfig bounds tool access to the filesystem and network.
type SecurityConfig struct {
	AllowedPaths   []string `yaml:"allowed_paths" env:"ALLOWED_PATHS"`
	BlockedPaths   []string `yaml:"blocked_paths" env:"BLOCKED_PATHS"`
	AllowedDomains []string `yaml:"allowed_domains" env:"ALLOWED_DOMAINS"`
	MaxFileSizeMB  int      `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB"`
}

// UXConfig configures the interactive pipeline.
type UXConfig struct {
	DefaultModel     string  `yaml:"default_model" env:"DEFAULT_MODEL"`
	Temperature      float64 `yaml:"temperature" env:"TEMPERATURE"`
	StreamingEnabled bool    `yaml:"streaming_enabled" env:"STREAMING_ENABLED"`
	AutoSave         bool    `yaml:"auto_save" env:"AUTO_SAVE"`
}

// RedisConfig configures the retrieval/result cache connection.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig configures the SQL session store.
type DatabaseConfig struct {
	// Driver is one of postgres, mysql, sqlite.
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths is advisory; the headless entrypoint always logs to
	// stderr so stdout stays reserved for the NDJSON stream.
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 Loader
// =============================================================================

// Loader builds a Config from defaults, an optional YAML file, and
// environment variables, in that order.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader returns a Loader with the SUPERAGENT env prefix and no file.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SUPERAGENT",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults and environment variables still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment-variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator appends a validator run after all sources are merged.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load merges defaults, file, and environment, then runs validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct tree, overriding any field whose env
// tag resolves to a set variable. Map-typed fields (the per-provider
// blocks) carry env:"-" and come from the YAML file only.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration gets duration syntax ("30s"), not a raw int.
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma-separated lists for []string fields.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 Helpers
// =============================================================================

// MustLoad loads path or panics. For program init paths only.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv builds a Config from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate rejects configurations no subsystem could run with. Fatal at
// startup; never retried.
func (c *Config) Validate() error {
	var errs []string

	if c.UX.Temperature < 0 || c.UX.Temperature > 2 {
		errs = append(errs, "ux.temperature must be between 0 and 2")
	}
	if c.Executor.DefaultTimeoutS <= 0 {
		errs = append(errs, "executor.default_timeout_s must be positive")
	}
	if c.Executor.MaxParallelSteps <= 0 {
		errs = append(errs, "executor.max_parallel_steps must be positive")
	}
	if c.Memory.WorkingLimit <= 0 {
		errs = append(errs, "memory.working_limit must be positive")
	}
	if c.Memory.CompressionThreshold <= 0 {
		errs = append(errs, "memory.compression_threshold must be positive")
	}
	if c.Security.MaxFileSizeMB < 0 {
		errs = append(errs, "security.max_file_size_mb must not be negative")
	}
	for name, p := range c.LLM.Providers {
		if name == "" {
			errs = append(errs, "llm.providers keys must be non-empty")
		}
		if p.Enabled && len(p.Models) == 0 {
			errs = append(errs, fmt.Sprintf("llm.providers.%s: enabled provider needs at least one model", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the connection string for the configured database driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
