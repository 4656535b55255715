// =============================================================================
// 📦 SuperAgent default configuration
// =============================================================================
// Sensible defaults for every configuration section
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Memory:    DefaultMemoryConfig(),
		Executor:  DefaultExecutorConfig(),
		Security:  DefaultSecurityConfig(),
		UX:        DefaultUXConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultLLMConfig returns the default Provider Router configuration.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider: "claude",
		APIKey:          "",
		BaseURL:         "",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
		Providers:       map[string]ProviderConfig{},
	}
}

// DefaultMemoryConfig returns the default Adaptive Memory configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		ShortTermLimit:       100,
		WorkingLimit:         10,
		LongTermLimit:        10000,
		CompressionThreshold: 50,
		EpisodicCapacity:     1000,
		EmbeddingModel:       "text-embedding-3-small",
		VectorStoreBackend:   "chromem",
	}
}

// DefaultExecutorConfig returns the default tool-executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeoutS:  30,
		EnableSnapshots:  true,
		MaxParallelSteps: 5,
	}
}

// DefaultSecurityConfig returns the default security boundaries.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AllowedPaths:   []string{"."},
		BlockedPaths:   []string{".git", ".superagent-checkpoints"},
		AllowedDomains: []string{},
		MaxFileSizeMB:  10,
	}
}

// DefaultUXConfig returns the default interactive-pipeline configuration.
func DefaultUXConfig() UXConfig {
	return UXConfig{
		DefaultModel:     "claude-3-5-sonnet-20241022",
		Temperature:      0.7,
		StreamingEnabled: true,
		AutoSave:         true,
	}
}

// DefaultRedisConfig returns the default cache connection settings.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig returns the default SQL store settings.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "superagent",
		Password:        "",
		Name:            "superagent",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "superagent",
		SampleRate:   0.1,
	}
}
