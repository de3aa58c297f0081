// =============================================================================
// Gateway default configuration
// =============================================================================
package config

import "time"

// DefaultConfig returns the gateway's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Admin:     DefaultAdminConfig(),
		Quota:     DefaultQuotaConfig(),
		Providers: DefaultProvidersConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second, // streaming responses outlive the non-streaming default
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultDatabaseConfig returns the default database configuration: a
// local sqlite file, suitable for a first run with no external database.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "gateway.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns the default Redis configuration. Addr is
// empty by default, so the optional cache/rate-limiter backing store
// stays disabled until explicitly configured.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "gateway",
		SampleRate:   0.1,
	}
}

// DefaultAdminConfig returns the default admin configuration.
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{
		IdentityToken:    "",
		DispatchStrategy: "first_available",
		APIKeyLogPolicy:  "masked",
	}
}

// DefaultQuotaConfig returns the default quota configuration.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{DefaultMaxAmount: 0}
}

// DefaultProvidersConfig returns the default providers configuration: no
// redirects, i.e. every requested model id is dispatched as given.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{Redirects: map[string]string{}}
}
