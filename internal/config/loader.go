package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ruleforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RULEFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "RULEFORGE_CORS_ORIGIN")
	setInt64(&cfg.Server.BodyLimit, "RULEFORGE_BODY_LIMIT")
	setBool(&cfg.Auth.Enabled, "RULEFORGE_AUTH_ENABLED")
	setString(&cfg.Auth.APIKeyHash, "RULEFORGE_API_KEY_HASH")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RULEFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RULEFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RULEFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RULEFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RULEFORGE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.NATS.Enabled, "RULEFORGE_NATS_ENABLED")
	setString(&cfg.Logging.Level, "RULEFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RULEFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RULEFORGE_LOG_ASYNC")

	// Telemetry
	setBool(&cfg.Telemetry.Enabled, "RULEFORGE_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "RULEFORGE_TELEMETRY_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "RULEFORGE_TELEMETRY_INSECURE")
	setFloat64(&cfg.Telemetry.SampleRatio, "RULEFORGE_TELEMETRY_SAMPLE_RATIO")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "RULEFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "RULEFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "RULEFORGE_CACHE_L2_TTL")
	setDuration(&cfg.Cache.ValidationTTL, "RULEFORGE_CACHE_VALIDATION_TTL")

	// Validator
	setInt(&cfg.Validator.MaxCodeSize, "RULEFORGE_VALIDATOR_MAX_CODE_SIZE")
	setInt(&cfg.Validator.MaxNestingDepth, "RULEFORGE_VALIDATOR_MAX_NESTING_DEPTH")

	// Engine
	setDuration(&cfg.Engine.ConditionTimeout, "RULEFORGE_ENGINE_CONDITION_TIMEOUT")
	setDuration(&cfg.Engine.ActionTimeout, "RULEFORGE_ENGINE_ACTION_TIMEOUT")
	setInt(&cfg.Engine.MaxNodes, "RULEFORGE_ENGINE_MAX_NODES")
	setInt(&cfg.Engine.MaxCalls, "RULEFORGE_ENGINE_MAX_CALLS")

	// Dispatch pipeline guards
	setDuration(&cfg.Dispatch.QuotaWindow, "RULEFORGE_QUOTA_WINDOW")
	setInt(&cfg.Dispatch.QuotaMaxPerWindow, "RULEFORGE_QUOTA_MAX_PER_WINDOW")
	setInt(&cfg.Dispatch.QuotaMaxPerRequest, "RULEFORGE_QUOTA_MAX_PER_REQUEST")
	setInt(&cfg.Dispatch.BreakerThreshold, "RULEFORGE_BREAKER_THRESHOLD")
	setDuration(&cfg.Dispatch.BreakerCooldown, "RULEFORGE_BREAKER_COOLDOWN")
	setDuration(&cfg.Dispatch.DedupWindow, "RULEFORGE_DEDUP_WINDOW")
	setDuration(&cfg.Dispatch.DedupRetention, "RULEFORGE_DEDUP_RETENTION")
	setInt(&cfg.Dispatch.MaxConcurrent, "RULEFORGE_DISPATCH_MAX_CONCURRENT")
	setDuration(&cfg.Dispatch.MaintenanceInterval, "RULEFORGE_MAINTENANCE_INTERVAL")
	setDuration(&cfg.Dispatch.MaintenanceMaxIdle, "RULEFORGE_MAINTENANCE_MAX_IDLE")

	// HTTP rate limiting
	setFloat64(&cfg.Rate.RequestsPerSecond, "RULEFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "RULEFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "RULEFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "RULEFORGE_RATE_MAX_IDLE_TIME")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "RULEFORGE_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "RULEFORGE_IDEMPOTENCY_TTL")

	// Webhook ingestion
	setDuration(&cfg.Webhook.DedupWindow, "RULEFORGE_WEBHOOK_DEDUP_WINDOW")
	setString(&cfg.Webhook.DedupBucket, "RULEFORGE_WEBHOOK_DEDUP_BUCKET")

	// MCP
	setBool(&cfg.MCP.Enabled, "RULEFORGE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "RULEFORGE_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "RULEFORGE_MCP_API_KEY")

	setString(&cfg.Policies.SeedDir, "RULEFORGE_POLICY_SEED_DIR")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.Enabled && cfg.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Auth.Enabled && cfg.Auth.APIKeyHash == "" {
		return errors.New("auth.api_key_hash is required when auth is enabled")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0, 1]")
	}
	if cfg.Engine.ConditionTimeout < 1 || cfg.Engine.ActionTimeout < 1 {
		return errors.New("engine timeouts must be positive")
	}
	if cfg.Engine.MaxNodes < 1 || cfg.Engine.MaxCalls < 1 {
		return errors.New("engine budgets must be positive")
	}
	if cfg.Dispatch.QuotaWindow < 1 || cfg.Dispatch.QuotaMaxPerWindow < 1 {
		return errors.New("dispatch quota window and limit must be positive")
	}
	if cfg.Dispatch.BreakerThreshold < 1 || cfg.Dispatch.BreakerCooldown < 1 {
		return errors.New("dispatch breaker threshold and cooldown must be positive")
	}
	if cfg.Dispatch.DedupWindow < 1 {
		return errors.New("dispatch.dedup_window must be positive")
	}
	if cfg.Dispatch.DedupRetention < cfg.Dispatch.DedupWindow {
		return errors.New("dispatch.dedup_retention must be >= dispatch.dedup_window")
	}
	if cfg.Dispatch.MaxConcurrent < 1 {
		return errors.New("dispatch.max_concurrent must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	for _, src := range cfg.Webhook.Sources {
		if src.Name == "" {
			return errors.New("webhook source name is required")
		}
		switch src.Scheme {
		case "hmac-sha256", "token":
		default:
			return fmt.Errorf("webhook source %q: scheme %q is not one of hmac-sha256, token", src.Name, src.Scheme)
		}
		if src.SecretEnv == "" {
			return fmt.Errorf("webhook source %q: secret_env is required", src.Name)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
