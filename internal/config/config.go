package config

import "time"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Routing  RoutingConfig  `yaml:"routing"`
	Fallback FallbackConfig `yaml:"fallback"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Budget   BudgetConfig   `yaml:"budget"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RoutingConfig holds tier selection defaults and escalation thresholds.
// Thresholds are operator-tunable; the escalation rule order itself is fixed
// in the router.
type RoutingConfig struct {
	DefaultTier         string               `yaml:"default_tier"`
	EnterpriseThreshold float64              `yaml:"enterprise_threshold"`
	MidMarketThreshold  float64              `yaml:"mid_market_threshold"`
	TierPreferences     map[string][]string  `yaml:"tier_preferences"`
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

// FallbackConfig holds the per-model fallback chains. Chains are authored
// independently per model and may reference each other; the executor is
// responsible for cycle safety when traversing them.
type FallbackConfig struct {
	MaxAttempts int                 `yaml:"max_attempts"`
	Chains      map[string][]string `yaml:"chains"`
}

type CacheConfig struct {
	// VolatileFields are payload fields excluded from cache keys for tasks
	// that declare no explicit allowlist.
	VolatileFields []string `yaml:"volatile_fields"`
	// EntityFields are checked in order for an entity identifier to embed
	// in the cache key, enabling per-entity invalidation.
	EntityFields []string `yaml:"entity_fields"`
	// SweepIntervalSeconds drives the daemon's periodic expired-entry sweep.
	// Zero disables the schedule; the sweep endpoint still works.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type MetricsConfig struct {
	HistorySize int `yaml:"history_size"`
}

type BudgetConfig struct {
	DailyLimitUSD float64 `yaml:"daily_limit_usd"`
	// Enforce rejects calls once the daily limit is reached. When false the
	// limit is advisory and only logged.
	Enforce bool `yaml:"enforce"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addresses: []string{""},
			DB:        0,
			PoolSize:  20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Routing: RoutingConfig{
			DefaultTier:         "balanced",
			EnterpriseThreshold: 100000,
			MidMarketThreshold:  10000,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Fallback: FallbackConfig{
			MaxAttempts: 3,
		},
		Cache: CacheConfig{
			VolatileFields:       []string{"timestamp", "requestId", "sessionId", "nonce"},
			EntityFields:         []string{"companyId", "customerId", "entityId", "accountId"},
			SweepIntervalSeconds: 300,
		},
		Metrics: MetricsConfig{
			HistorySize: 1000,
		},
		Budget: BudgetConfig{
			DailyLimitUSD: 0,
			Enforce:       false,
		},
	}
}
