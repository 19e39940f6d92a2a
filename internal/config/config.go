// Package config loads the environment-driven configuration shared by the
// collector, processor and warehouse-writer binaries.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of environment-driven settings named in the
// external-interfaces section of the specification.
type Config struct {
	// Exchange connectivity.
	DeribitWS     string `mapstructure:"DERIBIT_WS"`
	DeribitREST   string `mapstructure:"DERIBIT_REST"`
	DeribitID     string `mapstructure:"DERIBIT_ID"`
	DeribitSecret string `mapstructure:"DERIBIT_SECRET"`
	Currency      string `mapstructure:"CURRENCY"`

	// Collector tuning.
	MaxAuthInstruments                  int `mapstructure:"DERIBIT_MAX_AUTH_INSTRUMENTS"`
	DynamicSubRefreshIntervalSeconds    int `mapstructure:"DYNAMIC_SUBSCRIPTION_REFRESH_INTERVAL_SECONDS"`

	// Stream log.
	RedisURL string `mapstructure:"REDIS_URL"`

	// Warehouse.
	ClickHouseHost     string `mapstructure:"CLICKHOUSE_HOST"`
	ClickHousePort     int    `mapstructure:"CLICKHOUSE_PORT"`
	ClickHouseDBName   string `mapstructure:"CLICKHOUSE_DB_NAME"`
	ClickHouseUser     string `mapstructure:"CLICKHOUSE_USER"`
	ClickHousePassword string `mapstructure:"CLICKHOUSE_PASSWORD"`

	// Writer batching (not named by an env var in the spec's table, but
	// tunable since they appear as constants in the source implementation).
	BatchSize          int `mapstructure:"BATCH_SIZE"`
	BatchMaxAgeSeconds int `mapstructure:"BATCH_MAX_AGE_SECONDS"`

	// Startup gating, carried from the original implementation's
	// wait_for_redis helper (see SPEC_FULL.md §12).
	RedisWaitRetries int `mapstructure:"REDIS_WAIT_RETRIES"`
	RedisWaitDelay   time.Duration
}

// Authenticated reports whether OAuth2 client credentials were supplied.
func (c Config) Authenticated() bool {
	return c.DeribitID != "" && c.DeribitSecret != ""
}

// DynamicSubRefreshInterval is DynamicSubRefreshIntervalSeconds as a Duration.
func (c Config) DynamicSubRefreshInterval() time.Duration {
	return time.Duration(c.DynamicSubRefreshIntervalSeconds) * time.Second
}

// BatchMaxAge is BatchMaxAgeSeconds as a Duration.
func (c Config) BatchMaxAge() time.Duration {
	return time.Duration(c.BatchMaxAgeSeconds) * time.Second
}

// Load reads configuration from the process environment (and a ".env" file
// in the working directory, if present), applying the defaults named in the
// specification. It never fails on a missing .env file — only a malformed
// one reading as a config file is surfaced.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading .env file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.RedisWaitDelay = 3 * time.Second
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DERIBIT_WS", "wss://www.deribit.com/ws/api/v2")
	v.SetDefault("DERIBIT_REST", "https://www.deribit.com/api/v2")
	v.SetDefault("CURRENCY", "BTC")
	v.SetDefault("DERIBIT_MAX_AUTH_INSTRUMENTS", 100)
	v.SetDefault("DYNAMIC_SUBSCRIPTION_REFRESH_INTERVAL_SECONDS", 30)
	v.SetDefault("CLICKHOUSE_PORT", 9000)
	v.SetDefault("CLICKHOUSE_DB_NAME", "default")
	v.SetDefault("BATCH_SIZE", 100)
	v.SetDefault("BATCH_MAX_AGE_SECONDS", 10)
	v.SetDefault("REDIS_WAIT_RETRIES", 10)

	// Keys without a default are bound explicitly: AutomaticEnv alone does
	// not make Unmarshal see environment variables for keys viper has never
	// been told about.
	for _, key := range []string{"DERIBIT_ID", "DERIBIT_SECRET", "REDIS_URL", "CLICKHOUSE_HOST", "CLICKHOUSE_USER", "CLICKHOUSE_PASSWORD"} {
		_ = v.BindEnv(key)
	}
}
