// Package tqconfig loads the host-level configuration every Tasquencer
// engine needs to run: the backing store, the scheduler backend, logging,
// and a stats-sharding default host code can pass to
// builder.WithStatsShardCount.
// Values come from compiled-in defaults overridden by TASQUENCER_*
// environment variables.
package tqconfig

import (
	"fmt"
	"strings"

	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from every environment variable this package
// reads; double underscores in the remainder nest into dotted keys, so
// TASQUENCER_POSTGRES__HOST maps to postgres.host.
const envPrefix = "TASQUENCER_"

// PostgresConfig mirrors infra/postgres.Config's field-based DSN inputs.
type PostgresConfig struct {
	Host         string `koanf:"host"`
	Port         string `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	DBName       string `koanf:"dbname"`
	SSLMode      string `koanf:"sslmode"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// SchedulerConfig selects and configures a host scheduler backend.
type SchedulerConfig struct {
	// Backend is "memory" or "temporal".
	Backend           string `koanf:"backend"`
	TemporalHostPort  string `koanf:"temporal_host_port"`
	TemporalNamespace string `koanf:"temporal_namespace"`
	TemporalTaskQueue string `koanf:"temporal_task_queue"`
}

// LogConfig mirrors pkg/logger.Config's loadable fields.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Config is the complete set of host-level engine settings.
type Config struct {
	Postgres               PostgresConfig  `koanf:"postgres"`
	Scheduler              SchedulerConfig `koanf:"scheduler"`
	Log                    LogConfig       `koanf:"log"`
	DefaultStatsShardCount int             `koanf:"default_stats_shard_count"`
}

// Default returns the configuration used when no environment variable
// overrides a field.
func Default() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "tasquencer",
			DBName:       "tasquencer",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Scheduler: SchedulerConfig{
			Backend:           "memory",
			TemporalTaskQueue: "tasquencer",
		},
		Log: LogConfig{
			Level: "info",
		},
		DefaultStatsShardCount: 1,
	}
}

// Load builds a Config by layering TASQUENCER_*-prefixed environment
// variables over Default().
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("tqconfig: load defaults: %w", err)
	}
	envProvider := env.Provider(env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			key = strings.ToLower(key)
			key = strings.ReplaceAll(key, "__", ".")
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("tqconfig: load environment: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("tqconfig: unmarshal: %w", err)
	}
	return &cfg, nil
}
