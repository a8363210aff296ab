package tqconfig

import "testing"

func TestLoadUsesDefaultsWithNoEnv(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.Host != "localhost" {
		t.Fatalf("unexpected host: %s", cfg.Postgres.Host)
	}
	if cfg.Scheduler.Backend != "memory" {
		t.Fatalf("unexpected backend: %s", cfg.Scheduler.Backend)
	}
	if cfg.DefaultStatsShardCount != 1 {
		t.Fatalf("unexpected shard count: %d", cfg.DefaultStatsShardCount)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("TASQUENCER_POSTGRES__HOST", "db.internal")
	t.Setenv("TASQUENCER_SCHEDULER__BACKEND", "temporal")
	t.Setenv("TASQUENCER_DEFAULT_STATS_SHARD_COUNT", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Fatalf("unexpected host: %s", cfg.Postgres.Host)
	}
	if cfg.Scheduler.Backend != "temporal" {
		t.Fatalf("unexpected backend: %s", cfg.Scheduler.Backend)
	}
	if cfg.DefaultStatsShardCount != 8 {
		t.Fatalf("unexpected shard count: %d", cfg.DefaultStatsShardCount)
	}
}
