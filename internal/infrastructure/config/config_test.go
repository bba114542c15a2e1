package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.StoreDriver != DriverMongo || cfg.Mongo.Database != "pallet_system" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis should be disabled without REDIS_ADDR")
	}
	if cfg.Assign.Workers != 8 || cfg.Assign.LockTTL != 5*time.Second {
		t.Fatalf("unexpected assign defaults: %+v", cfg.Assign)
	}
	if cfg.WS.ReadLimit != 65536 || cfg.WS.PingInterval != 30*time.Second || cfg.WS.PongWait != time.Minute {
		t.Fatalf("unexpected ws defaults: %+v", cfg.WS)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"STORE_DRIVER":            "memory",
		"REDIS_ADDR":              "localhost:6379",
		"ASSIGN_DISTRIBUTED_LOCK": "true",
		"ASSIGN_WORKERS":          "2",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != DriverMemory || !cfg.Assign.DistributedLock || cfg.Assign.Workers != 2 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":  {"STORE_DRIVER": "postgres"},
		"lock no redis":   {"ASSIGN_DISTRIBUTED_LOCK": "true"},
		"pong below ping": {"WS_PING_INTERVAL": "30s", "WS_PONG_WAIT": "10s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(context.Background(), envconfig.MapLookuper(env))
			if err == nil || !strings.HasPrefix(err.Error(), "config:") {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}
