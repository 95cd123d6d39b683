package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
exchanges:
  binance:
    symbols: ["BTC/USDT"]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	pm := cfg.Alerts.PriceMove
	if pm.Pct24h != 0.05 || pm.PctShort != 0.02 {
		t.Errorf("unexpected default thresholds: %+v", pm)
	}
	if pm.Window24hMs != 24*3600*1000 {
		t.Errorf("unexpected default 24h window: %d", pm.Window24hMs)
	}
	if !pm.UseDepthMid {
		t.Error("use_depth_mid should default to true")
	}
	ex := cfg.Exchanges["binance"]
	if ex.ReconnectDelayS != 5 {
		t.Errorf("reconnect_delay default = %d, want 5", ex.ReconnectDelayS)
	}
	if ex.SnapshotLimit != 1000 {
		t.Errorf("snapshot_limit default = %d, want 1000", ex.SnapshotLimit)
	}
	if len(ex.Streams) != 1 || ex.Streams[0] != "ticker" {
		t.Errorf("streams default = %v, want [ticker]", ex.Streams)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("storage backend default = %s", cfg.Storage.Backend)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeTempConfig(t, `
exchanges:
  binance:
    symbols: ["BTC/USDT", "ETH/USDT"]
    streams: ["ticker", "aggTrade", "depth"]
    depth_levels: 10
    reconnect_delay: 3
alerts:
  price_move:
    pct_24h: 0.10
    use_depth_mid: false
  flow:
    threshold: 0.8
storage:
  backend: redis
  redis_url: redis://cache:6379/1
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Alerts.PriceMove.Pct24h != 0.10 {
		t.Errorf("pct_24h = %v, want 0.10", cfg.Alerts.PriceMove.Pct24h)
	}
	if cfg.Alerts.PriceMove.UseDepthMid {
		t.Error("use_depth_mid should be false")
	}
	// untouched sibling key keeps its default
	if cfg.Alerts.PriceMove.PctShort != 0.02 {
		t.Errorf("pct_short = %v, want default 0.02", cfg.Alerts.PriceMove.PctShort)
	}
	if cfg.Alerts.Flow.Threshold != 0.8 {
		t.Errorf("flow threshold = %v, want 0.8", cfg.Alerts.Flow.Threshold)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisURL != "redis://cache:6379/1" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if got := cfg.Exchanges["binance"].DepthLevels; got != 10 {
		t.Errorf("depth_levels = %d, want 10", got)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no exchanges", `alerts: {}`},
		{"no symbols", "exchanges:\n  binance: {}\n"},
		{"bad flow threshold", `
exchanges:
  binance:
    symbols: ["BTC/USDT"]
alerts:
  flow:
    threshold: 1.5
`},
		{"bad backend", `
exchanges:
  binance:
    symbols: ["BTC/USDT"]
storage:
  backend: dynamo
`},
		{"bad archive format", `
exchanges:
  binance:
    symbols: ["BTC/USDT"]
archive:
  format: csv
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.content)
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadConfigEnvOverridesSecrets(t *testing.T) {
	t.Setenv("SMTP_PASSWORD", "hunter2")
	t.Setenv("REDIS_URL", "redis://prod-cache:6379/0")

	path := writeTempConfig(t, `
exchanges:
  binance:
    symbols: ["BTC/USDT"]
alerts:
  email:
    password: from-yaml
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Alerts.Email.Password != "hunter2" {
		t.Errorf("password = %q, want env value", cfg.Alerts.Email.Password)
	}
	if cfg.Storage.RedisURL != "redis://prod-cache:6379/0" {
		t.Errorf("redis url = %q, want env value", cfg.Storage.RedisURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
