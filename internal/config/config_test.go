package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
predict:
  api_base_url: https://api.predict.test
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.Name != "predikt-agent" {
		t.Fatalf("want default app name, got %q", cfg.App.Name)
	}
	if cfg.App.EnableTrading {
		t.Fatal("trading must default to off")
	}
	if cfg.Maker.HedgeMode != "FLATTEN" {
		t.Fatalf("want default hedge mode FLATTEN, got %q", cfg.Maker.HedgeMode)
	}
	if cfg.Arb.ScanInterval != 5*time.Second {
		t.Fatalf("want default scan interval 5s, got %v", cfg.Arb.ScanInterval)
	}
	if cfg.Arb.OrderbookConcurrency != 8 {
		t.Fatalf("want default orderbook concurrency 8, got %d", cfg.Arb.OrderbookConcurrency)
	}
	if cfg.Arb.MappingFilePath != "cross-platform-mapping.json" {
		t.Fatalf("want default mapping path, got %q", cfg.Arb.MappingFilePath)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
predict:
  api_base_url: https://api.predict.test
  ws_topic_key: conditionId
maker:
  spread: 0.04
  hedge_mode: CROSS
  hedge_trigger_shares: 75
arb:
  scan_interval: 2s
  auto_execute: true
  stability_min_count: 3
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Predict.WsTopicKey != "conditionId" {
		t.Fatalf("want ws_topic_key override, got %q", cfg.Predict.WsTopicKey)
	}
	if cfg.Maker.Spread != 0.04 || cfg.Maker.HedgeMode != "CROSS" || cfg.Maker.HedgeTriggerShares != 75 {
		t.Fatalf("maker overrides not applied: %+v", cfg.Maker)
	}
	if cfg.Arb.ScanInterval != 2*time.Second || !cfg.Arb.AutoExecute || cfg.Arb.StabilityMinCount != 3 {
		t.Fatalf("arb overrides not applied: %+v", cfg.Arb)
	}
	// Untouched keys keep their defaults.
	if cfg.Maker.MaxSpread != 0.08 {
		t.Fatalf("unrelated default clobbered: max_spread %v", cfg.Maker.MaxSpread)
	}
}

func TestLoadIsAFixedPoint(t *testing.T) {
	path := writeConfig(t, `
predict:
  api_base_url: https://api.predict.test
maker:
  spread: 0.035
arb:
  execution_cooldown: 90s
`)
	first, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("loading the same file twice must produce identical configs")
	}
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	if _, err := Load(writeConfig(t, "app:\n  log_level: debug\n")); err == nil {
		t.Fatal("want error for missing predict.api_base_url")
	}
}

func TestLoadRejectsInvalidHedgeMode(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
maker:
  hedge_mode: SIDEWAYS
`))
	if err == nil {
		t.Fatal("want error for unknown hedge mode")
	}
}

func TestLoadRequiresPrivateKeyWhenTradingEnabled(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
app:
  enable_trading: true
`))
	if err == nil {
		t.Fatal("want error when trading is enabled without a signing key")
	}
}

func TestLoadRejectsInvertedSpreadBounds(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
maker:
  min_spread: 0.1
  max_spread: 0.05
`))
	if err == nil {
		t.Fatal("want error for min_spread > max_spread")
	}
}
