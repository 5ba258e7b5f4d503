package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMergeFillsZeroFields(t *testing.T) {
	partial := StrategyConfig{
		Common: CommonConfig{InitialBalance: 5000},
		DCA:    DCAConfig{MaxDCAOrders: 5},
	}

	merged := partial.Merge(DefaultStrategyConfig())

	if merged.Common.InitialBalance != 5000 {
		t.Errorf("Explicit balance was overwritten: %v", merged.Common.InitialBalance)
	}
	if merged.DCA.MaxDCAOrders != 5 {
		t.Errorf("Explicit DCA order count was overwritten: %d", merged.DCA.MaxDCAOrders)
	}
	if merged.Common.Leverage != 3 {
		t.Errorf("Expected default leverage 3, got %d", merged.Common.Leverage)
	}
	if merged.DCA.DCAMultiplier != 1.5 {
		t.Errorf("Expected default multiplier 1.5, got %v", merged.DCA.DCAMultiplier)
	}
	if merged.DCA.DCAPriceStepPct != 1.5 {
		t.Errorf("Expected default price step 1.5, got %v", merged.DCA.DCAPriceStepPct)
	}
	if merged.Scalping.StopLossPct != 0.5 {
		t.Errorf("Expected default scalping stop 0.5, got %v", merged.Scalping.StopLossPct)
	}
	if merged.ActiveStrategy != StrategyAuto {
		t.Errorf("Expected default strategy AUTO, got %q", merged.ActiveStrategy)
	}
}

func TestMergedPartialConfigValidates(t *testing.T) {
	partial := StrategyConfig{ActiveStrategy: StrategyDCA}
	merged := partial.Merge(DefaultStrategyConfig())
	if err := merged.Validate(); err != nil {
		t.Errorf("Merged partial config should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*StrategyConfig)
	}{
		{"unknown strategy", func(c *StrategyConfig) { c.ActiveStrategy = "MARTINGALE" }},
		{"zero leverage", func(c *StrategyConfig) { c.Common.Leverage = 0 }},
		{"negative balance", func(c *StrategyConfig) { c.Common.InitialBalance = -1 }},
		{"shrinking multiplier", func(c *StrategyConfig) { c.DCA.DCAMultiplier = 0.5 }},
		{"negative price step", func(c *StrategyConfig) { c.DCA.DCAPriceStepPct = -1 }},
	}

	for _, tc := range cases {
		cfg := DefaultStrategyConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestSignalSettingsMerge(t *testing.T) {
	partial := SignalSettings{ConfirmationRequired: 3}
	merged := partial.Merge(DefaultSignalSettings())

	if merged.ConfirmationRequired != 3 {
		t.Errorf("Explicit confirmation count was overwritten: %d", merged.ConfirmationRequired)
	}
	if merged.MinEntryConfidence != 0.6 {
		t.Errorf("Expected default entry confidence 0.6, got %v", merged.MinEntryConfidence)
	}
	if merged.BasePositionPct != 0.10 {
		t.Errorf("Expected default position size 0.10, got %v", merged.BasePositionPct)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load with missing file should fall back to defaults: %v", err)
	}
	if cfg.Strategy.DCA.MaxDCAOrders != 3 {
		t.Errorf("Expected default max DCA orders 3, got %d", cfg.Strategy.DCA.MaxDCAOrders)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Expected default server address :8080, got %q", cfg.Server.Address)
	}
}

func TestLoadPartialFileMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"strategy":{"active_strategy":"SCALPING","common":{"leverage":5}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Strategy.ActiveStrategy != StrategyScalping {
		t.Errorf("Expected SCALPING, got %q", cfg.Strategy.ActiveStrategy)
	}
	if cfg.Strategy.Common.Leverage != 5 {
		t.Errorf("Expected leverage 5, got %d", cfg.Strategy.Common.Leverage)
	}
	if cfg.Strategy.DCA.DCAMultiplier != 1.5 {
		t.Errorf("Unspecified fields should come from defaults, got multiplier %v", cfg.Strategy.DCA.DCAMultiplier)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"strategy":{"active_strategy":"NOPE"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected unknown strategy name to be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE_API_KEY", "test-key")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_PORT", "5433")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Exchange.APIKey != "test-key" {
		t.Errorf("Expected env API key, got %q", cfg.Exchange.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected env log level, got %q", cfg.Logging.Level)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Expected env DB port 5433, got %d", cfg.Database.Port)
	}
}
