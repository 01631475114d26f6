package config

import (
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Ledger.MaxLevel != 99 || cfg.Ledger.MaxGainPerCall != 10000 {
		t.Fatalf("ledger defaults = %+v", cfg.Ledger)
	}
	w := cfg.Combat.CombatWeights()
	if w.MagicWeight != 1.5 || w.MagicDivisor != 2.5 || w.RangedDivisor != 2 || w.VitalityWeight != 0.25 {
		t.Fatalf("combat defaults = %+v", w)
	}
	if !filepath.IsAbs(cfg.Storage.DBPath) {
		t.Fatalf("db path not resolved: %s", cfg.Storage.DBPath)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SKILLLEDGER_LEDGER_MAX_GAIN_PER_CALL", "500")
	t.Setenv("SKILLLEDGER_EXTERNAL_CHAIN_URL", "http://signer.local")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Ledger.MaxGainPerCall != 500 {
		t.Fatalf("max gain = %d, want 500", cfg.Ledger.MaxGainPerCall)
	}
	if cfg.External.ChainURL != "http://signer.local" {
		t.Fatalf("chain url = %q", cfg.External.ChainURL)
	}
}

func TestWriteFileThenLoad(t *testing.T) {
	t.Setenv("SKILLLEDGER_CHAIN_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config", "config.yaml")

	cfg := Default()
	cfg.Ledger.MaxGainPerCall = 2500
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "ledger.db")
	cfg.External.ChainToken = "secret"
	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Ledger.MaxGainPerCall != 2500 {
		t.Fatalf("max gain = %d", loaded.Ledger.MaxGainPerCall)
	}
	// 密钥以占位符形式落盘，读取时从环境变量展开
	if loaded.External.ChainToken != "from-env" {
		t.Fatalf("chain token = %q, want from-env", loaded.External.ChainToken)
	}
}

func TestValidateRejectsBadLedger(t *testing.T) {
	cfg := Default()
	cfg.Ledger.MaxGainPerCall = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
