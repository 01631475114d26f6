package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

func DefaultConfigPath() string {
	return filepath.Join("config", "config.yaml")
}

// WriteFile 将配置写成 yaml（密钥保留占位符，避免明文落盘）
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":       cfg.App.Name,
			"version":    cfg.App.Version,
			"log_level":  cfg.App.LogLevel,
			"log_format": cfg.App.LogFormat,
			"log_output": cfg.App.LogOutput,
		},
		"storage": map[string]any{
			"db_path":        cfg.Storage.DBPath,
			"max_open_conns": cfg.Storage.MaxOpenConns,
		},
		"ledger": map[string]any{
			"max_level":             cfg.Ledger.MaxLevel,
			"max_gain_per_call":     cfg.Ledger.MaxGainPerCall,
			"award_retention_hours": cfg.Ledger.AwardRetentionHours,
		},
		"combat": map[string]any{
			"magic_weight":    cfg.Combat.MagicWeight,
			"magic_divisor":   cfg.Combat.MagicDivisor,
			"ranged_divisor":  cfg.Combat.RangedDivisor,
			"vitality_weight": cfg.Combat.VitalityWeight,
		},
		"sync": map[string]any{
			"enabled":          cfg.Sync.Enabled,
			"workers":          cfg.Sync.Workers,
			"queue_size":       cfg.Sync.QueueSize,
			"cron":             cfg.Sync.Cron,
			"prune_cron":       cfg.Sync.PruneCron,
			"batch_size":       cfg.Sync.BatchSize,
			"max_retries":      cfg.Sync.MaxRetries,
			"call_timeout_sec": cfg.Sync.CallTimeoutSec,
		},
		"external": map[string]any{
			"uploader_url":         cfg.External.UploaderURL,
			"uploader_token":       tokenPlaceholder(cfg.External.UploaderToken, "SKILLLEDGER_UPLOADER_TOKEN"),
			"chain_url":            cfg.External.ChainURL,
			"chain_token":          tokenPlaceholder(cfg.External.ChainToken, "SKILLLEDGER_CHAIN_TOKEN"),
			"metadata_symbol":      cfg.External.MetadataSymbol,
			"metadata_description": cfg.External.MetadataDescription,
			"image_base_url":       cfg.External.ImageBaseURL,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

func tokenPlaceholder(token, envVar string) string {
	if token == "" {
		return ""
	}
	return "${" + envVar + "}"
}
