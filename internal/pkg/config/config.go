package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
	"github.com/yuqie6/SkillLedger/internal/progression"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Sync     SyncConfig     `mapstructure:"sync"`
	External ExternalConfig `mapstructure:"external"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name      string `mapstructure:"name"`
	Version   string `mapstructure:"version"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text / json
	LogOutput string `mapstructure:"log_output"` // stdout / stderr / 文件路径
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// LedgerConfig 经验账本配置
type LedgerConfig struct {
	MaxLevel            int   `mapstructure:"max_level"`
	MaxGainPerCall      int64 `mapstructure:"max_gain_per_call"`
	AwardRetentionHours int   `mapstructure:"award_retention_hours"`
}

// CombatConfig 战斗等级公式参数
type CombatConfig struct {
	MagicWeight    float64 `mapstructure:"magic_weight"`
	MagicDivisor   float64 `mapstructure:"magic_divisor"`
	RangedDivisor  float64 `mapstructure:"ranged_divisor"`
	VitalityWeight float64 `mapstructure:"vitality_weight"`
}

// SyncConfig 链上同步配置
type SyncConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Workers        int    `mapstructure:"workers"`
	QueueSize      int    `mapstructure:"queue_size"`
	Cron           string `mapstructure:"cron"`
	PruneCron      string `mapstructure:"prune_cron"`
	BatchSize      int    `mapstructure:"batch_size"`
	MaxRetries     int    `mapstructure:"max_retries"`
	CallTimeoutSec int    `mapstructure:"call_timeout_sec"`
}

// ExternalConfig 外部协作方（内容上传 / 链上更新）配置
type ExternalConfig struct {
	UploaderURL         string `mapstructure:"uploader_url"`
	UploaderToken       string `mapstructure:"uploader_token"`
	ChainURL            string `mapstructure:"chain_url"`
	ChainToken          string `mapstructure:"chain_token"`
	MetadataSymbol      string `mapstructure:"metadata_symbol"`
	MetadataDescription string `mapstructure:"metadata_description"`
	ImageBaseURL        string `mapstructure:"image_base_url"`
}

// CombatWeights 转换为公式参数
func (c CombatConfig) CombatWeights() progression.CombatWeights {
	return progression.CombatWeights{
		MagicWeight:    c.MagicWeight,
		MagicDivisor:   c.MagicDivisor,
		RangedDivisor:  c.RangedDivisor,
		VitalityWeight: c.VitalityWeight,
	}.Normalize()
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// LoadAndWatch 加载配置，并在文件变化时回调（仅在存在配置文件时生效）
func LoadAndWatch(configPath string, onChange func(*Config)) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" || onChange == nil {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			logger.WithError(err).Warn("重新加载配置失败，保留旧配置")
			return
		}
		logger.WithFields(map[string]interface{}{"path": e.Name}).Info("配置已重新加载")
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 支持环境变量
	v.SetEnvPrefix("SKILLLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("配置文件未找到，使用默认配置")
		} else if configPath != "" && errors.Is(err, fs.ErrNotExist) {
			logger.WithFields(map[string]interface{}{"path": configPath}).Warn("配置文件不存在，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		logger.WithFields(map[string]interface{}{"path": v.ConfigFileUsed()}).Info("加载配置文件")
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 处理环境变量占位符
	cfg.External.UploaderToken = expandEnv(cfg.External.UploaderToken)
	cfg.External.ChainToken = expandEnv(cfg.External.ChainToken)

	// 处理相对路径
	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验关键参数
func (c *Config) Validate() error {
	if c.Ledger.MaxLevel < 2 {
		return fmt.Errorf("ledger.max_level 必须 >= 2，当前 %d", c.Ledger.MaxLevel)
	}
	if c.Ledger.MaxGainPerCall <= 0 {
		return fmt.Errorf("ledger.max_gain_per_call 必须为正数，当前 %d", c.Ledger.MaxGainPerCall)
	}
	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 1
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 50
	}
	return nil
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "skill-ledger")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "text")
	v.SetDefault("app.log_output", "stdout")

	// Storage
	v.SetDefault("storage.db_path", "./data/skill_ledger.db")
	v.SetDefault("storage.max_open_conns", 8)

	// Ledger
	v.SetDefault("ledger.max_level", progression.DefaultMaxLevel)
	v.SetDefault("ledger.max_gain_per_call", 10000)
	v.SetDefault("ledger.award_retention_hours", 24*30)

	// Combat
	v.SetDefault("combat.magic_weight", progression.DefaultCombatWeights.MagicWeight)
	v.SetDefault("combat.magic_divisor", progression.DefaultCombatWeights.MagicDivisor)
	v.SetDefault("combat.ranged_divisor", progression.DefaultCombatWeights.RangedDivisor)
	v.SetDefault("combat.vitality_weight", progression.DefaultCombatWeights.VitalityWeight)

	// Sync
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.workers", 2)
	v.SetDefault("sync.queue_size", 256)
	v.SetDefault("sync.cron", "0 */5 * * * *")
	v.SetDefault("sync.prune_cron", "0 0 * * * *")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.call_timeout_sec", 30)

	// External
	v.SetDefault("external.metadata_symbol", "HERO")
	v.SetDefault("external.metadata_description", "Skill progression record")
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径为绝对路径（相对于工作目录）
func resolvePath(path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
