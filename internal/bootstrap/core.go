package bootstrap

import (
	"time"

	"github.com/yuqie6/SkillLedger/internal/eventbus"
	"github.com/yuqie6/SkillLedger/internal/external"
	"github.com/yuqie6/SkillLedger/internal/pkg/config"
	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/repository"
	"github.com/yuqie6/SkillLedger/internal/scheduler"
	"github.com/yuqie6/SkillLedger/internal/service"
)

// Core 持有跨命令共享的核心依赖
type Core struct {
	Cfg *config.Config
	DB  *repository.Database
	Hub *eventbus.Hub

	Repos struct {
		Experience *repository.ExperienceRepository
		Awards     *repository.AwardRepository
		Snapshots  *repository.SnapshotRepository
		Attempts   *repository.SyncAttemptRepository
		Tx         *repository.TxManager
	}

	Services struct {
		Ledger    *service.LedgerService
		Reconcile *service.ReconcileService
		Sync      *service.SyncService
	}

	Clients struct {
		Uploader *external.MetadataUploader
		Chain    *external.ChainClient
	}
}

// NewCore 按配置构建核心依赖（不启动后台任务）
func NewCore(cfg *config.Config) (*Core, error) {
	if err := logger.Init(cfg.App.LogLevel, cfg.App.LogFormat, cfg.App.LogOutput); err != nil {
		return nil, err
	}

	db, err := repository.NewDatabase(cfg.Storage.DBPath, repository.Options{MaxOpenConns: cfg.Storage.MaxOpenConns})
	if err != nil {
		logger.Close()
		return nil, err
	}

	c := &Core{Cfg: cfg, DB: db, Hub: eventbus.NewHub()}
	weights := cfg.Combat.CombatWeights()
	table := progression.NewTable(cfg.Ledger.MaxLevel)

	// Repos
	c.Repos.Experience = repository.NewExperienceRepository(db.DB)
	c.Repos.Awards = repository.NewAwardRepository(db.DB)
	c.Repos.Snapshots = repository.NewSnapshotRepository(db.DB, weights)
	c.Repos.Attempts = repository.NewSyncAttemptRepository(db.DB)
	c.Repos.Tx = repository.NewTxManager(db.DB)

	// Clients：未配置地址时不启用链上同步
	callTimeout := time.Duration(cfg.Sync.CallTimeoutSec) * time.Second
	var uploader service.Uploader
	var chain service.ChainUpdater
	if cfg.External.UploaderURL != "" && cfg.External.ChainURL != "" {
		c.Clients.Uploader = external.NewMetadataUploader(external.Config{
			BaseURL:    cfg.External.UploaderURL,
			Token:      cfg.External.UploaderToken,
			MaxRetries: cfg.Sync.MaxRetries,
			Timeout:    callTimeout,
		})
		c.Clients.Chain = external.NewChainClient(external.Config{
			BaseURL: cfg.External.ChainURL,
			Token:   cfg.External.ChainToken,
			Timeout: callTimeout,
		})
		uploader, chain = c.Clients.Uploader, c.Clients.Chain
	}

	// Services
	c.Services.Ledger = service.NewLedgerService(
		c.Repos.Tx,
		c.Repos.Experience,
		c.Repos.Awards,
		c.Repos.Snapshots,
		c.Hub,
		service.LedgerOptions{
			Table:          table,
			MaxGainPerCall: cfg.Ledger.MaxGainPerCall,
			AwardRetention: time.Duration(cfg.Ledger.AwardRetentionHours) * time.Hour,
		},
	)
	c.Services.Reconcile = service.NewReconcileService(c.Repos.Snapshots, weights, table)
	c.Services.Sync = service.NewSyncService(
		c.Repos.Tx,
		c.Repos.Experience,
		c.Services.Reconcile,
		c.Repos.Attempts,
		uploader,
		chain,
		c.Hub,
		service.SyncOptions{
			Metadata: service.MetadataOptions{
				Symbol:       cfg.External.MetadataSymbol,
				Description:  cfg.External.MetadataDescription,
				ImageBaseURL: cfg.External.ImageBaseURL,
				MaxLevel:     table.MaxLevel(),
			},
			Workers:     cfg.Sync.Workers,
			CallTimeout: callTimeout,
		},
	)

	return c, nil
}

// SyncConfigured 是否配置了外部协作方
func (c *Core) SyncConfigured() bool {
	return c.Clients.Uploader != nil && c.Clients.Chain != nil
}

// NewScheduler 构建后台补推与清理任务
func (c *Core) NewScheduler() *scheduler.SyncScheduler {
	opts := scheduler.Options{
		PruneCron: c.Cfg.Sync.PruneCron,
		BatchSize: c.Cfg.Sync.BatchSize,
		Retention: time.Duration(c.Cfg.Ledger.AwardRetentionHours) * time.Hour,
	}
	var syncer scheduler.PendingSyncer
	if c.Cfg.Sync.Enabled && c.SyncConfigured() {
		opts.SyncCron = c.Cfg.Sync.Cron
		syncer = c.Services.Sync
	}
	return scheduler.NewSyncScheduler(syncer, c.Services.Ledger, opts)
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	logger.Close()
	return dbErr
}
