package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
	"github.com/yuqie6/SkillLedger/internal/service"
)

type PendingSyncer interface {
	SyncPending(ctx context.Context, limit int) (service.SyncReport, error)
}

type AwardPruner interface {
	PruneAwardEvents(ctx context.Context, retention time.Duration) (int64, error)
}

// Options 定时任务参数；表达式为空则不注册对应任务
type Options struct {
	SyncCron  string
	PruneCron string
	BatchSize int
	Retention time.Duration
}

// SyncScheduler 后台补推待同步实体，并定期清理过期幂等记录
type SyncScheduler struct {
	cron   *cron.Cron
	syncer PendingSyncer
	pruner AwardPruner
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewSyncScheduler(syncer PendingSyncer, pruner AwardPruner, opts Options) *SyncScheduler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		syncer: syncer,
		pruner: pruner,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *SyncScheduler) Start() error {
	if s.opts.SyncCron != "" && s.syncer != nil {
		if _, err := s.cron.AddFunc(s.opts.SyncCron, s.SyncOnce); err != nil {
			return fmt.Errorf("注册同步任务失败: %w", err)
		}
	}
	if s.opts.PruneCron != "" && s.pruner != nil {
		if _, err := s.cron.AddFunc(s.opts.PruneCron, s.PruneOnce); err != nil {
			return fmt.Errorf("注册清理任务失败: %w", err)
		}
	}

	s.cron.Start()
	logger.WithFields(logrus.Fields{
		"sync_cron":  s.opts.SyncCron,
		"prune_cron": s.opts.PruneCron,
	}).Info("同步调度器已启动")
	return nil
}

// Stop 取消进行中的任务并等待退出
func (s *SyncScheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		ctx := s.cron.Stop()
		<-ctx.Done()
		logger.Info("同步调度器已停止")
	})
}

// SyncOnce 补推一批待同步实体
func (s *SyncScheduler) SyncOnce() {
	start := time.Now()
	report, err := s.syncer.SyncPending(s.ctx, s.opts.BatchSize)
	if err != nil {
		logger.WithError(err).Warn("补推待同步实体失败")
		return
	}
	if report.Attempted == 0 {
		return
	}
	logger.WithFields(logrus.Fields{
		"attempted": report.Attempted,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"elapsed":   time.Since(start).String(),
	}).Info("补推完成")
}

// PruneOnce 清理过期的发放幂等记录
func (s *SyncScheduler) PruneOnce() {
	if _, err := s.pruner.PruneAwardEvents(s.ctx, s.opts.Retention); err != nil {
		logger.WithError(err).Warn("清理发放记录失败")
	}
}
