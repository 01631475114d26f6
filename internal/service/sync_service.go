package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yuqie6/SkillLedger/internal/eventbus"
	"github.com/yuqie6/SkillLedger/internal/pkg/apperr"
	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/schema"
)

// SyncOptions 链上同步参数
type SyncOptions struct {
	Metadata    MetadataOptions
	Workers     int
	CallTimeout time.Duration
}

// SyncOutcome 一次成功推送的结果
type SyncOutcome struct {
	EntityID  string   `json:"entity_id"`
	AttemptID string   `json:"attempt_id"`
	URI       string   `json:"uri"`
	Signature string   `json:"signature"`
	Revision  int64    `json:"revision"`
	Cleared   []string `json:"cleared"`
}

// SyncReport 批量推送汇总
type SyncReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// SyncService 把升级后的快照发布到内容存储与链上
// 外部调用期间不持有任何数据库事务；失败只保留待同步标记
type SyncService struct {
	tx        TxManager
	exp       ExperienceRepository
	reconcile *ReconcileService
	attempts  SyncAttemptRepository
	uploader  Uploader
	chain     ChainUpdater
	publisher EventPublisher
	opts      SyncOptions

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSyncService(tx TxManager, exp ExperienceRepository, reconcile *ReconcileService, attempts SyncAttemptRepository, uploader Uploader, chain ChainUpdater, publisher EventPublisher, opts SyncOptions) *SyncService {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	return &SyncService{
		tx:        tx,
		exp:       exp,
		reconcile: reconcile,
		attempts:  attempts,
		uploader:  uploader,
		chain:     chain,
		publisher: publisher,
		opts:      opts,
		inFlight:  make(map[string]struct{}),
	}
}

func (s *SyncService) acquire(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[entityID]; busy {
		return false
	}
	s.inFlight[entityID] = struct{}{}
	return true
}

func (s *SyncService) release(entityID string) {
	s.mu.Lock()
	delete(s.inFlight, entityID)
	s.mu.Unlock()
}

// SyncEntity 推送实体当前状态；同一实体同时只允许一个推送
func (s *SyncService) SyncEntity(ctx context.Context, entityID string) (*SyncOutcome, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, apperr.Validation("实体 ID 不能为空")
	}
	if s.uploader == nil || s.chain == nil {
		return nil, apperr.ExternalSync("外部同步未配置", nil)
	}
	if !s.acquire(entityID) {
		return nil, apperr.ErrSyncInFlight
	}
	defer s.release(entityID)

	rows, err := s.exp.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, apperr.Storage("查询技能失败", err)
	}
	var ledger progression.Levels
	pending := make(map[progression.Skill]struct{})
	for _, row := range rows {
		sk, err := progression.ParseSkill(row.Skill)
		if err != nil {
			continue
		}
		ledger[sk] = row.Level
		if row.PendingExternalSync {
			pending[sk] = struct{}{}
		}
	}

	// 先把经验表的等级合并进快照，发布的文档不会低于账本
	snap, err := s.reconcile.ReconcileSnapshot(ctx, entityID, &Snapshot{Levels: ledger})
	if err != nil {
		return nil, err
	}
	doc := BuildMetadata(snap, s.opts.Metadata)

	attempt := &schema.SyncAttempt{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Revision:  snap.Revision,
		Status:    schema.SyncStatusRunning,
		Stage:     "upload",
		StartedAt: time.Now(),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, apperr.Storage("写入同步记录失败", err)
	}

	uri, err := s.callUpload(ctx, doc)
	if err != nil {
		return nil, s.fail(ctx, attempt, err)
	}
	attempt.URI = uri
	attempt.Stage = "chain"

	sig, err := s.callChain(ctx, entityID, uri)
	if err != nil {
		return nil, s.fail(ctx, attempt, err)
	}
	attempt.Signature = sig

	out := &SyncOutcome{EntityID: entityID, AttemptID: attempt.ID, URI: uri, Signature: sig}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		stored, err := s.reconcile.ReconcileSnapshot(ctx, entityID, &Snapshot{ExternalRecordURI: uri, ExternalTxRef: sig})
		if err != nil {
			return err
		}
		out.Revision = stored.Revision
		// 只清除本轮触发的技能，且仅当库中等级没有超过已发布等级
		for _, sk := range progression.AllSkills() {
			if _, ok := pending[sk]; !ok {
				continue
			}
			n, err := s.exp.ClearPending(ctx, entityID, sk.Key(), snap.Levels.Get(sk))
			if err != nil {
				return err
			}
			if n > 0 {
				out.Cleared = append(out.Cleared, sk.Key())
			}
		}
		return nil
	})
	if err != nil {
		// 链上已更新但本地未落库：保留待同步标记，下次推送会覆盖
		attempt.Status = schema.SyncStatusFailed
		attempt.Error = err.Error()
		s.finish(ctx, attempt)
		return nil, apperr.Storage("写入同步结果失败", err)
	}

	attempt.Status = schema.SyncStatusSucceeded
	s.finish(ctx, attempt)

	logger.WithFields(logrus.Fields{
		"entity_id": entityID,
		"uri":       uri,
		"signature": sig,
		"cleared":   out.Cleared,
	}).Info("链上记录已更新")
	if s.publisher != nil {
		s.publisher.Publish(eventbus.Event{
			Type:     eventbus.TypeSyncFinished,
			EntityID: entityID,
			Data:     map[string]any{"uri": uri, "signature": sig},
		})
	}
	return out, nil
}

func (s *SyncService) callUpload(ctx context.Context, doc *MetadataDocument) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.uploader.UploadMetadata(callCtx, doc)
}

func (s *SyncService) callChain(ctx context.Context, entityID, uri string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	return s.chain.UpdateOnChainRecord(callCtx, entityID, uri)
}

func (s *SyncService) fail(ctx context.Context, attempt *schema.SyncAttempt, cause error) error {
	attempt.Status = schema.SyncStatusFailed
	attempt.Error = cause.Error()
	s.finish(ctx, attempt)

	logger.WithFields(logrus.Fields{
		"entity_id": attempt.EntityID,
		"stage":     attempt.Stage,
	}).WithError(cause).Warn("链上同步失败，保留待同步标记")
	return apperr.ExternalSync(attempt.Stage+" 失败", cause)
}

func (s *SyncService) finish(ctx context.Context, attempt *schema.SyncAttempt) {
	// 调用方 ctx 可能已超时，记录结束状态不受其影响
	if err := s.attempts.Finish(context.WithoutCancel(ctx), attempt); err != nil {
		logger.WithError(err).Warn("更新同步记录失败")
	}
}

// SyncPending 依次推送待同步实体
func (s *SyncService) SyncPending(ctx context.Context, limit int) (SyncReport, error) {
	var report SyncReport
	ids, err := s.exp.ListPendingEntities(ctx, limit)
	if err != nil {
		return report, apperr.Storage("查询待同步实体失败", err)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Attempted++
		_, err := s.SyncEntity(ctx, id)
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, apperr.ErrSyncInFlight):
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report, nil
}

// Run 消费升级事件并推送，直到 ctx 结束或事件通道关闭
func (s *SyncService) Run(ctx context.Context, events <-chan eventbus.Event) {
	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-events:
					if !ok {
						return
					}
					if evt.Type != eventbus.TypeLevelUp || evt.EntityID == "" {
						continue
					}
					s.handle(ctx, evt)
				}
			}
		}()
	}
	wg.Wait()
}

func (s *SyncService) handle(ctx context.Context, evt eventbus.Event) {
	_, err := s.SyncEntity(ctx, evt.EntityID)
	if err == nil {
		return
	}
	fields := logrus.Fields{"entity_id": evt.EntityID, "skill": evt.Skill, "level": evt.Level}
	if errors.Is(err, apperr.ErrSyncInFlight) {
		logger.WithFields(fields).Debug("已有推送在进行，交由定时任务补推")
		return
	}
	logger.WithFields(fields).WithError(err).Warn("升级推送失败")
}

// ListSyncAttempts 最近的推送记录
func (s *SyncService) ListSyncAttempts(ctx context.Context, entityID string, limit int) ([]schema.SyncAttempt, error) {
	rows, err := s.attempts.ListByEntity(ctx, strings.TrimSpace(entityID), limit)
	if err != nil {
		return nil, apperr.Storage("查询同步记录失败", err)
	}
	return rows, nil
}
