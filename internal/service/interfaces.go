package service

import (
	"context"
	"time"

	"github.com/yuqie6/SkillLedger/internal/eventbus"
	"github.com/yuqie6/SkillLedger/internal/repository"
	"github.com/yuqie6/SkillLedger/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type ExperienceRepository interface {
	Increment(ctx context.Context, entityID, skill string, gain int64) (repository.IncrementResult, error)
	RaiseLevel(ctx context.Context, entityID, skill string, level int, markPending bool) error
	Get(ctx context.Context, entityID, skill string) (*schema.SkillExperience, error)
	ListByEntity(ctx context.Context, entityID string) ([]schema.SkillExperience, error)
	ListPendingEntities(ctx context.Context, limit int) ([]string, error)
	ClearPending(ctx context.Context, entityID, skill string, publishedLevel int) (int64, error)
}

type AwardRepository interface {
	TryRecord(ctx context.Context, ev *schema.AwardEvent) (bool, error)
	Get(ctx context.Context, key string) (*schema.AwardEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SnapshotRepository interface {
	Get(ctx context.Context, entityID string) (*schema.EntitySnapshot, error)
	MergeUpsert(ctx context.Context, in *schema.EntitySnapshot) (*schema.EntitySnapshot, error)
	EnsureCreated(ctx context.Context, entityID, name string) (*schema.EntitySnapshot, error)
}

type SyncAttemptRepository interface {
	Create(ctx context.Context, a *schema.SyncAttempt) error
	Finish(ctx context.Context, a *schema.SyncAttempt) error
	ListByEntity(ctx context.Context, entityID string, limit int) ([]schema.SyncAttempt, error)
}

// Uploader 内容寻址存储：上传元数据文档，返回其地址
type Uploader interface {
	UploadMetadata(ctx context.Context, doc *MetadataDocument) (string, error)
}

// ChainUpdater 链上记录更新：把实体指向新的元数据地址，返回交易签名
type ChainUpdater interface {
	UpdateOnChainRecord(ctx context.Context, entityID, uri string) (string, error)
}

type EventPublisher interface {
	Publish(evt eventbus.Event)
}
