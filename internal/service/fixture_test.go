package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yuqie6/SkillLedger/internal/eventbus"
	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/repository"
	"github.com/yuqie6/SkillLedger/internal/testutil"
)

type fixture struct {
	db        *gorm.DB
	exp       *repository.ExperienceRepository
	snapshots *repository.SnapshotRepository
	attempts  *repository.SyncAttemptRepository
	events    *recordingPublisher
	ledger    *LedgerService
	reconcile *ReconcileService
	txm       *repository.TxManager
}

func newFixture(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()
	if db == nil {
		db = testutil.OpenTestDB(t)
	}
	f := &fixture{
		db:        db,
		exp:       repository.NewExperienceRepository(db),
		snapshots: repository.NewSnapshotRepository(db, progression.DefaultCombatWeights),
		attempts:  repository.NewSyncAttemptRepository(db),
		events:    &recordingPublisher{},
		txm:       repository.NewTxManager(db),
	}
	f.ledger = NewLedgerService(f.txm, f.exp, repository.NewAwardRepository(db), f.snapshots, f.events, LedgerOptions{})
	f.reconcile = NewReconcileService(f.snapshots, progression.DefaultCombatWeights, progression.DefaultTable)
	return f
}

func (f *fixture) syncService(up Uploader, chain ChainUpdater) *SyncService {
	return NewSyncService(f.txm, f.exp, f.reconcile, f.attempts, up, chain, f.events, SyncOptions{})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(evt eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) ofType(typ string) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []eventbus.Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakeUploader struct {
	mu    sync.Mutex
	docs  []*MetadataDocument
	err   error
	block chan struct{}
	hook  func()
}

func (u *fakeUploader) UploadMetadata(ctx context.Context, doc *MetadataDocument) (string, error) {
	if u.block != nil {
		select {
		case <-u.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if u.hook != nil {
		u.hook()
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.docs = append(u.docs, doc)
	return "ar://doc-" + doc.Properties.EntityID, nil
}

func (u *fakeUploader) uploaded() []*MetadataDocument {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]*MetadataDocument(nil), u.docs...)
}

type fakeChain struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeChain) UpdateOnChainRecord(ctx context.Context, entityID, uri string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "sig-" + entityID, nil
}

var errUnavailable = errors.New("gateway unavailable")
