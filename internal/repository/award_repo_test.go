package repository

import (
	"context"
	"testing"
	"time"

	"github.com/yuqie6/SkillLedger/internal/schema"
	"github.com/yuqie6/SkillLedger/internal/testutil"
)

func TestAwardRepositoryTryRecordOnce(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()

	ev := &schema.AwardEvent{IdempotencyKey: "quest-42", EntityID: "hero-1", Skill: "mining", ExperienceGain: 50}
	ok, err := repo.TryRecord(ctx, ev)
	if err != nil || !ok {
		t.Fatalf("first TryRecord ok=%v err=%v", ok, err)
	}

	dup := &schema.AwardEvent{IdempotencyKey: "quest-42", EntityID: "hero-1", Skill: "mining", ExperienceGain: 50}
	ok, err = repo.TryRecord(ctx, dup)
	if err != nil || ok {
		t.Fatalf("duplicate TryRecord ok=%v err=%v, want false nil", ok, err)
	}

	got, err := repo.Get(ctx, "quest-42")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.EntityID != "hero-1" || got.Skill != "mining" || got.ExperienceGain != 50 {
		t.Fatalf("stored award = %+v", got)
	}

	missing, err := repo.Get(ctx, "quest-43")
	if err != nil || missing != nil {
		t.Fatalf("Get missing = %v, %v; want nil, nil", missing, err)
	}
}

func TestAwardRepositoryDeleteBefore(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewAwardRepository(db)
	ctx := context.Background()

	old := &schema.AwardEvent{IdempotencyKey: "old", EntityID: "hero-1", Skill: "luck", ExperienceGain: 1,
		CreatedAt: time.Now().Add(-40 * 24 * time.Hour)}
	recent := &schema.AwardEvent{IdempotencyKey: "recent", EntityID: "hero-1", Skill: "luck", ExperienceGain: 1}
	for _, ev := range []*schema.AwardEvent{old, recent} {
		if _, err := repo.TryRecord(ctx, ev); err != nil {
			t.Fatalf("TryRecord error: %v", err)
		}
	}

	n, err := repo.DeleteBefore(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteBefore n=%d err=%v, want 1", n, err)
	}
	if kept, _ := repo.Get(ctx, "recent"); kept == nil {
		t.Fatalf("recent award should be kept")
	}
}

func TestSyncAttemptRepositoryLifecycle(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewSyncAttemptRepository(db)
	ctx := context.Background()

	a := &schema.SyncAttempt{ID: "a-1", EntityID: "hero-1", Revision: 3, Status: schema.SyncStatusRunning, StartedAt: time.Now()}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	a.Status = schema.SyncStatusSucceeded
	a.Stage = "chain"
	a.URI = "ar://x"
	a.Signature = "sig"
	if err := repo.Finish(ctx, a); err != nil {
		t.Fatalf("Finish error: %v", err)
	}

	rows, err := repo.ListByEntity(ctx, "hero-1", 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListByEntity rows=%v err=%v", rows, err)
	}
	if rows[0].Status != schema.SyncStatusSucceeded || rows[0].FinishedAt == nil || rows[0].Signature != "sig" {
		t.Fatalf("attempt = %+v", rows[0])
	}
}
