package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yuqie6/SkillLedger/internal/schema"
)

func TestNewDatabaseMigratesAndGates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "ledger.db")

	d, err := NewDatabase(path, Options{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	if d.SchemaVersion != latestSchemaVersion {
		t.Fatalf("schema version = %d, want %d", d.SchemaVersion, latestSchemaVersion)
	}
	if !d.DB.Migrator().HasTable(&schema.EntitySnapshot{}) {
		t.Fatalf("entity_snapshots not migrated")
	}
	_ = d.Close()

	// 重新打开不重复迁移
	d, err = NewDatabase(path, Options{})
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer d.Close()

	if err := d.DB.Model(&schema.SchemaMeta{}).Where("id = 1").Update("schema_version", latestSchemaVersion+1).Error; err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if err := Migrate(d.DB, nil); err == nil {
		t.Fatalf("expected error for newer schema version")
	}
}

func TestTxManagerRollsBack(t *testing.T) {
	d, err := NewDatabase(filepath.Join(t.TempDir(), "tx.db"), Options{MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	defer d.Close()

	txm := NewTxManager(d.DB)
	repo := NewExperienceRepository(d.DB)
	ctx := context.Background()

	err = txm.InTx(ctx, func(ctx context.Context) error {
		if _, err := repo.Increment(ctx, "hero-1", "alchemy", 10); err != nil {
			return err
		}
		// 嵌套调用复用同一事务
		return txm.InTx(ctx, func(ctx context.Context) error {
			if _, err := repo.Increment(ctx, "hero-1", "alchemy", 10); err != nil {
				return err
			}
			return context.Canceled
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	row, err := repo.Get(ctx, "hero-1", "alchemy")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if row != nil {
		t.Fatalf("row = %+v, want rolled back", row)
	}
}
