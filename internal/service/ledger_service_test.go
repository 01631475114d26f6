package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuqie6/SkillLedger/internal/eventbus"
	"github.com/yuqie6/SkillLedger/internal/pkg/apperr"
	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/repository"
	"github.com/yuqie6/SkillLedger/internal/testutil"
)

func TestAddExperienceWoodcuttingScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	table := progression.DefaultTable

	res, err := f.ledger.AddExperience(ctx, "E1", "woodcutting", table.XPForLevel(2), "k1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, table.XPForLevel(2), res.Experience)

	res, err = f.ledger.AddExperience(ctx, "E1", "woodcutting", 1, "k2")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Level)
	assert.False(t, res.LeveledUp)

	levelUps := f.events.ofType(eventbus.TypeLevelUp)
	require.Len(t, levelUps, 1)
	assert.Equal(t, "E1", levelUps[0].EntityID)
	assert.Equal(t, "woodcutting", levelUps[0].Skill)
	assert.Equal(t, 2, levelUps[0].Level)

	// 升级同事务写入快照
	snap, err := f.reconcile.GetSnapshot(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Levels.Get(progression.Woodcutting))
	assert.Equal(t, progression.SkillCount+1, snap.TotalLevel)

	state, err := f.ledger.GetSkillState(ctx, "E1", "Woodcutting")
	require.NoError(t, err)
	assert.True(t, state.PendingExternalSync)
}

func TestAddExperienceIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.ledger.AddExperience(ctx, "hero-1", "mining", 100, "quest-7")
	require.NoError(t, err)
	assert.True(t, first.LeveledUp)

	second, err := f.ledger.AddExperience(ctx, "hero-1", "mining", 100, "quest-7")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.False(t, second.LeveledUp)
	assert.Zero(t, second.AppliedGain)
	assert.Equal(t, first.Experience, second.Experience)
	assert.Equal(t, first.Level, second.Level)

	state, err := f.ledger.GetSkillState(ctx, "hero-1", "mining")
	require.NoError(t, err)
	assert.EqualValues(t, 100, state.Experience)
	assert.Len(t, f.events.ofType(eventbus.TypeLevelUp), 1)
}

func TestAddExperienceRejectsReusedKeyWithDifferentPayload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.ledger.AddExperience(ctx, "E1", "mining", 10, "k1")
	require.NoError(t, err)

	cases := []struct {
		name   string
		entity string
		skill  string
		gain   int64
	}{
		{name: "other entity", entity: "E2", skill: "fishing", gain: 10},
		{name: "other skill", entity: "E1", skill: "fishing", gain: 10},
		{name: "other gain", entity: "E1", skill: "mining", gain: 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.ledger.AddExperience(ctx, tc.entity, tc.skill, tc.gain, "k1")
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, apperr.IsValidation(err), "err = %v", err)
		})
	}

	// 载荷一致仍按重复请求处理
	res, err := f.ledger.AddExperience(ctx, "E1", "mining", 10, "k1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.EqualValues(t, 10, res.Experience)

	rows, err := f.exp.ListByEntity(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 10, rows[0].Experience)

	rows, err = f.exp.ListByEntity(ctx, "E2")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAddExperienceValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		entity string
		skill  string
		gain   int64
	}{
		{name: "unknown skill", entity: "hero-1", skill: "sorcery", gain: 10},
		{name: "zero gain", entity: "hero-1", skill: "mining", gain: 0},
		{name: "negative gain", entity: "hero-1", skill: "mining", gain: -5},
		{name: "empty entity", entity: "  ", skill: "mining", gain: 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.AddExperience(ctx, tc.entity, tc.skill, tc.gain, "key-"+tc.name)
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err), "err = %v", err)
		})
	}

	rows, err := f.exp.ListByEntity(ctx, "hero-1")
	require.NoError(t, err)
	assert.Empty(t, rows)

	// 校验失败不消耗幂等键
	res, err := f.ledger.AddExperience(ctx, "hero-1", "mining", 10, "key-zero gain")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestAddExperienceTruncatesLargeGain(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.ledger.AddExperience(context.Background(), "hero-1", "luck", 25000, "")
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.EqualValues(t, 25000, res.RequestedGain)
	assert.EqualValues(t, DefaultMaxGainPerCall, res.AppliedGain)
	assert.EqualValues(t, DefaultMaxGainPerCall, res.Experience)
	assert.Equal(t, progression.DefaultTable.LevelForXP(DefaultMaxGainPerCall), res.Level)
}

func TestAddExperienceLevelUpDetectedOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	threshold := progression.DefaultTable.XPForLevel(2)

	steps := []struct {
		gain      int64
		leveledUp bool
		level     int
	}{
		{gain: threshold - 1, leveledUp: false, level: 1},
		{gain: 1, leveledUp: true, level: 2},
		{gain: 1, leveledUp: false, level: 2},
	}
	for i, step := range steps {
		res, err := f.ledger.AddExperience(ctx, "hero-1", "fishing", step.gain, fmt.Sprintf("step-%d", i))
		require.NoError(t, err)
		assert.Equal(t, step.leveledUp, res.LeveledUp, "step %d", i)
		assert.Equal(t, step.level, res.Level, "step %d", i)
		assert.Equal(t, progression.DefaultTable.LevelForXP(res.Experience), res.Level, "step %d", i)
	}
	assert.Len(t, f.events.ofType(eventbus.TypeLevelUp), 1)
}

func TestAddExperienceMultiLevelJump(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.ledger.AddExperience(context.Background(), "hero-1", "smithing", progression.DefaultTable.XPForLevel(10), "")
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.PreviousLevel)
	assert.Equal(t, 10, res.Level)
	assert.Equal(t, 10, res.Progress.Level)
}

func TestGetSkillStateNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.ledger.GetSkillState(context.Background(), "hero-1", "mining")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.ledger.GetSkillState(context.Background(), "hero-1", "sorcery")
	assert.True(t, apperr.IsValidation(err))
}

func TestGetAllSkillsDefaults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.ledger.AddExperience(ctx, "hero-1", "cooking", 200, "")
	require.NoError(t, err)

	all, err := f.ledger.GetAllSkills(ctx, "hero-1")
	require.NoError(t, err)
	require.Len(t, all, progression.SkillCount)
	for _, sk := range progression.AllSkills() {
		st := all[sk]
		if sk == progression.Cooking {
			assert.EqualValues(t, 200, st.Experience)
			assert.Equal(t, 3, st.Level)
			continue
		}
		assert.Zero(t, st.Experience, sk.Key())
		assert.Equal(t, 1, st.Level, sk.Key())
	}
}

func TestAddExperienceConcurrent(t *testing.T) {
	f := newFixture(t, testutil.OpenFileTestDB(t))
	ctx := context.Background()

	const workers = 50
	const gain = int64(13)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.ledger.AddExperience(ctx, "hero-1", "hunting", gain, fmt.Sprintf("hunt-%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := f.ledger.GetSkillState(ctx, "hero-1", "hunting")
	require.NoError(t, err)
	assert.EqualValues(t, workers*gain, state.Experience)
	assert.Equal(t, progression.DefaultTable.LevelForXP(workers*gain), state.Level)

	// 跨越的每个等级门槛都只报告一次
	ups := f.events.ofType(eventbus.TypeLevelUp)
	seen := make(map[int]bool)
	for _, e := range ups {
		assert.False(t, seen[e.Level], "level %d reported twice", e.Level)
		seen[e.Level] = true
	}
	assert.True(t, seen[state.Level])
}

func TestPruneAwardEvents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.ledger.AddExperience(ctx, "hero-1", "crafting", 5, "recent")
	require.NoError(t, err)

	n, err := f.ledger.PruneAwardEvents(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.ledger.PruneAwardEvents(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	awards := repository.NewAwardRepository(f.db)
	n, err = awards.DeleteBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
