package progression

import (
	"encoding/json"
	"testing"
)

func levelsOf(pairs map[Skill]int) Levels {
	var l Levels
	for s, v := range pairs {
		l[s] = v
	}
	return l
}

func TestTotalLevelDefaultsToOne(t *testing.T) {
	var l Levels
	if got := TotalLevel(l); got != SkillCount {
		t.Fatalf("TotalLevel(empty) = %d, want %d", got, SkillCount)
	}
	l[Mining] = 10
	if got := TotalLevel(l); got != SkillCount-1+10 {
		t.Fatalf("TotalLevel = %d", got)
	}
}

func TestCombatLevel(t *testing.T) {
	cases := []struct {
		name   string
		levels Levels
		want   int
	}{
		{"fresh character", Levels{}, 1},
		{"melee", levelsOf(map[Skill]int{Attack: 40, Strength: 40, Defense: 40, Vitality: 40}), 50},
		// magic = (60*1.5 + 30) / 2.5 = 48; vitality 20 -> +5
		{"magic specialist", levelsOf(map[Skill]int{Magic: 60, Defense: 30, Vitality: 20}), 53},
		// ranged = (70 + 10) / 2 = 40; vitality 10 -> +2.5 -> floor 42
		{"ranged specialist", levelsOf(map[Skill]int{Projectiles: 70, Defense: 10, Vitality: 10}), 42},
	}
	for _, tc := range cases {
		if got := CombatLevel(tc.levels, DefaultCombatWeights); got != tc.want {
			t.Errorf("%s: CombatLevel = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestCombatWeightsNormalize(t *testing.T) {
	w := CombatWeights{MagicWeight: 1.5}.Normalize()
	if w.MagicDivisor != 2.5 || w.RangedDivisor != 2.0 {
		t.Fatalf("normalize = %+v", w)
	}
	// 零除数不能导致 panic 或 Inf
	if got := CombatLevel(Levels{}, CombatWeights{}); got != 1 {
		t.Fatalf("CombatLevel with zero weights = %d", got)
	}
}

func TestMergeLevelsTakesMax(t *testing.T) {
	a := levelsOf(map[Skill]int{Attack: 5, Mining: 1})
	b := levelsOf(map[Skill]int{Attack: 3, Mining: 7})
	merged := MergeLevels(a, b)

	if merged[Attack] != 5 || merged[Mining] != 7 {
		t.Fatalf("merged attack=%d mining=%d", merged[Attack], merged[Mining])
	}
	for _, s := range AllSkills() {
		if merged[s] < a.Get(s) || merged[s] < b.Get(s) {
			t.Fatalf("skill %s regressed: %d", s, merged[s])
		}
	}
	if got := TotalLevel(merged); got != 5+7+(SkillCount-2) {
		t.Fatalf("total = %d", got)
	}
}

func TestMaxOf(t *testing.T) {
	got := MaxOf(
		levelsOf(map[Skill]int{Luck: 4}),
		levelsOf(map[Skill]int{Luck: 2, Cooking: 9}),
	)
	if got[Luck] != 4 || got[Cooking] != 9 || got[Attack] != 1 {
		t.Fatalf("MaxOf = %v", got)
	}
}

func TestSkillParseAndText(t *testing.T) {
	s, err := ParseSkill("  WoodCutting ")
	if err != nil || s != Woodcutting {
		t.Fatalf("ParseSkill = %v, %v", s, err)
	}
	if _, err := ParseSkill("sailing"); err == nil {
		t.Fatalf("expected error for unknown skill")
	}
	if len(AllSkills()) != SkillCount {
		t.Fatalf("AllSkills len = %d", len(AllSkills()))
	}

	m := map[Skill]int{Magic: 3}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"magic":3}` {
		t.Fatalf("json = %s", b)
	}
	var back map[Skill]int
	if err := json.Unmarshal(b, &back); err != nil || back[Magic] != 3 {
		t.Fatalf("unmarshal = %v, %v", back, err)
	}
}

func TestSkillCategories(t *testing.T) {
	counts := map[Category]int{}
	for _, s := range AllSkills() {
		counts[s.Category()]++
	}
	if counts[CategoryCombat] != 6 || counts[CategoryGathering] != 5 || counts[CategoryCrafting] != 5 || counts[CategoryUnique] != 1 {
		t.Fatalf("category counts = %v", counts)
	}
}
