package progression

import (
	"math"
	"sort"
)

// DefaultMaxLevel 默认等级上限
const DefaultMaxLevel = 99

// DefaultTable 默认等级表（上限 99）
var DefaultTable = NewTable(DefaultMaxLevel)

// Table 等级/经验对照表，构建后只读，可并发使用
type Table struct {
	// thresholds[i] 为升到 i+1 级所需的累计经验
	thresholds []int64
}

// Progress 当前等级进度
type Progress struct {
	Level             int     `json:"level"`
	XPForCurrentLevel int64   `json:"xp_for_current_level"`
	XPForNextLevel    int64   `json:"xp_for_next_level"`
	ProgressPct       float64 `json:"progress_pct"`
}

// NewTable 预计算 [1, maxLevel] 的经验阈值
// 曲线：points += floor(L + 300·2^(L/7))，xp(L+1) = floor(points/4)
func NewTable(maxLevel int) *Table {
	if maxLevel < 2 {
		maxLevel = 2
	}
	thresholds := make([]int64, maxLevel)
	points := 0.0
	for lvl := 1; lvl < maxLevel; lvl++ {
		points += math.Floor(float64(lvl) + 300*math.Pow(2, float64(lvl)/7))
		xp := int64(math.Floor(points / 4))
		// 保证严格递增
		if xp <= thresholds[lvl-1] {
			xp = thresholds[lvl-1] + 1
		}
		thresholds[lvl] = xp
	}
	return &Table{thresholds: thresholds}
}

// MaxLevel 等级上限
func (t *Table) MaxLevel() int {
	return len(t.thresholds)
}

// XPForLevel 达到指定等级所需的累计经验（等级会被限制在 [1, MaxLevel]）
func (t *Table) XPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	if level > t.MaxLevel() {
		level = t.MaxLevel()
	}
	return t.thresholds[level-1]
}

// LevelForXP 经验对应等级，二分查找
func (t *Table) LevelForXP(xp int64) int {
	if xp <= 0 {
		return 1
	}
	// 第一个阈值 > xp 的下标即为当前等级
	idx := sort.Search(len(t.thresholds), func(i int) bool {
		return t.thresholds[i] > xp
	})
	if idx < 1 {
		return 1
	}
	return idx
}

// Progress 计算经验对应的等级进度
func (t *Table) Progress(xp int64) Progress {
	level := t.LevelForXP(xp)
	cur := t.XPForLevel(level)
	if level >= t.MaxLevel() {
		return Progress{
			Level:             level,
			XPForCurrentLevel: cur,
			XPForNextLevel:    cur,
			ProgressPct:       100,
		}
	}
	next := t.XPForLevel(level + 1)
	pct := float64(xp-cur) / float64(next-cur) * 100
	return Progress{
		Level:             level,
		XPForCurrentLevel: cur,
		XPForNextLevel:    next,
		ProgressPct:       clamp(pct, 0, 100),
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
