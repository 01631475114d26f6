package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuqie6/SkillLedger/internal/progression"
)

// MetadataOptions 元数据文档的固定部分
type MetadataOptions struct {
	Symbol       string
	Description  string
	ImageBaseURL string
	MaxLevel     int
}

type MetadataAttribute struct {
	TraitType   string `json:"trait_type"`
	Value       any    `json:"value"`
	DisplayType string `json:"display_type,omitempty"`
	MaxValue    int    `json:"max_value,omitempty"`
}

type MetadataProperties struct {
	EntityID    string                    `json:"entity_id"`
	Revision    int64                     `json:"revision"`
	Levels      map[progression.Skill]int `json:"levels"`
	TotalLevel  int                       `json:"total_level"`
	CombatLevel int                       `json:"combat_level"`
}

// MetadataDocument 上传到内容寻址存储的实体描述
type MetadataDocument struct {
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol,omitempty"`
	Description string              `json:"description,omitempty"`
	Image       string              `json:"image,omitempty"`
	Attributes  []MetadataAttribute `json:"attributes"`
	Properties  MetadataProperties  `json:"properties"`
}

// BuildMetadata 由快照生成元数据文档；技能按固定枚举顺序输出
func BuildMetadata(snap *Snapshot, opts MetadataOptions) *MetadataDocument {
	if opts.MaxLevel <= 0 {
		opts.MaxLevel = progression.DefaultMaxLevel
	}
	name := snap.Name
	if name == "" {
		name = snap.EntityID
	}

	doc := &MetadataDocument{
		Name:        name,
		Symbol:      opts.Symbol,
		Description: opts.Description,
		Attributes:  make([]MetadataAttribute, 0, progression.SkillCount+2),
		Properties: MetadataProperties{
			EntityID:    snap.EntityID,
			Revision:    snap.Revision,
			Levels:      snap.SkillLevels(),
			TotalLevel:  snap.TotalLevel,
			CombatLevel: snap.CombatLevel,
		},
	}
	if opts.ImageBaseURL != "" {
		doc.Image = strings.TrimRight(opts.ImageBaseURL, "/") + "/" + snap.EntityID + ".png"
	}

	for _, sk := range progression.AllSkills() {
		doc.Attributes = append(doc.Attributes, MetadataAttribute{
			TraitType:   sk.DisplayName(),
			Value:       snap.Levels.Get(sk),
			DisplayType: "number",
			MaxValue:    opts.MaxLevel,
		})
	}
	doc.Attributes = append(doc.Attributes,
		MetadataAttribute{TraitType: "Total Level", Value: snap.TotalLevel, DisplayType: "number"},
		MetadataAttribute{TraitType: "Combat Level", Value: snap.CombatLevel, DisplayType: "number"},
	)
	return doc
}

// JSON 序列化文档
func (d *MetadataDocument) JSON() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("序列化元数据失败: %w", err)
	}
	return b, nil
}

// SnapshotFromMetadata 从链上元数据解析快照，用于反向合并
func SnapshotFromMetadata(b []byte) (*Snapshot, error) {
	var doc MetadataDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("解析元数据失败: %w", err)
	}
	snap := &Snapshot{
		EntityID: doc.Properties.EntityID,
		Revision: doc.Properties.Revision,
	}
	// 无名称时文档以实体 ID 代替，不回写
	if doc.Name != doc.Properties.EntityID {
		snap.Name = doc.Name
	}
	for sk, lvl := range doc.Properties.Levels {
		snap.Levels[sk] = lvl
	}
	return snap, nil
}
