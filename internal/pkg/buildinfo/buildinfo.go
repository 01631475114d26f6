package buildinfo

import "fmt"

// Version 在发布构建时通过 -ldflags 注入：
// -X github.com/yuqie6/SkillLedger/internal/pkg/buildinfo.Version=v0.1.0
var Version = "v0.1.0-dev"

// Commit 可选注入 git commit
var Commit = "unknown"

// String 版本展示文本
func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
