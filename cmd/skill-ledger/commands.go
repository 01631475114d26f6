package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuqie6/SkillLedger/internal/bootstrap"
	"github.com/yuqie6/SkillLedger/internal/pkg/config"
	"github.com/yuqie6/SkillLedger/internal/progression"
	"github.com/yuqie6/SkillLedger/internal/service"
)

func initConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "写出默认配置文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("配置文件已存在: %s（使用 --force 覆盖）", path)
			}
			if err := config.WriteFile(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已写入 %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "覆盖已有文件")
	return cmd
}

func createCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "创建实体快照（全部技能 1 级）",
		Args:  cobra.ExactArgs(1),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			snap, err := core.Services.Reconcile.CreateEntity(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "实体名称")
	return cmd
}

func awardCmd() *cobra.Command {
	var key string
	var syncNow bool
	cmd := &cobra.Command{
		Use:   "award <entity> <skill> <gain>",
		Short: "发放经验",
		Args:  cobra.ExactArgs(3),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			gain, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("经验值不是整数: %s", args[2])
			}
			res, err := core.Services.Ledger.AddExperience(cmd.Context(), args[0], args[1], gain, key)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			// 命令行没有常驻的同步 worker，按需立即推送
			if res.LeveledUp && syncNow && core.SyncConfigured() {
				out, err := core.Services.Sync.SyncEntity(cmd.Context(), args[0])
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "链上同步失败，已保留待同步标记: %v\n", err)
					return nil
				}
				return printJSON(cmd, out)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&key, "key", "", "幂等键")
	cmd.Flags().BoolVar(&syncNow, "sync", false, "升级时立即推送到链上")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity> <skill>",
		Short: "查看单个技能",
		Args:  cobra.ExactArgs(2),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			st, err := core.Services.Ledger.GetSkillState(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		}),
	}
}

func skillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills <entity>",
		Short: "查看全部技能",
		Args:  cobra.ExactArgs(1),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			all, err := core.Services.Ledger.GetAllSkills(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, sk := range progression.AllSkills() {
				st := all[sk]
				pending := ""
				if st.PendingExternalSync {
					pending = " *"
				}
				fmt.Fprintf(w, "%-13s %-10s Lv %2d  %10d xp  %5.1f%%%s\n",
					sk.DisplayName(), sk.Category(), st.Level, st.Experience, st.Progress.ProgressPct, pending)
			}
			return nil
		}),
	}
}

func snapshotCmd() *cobra.Command {
	var metadata bool
	cmd := &cobra.Command{
		Use:   "snapshot <entity>",
		Short: "查看实体快照",
		Args:  cobra.ExactArgs(1),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			snap, err := core.Services.Reconcile.GetSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if metadata {
				return printJSON(cmd, service.BuildMetadata(snap, service.MetadataOptions{
					Symbol:       core.Cfg.External.MetadataSymbol,
					Description:  core.Cfg.External.MetadataDescription,
					ImageBaseURL: core.Cfg.External.ImageBaseURL,
					MaxLevel:     core.Cfg.Ledger.MaxLevel,
				}))
			}
			return printJSON(cmd, snap)
		}),
	}
	cmd.Flags().BoolVar(&metadata, "metadata", false, "输出将要上传的元数据文档")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var levels, name, metadataFile string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile <entity>",
		Short: "把外部快照（如链上元数据）合并进数据库，逐技能取最大值",
		Args:  cobra.ExactArgs(1),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			incoming := &service.Snapshot{}
			if metadataFile != "" {
				b, err := os.ReadFile(metadataFile)
				if err != nil {
					return fmt.Errorf("读取元数据文件失败: %w", err)
				}
				incoming, err = service.SnapshotFromMetadata(b)
				if err != nil {
					return err
				}
				if incoming.EntityID == "" {
					incoming.EntityID = args[0]
				}
			}
			if levels != "" {
				parsed, err := parseLevels(levels)
				if err != nil {
					return err
				}
				incoming.Levels = progression.MergeLevels(incoming.Levels, parsed)
			}
			if name != "" {
				incoming.Name = name
			}

			if dryRun {
				out, err := core.Services.Reconcile.Preview(cmd.Context(), args[0], incoming)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			}
			out, err := core.Services.Reconcile.ReconcileSnapshot(cmd.Context(), args[0], incoming)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		}),
	}
	cmd.Flags().StringVar(&levels, "levels", "", "技能等级，如 attack=5,mining=7")
	cmd.Flags().StringVar(&name, "name", "", "实体名称")
	cmd.Flags().StringVar(&metadataFile, "metadata", "", "链上元数据 JSON 文件")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "只计算合并结果，不写库")
	return cmd
}

func syncCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sync [entity]",
		Short: "推送实体到链上；不带参数时补推全部待同步实体",
		Args:  cobra.MaximumNArgs(1),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			if !core.SyncConfigured() {
				return fmt.Errorf("未配置 external.uploader_url / external.chain_url")
			}
			if len(args) == 1 {
				out, err := core.Services.Sync.SyncEntity(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			}
			if limit <= 0 {
				limit = core.Cfg.Sync.BatchSize
			}
			report, err := core.Services.Sync.SyncPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "单次补推的实体数量")
	return cmd
}

func attemptsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "attempts <entity>",
		Short: "查看最近的链上推送记录",
		Args:  cobra.ExactArgs(1),
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			rows, err := core.Services.Sync.ListSyncAttempts(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "条数")
	return cmd
}

func pruneCmd() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "清理过期的发放幂等记录",
		Args:  cobra.NoArgs,
		RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
			n, err := core.Services.Ledger.PruneAwardEvents(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已删除 %d 条记录\n", n)
			return nil
		}),
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "保留时长（默认取配置 ledger.award_retention_hours）")
	return cmd
}

// parseLevels 解析 "attack=5,mining=7"
func parseLevels(s string) (progression.Levels, error) {
	var out progression.Levels
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return out, fmt.Errorf("等级格式错误: %q（应为 skill=level）", part)
		}
		sk, err := progression.ParseSkill(k)
		if err != nil {
			return out, err
		}
		lvl, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || lvl < 1 {
			return out, fmt.Errorf("等级必须为正整数: %q", part)
		}
		out[sk] = lvl
	}
	return out, nil
}
