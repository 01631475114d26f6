package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yuqie6/SkillLedger/internal/bootstrap"
	"github.com/yuqie6/SkillLedger/internal/pkg/buildinfo"
	"github.com/yuqie6/SkillLedger/internal/pkg/config"
	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "skill-ledger",
		Short:         "技能经验账本：经验发放、等级推导、快照合并与链上同步",
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(awardCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(skillsCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(attemptsCmd())
	rootCmd.AddCommand(pruneCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// openCore 加载配置并构建核心依赖
func openCore() (*bootstrap.Core, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return bootstrap.NewCore(cfg)
}

// withCore 为子命令提供核心依赖并在结束时释放
func withCore(fn func(cmd *cobra.Command, core *bootstrap.Core, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		core, err := openCore()
		if err != nil {
			return err
		}
		defer func() {
			if err := core.Close(); err != nil {
				logger.WithError(err).Warn("关闭数据库失败")
			}
		}()
		return fn(cmd, core, args)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("输出结果失败: %w", err)
	}
	return nil
}
