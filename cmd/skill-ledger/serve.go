package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yuqie6/SkillLedger/internal/bootstrap"
	"github.com/yuqie6/SkillLedger/internal/pkg/apperr"
	"github.com/yuqie6/SkillLedger/internal/pkg/config"
	"github.com/yuqie6/SkillLedger/internal/pkg/logger"
)

// awardLine 标准输入中的一行发放请求
type awardLine struct {
	EntityID       string `json:"entity_id"`
	Skill          string `json:"skill"`
	Gain           int64  `json:"gain"`
	IdempotencyKey string `json:"idempotency_key"`
}

type awardReply struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
	Result any    `json:"result,omitempty"`
}

func serveCmd() *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "常驻运行：消费升级事件推送链上，并定时补推与清理",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAndWatch(cfgFile, func(next *config.Config) {
				// 仅日志级别支持热更新，其余参数需重启
				logger.SetLevel(next.App.LogLevel)
			})
			if err != nil {
				return err
			}
			core, err := bootstrap.NewCore(cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			workersDone := make(chan struct{})
			if cfg.Sync.Enabled && core.SyncConfigured() {
				events := core.Hub.Subscribe(ctx, cfg.Sync.QueueSize)
				go func() {
					defer close(workersDone)
					core.Services.Sync.Run(ctx, events)
				}()
			} else {
				close(workersDone)
				logger.Warn("未配置外部协作方或已关闭同步，仅记录待同步标记")
			}

			sched := core.NewScheduler()
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			logger.WithFields(logrus.Fields{
				"db":      cfg.Storage.DBPath,
				"workers": cfg.Sync.Workers,
			}).Info("skill-ledger 已启动")

			if fromStdin {
				go func() {
					serveAwards(ctx, core, cmd.InOrStdin(), cmd.OutOrStdout())
					stop()
				}()
			}

			<-ctx.Done()
			<-workersDone
			logger.Info("skill-ledger 已退出")
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "从标准输入逐行读取 JSON 发放请求，输入结束后退出")
	return cmd
}

// serveAwards 逐行处理发放请求，每行输出一行 JSON 结果
func serveAwards(ctx context.Context, core *bootstrap.Core, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	enc := json.NewEncoder(out)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req awardLine
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(awardReply{Error: "请求格式错误: " + err.Error(), Code: "VALIDATION_ERROR"})
			continue
		}
		res, err := core.Services.Ledger.AddExperience(ctx, req.EntityID, req.Skill, req.Gain, req.IdempotencyKey)
		if err != nil {
			_ = enc.Encode(replyError(err))
			continue
		}
		_ = enc.Encode(awardReply{OK: true, Result: res})
	}
	if err := scanner.Err(); err != nil {
		logger.WithError(err).Warn("读取标准输入失败")
	}
}

func replyError(err error) awardReply {
	return awardReply{Error: err.Error(), Code: apperr.CodeOf(err)}
}
