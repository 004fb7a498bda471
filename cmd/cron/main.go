package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credit-service/internal/biz"
	"credit-service/internal/conf"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

// CronApp Cron 应用结构
type CronApp struct {
	grants *biz.GrantManager
}

// grantCurrentPeriod 发放当月订阅积分，已发放的账户不会重复发放
func (app *CronApp) grantCurrentPeriod(logHelper *log.Helper) {
	period := biz.CurrentPeriod(time.Now())
	logHelper.Infof("[CRON] Starting subscription grant, period=%s", period)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	count, accountIDs, err := app.grants.GrantPeriod(ctx, period)
	if err != nil {
		logHelper.Errorf("[CRON] Error granting subscription credits: period=%s, granted=%d, error=%v", period, count, err)
		return
	}
	logHelper.Infof("[CRON] Subscription grant completed: period=%s, count=%d", period, count)
	if len(accountIDs) > 0 && len(accountIDs) <= 10 {
		logHelper.Infof("[CRON] Granted accounts: %v", accountIDs)
	} else if len(accountIDs) > 10 {
		logHelper.Infof("[CRON] Granted accounts (first 10): %v", accountIDs[:10])
	}
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/credit-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}
	if bc.Log != nil && bc.Log.Level != "" {
		logConfig.Level = bc.Log.Level
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "credit-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// 启动时补发当月（服务在月初停机的情况）
	app.grantCurrentPeriod(logHelper)

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 订阅积分发放 - 每月1日 00:00 执行
	_, err = cronScheduler.AddFunc("0 0 0 1 * *", func() {
		app.grantCurrentPeriod(logHelper)
	})
	if err != nil {
		logHelper.Errorf("Failed to add subscription grant job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Info("  - Subscription grant: Every month on the 1st at 00:00")
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
