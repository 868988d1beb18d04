package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/ingest"
	"github.com/LJTian/NewsDigest/internal/logger"
	"github.com/LJTian/NewsDigest/internal/render"
	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/samber/lo"
)

// 一个仅执行一轮采集 + 生成页面的命令行入口：适合 crontab 或手动触发
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	lg := logger.New(cfg.LogLevel)
	lg.Info("config loaded", "addr", cfg.Addr(), "driver", cfg.DBDriver, "interval", cfg.FetchInterval.String(), "categories", cfg.Categories)

	categories, err := cfg.CategoryList()
	if err != nil {
		log.Fatalf("parse categories failed: %v", err)
	}

	store, err := storage.NewStore(cfg.DBDriver, cfg.DSN(), cfg.RedisAddr, lg)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	client := collector.NewNewsAPIClient(collector.NewsAPIOptions{
		BaseURL:  cfg.NewsAPIURL,
		APIKey:   cfg.NewsAPIKey,
		Language: cfg.NewsAPILanguage,
		PageSize: cfg.NewsAPIPageSize,
		Timeout:  cfg.NewsAPITimeout,
	})
	ingestor := ingest.New(client, store, categories, cfg.CategoryPause, lg)
	renderer := render.New(store, cfg.OutputDir, lo.Map(categories, func(c config.Category, _ int) string { return c.Name }), lg)

	s := scheduler.New(ingestor, renderer, store, scheduler.Options{DigestLimit: cfg.DigestLimit, Logger: lg})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 只执行一轮后退出
	s.RunOnce(ctx)
}
