package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/NewsDigest/internal/api"
	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/ingest"
	"github.com/LJTian/NewsDigest/internal/logger"
	"github.com/LJTian/NewsDigest/internal/recommend"
	"github.com/LJTian/NewsDigest/internal/render"
	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

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

	s := scheduler.New(ingestor, renderer, store, scheduler.Options{
		Interval:    cfg.FetchInterval,
		DigestLimit: cfg.DigestLimit,
		Logger:      lg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		s.Run(ctx)
	}()

	// API
	r := gin.Default()
	apiServer := api.NewServer(store, store, s, recommend.NewService(store, cfg.CandidateWindow), renderer.Path(), cfg.StaticDir)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	go func() {
		log.Printf("starting api server at %s ...", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("warn: server shutdown: %v", err)
	}
	<-schedDone
	log.Println("bye")
}
