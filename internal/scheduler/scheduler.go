package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/LJTian/NewsDigest/internal/ingest"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const (
	defaultInterval    = 10 * time.Minute
	defaultDigestLimit = 20
)

type Ingester interface {
	IngestAll(ctx context.Context) ingest.Report
}

type Renderer interface {
	Generate(ctx context.Context, limit int) (int, error)
}

// RunStore 记录每次采集结果，并在有新数据时让读缓存失效
type RunStore interface {
	SaveRun(ctx context.Context, run *storage.IngestionRun) error
	InvalidateLatest(ctx context.Context)
}

type Options struct {
	Interval    time.Duration
	DigestLimit int
	Logger      *slog.Logger
}

type Scheduler struct {
	cron     *cron.Cron
	ingester Ingester
	renderer Renderer
	runs     RunStore

	interval    time.Duration
	digestLimit int
	logger      *slog.Logger

	// 定时采集与手动刷新共用，保证同一时刻只有一个采集在写库
	writeMu sync.Mutex

	tasks     chan string
	pendingMu sync.Mutex
	pending   string
}

func New(ingester Ingester, renderer Renderer, runs RunStore, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.DigestLimit <= 0 {
		opts.DigestLimit = defaultDigestLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(opts.Logger.Handler(), slog.LevelInfo))
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		ingester:    ingester,
		renderer:    renderer,
		runs:        runs,
		interval:    opts.Interval,
		digestLimit: opts.DigestLimit,
		logger:      opts.Logger,
		tasks:       make(chan string, 1),
	}
	return s
}

// Run 立即执行一轮，之后每隔 interval 执行一轮，直到 ctx 结束；同时处理手动刷新
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval.String())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker(ctx)
	}()

	s.RunCycle(ctx)
	// 首轮结束后才开始计时，SkipIfStillRunning 保证定时轮次不重叠
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.RunCycle(ctx)
	}))
	s.cron.Start()

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	wg.Wait()

	s.logger.Info("scheduler stopped")
}

// RunCycle 先采集再生成页面；两个阶段各自兜底，一个失败不影响另一个
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.runCycle(ctx, storage.TriggerSchedule)
}

// RunOnce 对外暴露的单次执行入口，方便命令行手动触发
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runCycle(ctx, storage.TriggerOneshot)
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) {
	start := time.Now()
	s.logger.Info("starting fetch + generate cycle", "trigger", trigger)

	s.runPhase("ingest", func() error {
		s.ingest(ctx, trigger, "")
		return nil
	})
	s.runPhase("render", func() error {
		_, err := s.renderer.Generate(ctx, s.digestLimit)
		return err
	})

	s.logger.Info("cycle finished", "trigger", trigger, "elapsed", time.Since(start).String())
}

func (s *Scheduler) runPhase(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("phase panicked", "phase", name, "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(); err != nil {
		s.logger.Error("phase failed", "phase", name, "err", err)
	}
}

// Trigger 提交一次手动刷新并立即返回任务 ID；已有排队中的刷新时直接复用其 ID
func (s *Scheduler) Trigger() string {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if s.pending != "" {
		return s.pending
	}
	id := uuid.NewString()
	s.tasks <- id
	s.pending = id
	return id
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.tasks:
			s.pendingMu.Lock()
			s.pending = ""
			s.pendingMu.Unlock()
			s.refresh(ctx, id)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background refresh panicked", "task_id", id, "panic", fmt.Sprint(r))
		}
	}()
	s.logger.Info("background refresh started", "task_id", id)
	report := s.ingest(ctx, storage.TriggerManual, id)
	if failures := report.Failures(); len(failures) > 0 {
		s.logger.Warn("background refresh finished with failures", "task_id", id, "failed_categories", len(failures))
		return
	}
	s.logger.Info("background refresh finished", "task_id", id, "inserted", report.Total)
}

func (s *Scheduler) ingest(ctx context.Context, trigger, id string) ingest.Report {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	started := time.Now()
	report := s.ingester.IngestAll(ctx)
	if report.Total > 0 {
		s.runs.InvalidateLatest(ctx)
	}

	run := buildRun(id, trigger, started, time.Now(), report)
	// 采集 ctx 可能已结束，记录仍然要写
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("save ingestion run failed", "trigger", trigger, "err", err)
	}
	return report
}

func buildRun(id, trigger string, started, finished time.Time, report ingest.Report) *storage.IngestionRun {
	run := &storage.IngestionRun{
		ID:         id,
		Trigger:    trigger,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Inserted:   report.Total,
		Skipped:    report.Skipped,
		Categories: make(map[string]any, len(report.Categories)),
	}

	var errs []string
	for _, c := range report.Categories {
		entry := map[string]any{
			"query":    c.Query,
			"fetched":  c.Fetched,
			"inserted": c.Inserted,
			"failed":   c.Failed,
		}
		if c.Err != nil {
			entry["error"] = c.Err.Error()
			errs = append(errs, c.Category+": "+c.Err.Error())
		}
		run.Categories[c.Category] = entry
	}
	run.Error = strings.Join(errs, "; ")
	return run
}
