// Package ingest 按分类从 NewsAPI 拉取新闻，标准化后逐条写入存储。
// 单个分类或单条写入失败只记录日志，不影响其余分类。
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/processor"
)

// Searcher 外部新闻服务
type Searcher interface {
	Configured() bool
	Search(ctx context.Context, query string) ([]collector.RawArticle, error)
}

// ArticleWriter 文章写入端
type ArticleWriter interface {
	Upsert(ctx context.Context, a processor.Article) error
}

// CategoryResult 单个分类的采集结果
type CategoryResult struct {
	Category string
	Query    string
	Fetched  int
	Inserted int
	Failed   int
	// 请求失败时非 nil，此时 Inserted 为 0
	Err error
}

// Report 一轮 IngestAll 的汇总
type Report struct {
	// 未配置 API Key，整轮跳过
	Skipped    bool
	Total      int
	Categories []CategoryResult
}

// Failures 返回请求失败的分类
func (r Report) Failures() []CategoryResult {
	var out []CategoryResult
	for _, c := range r.Categories {
		if c.Err != nil {
			out = append(out, c)
		}
	}
	return out
}

type Ingestor struct {
	client     Searcher
	store      ArticleWriter
	categories []config.Category
	pause      time.Duration
	logger     *slog.Logger
}

func New(client Searcher, store ArticleWriter, categories []config.Category, pause time.Duration, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		client:     client,
		store:      store,
		categories: categories,
		pause:      pause,
		logger:     logger,
	}
}

// IngestCategory 采集一个分类；请求失败时不重试，直接返回
func (in *Ingestor) IngestCategory(ctx context.Context, cat config.Category) CategoryResult {
	res := CategoryResult{Category: cat.Name, Query: cat.Query}
	log := in.logger.With("category", cat.Name, "query", cat.Query)
	log.Info("fetching category")

	items, err := in.client.Search(ctx, cat.Query)
	if err != nil {
		log.Error("category ingest failed", "err", err)
		res.Err = err
		return res
	}
	res.Fetched = len(items)

	for _, item := range items {
		a := processor.Normalize(item, cat.Name)
		if err := in.store.Upsert(ctx, a); err != nil {
			log.Warn("upsert failed", "url", a.URL, "err", err)
			res.Failed++
			continue
		}
		res.Inserted++
	}

	log.Info("category done", "fetched", res.Fetched, "inserted", res.Inserted, "failed", res.Failed)
	return res
}

// IngestAll 按配置顺序采集全部分类，分类之间暂停 pause 以避开限流
func (in *Ingestor) IngestAll(ctx context.Context) Report {
	if !in.client.Configured() {
		in.logger.Warn("newsapi key missing, skip ingestion")
		return Report{Skipped: true}
	}

	report := Report{Categories: make([]CategoryResult, 0, len(in.categories))}
	for i, cat := range in.categories {
		if i > 0 && !sleep(ctx, in.pause) {
			in.logger.Warn("ingestion interrupted", "err", ctx.Err(), "remaining", len(in.categories)-i)
			break
		}
		res := in.IngestCategory(ctx, cat)
		report.Total += res.Inserted
		report.Categories = append(report.Categories, res)
	}

	in.logger.Info("ingestion done", "total_inserted", report.Total, "failed_categories", len(report.Failures()))
	return report
}

// sleep 可被 ctx 打断的等待，返回 false 表示 ctx 已结束
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
