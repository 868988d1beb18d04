// Package render 把最新文章渲染成静态的 index.html 摘要页
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/storage"
)

// OutputFile 生成的页面文件名
const OutputFile = "index.html"

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

// LatestReader 读取最新文章
type LatestReader interface {
	ListLatest(ctx context.Context, limit int, category string) ([]storage.Article, error)
}

type card struct {
	Title       string
	Description string
	URL         string
	ImageURL    string
	Source      string
	Category    string
	PublishedAt string
}

type page struct {
	GeneratedAt string
	Categories  []string
	Cards       []card
}

type Renderer struct {
	store      LatestReader
	outputDir  string
	categories []string
	logger     *slog.Logger
	now        func() time.Time
}

// New categories 只用于页面上的分类下拉框
func New(store LatestReader, outputDir string, categories []string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		store:      store,
		outputDir:  outputDir,
		categories: categories,
		logger:     logger,
		now:        time.Now,
	}
}

// Path 返回生成文件的完整路径
func (r *Renderer) Path() string {
	return filepath.Join(r.outputDir, OutputFile)
}

// Generate 读取最新 limit 篇文章并原子地覆盖 index.html，返回卡片数
func (r *Renderer) Generate(ctx context.Context, limit int) (int, error) {
	articles, err := r.store.ListLatest(ctx, limit, "")
	if err != nil {
		return 0, fmt.Errorf("render: list latest: %w", err)
	}

	p := page{
		GeneratedAt: r.now().UTC().Format(time.RFC3339),
		Categories:  r.categories,
		Cards:       make([]card, 0, len(articles)),
	}
	for _, a := range articles {
		p.Cards = append(p.Cards, toCard(a))
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, p); err != nil {
		return 0, fmt.Errorf("render: execute template: %w", err)
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("render: create output dir: %w", err)
	}
	// 先写临时文件再 rename，避免 / 读到写了一半的页面
	tmp := r.Path() + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("render: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.Path()); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("render: rename %s: %w", tmp, err)
	}

	r.logger.Info("digest generated", "path", r.Path(), "articles", len(p.Cards))
	return len(p.Cards), nil
}

func toCard(a storage.Article) card {
	c := card{
		Title:       deref(a.Title, "No title"),
		Description: deref(a.Description, ""),
		URL:         a.URL,
		ImageURL:    deref(a.ImageURL, ""),
		Source:      deref(a.Source, "Unknown"),
		Category:    a.Category,
	}
	if c.URL == "" {
		c.URL = "#"
	}
	if c.Category == "" {
		c.Category = config.DefaultCategory
	}
	if a.PublishedAt != nil {
		c.PublishedAt = a.PublishedAt.UTC().Format(time.RFC3339)
	}
	return c
}

func deref(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
