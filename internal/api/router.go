package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/LJTian/NewsDigest/internal/recommend"
	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const (
	defaultLatestLimit    = 20
	defaultRecommendLimit = 6
	defaultRunsLimit      = 10

	refreshMessage = "Fetching in background. Please wait a few seconds and call /api/latest."
)

type ArticleReader interface {
	ListLatest(ctx context.Context, limit int, category string) ([]storage.Article, error)
}

type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]storage.IngestionRun, error)
}

// Refresher 提交后台刷新，立即返回任务 ID
type Refresher interface {
	Trigger() string
}

type Recommender interface {
	Recommend(ctx context.Context, opts recommend.Options) ([]storage.Article, error)
}

type Server struct {
	articles    ArticleReader
	runs        RunReader
	refresher   Refresher
	recommender Recommender

	// 静态摘要页路径与静态资源目录
	indexFile string
	staticDir string
}

func NewServer(articles ArticleReader, runs RunReader, refresher Refresher, recommender Recommender, indexFile, staticDir string) *Server {
	return &Server{
		articles:    articles,
		runs:        runs,
		refresher:   refresher,
		recommender: recommender,
		indexFile:   indexFile,
		staticDir:   staticDir,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/", s.index)

	if s.staticDir != "" {
		if info, err := os.Stat(s.staticDir); err == nil && info.IsDir() {
			r.Static("/static", s.staticDir)
		}
	}

	g := r.Group("/api")
	{
		g.GET("/latest", s.latest)
		g.GET("/refresh", s.refresh)
		g.POST("/refresh", s.refresh)
		g.GET("/refresh/status", s.refreshStatus)
		g.GET("/recommend", s.recommend)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) index(c *gin.Context) {
	if _, err := os.Stat(s.indexFile); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "digest not generated yet",
		})
		return
	}
	c.File(filepath.Clean(s.indexFile))
}

func (s *Server) latest(c *gin.Context) {
	limit := queryInt(c, "limit", defaultLatestLimit)
	category := c.Query("category")

	items, err := s.articles.ListLatest(c.Request.Context(), limit, category)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"articles": toViews(items)})
}

// refresh 只确认已提交，不等待也不返回采集结果
func (s *Server) refresh(c *gin.Context) {
	id := s.refresher.Trigger()
	c.JSON(http.StatusOK, gin.H{
		"status":  "started",
		"message": refreshMessage,
		"task_id": id,
	})
}

func (s *Server) refreshStatus(c *gin.Context) {
	runs, err := s.runs.ListRuns(c.Request.Context(), queryInt(c, "limit", defaultRunsLimit))
	if err != nil {
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) recommend(c *gin.Context) {
	opts := recommend.Options{
		ReferenceID:  c.Query("article_id"),
		CategoryPref: c.Query("category"),
		Limit:        queryInt(c, "limit", defaultRecommendLimit),
	}

	items, err := s.recommender.Recommend(c.Request.Context(), opts)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recommendations": toViews(items)})
}

// articleView 对外输出的文章，published_at 缺失时为空串
type articleView struct {
	ID          string  `json:"id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	URL         string  `json:"url"`
	Source      *string `json:"source"`
	Category    string  `json:"category"`
	PublishedAt string  `json:"published_at"`
	ImageURL    *string `json:"image_url"`
	CreatedAt   string  `json:"created_at"`
}

func toViews(items []storage.Article) []articleView {
	return lo.Map(items, func(a storage.Article, _ int) articleView {
		v := articleView{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			Source:      a.Source,
			Category:    a.Category,
			ImageURL:    a.ImageURL,
		}
		if a.PublishedAt != nil {
			v.PublishedAt = a.PublishedAt.UTC().Format(time.RFC3339)
		}
		if !a.CreatedAt.IsZero() {
			v.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
		}
		return v
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}
