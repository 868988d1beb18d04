package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
	"github.com/samber/lo"
)

// DefaultCategory 分类为空时使用的兜底分类
const DefaultCategory = "general"

type Config struct {
	AppHost string `hcl:"app_host" env:"APP_HOST" default:"127.0.0.1"`
	AppPort string `hcl:"app_port" env:"APP_PORT" default:"5000"`

	NewsAPIKey      string        `hcl:"newsapi_key" env:"NEWSAPI_KEY"`
	NewsAPIURL      string        `hcl:"newsapi_url" env:"NEWSAPI_URL" default:"https://newsapi.org/v2/everything"`
	NewsAPILanguage string        `hcl:"newsapi_language" env:"NEWSAPI_LANGUAGE" default:"en"`
	NewsAPIPageSize int           `hcl:"newsapi_page_size" env:"NEWSAPI_PAGE_SIZE" default:"50"`
	NewsAPITimeout  time.Duration `hcl:"newsapi_timeout" env:"NEWSAPI_TIMEOUT" default:"25s"`

	// 格式 name:query，按配置顺序依次采集
	Categories    []string      `hcl:"categories" env:"CATEGORIES" default:"general:india,technology:technology,business:business,sports:sports"`
	CategoryPause time.Duration `hcl:"category_pause" env:"CATEGORY_PAUSE" default:"1500ms"`
	FetchInterval time.Duration `hcl:"fetch_interval" env:"FETCH_INTERVAL" default:"10m"`

	DBDriver string `hcl:"db_driver" env:"DB_DRIVER" default:"mysql"`
	DBDSN    string `hcl:"db_dsn" env:"DB_DSN"`
	DBHost   string `hcl:"db_host" env:"DB_HOST" default:"localhost"`
	DBPort   int    `hcl:"db_port" env:"DB_PORT" default:"3306"`
	DBUser   string `hcl:"db_user" env:"DB_USER" default:"root"`
	DBPass   string `hcl:"db_pass" env:"DB_PASS"`
	DBName   string `hcl:"db_name" env:"DB_NAME" default:"newsdb"`

	// 为空时不启用 Redis 缓存
	RedisAddr string `hcl:"redis_addr" env:"REDIS_ADDR"`

	DigestLimit     int    `hcl:"digest_limit" env:"DIGEST_LIMIT" default:"20"`
	OutputDir       string `hcl:"output_dir" env:"OUTPUT_DIR" default:"output"`
	StaticDir       string `hcl:"static_dir" env:"STATIC_DIR" default:"static"`
	CandidateWindow int    `hcl:"candidate_window" env:"CANDIDATE_WINDOW" default:"200"`

	LogLevel string `hcl:"log_level" env:"LOG_LEVEL" default:"info"`
}

// Category 一个采集分类及其对应的 NewsAPI 搜索关键词
type Category struct {
	Name  string
	Query string
}

func Load() (*Config, error) {
	return load([]string{"./config.hcl", "./config.local.hcl"})
}

func load(files []string) (*Config, error) {
	cfg := &Config{}
	loader := aconfig.LoaderFor(cfg, aconfig.Config{
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}

	if _, err := cfg.CategoryList(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr 返回 HTTP 监听地址
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.AppPort
}

// DSN 优先使用 DB_DSN，否则按 DB_HOST 等字段拼出 MySQL DSN
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	switch c.DBDriver {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			c.DBHost, c.DBUser, c.DBPass, c.DBName, c.DBPort)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
	}
}

// CategoryList 解析 name:query 列表；只有 name 时 query 与 name 相同
func (c *Config) CategoryList() ([]Category, error) {
	entries := lo.Compact(lo.Map(c.Categories, func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))

	out := make([]Category, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name, query, found := strings.Cut(e, ":")
		name = strings.TrimSpace(name)
		query = strings.TrimSpace(query)
		if name == "" {
			return nil, fmt.Errorf("config: category %q has empty name", e)
		}
		if !found || query == "" {
			query = name
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("config: duplicate category %q", name)
		}
		seen[name] = struct{}{}
		out = append(out, Category{Name: name, Query: query})
	}
	return out, nil
}
