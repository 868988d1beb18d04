package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/LJTian/NewsDigest/internal/processor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
	listCacheTTL     = 5 * time.Minute
	cacheGenKey      = "news:latest:gen"
)

// Article 入库后的文章；ID 由 URL 哈希得到，是唯一键
type Article struct {
	ID          string     `gorm:"primaryKey;size:40" json:"id"`
	Title       *string    `gorm:"size:300" json:"title"`
	Description *string    `gorm:"type:text" json:"description"`
	URL         string     `gorm:"size:2048" json:"url"`
	Source      *string    `gorm:"size:255" json:"source"`
	Category    string     `gorm:"size:64;index" json:"category"`
	PublishedAt *time.Time `gorm:"index" json:"published_at"`
	ImageURL    *string    `gorm:"size:1000" json:"image_url"`

	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client

	logger *slog.Logger
}

// NewStore 按 driver 打开数据库（mysql / postgres），redisAddr 为空时不启用缓存
func NewStore(driver, dsn, redisAddr string, lg *slog.Logger) (*Store, error) {
	if lg == nil {
		lg = slog.Default()
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "mysql":
		dialector = mysql.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis ping failed", "addr", redisAddr, "err", err)
		}
	}

	return NewStoreWithDB(db, rdb, lg)
}

// NewStoreWithDB 使用已打开的连接并迁移表结构，rdb 与 lg 可为 nil
func NewStoreWithDB(db *gorm.DB, rdb *redis.Client, lg *slog.Logger) (*Store, error) {
	if lg == nil {
		lg = slog.Default()
	}
	if err := db.AutoMigrate(&Article{}, &IngestionRun{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{DB: db, Redis: rdb, logger: lg}, nil
}

// Upsert 写入一篇文章；URL 已存在时只更新 title 与 description。URL 作为唯一键原样保存
func (s *Store) Upsert(ctx context.Context, a processor.Article) error {
	row := &Article{
		ID:          articleID(a.URL),
		Title:       validUTF8(a.Title),
		Description: validUTF8(a.Description),
		URL:         a.URL,
		Source:      validUTF8(a.Source),
		Category:    a.Category,
		PublishedAt: a.PublishedAt,
		ImageURL:    validUTF8(a.ImageURL),
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("storage: upsert %q: %w", a.URL, err)
	}
	return nil
}

// ListLatest 按发布时间倒序返回最新文章，category 为空时不过滤；结果在 Redis 缓存 5 分钟
func (s *Store) ListLatest(ctx context.Context, limit int, category string) ([]Article, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	cacheKey := ""
	if s.Redis != nil {
		gen, _ := s.Redis.Get(ctx, cacheGenKey).Int64()
		cacheKey = latestCacheKey(gen, category, limit)
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Article
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	db := s.DB.WithContext(ctx).Model(&Article{})
	if category != "" {
		db = db.Where("category = ?", category)
	}
	// 没有发布时间的排在最后，各数据库对 NULL 的默认排序不一致
	var list []Article
	err := db.Order("published_at IS NULL").
		Order("published_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list latest: %w", err)
	}

	if cacheKey != "" && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}

	return list, nil
}

// InvalidateLatest 递增缓存代数，旧的列表缓存随 TTL 自然过期
func (s *Store) InvalidateLatest(ctx context.Context) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Incr(ctx, cacheGenKey).Err(); err != nil {
		s.logger.Warn("redis bump cache generation failed", "err", err)
	}
}

func latestCacheKey(gen int64, category string, limit int) string {
	return fmt.Sprintf("news:latest:%d:%s:%d", gen, category, limit)
}

// articleID URL 为空的文章无法去重，每次分配随机 ID
func articleID(url string) string {
	if url == "" {
		return uuid.NewString()
	}
	return processor.HashURL(url)
}

// validUTF8 避免非法字节导致数据库报 invalid byte sequence
func validUTF8(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToValidUTF8(*s, "\uFFFD")
	return &v
}
