package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
)

const (
	maxTitleRunes    = 300
	maxImageURLRunes = 1000
)

// Article 是写入存储层前的统一结构，可选字段为 nil 表示缺失
type Article struct {
	Title       *string
	Description *string
	// 为空串表示缺失，此时存储层无法按 URL 去重
	URL         string
	Source      *string
	Category    string
	PublishedAt *time.Time
	ImageURL    *string
}

// Normalize 把一条 NewsAPI 原始数据映射为 Article；分类只取采集时的 categoryHint
func Normalize(item collector.RawArticle, categoryHint string) Article {
	category := categoryHint
	if category == "" {
		category = config.DefaultCategory
	}

	var title *string
	if t := strings.TrimSpace(item.Title); t != "" {
		title = ptr(truncateRunes(t, maxTitleRunes))
	}

	var imageURL *string
	if item.URLToImage != "" {
		imageURL = ptr(truncateRunes(item.URLToImage, maxImageURLRunes))
	}

	return Article{
		Title:       title,
		Description: nonEmpty(strings.TrimSpace(item.Description)),
		URL:         item.URL,
		Source:      nonEmpty(item.Source.Name),
		Category:    category,
		PublishedAt: ParseTimestamp(item.PublishedAt),
		ImageURL:    imageURL,
	}
}

// HashURL 以 URL 生成稳定的文章 ID
func HashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// truncateRunes 按 rune 截断，不追加省略号
func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ptr[T any](v T) *T {
	return &v
}
