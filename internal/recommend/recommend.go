// Package recommend 基于内容的简单推荐：标题/描述词重叠 + 分类加分 + 新鲜度加分。
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/NewsDigest/internal/storage"
)

const (
	DefaultLimit           = 6
	DefaultCandidateWindow = 200

	overlapWeight     = 3.0
	categoryPrefBonus = 4.0
	referenceCatBonus = 2.0
	recencyMaxDays    = 5.0
	baseScore         = 0.01
	minTokenRunes     = 3
	tokenStripCutset  = `.,:;"'()[]{}`
	secondsPerDay     = 86400.0
)

// Options 推荐参数；ReferenceID 与 CategoryPref 可为空
type Options struct {
	ReferenceID  string
	CategoryPref string
	Limit        int
}

// Tokens 按空白切词，保留长度大于 2 的词，去掉首尾标点并转小写，返回集合
func Tokens(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) < minTokenRunes {
			continue
		}
		// 纯标点的词剥离后为空串，同样计入集合
		out[strings.ToLower(strings.Trim(w, tokenStripCutset))] = struct{}{}
	}
	return out
}

type reference struct {
	tokens   map[string]struct{}
	category string
}

// findReference 在候选集里查找参考文章，找不到时返回空参考
func findReference(candidates []storage.Article, id string) reference {
	if id == "" {
		return reference{}
	}
	for _, a := range candidates {
		if a.ID != id {
			continue
		}
		toks := Tokens(str(a.Title))
		for t := range Tokens(str(a.Description)) {
			toks[t] = struct{}{}
		}
		return reference{tokens: toks, category: a.Category}
	}
	return reference{}
}

func score(a storage.Article, ref reference, categoryPref string, now time.Time) float64 {
	var s float64
	if len(ref.tokens) > 0 {
		overlap := 0
		for t := range Tokens(str(a.Title) + " " + str(a.Description)) {
			if _, ok := ref.tokens[t]; ok {
				overlap++
			}
		}
		s += overlapWeight * float64(overlap)
	}
	if categoryPref != "" && a.Category == categoryPref {
		s += categoryPrefBonus
	}
	if ref.category != "" && a.Category == ref.category {
		s += referenceCatBonus
	}
	if a.PublishedAt != nil {
		ageDays := now.Sub(*a.PublishedAt).Seconds() / secondsPerDay
		s += math.Max(0, recencyMaxDays-ageDays)
	}
	return s + baseScore
}

// Rank 为候选集打分并按分数降序返回前 Limit 篇；同分保持候选集原有顺序
func Rank(candidates []storage.Article, opts Options, now time.Time) []storage.Article {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	ref := findReference(candidates, opts.ReferenceID)

	type scored struct {
		article storage.Article
		score   float64
	}
	list := make([]scored, len(candidates))
	for i, a := range candidates {
		list[i] = scored{article: a, score: score(a, ref, opts.CategoryPref, now)}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].score > list[j].score
	})

	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]storage.Article, len(list))
	for i, s := range list {
		out[i] = s.article
	}
	return out
}

// CandidateSource 读取最近的文章作为候选集
type CandidateSource interface {
	ListLatest(ctx context.Context, limit int, category string) ([]storage.Article, error)
}

// Service 从存储读取候选窗口后调用 Rank，只读不写
type Service struct {
	store  CandidateSource
	window int
	now    func() time.Time
}

func NewService(store CandidateSource, window int) *Service {
	if window <= 0 {
		window = DefaultCandidateWindow
	}
	return &Service{store: store, window: window, now: time.Now}
}

func (s *Service) Recommend(ctx context.Context, opts Options) ([]storage.Article, error) {
	candidates, err := s.store.ListLatest(ctx, s.window, "")
	if err != nil {
		return nil, fmt.Errorf("recommend: load candidates: %w", err)
	}
	return Rank(candidates, opts, s.now()), nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
