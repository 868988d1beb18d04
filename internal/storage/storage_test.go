package storage

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/NewsDigest/internal/logger"
	"github.com/LJTian/NewsDigest/internal/processor"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	return newTestStoreWithRedis(t, nil, nil)
}

func newTestStoreWithRedis(t *testing.T, rdb *redis.Client, lg *slog.Logger) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "news.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	s, err := NewStoreWithDB(db, rdb, lg)
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestUpsertMergesTitleAndDescriptionOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, processor.Article{
		Title:       strPtr("T1"),
		Description: strPtr("D1"),
		URL:         "u1",
		Source:      strPtr("S1"),
		Category:    "technology",
		PublishedAt: timePtr(first),
		ImageURL:    strPtr("http://i/1"),
	}))
	require.NoError(t, s.Upsert(ctx, processor.Article{
		Title:       strPtr("T2"),
		Description: strPtr("D2"),
		URL:         "u1",
		Source:      strPtr("S2"),
		Category:    "sports",
		PublishedAt: timePtr(first.Add(48 * time.Hour)),
		ImageURL:    strPtr("http://i/2"),
	}))

	var rows []Article
	require.NoError(t, s.DB.Find(&rows).Error)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, processor.HashURL("u1"), got.ID)
	assert.Equal(t, "T2", *got.Title)
	assert.Equal(t, "D2", *got.Description)
	assert.Equal(t, "technology", got.Category)
	assert.Equal(t, "S1", *got.Source)
	assert.Equal(t, "http://i/1", *got.ImageURL)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, got.PublishedAt.Equal(first))
}

func TestUpsertWithoutURLNeverCollides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, processor.Article{Title: strPtr("a"), Category: "general"}))
	require.NoError(t, s.Upsert(ctx, processor.Article{Title: strPtr("b"), Category: "general"}))

	var count int64
	require.NoError(t, s.DB.Model(&Article{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestListLatestOrderAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, processor.Article{URL: "old", Category: "sports", PublishedAt: timePtr(base)}))
	require.NoError(t, s.Upsert(ctx, processor.Article{URL: "undated", Category: "sports"}))
	require.NoError(t, s.Upsert(ctx, processor.Article{URL: "new", Category: "technology", PublishedAt: timePtr(base.Add(time.Hour))}))

	all, err := s.ListLatest(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "old", "undated"}, []string{all[0].URL, all[1].URL, all[2].URL})

	sports, err := s.ListLatest(ctx, 10, "sports")
	require.NoError(t, err)
	require.Len(t, sports, 2)
	assert.Equal(t, "old", sports[0].URL)

	limited, err := s.ListLatest(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new", limited[0].URL)
}

func TestListLatestDefaultLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Upsert(ctx, processor.Article{URL: processor.HashURL(string(rune('a' + i))), Category: "general"}))
	}

	list, err := s.ListLatest(ctx, 0, "")
	require.NoError(t, err)
	assert.Len(t, list, defaultListLimit)
}

func TestSaveAndListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &IngestionRun{Trigger: TriggerSchedule, StartedAt: start, FinishedAt: start.Add(time.Second), Inserted: 3}
	newer := &IngestionRun{
		Trigger:    TriggerManual,
		StartedAt:  start.Add(time.Minute),
		FinishedAt: start.Add(2 * time.Minute),
		Categories: datatypes.JSONMap{"sports": map[string]any{"error": "boom"}},
	}
	require.NoError(t, s.SaveRun(ctx, older))
	require.NoError(t, s.SaveRun(ctx, newer))
	assert.NotEmpty(t, older.ID)

	runs, err := s.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, TriggerManual, runs[0].Trigger)
	sports, ok := runs[0].Categories["sports"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", sports["error"])
	assert.Equal(t, 3, runs[1].Inserted)
}

func TestInvalidateLatestWithoutRedis(t *testing.T) {
	s := newTestStore(t)
	assert.NotPanics(t, func() { s.InvalidateLatest(context.Background()) })
}

func TestUpsertSanitizesImageURLKeepsURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rawURL := "http://e/a"
	require.NoError(t, s.Upsert(ctx, processor.Article{
		URL:      rawURL,
		Category: "general",
		ImageURL: strPtr("http://i/\xff.png"),
	}))

	var got Article
	require.NoError(t, s.DB.First(&got).Error)
	assert.Equal(t, processor.HashURL(rawURL), got.ID)
	assert.Equal(t, rawURL, got.URL)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, "http://i/\uFFFD.png", *got.ImageURL)
}

func TestListLatestCacheAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestStoreWithRedis(t, rdb, nil)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, processor.Article{URL: "u1", Category: "general", PublishedAt: timePtr(base)}))

	list, err := s.ListLatest(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	key := latestCacheKey(0, "", 10)
	require.True(t, mr.Exists(key))
	assert.Equal(t, listCacheTTL, mr.TTL(key))

	// 绕过缓存直接写库，缓存未失效前仍返回旧结果
	require.NoError(t, s.Upsert(ctx, processor.Article{URL: "u2", Category: "general", PublishedAt: timePtr(base.Add(time.Hour))}))
	list, err = s.ListLatest(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].URL)

	s.InvalidateLatest(ctx)
	gen, err := mr.Get(cacheGenKey)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	list, err = s.ListLatest(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u2", list[0].URL)
	assert.True(t, mr.Exists(latestCacheKey(1, "", 10)))
}

func TestListLatestCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := newTestStoreWithRedis(t, rdb, nil)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, processor.Article{URL: "u1", Category: "sports"}))
	_, err := s.ListLatest(ctx, 5, "sports")
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, processor.Article{URL: "u2", Category: "sports"}))
	mr.FastForward(listCacheTTL)

	list, err := s.ListLatest(ctx, 5, "sports")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestInvalidateLatestLogsRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	var buf bytes.Buffer
	s := newTestStoreWithRedis(t, rdb, logger.NewWithWriter(&buf, "warn"))

	mr.Close()
	s.InvalidateLatest(context.Background())

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "redis bump cache generation failed")
}
