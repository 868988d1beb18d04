package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/NewsDigest/internal/storage"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	articles  []storage.Article
	err       error
	lastLimit int
}

func (f *fakeReader) ListLatest(_ context.Context, limit int, _ string) ([]storage.Article, error) {
	f.lastLimit = limit
	return f.articles, f.err
}

func strPtr(s string) *string { return &s }

func TestGenerateWritesCards(t *testing.T) {
	pub := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{articles: []storage.Article{
		{
			Title:       strPtr(`Markets <rally> & "cheer"`),
			Description: strPtr("desc"),
			URL:         "http://e/1",
			Source:      strPtr("S"),
			Category:    "business",
			PublishedAt: &pub,
			ImageURL:    strPtr("http://i/1"),
		},
		{URL: ""},
	}}
	dir := filepath.Join(t.TempDir(), "output")
	r := New(reader, dir, []string{"general", "business"}, nil)

	n, err := r.Generate(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 20, reader.lastLimit)

	f, err := os.Open(r.Path())
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)

	cards := doc.Find("article.card")
	require.Equal(t, 2, cards.Length())

	first := cards.First()
	assert.Equal(t, `Markets <rally> & "cheer"`, first.Find(".title").Text())
	title, _ := first.Attr("data-title")
	assert.Equal(t, `Markets <rally> & "cheer"`, title)
	category, _ := first.Attr("data-category")
	assert.Equal(t, "business", category)
	assert.Equal(t, "S • 2024-01-01T00:00:00Z", first.Find(".meta").Text())
	published, _ := first.Find(".meta").Attr("data-published")
	assert.Equal(t, "2024-01-01T00:00:00Z", published)
	href, _ := first.Find("a.link").Attr("href")
	assert.Equal(t, "http://e/1", href)

	second := cards.Eq(1)
	assert.Equal(t, "No title", second.Find(".title").Text())
	assert.Equal(t, "Unknown • ", second.Find(".meta").Text())
	href, _ = second.Find("a.link").Attr("href")
	assert.Equal(t, "#", href)
	category, _ = second.Attr("data-category")
	assert.Equal(t, "general", category)

	assert.Equal(t, 3, doc.Find("#categorySelect option").Length())
	// 推荐栏由前端脚本调用 /api/recommend 填充
	assert.Equal(t, 1, doc.Find("aside#recommendContainer").Length())
	assert.Equal(t, "Recommended", doc.Find("#recommendContainer h3").Text())
	_, err = os.Stat(r.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateKeepsPreviousPageOnStoreError(t *testing.T) {
	dir := t.TempDir()
	r := New(&fakeReader{err: errors.New("db down")}, dir, nil, nil)
	require.NoError(t, os.WriteFile(r.Path(), []byte("old"), 0o644))

	_, err := r.Generate(context.Background(), 20)
	require.Error(t, err)

	body, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	assert.Equal(t, "old", string(body))
}
