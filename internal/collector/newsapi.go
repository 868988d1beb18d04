package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	newsAPIDefaultURL      = "https://newsapi.org/v2/everything"
	newsAPIDefaultLanguage = "en"
	newsAPIDefaultPageSize = 50
	newsAPIMaxPageSize     = 100
	newsAPIClientTimeout   = 25 * time.Second
	newsAPIMaxBodyBytes    = 4 << 20 // 4MB
)

// NewsAPIOptions NewsAPI 客户端参数，零值字段使用默认值
type NewsAPIOptions struct {
	BaseURL  string
	APIKey   string
	Language string
	PageSize int
	Timeout  time.Duration
	// 为空时按 Timeout 新建
	HTTPClient *http.Client
}

// NewsAPIClient 调用 NewsAPI /v2/everything 按关键词搜索
type NewsAPIClient struct {
	baseURL  string
	apiKey   string
	language string
	pageSize int
	client   *http.Client
}

type newsAPIResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []RawArticle `json:"articles"`
}

func NewNewsAPIClient(opts NewsAPIOptions) *NewsAPIClient {
	c := &NewsAPIClient{
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		language: opts.Language,
		pageSize: opts.PageSize,
		client:   opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = newsAPIDefaultURL
	}
	if c.language == "" {
		c.language = newsAPIDefaultLanguage
	}
	if c.pageSize <= 0 {
		c.pageSize = newsAPIDefaultPageSize
	}
	if c.pageSize > newsAPIMaxPageSize {
		c.pageSize = newsAPIMaxPageSize
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = newsAPIClientTimeout
		}
		c.client = &http.Client{Timeout: timeout}
	}
	return c
}

// Configured 是否配置了 API Key
func (c *NewsAPIClient) Configured() bool {
	return c.apiKey != ""
}

// Search 按关键词拉取一页结果
func (c *NewsAPIClient) Search(ctx context.Context, query string) ([]RawArticle, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("newsapi: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("language", c.language)
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: build request: %w", err)
	}
	req.Header.Set("User-Agent", "NewsDigestBot/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: search %q: %w", query, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, newsAPIMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("newsapi: read body: %w", err)
	}

	var out newsAPIResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 错误响应体里通常带有 code / message，尽量带上
		if decodeErr == nil && out.Message != "" {
			return nil, fmt.Errorf("newsapi: unexpected status %d: %s: %s", resp.StatusCode, out.Code, out.Message)
		}
		return nil, fmt.Errorf("newsapi: unexpected status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("newsapi: decode response: %w", decodeErr)
	}
	if out.Status == "error" {
		return nil, fmt.Errorf("newsapi: api error %s: %s", out.Code, out.Message)
	}

	return out.Articles, nil
}
