package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
)

// ErrNotFound 点查未命中（feed 里没有这辆车）。
var ErrNotFound = errors.New("record not found in feed")

// Page 一页 feed 数据 + 分页元信息。
type Page struct {
	Records     []Record
	CurrentPage int
	TotalPages  int
	TotalCount  int
}

// Client 外部车源 feed 客户端。
// feed 只支持分页拉取和少数几个键的点查，不支持服务端过滤/删除通知。
type Client interface {
	// FetchPage 拉取一页记录（page 从 1 开始）。
	FetchPage(ctx context.Context, page, pageSize int) (*Page, error)
	// FindByKey 按自然键（车牌或 origin code）点查一条记录；未命中返回 ErrNotFound。
	FindByKey(ctx context.Context, key string) (*Record, error)
}

// HTTPClient 基于 HTTP JSON API 的 Client 实现。
type HTTPClient struct {
	baseURL   string
	apiKey    string
	userAgent string
	client    *http.Client
}

// NewHTTPClient 创建 feed HTTP 客户端。
func NewHTTPClient(cfg config.FeedConfig) (*HTTPClient, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("feed base_url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid feed base_url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "drivestocksync/1.0"
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(base, "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: ua,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// pagePayload 兼容两种返回形态：带 meta 的包装对象，或裸数组。
type pagePayload struct {
	Data []Record `json:"data"`
	Meta struct {
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_pages"`
		Total       int `json:"total"`
	} `json:"meta"`
}

func (c *HTTPClient) FetchPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	u, err := url.Parse(c.baseURL + "/api/vehicles")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	body, status, err := c.doGET(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	_ = status

	var wrapped pagePayload
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Data) > 0 {
		return &Page{
			Records:     normalizeRecords(wrapped.Data),
			CurrentPage: orDefault(wrapped.Meta.CurrentPage, page),
			TotalPages:  wrapped.Meta.TotalPages,
			TotalCount:  wrapped.Meta.Total,
		}, nil
	}

	var arr []Record
	if err := json.Unmarshal(body, &arr); err != nil {
		return nil, fmt.Errorf("fetch page %d: payload parse: %w", page, err)
	}
	return &Page{
		Records:     normalizeRecords(arr),
		CurrentPage: page,
		TotalPages:  0, // 裸数组没有元信息，翻到空页为止
		TotalCount:  0,
	}, nil
}

func (c *HTTPClient) FindByKey(ctx context.Context, key string) (*Record, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lookup key is required")
	}

	u := c.baseURL + "/api/vehicles/lookup?key=" + url.QueryEscape(key)
	body, status, err := c.doGET(ctx, u)
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", key, err)
	}

	var wrapped struct {
		Vehicle *Record `json:"vehicle"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Vehicle != nil {
		rec := normalizeRecord(*wrapped.Vehicle)
		return &rec, nil
	}
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("lookup %s: payload parse: %w", key, err)
	}
	if rec.NaturalKey() == "" {
		return nil, ErrNotFound
	}
	rec = normalizeRecord(rec)
	return &rec, nil
}

func (c *HTTPClient) doGET(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return b, resp.StatusCode, nil
}

func normalizeRecords(in []Record) []Record {
	out := make([]Record, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		r = normalizeRecord(r)
		key := r.NaturalKey()
		if key == "" {
			// 连 origin code 都没有的记录无法对账，直接丢弃
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
