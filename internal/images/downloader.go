package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
)

// Downloader 拉取单张图片内容。
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// HTTPDownloader 基于标准 HTTP 客户端的实现，返回内容和 Content-Type。
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
}

func NewHTTPDownloader(cfg config.ImagesConfig, userAgent string) *HTTPDownloader {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDownloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("download %s: empty body", url)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
