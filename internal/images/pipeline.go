package images

import (
	"context"
	"fmt"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/DriveStockSync/DriveStockSync/internal/common/middleware"
	"github.com/google/uuid"
)

// Store 图片流水线需要的数据访问面，由 catalog.Repo 实现。
type Store interface {
	ListPendingImages(ctx context.Context, limit int) ([]catalog.PendingImage, error)
	DeletePendingImage(ctx context.Context, id string) error
	FindImageByURL(ctx context.Context, vehicleID, url string) (*catalog.VehicleImage, error)
	CreateImage(ctx context.Context, img *catalog.VehicleImage) error
	CountImages(ctx context.Context, vehicleID string) (int64, error)
	SetFeaturedImage(ctx context.Context, vehicleID, imageID string) error
}

// DrainStats 一次队列消费的计数。
type DrainStats struct {
	Downloaded int
	Satisfied  int
	Failed     int
}

// Pipeline 消费待下载队列。每个 (vehicle, url) 至多下载一次：
// 已有 VehicleImage 行的队列项直接出队，不发请求。
// 失败的队列项同样出队，等下一轮同步重新入队再试。
type Pipeline struct {
	store      Store
	downloader Downloader
	files      FileStore
	bucket     *middleware.TokenBucket
	pauseMs    int
	maxDrain   int
	log        logger.Logger
}

func NewPipeline(store Store, dl Downloader, files FileStore, cfg config.ImagesConfig, log logger.Logger) *Pipeline {
	rate := cfg.RatePerSecond
	if rate <= 0 {
		rate = 5
	}
	return &Pipeline{
		store:      store,
		downloader: dl,
		files:      files,
		bucket:     middleware.NewTokenBucket(int64(rate), int64(rate)),
		pauseMs:    cfg.DownloadPauseMs,
		maxDrain:   cfg.MaxPerDrain,
		log:        log,
	}
}

// Drain 处理当前队列里的待下载项。
func (p *Pipeline) Drain(ctx context.Context) (DrainStats, error) {
	var stats DrainStats
	if p == nil || p.store == nil {
		return stats, fmt.Errorf("pipeline not initialized")
	}

	pending, err := p.store.ListPendingImages(ctx, p.maxDrain)
	if err != nil {
		return stats, fmt.Errorf("list pending images: %w", err)
	}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		item := &pending[i]

		downloaded, err := p.processOne(ctx, item)
		if err != nil {
			stats.Failed++
			if p.log != nil {
				p.log.WithFields(map[string]interface{}{
					"vehicle_id": item.VehicleID,
					"url":        item.SourceURL,
					"error":      err.Error(),
				}).Warn("image download failed")
			}
		} else if downloaded {
			stats.Downloaded++
		} else {
			stats.Satisfied++
		}

		// 成功失败都出队，避免坏地址卡住队列
		if err := p.store.DeletePendingImage(ctx, item.ID); err != nil {
			return stats, fmt.Errorf("dequeue pending image %s: %w", item.ID, err)
		}

		if downloaded && p.pauseMs > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(time.Duration(p.pauseMs) * time.Millisecond):
			}
		}
	}
	return stats, nil
}

// processOne 返回是否真正发生了下载。
func (p *Pipeline) processOne(ctx context.Context, item *catalog.PendingImage) (bool, error) {
	existing, err := p.store.FindImageByURL(ctx, item.VehicleID, item.SourceURL)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	if err := p.bucket.Wait(ctx); err != nil {
		return false, err
	}

	data, contentType, err := p.downloader.Download(ctx, item.SourceURL)
	if err != nil {
		return false, err
	}

	localPath, err := p.files.Save(item.VehicleID, item.SourceURL, contentType, data)
	if err != nil {
		return false, err
	}

	count, err := p.store.CountImages(ctx, item.VehicleID)
	if err != nil {
		return false, err
	}

	img := &catalog.VehicleImage{
		ID:        uuid.NewString(),
		VehicleID: item.VehicleID,
		SourceURL: item.SourceURL,
		LocalPath: localPath,
		SortOrder: int(count),
	}
	if err := p.store.CreateImage(ctx, img); err != nil {
		return false, err
	}

	// 车辆的第一张图自动成为主图
	if count == 0 {
		if err := p.store.SetFeaturedImage(ctx, item.VehicleID, img.ID); err != nil {
			return true, err
		}
	}
	return true, nil
}
