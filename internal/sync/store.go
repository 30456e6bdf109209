package sync

import (
	"context"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
)

// Store 同步引擎需要的本地存储能力，由 catalog.Repo 实现。
// 查找类方法按“未命中返回 (nil, nil)”约定，便于测试替身实现。
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*catalog.Vehicle, error)
	Create(ctx context.Context, v *catalog.Vehicle) error
	Save(ctx context.Context, v *catalog.Vehicle) error
	TouchLastSynced(ctx context.Context, vehicleID string, at time.Time) error

	ReplaceTaxonomy(ctx context.Context, vehicleID, category, name string) error

	ImageURLs(ctx context.Context, vehicleID string) ([]string, error)
	DeleteImagesByURLs(ctx context.Context, vehicleID string, urls []string) error
	EnqueuePendingImages(ctx context.Context, vehicleID string, urls []string) error

	ListPublishedStale(ctx context.Context, excludeKeys []string, olderThan time.Time) ([]catalog.Vehicle, error)

	CreateSyncRun(ctx context.Context, run *catalog.SyncRun) error
	FinalizeSyncRun(ctx context.Context, run *catalog.SyncRun) error
}
