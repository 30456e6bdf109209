package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// FindByExternalID 按外部自然键查车辆；不存在返回 (nil, nil)。
func (r *Repo) FindByExternalID(ctx context.Context, externalID string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	err := db.Where("external_id = ?", externalID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) Create(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(v).Error
}

func (r *Repo) Save(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(v).Error
}

// TouchLastSynced 只刷新 last_synced_at（内容指纹未变时的轻量路径）。
func (r *Repo) TouchLastSynced(ctx context.Context, vehicleID string, at time.Time) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Model(&Vehicle{}).Where("id = ?", vehicleID).
		Update("last_synced_at", at).Error
}

// ReplaceTaxonomy 按 category 整体替换车辆的词条关联。
// name 为空时仅删除该 category 下的关联。词条本身按 (category, name) 去重复用。
func (r *Repo) ReplaceTaxonomy(ctx context.Context, vehicleID, category, name string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	name = strings.TrimSpace(name)

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vehicle_id = ? AND category = ?", vehicleID, category).
			Delete(&VehicleTaxonomyAssignment{}).Error; err != nil {
			return err
		}
		if name == "" {
			return nil
		}

		term := TaxonomyTerm{Category: category, Name: name}
		if err := tx.Where("category = ? AND name = ?", category, name).
			Attrs(TaxonomyTerm{ID: uuid.NewString()}).
			FirstOrCreate(&term).Error; err != nil {
			return err
		}

		return tx.Create(&VehicleTaxonomyAssignment{
			ID:        uuid.NewString(),
			VehicleID: vehicleID,
			Category:  category,
			TermID:    term.ID,
		}).Error
	})
}

// ListPublishedStale 查询上架中、自然键不在本次有效集合里、且最近没被更新过的车辆。
// 这些是清理阶段的候选（仍需点查复核后才会下架）。
func (r *Repo) ListPublishedStale(ctx context.Context, excludeKeys []string, olderThan time.Time) ([]Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Vehicle{}).
		Where("status = ?", StatusPublished).
		Where("updated_at < ?", olderThan)
	if len(excludeKeys) > 0 {
		q = q.Where("external_id NOT IN ?", excludeKeys)
	}
	var vs []Vehicle
	if err := q.Order("updated_at ASC").Find(&vs).Error; err != nil {
		return nil, err
	}
	return vs, nil
}

// CreateSyncRun 写入运行审计记录（尽力而为，失败由调用方降级为日志）。
func (r *Repo) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(run).Error
}

func (r *Repo) FinalizeSyncRun(ctx context.Context, run *SyncRun) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(run).Error
}

func (r *Repo) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []SyncRun
	if err := db.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// PublishedFilter 读 API 的查询条件。
type PublishedFilter struct {
	Brand    string
	Year     int
	MinPrice float64
	MaxPrice float64

	// LegacyBlockedLocations 读层的兜底二次过滤：对 extra JSON 做子串排除。
	// 与同步侧的 Filter Evaluator 重复，属于防御性冗余，权威判断在同步侧。
	LegacyBlockedLocations []string

	Offset int
	Limit  int
}

// ListPublished 读 API 用的查询：只返回上架、车牌非空、且至少有一张图片的车辆。
// 下游消费方（feed 导出等）重复应用了同步侧过滤条件的一个子集作为第二道防线。
func (r *Repo) ListPublished(ctx context.Context, f PublishedFilter) ([]Vehicle, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := db.Model(&Vehicle{}).
		Where("vehicles.status = ?", StatusPublished).
		Where("vehicles.plate <> ''").
		Where("EXISTS (SELECT 1 FROM vehicle_images WHERE vehicle_images.vehicle_id = vehicles.id)")

	if f.Brand != "" {
		q = q.Joins("JOIN vehicle_taxonomy_assignments vta ON vta.vehicle_id = vehicles.id AND vta.category = ?", CategoryBrand).
			Joins("JOIN taxonomy_terms tt ON tt.id = vta.term_id").
			Where("tt.name = ?", f.Brand)
	}
	if f.Year > 0 {
		q = q.Where("vehicles.year = ?", f.Year)
	}
	if f.MinPrice > 0 {
		q = q.Where("vehicles.price >= ?", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		q = q.Where("vehicles.price <= ?", f.MaxPrice)
	}
	for _, loc := range f.LegacyBlockedLocations {
		loc = strings.ToLower(strings.TrimSpace(loc))
		if loc == "" {
			continue
		}
		q = q.Where("LOWER(vehicles.extra) NOT LIKE ?", "%"+loc+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vs []Vehicle
	if err := q.Order("vehicles.updated_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&vs).Error; err != nil {
		return nil, 0, err
	}
	return vs, total, nil
}
