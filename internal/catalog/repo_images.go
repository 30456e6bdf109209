package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImageURLs 返回车辆当前已登记的图片源地址（含未下载完成的）。
func (r *Repo) ImageURLs(ctx context.Context, vehicleID string) ([]string, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var urls []string
	if err := db.Model(&VehicleImage{}).Where("vehicle_id = ?", vehicleID).
		Order("sort_order ASC").Pluck("source_url", &urls).Error; err != nil {
		return nil, err
	}
	return urls, nil
}

func (r *Repo) ListImages(ctx context.Context, vehicleID string) ([]VehicleImage, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var imgs []VehicleImage
	if err := db.Where("vehicle_id = ?", vehicleID).
		Order("sort_order ASC").Find(&imgs).Error; err != nil {
		return nil, err
	}
	return imgs, nil
}

// DeleteImagesByURLs 删除车辆图片记录（feed 里已不存在的图）。
func (r *Repo) DeleteImagesByURLs(ctx context.Context, vehicleID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("vehicle_id = ? AND source_url IN ?", vehicleID, urls).
		Delete(&VehicleImage{}).Error
}

// EnqueuePendingImages 将待下载地址入队；已在队列中的 (vehicle, url) 不重复入队。
func (r *Repo) EnqueuePendingImages(ctx context.Context, vehicleID string, urls []string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		p := PendingImage{VehicleID: vehicleID, SourceURL: u}
		if err := db.Where("vehicle_id = ? AND source_url = ?", vehicleID, u).
			Attrs(PendingImage{ID: uuid.NewString()}).
			FirstOrCreate(&p).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) ListPendingImages(ctx context.Context, limit int) ([]PendingImage, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	q := db.Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var pending []PendingImage
	if err := q.Find(&pending).Error; err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *Repo) DeletePendingImage(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("id = ?", id).Delete(&PendingImage{}).Error
}

// FindImageByURL 查某辆车下指定源地址的图片；不存在返回 (nil, nil)。
func (r *Repo) FindImageByURL(ctx context.Context, vehicleID, url string) (*VehicleImage, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var img VehicleImage
	err := db.Where("vehicle_id = ? AND source_url = ?", vehicleID, url).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *Repo) CreateImage(ctx context.Context, img *VehicleImage) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(img).Error
}

func (r *Repo) CountImages(ctx context.Context, vehicleID string) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	if err := db.Model(&VehicleImage{}).Where("vehicle_id = ?", vehicleID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// SetFeaturedImage 将指定图片设为主图，并维护“每车至多一张主图”的不变式：
// 同车其他图片的 is_featured 清零，车辆的 featured_image_id 同步指向该图。
func (r *Repo) SetFeaturedImage(ctx context.Context, vehicleID, imageID string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&VehicleImage{}).Where("vehicle_id = ?", vehicleID).
			Update("is_featured", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&VehicleImage{}).Where("id = ? AND vehicle_id = ?", imageID, vehicleID).
			Update("is_featured", true).Error; err != nil {
			return err
		}
		return tx.Model(&Vehicle{}).Where("id = ?", vehicleID).
			Update("featured_image_id", imageID).Error
	})
}
