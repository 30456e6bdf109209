package catalog

import "time"

// Status 车辆生命周期状态枚举（持久化为字符串）。
type Status string

const (
	StatusDraft     Status = "draft"     // 已入库，尚未对外可见
	StatusPublished Status = "published" // 上架（读 API / 广告导出可见）
	StatusArchived  Status = "archived"  // 下架（保留历史，便于审计与回溯）
)

// 分类维度（taxonomy category）。每辆车每个维度至多一个词条。
const (
	CategoryBrand        = "brand"
	CategoryModel        = "model"
	CategoryFuel         = "fuel"
	CategoryTransmission = "transmission"
	CategorySegment      = "segment"
	CategoryCondition    = "condition"
)

// Vehicle 车辆 GORM 模型。
// ExternalID 是外部系统的自然键（车牌优先，其次 origin code），同步全程用它对账。
type Vehicle struct {
	ID         string `gorm:"primaryKey;size:36"`
	ExternalID string `gorm:"uniqueIndex;size:64;not null"`

	Title       string `gorm:"size:255"`
	Description string `gorm:"type:text"`
	Status      Status `gorm:"type:varchar(16);index;not null"`

	Year     int    `gorm:"index"`
	Odometer int    // 公里数
	Plate    string `gorm:"size:32;index"` // 可为空；published 状态下必须非空

	// 两套可选报价（不同币种，如本币挂牌价 + 美元价）
	Price             *float64 `gorm:"type:decimal(14,2)"`
	PriceCurrency     string   `gorm:"size:8"`
	SecondaryPrice    *float64 `gorm:"type:decimal(14,2)"`
	SecondaryCurrency string   `gorm:"size:8"`

	FeaturedImageID *string `gorm:"size:36"` // 指向 VehicleImage.ID

	VersionFingerprint string `gorm:"size:64;index"` // 内容指纹，用于免写路径判断

	Extra Extra `gorm:"type:json"` // 半结构化补充字段（库存快照/颜色/原始价格/审计）

	LastSyncedAt      *time.Time // 最近一次被同步看到的时间
	ExternalUpdatedAt *time.Time // 外部系统声明的更新时间

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// VehicleImage 车辆图片。每辆车内 source_url 唯一；至多一张 is_featured。
type VehicleImage struct {
	ID         string `gorm:"primaryKey;size:36"`
	VehicleID  string `gorm:"size:36;not null;index;uniqueIndex:uniq_vehicle_image_url"`
	SourceURL  string `gorm:"size:512;not null;uniqueIndex:uniq_vehicle_image_url"`
	LocalPath  string `gorm:"size:512"` // 本地存储路径（下载成功后写入）
	IsFeatured bool   `gorm:"not null;default:false"`
	SortOrder  int    `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// PendingImage 待下载图片队列行。下载成功或确认已存在后删除。
type PendingImage struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"size:36;not null;index;uniqueIndex:uniq_pending_vehicle_url"`
	SourceURL string `gorm:"size:512;not null;uniqueIndex:uniq_pending_vehicle_url"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TaxonomyTerm 去重后的 (category, name) 词条，如 (brand, "Toyota")。
type TaxonomyTerm struct {
	ID       string `gorm:"primaryKey;size:36"`
	Category string `gorm:"size:32;not null;uniqueIndex:uniq_term_category_name"`
	Name     string `gorm:"size:128;not null;uniqueIndex:uniq_term_category_name"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// VehicleTaxonomyAssignment 车辆与词条的关联，每辆车每个 category 唯一。
// 更新时按 category 整体替换（删旧插新）。
type VehicleTaxonomyAssignment struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"size:36;not null;index;uniqueIndex:uniq_assignment_vehicle_category"`
	Category  string `gorm:"size:32;not null;uniqueIndex:uniq_assignment_vehicle_category"`
	TermID    string `gorm:"size:36;not null;index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// SyncRun 同步运行审计记录。尽力而为：写入失败不阻塞同步本身。
type SyncRun struct {
	ID     string `gorm:"primaryKey;size:36"`
	Type   string `gorm:"size:16;not null"` // full / incremental
	Status string `gorm:"size:16;not null"` // running / completed / failed

	Fetched   int `gorm:"not null;default:0"`
	Created   int `gorm:"not null;default:0"`
	Updated   int `gorm:"not null;default:0"`
	Unchanged int `gorm:"not null;default:0"`
	Archived  int `gorm:"not null;default:0"`
	Filtered  int `gorm:"not null;default:0"`
	Errors    int `gorm:"not null;default:0"`

	Error string `gorm:"type:text"`

	StartedAt  time.Time
	FinishedAt *time.Time
}
