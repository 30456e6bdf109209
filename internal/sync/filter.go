package sync

import (
	"fmt"
	"strings"

	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/feed"
)

// Reason 过滤不通过的原因分类（固定枚举，审计字段直接落这个值）。
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoActiveStock     Reason = "no_active_stock"
	ReasonBlockedLocation   Reason = "blocked_location"
	ReasonPriceTooLow       Reason = "price_too_low"
	ReasonBlockedStatus     Reason = "blocked_status"
	ReasonMissingIdentifier Reason = "missing_identifier"
	ReasonNoImages          Reason = "no_images"

	// 清理阶段复核时追加的下架原因
	ReasonAbsentFromFeed    Reason = "absent_from_feed"
	ReasonFilteredOnRecheck Reason = "filtered_on_recheck"
	ReasonRecheckFailed     Reason = "recheck_failed"
)

// Decision 过滤结果。不通过时 Reason 给出分类，Detail 是给日志/审计的补充说明。
type Decision struct {
	Admit  bool
	Reason Reason
	Detail string
}

// FilterRules 上架准入规则（纯函数，无 I/O，可在同步外（如清理复核）安全调用）。
type FilterRules struct {
	BlockedLocations []string // 屏蔽的门店/地区子串（不区分大小写）
	MinPrice         float64  // 挂牌价必须严格大于该值
	BlockedStatuses  []string // 屏蔽的 offer 业务状态
	RequireImages    bool     // 是否要求至少一张图片
}

// NewFilterRules 从配置构建过滤规则。
func NewFilterRules(cfg config.SyncConfig) FilterRules {
	return FilterRules{
		BlockedLocations: cfg.BlockedLocations,
		MinPrice:         cfg.MinPrice,
		BlockedStatuses:  cfg.BlockedStatuses,
		RequireImages:    cfg.RequireImages,
	}
}

// Evaluate 按固定优先级逐项检查，首个不通过即返回（顺序影响原因归类，测试依赖该顺序）：
// 1. 必须有在库 offer；2. 在库 offer 的地点不含屏蔽子串；3. 挂牌价高于下限；
// 4. 在库 offer 的业务状态不在屏蔽名单；5. 自然键非空；6.（可选）至少一张图片。
func (r FilterRules) Evaluate(rec *feed.Record) Decision {
	if rec == nil {
		return Decision{Admit: false, Reason: ReasonNoActiveStock, Detail: "record is nil"}
	}

	offer := rec.ActiveOffer()
	if offer == nil {
		return Decision{Admit: false, Reason: ReasonNoActiveStock, Detail: "no offer with ACTIVE stock status"}
	}

	if loc, blocked := r.blockedLocation(offer); blocked {
		return Decision{Admit: false, Reason: ReasonBlockedLocation, Detail: fmt.Sprintf("location matches blocked substring %q", loc)}
	}

	if rec.Prices.List <= r.MinPrice {
		return Decision{Admit: false, Reason: ReasonPriceTooLow, Detail: fmt.Sprintf("list price %.2f <= min %.2f", rec.Prices.List, r.MinPrice)}
	}

	if st, blocked := r.blockedStatus(offer); blocked {
		return Decision{Admit: false, Reason: ReasonBlockedStatus, Detail: fmt.Sprintf("offer status %q is blocked", st)}
	}

	if rec.NaturalKey() == "" {
		return Decision{Admit: false, Reason: ReasonMissingIdentifier, Detail: "no plate or origin code"}
	}

	if r.RequireImages && len(rec.ImageURLs()) == 0 {
		return Decision{Admit: false, Reason: ReasonNoImages, Detail: "no image urls"}
	}

	return Decision{Admit: true}
}

// blockedLocation 优先看 offer 的地点，没有则退回门店名，做不区分大小写的子串匹配。
func (r FilterRules) blockedLocation(offer *feed.Offer) (string, bool) {
	name := strings.TrimSpace(offer.Location)
	if name == "" {
		name = strings.TrimSpace(offer.Branch)
	}
	if name == "" {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, sub := range r.BlockedLocations {
		sub = strings.ToLower(strings.TrimSpace(sub))
		if sub == "" {
			continue
		}
		if strings.Contains(lower, sub) {
			return sub, true
		}
	}
	return "", false
}

func (r FilterRules) blockedStatus(offer *feed.Offer) (string, bool) {
	st := strings.TrimSpace(offer.Status)
	if st == "" {
		return "", false
	}
	for _, blocked := range r.BlockedStatuses {
		if strings.EqualFold(st, strings.TrimSpace(blocked)) {
			return st, true
		}
	}
	return "", false
}
