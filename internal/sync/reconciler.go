package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/DriveStockSync/DriveStockSync/internal/feed"
	"github.com/google/uuid"
)

// Mode 同步模式。增量模式下指纹未变的记录走免写路径。
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Outcome 单条记录的处理结果分类（汇总进运行计数器）。
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeArchived  Outcome = "archived"
	OutcomeSkipped   Outcome = "skipped"
)

// Reconciler 逐条消费外部记录，决定本地车辆的去留与状态。
// 车辆 status 的流转只发生在这里（加上清理阶段的下架），别处不允许改。
type Reconciler struct {
	store Store
	rules FilterRules
	log   logger.Logger
}

func NewReconciler(store Store, rules FilterRules, log logger.Logger) *Reconciler {
	return &Reconciler{store: store, rules: rules, log: log}
}

// SyncRecord 处理一条外部记录。
// 过滤判定为可上架的记录会先进 seen 集合再做任何写操作：
// 即便后续写失败，清理阶段也不会把这辆车误下架。
func (r *Reconciler) SyncRecord(ctx context.Context, rec *feed.Record, mode Mode, seen *ValidSet) (Outcome, error) {
	if r == nil || r.store == nil {
		return OutcomeSkipped, fmt.Errorf("reconciler not initialized")
	}
	if rec == nil {
		return OutcomeSkipped, fmt.Errorf("record is nil")
	}

	key := rec.NaturalKey()
	decision := r.rules.Evaluate(rec)
	if decision.Admit {
		seen.Add(key)
	}

	if key == "" {
		// 没有自然键就没法对账，本地也不可能有对应记录
		return OutcomeSkipped, nil
	}

	existing, err := r.store.FindByExternalID(ctx, key)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("find vehicle %s: %w", key, err)
	}

	if !decision.Admit {
		return r.withdraw(ctx, existing, decision)
	}

	return r.upsert(ctx, rec, existing, mode, key)
}

// withdraw 处理判定不可上架的记录：本地没有则不动，有则下架并记录原因。
func (r *Reconciler) withdraw(ctx context.Context, existing *catalog.Vehicle, decision Decision) (Outcome, error) {
	if existing == nil {
		return OutcomeSkipped, nil
	}

	if existing.Status == catalog.StatusArchived {
		// 已下架：只在原因归类变化时补写审计字段
		if existing.Extra.FilterReason == string(decision.Reason) {
			return OutcomeSkipped, nil
		}
		existing.Extra.FilterReason = string(decision.Reason)
		if err := r.store.Save(ctx, existing); err != nil {
			return OutcomeSkipped, fmt.Errorf("update filter reason %s: %w", existing.ExternalID, err)
		}
		return OutcomeSkipped, nil
	}

	now := time.Now()
	if err := catalog.ApplyTransition(existing, catalog.StatusArchived, now); err != nil {
		return OutcomeSkipped, err
	}
	// 其余字段保持原样，留全历史便于审计排查
	existing.Extra.FilterReason = string(decision.Reason)

	if err := r.store.Save(ctx, existing); err != nil {
		return OutcomeSkipped, fmt.Errorf("archive vehicle %s: %w", existing.ExternalID, err)
	}
	if r.log != nil {
		r.log.WithFields(map[string]interface{}{
			"external_id": existing.ExternalID,
			"reason":      string(decision.Reason),
			"detail":      decision.Detail,
		}).Info("vehicle archived by filter")
	}
	return OutcomeArchived, nil
}

// upsert 处理判定可上架的记录：新建 / 重新上架 / 更新 / 免写刷新。
func (r *Reconciler) upsert(ctx context.Context, rec *feed.Record, existing *catalog.Vehicle, mode Mode, key string) (Outcome, error) {
	fp := Fingerprint(rec)
	now := time.Now()

	if existing != nil && mode == ModeIncremental &&
		existing.Status == catalog.StatusPublished && existing.VersionFingerprint == fp {
		if err := r.store.TouchLastSynced(ctx, existing.ID, now); err != nil {
			return OutcomeUnchanged, fmt.Errorf("touch vehicle %s: %w", key, err)
		}
		return OutcomeUnchanged, nil
	}

	isNew := existing == nil
	v := existing
	if isNew {
		v = &catalog.Vehicle{
			ID:         uuid.NewString(),
			ExternalID: key,
			Status:     catalog.StatusDraft,
		}
	}

	if v.Status != catalog.StatusPublished {
		if err := catalog.ApplyTransition(v, catalog.StatusPublished, now); err != nil {
			return OutcomeSkipped, err
		}
	}

	applyRecord(v, rec, fp, now)

	if isNew {
		if err := r.store.Create(ctx, v); err != nil {
			return OutcomeSkipped, fmt.Errorf("create vehicle %s: %w", key, err)
		}
	} else {
		if err := r.store.Save(ctx, v); err != nil {
			return OutcomeSkipped, fmt.Errorf("save vehicle %s: %w", key, err)
		}
	}

	if err := r.replaceTaxonomies(ctx, v.ID, rec); err != nil {
		return OutcomeSkipped, fmt.Errorf("taxonomy for %s: %w", key, err)
	}

	if err := r.reconcileImages(ctx, v.ID, rec, isNew); err != nil {
		return OutcomeSkipped, fmt.Errorf("images for %s: %w", key, err)
	}

	if isNew {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

// applyRecord 把外部记录的展示字段写到车辆模型上。
func applyRecord(v *catalog.Vehicle, rec *feed.Record, fingerprint string, now time.Time) {
	v.Title = rec.Title()
	v.Description = rec.Description
	v.Year = rec.Year
	v.Odometer = rec.Odometer
	v.Plate = rec.Plate

	if rec.Prices.List > 0 {
		p := rec.Prices.List
		v.Price = &p
		v.PriceCurrency = rec.Prices.Currency
	}
	if rec.Prices.Alt > 0 {
		p := rec.Prices.Alt
		v.SecondaryPrice = &p
		v.SecondaryCurrency = rec.Prices.AltCurrency
	}

	stock := make([]catalog.StockEntry, 0, len(rec.Offers))
	for _, o := range rec.Offers {
		stock = append(stock, catalog.StockEntry{
			StockStatus: o.StockStatus,
			Status:      o.Status,
			Branch:      o.Branch,
			Location:    o.Location,
		})
	}
	v.Extra.Stock = stock
	v.Extra.Colors = rec.Colors
	v.Extra.RawPrices = rec.Prices.Raw

	v.VersionFingerprint = fingerprint
	v.ExternalUpdatedAt = rec.UpdatedAt
	t := now
	v.LastSyncedAt = &t
}

func (r *Reconciler) replaceTaxonomies(ctx context.Context, vehicleID string, rec *feed.Record) error {
	pairs := []struct {
		category string
		name     string
	}{
		{catalog.CategoryBrand, rec.Make},
		{catalog.CategoryModel, rec.Model},
		{catalog.CategoryFuel, rec.Fuel},
		{catalog.CategoryTransmission, rec.Transmission},
		{catalog.CategorySegment, rec.Segment},
		{catalog.CategoryCondition, rec.Condition},
	}
	for _, p := range pairs {
		if err := r.store.ReplaceTaxonomy(ctx, vehicleID, p.category, p.name); err != nil {
			return err
		}
	}
	return nil
}

// reconcileImages 对账图片集合：
// 新车直接全量入队；老车算差集，feed 里消失的图删记录，新增的图入队。
// 已经下载过的地址（已有 VehicleImage 行）不会再进队列。
func (r *Reconciler) reconcileImages(ctx context.Context, vehicleID string, rec *feed.Record, isNew bool) error {
	newURLs := rec.ImageURLs()

	if isNew {
		return r.store.EnqueuePendingImages(ctx, vehicleID, newURLs)
	}

	existingURLs, err := r.store.ImageURLs(ctx, vehicleID)
	if err != nil {
		return err
	}

	obsolete := diffURLs(existingURLs, newURLs)
	if len(obsolete) > 0 {
		if err := r.store.DeleteImagesByURLs(ctx, vehicleID, obsolete); err != nil {
			return err
		}
	}

	fresh := diffURLs(newURLs, existingURLs)
	if len(fresh) > 0 {
		return r.store.EnqueuePendingImages(ctx, vehicleID, fresh)
	}
	return nil
}

// diffURLs 返回 a - b。
func diffURLs(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, u := range b {
		inB[u] = struct{}{}
	}
	var out []string
	for _, u := range a {
		if _, ok := inB[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
