package sync

import (
	"context"
	"testing"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
)

func newTestReconciler(store *fakeStore) *Reconciler {
	return NewReconciler(store, testRules(), nil)
}

// 新记录通过过滤：建车、上架、写分类、全部图片入队。
func TestSyncRecordCreatesVehicle(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)
	seen := NewValidSet()

	rec := admissibleRecord()
	outcome, err := r.SyncRecord(context.Background(), rec, ModeFull, seen)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s", outcome)
	}
	if !seen.Contains("ABC123") {
		t.Fatal("natural key should be tracked")
	}

	v := store.vehicles["ABC123"]
	if v == nil {
		t.Fatal("vehicle not persisted")
	}
	if v.Status != catalog.StatusPublished {
		t.Fatalf("expected published, got %s", v.Status)
	}
	if v.Title != "Toyota Corolla" {
		t.Fatalf("unexpected title %q", v.Title)
	}
	if v.Price == nil || *v.Price != 5000 {
		t.Fatalf("unexpected price %v", v.Price)
	}
	if v.VersionFingerprint == "" {
		t.Fatal("fingerprint not recorded")
	}
	if len(store.pending[v.ID]) != 2 {
		t.Fatalf("expected 2 pending images, got %d", len(store.pending[v.ID]))
	}
	if store.taxonomy[v.ID][catalog.CategoryBrand] != "Toyota" {
		t.Fatalf("brand taxonomy missing: %v", store.taxonomy[v.ID])
	}
}

// 指纹未变的增量同步只刷时间戳。
func TestSyncRecordUnchangedIncremental(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)
	rec := admissibleRecord()

	if _, err := r.SyncRecord(context.Background(), rec, ModeFull, NewValidSet()); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	v := store.vehicles["ABC123"]
	fpBefore := v.VersionFingerprint

	seen := NewValidSet()
	outcome, err := r.SyncRecord(context.Background(), rec, ModeIncremental, seen)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Fatalf("expected unchanged, got %s", outcome)
	}
	if !seen.Contains("ABC123") {
		t.Fatal("unchanged outcome must still track the key")
	}
	if store.touched[v.ID] != 1 {
		t.Fatalf("expected single timestamp refresh, got %d", store.touched[v.ID])
	}
	if store.vehicles["ABC123"].VersionFingerprint != fpBefore {
		t.Fatal("fingerprint must not change on unchanged record")
	}
}

// 全量模式不走免写路径，即便指纹相同也重写一遍。
func TestSyncRecordFullModeRewrites(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)
	rec := admissibleRecord()

	if _, err := r.SyncRecord(context.Background(), rec, ModeFull, NewValidSet()); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	outcome, err := r.SyncRecord(context.Background(), rec, ModeFull, NewValidSet())
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("expected updated, got %s", outcome)
	}
}

// 在架车辆的 offer 变成被屏蔽状态：下架、记原因，图片保留。
func TestSyncRecordArchivesOnBlockedStatus(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)

	if _, err := r.SyncRecord(context.Background(), admissibleRecord(), ModeFull, NewValidSet()); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	v := store.vehicles["ABC123"]
	store.images[v.ID] = []string{"http://img/1.jpg", "http://img/2.jpg"}

	rec := admissibleRecord()
	rec.Offers[0].Status = "RESERVED"

	seen := NewValidSet()
	outcome, err := r.SyncRecord(context.Background(), rec, ModeIncremental, seen)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome != OutcomeArchived {
		t.Fatalf("expected archived, got %s", outcome)
	}
	if seen.Contains("ABC123") {
		t.Fatal("inadmissible record must not be tracked")
	}

	v = store.vehicles["ABC123"]
	if v.Status != catalog.StatusArchived {
		t.Fatalf("expected archived status, got %s", v.Status)
	}
	if v.Extra.FilterReason != string(ReasonBlockedStatus) {
		t.Fatalf("expected blocked_status reason, got %q", v.Extra.FilterReason)
	}
	if v.Extra.ArchivedAt == nil {
		t.Fatal("archived_at not recorded")
	}
	if len(store.images[v.ID]) != 2 {
		t.Fatal("archiving must not delete stored images")
	}
}

// 下架原因消失后重新同步：回到 published，过滤原因清空。
func TestSyncRecordReactivates(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)

	if _, err := r.SyncRecord(context.Background(), admissibleRecord(), ModeFull, NewValidSet()); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	blocked := admissibleRecord()
	blocked.Offers[0].Location = "Taller Central"
	if outcome, err := r.SyncRecord(context.Background(), blocked, ModeFull, NewValidSet()); err != nil || outcome != OutcomeArchived {
		t.Fatalf("expected archive, got %s err=%v", outcome, err)
	}

	outcome, err := r.SyncRecord(context.Background(), admissibleRecord(), ModeFull, NewValidSet())
	if err != nil {
		t.Fatalf("reactivation sync failed: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("expected updated on reactivation, got %s", outcome)
	}

	v := store.vehicles["ABC123"]
	if v.Status != catalog.StatusPublished {
		t.Fatalf("expected published, got %s", v.Status)
	}
	if v.Extra.FilterReason != "" || v.Extra.ArchivedAt != nil {
		t.Fatalf("audit fields not cleared: %+v", v.Extra)
	}
}

// 本地不存在且过滤不通过的记录是纯 no-op。
func TestSyncRecordAbsentInadmissible(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)

	rec := admissibleRecord()
	rec.Prices.List = 0
	outcome, err := r.SyncRecord(context.Background(), rec, ModeFull, NewValidSet())
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}
	if len(store.vehicles) != 0 {
		t.Fatal("no vehicle should be created")
	}
}

// 判定可上架后即使写入失败，key 也已经进了有效集合。
func TestSyncRecordTracksKeyBeforeWrite(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errDeadlock
	r := newTestReconciler(store)

	seen := NewValidSet()
	_, err := r.SyncRecord(context.Background(), admissibleRecord(), ModeFull, seen)
	if err == nil {
		t.Fatal("expected write error")
	}
	if !seen.Contains("ABC123") {
		t.Fatal("key must be tracked even when the write fails")
	}
}

// 更新时图片做差集：消失的删记录，新增的入队，存量不重复入队。
func TestSyncRecordImageDiff(t *testing.T) {
	store := newFakeStore()
	r := newTestReconciler(store)

	if _, err := r.SyncRecord(context.Background(), admissibleRecord(), ModeFull, NewValidSet()); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	v := store.vehicles["ABC123"]
	// 模拟两张图已下载完成，队列清空
	store.images[v.ID] = []string{"http://img/1.jpg", "http://img/2.jpg"}
	store.pending[v.ID] = nil

	rec := admissibleRecord()
	rec.Images = []string{"http://img/2.jpg", "http://img/3.jpg"}
	if _, err := r.SyncRecord(context.Background(), rec, ModeFull, NewValidSet()); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	if got := store.images[v.ID]; len(got) != 1 || got[0] != "http://img/2.jpg" {
		t.Fatalf("expected only img/2 to remain, got %v", got)
	}
	if got := store.pending[v.ID]; len(got) != 1 || got[0] != "http://img/3.jpg" {
		t.Fatalf("expected only img/3 enqueued, got %v", got)
	}
}
