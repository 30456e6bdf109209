package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/feed"
)

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		BlockedLocations: []string{"taller", "deposito"},
		MinPrice:         1000,
		BlockedStatuses:  []string{"RESERVED"},
		RequireImages:    true,
		BatchSize:        2,
		MaxAttempts:      2,
	}
}

func newTestOrchestrator(t *testing.T, store *fakeStore, fc *fakeFeed) *Orchestrator {
	t.Helper()
	cfg := testSyncConfig()
	rec := NewReconciler(store, testRules(), nil)
	cleanup := NewCleanupVerifier(store, fc, testRules(), 48*time.Hour, 5, nil)
	return NewOrchestrator(fc, store, rec, cleanup, nil, cfg, 10, testLogger(t))
}

func TestRunProcessesAllPages(t *testing.T) {
	fc := newFakeFeed(
		[]feed.Record{*admissibleRecordWithKey("AAA111"), *admissibleRecordWithKey("BBB222")},
		[]feed.Record{*admissibleRecordWithKey("CCC333")},
	)
	store := newFakeStore()
	orch := newTestOrchestrator(t, store, fc)

	summary, err := orch.Run(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Fetched != 3 || summary.Created != 3 || summary.Errors != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(store.vehicles) != 3 {
		t.Fatalf("expected 3 vehicles, got %d", len(store.vehicles))
	}

	if len(store.runs) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(store.runs))
	}
	run := store.runs[0]
	if run.Status != "completed" || run.Fetched != 3 || run.Created != 3 {
		t.Fatalf("unexpected audit row: %+v", run)
	}
	if run.FinishedAt == nil {
		t.Fatal("audit row not finalized")
	}
}

// 首页抓取失败：按零记录继续，清理因有效集合为空整体跳过，存量不受影响。
func TestRunFirstPageFailureKeepsCatalog(t *testing.T) {
	fc := newFakeFeed([]feed.Record{*admissibleRecordWithKey("AAA111")})
	fc.pageErrs[1] = errors.New("feed down")

	store := newFakeStore()
	store.vehicles["OLD001"] = publishedVehicle("OLD001")
	orch := newTestOrchestrator(t, store, fc)

	summary, err := orch.Run(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Fetched != 0 {
		t.Fatalf("expected zero fetched, got %d", summary.Fetched)
	}
	if !summary.Cleanup.Skipped {
		t.Fatal("cleanup must be skipped after a systemic fetch failure")
	}
	if store.vehicles["OLD001"].Status != catalog.StatusPublished {
		t.Fatal("existing vehicle must not be archived")
	}
}

// 中途某页失败只截断翻页，已拿到的部分照常处理。
func TestRunPartialPaginationContinues(t *testing.T) {
	fc := newFakeFeed(
		[]feed.Record{*admissibleRecordWithKey("AAA111")},
		[]feed.Record{*admissibleRecordWithKey("BBB222")},
		[]feed.Record{*admissibleRecordWithKey("CCC333")},
	)
	fc.pageErrs[2] = errors.New("timeout")

	store := newFakeStore()
	orch := newTestOrchestrator(t, store, fc)

	summary, err := orch.Run(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Fetched != 1 || summary.Created != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, ok := store.vehicles["AAA111"]; !ok {
		t.Fatal("first page records must still be processed")
	}
}

// 瞬时写失败在重试后成功，不计入错误。
func TestRunRetriesTransientErrors(t *testing.T) {
	fc := newFakeFeed([]feed.Record{*admissibleRecordWithKey("AAA111")})
	store := newFakeStore()
	store.saveFailures = 1
	orch := newTestOrchestrator(t, store, fc)

	summary, err := orch.Run(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Created != 1 || summary.Errors != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

// 重试耗尽后计为硬错误，运行继续；可上架的 key 仍然保留在有效集合里。
func TestRunCountsHardErrors(t *testing.T) {
	fc := newFakeFeed([]feed.Record{
		*admissibleRecordWithKey("AAA111"),
		*admissibleRecordWithKey("BBB222"),
	})
	store := newFakeStore()
	store.vehicles["AAA111"] = publishedVehicle("AAA111")
	store.saveFailures = 100 // 所有写都失败
	orch := newTestOrchestrator(t, store, fc)

	summary, err := orch.Run(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Errors != 2 {
		t.Fatalf("expected 2 hard errors, got %+v", summary)
	}
	// 写失败不触发清理下架：key 已在有效集合
	if store.vehicles["AAA111"].Status != catalog.StatusPublished {
		t.Fatal("vehicle must survive cleanup despite write failures")
	}
}

func TestRunRecordLimit(t *testing.T) {
	fc := newFakeFeed(
		[]feed.Record{*admissibleRecordWithKey("AAA111"), *admissibleRecordWithKey("BBB222")},
		[]feed.Record{*admissibleRecordWithKey("CCC333")},
	)
	store := newFakeStore()
	orch := newTestOrchestrator(t, store, fc)
	orch.cfg.RecordLimit = 2

	summary, err := orch.Run(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Fetched != 2 {
		t.Fatalf("expected fetch capped at 2, got %d", summary.Fetched)
	}
	if fc.fetchCalls != 1 {
		t.Fatalf("pagination should stop at the cap, got %d calls", fc.fetchCalls)
	}
}

// 被过滤的记录计入 filtered；已在架车辆被过滤则计入 archived。
func TestRunFilteredCounters(t *testing.T) {
	cheap := admissibleRecordWithKey("CHEAP1")
	cheap.Prices.List = 100

	fc := newFakeFeed([]feed.Record{*cheap, *admissibleRecordWithKey("AAA111")})
	store := newFakeStore()
	orch := newTestOrchestrator(t, store, fc)

	summary, err := orch.Run(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if summary.Filtered != 1 || summary.Created != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
