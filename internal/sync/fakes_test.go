package sync

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/DriveStockSync/DriveStockSync/internal/feed"
)

var errDeadlock = errors.New("deadlock found when trying to get lock")

func admissibleRecordWithKey(plate string) *feed.Record {
	rec := admissibleRecord()
	rec.Plate = plate
	return rec
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger("logrus", "error", "text", "stdout", "")
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	return log
}

// fakeStore 内存存储替身，按 Store 的约定实现（未命中返回 (nil, nil)）。
type fakeStore struct {
	vehicles map[string]*catalog.Vehicle // 按外部自然键
	images   map[string][]string         // 已落库图片地址，按车辆 ID
	pending  map[string][]string         // 待下载队列，按车辆 ID
	taxonomy map[string]map[string]string
	touched  map[string]int
	runs     []*catalog.SyncRun

	findErr error
	saveErr error
	// saveFailures 先失败 N 次再成功，用于重试路径
	saveFailures int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vehicles: make(map[string]*catalog.Vehicle),
		images:   make(map[string][]string),
		pending:  make(map[string][]string),
		taxonomy: make(map[string]map[string]string),
		touched:  make(map[string]int),
	}
}

func (f *fakeStore) FindByExternalID(ctx context.Context, externalID string) (*catalog.Vehicle, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	v, ok := f.vehicles[externalID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (f *fakeStore) takeSaveErr() error {
	if f.saveFailures > 0 {
		f.saveFailures--
		return errDeadlock
	}
	return f.saveErr
}

func (f *fakeStore) Create(ctx context.Context, v *catalog.Vehicle) error {
	if err := f.takeSaveErr(); err != nil {
		return err
	}
	cp := *v
	f.vehicles[v.ExternalID] = &cp
	return nil
}

func (f *fakeStore) Save(ctx context.Context, v *catalog.Vehicle) error {
	if err := f.takeSaveErr(); err != nil {
		return err
	}
	cp := *v
	f.vehicles[v.ExternalID] = &cp
	return nil
}

func (f *fakeStore) TouchLastSynced(ctx context.Context, vehicleID string, at time.Time) error {
	f.touched[vehicleID]++
	for _, v := range f.vehicles {
		if v.ID == vehicleID {
			t := at
			v.LastSyncedAt = &t
		}
	}
	return nil
}

func (f *fakeStore) ReplaceTaxonomy(ctx context.Context, vehicleID, category, name string) error {
	m, ok := f.taxonomy[vehicleID]
	if !ok {
		m = make(map[string]string)
		f.taxonomy[vehicleID] = m
	}
	if name == "" {
		delete(m, category)
		return nil
	}
	m[category] = name
	return nil
}

func (f *fakeStore) ImageURLs(ctx context.Context, vehicleID string) ([]string, error) {
	return append([]string(nil), f.images[vehicleID]...), nil
}

func (f *fakeStore) DeleteImagesByURLs(ctx context.Context, vehicleID string, urls []string) error {
	drop := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		drop[u] = struct{}{}
	}
	var kept []string
	for _, u := range f.images[vehicleID] {
		if _, ok := drop[u]; !ok {
			kept = append(kept, u)
		}
	}
	f.images[vehicleID] = kept
	return nil
}

func (f *fakeStore) EnqueuePendingImages(ctx context.Context, vehicleID string, urls []string) error {
	have := make(map[string]struct{})
	for _, u := range f.pending[vehicleID] {
		have[u] = struct{}{}
	}
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := have[u]; ok {
			continue
		}
		have[u] = struct{}{}
		f.pending[vehicleID] = append(f.pending[vehicleID], u)
	}
	return nil
}

func (f *fakeStore) ListPublishedStale(ctx context.Context, excludeKeys []string, olderThan time.Time) ([]catalog.Vehicle, error) {
	exclude := make(map[string]struct{}, len(excludeKeys))
	for _, k := range excludeKeys {
		exclude[k] = struct{}{}
	}
	var out []catalog.Vehicle
	for key, v := range f.vehicles {
		if v.Status != catalog.StatusPublished {
			continue
		}
		if _, ok := exclude[key]; ok {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (f *fakeStore) CreateSyncRun(ctx context.Context, run *catalog.SyncRun) error {
	cp := *run
	f.runs = append(f.runs, &cp)
	return nil
}

func (f *fakeStore) FinalizeSyncRun(ctx context.Context, run *catalog.SyncRun) error {
	for i, r := range f.runs {
		if r.ID == run.ID {
			cp := *run
			f.runs[i] = &cp
			return nil
		}
	}
	cp := *run
	f.runs = append(f.runs, &cp)
	return nil
}

// fakeFeed 外部 feed 替身。
type fakeFeed struct {
	pages    [][]feed.Record
	pageErrs map[int]error

	lookup     map[string]*feed.Record
	lookupErrs map[string]error

	fetchCalls  int
	lookupCalls int
}

func newFakeFeed(pages ...[]feed.Record) *fakeFeed {
	return &fakeFeed{
		pages:      pages,
		pageErrs:   make(map[int]error),
		lookup:     make(map[string]*feed.Record),
		lookupErrs: make(map[string]error),
	}
}

func (f *fakeFeed) FetchPage(ctx context.Context, page, pageSize int) (*feed.Page, error) {
	f.fetchCalls++
	if err := f.pageErrs[page]; err != nil {
		return nil, err
	}
	if page < 1 || page > len(f.pages) {
		return &feed.Page{CurrentPage: page, TotalPages: len(f.pages)}, nil
	}
	return &feed.Page{
		Records:     f.pages[page-1],
		CurrentPage: page,
		TotalPages:  len(f.pages),
	}, nil
}

func (f *fakeFeed) FindByKey(ctx context.Context, key string) (*feed.Record, error) {
	f.lookupCalls++
	if err := f.lookupErrs[key]; err != nil {
		return nil, err
	}
	rec, ok := f.lookup[key]
	if !ok {
		return nil, feed.ErrNotFound
	}
	return rec, nil
}
