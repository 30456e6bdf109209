package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/DriveStockSync/DriveStockSync/internal/feed"
	"github.com/DriveStockSync/DriveStockSync/internal/images"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
)

// ImageDrainer 图片队列的消费入口，由 images.Pipeline 实现。
type ImageDrainer interface {
	Drain(ctx context.Context) (images.DrainStats, error)
}

// Summary 一次同步运行的汇总，对应 SyncRun 审计行。
type Summary struct {
	RunID     string
	Mode      Mode
	Fetched   int
	Created   int
	Updated   int
	Unchanged int
	Archived  int
	Filtered  int
	Errors    int
	Cleanup   CleanupStats
	Images    images.DrainStats
	Duration  time.Duration
}

// Orchestrator 串起抓取、对账、清理、图片四个阶段。
// 不做并发：记录按顺序处理，清理阶段依赖"本轮见过什么"的完整视图。
// 同一时刻只允许一轮运行，互斥由调用方保证。
type Orchestrator struct {
	feed       feed.Client
	store      Store
	reconciler *Reconciler
	cleanup    *CleanupVerifier
	images     ImageDrainer
	cfg        config.SyncConfig
	pageSize   int
	log        logger.Logger
}

func NewOrchestrator(fc feed.Client, store Store, rec *Reconciler, cleanup *CleanupVerifier, drainer ImageDrainer, cfg config.SyncConfig, pageSize int, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		feed:       fc,
		store:      store,
		reconciler: rec,
		cleanup:    cleanup,
		images:     drainer,
		cfg:        cfg,
		pageSize:   pageSize,
		log:        log,
	}
}

// Run 执行一轮同步。除了本地库不可用和上下文取消，错误都被吸收进计数器。
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (*Summary, error) {
	if o == nil || o.feed == nil || o.store == nil || o.reconciler == nil {
		return nil, fmt.Errorf("orchestrator not initialized")
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "sync.run")
	span.SetTag("sync.mode", string(mode))
	defer span.Finish()

	start := time.Now()
	summary := &Summary{RunID: uuid.NewString(), Mode: mode}

	run := &catalog.SyncRun{
		ID:        summary.RunID,
		Type:      string(mode),
		Status:    "running",
		StartedAt: start,
	}
	if err := o.store.CreateSyncRun(ctx, run); err != nil {
		// 审计行写不进去不影响同步本身
		o.log.WithFields(map[string]interface{}{"error": err.Error()}).Warn("sync run audit create failed")
	}

	records := o.fetchAll(ctx)
	summary.Fetched = len(records)
	span.SetTag("sync.fetched", len(records))

	seen := NewValidSet()
	if err := o.reconcileAll(ctx, records, mode, seen, summary); err != nil {
		o.finalize(ctx, run, summary, err)
		return summary, err
	}

	if o.cleanup != nil {
		cleanupSpan, cleanupCtx := opentracing.StartSpanFromContext(ctx, "sync.cleanup")
		stats, err := o.cleanup.Run(cleanupCtx, seen)
		cleanupSpan.Finish()
		if err != nil {
			if ctx.Err() != nil {
				o.finalize(ctx, run, summary, err)
				return summary, err
			}
			o.log.WithFields(map[string]interface{}{"error": err.Error()}).Error("cleanup phase failed")
			summary.Errors++
		}
		summary.Cleanup = stats
		summary.Archived += stats.Archived
	}

	if o.images != nil {
		imgSpan, imgCtx := opentracing.StartSpanFromContext(ctx, "sync.images")
		stats, err := o.images.Drain(imgCtx)
		imgSpan.Finish()
		if err != nil {
			o.log.WithFields(map[string]interface{}{"error": err.Error()}).Error("image drain failed")
			summary.Errors++
		}
		summary.Images = stats
	}

	summary.Duration = time.Since(start)
	o.finalize(ctx, run, summary, nil)

	o.log.WithFields(map[string]interface{}{
		"run_id":    summary.RunID,
		"mode":      string(mode),
		"fetched":   summary.Fetched,
		"created":   summary.Created,
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"archived":  summary.Archived,
		"filtered":  summary.Filtered,
		"errors":    summary.Errors,
		"duration":  summary.Duration.String(),
	}).Info("sync run finished")

	return summary, nil
}

// fetchAll 翻页抓取全量记录。
// 首页失败视为系统性故障，直接按零记录继续（清理阶段会因空集整体跳过）；
// 中途某页失败只截断翻页，已拿到的部分照常处理。
func (o *Orchestrator) fetchAll(ctx context.Context) []feed.Record {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sync.fetch")
	defer span.Finish()

	pageSize := o.pageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var records []feed.Record
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return records
		}

		p, err := o.feed.FetchPage(ctx, page, pageSize)
		if err != nil {
			if page == 1 {
				o.log.WithFields(map[string]interface{}{"error": err.Error()}).Error("first page fetch failed, continuing with zero records")
				return nil
			}
			o.log.WithFields(map[string]interface{}{
				"page":  page,
				"error": err.Error(),
			}).Warn("page fetch failed, keeping partial results")
			return records
		}

		if len(p.Records) == 0 {
			return records
		}
		records = append(records, p.Records...)

		if o.cfg.RecordLimit > 0 && len(records) >= o.cfg.RecordLimit {
			return records[:o.cfg.RecordLimit]
		}
		if p.TotalPages > 0 && page >= p.TotalPages {
			return records
		}

		pause(ctx, time.Duration(o.cfg.PagePauseMs)*time.Millisecond)
	}
}

// reconcileAll 按固定批次处理记录，批间暂停给数据库让路，
// 批间也是取消的协作点；批内单条记录带指数退避重试。
func (o *Orchestrator) reconcileAll(ctx context.Context, records []feed.Record, mode Mode, seen *ValidSet, summary *Summary) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sync.reconcile")
	defer span.Finish()

	batchSize := o.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	for offset := 0; offset < len(records); offset += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if offset > 0 {
			pause(ctx, time.Duration(o.cfg.BatchPauseMs)*time.Millisecond)
		}

		end := offset + batchSize
		if end > len(records) {
			end = len(records)
		}

		for i := offset; i < end; i++ {
			o.reconcileOne(ctx, &records[i], mode, seen, summary)
		}
	}
	return nil
}

func (o *Orchestrator) reconcileOne(ctx context.Context, rec *feed.Record, mode Mode, seen *ValidSet, summary *Summary) {
	maxAttempts := o.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// seen 在过滤判定后立即写入，重试失败也不会丢键
		outcome, err := o.reconciler.SyncRecord(ctx, rec, mode, seen)
		if err == nil {
			switch outcome {
			case OutcomeCreated:
				summary.Created++
			case OutcomeUpdated:
				summary.Updated++
			case OutcomeUnchanged:
				summary.Unchanged++
			case OutcomeArchived:
				summary.Archived++
			case OutcomeSkipped:
				summary.Filtered++
			}
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			pause(ctx, backoffDelay(attempt))
		}
	}

	summary.Errors++
	o.log.WithFields(map[string]interface{}{
		"natural_key": rec.NaturalKey(),
		"attempts":    maxAttempts,
		"error":       lastErr.Error(),
	}).Error("record sync failed after retries")
}

func (o *Orchestrator) finalize(ctx context.Context, run *catalog.SyncRun, summary *Summary, runErr error) {
	run.Status = "completed"
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
	}
	run.Fetched = summary.Fetched
	run.Created = summary.Created
	run.Updated = summary.Updated
	run.Unchanged = summary.Unchanged
	run.Archived = summary.Archived
	run.Filtered = summary.Filtered
	run.Errors = summary.Errors
	now := time.Now()
	run.FinishedAt = &now

	// 运行可能因取消而结束，审计收尾不跟着取消
	finalizeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finalizeCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := o.store.FinalizeSyncRun(finalizeCtx, run); err != nil {
		o.log.WithFields(map[string]interface{}{"error": err.Error()}).Warn("sync run audit finalize failed")
	}
}

// backoffDelay 500ms 起步的指数退避。
func backoffDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// pause 可被取消打断的休眠。
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
