package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/DriveStockSync/DriveStockSync/internal/common/middleware"
	"github.com/DriveStockSync/DriveStockSync/internal/feed"
)

// CleanupStats 清理阶段的计数汇总。
type CleanupStats struct {
	Checked  int
	Rescued  int
	Archived int
	Failures int
	Skipped  bool
}

// CleanupVerifier 找出本轮没出现在外部数据里的在架车辆，逐辆回源点查确认后再下架。
// 点查出错按缺席处理（单条失败也下架），但接连出错会触发熔断，剩余候选整体留到下一轮。
type CleanupVerifier struct {
	store   Store
	feed    feed.Client
	rules   FilterRules
	breaker *middleware.CircuitBreaker
	grace   time.Duration
	log     logger.Logger
}

func NewCleanupVerifier(store Store, fc feed.Client, rules FilterRules, grace time.Duration, maxErrors int, log logger.Logger) *CleanupVerifier {
	if grace <= 0 {
		grace = 48 * time.Hour
	}
	if maxErrors <= 0 {
		maxErrors = 5
	}
	return &CleanupVerifier{
		store:   store,
		feed:    fc,
		rules:   rules,
		breaker: middleware.NewCircuitBreaker("cleanup-lookup", maxErrors, time.Minute),
		grace:   grace,
		log:     log,
	}
}

// Run 执行清理。seen 为空集时整轮跳过：
// 空集意味着抓取阶段没拿到任何数据，这时按"缺席"下架会把全库清空。
func (c *CleanupVerifier) Run(ctx context.Context, seen *ValidSet) (CleanupStats, error) {
	var stats CleanupStats
	if c == nil || c.store == nil {
		return stats, fmt.Errorf("cleanup verifier not initialized")
	}
	if seen == nil || seen.Len() == 0 {
		stats.Skipped = true
		if c.log != nil {
			c.log.Warn("cleanup skipped: no records were admitted this run")
		}
		return stats, nil
	}

	olderThan := time.Now().Add(-c.grace)
	candidates, err := c.store.ListPublishedStale(ctx, seen.Keys(), olderThan)
	if err != nil {
		return stats, fmt.Errorf("list stale vehicles: %w", err)
	}

	for i := range candidates {
		v := &candidates[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Checked++

		var rec *feed.Record
		lookupErr := c.breaker.Call(ctx, func() error {
			var e error
			rec, e = c.feed.FindByKey(ctx, v.ExternalID)
			if errors.Is(e, feed.ErrNotFound) {
				// 明确的缺席不算故障，不冲熔断计数
				rec = nil
				return nil
			}
			return e
		})

		if errors.Is(lookupErr, middleware.ErrCircuitOpen) {
			if c.log != nil {
				c.log.WithFields(map[string]interface{}{
					"remaining": len(candidates) - i,
				}).Warn("cleanup halted: lookup circuit open")
			}
			break
		}

		switch {
		case lookupErr != nil:
			// 点查失败也下架：候选早已进入待清理名单，保守处理
			if c.log != nil {
				c.log.WithFields(map[string]interface{}{
					"external_id": v.ExternalID,
					"error":       lookupErr.Error(),
				}).Warn("cleanup lookup failed")
			}
			if err := c.archive(ctx, v, ReasonRecheckFailed); err != nil {
				stats.Failures++
			} else {
				stats.Archived++
			}

		case rec == nil:
			// 源头确认不存在
			if err := c.archive(ctx, v, ReasonAbsentFromFeed); err != nil {
				stats.Failures++
			} else {
				stats.Archived++
			}

		default:
			decision := c.rules.Evaluate(rec)
			if decision.Admit {
				// 还在源头且可上架：补进 seen，打上确认标记
				seen.Add(rec.NaturalKey())
				v.Extra.CleanupVerification = "confirmed_by_lookup"
				if err := c.store.Save(ctx, v); err != nil {
					stats.Failures++
					break
				}
				if err := c.store.TouchLastSynced(ctx, v.ID, time.Now()); err != nil {
					stats.Failures++
					break
				}
				stats.Rescued++
			} else {
				if err := c.archive(ctx, v, ReasonFilteredOnRecheck); err != nil {
					stats.Failures++
				} else {
					stats.Archived++
				}
			}
		}
	}

	return stats, nil
}

func (c *CleanupVerifier) archive(ctx context.Context, v *catalog.Vehicle, reason Reason) error {
	if err := catalog.ApplyTransition(v, catalog.StatusArchived, time.Now()); err != nil {
		return err
	}
	v.Extra.FilterReason = string(reason)
	if err := c.store.Save(ctx, v); err != nil {
		if c.log != nil {
			c.log.WithFields(map[string]interface{}{
				"external_id": v.ExternalID,
				"error":       err.Error(),
			}).Error("cleanup archive failed")
		}
		return err
	}
	if c.log != nil {
		c.log.WithFields(map[string]interface{}{
			"external_id": v.ExternalID,
			"reason":      string(reason),
		}).Info("vehicle archived by cleanup")
	}
	return nil
}
