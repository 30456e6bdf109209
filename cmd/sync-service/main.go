package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/common/db"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/DriveStockSync/DriveStockSync/internal/common/server"
	"github.com/DriveStockSync/DriveStockSync/internal/common/tracing"
	"github.com/DriveStockSync/DriveStockSync/internal/feed"
	"github.com/DriveStockSync/DriveStockSync/internal/images"
	"github.com/DriveStockSync/DriveStockSync/internal/sync"
	"github.com/opentracing/opentracing-go"
)

func main() {
	configPath := flag.String("config", "configs/sync-service.json", "配置文件路径")
	mode := flag.String("mode", "auto", "同步模式: auto / full / incremental")
	once := flag.Bool("once", false, "只跑一轮然后退出")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(err)
	}

	tracer, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		opentracing.SetGlobalTracer(tracer)
		defer closer.Close()
	}

	gormDB, err := db.NewMySQL(
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.User, cfg.Database.Password, cfg.Database.Database,
		cfg.Database.MaxIdle, cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := gormDB.AutoMigrate(
		&catalog.Vehicle{},
		&catalog.VehicleImage{},
		&catalog.PendingImage{},
		&catalog.TaxonomyTerm{},
		&catalog.VehicleTaxonomyAssignment{},
		&catalog.SyncRun{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	repo := catalog.NewRepo(gormDB)
	feedClient, err := feed.NewHTTPClient(cfg.Feed)
	if err != nil {
		log.Fatalf("failed to build feed client: %v", err)
	}

	rules := sync.NewFilterRules(cfg.Sync)
	reconciler := sync.NewReconciler(repo, rules, log)
	cleanup := sync.NewCleanupVerifier(
		repo, feedClient, rules,
		time.Duration(cfg.Sync.CleanupGraceHours)*time.Hour,
		cfg.Sync.LookupMaxErrors, log,
	)
	pipeline := images.NewPipeline(
		repo,
		images.NewHTTPDownloader(cfg.Images, cfg.Feed.UserAgent),
		images.NewDiskStore(cfg.Images.StorageDir),
		cfg.Images, log,
	)
	orch := sync.NewOrchestrator(feedClient, repo, reconciler, cleanup, pipeline, cfg.Sync, cfg.Feed.PageSize, log)

	if *once {
		if _, err := orch.Run(context.Background(), resolveMode(*mode, cfg.Sync)); err != nil {
			log.Errorf("sync run failed: %v", err)
			os.Exit(1)
		}
		return
	}

	// 常驻模式：后台定时跑同步，前台起 gRPC 服务（health，供 Consul 探活）
	go runScheduler(orch, cfg.Sync, *mode, log)

	if err := server.RunGRPCServer(cfg, log, nil); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// runScheduler 周期触发同步。同一时刻只有一轮在跑（顺序 ticker 循环天然互斥）。
func runScheduler(orch *sync.Orchestrator, cfg config.SyncConfig, mode string, log logger.Logger) {
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 启动先跑一轮，不等第一个 tick
	for {
		if _, err := orch.Run(context.Background(), resolveMode(mode, cfg)); err != nil {
			log.Errorf("scheduled sync run failed: %v", err)
		}
		<-ticker.C
	}
}

// resolveMode auto 模式下在每天固定的 UTC 小时跑全量，其余时段跑增量。
func resolveMode(mode string, cfg config.SyncConfig) sync.Mode {
	switch mode {
	case "full":
		return sync.ModeFull
	case "incremental":
		return sync.ModeIncremental
	default:
		if time.Now().UTC().Hour() == cfg.FullSyncHourUTC {
			return sync.ModeFull
		}
		return sync.ModeIncremental
	}
}
