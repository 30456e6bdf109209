package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/common/db"
	"github.com/DriveStockSync/DriveStockSync/internal/common/discovery"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/DriveStockSync/DriveStockSync/internal/common/tracing"
	"github.com/DriveStockSync/DriveStockSync/internal/readapi"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
)

func main() {
	configPath := flag.String("config", "configs/catalog-api.json", "配置文件路径")
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

	repo := catalog.NewRepo(gormDB)
	app := readapi.NewServer(repo, cfg.Auth, cfg.Sync, log).App()

	// 注册到 Consul（HTTP check 打 /healthz）
	if consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port); err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
	} else {
		serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
		registry := discovery.NewHTTPServiceRegistry(
			consulClient, serviceID, cfg.Server.Name,
			cfg.Server.Host, cfg.Server.HTTPPort, "/healthz",
			[]string{"http", "catalog"},
		)
		if err := registry.Register(); err != nil {
			log.Warnf("failed to register service to Consul: %v", err)
		} else {
			log.Infof("Service registered to Consul: %s", serviceID)
			defer func() {
				if err := registry.Deregister(); err != nil {
					log.Warnf("failed to deregister service from Consul: %v", err)
				}
			}()
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("%s starting on %s", cfg.Server.Name, addr)
		serveErr <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received signal %v, shutting down...", sig)
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("http serve failed: %v", err)
		}
		return
	}

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warnf("http shutdown error: %v", err)
	} else {
		log.Info("http server stopped gracefully")
	}
}
