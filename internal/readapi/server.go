package readapi

import (
	"context"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/catalog"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/common/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// CatalogReader 读 API 需要的查询面，由 catalog.Repo 实现。
type CatalogReader interface {
	ListPublished(ctx context.Context, f catalog.PublishedFilter) ([]catalog.Vehicle, int64, error)
	FindByID(ctx context.Context, id string) (*catalog.Vehicle, error)
	ListImages(ctx context.Context, vehicleID string) ([]catalog.VehicleImage, error)
	ListSyncRuns(ctx context.Context, limit int) ([]catalog.SyncRun, error)
}

// Server 只读目录接口。写路径全部在同步侧，这里不提供任何修改入口。
type Server struct {
	reader  CatalogReader
	authCfg config.AuthConfig
	syncCfg config.SyncConfig
	log     logger.Logger
}

func NewServer(reader CatalogReader, authCfg config.AuthConfig, syncCfg config.SyncConfig, log logger.Logger) *Server {
	return &Server{reader: reader, authCfg: authCfg, syncCfg: syncCfg, log: log}
}

// App 组装 fiber 应用。
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "catalog-api",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(RateLimit(60, time.Minute))
	app.Use(s.accessLog)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/vehicles", s.listVehicles)
	api.Get("/vehicles/:id", s.getVehicle)

	admin := app.Group("/admin", RequireAdmin(s.authCfg))
	admin.Get("/sync-runs", s.listSyncRuns)

	return app
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if s.log != nil {
		s.log.WithFields(map[string]interface{}{
			"method":  c.Method(),
			"path":    c.Path(),
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start).String(),
		}).Debug("http request")
	}
	return err
}
