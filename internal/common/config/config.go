package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	Feed     FeedConfig     `json:"feed"`
	Sync     SyncConfig     `json:"sync"`
	Images   ImagesConfig   `json:"images"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	GRPCPort int    `json:"grpc_port"` // gRPC端口（健康检查）
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Format  string `json:"format"`  // json, text
	Output  string `json:"output"`  // stdout, file
	Path    string `json:"path"`    // 日志文件路径
	Backend string `json:"backend"` // logrus, zap
}

// AuthConfig 管理接口鉴权配置（HS256 JWT）
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	Audience  string `json:"audience"`
}

// FeedConfig 外部车源 feed 配置
type FeedConfig struct {
	BaseURL        string `json:"base_url"`        // feed API 地址
	APIKey         string `json:"api_key"`         // 鉴权 key（为空则不带）
	PageSize       int    `json:"page_size"`       // 每页条数
	TimeoutSeconds int    `json:"timeout_seconds"` // 单次请求超时
	UserAgent      string `json:"user_agent"`
}

// SyncConfig 同步/对账配置。
// 过滤规则与批处理节奏都来自这里，部署时一般通过环境变量覆盖（见 env.go）。
type SyncConfig struct {
	BlockedLocations  []string `json:"blocked_locations"`   // 屏蔽的门店/地区子串（不区分大小写）
	MinPrice          float64  `json:"min_price"`           // 低于等于该标价的车辆不上架
	BlockedStatuses   []string `json:"blocked_statuses"`    // 屏蔽的库存状态（如 RESERVED）
	RequireImages     bool     `json:"require_images"`      // 上架是否必须有图片
	BatchSize         int      `json:"batch_size"`          // 对账批大小
	BatchPauseMs      int      `json:"batch_pause_ms"`      // 批间停顿（毫秒）
	PagePauseMs       int      `json:"page_pause_ms"`       // 翻页间停顿（毫秒）
	RecordLimit       int      `json:"record_limit"`        // 单次运行最多处理条数（0 不限）
	MaxAttempts       int      `json:"max_attempts"`        // 单条记录最大尝试次数
	CleanupGraceHours int      `json:"cleanup_grace_hours"` // 清理豁免窗口（小时）
	LookupMaxErrors   int      `json:"lookup_max_errors"`   // 点查连续失败熔断阈值
	FullSyncHourUTC   int      `json:"full_sync_hour_utc"`  // 每天该 UTC 小时执行全量
	IntervalMinutes   int      `json:"interval_minutes"`    // 常驻模式下的运行间隔
}

// ImagesConfig 图片下载配置
type ImagesConfig struct {
	StorageDir      string `json:"storage_dir"`       // 本地存储根目录（按车辆分目录）
	DownloadPauseMs int    `json:"download_pause_ms"` // 两次下载之间的停顿
	TimeoutSeconds  int    `json:"timeout_seconds"`   // 单张下载超时
	RatePerSecond   int    `json:"rate_per_second"`   // 令牌桶速率（每秒）
	MaxPerDrain     int    `json:"max_per_drain"`     // 单次排空最多处理条数（0 不限）
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置：JSON 文件 + 环境变量覆盖。
// 配置文件不存在时退回默认配置（开发环境友好）。
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = defaultConfig()
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
		} else {
			data, readErr := os.ReadFile(configPath)
			if readErr != nil {
				err = fmt.Errorf("failed to read config file: %w", readErr)
				return
			}
			if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
				err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
				return
			}
		}
		ApplyEnvOverrides(globalConfig)
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "sync-service",
			Host:     "0.0.0.0",
			GRPCPort: 50051,
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "drivestocksync",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:   "debug",
			Format:  "text",
			Output:  "stdout",
			Path:    "logs/app.log",
			Backend: "logrus",
		},
		Auth: AuthConfig{
			Enabled:  false,
			Issuer:   "drivestocksync",
			Audience: "catalog-api",
		},
		Feed: FeedConfig{
			BaseURL:        "http://localhost:9000",
			PageSize:       50,
			TimeoutSeconds: 30,
			UserAgent:      "drivestocksync/1.0",
		},
		Sync: SyncConfig{
			BlockedLocations:  []string{},
			MinPrice:          1000,
			BlockedStatuses:   []string{"RESERVED"},
			RequireImages:     true,
			BatchSize:         25,
			BatchPauseMs:      500,
			PagePauseMs:       300,
			RecordLimit:       0,
			MaxAttempts:       3,
			CleanupGraceHours: 48,
			LookupMaxErrors:   5,
			FullSyncHourUTC:   3,
			IntervalMinutes:   60,
		},
		Images: ImagesConfig{
			StorageDir:      "storage/vehicles",
			DownloadPauseMs: 200,
			TimeoutSeconds:  30,
			RatePerSecond:   5,
			MaxPerDrain:     0,
		},
	}
}
