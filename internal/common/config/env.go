package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ApplyEnvOverrides 用环境变量覆盖部分配置。
// 运维侧只需要调同步规则和密钥类配置，不必整份改 JSON。
// 先尝试加载 .env（不存在则忽略），再读取进程环境。
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	_ = godotenv.Load()

	cfg.Database.Host = envString("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = envInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = envString("DB_USER", cfg.Database.User)
	cfg.Database.Password = envString("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = envString("DB_NAME", cfg.Database.Database)

	cfg.Auth.JWTSecret = envString("JWT_SECRET", cfg.Auth.JWTSecret)

	cfg.Feed.BaseURL = envString("FEED_BASE_URL", cfg.Feed.BaseURL)
	cfg.Feed.APIKey = envString("FEED_API_KEY", cfg.Feed.APIKey)
	cfg.Feed.PageSize = envInt("FEED_PAGE_SIZE", cfg.Feed.PageSize)

	cfg.Sync.BlockedLocations = envStrings("SYNC_BLOCKED_LOCATIONS", cfg.Sync.BlockedLocations)
	cfg.Sync.MinPrice = envFloat("SYNC_MIN_PRICE", cfg.Sync.MinPrice)
	cfg.Sync.BlockedStatuses = envStrings("SYNC_BLOCKED_STATUSES", cfg.Sync.BlockedStatuses)
	cfg.Sync.RequireImages = envBool("SYNC_REQUIRE_IMAGES", cfg.Sync.RequireImages)
	cfg.Sync.BatchSize = envInt("SYNC_BATCH_SIZE", cfg.Sync.BatchSize)
	cfg.Sync.RecordLimit = envInt("SYNC_RECORD_LIMIT", cfg.Sync.RecordLimit)
	cfg.Sync.CleanupGraceHours = envInt("SYNC_CLEANUP_GRACE_HOURS", cfg.Sync.CleanupGraceHours)
	cfg.Sync.LookupMaxErrors = envInt("SYNC_LOOKUP_MAX_ERRORS", cfg.Sync.LookupMaxErrors)

	cfg.Images.StorageDir = envString("IMAGES_STORAGE_DIR", cfg.Images.StorageDir)
	cfg.Images.DownloadPauseMs = envInt("IMAGES_DOWNLOAD_PAUSE_MS", cfg.Images.DownloadPauseMs)
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

// envStrings 逗号分隔列表，空串元素丢弃。
func envStrings(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
