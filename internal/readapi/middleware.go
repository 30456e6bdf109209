package readapi

import (
	"strings"
	"sync"
	"time"

	"github.com/DriveStockSync/DriveStockSync/internal/common/auth"
	"github.com/DriveStockSync/DriveStockSync/internal/common/config"
	"github.com/DriveStockSync/DriveStockSync/internal/common/middleware"
	"github.com/gofiber/fiber/v2"
)

// RateLimit 按客户端 IP 做滑动窗口限流。
func RateLimit(maxRequests int, window time.Duration) fiber.Handler {
	var mu sync.Mutex
	windows := make(map[string]*middleware.SlidingWindow)

	return func(c *fiber.Ctx) error {
		ip := c.IP()

		mu.Lock()
		w, ok := windows[ip]
		if !ok {
			w = middleware.NewSlidingWindow(window, maxRequests)
			windows[ip] = w
		}
		mu.Unlock()

		if !w.Allow(c.Context()) {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}

// RequireAdmin 校验 Bearer token 并要求 admin 角色。
// 认证关闭时直接放行（本地开发）。
func RequireAdmin(cfg config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := auth.VerifyAccessToken(cfg, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		for _, role := range claims.Roles {
			if role == "admin" {
				c.Locals("subject", claims.Subject)
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "admin role required")
	}
}
