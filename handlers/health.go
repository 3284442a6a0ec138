package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"slidesync/database"
	"slidesync/utils"
)

// HealthHandler reports process and dependency health
type HealthHandler struct {
	db        database.Database
	rdb       *redis.Client
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db database.Database, rdb *redis.Client, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		rdb:       rdb,
		startTime: startTime,
	}
}

// Healthz checks database and cache connectivity. The cache being down
// degrades service but the database being down makes it unhealthy either
// way, so both are reported.
func (h *HealthHandler) Healthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	health := fiber.Map{
		"ok":        true,
		"timestamp": utils.FormatUTC(time.Now()),
		"uptime":    time.Since(h.startTime).String(),
	}

	if err := database.Ping(ctx, h.db); err != nil {
		health["ok"] = false
		health["database"] = "unreachable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}
	health["database"] = "connected"

	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			health["ok"] = false
			health["cache"] = "unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(health)
		}
		health["cache"] = "connected"
	}

	return c.JSON(health)
}
