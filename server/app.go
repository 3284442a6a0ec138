package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"slidesync/config"
	"slidesync/metrics"
	"slidesync/utils"
)

// ErrNilHandler is returned when no application handler is supplied at
// startup. The server cannot run without exactly one handler.
var ErrNilHandler = errors.New("server: application handler is required")

// Handler is the single injection point between the server process and the
// application it serves. It is resolved once at startup.
type Handler interface {
	Register(app *fiber.App)
}

// New creates the Fiber application, installs the ambient middleware stack,
// and mounts the injected application handler.
func New(cfg *config.Config, handler Handler) (*fiber.App, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	if utils.InfoLogger == nil {
		utils.InitLogging()
	}

	app := fiber.New(fiber.Config{
		// One worker process serves all connections; concurrency comes
		// from lightweight tasks interleaved at I/O boundaries.
		Prefork:                 false,
		DisableStartupMessage:   false,
		BodyLimit:               512 * 1024,
		EnableTrustedProxyCheck: cfg.TrustProxyHeaders,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				if code < 500 {
					message = e.Message
				} else {
					utils.LogRequestError(c, "HTTP_ERROR", err)
				}
			} else {
				utils.LogRequestError(c, "HTTP_ERROR", err)
			}

			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})

	// Panic recovery keeps a failing request from taking the process down
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			utils.LogError("PANIC RECOVERED", fmt.Errorf("%v", e),
				"method", c.Method(),
				"path", c.Path(),
				"ip", c.IP(),
			)
		},
	}))

	// Request ID for error correlation
	app.Use(func(c *fiber.Ctx) error {
		requestID := uuid.New().String()
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	})

	app.Use(logger.New(logger.Config{
		Output: utils.InfoLogger.Writer(),
		Format: "[${time}] ${locals:request_id} ${status} - ${method} ${path} - ${ip} - ${latency}\n",
	}))

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			// Skip compression for WebSocket upgrades
			return c.Get("Upgrade") == "websocket"
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return utils.ClientIP(c)
		},
	}))

	if cfg.MetricsEnabled {
		app.Use(metrics.PrometheusMiddleware())
		app.Get("/metrics", MetricsHandler())
	}

	handler.Register(app)

	return app, nil
}
