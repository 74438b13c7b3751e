package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/filecache"
	"github.com/any-hub/any-cache/internal/validate"
)

// AppOptions wires the engine and its collaborators into the HTTP layer.
type AppOptions struct {
	Logger     *logrus.Logger
	Engine     *filecache.Engine
	Validator  *validate.Validator
	ListenPort int
}

const contextKeyRequestID = "_anycache_request_id"

// NewApp builds a Fiber application with request-ID middleware, panic
// recovery and the /v1 cache API.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("cache engine is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	if opts.Validator == nil {
		opts.Validator = validate.New(opts.Engine.Options)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	h := newHandlers(opts)
	v1 := app.Group("/v1")
	v1.Post("/resolve", h.resolve)
	v1.Post("/locks", h.lock)
	v1.Delete("/locks", h.unlock)
	v1.Delete("/holders/:holder", h.releaseHolder)
	v1.Post("/prune", h.prune)
	v1.Post("/flush", h.flush)
	v1.Get("/entries/:area", h.entries)
	v1.Get("/files/:area/:name", h.file)

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func renderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
