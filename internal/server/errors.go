package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/fetch"
	"github.com/any-hub/any-cache/internal/naming"
	"github.com/any-hub/any-cache/internal/validate"
)

// classifyError 将引擎错误映射为 HTTP 状态码与错误码。
func classifyError(err error) (int, string) {
	var (
		invalid  *naming.InvalidInputError
		fetchErr *fetch.FetchError
		storage  *cache.StorageError
	)
	switch {
	case errors.As(err, &invalid):
		return fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, validate.ErrMalformedURL):
		return fiber.StatusBadRequest, "malformed_url"
	case errors.Is(err, validate.ErrProtocolNotAllowed):
		return fiber.StatusBadRequest, "protocol_not_allowed"
	case errors.Is(err, validate.ErrHostNotAllowed):
		return fiber.StatusBadRequest, "host_not_allowed"
	case errors.As(err, &fetchErr):
		return fiber.StatusBadGateway, "upstream_failed"
	case errors.As(err, &storage):
		return fiber.StatusInternalServerError, "storage_error"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}
