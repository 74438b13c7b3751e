package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/filecache"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/validate"
)

type handlers struct {
	engine    *filecache.Engine
	validator *validate.Validator
	logger    *logrus.Logger
	holders   *holderSubscriptions
}

func newHandlers(opts AppOptions) *handlers {
	return &handlers{
		engine:    opts.Engine,
		validator: opts.Validator,
		logger:    opts.Logger,
		holders:   newHolderSubscriptions(opts.Engine, opts.Logger),
	}
}

// resolveRequest 同时用于 /v1/resolve 与 /v1/prune；清理时必须带上与缓存时相同的参数。
type resolveRequest struct {
	URL       string            `json:"url"`
	Permanent bool              `json:"permanent"`
	Extension string            `json:"extension"`
	FileName  string            `json:"file_name"`
	Headers   map[string]string `json:"headers"`
	Holder    string            `json:"holder"`
}

func (r resolveRequest) options() filecache.ResolveOptions {
	var headers http.Header
	if len(r.Headers) > 0 {
		headers = make(http.Header, len(r.Headers))
		for key, value := range r.Headers {
			headers.Set(key, value)
		}
	}
	return filecache.ResolveOptions{
		Permanent: r.Permanent,
		Extension: r.Extension,
		FileName:  r.FileName,
		Headers:   headers,
	}
}

type resolveResponse struct {
	Path     string     `json:"path"`
	FileName string     `json:"file_name"`
	Area     cache.Area `json:"area"`
	Holder   string     `json:"holder,omitempty"`
}

type lockRequest struct {
	FileName string `json:"file_name"`
	Holder   string `json:"holder"`
}

func (h *handlers) resolve(c fiber.Ctx) error {
	var req resolveRequest
	if err := decodeBody(c, &req); err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_body")
	}
	fields := logging.RequestFields(RequestID(c), c.Method(), c.Path(), req.Holder)

	if _, err := h.validator.Validate(req.URL); err != nil {
		return h.fail(c, fields, err)
	}
	opts := req.options()
	name, err := h.engine.FileName(req.URL, opts)
	if err != nil {
		return h.fail(c, fields, err)
	}

	// 先加锁再解析，避免文件在返回给调用方之前被淘汰
	var held, subscribed bool
	if req.Holder != "" {
		held = slices.Contains(h.engine.Holders(name), req.Holder)
		h.engine.Lock(name, req.Holder)
		subscribed = h.holders.watch(req.Holder, req.URL, name)
	}

	path, err := h.engine.Resolve(requestContext(c), req.URL, opts)
	if err != nil {
		if req.Holder != "" && !held {
			h.engine.Unlock(name, req.Holder)
			if subscribed {
				h.holders.forget(req.Holder, name)
			}
		}
		return h.fail(c, fields, err)
	}

	// 已存在于另一存储区的文件不会重复下载，返回其实际所在区
	area := cache.Area(filepath.Base(filepath.Dir(path)))
	h.logger.WithFields(fields).
		WithFields(logging.EntryFields("resolve", string(area), name, req.URL)).
		Debug("resolve_served")
	return c.JSON(resolveResponse{
		Path:     path,
		FileName: name,
		Area:     area,
		Holder:   req.Holder,
	})
}

func (h *handlers) lock(c fiber.Ctx) error {
	var req lockRequest
	if err := decodeBody(c, &req); err != nil || req.FileName == "" {
		return renderError(c, fiber.StatusBadRequest, "file_name_required")
	}
	if req.Holder == "" {
		req.Holder = uuid.NewString()
	}
	h.engine.Lock(req.FileName, req.Holder)
	h.logger.WithFields(logging.RequestFields(RequestID(c), c.Method(), c.Path(), req.Holder)).
		WithFields(logrus.Fields{"action": "lock", "file_name": req.FileName}).Debug("lock_acquired")
	return c.JSON(req)
}

func (h *handlers) unlock(c fiber.Ctx) error {
	var req lockRequest
	if err := decodeBody(c, &req); err != nil || req.FileName == "" || req.Holder == "" {
		return renderError(c, fiber.StatusBadRequest, "file_name_and_holder_required")
	}
	released := h.engine.Unlock(req.FileName, req.Holder)
	h.holders.forget(req.Holder, req.FileName)
	return c.JSON(fiber.Map{"released": released})
}

func (h *handlers) releaseHolder(c fiber.Ctx) error {
	holder := strings.TrimSpace(c.Params("holder"))
	if holder == "" {
		return renderError(c, fiber.StatusBadRequest, "holder_required")
	}
	released := h.engine.ReleaseHolder(holder)
	h.holders.forgetHolder(holder)
	if released == nil {
		released = []string{}
	}
	h.logger.WithFields(logging.RequestFields(RequestID(c), c.Method(), c.Path(), holder)).
		WithFields(logrus.Fields{"action": "lock", "released": len(released)}).Info("holder_released")
	return c.JSON(fiber.Map{"released": released})
}

func (h *handlers) prune(c fiber.Ctx) error {
	var req resolveRequest
	if err := decodeBody(c, &req); err != nil {
		return renderError(c, fiber.StatusBadRequest, "invalid_body")
	}
	opts := req.options()
	fields := logging.RequestFields(RequestID(c), c.Method(), c.Path(), "")
	pruned, err := h.engine.Prune(requestContext(c), req.URL, opts)
	if err != nil {
		return h.fail(c, fields, err)
	}
	name, _ := h.engine.FileName(req.URL, opts)
	h.logger.WithFields(fields).
		WithFields(logging.EntryFields("prune", string(opts.Area()), name, req.URL)).
		WithField("pruned", pruned).Debug("prune_served")
	return c.JSON(fiber.Map{"pruned": pruned})
}

func (h *handlers) flush(c fiber.Ctx) error {
	res, err := h.engine.Flush(requestContext(c))
	if err != nil {
		return h.fail(c, logging.RequestFields(RequestID(c), c.Method(), c.Path(), ""), err)
	}
	return c.JSON(res)
}

func (h *handlers) entries(c fiber.Ctx) error {
	area, ok := cache.ParseArea(c.Params("area"))
	if !ok {
		return renderError(c, fiber.StatusNotFound, "area_not_found")
	}
	entries, err := h.engine.Entries(area)
	if err != nil {
		return h.fail(c, logging.RequestFields(RequestID(c), c.Method(), c.Path(), ""), err)
	}
	var total int64
	for i := range entries {
		total += entries[i].SizeBytes
	}
	if entries == nil {
		entries = []cache.Entry{}
	}
	return c.JSON(fiber.Map{
		"area":        area,
		"entries":     entries,
		"total_bytes": total,
	})
}

// file 把缓存文件原样写回响应，不刷新 LastTouchedAt。
func (h *handlers) file(c fiber.Ctx) error {
	area, ok := cache.ParseArea(c.Params("area"))
	if !ok {
		return renderError(c, fiber.StatusNotFound, "area_not_found")
	}
	entry, err := h.engine.Store().Stat(area, c.Params("name"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, cache.ErrInvalidName) {
			return renderError(c, fiber.StatusNotFound, "file_not_found")
		}
		return h.fail(c, logging.RequestFields(RequestID(c), c.Method(), c.Path(), ""), err)
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return renderError(c, fiber.StatusNotFound, "file_not_found")
		}
		return h.fail(c, logging.RequestFields(RequestID(c), c.Method(), c.Path(), ""), err)
	}
	defer f.Close()

	if contentType := mime.TypeByExtension(filepath.Ext(entry.FileName)); contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	c.Response().Header.SetContentLength(int(entry.SizeBytes))
	c.Status(fiber.StatusOK)
	_, err = io.Copy(c.Response().BodyWriter(), f)
	return err
}

func (h *handlers) fail(c fiber.Ctx, fields logrus.Fields, err error) error {
	status, code := classifyError(err)
	entry := h.logger.WithError(err).WithFields(fields).WithField("status", status)
	if status >= fiber.StatusInternalServerError {
		entry.Error(code)
	} else {
		entry.Warn(code)
	}
	return renderError(c, status, code)
}

func decodeBody(c fiber.Ctx, dst any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
