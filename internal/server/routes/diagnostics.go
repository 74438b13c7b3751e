package routes

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cache/internal/filecache"
)

// RegisterDiagnosticsRoutes 暴露 /-/stats 与 /-/options 诊断接口，供运维查看缓存水位与当前配置。
func RegisterDiagnosticsRoutes(app *fiber.App, engine *filecache.Engine) {
	if app == nil || engine == nil {
		return
	}

	app.Get("/-/stats", func(c fiber.Ctx) error {
		stats, err := engine.Stats()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
		}
		return c.JSON(encodeStats(stats))
	})

	app.Get("/-/options", func(c fiber.Ctx) error {
		return c.JSON(encodeOptions(engine.Options(), engine.Root()))
	})
}

type statsPayload struct {
	Requested  int64  `json:"requested"`
	Hits       int64  `json:"hits"`
	Downloads  int64  `json:"downloads"`
	Coalesced  int64  `json:"coalesced"`
	Failed     int64  `json:"failed"`
	Evicted    int64  `json:"evicted"`
	Pruned     int64  `json:"pruned"`
	Locked     int    `json:"locked"`
	InFlight   int    `json:"in_flight"`
	CacheBytes int64  `json:"cache_bytes"`
	LimitBytes int64  `json:"limit_bytes"`
	Summary    string `json:"summary"`
}

type optionsPayload struct {
	ValidProtocols         []string `json:"valid_protocols"`
	FileHostWhitelist      []string `json:"file_host_whitelist"`
	CachePruneTriggerLimit int64    `json:"cache_prune_trigger_limit"`
	LimitHuman             string   `json:"cache_prune_trigger_limit_human"`
	FileDirName            string   `json:"file_dir_name"`
	Root                   string   `json:"root"`
}

func encodeStats(s filecache.Stats) statsPayload {
	return statsPayload{
		Requested:  s.Requested,
		Hits:       s.Hits,
		Downloads:  s.Downloads,
		Coalesced:  s.Coalesced,
		Failed:     s.Failed,
		Evicted:    s.Evicted,
		Pruned:     s.Pruned,
		Locked:     s.Locked,
		InFlight:   s.InFlight,
		CacheBytes: int64(s.CacheBytes),
		LimitBytes: int64(s.Limit),
		Summary:    s.String(),
	}
}

func encodeOptions(opts filecache.Options, root string) optionsPayload {
	hosts := opts.FileHostWhitelist
	if hosts == nil {
		hosts = []string{}
	}
	return optionsPayload{
		ValidProtocols:         opts.ValidProtocols,
		FileHostWhitelist:      hosts,
		CachePruneTriggerLimit: int64(opts.CachePruneTriggerLimit),
		LimitHuman:             fmt.Sprintf("%.1S", opts.CachePruneTriggerLimit),
		FileDirName:            opts.FileDirName,
		Root:                   root,
	}
}
