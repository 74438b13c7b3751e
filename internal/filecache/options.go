package filecache

import (
	"net/http"
	"slices"

	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/naming"
)

const (
	// DefaultPruneTriggerLimit 是 cache 区的默认容量阈值。
	DefaultPruneTriggerLimit = 15 * infounit.Mebibyte
	// DefaultFileDirName 是 StoragePath 下的默认根目录名。
	DefaultFileDirName = "any-cache"
)

// Options 是进程级缓存配置。它是不可变值：更新时通过 Engine.SetOptions
// 整体替换，进行中的操作读取调用时刻的快照。
type Options struct {
	// ValidProtocols 是外部校验器接受的 URL scheme 白名单。
	ValidProtocols []string
	// FileHostWhitelist 是允许的主机列表，为空表示不限制。
	FileHostWhitelist []string
	// CachePruneTriggerLimit 是 cache 区触发淘汰的字节阈值。
	CachePruneTriggerLimit infounit.ByteCount
	// FileDirName 是 cache/ 与 permanent/ 所在的根目录名，仅在启动时生效。
	FileDirName string
}

// DefaultOptions 返回默认配置：仅允许 https，不限制主机，阈值 15 MiB。
func DefaultOptions() Options {
	return Options{
		ValidProtocols:         []string{"https"},
		CachePruneTriggerLimit: DefaultPruneTriggerLimit,
		FileDirName:            DefaultFileDirName,
	}
}

// withDefaults 为零值字段补齐默认值，并复制切片以切断与调用方的共享。
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	out := Options{
		ValidProtocols:         slices.Clone(o.ValidProtocols),
		FileHostWhitelist:      slices.Clone(o.FileHostWhitelist),
		CachePruneTriggerLimit: o.CachePruneTriggerLimit,
		FileDirName:            o.FileDirName,
	}
	if len(out.ValidProtocols) == 0 {
		out.ValidProtocols = def.ValidProtocols
	}
	if out.CachePruneTriggerLimit == 0 {
		out.CachePruneTriggerLimit = def.CachePruneTriggerLimit
	}
	if out.FileDirName == "" {
		out.FileDirName = def.FileDirName
	}
	return out
}

// ResolveOptions 描述一次解析/清理请求的可选参数。清理时必须传入与缓存时相同的值。
type ResolveOptions struct {
	Permanent bool
	Extension string
	FileName  string
	Headers   http.Header
}

// Area 返回该请求对应的存储区。
func (o ResolveOptions) Area() cache.Area {
	if o.Permanent {
		return cache.AreaPermanent
	}
	return cache.AreaCache
}

func (o ResolveOptions) naming() naming.Options {
	return naming.Options{
		FileName:  o.FileName,
		Extension: o.Extension,
		Headers:   o.Headers,
	}
}
