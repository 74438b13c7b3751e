package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/tunabay/go-infounit"

	"github.com/any-hub/any-cache/internal/filecache"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// ByteSize 是字节数，配置中可写整数或 "15MiB"、"512KB" 这类带单位的字符串，
// 单位一律按 1024 进制换算。
type ByteSize int64

// UnmarshalText 解析带单位的容量字符串。
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := parseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ByteCount 转换为缓存引擎使用的 infounit.ByteCount。
func (b ByteSize) ByteCount() infounit.ByteCount {
	if b < 0 {
		return 0
	}
	return infounit.ByteCount(b)
}

// String 以 1024 进制输出，例如 "15MiB"。
func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

func parseByteSize(raw string) (ByteSize, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := parseInt(raw); err == nil {
		return ByteSize(n), nil
	}
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size value: %s", raw)
	}
	return ByteSize(n), nil
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	UserAgent       string   `mapstructure:"UserAgent"`
	WatchConfig     bool     `mapstructure:"WatchConfig"`
}

// CacheConfig 对应缓存引擎的可热更新参数（FileDirName 除外）。
type CacheConfig struct {
	FileDirName            string   `mapstructure:"FileDirName"`
	CachePruneTriggerLimit ByteSize `mapstructure:"CachePruneTriggerLimit"`
	ValidProtocols         []string `mapstructure:"ValidProtocols"`
	FileHostWhitelist      []string `mapstructure:"FileHostWhitelist"`
}

// Config 是 TOML 文件映射的整体结构，所有键都位于顶层。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Cache  CacheConfig  `mapstructure:",squash"`
}

// CacheOptions 转换为引擎的不可变配置值。
func (c *Config) CacheOptions() filecache.Options {
	return filecache.Options{
		ValidProtocols:         append([]string(nil), c.Cache.ValidProtocols...),
		FileHostWhitelist:      append([]string(nil), c.Cache.FileHostWhitelist...),
		CachePruneTriggerLimit: c.Cache.CachePruneTriggerLimit.ByteCount(),
		FileDirName:            c.Cache.FileDirName,
	}
}
