// Package validate 根据当前缓存配置检查待缓存 URL 的协议与主机。
// 缓存引擎本身不做这些检查，HTTP 入口在调用 Resolve 之前先经过这里。
package validate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/any-hub/any-cache/internal/filecache"
)

var (
	// ErrMalformedURL 表示 URL 无法解析或缺少 scheme/host。
	ErrMalformedURL = errors.New("malformed url")
	// ErrProtocolNotAllowed 表示 scheme 不在 ValidProtocols 中。
	ErrProtocolNotAllowed = errors.New("protocol not allowed")
	// ErrHostNotAllowed 表示主机不在 FileHostWhitelist 中。
	ErrHostNotAllowed = errors.New("host not allowed")
)

// Validator 每次校验时读取配置快照，配置热更新后立即生效。
type Validator struct {
	options func() filecache.Options
}

// New 创建校验器，opts 通常为 Engine.Options。
func New(opts func() filecache.Options) *Validator {
	return &Validator{options: opts}
}

// Validate 返回解析后的 URL，拒绝时返回包装了哨兵错误的 error。
func (v *Validator) Validate(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q must be absolute with a host", ErrMalformedURL, rawURL)
	}

	opts := v.options()
	scheme := strings.ToLower(u.Scheme)
	if !slices.ContainsFunc(opts.ValidProtocols, func(p string) bool {
		return strings.EqualFold(strings.TrimSuffix(p, ":"), scheme)
	}) {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotAllowed, scheme)
	}

	if len(opts.FileHostWhitelist) > 0 {
		host := hostOnly(u.Host)
		if !slices.ContainsFunc(opts.FileHostWhitelist, func(h string) bool {
			return strings.EqualFold(hostOnly(h), host)
		}) {
			return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
		}
	}
	return u, nil
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}
