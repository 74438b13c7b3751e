package naming

import (
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// VaryHeaders 列出会改变上游返回内容的请求头，它们参与文件名摘要计算，
// 避免不同凭证下载到的资源互相覆盖。
var VaryHeaders = []string{"Accept", "Authorization", "Cookie"}

// maxExtensionLen 限制从 URL 推断出的扩展名长度（不含点号）。
const maxExtensionLen = 8

// maxFileNameLen 与常见文件系统的单个文件名上限一致。
const maxFileNameLen = 255

// Options 对应一次解析/清理请求中影响文件名的可选参数。
type Options struct {
	FileName  string
	Extension string
	Headers   http.Header
}

// InvalidInputError 表示 URL 或显式文件名无法用于生成本地文件名。
type InvalidInputError struct {
	Input  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

// ComputeFileName 根据 URL 与可选覆盖项生成确定性的本地文件名。
//
// 显式 FileName 原样使用（必要时追加扩展名）；否则使用 URL 与 VaryHeaders
// 的 sha256 摘要。扩展名优先级：显式 Extension > URL 路径推断 > 无。
func ComputeFileName(rawURL string, opts Options) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", &InvalidInputError{Input: rawURL, Reason: "url is empty"}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", &InvalidInputError{Input: rawURL, Reason: err.Error()}
	}

	ext, err := normalizeExtension(opts.Extension)
	if err != nil {
		return "", err
	}

	if opts.FileName != "" {
		if err := checkFileName(opts.FileName); err != nil {
			return "", err
		}
		name := opts.FileName
		if ext != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
			name += ext
		}
		if len(name) > maxFileNameLen {
			return "", &InvalidInputError{Input: name, Reason: "file name is too long"}
		}
		return name, nil
	}

	if ext == "" {
		ext = extensionFromPath(parsed.Path)
	}
	return hashKey(rawURL, opts.Headers) + ext, nil
}

func hashKey(rawURL string, headers http.Header) string {
	var b strings.Builder
	b.WriteString(rawURL)
	for _, name := range VaryHeaders {
		values := headers.Values(textproto.CanonicalMIMEHeaderKey(name))
		if len(values) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(strings.Join(values, ","))
	}
	return digest.SHA256.FromString(b.String()).Encoded()
}

func checkFileName(name string) error {
	switch {
	case name == "." || name == "..":
		return &InvalidInputError{Input: name, Reason: "file name is reserved"}
	case strings.ContainsAny(name, `/\`):
		return &InvalidInputError{Input: name, Reason: "file name must not contain path separators"}
	case strings.HasPrefix(name, "."):
		return &InvalidInputError{Input: name, Reason: "file name must not start with a dot"}
	}
	return nil
}

// normalizeExtension 统一为小写并补齐前导点号，空值保持为空。
// 显式扩展名只允许字母和数字。
func normalizeExtension(raw string) (string, error) {
	ext := strings.ToLower(strings.TrimSpace(raw))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "", nil
	}
	if !isAlnum(ext) {
		return "", &InvalidInputError{Input: raw, Reason: "extension must be alphanumeric"}
	}
	return "." + ext, nil
}

func extensionFromPath(p string) string {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" || len(ext) > maxExtensionLen || !isAlnum(ext) {
		return ""
	}
	return "." + strings.ToLower(ext)
}

func isAlnum(s string) bool {
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}
