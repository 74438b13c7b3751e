// Package fetch downloads remote resources for the file cache. It owns the
// shared upstream HTTP client and reports every failure as a FetchError so the
// resolve pipeline can surface it unchanged; it never retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// FetchError 表示网络失败或非 2xx 响应。传输层失败时 StatusCode 为 0。
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Downloader 以 GET 请求拉取远端资源并流式写入调用方提供的 Writer。
type Downloader struct {
	client    *http.Client
	userAgent string
}

// New 使用共享 client 构造 Downloader；client 为空时按默认超时新建。
func New(client *http.Client) *Downloader {
	if client == nil {
		client = NewClient(0)
	}
	return &Downloader{client: client, userAgent: "any-cache"}
}

// WithUserAgent 返回使用指定 User-Agent 的副本，调用方请求头中的 User-Agent 优先。
func (d *Downloader) WithUserAgent(ua string) *Downloader {
	clone := *d
	clone.userAgent = ua
	return &clone
}

// Download 执行下载并返回写入的字节数。返回错误时 dst 中可能已有部分数据，
// 调用方负责丢弃。
func (d *Downloader) Download(ctx context.Context, rawURL string, headers http.Header, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}
	CopyHeaders(req.Header, headers)
	if req.Header.Get("User-Agent") == "" && d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return 0, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	sink := &trackingWriter{w: dst}
	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		if sink.err != nil {
			// 写入端失败属于存储错误，原样返回由调用方归类
			return written, sink.err
		}
		return written, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return written, nil
}

// trackingWriter 记录写入端错误，以便区分网络读失败与本地写失败。
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
