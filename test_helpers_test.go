package main

import (
	"bytes"
	"path/filepath"
	"runtime"
	"testing"
)

// cliOutput 收集 run 写出的 stdout/stderr。
type cliOutput struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// captureCLIOutput 在测试期间把 stdOut/stdErr 替换为内存缓冲，结束后恢复。
func captureCLIOutput(t *testing.T) *cliOutput {
	t.Helper()

	out := &cliOutput{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &out.stdout, &out.stderr
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return out
}

// configFixture 返回 internal/config/testdata 下的样例配置路径。
// 本文件位于模块根目录，直接以其所在目录为基准。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("无法定位 any-cache 模块目录")
	}
	return filepath.Join(filepath.Dir(file), "internal", "config", "testdata", name)
}
