package config

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
)

var supportedProtocols = map[string]struct{}{
	"http":  {},
	"https": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "未知日志级别 "+g.LogLevel)
		}
	}

	cc := c.Cache
	if err := validateDirName(cc.FileDirName); err != nil {
		return newFieldError("FileDirName", err.Error())
	}
	if cc.CachePruneTriggerLimit <= 0 {
		return newFieldError("CachePruneTriggerLimit", "必须大于 0")
	}
	if len(cc.ValidProtocols) == 0 {
		return newFieldError("ValidProtocols", "至少需要一个协议")
	}
	for i, p := range cc.ValidProtocols {
		if _, ok := supportedProtocols[p]; !ok {
			return newFieldError(listField("ValidProtocols", i), "仅支持 http/https")
		}
	}
	for i, h := range cc.FileHostWhitelist {
		if err := validateHost(h); err != nil {
			return newFieldError(listField("FileHostWhitelist", i), err.Error())
		}
	}
	return nil
}

func validateDirName(name string) error {
	if name == "" {
		return errors.New("不能为空")
	}
	if name == "." || name == ".." {
		return errors.New("不能是 . 或 ..")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.New("不允许包含路径分隔符")
	}
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return errors.New("主机不能为空")
	}
	if strings.Contains(host, "/") {
		return errors.New("主机不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("主机不允许包含空格")
	}
	if strings.Contains(host, "://") {
		return errors.New("主机不应包含协议头")
	}
	return nil
}
