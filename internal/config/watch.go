package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Watch 监听配置文件变化。每次变化都会重新完整解析与校验，合法时把新配置
// 交给 onChange，不合法时记录日志并保留旧配置。
func Watch(path string, logger *logrus.Logger, onChange func(*Config)) error {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		applyChange(v, ev.Name, logger, onChange)
	})
	v.WatchConfig()
	return nil
}

func applyChange(v *viper.Viper, name string, logger *logrus.Logger, onChange func(*Config)) bool {
	cfg, err := decode(v)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action": "options_reload",
			"config": name,
		}).Warn("配置热更新被拒绝")
		return false
	}
	onChange(cfg)
	return true
}
