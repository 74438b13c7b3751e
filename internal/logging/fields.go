package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// EntryFields 描述一次缓存条目操作：存储区、文件名与来源 URL。
func EntryFields(action, area, fileName, url string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"area":      area,
		"file_name": fileName,
		"url":       url,
	}
}

// RequestFields 提供 HTTP 入口的公共字段，holder 为空时省略。
func RequestFields(requestID, method, path, holder string) logrus.Fields {
	fields := logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
	}
	if holder != "" {
		fields["holder"] = holder
	}
	return fields
}
