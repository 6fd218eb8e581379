package api

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/sirupsen/logrus"
)

// ServiceName 日志与追踪中的服务名
const ServiceName = "ai-service"

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// NewLoggerFromConfig 根据配置创建日志记录器
func NewLoggerFromConfig(cfg *config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	// 设置日志格式
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: timestampFormat,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "time",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
			},
		})
	}

	ApplyLogLevel(logger, cfg.Level)

	// 设置日志输出
	var writers []io.Writer
	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		logDir := "logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(filepath.Join(logDir, ServiceName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}
	logger.SetOutput(io.MultiWriter(writers...))

	// 默认字段,用于日志聚合
	logger.AddHook(&defaultFieldsHook{
		fields: logrus.Fields{"service": ServiceName},
	})
	return logger, nil
}

// ApplyLogLevel 设置日志级别,非法值回退为 info
func ApplyLogLevel(logger *logrus.Logger, level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

// defaultFieldsHook 添加默认字段的 Hook
type defaultFieldsHook struct {
	fields logrus.Fields
}

func (h *defaultFieldsHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *defaultFieldsHook) Fire(entry *logrus.Entry) error {
	for k, v := range h.fields {
		if _, ok := entry.Data[k]; !ok {
			entry.Data[k] = v
		}
	}
	return nil
}
