package utils

import (
	"io"
	"os"
	"time"

	"atmcore/config"

	"github.com/sirupsen/logrus"
)

// NewLogger создает логгер по настройкам конфигурации
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewDiscardLogger возвращает логгер без вывода
func NewDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// LogOperation логирует операцию с длительностью
func LogOperation(log logrus.FieldLogger, operation string, startTime time.Time, err error) {
	entry := log.WithFields(logrus.Fields{
		"operation": operation,
		"duration":  time.Since(startTime).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Operation failed")
		return
	}
	entry.Debug("Operation completed")
}
