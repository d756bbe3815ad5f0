package logging

import (
	"io"
	"os"
	"strings"

	"github.com/gregtusar/liquidation-heatmap/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Output always goes to stdout; when a file
// is configured it is also written there with size-based rotation.
func New(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(writer(cfg, os.Stdout))

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func writer(cfg config.LoggingConfig, console io.Writer) io.Writer {
	if cfg.File == "" {
		return console
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}
	return io.MultiWriter(console, file)
}
