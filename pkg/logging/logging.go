package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileLogger creates a logger writing both to stderr and the given file path,
// creating parent directories as needed. The returned file must be closed by
// the caller on shutdown.
func FileLogger(level logrus.Level, logPath string) (*logrus.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, f, nil
}

// ConsoleLogger creates a stderr-only logger.
func ConsoleLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}
