package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// LogFileName is the file written under the log directory.
const LogFileName = "rewards-follower.log"

// NewSugaredLogger creates a sugared logger based on the verbose flag.
// If verbose is true, it creates a development logger, otherwise a production logger.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	return NewSugaredLoggerWithDir(verbose, "")
}

// NewSugaredLoggerWithDir is NewSugaredLogger that also writes to
// logDir/LogFileName when logDir is set. The directory is created if needed.
func NewSugaredLoggerWithDir(verbose bool, logDir string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	kind := "production"
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		kind = "development"
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		path := filepath.Join(logDir, LogFileName)
		cfg.OutputPaths = append(cfg.OutputPaths, path)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, path)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s logger: %w", kind, err)
	}
	return l.Sugar(), nil
}
