package logger

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults applied when the logging section leaves them unset.
const (
	defaultMaxSizeMB = 100
	defaultMaxFiles  = 5
)

// rotatingFile builds the lumberjack writer behind output=file. Rotated
// files are gzip-compressed; MaxAgeDays of zero keeps them forever.
func rotatingFile(cfg LoggingConfig) *lumberjack.Logger {
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = defaultMaxSizeMB
	}
	files := cfg.MaxFiles
	if files <= 0 {
		files = defaultMaxFiles
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    size,
		MaxBackups: files,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}
