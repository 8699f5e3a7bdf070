package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default file writer configuration values
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 14
	DefaultCompress   = true
)

// FileWriterConfig holds configuration for the rotating log file writer.
// Zero values fall back to defaults.
type FileWriterConfig struct {
	// MaxSizeMB is the maximum size in megabytes before rotation.
	MaxSizeMB int

	// MaxBackups is the maximum number of rotated files to retain.
	MaxBackups int

	// MaxAgeDays is the maximum number of days to retain rotated files.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool

	// LocalTime uses local time in backup file names instead of UTC.
	LocalTime bool
}

// DefaultFileWriterConfig returns a FileWriterConfig with default values.
func DefaultFileWriterConfig() FileWriterConfig {
	return FileWriterConfig{
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   DefaultCompress,
		LocalTime:  false,
	}
}

// NewFileWriter creates a zapcore.WriteSyncer that writes to a file with
// automatic rotation using the default configuration.
//
// Example:
//
//	writer := NewFileWriter("blender_mcp.log")
//	core := zapcore.NewCore(encoder, writer, level)
func NewFileWriter(path string) zapcore.WriteSyncer {
	return NewFileWriterWithConfig(path, DefaultFileWriterConfig())
}

// NewFileWriterWithConfig creates a zapcore.WriteSyncer with custom rotation
// configuration. Zero-value fields are replaced with defaults.
func NewFileWriterWithConfig(path string, config FileWriterConfig) zapcore.WriteSyncer {
	cfg := applyFileWriterDefaults(config)

	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}

	return zapcore.AddSync(logger)
}

func applyFileWriterDefaults(config FileWriterConfig) FileWriterConfig {
	result := config

	if result.MaxSizeMB == 0 {
		result.MaxSizeMB = DefaultMaxSizeMB
	}
	if result.MaxBackups == 0 {
		result.MaxBackups = DefaultMaxBackups
	}
	if result.MaxAgeDays == 0 {
		result.MaxAgeDays = DefaultMaxAgeDays
	}

	return result
}
