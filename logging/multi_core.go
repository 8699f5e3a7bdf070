package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that tees output to stderr and a
// rotating log file.
//
// Console output goes to stderr, never stdout: stdout carries the MCP
// JSON-RPC stream and any stray bytes there corrupt the protocol. The file
// output always uses JSON encoding; the console uses a human-readable
// encoder in development mode and JSON otherwise.
func NewMultiCore(level zapcore.Level, filePath string, isDev bool) (zapcore.Core, error) {
	fileWriter := NewFileWriter(filePath)
	return NewMultiCoreWithWriters(level, zapcore.Lock(os.Stderr), fileWriter, isDev), nil
}

// NewMultiCoreWithWriters creates a tee core over the provided writers.
// Useful for tests that capture output in buffers.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileEncoder := zapcore.NewJSONEncoder(NewEncoderConfig())
	fileCore := zapcore.NewCore(fileEncoder, fileWriter, level)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return zapcore.NewTee(consoleCore, fileCore)
}
