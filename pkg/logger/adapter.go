package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerAdapter hands components a logger per category. Each category logger
// writes to the main logger and, when a MultiLogger is configured, to the
// category's file as well.
type LoggerAdapter struct {
	multiLogger  *MultiLogger
	singleLogger *zap.Logger
}

// NewLoggerAdapter creates a new logger adapter. multiLogger may be nil.
func NewLoggerAdapter(main *zap.Logger, multiLogger *MultiLogger) *LoggerAdapter {
	if main == nil {
		main = zap.NewNop()
	}
	return &LoggerAdapter{
		multiLogger:  multiLogger,
		singleLogger: main,
	}
}

// NewSingleLoggerAdapter creates an adapter without category files
func NewSingleLoggerAdapter(logger *zap.Logger) *LoggerAdapter {
	return NewLoggerAdapter(logger, nil)
}

// For returns the logger of a category
func (la *LoggerAdapter) For(category LogCategory) *zap.Logger {
	named := la.singleLogger.Named(string(category))
	if la.multiLogger == nil {
		return named
	}
	fileCore := la.multiLogger.GetLogger(category).Core()
	return named.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}

// Queue returns the queue logger
func (la *LoggerAdapter) Queue() *zap.Logger {
	return la.For(CategoryQueue)
}

// Traversal returns the traversal logger
func (la *LoggerAdapter) Traversal() *zap.Logger {
	return la.For(CategoryTraversal)
}

// Archive returns the archive logger
func (la *LoggerAdapter) Archive() *zap.Logger {
	return la.For(CategoryArchive)
}

// Error returns the error logger
func (la *LoggerAdapter) Error() *zap.Logger {
	return la.For(CategoryError)
}

// General returns the main logger
func (la *LoggerAdapter) General() *zap.Logger {
	return la.singleLogger
}

// LogError logs an error to both the category and the error log
func (la *LoggerAdapter) LogError(category LogCategory, msg string, fields ...zap.Field) {
	la.For(category).Error(msg, fields...)
	if la.multiLogger != nil && category != CategoryError {
		la.multiLogger.LogAppError(msg, append(fields, zap.String("category", string(category)))...)
	}
}

// Sync flushes all loggers
func (la *LoggerAdapter) Sync() error {
	err := la.multiLogger.Sync()
	if syncErr := la.singleLogger.Sync(); syncErr != nil {
		err = syncErr
	}
	return err
}

// GetMultiLogger returns the underlying multi-logger, nil when category files are disabled
func (la *LoggerAdapter) GetMultiLogger() *MultiLogger {
	return la.multiLogger
}
