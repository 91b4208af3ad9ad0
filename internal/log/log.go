// Package log provides categorized structured logging for the workflow
// service. It wraps a zap SugaredLogger behind a small façade so call sites
// stay terse and every entry carries its subsystem category.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem emitting a log entry.
type Category string

const (
	CatServer     Category = "server"
	CatSession    Category = "session"
	CatSecurity   Category = "security"
	CatApproval   Category = "approval"
	CatCheckpoint Category = "checkpoint"
	CatControl    Category = "controlplane"
	CatConfig     Category = "config"
	CatDB         Category = "db"
)

var (
	mu     sync.RWMutex
	logger = newDefault()
)

func newDefault() *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.InfoLevel,
	)
	return zap.New(core).Sugar()
}

// Init replaces the package logger. Pass debug=true to enable debug-level
// output with a development encoder. Safe to call once at process startup;
// later calls replace the logger for all subsequent entries.
func Init(debug bool) {
	var zl *zap.Logger
	var err error
	if debug {
		zl, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zl, err = cfg.Build()
	}
	if err != nil {
		return
	}
	mu.Lock()
	logger = zl.Sugar()
	mu.Unlock()
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = logger.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func withCat(cat Category, keysAndValues []any) []any {
	return append([]any{"category", string(cat)}, keysAndValues...)
}

// Debug logs a debug-level message with key/value context.
func Debug(cat Category, msg string, keysAndValues ...any) {
	current().Debugw(msg, withCat(cat, keysAndValues)...)
}

// Info logs an info-level message with key/value context.
func Info(cat Category, msg string, keysAndValues ...any) {
	current().Infow(msg, withCat(cat, keysAndValues)...)
}

// Warn logs a warning with key/value context.
func Warn(cat Category, msg string, keysAndValues ...any) {
	current().Warnw(msg, withCat(cat, keysAndValues)...)
}

// Error logs an error-level message with key/value context.
func Error(cat Category, msg string, keysAndValues ...any) {
	current().Errorw(msg, withCat(cat, keysAndValues)...)
}

// ErrorErr logs an error-level message with the error attached as a field.
func ErrorErr(cat Category, msg string, err error, keysAndValues ...any) {
	kv := append([]any{"error", err}, keysAndValues...)
	current().Errorw(msg, withCat(cat, kv)...)
}
