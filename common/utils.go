package common

import (
	"go.uber.org/zap"
)

// LogOnPanic logs a goroutine panic with its stack, then re-raises it.
// Use as `defer common.LogOnPanic(logger)` at the top of every
// long-lived goroutine.
func LogOnPanic(logger *zap.Logger) {
	if err := recover(); err != nil {
		logger.Error("panic in goroutine", zap.Any("error", err), zap.Stack("stacktrace"))
		panic(err)
	}
}
