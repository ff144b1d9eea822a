package log

import (
	"go.uber.org/zap"
)

var Logger *zap.Logger

func InitProductionLogger() {
	Logger, _ = zap.NewProduction()
}

func InitDevelopmentLogger() {
	Logger, _ = zap.NewDevelopment()
}

// Default returns the configured logger, falling back to a no-op logger so
// library code never has to nil-check.
func Default() *zap.Logger {
	if Logger == nil {
		return zap.NewNop()
	}
	return Logger
}
