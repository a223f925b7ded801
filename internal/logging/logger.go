package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given environment. "production" gets JSON output;
// anything else gets the colored development encoder. Both write to stderr so
// stdout stays free for command output.
func New(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if strings.EqualFold(env, "production") {
		config = zap.NewProductionConfig()
		config.OutputPaths = []string{"stderr"}
		config.ErrorOutputPaths = []string{"stderr"}
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	return config.Build(zap.AddStacktrace(zap.DPanicLevel))
}
