// Package logging builds the zap logger shared by the coordinator, the
// sequenced writer, and the status HTTP surface. It follows the same
// development-config-with-stacktraces-off shape srctl's sibling CLI tools in
// this corpus use for a human-facing terminal process, switching to a plain
// JSON production config when the node is told to run non-interactively.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger named "node" at the given level ("debug", "info",
// "warn", "error"; empty defaults to "info"). json selects the production
// encoder (one JSON object per line, suited to log shipping); otherwise a
// colorized console encoder is used, suited to an operator watching a
// terminal.
func New(level string, json bool) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.Named("node"), nil
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return 0, fmt.Errorf("logging: unknown level %q: %w", level, err)
	}
	return lvl, nil
}
