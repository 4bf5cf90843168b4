// Package logging builds the process-wide zap logger.
package logging

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Opts selects the logger's format and verbosity.
type Opts struct {
	Debug   bool   // log debug messages
	JSON    bool   // log in JSON format instead of console text
	Service string // optional "service" field on every message
	UID     bool   // add a random "uid" field on every message
}

// New builds a logger and installs it as zap's global logger, which the codec
// uses for decode diagnostics.
func New(opts Opts) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !opts.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opts.Service != "" {
		logger = logger.With(zap.String("service", opts.Service))
	}
	if opts.UID {
		logger = logger.With(zap.String("uid", uuid.New().String()))
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
