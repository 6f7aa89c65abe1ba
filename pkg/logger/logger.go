// Package logger constructs the structured logger that pkg/tdag hands to the
// engine facade, which passes it on to the string table and the mapped
// file; they all log through a *zap.SugaredLogger obtained from here.
package logger

import (
	"go.uber.org/zap"
)

// New builds a production zap logger tagged with the given service name,
// returning a SugaredLogger for the ergonomic keyed-field call style used
// throughout this module (Infow/Errorw/...).
func New(service string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return base.Named(service).Sugar(), nil
}

// NewNop returns a logger that discards everything, for tests and for
// callers that don't want the engine's lifecycle events logged.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
