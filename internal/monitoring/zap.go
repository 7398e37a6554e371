package monitoring

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogger builds the production JSON logger used by the binaries.
// verbose lowers the level to debug.
func NewZapLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// UseZap routes Logf through l at info level. A nil logger mutes Logf.
func UseZap(l *zap.Logger) {
	if l == nil {
		SetLogger(nil)
		return
	}
	SetLogger(l.Sugar().Infof)
}
