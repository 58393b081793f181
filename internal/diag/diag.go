// Package diag provides the structured trace logging used across the
// classpath loader and the executor: class loads, class-initialization
// transitions, and opcode faults, in the spirit of a real JVM's
// -Xlog:class+init output, without growing into an observability layer.
package diag

import (
	"go.uber.org/zap"
)

// Logger wraps a *zap.SugaredLogger with the small set of trace points
// this interpreter cares about.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a Logger at info level, or debug level when verbose is true.
func New(verbose bool) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{s: base.Sugar()}, nil
}

// Noop returns a Logger that discards everything, for use in tests that
// don't want to pay for a real zap core.
func Noop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

func (l *Logger) ClassLoaded(class string, source string) {
	l.s.Debugw("loaded class", "class", class, "source", source)
}

func (l *Logger) ClassInitializing(class string) {
	l.s.Debugw("initializing class", "class", class)
}

func (l *Logger) ClassInitSkipped(class string, reason string) {
	l.s.Debugw("clinit skipped", "class", class, "reason", reason)
}

func (l *Logger) ClassInitialized(class string) {
	l.s.Debugw("class initialized", "class", class)
}

func (l *Logger) OpcodeFault(class string, pc int, opcode byte, err error) {
	l.s.Errorw("opcode fault", "class", class, "pc", pc, "opcode", opcode, "error", err)
}

// Success reports normal termination at info level, the one line spec.md
// §6 requires a run to always print, regardless of -v/--verbose.
func (l *Logger) Success(class string) {
	l.s.Infow("execution finished", "class", class)
}

func (l *Logger) Sync() {
	_ = l.s.Sync()
}
