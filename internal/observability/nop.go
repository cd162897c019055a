package observability

import "context"

// nopLogger discards all log entries.
type nopLogger struct{}

// NopLogger returns a logger that discards all entries.
func NopLogger() Logger {
	return &nopLogger{}
}

func (n *nopLogger) Debug(_ string, _ ...Field)           {}
func (n *nopLogger) Info(_ string, _ ...Field)            {}
func (n *nopLogger) Warn(_ string, _ ...Field)            {}
func (n *nopLogger) Error(_ string, _ ...Field)           {}
func (n *nopLogger) Fatal(_ string, _ ...Field)           {}
func (n *nopLogger) With(_ ...Field) Logger               { return n }
func (n *nopLogger) WithContext(_ context.Context) Logger { return n }
func (n *nopLogger) Sync() error                          { return nil }

// Ensure nopLogger implements Logger.
var _ Logger = (*nopLogger)(nil)
