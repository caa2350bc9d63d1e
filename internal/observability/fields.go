package observability

import "go.uber.org/zap"

// Field constructor re-exports so callers log through this package without
// importing zap directly.
//
//nolint:gochecknoglobals // Aliases, not mutable state
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Duration = zap.Duration
	Error    = zap.Error
)
