package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for the -v flag count.
const (
	VerbosityDefault = 0 // No flags: lifecycle, transitions, warnings
	VerbosityDebug   = 1 // -v: + frame routing, skipped records, guard decisions
	VerbosityTrace   = 2 // -vv: + raw frame payloads
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels
//
// Mapping:
//
//	0 (none) -> InfoLevel
//	1+ (-v)  -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	if verbosity <= VerbosityDefault {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// ShouldLogTrace returns true for verbosity >= 2 (-vv)
func ShouldLogTrace(verbosity int) bool {
	return verbosity >= VerbosityTrace
}

// LevelName describes the verbosity for startup banners
func LevelName(verbosity int) string {
	switch {
	case verbosity >= VerbosityTrace:
		return "trace (-vv)"
	case verbosity == VerbosityDebug:
		return "debug (-v)"
	default:
		return "info"
	}
}
