package logger

import "go.uber.org/zap/zapcore"

// Verbosity levels for the repeated -v flag.
const (
	VerbosityQuiet = 0 // warnings and errors
	VerbosityInfo  = 1 // -v: + lifecycle, job outcomes
	VerbosityDebug = 2 // -vv: + per-stage broadcasts, registry churn
)

// VerbosityToLevel maps a -v count to a zap level.
//
//	0     -> WarnLevel
//	1     -> InfoLevel
//	2+    -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityQuiet:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// LevelName returns a human-readable name for a verbosity level.
func LevelName(verbosity int) string {
	switch {
	case verbosity <= VerbosityQuiet:
		return "Quiet"
	case verbosity == VerbosityInfo:
		return "Info (-v)"
	default:
		return "Debug (-vv)"
	}
}
