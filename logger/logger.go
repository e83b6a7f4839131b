package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process-wide logger. It is a no-op until Initialize runs so
	// packages can log from init paths and tests without nil checks.
	Logger *zap.SugaredLogger
	// JSONOutput records whether Initialize selected the JSON encoder.
	JSONOutput bool
)

func init() {
	Logger = zap.NewNop().Sugar()
}

// Initialize builds the global logger.
//
// jsonOutput selects zap's production JSON encoder (for log shippers); otherwise a
// compact console encoder is written to stderr so stdout stays free for command
// output. verbosity is the -v count, see VerbosityToLevel.
func Initialize(jsonOutput bool, verbosity int) error {
	JSONOutput = jsonOutput
	level := zap.NewAtomicLevelAt(VerbosityToLevel(verbosity))

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		zl, err := cfg.Build()
		if err != nil {
			return err
		}
		Logger = zl.Sugar()
		return nil
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	encCfg.EncodeCaller = nil

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		level,
	)
	Logger = zap.New(core).Sugar()
	return nil
}

// Cleanup flushes any buffered log entries.
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// OrNop returns l, or a no-op logger when l is nil. Constructors use it so a
// nil logger argument is always safe.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
