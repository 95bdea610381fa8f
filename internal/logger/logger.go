package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide sugared logger. Commands call Init once at
// startup; until then it is a nop so package tests stay quiet.
var Log *zap.SugaredLogger

func init() {
	Log = zap.NewNop().Sugar()
}

// Init configures the global logger. With a non-empty logPath the output
// goes to that file (truncated on start), otherwise to stdout.
func Init(verbose bool, logPath string) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	encCfg.EncodeCaller = nil

	// No color escapes when writing to a file.
	if logPath != "" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	var sink zapcore.WriteSyncer
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			sink = zapcore.AddSync(os.Stdout)
			println("failed to open log file: " + err.Error())
		} else {
			sink = zapcore.AddSync(f)
		}
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	Log = zap.New(core).Sugar()
}

// Sync flushes buffered entries.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
