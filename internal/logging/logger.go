package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging surface every component depends on.
// Nothing in this repository reaches for a package-level logging global;
// a Logger is always passed in by the constructor of the thing that uses it.
type Logger interface {
	Debug(cat Category, msg string, fields ...Field)
	Info(cat Category, msg string, fields ...Field)
	Warn(cat Category, msg string, fields ...Field)
	Error(cat Category, msg string, fields ...Field)

	// Sync flushes any buffered log entries. Call before process exit.
	Sync() error
}

// Config controls where and how log lines are written.
type Config struct {
	FilePath string // rotating JSON log file; empty disables the file sink
	Level    string // debug | info | warn | error
	MaxSizeMB int
	MaxBackups int
}

func NewDefaultConfig() Config {
	return Config{
		FilePath:   "./logs/tcplb.log",
		Level:      "info",
		MaxSizeMB:  50,
		MaxBackups: 5,
	}
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a zap-backed Logger with a JSON file core (rotated via
// lumberjack) teed with a human-readable console core on stderr.
func New(cfg Config) Logger {
	level := parseLevel(cfg.Level)

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level)

	cores := []zapcore.Core{consoleCore}
	if cfg.FilePath != "" {
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		writer := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(writer), level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return &zapLogger{z: z}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (l *zapLogger) with(cat Category, fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("category", string(cat)))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func (l *zapLogger) Debug(cat Category, msg string, fields ...Field) {
	l.z.Debug(msg, l.with(cat, fields)...)
}

func (l *zapLogger) Info(cat Category, msg string, fields ...Field) {
	l.z.Info(msg, l.with(cat, fields)...)
}

func (l *zapLogger) Warn(cat Category, msg string, fields ...Field) {
	l.z.Warn(msg, l.with(cat, fields)...)
}

func (l *zapLogger) Error(cat Category, msg string, fields ...Field) {
	l.z.Error(msg, l.with(cat, fields)...)
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

// Nop returns a Logger that discards everything, useful in tests.
func Nop() Logger {
	return &zapLogger{z: zap.NewNop()}
}
