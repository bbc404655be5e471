package logger

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap and carries the service/action fields every log line
// in this system is expected to have.
type Logger struct {
	z *zap.Logger
}

type Config struct {
	Level     string `mapstructure:"level"`
	Directory string `mapstructure:"directory"`
}

// New builds a logger for the given service. Lines always go to stdout as
// JSON; when cfg.Directory is set a rotated file sink is added as well.
func New(service string, cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encCfg)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
	}

	if cfg.Directory != "" {
		runStamp := time.Now().UTC().Format("2006-01-02")
		rotated := &lumberjack.Logger{
			Filename:   fmt.Sprintf("%s/%s-%s.log", cfg.Directory, service, runStamp),
			MaxSize:    100, // MB
			MaxBackups: 7,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotated), level))
	}

	hostname, _ := os.Hostname()
	z := zap.New(zapcore.NewTee(cores...)).With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	)
	return &Logger{z: z}, nil
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Action returns a child logger tagged with the action being performed.
func (l *Logger) Action(action string) *Logger {
	return &Logger{z: l.z.With(zap.String("action", action))}
}

// With returns a child logger with an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With(zap.String(key, value))}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.z.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.z.Error(msg, fields...)
}

func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}
