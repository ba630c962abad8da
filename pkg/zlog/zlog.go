package zlog

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Init 初始化全局日志器。logPath 为空时仅输出到控制台。
func Init(logPath string) {
	once.Do(func() {
		logger = build(logPath)
	})
}

func build(logPath string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			zapcore.InfoLevel,
		),
	}

	if logPath != "" {
		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(logPath, "querylink.log"),
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(rotated),
			zapcore.InfoLevel,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

func get() *zap.Logger {
	if logger == nil {
		Init("")
	}
	return logger
}

func Debug(msg string, fields ...zap.Field) { get().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { get().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { get().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { get().Error(msg, fields...) }

// Fatal 记录日志后退出进程
func Fatal(msg string, fields ...zap.Field) { get().Fatal(msg, fields...) }

// Sync 刷新缓冲日志，进程退出前调用
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
