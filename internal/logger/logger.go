package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"roomgate/backend/internal/config"
)

// 日志文件轮转参数
const (
	rotateMaxSizeMB  = 100
	rotateMaxBackups = 3
	rotateMaxAgeDays = 28
)

// NewLogger 按配置创建日志记录器
//
// 开发模式使用彩色控制台输出，生产模式输出 JSON；配置了文件时同时写入文件并按大小轮转。
// 无法识别的级别按 info 处理。
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	sink, err := newSink(cfg.File)
	if err != nil {
		return nil, err
	}

	opts := []zap.Option{zap.AddCaller(), zap.Fields(zap.String("service", "roomgate"))}
	if cfg.Development {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel), zap.Development())
	}
	return zap.New(zapcore.NewCore(newEncoder(cfg.Development), sink, level), opts...), nil
}

// NewDevelopmentLogger 命令行工具使用的调试级控制台日志
func NewDevelopmentLogger() *zap.Logger {
	logger, err := NewLogger(config.LogConfig{Level: "debug", Development: true})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newEncoder(development bool) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder

	if development {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// newSink 标准输出，配置了文件时再加一路按大小轮转的文件输出
func newSink(file string) (zapcore.WriteSyncer, error) {
	stdout := zapcore.Lock(os.Stdout)
	if file == "" {
		return stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, err
	}
	return zapcore.NewMultiWriteSyncer(stdout, zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    rotateMaxSizeMB,
		MaxBackups: rotateMaxBackups,
		MaxAge:     rotateMaxAgeDays,
		Compress:   true,
	})), nil
}
