package obs

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger 构建运行时默认日志器。debug 为 true 时使用开发配置输出
// DEBUG 级别，否则使用生产配置输出 INFO 级别。
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NopLogger 返回丢弃所有输出的日志器，供测试与默认值使用。
func NopLogger() *zap.Logger { return zap.NewNop() }
