package logger

import (
	"os"

	"github.com/elizandromoreira/feed-control-sub000/pkg/interfaces"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts Zap to LoggerPort.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// NewZapLogger builds a logger for the given level. Production mode emits
// JSON with ISO8601 timestamps; development mode emits colored console
// output with caller info.
func NewZapLogger(level string, isProduction bool) (interfaces.LoggerPort, error) {
	var config zap.Config

	if isProduction {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	zl, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{logger: zl.Sugar()}, nil
}

// convertFields rewrites interfaces.LogField arguments into the key/value
// pairs zap's sugared logger expects.
func convertFields(args ...interface{}) []interface{} {
	out := make([]interface{}, 0, len(args)*2)
	for _, arg := range args {
		if field, ok := arg.(interfaces.LogField); ok {
			out = append(out, field.Key, field.Value)
			continue
		}
		out = append(out, arg)
	}
	return out
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) {
	z.logger.Debugw(msg, convertFields(args...)...)
}

func (z *ZapLogger) Info(msg string, args ...interface{}) {
	z.logger.Infow(msg, convertFields(args...)...)
}

func (z *ZapLogger) Warn(msg string, args ...interface{}) {
	z.logger.Warnw(msg, convertFields(args...)...)
}

func (z *ZapLogger) Error(msg string, args ...interface{}) {
	z.logger.Errorw(msg, convertFields(args...)...)
}

func (z *ZapLogger) Fatal(msg string, args ...interface{}) {
	z.logger.Fatalw(msg, convertFields(args...)...)
	os.Exit(1)
}

func (z *ZapLogger) WithField(key string, value interface{}) interfaces.LoggerPort {
	return &ZapLogger{logger: z.logger.With(key, value)}
}

func (z *ZapLogger) WithStore(storeID string) interfaces.LoggerPort {
	return z.WithField("store_id", storeID)
}

func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}
