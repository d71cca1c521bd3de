// Package logger - Structured logging backed by zap with file rotation.
package logger

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// CoreLogFileName is the file written when not logging to the console.
	CoreLogFileName = "core.log"

	// TimeLayout is the timestamp layout of every log entry.
	TimeLayout = "2006-01-02 15:04:05.000"
)

var coreLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Config controls where and how logs are written.
type Config struct {
	// Console writes human readable logs to stderr instead of files.
	Console bool `json:"console" yaml:"console" mapstructure:"console"`
	// Verbose enables debug logs.
	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
	// Dir holds the rotated log files.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir" validate:"required_unless=Console true"`
	// MaxSize is the size in megabytes before a file is rotated.
	MaxSize int `json:"max_size" yaml:"max_size" mapstructure:"max_size" validate:"gt=0"`
	// MaxAge is the number of days rotated files are kept.
	MaxAge int `json:"max_age" yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups" validate:"gte=0"`
	// Compress gzips rotated files.
	Compress bool `json:"compress" yaml:"compress" mapstructure:"compress"`
}

// DefaultConfig returns file logging under ./logs.
func DefaultConfig() Config {
	return Config{
		Dir:        "logs",
		MaxSize:    40,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}

// CreateLogger builds a zap logger writing JSON to a rotated file, or
// development-formatted output to stderr in console mode.
//
// Arguments:
//   - cfg: The logging configuration.
//
// Returns:
//   - *zap.Logger: The logger.
//   - error: An error if the log directory cannot be created.
func CreateLogger(cfg Config) (*zap.Logger, error) {
	var core zapcore.Core

	if cfg.Console {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeLayout)
		core = zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stderr),
			coreLevel,
		)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create log dir %s", cfg.Dir)
		}
		rotateConfig := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, CoreLogFileName),
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxAge,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
			Compress:   cfg.Compress,
		}

		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeLayout)
		core = zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotateConfig),
			coreLevel,
		)
	}

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.WarnLevel)), nil
}

// New creates the process logger and applies the verbose flag.
//
// Arguments:
//   - cfg: The logging configuration.
//
// Returns:
//   - *zap.SugaredLogger: The logger handed to every component.
//   - error: An error if the logger cannot be created.
func New(cfg Config) (*zap.SugaredLogger, error) {
	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Verbose {
		SetCoreLevel(zapcore.DebugLevel)
	} else {
		SetCoreLevel(zapcore.InfoLevel)
	}

	zap.ReplaceGlobals(log)
	return log.Sugar(), nil
}

// SetCoreLevel changes the level of every logger created by this package.
func SetCoreLevel(level zapcore.Level) {
	coreLevel.SetLevel(level)
}
