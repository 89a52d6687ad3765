// Package logging builds the process logger from configuration.
package logging

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"liveroom/internal/config"
)

// New returns a logger writing to stdout and, when cfg.File is set, to a
// rotated file. The returned closer flushes and releases the file.
func New(cfg *config.LogConfig) (*zap.Logger, func() error, error) {
	outputs := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}

	var file *lumberjack.Logger
	if cfg.File != "" {
		var err error
		if file, err = fileWriter(cfg); err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(file))
	}

	logger, err := NewWithWriter(cfg, zap.CombineWriteSyncers(outputs...))
	if err != nil {
		return nil, nil, err
	}

	closer := func() error {
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closer, nil
}

// NewWithWriter builds the logger on an arbitrary sink.
func NewWithWriter(cfg *config.LogConfig, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	name := cfg.Level
	if strings.EqualFold(name, "trace") {
		name = "debug"
	}
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch cfg.Format {
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json", "":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, errors.Newf("unknown log format %q", cfg.Format)
	}

	core := zapcore.NewCore(enc, out, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func fileWriter(cfg *config.LogConfig) (*lumberjack.Logger, error) {
	if st, err := os.Stat(cfg.File); err == nil && st.IsDir() {
		return nil, errors.Newf("log file %s is a directory", cfg.File)
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}
