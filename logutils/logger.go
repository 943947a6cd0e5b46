// Package logutils builds the process logger. Every component takes a
// *zap.Logger; this package owns how those loggers are constructed,
// leveled and rotated.
package logutils

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrUnknownLogLevel is returned for levels outside the config enum.
var ErrUnknownLogLevel = errors.New("unknown log level")

// Settings contains the logger configuration, normally filled from
// params.Config log fields.
type Settings struct {
	Enabled         bool
	Level           string
	File            string
	MaxSize         int
	MaxBackups      int
	CompressRotated bool
}

// LvlFromString parses a config-level string (ERROR, WARN, INFO,
// DEBUG, TRACE) into a zap level. TRACE maps to debug, zap's lowest.
func LvlFromString(lvl string) (zapcore.Level, error) {
	switch strings.ToUpper(lvl) {
	case "ERROR":
		return zap.ErrorLevel, nil
	case "WARN":
		return zap.WarnLevel, nil
	case "INFO":
		return zap.InfoLevel, nil
	case "DEBUG", "TRACE":
		return zap.DebugLevel, nil
	default:
		return zap.InfoLevel, errors.Wrap(ErrUnknownLogLevel, lvl)
	}
}

// NewZapLogger builds a logger from settings. Disabled settings yield
// a nop logger that is safe to use everywhere. A configured file gets
// a JSON encoder behind rotation; otherwise a console encoder writes
// to stderr.
func NewZapLogger(settings Settings) (*zap.Logger, error) {
	if !settings.Enabled {
		return zap.NewNop(), nil
	}

	level, err := LvlFromString(settings.Level)
	if err != nil {
		return nil, err
	}

	var core zapcore.Core
	if settings.File != "" {
		syncer := ZapSyncerWithRotation(FileOptions{
			Filename:   settings.File,
			MaxSize:    settings.MaxSize,
			MaxBackups: settings.MaxBackups,
			Compress:   settings.CompressRotated,
		})
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core = zapcore.NewCore(encoder, syncer, level)
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder := zapcore.NewConsoleEncoder(encoderConfig)
		core = zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)
	}

	return zap.New(core, zap.AddCaller()), nil
}
