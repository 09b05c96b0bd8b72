// Package logging builds the structured JSON logger shared by every command.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the timestamp format written to log lines.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Options select where and how verbosely to log.
type Options struct {
	// Path is a file to append to, or "stderr"/"stdout". Empty means stderr.
	Path  string
	Level string
}

// New builds a production JSON logger with timestamp/level/message/caller
// keys. File outputs get their parent directory created.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if strings.TrimSpace(opts.Level) != "" {
		if err := level.UnmarshalText([]byte(strings.TrimSpace(opts.Level))); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}

	out := strings.TrimSpace(opts.Path)
	switch out {
	case "":
		out = "stderr"
	case "stderr", "stdout":
	default:
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	config := zap.NewProductionConfig()
	config.Level = level
	config.OutputPaths = []string{out}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeLayout)
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
