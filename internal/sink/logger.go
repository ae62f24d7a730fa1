package sink

import (
	"strings"

	"github.com/rs/zerolog"
)

// Logger writes lines to a zerolog logger. Failure lines are logged at error
// level, everything else at info.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a sink backed by logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Accept logs line.
func (l *Logger) Accept(line string) {
	switch {
	case strings.HasPrefix(line, FailureMarker):
		l.logger.Error().Msg(strings.TrimPrefix(line, FailureMarker))
	case strings.HasPrefix(line, SuccessMarker):
		l.logger.Info().Bool("success", true).Msg(strings.TrimPrefix(line, SuccessMarker))
	default:
		l.logger.Info().Msg(strings.TrimPrefix(line, ProgressMarker))
	}
}
