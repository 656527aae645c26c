// Package debug provides the core's diagnostic logger. Measurement must
// never write to the monitored program's output by surprise, so logging is
// off unless COVMETER_DEBUG selects a level (trace, debug, info, warn).
package debug

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

var logger log.Logger

func init() {
	level, enabled := parseLevel(os.Getenv("COVMETER_DEBUG"))
	if !enabled {
		logger = log.Logger{
			Level:  log.PanicLevel,
			Writer: &log.IOWriter{Writer: io.Discard},
		}
		return
	}
	logger = log.Logger{
		Level:  level,
		Writer: &log.IOWriter{Writer: os.Stderr},
	}
}

func parseLevel(s string) (log.Level, bool) {
	switch strings.ToLower(s) {
	case "trace":
		return log.TraceLevel, true
	case "debug":
		return log.DebugLevel, true
	case "info":
		return log.InfoLevel, true
	case "warn", "warning":
		return log.WarnLevel, true
	case "error":
		return log.ErrorLevel, true
	default:
		return log.InfoLevel, false
	}
}

// Logger returns the shared diagnostic logger.
func Logger() *log.Logger {
	return &logger
}
