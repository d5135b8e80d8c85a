package debug

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
	With().Timestamp().Logger()

// SetLogger replaces the logger used for debug output
func SetLogger(l zerolog.Logger) {
	logger = l
}

// Logger returns the logger used for debug output
func Logger() *zerolog.Logger {
	return &logger
}

// DebugHeader prints debug header if debugging is enabled
func DebugHeader(enabled bool) {
	if enabled {
		logger.Debug().Msg("=== DEBUG START ===")
	}
}

// DebugFooter prints debug footer if debugging is enabled
func DebugFooter(enabled bool) {
	if enabled {
		logger.Debug().Msg("=== DEBUG END ===")
	}
}

// DebugOutput prints debug output if debugging is enabled
func DebugOutput(enabled bool, format string, args ...interface{}) {
	if enabled {
		logger.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

// DebugTiming measures and logs execution time if debugging is enabled
func DebugTiming(enabled bool, operation string) func() {
	if !enabled {
		return func() {}
	}

	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("starting")

	return func() {
		logger.Debug().Str("operation", operation).Dur("took", time.Since(start)).Msg("completed")
	}
}
