package matroska

import (
	"github.com/pion/logging"
)

const logScope = "matroska"

func newLogger(f logging.LoggerFactory) logging.LeveledLogger {
	if f == nil {
		f = logging.NewDefaultLoggerFactory()
	}
	return f.NewLogger(logScope)
}
