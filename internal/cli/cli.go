package cli

import (
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
	"github.com/pkg/errors"

	matroska "github.com/luispater/matroska-demux"
)

type Options struct {
	LogLevel  string
	Streaming bool
	NoThumb   bool
}

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// NewLoggerFactory returns a pion logger factory writing to w at the named
// level. An empty level keeps the PION_LOG_* environment settings.
func NewLoggerFactory(level string, w io.Writer) (logging.LoggerFactory, error) {
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w
	if level == "" {
		return f, nil
	}
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return nil, errors.Errorf("unknown log level %q", level)
	}
	f.DefaultLogLevel = lvl
	return f, nil
}

// OpenFile opens path and a demuxer over it. The returned close function
// releases both.
func OpenFile(path string, opts Options, stderr io.Writer) (*matroska.Demuxer, func(), error) {
	factory, err := NewLoggerFactory(opts.LogLevel, stderr)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open input")
	}

	demuxOpts := []matroska.Option{
		matroska.WithLoggerFactory(factory),
		matroska.WithThumbnailScan(!opts.NoThumb),
	}
	var d *matroska.Demuxer
	if opts.Streaming {
		d, err = matroska.NewStreamingDemuxer(f, demuxOpts...)
	} else {
		d, err = matroska.NewDemuxer(f, demuxOpts...)
	}
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrapf(err, "demux %s", path)
	}
	return d, func() {
		d.Close()
		_ = f.Close()
	}, nil
}

// ticksToMs converts a track timestamp to milliseconds.
func ticksToMs(ticks, nsPerTick uint64) uint64 {
	return ticks * nsPerTick / 1000000
}
