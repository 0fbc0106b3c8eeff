package matroska

import (
	"github.com/pion/logging"
)

const (
	// cuePageSize is the number of cue points per index page.
	cuePageSize = 512
	// maxCuePages caps the cue index; entries past it are dropped.
	maxCuePages = 16
	// maxParamSetSize caps one AVC SPS or PPS.
	maxParamSetSize = 128
	// defaultThumbnailCandidates is how many keyframes the thumbnail scan
	// inspects before settling on the largest.
	defaultThumbnailCandidates = 10
	// defaultTimecodeScale is the Matroska default of one millisecond.
	defaultTimecodeScale = 1000000
)

// Option configures a Demuxer at Open time.
type Option func(*options)

type options struct {
	loggerFactory       logging.LoggerFactory
	thumbnailScan       bool
	thumbnailCandidates int
}

func defaultOptions() options {
	return options{
		thumbnailScan:       true,
		thumbnailCandidates: defaultThumbnailCandidates,
	}
}

// WithLoggerFactory sets the factory the demuxer takes its logger from.
// Without it the pion default factory is used, which honours the
// PION_LOG_* environment variables.
func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(o *options) {
		o.loggerFactory = f
	}
}

// WithThumbnailScan enables or disables the keyframe scan run by Open.
func WithThumbnailScan(enabled bool) Option {
	return func(o *options) {
		o.thumbnailScan = enabled
	}
}

// WithThumbnailCandidates sets how many keyframes the thumbnail scan looks
// at. Values below one keep the default.
func WithThumbnailCandidates(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.thumbnailCandidates = n
		}
	}
}
