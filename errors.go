package matroska

import (
	"github.com/pkg/errors"
)

// Errors returned by the demuxer. Callers should match them with errors.Is,
// since most are wrapped with positional context before being returned.
var (
	// ErrTruncated is returned when the stream ends in the middle of a read.
	// It latches the session's end-of-stream flag.
	ErrTruncated = errors.New("matroska: truncated stream")

	// ErrMalformedVarInt is returned when an EBML variable-length integer has
	// no length marker within its allowed width.
	ErrMalformedVarInt = errors.New("matroska: malformed variable-length integer")

	// ErrCorruptStream reports a structural violation of the EBML/Matroska
	// grammar.
	ErrCorruptStream = errors.New("matroska: corrupt stream")

	// ErrNotMatroska is returned by Open when the stream does not start with
	// an EBML header.
	ErrNotMatroska = errors.New("matroska: not a matroska stream")

	// ErrCueOverflow is reported when the cue index exceeds its page cap.
	// It is not fatal: the index keeps the entries parsed so far.
	ErrCueOverflow = errors.New("matroska: cue index overflow")

	// ErrBadFile reports a malformed codec-private blob.
	ErrBadFile = errors.New("matroska: bad codec private data")

	// ErrUnsupportedStream reports a recognized codec that is not handled.
	ErrUnsupportedStream = errors.New("matroska: unsupported stream")

	// ErrEndOfStream is the normal termination signal of packet retrieval
	// and of seeks past the end of the file.
	ErrEndOfStream = errors.New("matroska: end of stream")

	// ErrParserFailure reports an internal invariant violation, such as an
	// unknown element inside a cluster body.
	ErrParserFailure = errors.New("matroska: parser failure")

	// ErrInvalidTrack is returned for a track index out of range or of the
	// wrong kind for the requested operation.
	ErrInvalidTrack = errors.New("matroska: invalid track")

	// ErrNotSeekable is returned when a streaming source is asked to move
	// backwards.
	ErrNotSeekable = errors.New("matroska: source is not seekable")

	// ErrNoPosition is returned by SeekKeyFrame before any packet with a
	// known time has been delivered.
	ErrNoPosition = errors.New("matroska: no packet delivered yet")

	// ErrClosed is returned by every operation on a closed demuxer.
	ErrClosed = errors.New("matroska: demuxer closed")
)

// isEndOfStream reports whether err means the stream simply ran out.
func isEndOfStream(err error) bool {
	return errors.Is(err, ErrEndOfStream) || errors.Is(err, ErrTruncated)
}
