package matroska

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

// Origin selects the reference point of ContentPipe.SetPosition64.
type Origin int

const (
	// OriginBegin positions relative to the start of the stream.
	OriginBegin Origin = iota
	// OriginCurrent positions relative to the current position.
	OriginCurrent
)

// unknownAvailable is what a pipe reports when it cannot tell how many
// bytes remain.
const unknownAvailable = uint64(math.MaxInt64)

// ContentPipe is the byte stream the demuxer reads from.
//
// Read must fill p completely or fail. Every read advances the position, so
// the demuxer saves and restores the position around any out-of-order read.
type ContentPipe interface {
	Read(p []byte) error
	SetPosition64(offset int64, origin Origin) error
	GetPosition64() uint64
	GetAvailableBytes() uint64
}

// readSeekerPipe adapts an io.ReadSeeker into a ContentPipe.
type readSeekerPipe struct {
	r    io.ReadSeeker
	pos  uint64
	size uint64
}

// NewReadSeekerPipe wraps r. The size of the stream is measured once by
// seeking to its end.
func NewReadSeekerPipe(r io.ReadSeeker) (ContentPipe, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "find position")
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "find size")
	}
	if _, err = r.Seek(cur, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "restore position")
	}
	return &readSeekerPipe{r: r, pos: uint64(cur), size: uint64(end)}, nil
}

func (p *readSeekerPipe) Read(b []byte) error {
	n, err := io.ReadFull(p.r, b)
	p.pos += uint64(n)
	if err != nil {
		return err
	}
	return nil
}

func (p *readSeekerPipe) SetPosition64(offset int64, origin Origin) error {
	whence := io.SeekStart
	if origin == OriginCurrent {
		whence = io.SeekCurrent
	}
	pos, err := p.r.Seek(offset, whence)
	if err != nil {
		return err
	}
	p.pos = uint64(pos)
	return nil
}

func (p *readSeekerPipe) GetPosition64() uint64 {
	return p.pos
}

func (p *readSeekerPipe) GetAvailableBytes() uint64 {
	if p.pos >= p.size {
		return 0
	}
	return p.size - p.pos
}

// streamPipe adapts an io.Reader that has no ability to seek. Forward
// repositioning discards bytes; moving backwards fails with ErrNotSeekable.
type streamPipe struct {
	r   io.Reader
	pos uint64
}

// NewStreamPipe wraps a non-seekable reader.
func NewStreamPipe(r io.Reader) ContentPipe {
	return &streamPipe{r: r}
}

func (p *streamPipe) Read(b []byte) error {
	n, err := io.ReadFull(p.r, b)
	p.pos += uint64(n)
	return err
}

func (p *streamPipe) SetPosition64(offset int64, origin Origin) error {
	target := offset
	if origin == OriginCurrent {
		target = int64(p.pos) + offset
	}
	if target < int64(p.pos) {
		return errors.Wrapf(ErrNotSeekable, "seek from %d back to %d", p.pos, target)
	}
	n, err := io.CopyN(io.Discard, p.r, target-int64(p.pos))
	p.pos += uint64(n)
	return err
}

func (p *streamPipe) GetPosition64() uint64 {
	return p.pos
}

func (p *streamPipe) GetAvailableBytes() uint64 {
	return unknownAvailable
}
