package matroska

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Lacing modes, from bits 1-2 of the block flags.
const (
	lacingNone  = 0
	lacingXiph  = 1
	lacingFixed = 2
	lacingEBML  = 3
)

const (
	flagKeyframe = 0x80
	// blockHeaderMinSize is a one-byte track number, the relative timecode
	// and the flags.
	blockHeaderMinSize = 4
)

var errLacing = errors.New("bad lacing")

// blockHeader is the fixed part of a Block or SimpleBlock payload.
type blockHeader struct {
	track    uint64
	timecode int16
	flags    byte
	size     int
}

func parseBlockHeader(data []byte) (blockHeader, error) {
	track, width, err := decodeVarUint(data, maxSizeLength)
	if err != nil {
		return blockHeader{}, err
	}
	if len(data) < width+3 {
		return blockHeader{}, errors.Wrapf(ErrCorruptStream, "block of %d bytes has no header", len(data))
	}
	return blockHeader{
		track:    track,
		timecode: int16(binary.BigEndian.Uint16(data[width:])),
		flags:    data[width+2],
		size:     width + 3,
	}, nil
}

func (h blockHeader) lacing() int {
	return int(h.flags>>1) & 0x03
}

// decodeLaces splits the payload following a block header into lace sizes.
// It returns the sizes and the offset of the first lace in payload. The
// last lace always takes the remainder, so the sizes add up to
// len(payload) minus the offset.
func decodeLaces(mode int, payload []byte) ([]int, int, error) {
	if mode == lacingNone {
		return []int{len(payload)}, 0, nil
	}
	if len(payload) == 0 {
		return nil, 0, errors.Wrap(errLacing, "missing lace count")
	}

	count := int(payload[0]) + 1
	sizes := make([]int, count)
	pos, total := 1, 0

	switch mode {
	case lacingXiph:
		for i := 0; i < count-1; i++ {
			n := 0
			for {
				if pos >= len(payload) {
					return nil, 0, errors.Wrapf(errLacing, "xiph lace %d size runs past the block", i)
				}
				c := payload[pos]
				pos++
				n += int(c)
				if c != 0xFF {
					break
				}
			}
			sizes[i] = n
			total += n
		}
	case lacingFixed:
		rest := len(payload) - pos
		if rest%count != 0 {
			return nil, 0, errors.Wrapf(errLacing, "%d bytes do not split into %d fixed laces", rest, count)
		}
		for i := range sizes {
			sizes[i] = rest / count
		}
		return sizes, pos, nil
	case lacingEBML:
		if count == 1 {
			break
		}
		first, width, err := decodeVarUint(payload[pos:], maxSizeLength)
		if err != nil {
			return nil, 0, errors.Wrapf(errLacing, "first ebml lace: %v", err)
		}
		pos += width
		if first > uint64(len(payload)) {
			return nil, 0, errors.Wrapf(errLacing, "first ebml lace of %d bytes", first)
		}
		prev := int64(first)
		sizes[0] = int(prev)
		total = int(prev)
		for i := 1; i < count-1; i++ {
			delta, width, err := decodeVarSint(payload[pos:], maxSizeLength)
			if err != nil {
				return nil, 0, errors.Wrapf(errLacing, "ebml lace %d: %v", i, err)
			}
			pos += width
			prev += delta
			if prev < 0 || prev > int64(len(payload)) {
				return nil, 0, errors.Wrapf(errLacing, "ebml lace %d has size %d", i, prev)
			}
			sizes[i] = int(prev)
			total += int(prev)
		}
	}

	last := len(payload) - pos - total
	if last < 0 {
		return nil, 0, errors.Wrapf(errLacing, "laces exceed the block by %d bytes", -last)
	}
	sizes[count-1] = last
	return sizes, pos, nil
}

// blockPayload returns the full payload of b, reading it from the pipe when
// it was not captured. The reader position is restored afterwards.
func (d *Demuxer) blockPayload(b *blockRef) ([]byte, error) {
	if b.data != nil {
		return b.data, nil
	}
	return d.readAt(b.pos, b.size)
}

// readAt reads n bytes at pos and puts the reader back where it was.
func (d *Demuxer) readAt(pos, n uint64) ([]byte, error) {
	saved := d.r.Position()
	if err := d.r.SetPosition(pos); err != nil {
		return nil, err
	}
	data, readErr := d.r.ReadBytes(n)
	if err := d.r.SetPosition(saved); err != nil {
		return nil, err
	}
	return data, readErr
}

// isKeyframe reports whether b starts a decodable frame. The header flag
// only counts for SimpleBlocks; a BlockGroup is a keyframe exactly when it
// has no ReferenceBlock.
func isKeyframe(b *blockRef, hdr blockHeader) bool {
	return !b.reference || (b.simple && hdr.flags&flagKeyframe != 0)
}

// blockPTS is the cluster timecode plus the block's relative time, unknown
// when either is unknown or the sum is negative.
func blockPTS(cluster Timecode, rel int16) Timecode {
	if !cluster.Known {
		return Timecode{}
	}
	v := int64(cluster.Ticks) + int64(rel)
	if v < 0 {
		return Timecode{}
	}
	return knownTimecode(uint64(v))
}

// ticksFromNs converts a duration in nanoseconds into the track's ticks.
func (d *Demuxer) ticksFromNs(t *track, ns uint64) uint64 {
	scale := d.mediaTimeScale(t)
	if scale == 0 {
		return 0
	}
	return uint64(math.Round(float64(ns) / float64(scale)))
}

// decodeBlock expands b into packets on t's packet queue. While the keyframe
// gate is armed, blocks that do not satisfy it are dropped. A malformed lace
// layout drops the block and is only logged.
func (d *Demuxer) decodeBlock(t *track, b *blockRef) error {
	data, err := d.blockPayload(b)
	if err != nil {
		return err
	}
	hdr, err := parseBlockHeader(data)
	if err != nil {
		d.log.Warnf("track %d: block at %d dropped: %v", t.Number, b.pos, err)
		return nil
	}

	keyframe := isKeyframe(b, hdr)
	pts := blockPTS(b.clusterTC, hdr.timecode)

	if d.gate.armed && t.Kind != TrackSubtitle {
		if !d.gate.accepts(t, keyframe, pts) {
			return nil
		}
		d.gate.armed = false
		d.gate.found = pts.Ticks
		d.log.Debugf("keyframe gate released by track %d at %d", t.Number, pts.Ticks)
	}

	payload := data[hdr.size:]
	sizes, offset, err := decodeLaces(hdr.lacing(), payload)
	if err != nil {
		d.log.Warnf("track %d: block at %d dropped: %v", t.Number, b.pos, err)
		return nil
	}

	duration := b.duration
	if !b.hasDuration && t.DefaultDuration > 0 {
		duration = d.ticksFromNs(t, t.DefaultDuration)
	}

	pos := offset
	for i, n := range sizes {
		p := &Packet{
			Track:    t.Number,
			Index:    t.index,
			PTS:      pts,
			KeyFrame: keyframe,
			FilePos:  b.pos + uint64(hdr.size+pos),
			Data:     make([]byte, n),
		}
		copy(p.Data, payload[pos:pos+n])
		if t.Kind != TrackSubtitle {
			p.Duration = duration
		}
		t.packets.push(p)

		if pts.Known {
			if end := pts.Ticks + duration; end > t.EndTimecode {
				t.EndTimecode = end
			}
		}
		pos += n
		if i < len(sizes)-1 {
			if pts.Known && duration > 0 {
				pts = knownTimecode(pts.Ticks + duration)
			} else {
				pts = Timecode{}
			}
		}
	}
	return nil
}
