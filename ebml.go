package matroska

import (
	"math"

	"github.com/pkg/errors"
)

// EBML element IDs for Matroska
const (
	IDEBMLHeader             = 0x1A45DFA3
	IDEBMLVersion            = 0x4286
	IDEBMLReadVersion        = 0x42F7
	IDEBMLMaxIDLength        = 0x42F2
	IDEBMLMaxSizeLength      = 0x42F3
	IDEBMLDocType            = 0x4282
	IDEBMLDocTypeVersion     = 0x4287
	IDEBMLDocTypeReadVersion = 0x4285

	// Global elements, legal inside any master
	IDVoid  = 0xEC
	IDCRC32 = 0xBF

	// Segment
	IDSegment = 0x18538067

	// Meta Seek Information
	IDSeekHead = 0x114D9B74
	IDSeek     = 0x4DBB
	IDSeekID   = 0x53AB
	IDSeekPos  = 0x53AC

	// Segment Information
	IDSegmentInfo      = 0x1549A966
	IDSegmentUID       = 0x73A4
	IDSegmentFilename  = 0x7384
	IDPrevUID          = 0x3CB923
	IDPrevFilename     = 0x3C83AB
	IDNextUID          = 0x3EB923
	IDNextFilename     = 0x3E83BB
	IDSegmentFamily    = 0x4444
	IDChapterTranslate = 0x6924
	IDTimestampScale   = 0x2AD7B1
	IDDuration         = 0x4489
	IDDateUTC          = 0x4461
	IDTitle            = 0x7BA9
	IDMuxingApp        = 0x4D80
	IDWritingApp       = 0x5741

	// Track
	IDTracks             = 0x1654AE6B
	IDTrackEntry         = 0xAE
	IDTrackNum           = 0xD7
	IDTrackUID           = 0x73C5
	IDTrackType          = 0x83
	IDFlagEnabled        = 0xB9
	IDFlagDefault        = 0x88
	IDFlagForced         = 0x55AA
	IDFlagLacing         = 0x9C
	IDDefaultDuration    = 0x23E383
	IDTrackTimecodeScale = 0x23314F
	IDTrackName          = 0x536E
	IDLanguage           = 0x22B59C
	IDCodecID            = 0x86
	IDCodecPriv          = 0x63A2
	IDCodecName          = 0x258688
	IDCodecDelay         = 0x56AA
	IDSeekPreRoll        = 0x56BB
	IDVideo              = 0xE0
	IDAudio              = 0xE1

	// Video
	IDFlagInterlaced    = 0x9A
	IDFieldOrder        = 0x9D
	IDStereoMode        = 0x53B8
	IDAlphaMode         = 0x53C0
	IDPixelWidth        = 0xB0
	IDPixelHeight       = 0xBA
	IDPixelCropBottom   = 0x54AA
	IDPixelCropTop      = 0x54BB
	IDPixelCropLeft     = 0x54CC
	IDPixelCropRight    = 0x54DD
	IDDisplayWidth      = 0x54B0
	IDDisplayHeight     = 0x54BA
	IDDisplayUnit       = 0x54B2
	IDAspectRatioType   = 0x54B3
	IDColourSpace       = 0x2EB524
	IDGammaValue        = 0x2FB523
	IDFrameRate         = 0x2383E3
	IDColour            = 0x55B0
	IDProjection        = 0x7670

	// Audio
	IDSamplingFrequency       = 0xB5
	IDOutputSamplingFrequency = 0x78B5
	IDChannels                = 0x9F
	IDChannelPositions        = 0x7D7B
	IDBitDepth                = 0x6264
	IDEmphasis                = 0x52F1

	// Cluster
	IDCluster         = 0x1F43B675
	IDTimestamp       = 0xE7
	IDSilentTracks    = 0x5854
	IDClusterPosition = 0xA7
	IDPrevSize        = 0xAB
	IDSimpleBlock     = 0xA3
	IDBlockGroup      = 0xA0
	IDEncryptedBlock  = 0xAF

	// Block group
	IDBlock             = 0xA1
	IDBlockAdditions    = 0x75A1
	IDBlockDuration     = 0x9B
	IDReferencePriority = 0xFA
	IDReferenceBlock    = 0xFB
	IDCodecState        = 0xA4
	IDDiscardPadding    = 0x75A2
	IDSlices            = 0x8E

	// Cues
	IDCues               = 0x1C53BB6B
	IDCuePoint           = 0xBB
	IDCueTime            = 0xB3
	IDCueTrackPositions  = 0xB7
	IDCueTrack           = 0xF7
	IDCueClusterPosition = 0xF1
	IDCueRelativePos     = 0xF0
	IDCueDuration        = 0xB2
	IDCueBlockNumber     = 0x5378
	IDCueCodecState      = 0xEA
	IDCueReference       = 0xDB

	// Chapters
	IDChapters = 0x1043A770

	// Tags
	IDTags = 0x1254C367

	// Attachments
	IDAttachments = 0x1941A469
)

const (
	maxIDLength   = 4
	maxSizeLength = 8
)

// EBMLReader reads EBML primitives from a ContentPipe. Every read advances
// the pipe's position. A short read latches the done flag, after which the
// owning session treats the stream as finished.
type EBMLReader struct {
	pipe ContentPipe
	done bool
	buf  [8]byte
}

// NewEBMLReader creates a new EBML reader
func NewEBMLReader(p ContentPipe) *EBMLReader {
	return &EBMLReader{pipe: p}
}

func (er *EBMLReader) read(p []byte) error {
	if err := er.pipe.Read(p); err != nil {
		er.done = true
		return errors.Wrapf(ErrTruncated, "reading %d bytes before offset %d: %v", len(p), er.pipe.GetPosition64(), err)
	}
	return nil
}

// Position returns the current position
func (er *EBMLReader) Position() uint64 {
	return er.pipe.GetPosition64()
}

// SetPosition moves the reader to an absolute offset.
func (er *EBMLReader) SetPosition(pos uint64) error {
	if pos == er.Position() {
		return nil
	}
	if err := er.pipe.SetPosition64(int64(pos), OriginBegin); err != nil {
		return errors.Wrapf(err, "set position %d", pos)
	}
	return nil
}

// Skip advances the reader by n bytes without reading them.
func (er *EBMLReader) Skip(n uint64) error {
	if n == 0 {
		return nil
	}
	if n > er.pipe.GetAvailableBytes() {
		er.done = true
		return errors.Wrapf(ErrTruncated, "skip %d bytes past end of stream", n)
	}
	if err := er.pipe.SetPosition64(int64(n), OriginCurrent); err != nil {
		er.done = true
		return errors.Wrapf(ErrTruncated, "skip %d bytes: %v", n, err)
	}
	return nil
}

// vintWidth returns the total width in bytes announced by the leading byte
// of a variable-length integer, or 0 when no marker bit is set.
func vintWidth(first byte) int {
	for i := 0; i < 8; i++ {
		if first&(0x80>>uint(i)) != 0 {
			return i + 1
		}
	}
	return 0
}

// ReadVarID reads an EBML element ID. The length marker stays part of the
// returned value.
func (er *EBMLReader) ReadVarID(maxLength int) (uint32, int, error) {
	b := er.buf[:1]
	if err := er.read(b); err != nil {
		return 0, 0, err
	}
	width := vintWidth(b[0])
	if width == 0 || width > maxLength {
		return 0, 1, errors.Wrapf(ErrMalformedVarInt, "element ID lead byte 0x%02X", b[0])
	}
	id := uint64(b[0])
	if width > 1 {
		rest := er.buf[1:width]
		if err := er.read(rest); err != nil {
			return 0, 1, err
		}
		for _, c := range rest {
			id = id<<8 | uint64(c)
		}
	}
	return uint32(id), width, nil
}

// ReadVarUint reads an EBML variable-length unsigned integer, the encoding
// used for element sizes. The marker bit is removed.
func (er *EBMLReader) ReadVarUint(maxLength int) (uint64, int, error) {
	b := er.buf[:1]
	if err := er.read(b); err != nil {
		return 0, 0, err
	}
	width := vintWidth(b[0])
	if width == 0 || width > maxLength {
		return 0, 1, errors.Wrapf(ErrMalformedVarInt, "lead byte 0x%02X exceeds %d bytes", b[0], maxLength)
	}
	value := uint64(b[0]) & (0xFF >> uint(width))
	if width > 1 {
		rest := er.buf[1:width]
		if err := er.read(rest); err != nil {
			return 0, 1, err
		}
		for _, c := range rest {
			value = value<<8 | uint64(c)
		}
	}
	return value, width, nil
}

// ReadVarSint reads an EBML lacing-style signed integer: the unsigned value
// re-centred around zero.
func (er *EBMLReader) ReadVarSint(maxLength int) (int64, int, error) {
	raw, width, err := er.ReadVarUint(maxLength)
	if err != nil {
		return 0, width, err
	}
	return recentre(raw, width), width, nil
}

func recentre(raw uint64, width int) int64 {
	return int64(raw) - (int64(1)<<(uint(7*width)-1) - 1)
}

// decodeVarUint decodes a variable-length unsigned integer from the head of
// b.
func decodeVarUint(b []byte, maxLength int) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, errors.Wrap(ErrTruncated, "empty varint")
	}
	width := vintWidth(b[0])
	if width == 0 || width > maxLength {
		return 0, 0, errors.Wrapf(ErrMalformedVarInt, "lead byte 0x%02X exceeds %d bytes", b[0], maxLength)
	}
	if len(b) < width {
		return 0, 0, errors.Wrapf(ErrTruncated, "varint needs %d bytes, have %d", width, len(b))
	}
	value := uint64(b[0]) & (0xFF >> uint(width))
	for _, c := range b[1:width] {
		value = value<<8 | uint64(c)
	}
	return value, width, nil
}

// decodeVarSint decodes a lacing-style signed integer from the head of b.
func decodeVarSint(b []byte, maxLength int) (int64, int, error) {
	raw, width, err := decodeVarUint(b, maxLength)
	if err != nil {
		return 0, 0, err
	}
	return recentre(raw, width), width, nil
}

// isUnknownSize reports whether a size field of the given width carries the
// reserved "unknown" value (all value bits set).
func isUnknownSize(size uint64, width int) bool {
	return size == (uint64(1)<<uint(7*width))-1
}

// ReadUint reads a big-endian unsigned integer of 0 to 8 bytes.
func (er *EBMLReader) ReadUint(size uint64) (uint64, error) {
	if size > 8 {
		return 0, errors.Wrapf(ErrCorruptStream, "%d-byte unsigned integer", size)
	}
	b := er.buf[:size]
	if err := er.read(b); err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// ReadInt reads a big-endian two's complement integer of 0 to 8 bytes.
func (er *EBMLReader) ReadInt(size uint64) (int64, error) {
	v, err := er.ReadUint(size)
	if err != nil || size == 0 {
		return 0, err
	}
	shift := 64 - 8*uint(size)
	return int64(v<<shift) >> shift, nil
}

// ReadFloat reads a 4 or 8 byte IEEE-754 value. An empty element reads as 0.
func (er *EBMLReader) ReadFloat(size uint64) (float64, error) {
	switch size {
	case 0:
		return 0, nil
	case 4:
		v, err := er.ReadUint(4)
		if err != nil {
			return 0, err
		}
		return float32FromBits(uint32(v)), nil
	case 8:
		v, err := er.ReadUint(8)
		if err != nil {
			return 0, err
		}
		return float64FromBits(v), nil
	}
	return 0, errors.Wrapf(ErrCorruptStream, "%d-byte float", size)
}

// float32FromBits rebuilds a single precision value from its bit pattern
// by sign, exponent and mantissa.
func float32FromBits(bits uint32) float64 {
	sign := bits >> 31
	exp := int((bits >> 23) & 0xFF)
	mant := uint64(bits & 0x7FFFFF)
	var v float64
	switch exp {
	case 0:
		v = math.Ldexp(float64(mant), -149)
	case 0xFF:
		if mant != 0 {
			return math.NaN()
		}
		v = math.Inf(1)
	default:
		v = math.Ldexp(float64(mant|1<<23), exp-150)
	}
	if sign != 0 {
		v = math.Copysign(v, -1)
	}
	return v
}

// float64FromBits is float32FromBits for double precision.
func float64FromBits(bits uint64) float64 {
	sign := bits >> 63
	exp := int((bits >> 52) & 0x7FF)
	mant := bits & (1<<52 - 1)
	var v float64
	switch exp {
	case 0:
		v = math.Ldexp(float64(mant), -1074)
	case 0x7FF:
		if mant != 0 {
			return math.NaN()
		}
		v = math.Inf(1)
	default:
		v = math.Ldexp(float64(mant|1<<52), exp-1075)
	}
	if sign != 0 {
		v = math.Copysign(v, -1)
	}
	return v
}

// readChunkSize bounds each allocation step of ReadBytes when the pipe
// cannot tell how much data is left.
const readChunkSize = 1 << 20

// ReadBytes reads size raw bytes into a fresh slice. When the pipe does not
// know its length the slice grows one chunk at a time, so a declared size
// the stream cannot back fails with ErrTruncated after reading what exists.
func (er *EBMLReader) ReadBytes(size uint64) ([]byte, error) {
	avail := er.pipe.GetAvailableBytes()
	if size > avail {
		er.done = true
		return nil, errors.Wrapf(ErrTruncated, "%d-byte element exceeds stream", size)
	}
	if avail != unknownAvailable || size <= readChunkSize {
		data := make([]byte, size)
		if err := er.read(data); err != nil {
			return nil, err
		}
		return data, nil
	}

	data := make([]byte, 0, readChunkSize)
	for remaining := size; remaining > 0; {
		n := min(remaining, readChunkSize)
		off := len(data)
		data = append(data, make([]byte, n)...)
		if err := er.read(data[off:]); err != nil {
			return nil, errors.WithMessagef(err, "%d-byte element", size)
		}
		remaining -= n
	}
	return data, nil
}

// ReadString reads a UTF-8 or ASCII string, dropping trailing NUL padding.
func (er *EBMLReader) ReadString(size uint64) (string, error) {
	data, err := er.ReadBytes(size)
	if err != nil {
		return "", err
	}
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return string(data), nil
}

// ReadElementHeader reads only the element ID and size, not the data.
// The returned width is the number of header bytes consumed.
func (er *EBMLReader) ReadElementHeader() (uint32, uint64, int, error) {
	id, idWidth, err := er.ReadVarID(maxIDLength)
	if err != nil {
		return 0, 0, idWidth, errors.WithMessage(err, "failed to read element ID")
	}
	size, sizeWidth, err := er.ReadVarUint(maxSizeLength)
	if err != nil {
		return id, 0, idWidth + sizeWidth, errors.WithMessagef(err, "failed to read size of element 0x%X", id)
	}
	if isUnknownSize(size, sizeWidth) {
		size = unknownElementSize
	}
	return id, size, idWidth + sizeWidth, nil
}

// unknownElementSize marks a master element whose size field is reserved.
const unknownElementSize = math.MaxUint64

// forEachChild walks the children of a master element whose payload of size
// bytes starts at the current position. fn may leave part of a child
// unread; the reader is realigned to the next sibling afterwards.
func (er *EBMLReader) forEachChild(size uint64, fn func(id uint32, size uint64) error) error {
	end := er.Position() + size
	for er.Position() < end {
		id, childSize, _, err := er.ReadElementHeader()
		if err != nil {
			return err
		}
		start := er.Position()
		if childSize == unknownElementSize || start+childSize > end {
			return errors.Wrapf(ErrCorruptStream, "element 0x%X at %d overflows its parent", id, start)
		}
		if err = fn(id, childSize); err != nil {
			return err
		}
		next := start + childSize
		switch pos := er.Position(); {
		case pos < next:
			if err = er.Skip(next - pos); err != nil {
				return err
			}
		case pos > next:
			return errors.Wrapf(ErrParserFailure, "element 0x%X overran its size by %d bytes", id, pos-next)
		}
	}
	return nil
}
