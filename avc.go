package matroska

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// AVCConfig is the decoded AVCDecoderConfigurationRecord of an AVC track.
type AVCConfig struct {
	Profile       uint8
	Compatibility uint8
	Level         uint8
	// NALLengthSize is the size in bytes of the NAL length prefixes in the
	// track's blocks.
	NALLengthSize int
	SPS           [][]byte
	PPS           [][]byte
}

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// ParseAVCConfig parses the avcC codec private data of a V_MPEG4/ISO/AVC
// track.
func ParseAVCConfig(b []byte) (*AVCConfig, error) {
	if len(b) < 6 {
		return nil, errors.Wrapf(ErrBadFile, "avcC too short (%d bytes)", len(b))
	}
	if b[0] != 1 {
		return nil, errors.Wrapf(ErrBadFile, "unsupported configurationVersion (%d)", b[0])
	}

	cfg := &AVCConfig{
		Profile:       b[1],
		Compatibility: b[2],
		Level:         b[3],
		NALLengthSize: int(b[4]&0x03) + 1,
	}

	var err error
	offset := 6
	cfg.SPS, offset, err = readParamSets(b, offset, int(b[5]&0x1F), "SPS")
	if err != nil {
		return nil, err
	}
	if offset >= len(b) {
		return nil, errors.Wrap(ErrBadFile, "avcC ends before PPS count")
	}
	numPPS := int(b[offset])
	cfg.PPS, _, err = readParamSets(b, offset+1, numPPS, "PPS")
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// readParamSets reads count 16-bit length-prefixed parameter sets starting
// at offset.
func readParamSets(b []byte, offset, count int, kind string) ([][]byte, int, error) {
	sets := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if offset+2 > len(b) {
			return nil, offset, errors.Wrapf(ErrBadFile, "%s %d length past end of avcC", kind, i)
		}
		n := int(binary.BigEndian.Uint16(b[offset:]))
		offset += 2
		if n > maxParamSetSize {
			return nil, offset, errors.Wrapf(ErrBadFile, "%s %d is %d bytes, limit %d", kind, i, n, maxParamSetSize)
		}
		if offset+n > len(b) {
			return nil, offset, errors.Wrapf(ErrBadFile, "%s %d overruns avcC by %d bytes", kind, i, offset+n-len(b))
		}
		set := make([]byte, n)
		copy(set, b[offset:offset+n])
		sets = append(sets, set)
		offset += n
	}
	return sets, offset, nil
}

// AnnexB returns the SPS then PPS NAL units, each behind a four-byte start
// code.
func (c *AVCConfig) AnnexB() []byte {
	var out []byte
	for _, nal := range c.SPS {
		out = append(out, annexBStartCode...)
		out = append(out, nal...)
	}
	for _, nal := range c.PPS {
		out = append(out, annexBStartCode...)
		out = append(out, nal...)
	}
	return out
}
