package matroska

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Helpers that assemble Matroska files in memory.

func encodeID(id uint32) []byte {
	switch {
	case id > 0xFFFFFF:
		return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	case id > 0xFFFF:
		return []byte{byte(id >> 16), byte(id >> 8), byte(id)}
	case id > 0xFF:
		return []byte{byte(id >> 8), byte(id)}
	}
	return []byte{byte(id)}
}

// encodeVarUint encodes v with exactly width bytes.
func encodeVarUint(v uint64, width int) []byte {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	b[0] |= 0x80 >> uint(width-1)
	return b
}

// encodeSize encodes v with the shortest width that does not collide with
// the reserved unknown-size value.
func encodeSize(v uint64) []byte {
	for w := 1; w < 8; w++ {
		if v < (uint64(1)<<uint(7*w))-1 {
			return encodeVarUint(v, w)
		}
	}
	return encodeVarUint(v, 8)
}

// encodeVarSint encodes a lacing-style signed integer with the shortest
// width that can hold it.
func encodeVarSint(v int64) []byte {
	for w := 1; w <= 8; w++ {
		bias := int64(1)<<uint(7*w-1) - 1
		raw := v + bias
		if raw >= 0 && raw < int64(1)<<uint(7*w)-1 {
			return encodeVarUint(uint64(raw), w)
		}
	}
	panic("value out of range")
}

func element(id uint32, children ...[]byte) []byte {
	payload := bytes.Join(children, nil)
	out := append(encodeID(id), encodeSize(uint64(len(payload)))...)
	return append(out, payload...)
}

func unknownSizeElement(id uint32, children ...[]byte) []byte {
	out := append(encodeID(id), 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	return append(out, bytes.Join(children, nil)...)
}

func uintElement(id uint32, v uint64) []byte {
	n := 1
	for x := v >> 8; x > 0; x >>= 8 {
		n++
	}
	return fixedUintElement(id, v, n)
}

// fixedUintElement always uses width bytes, so offsets computed before the
// value is known stay valid.
func fixedUintElement(id uint32, v uint64, width int) []byte {
	b := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return element(id, b)
}

func floatElement(id uint32, v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return element(id, b)
}

func stringElement(id uint32, s string) []byte {
	return element(id, []byte(s))
}

func ebmlHeader(docType string, docTypeVersion uint64) []byte {
	return element(IDEBMLHeader,
		uintElement(IDEBMLVersion, 1),
		uintElement(IDEBMLReadVersion, 1),
		uintElement(IDEBMLMaxIDLength, 4),
		uintElement(IDEBMLMaxSizeLength, 8),
		stringElement(IDEBMLDocType, docType),
		uintElement(IDEBMLDocTypeVersion, docTypeVersion),
		uintElement(IDEBMLDocTypeReadVersion, 2),
	)
}

func infoElement(durationTicks float64) []byte {
	children := [][]byte{
		uintElement(IDTimestampScale, 1000000),
		stringElement(IDTitle, "synthetic"),
		stringElement(IDMuxingApp, "builder"),
		stringElement(IDWritingApp, "builder"),
	}
	if durationTicks > 0 {
		children = append(children, floatElement(IDDuration, durationTicks))
	}
	return element(IDSegmentInfo, children...)
}

func audioTrack(num uint64, codecID string, rate float64, channels uint64, extra ...[]byte) []byte {
	children := [][]byte{
		uintElement(IDTrackNum, num),
		uintElement(IDTrackUID, num),
		uintElement(IDTrackType, TypeAudio),
		stringElement(IDCodecID, codecID),
		element(IDAudio,
			floatElement(IDSamplingFrequency, rate),
			uintElement(IDChannels, channels),
		),
	}
	return element(IDTrackEntry, append(children, extra...)...)
}

func videoTrack(num uint64, codecID string, private []byte) []byte {
	children := [][]byte{
		uintElement(IDTrackNum, num),
		uintElement(IDTrackUID, num),
		uintElement(IDTrackType, TypeVideo),
		stringElement(IDCodecID, codecID),
		element(IDVideo,
			uintElement(IDPixelWidth, 320),
			uintElement(IDPixelHeight, 240),
		),
	}
	if private != nil {
		children = append(children, element(IDCodecPriv, private))
	}
	return element(IDTrackEntry, children...)
}

func subtitleTrack(num uint64) []byte {
	return element(IDTrackEntry,
		uintElement(IDTrackNum, num),
		uintElement(IDTrackType, TypeSubtitle),
		stringElement(IDCodecID, "S_TEXT/UTF8"),
	)
}

func blockBody(track uint64, rel int16, flags byte, payload []byte) []byte {
	out := encodeSize(track)
	out = append(out, byte(uint16(rel)>>8), byte(rel), flags)
	return append(out, payload...)
}

func simpleBlock(track uint64, rel int16, flags byte, payload []byte) []byte {
	return element(IDSimpleBlock, blockBody(track, rel, flags, payload))
}

func cluster(tc uint64, blocks ...[]byte) []byte {
	return element(IDCluster, append([][]byte{uintElement(IDTimestamp, tc)}, blocks...)...)
}

func cuePoint(time, track, clusterPos uint64) []byte {
	return element(IDCuePoint,
		uintElement(IDCueTime, time),
		element(IDCueTrackPositions,
			uintElement(IDCueTrack, track),
			fixedUintElement(IDCueClusterPosition, clusterPos, 8),
		),
	)
}

func segment(children ...[]byte) []byte {
	return element(IDSegment, children...)
}

// fill returns n bytes starting at seed and counting up.
func fill(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func xiphLaceHeader(sizes []int) []byte {
	out := []byte{byte(len(sizes) - 1)}
	for _, n := range sizes[:len(sizes)-1] {
		for ; n >= 0xFF; n -= 0xFF {
			out = append(out, 0xFF)
		}
		out = append(out, byte(n))
	}
	return out
}

func ebmlLaceHeader(sizes []int) []byte {
	out := []byte{byte(len(sizes) - 1)}
	out = append(out, encodeSize(uint64(sizes[0]))...)
	for i := 1; i < len(sizes)-1; i++ {
		out = append(out, encodeVarSint(int64(sizes[i]-sizes[i-1]))...)
	}
	return out
}

func avcConfigRecord(sps, pps []byte) []byte {
	out := []byte{1, 0x64, 0x00, 0x1F, 0xFF, 0xE1}
	out = append(out, byte(len(sps)>>8), byte(len(sps)))
	out = append(out, sps...)
	out = append(out, 1, byte(len(pps)>>8), byte(len(pps)))
	return append(out, pps...)
}
