package cli

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	matroska "github.com/luispater/matroska-demux"
)

// lastCueMs is how long the final subtitle stays up when nothing follows it.
const lastCueMs = 2000

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type trackWriter interface {
	WritePacket(p *matroska.Packet) error
	Close() error
}

// rawWriter writes packet payloads unchanged.
type rawWriter struct {
	w *bufio.Writer
	c io.Closer
}

func (r *rawWriter) WritePacket(p *matroska.Packet) error {
	_, err := r.w.Write(p.Data)
	return err
}

func (r *rawWriter) Close() error {
	if err := r.w.Flush(); err != nil {
		_ = r.c.Close()
		return err
	}
	return r.c.Close()
}

// annexBWriter turns length-prefixed AVC access units into an Annex-B
// elementary stream, preceded by the SPS and PPS.
type annexBWriter struct {
	rawWriter
	nalLength int
	header    []byte
}

func (a *annexBWriter) WritePacket(p *matroska.Packet) error {
	if a.header != nil {
		if _, err := a.w.Write(a.header); err != nil {
			return err
		}
		a.header = nil
	}
	out, err := lengthPrefixedToAnnexB(p.Data, a.nalLength)
	if err != nil {
		return errors.WithMessagef(err, "packet at %d", p.FilePos)
	}
	_, err = a.w.Write(out)
	return err
}

func lengthPrefixedToAnnexB(data []byte, nalLength int) ([]byte, error) {
	out := make([]byte, 0, len(data)+8)
	for pos := 0; pos < len(data); {
		if pos+nalLength > len(data) {
			return nil, errors.Errorf("NAL length prefix truncated at %d", pos)
		}
		var n uint32
		for _, b := range data[pos : pos+nalLength] {
			n = n<<8 | uint32(b)
		}
		pos += nalLength
		if uint64(pos)+uint64(n) > uint64(len(data)) {
			return nil, errors.Errorf("NAL unit of %d bytes overruns packet at %d", n, pos)
		}
		out = binary.BigEndian.AppendUint32(out, 1)
		out = append(out, data[pos:pos+int(n)]...)
		pos += int(n)
	}
	return out, nil
}

// srtWriter writes text subtitle packets as SRT. A cue ends where the next
// one starts since subtitle packets carry no duration.
type srtWriter struct {
	rawWriter
	nsPerTick uint64
	index     int
	pending   *matroska.Packet
}

func (s *srtWriter) WritePacket(p *matroska.Packet) error {
	if !p.PTS.Known {
		return nil
	}
	if s.pending != nil {
		if err := s.flush(ticksToMs(p.PTS.Ticks, s.nsPerTick)); err != nil {
			return err
		}
	}
	s.pending = p
	return nil
}

func (s *srtWriter) flush(endMs uint64) error {
	s.index++
	start := ticksToMs(s.pending.PTS.Ticks, s.nsPerTick)
	if endMs < start {
		endMs = start
	}
	_, err := s.w.WriteString(formatSRTEntry(s.index, start, endMs, s.pending.Data))
	s.pending = nil
	return err
}

func (s *srtWriter) Close() error {
	if s.pending != nil {
		end := ticksToMs(s.pending.PTS.Ticks, s.nsPerTick) + lastCueMs
		if err := s.flush(end); err != nil {
			_ = s.rawWriter.Close()
			return err
		}
	}
	return s.rawWriter.Close()
}

func formatSRTEntry(index int, startMs, endMs uint64, data []byte) string {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if text == "" {
		text = " "
	}
	return fmt.Sprintf("%d\n%s --> %s\n%s\n\n", index, formatSRTTime(startMs), formatSRTTime(endMs), text)
}

func formatSRTTime(ms uint64) string {
	hours := ms / 3600000
	ms %= 3600000
	minutes := ms / 60000
	ms %= 60000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, ms/1000, ms%1000)
}

func trackExt(codec matroska.CodecKind) string {
	switch codec {
	case matroska.CodecAVC:
		return "h264"
	case matroska.CodecMPEG4:
		return "m4v"
	case matroska.CodecMPEG2:
		return "m2v"
	case matroska.CodecAAC:
		return "aac"
	case matroska.CodecMP3:
		return "mp3"
	case matroska.CodecAC3:
		return "ac3"
	case matroska.CodecText:
		return "srt"
	}
	return "bin"
}

func newTrackWriter(d *matroska.Demuxer, index int, path string) (trackWriter, error) {
	codec, err := d.GetTrackCodec(index)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create output")
	}
	raw := rawWriter{w: bufio.NewWriter(f), c: f}

	switch codec {
	case matroska.CodecAVC:
		cfg, err := d.GetAVCConfig(index)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &annexBWriter{rawWriter: raw, nalLength: cfg.NALLengthSize, header: cfg.AnnexB()}, nil
	case matroska.CodecText:
		scale, err := d.GetMediaTimeScale(index)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if _, err = raw.w.Write(utf8BOM); err != nil {
			_ = f.Close()
			return nil, err
		}
		return &srtWriter{rawWriter: raw, nsPerTick: scale}, nil
	}
	return &raw, nil
}

// Extract writes every active track to its own file in dir and returns the
// packet count per track index.
func Extract(d *matroska.Demuxer, dir, base string) (map[int]int, error) {
	writers := map[int]trackWriter{}
	closeAll := func() error {
		var first error
		for _, w := range writers {
			if err := w.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for i := 0; i < d.GetTrackCount(); i++ {
		codec, err := d.GetTrackCodec(i)
		if err != nil || codec == matroska.CodecNone {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s.track%d.%s", base, i, trackExt(codec)))
		w, err := newTrackWriter(d, i, path)
		if err != nil {
			_ = closeAll()
			return nil, errors.WithMessagef(err, "track %d", i)
		}
		writers[i] = w
	}

	counts := map[int]int{}
	for {
		p, err := d.ReadPacket()
		if errors.Is(err, matroska.ErrEndOfStream) {
			break
		}
		if err != nil {
			_ = closeAll()
			return counts, err
		}
		w, ok := writers[p.Index]
		if !ok {
			continue
		}
		if err = w.WritePacket(p); err != nil {
			_ = closeAll()
			return counts, errors.WithMessagef(err, "track %d", p.Index)
		}
		counts[p.Index]++
	}
	return counts, closeAll()
}
