package matroska

import (
	"strings"

	"github.com/pkg/errors"
)

// aacSampleRates is the MPEG-4 sampling frequency table; the index of a
// rate is its samplingFrequencyIndex.
var aacSampleRates = [13]uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

func aacFrequencyIndex(rate uint32) (int, bool) {
	for i, r := range aacSampleRates {
		if r == rate {
			return i, true
		}
	}
	return 0, false
}

// aacObjectTypes maps the profile suffix of legacy A_AAC/... codec IDs to
// the MPEG-4 audio object type.
var aacObjectTypes = map[string]uint8{
	"MAIN": 1,
	"LC":   2,
	"SSR":  3,
	"LTP":  4,
	"SBR":  2,
}

// classifyCodec maps a codec ID to a CodecKind by case-sensitive prefix.
// The second result reports whether the demuxer can deliver the codec.
func classifyCodec(kind TrackKind, codecID string) (CodecKind, bool) {
	switch kind {
	case TrackVideo:
		switch {
		case codecID == "V_MPEG4/ISO/AVC":
			return CodecAVC, true
		case codecID == "V_MS/VFW/FOURCC", strings.HasPrefix(codecID, "V_MPEG4/ISO/ASP"):
			return CodecMPEG4, true
		case strings.HasPrefix(codecID, "V_MPEG2"):
			return CodecMPEG2, true
		}
	case TrackAudio:
		switch {
		case strings.HasPrefix(codecID, "A_AAC"):
			return CodecAAC, true
		case strings.HasPrefix(codecID, "A_MPEG/L3"):
			return CodecMP3, true
		case strings.HasPrefix(codecID, "A_AC3"):
			return CodecAC3, true
		case strings.HasPrefix(codecID, "A_VORBIS"):
			return CodecVorbis, false
		case strings.HasPrefix(codecID, "A_DTS"):
			return CodecDTS, false
		case strings.HasPrefix(codecID, "A_EAC3"):
			return CodecEAC3, false
		case strings.HasPrefix(codecID, "A_FLAC"):
			return CodecFLAC, false
		case strings.HasPrefix(codecID, "A_MPEG/L2"):
			return CodecMP2, false
		}
	case TrackSubtitle:
		if strings.HasPrefix(codecID, "S_TEXT/") {
			return CodecText, true
		}
	}
	return CodecNone, false
}

// classifyTracks assigns a codec to every track and activates the first
// supported video, audio and subtitle track. Later tracks of the same kind
// stay parsed but inactive. Per-track failures only disable that track.
func (d *Demuxer) classifyTracks() {
	activated := map[TrackKind]bool{}
	for _, t := range d.tracks {
		codec, supported := classifyCodec(t.Kind, t.CodecID)
		t.Codec = codec

		switch {
		case codec == CodecNone:
			d.log.Warnf("track %d: codec %q not recognized, track disabled", t.Number, t.CodecID)
			continue
		case !supported:
			if codec == CodecVorbis {
				d.log.Infof("track %d: vorbis recognized but not activated", t.Number)
			} else {
				d.log.Warnf("track %d: %v", t.Number, errors.Wrapf(ErrUnsupportedStream, "codec %q", t.CodecID))
			}
			continue
		}

		if err := d.prepareCodec(t); err != nil {
			d.log.Warnf("track %d: %v, track disabled", t.Number, err)
			continue
		}
		if activated[t.Kind] {
			d.log.Debugf("track %d: another %s track is already active", t.Number, t.Kind)
			continue
		}
		activated[t.Kind] = true
		t.active = true
		d.log.Debugf("track %d: %s %s activated", t.Number, t.Kind, codec)
	}
}

// prepareCodec derives the codec-specific state of a track.
func (d *Demuxer) prepareCodec(t *track) error {
	switch t.Codec {
	case CodecAVC:
		cfg, err := ParseAVCConfig(t.CodecPrivate)
		if err != nil {
			return err
		}
		t.avc = cfg
	case CodecAAC:
		// A rate outside the table leaves the index unset without failing.
		if idx, ok := aacFrequencyIndex(uint32(t.Audio.SamplingFreq)); ok {
			t.aacFreqIndex = idx
			t.hasFreqIndex = true
		}
	}
	return nil
}

// aacAudioSpecificConfig builds the two-byte AudioSpecificConfig for an AAC
// track that carries no codec private data.
func (t *track) aacAudioSpecificConfig() ([]byte, bool) {
	if !t.hasFreqIndex {
		return nil, false
	}
	objectType := uint8(2)
	if parts := strings.Split(t.CodecID, "/"); len(parts) >= 3 {
		if ot, ok := aacObjectTypes[parts[2]]; ok {
			objectType = ot
		}
	}
	idx := uint8(t.aacFreqIndex)
	channels := t.Audio.Channels & 0x0F
	return []byte{
		objectType<<3 | idx>>1,
		(idx&1)<<7 | channels<<3,
	}, true
}
