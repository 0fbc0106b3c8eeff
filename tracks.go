package matroska

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// track is the session-owned state of one track: the declared information
// plus activation flags and the block and packet queues.
type track struct {
	TrackInfo

	index      int
	active     bool
	userEnable bool

	avc          *AVCConfig
	aacFreqIndex int
	hasFreqIndex bool

	blocks  queue[*blockRef]
	packets queue[*Packet]
}

// playable reports whether blocks of the track should be demuxed.
func (t *track) playable() bool {
	return t.active && t.userEnable
}

func (t *track) drain() {
	t.blocks.clear()
	t.packets.clear()
}

// parseTracks parses track information from the Matroska file.
//
// Each TrackEntry becomes one track record, appended in file order. Track
// numbers are the IDs blocks refer to and need not be dense; use
// findIndexByNum to map them to table indices.
func (d *Demuxer) parseTracks(size uint64) error {
	if d.tracksParsed {
		return d.r.Skip(size)
	}

	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		if id != IDTrackEntry {
			d.log.Debugf("skipping element 0x%X in Tracks", id)
			return nil
		}
		info, err := d.parseTrackEntry(size)
		if err != nil {
			return errors.WithMessage(err, "failed to parse track entry")
		}
		if d.findIndexByNum(info.Number) >= 0 {
			return errors.Wrapf(ErrCorruptStream, "duplicate track number %d", info.Number)
		}
		d.tracks = append(d.tracks, &track{
			TrackInfo:  *info,
			index:      len(d.tracks),
			userEnable: true,
		})
		return nil
	})
	if err != nil {
		return err
	}

	d.tracksParsed = true
	d.classifyTracks()
	return nil
}

// parseTrackEntry parses a single track entry. Elements the demuxer has no
// use for are skipped.
func (d *Demuxer) parseTrackEntry(size uint64) (*TrackInfo, error) {
	t := &TrackInfo{
		Enabled:       true, // Default values
		Default:       true,
		Lacing:        true,
		TimecodeScale: 1.0,
		Language:      "eng",
	}

	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		var v uint64
		switch id {
		case IDTrackNum:
			t.Number, err = d.r.ReadUint(size)
		case IDTrackUID:
			t.UID, err = d.r.ReadUint(size)
		case IDTrackType:
			v, err = d.r.ReadUint(size)
			t.Type = uint8(v)
			t.Kind = trackKindFromType(v)
		case IDFlagEnabled:
			v, err = d.r.ReadUint(size)
			t.Enabled = v != 0
		case IDFlagDefault:
			v, err = d.r.ReadUint(size)
			t.Default = v != 0
		case IDFlagForced:
			v, err = d.r.ReadUint(size)
			t.Forced = v != 0
		case IDFlagLacing:
			v, err = d.r.ReadUint(size)
			t.Lacing = v != 0
		case IDDefaultDuration:
			t.DefaultDuration, err = d.r.ReadUint(size)
		case IDTrackTimecodeScale:
			t.TimecodeScale, err = d.r.ReadFloat(size)
		case IDTrackName:
			t.Name, err = d.r.ReadString(size)
		case IDLanguage:
			t.Language, err = d.r.ReadString(size)
		case IDCodecID:
			t.CodecID, err = d.r.ReadString(size)
		case IDCodecPriv:
			t.CodecPrivate, err = d.r.ReadBytes(size)
		case IDCodecName:
			t.CodecName, err = d.r.ReadString(size)
		case IDCodecDelay:
			t.CodecDelay, err = d.r.ReadUint(size)
		case IDSeekPreRoll:
			t.SeekPreRoll, err = d.r.ReadUint(size)
		case IDVideo:
			err = d.parseVideoTrack(size, t)
		case IDAudio:
			err = d.parseAudioTrack(size, t)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if t.Number == 0 {
		return nil, errors.Wrap(ErrCorruptStream, "track entry without a track number")
	}
	if t.TimecodeScale <= 0 {
		t.TimecodeScale = 1.0
	}
	if t.Kind == TrackVideo && t.Video.FrameRate == 0 && t.DefaultDuration > 0 {
		t.Video.FrameRate = 1e9 / float64(t.DefaultDuration)
	}
	return t, nil
}

// parseVideoTrack parses the Video master of a track entry. Any child the
// Matroska schema does not define for Video is an error.
func (d *Demuxer) parseVideoTrack(size uint64, t *TrackInfo) error {
	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		var v uint64
		switch id {
		case IDPixelWidth:
			v, err = d.r.ReadUint(size)
			t.Video.PixelWidth = uint32(v)
		case IDPixelHeight:
			v, err = d.r.ReadUint(size)
			t.Video.PixelHeight = uint32(v)
		case IDDisplayWidth:
			v, err = d.r.ReadUint(size)
			t.Video.DisplayWidth = uint32(v)
		case IDDisplayHeight:
			v, err = d.r.ReadUint(size)
			t.Video.DisplayHeight = uint32(v)
		case IDFlagInterlaced:
			v, err = d.r.ReadUint(size)
			t.Video.Interlaced = v == 1
		case IDFrameRate:
			t.Video.FrameRate, err = d.r.ReadFloat(size)
		case IDFieldOrder, IDStereoMode, IDAlphaMode,
			IDPixelCropBottom, IDPixelCropTop, IDPixelCropLeft, IDPixelCropRight,
			IDDisplayUnit, IDAspectRatioType, IDColourSpace, IDGammaValue,
			IDColour, IDProjection, IDVoid, IDCRC32:
		default:
			err = errors.Wrapf(ErrCorruptStream, "unknown video element 0x%X", id)
		}
		return err
	})
	if err != nil {
		return err
	}

	// Set display dimensions to pixel dimensions if not specified
	if t.Video.DisplayWidth == 0 {
		t.Video.DisplayWidth = t.Video.PixelWidth
	}
	if t.Video.DisplayHeight == 0 {
		t.Video.DisplayHeight = t.Video.PixelHeight
	}
	return nil
}

// parseAudioTrack parses the Audio master of a track entry, with the same
// strictness as parseVideoTrack.
func (d *Demuxer) parseAudioTrack(size uint64, t *TrackInfo) error {
	// Set defaults
	t.Audio.Channels = 1
	t.Audio.SamplingFreq = 8000.0

	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		var v uint64
		switch id {
		case IDSamplingFrequency:
			t.Audio.SamplingFreq, err = d.r.ReadFloat(size)
		case IDOutputSamplingFrequency:
			t.Audio.OutputSamplingFreq, err = d.r.ReadFloat(size)
		case IDChannels:
			v, err = d.r.ReadUint(size)
			t.Audio.Channels = uint8(v)
		case IDBitDepth:
			v, err = d.r.ReadUint(size)
			t.Audio.BitDepth = uint8(v)
		case IDChannelPositions, IDEmphasis, IDVoid, IDCRC32:
		default:
			err = errors.Wrapf(ErrCorruptStream, "unknown audio element 0x%X", id)
		}
		return err
	})
	if err != nil {
		return err
	}

	// Set output sampling frequency if not specified
	if t.Audio.OutputSamplingFreq == 0 {
		t.Audio.OutputSamplingFreq = t.Audio.SamplingFreq
	}
	return nil
}

// findIndexByNum maps a track number to its index in the track table, or
// -1 when no track carries that number.
func (d *Demuxer) findIndexByNum(num uint64) int {
	return slices.IndexFunc(d.tracks, func(t *track) bool {
		return t.Number == num
	})
}
