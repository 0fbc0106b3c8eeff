package matroska

import (
	"io"
	"math"

	"github.com/pion/logging"
	"github.com/pkg/errors"
)

// Demuxer is a Matroska demuxer session. It owns the stream position, the
// track table, the cue index and every queued block and packet. A Demuxer
// is not safe for concurrent use.
type Demuxer struct {
	r         *EBMLReader
	log       logging.LeveledLogger
	opts      options
	streaming bool
	closed    bool

	header       *EBMLHeader
	info         SegmentInfo
	infoParsed   bool
	tracksParsed bool
	segmentStart uint64
	segmentEnd   uint64
	seekHead     seekHeadIndex
	tracks       []*track
	cues         cueIndex
	cuesTried    map[uint64]bool

	firstCluster uint64
	hasCluster   bool
	cluster      clusterState
	gate         keyframeGate
	scan         *clusterScan
	thumb        *thumbnailScan
	thumbnail    Timecode
	// lastPTS is the time of the last packet handed to the caller.
	lastPTS Timecode
}

// Open parses the EBML header and the segment up to the first cluster.
// On seekable sources it also runs the thumbnail scan. isStreaming marks a
// source that can only move forward: SeekHead jumps, the thumbnail scan and
// SetPosition are then unavailable.
func Open(pipe ContentPipe, isStreaming bool, opts ...Option) (*Demuxer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Demuxer{
		r:         NewEBMLReader(pipe),
		log:       newLogger(o.loggerFactory),
		opts:      o,
		streaming: isStreaming,
		cuesTried: map[uint64]bool{},
	}
	if err := d.parseHeader(); err != nil {
		return nil, err
	}
	if err := d.parseSegment(); err != nil {
		return nil, err
	}
	if !isStreaming && o.thumbnailScan {
		if err := d.scanThumbnail(); err != nil {
			return nil, errors.WithMessage(err, "thumbnail scan")
		}
	}

	d.log.Infof("opened %s stream: %d tracks, %d cue points", d.header.DocType, len(d.tracks), len(d.cues.points))
	return d, nil
}

// NewDemuxer creates a new Matroska demuxer from r.
func NewDemuxer(r io.ReadSeeker, opts ...Option) (*Demuxer, error) {
	pipe, err := NewReadSeekerPipe(r)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create pipe")
	}
	return Open(pipe, false, opts...)
}

// NewStreamingDemuxer creates a new Matroska demuxer from an
// io.Reader that has no ability to seek on the input stream.
func NewStreamingDemuxer(r io.Reader, opts ...Option) (*Demuxer, error) {
	return Open(NewStreamPipe(r), true, opts...)
}

// Close releases every queued block and packet and the cue index. Further
// calls return ErrClosed.
func (d *Demuxer) Close() {
	if d.closed {
		return
	}
	d.reset()
	d.cues.reset()
	d.tracks = nil
	d.closed = true
}

func (d *Demuxer) trackAt(index int) (*track, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if index < 0 || index >= len(d.tracks) {
		return nil, errors.Wrapf(ErrInvalidTrack, "index %d of %d", index, len(d.tracks))
	}
	return d.tracks[index], nil
}

// activeTrack returns the track of the given kind chosen at classification.
func (d *Demuxer) activeTrack(kind TrackKind) *track {
	for _, t := range d.tracks {
		if t.active && t.Kind == kind {
			return t
		}
	}
	return nil
}

// GetTrackCount returns the number of tracks declared by the file,
// including those that are not active.
func (d *Demuxer) GetTrackCount() int {
	return len(d.tracks)
}

// GetTrackCodec returns the codec of the track at index. Tracks that were
// not activated report CodecNone.
func (d *Demuxer) GetTrackCodec(index int) (CodecKind, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return CodecNone, err
	}
	if !t.active {
		return CodecNone, nil
	}
	return t.Codec, nil
}

// GetTrackKind returns whether the track at index is video, audio,
// subtitle or something else.
func (d *Demuxer) GetTrackKind(index int) (TrackKind, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return TrackOther, err
	}
	return t.Kind, nil
}

// GetTrackInfo returns all track-level information available for a given
// track.
func (d *Demuxer) GetTrackInfo(index int) (*TrackInfo, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return nil, err
	}
	info := t.TrackInfo
	info.CodecPrivate = append([]byte(nil), t.CodecPrivate...)
	return &info, nil
}

// GetFileInfo gets all top-level (whole file) info available for a given
// demuxer.
func (d *Demuxer) GetFileInfo() (*SegmentInfo, error) {
	if d.closed {
		return nil, ErrClosed
	}
	info := d.info
	return &info, nil
}

// GetAudioProps returns the audio properties of the track at index, which
// must be an audio track.
func (d *Demuxer) GetAudioProps(index int) (AudioProps, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return AudioProps{}, err
	}
	if t.Kind != TrackAudio {
		return AudioProps{}, errors.Wrapf(ErrInvalidTrack, "track %d is %s, not audio", index, t.Kind)
	}
	return AudioProps{
		SampleRate:       uint32(math.Round(t.Audio.SamplingFreq)),
		OutputSampleRate: uint32(math.Round(t.Audio.OutputSamplingFreq)),
		Channels:         t.Audio.Channels,
		BitDepth:         t.Audio.BitDepth,
	}, nil
}

// GetVideoProps returns the video properties of the track at index, which
// must be a video track.
func (d *Demuxer) GetVideoProps(index int) (VideoProps, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return VideoProps{}, err
	}
	if t.Kind != TrackVideo {
		return VideoProps{}, errors.Wrapf(ErrInvalidTrack, "track %d is %s, not video", index, t.Kind)
	}
	v := t.Video
	props := VideoProps{
		PixelWidth:    v.PixelWidth,
		PixelHeight:   v.PixelHeight,
		DisplayWidth:  v.DisplayWidth,
		DisplayHeight: v.DisplayHeight,
		FrameRate:     v.FrameRate,
		Interlaced:    v.Interlaced,
	}
	if v.DisplayHeight > 0 {
		props.DisplayAspect = float64(v.DisplayWidth) / float64(v.DisplayHeight)
	}
	return props, nil
}

func (d *Demuxer) mediaTimeScale(t *track) uint64 {
	return uint64(math.Round(t.TimecodeScale * float64(d.info.TimecodeScale)))
}

// GetMediaTimeScale returns the number of nanoseconds in one timestamp
// tick of the track at index.
func (d *Demuxer) GetMediaTimeScale(index int) (uint64, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return 0, err
	}
	return d.mediaTimeScale(t), nil
}

// GetDuration returns the segment duration in nanoseconds, or zero when
// the file does not declare one.
func (d *Demuxer) GetDuration() uint64 {
	if d.info.Duration <= 0 {
		return 0
	}
	return uint64(d.info.Duration * float64(d.info.TimecodeScale))
}

// GetNextPacket returns the next packet of the track at index. Packets of
// one track come in file order. ErrEndOfStream marks the end of the file.
func (d *Demuxer) GetNextPacket(index int) (*Packet, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return nil, err
	}
	if !t.playable() {
		return nil, errors.Wrapf(ErrInvalidTrack, "track %d is not enabled", index)
	}

	for {
		if p, ok := t.packets.pop(); ok {
			return d.deliver(p), nil
		}
		if b, ok := t.blocks.pop(); ok {
			if err = d.decodeBlock(t, b); err != nil {
				return nil, d.streamError(err)
			}
			continue
		}
		if d.r.done {
			return nil, ErrEndOfStream
		}
		if err = d.step(); err != nil {
			return nil, d.streamError(err)
		}
	}
}

// ReadPacket returns the next packet of any enabled track, in file order.
func (d *Demuxer) ReadPacket() (*Packet, error) {
	if d.closed {
		return nil, ErrClosed
	}
	for {
		if t := d.nextQueued(); t != nil {
			if p, ok := t.packets.pop(); ok {
				return d.deliver(p), nil
			}
			b, _ := t.blocks.pop()
			if err := d.decodeBlock(t, b); err != nil {
				return nil, d.streamError(err)
			}
			continue
		}
		if d.r.done {
			return nil, ErrEndOfStream
		}
		if err := d.step(); err != nil {
			return nil, d.streamError(err)
		}
	}
}

func (d *Demuxer) deliver(p *Packet) *Packet {
	if p.PTS.Known {
		d.lastPTS = p.PTS
	}
	return p
}

// nextQueued returns the playable track holding the queued item that comes
// first in the file, or nil when nothing is queued.
func (d *Demuxer) nextQueued() *track {
	var next *track
	var nextPos uint64
	for _, t := range d.tracks {
		if !t.playable() {
			continue
		}
		var pos uint64
		if p, ok := t.packets.peek(); ok {
			pos = p.FilePos
		} else if b, ok := t.blocks.peek(); ok {
			pos = b.pos
		} else {
			continue
		}
		if next == nil || pos < nextPos {
			next, nextPos = t, pos
		}
	}
	return next
}

// streamError turns the end of the data into ErrEndOfStream and latches
// the session.
func (d *Demuxer) streamError(err error) error {
	if isEndOfStream(err) {
		d.r.done = true
		if errors.Is(err, ErrEndOfStream) {
			return err
		}
		return errors.Wrap(ErrEndOfStream, err.Error())
	}
	return err
}

// EnableTrack lets the track at index be demuxed again.
func (d *Demuxer) EnableTrack(index int) error {
	t, err := d.trackAt(index)
	if err != nil {
		return err
	}
	t.userEnable = true
	return nil
}

// DisableTrack stops demuxing the track at index and drops whatever it has
// queued.
func (d *Demuxer) DisableTrack(index int) error {
	t, err := d.trackAt(index)
	if err != nil {
		return err
	}
	t.userEnable = false
	t.drain()
	return nil
}

// GetDecoderConfig returns the data a decoder needs before the first packet
// of the track at index. AVC tracks get their SPS and PPS in Annex-B form;
// AAC tracks without codec private data get a synthesized
// AudioSpecificConfig; other tracks get their codec private data.
func (d *Demuxer) GetDecoderConfig(index int) ([]byte, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return nil, err
	}
	switch {
	case t.Codec == CodecAVC && t.avc != nil:
		return t.avc.AnnexB(), nil
	case t.Codec == CodecAAC && len(t.CodecPrivate) == 0:
		if asc, ok := t.aacAudioSpecificConfig(); ok {
			return asc, nil
		}
	}
	return append([]byte(nil), t.CodecPrivate...), nil
}

// GetAVCConfig returns the parsed avcC record of an active AVC track.
func (d *Demuxer) GetAVCConfig(index int) (*AVCConfig, error) {
	t, err := d.trackAt(index)
	if err != nil {
		return nil, err
	}
	if t.avc == nil {
		return nil, errors.Wrapf(ErrInvalidTrack, "track %d has no AVC configuration", index)
	}
	return t.avc, nil
}

// GetThumbnailTimestamp returns the time in nanoseconds of the keyframe the
// thumbnail scan picked, or zero when none was found.
func (d *Demuxer) GetThumbnailTimestamp() uint64 {
	if !d.thumbnail.Known {
		return 0
	}
	return d.thumbnail.Ticks * d.info.TimecodeScale
}

// GetCues returns a copy of the cue index. The returned slice may be of
// length 0.
func (d *Demuxer) GetCues() []CuePoint {
	return append([]CuePoint(nil), d.cues.points...)
}

// GetEBMLHeader returns the parsed EBML header.
func (d *Demuxer) GetEBMLHeader() EBMLHeader {
	return *d.header
}
