package matroska

// TrackKind classifies a track by its Matroska TrackType.
type TrackKind uint8

const (
	TrackOther TrackKind = iota
	TrackVideo
	TrackAudio
	TrackSubtitle
)

// Matroska TrackType values
const (
	TypeVideo    = 1
	TypeAudio    = 2
	TypeComplex  = 3
	TypeLogo     = 0x10
	TypeSubtitle = 0x11
	TypeButtons  = 0x12
	TypeControl  = 0x20
)

func trackKindFromType(t uint64) TrackKind {
	switch t {
	case TypeVideo:
		return TrackVideo
	case TypeAudio:
		return TrackAudio
	case TypeSubtitle:
		return TrackSubtitle
	}
	return TrackOther
}

func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackSubtitle:
		return "subtitle"
	}
	return "other"
}

// CodecKind is the closed set of codecs the demuxer recognizes.
type CodecKind uint8

const (
	CodecNone CodecKind = iota
	CodecAVC
	CodecMPEG4
	CodecMPEG2
	CodecAAC
	CodecMP3
	CodecAC3
	CodecText
	// Recognized but never activated.
	CodecVorbis
	CodecDTS
	CodecEAC3
	CodecFLAC
	CodecMP2
)

var codecNames = [...]string{
	CodecNone:   "none",
	CodecAVC:    "avc",
	CodecMPEG4:  "mpeg4",
	CodecMPEG2:  "mpeg2",
	CodecAAC:    "aac",
	CodecMP3:    "mp3",
	CodecAC3:    "ac3",
	CodecText:   "text",
	CodecVorbis: "vorbis",
	CodecDTS:    "dts",
	CodecEAC3:   "eac3",
	CodecFLAC:   "flac",
	CodecMP2:    "mp2",
}

func (c CodecKind) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return "unknown"
}

// SegmentInfo holds the segment-level information of a file.
type SegmentInfo struct {
	UID           [16]byte
	Filename      string
	PrevUID       [16]byte
	PrevFilename  string
	NextUID       [16]byte
	NextFilename  string
	TimecodeScale uint64
	// Duration is in timecode ticks; multiply by TimecodeScale for ns.
	Duration     float64
	DateUTC      int64
	DateUTCValid bool
	Title        string
	MuxingApp    string
	WritingApp   string
}

// VideoInfo holds the video-specific fields of a track.
type VideoInfo struct {
	PixelWidth    uint32
	PixelHeight   uint32
	DisplayWidth  uint32
	DisplayHeight uint32
	Interlaced    bool
	FrameRate     float64
}

// AudioInfo holds the audio-specific fields of a track.
type AudioInfo struct {
	SamplingFreq       float64
	OutputSamplingFreq float64
	Channels           uint8
	BitDepth           uint8
}

// TrackInfo describes one track as declared in the Tracks element.
type TrackInfo struct {
	Number          uint64
	UID             uint64
	Type            uint8
	Kind            TrackKind
	Enabled         bool
	Default         bool
	Forced          bool
	Lacing          bool
	DefaultDuration uint64
	TimecodeScale   float64
	Name            string
	Language        string
	CodecID         string
	CodecName       string
	CodecPrivate    []byte
	CodecDelay      uint64
	SeekPreRoll     uint64
	Codec           CodecKind
	Video           VideoInfo
	Audio           AudioInfo
	// EndTimecode is the highest end time, in ticks, of any packet produced
	// for the track so far.
	EndTimecode uint64
}

// AudioProps are the decoder-facing properties of an audio track.
type AudioProps struct {
	SampleRate       uint32
	OutputSampleRate uint32
	Channels         uint8
	BitDepth         uint8
}

// VideoProps are the decoder-facing properties of a video track.
type VideoProps struct {
	PixelWidth    uint32
	PixelHeight   uint32
	DisplayWidth  uint32
	DisplayHeight uint32
	DisplayAspect float64
	FrameRate     float64
	Interlaced    bool
}

// Timecode is a time in segment timecode ticks that may be unknown.
type Timecode struct {
	Ticks uint64
	Known bool
}

func knownTimecode(t uint64) Timecode {
	return Timecode{Ticks: t, Known: true}
}

// Packet is one access unit produced from a block lace.
type Packet struct {
	// Track is the track number as stored in the file; Index is the track's
	// position in the track table.
	Track uint64
	Index int
	PTS   Timecode
	// Duration is in ticks. Subtitle packets leave it zero.
	Duration uint64
	KeyFrame bool
	FilePos  uint64
	Data     []byte
}

// CuePoint is one entry of the cue index.
type CuePoint struct {
	Track uint64
	Time  uint64
	// ClusterPosition is relative to the start of the segment payload.
	ClusterPosition uint64
	BlockNumber     uint64
}
