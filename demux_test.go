package matroska

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBytes(t *testing.T, data []byte, opts ...Option) *Demuxer {
	t.Helper()
	pipe, err := NewReadSeekerPipe(bytes.NewReader(data))
	require.NoError(t, err)
	d, err := Open(pipe, false, opts...)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func audioFile(track []byte, clusters ...[]byte) []byte {
	children := append([][]byte{infoElement(0), element(IDTracks, track)}, clusters...)
	return append(ebmlHeader("matroska", 2), segment(children...)...)
}

// seekClusters is a video track 1 with a keyframe at the start of every
// second and an audio track 2. The video keyframe at 1000 is the largest.
func seekClusters() [][]byte {
	return [][]byte{
		cluster(0,
			simpleBlock(1, 0, 0x80, fill(50, 0)),
			simpleBlock(2, 0, 0x80, fill(10, 100)),
			simpleBlock(1, 40, 0x00, fill(30, 1)),
		),
		cluster(1000,
			simpleBlock(1, 0, 0x80, fill(80, 2)),
			simpleBlock(2, 5, 0x80, fill(10, 101)),
			simpleBlock(1, 40, 0x00, fill(30, 3)),
		),
		cluster(2000,
			simpleBlock(1, 0, 0x80, fill(60, 4)),
			simpleBlock(2, 0, 0x80, fill(10, 102)),
		),
	}
}

// seekFile lays out info, tracks, an optional Cues element built from the
// cluster offsets, then the clusters.
func seekFile(cues func(offsets []uint64) []byte) []byte {
	info := infoElement(3000)
	tracks := element(IDTracks,
		videoTrack(1, "V_MPEG2", nil),
		audioTrack(2, "A_AC3", 48000, 2),
	)
	clusters := seekClusters()

	var cuesElem []byte
	if cues != nil {
		cuesElem = cues(make([]uint64, len(clusters)))
	}
	offsets := make([]uint64, len(clusters))
	pos := uint64(len(info) + len(tracks) + len(cuesElem))
	for i, c := range clusters {
		offsets[i] = pos
		pos += uint64(len(c))
	}
	if cues != nil {
		cuesElem = cues(offsets)
	}

	children := append([][]byte{info, tracks, cuesElem}, clusters...)
	return append(ebmlHeader("matroska", 2), segment(children...)...)
}

func validCues(offsets []uint64) []byte {
	return element(IDCues,
		cuePoint(0, 1, offsets[0]),
		cuePoint(1000, 1, offsets[1]),
		cuePoint(2000, 1, offsets[2]),
	)
}

func corruptCues([]uint64) []byte {
	// A CueTime where a CuePoint belongs.
	return element(IDCues, uintElement(IDCueTime, 0))
}

func TestOpenAudioTrack(t *testing.T) {
	d := openBytes(t, audioFile(
		audioTrack(1, "A_AAC", 44100, 2),
		cluster(0, simpleBlock(1, 0, 0x80, fill(100, 0))),
	))

	require.Equal(t, 1, d.GetTrackCount())
	props, err := d.GetAudioProps(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), props.SampleRate)
	assert.Equal(t, uint32(44100), props.OutputSampleRate)
	assert.Equal(t, uint8(2), props.Channels)

	codec, err := d.GetTrackCodec(0)
	require.NoError(t, err)
	assert.Equal(t, CodecAAC, codec)

	p, err := d.GetNextPacket(0)
	require.NoError(t, err)
	assert.Len(t, p.Data, 100)
	assert.Equal(t, fill(100, 0), p.Data)
	assert.Equal(t, knownTimecode(0), p.PTS)
	assert.True(t, p.KeyFrame)

	_, err = d.GetNextPacket(0)
	assert.True(t, errors.Is(err, ErrEndOfStream), "got %v", err)
	_, err = d.GetNextPacket(0)
	assert.True(t, errors.Is(err, ErrEndOfStream), "got %v", err)
}

func TestXiphLacedBlock(t *testing.T) {
	payload := append(xiphLaceHeader([]int{10, 20, 70}), fill(100, 0)...)
	d := openBytes(t, audioFile(
		audioTrack(1, "A_AAC", 44100, 2),
		cluster(0, simpleBlock(1, 0, 0x80|lacingXiph<<1, payload)),
	))

	var sizes []int
	var pts []Timecode
	for {
		p, err := d.GetNextPacket(0)
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(p.Data))
		pts = append(pts, p.PTS)
	}
	assert.Equal(t, []int{10, 20, 70}, sizes)
	// Without a duration only the first lace has a timestamp.
	assert.Equal(t, []Timecode{knownTimecode(0), {}, {}}, pts)
}

func TestLacedBlockDefaultDuration(t *testing.T) {
	sizes := []int{7, 9, 11, 13}
	payload := append(ebmlLaceHeader(sizes), fill(40, 0)...)
	d := openBytes(t, audioFile(
		audioTrack(1, "A_MPEG/L3", 48000, 2, uintElement(IDDefaultDuration, 20000000)),
		cluster(100, simpleBlock(1, 10, 0x80|lacingEBML<<1, payload)),
	))

	offset := 0
	for i, n := range sizes {
		p, err := d.GetNextPacket(0)
		require.NoError(t, err)
		assert.Equal(t, knownTimecode(uint64(110+20*i)), p.PTS)
		assert.Equal(t, uint64(20), p.Duration)
		assert.Equal(t, fill(40, 0)[offset:offset+n], p.Data)
		offset += n
	}

	info, err := d.GetTrackInfo(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(190), info.EndTimecode)
}

func TestBlockGroup(t *testing.T) {
	d := openBytes(t, audioFile(
		videoTrack(1, "V_MPEG2", nil),
		cluster(0,
			element(IDBlockGroup,
				element(IDBlock, blockBody(1, 0, 0, fill(20, 0))),
				uintElement(IDBlockDuration, 33),
			),
			element(IDBlockGroup,
				element(IDBlock, blockBody(1, 33, 0, fill(20, 1))),
				uintElement(IDReferenceBlock, 0xDF),
			),
		),
	), WithThumbnailScan(false))

	p, err := d.GetNextPacket(0)
	require.NoError(t, err)
	assert.True(t, p.KeyFrame)
	assert.Equal(t, uint64(33), p.Duration)

	p, err = d.GetNextPacket(0)
	require.NoError(t, err)
	assert.False(t, p.KeyFrame)
	assert.Equal(t, knownTimecode(33), p.PTS)
}

func TestNegativeBlockTimecode(t *testing.T) {
	d := openBytes(t, audioFile(
		audioTrack(1, "A_AC3", 48000, 2),
		cluster(5, simpleBlock(1, -10, 0x80, fill(8, 0))),
	))
	p, err := d.GetNextPacket(0)
	require.NoError(t, err)
	assert.False(t, p.PTS.Known)
}

func TestSubtitlePacketsHaveNoDuration(t *testing.T) {
	data := append(ebmlHeader("matroska", 2), segment(
		infoElement(0),
		element(IDTracks, audioTrack(1, "A_AC3", 48000, 2), subtitleTrack(2)),
		cluster(0, element(IDBlockGroup,
			element(IDBlock, blockBody(2, 0, 0, []byte("hello"))),
			uintElement(IDBlockDuration, 1500),
		)),
	)...)
	d := openBytes(t, data)

	codec, err := d.GetTrackCodec(1)
	require.NoError(t, err)
	assert.Equal(t, CodecText, codec)

	p, err := d.GetNextPacket(1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(p.Data))
	assert.Zero(t, p.Duration)
}

func TestTrackActivation(t *testing.T) {
	data := append(ebmlHeader("matroska", 2), segment(
		infoElement(0),
		element(IDTracks,
			audioTrack(1, "A_AAC/MPEG4/LC", 48000, 2),
			audioTrack(2, "A_AAC", 44100, 2),
			audioTrack(3, "A_VORBIS", 44100, 2),
			videoTrack(4, "V_MPEG4/ISO/AVC", []byte{0, 1, 2, 3, 4, 5, 6}),
			audioTrack(5, "A_DTS", 48000, 6),
		),
		cluster(0, simpleBlock(2, 0, 0x80, fill(4, 0))),
	)...)
	d := openBytes(t, data)

	expected := []CodecKind{CodecAAC, CodecNone, CodecNone, CodecNone, CodecNone}
	for i, want := range expected {
		got, err := d.GetTrackCodec(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "track index %d", i)
	}

	info, err := d.GetTrackInfo(2)
	require.NoError(t, err)
	assert.Equal(t, CodecVorbis, info.Codec)

	_, err = d.GetNextPacket(1)
	assert.True(t, errors.Is(err, ErrInvalidTrack), "got %v", err)

	_, err = d.GetTrackCodec(9)
	assert.True(t, errors.Is(err, ErrInvalidTrack), "got %v", err)
}

func TestDecoderConfig(t *testing.T) {
	sps := []byte{0x67, 0x64, 0x00, 0x1F, 0xAC}
	pps := []byte{0x68, 0xEE, 0x3C, 0x80}
	data := append(ebmlHeader("matroska", 2), segment(
		infoElement(0),
		element(IDTracks,
			videoTrack(1, "V_MPEG4/ISO/AVC", avcConfigRecord(sps, pps)),
			audioTrack(2, "A_AAC/MPEG2/LC", 44100, 2),
		),
		cluster(0, simpleBlock(1, 0, 0x80, fill(16, 0))),
	)...)
	d := openBytes(t, data)

	cfg, err := d.GetDecoderConfig(0)
	require.NoError(t, err)
	want := append(append([]byte{0, 0, 0, 1}, sps...), append([]byte{0, 0, 0, 1}, pps...)...)
	assert.Equal(t, want, cfg)

	avc, err := d.GetAVCConfig(0)
	require.NoError(t, err)
	assert.Equal(t, 4, avc.NALLengthSize)
	assert.Equal(t, uint8(0x64), avc.Profile)

	asc, err := d.GetDecoderConfig(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x10}, asc)

	props, err := d.GetVideoProps(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(320), props.DisplayWidth)
	assert.InDelta(t, 320.0/240.0, props.DisplayAspect, 1e-9)

	_, err = d.GetAudioProps(0)
	assert.True(t, errors.Is(err, ErrInvalidTrack), "got %v", err)

	scale, err := d.GetMediaTimeScale(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000), scale)
}

func TestOpenRejects(t *testing.T) {
	body := segment(infoElement(0), element(IDTracks, audioTrack(1, "A_AC3", 48000, 2)))
	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"not ebml", []byte("RIFF\x00\x00\x00\x00WAVE"), ErrNotMatroska},
		{"webm doctype", append(ebmlHeader("webm", 2), body...), ErrCorruptStream},
		{"doctype version", append(ebmlHeader("matroska", 4), body...), ErrCorruptStream},
		{"unknown header child", append(element(IDEBMLHeader,
			stringElement(IDEBMLDocType, "matroska"),
			uintElement(IDTitle, 1),
		), body...), ErrCorruptStream},
		{"no tracks", append(ebmlHeader("matroska", 2), segment(infoElement(0))...), ErrCorruptStream},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pipe, err := NewReadSeekerPipe(bytes.NewReader(tc.data))
			require.NoError(t, err)
			_, err = Open(pipe, false)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestThumbnailTimestamp(t *testing.T) {
	d := openBytes(t, seekFile(nil))
	assert.Equal(t, uint64(1000000000), d.GetThumbnailTimestamp())

	// The scan must not disturb playback.
	p, err := d.GetNextPacket(0)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(0), p.PTS)
	assert.Equal(t, fill(50, 0), p.Data)
}

func TestCorruptCuesFallBackToClusterScan(t *testing.T) {
	d := openBytes(t, seekFile(corruptCues))
	assert.Empty(t, d.GetCues())
	assert.False(t, d.cues.parsed)

	got, err := d.SetPosition(1100000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000000), got)

	p, err := d.GetNextPacket(0)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(1000), p.PTS)
	assert.Equal(t, fill(80, 2), p.Data)
	assert.True(t, p.KeyFrame)

	a, err := d.GetNextPacket(1)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(1005), a.PTS)
}

func TestCueSeek(t *testing.T) {
	d := openBytes(t, seekFile(validCues))
	require.Len(t, d.GetCues(), 3)

	testCases := []struct {
		target uint64
		want   uint64
	}{
		{0, 0},
		{1600000000, 2000000000},
		// Exactly between two cues the earlier one wins.
		{1500000000, 1000000000},
		{400000000, 0},
		{2900000000, 2000000000},
	}
	for _, tc := range testCases {
		got, err := d.SetPosition(tc.target)
		require.NoError(t, err, "target %d", tc.target)
		assert.Equal(t, tc.want, got, "target %d", tc.target)

		p, err := d.GetNextPacket(0)
		require.NoError(t, err)
		assert.Equal(t, knownTimecode(tc.want/1000000), p.PTS)
	}
}

func TestSeekHeadCues(t *testing.T) {
	seekEntry := func(id uint32, pos uint64) []byte {
		return element(IDSeek,
			element(IDSeekID, encodeID(id)),
			fixedUintElement(IDSeekPos, pos, 8),
		)
	}
	info := infoElement(3000)
	tracks := element(IDTracks, videoTrack(1, "V_MPEG2", nil))
	clusters := seekClusters()
	seekHeadLen := len(element(IDSeekHead, seekEntry(IDCues, 0)))

	offsets := make([]uint64, len(clusters))
	pos := uint64(seekHeadLen + len(info) + len(tracks))
	for i, c := range clusters {
		offsets[i] = pos
		pos += uint64(len(c))
	}
	seekHead := element(IDSeekHead, seekEntry(IDCues, pos))

	children := append([][]byte{seekHead, info, tracks}, clusters...)
	children = append(children, validCues(offsets))
	d := openBytes(t, append(ebmlHeader("matroska", 2), segment(children...)...))

	require.Len(t, d.GetCues(), 3)
	got, err := d.SetPosition(2000000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000000000), got)
}

func TestSeekHeadClusterScan(t *testing.T) {
	seekEntry := func(pos uint64) []byte {
		return element(IDSeek,
			element(IDSeekID, encodeID(IDCluster)),
			fixedUintElement(IDSeekPos, pos, 8),
		)
	}
	info := infoElement(3000)
	tracks := element(IDTracks, videoTrack(1, "V_MPEG2", nil))
	clusters := seekClusters()
	seekHeadLen := len(element(IDSeekHead, seekEntry(0), seekEntry(0), seekEntry(0)))

	var entries [][]byte
	pos := uint64(seekHeadLen + len(info) + len(tracks))
	for _, c := range clusters {
		entries = append(entries, seekEntry(pos))
		pos += uint64(len(c))
	}

	children := append([][]byte{element(IDSeekHead, entries...), info, tracks}, clusters...)
	d := openBytes(t, append(ebmlHeader("matroska", 2), segment(children...)...))

	assert.Len(t, d.seekHead.clusters, 3)
	assert.Equal(t, d.seekHead.clusters[0], d.scanStart(0))
	assert.Equal(t, d.seekHead.clusters[1], d.scanStart(1000))
	assert.Equal(t, d.seekHead.clusters[1], d.scanStart(1700))
	assert.Equal(t, d.seekHead.clusters[2], d.scanStart(5000))

	got, err := d.SetPosition(1900000000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000000000), got)
}

func TestSeekPastDuration(t *testing.T) {
	d := openBytes(t, seekFile(validCues))

	got, err := d.SetPosition(5000000000)
	assert.True(t, errors.Is(err, ErrEndOfStream), "got %v", err)
	assert.Equal(t, uint64(3000000000), got)
	assert.True(t, d.r.done)

	_, err = d.GetNextPacket(0)
	assert.True(t, errors.Is(err, ErrEndOfStream), "got %v", err)

	// A later seek recovers.
	got, err = d.SetPosition(0)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestSeekIdempotence(t *testing.T) {
	for name, cues := range map[string]func([]uint64) []byte{"cues": validCues, "cluster scan": nil} {
		t.Run(name, func(t *testing.T) {
			d := openBytes(t, seekFile(cues))

			_, err := d.SetPosition(1200000000)
			require.NoError(t, err)
			first, err := d.GetNextPacket(0)
			require.NoError(t, err)

			// Move elsewhere before seeking again.
			for {
				if _, err = d.GetNextPacket(0); err != nil {
					break
				}
			}
			_, err = d.SetPosition(0)
			require.NoError(t, err)
			_, err = d.GetNextPacket(1)
			require.NoError(t, err)

			_, err = d.SetPosition(1200000000)
			require.NoError(t, err)
			second, err := d.GetNextPacket(0)
			require.NoError(t, err)

			assert.Equal(t, first.PTS, second.PTS)
			assert.Equal(t, first.Data, second.Data)
		})
	}
}

func TestResetDrainsQueues(t *testing.T) {
	d := openBytes(t, seekFile(nil))

	// Reading only video leaves audio blocks queued.
	for i := 0; i < 4; i++ {
		_, err := d.GetNextPacket(0)
		require.NoError(t, err)
	}
	require.NotZero(t, d.tracks[1].blocks.len())

	d.reset()
	for _, tr := range d.tracks {
		assert.Zero(t, tr.blocks.len())
		assert.Zero(t, tr.packets.len())
	}
	assert.Equal(t, stateNewOpen, d.cluster.state)

	got, err := d.SetPosition(0)
	require.NoError(t, err)
	assert.Zero(t, got)
	p, err := d.GetNextPacket(1)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(0), p.PTS)
}

func TestDisableTrack(t *testing.T) {
	d := openBytes(t, seekFile(nil))

	_, err := d.GetNextPacket(0)
	require.NoError(t, err)
	require.NoError(t, d.DisableTrack(1))
	assert.Zero(t, d.tracks[1].blocks.len())

	_, err = d.GetNextPacket(1)
	assert.True(t, errors.Is(err, ErrInvalidTrack), "got %v", err)

	// Blocks of a disabled track are not queued.
	_, err = d.GetNextPacket(0)
	require.NoError(t, err)
	assert.Zero(t, d.tracks[1].blocks.len())

	require.NoError(t, d.EnableTrack(1))
	p, err := d.GetNextPacket(1)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(1005), p.PTS)
}

func TestReadPacketFileOrder(t *testing.T) {
	d := openBytes(t, seekFile(nil))

	var tracks []uint64
	for {
		p, err := d.ReadPacket()
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		require.NoError(t, err)
		tracks = append(tracks, p.Track)
	}
	assert.Equal(t, []uint64{1, 2, 1, 1, 2, 1, 1, 2}, tracks)
}

func TestClose(t *testing.T) {
	d := openBytes(t, seekFile(nil))
	d.Close()
	_, err := d.GetNextPacket(0)
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
	_, err = d.SetPosition(0)
	assert.True(t, errors.Is(err, ErrClosed), "got %v", err)
}

// A streaming file whose codec private data claims far more bytes than the
// stream holds must fail to open instead of allocating the claimed size.
func TestStreamingOversizedElement(t *testing.T) {
	const claimed = uint64(1) << 40
	entrySize := claimed - 9
	privSize := entrySize - 3 - 10

	var tracks []byte
	tracks = append(tracks, encodeID(IDTracks)...)
	tracks = append(tracks, encodeVarUint(claimed, 8)...)
	tracks = append(tracks, encodeID(IDTrackEntry)...)
	tracks = append(tracks, encodeVarUint(entrySize, 8)...)
	tracks = append(tracks, uintElement(IDTrackNum, 1)...)
	tracks = append(tracks, encodeID(IDCodecPriv)...)
	tracks = append(tracks, encodeVarUint(privSize, 8)...)
	tracks = append(tracks, fill(16, 0)...)

	data := append(ebmlHeader("matroska", 2), unknownSizeElement(IDSegment, tracks)...)
	_, err := Open(NewStreamPipe(bytes.NewReader(data)), true)
	assert.True(t, errors.Is(err, ErrTruncated), "got %v", err)
}

// audioOnlySeekFile has one AC3 track with a keyframe every 100 ticks, in
// clusters at 0, 1000 and 2000 that are each indexed by a cue point.
func audioOnlySeekFile() []byte {
	info := infoElement(3000)
	tracks := element(IDTracks, audioTrack(1, "A_AC3", 48000, 2))

	var clusters [][]byte
	for c := 0; c < 3; c++ {
		var blocks [][]byte
		for i := 0; i < 10; i++ {
			blocks = append(blocks, simpleBlock(1, int16(i*100), 0x80, fill(8, byte(c*10+i))))
		}
		clusters = append(clusters, cluster(uint64(c)*1000, blocks...))
	}

	offsets := make([]uint64, len(clusters))
	pos := uint64(len(info) + len(tracks) + len(validCues(offsets)))
	for i, c := range clusters {
		offsets[i] = pos
		pos += uint64(len(c))
	}

	children := append([][]byte{info, tracks, validCues(offsets)}, clusters...)
	return append(ebmlHeader("matroska", 2), segment(children...)...)
}

func TestAudioOnlyCueSeek(t *testing.T) {
	d := openBytes(t, audioOnlySeekFile())
	require.Len(t, d.GetCues(), 3)

	testCases := []struct {
		target uint64
		want   uint64
	}{
		{1400000000, 1400000000},
		// Past the midpoint the cue before the target is still used.
		{1900000000, 1900000000},
		{0, 0},
		{2000000000, 2000000000},
		{450000000, 500000000},
	}
	for _, tc := range testCases {
		got, err := d.SetPosition(tc.target)
		require.NoError(t, err, "target %d", tc.target)
		assert.Equal(t, tc.want, got, "target %d", tc.target)

		p, err := d.GetNextPacket(0)
		require.NoError(t, err)
		assert.Equal(t, knownTimecode(tc.want/1000000), p.PTS, "target %d", tc.target)
	}
}

func TestSeekKeyFrame(t *testing.T) {
	d := openBytes(t, seekFile(validCues))

	_, err := d.SeekKeyFrame(true)
	assert.True(t, errors.Is(err, ErrNoPosition), "got %v", err)

	p, err := d.GetNextPacket(0)
	require.NoError(t, err)
	require.Equal(t, knownTimecode(0), p.PTS)

	got, err := d.SeekKeyFrame(true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000000), got)
	p, err = d.GetNextPacket(0)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(1000), p.PTS)
	assert.Equal(t, fill(80, 2), p.Data)

	got, err = d.SeekKeyFrame(true)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000000000), got)

	// No cue after the last one; playback stays where it was.
	_, err = d.SeekKeyFrame(true)
	assert.True(t, errors.Is(err, ErrEndOfStream), "got %v", err)
	p, err = d.GetNextPacket(0)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(2000), p.PTS)

	got, err = d.SeekKeyFrame(false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000000), got)
	got, err = d.SeekKeyFrame(false)
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = d.SeekKeyFrame(false)
	assert.True(t, errors.Is(err, ErrEndOfStream), "got %v", err)
	p, err = d.GetNextPacket(0)
	require.NoError(t, err)
	assert.Equal(t, knownTimecode(0), p.PTS)
}

func TestSeekKeyFrameWithoutCues(t *testing.T) {
	d := openBytes(t, seekFile(nil))
	_, err := d.GetNextPacket(0)
	require.NoError(t, err)

	_, err = d.SeekKeyFrame(true)
	assert.True(t, errors.Is(err, ErrParserFailure), "got %v", err)
}

// The keyframe bit of a Block inside a BlockGroup is reserved; only the
// ReferenceBlock decides.
func TestBlockGroupIgnoresKeyframeFlag(t *testing.T) {
	d := openBytes(t, audioFile(
		videoTrack(1, "V_MPEG2", nil),
		cluster(0,
			element(IDBlockGroup,
				element(IDBlock, blockBody(1, 0, 0x80, fill(20, 0))),
				uintElement(IDReferenceBlock, 0xDF),
			),
		),
	), WithThumbnailScan(false))

	p, err := d.GetNextPacket(0)
	require.NoError(t, err)
	assert.False(t, p.KeyFrame)
}
