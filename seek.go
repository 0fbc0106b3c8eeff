package matroska

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// keyframeGate holds back blocks after a seek until a keyframe at or after
// timecode shows up. Subtitle blocks pass through untouched.
type keyframeGate struct {
	armed    bool
	timecode uint64
	// track restricts the gate to one track number; zero accepts any track.
	track uint64
	found uint64
}

func (g *keyframeGate) accepts(t *track, keyframe bool, pts Timecode) bool {
	if !keyframe || !pts.Known || pts.Ticks < g.timecode {
		return false
	}
	return g.track == 0 || g.track == t.Number
}

type clusterMark struct {
	begin    uint64
	timecode uint64
}

// clusterScan looks for the cluster to seek to when there is no cue index.
// It is consulted at every cluster timecode and skips cluster bodies.
type clusterScan struct {
	target uint64
	prev   *clusterMark
	result *clusterMark
}

func (s *clusterScan) observe(d *Demuxer, tc uint64) error {
	cur := &clusterMark{begin: d.cluster.begin, timecode: tc}
	if tc >= s.target {
		if s.prev != nil && s.target-s.prev.timecode <= tc-s.target {
			s.result = s.prev
		} else {
			s.result = cur
		}
		return nil
	}

	s.prev = cur
	c := &d.cluster
	if c.unknownSize {
		return nil
	}
	c.state = stateNewOpen
	return d.r.Skip(c.end - d.r.Position())
}

// reset drops every queued block and packet and returns the cluster state
// machine to stateNewOpen.
func (d *Demuxer) reset() {
	for _, t := range d.tracks {
		t.drain()
	}
	d.cluster = clusterState{}
	d.gate = keyframeGate{}
	d.scan = nil
}

// SetPosition seeks to targetNs and returns the time, in nanoseconds, of the
// keyframe playback resumes from. A target past the duration returns
// ErrEndOfStream together with the duration.
func (d *Demuxer) SetPosition(targetNs uint64) (uint64, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if d.streaming {
		return 0, errors.Wrap(ErrNotSeekable, "set position")
	}

	scale := d.info.TimecodeScale
	if dur := d.GetDuration(); dur > 0 && targetNs > dur {
		d.reset()
		d.r.done = true
		return dur, errors.Wrapf(ErrEndOfStream, "target %d ns past duration %d ns", targetNs, dur)
	}
	if !d.hasCluster {
		d.reset()
		d.r.done = true
		return 0, errors.Wrap(ErrEndOfStream, "no clusters")
	}

	target := targetNs / scale
	var found uint64
	var err error
	if cp, ok := d.cues.find(target); ok && d.cues.parsed {
		gateTC, track := cp.Time, d.gateTrack(cp.Track)
		if a := d.audioOnlyTrack(); a != nil {
			// Without video every audio block is a keyframe, so the gate can
			// stop at the target itself.
			cp, _ = d.cues.atOrBefore(target)
			gateTC, track = target, a.Number
		}
		d.log.Debugf("seek %d: cue at %d, cluster %d", target, cp.Time, cp.ClusterPosition)
		found, err = d.seekToCluster(d.segmentStart+cp.ClusterPosition, gateTC, track)
	} else {
		found, err = d.seekByClusters(target)
	}
	if err != nil {
		return 0, err
	}
	d.lastPTS = knownTimecode(found)
	return found * scale, nil
}

// audioOnlyTrack returns the playable audio track when no video track is
// playable.
func (d *Demuxer) audioOnlyTrack() *track {
	if v := d.activeTrack(TrackVideo); v != nil && v.userEnable {
		return nil
	}
	if a := d.activeTrack(TrackAudio); a != nil && a.userEnable {
		return a
	}
	return nil
}

// SeekKeyFrame steps to the cue point after, or with forward unset before,
// the time of the last delivered packet, and returns the time in
// nanoseconds that playback resumes from. ErrEndOfStream reports that the
// cue index has no point in that direction; the position is left alone.
func (d *Demuxer) SeekKeyFrame(forward bool) (uint64, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if d.streaming {
		return 0, errors.Wrap(ErrNotSeekable, "seek key frame")
	}
	if !d.lastPTS.Known {
		return 0, ErrNoPosition
	}
	if !d.cues.parsed {
		return 0, errors.Wrap(ErrParserFailure, "key frame stepping needs a cue index")
	}

	last := d.lastPTS.Ticks
	cp, ok := d.cues.prev(last)
	if forward {
		cp, ok = d.cues.next(last)
	}
	if !ok {
		return 0, errors.Wrapf(ErrEndOfStream, "no cue point beyond %d (forward %v)", last, forward)
	}

	found, err := d.seekToCluster(d.segmentStart+cp.ClusterPosition, cp.Time, d.gateTrack(cp.Track))
	if err != nil {
		return 0, err
	}
	d.lastPTS = knownTimecode(found)
	return found * d.info.TimecodeScale, nil
}

// gateTrack picks the track the keyframe gate waits on: the preferred track
// when it is playable, else the active video track, else any track.
func (d *Demuxer) gateTrack(preferred uint64) uint64 {
	if idx := d.findIndexByNum(preferred); idx >= 0 {
		if t := d.tracks[idx]; t.playable() && t.Kind != TrackSubtitle {
			return preferred
		}
	}
	if v := d.activeTrack(TrackVideo); v != nil && v.userEnable {
		return v.Number
	}
	return 0
}

// seekToCluster repositions to the cluster at pos and pulls blocks until
// the keyframe gate armed at tc is released.
func (d *Demuxer) seekToCluster(pos, tc, track uint64) (uint64, error) {
	d.reset()
	if err := d.r.SetPosition(pos); err != nil {
		return 0, err
	}
	d.r.done = false
	d.gate = keyframeGate{armed: true, timecode: tc, track: track}

	for d.gate.armed {
		if err := d.step(); err != nil {
			d.gate.armed = false
			if isEndOfStream(err) {
				d.r.done = true
				return 0, errors.Wrapf(ErrEndOfStream, "no keyframe after %d", tc)
			}
			return 0, err
		}
	}
	return d.gate.found, nil
}

// seekByClusters scans cluster timecodes for the cluster closest to target.
func (d *Demuxer) seekByClusters(target uint64) (uint64, error) {
	start := d.scanStart(target)
	d.reset()
	if err := d.r.SetPosition(start); err != nil {
		return 0, err
	}
	d.r.done = false

	scan := &clusterScan{target: target}
	d.scan = scan
	for scan.result == nil {
		if err := d.step(); err != nil {
			if !isEndOfStream(err) {
				d.scan = nil
				return 0, err
			}
			break
		}
	}
	d.scan = nil

	mark := scan.result
	if mark == nil {
		mark = scan.prev
	}
	if mark == nil {
		d.r.done = true
		return 0, errors.Wrapf(ErrEndOfStream, "no cluster near %d", target)
	}
	d.log.Debugf("seek %d: cluster scan picked %d at %d", target, mark.timecode, mark.begin)
	return d.seekToCluster(mark.begin, mark.timecode, d.gateTrack(0))
}

// scanStart returns the latest cluster announced by a SeekHead whose
// timecode is not after target, or the first cluster.
func (d *Demuxer) scanStart(target uint64) uint64 {
	clusters := slices.Clone(d.seekHead.clusters)
	slices.Sort(clusters)
	i, _ := slices.BinarySearchFunc(clusters, target, func(pos, target uint64) int {
		if tc, ok := d.peekClusterTimecode(pos); ok && tc <= target {
			return -1
		}
		return 1
	})
	d.r.done = false
	if i > 0 && clusters[i-1] >= d.firstCluster {
		return clusters[i-1]
	}
	return d.firstCluster
}

// peekClusterTimecode reads the timecode of the cluster at pos. The reader
// is left anywhere.
func (d *Demuxer) peekClusterTimecode(pos uint64) (uint64, bool) {
	if err := d.r.SetPosition(pos); err != nil {
		return 0, false
	}
	id, size, _, err := d.r.ReadElementHeader()
	if err != nil || id != IDCluster {
		return 0, false
	}
	end := d.segmentEnd
	if size != unknownElementSize {
		end = d.r.Position() + size
	}
	for d.r.Position() < end {
		id, size, _, err = d.r.ReadElementHeader()
		if err != nil || size == unknownElementSize {
			return 0, false
		}
		switch id {
		case IDTimestamp:
			tc, err := d.r.ReadUint(size)
			return tc, err == nil
		case IDSimpleBlock, IDBlockGroup:
			return 0, false
		}
		if err = d.r.Skip(size); err != nil {
			return 0, false
		}
	}
	return 0, false
}

// thumbnailScan remembers the largest of the first few keyframes of the
// video track.
type thumbnailScan struct {
	track      uint64
	limit      int
	candidates int
	bestSize   uint64
	best       Timecode
	found      bool
}

func (s *thumbnailScan) inspect(d *Demuxer, t *track, b *blockRef) error {
	if t.Number != s.track {
		return nil
	}
	n := b.size
	if n > blockHeaderMinSize+maxSizeLength {
		n = blockHeaderMinSize + maxSizeLength
	}
	var head []byte
	if b.data != nil {
		head = b.data[:n]
	} else {
		var err error
		if head, err = d.readAt(b.pos, n); err != nil {
			return err
		}
	}
	hdr, err := parseBlockHeader(head)
	if err != nil {
		return nil
	}
	if !isKeyframe(b, hdr) {
		return nil
	}

	s.candidates++
	size := b.size - uint64(hdr.size)
	if !s.found || size > s.bestSize {
		s.found = true
		s.bestSize = size
		s.best = blockPTS(b.clusterTC, hdr.timecode)
	}
	return nil
}

// scanThumbnail runs the thumbnail scan from the first cluster and leaves
// the demuxer positioned back at it.
func (d *Demuxer) scanThumbnail() error {
	v := d.activeTrack(TrackVideo)
	if v == nil || !d.hasCluster {
		return nil
	}

	scan := &thumbnailScan{track: v.Number, limit: d.opts.thumbnailCandidates}
	d.thumb = scan
	for scan.candidates < scan.limit {
		if err := d.step(); err != nil {
			if !isEndOfStream(err) {
				d.log.Debugf("thumbnail scan stopped: %v", err)
			}
			break
		}
	}
	d.thumb = nil
	d.thumbnail = scan.best
	d.log.Debugf("thumbnail: %d keyframes seen, largest %d bytes at %d", scan.candidates, scan.bestSize, scan.best.Ticks)

	d.reset()
	if err := d.r.SetPosition(d.firstCluster); err != nil {
		return err
	}
	d.r.done = false
	return nil
}
