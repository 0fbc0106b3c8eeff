package matroska

import (
	"github.com/pkg/errors"
)

type clusterStateKind int

const (
	// stateNewOpen expects a top-level element.
	stateNewOpen clusterStateKind = iota
	// stateParseBody consumes the children of the open cluster.
	stateParseBody
)

// clusterState tracks the one cluster being parsed. It survives between
// calls so a cluster is consumed one child at a time.
type clusterState struct {
	state       clusterStateKind
	begin       uint64 // offset of the Cluster ID
	dataStart   uint64
	end         uint64
	length      uint64
	consumed    uint64
	unknownSize bool
	timecode    Timecode
	position    uint64
	prevSize    uint64
}

// blockRef is a block found while scanning a cluster. Only its location is
// recorded; the header and laces are decoded when the block is dequeued.
// On streaming sources the payload cannot be revisited, so it is kept in
// data instead.
type blockRef struct {
	track       uint64
	pos         uint64
	size        uint64
	clusterTC   Timecode
	duration    uint64
	hasDuration bool
	// reference is set for blocks that depend on others. SimpleBlocks
	// default to it; their keyframe flag decides instead.
	reference bool
	simple    bool
	data      []byte
}

// openCluster enters stateParseBody for the cluster whose ID started at
// begin. The reader must be at the start of the cluster payload.
func (d *Demuxer) openCluster(begin, size uint64) {
	c := &d.cluster
	*c = clusterState{
		state:     stateParseBody,
		begin:     begin,
		dataStart: d.r.Position(),
		length:    size,
	}
	if size == unknownElementSize {
		c.unknownSize = true
		c.end = d.segmentEnd
	} else {
		c.end = c.dataStart + size
	}
}

// step advances the cluster state machine by one element.
func (d *Demuxer) step() error {
	if d.r.done {
		return ErrEndOfStream
	}
	if d.cluster.state == stateNewOpen {
		return d.advanceCluster()
	}
	return d.parseClusterChild()
}

// advanceCluster reads the next top-level element of the segment.
func (d *Demuxer) advanceCluster() error {
	start := d.r.Position()
	if start >= d.segmentEnd {
		d.r.done = true
		return ErrEndOfStream
	}
	id, size, _, err := d.r.ReadElementHeader()
	if err != nil {
		d.r.done = true
		if errors.Is(err, ErrTruncated) {
			return errors.Wrap(ErrEndOfStream, err.Error())
		}
		return err
	}
	return d.handleTopLevel(id, size, start)
}

func (d *Demuxer) handleTopLevel(id uint32, size, start uint64) error {
	if id == IDCluster {
		d.openCluster(start, size)
		return nil
	}
	if size == unknownElementSize {
		d.r.done = true
		return errors.Wrapf(ErrCorruptStream, "element 0x%X at %d has unknown size", id, start)
	}

	switch id {
	case IDCues:
		if !d.cues.parsed && !d.cuesTried[start] {
			return d.parseCuesAt(start, size)
		}
	case IDSegmentInfo, IDTracks, IDSeekHead, IDTags, IDChapters, IDAttachments, IDVoid, IDCRC32:
	default:
		d.log.Debugf("skipping top-level element 0x%X at %d", id, start)
	}
	return d.r.Skip(size)
}

// isTopLevelID reports whether id can only appear as a child of the segment.
// Unknown-size clusters end where one of these begins.
func isTopLevelID(id uint32) bool {
	switch id {
	case IDCluster, IDCues, IDSegmentInfo, IDTracks, IDSeekHead, IDTags, IDChapters, IDAttachments:
		return true
	}
	return false
}

// parseClusterChild consumes one child of the open cluster.
func (d *Demuxer) parseClusterChild() error {
	c := &d.cluster
	start := d.r.Position()
	if start >= c.end {
		c.state = stateNewOpen
		return nil
	}

	id, size, _, err := d.r.ReadElementHeader()
	if err != nil {
		d.r.done = true
		if errors.Is(err, ErrTruncated) {
			return errors.Wrap(ErrEndOfStream, err.Error())
		}
		return err
	}
	if c.unknownSize && isTopLevelID(id) {
		c.state = stateNewOpen
		return d.handleTopLevel(id, size, start)
	}
	if size == unknownElementSize || d.r.Position()+size > c.end {
		d.r.done = true
		return errors.Wrapf(ErrCorruptStream, "element 0x%X at %d overflows its cluster", id, start)
	}

	switch id {
	case IDTimestamp:
		var tc uint64
		if tc, err = d.r.ReadUint(size); err != nil {
			return err
		}
		c.timecode = knownTimecode(tc)
		if d.scan != nil {
			err = d.scan.observe(d, tc)
		}
	case IDClusterPosition:
		c.position, err = d.r.ReadUint(size)
	case IDPrevSize:
		c.prevSize, err = d.r.ReadUint(size)
	case IDSimpleBlock:
		err = d.scanSimpleBlock(size)
	case IDBlockGroup:
		err = d.scanBlockGroup(size)
	case IDVoid, IDCRC32, IDSilentTracks, IDEncryptedBlock:
		err = d.r.Skip(size)
	default:
		d.r.done = true
		return errors.Wrapf(ErrParserFailure, "unexpected element 0x%X in cluster at %d", id, c.begin)
	}
	if err != nil {
		return err
	}

	if c.state == stateParseBody {
		c.consumed = d.r.Position() - c.dataStart
	}
	return nil
}

// captureBlock records the Block or SimpleBlock payload of size bytes at
// the current position and leaves the reader after it.
func (d *Demuxer) captureBlock(b *blockRef, size uint64) error {
	b.pos = d.r.Position()
	b.size = size
	b.clusterTC = d.cluster.timecode

	if d.streaming {
		data, err := d.r.ReadBytes(size)
		if err != nil {
			return err
		}
		track, _, err := decodeVarUint(data, maxSizeLength)
		if err != nil {
			return errors.Wrapf(ErrCorruptStream, "block at %d: %v", b.pos, err)
		}
		b.track = track
		b.data = data
		return nil
	}

	track, width, err := d.r.ReadVarUint(maxSizeLength)
	if err != nil {
		return err
	}
	if uint64(width) > size {
		return errors.Wrapf(ErrCorruptStream, "block at %d shorter than its track number", b.pos)
	}
	b.track = track
	return d.r.Skip(size - uint64(width))
}

func (d *Demuxer) scanSimpleBlock(size uint64) error {
	b := &blockRef{simple: true, reference: true}
	if err := d.captureBlock(b, size); err != nil {
		return err
	}
	return d.dispatchBlock(b)
}

func (d *Demuxer) scanBlockGroup(size uint64) error {
	var b *blockRef
	var duration uint64
	hasDuration, reference := false, false

	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		switch id {
		case IDBlock:
			b = &blockRef{}
			err = d.captureBlock(b, size)
		case IDBlockDuration:
			duration, err = d.r.ReadUint(size)
			hasDuration = err == nil
		case IDReferenceBlock:
			reference = true
		}
		return err
	})
	if err != nil {
		return err
	}
	if b == nil {
		d.log.Debugf("block group without a block in cluster at %d", d.cluster.begin)
		return nil
	}

	b.duration = duration
	b.hasDuration = hasDuration
	b.reference = reference
	return d.dispatchBlock(b)
}

// dispatchBlock routes a scanned block: ignored during a cluster scan,
// inspected by the thumbnail scan, decoded at once while the keyframe gate
// is armed, queued on its track otherwise.
func (d *Demuxer) dispatchBlock(b *blockRef) error {
	if d.scan != nil {
		return nil
	}
	idx := d.findIndexByNum(b.track)
	if idx < 0 {
		d.log.Debugf("block at %d for unknown track %d", b.pos, b.track)
		return nil
	}
	t := d.tracks[idx]

	if d.thumb != nil {
		return d.thumb.inspect(d, t, b)
	}
	if !t.playable() || b.size <= blockHeaderMinSize {
		return nil
	}
	if d.gate.armed {
		return d.decodeBlock(t, b)
	}
	t.blocks.push(b)
	return nil
}
