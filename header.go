package matroska

import (
	"github.com/pkg/errors"
)

// EBMLHeader represents the EBML header
type EBMLHeader struct {
	Version            uint64
	ReadVersion        uint64
	MaxIDLength        uint64
	MaxSizeLength      uint64
	DocType            string
	DocTypeVersion     uint64
	DocTypeReadVersion uint64
}

const (
	supportedEBMLVersion    = 1
	supportedDocTypeVersion = 2
)

func (h *EBMLHeader) validate() error {
	switch {
	case h.Version > supportedEBMLVersion:
		return errors.Wrapf(ErrCorruptStream, "EBML version %d", h.Version)
	case h.MaxSizeLength > maxSizeLength:
		return errors.Wrapf(ErrCorruptStream, "EBML max size length %d", h.MaxSizeLength)
	case h.MaxIDLength > maxIDLength:
		return errors.Wrapf(ErrCorruptStream, "EBML max ID length %d", h.MaxIDLength)
	case h.DocType != "matroska":
		return errors.Wrapf(ErrCorruptStream, "unsupported document type: %q", h.DocType)
	case h.DocTypeVersion > supportedDocTypeVersion:
		return errors.Wrapf(ErrCorruptStream, "document type version %d", h.DocTypeVersion)
	}
	return nil
}

// seekHeadIndex collects the absolute offsets announced by SeekHead
// elements. Zero means "not announced".
type seekHeadIndex struct {
	info     uint64
	tracks   uint64
	cues     uint64
	clusters []uint64
}

// parseHeader reads and validates the EBML header. Unlike the segment
// children, unknown header elements are rejected.
func (d *Demuxer) parseHeader() error {
	id, _, err := d.r.ReadVarID(maxIDLength)
	if err != nil {
		return errors.Wrapf(ErrNotMatroska, "%v", err)
	}
	if id != IDEBMLHeader {
		return errors.Wrapf(ErrNotMatroska, "expected EBML header, got ID 0x%X", id)
	}

	size, width, err := d.r.ReadVarUint(maxSizeLength)
	if err != nil {
		return errors.WithMessage(err, "failed to read EBML header size")
	}
	if isUnknownSize(size, width) {
		return errors.Wrap(ErrCorruptStream, "EBML header of unknown size")
	}

	h := &EBMLHeader{
		Version:            1,
		ReadVersion:        1,
		MaxIDLength:        maxIDLength,
		MaxSizeLength:      maxSizeLength,
		DocTypeVersion:     1,
		DocTypeReadVersion: 1,
	}
	err = d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		switch id {
		case IDEBMLVersion:
			h.Version, err = d.r.ReadUint(size)
		case IDEBMLReadVersion:
			h.ReadVersion, err = d.r.ReadUint(size)
		case IDEBMLMaxIDLength:
			h.MaxIDLength, err = d.r.ReadUint(size)
		case IDEBMLMaxSizeLength:
			h.MaxSizeLength, err = d.r.ReadUint(size)
		case IDEBMLDocType:
			h.DocType, err = d.r.ReadString(size)
		case IDEBMLDocTypeVersion:
			h.DocTypeVersion, err = d.r.ReadUint(size)
		case IDEBMLDocTypeReadVersion:
			h.DocTypeReadVersion, err = d.r.ReadUint(size)
		case IDVoid, IDCRC32:
		default:
			err = errors.Wrapf(ErrCorruptStream, "unknown EBML header element 0x%X", id)
		}
		return err
	})
	if err != nil {
		return err
	}
	if err = h.validate(); err != nil {
		return err
	}

	d.header = h
	return nil
}

// parseSegment reads the segment header and its children up to the first
// cluster. Clusters are consumed later by the cluster state machine, so the
// first one is left open for it.
func (d *Demuxer) parseSegment() error {
	id, size, _, err := d.r.ReadElementHeader()
	if err != nil {
		return errors.WithMessage(err, "failed to read segment header")
	}
	if id != IDSegment {
		return errors.Wrapf(ErrCorruptStream, "expected segment element, got ID 0x%X", id)
	}

	d.segmentStart = d.r.Position()
	if size == unknownElementSize {
		d.segmentEnd = d.segmentStart + d.r.pipe.GetAvailableBytes()
	} else {
		d.segmentEnd = d.segmentStart + size
	}

	for d.r.Position() < d.segmentEnd {
		start := d.r.Position()
		id, size, _, err = d.r.ReadElementHeader()
		if err != nil {
			if errors.Is(err, ErrTruncated) && len(d.tracks) > 0 {
				d.log.Debugf("segment ends at %d without clusters", start)
				break
			}
			return errors.Wrap(ErrCorruptStream, err.Error())
		}
		if id != IDCluster && (size == unknownElementSize || d.r.Position()+size > d.segmentEnd) {
			return errors.Wrapf(ErrCorruptStream, "element 0x%X at %d overflows the segment", id, start)
		}

		switch id {
		case IDSegmentInfo:
			err = d.parseInfo(size)
		case IDTracks:
			err = d.parseTracks(size)
		case IDCues:
			err = d.parseCuesAt(start, size)
		case IDSeekHead:
			err = d.parseSeekHead(size)
		case IDCluster:
			d.firstCluster = start
			d.hasCluster = true
			d.openCluster(start, size)
		default:
			d.log.Debugf("skipping element 0x%X (%d bytes) at %d", id, size, start)
			err = d.r.Skip(size)
		}
		if err != nil {
			return errors.WithMessagef(err, "element 0x%X at %d", id, start)
		}
		if id == IDCluster {
			break
		}
	}

	if err = d.resolveSeekHead(); err != nil {
		return err
	}
	if len(d.tracks) == 0 {
		return errors.Wrap(ErrCorruptStream, "no tracks found")
	}
	return nil
}

// parseInfo parses the Info element.
func (d *Demuxer) parseInfo(size uint64) error {
	if d.infoParsed {
		return d.r.Skip(size)
	}

	info := SegmentInfo{TimecodeScale: defaultTimecodeScale}
	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		switch id {
		case IDSegmentUID:
			err = d.readUID(size, &info.UID)
		case IDSegmentFilename:
			info.Filename, err = d.r.ReadString(size)
		case IDPrevUID:
			err = d.readUID(size, &info.PrevUID)
		case IDPrevFilename:
			info.PrevFilename, err = d.r.ReadString(size)
		case IDNextUID:
			err = d.readUID(size, &info.NextUID)
		case IDNextFilename:
			info.NextFilename, err = d.r.ReadString(size)
		case IDTimestampScale:
			info.TimecodeScale, err = d.r.ReadUint(size)
		case IDDuration:
			info.Duration, err = d.r.ReadFloat(size)
		case IDDateUTC:
			info.DateUTC, err = d.r.ReadInt(size)
			info.DateUTCValid = err == nil
		case IDTitle:
			info.Title, err = d.r.ReadString(size)
		case IDMuxingApp:
			info.MuxingApp, err = d.r.ReadString(size)
		case IDWritingApp:
			info.WritingApp, err = d.r.ReadString(size)
		}
		return err
	})
	if err != nil {
		return err
	}
	if info.TimecodeScale == 0 {
		info.TimecodeScale = defaultTimecodeScale
	}

	d.info = info
	d.infoParsed = true
	d.log.Debugf("timecode scale %d, duration %.0f ticks", info.TimecodeScale, info.Duration)
	return nil
}

func (d *Demuxer) readUID(size uint64, dst *[16]byte) error {
	data, err := d.r.ReadBytes(size)
	if err != nil {
		return err
	}
	copy(dst[:], data)
	return nil
}

// parseSeekHead records where the Info, Tracks, Cues and Cluster elements
// live so they can be reached without a linear scan.
func (d *Demuxer) parseSeekHead(size uint64) error {
	return d.r.forEachChild(size, func(id uint32, size uint64) error {
		if id != IDSeek {
			return nil
		}

		var target uint32
		var pos uint64
		havePos := false
		err := d.r.forEachChild(size, func(id uint32, size uint64) error {
			switch id {
			case IDSeekID:
				raw, err := d.r.ReadBytes(size)
				if err != nil {
					return err
				}
				for _, b := range raw {
					target = target<<8 | uint32(b)
				}
			case IDSeekPos:
				var err error
				pos, err = d.r.ReadUint(size)
				if err != nil {
					return err
				}
				havePos = true
			}
			return nil
		})
		if err != nil || !havePos {
			return err
		}

		abs := d.segmentStart + pos
		switch target {
		case IDSegmentInfo:
			d.seekHead.info = abs
		case IDTracks:
			d.seekHead.tracks = abs
		case IDCues:
			d.seekHead.cues = abs
		case IDCluster:
			d.seekHead.clusters = append(d.seekHead.clusters, abs)
		}
		return nil
	})
}

// resolveSeekHead parses the Info, Tracks and Cues elements that were not
// found before the first cluster but are announced by a SeekHead, then
// returns to the position it started from.
func (d *Demuxer) resolveSeekHead() error {
	if d.streaming {
		return nil
	}

	jumps := []struct {
		id     uint32
		pos    uint64
		needed bool
	}{
		{IDSegmentInfo, d.seekHead.info, !d.infoParsed},
		{IDTracks, d.seekHead.tracks, !d.tracksParsed},
		{IDCues, d.seekHead.cues, !d.cues.parsed && !d.cuesTried[d.seekHead.cues]},
	}

	saved := d.r.Position()
	for _, j := range jumps {
		if !j.needed || j.pos == 0 || j.pos >= d.segmentEnd {
			continue
		}
		if err := d.r.SetPosition(j.pos); err != nil {
			return err
		}
		id, size, _, err := d.r.ReadElementHeader()
		if err == nil && id != j.id {
			err = errors.Wrapf(ErrCorruptStream, "seek head points at 0x%X, found 0x%X", j.id, id)
		}
		if err == nil {
			switch j.id {
			case IDSegmentInfo:
				err = d.parseInfo(size)
			case IDTracks:
				err = d.parseTracks(size)
			case IDCues:
				err = d.parseCuesAt(j.pos, size)
			}
		}
		if err != nil {
			if j.id == IDCues {
				d.log.Warnf("cues announced at %d are unusable: %v", j.pos, err)
				d.r.done = false
				continue
			}
			return errors.WithMessagef(err, "element 0x%X announced at %d", j.id, j.pos)
		}
	}

	if err := d.r.SetPosition(saved); err != nil {
		return err
	}
	d.r.done = false
	return nil
}
