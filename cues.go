package matroska

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// cuePage is a window of at most cuePageSize consecutive cue points.
type cuePage struct {
	first, last int // inclusive indices into cueIndex.points
	startTime   uint64
	endTime     uint64
}

// cueIndex is the seek table built from the Cues element. Points are kept in
// file order with non-decreasing times; pages only narrow the search.
type cueIndex struct {
	points   []CuePoint
	pages    []cuePage
	parsed   bool
	overflow bool
}

var errCueOutOfOrder = errors.New("cue point out of order")

// add appends p. Points whose time goes backwards are rejected, and once the
// page cap is hit every further point is dropped; ErrCueOverflow is returned
// only for the first dropped point.
func (ci *cueIndex) add(p CuePoint) error {
	if ci.overflow {
		return nil
	}
	if n := len(ci.points); n > 0 && p.Time < ci.points[n-1].Time {
		return errors.Wrapf(errCueOutOfOrder, "time %d after %d", p.Time, ci.points[n-1].Time)
	}

	idx := len(ci.points)
	if n := len(ci.pages); n == 0 || ci.pages[n-1].last-ci.pages[n-1].first+1 == cuePageSize {
		if n == maxCuePages {
			ci.overflow = true
			return errors.Wrapf(ErrCueOverflow, "%d cue points kept", len(ci.points))
		}
		ci.pages = append(ci.pages, cuePage{first: idx, last: idx, startTime: p.Time, endTime: p.Time})
	} else {
		pg := &ci.pages[n-1]
		pg.last = idx
		pg.endTime = p.Time
	}
	ci.points = append(ci.points, p)
	return nil
}

func (ci *cueIndex) reset() {
	*ci = cueIndex{}
}

// pageFor returns the page whose time range brackets target. When target
// falls in the gap between two pages the earlier one is returned, so the
// scan inside it can still reach the first entry of the next page.
func (ci *cueIndex) pageFor(target uint64) int {
	i, found := slices.BinarySearchFunc(ci.pages, target, func(pg cuePage, t uint64) int {
		switch {
		case pg.endTime < t:
			return -1
		case pg.startTime > t:
			return 1
		}
		return 0
	})
	if found || i == 0 {
		return i
	}
	return i - 1
}

// upperBound returns the index of the first cue point later than target,
// or len(points) when there is none.
func (ci *cueIndex) upperBound(target uint64) int {
	// Equal times may continue into the next page.
	i := ci.pages[ci.pageFor(target)].first
	for i < len(ci.points) && ci.points[i].Time <= target {
		i++
	}
	return i
}

// find selects the cue point to seek to for target: the entries on either
// side of target are compared and the closer one wins, the earlier one on a
// tie.
func (ci *cueIndex) find(target uint64) (CuePoint, bool) {
	if len(ci.points) == 0 {
		return CuePoint{}, false
	}
	i := ci.upperBound(target)
	switch {
	case i == 0:
		return ci.points[0], true
	case i >= len(ci.points):
		return ci.points[len(ci.points)-1], true
	}

	before, after := ci.points[i-1], ci.points[i]
	if target-before.Time <= after.Time-target {
		return before, true
	}
	return after, true
}

// atOrBefore returns the last cue point not later than target, or the first
// point when target precedes them all.
func (ci *cueIndex) atOrBefore(target uint64) (CuePoint, bool) {
	if len(ci.points) == 0 {
		return CuePoint{}, false
	}
	if i := ci.upperBound(target); i > 0 {
		return ci.points[i-1], true
	}
	return ci.points[0], true
}

// next returns the first cue point strictly later than t.
func (ci *cueIndex) next(t uint64) (CuePoint, bool) {
	if len(ci.points) == 0 {
		return CuePoint{}, false
	}
	i := ci.upperBound(t)
	if i >= len(ci.points) {
		return CuePoint{}, false
	}
	return ci.points[i], true
}

// prev returns the last cue point strictly earlier than t.
func (ci *cueIndex) prev(t uint64) (CuePoint, bool) {
	i, _ := slices.BinarySearchFunc(ci.points, t, func(p CuePoint, t uint64) int {
		if p.Time < t {
			return -1
		}
		return 1
	})
	if i == 0 {
		return CuePoint{}, false
	}
	return ci.points[i-1], true
}

// parseCuesAt parses a Cues element whose header started at elemStart. A
// Cues element that fails to parse is logged and discarded; seeking then
// falls back to scanning clusters.
func (d *Demuxer) parseCuesAt(elemStart, size uint64) error {
	d.cuesTried[elemStart] = true
	if d.cues.parsed {
		return d.r.Skip(size)
	}

	end := d.r.Position() + size
	if err := d.parseCues(size); err != nil {
		d.log.Warnf("cues at %d discarded: %v", elemStart, err)
		d.cues.reset()
		d.r.done = false
		return d.r.SetPosition(end)
	}
	d.cues.parsed = true
	d.log.Debugf("cue index: %d points in %d pages", len(d.cues.points), len(d.cues.pages))
	return nil
}

func (d *Demuxer) parseCues(size uint64) error {
	return d.r.forEachChild(size, func(id uint32, size uint64) error {
		switch id {
		case IDCuePoint:
			return d.parseCuePoint(size)
		case IDVoid, IDCRC32:
			return nil
		}
		return errors.Wrapf(ErrCorruptStream, "unexpected element 0x%X in Cues", id)
	})
}

// parseCuePoint adds one point per CueTrackPositions of the CuePoint.
func (d *Demuxer) parseCuePoint(size uint64) error {
	var cueTime uint64
	var positions []CuePoint
	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		switch id {
		case IDCueTime:
			cueTime, err = d.r.ReadUint(size)
		case IDCueTrackPositions:
			var p CuePoint
			p, err = d.parseCueTrackPositions(size)
			positions = append(positions, p)
		}
		return err
	})
	if err != nil {
		return err
	}

	for _, p := range positions {
		p.Time = cueTime
		switch err := d.cues.add(p); {
		case errors.Is(err, ErrCueOverflow):
			d.log.Warnf("%v, later cue points ignored", err)
		case err != nil:
			d.log.Debugf("cue point dropped: %v", err)
		}
	}
	return nil
}

func (d *Demuxer) parseCueTrackPositions(size uint64) (CuePoint, error) {
	var p CuePoint
	err := d.r.forEachChild(size, func(id uint32, size uint64) error {
		var err error
		switch id {
		case IDCueTrack:
			p.Track, err = d.r.ReadUint(size)
		case IDCueClusterPosition:
			p.ClusterPosition, err = d.r.ReadUint(size)
		case IDCueBlockNumber:
			p.BlockNumber, err = d.r.ReadUint(size)
		}
		return err
	})
	return p, err
}
