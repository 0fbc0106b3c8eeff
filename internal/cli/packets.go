package cli

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	matroska "github.com/luispater/matroska-demux"
)

// ListPackets prints one line per packet in file order, stopping after
// limit packets when limit is positive.
func ListPackets(w io.Writer, d *matroska.Demuxer, limit int) (int, error) {
	count := 0
	for limit <= 0 || count < limit {
		p, err := d.ReadPacket()
		if errors.Is(err, matroska.ErrEndOfStream) {
			break
		}
		if err != nil {
			return count, err
		}
		count++

		pts := "-"
		if p.PTS.Known {
			pts = fmt.Sprint(p.PTS.Ticks)
		}
		key := ""
		if p.KeyFrame {
			key = " K"
		}
		fmt.Fprintf(w, "track=%d pts=%s dur=%d size=%d pos=%d%s\n",
			p.Track, pts, p.Duration, len(p.Data), p.FilePos, key)
	}
	return count, nil
}
