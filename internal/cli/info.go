package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	matroska "github.com/luispater/matroska-demux"
)

// segmentUID formats a 16-byte segment UID, or returns "" when unset.
func segmentUID(b [16]byte) string {
	id, err := uuid.FromBytes(b[:])
	if err != nil || id == uuid.Nil {
		return ""
	}
	return id.String()
}

func WriteInfo(w io.Writer, name string, d *matroska.Demuxer) error {
	info, err := d.GetFileInfo()
	if err != nil {
		return err
	}
	hdr := d.GetEBMLHeader()

	fmt.Fprintf(w, "File: %s\n", name)
	fmt.Fprintf(w, "DocType: %s v%d\n", hdr.DocType, hdr.DocTypeVersion)
	if uid := segmentUID(info.UID); uid != "" {
		fmt.Fprintf(w, "Segment UID: %s\n", uid)
	}
	if info.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", info.Title)
	}
	if info.MuxingApp != "" || info.WritingApp != "" {
		fmt.Fprintf(w, "Muxing app: %s / Writing app: %s\n", info.MuxingApp, info.WritingApp)
	}
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(d.GetDuration()))
	fmt.Fprintf(w, "Timecode scale: %d\n", info.TimecodeScale)
	if ts := d.GetThumbnailTimestamp(); ts > 0 {
		fmt.Fprintf(w, "Thumbnail: %s\n", time.Duration(ts))
	}
	fmt.Fprintf(w, "Cue points: %d\n", len(d.GetCues()))

	n := d.GetTrackCount()
	fmt.Fprintf(w, "Tracks: %d\n", n)
	for i := 0; i < n; i++ {
		t, err := d.GetTrackInfo(i)
		if err != nil {
			return err
		}
		codec, _ := d.GetTrackCodec(i)
		state := "inactive"
		if codec != matroska.CodecNone {
			state = "active"
		}
		fmt.Fprintf(w, "  #%d number=%d %s codec=%s (%s) %s", i, t.Number, t.Kind, t.CodecID, t.Codec, state)
		if t.Language != "" {
			fmt.Fprintf(w, " lang=%s", t.Language)
		}
		fmt.Fprintln(w)

		switch t.Kind {
		case matroska.TrackVideo:
			if p, err := d.GetVideoProps(i); err == nil {
				fmt.Fprintf(w, "     %dx%d display %dx%d", p.PixelWidth, p.PixelHeight, p.DisplayWidth, p.DisplayHeight)
				if p.FrameRate > 0 {
					fmt.Fprintf(w, " %.3f fps", p.FrameRate)
				}
				fmt.Fprintln(w)
			}
		case matroska.TrackAudio:
			if p, err := d.GetAudioProps(i); err == nil {
				fmt.Fprintf(w, "     %d Hz %d ch", p.SampleRate, p.Channels)
				if p.BitDepth > 0 {
					fmt.Fprintf(w, " %d bit", p.BitDepth)
				}
				fmt.Fprintln(w)
			}
		}
	}
	return nil
}
