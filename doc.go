// Package matroska implements a pull-model demuxer for Matroska media files.
//
// A Demuxer reads the EBML header, the segment information and the track
// table when it is opened, then parses clusters on demand as packets are
// requested with GetNextPacket or ReadPacket. Seekable sources also support
// SetPosition and SeekKeyFrame, driven by the Cues index when the file has
// one and by a scan of cluster timestamps otherwise. Sources that can only
// be read forward are opened with NewStreamingDemuxer.
//
// Only the first supported video, audio and text subtitle track are
// delivered. AVC decoder configuration is exposed in Annex-B form.
package matroska
