// Package transcoder runs the transform stage of a download using FFmpeg.
//
// Four variants are supported:
//   - pass-through: the source bytes are forwarded unchanged
//   - audio extraction: the audio track is re-encoded to MP3 at a fixed bitrate
//   - clip: the first seconds of the source become a resized animated GIF
//   - frame: a single frame at an offset is captured as PNG
//
// Source bytes are piped into ffmpeg's stdin. Audio can be streamed from
// ffmpeg's stdout as it is produced; clips and frames are written to a
// temporary file first. The number of concurrent ffmpeg processes is bounded,
// every process is killed when its request is canceled, and Cleanup stops all
// of them at shutdown.
//
// FFmpeg must be installed and available in the system PATH, or configured
// explicitly.
package transcoder
