package pipeline

import (
	"path/filepath"
	"strings"
)

// MediaKind classifies a file for relay purposes.
type MediaKind string

const (
	KindVideo    MediaKind = "video"
	KindPhoto    MediaKind = "photo"
	KindAudio    MediaKind = "audio"
	KindDocument MediaKind = "document"
)

var extKinds = map[string]MediaKind{
	".mp4": KindVideo, ".mkv": KindVideo, ".mov": KindVideo, ".avi": KindVideo, ".webm": KindVideo,
	".jpg": KindPhoto, ".jpeg": KindPhoto, ".png": KindPhoto, ".gif": KindPhoto, ".bmp": KindPhoto, ".webp": KindPhoto,
	".mp3": KindAudio, ".wav": KindAudio, ".m4a": KindAudio, ".ogg": KindAudio, ".flac": KindAudio,
}

// KindFor maps a file name to its media kind by extension. Anything
// unrecognized is relayed as a document.
func KindFor(name string) MediaKind {
	ext := strings.ToLower(filepath.Ext(name))
	if kind, ok := extKinds[ext]; ok {
		return kind
	}
	return KindDocument
}
