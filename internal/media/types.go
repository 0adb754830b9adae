package media

import (
	"context"

	"golang.org/x/text/language"
)

// StreamDescription describes one stream of a media file as reported by ffprobe.
type StreamDescription struct {
	Index     int
	CodecType string // video, audio, subtitle, ...
	CodecName string
	Language  string // ISO 639-2 tag as stored in the container, "und" if unset
	Title     string
	LangTag   language.Tag
	Default   bool
}

// Track is a subtitle file to add to the output container.
type Track struct {
	Path     string
	Language language.Tag
	Title    string
	Default  bool
}

// MuxRequest describes a stream-copy remux of VideoPath into a Matroska
// file at OutputPath with additional subtitle tracks.
type MuxRequest struct {
	VideoPath  string
	OutputPath string
	Tracks     []Track
	// AudioTitle and AudioLanguage are applied to every audio stream when set.
	AudioTitle    string
	AudioLanguage language.Tag
}

type Operator interface {
	ProbeStreams(ctx context.Context, path string) ([]StreamDescription, error)
	ReadSubtitleDescription(ctx context.Context, path string) ([]StreamDescription, error)
	Mux(ctx context.Context, req MuxRequest) error
}

func NewOperator(opts ...Option) Operator {
	return NewFfmpeg(opts...)
}
