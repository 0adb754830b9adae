package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Reader is the interface for reading subtitle files
type Reader interface {
	Read(path string) (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line represents a single subtitle cue
type Line struct {
	Index          int           // subtitle index, strictly increasing within a file
	StartTime      time.Duration // start time
	EndTime        time.Duration // end time, always after StartTime
	Text           string        // subtitle text
	TranslatedText string        // translated text
	Translated     bool          // TranslatedText is set, even when empty
}

// File represents subtitle file
type File struct {
	Path     string
	Lines    []Line
	Language language.Tag
	Format   string // only SRT is supported
}

// Clone returns a deep copy of f.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	dst := *f
	dst.Lines = append([]Line(nil), f.Lines...)
	return &dst
}
