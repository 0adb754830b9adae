package subtitle

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/pkg/file"
)

// DefaultWriter is the default subtitle file writer
type DefaultWriter struct{}

// NewWriter creates a new subtitle file writer
func NewWriter() Writer {
	return &DefaultWriter{}
}

// Write serializes subtitle to path. The file is replaced atomically.
func (w *DefaultWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return errs.New(errs.ErrFileWrite, "subtitle data is empty").WithContext("path", path)
	}

	if err := file.WriteAtomic(path, Marshal(subtitle), 0o644); err != nil {
		return errs.Wrap(err, errs.ErrFileWrite, "failed to write subtitle file").WithContext("path", path)
	}
	return nil
}

// Marshal renders cues as SRT, keeping indices and timings. TranslatedText is
// written for translated cues, even when the translation is empty; untranslated
// cues keep their original text.
func Marshal(subtitle *File) []byte {
	var buf bytes.Buffer

	for _, line := range subtitle.Lines {
		fmt.Fprintf(&buf, "%d\n", line.Index)
		fmt.Fprintf(&buf, "%s --> %s\n", formatDuration(line.StartTime), formatDuration(line.EndTime))

		text := line.Text
		if line.Translated {
			text = line.TranslatedText
		}
		if text = cleanText(text); text != "" {
			fmt.Fprintf(&buf, "%s\n", text)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// formatDuration formats time.Duration to SRT time format
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
