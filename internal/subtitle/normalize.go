package subtitle

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// <i>, </b>, <font color="...">, ...
	markupTagPattern = regexp.MustCompile(`<[^<>]+>`)
	// ASS style override blocks, e.g. {\an8} or {\i1}
	overrideTagPattern = regexp.MustCompile(`\{\\[^{}]*\}`)
)

const (
	sourceColor      = "#42f5f2"
	translationColor = "#b042f5"
)

// StripMarkup removes formatting tags from cue text. Visible text and line
// breaks are kept; lines that only held markup are dropped.
func StripMarkup(text string) string {
	text = markupTagPattern.ReplaceAllString(text, "")
	text = overrideTagPattern.ReplaceAllString(text, "")
	return cleanText(text)
}

// Normalize strips markup from every cue in place and returns how many cues
// changed.
func Normalize(f *File) int {
	changed := 0
	for i := range f.Lines {
		stripped := StripMarkup(f.Lines[i].Text)
		if stripped != f.Lines[i].Text {
			f.Lines[i].Text = stripped
			changed++
		}
	}
	return changed
}

// Combine builds a bilingual copy of a translated file: each cue shows the
// source text above the translation, each in its own colour.
func Combine(f *File) *File {
	combined := f.Clone()
	for i, line := range combined.Lines {
		combined.Lines[i].TranslatedText = fmt.Sprintf(
			"<font color='%s'>%s</font>\n<font color='%s'>%s</font>",
			sourceColor, line.Text,
			translationColor, line.TranslatedText)
		combined.Lines[i].Translated = true
	}
	return combined
}

// Source returns a copy of f that serializes the untranslated text.
func Source(f *File) *File {
	src := f.Clone()
	for i := range src.Lines {
		src.Lines[i].TranslatedText = ""
		src.Lines[i].Translated = false
	}
	return src
}

// cleanText trims every line and drops empty ones, so the text can never
// contain the blank line that terminates an SRT block.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	kept := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}
