package subtitle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

const formatSRT = "SRT"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SRT time format: 00:02:16,612 --> 00:02:19,376 (optionally followed by position data)
var srtTimePattern = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d+):(\d{2}):(\d{2})[,.](\d{1,3})`)

// DefaultReader is the default subtitle file reader
type DefaultReader struct{}

// NewReader creates a new subtitle file reader
func NewReader() Reader {
	return &DefaultReader{}
}

// Read reads and parses an SRT file.
func (r *DefaultReader) Read(path string) (*File, error) {
	if !strings.EqualFold(filepath.Ext(path), ".srt") {
		return nil, errs.New(errs.ErrParse, "only SRT format subtitle files are supported").
			WithContext("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(err, errs.ErrNotFound, "subtitle file does not exist").
				WithContext("path", path)
		}
		return nil, errs.Wrap(err, errs.ErrParse, "failed to read subtitle file").
			WithContext("path", path)
	}

	return Parse(data, path)
}

type parseState int

const (
	stateIndex parseState = iota
	stateTime
	stateText
	stateSkip
)

// Parse parses SRT content into cues. Malformed blocks are skipped with a
// warning; an error is returned only when no valid cue remains.
func Parse(data []byte, path string) (*File, error) {
	content := decode(data, path)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	rawLines := strings.Split(content, "\n")

	var (
		lines     []Line
		current   Line
		textLines []string
		lastIndex int
		block     int
		state     = stateIndex
	)

	finish := func() {
		current.Text = strings.Join(textLines, "\n")
		if current.Index <= lastIndex {
			log.Warn("Skipping cue %d in %s: index %d does not follow %d", block, path, current.Index, lastIndex)
		} else {
			lines = append(lines, current)
			lastIndex = current.Index
		}
		current = Line{}
		textLines = nil
	}

	for i, raw := range rawLines {
		line := strings.TrimSpace(raw)

		switch state {
		case stateSkip:
			if line == "" {
				state = stateIndex
			}

		case stateIndex:
			if line == "" {
				continue
			}
			block++
			index, err := strconv.Atoi(line)
			if err != nil || index < 1 {
				log.Warn("Skipping block %d in %s: invalid index %q", block, path, line)
				state = stateSkip
				continue
			}
			current = Line{Index: index}
			state = stateTime

		case stateTime:
			if line == "" {
				log.Warn("Skipping block %d in %s: missing timestamp", block, path)
				state = stateIndex
				continue
			}
			start, end, err := parseSRTTime(line)
			if err != nil {
				log.Warn("Skipping block %d in %s: %v", block, path, err)
				state = stateSkip
				continue
			}
			if start >= end {
				log.Warn("Skipping block %d in %s: start %s is not before end %s", block, path, formatDuration(start), formatDuration(end))
				state = stateSkip
				continue
			}
			current.StartTime = start
			current.EndTime = end
			textLines = nil
			state = stateText

		case stateText:
			if line == "" {
				finish()
				state = stateIndex
				continue
			}
			// a missing blank separator: "<index>" directly followed by a timestamp
			if startsNextCue(rawLines, i) {
				finish()
				block++
				index, _ := strconv.Atoi(line)
				current = Line{Index: index}
				state = stateTime
				continue
			}
			textLines = append(textLines, line)
		}
	}

	switch state {
	case stateText:
		finish()
	case stateTime:
		log.Warn("Skipping block %d in %s: missing timestamp", block, path)
	}

	if len(lines) == 0 {
		return nil, errs.New(errs.ErrParse, "no valid subtitle cues found").
			WithContext("path", path)
	}

	return &File{
		Path:     path,
		Lines:    lines,
		Language: DetectLanguage(lines),
		Format:   formatSRT,
	}, nil
}

// decode strips a UTF-8 BOM and falls back to Windows-1252 for legacy files.
func decode(data []byte, path string) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	log.Debug("Decoded %s as Windows-1252", path)
	return string(decoded)
}

func startsNextCue(rawLines []string, i int) bool {
	if i+1 >= len(rawLines) {
		return false
	}
	if _, err := strconv.Atoi(strings.TrimSpace(rawLines[i])); err != nil {
		return false
	}
	_, _, err := parseSRTTime(strings.TrimSpace(rawLines[i+1]))
	return err == nil
}

// parseSRTTime parses SRT time format
func parseSRTTime(timeString string) (time.Duration, time.Duration, error) {
	matches := srtTimePattern.FindStringSubmatch(timeString)
	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	parseTime := func(hours, minutes, seconds, fraction string) (time.Duration, error) {
		h, _ := strconv.Atoi(hours)
		m, _ := strconv.Atoi(minutes)
		s, _ := strconv.Atoi(seconds)
		if m > 59 || s > 59 {
			return 0, fmt.Errorf("invalid time format: %s", timeString)
		}
		// "5" and "50" are fractions of a second, not milliseconds
		ms, _ := strconv.Atoi((fraction + "00")[:3])

		return time.Duration(h)*time.Hour +
			time.Duration(m)*time.Minute +
			time.Duration(s)*time.Second +
			time.Duration(ms)*time.Millisecond, nil
	}

	startTime, err := parseTime(matches[1], matches[2], matches[3], matches[4])
	if err != nil {
		return 0, 0, err
	}

	endTime, err := parseTime(matches[5], matches[6], matches[7], matches[8])
	if err != nil {
		return 0, 0, err
	}

	return startTime, endTime, nil
}
