package library

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/pkg/file"
	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

var subtitleExts = []string{".srt"}

// subtitleTags are suffixes that mark a subtitle variant without naming a
// language.
var subtitleTags = []string{"forced", "sdh", "cc", "full"}

// Scanner finds video files and their subtitles in a single directory.
type Scanner struct {
	dir            string
	videoExt       string
	targetLanguage language.Tag
}

// NewScanner creates a scanner for videos with the given extension ("mp4" or
// ".mp4"). Subtitles already in targetLanguage are never used as a source.
func NewScanner(dir, videoFormat string, targetLanguage language.Tag) *Scanner {
	return &Scanner{
		dir:            dir,
		videoExt:       file.NormalizeExt(videoFormat),
		targetLanguage: targetLanguage,
	}
}

// Scan returns the video/subtitle pairs in the directory, sorted by video
// path. Videos without a subtitle are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]Pair, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrNotFound, "working directory is not accessible").
			WithContext("path", s.dir)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.ErrNotFound, "working directory is not a directory").
			WithContext("path", s.dir)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrNotFound, "failed to list working directory").
			WithContext("path", s.dir)
	}

	var subtitles []string
	var videos []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case ext == s.videoExt:
			videos = append(videos, name)
		case slices.Contains(subtitleExts, ext):
			subtitles = append(subtitles, name)
		}
	}
	sort.Strings(videos)
	sort.Strings(subtitles)

	videoStems := make([]string, 0, len(videos))
	for _, video := range videos {
		videoStems = append(videoStems, strings.TrimSuffix(video, filepath.Ext(video)))
	}

	ret := make([]Pair, 0, len(videos))
	for _, video := range videos {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		stem := strings.TrimSuffix(video, filepath.Ext(video))
		sub, token := s.findSubtitle(stem, subtitles, videoStems)
		if sub == "" {
			log.Debug("No subtitle found for %s, skipping", video)
			continue
		}

		ret = append(ret, Pair{
			VideoPath:        filepath.Join(s.dir, video),
			SubtitlePath:     filepath.Join(s.dir, sub),
			Stem:             stem,
			SubtitleLanguage: normalizeLangCode(token),
		})
	}
	return ret, nil
}

// findSubtitle picks the source subtitle for a video stem. An exact stem
// match wins, otherwise the first candidate suffixed with a language code or
// variant tag that is not already in the target language. Candidates that
// belong to a video with a longer matching stem are never used.
func (s *Scanner) findSubtitle(mediaBase string, subtitles, videoStems []string) (name, token string) {
	for _, candidate := range subtitles {
		stem := strings.TrimSuffix(candidate, filepath.Ext(candidate))
		if stem == mediaBase {
			return candidate, ""
		}
	}

	for _, candidate := range subtitles {
		stem := strings.TrimSuffix(candidate, filepath.Ext(candidate))
		if !subtitleMatchesMediaBase(stem, mediaBase) || claimedByOtherVideo(stem, mediaBase, videoStems) {
			continue
		}
		token := subtitleLangToken(stem, mediaBase)
		if token == "" && !hasSubtitleTag(stem, mediaBase) {
			continue
		}
		if token != "" && isTargetLanguage(token, s.targetLanguage) {
			log.Debug("Ignoring %s: already in target language", candidate)
			continue
		}
		return candidate, token
	}
	return "", ""
}

// claimedByOtherVideo reports whether stem matches a video whose stem is
// longer than mediaBase, e.g. "Film 2.de" for "Film 2" rather than "Film".
func claimedByOtherVideo(stem, mediaBase string, videoStems []string) bool {
	for _, other := range videoStems {
		if len(other) > len(mediaBase) && subtitleMatchesMediaBase(stem, other) {
			return true
		}
	}
	return false
}

func suffixParts(stem, mediaBase string) []string {
	remain := strings.TrimPrefix(stem, mediaBase)
	remain = strings.TrimLeft(remain, "._- ")
	return strings.FieldsFunc(remain, func(r rune) bool {
		return r == '.' || r == '_' || r == ' '
	})
}

func hasSubtitleTag(stem, mediaBase string) bool {
	for _, part := range suffixParts(stem, mediaBase) {
		if slices.Contains(subtitleTags, strings.ToLower(part)) {
			return true
		}
	}
	return false
}

func subtitleLangToken(stem, mediaBase string) string {
	parts := suffixParts(stem, mediaBase)
	for i := len(parts) - 1; i >= 0; i-- {
		token := strings.ToLower(parts[i])
		if normalizeLangCode(token) != "" {
			return token
		}
	}
	return ""
}

// normalizeLangCode validates a language token and returns its normalized
// ISO 639-1 base code (e.g. "ger"→"de", "eng"→"en").
// Returns "" if the token is not a recognized language code.
func normalizeLangCode(token string) string {
	if token == "" {
		return ""
	}
	tag, err := language.Parse(token)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

func isTargetLanguage(token string, target language.Tag) bool {
	token = strings.ToLower(strings.ReplaceAll(token, "_", "-"))
	if token == "" {
		return false
	}

	base, _ := target.Base()
	targetBase := strings.ToLower(base.String())
	if token == targetBase || strings.HasPrefix(token, targetBase+"-") {
		return true
	}
	return normalizeLangCode(token) == targetBase
}

func subtitleMatchesMediaBase(stem, mediaBase string) bool {
	if stem == mediaBase {
		return true
	}
	if !strings.HasPrefix(stem, mediaBase) || len(stem) <= len(mediaBase) {
		return false
	}
	switch stem[len(mediaBase)] {
	case '.', '_', '-', ' ':
		return true
	default:
		return false
	}
}
