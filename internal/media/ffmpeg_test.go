package media

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
)

const twoSubsProbe = `{
	"streams": [
		{"index": 0, "codec_type": "video", "codec_name": "h264"},
		{"index": 1, "codec_type": "audio", "codec_name": "aac", "tags": {"language": "ger"}},
		{"index": 2, "codec_type": "subtitle", "codec_name": "mov_text", "tags": {"language": "eng", "title": "English SDH"}, "disposition": {"default": 1}},
		{"index": 3, "codec_type": "subtitle", "codec_name": "mov_text"}
	]
}`

// writeFakeProbe writes an ffprobe stand-in that prints output and exits with code.
func writeFakeProbe(t *testing.T, dir, output string, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes are not supported on windows")
	}
	path := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n" + output + "\nJSON\nexit " + strconv.Itoa(code) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestFFmpeg_ReadSubtitleDescription(t *testing.T) {
	tests := []struct {
		name        string
		mockOutput  string
		exitCode    int
		expected    []StreamDescription
		expectError bool
	}{
		{
			name:       "Multiple subtitle streams",
			mockOutput: twoSubsProbe,
			expected: []StreamDescription{
				{Index: 2, Language: "eng", Title: "English SDH", Default: true},
				{Index: 3, Language: "und"},
			},
		},
		{
			name:       "No subtitle streams",
			mockOutput: `{"streams": [{"codec_type": "video", "codec_name": "h264"}]}`,
			expected:   []StreamDescription{},
		},
		{
			name:        "Invalid JSON",
			mockOutput:  `{"streams": [invalid json`,
			expectError: true,
		},
		{
			name:       "Valid JSON with non-zero exit",
			mockOutput: `{"streams": [{"index": 0, "codec_type": "subtitle", "tags": {"language": "ger", "title": "Deutsch"}}]}`,
			exitCode:   1,
			expected: []StreamDescription{
				{Index: 0, Language: "ger", Title: "Deutsch"},
			},
		},
		{
			name:        "Non-zero exit without streams should fail",
			mockOutput:  `{}`,
			exitCode:    1,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDir := t.TempDir()
			writeFakeProbe(t, mockDir, tt.mockOutput, tt.exitCode)
			t.Setenv("PATH", mockDir+string(os.PathListSeparator)+os.Getenv("PATH"))

			result, err := NewFfmpeg().ReadSubtitleDescription(context.Background(), "dummy.mp4")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, result, len(tt.expected))
			for i, want := range tt.expected {
				assert.Equal(t, want.Index, result[i].Index)
				assert.Equal(t, want.Language, result[i].Language)
				assert.Equal(t, want.Title, result[i].Title)
				assert.Equal(t, want.Default, result[i].Default)
				if want.Language == "und" {
					assert.Equal(t, language.Und, result[i].LangTag)
				} else {
					assert.NotEqual(t, language.Und, result[i].LangTag)
				}
			}
		})
	}
}

func TestFFmpeg_ProbeStreamsMissingBinary(t *testing.T) {
	t.Setenv("PATH", "")

	_, err := NewFfmpeg().ProbeStreams(context.Background(), "test.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffprobe")
}

func TestFFmpeg_readProbeArgs(t *testing.T) {
	assert.Equal(t, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"/path/to/video.mp4",
	}, NewFfmpeg().readProbeArgs("/path/to/video.mp4"))
}

func TestFFmpeg_muxArgs(t *testing.T) {
	req := MuxRequest{
		VideoPath:  "/media/movie.mp4",
		OutputPath: "/media/output/movie.mkv",
		Tracks: []Track{
			{Path: "/tmp/movie.en.srt", Language: language.English, Title: "Englisch", Default: true},
			{Path: "/tmp/movie.de.srt", Language: language.German, Title: "Deutsch"},
		},
		AudioTitle:    "Deutsch",
		AudioLanguage: language.German,
	}

	args := NewFfmpeg().muxArgs(req, 2, "/media/output/.movie.tmp.mkv")
	joined := strings.Join(args, " ")

	assert.True(t, strings.HasPrefix(joined, "-hide_banner -nostdin -y -i /media/movie.mp4 -i /tmp/movie.en.srt -i /tmp/movie.de.srt"))
	assert.Contains(t, joined, "-map 0:v -map 0:a? -map 0:s? -map 1:0 -map 2:0")
	assert.Contains(t, joined, "-c copy -threads "+strconv.Itoa(runtime.NumCPU()))
	assert.Contains(t, joined, "-c:s:2 srt -metadata:s:s:2 language=eng -metadata:s:s:2 title=Englisch -disposition:s:2 default")
	assert.Contains(t, joined, "-c:s:3 srt -metadata:s:s:3 language=deu -metadata:s:s:3 title=Deutsch -disposition:s:3 0")
	// the video's own subtitle streams 0 and 1 are copied, not re-encoded
	assert.NotContains(t, args, "-c:s")
	assert.NotContains(t, args, "-c:s:0")
	assert.NotContains(t, args, "-c:s:1")
	assert.Contains(t, joined, "-metadata:s:a title=Deutsch -metadata:s:a language=deu")
	assert.True(t, strings.HasSuffix(joined, "-f matroska /media/output/.movie.tmp.mkv"))
	assert.NotContains(t, args, "-c:v")
}

func TestISO3(t *testing.T) {
	assert.Equal(t, "eng", iso3(language.English))
	assert.Equal(t, "deu", iso3(language.German))
	assert.Equal(t, "und", iso3(language.Und))
}

type muxFixture struct {
	dir    string
	video  string
	track  string
	output string
	probe  string
}

func newMuxFixture(t *testing.T) muxFixture {
	t.Helper()
	dir := t.TempDir()
	fx := muxFixture{
		dir:    dir,
		video:  filepath.Join(dir, "movie.mp4"),
		track:  filepath.Join(dir, "movie.en.srt"),
		output: filepath.Join(dir, "output", "movie.mkv"),
	}
	require.NoError(t, os.WriteFile(fx.video, []byte("original video"), 0o644))
	require.NoError(t, os.WriteFile(fx.track, []byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n\n"), 0o644))
	fx.probe = writeFakeProbe(t, dir, twoSubsProbe, 0)
	return fx
}

func (fx muxFixture) request() MuxRequest {
	return MuxRequest{
		VideoPath:  fx.video,
		OutputPath: fx.output,
		Tracks:     []Track{{Path: fx.track, Language: language.English, Title: "Englisch", Default: true}},
	}
}

func TestFFmpeg_MuxWritesOutputAtomically(t *testing.T) {
	fx := newMuxFixture(t)

	var gotArgs []string
	runner := func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		tmp := args[len(args)-1]
		assert.Contains(t, filepath.Base(tmp), ".tmp.mkv")
		return os.WriteFile(tmp, []byte("muxed"), 0o644)
	}

	ff := NewFfmpeg(WithFFprobePath(fx.probe), WithCommandRunner(runner))
	require.NoError(t, ff.Mux(context.Background(), fx.request()))

	data, err := os.ReadFile(fx.output)
	require.NoError(t, err)
	assert.Equal(t, "muxed", string(data))
	assert.Contains(t, gotArgs, "-metadata:s:s:2")

	original, err := os.ReadFile(fx.video)
	require.NoError(t, err)
	assert.Equal(t, "original video", string(original))

	entries, err := os.ReadDir(filepath.Dir(fx.output))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be gone")
}

func TestFFmpeg_MuxFailureRemovesTempFile(t *testing.T) {
	fx := newMuxFixture(t)

	runner := func(ctx context.Context, name string, args ...string) error {
		require.NoError(t, os.WriteFile(args[len(args)-1], []byte("partial"), 0o644))
		return errors.New("exit status 1: Invalid data found when processing input")
	}

	ff := NewFfmpeg(WithFFprobePath(fx.probe), WithCommandRunner(runner))
	err := ff.Mux(context.Background(), fx.request())
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrMux))
	assert.Contains(t, err.Error(), "Invalid data found")

	_, statErr := os.Stat(fx.output)
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(filepath.Dir(fx.output))
	require.NoError(t, err)
	assert.Empty(t, entries)

	original, err := os.ReadFile(fx.video)
	require.NoError(t, err)
	assert.Equal(t, "original video", string(original))
}

func TestFFmpeg_MuxNoOutputProduced(t *testing.T) {
	fx := newMuxFixture(t)

	runner := func(ctx context.Context, name string, args ...string) error { return nil }

	err := NewFfmpeg(WithFFprobePath(fx.probe), WithCommandRunner(runner)).Mux(context.Background(), fx.request())
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrMux))
}

func TestFFmpeg_MuxTimeout(t *testing.T) {
	fx := newMuxFixture(t)

	runner := func(ctx context.Context, name string, args ...string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	ff := NewFfmpeg(WithFFprobePath(fx.probe), WithCommandRunner(runner), WithTimeout(300*time.Millisecond))
	err := ff.Mux(context.Background(), fx.request())
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrMux))
	assert.Contains(t, err.Error(), "timed out")
}

func TestFFmpeg_MuxValidation(t *testing.T) {
	fx := newMuxFixture(t)
	ff := NewFfmpeg(WithFFprobePath(fx.probe), WithCommandRunner(func(context.Context, string, ...string) error {
		t.Fatal("ffmpeg must not run")
		return nil
	}))

	req := fx.request()
	req.OutputPath = fx.video
	assert.True(t, errs.IsType(ff.Mux(context.Background(), req), errs.ErrMux))

	req = fx.request()
	req.Tracks = nil
	assert.True(t, errs.IsType(ff.Mux(context.Background(), req), errs.ErrMux))

	req = fx.request()
	req.VideoPath = filepath.Join(fx.dir, "missing.mp4")
	assert.True(t, errs.IsType(ff.Mux(context.Background(), req), errs.ErrNotFound))

	req = fx.request()
	req.Tracks[0].Path = filepath.Join(fx.dir, "missing.srt")
	assert.True(t, errs.IsType(ff.Mux(context.Background(), req), errs.ErrNotFound))
}

func TestFFmpeg_MuxMissingBinary(t *testing.T) {
	fx := newMuxFixture(t)

	ff := NewFfmpeg(WithFFprobePath(fx.probe), WithFFmpegPath(filepath.Join(fx.dir, "no-such-ffmpeg")))
	err := ff.Mux(context.Background(), fx.request())
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrMux))
}

// TestRealFFmpegMux muxes a generated clip with the real binaries if available.
func TestRealFFmpegMux(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping test that requires actual ffmpeg")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available, skipping real test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available, skipping real test")
	}

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	gen := exec.Command("ffmpeg", "-hide_banner", "-nostdin", "-y",
		"-f", "lavfi", "-i", "color=c=black:s=64x64:d=2",
		"-f", "lavfi", "-i", "anullsrc=r=8000:cl=mono",
		"-t", "2", "-c:v", "mpeg4", "-c:a", "aac", "-shortest", video)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test clip: %v: %s", err, out)
	}

	track := filepath.Join(dir, "clip.en.srt")
	require.NoError(t, os.WriteFile(track, []byte("1\n00:00:00,500 --> 00:00:01,500\nHello\n\n"), 0o644))

	output := filepath.Join(dir, "output", "clip.mkv")
	ff := NewFfmpeg(WithTimeout(time.Minute))
	require.NoError(t, ff.Mux(context.Background(), MuxRequest{
		VideoPath:     video,
		OutputPath:    output,
		Tracks:        []Track{{Path: track, Language: language.English, Title: "Englisch", Default: true}},
		AudioTitle:    "Deutsch",
		AudioLanguage: language.German,
	}))

	subs, err := ff.ReadSubtitleDescription(context.Background(), output)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "eng", subs[0].Language)
	assert.Equal(t, "Englisch", subs[0].Title)
}
