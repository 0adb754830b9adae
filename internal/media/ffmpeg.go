package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/pkg/file"
	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

// commandRunner runs a command to completion. Errors carry the command output.
type commandRunner func(ctx context.Context, name string, args ...string) error

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	timeout    time.Duration
	run        commandRunner
}

// Option customizes the ffmpeg operator.
type Option func(*ffmpeg)

// WithFFmpegPath overrides the ffmpeg binary (name on PATH or absolute path).
func WithFFmpegPath(path string) Option {
	return func(f *ffmpeg) {
		if path != "" {
			f.ffmpegCmd = path
		}
	}
}

// WithFFprobePath overrides the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(f *ffmpeg) {
		if path != "" {
			f.ffprobeCmd = path
		}
	}
}

// WithTimeout bounds every ffmpeg and ffprobe invocation. Zero means no limit.
func WithTimeout(timeout time.Duration) Option {
	return func(f *ffmpeg) {
		f.timeout = timeout
	}
}

// WithCommandRunner replaces how ffmpeg is executed, for tests.
func WithCommandRunner(run commandRunner) Option {
	return func(f *ffmpeg) {
		if run != nil {
			f.run = run
		}
	}
}

func NewFfmpeg(opts ...Option) ffmpeg {
	ff := ffmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		run:        defaultCommandRunner,
	}
	for _, opt := range opts {
		opt(&ff)
	}
	return ff
}

func (ff ffmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ff.timeout > 0 {
		return context.WithTimeout(ctx, ff.timeout)
	}
	return context.WithCancel(ctx)
}

// ProbeStreams lists all streams of path.
func (ff ffmpeg) ProbeStreams(ctx context.Context, path string) ([]StreamDescription, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return nil, err
	}

	ctx, cancel := ff.withTimeout(ctx)
	defer cancel()

	output, runErr := exec.CommandContext(ctx, cmdPath, ff.readProbeArgs(path)...).Output()

	var probeResult struct {
		Streams []struct {
			Index     int    `json:"index"`
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Tags      struct {
				Language string `json:"language"`
				Title    string `json:"title"`
			} `json:"tags"`
			Disposition struct {
				Default int `json:"default"`
			} `json:"disposition"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		if runErr != nil {
			log.Error("Failed to run ffprobe on %s: %v", path, runErr)
			return nil, fmt.Errorf("ffprobe %s: %w", path, runErr)
		}
		log.Error("Failed to parse ffprobe output: %v", err)
		return nil, err
	}
	// ffprobe sometimes exits non-zero on damaged files but still reports streams
	if runErr != nil {
		if len(probeResult.Streams) == 0 {
			return nil, fmt.Errorf("ffprobe %s: %w", path, runErr)
		}
		log.Warn("ffprobe exited with %v for %s, using reported streams", runErr, path)
	}

	descriptions := make([]StreamDescription, 0, len(probeResult.Streams))
	for _, stream := range probeResult.Streams {
		desc := StreamDescription{
			Index:     stream.Index,
			CodecType: stream.CodecType,
			CodecName: stream.CodecName,
			Language:  stream.Tags.Language,
			Title:     stream.Tags.Title,
			LangTag:   language.Make(stream.Tags.Language),
			Default:   stream.Disposition.Default == 1,
		}
		if desc.Language == "" {
			desc.Language = "und" // undefined
			desc.LangTag = language.Und
		}
		descriptions = append(descriptions, desc)
	}

	return descriptions, nil
}

// ReadSubtitleDescription lists the subtitle streams of path.
func (ff ffmpeg) ReadSubtitleDescription(ctx context.Context, path string) ([]StreamDescription, error) {
	streams, err := ff.ProbeStreams(ctx, path)
	if err != nil {
		return nil, err
	}
	ret := make([]StreamDescription, 0)
	for _, s := range streams {
		if s.CodecType == "subtitle" {
			ret = append(ret, s)
		}
	}
	return ret, nil
}

// Mux copies every stream of the video into a new Matroska file and adds
// the requested subtitle tracks. The output appears only when ffmpeg
// succeeds; the input video is never modified.
func (ff ffmpeg) Mux(ctx context.Context, req MuxRequest) error {
	if err := validateMuxRequest(req); err != nil {
		return err
	}

	existing, err := ff.ReadSubtitleDescription(ctx, req.VideoPath)
	if err != nil {
		return errs.Wrap(err, errs.ErrMux, "failed to probe video streams").
			WithContext("video", req.VideoPath)
	}

	outDir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errs.Wrap(err, errs.ErrFileWrite, "failed to create output directory").
			WithContext("path", outDir)
	}

	tmpPath := filepath.Join(outDir, fmt.Sprintf(".%s.%s.tmp.mkv", file.Stem(req.OutputPath), uuid.NewString()))
	args := ff.muxArgs(req, len(existing), tmpPath)

	log.Debug("Running %s %s", ff.ffmpegCmd, strings.Join(args, " "))

	runCtx, cancel := ff.withTimeout(ctx)
	defer cancel()

	if err := ff.run(runCtx, ff.ffmpegCmd, args...); err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", ff.timeout, err)
		}
		return errs.Wrap(err, errs.ErrMux, "ffmpeg failed").
			WithContext("video", req.VideoPath).
			WithContext("output", req.OutputPath)
	}

	if _, err := os.Stat(tmpPath); err != nil {
		return errs.Wrap(err, errs.ErrMux, "ffmpeg did not produce output file").
			WithContext("video", req.VideoPath)
	}

	if err := os.Rename(tmpPath, req.OutputPath); err != nil {
		_ = os.Remove(tmpPath)
		return errs.Wrap(err, errs.ErrMux, "failed to move output into place").
			WithContext("output", req.OutputPath)
	}

	log.Info("Muxed %d subtitle tracks into %s", len(req.Tracks), req.OutputPath)
	return nil
}

func validateMuxRequest(req MuxRequest) error {
	if strings.TrimSpace(req.VideoPath) == "" || strings.TrimSpace(req.OutputPath) == "" {
		return errs.New(errs.ErrMux, "video and output paths are required")
	}
	if len(req.Tracks) == 0 {
		return errs.New(errs.ErrMux, "at least one subtitle track is required").
			WithContext("video", req.VideoPath)
	}
	if samePath(req.VideoPath, req.OutputPath) {
		return errs.New(errs.ErrMux, "output would overwrite the input video").
			WithContext("video", req.VideoPath)
	}
	if _, err := os.Stat(req.VideoPath); err != nil {
		return errs.Wrap(err, errs.ErrNotFound, "video file not found").
			WithContext("path", req.VideoPath)
	}
	for _, track := range req.Tracks {
		if _, err := os.Stat(track.Path); err != nil {
			return errs.Wrap(err, errs.ErrNotFound, "subtitle track not found").
				WithContext("path", track.Path)
		}
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func (ffmpeg) readProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	}
}

// muxArgs builds the ffmpeg arguments. New subtitle streams are numbered
// after the existingSubs subtitle streams already in the video.
func (ff ffmpeg) muxArgs(req MuxRequest, existingSubs int, outputPath string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", req.VideoPath}
	for _, track := range req.Tracks {
		args = append(args, "-i", track.Path)
	}

	args = append(args, "-map", "0:v", "-map", "0:a?", "-map", "0:s?")
	for i := range req.Tracks {
		args = append(args, "-map", strconv.Itoa(i+1)+":0")
	}

	args = append(args,
		"-c", "copy",
		"-threads", strconv.Itoa(runtime.NumCPU()),
	)

	// Existing subtitle streams stay stream-copied; only the added SRT inputs
	// are encoded, so bitmap and ASS tracks survive untouched.
	for i, track := range req.Tracks {
		index := strconv.Itoa(existingSubs + i)
		stream := "s:s:" + index
		args = append(args, "-c:s:"+index, "srt")
		args = append(args, "-metadata:"+stream, "language="+iso3(track.Language))
		if track.Title != "" {
			args = append(args, "-metadata:"+stream, "title="+track.Title)
		}
		disposition := "0"
		if track.Default {
			disposition = "default"
		}
		args = append(args, "-disposition:s:"+index, disposition)
	}

	if req.AudioTitle != "" {
		args = append(args, "-metadata:s:a", "title="+req.AudioTitle)
	}
	if req.AudioLanguage != language.Und {
		args = append(args, "-metadata:s:a", "language="+iso3(req.AudioLanguage))
	}

	return append(args, "-f", "matroska", outputPath)
}

// iso3 returns the ISO 639-2 code Matroska expects, "und" when unknown.
func iso3(tag language.Tag) string {
	base, conf := tag.Base()
	if conf == language.No || tag == language.Und {
		return "und"
	}
	if code := base.ISO3(); code != "" {
		return code
	}
	return "und"
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, tailOutput(string(output), 2000))
	}
	return nil
}

// tailOutput keeps the end of long ffmpeg logs, where the error is.
func tailOutput(output string, limit int) string {
	output = strings.TrimSpace(output)
	if len(output) <= limit {
		return output
	}
	return "..." + output[len(output)-limit:]
}
