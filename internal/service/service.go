package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/bastianwenske/subtitle-translator/internal/config"
	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/internal/jobs"
	"github.com/bastianwenske/subtitle-translator/internal/library"
	"github.com/bastianwenske/subtitle-translator/internal/media"
	"github.com/bastianwenske/subtitle-translator/internal/subtitle"
	"github.com/bastianwenske/subtitle-translator/internal/translator"
	"github.com/bastianwenske/subtitle-translator/pkg/file"
	"github.com/bastianwenske/subtitle-translator/pkg/icron"
	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

const lockFileName = ".subtrans.lock"

// ErrLocked is returned by Run when another run holds the output directory.
var ErrLocked = errors.New("output directory is locked by another run")

// Service runs the subtitle pipeline over the configured working directory.
type Service struct {
	cfg     config.Config
	batcher *translator.Batcher
	muxer   media.Operator

	scanner  *library.Scanner
	reader   subtitle.Reader
	writer   subtitle.Writer
	store    jobs.Store
	handler  ErrorHandler
	newRunID func() string

	group singleflight.Group
}

// Option customizes the service.
type Option func(*Service)

// WithStore persists every pair result.
func WithStore(store jobs.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithErrorHandler replaces the handler that logs failed pairs.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(s *Service) {
		if handler != nil {
			s.handler = handler
		}
	}
}

// WithRunID overrides how run identifiers are generated.
func WithRunID(newRunID func() string) Option {
	return func(s *Service) {
		if newRunID != nil {
			s.newRunID = newRunID
		}
	}
}

// New creates a service for cfg. cfg is expected to be validated.
func New(cfg config.Config, batcher *translator.Batcher, muxer media.Operator, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		batcher:  batcher,
		muxer:    muxer,
		scanner:  library.NewScanner(cfg.Media.WorkingDirectory, cfg.VideoExt(), cfg.TargetLanguageTag()),
		reader:   subtitle.NewReader(),
		writer:   subtitle.NewWriter(),
		handler:  NewDefaultErrorHandler(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run processes every pair in the working directory once. The returned
// ledger holds one record per pair, also when an error is returned.
func (s *Service) Run(ctx context.Context) (*jobs.Ledger, error) {
	ledger := jobs.NewLedger(s.newRunID(), s.store)

	outDir := s.cfg.Media.OutputDirectory
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ledger, errs.Wrap(err, errs.ErrFileWrite, "failed to create output directory").
			WithContext("path", outDir)
	}

	lock := flock.New(filepath.Join(outDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return ledger, errs.Wrap(err, errs.ErrFileWrite, "failed to acquire run lock").
			WithContext("path", lock.Path())
	}
	if !locked {
		return ledger, errs.Wrap(ErrLocked, errs.ErrFileWrite, "another run is in progress").
			WithContext("path", lock.Path())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release run lock %s: %v", lock.Path(), err)
		}
	}()

	log.Info("[%s] Scanning %s for *.%s", ledger.RunID(), s.cfg.Media.WorkingDirectory, s.cfg.Media.VideoFormat)
	pairs, err := s.scanner.Scan(ctx)
	if err != nil {
		return ledger, err
	}
	log.Info("[%s] Found %d video/subtitle pairs", ledger.RunID(), len(pairs))

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return ledger, err
		}

		var record jobs.Record
		if err := SafeExecute(func() error {
			record = s.processPair(ctx, ledger.RunID(), pair)
			return nil
		}); err != nil {
			record = jobs.Record{Pair: pair, Status: jobs.StatusFailed, Err: err}
		}
		ledger.Add(ctx, record)

		if record.Status != jobs.StatusFailed {
			continue
		}
		s.handler.Handle(record.Err)
		if s.cfg.Run.FailFast {
			log.Warn("[%s] Stopping after first failure", ledger.RunID())
			break
		}
	}

	log.Info("[%s] Run finished: %s", ledger.RunID(), ledger.Summary())
	return ledger, nil
}

// Schedule runs the pipeline on every trigger of cronExpr until ctx is done.
// Overlapping triggers are collapsed into the run already in progress.
func (s *Service) Schedule(ctx context.Context, cronExpr string) error {
	scheduler := cron.New()

	runFunc := func() {
		_, _, _ = s.group.Do("run", func() (any, error) {
			ledger, err := s.Run(ctx)
			if err != nil {
				log.Error("Scheduled run failed: %v", err)
			}
			if table := ledger.Render(); table != "" {
				log.Info("Results of run %s:\n%s", ledger.RunID(), table)
			}
			logNextTrigger(cronExpr)
			return nil, nil
		})
	}
	if _, err := scheduler.AddFunc(cronExpr, runFunc); err != nil {
		return errs.Wrap(err, errs.ErrConfig, "invalid schedule").WithContext("schedule", cronExpr)
	}

	scheduler.Start()
	log.Info("Scheduled subtitle runs with %q", cronExpr)
	logNextTrigger(cronExpr)

	<-ctx.Done()
	log.Info("Stopping scheduler")
	<-scheduler.Stop().Done()
	return nil
}

func logNextTrigger(cronExpr string) {
	info, err := icron.GetTriggerInfo(cronExpr, time.Now())
	if err != nil {
		log.Warn("Failed to compute next trigger for %q: %v", cronExpr, err)
		return
	}
	log.Info("Next run at %s (in %s)", info.Next.Format(time.RFC3339), info.TimeUntilNext.Round(time.Second))
}

// processPair runs parse, translate, serialize and mux for one pair. Every
// outcome, including failures, is returned as a record.
func (s *Service) processPair(ctx context.Context, runID string, pair library.Pair) jobs.Record {
	start := time.Now()
	output := file.ReplaceExt(filepath.Join(s.cfg.Media.OutputDirectory, filepath.Base(pair.VideoPath)), ".mkv")
	record := jobs.Record{Pair: pair, Output: output}

	finish := func(status jobs.Status, stage string, err error) jobs.Record {
		record.Status = status
		record.Stage = stage
		record.Duration = time.Since(start)
		if err != nil {
			record.Err = withStage(err, stage, pair.VideoPath)
		}
		return record
	}

	if !s.cfg.Run.Overwrite && file.Exists(output) {
		log.Info("[%s] Skipping %s: %s already exists", runID, filepath.Base(pair.VideoPath), output)
		return finish(jobs.StatusSkipped, jobs.StageLocate, nil)
	}

	log.Info("[%s] Parsing %s", runID, pair.SubtitlePath)
	sub, err := s.reader.Read(pair.SubtitlePath)
	if err != nil {
		return finish(jobs.StatusFailed, jobs.StageParse, err)
	}
	if changed := subtitle.Normalize(sub); changed > 0 {
		log.Debug("[%s] Stripped markup from %d of %d cues", runID, changed, len(sub.Lines))
	}
	record.Cues = len(sub.Lines)

	from := s.sourceLanguage(sub, pair)
	to := s.cfg.TargetLanguageTag()

	log.Info("[%s] Translating %d cues of %s from %s to %s", runID, len(sub.Lines), filepath.Base(pair.SubtitlePath), langName(from), langCode(to))
	if err := s.batcher.TranslateLines(ctx, sub.Lines, langCode(from), langCode(to)); err != nil {
		return finish(jobs.StatusFailed, jobs.StageTranslate, err)
	}

	tmpDir, err := os.MkdirTemp("", "subtrans-")
	if err != nil {
		return finish(jobs.StatusFailed, jobs.StageSerialize,
			errs.Wrap(err, errs.ErrFileWrite, "failed to create temp directory"))
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Warn("[%s] Failed to remove %s: %v", runID, tmpDir, err)
		}
	}()

	tracks := s.buildTracks(pair.Stem, sub, from, to)
	for i := range tracks {
		path := filepath.Join(tmpDir, tracks[i].name)
		if err := s.writer.Write(path, tracks[i].file); err != nil {
			return finish(jobs.StatusFailed, jobs.StageSerialize, err)
		}
		tracks[i].track.Path = path
	}

	log.Info("[%s] Muxing %d subtitle tracks into %s", runID, len(tracks), output)
	req := media.MuxRequest{
		VideoPath:  pair.VideoPath,
		OutputPath: output,
	}
	if from != language.Und {
		req.AudioTitle = langName(from)
		req.AudioLanguage = from
	}
	for _, t := range tracks {
		req.Tracks = append(req.Tracks, t.track)
	}
	if err := s.muxer.Mux(ctx, req); err != nil {
		return finish(jobs.StatusFailed, jobs.StageMux, err)
	}

	if s.cfg.Translate.KeepSubtitles {
		for _, t := range tracks {
			if !t.keep {
				continue
			}
			path := filepath.Join(s.cfg.Media.OutputDirectory, t.name)
			if err := s.writer.Write(path, t.file); err != nil {
				return finish(jobs.StatusFailed, jobs.StageSerialize, err)
			}
			log.Debug("[%s] Kept %s", runID, path)
		}
	}

	log.Info("[%s] Finished %s in %s", runID, filepath.Base(pair.VideoPath), time.Since(start).Round(time.Millisecond))
	return finish(jobs.StatusSuccess, "", nil)
}

type sidecar struct {
	name  string
	file  *subtitle.File
	track media.Track
	keep  bool
}

// buildTracks returns the subtitle tracks muxed for one pair: the translation
// (default), the bilingual combination when enabled, and the cleaned source.
func (s *Service) buildTracks(stem string, sub *subtitle.File, from, to language.Tag) []sidecar {
	fromCode := langCodeOr(from, language.Und.String())
	toCode := langCode(to)
	translatedTitle := trackTitle(from, to)

	ret := []sidecar{{
		name:  fmt.Sprintf("%s.%s.srt", stem, toCode),
		file:  sub,
		track: media.Track{Language: to, Title: translatedTitle, Default: true},
		keep:  true,
	}}
	if s.cfg.Translate.Bilingual {
		ret = append(ret, sidecar{
			name:  fmt.Sprintf("%s.%s-%s.srt", stem, fromCode, toCode),
			file:  subtitle.Combine(sub),
			track: media.Track{Language: to, Title: langName(from) + " + " + translatedTitle},
			keep:  true,
		})
	}
	ret = append(ret, sidecar{
		name:  fmt.Sprintf("%s.%s.srt", stem, fromCode),
		file:  subtitle.Source(sub),
		track: media.Track{Language: from, Title: langName(from)},
	})
	return ret
}

// sourceLanguage resolves the language the subtitle is written in. With
// auto detection the content wins over the file name; language.Und leaves
// the decision to the translator.
func (s *Service) sourceLanguage(sub *subtitle.File, pair library.Pair) language.Tag {
	if s.cfg.Translate.SourceLanguage != config.AutoDetect {
		return s.cfg.SourceLanguageTag()
	}
	if sub.Language != language.Und {
		return sub.Language
	}
	if pair.SubtitleLanguage != "" {
		if tag, err := language.Parse(pair.SubtitleLanguage); err == nil {
			return tag
		}
	}
	log.Warn("Could not detect the language of %s, leaving it to the translator", pair.SubtitlePath)
	return language.Und
}

// langCode returns the ISO 639-1 code of tag, "" for language.Und.
func langCode(tag language.Tag) string {
	return langCodeOr(tag, "")
}

func langCodeOr(tag language.Tag, fallback string) string {
	if tag == language.Und {
		return fallback
	}
	base, _ := tag.Base()
	return base.String()
}

// langName returns the name of tag in its own language, e.g. "Deutsch".
func langName(tag language.Tag) string {
	if tag == language.Und {
		return tag.String()
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return tag.String()
}

// trackTitle names the translated track in the source language, e.g.
// "Englisch" for a German source.
func trackTitle(from, to language.Tag) string {
	if from != language.Und {
		if name := display.Tags(from).Name(to); name != "" {
			return name
		}
	}
	return langCode(to)
}

func withStage(err error, stage, video string) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.WithContext("stage", stage).WithContext("video", video)
	}
	return errs.Wrap(err, errs.ErrUnknown, "pair failed").
		WithContext("stage", stage).
		WithContext("video", video)
}
