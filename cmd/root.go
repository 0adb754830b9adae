package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bastianwenske/subtitle-translator/internal/azure"
	"github.com/bastianwenske/subtitle-translator/internal/config"
	"github.com/bastianwenske/subtitle-translator/internal/media"
	"github.com/bastianwenske/subtitle-translator/internal/persistence"
	"github.com/bastianwenske/subtitle-translator/internal/service"
	"github.com/bastianwenske/subtitle-translator/internal/translator"
	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

// errPairsFailed makes the process exit non-zero after a run with failures.
var errPairsFailed = errors.New("one or more subtitle pairs failed")

type rootFlags struct {
	configPath string

	workingDirectory string
	videoFormat      string
	outputDirectory  string

	endpoint string
	apiKey   string
	region   string

	sourceLanguage   string
	targetLanguage   string
	batchSize        int
	batchChars       int
	retries          int
	translateTimeout time.Duration
	muxTimeout       time.Duration
	ffmpegPath       string
	ffprobePath      string

	bilingual     bool
	keepSubtitles bool
	overwrite     bool
	failFast      bool
	cacheDB       string
	schedule      string

	logFile  string
	logLevel string
	debug    bool
}

// dependencies holds the collaborators that tests replace.
type dependencies struct {
	newMuxer func(cfg *config.Config) media.Operator
}

func defaultDependencies() dependencies {
	return dependencies{
		newMuxer: func(cfg *config.Config) media.Operator {
			return media.NewOperator(
				media.WithFFmpegPath(cfg.FFmpeg.FFmpegPath),
				media.WithFFprobePath(cfg.FFmpeg.FFprobePath),
				media.WithTimeout(cfg.FFmpeg.MuxTimeout),
			)
		},
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(defaultDependencies())
}

func newRootCommandWith(deps dependencies) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "subtrans",
		Short: "Translate SRT subtitles with Azure Translator and mux them into MKV",
		Long: `subtrans pairs every video in the working directory with its SRT subtitle,
translates the subtitle with Azure Translator and writes <stem>.mkv with the
translated, bilingual and original subtitle tracks to the output directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRoot(ctx, cmd, flags, deps)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "TOML settings file (env: SUBTRANS_CONFIG)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	f := rootCmd.Flags()
	f.StringVar(&flags.workingDirectory, "working-directory", "", "Directory with the videos and subtitles")
	f.StringVar(&flags.videoFormat, "video-format", "", "Extension of the videos to process, e.g. mp4")
	f.StringVar(&flags.outputDirectory, "output-directory", "", "Output directory (default <working-directory>/output)")
	f.StringVar(&flags.endpoint, "azure-translator-endpoint", "", "Azure Translator endpoint")
	f.StringVar(&flags.apiKey, "azure-api-key", "", "Azure Translator subscription key")
	f.StringVar(&flags.region, "azure-region", "", "Azure resource region")
	f.StringVar(&flags.sourceLanguage, "source-language", "de", `Subtitle language, or "auto"`)
	f.StringVar(&flags.targetLanguage, "target-language", "en", "Language to translate to")
	f.IntVar(&flags.batchSize, "batch-size", 100, fmt.Sprintf("Cues per request (max %d)", translator.MaxItemsPerRequest))
	f.IntVar(&flags.batchChars, "batch-chars", 10000, fmt.Sprintf("Characters per request (max %d)", translator.MaxCharsPerRequest))
	f.IntVar(&flags.retries, "retries", 3, "Attempts per batch")
	f.DurationVar(&flags.translateTimeout, "translate-timeout", 30*time.Second, "Timeout of one translation request")
	f.DurationVar(&flags.muxTimeout, "mux-timeout", 30*time.Minute, "Timeout of one ffmpeg run")
	f.StringVar(&flags.ffmpegPath, "ffmpeg", "ffmpeg", "ffmpeg binary")
	f.StringVar(&flags.ffprobePath, "ffprobe", "ffprobe", "ffprobe binary")
	f.BoolVar(&flags.bilingual, "bilingual", true, "Add a track with source and translation")
	f.BoolVar(&flags.keepSubtitles, "keep-subtitles", false, "Write the generated SRT files to the output directory")
	f.BoolVar(&flags.overwrite, "overwrite", false, "Replace existing outputs")
	f.BoolVar(&flags.failFast, "fail-fast", false, "Stop at the first failed pair")
	f.StringVar(&flags.cacheDB, "cache-db", "", "SQLite file caching translations")
	f.StringVar(&flags.schedule, "schedule", "", "Cron expression; keep running and process the directory on every trigger")
	f.StringVar(&flags.logFile, "log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

func runRoot(ctx context.Context, cmd *cobra.Command, flags *rootFlags, deps dependencies) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(flags.configPath, flags.options(cmd)...)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := azure.NewClient(&azure.Config{
		Endpoint: cfg.Azure.Endpoint,
		APIKey:   cfg.Azure.APIKey,
		Region:   cfg.Azure.Region,
		Timeout:  cfg.Azure.Timeout,
	})
	if err != nil {
		return err
	}

	batcherOpts := []translator.Option{
		translator.WithLimits(translator.Limits{MaxItems: cfg.Translate.BatchSize, MaxChars: cfg.Translate.BatchChars}),
		translator.WithAttempts(cfg.Translate.Retries),
	}
	var serviceOpts []service.Option
	if cfg.Run.CacheDB != "" {
		store, err := persistence.NewSQLiteStore(cfg.Run.CacheDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn("Failed to close %s: %v", cfg.Run.CacheDB, err)
			}
		}()
		log.Info("Using translation cache %s", cfg.Run.CacheDB)
		batcherOpts = append(batcherOpts, translator.WithCache(store))
		serviceOpts = append(serviceOpts, service.WithStore(store))
	}

	svc := service.New(*cfg, translator.NewBatcher(client, batcherOpts...), deps.newMuxer(cfg), serviceOpts...)

	if cfg.Run.Schedule != "" {
		return svc.Schedule(ctx, cfg.Run.Schedule)
	}

	ledger, err := svc.Run(ctx)
	out := cmd.OutOrStdout()
	if table := ledger.Render(); table != "" {
		fmt.Fprintln(out, table)
	}
	fmt.Fprintln(out, ledger.Summary())
	if err != nil {
		return err
	}
	if ledger.Failed() > 0 {
		return errPairsFailed
	}
	return nil
}

// options turns the flags set on the command line into config options.
// Unset flags leave the file and environment values alone.
func (f *rootFlags) options(cmd *cobra.Command) []config.Option {
	changed := func(name string) bool {
		return cmd.Flags().Changed(name)
	}

	var opts []config.Option
	add := func(name string, opt config.Option) {
		if changed(name) {
			opts = append(opts, opt)
		}
	}

	add("working-directory", func(c *config.Config) { c.Media.WorkingDirectory = f.workingDirectory })
	add("video-format", func(c *config.Config) { c.Media.VideoFormat = f.videoFormat })
	add("output-directory", func(c *config.Config) { c.Media.OutputDirectory = f.outputDirectory })
	add("azure-translator-endpoint", func(c *config.Config) { c.Azure.Endpoint = f.endpoint })
	add("azure-api-key", func(c *config.Config) { c.Azure.APIKey = f.apiKey })
	add("azure-region", func(c *config.Config) { c.Azure.Region = f.region })
	add("source-language", func(c *config.Config) { c.Translate.SourceLanguage = f.sourceLanguage })
	add("target-language", func(c *config.Config) { c.Translate.TargetLanguage = f.targetLanguage })
	add("batch-size", func(c *config.Config) { c.Translate.BatchSize = f.batchSize })
	add("batch-chars", func(c *config.Config) { c.Translate.BatchChars = f.batchChars })
	add("retries", func(c *config.Config) { c.Translate.Retries = f.retries })
	add("translate-timeout", func(c *config.Config) { c.Azure.Timeout = f.translateTimeout })
	add("mux-timeout", func(c *config.Config) { c.FFmpeg.MuxTimeout = f.muxTimeout })
	add("ffmpeg", func(c *config.Config) { c.FFmpeg.FFmpegPath = f.ffmpegPath })
	add("ffprobe", func(c *config.Config) { c.FFmpeg.FFprobePath = f.ffprobePath })
	add("bilingual", func(c *config.Config) { c.Translate.Bilingual = f.bilingual })
	add("keep-subtitles", func(c *config.Config) { c.Translate.KeepSubtitles = f.keepSubtitles })
	add("overwrite", func(c *config.Config) { c.Run.Overwrite = f.overwrite })
	add("fail-fast", func(c *config.Config) { c.Run.FailFast = f.failFast })
	add("cache-db", func(c *config.Config) { c.Run.CacheDB = f.cacheDB })
	add("schedule", func(c *config.Config) { c.Run.Schedule = f.schedule })
	add("log-file", func(c *config.Config) { c.Log.File = f.logFile })
	add("log-level", func(c *config.Config) { c.Log.Level = f.logLevel })
	add("debug", func(c *config.Config) { c.Log.Debug = f.debug })

	return opts
}

func logLevel(cfg *config.Config) log.LogLevel {
	if cfg.Log.Debug {
		return log.LevelDebug
	}
	return log.ParseLevel(cfg.Log.Level)
}

// setupLogging installs the global logger. The returned func closes the log
// file, if any.
func setupLogging(cfg *config.Config, stdout io.Writer) (func(), error) {
	level := logLevel(cfg)
	if cfg.Log.File == "" {
		logger := log.NewLogger(level)
		logger.SetOutput(stdout)
		log.SetLogger(logger)
		return func() {}, nil
	}

	fileLogger, err := log.NewFileLogger(cfg.Log.File, level, stdout)
	if err != nil {
		return nil, fmt.Errorf("set up log file: %w", err)
	}
	log.SetLogger(fileLogger.Logger)
	return func() { _ = fileLogger.Close() }, nil
}
