package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/internal/translator"
	"github.com/bastianwenske/subtitle-translator/pkg/file"
)

// AutoDetect as source language lets the subtitle content decide.
const AutoDetect = "auto"

// Config holds all application configuration.
// Values are resolved from defaults, the TOML settings file, the environment
// and command line flags, each overriding the previous.
//
// Environment Variables:
// - SUBTRANS_WORKING_DIRECTORY, SUBTRANS_VIDEO_FORMAT, SUBTRANS_OUTPUT_DIRECTORY
// - AZURE_TRANSLATOR_ENDPOINT, AZURE_API_KEY, AZURE_REGION
// - SUBTRANS_SOURCE_LANGUAGE (default: de), SUBTRANS_TARGET_LANGUAGE (default: en)
// - SUBTRANS_BATCH_SIZE (default: 100), SUBTRANS_BATCH_CHARS (default: 10000)
// - SUBTRANS_RETRIES (default: 3), SUBTRANS_TRANSLATE_TIMEOUT (default: 30s)
// - SUBTRANS_MUX_TIMEOUT (default: 30m), FFMPEG_PATH, FFPROBE_PATH
// - SUBTRANS_CACHE_DB, SUBTRANS_SCHEDULE, SUBTRANS_LOG_FILE, SUBTRANS_LOG_LEVEL, SUBTRANS_DEBUG
type Config struct {
	Media     MediaConfig
	Azure     AzureConfig
	Translate TranslateConfig
	FFmpeg    FFmpegConfig
	Run       RunConfig
	Log       LogConfig
}

// MediaConfig locates the input files and the output directory
type MediaConfig struct {
	WorkingDirectory string
	VideoFormat      string
	// OutputDirectory defaults to <WorkingDirectory>/output
	OutputDirectory string
}

type AzureConfig struct {
	Endpoint string
	APIKey   string
	Region   string
	Timeout  time.Duration
}

type TranslateConfig struct {
	SourceLanguage string // ISO 639-1 code or "auto"
	TargetLanguage string
	BatchSize      int
	BatchChars     int
	Retries        int
	// Bilingual adds a combined source+translation track.
	Bilingual bool
	// KeepSubtitles writes the generated SRT files next to the output.
	KeepSubtitles bool
}

type FFmpegConfig struct {
	FFmpegPath  string
	FFprobePath string
	MuxTimeout  time.Duration
}

type RunConfig struct {
	Overwrite bool
	FailFast  bool
	CacheDB   string
	Schedule  string // cron expression, empty for a single run
}

type LogConfig struct {
	Level string // debug, info, warn or error; Debug wins when set
	Debug bool
	File  string
}

// Option is a function type for configuring Config
type Option func(*Config)

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Azure: AzureConfig{
			Timeout: 30 * time.Second,
		},
		Translate: TranslateConfig{
			SourceLanguage: "de",
			TargetLanguage: "en",
			BatchSize:      100,
			BatchChars:     10000,
			Retries:        3,
			Bilingual:      true,
		},
		FFmpeg: FFmpegConfig{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
			MuxTimeout:  30 * time.Minute,
		},
	}
}

// NewFromEnv creates a Config from defaults and environment variables, then
// applies opts.
func NewFromEnv(opts ...Option) (*Config, error) {
	return Load("", opts...)
}

// Load builds the configuration from defaults, the settings file at
// settingsPath (SUBTRANS_CONFIG when empty; a missing file is fine),
// environment variables and opts, in that order.
func Load(settingsPath string, opts ...Option) (*Config, error) {
	config := Default()

	if settingsPath == "" {
		settingsPath = os.Getenv("SUBTRANS_CONFIG")
	}
	if settingsPath != "" {
		settings, exists, err := LoadSettingsFile(settingsPath)
		if err != nil {
			return nil, errs.Wrap(err, errs.ErrConfig, "failed to load settings file").
				WithContext("path", settingsPath)
		}
		if exists {
			if err := settings.apply(&config); err != nil {
				return nil, errs.Wrap(err, errs.ErrConfig, "invalid settings file").
					WithContext("path", settingsPath)
			}
		}
	}

	config.applyEnv()

	for _, opt := range opts {
		opt(&config)
	}

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	c.Media.WorkingDirectory = getEnvString("SUBTRANS_WORKING_DIRECTORY", c.Media.WorkingDirectory)
	c.Media.VideoFormat = getEnvString("SUBTRANS_VIDEO_FORMAT", c.Media.VideoFormat)
	c.Media.OutputDirectory = getEnvString("SUBTRANS_OUTPUT_DIRECTORY", c.Media.OutputDirectory)

	c.Azure.Endpoint = getEnvString("AZURE_TRANSLATOR_ENDPOINT", c.Azure.Endpoint)
	c.Azure.APIKey = getEnvString("AZURE_API_KEY", c.Azure.APIKey)
	c.Azure.Region = getEnvString("AZURE_REGION", c.Azure.Region)
	c.Azure.Timeout = getEnvDuration("SUBTRANS_TRANSLATE_TIMEOUT", c.Azure.Timeout)

	c.Translate.SourceLanguage = getEnvString("SUBTRANS_SOURCE_LANGUAGE", c.Translate.SourceLanguage)
	c.Translate.TargetLanguage = getEnvString("SUBTRANS_TARGET_LANGUAGE", c.Translate.TargetLanguage)
	c.Translate.BatchSize = getEnvInt("SUBTRANS_BATCH_SIZE", c.Translate.BatchSize)
	c.Translate.BatchChars = getEnvInt("SUBTRANS_BATCH_CHARS", c.Translate.BatchChars)
	c.Translate.Retries = getEnvInt("SUBTRANS_RETRIES", c.Translate.Retries)

	c.FFmpeg.FFmpegPath = getEnvString("FFMPEG_PATH", c.FFmpeg.FFmpegPath)
	c.FFmpeg.FFprobePath = getEnvString("FFPROBE_PATH", c.FFmpeg.FFprobePath)
	c.FFmpeg.MuxTimeout = getEnvDuration("SUBTRANS_MUX_TIMEOUT", c.FFmpeg.MuxTimeout)

	c.Run.CacheDB = getEnvString("SUBTRANS_CACHE_DB", c.Run.CacheDB)
	c.Run.Schedule = getEnvString("SUBTRANS_SCHEDULE", c.Run.Schedule)

	c.Log.File = getEnvString("SUBTRANS_LOG_FILE", c.Log.File)
	c.Log.Level = getEnvString("SUBTRANS_LOG_LEVEL", c.Log.Level)
	c.Log.Debug = getEnvBool("SUBTRANS_DEBUG", c.Log.Debug)
}

func (c *Config) normalize() {
	c.Media.WorkingDirectory = expandPath(strings.TrimSpace(c.Media.WorkingDirectory))
	c.Media.OutputDirectory = expandPath(strings.TrimSpace(c.Media.OutputDirectory))
	c.Run.CacheDB = expandPath(strings.TrimSpace(c.Run.CacheDB))
	c.Log.File = expandPath(strings.TrimSpace(c.Log.File))
	c.Media.VideoFormat = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Media.VideoFormat)), ".")
	if c.Media.OutputDirectory == "" && c.Media.WorkingDirectory != "" {
		c.Media.OutputDirectory = filepath.Join(c.Media.WorkingDirectory, "output")
	}
	c.Azure.Endpoint = strings.TrimSpace(c.Azure.Endpoint)
	c.Azure.APIKey = strings.TrimSpace(c.Azure.APIKey)
	c.Translate.SourceLanguage = strings.ToLower(strings.TrimSpace(c.Translate.SourceLanguage))
	c.Translate.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Translate.TargetLanguage))
}

// Validate checks if all required configuration is properly set
func (c *Config) Validate() error {
	if c.Media.WorkingDirectory == "" {
		return configError("working directory is required (--working-directory or SUBTRANS_WORKING_DIRECTORY)")
	}
	if c.Media.VideoFormat == "" {
		return configError("video format is required (--video-format or SUBTRANS_VIDEO_FORMAT)")
	}
	if c.Media.VideoFormat == "srt" {
		return configError("video format must not be a subtitle format")
	}
	if c.Azure.Endpoint == "" {
		return configError("Azure Translator endpoint is required (--azure-translator-endpoint or AZURE_TRANSLATOR_ENDPOINT)")
	}
	if u, err := url.Parse(c.Azure.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return configError("Azure Translator endpoint must be an absolute URL").WithContext("endpoint", c.Azure.Endpoint)
	}
	if c.Azure.APIKey == "" {
		return configError("Azure API key is required (--azure-api-key or AZURE_API_KEY)")
	}
	if c.Azure.Timeout <= 0 {
		return configError("translate timeout must be positive")
	}

	if c.Translate.SourceLanguage != AutoDetect {
		if _, err := language.Parse(c.Translate.SourceLanguage); err != nil {
			return configError("invalid source language").WithContext("language", c.Translate.SourceLanguage)
		}
	}
	if _, err := language.Parse(c.Translate.TargetLanguage); err != nil {
		return configError("invalid target language").WithContext("language", c.Translate.TargetLanguage)
	}
	if c.Translate.SourceLanguage == c.Translate.TargetLanguage {
		return configError("source and target language are the same").WithContext("language", c.Translate.TargetLanguage)
	}
	if c.Translate.BatchSize < 1 || c.Translate.BatchSize > translator.MaxItemsPerRequest {
		return configError(fmt.Sprintf("batch size must be between 1 and %d", translator.MaxItemsPerRequest))
	}
	if c.Translate.BatchChars < 1 || c.Translate.BatchChars > translator.MaxCharsPerRequest {
		return configError(fmt.Sprintf("batch chars must be between 1 and %d", translator.MaxCharsPerRequest))
	}
	if c.Translate.Retries < 1 {
		return configError("retries must be at least 1")
	}

	if c.FFmpeg.MuxTimeout <= 0 {
		return configError("mux timeout must be positive")
	}

	if c.Run.Schedule != "" {
		if _, err := cron.ParseStandard(c.Run.Schedule); err != nil {
			return errs.Wrap(err, errs.ErrConfig, "invalid schedule").WithContext("schedule", c.Run.Schedule)
		}
	}

	// outputs are always .mkv, only an mkv input in the output directory can collide
	if c.Media.VideoFormat == "mkv" && sameDir(c.Media.WorkingDirectory, c.Media.OutputDirectory) {
		return configError("output directory must differ from the working directory for mkv input").
			WithContext("path", c.Media.OutputDirectory)
	}
	return nil
}

// SourceLanguageTag returns the source language, language.Und for auto detection.
func (c *Config) SourceLanguageTag() language.Tag {
	if c.Translate.SourceLanguage == AutoDetect {
		return language.Und
	}
	return language.Make(c.Translate.SourceLanguage)
}

// TargetLanguageTag returns the target language.
func (c *Config) TargetLanguageTag() language.Tag {
	return language.Make(c.Translate.TargetLanguage)
}

// VideoExt returns the video extension with a leading dot.
func (c *Config) VideoExt() string {
	return file.NormalizeExt(c.Media.VideoFormat)
}

// expandPath resolves a leading ~ and makes the path absolute. Empty stays empty.
func expandPath(pathValue string) string {
	if pathValue == "" {
		return pathValue
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			pathValue = filepath.Join(home, strings.TrimPrefix(pathValue, "~"))
		}
	}
	if absolute, err := filepath.Abs(filepath.Clean(pathValue)); err == nil {
		return absolute
	}
	return filepath.Clean(pathValue)
}

func configError(message string) *errs.Error {
	return errs.New(errs.ErrConfig, message)
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or plain seconds ("45").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
