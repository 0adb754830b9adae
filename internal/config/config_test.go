package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
)

var envKeys = []string{
	"SUBTRANS_WORKING_DIRECTORY", "SUBTRANS_VIDEO_FORMAT", "SUBTRANS_OUTPUT_DIRECTORY",
	"AZURE_TRANSLATOR_ENDPOINT", "AZURE_API_KEY", "AZURE_REGION",
	"SUBTRANS_SOURCE_LANGUAGE", "SUBTRANS_TARGET_LANGUAGE",
	"SUBTRANS_BATCH_SIZE", "SUBTRANS_BATCH_CHARS", "SUBTRANS_RETRIES",
	"SUBTRANS_TRANSLATE_TIMEOUT", "SUBTRANS_MUX_TIMEOUT", "FFMPEG_PATH", "FFPROBE_PATH",
	"SUBTRANS_CACHE_DB", "SUBTRANS_SCHEDULE", "SUBTRANS_LOG_FILE", "SUBTRANS_DEBUG",
	"SUBTRANS_LOG_LEVEL", "SUBTRANS_CONFIG",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func setRequiredEnv(t *testing.T, wd string) {
	t.Helper()
	t.Setenv("SUBTRANS_WORKING_DIRECTORY", wd)
	t.Setenv("SUBTRANS_VIDEO_FORMAT", "mp4")
	t.Setenv("AZURE_TRANSLATOR_ENDPOINT", "https://api.cognitive.microsofttranslator.com")
	t.Setenv("AZURE_API_KEY", "test-key")
}

func TestNewFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	wd := t.TempDir()
	setRequiredEnv(t, wd)

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, wd, cfg.Media.WorkingDirectory)
	assert.Equal(t, filepath.Join(wd, "output"), cfg.Media.OutputDirectory)
	assert.Equal(t, "de", cfg.Translate.SourceLanguage)
	assert.Equal(t, "en", cfg.Translate.TargetLanguage)
	assert.Equal(t, 100, cfg.Translate.BatchSize)
	assert.Equal(t, 10000, cfg.Translate.BatchChars)
	assert.Equal(t, 3, cfg.Translate.Retries)
	assert.True(t, cfg.Translate.Bilingual)
	assert.Equal(t, 30*time.Second, cfg.Azure.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.FFmpeg.MuxTimeout)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.FFmpegPath)
	assert.Equal(t, ".mp4", cfg.VideoExt())
	assert.Equal(t, language.German, cfg.SourceLanguageTag())
	assert.Equal(t, language.English, cfg.TargetLanguageTag())
}

func TestNewFromEnv_RequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "working directory", unset: "SUBTRANS_WORKING_DIRECTORY"},
		{name: "video format", unset: "SUBTRANS_VIDEO_FORMAT"},
		{name: "endpoint", unset: "AZURE_TRANSLATOR_ENDPOINT"},
		{name: "api key", unset: "AZURE_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t, t.TempDir())
			t.Setenv(tt.unset, "")

			_, err := NewFromEnv()
			require.Error(t, err)
			assert.True(t, errs.IsType(err, errs.ErrConfig))
		})
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{name: "relative endpoint", opt: func(c *Config) { c.Azure.Endpoint = "translator.local" }},
		{name: "bad target", opt: func(c *Config) { c.Translate.TargetLanguage = "not-a-language-tag!" }},
		{name: "same languages", opt: func(c *Config) { c.Translate.TargetLanguage = "de" }},
		{name: "batch too large", opt: func(c *Config) { c.Translate.BatchSize = 1001 }},
		{name: "chars too large", opt: func(c *Config) { c.Translate.BatchChars = 50001 }},
		{name: "no retries", opt: func(c *Config) { c.Translate.Retries = 0 }},
		{name: "bad cron", opt: func(c *Config) { c.Run.Schedule = "every day" }},
		{name: "srt as video", opt: func(c *Config) { c.Media.VideoFormat = "srt" }},
		{name: "mkv into itself", opt: func(c *Config) {
			c.Media.VideoFormat = "mkv"
			c.Media.OutputDirectory = c.Media.WorkingDirectory
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t, t.TempDir())

			_, err := NewFromEnv(tt.opt)
			require.Error(t, err)
			assert.True(t, errs.IsType(err, errs.ErrConfig), "got %v", err)
		})
	}
}

func TestNewFromEnv_AutoSourceLanguage(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t, t.TempDir())
	t.Setenv("SUBTRANS_SOURCE_LANGUAGE", "AUTO")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, AutoDetect, cfg.Translate.SourceLanguage)
	assert.Equal(t, language.Und, cfg.SourceLanguageTag())
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	wd := filepath.Join(dir, "media")

	settingsPath := filepath.Join(dir, "subtrans.toml")
	require.NoError(t, os.WriteFile(settingsPath, []byte(`
[media]
working_directory = "`+filepath.ToSlash(wd)+`"
video_format = "mkv"
output_directory = "`+filepath.ToSlash(filepath.Join(dir, "out"))+`"

[azure]
endpoint = "https://file.example.com"
api_key = "file-key"
timeout = "10s"

[translate]
batch_size = 10
retries = 5
bilingual = false

[run]
schedule = "0 3 * * *"
`), 0o600))

	// env beats file
	t.Setenv("AZURE_API_KEY", "env-key")
	t.Setenv("SUBTRANS_BATCH_SIZE", "20")

	// flag beats env
	withFlag := func(c *Config) { c.Translate.BatchSize = 30 }

	cfg, err := Load(settingsPath, withFlag)
	require.NoError(t, err)

	assert.Equal(t, wd, cfg.Media.WorkingDirectory)
	assert.Equal(t, "mkv", cfg.Media.VideoFormat)
	assert.Equal(t, "https://file.example.com", cfg.Azure.Endpoint)
	assert.Equal(t, "env-key", cfg.Azure.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Azure.Timeout)
	assert.Equal(t, 30, cfg.Translate.BatchSize)
	assert.Equal(t, 5, cfg.Translate.Retries)
	assert.False(t, cfg.Translate.Bilingual)
	assert.Equal(t, 10000, cfg.Translate.BatchChars, "default survives")
	assert.Equal(t, "0 3 * * *", cfg.Run.Schedule)
}

func TestLoad_SettingsFromEnvPath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "settings.toml")
	require.NoError(t, os.WriteFile(settingsPath, []byte("[translate]\ntarget_language = \"fr\"\n"), 0o600))

	setRequiredEnv(t, dir)
	t.Setenv("SUBTRANS_CONFIG", settingsPath)

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "fr", cfg.Translate.TargetLanguage)
}

func TestLoad_MissingSettingsFileIsIgnored(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t, t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NoError(t, err)
}

func TestLoad_InvalidSettingsFile(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t, t.TempDir())

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[azure]\ntimeout = \"soon\"\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrConfig))
}

func TestLoad_LogLevel(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t, t.TempDir())

	path := filepath.Join(t.TempDir(), "subtrans.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)

	t.Setenv("SUBTRANS_LOG_LEVEL", "error")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45")
	assert.Equal(t, 45*time.Second, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "2m")
	assert.Equal(t, 2*time.Minute, getEnvDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION", "garbage")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION", time.Second))
}
