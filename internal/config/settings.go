package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bastianwenske/subtitle-translator/pkg/file"
)

//go:embed sample_config.toml
var sampleConfig string

// DefaultSettingsFile is looked up by `config init` when no path is given.
const DefaultSettingsFile = "subtrans.toml"

// Settings mirrors the TOML settings file. Unset keys keep their defaults.
type Settings struct {
	Media     MediaSettings     `toml:"media"`
	Azure     AzureSettings     `toml:"azure"`
	Translate TranslateSettings `toml:"translate"`
	FFmpeg    FFmpegSettings    `toml:"ffmpeg"`
	Run       RunSettings       `toml:"run"`
	Log       LogSettings       `toml:"log"`
}

type MediaSettings struct {
	WorkingDirectory string `toml:"working_directory"`
	VideoFormat      string `toml:"video_format"`
	OutputDirectory  string `toml:"output_directory"`
}

type AzureSettings struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
	Region   string `toml:"region"`
	Timeout  string `toml:"timeout"`
}

type TranslateSettings struct {
	SourceLanguage string `toml:"source_language"`
	TargetLanguage string `toml:"target_language"`
	BatchSize      int    `toml:"batch_size"`
	BatchChars     int    `toml:"batch_chars"`
	Retries        int    `toml:"retries"`
	Bilingual      *bool  `toml:"bilingual"`
	KeepSubtitles  *bool  `toml:"keep_subtitles"`
}

type FFmpegSettings struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
	MuxTimeout  string `toml:"mux_timeout"`
}

type RunSettings struct {
	Overwrite *bool  `toml:"overwrite"`
	FailFast  *bool  `toml:"fail_fast"`
	CacheDB   string `toml:"cache_db"`
	Schedule  string `toml:"schedule"`
}

type LogSettings struct {
	Level string `toml:"level"`
	Debug *bool  `toml:"debug"`
	File  string `toml:"file"`
}

// LoadSettingsFile parses the TOML file at path. A missing file is not an
// error; exists reports whether it was found.
func LoadSettingsFile(path string) (settings Settings, exists bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Settings{}, false, nil
		}
		return Settings{}, false, fmt.Errorf("read settings: %w", err)
	}
	if err := toml.Unmarshal(data, &settings); err != nil {
		return Settings{}, true, fmt.Errorf("parse settings: %w", err)
	}
	return settings, true, nil
}

// WriteSettingsFile writes settings to path atomically.
func WriteSettingsFile(path string, settings Settings) error {
	content, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return file.WriteAtomic(path, content, 0o600)
}

// CreateSample writes the annotated sample settings file. An existing file
// is left alone.
func CreateSample(path string) error {
	if file.Exists(path) {
		return fmt.Errorf("settings file %s already exists", path)
	}
	if err := file.WriteAtomic(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func (s Settings) apply(c *Config) error {
	setString(&c.Media.WorkingDirectory, s.Media.WorkingDirectory)
	setString(&c.Media.VideoFormat, s.Media.VideoFormat)
	setString(&c.Media.OutputDirectory, s.Media.OutputDirectory)

	setString(&c.Azure.Endpoint, s.Azure.Endpoint)
	setString(&c.Azure.APIKey, s.Azure.APIKey)
	setString(&c.Azure.Region, s.Azure.Region)
	if err := setDuration(&c.Azure.Timeout, "azure.timeout", s.Azure.Timeout); err != nil {
		return err
	}

	setString(&c.Translate.SourceLanguage, s.Translate.SourceLanguage)
	setString(&c.Translate.TargetLanguage, s.Translate.TargetLanguage)
	setInt(&c.Translate.BatchSize, s.Translate.BatchSize)
	setInt(&c.Translate.BatchChars, s.Translate.BatchChars)
	setInt(&c.Translate.Retries, s.Translate.Retries)
	setBool(&c.Translate.Bilingual, s.Translate.Bilingual)
	setBool(&c.Translate.KeepSubtitles, s.Translate.KeepSubtitles)

	setString(&c.FFmpeg.FFmpegPath, s.FFmpeg.FFmpegPath)
	setString(&c.FFmpeg.FFprobePath, s.FFmpeg.FFprobePath)
	if err := setDuration(&c.FFmpeg.MuxTimeout, "ffmpeg.mux_timeout", s.FFmpeg.MuxTimeout); err != nil {
		return err
	}

	setBool(&c.Run.Overwrite, s.Run.Overwrite)
	setBool(&c.Run.FailFast, s.Run.FailFast)
	setString(&c.Run.CacheDB, s.Run.CacheDB)
	setString(&c.Run.Schedule, s.Run.Schedule)

	setString(&c.Log.Level, s.Log.Level)
	setBool(&c.Log.Debug, s.Log.Debug)
	setString(&c.Log.File, s.Log.File)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
