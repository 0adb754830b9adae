package persistence

import (
	"time"

	"github.com/bastianwenske/subtitle-translator/internal/jobs"
)

// PairResult is a stored jobs.Record.
type PairResult struct {
	RunID        string
	VideoPath    string
	SubtitlePath string
	Status       jobs.Status
	Stage        string
	Error        string
	Output       string
	Cues         int
	Duration     time.Duration
	FinishedAt   time.Time
}
