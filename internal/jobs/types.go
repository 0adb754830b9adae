package jobs

import (
	"time"

	"github.com/bastianwenske/subtitle-translator/internal/library"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Stage names used in records and logs.
const (
	StageLocate    = "locate"
	StageParse     = "parse"
	StageTranslate = "translate"
	StageSerialize = "serialize"
	StageMux       = "mux"
)

// Record is the outcome of processing one pair.
type Record struct {
	Pair     library.Pair  `json:"pair"`
	Status   Status        `json:"status"`
	Stage    string        `json:"stage,omitempty"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Output   string        `json:"output,omitempty"`
	Cues     int           `json:"cues"`
	Duration time.Duration `json:"duration"`
}
