package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

// Ledger collects the records of one run.
type Ledger struct {
	runID string
	store Store

	mu      sync.RWMutex
	records []Record
}

// NewLedger creates a ledger for runID. store may be nil.
func NewLedger(runID string, store Store) *Ledger {
	return &Ledger{runID: runID, store: store}
}

// RunID returns the identifier of the run.
func (l *Ledger) RunID() string {
	return l.runID
}

// Add appends a record and persists it when a store is configured. A store
// failure is logged but does not fail the pair.
func (l *Ledger) Add(ctx context.Context, record Record) {
	if record.Err != nil && record.Error == "" {
		record.Error = record.Err.Error()
	}

	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.UpsertResult(ctx, l.runID, record); err != nil {
		log.Warn("Failed to persist result for %s: %v", record.Pair.VideoPath, err)
	}
}

// Records returns a copy of all records in insertion order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Record(nil), l.records...)
}

func (l *Ledger) count(status Status) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, r := range l.records {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (l *Ledger) Succeeded() int { return l.count(StatusSuccess) }
func (l *Ledger) Failed() int    { return l.count(StatusFailed) }
func (l *Ledger) Skipped() int   { return l.count(StatusSkipped) }

// Summary returns a one-line count of outcomes.
func (l *Ledger) Summary() string {
	return fmt.Sprintf("%d succeeded, %d skipped, %d failed", l.Succeeded(), l.Skipped(), l.Failed())
}

// Render formats the records as a table.
func (l *Ledger) Render() string {
	records := l.Records()
	if len(records) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Video", "Status", "Stage", "Cues", "Duration", "Detail"})

	for _, r := range records {
		detail := r.Output
		if r.Status == StatusFailed {
			detail = r.Error
		}
		tw.AppendRow(table.Row{
			filepath.Base(r.Pair.VideoPath),
			string(r.Status),
			r.Stage,
			strconv.Itoa(r.Cues),
			r.Duration.Round(time.Millisecond).String(),
			detail,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 6, WidthMax: 80},
	})
	return tw.Render()
}
