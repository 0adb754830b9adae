package jobs

import "context"

// Store persists pair outcomes across runs.
type Store interface {
	UpsertResult(ctx context.Context, runID string, record Record) error
}
