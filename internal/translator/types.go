package translator

import (
	"context"
)

// Translator turns texts in one language into texts in another. The result
// must have one entry per input text, in the same order. An empty from asks
// the implementation to detect the source language.
type Translator interface {
	Translate(ctx context.Context, texts []string, from, to string) ([]string, error)
}

// Cache stores earlier translations so repeated text is not sent again.
type Cache interface {
	Lookup(ctx context.Context, from, to string, texts []string) (map[string]string, error)
	Store(ctx context.Context, from, to string, pairs map[string]string) error
}

// Batch is a half-open range [Start, End) of line positions sent in one
// translation request.
type Batch struct {
	Start int
	End   int
}

// Len returns the number of lines in the batch.
func (b Batch) Len() int {
	return b.End - b.Start
}

// Limits bounds the size of a batch. A zero value means no limit.
type Limits struct {
	MaxItems int
	MaxChars int
}
