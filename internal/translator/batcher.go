package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bastianwenske/subtitle-translator/internal/errs"
	"github.com/bastianwenske/subtitle-translator/internal/subtitle"
	"github.com/bastianwenske/subtitle-translator/pkg/log"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 10 * time.Second
)

// Batcher sends subtitle lines to a Translator in bounded batches, retrying
// failed batches with exponential backoff.
type Batcher struct {
	translator Translator
	cache      Cache
	limits     Limits

	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleeper   func(context.Context, time.Duration) error
}

// Option customizes the batcher.
type Option func(*Batcher)

// WithLimits overrides the per-request item and character limits.
func WithLimits(limits Limits) Option {
	return func(b *Batcher) {
		b.limits = limits
	}
}

// WithAttempts overrides how often a batch is tried (defaults to 3).
func WithAttempts(attempts int) Option {
	return func(b *Batcher) {
		b.attempts = attempts
	}
}

// WithBackoff overrides the retry backoff delays.
func WithBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(b *Batcher) {
		b.baseDelay = baseDelay
		b.maxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(b *Batcher) {
		if sleeper != nil {
			b.sleeper = sleeper
		}
	}
}

// WithCache enables lookups of earlier translations.
func WithCache(cache Cache) Option {
	return func(b *Batcher) {
		b.cache = cache
	}
}

// NewBatcher creates a batcher around translator.
func NewBatcher(translator Translator, opts ...Option) *Batcher {
	b := &Batcher{
		translator: translator,
		limits:     Limits{MaxItems: 100, MaxChars: 10000},
		attempts:   defaultAttempts,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		sleeper:    sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.attempts <= 0 {
		b.attempts = 1
	}
	return b
}

// TranslateLines translates the text of every line and stores the result in
// TranslatedText, marking it Translated. Either every line is translated or lines is left untouched
// and a Translation error is returned.
func (b *Batcher) TranslateLines(ctx context.Context, lines []subtitle.Line, from, to string) error {
	if len(lines) == 0 {
		return nil
	}

	texts := make([]string, len(lines))
	for i, line := range lines {
		texts[i] = line.Text
	}
	results := make([]string, len(lines))

	pending := b.applyCache(ctx, texts, results, from, to)

	batches := Partition(valuesAt(texts, pending), b.limits)
	log.Debug("Translating %d of %d lines in %d batches (%s -> %s)", len(pending), len(lines), len(batches), displayLang(from), to)

	for n, batch := range batches {
		positions := pending[batch.Start:batch.End]
		batchTexts := valuesAt(texts, positions)

		translated, err := b.translateBatch(ctx, batchTexts, from, to)
		if err != nil {
			first, last := lines[positions[0]].Index, lines[positions[len(positions)-1]].Index
			return errs.Wrap(err, errs.ErrTranslation, "batch translation failed").
				WithContext("batch", fmt.Sprintf("%d/%d", n+1, len(batches))).
				WithContext("cues", fmt.Sprintf("%d-%d", first, last))
		}

		for i, pos := range positions {
			results[pos] = translated[i]
		}
		b.storeCache(ctx, batchTexts, translated, from, to)
	}

	for i := range lines {
		lines[i].TranslatedText = results[i]
		lines[i].Translated = true
	}
	return nil
}

// applyCache fills results from the cache and returns the positions that
// still need translating.
func (b *Batcher) applyCache(ctx context.Context, texts, results []string, from, to string) []int {
	pending := make([]int, 0, len(texts))
	var hits map[string]string

	if b.cache != nil {
		var err error
		hits, err = b.cache.Lookup(ctx, from, to, texts)
		if err != nil {
			log.Warn("Translation cache lookup failed, translating everything: %v", err)
			hits = nil
		}
	}

	for i, text := range texts {
		if translated, ok := hits[text]; ok {
			results[i] = translated
			continue
		}
		pending = append(pending, i)
	}
	if len(hits) > 0 {
		log.Debug("Translation cache hit for %d of %d lines", len(texts)-len(pending), len(texts))
	}
	return pending
}

func (b *Batcher) storeCache(ctx context.Context, texts, translated []string, from, to string) {
	if b.cache == nil {
		return
	}
	pairs := make(map[string]string, len(texts))
	for i, text := range texts {
		pairs[text] = translated[i]
	}
	if err := b.cache.Store(ctx, from, to, pairs); err != nil {
		log.Warn("Failed to store translations in cache: %v", err)
	}
}

func (b *Batcher) translateBatch(ctx context.Context, texts []string, from, to string) ([]string, error) {
	var lastErr error

	for attempt := 1; attempt <= b.attempts; attempt++ {
		translated, err := b.translator.Translate(ctx, texts, from, to)
		if err == nil && len(translated) != len(texts) {
			err = fmt.Errorf("translation count mismatch: sent %d texts, got %d", len(texts), len(translated))
		}
		if err == nil {
			return translated, nil
		}
		lastErr = err

		if !b.shouldRetry(ctx, err, attempt) {
			break
		}
		delay := b.backoffDelay(attempt)
		log.Warn("Translation attempt %d/%d failed, retrying in %s: %v", attempt, b.attempts, delay, err)
		if err := b.sleeper(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (b *Batcher) shouldRetry(ctx context.Context, err error, attempt int) bool {
	if attempt >= b.attempts {
		return false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var permanent interface{ Permanent() bool }
	if errors.As(err, &permanent) && permanent.Permanent() {
		return false
	}
	return true
}

// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
func (b *Batcher) backoffDelay(attempt int) time.Duration {
	if b.baseDelay <= 0 {
		return 0
	}
	delay := b.baseDelay
	for i := 1; i < attempt; i++ {
		if b.maxDelay > 0 && delay > b.maxDelay/2 {
			return b.maxDelay
		}
		delay *= 2
	}
	if b.maxDelay > 0 && delay > b.maxDelay {
		return b.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func valuesAt(texts []string, positions []int) []string {
	ret := make([]string, len(positions))
	for i, pos := range positions {
		ret[i] = texts[pos]
	}
	return ret
}

func displayLang(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}
