package translator

import "unicode/utf8"

// Azure Translator v3 request limits.
const (
	MaxItemsPerRequest = 1000
	MaxCharsPerRequest = 50000
)

// Partition splits texts into consecutive batches. A batch is closed when
// the next text would exceed either limit; a single text longer than
// MaxChars is sent on its own.
func Partition(texts []string, limits Limits) []Batch {
	var batches []Batch
	start, chars := 0, 0

	for i, text := range texts {
		n := utf8.RuneCountInString(text)
		count := i - start

		full := limits.MaxItems > 0 && count >= limits.MaxItems
		tooLong := limits.MaxChars > 0 && count > 0 && chars+n > limits.MaxChars
		if full || tooLong {
			batches = append(batches, Batch{Start: start, End: i})
			start, chars = i, 0
		}
		chars += n
	}

	if start < len(texts) {
		batches = append(batches, Batch{Start: start, End: len(texts)})
	}
	return batches
}
