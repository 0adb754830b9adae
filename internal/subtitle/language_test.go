package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestDetectLanguage(t *testing.T) {
	lines := []Line{
		{
			Text: "Hello, world!",
		},
		{
			Text: "こんにちは、世界!",
		},
		{
			Text: "こんにちは、世界!",
		},

		{
			Text: "Привет, мир!",
		},
	}
	lang := detectLanguageOrFail(t, lines)
	if lang != language.Japanese {
		t.Errorf("expected ja, got %s", lang)
	}
}

func TestDetectLanguage_EmptyInput(t *testing.T) {
	assert.Equal(t, language.Und, DetectLanguage(nil))
	assert.Equal(t, language.Und, DetectLanguage([]Line{{Text: "<i></i>"}}))
}

func detectLanguageOrFail(t *testing.T, lines []Line) language.Tag {
	t.Helper()
	lang := DetectLanguage(lines)
	if lang == language.Und {
		t.Fatalf("no language detected")
	}
	return lang
}
