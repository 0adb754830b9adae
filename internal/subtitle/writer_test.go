package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Format(t *testing.T) {
	file := &File{Lines: []Line{
		{Index: 1, StartTime: time.Second, EndTime: 2*time.Second + 5*time.Millisecond, Text: "Hallo", TranslatedText: "Hello", Translated: true},
		{Index: 2, StartTime: time.Hour, EndTime: time.Hour + time.Second, Text: "Welt"},
	}}

	assert.Equal(t,
		"1\n00:00:01,000 --> 00:00:02,005\nHello\n\n2\n01:00:00,000 --> 01:00:01,000\nWelt\n\n",
		string(Marshal(file)))
}

func TestMarshal_RoundTrip(t *testing.T) {
	original, err := Parse([]byte(germanSRT), "movie.srt")
	require.NoError(t, err)

	for i := range original.Lines {
		original.Lines[i].TranslatedText = strings.ToUpper(original.Lines[i].Text)
		original.Lines[i].Translated = true
	}

	reparsed, err := Parse(Marshal(original), "movie.en.srt")
	require.NoError(t, err)
	require.Len(t, reparsed.Lines, len(original.Lines))

	for i := range original.Lines {
		assert.Equal(t, original.Lines[i].Index, reparsed.Lines[i].Index)
		assert.Equal(t, original.Lines[i].StartTime, reparsed.Lines[i].StartTime)
		assert.Equal(t, original.Lines[i].EndTime, reparsed.Lines[i].EndTime)
		assert.Equal(t, original.Lines[i].TranslatedText, reparsed.Lines[i].Text)
	}
}

func TestMarshal_BlankLinesInTextDoNotSplitCues(t *testing.T) {
	file := &File{Lines: []Line{
		{Index: 1, StartTime: 0, EndTime: time.Second, TranslatedText: "first\n\n  second  \r\n", Translated: true},
		{Index: 2, StartTime: time.Second, EndTime: 2 * time.Second, TranslatedText: "", Translated: true},
		{Index: 3, StartTime: 2 * time.Second, EndTime: 3 * time.Second, TranslatedText: "third", Translated: true},
	}}

	reparsed, err := Parse(Marshal(file), "out.srt")
	require.NoError(t, err)
	require.Len(t, reparsed.Lines, 3)
	assert.Equal(t, "first\nsecond", reparsed.Lines[0].Text)
	assert.Equal(t, "", reparsed.Lines[1].Text)
	assert.Equal(t, "third", reparsed.Lines[2].Text)
}

func TestMarshal_EmptyTranslationIsNotReplacedBySource(t *testing.T) {
	file := &File{Lines: []Line{
		{Index: 1, StartTime: 0, EndTime: time.Second, Text: "Hallo", TranslatedText: "", Translated: true},
		{Index: 2, StartTime: time.Second, EndTime: 2 * time.Second, Text: "Welt", TranslatedText: "World", Translated: true},
	}}

	assert.Equal(t,
		"1\n00:00:00,000 --> 00:00:01,000\n\n2\n00:00:01,000 --> 00:00:02,000\nWorld\n\n",
		string(Marshal(file)))
}

func TestWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "movie.en.srt")
	file := &File{Lines: []Line{{Index: 1, StartTime: 0, EndTime: time.Second, Text: "Hallo", TranslatedText: "Hello", Translated: true}}}

	require.NoError(t, NewWriter().Write(path, file))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello")

	assert.Error(t, NewWriter().Write(path, nil))
}
