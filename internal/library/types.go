package library

// Pair is a video file and the subtitle file that belongs to it.
type Pair struct {
	VideoPath    string `json:"video_path"`
	SubtitlePath string `json:"subtitle_path"`
	// Stem is the video file name without extension.
	Stem string `json:"stem"`
	// SubtitleLanguage is the ISO 639-1 code from the subtitle file name
	// (movie.de.srt), empty when the name carries none.
	SubtitleLanguage string `json:"subtitle_language,omitempty"`
}
