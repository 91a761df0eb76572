package types

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Backend selects how the composite timeline is encoded.
type Backend string

const (
	// BackendFilterGraph renders the whole timeline as a single ffmpeg filter graph.
	BackendFilterGraph Backend = "filtergraph"
	// BackendFrames composites every frame in-process and pipes raw frames to ffmpeg.
	BackendFrames Backend = "frames"
)

// AlignerKind selects the word alignment strategy.
type AlignerKind string

const (
	AlignerSidecar   AlignerKind = "sidecar"
	AlignerHeuristic AlignerKind = "heuristic"
	AlignerEngine    AlignerKind = "engine"
)

const (
	MaxTitleLength = 300
	MaxStoryLength = 5000

	// StoryBreak separates the narrated story from a trailer that is not read aloud.
	StoryBreak = "[BREAK]"
)

// WordTiming is a single aligned word in seconds, relative to its own audio track.
type WordTiming struct {
	Text     string  `json:"word"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Emphasis bool    `json:"emphasis"`
}

func (w WordTiming) Duration() float64 {
	return w.End - w.Start
}

// StoryData is the story payload handed to a generation job.
type StoryData struct {
	Title     string `json:"title" yaml:"title"`
	Story     string `json:"story" yaml:"story"`
	Subreddit string `json:"subreddit" yaml:"subreddit"`
	Author    string `json:"author" yaml:"author"`
}

// NarratedStory returns the part of the story that is read aloud: a leading
// break marker is dropped and anything after the next one is cut.
func (s StoryData) NarratedStory() string {
	text := strings.TrimSpace(s.Story)
	text = strings.TrimSpace(strings.TrimPrefix(text, StoryBreak))
	if i := strings.Index(text, StoryBreak); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text
}

// Validate checks the story payload. It never touches the filesystem.
func (s StoryData) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"title", s.Title},
		{"story", s.Story},
		{"subreddit", s.Subreddit},
		{"author", s.Author},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return errors.Wrapf(ErrValidation, "missing required field: %s", f.name)
		}
	}

	if n := utf8.RuneCountInString(s.Title); n > MaxTitleLength {
		return errors.Wrapf(ErrValidation, "title is too long (%d chars, max %d)", n, MaxTitleLength)
	}

	story := s.NarratedStory()
	if story == "" {
		return errors.Wrap(ErrValidation, "story text is empty after processing break markers")
	}
	if n := utf8.RuneCountInString(story); n > MaxStoryLength {
		return errors.Wrapf(ErrValidation, "story is too long (%d chars, max %d)", n, MaxStoryLength)
	}

	return nil
}
