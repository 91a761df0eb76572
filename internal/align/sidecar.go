package align

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// sidecarEntry accepts both "word" and the older "text" key.
type sidecarEntry struct {
	Word     string  `json:"word"`
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Emphasis *bool   `json:"emphasis"`
}

// SidecarAligner reads timings precomputed by an external aligner.
type SidecarAligner struct {
	path string
	log  logger.Logger
}

func NewSidecarAligner(path string, log logger.Logger) *SidecarAligner {
	return &SidecarAligner{path: path, log: log}
}

// Align ignores audio and text. A missing sidecar means the job has no
// captions and yields (nil, nil).
func (a *SidecarAligner) Align(_ context.Context, _, _ string) ([]types.WordTiming, error) {
	words, err := ReadSidecar(a.path, a.log)
	if errors.Is(err, os.ErrNotExist) {
		a.log.Info().Str("path", a.path).Msg("no alignment file, rendering without captions")
		return nil, nil
	}
	return words, err
}

// ReadSidecar parses a `[{"word","start","end"}]` file. Words without an
// explicit emphasis flag get the lexical heuristic.
func ReadSidecar(path string, log logger.Logger) ([]types.WordTiming, error) {
	if path == "" {
		return nil, errors.Wrap(os.ErrNotExist, "no alignment path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, errors.Wrapf(types.ErrAlignment, "reading %s: %v", path, err)
	}

	var entries []sidecarEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(types.ErrAlignment, "parsing %s: %v", path, err)
	}

	words := make([]types.WordTiming, 0, len(entries))
	for _, e := range entries {
		text := e.Word
		if text == "" {
			text = e.Text
		}
		w := types.WordTiming{Text: CaptionText(text), Start: e.Start, End: e.End}
		if e.Emphasis != nil {
			w.Emphasis = *e.Emphasis
		} else {
			w.Emphasis = IsEmphasis(text)
		}
		words = append(words, w)
	}
	return Normalize(words, log), nil
}

// WriteSidecar writes words in the format ReadSidecar reads.
func WriteSidecar(path string, words []types.WordTiming) error {
	if words == nil {
		words = []types.WordTiming{}
	}
	data, err := json.MarshalIndent(words, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
