package align

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/internal/logger"
	"github.com/JONGYYY/adhd-story-gen-google-cloud-run/pkg/types"
)

// Normalize enforces the word sequence invariants: trimmed non-empty text,
// start >= 0, end > start, ordered by start and non-overlapping. Offending
// entries are dropped with a warning; overlaps are resolved by clamping a
// word's end to the next word's start.
func Normalize(words []types.WordTiming, log logger.Logger) []types.WordTiming {
	valid := make([]types.WordTiming, 0, len(words))
	for _, w := range words {
		w.Text = strings.TrimSpace(w.Text)
		if w.Text == "" || w.Start < 0 || w.End <= w.Start {
			log.Warn().
				Str("word", w.Text).
				Float64("start", w.Start).
				Float64("end", w.End).
				Msg("skipping invalid word timing")
			continue
		}
		valid = append(valid, w)
	}

	slices.SortStableFunc(valid, func(a, b types.WordTiming) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	out := valid[:0]
	for i, w := range valid {
		if i+1 < len(valid) && w.End > valid[i+1].Start {
			w.End = valid[i+1].Start
		}
		if w.End <= w.Start {
			log.Warn().Str("word", w.Text).Float64("start", w.Start).Msg("dropping word fully overlapped by its successor")
			continue
		}
		out = append(out, w)
	}
	return out
}

// IsOrdered reports whether words are sorted by start and do not overlap.
func IsOrdered(words []types.WordTiming) bool {
	for i := 1; i < len(words); i++ {
		if words[i].Start < words[i-1].Start || words[i-1].End > words[i].Start {
			return false
		}
	}
	return true
}
